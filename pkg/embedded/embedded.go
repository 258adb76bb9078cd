// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains the dashboard files embedded in the Go binary. Everything
// under web/ is served directly via HTTP.
//
//go:embed all:web
var Files embed.FS
