package tui

import (
	"image/color"

	catppuccin "github.com/catppuccin/go"
)

var mocha = catppuccin.Mocha

// Theme holds the semantic color palette for the dashboard.
type Theme struct {
	Muted   color.Color
	Text    color.Color
	Subtext color.Color
	Primary color.Color
	Accent  color.Color
	Success color.Color
	Warning color.Color
	Error   color.Color
}

// Default theme: Catppuccin Mocha.
var Default = Theme{
	Muted:   mocha.Overlay0(),
	Text:    mocha.Text(),
	Subtext: mocha.Subtext0(),
	Primary: mocha.Blue(),
	Accent:  mocha.Mauve(),
	Success: mocha.Green(),
	Warning: mocha.Peach(),
	Error:   mocha.Red(),
}
