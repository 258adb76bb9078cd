// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	SpanReceived    EventType = "SPAN_RECEIVED"
	TraceCompleted  EventType = "TRACE_COMPLETED"
	MetricsSnapshot EventType = "METRICS_SNAPSHOT"
	BackupCompleted EventType = "BACKUP_COMPLETED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// Event represents a system event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data,omitempty"`
}
