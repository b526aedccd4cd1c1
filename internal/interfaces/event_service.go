package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobWaiting         EventType = "job_waiting"
	EventJobActive          EventType = "job_active"
	EventJobCompleted       EventType = "job_completed"
	EventJobFailed          EventType = "job_failed"
	EventJobCancelled       EventType = "job_cancelled"
	EventScreenshotCaptured EventType = "screenshot_captured"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus between the scheduler and the
// websocket broadcaster
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
