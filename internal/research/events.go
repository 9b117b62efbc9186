package research

// EventKind enumerates progress-stream event types.
type EventKind string

const (
	EventPhaseStarted   EventKind = "phase_started"
	EventPhaseProgress  EventKind = "phase_progress"
	EventPhaseCompleted EventKind = "phase_completed"
	EventUnitFailed     EventKind = "unit_failed"
)

// Event is one progress notification emitted by a pipeline. The job tracker
// consumes these; the pipeline itself never mutates job records directly.
type Event struct {
	JobID    string
	Kind     EventKind
	Phase    string
	Progress float64
	Message  string
	Err      string
}

// EventSink receives progress events. Implementations must be safe for
// concurrent use; pipelines publish from multiple goroutines.
type EventSink interface {
	Publish(Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(Event) {}
