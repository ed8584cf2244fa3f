package jobs

import "time"

// State enum for queue-side bookkeeping, distinct from the screenshot's own
// processing_status.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// Payload references the screenshot to analyze.
type Payload struct {
	ScreenshotID string `json:"screenshot_id"`
	FilePath     string `json:"file_path"`
}

// Job is the queue's transient unit of work. It lives only as long as the
// broker keeps it; the screenshot row is the durable record.
type Job struct {
	ID           string        `json:"id"`
	Payload      Payload       `json:"payload"`
	Priority     int           `json:"priority"` // lower number = higher priority
	Timeout      time.Duration `json:"timeout"`
	AttemptsMade int           `json:"attempts_made"`
	EnqueuedAt   time.Time     `json:"enqueued_at"`
	// Requeued marks a job already re-driven once after a stall; a second
	// stall fails it instead.
	Requeued bool `json:"requeued"`
}

// Options for enqueue.
type Options struct {
	Priority int
	Timeout  time.Duration
}

// Stats is a point-in-time count per state.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
	Total     int `json:"total"`
}
