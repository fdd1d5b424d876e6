package pipeline

import (
	"sync"
	"time"
)

// Status is the progress record polled by the status endpoint.
type Status struct {
	Running     bool      `json:"running"`
	StartTime   time.Time `json:"-"`
	CurrentStep string    `json:"currentStep"`
	Progress    float64   `json:"progress"`
}

// ElapsedSeconds reports whole seconds since the run started, 0 before the
// first run.
func (s Status) ElapsedSeconds() int {
	if s.StartTime.IsZero() {
		return 0
	}
	return int(time.Since(s.StartTime).Seconds())
}

// StatusTracker guards the pipeline status record. Start is
// compare-and-set, so two concurrent triggers cannot both win.
type StatusTracker struct {
	mu sync.Mutex
	s  Status
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{}
}

// TryStart claims the pipeline. Returns false when a run is already active.
func (t *StatusTracker) TryStart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.Running {
		return false
	}
	t.s = Status{
		Running:     true,
		StartTime:   time.Now(),
		CurrentStep: "Starting pipeline",
		Progress:    0,
	}
	return true
}

// Set records the current step and progress.
func (t *StatusTracker) Set(step string, progress float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.CurrentStep = step
	t.s.Progress = progress
}

// Complete marks the run finished.
func (t *StatusTracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.CurrentStep = "Complete"
	t.s.Progress = 1.0
	t.s.Running = false
}

// Fail marks the run failed; the error message becomes the visible step.
func (t *StatusTracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.CurrentStep = "Error: " + err.Error()
	t.s.Running = false
}

// Snapshot returns a copy of the current status.
func (t *StatusTracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
