package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryStartClaimsOnce(t *testing.T) {
	tracker := NewStatusTracker()

	require.True(t, tracker.TryStart())
	assert.False(t, tracker.TryStart(), "second start while running must lose")

	status := tracker.Snapshot()
	assert.True(t, status.Running)
	assert.Equal(t, "Starting pipeline", status.CurrentStep)
	assert.Zero(t, status.Progress)
	assert.False(t, status.StartTime.IsZero())
}

func TestTryStartConcurrent(t *testing.T) {
	tracker := NewStatusTracker()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.TryStart() {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins, "exactly one trigger may win the race")
}

func TestCompleteReleasesClaim(t *testing.T) {
	tracker := NewStatusTracker()
	require.True(t, tracker.TryStart())
	tracker.Set("Processing audio for Unity", 0.5)
	tracker.Complete()

	status := tracker.Snapshot()
	assert.False(t, status.Running)
	assert.Equal(t, "Complete", status.CurrentStep)
	assert.Equal(t, 1.0, status.Progress)

	assert.True(t, tracker.TryStart(), "finished pipeline can be restarted")
}

func TestFailSurfacesErrorInStep(t *testing.T) {
	tracker := NewStatusTracker()
	require.True(t, tracker.TryStart())
	tracker.Fail(fmt.Errorf("audio generation failed after 4 attempts: boom"))

	status := tracker.Snapshot()
	assert.False(t, status.Running)
	assert.Equal(t, "Error: audio generation failed after 4 attempts: boom", status.CurrentStep)
}

func TestElapsedSecondsBeforeFirstRun(t *testing.T) {
	assert.Zero(t, NewStatusTracker().Snapshot().ElapsedSeconds())
}
