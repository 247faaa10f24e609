package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/label-checker/internal/entity"
)

func TestWatchdogFailsStalledUpload(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id, _, err := m.CreateJob(ctx, 3, nil)
	require.NoError(t, err)
	_, err = m.SubmitItems(ctx, id, []Upload{jpeg("a.jpg", "x")}, nil)
	require.NoError(t, err)

	s := NewSweeper(m, time.Hour, 2*time.Minute, time.Hour, time.Hour, nil)
	assert.Equal(t, 0, s.Watchdog(time.Now()), "recent activity")
	assert.Equal(t, 1, s.Watchdog(time.Now().Add(3*time.Minute)))
	assert.Equal(t, 0, s.Watchdog(time.Now().Add(3*time.Minute)), "already failed")

	job, _ := m.Get(id)
	snap := job.Snapshot()
	assert.True(t, snap.Cancelled)
	assert.True(t, snap.UploadsComplete)

	events := collect(t, m, id)
	require.Len(t, events, 3)
	assert.Equal(t, ErrorEvent{ItemError: entity.ItemError{
		ClientIndex: -1,
		FileID:      -1,
		Error:       "Upload timed out -- no files received for 2 minutes",
	}}, events[1])
	assert.Equal(t, DoneEvent{}, events[2])
}

func TestWatchdogMessageKeepsOddTimeouts(t *testing.T) {
	m, _ := newTestManager(t)
	id, _, err := m.CreateJob(context.Background(), 2, nil)
	require.NoError(t, err)

	s := NewSweeper(m, time.Hour, 90*time.Second, time.Hour, time.Hour, nil)
	require.Equal(t, 1, s.Watchdog(time.Now().Add(2*time.Minute)))

	job, _ := m.Get(id)
	outcomes := job.Outcomes()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "Upload timed out -- no files received for 90 seconds", outcomes[0].Failure.Error)
}

func TestIdleSpan(t *testing.T) {
	cases := map[time.Duration]string{
		2 * time.Minute:  "2 minutes",
		time.Minute:      "1 minute",
		90 * time.Second: "90 seconds",
		30 * time.Second: "30 seconds",
	}
	for d, want := range cases {
		assert.Equal(t, want, idleSpan(d), d.String())
	}
}

func TestWatchdogIgnoresCompletedJobs(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id, _, err := m.CreateJob(ctx, 3, nil)
	require.NoError(t, err)
	_, err = m.CompleteJob(ctx, id)
	require.NoError(t, err)

	s := NewSweeper(m, time.Hour, time.Minute, time.Hour, time.Hour, nil)
	assert.Equal(t, 0, s.Watchdog(time.Now().Add(time.Hour)))
}

func TestReapEvictsExpiredJobs(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	oldID, _, err := m.CreateJob(ctx, 1, nil)
	require.NoError(t, err)
	old, _ := m.Get(oldID)

	s := NewSweeper(m, time.Hour, time.Hour, time.Hour, 30*time.Minute, nil)
	assert.Equal(t, 0, s.Reap(time.Now()))
	assert.Equal(t, 1, s.Reap(time.Now().Add(31*time.Minute)))

	_, ok := m.Lookup(oldID)
	assert.False(t, ok)
	assert.True(t, old.Cancelled())
	assert.NoDirExists(t, old.ScratchDir)
}

func TestSweeperStopsWithContext(t *testing.T) {
	m, _ := newTestManager(t)
	s := NewSweeper(m, time.Millisecond, time.Hour, time.Millisecond, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() { s.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
