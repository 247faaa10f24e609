package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sweeper runs the periodic watchdog and reaper against a Manager.
type Sweeper struct {
	manager *Manager
	logger  *slog.Logger

	WatchdogInterval time.Duration
	WatchdogTimeout  time.Duration
	ReaperInterval   time.Duration
	JobTTL           time.Duration

	wg sync.WaitGroup
}

func NewSweeper(manager *Manager, watchdogInterval, watchdogTimeout, reaperInterval, ttl time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		manager:          manager,
		logger:           logger,
		WatchdogInterval: watchdogInterval,
		WatchdogTimeout:  watchdogTimeout,
		ReaperInterval:   reaperInterval,
		JobTTL:           ttl,
	}
}

// Start launches both sweeps; they stop when ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, s.WatchdogInterval, s.Watchdog)
	go s.loop(ctx, s.ReaperInterval, s.Reap)
	s.logger.Info("sweeper started",
		"watchdog_interval", s.WatchdogInterval,
		"watchdog_timeout", s.WatchdogTimeout,
		"reaper_interval", s.ReaperInterval,
		"job_ttl", s.JobTTL)
}

// Wait blocks until both sweeps have returned.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, every time.Duration, sweep func(time.Time) int) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			sweep(now)
		}
	}
}

// Watchdog fails jobs whose uploads stalled: not complete, not cancelled, and
// no item received within WatchdogTimeout. It returns the number of jobs failed.
func (s *Sweeper) Watchdog(now time.Time) int {
	failed := 0
	for _, j := range s.manager.snapshotJobs() {
		snap := j.Snapshot()
		if snap.Cancelled || snap.UploadsComplete || now.Sub(snap.LastActivity) <= s.WatchdogTimeout {
			continue
		}
		j.failJob("Upload timed out -- no files received for " + idleSpan(s.WatchdogTimeout))
		failed++
		s.logger.Warn("upload timed out",
			"job_id", j.ID,
			"received", snap.Received,
			"total_files", snap.Declared,
			"idle", now.Sub(snap.LastActivity).Round(time.Second))
	}
	return failed
}

// Reap evicts jobs older than JobTTL and removes their scratch storage. It
// returns the number of jobs evicted.
func (s *Sweeper) Reap(now time.Time) int {
	evicted := 0
	for _, j := range s.manager.snapshotJobs() {
		if now.Sub(j.CreatedAt) <= s.JobTTL {
			continue
		}
		s.manager.evict(j.ID, "expired")
		evicted++
		s.logger.Info("reaped expired job", "job_id", j.ID, "age", now.Sub(j.CreatedAt).Round(time.Second))
	}
	return evicted
}

// idleSpan renders d in whole minutes when it divides evenly, else in seconds.
func idleSpan(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Minute && d%time.Minute == 0 {
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return fmt.Sprintf("%d seconds", int(d/time.Second))
}
