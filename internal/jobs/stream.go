package jobs

import (
	"context"
	"time"

	"github.com/joseph-ayodele/label-checker/internal/entity"
)

// Event is one element of a job's result stream. Exactly one of the concrete
// types below implements it.
type Event interface {
	isEvent()
}

// MetaEvent opens every stream.
type MetaEvent struct {
	JobID      string `json:"job_id"`
	TotalFiles int    `json:"total_files"`
}

// ResultEvent carries one successfully processed item.
type ResultEvent struct {
	entity.ItemResult
}

// ErrorEvent carries one failed item, or a job-level failure with index -1.
type ErrorEvent struct {
	entity.ItemError
}

// HeartbeatEvent is emitted while no result arrives within the heartbeat interval.
type HeartbeatEvent struct{}

// DoneEvent closes the stream. UnmatchedReferenceIDs is nil when the job had
// no reference rows.
type DoneEvent struct {
	UnmatchedReferenceIDs []string `json:"unmatched_csv_rows,omitempty"`
}

func (MetaEvent) isEvent()      {}
func (ResultEvent) isEvent()    {}
func (ErrorEvent) isEvent()     {}
func (HeartbeatEvent) isEvent() {}
func (DoneEvent) isEvent()      {}

// EmitFunc writes one event to the client. A non-nil error ends the stream as
// a disconnect.
type EmitFunc func(Event) error

// Stream relays a job's results to emit until every item is accounted for.
// A job can be streamed by one client at a time. If ctx ends or emit fails
// before done, the job is cancelled.
func (m *Manager) Stream(ctx context.Context, jobID string, heartbeat time.Duration, emit EmitFunc) error {
	job, err := m.Get(jobID)
	if err != nil {
		return err
	}
	if err := job.beginStream(); err != nil {
		return err
	}
	defer job.endStream()

	logger := m.logger.With("job_id", jobID)
	disconnect := func(cause error) error {
		if job.Cancel("client disconnected") {
			logger.InfoContext(ctx, "client disconnected, job cancelled", "error", cause)
		}
		return cause
	}

	if err := emit(MetaEvent{JobID: job.ID, TotalFiles: job.Declared}); err != nil {
		return disconnect(err)
	}

	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	timer := time.NewTimer(heartbeat)
	defer timer.Stop()
	for {
		select {
		case o := <-job.results:
			if err := emit(outcomeEvent(o)); err != nil {
				return disconnect(err)
			}
			resetTimer(timer, heartbeat)
			continue
		default:
		}

		if job.drained() {
			// outcomes published before the last FinishItem are already buffered
			for flushed := false; !flushed; {
				select {
				case o := <-job.results:
					if err := emit(outcomeEvent(o)); err != nil {
						return disconnect(err)
					}
				default:
					flushed = true
				}
			}
			done := DoneEvent{UnmatchedReferenceIDs: job.Unmatched()}
			if err := emit(done); err != nil {
				return disconnect(err)
			}
			snap := job.Snapshot()
			logger.InfoContext(ctx, "stream complete",
				"processed", snap.Processed,
				"received", snap.Received,
				"cancelled", snap.Cancelled,
				"unmatched", len(done.UnmatchedReferenceIDs))
			return nil
		}

		select {
		case o := <-job.results:
			if err := emit(outcomeEvent(o)); err != nil {
				return disconnect(err)
			}
			resetTimer(timer, heartbeat)
		case <-job.notify:
		case <-timer.C:
			if err := emit(HeartbeatEvent{}); err != nil {
				return disconnect(err)
			}
			timer.Reset(heartbeat)
		case <-ctx.Done():
			return disconnect(ctx.Err())
		}
	}
}

func outcomeEvent(o entity.ItemOutcome) Event {
	if o.Failure != nil {
		return ErrorEvent{ItemError: *o.Failure}
	}
	return ResultEvent{ItemResult: *o.Result}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
