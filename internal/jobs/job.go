package jobs

import (
	"sync"
	"time"

	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/entity"
)

// Job is one batch of label images with a declared size and a single result
// stream. Counters only grow and are guarded by mu:
// received <= declared and processed <= received at all times.
type Job struct {
	ID         string
	Declared   int
	CreatedAt  time.Time
	ScratchDir string

	refs    *ReferenceIndex
	results chan entity.ItemOutcome
	notify  chan struct{}
	done    chan struct{}

	mu              sync.Mutex
	received        int
	reserved        int
	processed       int
	nextItemID      int
	totalBytes      int64
	uploadsComplete bool
	cancelled       bool
	cancelReason    string
	lastActivity    time.Time
	matched         map[string]struct{}
	history         []entity.ItemOutcome
	streaming       bool
}

func newJob(id string, declared, resultCap int, refs *ReferenceIndex, scratch string, now time.Time) *Job {
	return &Job{
		ID:           id,
		Declared:     declared,
		CreatedAt:    now,
		ScratchDir:   scratch,
		refs:         refs,
		results:      make(chan entity.ItemOutcome, resultCap),
		notify:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		lastActivity: now,
		matched:      make(map[string]struct{}),
	}
}

// Snapshot is a consistent copy of a job's mutable state.
type Snapshot struct {
	ID              string
	Declared        int
	Received        int
	Processed       int
	TotalBytes      int64
	UploadsComplete bool
	Cancelled       bool
	CancelReason    string
	CreatedAt       time.Time
	LastActivity    time.Time
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		ID:              j.ID,
		Declared:        j.Declared,
		Received:        j.received,
		Processed:       j.processed,
		TotalBytes:      j.totalBytes,
		UploadsComplete: j.uploadsComplete,
		Cancelled:       j.cancelled,
		CancelReason:    j.cancelReason,
		CreatedAt:       j.CreatedAt,
		LastActivity:    j.lastActivity,
	}
}

// References returns the job's reference index, nil when none was supplied.
func (j *Job) References() *ReferenceIndex {
	return j.refs
}

// Cancelled reports whether result delivery has stopped.
func (j *Job) Cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// Done is closed when the job is cancelled.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel stops result delivery. It reports whether this call cancelled the job.
func (j *Job) Cancel(reason string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelLocked(reason)
}

func (j *Job) cancelLocked(reason string) bool {
	if j.cancelled {
		return false
	}
	j.cancelled = true
	j.cancelReason = reason
	close(j.done)
	j.signal()
	return true
}

// markComplete sets uploadsComplete; it never reverts.
func (j *Job) markComplete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.uploadsComplete = true
	j.signal()
}

// Terminal reports whether the job is cancelled or has accounted for every
// item it will ever receive.
func (j *Job) Terminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled || (j.uploadsComplete && j.reserved == 0 && j.processed == j.received)
}

// drained reports that no more outcomes will be published. A cancelled job
// publishes nothing further; queued items are discarded by workers.
func (j *Job) drained() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled || (j.uploadsComplete && j.reserved == 0 && j.processed >= j.received)
}

// Publish delivers an item outcome unless the job is cancelled. Outcomes are
// also retained for reports.
func (j *Job) Publish(o entity.ItemOutcome) bool {
	j.mu.Lock()
	if j.cancelled {
		j.mu.Unlock()
		return false
	}
	j.history = append(j.history, o)
	j.mu.Unlock()

	select {
	case j.results <- o:
		return true
	case <-j.done:
		return false
	}
}

// FinishItem counts one item outcome. Every dequeued item calls it exactly once.
func (j *Job) FinishItem() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.processed < j.received {
		j.processed++
	}
	j.signal()
}

// RecordMatch remembers that a reference row was paired with an item.
func (j *Job) RecordMatch(key string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.matched[key] = struct{}{}
}

// Unmatched returns reference identifiers never paired with an item, in
// first-seen order. It is nil when the job has no references.
func (j *Job) Unmatched() []string {
	if j.refs.Len() == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	out := []string{}
	for _, k := range j.refs.Keys() {
		if _, ok := j.matched[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Outcomes returns the outcomes published so far.
func (j *Job) Outcomes() []entity.ItemOutcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]entity.ItemOutcome(nil), j.history...)
}

// failJob publishes a job-level error and cancels the job. The error bypasses
// the cancellation check so the stream can still report it.
func (j *Job) failJob(message string) {
	o := entity.ItemOutcome{Failure: &entity.ItemError{ClientIndex: -1, FileID: -1, Error: message}}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled {
		return
	}
	j.history = append(j.history, o)
	select {
	case j.results <- o:
	default:
	}
	j.uploadsComplete = true
	j.cancelLocked("upload timed out")
}

func (j *Job) beginStream() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.streaming {
		return common.InvalidState("job %s is already being streamed", j.ID)
	}
	j.streaming = true
	return nil
}

func (j *Job) endStream() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.streaming = false
}

// signal wakes a waiting streamer. Caller holds mu.
func (j *Job) signal() {
	select {
	case j.notify <- struct{}{}:
	default:
	}
}
