// Package jobs owns the in-memory job registry: admission, upload buffering,
// result delivery, and the sweeps that retire stalled or expired jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	"github.com/joseph-ayodele/label-checker/constants"
	"github.com/joseph-ayodele/label-checker/internal/async"
	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/entity"
)

// Upload is one item offered to SubmitItems.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Ack confirms one accepted item.
type Ack struct {
	ItemID      int    `json:"file_id"`
	ClientIndex int    `json:"client_index"`
	Filename    string `json:"filename"`
}

// Manager is the job registry. It is constructed once at startup and shared
// by the transport, the workers, and the sweepers.
type Manager struct {
	limits      common.LimitsConfig
	scratchRoot string
	queue       *async.Queue
	logger      *slog.Logger
	now         func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewManager(limits common.LimitsConfig, scratchRoot string, queue *async.Queue, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	return &Manager{
		limits:      limits,
		scratchRoot: scratchRoot,
		queue:       queue,
		logger:      logger,
		now:         time.Now,
		jobs:        make(map[string]*Job),
	}
}

// CreateJob registers a job expecting declared items. refs may be empty.
// Repeated reference identifiers are returned, not rejected; the later row wins.
func (m *Manager) CreateJob(ctx context.Context, declared int, refs []entity.ReferenceRecord) (string, []string, error) {
	if verr := common.Between(1, m.limits.MaxItemsPerJob)("total_files", declared); verr != nil {
		return "", nil, common.InvalidArgument("%s %s", verr.Field, verr.Message)
	}

	index, duplicates := NewReferenceIndex(refs)

	m.mu.Lock()
	defer m.mu.Unlock()

	if active := m.activeLocked(); active >= m.limits.MaxActiveJobs {
		return "", nil, common.TooManyActiveJobs("too many active jobs (%d/%d), try again later", active, m.limits.MaxActiveJobs)
	}

	id := uuid.NewString()
	dir, err := os.MkdirTemp(m.scratchRoot, "label_job_"+id[:8]+"_")
	if err != nil {
		return "", nil, common.NewAppError(codes.Internal, common.ReasonInternal, "create scratch directory", err)
	}

	m.jobs[id] = newJob(id, declared, m.limits.MaxItemsPerJob, index, dir, m.now())

	m.logger.InfoContext(ctx, "job created",
		"job_id", id,
		"total_files", declared,
		"reference_rows", index.Len(),
		"duplicate_ids", len(duplicates))
	return id, duplicates, nil
}

// Get returns the job or a NotFound error.
func (m *Manager) Get(jobID string) (*Job, error) {
	if j, ok := m.Lookup(jobID); ok {
		return j, nil
	}
	return nil, common.NotFound("job %s not found", jobID)
}

// Lookup returns the job if it is still registered.
func (m *Manager) Lookup(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	return j, ok
}

// ActiveJobs counts registered jobs that are not yet terminal.
func (m *Manager) ActiveJobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, j := range m.jobs {
		if !j.Terminal() {
			n++
		}
	}
	return n
}

// SubmitItems buffers uploads to the job's scratch directory and enqueues them.
// indices, when non-nil, supplies one ordering index per upload; otherwise
// items are numbered in arrival order. Blocks while the work queue is full.
func (m *Manager) SubmitItems(ctx context.Context, jobID string, uploads []Upload, indices []int) ([]Ack, error) {
	job, err := m.Get(jobID)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, common.InvalidArgument("no files in upload")
	}
	if indices != nil && len(indices) != len(uploads) {
		return nil, common.InvalidArgument("client_indices has %d entries for %d files", len(indices), len(uploads))
	}
	for i := range uploads {
		ct := m.contentType(uploads[i])
		if !slices.Contains(m.limits.AllowedContentTypes, ct) {
			return nil, common.InvalidArgument("unsupported content type %q for %s", ct, uploads[i].Filename)
		}
	}

	firstID, baseIndex, err := job.reserve(len(uploads), m.now())
	if err != nil {
		return nil, err
	}

	staged := make([]async.WorkItem, 0, len(uploads))
	committed := 0
	defer func() {
		for _, it := range staged[committed:] {
			_ = os.Remove(it.Path)
		}
		job.unreserve(len(uploads) - committed)
	}()

	var batchBytes int64
	for i, up := range uploads {
		itemID := firstID + i
		name := up.Filename
		if name == "" {
			name = fmt.Sprintf("file_%d", itemID)
		}
		path := filepath.Join(job.ScratchDir, fmt.Sprintf("%d_%s", itemID, filepath.Base(name)))
		n, err := m.buffer(path, up.Body)
		if errors.Is(err, errItemTooLarge) {
			return nil, common.PayloadTooLarge("%s exceeds the %d byte item limit", name, m.limits.MaxItemBytes)
		}
		if err != nil {
			return nil, common.NewAppError(codes.Internal, common.ReasonInternal, "buffer upload", err)
		}
		batchBytes += n

		clientIndex := baseIndex + i
		if indices != nil {
			clientIndex = indices[i]
		}
		staged = append(staged, async.WorkItem{
			JobID:       jobID,
			ItemID:      itemID,
			ClientIndex: clientIndex,
			Filename:    name,
			Path:        path,
		})
	}

	if err := job.addBytes(batchBytes, m.limits.MaxJobBytes); err != nil {
		return nil, err
	}

	acks := make([]Ack, 0, len(staged))
	for _, it := range staged {
		if err := m.queue.Acquire(ctx); err != nil {
			return acks, common.WrapError(err, "enqueue item")
		}
		it.SubmittedAt = m.now()
		if err := job.commit(m.queue, it, m.now()); err != nil {
			m.queue.Release()
			return acks, err
		}
		committed++
		acks = append(acks, Ack{ItemID: it.ItemID, ClientIndex: it.ClientIndex, Filename: it.Filename})
	}

	snap := job.Snapshot()
	m.logger.InfoContext(ctx, "items accepted",
		"job_id", jobID,
		"accepted", len(acks),
		"received", snap.Received,
		"total_files", snap.Declared,
		"uploads_complete", snap.UploadsComplete)
	return acks, nil
}

var errItemTooLarge = errors.New("item exceeds size limit")

// buffer copies body to path, failing once more than MaxItemBytes are read.
// The file is removed on any failure.
func (m *Manager) buffer(path string, body io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, io.LimitReader(body, m.limits.MaxItemBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > m.limits.MaxItemBytes {
		err = errItemTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}

func (m *Manager) contentType(up Upload) string {
	if ct := constants.NormalizeContentType(up.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return constants.ContentTypeForExt(filepath.Ext(up.Filename))
}

// CompleteJob marks uploads complete regardless of counts. Repeated calls are no-ops.
func (m *Manager) CompleteJob(ctx context.Context, jobID string) (Snapshot, error) {
	job, err := m.Get(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	job.markComplete()
	snap := job.Snapshot()
	m.logger.InfoContext(ctx, "uploads marked complete",
		"job_id", jobID,
		"received", snap.Received,
		"total_files", snap.Declared)
	return snap, nil
}

// CancelJob stops result delivery for a job. Queued items are discarded by workers.
func (m *Manager) CancelJob(ctx context.Context, jobID, reason string) error {
	job, err := m.Get(jobID)
	if err != nil {
		return err
	}
	if job.Cancel(reason) {
		m.logger.InfoContext(ctx, "job cancelled", "job_id", jobID, "reason", reason)
	}
	return nil
}

// evict removes a job from the registry, cancels it, and deletes its scratch directory.
func (m *Manager) evict(jobID, reason string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	delete(m.jobs, jobID)
	m.mu.Unlock()
	if !ok {
		return
	}
	job.Cancel(reason)
	if err := os.RemoveAll(job.ScratchDir); err != nil {
		m.logger.Warn("failed to remove scratch directory", "job_id", jobID, "dir", job.ScratchDir, "error", err)
	}
}

func (m *Manager) snapshotJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}

// Close cancels every job and removes all scratch directories.
func (m *Manager) Close() {
	for _, j := range m.snapshotJobs() {
		m.evict(j.ID, "shutdown")
	}
}

// reserve claims room for n items and assigns their item identifiers.
func (j *Job) reserve(n int, now time.Time) (firstID, baseIndex int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled {
		return 0, 0, common.InvalidState("job %s is cancelled", j.ID)
	}
	if j.uploadsComplete {
		return 0, 0, common.InvalidState("job %s is already complete", j.ID)
	}
	if j.received+j.reserved+n > j.Declared {
		return 0, 0, common.InvalidArgument("too many files: %d received, %d pending, %d offered, %d declared",
			j.received, j.reserved, n, j.Declared)
	}
	firstID = j.nextItemID
	baseIndex = j.received + j.reserved
	j.nextItemID += n
	j.reserved += n
	j.lastActivity = now
	return firstID, baseIndex, nil
}

func (j *Job) unreserve(n int) {
	if n <= 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reserved -= n
	j.signal()
}

func (j *Job) addBytes(n, limit int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.totalBytes+n > limit {
		return common.PayloadTooLarge("job upload would exceed %d bytes", limit)
	}
	j.totalBytes += n
	return nil
}

// commit pushes a staged item into its acquired queue slot and counts it
// received in the same critical section.
func (j *Job) commit(q *async.Queue, item async.WorkItem, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled {
		return common.InvalidState("job %s is cancelled", j.ID)
	}
	q.Push(item)
	j.received++
	j.reserved--
	j.lastActivity = now
	if j.received >= j.Declared {
		j.uploadsComplete = true
	}
	j.signal()
	return nil
}
