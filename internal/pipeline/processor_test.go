package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/label-checker/internal/async"
	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/entity"
	"github.com/joseph-ayodele/label-checker/internal/jobs"
	"github.com/joseph-ayodele/label-checker/internal/vision"
)

type normalizerFunc func([]byte) ([]byte, error)

func (f normalizerFunc) Normalize(raw []byte) ([]byte, error) { return f(raw) }

var passthrough = normalizerFunc(func(raw []byte) ([]byte, error) { return raw, nil })

type recordingArchive struct {
	mu       sync.Mutex
	outcomes []entity.ItemOutcome
}

func (a *recordingArchive) Record(_ context.Context, _ string, o entity.ItemOutcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, o)
	return nil
}

type harness struct {
	t       *testing.T
	manager *jobs.Manager
	queue   *async.Queue
	proc    *Processor
	workers int
}

func newHarness(t *testing.T, norm Normalizer, ext vision.Extractor, archive Archiver) *harness {
	t.Helper()
	q := async.NewQueue(16, nil)
	m := jobs.NewManager(common.DefaultConfig().Limits, t.TempDir(), q, nil)
	t.Cleanup(m.Close)
	return &harness{t: t, manager: m, queue: q, proc: NewProcessor(nil, m, norm, ext, 1, archive), workers: 2}
}

func (h *harness) start() {
	pool := async.NewPool(h.queue, h.proc, nil, async.WithWorkers(h.workers))
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	h.t.Cleanup(func() {
		cancel()
		pool.Shutdown(context.Background())
	})
}

func (h *harness) submit(declared int, refs []entity.ReferenceRecord, names ...string) string {
	h.t.Helper()
	ctx := context.Background()
	id, _, err := h.manager.CreateJob(ctx, declared, refs)
	require.NoError(h.t, err)
	uploads := make([]jobs.Upload, 0, len(names))
	for _, n := range names {
		uploads = append(uploads, jobs.Upload{Filename: n, ContentType: "image/png", Body: bytes.NewReader([]byte("img:" + n))})
	}
	_, err = h.manager.SubmitItems(ctx, id, uploads, nil)
	require.NoError(h.t, err)
	return id
}

func (h *harness) events(jobID string) []jobs.Event {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []jobs.Event
	require.NoError(h.t, h.manager.Stream(ctx, jobID, time.Hour, func(e jobs.Event) error {
		out = append(out, e)
		return nil
	}))
	return out
}

func sampleLabel() entity.ExtractedLabel {
	return entity.ExtractedLabel{
		BrandName:       entity.Ptr("Old Tom Distillery"),
		ProductType:     entity.Ptr("Kentucky Straight Bourbon Whiskey"),
		AlcoholByVolume: entity.Ptr("45% Alc./Vol."),
		NetContents:     entity.Ptr("750 mL"),
	}
}

func TestHandlePublishesResultWithComparison(t *testing.T) {
	archive := &recordingArchive{}
	var seen []string
	var mu sync.Mutex
	ext := vision.ExtractorFunc(func(ctx context.Context, image []byte, name string) (entity.ExtractedLabel, error) {
		mu.Lock()
		seen = append(seen, string(image))
		mu.Unlock()
		assert.NotEmpty(t, common.JobIDFromContext(ctx))
		return sampleLabel(), nil
	})
	h := newHarness(t, passthrough, ext, archive)
	h.start()

	refs := []entity.ReferenceRecord{
		{LabelID: "LBL-1", BrandName: entity.Ptr("Old Tom Distillery")},
		{LabelID: "LBL-2"},
	}
	id := h.submit(1, refs, "lbl-1.png")
	events := h.events(id)
	require.Len(t, events, 3)

	res, ok := events[1].(jobs.ResultEvent)
	require.True(t, ok, "got %T", events[1])
	assert.Equal(t, 0, res.ClientIndex)
	assert.Equal(t, "lbl-1.png", res.Filename)
	assert.Equal(t, "Old Tom Distillery", *res.Data.BrandName)
	require.NotNil(t, res.Comparison)
	require.NotNil(t, res.Comparison.MatchedRow)
	assert.Equal(t, "LBL-1", *res.Comparison.MatchedRow)
	assert.Equal(t, "brand_name", res.Comparison.Fields[0].Field)
	assert.NotNil(t, res.Compliance.Issues)

	assert.Equal(t, jobs.DoneEvent{UnmatchedReferenceIDs: []string{"LBL-2"}}, events[2])
	assert.Equal(t, []string{"img:lbl-1.png"}, seen)

	archive.mu.Lock()
	defer archive.mu.Unlock()
	require.Len(t, archive.outcomes, 1)
	assert.NotNil(t, archive.outcomes[0].Result)
}

func TestHandleWithoutReferenceOmitsComparison(t *testing.T) {
	ext := vision.ExtractorFunc(func(context.Context, []byte, string) (entity.ExtractedLabel, error) {
		return sampleLabel(), nil
	})
	h := newHarness(t, passthrough, ext, nil)
	h.start()

	id := h.submit(1, nil, "a.png")
	events := h.events(id)
	require.Len(t, events, 3)
	res := events[1].(jobs.ResultEvent)
	assert.Nil(t, res.Comparison)
}

func TestHandleConvertsStageFailuresToItemErrors(t *testing.T) {
	norm := normalizerFunc(func(raw []byte) ([]byte, error) {
		if bytes.Contains(raw, []byte("broken")) {
			return nil, errors.New("unprocessable image: truncated")
		}
		return raw, nil
	})
	ext := vision.ExtractorFunc(func(_ context.Context, image []byte, _ string) (entity.ExtractedLabel, error) {
		if bytes.Contains(image, []byte("remote")) {
			return entity.ExtractedLabel{}, &vision.UnrecoverableError{Err: errors.New("bad request")}
		}
		if bytes.Contains(image, []byte("panic")) {
			panic("boom")
		}
		return sampleLabel(), nil
	})
	h := newHarness(t, norm, ext, nil)
	h.start()

	id := h.submit(4, nil, "broken.png", "remote.png", "panic.png", "fine.png")
	events := h.events(id)
	require.Len(t, events, 6)

	failures := map[string]string{}
	results := 0
	for _, e := range events[1:5] {
		switch ev := e.(type) {
		case jobs.ErrorEvent:
			failures[ev.Filename] = ev.Error
		case jobs.ResultEvent:
			results++
		default:
			t.Fatalf("unexpected event %T", e)
		}
	}
	assert.Equal(t, 1, results)
	assert.Equal(t, "unprocessable image: truncated", failures["broken.png"])
	assert.Contains(t, failures["remote.png"], "bad request")
	assert.Equal(t, "internal error: boom", failures["panic.png"])

	job, err := h.manager.Get(id)
	require.NoError(t, err)
	snap := job.Snapshot()
	assert.Equal(t, 4, snap.Processed)
	assert.Equal(t, snap.Received, snap.Processed)
}

func TestHandleDiscardsItemsOfCancelledJob(t *testing.T) {
	var calls atomic.Int32
	ext := vision.ExtractorFunc(func(context.Context, []byte, string) (entity.ExtractedLabel, error) {
		calls.Add(1)
		return sampleLabel(), nil
	})
	h := newHarness(t, passthrough, ext, nil)
	id := h.submit(2, nil, "a.png", "b.png")
	require.NoError(t, h.manager.CancelJob(context.Background(), id, "test"))

	job, err := h.manager.Get(id)
	require.NoError(t, err)
	h.start()

	require.Eventually(t, func() bool { return job.Snapshot().Processed == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Empty(t, job.Outcomes())

	entries, err := os.ReadDir(job.ScratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files are removed even when discarded")
}

func TestHandleRemovesScratchFile(t *testing.T) {
	ext := vision.ExtractorFunc(func(context.Context, []byte, string) (entity.ExtractedLabel, error) {
		return sampleLabel(), nil
	})
	h := newHarness(t, passthrough, ext, nil)
	h.start()
	id := h.submit(1, nil, "a.png")
	h.events(id)

	job, err := h.manager.Get(id)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(job.ScratchDir, "0_a.png"))
}

func TestHandleIgnoresUnknownJob(t *testing.T) {
	h := newHarness(t, passthrough, nil, nil)
	path := filepath.Join(t.TempDir(), "orphan.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	h.proc.Handle(context.Background(), async.WorkItem{JobID: "gone", Path: path})
	assert.NoFileExists(t, path)
}

func TestExtractionConcurrencyIsBoundedAcrossWorkers(t *testing.T) {
	var inFlight, peak atomic.Int32
	ext := vision.ExtractorFunc(func(context.Context, []byte, string) (entity.ExtractedLabel, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return sampleLabel(), nil
	})
	h := newHarness(t, passthrough, ext, nil)
	h.proc = NewProcessor(nil, h.manager, passthrough, ext, 3, nil)
	h.workers = 10
	h.start()

	names := make([]string, 30)
	for i := range names {
		names[i] = fmt.Sprintf("item-%02d.png", i)
	}
	id := h.submit(len(names), nil, names...)
	events := h.events(id)
	require.Len(t, events, len(names)+2)

	seen := map[int]int{}
	for _, e := range events[1 : len(events)-1] {
		res, ok := e.(jobs.ResultEvent)
		require.True(t, ok, "got %T", e)
		seen[res.ClientIndex]++
	}
	assert.Len(t, seen, len(names))
	for idx, n := range seen {
		assert.Equal(t, 1, n, "client_index %d", idx)
	}
	assert.Equal(t, int32(3), peak.Load())
}

func TestCancelDuringExtractionDropsResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ext := vision.ExtractorFunc(func(context.Context, []byte, string) (entity.ExtractedLabel, error) {
		close(started)
		<-release
		return sampleLabel(), nil
	})
	var logs bytes.Buffer
	h := newHarness(t, passthrough, ext, nil)
	h.proc.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.start()

	id := h.submit(1, nil, "a.png")
	<-started
	require.NoError(t, h.manager.CancelJob(context.Background(), id, "test"))
	close(release)

	job, err := h.manager.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return job.Snapshot().Processed == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, job.Outcomes())

	events := h.events(id)
	require.Len(t, events, 2)
	assert.IsType(t, jobs.MetaEvent{}, events[0])
	assert.Equal(t, jobs.DoneEvent{}, events[1])

	assert.Contains(t, logs.String(), "processor.item.dropped")
	assert.NotContains(t, logs.String(), "processor.item.ok")
}
