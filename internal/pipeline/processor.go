// Package pipeline is the per-item worker body: normalize, extract, match,
// check, publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/label-checker/internal/async"
	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/compliance"
	"github.com/joseph-ayodele/label-checker/internal/entity"
	"github.com/joseph-ayodele/label-checker/internal/jobs"
	"github.com/joseph-ayodele/label-checker/internal/vision"
)

// Registry resolves the job that owns a work item.
type Registry interface {
	Lookup(jobID string) (*jobs.Job, bool)
}

// Normalizer turns raw upload bytes into an image fit for extraction.
type Normalizer interface {
	Normalize(raw []byte) ([]byte, error)
}

// Archiver records published outcomes. Failures are logged, never surfaced.
type Archiver interface {
	Record(ctx context.Context, jobID string, outcome entity.ItemOutcome) error
}

// Processor implements async.Handler for uploaded label images.
type Processor struct {
	Logger     *slog.Logger
	Jobs       Registry
	Normalizer Normalizer
	Extractor  vision.Extractor
	Limiter    *semaphore.Weighted
	Archive    Archiver
}

var _ async.Handler = (*Processor)(nil)

// NewProcessor builds a Processor. extractionConcurrency bounds outbound
// extraction calls across all workers and jobs.
func NewProcessor(logger *slog.Logger, registry Registry, normalizer Normalizer, extractor vision.Extractor, extractionConcurrency int64, archive Archiver) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if extractionConcurrency <= 0 {
		extractionConcurrency = 1
	}
	return &Processor{
		Logger:     logger,
		Jobs:       registry,
		Normalizer: normalizer,
		Extractor:  extractor,
		Limiter:    semaphore.NewWeighted(extractionConcurrency),
		Archive:    archive,
	}
}

// Handle processes one item. Every path removes the scratch file and then
// counts the item processed exactly once.
func (p *Processor) Handle(ctx context.Context, item async.WorkItem) {
	job, ok := p.Jobs.Lookup(item.JobID)
	if ok {
		defer job.FinishItem()
	}
	defer func() {
		if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
			p.Logger.Warn("processor.cleanup.failed", "job_id", item.JobID, "file_id", item.ItemID, "err", err)
		}
	}()

	if !ok {
		p.Logger.Debug("processor.job.gone", "job_id", item.JobID, "file_id", item.ItemID)
		return
	}

	if job.Cancelled() {
		p.Logger.Debug("processor.item.discarded", "job_id", item.JobID, "file_id", item.ItemID)
		return
	}

	ctx = common.WithJobID(ctx, item.JobID)
	outcome, published := p.process(ctx, job, item)
	if !published {
		return
	}
	if p.Archive != nil {
		if err := p.Archive.Record(ctx, item.JobID, outcome); err != nil {
			p.Logger.Warn("processor.archive.failed", "job_id", item.JobID, "file_id", item.ItemID, "err", err)
		}
	}
}

// process runs the item through every stage and publishes exactly one outcome
// unless the job was cancelled along the way.
func (p *Processor) process(ctx context.Context, job *jobs.Job, item async.WorkItem) (outcome entity.ItemOutcome, published bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("processor.item.panic", "job_id", item.JobID, "file_id", item.ItemID, "panic", r)
			outcome = failure(item, fmt.Errorf("internal error: %v", r))
			published = job.Publish(outcome)
		}
	}()

	result, err := p.run(ctx, job, item)
	if errors.Is(err, errCancelled) {
		p.Logger.Debug("processor.item.discarded", "job_id", item.JobID, "file_id", item.ItemID)
		return entity.ItemOutcome{}, false
	}
	if err != nil {
		outcome = failure(item, err)
	} else {
		outcome = entity.ItemOutcome{Result: result}
	}
	if !job.Publish(outcome) {
		p.Logger.Debug("processor.item.dropped", "job_id", item.JobID, "file_id", item.ItemID)
		return outcome, false
	}
	if err != nil {
		p.Logger.Error("processor.item.failed",
			"job_id", item.JobID,
			"file_id", item.ItemID,
			"filename", item.Filename,
			"err", err)
	} else {
		p.Logger.Info("processor.item.ok",
			"job_id", item.JobID,
			"file_id", item.ItemID,
			"passed", result.Compliance.Passed,
			"issues", len(result.Compliance.Issues),
			"elapsed_ms", time.Since(start).Milliseconds())
	}
	return outcome, true
}

var errCancelled = errors.New("job cancelled")

func (p *Processor) run(ctx context.Context, job *jobs.Job, item async.WorkItem) (*entity.ItemResult, error) {
	raw, err := os.ReadFile(item.Path)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	normalized, err := p.Normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	if job.Cancelled() {
		return nil, errCancelled
	}

	label, err := p.extract(ctx, normalized, item.Filename)
	if err != nil {
		return nil, err
	}

	var ref *entity.ReferenceRecord
	if row, ok := job.References().Lookup(item.Filename); ok {
		ref = &row
		if key := row.Key(); key != "" {
			job.RecordMatch(key)
		}
	}

	verdict := compliance.Check(label, ref)
	return &entity.ItemResult{
		ClientIndex: item.ClientIndex,
		FileID:      item.ItemID,
		Filename:    item.Filename,
		Data:        label,
		Compliance: entity.ComplianceSummary{
			Passed: verdict.Passed,
			Issues: verdict.Issues,
		},
		Comparison: verdict.Comparison,
	}, nil
}

// extract calls the extractor under the global limiter. A call already started
// for a job that is then cancelled runs to completion; Publish drops its result.
func (p *Processor) extract(ctx context.Context, image []byte, name string) (entity.ExtractedLabel, error) {
	if err := p.Limiter.Acquire(ctx, 1); err != nil {
		return entity.ExtractedLabel{}, err
	}
	defer p.Limiter.Release(1)
	return p.Extractor.Extract(ctx, image, name)
}

func failure(item async.WorkItem, err error) entity.ItemOutcome {
	return entity.ItemOutcome{Failure: &entity.ItemError{
		ClientIndex: item.ClientIndex,
		FileID:      item.ItemID,
		Filename:    item.Filename,
		Error:       err.Error(),
	}}
}
