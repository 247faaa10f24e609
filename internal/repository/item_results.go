package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/label-checker/internal/entity"
)

// Outcome statuses stored in item_results.status.
const (
	StatusResult = "result"
	StatusError  = "error"
)

// ItemResultRepository archives item outcomes. It is write-only for the service.
type ItemResultRepository interface {
	Record(ctx context.Context, jobID string, outcome entity.ItemOutcome) error
}

type itemResultRepo struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewItemResultRepository(db *DB, logger *slog.Logger) ItemResultRepository {
	return &itemResultRepo{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (r *itemResultRepo) Record(ctx context.Context, jobID string, outcome entity.ItemOutcome) error {
	var (
		fileID, clientIndex int
		filename, status    string
		passed              sql.NullBool
		payload             any
	)
	switch {
	case outcome.Result != nil:
		res := outcome.Result
		fileID, clientIndex, filename, status = res.FileID, res.ClientIndex, res.Filename, StatusResult
		passed = sql.NullBool{Bool: res.Compliance.Passed, Valid: true}
		payload = res
	case outcome.Failure != nil:
		f := outcome.Failure
		fileID, clientIndex, filename, status = f.FileID, f.ClientIndex, f.Filename, StatusError
		payload = f
	default:
		return fmt.Errorf("empty outcome for job %s", jobID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	_, err = r.db.SQL.ExecContext(ctx, r.db.bind(`INSERT INTO item_results
		(job_id, file_id, client_index, filename, status, passed, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		jobID, fileID, clientIndex, filename, status, passed, string(body), r.now().UTC())
	if err != nil {
		r.logger.Error("failed to archive item outcome", "job_id", jobID, "file_id", fileID, "error", err)
		return err
	}
	return nil
}
