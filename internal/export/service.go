package export

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/label-checker/constants"
	"github.com/joseph-ayodele/label-checker/internal/entity"
)

// Sheet names in the job report.
const (
	SheetResults   = "Results"
	SheetUnmatched = "Unmatched References"
)

// Report status column values.
const (
	StatusPassed = "PASSED"
	StatusFailed = "FAILED"
	StatusError  = "ERROR"
)

// Service renders job outcomes as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

var resultHeaders = []string{
	"Client Index",
	"File ID",
	"Filename",
	"Status",
	"Brand Name",
	"Class/Type",
	"Alcohol Content",
	"Net Contents",
	"Critical Issues",
	"Issues",
	"Error",
}

// JobReportXLSX returns a workbook with one row per item outcome, ordered by
// client index. Job-level errors (index -1) sort first. When unmatched is
// non-nil a second sheet lists reference identifiers no item matched.
func (s *Service) JobReportXLSX(ctx context.Context, jobID string, outcomes []entity.ItemOutcome, unmatched []string) ([]byte, error) {
	start := time.Now()

	sorted := slices.Clone(outcomes)
	slices.SortStableFunc(sorted, func(a, b entity.ItemOutcome) int {
		return cmp.Compare(a.ClientIndex(), b.ClientIndex())
	})

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return nil, err
	}

	for i, h := range resultHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetResults, cell, h)
	}

	row := 2
	for _, o := range sorted {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetResults, cell, v)
		}

		if o.Failure != nil {
			write(1, o.Failure.ClientIndex)
			write(2, o.Failure.FileID)
			write(3, o.Failure.Filename)
			write(4, StatusError)
			write(11, truncate(o.Failure.Error, 200))
			row++
			continue
		}
		if o.Result == nil {
			continue
		}

		r := o.Result
		status := StatusFailed
		if r.Compliance.Passed {
			status = StatusPassed
		}
		write(1, r.ClientIndex)
		write(2, r.FileID)
		write(3, r.Filename)
		write(4, status)
		write(5, entity.Text(r.Data.BrandName))
		write(6, firstNonBlank(r.Data.ClassTypeDesignation, r.Data.ProductType))
		write(7, entity.Text(r.Data.AlcoholByVolume))
		write(8, entity.Text(r.Data.NetContents))
		write(9, countCritical(r.Compliance.Issues))
		write(10, truncate(joinIssues(r.Compliance.Issues), 500))
		row++
	}

	_ = f.SetColWidth(SheetResults, "A", "B", 12) // indices
	_ = f.SetColWidth(SheetResults, "C", "C", 32) // filename
	_ = f.SetColWidth(SheetResults, "D", "D", 10) // status
	_ = f.SetColWidth(SheetResults, "E", "H", 24) // fields
	_ = f.SetColWidth(SheetResults, "I", "I", 14)
	_ = f.SetColWidth(SheetResults, "J", "K", 80) // issues, error

	if unmatched != nil {
		if _, err := f.NewSheet(SheetUnmatched); err != nil {
			return nil, err
		}
		_ = f.SetCellValue(SheetUnmatched, "A1", "Label ID")
		for i, id := range unmatched {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			_ = f.SetCellValue(SheetUnmatched, cell, id)
		}
		_ = f.SetColWidth(SheetUnmatched, "A", "A", 32)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.InfoContext(ctx, "export.xlsx.ok",
		"job_id", jobID,
		"rows", row-2,
		"unmatched", len(unmatched),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func firstNonBlank(vals ...*string) string {
	for _, v := range vals {
		if !entity.Blank(v) {
			return entity.Text(v)
		}
	}
	return ""
}

func countCritical(issues []entity.ComplianceIssue) int {
	n := 0
	for _, is := range issues {
		if is.Severity == constants.SeverityCritical {
			n++
		}
	}
	return n
}

func joinIssues(issues []entity.ComplianceIssue) string {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", is.Severity, is.Field, is.Message))
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
