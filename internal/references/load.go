// Package references reads reference records from CSV or XLSX sheets.
package references

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/label-checker/internal/entity"
)

// Column names accepted in the header row. Matching ignores case and
// surrounding whitespace; spaces and hyphens are read as underscores.
const (
	ColLabelID         = "label_id"
	ColBrandName       = "brand_name"
	ColClassType       = "class_type"
	ColAlcoholContent  = "alcohol_content"
	ColNetContents     = "net_contents"
	ColProducerName    = "producer_name"
	ColProducerAddress = "producer_address"
)

var ErrMissingLabelID = errors.New("reference sheet has no label_id column")

// Load reads records from path, choosing the parser by extension.
func Load(path string) ([]entity.ReferenceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(f)
	case ".csv", ".txt":
		return LoadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported reference file %s", filepath.Base(path))
	}
}

// LoadCSV reads a header row followed by one record per line.
func LoadCSV(r io.Reader) ([]entity.ReferenceRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(rows)
}

// LoadXLSX reads the first sheet of a workbook.
func LoadXLSX(r io.Reader) ([]entity.ReferenceRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]entity.ReferenceRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[headerKey(h)] = i
	}
	if _, ok := cols[ColLabelID]; !ok {
		return nil, ErrMissingLabelID
	}

	cell := func(row []string, name string) *string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return nil
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			return nil
		}
		return &v
	}

	out := make([]entity.ReferenceRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id := cell(row, ColLabelID)
		if id == nil {
			continue
		}
		out = append(out, entity.ReferenceRecord{
			LabelID:         *id,
			BrandName:       cell(row, ColBrandName),
			ClassType:       cell(row, ColClassType),
			AlcoholContent:  cell(row, ColAlcoholContent),
			NetContents:     cell(row, ColNetContents),
			ProducerName:    cell(row, ColProducerName),
			ProducerAddress: cell(row, ColProducerAddress),
		})
	}
	return out, nil
}

func headerKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}
