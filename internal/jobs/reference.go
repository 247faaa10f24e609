package jobs

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/label-checker/internal/entity"
)

// ReferenceIndex maps label identifiers to reference rows. It is built once at
// job creation and only read afterwards.
type ReferenceIndex struct {
	byKey map[string]entity.ReferenceRecord
	keys  []string
}

// NewReferenceIndex indexes records by trimmed label identifier. Rows without an
// identifier are skipped. A repeated identifier overwrites the earlier row and
// is returned in duplicates once, in order of first repetition.
func NewReferenceIndex(records []entity.ReferenceRecord) (*ReferenceIndex, []string) {
	ix := &ReferenceIndex{byKey: make(map[string]entity.ReferenceRecord, len(records))}
	var duplicates []string
	reported := make(map[string]bool)
	for _, r := range records {
		key := r.Key()
		if key == "" {
			continue
		}
		if _, seen := ix.byKey[key]; seen {
			if !reported[key] {
				duplicates = append(duplicates, key)
				reported[key] = true
			}
		} else {
			ix.keys = append(ix.keys, key)
		}
		ix.byKey[key] = r
	}
	return ix, duplicates
}

// Len is the number of distinct identifiers.
func (ix *ReferenceIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.keys)
}

// Keys returns identifiers in first-seen order.
func (ix *ReferenceIndex) Keys() []string {
	if ix == nil {
		return nil
	}
	return append([]string(nil), ix.keys...)
}

// Lookup matches an item by its display name without extension. An exact key
// hit wins; otherwise keys are scanned for a case-insensitive match.
func (ix *ReferenceIndex) Lookup(displayName string) (entity.ReferenceRecord, bool) {
	if ix.Len() == 0 {
		return entity.ReferenceRecord{}, false
	}
	stem := strings.TrimSuffix(displayName, filepath.Ext(displayName))
	if r, ok := ix.byKey[stem]; ok {
		return r, true
	}
	// TODO: keep a lowercase key map if MaxItemsPerJob grows well past a few hundred rows.
	for _, k := range ix.keys {
		if strings.EqualFold(k, stem) {
			return ix.byKey[k], true
		}
	}
	return entity.ReferenceRecord{}, false
}
