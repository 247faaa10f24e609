// Package comparison cross-checks an extracted label against a reference row.
package comparison

import (
	"fmt"
	"math"
	"strings"

	"github.com/joseph-ayodele/label-checker/constants"
	"github.com/joseph-ayodele/label-checker/internal/entity"
)

const (
	abvTolerance         = 0.15
	netContentsTolerance = 1.0
	addressMatchRatio    = 0.6
	warningPartialRatio  = 0.80
)

// Field names reported in verdicts.
const (
	FieldBrandName         = "brand_name"
	FieldAlcoholContent    = "alcohol_content"
	FieldNetContents       = "net_contents"
	FieldClassType         = "class_type"
	FieldProducerName      = "producer_name"
	FieldProducerAddress   = "producer_address"
	FieldGovernmentWarning = "government_warning"
)

type fieldCheck struct {
	expected  func(entity.ReferenceRecord) *string
	extracted func(entity.ExtractedLabel) *string
	compare   func(expected string, extracted *string) entity.ComparisonVerdict
}

// checks run in this order; the warning verdict is always appended last.
var checks = []fieldCheck{
	{
		expected:  func(r entity.ReferenceRecord) *string { return r.BrandName },
		extracted: func(l entity.ExtractedLabel) *string { return l.BrandName },
		compare: identity(FieldBrandName, identityMessages{
			notFound: "Brand name not found on label",
			partial:  "Brand name is a partial match -- verify",
			mismatch: "Brand name does not match application data",
		}),
	},
	{
		expected:  func(r entity.ReferenceRecord) *string { return r.AlcoholContent },
		extracted: func(l entity.ExtractedLabel) *string { return l.AlcoholByVolume },
		compare:   compareAlcoholContent,
	},
	{
		expected:  func(r entity.ReferenceRecord) *string { return r.NetContents },
		extracted: func(l entity.ExtractedLabel) *string { return l.NetContents },
		compare:   compareNetContents,
	},
	{
		expected:  func(r entity.ReferenceRecord) *string { return r.ClassType },
		extracted: func(l entity.ExtractedLabel) *string { return l.ClassTypeDesignation },
		compare: identity(FieldClassType, identityMessages{
			notFound: "Class/type designation not found on label",
			partial:  "Class/type is a partial match -- one value contains the other",
			mismatch: "Class/type designation does not match application data",
		}),
	},
	{
		expected:  func(r entity.ReferenceRecord) *string { return r.ProducerName },
		extracted: func(l entity.ExtractedLabel) *string { return l.ProducerName },
		compare: identity(FieldProducerName, identityMessages{
			notFound: "Producer/bottler name not found on label",
			partial:  "Producer name is a partial match -- verify",
			mismatch: "Producer name does not match application data",
		}),
	},
	{
		expected:  func(r entity.ReferenceRecord) *string { return r.ProducerAddress },
		extracted: func(l entity.ExtractedLabel) *string { return l.ProducerAddress },
		compare:   compareProducerAddress,
	},
}

// Compare produces one verdict per non-blank reference field followed by the
// mandatory government warning verdict. It is a pure function of its inputs.
func Compare(label entity.ExtractedLabel, ref entity.ReferenceRecord) entity.ComparisonResult {
	fields := make([]entity.ComparisonVerdict, 0, len(checks)+1)
	for _, c := range checks {
		exp := c.expected(ref)
		if entity.Blank(exp) {
			continue
		}
		fields = append(fields, c.compare(*exp, c.extracted(label)))
	}
	fields = append(fields, CompareWarning(label))

	var matched *string
	if ref.LabelID != "" {
		matched = entity.Ptr(ref.LabelID)
	}
	return entity.ComparisonResult{MatchedRow: matched, Fields: fields}
}

func verdict(field, expected string, extracted *string, status constants.VerdictStatus, msg string) entity.ComparisonVerdict {
	return entity.ComparisonVerdict{
		Field:     field,
		Expected:  expected,
		Extracted: extracted,
		Status:    status,
		Message:   msg,
	}
}

type identityMessages struct {
	notFound, partial, mismatch string
}

// identity compares names after reducing both sides to lowercase alphanumerics.
// Containment in either direction is a partial match.
func identity(field string, msgs identityMessages) func(string, *string) entity.ComparisonVerdict {
	return func(expected string, extracted *string) entity.ComparisonVerdict {
		if entity.Blank(extracted) {
			return verdict(field, expected, extracted, constants.VerdictNotFound, msgs.notFound)
		}
		e, x := alnum(expected), alnum(*extracted)
		switch {
		case e == x:
			return verdict(field, expected, extracted, constants.VerdictMatch, "")
		case containsEither(e, x):
			return verdict(field, expected, extracted, constants.VerdictPartial, msgs.partial)
		default:
			return verdict(field, expected, extracted, constants.VerdictMismatch, msgs.mismatch)
		}
	}
}

func compareAlcoholContent(expected string, extracted *string) entity.ComparisonVerdict {
	if entity.Blank(extracted) {
		return verdict(FieldAlcoholContent, expected, extracted, constants.VerdictNotFound,
			"Alcohol content not found on label")
	}
	exp, okE := ParseABV(expected)
	ext, okX := ParseABV(*extracted)
	if okE && okX {
		if math.Abs(exp-ext) <= abvTolerance {
			return verdict(FieldAlcoholContent, expected, extracted, constants.VerdictMatch, "")
		}
		return verdict(FieldAlcoholContent, expected, extracted, constants.VerdictMismatch,
			fmt.Sprintf("ABV mismatch: expected %s%%, found %s%%", formatNumber(exp), formatNumber(ext)))
	}
	if normText(expected) == normText(*extracted) {
		return verdict(FieldAlcoholContent, expected, extracted, constants.VerdictMatch, "")
	}
	return verdict(FieldAlcoholContent, expected, extracted, constants.VerdictNeedsReview,
		"Could not parse ABV numerically -- manual comparison required")
}

func compareNetContents(expected string, extracted *string) entity.ComparisonVerdict {
	if entity.Blank(extracted) {
		return verdict(FieldNetContents, expected, extracted, constants.VerdictNotFound,
			"Net contents not found on label")
	}
	exp, okE := ParseNetContentsML(expected)
	ext, okX := ParseNetContentsML(*extracted)
	if okE && okX {
		if math.Abs(exp-ext) <= netContentsTolerance {
			return verdict(FieldNetContents, expected, extracted, constants.VerdictMatch, "")
		}
		return verdict(FieldNetContents, expected, extracted, constants.VerdictMismatch,
			fmt.Sprintf("Net contents mismatch: expected %smL, found %smL", formatNumber(exp), formatNumber(ext)))
	}
	if normText(expected) == normText(*extracted) {
		return verdict(FieldNetContents, expected, extracted, constants.VerdictMatch, "")
	}
	return verdict(FieldNetContents, expected, extracted, constants.VerdictNeedsReview,
		"Could not parse net contents numerically -- manual comparison required")
}

func compareProducerAddress(expected string, extracted *string) entity.ComparisonVerdict {
	if entity.Blank(extracted) {
		return verdict(FieldProducerAddress, expected, extracted, constants.VerdictNotFound,
			"Producer address not found on label")
	}
	shared, ratio := overlap(fieldSet(normText(expected)), fieldSet(normText(*extracted)))
	switch {
	case ratio >= addressMatchRatio:
		return verdict(FieldProducerAddress, expected, extracted, constants.VerdictMatch,
			"Address appears to match (relaxed comparison)")
	case shared > 0:
		return verdict(FieldProducerAddress, expected, extracted, constants.VerdictPartial,
			"Address partially matches -- verify details")
	default:
		return verdict(FieldProducerAddress, expected, extracted, constants.VerdictMismatch,
			"Producer address does not match application data")
	}
}

// CompareWarning checks the extracted warning statement against the canonical text.
func CompareWarning(label entity.ExtractedLabel) entity.ComparisonVerdict {
	const expected = constants.CanonicalWarning
	if !label.WarningPresent() {
		return verdict(FieldGovernmentWarning, expected, extractedOrMissing(label.GovernmentWarningText),
			constants.VerdictNotFound, "Government warning not detected on label")
	}
	if entity.Blank(label.GovernmentWarningText) {
		return verdict(FieldGovernmentWarning, expected, entity.Ptr("Not detected on label"),
			constants.VerdictNeedsReview, "Warning detected but text could not be extracted")
	}
	text := label.GovernmentWarningText
	if collapseUpper(*text) == collapseUpper(expected) {
		return verdict(FieldGovernmentWarning, expected, text, constants.VerdictMatch, "")
	}
	if _, ratio := overlap(wordSet(expected), wordSet(*text)); ratio >= warningPartialRatio {
		return verdict(FieldGovernmentWarning, expected, text, constants.VerdictPartial,
			"Warning text does not exactly match the required federal text -- verify manually")
	}
	return verdict(FieldGovernmentWarning, expected, text, constants.VerdictMismatch,
		"Warning text does not match the required federal text")
}

func extractedOrMissing(s *string) *string {
	if entity.Blank(s) {
		return entity.Ptr("Not detected on label")
	}
	return s
}

func containsEither(a, b string) bool {
	return strings.Contains(b, a) || strings.Contains(a, b)
}
