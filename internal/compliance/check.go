// Package compliance applies the labeling rule set to an extracted label.
package compliance

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/label-checker/constants"
	"github.com/joseph-ayodele/label-checker/internal/comparison"
	"github.com/joseph-ayodele/label-checker/internal/entity"
)

const (
	// LowConfidenceNullThreshold is the count of nil main fields at which an
	// extraction is treated as unreliable.
	LowConfidenceNullThreshold = 6
	// MinRawTextLength is the shortest raw transcription considered adequate.
	MinRawTextLength = 20

	lowConfidenceSuffix = " (low confidence extraction -- manual review recommended)"
	lowConfidenceNote   = "Low confidence extraction -- could not read label clearly. Manual review recommended."

	FieldExtractionQuality = "_extraction_quality"
)

// criticalComparisonFields escalate mismatch and not_found verdicts to critical.
var criticalComparisonFields = map[string]bool{
	comparison.FieldBrandName:      true,
	comparison.FieldAlcoholContent: true,
	comparison.FieldNetContents:    true,
}

var (
	smartPunct = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
		"–", "-", "—", "-",
	)
	reSpaces = regexp.MustCompile(`\s+`)
)

func normalize(s string) string {
	s = smartPunct.Replace(strings.TrimSpace(s))
	return strings.ToUpper(reSpaces.ReplaceAllString(s, " "))
}

// LowConfidence reports whether the extraction is too sparse to trust hard failures.
func LowConfidence(l entity.ExtractedLabel) bool {
	if l.RawTextExtracted == nil || len([]rune(*l.RawTextExtracted)) < MinRawTextLength {
		return true
	}
	return l.NullMainFields() >= LowConfidenceNullThreshold
}

type checker struct {
	lowConfidence bool
	issues        []entity.ComplianceIssue
}

// gate downgrades critical to needs_review for low-confidence extractions.
func (c *checker) gate(s constants.Severity) constants.Severity {
	if s == constants.SeverityCritical && c.lowConfidence {
		return constants.SeverityNeedsReview
	}
	return s
}

func (c *checker) add(field string, sev constants.Severity, msg string, typ constants.IssueType) {
	c.issues = append(c.issues, entity.ComplianceIssue{Field: field, Severity: sev, Message: msg, IssueType: typ})
}

// addGated records a would-be-critical presence issue, marking the message
// when confidence gating applied.
func (c *checker) addGated(field, msg string) {
	if c.lowConfidence {
		msg += lowConfidenceSuffix
	}
	c.add(field, c.gate(constants.SeverityCritical), msg, constants.IssueTypePresence)
}

// Check runs the presence rules and, when ref is non-nil, the field comparison.
// Passed is true iff no issue is critical after gating.
func Check(l entity.ExtractedLabel, ref *entity.ReferenceRecord) entity.ComplianceResult {
	c := &checker{lowConfidence: LowConfidence(l)}
	c.presence(l)
	c.formatting(l)

	if c.lowConfidence && !mentionsLowConfidence(c.issues) {
		c.issues = append([]entity.ComplianceIssue{{
			Field:     FieldExtractionQuality,
			Severity:  constants.SeverityNeedsReview,
			Message:   lowConfidenceNote,
			IssueType: constants.IssueTypePresence,
		}}, c.issues...)
	}

	var cmp *entity.ComparisonResult
	if ref != nil {
		res := comparison.Compare(l, *ref)
		cmp = &res
		c.fromComparison(res)
	}

	passed := true
	for _, is := range c.issues {
		if is.Severity == constants.SeverityCritical {
			passed = false
			break
		}
	}
	if c.issues == nil {
		c.issues = []entity.ComplianceIssue{}
	}
	return entity.ComplianceResult{Passed: passed, Issues: c.issues, Comparison: cmp}
}

func (c *checker) presence(l entity.ExtractedLabel) {
	present := l.WarningPresent()
	if !present {
		c.addGated("government_warning_present", "Government warning not detected on label")
	}

	switch {
	case present && !entity.Blank(l.GovernmentWarningText):
		if normalize(*l.GovernmentWarningText) != normalize(constants.CanonicalWarning) {
			c.add("government_warning_text", constants.SeverityNeedsReview,
				"Warning text does not exactly match the required federal text -- verify manually",
				constants.IssueTypePresence)
		}
	case present:
		c.add("government_warning_text", constants.SeverityNeedsReview,
			"Warning detected but text could not be extracted -- verify manually",
			constants.IssueTypePresence)
	}

	if entity.Blank(l.AlcoholByVolume) {
		c.addGated("alcohol_by_volume", "Alcohol content (ABV) not detected")
	}
	if entity.Blank(l.NetContents) {
		c.addGated("net_contents", "Net contents not detected")
	}
	if entity.Blank(l.ProducerName) {
		c.add("producer_name", constants.SeverityNeedsReview, "Bottler/producer name not detected", constants.IssueTypePresence)
	}
	if entity.Blank(l.ProducerAddress) {
		c.add("producer_address", constants.SeverityNeedsReview, "Bottler/producer address not detected", constants.IssueTypePresence)
	}
}

// formatting adds informational issues that never affect pass/fail.
func (c *checker) formatting(l entity.ExtractedLabel) {
	info := func(field, msg string) {
		c.add(field, constants.SeverityInfo, msg, constants.IssueTypePresence)
	}
	if l.WarningPresent() {
		switch {
		case l.GovernmentWarningHeaderAllCaps == nil:
			info("government_warning_header_all_caps", "Could not determine if warning header is in all caps")
		case !*l.GovernmentWarningHeaderAllCaps:
			info("government_warning_header_all_caps", "'GOVERNMENT WARNING:' header may not be in all caps -- verify formatting")
		}
		if !entity.IsTrue(l.GovernmentWarningHeaderBold) {
			info("government_warning_header_bold", "Could not confirm warning header is bold -- verify formatting")
		}
	}
	if entity.Blank(l.CountryOfOrigin) {
		info("country_of_origin", "Country of origin not detected -- required for imports")
	}
	if entity.Blank(l.ClassTypeDesignation) {
		info("class_type_designation", "Class/type designation not detected")
	}
	if !entity.IsTrue(l.SulfiteDeclarationPresent) {
		info("sulfite_declaration_present", "Sulfite declaration not detected -- verify if required for this product type")
	}
}

func (c *checker) fromComparison(res entity.ComparisonResult) {
	for _, v := range res.Fields {
		switch v.Status {
		case constants.VerdictMismatch, constants.VerdictNotFound:
			sev := constants.SeverityNeedsReview
			if criticalComparisonFields[v.Field] {
				sev = c.gate(constants.SeverityCritical)
			}
			c.add(v.Field, sev, v.Message, constants.IssueTypeComparison)
		case constants.VerdictPartial, constants.VerdictNeedsReview:
			c.add(v.Field, constants.SeverityNeedsReview, v.Message, constants.IssueTypeComparison)
		}
	}
}

func mentionsLowConfidence(issues []entity.ComplianceIssue) bool {
	for _, is := range issues {
		if strings.Contains(is.Message, "low confidence") {
			return true
		}
	}
	return false
}
