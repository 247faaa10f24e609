package entity

import "github.com/joseph-ayodele/label-checker/constants"

// ComparisonVerdict is the outcome of cross-checking one field.
type ComparisonVerdict struct {
	Field     string                  `json:"field"`
	Expected  string                  `json:"expected"`
	Extracted *string                 `json:"extracted"`
	Status    constants.VerdictStatus `json:"status"`
	Message   string                  `json:"message"`
}

// ComparisonResult lists verdicts for one label against one reference row.
type ComparisonResult struct {
	MatchedRow *string             `json:"matched_row"`
	Fields     []ComparisonVerdict `json:"fields"`
}

// ComplianceIssue is one finding of the rule engine.
type ComplianceIssue struct {
	Field     string              `json:"field"`
	Severity  constants.Severity  `json:"severity"`
	Message   string              `json:"message"`
	IssueType constants.IssueType `json:"issue_type"`
}

// ComplianceResult is the rule engine output. Comparison is set only when a
// reference row was checked.
type ComplianceResult struct {
	Passed     bool
	Issues     []ComplianceIssue
	Comparison *ComparisonResult
}
