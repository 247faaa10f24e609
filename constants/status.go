package constants

// VerdictStatus is the per-field outcome of comparing a label to its reference row.
type VerdictStatus string

const (
	VerdictMatch       VerdictStatus = "match"
	VerdictPartial     VerdictStatus = "partial"
	VerdictMismatch    VerdictStatus = "mismatch"
	VerdictNotFound    VerdictStatus = "not_found"
	VerdictNeedsReview VerdictStatus = "needs_review"
)

// Severity grades a compliance issue. Only SeverityCritical fails an item.
type Severity string

const (
	SeverityCritical    Severity = "critical"
	SeverityNeedsReview Severity = "needs_review"
	SeverityInfo        Severity = "info"
)

// IssueType tags where a compliance issue came from.
type IssueType string

const (
	IssueTypePresence   IssueType = "presence"
	IssueTypeComparison IssueType = "comparison"
)
