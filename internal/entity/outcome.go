package entity

// ComplianceSummary is the pass/fail portion of an item result.
type ComplianceSummary struct {
	Passed bool              `json:"passed"`
	Issues []ComplianceIssue `json:"issues"`
}

// ItemResult is the success payload for one processed image.
type ItemResult struct {
	ClientIndex int               `json:"client_index"`
	FileID      int               `json:"file_id"`
	Filename    string            `json:"filename"`
	Data        ExtractedLabel    `json:"data"`
	Compliance  ComplianceSummary `json:"compliance"`
	Comparison  *ComparisonResult `json:"comparison,omitempty"`
}

// ItemError is the failure payload for one image. FileID and ClientIndex are
// -1 for job-level errors.
type ItemError struct {
	ClientIndex int    `json:"client_index"`
	FileID      int    `json:"file_id"`
	Filename    string `json:"filename"`
	Error       string `json:"error"`
}

// ItemOutcome holds exactly one of Result or Failure.
type ItemOutcome struct {
	Result  *ItemResult
	Failure *ItemError
}

// ClientIndex returns the caller-supplied ordering index of the outcome.
func (o ItemOutcome) ClientIndex() int {
	if o.Result != nil {
		return o.Result.ClientIndex
	}
	if o.Failure != nil {
		return o.Failure.ClientIndex
	}
	return -1
}
