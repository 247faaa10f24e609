package entity

import "strings"

// ReferenceRecord is one row of expected values supplied with a job, keyed by
// its label identifier. Nil fields are not cross-checked.
type ReferenceRecord struct {
	LabelID         string  `json:"label_id"`
	BrandName       *string `json:"brand_name,omitempty"`
	ClassType       *string `json:"class_type,omitempty"`
	AlcoholContent  *string `json:"alcohol_content,omitempty"`
	NetContents     *string `json:"net_contents,omitempty"`
	ProducerName    *string `json:"producer_name,omitempty"`
	ProducerAddress *string `json:"producer_address,omitempty"`
}

// Key is the index key for the record: the label identifier without surrounding whitespace.
func (r ReferenceRecord) Key() string {
	return strings.TrimSpace(r.LabelID)
}
