package entity

// ExtractedLabel is the structured field record read off a label image.
// A nil field means the extractor did not detect it.
type ExtractedLabel struct {
	BrandName                      *string `json:"brand_name"`
	ProductType                    *string `json:"product_type"`
	AlcoholByVolume                *string `json:"alcohol_by_volume"`
	NetContents                    *string `json:"net_contents"`
	CountryOfOrigin                *string `json:"country_of_origin"`
	GovernmentWarningPresent       *bool   `json:"government_warning_present"`
	GovernmentWarningText          *string `json:"government_warning_text"`
	GovernmentWarningHeaderAllCaps *bool   `json:"government_warning_header_all_caps"`
	GovernmentWarningHeaderBold    *bool   `json:"government_warning_header_bold"`
	SulfiteDeclarationPresent      *bool   `json:"sulfite_declaration_present"`
	ClassTypeDesignation           *string `json:"class_type_designation"`
	ProducerName                   *string `json:"producer_name"`
	ProducerAddress                *string `json:"producer_address"`
	RawTextExtracted               *string `json:"raw_text_extracted"`

	ModelUsed        string `json:"model_used,omitempty"`
	ProcessingTimeMS int64  `json:"processing_time_ms,omitempty"`
}

// NullMainFields counts how many of the main extraction fields are nil.
// Formatting flags, the sulfite flag and raw text are not main fields.
func (l ExtractedLabel) NullMainFields() int {
	n := 0
	for _, s := range []*string{
		l.BrandName, l.ProductType, l.AlcoholByVolume, l.NetContents, l.CountryOfOrigin,
		l.GovernmentWarningText, l.ClassTypeDesignation, l.ProducerName, l.ProducerAddress,
	} {
		if s == nil {
			n++
		}
	}
	if l.GovernmentWarningPresent == nil {
		n++
	}
	return n
}

// WarningPresent reports whether a warning was positively detected.
func (l ExtractedLabel) WarningPresent() bool {
	return IsTrue(l.GovernmentWarningPresent)
}

// Text returns the dereferenced value, or "" when nil.
func Text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Blank reports whether s is nil or empty.
func Blank(s *string) bool {
	return s == nil || *s == ""
}

// IsTrue reports whether b is non-nil and true.
func IsTrue(b *bool) bool {
	return b != nil && *b
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
