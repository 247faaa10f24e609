package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolName is the forced tool the model must call with the extracted fields.
const ToolName = "extract_label_data"

// LabelToolSchema returns the JSON schema of the extraction tool input as a
// generic map. It is sent to the service and used to validate the reply.
func LabelToolSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"brand_name":        nullableString("The brand name as it appears on the label"),
			"product_type":      nullableString("Product category, e.g. Wine, Beer, Distilled Spirits"),
			"alcohol_by_volume": nullableString("Full ABV expression, e.g. '12.5% Alc./Vol.' or '45% Alc./Vol. (90 Proof)'"),
			"net_contents":      nullableString("Net contents, e.g. '750 mL' or '12 FL. OZ.'"),
			"country_of_origin": nullableString("Country of origin if stated"),
			"government_warning_present": map[string]any{
				"type":        "boolean",
				"description": "Whether a government health warning statement is visible on the label",
			},
			"government_warning_text":            nullableString("The exact text of the government warning as it appears on the label"),
			"government_warning_header_all_caps": nullableBool("Whether 'GOVERNMENT WARNING:' appears in ALL CAPS"),
			"government_warning_header_bold":     nullableBool("Whether the warning header appears to be in bold/heavier weight. Best effort."),
			"sulfite_declaration_present": map[string]any{
				"type":        "boolean",
				"description": "Whether a sulfite declaration (e.g. 'Contains Sulfites') is visible",
			},
			"class_type_designation": nullableString("Class/type designation, e.g. 'Kentucky Straight Bourbon Whiskey', 'Cabernet Sauvignon'"),
			"producer_name":          nullableString("Name of the bottler, producer, or importer ONLY, without the address"),
			"producer_address":       nullableString("Address of the bottler, producer, or importer ONLY, without the company name"),
			"raw_text_extracted":     nullableString("All visible text on the label, transcribed as-is"),
		},
		"required": []string{"government_warning_present", "sulfite_declaration_present"},
	}
}

func nullableString(desc string) map[string]any {
	return map[string]any{"type": []string{"string", "null"}, "description": desc}
}

func nullableBool(desc string) map[string]any {
	return map[string]any{"type": []string{"boolean", "null"}, "description": desc}
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func labelSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(LabelToolSchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("label.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("label.json")
	})
	return compiledSchema, compileErr
}

// ValidateLabelJSON validates raw tool input against LabelToolSchema.
func ValidateLabelJSON(data []byte) error {
	schema, err := labelSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
