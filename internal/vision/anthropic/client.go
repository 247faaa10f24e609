package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/label-checker/constants"
	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/entity"
	"github.com/joseph-ayodele/label-checker/internal/vision"
)

type messagesResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Extract implements vision.Extractor with a single Messages call that forces
// the extraction tool. Errors are classified for the retry policy.
func (c *Client) Extract(ctx context.Context, image []byte, displayName string) (entity.ExtractedLabel, error) {
	start := time.Now()
	jobID := common.JobIDFromContext(ctx)

	c.logger.Info("vision.extract.start",
		"job_id", jobID,
		"filename", displayName,
		"model", c.cfg.Model,
		"payload_kb", len(image)/1024,
	)

	body := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": c.cfg.MaxTokens,
		"system": []map[string]any{{
			"type":          "text",
			"text":          vision.SystemPrompt,
			"cache_control": map[string]any{"type": "ephemeral"},
		}},
		"tools": []map[string]any{{
			"name":         vision.ToolName,
			"description":  "Extract structured data from an alcohol beverage label image.",
			"input_schema": vision.LabelToolSchema(),
		}},
		"tool_choice": map[string]any{"type": "tool", "name": vision.ToolName},
		"messages": []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				{
					"type": "image",
					"source": map[string]any{
						"type":       "base64",
						"media_type": constants.ContentTypeJPEG,
						"data":       base64.StdEncoding.EncodeToString(image),
					},
				},
				{"type": "text", "text": vision.UserPrompt},
			},
		}},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": APIVersion,
	}
	resp, err := sendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entity.ExtractedLabel{}, &vision.UnrecoverableError{Err: ctxErr}
		}
		return entity.ExtractedLabel{}, &vision.ServiceError{Err: err}
	}
	if err := classifyStatus(resp); err != nil {
		c.logger.Warn("vision.extract.http_error",
			"job_id", jobID, "filename", displayName, "status", resp.Status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ExtractedLabel{}, err
	}

	var mr messagesResponse
	if err := json.Unmarshal(resp.Body, &mr); err != nil {
		return entity.ExtractedLabel{}, &vision.UnrecoverableError{Err: fmt.Errorf("decode messages response: %w", err)}
	}
	var input json.RawMessage
	for _, block := range mr.Content {
		if block.Type == "tool_use" && block.Name == vision.ToolName {
			input = block.Input
			break
		}
	}
	if input == nil {
		return entity.ExtractedLabel{}, &vision.UnrecoverableError{Err: fmt.Errorf("no %s tool_use block in response", vision.ToolName)}
	}

	if err := vision.ValidateLabelJSON(input); err != nil {
		c.logger.Error("vision.extract.schema_validation_failed",
			"job_id", jobID, "filename", displayName, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ExtractedLabel{}, &vision.UnrecoverableError{Err: fmt.Errorf("schema validation failed: %w", err)}
	}

	var out entity.ExtractedLabel
	if err := json.Unmarshal(input, &out); err != nil {
		return entity.ExtractedLabel{}, &vision.UnrecoverableError{Err: fmt.Errorf("unmarshal fields: %w", err)}
	}
	out.ModelUsed = c.cfg.Model
	out.ProcessingTimeMS = time.Since(start).Milliseconds()

	c.logger.Info("vision.extract.ok",
		"job_id", jobID,
		"filename", displayName,
		"brand", entity.Text(out.BrandName),
		"warning_present", out.WarningPresent(),
		"input_tokens", mr.Usage.InputTokens,
		"output_tokens", mr.Usage.OutputTokens,
		"elapsed_ms", out.ProcessingTimeMS,
	)
	return out, nil
}

// classifyStatus maps a non-2xx response to the extraction error taxonomy.
func classifyStatus(resp *response) error {
	if resp.Status/100 == 2 {
		return nil
	}
	cause := errors.New(apiErrorMessage(resp.Body, resp.Status))
	switch {
	case resp.Status == http.StatusTooManyRequests:
		return &vision.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("retry-after")), Err: cause}
	case resp.Status >= 500:
		return &vision.ServiceError{StatusCode: resp.Status, Err: cause}
	default:
		return &vision.UnrecoverableError{Err: fmt.Errorf("status %d: %w", resp.Status, cause)}
	}
}

func apiErrorMessage(body []byte, status int) string {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Type + ": " + e.Error.Message
	}
	return http.StatusText(status)
}

// parseRetryAfter reads a delay in (possibly fractional) seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
