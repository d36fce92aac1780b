package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// coerce returns err as a OneDeskError, wrapping foreign errors as internal.
func coerce(err error) *OneDeskError {
	if oe, ok := As(err); ok {
		return oe
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	oe := coerce(err)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", oe.Message)
	if oe.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", oe.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", oe.Code)
	return sb.String()
}

// Body is the JSON error envelope returned by the HTTP API.
type Body struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Retryable  bool              `json:"retryable"`
	RequestID  string            `json:"request_id,omitempty"`
}

// ToBody converts err to its API envelope. Causes are not exposed.
func ToBody(err error) Body {
	oe := coerce(err)
	return Body{
		Code:       oe.Code,
		Message:    oe.Message,
		Category:   string(oe.Category),
		Details:    oe.Details,
		Suggestion: oe.Suggestion,
		Retryable:  oe.Retryable,
	}
}

// FormatJSON returns the JSON envelope for err.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(ToBody(err))
}

// FormatForLog returns slog-ready attributes for err.
func FormatForLog(err error) []any {
	if err == nil {
		return nil
	}

	oe, ok := As(err)
	if !ok {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", oe.Code,
		"error", oe.Message,
		"category", string(oe.Category),
		"severity", string(oe.Severity),
		"retryable", oe.Retryable,
	}
	if oe.Cause != nil {
		attrs = append(attrs, "cause", oe.Cause.Error())
	}
	for k, v := range oe.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
