package llm

import (
	"context"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// Unavailable is a Client that always fails. It stands in when no provider
// is configured, or the configured one cannot be constructed, so callers
// produce their degraded output instead of refusing to start.
type Unavailable struct {
	model  string
	reason string
}

var _ Client = (*Unavailable)(nil)

// NewUnavailable returns a client that fails every call with reason.
func NewUnavailable(model, reason string) *Unavailable {
	if model == "" {
		model = "none"
	}
	return &Unavailable{model: model, reason: reason}
}

// Model returns the configured model name, or "none".
func (u *Unavailable) Model() string {
	return u.model
}

// Generate always returns a non-retryable BackendError.
func (u *Unavailable) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	return "", nonRetryable(oderrors.BackendError(u.reason, nil))
}

// Reason explains why no LLM is available.
func (u *Unavailable) Reason() string {
	return u.reason
}
