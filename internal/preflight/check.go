package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Aman-CERP/onedesk/internal/output"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Embedder is the part of embed.Embedder the checks need.
type Embedder interface {
	ModelName() string
	Dimensions() int
	Available(ctx context.Context) bool
}

// Target describes what to check. Nil or empty fields skip their check.
type Target struct {
	IndicesPath  string
	PoliciesPath string
	// Supported filters policy files by name.
	Supported func(name string) bool

	Embedder Embedder

	LLMModel string
	// LLMError explains why no LLM is configured; empty means configured.
	LLMError string

	// Dimensions compares loaded indexes with the embedder.
	Dimensions func() error
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check that t has inputs for.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	var results []CheckResult

	if t.IndicesPath != "" {
		results = append(results, c.CheckDiskSpace(t.IndicesPath))
		results = append(results, c.CheckWritePermissions(t.IndicesPath))
	}
	results = append(results, c.CheckFileDescriptors())
	if t.PoliciesPath != "" {
		results = append(results, c.CheckPolicyFolder(t.PoliciesPath, t.Supported))
	}
	if t.Embedder != nil {
		results = append(results, c.CheckEmbedder(ctx, t.Embedder))
	}
	if t.LLMModel != "" || t.LLMError != "" {
		results = append(results, c.CheckLLM(t.LLMModel, t.LLMError))
	}
	if t.Dimensions != nil {
		results = append(results, c.CheckDimensions(t.Dimensions))
	}

	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	out := output.New(c.output)
	out.Header("One-Desk System Check")
	out.Newline()

	for _, r := range results {
		out.Statusf("["+r.Status.String()+"]", "%s: %s", r.Name, r.Message)
		if c.verbose && r.Details != "" {
			out.Status("", "   "+r.Details)
		}
	}

	out.Newline()
	out.Statusf("", "Status: %s", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status != StatusPass {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		out.Newline()
		out.Errorf("%d error(s):", len(errors))
		for _, e := range errors {
			out.Status("", "  - "+e)
		}
	}
	if len(warnings) > 0 {
		out.Newline()
		out.Warningf("%d warning(s):", len(warnings))
		for _, w := range warnings {
			out.Status("", "  - "+w)
		}
	}
}

// CheckWritePermissions checks that files can be created in path.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	f, err := os.CreateTemp(path, ".onedesk-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s: %v", path, err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	return result
}
