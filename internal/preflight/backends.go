package preflight

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// CheckPolicyFolder counts ingestible documents under dir. A missing or
// empty folder is a warning; the server still answers with "not found".
func (c *Checker) CheckPolicyFolder(dir string, supported func(string) bool) CheckResult {
	result := CheckResult{
		Name:    "policy_folder",
		Details: fmt.Sprintf("Folder: %s", dir),
	}

	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && (supported == nil || supported(d.Name())) {
			count++
		}
		return nil
	})
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot read policy folder: %v", err)
	case count == 0:
		result.Status = StatusWarn
		result.Message = "no supported documents found"
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d documents", count)
	}
	return result
}

// CheckEmbedder verifies the embedding backend answers.
func (c *Checker) CheckEmbedder(ctx context.Context, e Embedder) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
		Details:  fmt.Sprintf("Model: %s, %d dimensions", e.ModelName(), e.Dimensions()),
	}
	if !e.Available(ctx) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not reachable", e.ModelName())
		return result
	}
	result.Status = StatusPass
	result.Message = e.ModelName()
	return result
}

// CheckLLM reports whether answers can be generated. Without an LLM the
// server still retrieves and summarizes extractively.
func (c *Checker) CheckLLM(model, reason string) CheckResult {
	result := CheckResult{Name: "llm"}
	if reason != "" {
		result.Status = StatusWarn
		result.Message = reason
		result.Details = "Answers will be degraded and summaries extractive"
		return result
	}
	result.Status = StatusPass
	result.Message = model
	return result
}

// CheckDimensions runs check and fails when stored indexes do not match the
// embedder.
func (c *Checker) CheckDimensions(check func() error) CheckResult {
	result := CheckResult{
		Name:     "index_dimensions",
		Required: true,
	}
	if err := check(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = "Run 'onedesk ingest --rebuild' to re-embed the HR policies"
		return result
	}
	result.Status = StatusPass
	result.Message = "indexes match the embedder"
	return result
}
