// Package preflight checks that the host and the configured backends can run
// One-Desk: free disk and write access for the indices directory, the file
// descriptor limit, the HR policy folder, the embedding backend, the LLM and
// index/embedder dimension agreement.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, target)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
