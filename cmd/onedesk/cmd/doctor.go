package cmd

import (
	"github.com/spf13/cobra"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/llm"
	"github.com/Aman-CERP/onedesk/internal/output"
	"github.com/Aman-CERP/onedesk/internal/preflight"
)

func newDoctorCmd(g *globals) *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the host, the backends and the indexes",
		Long: `Run preflight checks: free disk and write access for the indices
directory, the open file limit, the HR policy folder, the embedding backend,
the LLM, and whether stored indexes match the embedder.

Exits non-zero when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			target := preflight.Target{
				IndicesPath:  g.cfg.Storage.IndicesPath,
				PoliciesPath: g.cfg.Storage.HRPoliciesPath,
				Supported:    a.Extractor.Supported,
				Embedder:     a.Embedder,
				LLMModel:     a.LLM.Model(),
				Dimensions:   a.CheckDimensions,
			}
			if u, ok := a.LLM.(*llm.Unavailable); ok {
				target.LLMError = u.Reason()
			}

			checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context(), target)

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return oderrors.New(oderrors.ErrCodeInternal, "preflight checks failed", nil).
					WithSuggestion("fix the failed checks above")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
