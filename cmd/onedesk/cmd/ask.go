package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/onedesk/internal/output"
)

func newAskCmd(g *globals) *cobra.Command {
	var (
		topK       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about HR policies",
		Example: `  onedesk ask "How many days of annual leave do I get?"
  onedesk ask --top-k 8 --json "What is the travel reimbursement limit?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			a, err := g.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := a.CheckDimensions(); err != nil {
				return err
			}

			ans, err := a.Ask(cmd.Context(), query, topK)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(ans)
			}
			out.Code(ans.Answer)
			if len(ans.Sources) > 0 {
				out.Header("Sources")
				for _, s := range ans.Sources {
					out.Status("", fmt.Sprintf("%s (chunk %d, score %.4f)", s.Source, s.Chunk, s.Score))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default: retrieval.top_k)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the answer as JSON")
	return cmd
}
