package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/onedesk/internal/output"
	"github.com/Aman-CERP/onedesk/internal/store"
)

func newSearchCmd(g *globals) *cobra.Command {
	var (
		topK       int
		index      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve matching chunks without generating an answer",
		Example: `  onedesk search "release date"
  onedesk search --index hr "parental leave"`,
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

			if _, err := a.Index(index); err != nil {
				return err
			}
			var results []store.Result
			if index == "hr" {
				results, err = a.HR.Retrieve(cmd.Context(), query, topK)
			} else {
				results, err = a.SearchMeetings(cmd.Context(), query, topK)
			}
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(map[string]any{"query": strings.TrimSpace(query), "results": results})
			}
			if len(results) == 0 {
				out.Warning("No matches")
				return nil
			}
			for i, r := range results {
				out.Statusf(fmt.Sprintf("%d.", i+1), "%s (chunk %d, score %.4f)", r.Meta.Source, r.Meta.Chunk, r.Score)
				out.Code(preview(r))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (default: retrieval.top_k)")
	cmd.Flags().StringVar(&index, "index", "meet", "Index to search: meet or hr")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

const previewRunes = 240

func preview(r store.Result) string {
	text := strings.Join(strings.Fields(r.Text), " ")
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}
