package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/onedesk/internal/output"
	"github.com/Aman-CERP/onedesk/internal/summary"
)

func newSummarizeCmd(g *globals) *cobra.Command {
	var (
		title      string
		mode       string
		persist    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "summarize <file>",
		Short: "Summarize a meeting transcript",
		Long: `Summarize a .txt or .pdf meeting transcript.

The default llm mode falls back to an extractive summary when no LLM is
configured. With --store the transcript is also added to the meeting index.`,
		Example: `  onedesk summarize standup.txt
  onedesk summarize review.pdf --title "Q3 Review" --store`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := summary.ParseMode(mode)
			if err != nil {
				return err
			}

			a, err := g.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			path := args[0]
			text, err := a.Extractor.ExtractFile(path)
			if err != nil {
				return err
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			var res *summary.Summary
			if persist {
				if err := a.CheckDimensions(); err != nil {
					return err
				}
				res, err = a.Summaries.SummarizeAndStore(cmd.Context(), text, title, m)
			} else {
				res, err = a.Summaries.Summarize(cmd.Context(), text, title, m)
			}
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(res)
			}
			out.Header(res.MeetingTitle)
			out.Code(res.Summary)
			out.KeyValue("mode", res.Mode)
			out.KeyValue("characters", res.TextLength)
			if res.ChunksStored != nil {
				out.Successf("Stored %d chunks (%d in meeting index)", *res.ChunksStored, *res.TotalMeetings)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Meeting title (default: file name)")
	cmd.Flags().StringVar(&mode, "mode", string(summary.ModeLLM), "Summary mode: llm or quick")
	cmd.Flags().BoolVar(&persist, "store", false, "Add the transcript to the meeting index")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the summary as JSON")
	return cmd
}
