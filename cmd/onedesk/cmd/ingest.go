package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/onedesk/internal/ingest"
	"github.com/Aman-CERP/onedesk/internal/output"
	"github.com/Aman-CERP/onedesk/internal/ui"
)

func newIngestCmd(g *globals) *cobra.Command {
	var (
		rebuild    bool
		jsonOutput bool
		plain      bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index the HR policy folder",
		Long: `Extract, chunk and embed every .pdf and .txt file under the HR policy
folder (storage.hr_policies_path, or dir when given) and append the chunks
to the HR index.

Use --rebuild after changing the embedding model or when documents were
edited or removed; it clears the index first.`,
		Example: `  onedesk ingest
  onedesk ingest ./policies --rebuild`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}

			a, err := g.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if !rebuild {
				if err := a.CheckDimensions(); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			var renderer ui.Renderer
			if !jsonOutput {
				title := dir
				if title == "" {
					title = a.Config.Storage.HRPoliciesPath
				}
				renderer = ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr(),
					ui.WithForcePlain(plain),
					ui.WithNoColor(noColor),
					ui.WithTitle(title)))
				if err := renderer.Start(ctx); err != nil {
					return err
				}
				defer func() { _ = renderer.Stop() }()
				ctx = ingest.WithProgress(ctx, func(p ingest.Progress) {
					renderer.UpdateProgress(ui.ProgressEvent{
						Stage:       uiStage(p.Stage),
						Current:     p.Done,
						Total:       p.Total,
						CurrentFile: p.File,
					})
				})
			}

			report, err := a.IngestHR(ctx, dir, rebuild)
			if err != nil {
				return err
			}
			if renderer != nil {
				renderer.Complete(ui.CompletionStats{
					Files:    report.Files,
					Chunks:   report.Chunks,
					Total:    report.Total,
					Skipped:  len(report.Skipped),
					Duration: time.Duration(report.DurationMS) * time.Millisecond,
					Embedder: a.Embedder.ModelName(),
				})
				_ = renderer.Stop()
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(report)
			}
			out.Successf("Indexed %d files into %d chunks in %dms", report.Files, report.Chunks, report.DurationMS)
			out.KeyValue("folder", report.Dir)
			out.KeyValue("total chunks", report.Total)
			if len(report.Skipped) > 0 {
				out.Warningf("%d files skipped", len(report.Skipped))
				for _, s := range report.Skipped {
					out.Status("", fmt.Sprintf("  - %s: %s", s.Path, s.Reason))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Clear the HR index before ingesting")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print plain progress lines instead of the interactive display")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored progress output")
	return cmd
}

func uiStage(s ingest.Stage) ui.Stage {
	switch s {
	case ingest.StageEmbed:
		return ui.StageEmbed
	case ingest.StageSave:
		return ui.StageSave
	default:
		return ui.StageExtract
	}
}
