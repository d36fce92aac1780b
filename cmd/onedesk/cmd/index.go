package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/onedesk/internal/embed"
	"github.com/Aman-CERP/onedesk/internal/output"
	"github.com/Aman-CERP/onedesk/internal/store"
)

func newIndexCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect or clear the vector indexes",
	}
	cmd.AddCommand(newIndexInfoCmd(g))
	cmd.AddCommand(newIndexClearCmd(g))
	return cmd
}

type indexReport struct {
	Indexes  []store.Info `json:"indexes"`
	Embedder embed.Info   `json:"embedder"`
	LLM      string       `json:"llm"`
}

func newIndexInfoCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show index sizes and the active embedder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report := indexReport{
				Indexes:  a.Indexes(),
				Embedder: embed.GetInfo(cmd.Context(), a.Embedder),
				LLM:      a.LLM.Model(),
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(report)
			}
			for _, ix := range report.Indexes {
				out.Header("Index " + ix.Name)
				out.KeyValue("chunks", ix.Count)
				out.KeyValue("dimensions", ix.Dimensions)
				out.KeyValue("backend", ix.Backend)
				out.KeyValue("path", ix.IndexPath)
				out.KeyValue("persisted", ix.Persisted)
				out.Newline()
			}
			out.Header("Backends")
			out.KeyValue("embedder", fmt.Sprintf("%s (%d dims)", report.Embedder.Model, report.Embedder.Dimensions))
			out.KeyValue("available", report.Embedder.Available)
			out.KeyValue("llm", report.LLM)
			if err := a.CheckDimensions(); err != nil {
				out.Newline()
				out.Warning(err.Error())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newIndexClearCmd(g *globals) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear <hr|meet>",
		Short: "Delete an index and its files",
		Long: `Delete an index and its files.

Clearing the meeting index discards every stored transcript; they cannot be
re-ingested from disk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			if !yes {
				out.Warningf("This deletes the %s index. Re-run with --yes to confirm.", args[0])
				return nil
			}
			return clearIndex(cmd.Context(), g, out, args[0])
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}

func clearIndex(ctx context.Context, g *globals, out *output.Writer, name string) error {
	a, err := g.openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ix, err := a.Index(name)
	if err != nil {
		return err
	}
	before := ix.Count()
	ix.Clear()
	out.Successf("Cleared index %s (%d chunks removed)", ix.Name(), before)
	return nil
}
