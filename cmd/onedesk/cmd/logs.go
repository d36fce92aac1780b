package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/logging"
	"github.com/Aman-CERP/onedesk/internal/output"
)

func newLogsCmd(g *globals) *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show or follow the onedesk log file",
		Long: `Show the last lines of the JSON log written by onedesk, formatted for
reading. The file is the one named by --log-file.

Examples:
  onedesk logs                  # last 50 lines
  onedesk logs -f               # follow new entries
  onedesk logs --level warn     # warnings and errors only
  onedesk logs --filter ask_    # lines matching a regex`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := g.logFile
			if path == "" {
				return oderrors.ValidationError("no log file configured", nil).
					WithSuggestion("pass --log-file with the path the server logs to")
			}
			if _, err := os.Stat(path); err != nil {
				return oderrors.New(oderrors.ErrCodeFileNotFound, "log file not found: "+path, err).
					WithSuggestion("start 'onedesk serve' or run any command to create it")
			}

			var pattern *regexp.Regexp
			if filter != "" {
				p, err := regexp.Compile(filter)
				if err != nil {
					return oderrors.ValidationError("invalid --filter pattern", err)
				}
				pattern = p
			}

			stdout := cmd.OutOrStdout()
			viewer := logging.NewViewer(logging.ViewerConfig{
				Level:   level,
				Pattern: pattern,
				Color:   !noColor && output.IsTerminal(stdout) && os.Getenv("NO_COLOR") == "",
			}, stdout)

			if follow {
				return followLog(cmd.Context(), viewer, path, stdout)
			}
			entries, err := viewer.Tail(path, lines)
			if err != nil {
				return oderrors.IOError("cannot read log file", err).WithDetail("path", path)
			}
			viewer.Print(entries)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn or error")
	cmd.Flags().StringVar(&filter, "filter", "", "Only show lines matching this regex")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

func followLog(ctx context.Context, viewer *logging.Viewer, path string, w io.Writer) error {
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, entries) }()

	for {
		select {
		case e := <-entries:
			_, _ = fmt.Fprintln(w, viewer.FormatEntry(e))
		case err := <-errCh:
			return err
		}
	}
}
