// Package cmd provides the CLI commands for onedesk.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/onedesk/internal/app"
	"github.com/Aman-CERP/onedesk/internal/config"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/logging"
	"github.com/Aman-CERP/onedesk/internal/profiling"
	"github.com/Aman-CERP/onedesk/pkg/version"
)

// skipConfigAnnotation marks commands that must run without a valid config.
const skipConfigAnnotation = "onedesk/skip-config"

// globals holds persistent flag values and per-invocation state.
type globals struct {
	configPath string
	workDir    string
	debug      bool
	logFile    string
	profile    profiling.Options

	cfg            *config.Config
	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the onedesk CLI.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "onedesk",
		Short: "HR policy Q&A and meeting summaries over a local vector index",
		Long: `onedesk answers HR policy questions from a folder of PDF and text
documents, and summarizes meeting transcripts into a searchable archive.

Run 'onedesk ingest' once to index the policy folder, then 'onedesk serve'
to start the HTTP API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return g.teardown()
		},
	}
	cmd.SetVersionTemplate("onedesk version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to onedesk.yaml (default: ./onedesk.yaml if present)")
	cmd.PersistentFlags().StringVar(&g.workDir, "dir", ".", "Directory holding onedesk.yaml and .env")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&g.logFile, "log-file", logging.DefaultLogPath(), "Log file path (empty logs to stderr only)")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newIngestCmd(g))
	cmd.AddCommand(newAskCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newSummarizeCmd(g))
	cmd.AddCommand(newIndexCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newLogsCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprint(os.Stderr, oderrors.FormatForCLI(err))
	}
	return err
}

// setup loads configuration, installs the logger and starts profiling.
func (g *globals) setup(cmd *cobra.Command) error {
	if cmd.Annotations[skipConfigAnnotation] == "" {
		cfg, err := config.Load(g.workDir, g.configPath)
		if err != nil {
			return err
		}
		g.cfg = cfg
	}

	logCfg := logging.DefaultConfig()
	logCfg.FilePath = g.logFile
	// Only the server mirrors logs to stderr; other commands keep the
	// terminal for their own output.
	logCfg.WriteToStderr = cmd.Name() == "serve" || g.debug
	if g.cfg != nil {
		logCfg.Level = g.cfg.Server.LogLevel
		if g.cfg.Server.Debug {
			logCfg.Level = "debug"
		}
	}
	if g.debug {
		logCfg.Level = "debug"
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	g.loggingCleanup = cleanup
	slog.Debug("cli_start", slog.String("command", cmd.CommandPath()), slog.String("version", version.Version))

	if g.profile.Enabled() {
		p, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.profiler = p
	}
	return nil
}

func (g *globals) teardown() error {
	err := g.profiler.Stop()
	g.profiler = nil
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
	return err
}

// openApp builds the application from the loaded configuration.
func (g *globals) openApp(ctx context.Context) (*app.App, error) {
	if g.cfg == nil {
		return nil, oderrors.InternalError("configuration not loaded", nil)
	}
	return app.New(ctx, g.cfg)
}
