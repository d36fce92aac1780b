package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/onedesk/internal/server"
	"github.com/Aman-CERP/onedesk/pkg/version"
)

func newServeCmd(g *globals) *cobra.Command {
	var (
		watch bool
		host  string
		port  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the One-Desk HTTP API.

Both indexes are loaded from the indices directory. With --watch, the HR
policy folder is watched and the HR index is rebuilt after changes settle.`,
		Example: `  onedesk serve
  onedesk serve --port 9000 --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("host") {
				g.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				g.cfg.Server.Port = port
			}

			ctx := cmd.Context()
			a, err := g.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.CheckDimensions(); err != nil {
				return err
			}

			srv := server.New(a.ServerOptions(version.Version))
			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error { return srv.Run(ctx) })
			if watch {
				eg.Go(func() error { return a.WatchHR(ctx) })
			}
			slog.Info("serve_ready",
				slog.String("addr", g.cfg.Server.Addr()),
				slog.Bool("watch", watch))
			return eg.Wait()
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Rebuild the HR index when the policy folder changes")
	cmd.Flags().StringVar(&host, "host", "", "Override server.host")
	cmd.Flags().IntVar(&port, "port", 0, "Override server.port")
	return cmd
}
