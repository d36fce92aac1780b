package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/output"
	"github.com/Aman-CERP/onedesk/internal/telemetry"
)

func newStatsCmd(g *globals) *cobra.Command {
	var (
		days       int
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query statistics recorded by ask and meeting search",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 {
				return oderrors.ValidationError(fmt.Sprintf("--days must be at least 1, got %d", days), nil)
			}
			out := output.New(cmd.OutOrStdout())

			path := g.cfg.Telemetry.Path
			if _, err := os.Stat(path); err != nil {
				if !g.cfg.Telemetry.Enabled {
					out.Warning("Telemetry is disabled (telemetry.enabled: false)")
				} else {
					out.Warning("No queries recorded yet")
				}
				return nil
			}

			db, err := telemetry.OpenSQLite(path)
			if err != nil {
				return oderrors.IOError("cannot open telemetry database", err).WithDetail("path", path)
			}
			defer func() { _ = db.Close() }()

			now := time.Now()
			from := now.AddDate(0, 0, -(days - 1)).Format(telemetry.DateLayout)
			report, err := db.Report(from, now.Format(telemetry.DateLayout), limit)
			if err != nil {
				return oderrors.IOError("cannot read telemetry database", err).WithDetail("path", path)
			}

			if jsonOutput {
				return out.JSON(report)
			}
			printReport(out, report)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of top terms and zero-result queries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

var latencyOrder = []telemetry.LatencyBucket{
	telemetry.BucketP100,
	telemetry.BucketP500,
	telemetry.BucketP1000,
	telemetry.BucketP5000,
	telemetry.BucketP10000,
}

func printReport(out *output.Writer, r *telemetry.Report) {
	out.Header(fmt.Sprintf("Queries %s to %s", r.From, r.To))
	out.KeyValue("total", r.Total())

	kinds := make([]string, 0, len(r.KindCounts))
	for k := range r.KindCounts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		out.KeyValue(k, r.KindCounts[telemetry.QueryKind(k)])
	}

	if len(r.LatencyDistribution) > 0 {
		out.Newline()
		out.Header("Latency")
		for _, b := range latencyOrder {
			if n, ok := r.LatencyDistribution[b]; ok {
				out.KeyValue(string(b), n)
			}
		}
	}

	if len(r.TopTerms) > 0 {
		out.Newline()
		out.Header("Top terms")
		for _, tc := range r.TopTerms {
			out.KeyValue(tc.Term, tc.Count)
		}
	}

	if len(r.ZeroResultQueries) > 0 {
		out.Newline()
		out.Header("Queries with no results")
		for _, z := range r.ZeroResultQueries {
			out.Statusf("-", "%s (%s, %s)", z.Query, z.Kind, z.Timestamp.Local().Format(time.DateTime))
		}
	}
}
