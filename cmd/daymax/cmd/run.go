package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartcampus/daymax/internal/orchestrator"
)

func runCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load synthetic data and time every strategy against it.",
		Long: `Load synthetic data (unless generate is false) and run each configured
strategy for each sensor. Every run writes one line per day to
<outputDir>/<backend>_<strategy>_<sensor>.out and the session timings are
written to <outputDir>/daymax-result-<timestamp>.json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := orchestrator.NewSession(a.config).Run(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringSlice("strategies", nil, "Strategies to run; all the backend supports when empty")
	cmd.Flags().Bool("generate", true, "Drop, recreate and load the archive before querying")
	cmd.Flags().String("outputDir", "", "Directory for output files and the summary")
	cmd.Flags().String("metricsFile", "", "Write Prometheus metrics to this textfile")
	return cmd
}

func printSummary(out io.Writer, summary *orchestrator.Summary) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, in := range summary.Ingestion {
		fmt.Fprintf(w, "ingestion\t%d records\t%d ms\n", in.NRecords, in.DurationMs)
	}
	fmt.Fprintln(w, "sensor\tstrategy\tms\tqueries\tempty days\tagreement")
	for _, q := range summary.Queries {
		agreement := "reference"
		if q.Comparison != "" {
			agreement = q.Comparison
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", q.Sensor, q.Strategy, q.DurationMs, q.Queries, q.EmptyDays, agreement)
	}
	return w.Flush()
}
