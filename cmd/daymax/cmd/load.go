package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartcampus/daymax/internal/orchestrator"
)

func loadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Drop and recreate the archive, then load synthetic data into it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := orchestrator.NewSession(a.config).Load(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "loaded %d records into %s in %d ms\n",
				result.NRecords, a.config.Database.Backend, result.DurationMs)
			return err
		},
	}
	cmd.Flags().String("metricsFile", "", "Write Prometheus metrics to this textfile")
	cmd.Flags().Duration("interval", 0, "Archive interval of the generated records")
	return cmd
}
