package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/smartcampus/daymax/internal/compare"
	"github.com/smartcampus/daymax/internal/sink"
)

func compareCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <file> <file>",
		Short: "Compare two run output files day by day.",
		Long: `Compare two run output files day by day. Days where both files hold the
same maximum at different times are tie divergences and do not fail the
comparison; value and presence mismatches do.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ties, err := cmd.Flags().GetBool("ties")
			if err != nil {
				return err
			}
			loc, err := a.config.Location()
			if err != nil {
				return err
			}
			report, err := compare.Files(args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range report.Differences {
				if d.Outcome == compare.TieDivergence && !ties {
					continue
				}
				fmt.Fprintf(out, "day %d: %s\n  %s\n  %s\n", d.Index, d.Outcome, sink.FormatLine(d.A, loc), sink.FormatLine(d.B, loc))
			}
			fmt.Fprintln(out, report)
			if !report.Equivalent() {
				return errors.Errorf("%s and %s disagree", args[0], args[1])
			}
			return nil
		},
	}
	cmd.Flags().Bool("ties", false, "Also list days where only the time of the maximum differs")
	return cmd
}
