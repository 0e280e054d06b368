package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartcampus/daymax/internal/calendar"
	"github.com/smartcampus/daymax/internal/sink"
)

func spansCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "spans",
		Short: "Print the local day spans the configured range is split into.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.config.Location()
			if err != nil {
				return err
			}
			start, stop, err := a.config.Range()
			if err != nil {
				return err
			}
			spans, err := calendar.NewSpanGenerator(start, stop, loc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for span := range spans.Spans() {
				if _, err := fmt.Fprintf(out, "%s\t%s\t%ds\n",
					sink.FormatTimestamp(span.Start, loc), sink.FormatTimestamp(span.End, loc), span.Seconds()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
