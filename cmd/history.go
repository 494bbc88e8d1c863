package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fer004/Sensores/internal/model"
	"github.com/fer004/Sensores/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [region]",
	Short: "List recent runs, or one region's values across runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.History)
		if err != nil {
			return eris.Wrap(err, "open history")
		}
		if st == nil {
			return eris.New("history is disabled (history.driver = none)")
		}
		defer st.Close() //nolint:errcheck

		if len(args) == 1 {
			points, err := st.RegionHistory(ctx, args[0], historyLimit)
			if err != nil {
				return eris.Wrap(err, "region history")
			}
			if len(points) == 0 {
				fmt.Fprintln(os.Stderr, "No history for region.")
				return nil
			}
			formatRegionHistory(os.Stdout, points)
			return nil
		}

		runs, err := st.ListRuns(ctx, historyLimit)
		if err != nil {
			return eris.Wrap(err, "list runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tPOLLUTANT\tPROFILE\tSENSORS\tREGIONS\tCONT\tINTERP\tNONE\tSKIPPED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t---------\t-------\t-------\t-------\t----\t------\t----\t-------\t--------")

	for _, r := range runs {
		dur := (time.Duration(r.DurationMs) * time.Millisecond).Round(time.Millisecond).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Pollutant,
			r.Profile,
			r.Sensors,
			r.Regions,
			r.Containment,
			r.Interpolated,
			r.NoData,
			r.Skipped,
			dur,
		)
	}
	_ = w.Flush()
}

func formatRegionHistory(out io.Writer, points []model.HistoryPoint) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tVALUE\tCATEGORY\tMETHOD")
	_, _ = fmt.Fprintln(w, "---\t-------\t-----\t--------\t------")

	for _, p := range points {
		value := "-"
		if p.Value != nil {
			value = fmt.Sprintf("%g", *p.Value)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(p.RunID),
			p.StartedAt.Format("2006-01-02 15:04"),
			value,
			p.Category,
			p.Method,
		)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", store.DefaultLimit, "maximum rows to show")
	rootCmd.AddCommand(historyCmd)
}
