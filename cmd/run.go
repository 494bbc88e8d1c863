package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runPollutant string
	runProfile   string
	runPrecision int
	runOffline   bool
	runNoHistory bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Estimate air quality for every region once",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)

		env, err := initPipeline(cmd.Context(), "run", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Pipeline.Run(cmd.Context())
		if err != nil {
			return err
		}

		for _, s := range out.Result.Skipped {
			zap.L().Warn("region skipped",
				zap.Int("index", s.Index),
				zap.String("name", s.Name),
				zap.String("reason", s.Reason),
			)
		}

		_, _ = fmt.Fprintf(os.Stdout, "run %s: %d regions (%d containment, %d interpolation, %d no data), %d skipped, %d sensors\n",
			truncateID(out.Run.ID),
			out.Run.Regions,
			out.Run.Containment,
			out.Run.Interpolated,
			out.Run.NoData,
			out.Run.Skipped,
			out.Run.Sensors,
		)
		return nil
	},
}

// applyRunFlags overrides config values with flags the user set explicitly.
func applyRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("pollutant") {
		cfg.Estimate.Pollutant = runPollutant
	}
	if flags.Changed("profile") {
		cfg.Estimate.Profile = runProfile
	}
	if flags.Changed("precision") {
		cfg.Estimate.RoundingPrecision = runPrecision
	}
	if flags.Changed("offline") {
		cfg.Input.Offline = runOffline
	}
	if flags.Changed("no-history") && runNoHistory {
		cfg.History.Driver = "none"
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runPollutant, "pollutant", "", "pollutant to estimate: pm1_0 or pm2_5 (default from config)")
	cmd.Flags().StringVar(&runProfile, "profile", "", "classification profile name (default from config)")
	cmd.Flags().IntVar(&runPrecision, "precision", 0, "decimal places for reported values (default from config)")
	cmd.Flags().BoolVar(&runOffline, "offline", false, "use readings from the inventory file instead of polling the API")
	cmd.Flags().BoolVar(&runNoHistory, "no-history", false, "do not append the run to the history log")
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
