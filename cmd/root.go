package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fer004/Sensores/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sensores",
	Short: "Regional air quality estimates from PurpleAir sensors",
	Long:  "Polls PM sensors, estimates a value and an air quality category for every region of a shapefile, and publishes the result as GeoJSON and ArcGIS layers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
