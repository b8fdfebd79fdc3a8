package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/boundary-compare/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "boundary-compare",
	Short: "Compare OpenStreetMap municipality boundaries against swissBOUNDARIES3D",
	Long: `Downloads the swisstopo swissBOUNDARIES3D municipality layer and the OpenStreetMap
administrative relations tagged with their BFS number, joins them on that number
and scores each pair by IoU, area difference, Hausdorff distance and symmetric
difference. Writes a text report, a per-municipality CSV table and a GeoJSON
export of the OpenStreetMap geometry.`,
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
	RunE: runCompare,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
