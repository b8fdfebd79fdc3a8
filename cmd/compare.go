package main

import (
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/boundary-compare/internal/compare"
	"github.com/sells-group/boundary-compare/internal/config"
	"github.com/sells-group/boundary-compare/internal/fetcher"
	"github.com/sells-group/boundary-compare/internal/osm"
	"github.com/sells-group/boundary-compare/internal/swisstopo"
)

func init() {
	addCompareFlags(rootCmd.Flags())
}

func addCompareFlags(f *pflag.FlagSet) {
	f.String("output-dir", "", "directory for the text report, CSV and XLSX (overrides configured directories)")
	f.Int("worst", 0, "number of worst matches listed in the report (default from config)")
	f.String("xlsx", "", "also write the detailed results to this XLSX file")
	f.String("metrics", "", "also write Prometheus textfile metrics to this path")
	f.Bool("keep-temp", false, "keep the downloaded swissBOUNDARIES3D archive and extracted files")
}

func runCompare(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	log := zap.L().With(zap.String("command", "compare"))
	log.Info("starting boundary comparison",
		zap.String("archive", cfg.Swisstopo.ArchiveURL),
		zap.String("overpass", cfg.Overpass.URL),
	)

	f := newFetcher(cfg.Fetch)
	p := compare.New(cfg,
		swisstopo.NewSource(cfg.Swisstopo, f),
		osm.NewSource(cfg.Overpass, f, cfg.Output.GeoJSONPath),
	)

	summary, err := p.Run(ctx)
	if err != nil {
		return eris.Wrap(err, "compare")
	}

	log.Info("comparison finished",
		zap.Int("matched", summary.Matched),
		zap.Int("scored", summary.Scored),
		zap.Float64("mean_iou", summary.MeanIoU),
		zap.String("report", cfg.Output.ReportPath),
	)
	return nil
}

// applyFlags overlays command-line flags on the loaded configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()

	if dir, _ := flags.GetString("output-dir"); dir != "" {
		c.Output.ReportPath = filepath.Join(dir, filepath.Base(c.Output.ReportPath))
		c.Output.CSVPath = filepath.Join(dir, filepath.Base(c.Output.CSVPath))
		if c.Output.XLSXPath != "" {
			c.Output.XLSXPath = filepath.Join(dir, filepath.Base(c.Output.XLSXPath))
		}
	}
	if worst, _ := flags.GetInt("worst"); worst > 0 {
		c.Quality.WorstN = worst
	}
	if xlsx, _ := flags.GetString("xlsx"); xlsx != "" {
		c.Output.XLSXPath = xlsx
	}
	if metrics, _ := flags.GetString("metrics"); metrics != "" {
		c.Output.MetricsPath = metrics
	}
	if keep, _ := flags.GetBool("keep-temp"); keep {
		c.Swisstopo.KeepTemp = true
	}

	return c.Validate()
}

func newFetcher(fc config.FetchConfig) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         fc.UserAgent,
		Timeout:           time.Duration(fc.TimeoutSecs) * time.Second,
		MaxRetries:        fc.MaxRetries,
		RequestsPerSecond: fc.RequestsPerSecond,
	})
}
