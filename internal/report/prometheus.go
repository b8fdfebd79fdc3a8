package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// iouBuckets brackets the default category thresholds.
var iouBuckets = []float64{0.5, 0.8, 0.9, 0.95, 0.98, 0.99, 1}

// Registry builds a registry holding one run's gauges and the IoU histogram.
func Registry(s *Summary) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	population := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "boundary_compare_municipalities",
		Help: "Municipalities per population in the last comparison run",
	}, []string{"population"})
	category := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "boundary_compare_category_municipalities",
		Help: "Scored municipalities per quality category",
	}, []string{"category"})
	meanIoU := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "boundary_compare_iou_mean",
		Help: "Mean IoU over scored municipalities",
	})
	medianIoU := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "boundary_compare_iou_median",
		Help: "Median IoU over scored municipalities",
	})
	maxHausdorff := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "boundary_compare_hausdorff_max_meters",
		Help: "Largest Hausdorff distance in meters",
	})
	deviation := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "boundary_compare_area_deviation_pct",
		Help: "Total crowd-sourced area deviation from authoritative area in percent",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "boundary_compare_last_run_timestamp_seconds",
		Help: "Unix time the comparison report was generated",
	})
	iou := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "boundary_compare_iou",
		Help:    "Distribution of per-municipality IoU",
		Buckets: iouBuckets,
	})

	reg.MustRegister(population, category, meanIoU, medianIoU, maxHausdorff, deviation, lastRun, iou)

	population.WithLabelValues("authoritative").Set(float64(s.AuthoritativeCount))
	population.WithLabelValues("crowd").Set(float64(s.CrowdCount))
	population.WithLabelValues("matched").Set(float64(s.Matched))
	population.WithLabelValues("scored").Set(float64(s.Scored))
	population.WithLabelValues("unscored").Set(float64(len(s.Unscored)))
	population.WithLabelValues("missing_in_crowd").Set(float64(len(s.MissingInCrowd)))
	population.WithLabelValues("missing_in_authoritative").Set(float64(len(s.MissingInAuth)))
	population.WithLabelValues("duplicates").Set(float64(len(s.Duplicates)))

	for _, cc := range s.Categories {
		category.WithLabelValues(string(cc.Category)).Set(float64(cc.Count))
	}
	meanIoU.Set(s.MeanIoU)
	medianIoU.Set(s.MedianIoU)
	maxHausdorff.Set(s.MaxHausdorff)
	deviation.Set(s.TotalAreaDeviation)
	lastRun.Set(float64(s.GeneratedAt.Unix()))
	for _, r := range s.Results {
		iou.Observe(r.IoU)
	}
	return reg
}

// WritePrometheus writes the run metrics in the Prometheus text format for
// node_exporter's textfile collector.
func WritePrometheus(path string, s *Summary) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, Registry(s)); err != nil {
		return eris.Wrapf(err, "report: write metrics %s", path)
	}
	return nil
}
