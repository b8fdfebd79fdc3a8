package compare

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/boundary-compare/internal/boundary"
	"github.com/sells-group/boundary-compare/internal/config"
	"github.com/sells-group/boundary-compare/internal/metrics"
)

type fakeSource struct {
	name  string
	coll  *boundary.Collection
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(context.Context) (*boundary.Collection, error) {
	f.calls++
	return f.coll, f.err
}

func rect(x, y, w, h float64) *geom.MultiPolygon {
	return geom.NewMultiPolygonFlat(geom.XY, []float64{
		x, y, x + w, y, x + w, y + h, x, y + h, x, y,
	}, [][]int{{10}})
}

func record(id int, name string, g *geom.MultiPolygon) boundary.Record {
	return boundary.Record{ID: id, Name: name, Geometry: g}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Output.ReportPath = filepath.Join(dir, "reports", "comparison_report.txt")
	cfg.Output.CSVPath = filepath.Join(dir, "reports", "detailed_results.csv")
	cfg.Output.GeoJSONPath = filepath.Join(dir, "osm_boundaries.geojson")
	cfg.Output.XLSXPath = ""
	return cfg
}

func fixedOptions() []Option {
	return []Option{
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC) }),
		WithRunID(func() string { return "run-test" }),
	}
}

func sources() (*fakeSource, *fakeSource) {
	auth := &fakeSource{name: "swisstopo", coll: &boundary.Collection{Source: "swisstopo", Records: []boundary.Record{
		record(351, "Bern", rect(0, 0, 100, 100)),
		record(261, "Zürich", rect(1000, 0, 100, 100)),
		record(355, "Köniz", rect(2000, 0, 100, 100)),
		record(7, "Flach", geom.NewMultiPolygonFlat(geom.XY, []float64{0, 0, 10, 0, 20, 0, 0, 0}, [][]int{{8}})),
	}}}
	crowd := &fakeSource{name: "osm", coll: &boundary.Collection{Source: "osm", Records: []boundary.Record{
		record(351, "Bern", rect(0, 0, 100, 100)),
		// 90x100 inside 100x100: IoU 0.9.
		record(261, "Zürich", rect(1000, 0, 90, 100)),
		record(7, "Flach", rect(0, 0, 1, 1)),
		record(9999, "Nirgendwo", rect(5000, 0, 10, 10)),
	}}}
	return auth, crowd
}

func TestPipelineRun(t *testing.T) {
	cfg := testConfig(t)
	auth, crowd := sources()

	s, err := New(cfg, auth, crowd, fixedOptions()...).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-test", s.RunID)
	assert.Equal(t, 4, s.AuthoritativeCount)
	assert.Equal(t, 3, s.Matched)
	assert.Equal(t, 2, s.Scored)
	require.Len(t, s.Unscored, 1)
	assert.Equal(t, 7, s.Unscored[0].ID)
	assert.Equal(t, []boundary.Ref{{ID: 355, Name: "Köniz"}}, s.MissingInCrowd)
	assert.Equal(t, []boundary.Ref{{ID: 9999, Name: "Nirgendwo"}}, s.MissingInAuth)
	assert.InDelta(t, 0.95, s.MeanIoU, 1e-9)
	assert.Equal(t, 1, s.Count(metrics.Excellent))
	assert.Equal(t, 1, s.Count(metrics.Fair))

	report, err := os.ReadFile(cfg.Output.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "Generated: 2025-06-01 03:00:00 UTC")
	assert.Contains(t, string(report), "Mean IoU: 0.9500")

	f, err := os.Open(cfg.Output.CSVPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "261", rows[1][0])
	assert.Equal(t, "351", rows[2][0])

	_, err = os.Stat(filepath.Join(filepath.Dir(cfg.Output.ReportPath), "detailed_results.xlsx"))
	assert.True(t, os.IsNotExist(err))
}

func TestPipelineRun_LogsPhases(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	cfg := testConfig(t)
	auth, crowd := sources()
	_, err := New(cfg, auth, crowd, fixedOptions()...).Run(context.Background())
	require.NoError(t, err)

	var phases []string
	for _, e := range logs.FilterMessage("pipeline: phase complete").All() {
		phases = append(phases, e.ContextMap()["phase"].(string))
		if e.ContextMap()["phase"] == "match" {
			assert.Equal(t, int64(3), e.ContextMap()["pairs"])
			assert.Equal(t, int64(1), e.ContextMap()["missing_in_crowd"])
		}
	}
	assert.Equal(t, []string{"fetch_authoritative", "fetch_crowd", "match", "score", "write_reports"}, phases)
}

func TestPipelineRun_WritesXLSX(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.XLSXPath = filepath.Join(t.TempDir(), "detailed_results.xlsx")
	auth, crowd := sources()

	_, err := New(cfg, auth, crowd, fixedOptions()...).Run(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(cfg.Output.XLSXPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestPipelineRun_WritesMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.MetricsPath = filepath.Join(t.TempDir(), "boundary_compare.prom")
	auth, crowd := sources()

	_, err := New(cfg, auth, crowd, fixedOptions()...).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Output.MetricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `boundary_compare_municipalities{population="unscored"} 1`)
	assert.Contains(t, string(data), `boundary_compare_category_municipalities{category="Fair"} 1`)
}

func TestPipelineRun_AuthoritativeFailureWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	auth, crowd := sources()
	auth.err = errors.New("connection reset")

	_, err := New(cfg, auth, crowd, fixedOptions()...).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch swisstopo")
	assert.Equal(t, 0, crowd.calls, "crowd source is not queried after an authoritative failure")

	_, statErr := os.Stat(cfg.Output.ReportPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipelineRun_CrowdFailure(t *testing.T) {
	cfg := testConfig(t)
	auth, crowd := sources()
	crowd.err = errors.New("overpass timeout")

	_, err := New(cfg, auth, crowd, fixedOptions()...).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch osm")
	assert.Equal(t, 1, auth.calls)

	_, statErr := os.Stat(cfg.Output.CSVPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipelineRun_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	auth, crowd := sources()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg, auth, crowd, fixedOptions()...).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPipelineRun_EmptySources(t *testing.T) {
	cfg := testConfig(t)
	auth := &fakeSource{name: "swisstopo", coll: &boundary.Collection{}}
	crowd := &fakeSource{name: "osm", coll: &boundary.Collection{}}

	s, err := New(cfg, auth, crowd, fixedOptions()...).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Scored)

	f, err := os.Open(cfg.Output.CSVPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}
