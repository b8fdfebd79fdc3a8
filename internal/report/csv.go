package report

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/boundary-compare/internal/metrics"
)

// CSVHeader is the column order of the detailed results table.
var CSVHeader = []string{
	"id",
	"name",
	"iou",
	"area_difference_pct",
	"hausdorff_distance",
	"symmetric_difference_area",
	"quality_category",
	"authoritative_area",
	"crowd_area",
}

// CSVRow formats one result in CSVHeader order. Floats keep full precision.
func CSVRow(r metrics.Result) []string {
	return []string{
		strconv.Itoa(r.ID),
		r.Name,
		formatFloat(r.IoU),
		formatFloat(r.AreaDifferencePct),
		formatFloat(r.HausdorffDistance),
		formatFloat(r.SymmetricDifferenceArea),
		string(r.Category),
		formatFloat(r.AuthoritativeArea),
		formatFloat(r.CrowdArea),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WriteCSV writes one row per scored municipality, sorted by identifier.
func WriteCSV(path string, results []metrics.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	sorted := append([]metrics.Result(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, r := range sorted {
		if err := w.Write(CSVRow(r)); err != nil {
			return eris.Wrapf(err, "report: write csv row %d", r.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "report: flush csv")
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}
