package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet names of the workbook.
const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

// WriteXLSX writes the detailed results and the category distribution to a
// workbook at path.
func WriteXLSX(path string, s *Summary) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := xlsx.NewFile()

	results, err := f.AddSheet(ResultsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add results sheet")
	}
	addStrings(results.AddRow(), CSVHeader)
	for _, r := range s.Results {
		row := results.AddRow()
		row.AddCell().SetInt(r.ID)
		row.AddCell().SetString(r.Name)
		row.AddCell().SetFloat(r.IoU)
		row.AddCell().SetFloat(r.AreaDifferencePct)
		row.AddCell().SetFloat(r.HausdorffDistance)
		row.AddCell().SetFloat(r.SymmetricDifferenceArea)
		row.AddCell().SetString(string(r.Category))
		row.AddCell().SetFloat(r.AuthoritativeArea)
		row.AddCell().SetFloat(r.CrowdArea)
	}

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	addStrings(summary.AddRow(), []string{"quality_category", "lower_bound", "count", "pct"})
	for _, cc := range s.Categories {
		row := summary.AddRow()
		row.AddCell().SetString(string(cc.Category))
		row.AddCell().SetFloat(cc.Lower)
		row.AddCell().SetInt(cc.Count)
		row.AddCell().SetFloat(cc.Pct)
	}
	kv := func(k string, v float64) {
		row := summary.AddRow()
		row.AddCell().SetString(k)
		row.AddCell().SetFloat(v)
	}
	summary.AddRow()
	kv("mean_iou", s.MeanIoU)
	kv("median_iou", s.MedianIoU)
	kv("mean_area_difference_pct", s.MeanAreaDiffPct)
	kv("mean_hausdorff_distance", s.MeanHausdorff)
	kv("max_hausdorff_distance", s.MaxHausdorff)

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addStrings(row *xlsx.Row, vals []string) {
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}
