// Package report aggregates comparison metrics and writes the text report,
// the detailed CSV table and the optional spreadsheet.
package report

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/sells-group/boundary-compare/internal/boundary"
	"github.com/sells-group/boundary-compare/internal/match"
	"github.com/sells-group/boundary-compare/internal/metrics"
)

// Options controls summary listings.
type Options struct {
	WorstN       int
	MissingLimit int
	Thresholds   metrics.Thresholds
}

// CategoryCount is the number and share of scored municipalities in one category.
type CategoryCount struct {
	Category metrics.Category
	Lower    float64
	Count    int
	Pct      float64
}

// Summary holds everything the text report shows. It is derived entirely from
// the run inputs and never mutated after Summarize returns.
type Summary struct {
	RunID       string
	GeneratedAt time.Time

	AuthoritativeCount int
	CrowdCount         int
	AuthoritativeDrops int
	CrowdDrops         int
	Matched            int
	Scored             int

	MeanIoU            float64
	MedianIoU          float64
	MeanAreaDiffPct    float64
	MeanSymDiffArea    float64
	MeanHausdorff      float64
	MaxHausdorff       float64
	TotalAuthArea      float64
	TotalCrowdArea     float64
	TotalAreaDeviation float64
	Categories         []CategoryCount
	Worst              []metrics.Result
	Results            []metrics.Result
	Unscored           []metrics.Unscored
	MissingInCrowd     []boundary.Ref
	MissingInAuth      []boundary.Ref
	Duplicates         []match.Duplicate
	NameDifferences    []match.NameDifference
	MissingLimit       int
	WorstN             int
}

// Input bundles the pipeline outputs Summarize consumes.
type Input struct {
	RunID         string
	GeneratedAt   time.Time
	Authoritative *boundary.Collection
	Crowd         *boundary.Collection
	Outcome       match.Outcome
	Results       []metrics.Result
	Unscored      []metrics.Unscored
}

// Summarize aggregates per-pair results into report statistics. Results are
// sorted by identifier in the returned summary.
func Summarize(in Input, opts Options) *Summary {
	results := append([]metrics.Result(nil), in.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	s := &Summary{
		RunID:           in.RunID,
		GeneratedAt:     in.GeneratedAt.UTC(),
		Matched:         len(in.Outcome.Pairs),
		Scored:          len(results),
		Results:         results,
		Unscored:        in.Unscored,
		MissingInCrowd:  in.Outcome.UnmatchedAuthoritative,
		MissingInAuth:   in.Outcome.UnmatchedCrowd,
		Duplicates:      in.Outcome.Duplicates,
		NameDifferences: in.Outcome.NameDifferences,
		MissingLimit:    opts.MissingLimit,
		WorstN:          opts.WorstN,
	}
	if in.Authoritative != nil {
		s.AuthoritativeCount = len(in.Authoritative.Records)
		s.AuthoritativeDrops = len(in.Authoritative.Dropped)
	}
	if in.Crowd != nil {
		s.CrowdCount = len(in.Crowd.Records)
		s.CrowdDrops = len(in.Crowd.Dropped)
	}

	counts := make(map[metrics.Category]int, len(metrics.Categories))
	var ious, areaDiffs, symDiffs, hausdorffs stats.Float64Data
	for _, r := range results {
		counts[r.Category]++
		ious = append(ious, r.IoU)
		areaDiffs = append(areaDiffs, r.AreaDifferencePct)
		symDiffs = append(symDiffs, r.SymmetricDifferenceArea)
		hausdorffs = append(hausdorffs, r.HausdorffDistance)
		s.TotalAuthArea += r.AuthoritativeArea
		s.TotalCrowdArea += r.CrowdArea
	}

	for _, c := range metrics.Categories {
		cc := CategoryCount{Category: c, Lower: opts.Thresholds.Lower(c), Count: counts[c]}
		if s.Scored > 0 {
			cc.Pct = float64(cc.Count) / float64(s.Scored) * 100
		}
		s.Categories = append(s.Categories, cc)
	}

	if s.Scored == 0 {
		return s
	}

	// Float64Data is non-empty here, so the stats calls cannot fail.
	s.MeanIoU, _ = ious.Mean()
	s.MedianIoU, _ = ious.Median()
	s.MeanAreaDiffPct, _ = areaDiffs.Mean()
	s.MeanSymDiffArea, _ = symDiffs.Mean()
	s.MeanHausdorff, _ = hausdorffs.Mean()
	s.MaxHausdorff, _ = hausdorffs.Max()
	if s.TotalAuthArea > 0 {
		s.TotalAreaDeviation = (s.TotalCrowdArea - s.TotalAuthArea) / s.TotalAuthArea * 100
	}

	s.Worst = worst(results, opts.WorstN)
	return s
}

// worst returns the n lowest-IoU results, ties broken by identifier.
func worst(results []metrics.Result, n int) []metrics.Result {
	if n <= 0 {
		return nil
	}
	sorted := append([]metrics.Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IoU != sorted[j].IoU {
			return sorted[i].IoU < sorted[j].IoU
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Count returns the count for category c.
func (s *Summary) Count(c metrics.Category) int {
	for _, cc := range s.Categories {
		if cc.Category == c {
			return cc.Count
		}
	}
	return 0
}
