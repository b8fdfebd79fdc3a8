// Package metrics compares an authoritative and a crowd-sourced municipality
// polygon and buckets the overlap into quality categories.
package metrics

import (
	"github.com/rotisserie/eris"
)

// Category is the quality bucket derived from IoU.
type Category string

// Quality categories, best first.
const (
	Excellent Category = "Excellent"
	Good      Category = "Good"
	Fair      Category = "Fair"
	Poor      Category = "Poor"
)

// Categories lists every category in report order.
var Categories = []Category{Excellent, Good, Fair, Poor}

// Thresholds are the inclusive lower IoU bounds of the upper three categories.
type Thresholds struct {
	Excellent float64
	Good      float64
	Fair      float64
}

// DefaultThresholds returns the standard 0.98 / 0.95 / 0.90 table.
func DefaultThresholds() Thresholds {
	return Thresholds{Excellent: 0.98, Good: 0.95, Fair: 0.90}
}

// Validate checks the thresholds are in (0, 1] and strictly descending.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Excellent, t.Good, t.Fair} {
		if v <= 0 || v > 1 {
			return eris.Errorf("metrics: threshold %v outside (0, 1]", v)
		}
	}
	if !(t.Excellent > t.Good && t.Good > t.Fair) {
		return eris.Errorf("metrics: thresholds must descend, got %v / %v / %v", t.Excellent, t.Good, t.Fair)
	}
	return nil
}

// Lower returns the inclusive lower bound of c, or 0 for Poor.
func (t Thresholds) Lower(c Category) float64 {
	switch c {
	case Excellent:
		return t.Excellent
	case Good:
		return t.Good
	case Fair:
		return t.Fair
	default:
		return 0
	}
}

// Categorize returns the quality category for an IoU value.
func Categorize(iou float64, t Thresholds) Category {
	switch {
	case iou >= t.Excellent:
		return Excellent
	case iou >= t.Good:
		return Good
	case iou >= t.Fair:
		return Fair
	default:
		return Poor
	}
}
