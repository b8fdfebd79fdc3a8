// Package boundary defines the municipality boundary record shared by the
// authoritative and crowd-sourced sources, plus the planar geometry helpers
// both sources need to build valid multipolygons in the Swiss LV95 grid.
package boundary

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrInvalidRecord marks a record that failed load-time validation.
var ErrInvalidRecord = errors.New("invalid boundary record")

// Record is one municipality boundary. Geometry is always an XY multipolygon
// in LV95 (EPSG:2056) once a Source has returned it.
type Record struct {
	ID       int
	Name     string
	Geometry *geom.MultiPolygon
	// SourceRef identifies the record in its upstream dataset (OSM relation id,
	// GeoPackage fid). Informational only.
	SourceRef string
}

// Ref is a lightweight identifier/name pair used in listings.
type Ref struct {
	ID   int
	Name string
}

// Ref returns the record's identifier and name.
func (r Record) Ref() Ref {
	return Ref{ID: r.ID, Name: r.Name}
}

// Validate checks the mandatory fields of a record.
func (r Record) Validate() error {
	if r.ID <= 0 {
		return eris.Wrapf(ErrInvalidRecord, "identifier %d is not positive", r.ID)
	}
	if r.Name == "" {
		return eris.Wrapf(ErrInvalidRecord, "identifier %d has no name", r.ID)
	}
	if r.Geometry == nil || r.Geometry.NumPolygons() == 0 {
		return eris.Wrapf(ErrInvalidRecord, "identifier %d has no polygon geometry", r.ID)
	}
	if r.Geometry.Layout() != geom.XY {
		return eris.Wrapf(ErrInvalidRecord, "identifier %d has layout %v, want XY", r.ID, r.Geometry.Layout())
	}
	return nil
}

// Rejection records why an upstream feature was dropped during load.
type Rejection struct {
	Ref    string
	Reason string
}

// Collection is the output of one source fetch.
type Collection struct {
	Source  string
	Records []Record
	Dropped []Rejection
}

// Add validates rec and either appends it or records it as dropped.
func (c *Collection) Add(rec Record) error {
	if err := rec.Validate(); err != nil {
		c.Drop(rec.SourceRef, err.Error())
		return err
	}
	c.Records = append(c.Records, rec)
	return nil
}

// Drop records a rejected upstream feature.
func (c *Collection) Drop(ref, reason string) {
	c.Dropped = append(c.Dropped, Rejection{Ref: ref, Reason: reason})
}

// Source produces a collection of boundary records.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (*Collection, error)
}
