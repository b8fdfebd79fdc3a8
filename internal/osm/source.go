package osm

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/boundary-compare/internal/boundary"
	"github.com/sells-group/boundary-compare/internal/config"
	"github.com/sells-group/boundary-compare/internal/fetcher"
)

// SourceName identifies this source in logs and collections.
const SourceName = "osm"

// Source queries Overpass for municipality relations. It implements
// boundary.Source.
type Source struct {
	cfg         config.OverpassConfig
	fetcher     fetcher.Fetcher
	geojsonPath string
}

// NewSource creates a Source. When geojsonPath is non-empty every assembled
// relation is also written there in WGS84.
func NewSource(cfg config.OverpassConfig, f fetcher.Fetcher, geojsonPath string) *Source {
	return &Source{cfg: cfg, fetcher: f, geojsonPath: geojsonPath}
}

// Name returns the source name.
func (s *Source) Name() string { return SourceName }

// Fetch runs the Overpass query and converts the returned relations.
func (s *Source) Fetch(ctx context.Context) (*boundary.Collection, error) {
	log := zap.L().With(
		zap.String("component", "osm.source"),
		zap.String("url", s.cfg.URL),
	)

	start := time.Now()
	body, err := s.fetcher.PostForm(ctx, s.cfg.URL, url.Values{"data": {BuildQuery(s.cfg)}})
	if err != nil {
		return nil, eris.Wrap(err, "osm: overpass query")
	}
	defer body.Close() //nolint:errcheck

	resp, err := fetcher.DecodeJSONObject[Response](body)
	if err != nil {
		return nil, eris.Wrap(err, "osm: decode overpass response")
	}
	// Overpass reports runtime failures such as timeouts in the remark while
	// still answering 200 with a truncated element list.
	if strings.Contains(strings.ToLower(resp.Remark), "error") {
		return nil, eris.Errorf("osm: overpass: %s", resp.Remark)
	}
	log.Info("overpass response received",
		zap.Int("elements", len(resp.Elements)),
		zap.Duration("duration", time.Since(start)),
	)

	coll, features := s.convert(resp.Elements)

	if s.geojsonPath != "" {
		if err := WriteGeoJSON(s.geojsonPath, features); err != nil {
			return nil, err
		}
		log.Info("crowd-sourced geometry exported", zap.String("path", s.geojsonPath), zap.Int("features", len(features)))
	}

	log.Info("crowd-sourced boundaries loaded",
		zap.Int("records", len(coll.Records)),
		zap.Int("dropped", len(coll.Dropped)),
	)
	return coll, nil
}

// convert assembles relations into LV95 records and WGS84 export features.
func (s *Source) convert(elements []Element) (*boundary.Collection, []*geojson.Feature) {
	coll := &boundary.Collection{Source: SourceName}
	var features []*geojson.Feature

	for _, el := range elements {
		if el.Type != "relation" {
			continue
		}
		ref := "relation/" + strconv.FormatInt(el.ID, 10)
		tag := el.Tags[s.cfg.IDTag]
		name := strings.TrimSpace(el.Tags["name"])

		wgs, orphans, err := AssembleRelation(el)
		if err != nil {
			drop(coll, ref, tag, err)
			continue
		}
		if orphans > 0 {
			zap.L().Warn("osm: inner rings outside every outer ring",
				zap.String("ref", ref),
				zap.Int("orphans", orphans),
			)
		}
		features = append(features, feature(el, s.cfg.IDTag, tag, name, wgs))

		id, err := strconv.Atoi(strings.TrimSpace(tag))
		if err != nil {
			drop(coll, ref, tag, eris.Errorf("invalid %s %q", s.cfg.IDTag, tag))
			continue
		}
		lv95, err := boundary.ToLV95(wgs, boundary.SRIDWGS84)
		if err != nil {
			drop(coll, ref, tag, err)
			continue
		}
		if err := coll.Add(boundary.Record{ID: id, Name: name, Geometry: lv95, SourceRef: ref}); err != nil {
			zap.L().Warn("osm: dropping relation", zap.String("ref", ref), zap.Error(err))
		}
	}
	return coll, features
}

func drop(coll *boundary.Collection, ref, tag string, err error) {
	zap.L().Warn("osm: dropping relation",
		zap.String("ref", ref),
		zap.String("identifier", tag),
		zap.Error(err),
	)
	coll.Drop(ref, err.Error())
}

func feature(el Element, idTag, tag, name string, g *geom.MultiPolygon) *geojson.Feature {
	return &geojson.Feature{
		ID:       "relation/" + strconv.FormatInt(el.ID, 10),
		Geometry: g,
		Properties: map[string]interface{}{
			idTag:    tag,
			"name":   name,
			"osm_id": el.ID,
		},
	}
}

// WriteGeoJSON writes features as a FeatureCollection.
func WriteGeoJSON(path string, features []*geojson.Feature) error {
	if features == nil {
		features = []*geojson.Feature{}
	}
	data, err := json.Marshal(&geojson.FeatureCollection{Features: features})
	if err != nil {
		return eris.Wrap(err, "osm: encode geojson")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "osm: create directory for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "osm: write %s", path)
	}
	return nil
}
