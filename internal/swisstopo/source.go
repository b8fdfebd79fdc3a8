// Package swisstopo loads the authoritative municipality boundaries from a
// swissBOUNDARIES3D release, either the GeoPackage or the shapefile edition.
package swisstopo

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/boundary-compare/internal/boundary"
	"github.com/sells-group/boundary-compare/internal/config"
	"github.com/sells-group/boundary-compare/internal/fetcher"
)

// SourceName identifies this source in logs and collections.
const SourceName = "swisstopo"

// Supported archive editions.
const (
	FormatGeoPackage = "gpkg"
	FormatShapefile  = "shp"
)

// Source downloads a swissBOUNDARIES3D archive and reads its municipality
// layer. It implements boundary.Source.
type Source struct {
	cfg     config.SwisstopoConfig
	fetcher fetcher.Fetcher
}

// NewSource creates a Source that downloads through f.
func NewSource(cfg config.SwisstopoConfig, f fetcher.Fetcher) *Source {
	return &Source{cfg: cfg, fetcher: f}
}

// Name returns the source name.
func (s *Source) Name() string { return SourceName }

// Fetch downloads the archive into a scratch directory, extracts it and
// reads the configured layer. The scratch directory is removed on return
// unless KeepTemp is set.
func (s *Source) Fetch(ctx context.Context) (*boundary.Collection, error) {
	log := zap.L().With(
		zap.String("component", "swisstopo.source"),
		zap.String("url", s.cfg.ArchiveURL),
	)

	workDir, err := os.MkdirTemp(s.cfg.TempDir, "swissboundaries-*")
	if err != nil {
		return nil, eris.Wrap(err, "swisstopo: create scratch dir")
	}
	if s.cfg.KeepTemp {
		log.Info("keeping scratch directory", zap.String("dir", workDir))
	} else {
		defer func() {
			if rmErr := os.RemoveAll(workDir); rmErr != nil {
				log.Warn("remove scratch directory", zap.String("dir", workDir), zap.Error(rmErr))
			}
		}()
	}

	start := time.Now()
	archive := filepath.Join(workDir, "archive.zip")
	n, err := s.fetcher.DownloadToFile(ctx, s.cfg.ArchiveURL, archive)
	if err != nil {
		return nil, eris.Wrap(err, "swisstopo: download archive")
	}
	log.Info("archive downloaded", zap.Int64("bytes", n), zap.Duration("duration", time.Since(start)))

	files, err := fetcher.ExtractZIP(archive, filepath.Join(workDir, "data"))
	if err != nil {
		return nil, eris.Wrap(err, "swisstopo: extract archive")
	}

	path, err := s.member(files)
	if err != nil {
		return nil, err
	}
	log.Info("reading layer", zap.String("path", path), zap.String("layer", s.cfg.Layer))

	return ReadFile(ctx, path, s.cfg)
}

// member picks the archive member holding the municipality layer.
func (s *Source) member(files []string) (string, error) {
	switch s.format() {
	case FormatGeoPackage:
		p, err := fetcher.FindBySuffix(files, ".gpkg")
		return p, eris.Wrap(err, "swisstopo: locate geopackage")
	case FormatShapefile:
		p, err := fetcher.FindBySuffix(files, s.cfg.Layer+".shp")
		return p, eris.Wrap(err, "swisstopo: locate shapefile")
	default:
		return "", eris.Errorf("swisstopo: unsupported format %q", s.cfg.Format)
	}
}

func (s *Source) format() string {
	return strings.ToLower(s.cfg.Format)
}

// ReadFile reads a local GeoPackage or shapefile, chosen by extension.
func ReadFile(ctx context.Context, path string, cfg config.SwisstopoConfig) (*boundary.Collection, error) {
	var (
		coll *boundary.Collection
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpkg":
		coll, err = ReadGeoPackage(ctx, path, cfg)
	case ".shp":
		coll, err = ReadShapefile(path, cfg)
	default:
		return nil, eris.Errorf("swisstopo: unsupported file %s", path)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("authoritative boundaries loaded",
		zap.String("component", "swisstopo.source"),
		zap.Int("records", len(coll.Records)),
		zap.Int("dropped", len(coll.Dropped)),
	)
	return coll, nil
}

// add validates and stores one feature, logging rejections.
func add(coll *boundary.Collection, rec boundary.Record) {
	if err := coll.Add(rec); err != nil {
		zap.L().Warn("swisstopo: dropping feature",
			zap.String("ref", rec.SourceRef),
			zap.Error(err),
		)
	}
}

// drop records a feature that could not be converted.
func drop(coll *boundary.Collection, ref string, err error) {
	zap.L().Warn("swisstopo: dropping feature", zap.String("ref", ref), zap.Error(err))
	coll.Drop(ref, err.Error())
}

// parseID converts an attribute to a municipality number. swissBOUNDARIES3D
// stores it as an integer, but some editions write it as a decimal.
func parseID(v string) (int, error) {
	v = strings.TrimSpace(v)
	if id, err := strconv.Atoi(v); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int(f)) {
		return 0, eris.Errorf("swisstopo: invalid identifier %q", v)
	}
	return int(f), nil
}
