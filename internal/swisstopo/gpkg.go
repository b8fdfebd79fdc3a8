package swisstopo

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/boundary-compare/internal/boundary"
	"github.com/sells-group/boundary-compare/internal/config"
)

// GeoPackage geometry blob flag bits.
const (
	gpkgFlagLittleEndian = 0x01
	gpkgFlagEmpty        = 0x20
)

// gpkgEnvelopeSize maps the envelope indicator (flag bits 1-3) to the number
// of envelope bytes following the header.
var gpkgEnvelopeSize = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// ReadGeoPackage reads the municipality layer of a GeoPackage.
func ReadGeoPackage(ctx context.Context, path string, cfg config.SwisstopoConfig) (*boundary.Collection, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	geomCol, srid, err := geometryColumn(ctx, db, cfg.Layer)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT rowid, %s, %s, %s FROM %s",
		quoteIdent(cfg.IDField), quoteIdent(cfg.NameField), quoteIdent(geomCol), quoteIdent(cfg.Layer))
	var args []any
	if cfg.TypeField != "" && cfg.ObjectType != "" {
		query += fmt.Sprintf(" WHERE %s = ?", quoteIdent(cfg.TypeField))
		args = append(args, cfg.ObjectType)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: query layer %s", cfg.Layer)
	}
	defer rows.Close() //nolint:errcheck

	coll := &boundary.Collection{Source: SourceName}
	for rows.Next() {
		var (
			fid  int64
			id   any
			name sql.NullString
			blob []byte
		)
		if err := rows.Scan(&fid, &id, &name, &blob); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan feature")
		}
		ref := "fid:" + strconv.FormatInt(fid, 10)

		bfs, err := anyToID(id)
		if err != nil {
			drop(coll, ref, err)
			continue
		}
		mp, err := decodeFeature(blob, srid)
		if err != nil {
			drop(coll, ref, err)
			continue
		}
		add(coll, boundary.Record{
			ID:        bfs,
			Name:      strings.TrimSpace(name.String),
			Geometry:  mp,
			SourceRef: ref,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "gpkg: iterate features")
	}
	return coll, nil
}

// geometryColumn looks up the geometry column and SRS of a feature table.
func geometryColumn(ctx context.Context, db *sql.DB, table string) (string, int, error) {
	var (
		col  string
		srid int
	)
	err := db.QueryRowContext(ctx,
		"SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE lower(table_name) = lower(?)",
		table,
	).Scan(&col, &srid)
	if eris.Is(err, sql.ErrNoRows) {
		return "", 0, eris.Errorf("gpkg: layer %q not registered", table)
	}
	if err != nil {
		return "", 0, eris.Wrap(err, "gpkg: read geometry columns")
	}
	return col, srid, nil
}

// decodeFeature turns a GeoPackage geometry blob into an LV95 multipolygon.
// The blob's own SRS id wins over the layer default when set.
func decodeFeature(blob []byte, layerSRID int) (*geom.MultiPolygon, error) {
	g, srid, err := DecodeGeometry(blob)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, eris.New("gpkg: empty geometry")
	}
	if srid <= 0 {
		srid = layerSRID
	}
	mp, err := boundary.ToMultiPolygon(g)
	if err != nil {
		return nil, err
	}
	return boundary.ToLV95(mp, srid)
}

// DecodeGeometry parses a GeoPackage binary geometry: the "GP" header, an
// optional envelope and a WKB body. A nil geometry is returned for blobs
// flagged empty.
func DecodeGeometry(blob []byte) (geom.T, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, eris.New("gpkg: missing GP magic")
	}
	flags := blob[3]

	var order binary.ByteOrder = binary.BigEndian
	if flags&gpkgFlagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(blob[4:8])))

	envelope, ok := gpkgEnvelopeSize[(flags>>1)&0x07]
	if !ok {
		return nil, 0, eris.Errorf("gpkg: invalid envelope indicator in flags 0x%02x", flags)
	}
	body := 8 + envelope
	if len(blob) < body {
		return nil, 0, eris.New("gpkg: truncated header")
	}
	if flags&gpkgFlagEmpty != 0 {
		return nil, srid, nil
	}

	g, err := wkb.Unmarshal(blob[body:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode wkb")
	}
	return g, srid, nil
}

func anyToID(v any) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case float64:
		if t != float64(int64(t)) {
			return 0, eris.Errorf("swisstopo: invalid identifier %v", t)
		}
		return int(t), nil
	case string:
		return parseID(t)
	case []byte:
		return parseID(string(t))
	case nil:
		return 0, eris.New("swisstopo: missing identifier")
	default:
		return 0, eris.Errorf("swisstopo: unsupported identifier type %T", v)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
