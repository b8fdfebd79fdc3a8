package osm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/boundary-compare/internal/config"
	"github.com/sells-group/boundary-compare/internal/fetcher"
)

func way(role string, pts ...[2]float64) Member {
	m := Member{Type: "way", Role: role}
	for _, p := range pts {
		m.Geometry = append(m.Geometry, LatLon{Lon: p[0], Lat: p[1]})
	}
	return m
}

func sampleResponse() Response {
	return Response{
		Version:   0.6,
		Generator: "Overpass API",
		Elements: []Element{
			{Type: "node", ID: 1},
			{
				Type: "relation", ID: 1686344,
				Tags: map[string]string{"name": "Bern", "swisstopo:BFS_NUMMER": "351"},
				Members: []Member{
					way("outer", [2]float64{7.40, 46.90}, [2]float64{7.50, 46.90}, [2]float64{7.50, 47.00}),
					// Reversed relative to the first way.
					way("outer", [2]float64{7.40, 46.90}, [2]float64{7.40, 47.00}, [2]float64{7.50, 47.00}),
					way("inner", [2]float64{7.44, 46.94}, [2]float64{7.46, 46.94}, [2]float64{7.46, 46.96}, [2]float64{7.44, 46.96}, [2]float64{7.44, 46.94}),
					{Type: "node", Ref: 42, Role: "admin_centre"},
				},
			},
			{
				Type: "relation", ID: 1682248,
				Tags: map[string]string{"name": "Zürich", "swisstopo:BFS_NUMMER": "261"},
				Members: []Member{
					way("", [2]float64{8.50, 47.35}, [2]float64{8.55, 47.35}, [2]float64{8.55, 47.40}, [2]float64{8.50, 47.40}, [2]float64{8.50, 47.35}),
				},
			},
			{
				Type: "relation", ID: 3,
				Tags: map[string]string{"name": "Offen", "swisstopo:BFS_NUMMER": "9"},
				Members: []Member{
					way("outer", [2]float64{7.0, 46.0}, [2]float64{7.1, 46.0}, [2]float64{7.1, 46.1}),
				},
			},
			{
				Type: "relation", ID: 4,
				Tags: map[string]string{"name": "Kaputt", "swisstopo:BFS_NUMMER": "abc"},
				Members: []Member{
					way("outer", [2]float64{6.0, 46.0}, [2]float64{6.1, 46.0}, [2]float64{6.1, 46.1}, [2]float64{6.0, 46.0}),
				},
			},
		},
	}
}

func testConfig(srvURL string) config.OverpassConfig {
	cfg := config.Default().Overpass
	cfg.URL = srvURL
	return cfg
}

func testFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     5 * time.Second,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})
}

func overpassServer(t *testing.T, resp Response, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil && calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		assert.NoError(t, err)
		assert.Contains(t, form.Get("data"), `["swisstopo:BFS_NUMMER"]`)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(config.Default().Overpass)
	assert.True(t, strings.HasPrefix(q, "[out:json][timeout:300];"))
	assert.Contains(t, q, `area["ISO3166-1"="CH"][admin_level=2]->.country;`)
	assert.Contains(t, q, `relation["boundary"="administrative"]["admin_level"="8"]["swisstopo:BFS_NUMMER"](area.country);`)
	assert.Contains(t, q, "out geom;")
}

func TestMergeRings_JoinsAndReverses(t *testing.T) {
	rings, err := MergeRings([][]float64{
		{0, 0, 1, 0},
		{1, 1, 1, 0},
		{0, 1, 1, 1},
		{0, 1, 0, 0},
	})
	require.NoError(t, err)
	require.Len(t, rings, 1)
	assert.Equal(t, []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}, rings[0])
}

func TestMergeRings_TwoRings(t *testing.T) {
	rings, err := MergeRings([][]float64{
		{10, 10, 11, 10, 11, 11},
		{0, 0, 1, 0, 1, 1, 0, 1},
		{11, 11, 10, 11, 10, 10},
		{0, 1, 0, 0},
	})
	require.NoError(t, err)
	require.Len(t, rings, 2)
	for _, r := range rings {
		assert.True(t, closed(r))
		assert.Len(t, r, 10)
	}
}

func TestMergeRings_ClosedPassThrough(t *testing.T) {
	sq := []float64{0, 0, 1, 0, 1, 1, 0, 0}
	rings, err := MergeRings([][]float64{sq, {5, 5}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{sq}, rings)
}

func TestMergeRings_Open(t *testing.T) {
	_, err := MergeRings([][]float64{{0, 0, 1, 0, 1, 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOpenRing))
}

func TestAssembleRelation(t *testing.T) {
	resp := sampleResponse()
	mp, orphans, err := AssembleRelation(resp.Elements[1])
	require.NoError(t, err)
	assert.Equal(t, 0, orphans)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())

	_, _, err = AssembleRelation(Element{Type: "relation", ID: 5})
	assert.Error(t, err)
}

func TestAssembleRelation_InnerTouchesOuter(t *testing.T) {
	outer := way("outer", [2]float64{7.40, 46.90}, [2]float64{7.50, 46.90}, [2]float64{7.50, 47.00}, [2]float64{7.40, 47.00}, [2]float64{7.40, 46.90})
	tests := []struct {
		name  string
		inner Member
	}{
		{"east edge", way("inner", [2]float64{7.50, 46.95}, [2]float64{7.48, 46.94}, [2]float64{7.48, 46.96}, [2]float64{7.50, 46.95})},
		{"north edge", way("inner", [2]float64{7.45, 47.00}, [2]float64{7.44, 46.98}, [2]float64{7.46, 46.98}, [2]float64{7.45, 47.00})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := Element{Type: "relation", ID: 7, Members: []Member{outer, tt.inner}}
			mp, orphans, err := AssembleRelation(el)
			require.NoError(t, err)
			assert.Equal(t, 0, orphans)
			require.Equal(t, 1, mp.NumPolygons())
			assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
		})
	}
}

func TestSourceFetch(t *testing.T) {
	var calls atomic.Int32
	srv := overpassServer(t, sampleResponse(), &calls)
	out := filepath.Join(t.TempDir(), "export", "osm_boundaries.geojson")

	src := NewSource(testConfig(srv.URL), testFetcher(), out)
	assert.Equal(t, "osm", src.Name())

	coll, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "429 is retried")

	require.Len(t, coll.Records, 2)
	assert.Equal(t, 351, coll.Records[0].ID)
	assert.Equal(t, "Bern", coll.Records[0].Name)
	assert.Equal(t, "relation/1686344", coll.Records[0].SourceRef)
	assert.Equal(t, 261, coll.Records[1].ID)
	assert.Len(t, coll.Dropped, 2)

	b := coll.Records[1].Geometry.Bounds()
	assert.InDelta(t, 2680000, b.Min(0), 5000)
	assert.InDelta(t, 1245000, b.Min(1), 5000)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
			Geometry   struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "351", fc.Features[0].Properties["swisstopo:BFS_NUMMER"])
	assert.Equal(t, float64(1686344), fc.Features[0].Properties["osm_id"])
	assert.Equal(t, "MultiPolygon", fc.Features[0].Geometry.Type)
}

func TestSourceFetch_RemarkError(t *testing.T) {
	resp := sampleResponse()
	resp.Remark = "runtime error: Query timed out in \"query\" at line 4 after 301 seconds."
	srv := overpassServer(t, resp, nil)

	_, err := NewSource(testConfig(srv.URL), testFetcher(), "").Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestSourceFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewSource(testConfig(srv.URL), testFetcher(), "").Fetch(context.Background())
	assert.Error(t, err)
}

func TestSourceFetch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json")) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewSource(testConfig(srv.URL), testFetcher(), "").Fetch(context.Background())
	assert.Error(t, err)
}
