// Package osm loads the crowd-sourced municipality boundaries from an
// Overpass API endpoint and assembles relation members into polygons.
package osm

import (
	"fmt"

	"github.com/sells-group/boundary-compare/internal/config"
)

// BuildQuery returns the Overpass QL selecting every administrative relation
// of the configured level inside the country that carries the identifier tag.
// Results are returned with inline member geometry.
func BuildQuery(cfg config.OverpassConfig) string {
	return fmt.Sprintf(`[out:json][timeout:%d];
area["ISO3166-1"=%q][admin_level=2]->.country;
(
  relation["boundary"="administrative"]["admin_level"="%d"][%q](area.country);
);
out geom;
`, cfg.QueryTimeout, cfg.CountryCode, cfg.AdminLevel, cfg.IDTag)
}
