package s2grid

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulsmith/gogeos/geos"
)

// LandMask is a read-only collection of land polygons in geographic
// coordinates. Per-polygon identity does not matter; only the geometric
// union is ever queried.
type LandMask struct {
	Polygons []orb.Polygon

	union *geos.Geometry
}

// LoadLandMask reads a GeoJSON FeatureCollection of land polygons.
// MultiPolygon features are exploded into their constituent polygons. Any
// non-polygonal feature geometry is an error, never silently coerced.
func LoadLandMask(data []byte) (*LandMask, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse land mask GeoJSON, %w", err)
	}

	mask := &LandMask{}
	for i, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mask.Polygons = append(mask.Polygons, g)
		case orb.MultiPolygon:
			mask.Polygons = append(mask.Polygons, g...)
		default:
			return nil, fmt.Errorf("land mask feature %d is %s, expected Polygon or MultiPolygon", i, f.Geometry.GeoJSONType())
		}
	}

	slog.Info("loaded land mask", "features", len(fc.Features), "polygons", len(mask.Polygons))
	return mask, nil
}

// Union returns the geometric union of all land polygons as one GEOS
// geometry, dissolving internal boundaries. The union is computed once and
// cached: it is queried against up to N tile footprints.
func (m *LandMask) Union() (*geos.Geometry, error) {
	if m.union != nil {
		return m.union, nil
	}

	if len(m.Polygons) == 0 {
		return nil, fmt.Errorf("land mask has no polygons")
	}

	geoms := make([]*geos.Geometry, len(m.Polygons))
	for i, poly := range m.Polygons {
		geom, err := geosFromOrb(poly)
		if err != nil {
			return nil, fmt.Errorf("land polygon %d: %w", i, err)
		}
		geoms[i] = geom
	}

	collection, err := geos.NewCollection(geos.MULTIPOLYGON, geoms...)
	if err != nil {
		return nil, fmt.Errorf("failed to collect land polygons, %w", err)
	}

	union, err := collection.UnaryUnion()
	if err != nil {
		return nil, fmt.Errorf("failed to union land polygons, %w", err)
	}

	m.union = union
	return union, nil
}
