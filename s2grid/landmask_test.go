package s2grid

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestLoadLandMask(t *testing.T) {
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {}, "geometry": {
				"type": "Polygon",
				"coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]
			}},
			{"type": "Feature", "properties": {}, "geometry": {
				"type": "MultiPolygon",
				"coordinates": [
					[[[5,5],[6,5],[6,6],[5,6],[5,5]]],
					[[[8,8],[9,8],[9,9],[8,9],[8,8]]]
				]
			}}
		]
	}`)

	mask, err := LoadLandMask(data)
	if err != nil {
		t.Fatalf("Failed to load land mask, %v", err)
	}

	// The multipolygon feature explodes into its constituent polygons.
	if len(mask.Polygons) != 3 {
		t.Fatalf("loaded %d polygons, want 3", len(mask.Polygons))
	}
}

func TestLoadLandMask_RejectsNonPolygons(t *testing.T) {
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {}, "geometry": {
				"type": "Point", "coordinates": [0, 0]
			}}
		]
	}`)

	if _, err := LoadLandMask(data); err == nil {
		t.Fatal("expected an error for a point feature")
	}
}

func TestLoadLandMask_BadJSON(t *testing.T) {
	if _, err := LoadLandMask([]byte("not geojson")); err == nil {
		t.Fatal("expected an error for malformed input")
	}
}

func TestLandMask_UnionIsCached(t *testing.T) {
	mask := &LandMask{Polygons: []orb.Polygon{
		square(0, 0, 1, 1),
		square(5, 5, 6, 6),
	}}

	first, err := mask.Union()
	if err != nil {
		t.Fatalf("Failed to union land mask, %v", err)
	}

	second, err := mask.Union()
	if err != nil {
		t.Fatalf("Failed to union land mask on second call, %v", err)
	}

	if first != second {
		t.Fatal("expected the cached union geometry on the second call")
	}
}

func TestLandMask_UnionEmpty(t *testing.T) {
	mask := &LandMask{}
	if _, err := mask.Union(); err == nil {
		t.Fatal("expected an error for an empty land mask")
	}
}
