package s2grid

import (
	"fmt"
	"log/slog"

	"github.com/im7mortal/UTM"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Tile is one cell of the Sentinel-2 MGRS tiling grid: a named footprint in
// geographic coordinates plus the same footprint re-expressed in the tile's
// local UTM zone.
type Tile struct {
	// Name is the MGRS tile code, e.g. "33UUT". Unique within the grid.
	Name string

	// Footprint is the tile outline in lon/lat. Tiles crossing the
	// antimeridian carry two disjoint polygons.
	Footprint orb.MultiPolygon

	// Center is the nominal tile center in lon/lat.
	Center orb.Point

	// EPSG identifies the tile's local UTM zone CRS (326xx north,
	// 327xx south).
	EPSG int

	// UTMWKT is the footprint in the tile's UTM CRS, as POLYGON WKT.
	UTMWKT string

	// UTMBounds is the axis-aligned bounding box of the UTM footprint,
	// derived from UTMWKT by ComputeUTMBounds.
	UTMBounds orb.Bound
}

// ComputeUTMBounds parses UTMWKT and stores its bounding box on the tile.
func (t *Tile) ComputeUTMBounds() error {
	poly, err := wkt.UnmarshalPolygon(t.UTMWKT)
	if err != nil {
		return fmt.Errorf("tile %s: failed to parse UTM WKT, %w", t.Name, err)
	}
	t.UTMBounds = poly.Bound()
	return nil
}

// ExpectedEPSG derives the UTM EPSG code implied by the tile's center
// coordinates. Centers outside the UTM latitude range (polar tiles, which
// use the UPS stereographic codes instead) return an error.
func (t *Tile) ExpectedEPSG() (int, error) {
	latLon := UTM.LatLon{
		Latitude:  t.Center.Y(),
		Longitude: t.Center.X(),
	}

	coord, err := latLon.FromLatLon()
	if err != nil {
		return 0, fmt.Errorf("tile %s: no UTM zone for center %v, %w", t.Name, t.Center, err)
	}

	if t.Center.Y() >= 0 {
		return 32600 + coord.ZoneNumber, nil
	}
	return 32700 + coord.ZoneNumber, nil
}

// Validate checks the tile's internal consistency: non-empty footprint, an
// EPSG code, a center inside the footprint bound, and agreement between the
// declared EPSG and the zone derived from the center. A zone disagreement is
// logged rather than fatal because tiles straddling a zone boundary are
// assigned to a single zone by the grid definition, and polar tiles fall
// outside UTM zone math entirely.
func (t *Tile) Validate() error {
	if len(t.Footprint) == 0 {
		return fmt.Errorf("tile %s has no footprint", t.Name)
	}

	if t.EPSG == 0 {
		return fmt.Errorf("tile %s has no EPSG code", t.Name)
	}

	if t.UTMWKT == "" {
		return fmt.Errorf("tile %s has no UTM footprint", t.Name)
	}

	bound := t.Footprint.Bound().Pad(1e-6)
	if !bound.Contains(t.Center) {
		return fmt.Errorf("tile %s center %v lies outside footprint bound %v", t.Name, t.Center, bound)
	}

	expected, err := t.ExpectedEPSG()
	if err != nil {
		slog.Debug("skipping EPSG cross-check", "tile", t.Name, "reason", err)
		return nil
	}

	if expected != t.EPSG {
		slog.Warn("EPSG disagrees with zone derived from center", "tile", t.Name, "epsg", t.EPSG, "derived", expected)
	}

	return nil
}

// Table is an ordered collection of tiles. Order is the source document
// order and must be preserved through every output: downstream consumers
// address rows by index.
type Table struct {
	Tiles []Tile

	names map[string]struct{}
}

func NewTable() *Table {
	return &Table{
		names: make(map[string]struct{}),
	}
}

// Append adds a tile to the end of the table. Duplicate tile names are an
// error.
func (t *Table) Append(tile Tile) error {
	if _, exists := t.names[tile.Name]; exists {
		return fmt.Errorf("duplicate tile name %s", tile.Name)
	}
	t.names[tile.Name] = struct{}{}
	t.Tiles = append(t.Tiles, tile)
	return nil
}

func (t *Table) Len() int {
	return len(t.Tiles)
}

// Footprints returns the tile footprints in table order.
func (t *Table) Footprints() []orb.MultiPolygon {
	footprints := make([]orb.MultiPolygon, len(t.Tiles))
	for i, tile := range t.Tiles {
		footprints[i] = tile.Footprint
	}
	return footprints
}

// Subset returns a new table holding the rows at the given indices, in the
// order the indices are given. It never reorders: callers pass ascending
// indices to preserve document order.
func (t *Table) Subset(indices []int) (*Table, error) {
	subset := NewTable()
	for _, i := range indices {
		if i < 0 || i >= len(t.Tiles) {
			return nil, fmt.Errorf("subset index %d out of range [0, %d)", i, len(t.Tiles))
		}
		if err := subset.Append(t.Tiles[i]); err != nil {
			return nil, err
		}
	}
	return subset, nil
}

// Bound returns the union of all footprint bounds.
func (t *Table) Bound() orb.Bound {
	var bound orb.Bound
	for i, tile := range t.Tiles {
		if i == 0 {
			bound = tile.Footprint.Bound()
			continue
		}
		bound = bound.Union(tile.Footprint.Bound())
	}
	return bound
}
