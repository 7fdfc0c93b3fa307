package s2grid

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulsmith/gogeos/geos"
)

// Predicate names the spatial relationship tested between a tile footprint
// and a constituent land polygon.
type Predicate string

const (
	Intersects Predicate = "intersects"
	Contains   Predicate = "contains"
	Within     Predicate = "within"
	Covers     Predicate = "covers"
	CoveredBy  Predicate = "coveredby"
	Touches    Predicate = "touches"
	Overlaps   Predicate = "overlaps"
)

// ParsePredicate maps a flag value to a Predicate.
func ParsePredicate(s string) (Predicate, error) {
	switch Predicate(s) {
	case Intersects, Contains, Within, Covers, CoveredBy, Touches, Overlaps:
		return Predicate(s), nil
	default:
		return "", fmt.Errorf("unknown predicate %q", s)
	}
}

// R-tree rectangles need a positive extent on both axes; degenerate bounds
// are widened by this much.
const minRectSpan = 1e-9

// gridEntry is one indexed tile footprint. The R-tree sees only the
// rectangular bound; the exact geometry is kept for the predicate pass.
type gridEntry struct {
	index int
	rect  *rtreego.Rect
	geom  *geos.Geometry
}

func (e *gridEntry) Bounds() *rtreego.Rect {
	return e.rect
}

// GridIndex is a bulk-loaded R-tree over tile footprints. Building it costs
// O(N log N) once; each land polygon query then retrieves candidates in
// O(log N + k) instead of scanning all N tiles.
type GridIndex struct {
	tree *rtreego.Rtree
	size int
}

// NewGridIndex bulk-loads an index from the footprints, which are addressed
// by their position in the slice.
func NewGridIndex(footprints []orb.MultiPolygon) (*GridIndex, error) {
	spatials := make([]rtreego.Spatial, 0, len(footprints))
	for i, fp := range footprints {
		geom, err := geosFromOrb(fp)
		if err != nil {
			return nil, fmt.Errorf("footprint %d: %w", i, err)
		}

		rect, err := rectFromBound(fp.Bound())
		if err != nil {
			return nil, fmt.Errorf("footprint %d: %w", i, err)
		}

		spatials = append(spatials, &gridEntry{index: i, rect: rect, geom: geom})
	}

	return &GridIndex{
		tree: rtreego.NewTree(2, 25, 50, spatials...),
		size: len(spatials),
	}, nil
}

// Len returns the number of indexed footprints.
func (idx *GridIndex) Len() int {
	return idx.size
}

// Query returns the deduplicated, ascending indices of footprints that
// satisfy the predicate against at least one constituent polygon of the
// land union.
//
// The union is decomposed into its constituent simple polygons and each
// part is queried independently, because the R-tree accepts only a single
// rectangular query window. For intersects, per-part results union to
// exactly the whole-geometry answer. For other predicates they need not: a
// footprint spanning two parts can be within the union without being within
// any single part. Per-part evaluation is the documented contract here.
func (idx *GridIndex) Query(mask *LandMask, pred Predicate) ([]int, error) {
	if idx.size == 0 || len(mask.Polygons) == 0 {
		return []int{}, nil
	}

	union, err := mask.Union()
	if err != nil {
		return nil, err
	}

	parts, err := decompose(union)
	if err != nil {
		return nil, err
	}

	indices := make([]int, 0)
	for _, part := range parts {
		matches, err := idx.queryPart(part, pred)
		if err != nil {
			return nil, err
		}
		indices = append(indices, matches...)
	}
	runtime.KeepAlive(union)

	// A single-part union cannot produce cross-part duplicates.
	if len(parts) > 1 {
		indices = dedupe(indices)
	}

	// rtreego makes no ordering promise, so the sort is unconditional.
	sort.Ints(indices)

	return indices, nil
}

// queryPart runs one constituent land polygon against the index: an
// envelope search for candidates, then the exact predicate on each
// candidate. The intersects path uses a GEOS prepared geometry since the
// same polygon is tested against every candidate.
func (idx *GridIndex) queryPart(part *geos.Geometry, pred Predicate) ([]int, error) {
	bound, err := orbFromGeos(part)
	if err != nil {
		return nil, err
	}

	rect, err := rectFromBound(bound.Bound())
	if err != nil {
		return nil, err
	}

	var prepared *geos.PGeometry
	if pred == Intersects {
		prepared = part.Prepare()
	}

	var matches []int
	for _, candidate := range idx.tree.SearchIntersect(rect) {
		entry := candidate.(*gridEntry)

		var ok bool
		if prepared != nil {
			ok, err = prepared.Intersects(entry.geom)
		} else {
			ok, err = evalPredicate(entry.geom, part, pred)
		}
		if err != nil {
			return nil, fmt.Errorf("predicate %s failed on footprint %d, %w", pred, entry.index, err)
		}

		if ok {
			matches = append(matches, entry.index)
		}
	}
	runtime.KeepAlive(part)

	return matches, nil
}

// evalPredicate tests footprint <pred> land with plain GEOS binary
// predicates. The footprint is always the subject: within asks whether the
// tile lies within the land polygon, contains whether it contains it.
func evalPredicate(footprint, land *geos.Geometry, pred Predicate) (bool, error) {
	switch pred {
	case Intersects:
		return footprint.Intersects(land)
	case Contains:
		return footprint.Contains(land)
	case Within:
		return footprint.Within(land)
	case Covers:
		return footprint.Covers(land)
	case CoveredBy:
		return footprint.CoveredBy(land)
	case Touches:
		return footprint.Touches(land)
	case Overlaps:
		return footprint.Overlaps(land)
	default:
		return false, fmt.Errorf("unknown predicate %q", pred)
	}
}

// decompose splits a polygonal geometry into its constituent simple
// polygons. Anything that is not a polygon or multipolygon is an error.
func decompose(g *geos.Geometry) ([]*geos.Geometry, error) {
	t, err := g.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to read geometry type, %w", err)
	}

	switch t {
	case geos.POLYGON:
		return []*geos.Geometry{g}, nil
	case geos.MULTIPOLYGON:
		n, err := g.NGeometry()
		if err != nil {
			return nil, fmt.Errorf("failed to count multipolygon parts, %w", err)
		}

		parts := make([]*geos.Geometry, 0, n)
		for i := 0; i < n; i++ {
			part, err := g.Geometry(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read multipolygon part %d, %w", i, err)
			}
			parts = append(parts, part)
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("query geometry must be a polygon or multipolygon, got %v", t)
	}
}

func rectFromBound(b orb.Bound) (*rtreego.Rect, error) {
	lengths := []float64{
		math.Max(b.Max.X()-b.Min.X(), minRectSpan),
		math.Max(b.Max.Y()-b.Min.Y(), minRectSpan),
	}
	return rtreego.NewRect(rtreego.Point{b.Min.X(), b.Min.Y()}, lengths)
}

// dedupe removes repeated indices, keeping first occurrences in place.
func dedupe(indices []int) []int {
	seen := make(map[int]struct{}, len(indices))
	out := indices[:0]
	for _, i := range indices {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

// FilterLand is the whole pipeline stage in one call: index the table's
// footprints and return the indices of tiles satisfying the predicate
// against the land mask.
func FilterLand(table *Table, mask *LandMask, pred Predicate) ([]int, error) {
	index, err := NewGridIndex(table.Footprints())
	if err != nil {
		return nil, err
	}
	return index.Query(mask, pred)
}
