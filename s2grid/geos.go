package s2grid

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// The exact predicate work happens in GEOS while the rest of the pipeline
// speaks orb. The two models are bridged over WKT text, which both sides
// parse and emit natively.

func geosFromOrb(g orb.Geometry) (*geos.Geometry, error) {
	geom, err := geos.FromWKT(wkt.MarshalString(g))
	if err != nil {
		return nil, fmt.Errorf("failed to convert geometry to GEOS, %w", err)
	}
	return geom, nil
}

// orbFromGeos converts a GEOS geometry back to orb. gogeos geometries print
// as WKT.
func orbFromGeos(g *geos.Geometry) (orb.Geometry, error) {
	geom, err := wkt.Unmarshal(g.String())
	if err != nil {
		return nil, fmt.Errorf("failed to convert geometry from GEOS, %w", err)
	}
	return geom, nil
}
