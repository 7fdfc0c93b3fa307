package s2grid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoJSONOutputter_RoundTrip(t *testing.T) {
	table := sampleTable(t)
	base := t.TempDir()

	outputter, err := NewGeoJSONOutputter(base)
	require.NoError(t, err)

	require.NoError(t, outputter.CreateTables())
	require.NoError(t, outputter.WriteTable(TableGrid, table))
	require.NoError(t, outputter.Close())

	data, err := os.ReadFile(filepath.Join(base, "grid.geojson"))
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, table.Len())

	for i, f := range fc.Features {
		tile := table.Tiles[i]

		assert.Equal(t, tile.Name, f.Properties["tile"])
		assert.EqualValues(t, tile.EPSG, f.Properties["epsg"])
		assert.Equal(t, tile.UTMWKT, f.Properties["utm_wkt"])
		assert.EqualValues(t, tile.UTMBounds.Min.X(), f.Properties["utm_xmin"])
		assert.EqualValues(t, tile.UTMBounds.Max.Y(), f.Properties["utm_ymax"])

		mp, ok := f.Geometry.(orb.MultiPolygon)
		require.True(t, ok, "feature %d geometry is %T", i, f.Geometry)
		assert.Equal(t, tile.Footprint.Bound(), mp.Bound())
	}
}

func TestGeoJSONOutputter_RequiresBase(t *testing.T) {
	_, err := NewGeoJSONOutputter("")
	assert.Error(t, err)
}
