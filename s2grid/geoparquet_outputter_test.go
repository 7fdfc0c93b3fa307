package s2grid

import (
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestGeoparquetOutputter_RoundTrip(t *testing.T) {
	table := sampleTable(t)
	base := t.TempDir()

	outputter, err := NewGeoparquetOutputter(base)
	require.NoError(t, err)

	require.NoError(t, outputter.CreateTables())
	require.NoError(t, outputter.WriteTable(TableGrid, table))
	require.NoError(t, outputter.WriteTable(TableGridLand, table))
	require.NoError(t, outputter.Close())

	rows, err := parquet.ReadFile[GeoparquetRow](filepath.Join(base, "grid.parquet"))
	require.NoError(t, err)
	require.Len(t, rows, table.Len())

	for i, row := range rows {
		tile := table.Tiles[i]

		assert.Equal(t, tile.Name, row.Tile)
		assert.EqualValues(t, tile.EPSG, row.EPSG)
		assert.Equal(t, tile.UTMWKT, row.UTMWKT)
		assert.Equal(t, tile.UTMBounds.Min.X(), row.UTMXMin)
		assert.Equal(t, tile.UTMBounds.Min.Y(), row.UTMYMin)
		assert.Equal(t, tile.UTMBounds.Max.X(), row.UTMXMax)
		assert.Equal(t, tile.UTMBounds.Max.Y(), row.UTMYMax)

		geometry, err := wkb.Unmarshal(row.Geometry)
		require.NoError(t, err)
		mp, ok := geometry.(orb.MultiPolygon)
		require.True(t, ok, "row %d geometry is %T", i, geometry)
		assert.Equal(t, tile.Footprint.Bound(), mp.Bound())

		center, err := wkb.Unmarshal(row.Center)
		require.NoError(t, err)
		assert.Equal(t, orb.Geometry(tile.Center), center)
	}
}

func TestGeoparquetOutputter_GeoMetadata(t *testing.T) {
	table := sampleTable(t)

	meta, err := geoMetadata(table)
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", gjson.Get(meta, "version").String())
	assert.Equal(t, "geometry", gjson.Get(meta, "primary_column").String())
	assert.Equal(t, "WKB", gjson.Get(meta, "columns.geometry.encoding").String())
	assert.Equal(t, "MultiPolygon", gjson.Get(meta, "columns.geometry.geometry_types.0").String())
	assert.Equal(t, "Point", gjson.Get(meta, "columns.center.geometry_types.0").String())

	bbox := gjson.Get(meta, "columns.geometry.bbox").Array()
	require.Len(t, bbox, 4)
	bound := table.Bound()
	assert.Equal(t, bound.Min.X(), bbox[0].Float())
	assert.Equal(t, bound.Max.Y(), bbox[3].Float())
}
