package s2grid

import (
	"fmt"
	"hash"
	"hash/fnv"
	"io"
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"
	"github.com/protomaps/go-pmtiles/pmtiles"
)

const previewLayerName = "grid"

type offsetLen struct {
	offset uint64
	length uint32
}

// PreviewOutputter renders a grid table as a browsable PMTiles v3 vector
// tileset for visual QA. Footprints are cut into gzipped MVT tiles per zoom
// and packed into a single archive with content-hash deduplication.
type PreviewOutputter struct {
	maxZoom  maptile.Zoom
	tileset  *roaring64.Bitmap
	hashFunc hash.Hash
	offsets  map[string]offsetLen
	entries  []pmtiles.EntryV3
	tileData *os.File
	outFile  *os.File
	bound    orb.Bound
	hasBound bool
}

func NewPreviewOutputter(path string, maxZoom int) (*PreviewOutputter, error) {
	if maxZoom < 0 || maxZoom > 14 {
		return nil, fmt.Errorf("preview max zoom %d out of range [0, 14]", maxZoom)
	}

	tmpFile, err := os.CreateTemp("", "s2grid-preview-tiledata")
	if err != nil {
		return nil, fmt.Errorf("error creating temp file: %w", err)
	}

	outFile, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating pmtiles output file: %w", err)
	}

	return &PreviewOutputter{
		maxZoom:  maptile.Zoom(maxZoom),
		tileset:  roaring64.New(),
		hashFunc: fnv.New128a(),
		offsets:  make(map[string]offsetLen),
		tileData: tmpFile,
		outFile:  outFile,
	}, nil
}

// WriteGrid renders the table into MVT tiles for every zoom from 0 to the
// configured maximum and stages them in the archive.
func (p *PreviewOutputter) WriteGrid(table *Table) error {
	if table.Len() == 0 {
		return fmt.Errorf("preview table has no tiles")
	}

	bound := table.Bound()
	if p.hasBound {
		p.bound = p.bound.Union(bound)
	} else {
		p.bound = bound
		p.hasBound = true
	}

	for z := maptile.Zoom(0); z <= p.maxZoom; z++ {
		if err := p.writeZoom(table, z); err != nil {
			return err
		}
	}

	return nil
}

func (p *PreviewOutputter) writeZoom(table *Table, zoom maptile.Zoom) error {
	// Group features by the map tiles their bounds touch.
	grouped := make(map[maptile.Tile]*geojson.FeatureCollection)
	for _, tile := range table.Tiles {
		for _, mt := range tilesCovering(tile.Footprint.Bound(), zoom) {
			fc, ok := grouped[mt]
			if !ok {
				fc = geojson.NewFeatureCollection()
				grouped[mt] = fc
			}

			f := geojson.NewFeature(tile.Footprint.Clone())
			f.Properties["tile"] = tile.Name
			f.Properties["epsg"] = tile.EPSG
			fc.Append(f)
		}
	}

	for mt, fc := range grouped {
		data, err := encodeMVT(mt, fc)
		if err != nil {
			return fmt.Errorf("failed to encode tile %d/%d/%d, %w", mt.Z, mt.X, mt.Y, err)
		}
		if data == nil {
			continue
		}
		if err := p.save(mt, data); err != nil {
			return err
		}
	}

	return nil
}

// encodeMVT clips, simplifies, and projects the features into one gzipped
// MVT tile. Layer mutation happens on cloned geometry so the source table
// is untouched. Returns nil when nothing survives clipping.
func encodeMVT(tile maptile.Tile, fc *geojson.FeatureCollection) ([]byte, error) {
	layer := mvt.NewLayer(previewLayerName, fc)

	if eps := simplifyEpsilon(tile.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}

	layer.Clip(tile.Bound())
	layer.ProjectToTile(tile)
	layer.RemoveEmpty(1.0, 1.0)

	if len(layer.Features) == 0 {
		return nil, nil
	}

	return mvt.MarshalGzipped(mvt.Layers{layer})
}

func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 10:
		return 0
	case zoom >= 6:
		return 0.0001
	case zoom >= 4:
		return 0.0005
	default:
		return 0.001
	}
}

// tilesCovering enumerates the map tiles at the given zoom whose bounds
// intersect b.
func tilesCovering(b orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	minTile := maptile.At(b.Min, zoom)
	maxTile := maptile.At(b.Max, zoom)

	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}

	return tiles
}

// save stages one encoded tile: identical payloads are stored once and
// addressed by offset.
func (p *PreviewOutputter) save(tile maptile.Tile, data []byte) error {
	id := pmtiles.ZxyToID(uint8(tile.Z), tile.X, tile.Y)
	p.tileset.Add(id)

	p.hashFunc.Reset()
	p.hashFunc.Write(data)
	sum := string(p.hashFunc.Sum(nil))

	found, ok := p.offsets[sum]
	if !ok {
		offset, err := p.tileData.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}

		written, err := p.tileData.Write(data)
		if err != nil {
			return err
		}

		found = offsetLen{
			offset: uint64(offset),
			length: uint32(written),
		}
		p.offsets[sum] = found
	}

	p.entries = append(p.entries, pmtiles.EntryV3{
		TileID:    id,
		Offset:    found.offset,
		Length:    found.length,
		RunLength: 1,
	})

	return nil
}

// Close assembles and writes the archive: header, root directory, metadata,
// leaf directories, then tile data.
func (p *PreviewOutputter) Close() error {
	defer p.outFile.Close()
	defer os.Remove(p.tileData.Name())
	defer p.tileData.Close()

	if len(p.entries) == 0 {
		return fmt.Errorf("no preview tiles to write")
	}

	// Directory entries must be ordered by tile ID.
	sort.Slice(p.entries, func(i, j int) bool { return p.entries[i].TileID < p.entries[j].TileID })

	rootBytes, leavesBytes, _ := optimizeDirectories(p.entries, 16384-pmtiles.HeaderV3LenBytes, pmtiles.Gzip)

	jsonMetadata := map[string]interface{}{
		"name":   "Sentinel-2 grid preview",
		"format": "pbf",
		"vector_layers": []map[string]interface{}{
			{
				"id":      previewLayerName,
				"minzoom": 0,
				"maxzoom": int(p.maxZoom),
				"fields": map[string]string{
					"tile": "String",
					"epsg": "Number",
				},
			},
		},
	}

	metadataBytes, err := pmtiles.SerializeMetadata(jsonMetadata, pmtiles.Gzip)
	if err != nil {
		return fmt.Errorf("error serializing pmtiles metadata: %w", err)
	}

	tileDataLen, err := p.tileData.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	header := pmtiles.HeaderV3{
		SpecVersion:         3,
		TileType:            pmtiles.Mvt,
		TileCompression:     pmtiles.Gzip,
		InternalCompression: pmtiles.Gzip,
		Clustered:           true,
		MinZoom:             0,
		MaxZoom:             uint8(p.maxZoom),
		CenterZoom:          uint8(p.maxZoom / 2),
		AddressedTilesCount: p.tileset.GetCardinality(),
		TileEntriesCount:    uint64(len(p.entries)),
		TileContentsCount:   uint64(len(p.offsets)),
	}

	if p.hasBound {
		header.MinLonE7 = int32(p.bound.Min.X() * 10000000)
		header.MinLatE7 = int32(p.bound.Min.Y() * 10000000)
		header.MaxLonE7 = int32(p.bound.Max.X() * 10000000)
		header.MaxLatE7 = int32(p.bound.Max.Y() * 10000000)
		center := p.bound.Center()
		header.CenterLonE7 = int32(center.X() * 10000000)
		header.CenterLatE7 = int32(center.Y() * 10000000)
	}

	header.RootOffset = pmtiles.HeaderV3LenBytes
	header.RootLength = uint64(len(rootBytes))
	header.MetadataOffset = header.RootOffset + header.RootLength
	header.MetadataLength = uint64(len(metadataBytes))
	header.LeafDirectoryOffset = header.MetadataOffset + header.MetadataLength
	header.LeafDirectoryLength = uint64(len(leavesBytes))
	header.TileDataOffset = header.LeafDirectoryOffset + header.LeafDirectoryLength
	header.TileDataLength = uint64(tileDataLen)

	if _, err := p.outFile.Write(pmtiles.SerializeHeader(header)); err != nil {
		return fmt.Errorf("error writing pmtiles header: %w", err)
	}
	if _, err := p.outFile.Write(rootBytes); err != nil {
		return fmt.Errorf("error writing pmtiles root directory: %w", err)
	}
	if _, err := p.outFile.Write(metadataBytes); err != nil {
		return fmt.Errorf("error writing pmtiles metadata: %w", err)
	}
	if _, err := p.outFile.Write(leavesBytes); err != nil {
		return fmt.Errorf("error writing pmtiles leaf directory: %w", err)
	}

	if _, err := p.tileData.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to start of tile data: %w", err)
	}
	if _, err := io.Copy(p.outFile, p.tileData); err != nil {
		return fmt.Errorf("error copying tile data to outfile: %w", err)
	}

	return nil
}

// optimizeDirectories packs directory entries into a root directory that
// fits the target length, spilling to leaf directories when it does not.
func optimizeDirectories(entries []pmtiles.EntryV3, targetRootLen int, compression pmtiles.Compression) ([]byte, []byte, int) {
	if len(entries) < 16384 {
		testRootBytes := pmtiles.SerializeEntries(entries, compression)
		if len(testRootBytes) <= targetRootLen {
			return testRootBytes, make([]byte, 0), 0
		}
	}

	// Root holds leaf pointers only; grow the leaf size until the root fits.
	leafSize := float32(len(entries)) / 3500
	if leafSize < 4096 {
		leafSize = 4096
	}

	for {
		rootBytes, leavesBytes, numLeaves := buildRootsLeaves(entries, int(leafSize), compression)
		if len(rootBytes) <= targetRootLen {
			return rootBytes, leavesBytes, numLeaves
		}
		leafSize *= 1.2
	}
}

func buildRootsLeaves(entries []pmtiles.EntryV3, leafSize int, compression pmtiles.Compression) ([]byte, []byte, int) {
	rootEntries := make([]pmtiles.EntryV3, 0)
	leavesBytes := make([]byte, 0)
	numLeaves := 0

	for i := 0; i < len(entries); i += leafSize {
		numLeaves++
		end := i + leafSize
		if end > len(entries) {
			end = len(entries)
		}
		serialized := pmtiles.SerializeEntries(entries[i:end], compression)

		rootEntries = append(rootEntries, pmtiles.EntryV3{
			TileID:    entries[i].TileID,
			Offset:    uint64(len(leavesBytes)),
			Length:    uint32(len(serialized)),
			RunLength: 0,
		})
		leavesBytes = append(leavesBytes, serialized...)
	}

	rootBytes := pmtiles.SerializeEntries(rootEntries, compression)
	return rootBytes, leavesBytes, numLeaves
}
