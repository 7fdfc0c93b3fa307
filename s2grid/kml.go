package s2grid

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type kmlPlacemark struct {
	Name        string       `xml:"name"`
	Description string       `xml:"description"`
	Multi       kmlMultiGeom `xml:"MultiGeometry"`
	Polygon     *kmlPolygon  `xml:"Polygon"`
	Point       *kmlPoint    `xml:"Point"`
}

type kmlMultiGeom struct {
	Polygons []kmlPolygon `xml:"Polygon"`
	Points   []kmlPoint   `xml:"Point"`
}

type kmlPolygon struct {
	Outer  string   `xml:"outerBoundaryIs>LinearRing>coordinates"`
	Inners []string `xml:"innerBoundaryIs>LinearRing>coordinates"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

// ParseGrid reads the ESA tiling-grid KML (or KMZ) into an ordered Table.
// Placemarks are collected at any folder depth; placemarks without polygon
// geometry (the file carries legend and overview placemarks) are skipped
// with a warning. Duplicate tile names are an error.
func ParseGrid(data []byte) (*Table, error) {
	if isZip(data) {
		kml, err := kmlFromKMZ(data)
		if err != nil {
			return nil, err
		}
		data = kml
	}

	table := NewTable()
	skipped := 0

	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read KML, %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Placemark" {
			continue
		}

		var pm kmlPlacemark
		if err := decoder.DecodeElement(&pm, &se); err != nil {
			return nil, fmt.Errorf("failed to decode placemark, %w", err)
		}

		tile, ok, err := tileFromPlacemark(pm)
		if err != nil {
			return nil, err
		}
		if !ok {
			skipped++
			slog.Warn("skipping placemark without polygon geometry", "name", pm.Name)
			continue
		}

		if err := table.Append(tile); err != nil {
			return nil, err
		}
	}

	slog.Info("parsed grid", "tiles", table.Len(), "skipped", skipped)
	return table, nil
}

func tileFromPlacemark(pm kmlPlacemark) (Tile, bool, error) {
	name := strings.TrimSpace(pm.Name)

	polygons := pm.Multi.Polygons
	if pm.Polygon != nil {
		polygons = append(polygons, *pm.Polygon)
	}
	if len(polygons) == 0 {
		return Tile{}, false, nil
	}

	footprint := make(orb.MultiPolygon, 0, len(polygons))
	for _, kp := range polygons {
		poly, err := polygonFromKML(kp)
		if err != nil {
			return Tile{}, false, fmt.Errorf("tile %s: %w", name, err)
		}
		footprint = append(footprint, poly)
	}

	center, err := centerFromPlacemark(pm, footprint)
	if err != nil {
		return Tile{}, false, fmt.Errorf("tile %s: %w", name, err)
	}

	epsg, err := ExtractEPSG(pm.Description)
	if err != nil {
		return Tile{}, false, fmt.Errorf("tile %s: %w", name, err)
	}

	utmWKT, err := ExtractUTMWKT(pm.Description)
	if err != nil {
		return Tile{}, false, fmt.Errorf("tile %s: %w", name, err)
	}

	tile := Tile{
		Name:      name,
		Footprint: footprint,
		Center:    center,
		EPSG:      epsg,
		UTMWKT:    utmWKT,
	}

	if err := tile.ComputeUTMBounds(); err != nil {
		return Tile{}, false, err
	}

	return tile, true, nil
}

func polygonFromKML(kp kmlPolygon) (orb.Polygon, error) {
	outer, err := ringFromCoordinates(kp.Outer)
	if err != nil {
		return nil, fmt.Errorf("bad outer ring, %w", err)
	}

	poly := orb.Polygon{outer}
	for _, inner := range kp.Inners {
		ring, err := ringFromCoordinates(inner)
		if err != nil {
			return nil, fmt.Errorf("bad inner ring, %w", err)
		}
		poly = append(poly, ring)
	}

	return poly, nil
}

func centerFromPlacemark(pm kmlPlacemark, footprint orb.MultiPolygon) (orb.Point, error) {
	var coords string
	if len(pm.Multi.Points) > 0 {
		coords = pm.Multi.Points[0].Coordinates
	} else if pm.Point != nil {
		coords = pm.Point.Coordinates
	}

	if coords == "" {
		// The grid file carries an explicit center point per tile, but a
		// missing one is recoverable: fall back to the footprint centroid.
		center, _ := planar.CentroidArea(footprint)
		return center, nil
	}

	points, err := parseCoordinates(coords)
	if err != nil {
		return orb.Point{}, fmt.Errorf("bad center point, %w", err)
	}
	return points[0], nil
}

// parseCoordinates reads a KML coordinate string: whitespace-separated
// lon,lat[,alt] tuples.
func parseCoordinates(s string) ([]orb.Point, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty coordinate string")
	}

	points := make([]orb.Point, 0, len(fields))
	for _, field := range fields {
		parts := strings.Split(field, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed coordinate tuple %q", field)
		}

		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse longitude in %q, %w", field, err)
		}

		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse latitude in %q, %w", field, err)
		}

		points = append(points, orb.Point{lon, lat})
	}

	return points, nil
}

func ringFromCoordinates(s string) (orb.Ring, error) {
	points, err := parseCoordinates(s)
	if err != nil {
		return nil, err
	}
	if len(points) < 3 {
		return nil, fmt.Errorf("ring has %d points, need at least 3", len(points))
	}

	ring := orb.Ring(points)
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}

	return ring, nil
}

func isZip(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x03\x04"))
}

// kmlFromKMZ unpacks a KMZ archive held in memory and returns the first
// .kml member.
func kmlFromKMZ(data []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open KMZ archive, %w", err)
	}

	for _, zf := range reader.File {
		if !strings.HasSuffix(strings.ToLower(zf.Name), ".kml") {
			continue
		}

		zfReader, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open KMZ member %s, %w", zf.Name, err)
		}
		defer zfReader.Close()

		kml, err := io.ReadAll(zfReader)
		if err != nil {
			return nil, fmt.Errorf("failed to read KMZ member %s, %w", zf.Name, err)
		}

		return kml, nil
	}

	return nil, fmt.Errorf("KMZ archive has no .kml member")
}
