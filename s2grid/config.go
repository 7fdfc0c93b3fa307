package s2grid

import "os"

// Canonical locations of the two inputs. Both are defaults only: the
// pipeline binary accepts overrides via flags or environment so the build
// can run against mirrors or local fixtures.
const (
	DefaultGridURL     = "https://sentinel.esa.int/documents/247904/1955685/S2A_OPER_GIP_TILPAR_MPC__20151209T095117_V20150622T000000_21000101T000000_B00.kml"
	DefaultLandmaskURL = "https://github.com/nvkelso/natural-earth-vector/raw/v5.1.2/geojson/ne_10m_land.geojson"
)

const (
	EnvGridURL     = "S2GRID_GRID_URL"
	EnvLandmaskURL = "S2GRID_LANDMASK_URL"
)

// URLFromEnv returns the value of the named environment variable, or the
// fallback when it is unset or empty.
func URLFromEnv(key string, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
