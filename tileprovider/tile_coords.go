package tileprovider

import (
	"image"
	"math"

	"github.com/jamesrr39/mapposter-app/mapposter"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/osm"
)

const (
	TileSize = 256
	// maxMercatorLat is the latitude at which the web mercator world becomes square
	maxMercatorLat = 85.05112878
)

// worldPixel returns the position of a coordinate in the global web mercator pixel space at the given zoom.
// Latitudes beyond the mercator limit land on the top or bottom edge of the world.
func worldPixel(ll mapposter.LatLng, zoom mapposter.ZoomLevel) (x, y float64) {
	n := TileSize * math.Exp2(float64(zoom))
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, ll.Lat))
	latRad := lat * math.Pi / 180

	x = (ll.Lon + 180) / 360 * n
	y = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n
	return x, y
}

func worldPixelToLatLng(x, y float64, zoom mapposter.ZoomLevel) mapposter.LatLng {
	n := TileSize * math.Exp2(float64(zoom))
	lon := x/n*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/n)))

	return mapposter.LatLng{
		Lat: latRad * 180 / math.Pi,
		Lon: lon,
	}
}

// viewportOrigin is the world pixel at the top left of a viewport centered on center.
func viewportOrigin(center mapposter.LatLng, zoom mapposter.ZoomLevel, viewport image.Point) image.Point {
	cx, cy := worldPixel(center, zoom)
	return image.Point{
		X: int(math.Floor(cx - float64(viewport.X)/2)),
		Y: int(math.Floor(cy - float64(viewport.Y)/2)),
	}
}

// ViewportBounds returns the geographic area covered by a viewport. Longitudes are not wrapped.
func ViewportBounds(center mapposter.LatLng, zoom mapposter.ZoomLevel, viewport image.Point) osm.Bounds {
	origin := viewportOrigin(center, zoom, viewport)

	topLeft := worldPixelToLatLng(float64(origin.X), float64(origin.Y), zoom)
	bottomRight := worldPixelToLatLng(float64(origin.X+viewport.X), float64(origin.Y+viewport.Y), zoom)

	return osm.Bounds{
		MinLat: bottomRight.Lat,
		MaxLat: topLeft.Lat,
		MinLon: topLeft.Lon,
		MaxLon: bottomRight.Lon,
	}
}

type tilePlacement struct {
	Tile maptile.Tile
	// Dest is where the tile's top left corner goes in the viewport image
	Dest image.Point
	// InRange is false for rows above or below the mercator world; those have no tile
	InRange bool
}

// tilePlacements lists the tiles needed to cover a viewport, row by row.
// Columns wrap around the antimeridian.
func tilePlacements(center mapposter.LatLng, zoom mapposter.ZoomLevel, viewport image.Point) []tilePlacement {
	origin := viewportOrigin(center, zoom, viewport)
	tilesPerSide := 1 << uint(zoom)

	minTileX := floorDiv(origin.X, TileSize)
	maxTileX := floorDiv(origin.X+viewport.X-1, TileSize)
	minTileY := floorDiv(origin.Y, TileSize)
	maxTileY := floorDiv(origin.Y+viewport.Y-1, TileSize)

	var placements []tilePlacement
	for tileY := minTileY; tileY <= maxTileY; tileY++ {
		for tileX := minTileX; tileX <= maxTileX; tileX++ {
			placement := tilePlacement{
				Dest: image.Point{
					X: tileX*TileSize - origin.X,
					Y: tileY*TileSize - origin.Y,
				},
				InRange: tileY >= 0 && tileY < tilesPerSide,
			}

			if placement.InRange {
				wrappedX := ((tileX % tilesPerSide) + tilesPerSide) % tilesPerSide
				placement.Tile = maptile.New(uint32(wrappedX), uint32(tileY), maptile.Zoom(zoom))
			}

			placements = append(placements, placement)
		}
	}

	return placements
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
