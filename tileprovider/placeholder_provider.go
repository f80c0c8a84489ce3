package tileprovider

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/mapposter-app/mapposter"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
)

const hatchSpacing = 140

// PlaceholderStyle holds the colors used by the PlaceholderProvider.
type PlaceholderStyle struct {
	Background color.Color
	Hatch      color.Color
	Graticule  color.Color
	Marker     color.Color
}

var DefaultPlaceholderStyle = PlaceholderStyle{
	Background: color.RGBA{R: 8, G: 10, B: 20, A: 0xff},
	Hatch:      color.RGBA{R: 38, G: 44, B: 66, A: 0xff},
	Graticule:  color.RGBA{R: 70, G: 80, B: 112, A: 0xff},
	Marker:     color.RGBA{R: 0xe0, G: 0x6c, B: 0x4f, A: 0xff},
}

// PlaceholderProvider draws a stylized base map without any network access.
// The hatching and the tile-grid graticule are anchored to the world pixel grid, so different centers give different images,
// and the same center and zoom always give the same image.
type PlaceholderProvider struct {
	style PlaceholderStyle
}

func NewPlaceholderProvider(style PlaceholderStyle) *PlaceholderProvider {
	return &PlaceholderProvider{style}
}

func (p *PlaceholderProvider) Fetch(ctx context.Context, center mapposter.LatLng, zoom mapposter.ZoomLevel, viewport image.Point) (image.Image, errorsx.Error) {
	if viewport.X <= 0 || viewport.Y <= 0 {
		return nil, mapposter.NewError(mapposter.CodeProviderError, "invalid viewport size %v", viewport)
	}

	if ctx.Err() != nil {
		return nil, mapposter.NewError(mapposter.CodeProviderError, "base map request cancelled")
	}

	img := image.NewRGBA(image.Rect(0, 0, viewport.X, viewport.Y))
	draw.Draw(img, img.Bounds(), image.NewUniform(p.style.Background), image.Point{}, draw.Src)

	origin := viewportOrigin(center, zoom, viewport)
	width := float64(viewport.X)
	height := float64(viewport.Y)

	gc := draw2dimg.NewGraphicContext(img)

	// diagonal hatching
	gc.SetStrokeColor(p.style.Hatch)
	gc.SetLineWidth(2)
	hatchOffset := positiveMod(origin.X, hatchSpacing)
	for x := -hatchOffset - hatchSpacing*2; x < viewport.X; x += hatchSpacing {
		gc.BeginPath()
		gc.MoveTo(float64(x), 0)
		gc.LineTo(float64(x)+220, height)
		gc.Stroke()
	}

	// graticule along the tile grid
	gc.SetStrokeColor(p.style.Graticule)
	gc.SetLineWidth(1)
	for x := TileSize - positiveMod(origin.X, TileSize); x < viewport.X; x += TileSize {
		gc.BeginPath()
		gc.MoveTo(float64(x), 0)
		gc.LineTo(float64(x), height)
		gc.Stroke()
	}
	for y := TileSize - positiveMod(origin.Y, TileSize); y < viewport.Y; y += TileSize {
		gc.BeginPath()
		gc.MoveTo(0, float64(y))
		gc.LineTo(width, float64(y))
		gc.Stroke()
	}

	// center marker
	gc.SetFillColor(p.style.Marker)
	gc.SetStrokeColor(p.style.Marker)
	gc.BeginPath()
	draw2dkit.Circle(gc, width/2, height/2, 10)
	gc.FillStroke()

	return img, nil
}

func positiveMod(a, b int) int {
	return ((a % b) + b) % b
}
