package posterrenderer

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
)

const (
	DefaultTitleFontSize    = 110.0
	DefaultSubtitleFontSize = 48.0
	minFontSize             = 1.0
	fontSizeStep            = 1.0

	titleBaselineOffset    = 150
	dividerOffset          = 195
	subtitleBaselineOffset = 275
	dividerHalfWidth       = 60
	outerFrameInset        = 30
)

var (
	// CanvasBounds is the size of every poster
	CanvasBounds = image.Rect(0, 0, 1400, 1800)
	// MapRegion is where the base map is drawn. Base maps are best fetched at exactly this size.
	MapRegion   = image.Rect(80, 80, 1320, 1380)
	CaptionBand = image.Rect(80, 1380, 1320, 1720)
)

var (
	backgroundColor = color.RGBA{R: 8, G: 10, B: 20, A: 0xff}
	frameColor      = color.RGBA{R: 230, G: 226, B: 214, A: 0xff}
	titleColor      = color.RGBA{R: 245, G: 243, B: 236, A: 0xff}
	subtitleColor   = color.RGBA{R: 170, G: 175, B: 190, A: 0xff}
	dividerColor    = color.RGBA{R: 0xe0, G: 0x6c, B: 0x4f, A: 0xff}
)

// Composer lays out a base map and its captions on a poster canvas.
// The layout is fixed; only the caption font sizes adapt, so that long lines fit the caption band.
type Composer struct {
	titleFont    *truetype.Font
	subtitleFont *truetype.Font
}

func NewComposer(titleFont, subtitleFont *truetype.Font) *Composer {
	return &Composer{titleFont, subtitleFont}
}

func (c *Composer) Compose(base image.Image, title, subtitle string) (*image.RGBA, errorsx.Error) {
	if base == nil || base.Bounds().Empty() {
		return nil, errorsx.Errorf("base map image is empty")
	}

	canvas := NewImageWithBackground(CanvasBounds, backgroundColor)

	srcRect := coverSourceRect(base.Bounds(), MapRegion.Size())
	xdraw.ApproxBiLinear.Scale(canvas, MapRegion, base, srcRect, draw.Src, nil)

	drawFrames(canvas)

	centerX := CaptionBand.Min.X + CaptionBand.Dx()/2
	maxTextWidth := CaptionBand.Dx()

	titleSize := fitFontSize(c.titleFont, title, DefaultTitleFontSize, maxTextWidth)

	if strings.TrimSpace(subtitle) == "" {
		baseline := CaptionBand.Min.Y + CaptionBand.Dy()/2 + int(titleSize*0.35)
		err := drawCenteredText(canvas, c.titleFont, titleSize, titleColor, title, centerX, baseline)
		if err != nil {
			return nil, errorsx.Wrap(err)
		}
		return canvas, nil
	}

	err := drawCenteredText(canvas, c.titleFont, titleSize, titleColor, title, centerX, CaptionBand.Min.Y+titleBaselineOffset)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	drawDivider(canvas, centerX, CaptionBand.Min.Y+dividerOffset)

	subtitleSize := fitFontSize(c.subtitleFont, subtitle, DefaultSubtitleFontSize, maxTextWidth)
	err = drawCenteredText(canvas, c.subtitleFont, subtitleSize, subtitleColor, subtitle, centerX, CaptionBand.Min.Y+subtitleBaselineOffset)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return canvas, nil
}

func drawFrames(canvas *image.RGBA) {
	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetStrokeColor(frameColor)

	gc.SetLineWidth(4)
	gc.BeginPath()
	draw2dkit.Rectangle(gc, float64(MapRegion.Min.X), float64(MapRegion.Min.Y), float64(MapRegion.Max.X), float64(MapRegion.Max.Y))
	gc.Stroke()

	gc.SetLineWidth(1)
	gc.BeginPath()
	draw2dkit.Rectangle(
		gc,
		float64(outerFrameInset),
		float64(outerFrameInset),
		float64(CanvasBounds.Max.X-outerFrameInset),
		float64(CanvasBounds.Max.Y-outerFrameInset),
	)
	gc.Stroke()
}

func drawDivider(canvas *image.RGBA, centerX, y int) {
	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetStrokeColor(dividerColor)
	gc.SetLineWidth(3)
	gc.BeginPath()
	gc.MoveTo(float64(centerX-dividerHalfWidth), float64(y))
	gc.LineTo(float64(centerX+dividerHalfWidth), float64(y))
	gc.Stroke()
}

func measureText(f *truetype.Font, size float64, text string) int {
	face := truetype.NewFace(f, &truetype.Options{
		Size: size,
		DPI:  72,
	})
	defer face.Close()

	return font.MeasureString(face, text).Ceil()
}

// fitFontSize returns the largest size, at most defaultSize, at which text is no wider than maxWidth.
func fitFontSize(f *truetype.Font, text string, defaultSize float64, maxWidth int) float64 {
	return fitSize(func(size float64) int {
		return measureText(f, size, text)
	}, defaultSize, maxWidth)
}

// fitSize bisects the sizes between minFontSize and defaultSize, so the number of
// measurements grows with the log of the size range and not with the text length.
// minFontSize is returned when nothing fits.
func fitSize(measure func(size float64) int, defaultSize float64, maxWidth int) float64 {
	if defaultSize <= minFontSize {
		return minFontSize
	}

	if measure(defaultSize) <= maxWidth {
		return defaultSize
	}

	// low fits (or is the floor), high does not
	low, high := 0, int(math.Ceil((defaultSize-minFontSize)/fontSizeStep))
	for high-low > 1 {
		mid := (low + high) / 2
		if measure(minFontSize+float64(mid)*fontSizeStep) <= maxWidth {
			low = mid
		} else {
			high = mid
		}
	}

	return minFontSize + float64(low)*fontSizeStep
}

func drawCenteredText(canvas *image.RGBA, f *truetype.Font, size float64, c color.Color, text string, centerX, baseline int) errorsx.Error {
	width := measureText(f, size, text)

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(f)
	ctx.SetFontSize(size)
	ctx.SetClip(canvas.Bounds())
	ctx.SetDst(canvas)
	ctx.SetSrc(image.NewUniform(c))

	_, err := ctx.DrawString(text, freetype.Pt(centerX-width/2, baseline))
	if err != nil {
		return errorsx.Wrap(err, "text", text, "size", size)
	}

	return nil
}
