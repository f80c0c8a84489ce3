package posterrenderer

import (
	"image"
	"image/color"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jamesrr39/mapposter-app/fonts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mapColor = color.RGBA{R: 0xcc, G: 0x22, B: 0x22, A: 0xff}

func newTestComposer() *Composer {
	return NewComposer(fonts.DefaultBoldFont(), fonts.DefaultFont())
}

func uniformBase(width, height int) image.Image {
	return NewImageWithBackground(image.Rect(0, 0, width, height), mapColor)
}

// rowsWithInk counts the rows in [minY, maxY) of the caption band containing any pixel other than the background
func rowsWithInk(img *image.RGBA, minY, maxY int) int {
	count := 0
	for y := minY; y < maxY; y++ {
		for x := CaptionBand.Min.X; x < CaptionBand.Max.X; x++ {
			if img.RGBAAt(x, y) != backgroundColor {
				count++
				break
			}
		}
	}
	return count
}

func TestComposer_Compose(t *testing.T) {
	composer := newTestComposer()

	img, err := composer.Compose(uniformBase(1240, 1300), "ŽARĖNAI", "2026")
	require.NoError(t, err)

	assert.Equal(t, CanvasBounds, img.Bounds())
	assert.Equal(t, backgroundColor, img.RGBAAt(10, 10))
	assert.Equal(t, mapColor, img.RGBAAt(700, 700))

	dividerY := CaptionBand.Min.Y + dividerOffset
	assert.True(t, rowsWithInk(img, CaptionBand.Min.Y, dividerY-10) > 20, "expected the title above the divider")
	assert.True(t, rowsWithInk(img, dividerY-2, dividerY+3) > 0, "expected the divider")
	assert.True(t, rowsWithInk(img, dividerY+10, CaptionBand.Max.Y) > 10, "expected the subtitle below the divider")
}

func TestComposer_Compose_deterministic(t *testing.T) {
	composer := newTestComposer()
	base := uniformBase(300, 200)

	img1, err := composer.Compose(base, "Vilnius", "Lithuania")
	require.NoError(t, err)
	img2, err := composer.Compose(base, "Vilnius", "Lithuania")
	require.NoError(t, err)

	assert.Equal(t, img1.Pix, img2.Pix)
}

func TestComposer_Compose_constantDimensions(t *testing.T) {
	composer := newTestComposer()

	tests := []struct {
		Name     string
		Base     image.Image
		Title    string
		Subtitle string
	}{
		{"tiny base map", uniformBase(1, 1), "A", ""},
		{"wide base map", uniformBase(4000, 300), "Wide", "very wide"},
		{"tall base map", uniformBase(300, 4000), "Tall", "very tall"},
		{"long captions", uniformBase(1240, 1300), strings.Repeat("Long title ", 30), strings.Repeat("long subtitle ", 40)},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			img, err := composer.Compose(test.Base, test.Title, test.Subtitle)
			require.NoError(t, err)

			assert.Equal(t, CanvasBounds, img.Bounds())
			// the map region is always completely covered
			assert.Equal(t, mapColor, img.RGBAAt(MapRegion.Min.X+10, MapRegion.Min.Y+10))
			assert.Equal(t, mapColor, img.RGBAAt(MapRegion.Max.X-10, MapRegion.Max.Y-10))
		})
	}
}

func TestComposer_Compose_emptySubtitle(t *testing.T) {
	composer := newTestComposer()

	img, err := composer.Compose(uniformBase(100, 100), "TITLE", "")
	require.NoError(t, err)

	assert.True(t, rowsWithInk(img, CaptionBand.Min.Y, CaptionBand.Max.Y) > 20)
	// no subtitle line at the bottom of the band
	assert.Equal(t, 0, rowsWithInk(img, CaptionBand.Min.Y+subtitleBaselineOffset-20, CaptionBand.Max.Y))

	withSubtitle, err := composer.Compose(uniformBase(100, 100), "TITLE", "subtitle")
	require.NoError(t, err)
	assert.True(t, rowsWithInk(withSubtitle, CaptionBand.Min.Y+subtitleBaselineOffset-20, CaptionBand.Max.Y) > 0)
}

func TestComposer_Compose_whitespaceSubtitleIsEmpty(t *testing.T) {
	composer := newTestComposer()

	empty, err := composer.Compose(uniformBase(100, 100), "TITLE", "")
	require.NoError(t, err)

	for _, subtitle := range []string{" ", "   ", "\t", " \n "} {
		whitespace, err := composer.Compose(uniformBase(100, 100), "TITLE", subtitle)
		require.NoError(t, err)
		assert.Equal(t, empty.Pix, whitespace.Pix, "subtitle %q", subtitle)
	}
}

func TestComposer_Compose_emptyBase(t *testing.T) {
	_, err := newTestComposer().Compose(image.NewRGBA(image.Rect(0, 0, 0, 0)), "title", "")
	require.Error(t, err)

	_, err = newTestComposer().Compose(nil, "title", "")
	require.Error(t, err)
}

func Test_fitFontSize(t *testing.T) {
	titleFont := fonts.DefaultBoldFont()
	maxWidth := CaptionBand.Dx()

	t.Run("short text keeps the default size", func(t *testing.T) {
		size := fitFontSize(titleFont, "Riga", DefaultTitleFontSize, maxWidth)
		assert.Equal(t, DefaultTitleFontSize, size)
	})

	t.Run("long text is scaled down to fit", func(t *testing.T) {
		text := "The Curonian Spit and the Lagoon Beyond"
		require.True(t, measureText(titleFont, DefaultTitleFontSize, text) > maxWidth)

		size := fitFontSize(titleFont, text, DefaultTitleFontSize, maxWidth)
		assert.True(t, size < DefaultTitleFontSize)
		assert.True(t, size > minFontSize)
		assert.LessOrEqual(t, measureText(titleFont, size, text), maxWidth)
		// one step larger would not fit
		assert.Greater(t, measureText(titleFont, size+fontSizeStep, text), maxWidth)
	})

	t.Run("text that never fits stops at the minimum size", func(t *testing.T) {
		size := fitFontSize(titleFont, strings.Repeat("W", 5000), DefaultTitleFontSize, maxWidth)
		assert.Equal(t, minFontSize, size)
	})

	t.Run("very long text is fitted quickly", func(t *testing.T) {
		startTime := time.Now()
		size := fitFontSize(titleFont, strings.Repeat("Curonian Spit ", 1500), DefaultTitleFontSize, maxWidth)
		assert.Equal(t, minFontSize, size)
		assert.Less(t, time.Since(startTime), 2*time.Second)
	})
}

func Test_fitSize(t *testing.T) {
	tests := []struct {
		Name         string
		TextWidth    float64
		DefaultSize  float64
		MaxWidth     int
		ExpectedSize float64
	}{
		{"fits at the default size", 2, 110, 1240, 110},
		{"scaled down", 20, 110, 1240, 62},
		{"exactly fits", 31, 110, 1240, 40},
		{"never fits", 100000, 110, 1240, minFontSize},
		{"default below the minimum", 2, 0.5, 1240, minFontSize},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			var measurements int
			measure := func(size float64) int {
				measurements++
				return int(math.Ceil(size * test.TextWidth))
			}

			size := fitSize(measure, test.DefaultSize, test.MaxWidth)
			assert.Equal(t, test.ExpectedSize, size)
			// bisection over 110 sizes
			assert.LessOrEqual(t, measurements, 9)
		})
	}
}

func Test_coverSourceRect(t *testing.T) {
	tests := []struct {
		Name     string
		Src      image.Rectangle
		Dst      image.Point
		Expected image.Rectangle
	}{
		{"same aspect ratio", image.Rect(0, 0, 200, 100), image.Pt(400, 200), image.Rect(0, 0, 200, 100)},
		{"wider source is cropped horizontally", image.Rect(0, 0, 400, 100), image.Pt(100, 100), image.Rect(150, 0, 250, 100)},
		{"taller source is cropped vertically", image.Rect(0, 0, 100, 400), image.Pt(100, 100), image.Rect(0, 150, 100, 250)},
		{"offset source", image.Rect(10, 10, 110, 410), image.Pt(100, 100), image.Rect(10, 160, 110, 260)},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			assert.Equal(t, test.Expected, coverSourceRect(test.Src, test.Dst))
		})
	}
}
