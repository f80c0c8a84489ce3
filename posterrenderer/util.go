package posterrenderer

import (
	"image"
	"image/color"
	"image/draw"
)

func NewImageWithBackground(r image.Rectangle, c color.Color) *image.RGBA {
	img := image.NewRGBA(r)

	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)

	return img
}

// coverSourceRect returns the largest rectangle, centered in src, with the same aspect ratio as dst.
// Scaling it onto dst fills dst completely without distortion.
func coverSourceRect(src image.Rectangle, dst image.Point) image.Rectangle {
	srcWidth := src.Dx()
	srcHeight := src.Dy()

	cropWidth := srcWidth
	cropHeight := srcHeight

	if srcWidth*dst.Y > srcHeight*dst.X {
		cropWidth = srcHeight * dst.X / dst.Y
	} else {
		cropHeight = srcWidth * dst.Y / dst.X
	}

	if cropWidth < 1 {
		cropWidth = 1
	}
	if cropHeight < 1 {
		cropHeight = 1
	}

	minX := src.Min.X + (srcWidth-cropWidth)/2
	minY := src.Min.Y + (srcHeight-cropHeight)/2

	return image.Rect(minX, minY, minX+cropWidth, minY+cropHeight)
}
