package posterrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/mapposter-app/mapposter"
	"seehuhn.de/go/pdf"
	pdfimage "seehuhn.de/go/pdf/image"
	"seehuhn.de/go/pdf/pagetree"
)

const JPEGQuality = 92

// Encode serializes the poster in the requested format, returning the bytes and their content type.
func Encode(canvas *image.RGBA, format mapposter.OutputFormat) ([]byte, string, errorsx.Error) {
	if canvas == nil || canvas.Bounds().Empty() {
		return nil, "", mapposter.NewError(mapposter.CodeEncodingError, "poster canvas is empty")
	}

	buf := new(bytes.Buffer)

	var err error
	switch format {
	case mapposter.OutputFormatPNG:
		err = png.Encode(buf, canvas)
	case mapposter.OutputFormatJPEG:
		err = jpeg.Encode(buf, canvas, &jpeg.Options{Quality: JPEGQuality})
	case mapposter.OutputFormatPDF:
		err = encodePDF(buf, canvas)
	default:
		return nil, "", mapposter.NewError(mapposter.CodeEncodingError, "unsupported output format %q", format)
	}
	if err != nil {
		return nil, "", mapposter.NewError(mapposter.CodeEncodingError, "encoding %s failed: %s", format, err)
	}

	return buf.Bytes(), format.ContentType(), nil
}

// encodePDF writes a single page document. The page is sized one PDF point per canvas pixel
// and the poster is embedded as a JPEG image XObject covering it.
func encodePDF(buf *bytes.Buffer, canvas *image.RGBA) error {
	out, err := pdf.NewWriter(buf, nil)
	if err != nil {
		return errorsx.Wrap(err)
	}

	imageRef := out.Alloc()
	err = pdfimage.EmbedAsJPEG(out, imageRef, canvas, &jpeg.Options{Quality: JPEGQuality})
	if err != nil {
		return errorsx.Wrap(err)
	}

	width, height := canvas.Bounds().Dx(), canvas.Bounds().Dy()

	contentRef := out.Alloc()
	stream, err := out.OpenStream(contentRef, nil)
	if err != nil {
		return errorsx.Wrap(err)
	}
	_, err = fmt.Fprintf(stream, "q %d 0 0 %d 0 0 cm /Im0 Do Q\n", width, height)
	if err != nil {
		return errorsx.Wrap(err)
	}
	err = stream.Close()
	if err != nil {
		return errorsx.Wrap(err)
	}

	tree := pagetree.NewWriter(out, nil)
	err = tree.AppendPage(pdf.Dict{
		"Type":     pdf.Name("Page"),
		"MediaBox": pdf.Array{pdf.Integer(0), pdf.Integer(0), pdf.Integer(width), pdf.Integer(height)},
		"Resources": pdf.Dict{
			"XObject": pdf.Dict{"Im0": imageRef},
		},
		"Contents": contentRef,
	})
	if err != nil {
		return errorsx.Wrap(err)
	}

	pagesRef, err := tree.Close()
	if err != nil {
		return errorsx.Wrap(err)
	}
	out.Catalog.Pages = pagesRef

	err = out.Close()
	if err != nil {
		return errorsx.Wrap(err)
	}

	return nil
}
