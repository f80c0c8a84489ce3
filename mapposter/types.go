package mapposter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
)

type ZoomLevel int

// Supported slippy map zoom range. Matches what public XYZ tile servers serve.
const (
	MinZoomLevel ZoomLevel = 0
	MaxZoomLevel ZoomLevel = 20
)

// ParseZoomLevel parses a zoom given as text. The value must be a whole number inside the supported range.
func ParseZoomLevel(raw string) (ZoomLevel, errorsx.Error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, NewError(CodeInvalidZoom, "zoom is empty")
	}

	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, NewError(CodeInvalidZoom, "zoom %s is not a number", trimmed)
	}

	if f < float64(MinZoomLevel) || f > float64(MaxZoomLevel) {
		return 0, NewError(CodeInvalidZoom, "zoom %s is outside the supported range %d-%d", trimmed, MinZoomLevel, MaxZoomLevel)
	}

	if math.Trunc(f) != f {
		return 0, NewError(CodeInvalidZoom, "zoom %s is not a whole number", trimmed)
	}

	return ZoomLevel(f), nil
}

// ZoomValue holds the zoom field of a request, which clients send either as a JSON string or a JSON number.
type ZoomValue struct {
	Raw   string
	IsSet bool
}

func NewZoomValue(raw string) ZoomValue {
	return ZoomValue{Raw: raw, IsSet: true}
}

func (z *ZoomValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*z = ZoomValue{}
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		err := json.Unmarshal(b, &s)
		if err != nil {
			return err
		}
		*z = NewZoomValue(s)
		return nil
	}

	var n json.Number
	err := json.Unmarshal(b, &n)
	if err != nil {
		return errorsx.Errorf("zoom must be a string or a number, got %s", b)
	}

	*z = NewZoomValue(n.String())
	return nil
}

func (z ZoomValue) MarshalJSON() ([]byte, error) {
	if !z.IsSet {
		return []byte("null"), nil
	}
	return json.Marshal(z.Raw)
}

type OutputFormat string

const (
	OutputFormatPNG  OutputFormat = "PNG"
	OutputFormatJPEG OutputFormat = "JPEG"
	OutputFormatPDF  OutputFormat = "PDF"
)

// ParseOutputFormat is lenient: anything unrecognised renders as PNG.
func ParseOutputFormat(s string) OutputFormat {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "JPEG", "JPG":
		return OutputFormatJPEG
	case "PDF":
		return OutputFormatPDF
	default:
		return OutputFormatPNG
	}
}

func (f OutputFormat) ContentType() string {
	switch f {
	case OutputFormatJPEG:
		return "image/jpeg"
	case OutputFormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (ll LatLng) IsValid() bool {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lon) {
		return false
	}
	return ll.Lat >= -90 && ll.Lat <= 90 && ll.Lon >= -180 && ll.Lon <= 180
}

func (ll LatLng) String() string {
	return fmt.Sprintf("%f,%f", ll.Lat, ll.Lon)
}

type ResolvedLocation struct {
	Center LatLng
	Zoom   ZoomLevel
}

// RenderRequest is the body of a render call, as sent by the client.
type RenderRequest struct {
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle"`
	Zoom     ZoomValue `json:"zoom"`
	MapsLink string    `json:"maps_link"`
	Output   string    `json:"output,omitempty"`
}

// ValidatedRequest is a RenderRequest that passed Validate. It is passed by value and never modified afterwards.
type ValidatedRequest struct {
	Title    string
	Subtitle string
	ZoomRaw  string
	Zoom     ZoomLevel
	MapsLink string
	Output   OutputFormat
}

// Validate checks every field without doing any I/O.
func (r RenderRequest) Validate() (ValidatedRequest, errorsx.Error) {
	if strings.TrimSpace(r.Title) == "" {
		return ValidatedRequest{}, NewError(CodeBadRequest, "title is required")
	}

	mapsLink := strings.TrimSpace(r.MapsLink)
	if mapsLink == "" {
		return ValidatedRequest{}, NewError(CodeBadRequest, "maps_link is required")
	}

	if !r.Zoom.IsSet {
		return ValidatedRequest{}, NewError(CodeBadRequest, "zoom is required")
	}

	zoom, err := ParseZoomLevel(r.Zoom.Raw)
	if err != nil {
		return ValidatedRequest{}, err
	}

	return ValidatedRequest{
		Title:    r.Title,
		Subtitle: r.Subtitle,
		ZoomRaw:  strings.TrimSpace(r.Zoom.Raw),
		Zoom:     zoom,
		MapsLink: mapsLink,
		Output:   ParseOutputFormat(r.Output),
	}, nil
}
