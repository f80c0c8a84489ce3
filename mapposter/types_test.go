package mapposter

import (
	"encoding/json"
	"testing"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseZoomLevel(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected ZoomLevel
		code     ErrorCode
	}{
		{"lowest", "0", 0, ""},
		{"highest", "20", 20, ""},
		{"padded", " 12 ", 12, ""},
		{"float but whole", "12.0", 12, ""},
		{"empty", "", 0, CodeInvalidZoom},
		{"not a number", "abc", 0, CodeInvalidZoom},
		{"too high", "99", 0, CodeInvalidZoom},
		{"negative", "-1", 0, CodeInvalidZoom},
		{"fractional", "12.5", 0, CodeInvalidZoom},
		{"nan", "NaN", 0, CodeInvalidZoom},
		{"infinity", "+Inf", 0, CodeInvalidZoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zoom, err := ParseZoomLevel(tt.raw)
			if tt.code != "" {
				require.Error(t, err)
				assert.Equal(t, tt.code, CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, zoom)
		})
	}
}

func TestZoomValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected ZoomValue
		wantErr  bool
	}{
		{"string", `{"zoom":"12"}`, NewZoomValue("12"), false},
		{"number", `{"zoom":12}`, NewZoomValue("12"), false},
		{"float number", `{"zoom":12.5}`, NewZoomValue("12.5"), false},
		{"null", `{"zoom":null}`, ZoomValue{}, false},
		{"missing", `{}`, ZoomValue{}, false},
		{"bool", `{"zoom":true}`, ZoomValue{}, true},
		{"object", `{"zoom":{}}`, ZoomValue{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req RenderRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, req.Zoom)
		})
	}
}

func TestRenderRequest_Validate(t *testing.T) {
	valid := RenderRequest{
		Title:    "ŽARĖNAI",
		Subtitle: "TELŠIŲ R., LT",
		Zoom:     NewZoomValue("12"),
		MapsLink: " https://maps.google.com/?q=55.7,22.3 ",
	}

	t.Run("valid", func(t *testing.T) {
		validated, err := valid.Validate()
		require.NoError(t, err)
		assert.Equal(t, ValidatedRequest{
			Title:    "ŽARĖNAI",
			Subtitle: "TELŠIŲ R., LT",
			ZoomRaw:  "12",
			Zoom:     12,
			MapsLink: "https://maps.google.com/?q=55.7,22.3",
			Output:   OutputFormatPNG,
		}, validated)
	})

	t.Run("title is kept verbatim", func(t *testing.T) {
		req := valid
		req.Title = "žarėnai "
		validated, err := req.Validate()
		require.NoError(t, err)
		assert.Equal(t, "žarėnai ", validated.Title)
	})

	failures := []struct {
		name   string
		modify func(r *RenderRequest)
		code   ErrorCode
	}{
		{"empty title", func(r *RenderRequest) { r.Title = "" }, CodeBadRequest},
		{"whitespace title", func(r *RenderRequest) { r.Title = "  \t" }, CodeBadRequest},
		{"missing link", func(r *RenderRequest) { r.MapsLink = "" }, CodeBadRequest},
		{"missing zoom", func(r *RenderRequest) { r.Zoom = ZoomValue{} }, CodeBadRequest},
		{"zoom out of range", func(r *RenderRequest) { r.Zoom = NewZoomValue("99") }, CodeInvalidZoom},
		{"zoom unparsable", func(r *RenderRequest) { r.Zoom = NewZoomValue("twelve") }, CodeInvalidZoom},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.modify(&req)
			_, err := req.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	assert.Equal(t, OutputFormatPNG, ParseOutputFormat(""))
	assert.Equal(t, OutputFormatPNG, ParseOutputFormat("png"))
	assert.Equal(t, OutputFormatPNG, ParseOutputFormat("GIF"))
	assert.Equal(t, OutputFormatJPEG, ParseOutputFormat("jpg"))
	assert.Equal(t, OutputFormatPDF, ParseOutputFormat(" pdf "))
	assert.Equal(t, "image/jpeg", OutputFormatJPEG.ContentType())
	assert.Equal(t, "image/png", OutputFormatPNG.ContentType())
	assert.Equal(t, "application/pdf", OutputFormatPDF.ContentType())
}

func TestZoomValue_UnmarshalJSON_errorHasStack(t *testing.T) {
	var z ZoomValue
	err := z.UnmarshalJSON([]byte("true"))
	require.Error(t, err)

	stackErr, ok := err.(errorsx.Error)
	require.True(t, ok)
	assert.NotEmpty(t, stackErr.Stack())
	assert.Contains(t, err.Error(), "zoom must be a string or a number")
}

func TestLatLng_IsValid(t *testing.T) {
	assert.True(t, LatLng{Lat: 55.7, Lon: 22.3}.IsValid())
	assert.True(t, LatLng{Lat: -90, Lon: 180}.IsValid())
	assert.False(t, LatLng{Lat: 91, Lon: 0}.IsValid())
	assert.False(t, LatLng{Lat: 0, Lon: -181}.IsValid())
}
