package webservices

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/mapposter-app/mapposter"
)

type DocsService struct {
	logger *logpkg.Logger
	chi.Router
}

func NewDocsService(logger *logpkg.Logger) *DocsService {
	ds := &DocsService{logger, chi.NewRouter()}
	ds.Get("/", ds.handleGet)

	return ds
}

func (ds *DocsService) handleGet(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"MinZoomLevel": mapposter.MinZoomLevel,
		"MaxZoomLevel": mapposter.MaxZoomLevel,
		"ErrorCodes": []struct {
			Code       mapposter.ErrorCode
			StatusCode int
		}{
			{mapposter.CodeBadRequest, StatusCodeForError(mapposter.CodeBadRequest)},
			{mapposter.CodeInvalidZoom, StatusCodeForError(mapposter.CodeInvalidZoom)},
			{mapposter.CodeUnresolvableLocation, StatusCodeForError(mapposter.CodeUnresolvableLocation)},
			{mapposter.CodeResolveTimeout, StatusCodeForError(mapposter.CodeResolveTimeout)},
			{mapposter.CodeProviderError, StatusCodeForError(mapposter.CodeProviderError)},
			{mapposter.CodeProviderTimeout, StatusCodeForError(mapposter.CodeProviderTimeout)},
			{mapposter.CodeEncodingError, StatusCodeForError(mapposter.CodeEncodingError)},
		},
	}

	buf := new(bytes.Buffer)
	err := docsTmpl.Execute(buf, data)
	if err != nil {
		errorsx.HTTPError(w, ds.logger, errorsx.Wrap(err), http.StatusInternalServerError)
		return
	}

	render.HTML(w, r, buf.String())
}

var docsTmpl *template.Template

func init() {
	var err error
	docsTmpl, err = template.New("docs/index.html").Parse(docsTemplate)
	if err != nil {
		panic(err)
	}
}

const docsTemplate = `<!DOCTYPE html>
<html>
	<head>
		<title>Map poster render service</title>
		<style type="text/css">
		body {
			font-family: sans-serif;
			max-width: 800px;
			margin: 20px auto;
		}
		pre {
			background: #eee;
			padding: 10px;
		}
		</style>
	</head>
	<body>
		<h1>Map poster render service</h1>

		<h2>POST /render</h2>
		<p>Renders a map poster and returns the image.</p>
		<ul>
			<li><code>title</code> (required): the main caption, drawn as given</li>
			<li><code>subtitle</code>: a second caption line, may be empty</li>
			<li><code>zoom</code> (required): a string or number between {{.MinZoomLevel}} and {{.MaxZoomLevel}}</li>
			<li><code>maps_link</code> (required): a maps URL containing coordinates, a short link redirecting to one, or <code>lat,lon</code></li>
			<li><code>output</code>: <code>PNG</code> (default), <code>JPEG</code> or <code>PDF</code></li>
		</ul>
		<pre>curl -X POST http://localhost:8080/render \
	-H 'Content-Type: application/json' \
	-d '{"title": "ŽARĖNAI", "subtitle": "TELŠIŲ R., LT", "zoom": "12", "maps_link": "https://maps.google.com/?q=55.7,22.3"}' \
	-o poster.png</pre>
		<p>The render ID is returned in the <code>X-Render-Id</code> header.</p>
		<p>Errors are returned as <code>{"code": "...", "message": "..."}</code>:</p>
		<table>
			<tr><th>Code</th><th>HTTP status</th></tr>
			{{range .ErrorCodes}}<tr><td>{{.Code}}</td><td>{{.StatusCode}}</td></tr>
			{{end}}
		</table>

		<h2>GET /health</h2>
		<p>Liveness probe, returns <code>{"ok":true}</code>.</p>

		<h2>GET /metrics</h2>
		<p>Prometheus metrics.</p>
	</body>
</html>
`
