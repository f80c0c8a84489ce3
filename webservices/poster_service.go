package webservices

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/mapposter-app/mapposter"
	"github.com/jamesrr39/mapposter-app/renderservice"
)

const (
	maxRequestBodyBytes = 64 * 1024
	RenderIDHeader      = "X-Render-Id"
)

type Renderer interface {
	Render(ctx context.Context, req mapposter.RenderRequest) (*renderservice.RenderResult, errorsx.Error)
}

type PosterService struct {
	logger   *logpkg.Logger
	renderer Renderer
	chi.Router
}

func NewPosterService(logger *logpkg.Logger, renderer Renderer) *PosterService {
	ps := &PosterService{logger, renderer, chi.NewRouter()}
	ps.Post("/", ps.handlePostRender)

	return ps
}

type errorResponse struct {
	Code    mapposter.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

func (ps *PosterService) handlePostRender(w http.ResponseWriter, r *http.Request) {
	var req mapposter.RenderRequest
	err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes), &req)
	if err != nil {
		writeError(w, r, ps.logger, mapposter.NewError(mapposter.CodeBadRequest, "request body is not a valid render request: %s", err))
		return
	}

	result, renderErr := ps.renderer.Render(r.Context(), req)
	if renderErr != nil {
		writeError(w, r, ps.logger, renderErr)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set(RenderIDHeader, result.RenderID)
	w.WriteHeader(http.StatusOK)

	_, err = w.Write(result.Data)
	if err != nil {
		ps.logger.Warn("writing render %s to the client failed. Error: %q", result.RenderID, err)
	}
}

// writeError writes the error code and message as JSON. Stack traces are only logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, logger *logpkg.Logger, err errorsx.Error) {
	renderErr := mapposter.AsRenderError(err)
	statusCode := StatusCodeForError(renderErr.Code)

	if statusCode < 500 {
		logger.Warn("%s %s: %s", r.Method, r.URL.Path, err.Error())
	} else {
		logger.Error("%s %s: %s. Stack trace:\n%s", r.Method, r.URL.Path, err.Error(), err.Stack())
	}

	render.Status(r, statusCode)
	render.JSON(w, r, errorResponse{renderErr.Code, renderErr.Message})
}

func StatusCodeForError(code mapposter.ErrorCode) int {
	switch code {
	case mapposter.CodeBadRequest, mapposter.CodeInvalidZoom:
		return http.StatusBadRequest
	case mapposter.CodeUnresolvableLocation:
		return http.StatusUnprocessableEntity
	case mapposter.CodeResolveTimeout, mapposter.CodeProviderTimeout:
		return http.StatusGatewayTimeout
	case mapposter.CodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
