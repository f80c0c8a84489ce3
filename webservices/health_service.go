package webservices

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
)

// HealthService is a liveness probe. It does not touch the render pipeline.
type HealthService struct {
	chi.Router
}

func NewHealthService() *HealthService {
	hs := &HealthService{chi.NewRouter()}
	hs.Get("/", hs.handleGet)

	return hs
}

type healthResponse struct {
	OK bool `json:"ok"`
}

func (hs *HealthService) handleGet(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{OK: true})
}
