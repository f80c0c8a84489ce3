package renderservice

import (
	"context"
	"image"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/mapposter-app/mapposter"
	"github.com/jamesrr39/mapposter-app/metrics"
	"github.com/jamesrr39/semaphore"
)

type LocationResolver interface {
	Resolve(ctx context.Context, mapsLink string, zoomRaw string) (mapposter.ResolvedLocation, errorsx.Error)
}

type MapTileProvider interface {
	Fetch(ctx context.Context, center mapposter.LatLng, zoom mapposter.ZoomLevel, viewport image.Point) (image.Image, errorsx.Error)
}

type PosterComposer interface {
	Compose(base image.Image, title, subtitle string) (*image.RGBA, errorsx.Error)
}

type EncodeFunc func(canvas *image.RGBA, format mapposter.OutputFormat) ([]byte, string, errorsx.Error)

type RenderResult struct {
	Data        []byte
	ContentType string
	RenderID    string
}

// RenderService runs render requests through the pipeline: validate, resolve the location,
// fetch the base map, compose the poster and encode it.
// Composition and encoding are CPU heavy, so at most renderConcurrency of them run at once; further renders queue.
type RenderService struct {
	logger      *logpkg.Logger
	resolver    LocationResolver
	provider    MapTileProvider
	composer    PosterComposer
	encode      EncodeFunc
	mapViewport image.Point
	pool        *semaphore.Semaphore
}

func NewRenderService(
	logger *logpkg.Logger,
	resolver LocationResolver,
	provider MapTileProvider,
	composer PosterComposer,
	encode EncodeFunc,
	mapViewport image.Point,
	renderConcurrency uint,
) *RenderService {
	if renderConcurrency == 0 {
		renderConcurrency = 1
	}

	return &RenderService{
		logger:      logger,
		resolver:    resolver,
		provider:    provider,
		composer:    composer,
		encode:      encode,
		mapViewport: mapViewport,
		pool:        semaphore.NewSemaphore(renderConcurrency),
	}
}

// Render never retries. On failure, the returned error carries the code of the component that failed.
func (s *RenderService) Render(ctx context.Context, req mapposter.RenderRequest) (*RenderResult, errorsx.Error) {
	run := newRenderRun(s.logger)

	result, err := s.render(ctx, run, req)
	if err != nil {
		run.fail(ctx, err)
		return nil, err
	}

	run.done(ctx)
	return result, nil
}

func (s *RenderService) render(ctx context.Context, run *renderRun, req mapposter.RenderRequest) (*RenderResult, errorsx.Error) {
	run.transition(ctx, StateValidating)
	validated, err := req.Validate()
	if err != nil {
		return nil, err
	}

	// the whole pipeline, tile fetching included, runs inside the pool
	s.pool.Add()
	metrics.RenderPoolInUse.Inc()
	defer func() {
		metrics.RenderPoolInUse.Dec()
		s.pool.Done()
	}()

	// the request may have waited in the queue
	err = checkNotAbandoned(ctx, StateResolving)
	if err != nil {
		return nil, err
	}
	run.transition(ctx, StateResolving)
	location, err := s.resolver.Resolve(ctx, validated.MapsLink, validated.ZoomRaw)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("render %s: resolved %q to %s at zoom %d", run.id, validated.MapsLink, location.Center, location.Zoom)

	err = checkNotAbandoned(ctx, StateFetching)
	if err != nil {
		return nil, err
	}
	run.transition(ctx, StateFetching)
	baseMap, err := s.provider.Fetch(ctx, location.Center, location.Zoom, s.mapViewport)
	if err != nil {
		return nil, err
	}

	err = checkNotAbandoned(ctx, StateComposing)
	if err != nil {
		return nil, err
	}
	run.transition(ctx, StateComposing)
	canvas, err := s.composer.Compose(baseMap, validated.Title, validated.Subtitle)
	if err != nil {
		return nil, err
	}

	run.transition(ctx, StateEncoding)
	data, contentType, err := s.encode(canvas, validated.Output)
	if err != nil {
		return nil, err
	}

	return &RenderResult{
		Data:        data,
		ContentType: contentType,
		RenderID:    run.id,
	}, nil
}

func checkNotAbandoned(ctx context.Context, next State) errorsx.Error {
	if ctx.Err() != nil {
		return errorsx.Wrap(ctx.Err(), "abandonedBefore", next)
	}

	return nil
}
