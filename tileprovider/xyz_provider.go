package tileprovider

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // tile servers serve JPEG as well as PNG
	_ "image/png"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/mapposter-app/mapposter"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
)

const DefaultURLTemplate = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

// XYZConfig configures an XYZTileProvider. Zero values are replaced by the defaults in DefaultXYZConfig.
type XYZConfig struct {
	URLTemplate string
	UserAgent   string
	// Timeout bounds a whole Fetch call
	Timeout                    time.Duration
	MaxAttempts                int
	RetryDelay                 time.Duration
	FetchConcurrency           int
	CacheSize                  int
	BreakerConsecutiveFailures uint32
	BreakerOpenTimeout         time.Duration
	// BackgroundColor fills the parts of the viewport outside the mercator world
	BackgroundColor color.Color
}

func DefaultXYZConfig() XYZConfig {
	return XYZConfig{
		URLTemplate:                DefaultURLTemplate,
		UserAgent:                  "mapposter-app/1.0 (+https://github.com/jamesrr39/mapposter-app)",
		Timeout:                    8 * time.Second,
		MaxAttempts:                3,
		RetryDelay:                 200 * time.Millisecond,
		FetchConcurrency:           8,
		CacheSize:                  2048,
		BreakerConsecutiveFailures: 5,
		BreakerOpenTimeout:         30 * time.Second,
		BackgroundColor:            color.RGBA{R: 0xaa, G: 0xd3, B: 0xdf, A: 0xff},
	}
}

func (conf XYZConfig) withDefaults() XYZConfig {
	defaults := DefaultXYZConfig()
	if conf.URLTemplate == "" {
		conf.URLTemplate = defaults.URLTemplate
	}
	if conf.UserAgent == "" {
		conf.UserAgent = defaults.UserAgent
	}
	if conf.Timeout <= 0 {
		conf.Timeout = defaults.Timeout
	}
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = defaults.MaxAttempts
	}
	if conf.RetryDelay <= 0 {
		conf.RetryDelay = defaults.RetryDelay
	}
	if conf.FetchConcurrency <= 0 {
		conf.FetchConcurrency = defaults.FetchConcurrency
	}
	if conf.CacheSize <= 0 {
		conf.CacheSize = defaults.CacheSize
	}
	if conf.BreakerConsecutiveFailures == 0 {
		conf.BreakerConsecutiveFailures = defaults.BreakerConsecutiveFailures
	}
	if conf.BreakerOpenTimeout <= 0 {
		conf.BreakerOpenTimeout = defaults.BreakerOpenTimeout
	}
	if conf.BackgroundColor == nil {
		conf.BackgroundColor = defaults.BackgroundColor
	}
	return conf
}

// XYZTileProvider builds base map images by stitching slippy map tiles from a tile server.
type XYZTileProvider struct {
	logger *logpkg.Logger
	conf   XYZConfig
	client *tileClient
}

func NewXYZTileProvider(logger *logpkg.Logger, doer httpextra.Doer, conf XYZConfig) (*XYZTileProvider, errorsx.Error) {
	conf = conf.withDefaults()

	client, err := newTileClient(logger, doer, conf)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return &XYZTileProvider{logger, conf, client}, nil
}

func (p *XYZTileProvider) Fetch(ctx context.Context, center mapposter.LatLng, zoom mapposter.ZoomLevel, viewport image.Point) (image.Image, errorsx.Error) {
	if viewport.X <= 0 || viewport.Y <= 0 {
		return nil, mapposter.NewError(mapposter.CodeProviderError, "invalid viewport size %v", viewport)
	}

	ctx, cancel := context.WithTimeout(ctx, p.conf.Timeout)
	defer cancel()

	bounds := ViewportBounds(center, zoom, viewport)
	p.logger.Debug("fetching base map at zoom %d. Bounds (NW, SE): [%f %f, %f %f]", zoom, bounds.MaxLat, bounds.MinLon, bounds.MinLat, bounds.MaxLon)

	placements := tilePlacements(center, zoom, viewport)
	tileImages := make([]image.Image, len(placements))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.conf.FetchConcurrency)

	for i, placement := range placements {
		if !placement.InRange {
			continue
		}

		i, placement := i, placement
		group.Go(func() error {
			tileBytes, err := p.client.GetTile(groupCtx, placement.Tile)
			if err != nil {
				return errorsx.Wrap(err, "tile", placement.Tile)
			}

			img, _, err := image.Decode(bytes.NewReader(tileBytes))
			if err != nil {
				return mapposter.NewError(mapposter.CodeProviderError, "tile %d/%d/%d could not be decoded", placement.Tile.Z, placement.Tile.X, placement.Tile.Y)
			}

			tileImages[i] = img
			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, p.classifyError(ctx, err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, viewport.X, viewport.Y))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(p.conf.BackgroundColor), image.Point{}, draw.Src)

	for i, placement := range placements {
		img := tileImages[i]
		if img == nil {
			continue
		}

		destRect := image.Rectangle{Min: placement.Dest, Max: placement.Dest.Add(image.Pt(TileSize, TileSize))}
		draw.Draw(canvas, destRect, img, img.Bounds().Min, draw.Src)
	}

	return canvas, nil
}

func (p *XYZTileProvider) classifyError(ctx context.Context, err error) errorsx.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		p.logger.Warn("fetching base map timed out after %s. Error: %q", p.conf.Timeout, err)
		return mapposter.NewError(mapposter.CodeProviderTimeout, "fetching the base map timed out after %s", p.conf.Timeout)
	}

	if mapposter.CodeOf(err) != mapposter.CodeInternal {
		return errorsx.Wrap(err)
	}

	p.logger.Warn("fetching base map failed. Error: %q", err)

	if errors.Is(errorsx.Cause(err), gobreaker.ErrOpenState) || errors.Is(errorsx.Cause(err), gobreaker.ErrTooManyRequests) {
		return mapposter.NewError(mapposter.CodeProviderError, "tile server is unavailable")
	}

	return mapposter.NewError(mapposter.CodeProviderError, "fetching the base map failed")
}
