package locationresolver

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/mapposter-app/mapposter"
	"github.com/jamesrr39/mapposter-app/metrics"
)

const (
	DefaultResolveTimeout = 5 * time.Second
	userAgent             = "mapposter-app/1.0"
	maxDrainedBodyBytes   = 64 * 1024
	retryInterval         = 100 * time.Millisecond
)

type Resolver struct {
	logger  *logpkg.Logger
	client  httpextra.Doer
	timeout time.Duration
}

// NewResolver creates a resolver. The client should not follow redirects (see NewHTTPClient); the resolver follows one hop itself.
func NewResolver(logger *logpkg.Logger, client httpextra.Doer, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &Resolver{logger, client, timeout}
}

// NewHTTPClient returns a client that hands redirect responses back to the caller instead of following them.
func NewHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Resolve turns a maps link and a zoom into a center coordinate and zoom level.
// The only I/O is resolving short links, which is bounded by the resolver's timeout.
func (r *Resolver) Resolve(ctx context.Context, mapsLink string, zoomRaw string) (mapposter.ResolvedLocation, errorsx.Error) {
	zoom, err := mapposter.ParseZoomLevel(zoomRaw)
	if err != nil {
		return mapposter.ResolvedLocation{}, err
	}

	center, err := r.resolveCenter(ctx, mapsLink)
	if err != nil {
		return mapposter.ResolvedLocation{}, err
	}

	return mapposter.ResolvedLocation{
		Center: center,
		Zoom:   zoom,
	}, nil
}

func (r *Resolver) resolveCenter(ctx context.Context, mapsLink string) (mapposter.LatLng, errorsx.Error) {
	mapsLink = strings.TrimSpace(mapsLink)

	latLng, ok := ParsePair(mapsLink)
	if ok {
		return latLng, nil
	}

	linkURL, err := url.Parse(mapsLink)
	if err != nil {
		return mapposter.LatLng{}, mapposter.NewError(mapposter.CodeUnresolvableLocation, "maps_link is not a valid URL")
	}

	if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
		return mapposter.LatLng{}, mapposter.NewError(mapposter.CodeUnresolvableLocation, "maps_link must be an http(s) URL or a lat,lon pair")
	}

	if linkURL.Host == "" {
		return mapposter.LatLng{}, mapposter.NewError(mapposter.CodeUnresolvableLocation, "maps_link has no host")
	}

	latLng, ok = CoordinatesFromURL(linkURL)
	if ok {
		return latLng, nil
	}

	// no coordinates in the link itself; treat it as a short link and follow one redirect
	targetURL, err := r.followRedirect(ctx, linkURL)
	if err != nil {
		return mapposter.LatLng{}, errorsx.Wrap(err)
	}

	latLng, ok = CoordinatesFromURL(targetURL)
	if !ok {
		return mapposter.LatLng{}, mapposter.NewError(mapposter.CodeUnresolvableLocation, "no coordinates found in maps_link or the address it redirects to")
	}

	r.logger.Debug("resolved short link %q to %s", linkURL.String(), latLng)

	return latLng, nil
}

func (r *Resolver) followRedirect(ctx context.Context, linkURL *url.URL) (*url.URL, errorsx.Error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, linkURL.String(), nil)
	if err != nil {
		return nil, mapposter.NewError(mapposter.CodeUnresolvableLocation, "maps_link is not a valid URL")
	}
	req.Header.Set("User-Agent", userAgent)

	startTime := time.Now()
	resp, err := r.doUntilDeadline(ctx, req)
	if err != nil {
		metrics.ShortLinkResolutionsTotal.WithLabelValues("timeout").Inc()
		r.logger.Warn("gave up after %s resolving %q. Last error: %q", time.Since(startTime), linkURL.String(), err)
		return nil, mapposter.NewError(mapposter.CodeResolveTimeout, "resolving maps_link timed out after %s", r.timeout)
	}
	defer resp.Body.Close()

	metrics.ShortLinkResolutionsTotal.WithLabelValues("resolved").Inc()

	// drain a little of the body so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedBodyBytes))

	location := resp.Header.Get("Location")
	if location != "" {
		targetURL, err := linkURL.Parse(location)
		if err != nil {
			return nil, mapposter.NewError(mapposter.CodeUnresolvableLocation, "maps_link redirected to an invalid address")
		}
		return targetURL, nil
	}

	// a client that follows redirects itself reports the final address on the response
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL, nil
	}

	return nil, mapposter.NewError(mapposter.CodeUnresolvableLocation, "maps_link did not redirect (status %d)", resp.StatusCode)
}

// doUntilDeadline keeps retrying a request whose host cannot be reached until ctx is done.
// An error is only returned once ctx is done.
func (r *Resolver) doUntilDeadline(ctx context.Context, req *http.Request) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := r.client.Do(req.Clone(ctx))
		if err == nil {
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, errorsx.Wrap(err)
		}

		r.logger.Debug("attempt %d to reach %q failed, retrying. Error: %q", attempt, req.URL.Host, err)

		select {
		case <-ctx.Done():
			return nil, errorsx.Wrap(err)
		case <-time.After(retryInterval):
		}
	}
}
