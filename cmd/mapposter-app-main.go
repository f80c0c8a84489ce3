package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/mapposter-app/fonts"
	"github.com/jamesrr39/mapposter-app/locationresolver"
	"github.com/jamesrr39/mapposter-app/mapposter"
	"github.com/jamesrr39/mapposter-app/posterrenderer"
	"github.com/jamesrr39/mapposter-app/renderservice"
	"github.com/jamesrr39/mapposter-app/tileprovider"
	"github.com/jamesrr39/mapposter-app/webservices"
	"github.com/pkg/profile"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	DEFAULT_PORT = 8080
	// PLACEHOLDER_TILE_URL_TEMPLATE draws an offline placeholder map instead of fetching tiles
	PLACEHOLDER_TILE_URL_TEMPLATE = "placeholder"
	SHUTDOWN_TIMEOUT              = 30 * time.Second
)

func main() {
	verbose := kingpin.Flag("v", "verbose logging").Envar("VERBOSE").Bool()

	setupServe(verbose)
	setupRender(verbose)

	kingpin.Parse()
}

func newLogger(verbose bool) *logpkg.Logger {
	logLevel := logpkg.LogLevelInfo
	if verbose {
		logLevel = logpkg.LogLevelDebug
	}
	return logpkg.NewLogger(os.Stderr, logLevel)
}

type pipelineFlags struct {
	tileURLTemplate      *string
	tileUserAgent        *string
	resolveTimeout       *time.Duration
	providerTimeout      *time.Duration
	tileFetchConcurrency *int
	tileCacheSize        *int
	renderConcurrency    *uint
}

func addPipelineFlags(cmd *kingpin.CmdClause) *pipelineFlags {
	return &pipelineFlags{
		tileURLTemplate: cmd.Flag(
			"tile-url-template",
			fmt.Sprintf("XYZ tile server URL template, with {z}, {x} and {y} placeholders. Use %q to draw an offline placeholder map", PLACEHOLDER_TILE_URL_TEMPLATE),
		).Envar("TILE_URL_TEMPLATE").Default(tileprovider.DefaultURLTemplate).String(),
		tileUserAgent:        cmd.Flag("tile-user-agent", "User-Agent sent to the tile server").Envar("TILE_USER_AGENT").Default(tileprovider.DefaultXYZConfig().UserAgent).String(),
		resolveTimeout:       cmd.Flag("resolve-timeout", "timeout for resolving short maps links").Envar("RESOLVE_TIMEOUT").Default(locationresolver.DefaultResolveTimeout.String()).Duration(),
		providerTimeout:      cmd.Flag("provider-timeout", "timeout for fetching the base map").Envar("PROVIDER_TIMEOUT").Default(tileprovider.DefaultXYZConfig().Timeout.String()).Duration(),
		tileFetchConcurrency: cmd.Flag("tile-fetch-concurrency", "maximum amount of tiles fetched at once per render").Envar("TILE_FETCH_CONCURRENCY").Default(fmt.Sprintf("%d", tileprovider.DefaultXYZConfig().FetchConcurrency)).Int(),
		tileCacheSize:        cmd.Flag("tile-cache-size", "amount of tiles kept in the in-memory cache").Envar("TILE_CACHE_SIZE").Default(fmt.Sprintf("%d", tileprovider.DefaultXYZConfig().CacheSize)).Int(),
		renderConcurrency:    cmd.Flag("render-concurrency", "maximum amount of posters composed at once").Envar("RENDER_CONCURRENCY").Default(fmt.Sprintf("%d", runtime.NumCPU())).Uint(),
	}
}

func (f *pipelineFlags) createRenderService(logger *logpkg.Logger) (*renderservice.RenderService, errorsx.Error) {
	resolver := locationresolver.NewResolver(logger, locationresolver.NewHTTPClient(), *f.resolveTimeout)

	var provider renderservice.MapTileProvider
	if *f.tileURLTemplate == PLACEHOLDER_TILE_URL_TEMPLATE {
		logger.Info("drawing placeholder base maps")
		provider = tileprovider.NewPlaceholderProvider(tileprovider.DefaultPlaceholderStyle)
	} else {
		conf := tileprovider.DefaultXYZConfig()
		conf.URLTemplate = *f.tileURLTemplate
		conf.UserAgent = *f.tileUserAgent
		conf.Timeout = *f.providerTimeout
		conf.FetchConcurrency = *f.tileFetchConcurrency
		conf.CacheSize = *f.tileCacheSize

		xyzProvider, err := tileprovider.NewXYZTileProvider(logger, &http.Client{}, conf)
		if err != nil {
			return nil, errorsx.Wrap(err)
		}

		logger.Info("fetching base maps from %q", conf.URLTemplate)
		provider = xyzProvider
	}

	return renderservice.NewRenderService(
		logger,
		resolver,
		provider,
		posterrenderer.NewComposer(fonts.DefaultBoldFont(), fonts.DefaultFont()),
		posterrenderer.Encode,
		posterrenderer.MapRegion.Size(),
		*f.renderConcurrency,
	), nil
}

func createTracer(logger *logpkg.Logger, traceDirPath string) (*tracing.Tracer, errorsx.Error) {
	if traceDirPath == "" {
		return nil, nil
	}

	err := gofs.NewOsFs().MkdirAll(traceDirPath, 0755)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	traceFilePath := filepath.Join(traceDirPath, fmt.Sprintf("trace_%s.pbf", time.Now().Format("2006-01-02__15_04_05")))
	logger.Info("tracing at %q", traceFilePath)

	traceFile, err := gofs.NewOsFs().Create(traceFilePath)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return tracing.NewTracer(traceFile), nil
}

func setupServe(verbose *bool) {
	cmd := kingpin.Command("serve", "serve the render service")
	host := cmd.Flag("host", "host to listen on. Empty listens on all interfaces").Envar("HOST").Default("").String()
	port := cmd.Flag("port", "port to listen on").Envar("PORT").Default(fmt.Sprintf("%d", DEFAULT_PORT)).Uint16()
	traceDir := cmd.Flag("trace-dir", "directory to write request traces to. Tracing is disabled if empty").Envar("TRACE_DIR").String()
	shouldProfile := cmd.Flag("profile", "write a CPU profile while serving").Bool()
	pipeline := addPipelineFlags(cmd)

	cmd.Action(func(ctx *kingpin.ParseContext) error {
		run := func() errorsx.Error {
			logger := newLogger(*verbose)

			if *shouldProfile {
				defer profile.Start().Stop()
			}

			renderService, err := pipeline.createRenderService(logger)
			if err != nil {
				return errorsx.Wrap(err)
			}

			tracer, err := createTracer(logger, *traceDir)
			if err != nil {
				return errorsx.Wrap(err)
			}

			server := httpextra.NewServerWithTimeouts()
			server.Addr = fmt.Sprintf("%s:%d", *host, *port)
			server.Handler = webservices.NewRouter(logger, renderService, tracer)

			shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errChan := make(chan error, 1)
			go func() {
				logger.Info("about to start serving on %q", server.Addr)
				errChan <- server.ListenAndServe()
			}()

			select {
			case err := <-errChan:
				return errorsx.Wrap(err)
			case <-shutdownCtx.Done():
				logger.Info("shutting down")
			}

			timeoutCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
			defer cancel()

			shutdownErr := server.Shutdown(timeoutCtx)
			if shutdownErr != nil {
				return errorsx.Wrap(shutdownErr)
			}

			return nil
		}

		err := run()
		if err != nil {
			return fmt.Errorf("error: %q\nStack trace:\n%s", err.Error(), err.Stack())
		}
		return nil
	})
}

func setupRender(verbose *bool) {
	cmd := kingpin.Command("render", "render one poster to a file")
	outFilePath := cmd.Arg("out-file", "file to write the poster to").Required().String()
	title := cmd.Flag("title", "poster title").Required().String()
	subtitle := cmd.Flag("subtitle", "poster subtitle").Default("").String()
	zoom := cmd.Flag("zoom", fmt.Sprintf("zoom level (%d-%d)", mapposter.MinZoomLevel, mapposter.MaxZoomLevel)).Required().String()
	mapsLink := cmd.Flag("maps-link", `maps URL, short link, or "lat,lon"`).Required().String()
	format := cmd.Flag("format", "PNG, JPEG or PDF. Defaults to the format matching the file extension").String()
	pipeline := addPipelineFlags(cmd)

	cmd.Action(func(ctx *kingpin.ParseContext) (err error) {
		defer func() {
			errorx, ok := err.(errorsx.Error)
			if ok {
				log.Printf("%s\n%s\n", errorx.Error(), errorx.Stack())
			}
		}()

		logger := newLogger(*verbose)

		renderService, err := pipeline.createRenderService(logger)
		if err != nil {
			return errorsx.Wrap(err)
		}

		output := *format
		if output == "" {
			output = strings.TrimPrefix(filepath.Ext(*outFilePath), ".")
		}

		startTime := time.Now()

		result, err := renderService.Render(context.Background(), mapposter.RenderRequest{
			Title:    *title,
			Subtitle: *subtitle,
			Zoom:     mapposter.NewZoomValue(*zoom),
			MapsLink: *mapsLink,
			Output:   output,
		})
		if err != nil {
			return errorsx.Wrap(err)
		}

		err = gofs.NewOsFs().WriteFile(*outFilePath, result.Data, 0644)
		if err != nil {
			return errorsx.Wrap(err)
		}

		logger.Info("rendered %s (%d bytes, render ID %s) to %q in %s", result.ContentType, len(result.Data), result.RenderID, *outFilePath, time.Since(startTime))

		return nil
	})
}
