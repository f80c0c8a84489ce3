package renderservice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/mapposter-app/mapposter"
	"github.com/jamesrr39/mapposter-app/metrics"
)

type State string

const (
	StateValidating State = "Validating"
	StateResolving  State = "Resolving"
	StateFetching   State = "Fetching"
	StateComposing  State = "Composing"
	StateEncoding   State = "Encoding"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
)

// renderRun tracks one request through the pipeline. Transitions are strictly sequential.
type renderRun struct {
	id         string
	logger     *logpkg.Logger
	state      State
	stateStart time.Time
	endSpan    func()
}

func newRenderRun(logger *logpkg.Logger) *renderRun {
	return &renderRun{
		id:      uuid.New().String(),
		logger:  logger,
		endSpan: func() {},
	}
}

func (run *renderRun) transition(ctx context.Context, to State) {
	run.endState()

	run.logger.Debug("render %s: %s -> %s", run.id, run.state, to)
	run.state = to
	run.stateStart = time.Now()

	if to != StateDone && to != StateFailed {
		run.endSpan = startSpan(ctx, "render: "+string(to))
	}
}

func (run *renderRun) endState() {
	if run.state == "" || run.state == StateDone || run.state == StateFailed {
		return
	}

	metrics.RenderStageDuration.WithLabelValues(string(run.state)).Observe(time.Since(run.stateStart).Seconds())
	run.endSpan()
	run.endSpan = func() {}
}

func (run *renderRun) fail(ctx context.Context, err errorsx.Error) {
	failedIn := run.state
	run.transition(ctx, StateFailed)

	renderErr := mapposter.AsRenderError(err)
	switch renderErr.Code.Class() {
	case mapposter.ErrorClassClient:
		run.logger.Info("render %s failed in %s with %s: %s", run.id, failedIn, renderErr.Code, renderErr.Message)
	case mapposter.ErrorClassInfrastructure:
		run.logger.Warn("render %s failed in %s with %s: %s", run.id, failedIn, renderErr.Code, renderErr.Message)
	default:
		run.logger.Error("render %s failed in %s with %s. Error: %q\nStack:\n%s", run.id, failedIn, renderErr.Code, err, err.Stack())
	}

	metrics.RendersTotal.WithLabelValues(string(renderErr.Code)).Inc()
}

func (run *renderRun) done(ctx context.Context) {
	run.transition(ctx, StateDone)
	metrics.RendersTotal.WithLabelValues("OK").Inc()
}

// startSpan starts a tracing span if tracing is enabled for this request, and returns the function to end it.
func startSpan(ctx context.Context, name string) func() {
	if ctx.Value(tracing.TracerCtxKey) == nil || ctx.Value(tracing.TraceCtxKey) == nil {
		return func() {}
	}

	span := tracing.StartSpan(ctx, name)
	return func() {
		span.End(ctx)
	}
}
