package engine

import (
	"time"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ShayCichocki/fractal/internal/oracle"
)

// DefaultMaxAgents caps the fully expanded size of a query.
const DefaultMaxAgents = 4100

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

type engineOptions struct {
	reconciler  oracle.Reconciler
	limiter     *Limiter
	logger      *zap.Logger
	sessions    SessionStore
	recorder    RunRecorder
	maxAgents   int
	nodeTimeout time.Duration
	tracer      oteltrace.Tracer
	defaultGoal string
}

func defaultOptions() engineOptions {
	return engineOptions{
		logger:    zap.NewNop(),
		sessions:  NewMemorySessionStore(),
		maxAgents: DefaultMaxAgents,
		tracer:    otel.Tracer("fractal/engine"),
	}
}

// WithReconciler sets the oracle that merges quantum runs. Without one the
// run answers are concatenated.
func WithReconciler(r oracle.Reconciler) Option {
	return func(o *engineOptions) { o.reconciler = r }
}

// WithLimiter bounds and paces oracle calls.
func WithLimiter(l *Limiter) Option {
	return func(o *engineOptions) { o.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *engineOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(s SessionStore) Option {
	return func(o *engineOptions) {
		if s != nil {
			o.sessions = s
		}
	}
}

// WithRecorder persists every finished query.
func WithRecorder(r RunRecorder) Option {
	return func(o *engineOptions) { o.recorder = r }
}

// WithMaxAgents sets the largest accepted tree size. Zero or less disables
// the guard.
func WithMaxAgents(n int) Option {
	return func(o *engineOptions) { o.maxAgents = n }
}

// WithNodeTimeout bounds every single oracle call.
func WithNodeTimeout(d time.Duration) Option {
	return func(o *engineOptions) { o.nodeTimeout = d }
}

// WithTracerProvider sets the OpenTelemetry tracer provider for node spans.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *engineOptions) {
		if tp != nil {
			o.tracer = tp.Tracer("fractal/engine")
		}
	}
}

// WithDefaultGoal sets the goal used when a request carries none.
func WithDefaultGoal(goal string) Option {
	return func(o *engineOptions) { o.defaultGoal = goal }
}
