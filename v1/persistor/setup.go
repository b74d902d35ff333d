package persistor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
	"github.com/Aleph-Alpha/persistor/v1/observability"
	"github.com/Aleph-Alpha/persistor/v1/tracer"
)

const (
	component           = "persistor"
	instrumentationName = "github.com/Aleph-Alpha/persistor"
)

// Logger defines the logging surface of the persistor. logger.Logger
// satisfies it.

//go:generate mockgen -source=setup.go -destination=mock_logger.go -package=persistor
type Logger interface {
	Debug(msg string, err error, fields ...map[string]interface{})
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Collector receives persistor specific measurements. metrics.Metrics
// satisfies it.
type Collector interface {
	IncrementConflicts(resource string)
	RecordSchemaChange(table, change string)
	ObserveIdentityMap(template string, objects int)
}

// SyncLocker serialises schema synchronisation of one table across
// processes. Lock blocks until the lock is held or ctx is done.
type SyncLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ChangePublisher receives the change tracking records of every committed
// transaction that asked for change notification.
type ChangePublisher interface {
	Publish(ctx context.Context, changes ChangeTracking) error
}

type nopLogger struct{}

func (nopLogger) Debug(string, error, ...map[string]interface{}) {}
func (nopLogger) Info(string, error, ...map[string]interface{})  {}
func (nopLogger) Warn(string, error, ...map[string]interface{})  {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}

// Persistor maps template objects onto the registered databases.
//
// A Persistor is safe for concurrent use. Every fetch and save builds its own
// identity map and work queue, so no per-call state is shared between calls.
type Persistor struct {
	registry *model.Registry
	dbs      *database.Registry
	cfg      Config

	logger    Logger
	observer  observability.Observer
	tracer    *tracer.Tracer
	collector Collector
	locker    SyncLocker
	publisher ChangePublisher

	syncMu sync.Mutex
	synced map[string]bool

	// selects collapses identical in-flight SELECTs into one round trip.
	selects singleflight.Group
}

// New creates a persistor over the templates of reg and the databases of dbs.
// The registry must be prepared.
func New(reg *model.Registry, dbs *database.Registry, cfg Config) *Persistor {
	return &Persistor{
		registry: reg,
		dbs:      dbs,
		cfg:      cfg,
		logger:   nopLogger{},
		locker:   newLocalLocker(),
		synced:   map[string]bool{},
	}
}

// WithLogger attaches a logger.
func (p *Persistor) WithLogger(logger Logger) *Persistor {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// WithObserver attaches an operation observer.
func (p *Persistor) WithObserver(observer observability.Observer) *Persistor {
	p.observer = observer
	return p
}

// WithTracer opens spans through t instead of the global tracer provider.
func (p *Persistor) WithTracer(t *tracer.Tracer) *Persistor {
	p.tracer = t
	return p
}

// WithCollector attaches a metrics collector.
func (p *Persistor) WithCollector(c Collector) *Persistor {
	p.collector = c
	return p
}

// WithSyncLocker replaces the in-process schema synchronisation lock.
func (p *Persistor) WithSyncLocker(l SyncLocker) *Persistor {
	if l != nil {
		p.locker = l
	}
	return p
}

// WithPublisher installs the default consumer of committed change tracking.
func (p *Persistor) WithPublisher(pub ChangePublisher) *Persistor {
	p.publisher = pub
	return p
}

// Registry returns the template registry.
func (p *Persistor) Registry() *model.Registry { return p.registry }

// Databases returns the database registry.
func (p *Persistor) Databases() *database.Registry { return p.dbs }

// operation opens a span and returns the function that closes it and
// reports the outcome to the observer.
func (p *Persistor) operation(ctx context.Context, name, resource string) (context.Context, func(err error, size int)) {
	start := time.Now()
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.StartSpan(ctx, "persistor."+name)
	} else {
		ctx, span = otel.Tracer(instrumentationName).Start(ctx, "persistor."+name)
	}
	span.SetAttributes(attribute.String("persistor.resource", resource))

	return ctx, func(err error, size int) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("persistor.size", size))
		span.End()

		if p.observer != nil {
			p.observer.ObserveOperation(observability.OperationContext{
				Component: component,
				Operation: name,
				Resource:  resource,
				Duration:  time.Since(start),
				Error:     err,
				Size:      int64(size),
			})
		}
	}
}

func logFields(module, activity string, data map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"component": component,
		"module":    module,
		"activity":  activity,
		"data":      data,
	}
}

func (p *Persistor) debug(module, activity string, data map[string]interface{}) {
	p.logger.Debug(module+"."+activity, nil, logFields(module, activity, data))
}

// logFailure logs err for a public entry point and hands it back. Update
// conflicts are expected under contention and only logged at debug level.
func (p *Persistor) logFailure(module, activity string, err error, data map[string]interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpdateConflict) {
		p.logger.Debug(module+"."+activity, err, logFields(module, activity, data))
		return err
	}
	p.logger.Error(module+"."+activity, err, logFields(module, activity, data))
	return err
}

func (p *Persistor) conflict(resource string) {
	if p.collector != nil {
		p.collector.IncrementConflicts(resource)
	}
}

func (p *Persistor) schemaChange(table, change string) {
	if p.collector != nil {
		p.collector.RecordSchemaChange(table, change)
	}
}
