// Package observability defines the hook through which components report the
// operations they perform. Metrics and tracing implementations plug in here
// without the components importing them.
package observability

import "time"

// OperationContext describes one completed operation.
type OperationContext struct {
	// Component is the reporting package, e.g. "persistor", "postgres" or "remotedoc".
	Component string

	// Operation is the verb, e.g. "select", "commit" or "upload".
	Operation string

	// Resource is the main target, usually a table, collection or bucket.
	Resource string

	// SubResource narrows Resource, e.g. an object id or key.
	SubResource string

	Duration time.Duration
	Error    error

	// Size is the number of rows, documents or bytes involved, when known.
	Size int64

	Metadata map[string]interface{}
}

// Observer receives operation reports. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	ObserveOperation(ctx OperationContext)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx OperationContext)

func (f ObserverFunc) ObserveOperation(ctx OperationContext) { f(ctx) }

// Multi fans a report out to several observers, skipping nil ones.
func Multi(observers ...Observer) Observer {
	var live []Observer
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	return multi(live)
}

type multi []Observer

func (m multi) ObserveOperation(ctx OperationContext) {
	for _, o := range m {
		o.ObserveOperation(ctx)
	}
}
