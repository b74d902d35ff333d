package changefeed

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/persistor/v1/logger"
	"github.com/Aleph-Alpha/persistor/v1/observability"
	"github.com/Aleph-Alpha/persistor/v1/persistor"
)

// FXModule provides the *Feed and exposes it as persistor.ChangePublisher,
// so persistor.FXModule publishes every commit made with NotifyChanges.
//
//	app := fx.New(
//	    logger.FXModule,
//	    changefeed.FXModule,
//	    persistor.FXModule,
//	    fx.Provide(loadChangeFeedConfig),
//	)
var FXModule = fx.Module("changefeed",
	fx.Provide(
		NewFeedWithDI,
		fx.Annotate(
			func(f *Feed) *Feed { return f },
			fx.As(new(persistor.ChangePublisher)),
		),
	),
	fx.Invoke(RegisterFeedLifecycle),
)

// FeedParams groups the dependencies of NewFeedWithDI.
type FeedParams struct {
	fx.In

	Config   Config
	Logger   *logger.Logger         `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewFeedWithDI connects the configured transport.
func NewFeedWithDI(params FeedParams) (*Feed, error) {
	f, err := New(params.Config)
	if err != nil {
		return nil, err
	}
	if params.Logger != nil {
		f.WithLogger(params.Logger)
	}
	return f.WithObserver(params.Observer), nil
}

// RegisterFeedLifecycle closes the transport when the application stops.
func RegisterFeedLifecycle(lc fx.Lifecycle, f *Feed) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			f.logger.Info("change feed started", nil, map[string]interface{}{"transport": f.kind})
			return nil
		},
		OnStop: func(context.Context) error {
			return f.Close()
		},
	})
}
