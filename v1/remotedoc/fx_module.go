package remotedoc

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/persistor/v1/logger"
	"github.com/Aleph-Alpha/persistor/v1/observability"
)

// FXModule provides the *Service for the fx-provided Config.
//
//	app := fx.New(
//	    logger.FXModule,
//	    remotedoc.FXModule,
//	    fx.Provide(func() remotedoc.Config {
//	        return remotedoc.Config{Client: remotedoc.ClientLocal, Local: remotedoc.LocalConfig{Root: "/var/lib/docs"}}
//	    }),
//	)
var FXModule = fx.Module("remotedoc",
	fx.Provide(NewServiceWithDI),
)

// ServiceParams groups the dependencies of NewServiceWithDI.
type ServiceParams struct {
	fx.In

	Config   Config
	Logger   *logger.Logger         `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewServiceWithDI builds the configured client.
func NewServiceWithDI(params ServiceParams) (*Service, error) {
	s, err := New(context.Background(), params.Config)
	if err != nil {
		return nil, err
	}
	if params.Logger != nil {
		s.WithLogger(params.Logger)
	}
	s.WithObserver(params.Observer)
	s.logger.Info("remote document client ready", nil, map[string]interface{}{"client": params.Config.Client})
	return s, nil
}
