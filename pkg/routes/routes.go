// Package routes mounts the HTTP API on an echo server.
package routes

import (
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/productsync/pkg/processor"
	"github.com/Ramsey-B/productsync/pkg/routes/decision"
	"github.com/Ramsey-B/productsync/pkg/routes/entity"
	"github.com/Ramsey-B/productsync/pkg/routes/health"
	"github.com/Ramsey-B/productsync/pkg/routes/product"
	"github.com/Ramsey-B/productsync/pkg/routes/review"
	"github.com/Ramsey-B/productsync/pkg/store"
)

// Dependencies are the instances handlers resolve from the container
type Dependencies struct {
	Processor *processor.Processor
	Store     store.Store
	Logger    ectologger.Logger
}

// NewContainer registers deps in a new container with the given id. Route
// handlers find it through middleware.Container.
func NewContainer(id string, deps Dependencies) (ectocontainer.DIContainer, error) {
	cfg := ectoinject.DefaultContainerConfig
	cfg.ID = id

	container, err := ectoinject.NewDIContainer(cfg)
	if err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*processor.Processor](container, deps.Processor); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[store.Store](container, deps.Store); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, deps.Logger); err != nil {
		return nil, err
	}
	return container, nil
}

// Register mounts every API route on e
func Register(e *echo.Echo, checker *health.Checker) {
	checker.RegisterRoutes(e)

	v1 := e.Group("/api/v1")
	product.Register(v1.Group("/products"))
	review.Register(v1.Group("/review-queue"))
	decision.Register(v1.Group("/decisions"))
	entity.Register(v1.Group("/entities"))
}
