// Package inspections provides the inspection negotiation bounded context.
package inspections

import (
	"github.com/KHABI-TEQ/Backend-sub001/internal/activitylog"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	apphttp "github.com/KHABI-TEQ/Backend-sub001/internal/http"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/handler"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/service"
	"github.com/KHABI-TEQ/Backend-sub001/internal/storage"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"
	"github.com/KHABI-TEQ/Backend-sub001/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the inspections bounded context module implementing http.Module.
type Module struct {
	service *service.Service
	handler *handler.Handler
}

// NewModule creates and initializes the inspections module with all its dependencies.
func NewModule(pool *pgxpool.Pool, txns *transactions.Repository, pay service.PaymentInitializer, bus events.Bus, cfg config.InspectionConfig, loi storage.DocumentStore, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	activity := activitylog.New(pool)
	svc := service.New(repo, txns, activity, pay, bus, cfg, log)

	return &Module{
		service: svc,
		handler: handler.New(svc, val, loi),
	}
}

// Service exposes the module's service for cross-module wiring
// (the payment dispatcher applies inspection effects through it).
func (m *Module) Service() *service.Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "inspections"
}

// RegisterRoutes mounts inspection routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public submission endpoint, rate limited per IP.
	submit := ctx.V1.Group("/inspections")
	submit.Use(ctx.PublicSubmitLimiter.RateLimit())
	submit.POST("", m.handler.HandleSubmit)
	submit.POST("/loi/upload-url", m.handler.HandleLOIUploadURL)

	group := ctx.Protected.Group("/inspections")
	group.POST("/:bookingId/respond", m.handler.HandleRespond)
	group.POST("/:bookingId/actions", m.handler.HandleAction)
	group.GET("/:bookingId", m.handler.HandleGet)
	group.GET("/:bookingId/activity", m.handler.HandleListActivity)
	group.GET("/:bookingId/loi-url", m.handler.HandleLOIDownloadURL)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
