// Package docverify provides the document verification bounded context.
package docverify

import (
	"github.com/KHABI-TEQ/Backend-sub001/internal/docverify/handler"
	"github.com/KHABI-TEQ/Backend-sub001/internal/docverify/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/docverify/service"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	apphttp "github.com/KHABI-TEQ/Backend-sub001/internal/http"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"
	"github.com/KHABI-TEQ/Backend-sub001/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the docverify bounded context module implementing http.Module.
type Module struct {
	service *service.Service
	handler *handler.Handler
}

// NewModule creates and initializes the docverify module.
func NewModule(pool *pgxpool.Pool, txns service.TransactionStore, pay service.PaymentInitializer, bus events.Bus, cfg config.NotificationConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, txns, pay, bus, cfg, log)

	return &Module{
		service: svc,
		handler: handler.New(svc, val),
	}
}

// Service exposes the module's service for cross-module wiring
// (the payment dispatcher applies document effects through it).
func (m *Module) Service() *service.Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "docverify"
}

// RegisterRoutes mounts document verification routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/document-verifications")
	group.Use(ctx.PublicSubmitLimiter.RateLimit())
	group.POST("", m.handler.HandleSubmit)
	group.GET("/:batchId", m.handler.HandleGetBatch)
	group.GET("/access/:code", m.handler.HandleVerifyCode)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
