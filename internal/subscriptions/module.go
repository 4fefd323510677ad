// Package subscriptions provides the subscription lifecycle bounded context.
package subscriptions

import (
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	apphttp "github.com/KHABI-TEQ/Backend-sub001/internal/http"
	"github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions/handler"
	"github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions/service"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"
	"github.com/KHABI-TEQ/Backend-sub001/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the subscriptions bounded context module implementing http.Module.
type Module struct {
	service *service.Service
	handler *handler.Handler
}

// NewModule creates and initializes the subscriptions module.
func NewModule(pool *pgxpool.Pool, txns service.TransactionStore, pay service.PaymentGateway, bus events.Bus, cfg config.SubscriptionConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, txns, pay, bus, cfg, log)

	return &Module{
		service: svc,
		handler: handler.New(svc, val),
	}
}

// Service exposes the module's service for cross-module wiring
// (payment dispatcher effects and the scheduler sweep).
func (m *Module) Service() *service.Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "subscriptions"
}

// RegisterRoutes mounts subscription routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/subscriptions/plans", m.handler.HandleListPlans)

	group := ctx.Protected.Group("/subscriptions")
	group.POST("", m.handler.HandleSubscribe)
	group.GET("", m.handler.HandleListMine)
	group.GET("/:subscriptionId", m.handler.HandleGet)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
