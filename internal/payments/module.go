// Package payments owns the gateway callback surface; the per-entity payment
// effects live with the modules that own those entities and are routed
// through the service dispatcher.
package payments

import (
	apphttp "github.com/KHABI-TEQ/Backend-sub001/internal/http"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/handler"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/service"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"
)

// Module is the payments bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule wires the payments callback endpoints around a dispatcher.
func NewModule(dispatcher *service.Dispatcher, cfg config.PaystackConfig, log *logger.Logger) *Module {
	return &Module{
		handler: handler.New(dispatcher, cfg, log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "payments"
}

// RegisterRoutes mounts payment callback routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/payments")
	group.POST("/webhook", m.handler.HandleWebhook)
	group.GET("/verify/:reference", m.handler.HandleVerify)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
