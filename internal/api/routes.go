package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Checker-Finance/expense-metrics/internal/cache"
	"github.com/Checker-Finance/expense-metrics/internal/records"
)

func RegisterRoutes(app *fiber.App, nc *nats.Conn, c cache.Cache, st records.Store, h *MetricsHandler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/healthz", func(ctx *fiber.Ctx) error {
		checks := map[string]string{
			"nats":  "ok",
			"cache": "ok",
			"store": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc == nil || !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.HealthCheck(healthCtx); err != nil {
			checks["cache"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return ctx.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// API routes
	v1 := app.Group("/v1")
	v1.Get("/accounts/:id/metrics", h.GetMetricsHandler)
	v1.Post("/accounts/:id/metrics/recalculate", h.RecalculateHandler)
	v1.Post("/accounts/:id/refresh", h.TriggerRefreshHandler)
	v1.Get("/accounts/:id/jobs/:type?", h.JobMetricsHandler)
}
