package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/expense-metrics/internal/calculator"
	"github.com/Checker-Finance/expense-metrics/internal/debounce"
	"github.com/Checker-Finance/expense-metrics/internal/jobs"
	"github.com/Checker-Finance/expense-metrics/internal/recorder"
	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// MetricsHandler serves snapshot reads, forced recalculation, manual refresh
// triggers, and job telemetry.
type MetricsHandler struct {
	logger   *zap.Logger
	calc     *calculator.Calculator
	gate     *debounce.Gate
	recorder *recorder.Recorder
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(logger *zap.Logger, calc *calculator.Calculator, gate *debounce.Gate, rec *recorder.Recorder) *MetricsHandler {
	return &MetricsHandler{
		logger:   logger,
		calc:     calc,
		gate:     gate,
		recorder: rec,
	}
}

// GetMetricsHandler returns the snapshot for ?period= and optional ?date=.
// Reads never fail with a partial body: internal failures produce a complete
// degraded snapshot with the error annotated.
func (h *MetricsHandler) GetMetricsHandler(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	period, err := model.ParsePeriod(c.Query("period", string(model.PeriodMonth)))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ref, err := parseDate(c.Query("date"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	snap, err := h.calc.Calculate(c.Context(), accountID, period, ref)
	if err != nil {
		return h.validationError(c, accountID, err)
	}
	return c.JSON(snap)
}

// RecalculateHandler forces recomputation, bypassing the cache and the
// debounce gate. Last-write-wins against a concurrent refresh run.
func (h *MetricsHandler) RecalculateHandler(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	period, err := model.ParsePeriod(c.Query("period", string(model.PeriodMonth)))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ref, err := parseDate(c.Query("date"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	snap, err := h.calc.Recalculate(c.Context(), accountID, period, ref)
	if err != nil {
		var calcErr *calculator.CalculationError
		if errors.As(err, &calcErr) {
			h.logger.Error("api.recalculate_failed",
				zap.Int64("account_id", accountID),
				zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": calcErr.Error()})
		}
		return h.validationError(c, accountID, err)
	}
	return c.JSON(snap)
}

// TriggerRefreshHandler feeds a manual trigger through the debounce gate.
func (h *MetricsHandler) TriggerRefreshHandler(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req TriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	date, err := parseDate(req.Date)
	if err != nil || date.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date is required (YYYY-MM-DD)"})
	}

	if err := h.gate.Trigger(c.Context(), accountID, date); err != nil {
		if errors.Is(err, debounce.ErrInvalidDate) || errors.Is(err, debounce.ErrInvalidAccount) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.logger.Error("api.trigger_failed", zap.Int64("account_id", accountID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "trigger failed"})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "scheduled"})
}

// JobMetricsHandler returns the rolling execution log for a job type.
func (h *MetricsHandler) JobMetricsHandler(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	jobType := c.Params("type", jobs.JobType)
	log, err := h.recorder.Summary(c.Context(), jobType, accountID)
	if err != nil {
		h.logger.Error("api.job_metrics_failed", zap.Int64("account_id", accountID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "telemetry read failed"})
	}
	return c.JSON(log)
}

func (h *MetricsHandler) validationError(c *fiber.Ctx, accountID int64, err error) error {
	switch {
	case errors.Is(err, calculator.ErrMissingAccount):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidPeriod):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		h.logger.Error("api.request_failed", zap.Int64("account_id", accountID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

func parseAccountID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid account id")
	}
	return id, nil
}

// parseDate accepts YYYY-MM-DD; empty means "use the clock's today".
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.New("invalid date, expected YYYY-MM-DD")
	}
	return d, nil
}
