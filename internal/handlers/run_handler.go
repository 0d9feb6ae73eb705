package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"settlement-service/internal/assessment"
	"settlement-service/internal/chain"
	"settlement-service/internal/repository"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// RunHandler exposes the assessment pipeline to operators: trigger a cycle,
// inspect run summaries and per-policy reports, poll an ambiguous transaction.
type RunHandler struct {
	reporter *assessment.Reporter
	runs     *repository.RunRepository
	reports  *repository.ReportRepository
	engine   *chain.Engine
	identity chain.SigningIdentity
}

func NewRunHandler(reporter *assessment.Reporter, runs *repository.RunRepository, reports *repository.ReportRepository, engine *chain.Engine, identity chain.SigningIdentity) *RunHandler {
	return &RunHandler{
		reporter: reporter,
		runs:     runs,
		reports:  reports,
		engine:   engine,
		identity: identity,
	}
}

func (h *RunHandler) Register(app *fiber.App) {
	internalGr := app.Group("settlement/internal/api/v1")

	runGroup := internalGr.Group("/runs")
	runGroup.Post("/trigger", h.TriggerRun)  // POST /runs/trigger
	runGroup.Get("/latest", h.GetLatestRun)  // GET /runs/latest
	runGroup.Get("/detail/:id", h.GetRun)    // GET /runs/detail/:id
	runGroup.Get("/:id/reports", h.GetRunReports) // GET /runs/:id/reports

	internalGr.Get("/reports/by-policy/:policy_id", h.GetPolicyReports) // GET /reports/by-policy/:policy_id
	internalGr.Get("/transactions/:hash", h.PollTransaction)            // GET /transactions/:hash
}

// TriggerRun starts an assessment cycle off the request goroutine. A cycle
// already in flight is reported as a conflict, never queued behind.
func (h *RunHandler) TriggerRun(c fiber.Ctx) error {
	go func() {
		if _, err := h.reporter.Run(context.Background()); err != nil {
			slog.Error("Triggered assessment run failed", "error", err)
		}
	}()

	return c.Status(http.StatusAccepted).JSON(CreateSuccessResponse(map[string]any{
		"message": "assessment run triggered",
	}))
}

func (h *RunHandler) GetLatestRun(c fiber.Ctx) error {
	run, err := h.runs.GetLatest(c.Context())
	if err != nil {
		slog.Error("Failed to get latest run", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve latest run"))
	}
	if run == nil {
		return c.Status(http.StatusNotFound).JSON(
			CreateErrorResponse("NOT_FOUND", "No assessment runs yet"))
	}

	return c.Status(http.StatusOK).JSON(CreateSuccessResponse(run))
}

func (h *RunHandler) GetRun(c fiber.Ctx) error {
	runID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_ID", "Run ID must be a UUID"))
	}

	run, err := h.runs.GetByID(c.Context(), runID)
	if err != nil {
		slog.Error("Failed to get run", "run_id", runID, "error", err)
		return c.Status(http.StatusNotFound).JSON(
			CreateErrorResponse("NOT_FOUND", "Run not found"))
	}

	return c.Status(http.StatusOK).JSON(CreateSuccessResponse(run))
}

func (h *RunHandler) GetRunReports(c fiber.Ctx) error {
	runID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_ID", "Run ID must be a UUID"))
	}

	reports, err := h.reports.GetByRunID(c.Context(), runID)
	if err != nil {
		slog.Error("Failed to get run reports", "run_id", runID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve reports"))
	}

	return c.Status(http.StatusOK).JSON(CreateSuccessResponse(map[string]any{
		"run_id":  runID,
		"reports": reports,
		"count":   len(reports),
	}))
}

func (h *RunHandler) GetPolicyReports(c fiber.Ctx) error {
	policyID := c.Params("policy_id")
	if policyID == "" {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_ID", "Policy ID is required"))
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	reports, err := h.reports.GetByPolicyID(c.Context(), policyID, limit)
	if err != nil {
		slog.Error("Failed to get policy reports", "policy_id", policyID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve reports"))
	}

	return c.Status(http.StatusOK).JSON(CreateSuccessResponse(map[string]any{
		"policy_id": policyID,
		"reports":   reports,
		"count":     len(reports),
	}))
}

// PollTransaction resolves the fate of a transaction whose confirmation wait
// timed out. This is the explicit follow-up; timed-out transactions are never
// resubmitted.
func (h *RunHandler) PollTransaction(c fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_HASH", "Transaction hash is required"))
	}

	status, err := h.engine.PollTransaction(c.Context(), h.identity, &chain.PendingTransaction{TxHash: hash})
	if err != nil {
		slog.Error("Failed to poll transaction", "tx_hash", hash, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			CreateErrorResponse("POLL_FAILED", "Failed to poll transaction"))
	}

	return c.Status(http.StatusOK).JSON(CreateSuccessResponse(map[string]any{
		"tx_hash": hash,
		"status":  status,
	}))
}
