package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"autoshard/internal/models"
	"autoshard/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Scheduler is the subset of the scheduler service the API drives.
type Scheduler interface {
	Start() error
	Stop() error
	GetStatus() models.SchedulerStatus
	TriggerRun(ctx context.Context, dryRun bool) ([]models.ExecutionReport, error)
	UpdateConfig(cronSchedule string, dryRun *bool) error
}

// History lists journaled runs.
type History interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
}

// Handler holds service dependencies
type Handler struct {
	scheduler Scheduler
	history   History
	logger    *zap.Logger
}

// NewHandler creates a handler. history may be nil when the journal is disabled.
func NewHandler(scheduler Scheduler, history History, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		scheduler: scheduler,
		history:   history,
		logger:    logger,
	}
}

type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type ConfigRequest struct {
	CronSchedule string `json:"schedule,omitempty"`
	DryRun       *bool  `json:"dryRun,omitempty"`
}

type runResult struct {
	DryRun  bool                     `json:"dryRun"`
	Failed  bool                     `json:"failed"`
	Reports []models.ExecutionReport `json:"reports"`
}

// Routes builds the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	r.Get("/", h.RootHandler)
	r.Get("/health", h.HealthHandler)
	r.Route("/api/reconcile", func(r chi.Router) {
		r.Get("/status", h.StatusHandler)
		r.Post("/start", h.StartHandler)
		r.Post("/stop", h.StopHandler)
		r.Post("/run", h.RunHandler)
		r.Put("/config", h.ConfigHandler)
		r.Get("/history", h.HistoryHandler)
		r.Get("/history/{id}", h.RunDetailHandler)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		sendErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		sendErrorResponse(w, "Not found", http.StatusNotFound)
	})
	return r
}

func (h *Handler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Start(); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	sendSuccessResponse(w, "Reconcile scheduler started", nil)
}

func (h *Handler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Stop(); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	sendSuccessResponse(w, "Reconcile scheduler stopped", nil)
}

func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	sendSuccessResponse(w, "", h.scheduler.GetStatus())
}

// RunHandler runs a reconciliation pass immediately. ?list=true plans without dropping.
func (h *Handler) RunHandler(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if raw := r.URL.Query().Get("list"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			sendErrorResponse(w, "Invalid list parameter", http.StatusBadRequest)
			return
		}
		dryRun = v
	}

	reports, err := h.scheduler.TriggerRun(r.Context(), dryRun)
	if err == nil && services.AnyFailed(reports) {
		err = services.ErrReconcileFailed
	}
	result := runResult{DryRun: dryRun, Failed: err != nil, Reports: reports}
	if err != nil {
		h.logger.Warn("reconcile run finished with failures", zap.Error(err))
		sendResponse(w, http.StatusInternalServerError, Response{
			Success:   false,
			Data:      result,
			Error:     err.Error(),
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return
	}

	msg := "Constraints dropped"
	if dryRun {
		msg = "Constraints listed"
	}
	sendSuccessResponse(w, msg, result)
}

func (h *Handler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	var configReq ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&configReq); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.scheduler.UpdateConfig(configReq.CronSchedule, configReq.DryRun); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	sendSuccessResponse(w, "Configuration updated", h.scheduler.GetStatus())
}

func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		sendErrorResponse(w, "Journal is disabled", http.StatusNotFound)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			sendErrorResponse(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = v
	}

	runs, err := h.history.ListRuns(r.Context(), limit)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	sendSuccessResponse(w, "", runs)
}

func (h *Handler) RunDetailHandler(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		sendErrorResponse(w, "Journal is disabled", http.StatusNotFound)
		return
	}

	run, err := h.history.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		sendErrorResponse(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to read run", zap.Error(err))
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendSuccessResponse(w, "", run)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	sendSuccessResponse(w, "Service is running", nil)
}

func (h *Handler) RootHandler(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"health":       "GET /health",
		"status":       "GET /api/reconcile/status",
		"start":        "POST /api/reconcile/start",
		"stop":         "POST /api/reconcile/stop",
		"run":          "POST /api/reconcile/run?list=true",
		"updateConfig": "PUT /api/reconcile/config",
		"history":      "GET /api/reconcile/history?limit=N",
		"run detail":   "GET /api/reconcile/history/{id}",
	}

	sendResponse(w, http.StatusOK, Response{
		Success: true,
		Message: "Autoshard constraint reconciler",
		Data:    map[string]interface{}{"endpoints": endpoints},
	})
}

func sendSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	sendResponse(w, http.StatusOK, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	sendResponse(w, statusCode, Response{
		Success: false,
		Error:   message,
	})
}

func sendResponse(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}
