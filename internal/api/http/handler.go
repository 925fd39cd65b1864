package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veranemoloko/paper-harvester/internal/domain"
	errpkg "github.com/veranemoloko/paper-harvester/internal/errors"
)

// HarvestServiceI defines the interface for the harvesting business logic.
type HarvestServiceI interface {
	StartBatch(ctx context.Context, req domain.StartBatchRequest) (*domain.Task, error)
	CancelBatch(ctx context.Context, taskID int64) error
	GetStats(ctx context.Context) (*domain.Stats, error)
	ListPapers(ctx context.Context, status *domain.PaperStatus, taskID *int64) ([]domain.Paper, error)
	SearchPapers(ctx context.Context, keyword string) ([]domain.Paper, error)
	GetPaper(ctx context.Context, docID string) (*domain.Paper, error)
	ResetPaper(ctx context.Context, docID string) error
	ListTasks(ctx context.Context, limit int) ([]domain.Task, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	ExportAll(ctx context.Context, format string) (string, int, error)
	ImportLegacy(ctx context.Context) (int, error)
}

// HarvestHandler handles HTTP requests for batches, papers and tasks.
type HarvestHandler struct {
	service   HarvestServiceI
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHarvestHandler creates a handler with the provided service and logger.
func NewHarvestHandler(service HarvestServiceI, logger *slog.Logger) *HarvestHandler {
	return &HarvestHandler{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// StartBatch handles POST /batches.
func (h *HarvestHandler) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.StartBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.service.StartBatch(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "failed to start batch")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": task.ID,
		"status":  task.Status,
	})
}

// CancelBatch handles POST /batches/{taskID}/cancel.
func (h *HarvestHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelBatch(r.Context(), taskID); err != nil {
		h.writeServiceError(w, err, "failed to cancel batch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// GetStats handles GET /stats.
func (h *HarvestHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListPapers handles GET /papers with optional status and task_id filters.
func (h *HarvestHandler) ListPapers(w http.ResponseWriter, r *http.Request) {
	var status *domain.PaperStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.PaperStatus(raw)
		switch s {
		case domain.PaperStatusPending, domain.PaperStatusInProgress,
			domain.PaperStatusDownloaded, domain.PaperStatusSkipped, domain.PaperStatusFailed:
			status = &s
		default:
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
	}

	var taskID *int64
	if raw := r.URL.Query().Get("task_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid task_id filter")
			return
		}
		taskID = &id
	}

	papers, err := h.service.ListPapers(r.Context(), status, taskID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list papers")
		return
	}
	writeJSON(w, http.StatusOK, papers)
}

// SearchPapers handles GET /papers/search?q=keyword.
func (h *HarvestHandler) SearchPapers(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	papers, err := h.service.SearchPapers(r.Context(), keyword)
	if err != nil {
		h.writeServiceError(w, err, "failed to search papers")
		return
	}
	writeJSON(w, http.StatusOK, papers)
}

// GetPaper handles GET /papers/{docID}.
func (h *HarvestHandler) GetPaper(w http.ResponseWriter, r *http.Request) {
	paper, err := h.service.GetPaper(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		h.writeServiceError(w, err, "failed to get paper")
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

// ResetPaper handles POST /papers/{docID}/reset.
func (h *HarvestHandler) ResetPaper(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := h.service.ResetPaper(r.Context(), docID); err != nil {
		h.writeServiceError(w, err, "failed to reset paper")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"doc_id": docID, "status": string(domain.PaperStatusPending)})
}

// ListTasks handles GET /tasks.
func (h *HarvestHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	tasks, err := h.service.ListTasks(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GetTask handles GET /tasks/{taskID}.
func (h *HarvestHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), taskID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/{taskID}.
func (h *HarvestHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), taskID); err != nil {
		h.writeServiceError(w, err, "failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles POST /export.
func (h *HarvestHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req domain.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, count, err := h.service.ExportAll(r.Context(), req.Format)
	if err != nil {
		h.writeServiceError(w, err, "failed to export catalog")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "records": count})
}

// ImportLegacy handles POST /import/legacy.
func (h *HarvestHandler) ImportLegacy(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ImportLegacy(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to import legacy state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (h *HarvestHandler) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task ID")
		return 0, false
	}
	return id, true
}

func (h *HarvestHandler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, errpkg.ErrPaperNotFound), errors.Is(err, errpkg.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errpkg.ErrBadSelector), errors.Is(err, errpkg.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errpkg.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error(logMsg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
