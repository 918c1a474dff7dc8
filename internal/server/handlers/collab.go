package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iudanet/doccollab/internal/errs"
	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/internal/server/collab"
	"github.com/iudanet/doccollab/internal/server/lock"
	"github.com/iudanet/doccollab/internal/server/oplog"
	"github.com/iudanet/doccollab/internal/server/session"
	"github.com/iudanet/doccollab/pkg/api"
)

// maxBodyBytes ограничение размера тела запроса
const maxBodyBytes = 2 << 20

// CollabHandler обрабатывает запросы совместного редактирования
type CollabHandler struct {
	logger *slog.Logger
	svc    collab.Service
}

// NewCollabHandler создает новый handler
func NewCollabHandler(logger *slog.Logger, svc collab.Service) *CollabHandler {
	return &CollabHandler{
		logger: logger,
		svc:    svc,
	}
}

// CreateDocument обрабатывает POST /api/v1/documents
func (h *CollabHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req api.CreateDocumentRequest
	if !h.decode(w, r, &req) {
		return
	}

	doc, err := h.svc.CreateDocument(r.Context(), actorID, req.Title)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.sendJSON(w, doc, http.StatusCreated)
}

// GrantEdit обрабатывает POST /api/v1/documents/{id}/editors
func (h *CollabHandler) GrantEdit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req api.GrantEditRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.GrantEdit(r.Context(), mux.Vars(r)["id"], actorID, req.ActorID); err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// State обрабатывает GET /api/v1/documents/{id}/state
func (h *CollabHandler) State(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	state, err := h.svc.State(r.Context(), mux.Vars(r)["id"], actorID)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	resp := api.StateResponse{
		GeneratedAt:      state.GeneratedAt,
		DocumentID:       state.DocumentID,
		HaltReason:       state.HaltReason,
		ActiveSessions:   state.ActiveSessions,
		RecentOperations: state.RecentOperations,
		ActiveLocks:      state.ActiveLocks,
		PendingConflicts: state.PendingConflicts,
		Halted:           state.Halted,
	}
	if state.Halted {
		at := state.HaltedAt
		resp.HaltedAt = &at
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// Resume обрабатывает POST /api/v1/documents/{id}/resume
func (h *CollabHandler) Resume(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	documentID := mux.Vars(r)["id"]
	resumed, err := h.svc.Resume(r.Context(), documentID, actorID)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.sendJSON(w, api.ResumeResponse{DocumentID: documentID, Resumed: resumed}, http.StatusOK)
}

// StartSession обрабатывает POST /api/v1/sessions
func (h *CollabHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req api.StartSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	discipline, err := models.ParseLockDiscipline(req.Discipline)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	actorName := req.ActorName
	if actorName == "" {
		actorName, _ = GetActorName(r.Context())
	}

	started, err := h.svc.StartSession(r.Context(), session.StartRequest{
		Region:     req.Region,
		DocumentID: req.DocumentID,
		ActorID:    actorID,
		ActorName:  actorName,
		Discipline: discipline,
	})
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "session started",
		slog.String("session_id", started.Session.ID),
		slog.String("document_id", started.Session.DocumentID),
		slog.String("actor_id", actorID))

	h.sendJSON(w, api.StartSessionResponse{
		Session: started.Session,
		Lock:    started.Lock,
	}, http.StatusCreated)
}

// EndSession обрабатывает DELETE /api/v1/sessions/{id}
func (h *CollabHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.svc.EndSession(r.Context(), mux.Vars(r)["id"], actorID); err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SubmitOperation обрабатывает POST /api/v1/sessions/{id}/operations
func (h *CollabHandler) SubmitOperation(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req api.SubmitOperationRequest
	if !h.decode(w, r, &req) {
		return
	}

	kind, err := models.ParseOperationKind(req.Kind)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.svc.SubmitOperation(r.Context(), mux.Vars(r)["id"], actorID, oplog.AppendRequest{
		Length:   req.Length,
		Kind:     kind,
		Content:  req.Content,
		Position: req.Position,
	})
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.sendJSON(w, api.SubmitOperationResponse{
		Operation:   res.Operation,
		Conflicts:   res.Conflicts,
		Resolutions: res.Resolutions,
		Warnings:    res.Warnings,
	}, http.StatusCreated)
}

// AcquireLock обрабатывает POST /api/v1/locks
func (h *CollabHandler) AcquireLock(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req api.AcquireLockRequest
	if !h.decode(w, r, &req) {
		return
	}

	discipline, err := models.ParseLockDiscipline(req.Discipline)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	l, err := h.svc.AcquireLock(r.Context(), lock.AcquireRequest{
		Region:     req.Region,
		DocumentID: req.DocumentID,
		ActorID:    actorID,
		SessionID:  req.SessionID,
		Discipline: discipline,
	})
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if l == nil {
		status = http.StatusOK
	}
	h.sendJSON(w, api.AcquireLockResponse{Lock: l, Granted: true}, status)
}

// ReleaseLock обрабатывает DELETE /api/v1/locks/{id}
func (h *CollabHandler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.svc.ReleaseLock(r.Context(), mux.Vars(r)["id"], actorID); err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// actor извлекает actor_id (установлен AuthMiddleware)
func (h *CollabHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID, ok := GetActorID(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "actor id not found in context")
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return actorID, true
}

func (h *CollabHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// sendServiceError отправляет ошибку сервиса с соответствующим статусом
func (h *CollabHandler) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)

	message := err.Error()
	switch {
	case errs.IsFatal(err):
		h.logger.ErrorContext(r.Context(), "invariant violated", slog.Any("error", err))
	case status == http.StatusInternalServerError:
		h.logger.ErrorContext(r.Context(), "request failed", slog.Any("error", err))
		message = "internal server error"
	default:
		var e *errs.Error
		if errors.As(err, &e) && e.Detail == "" && e.Err != nil {
			message = e.Err.Error()
		}
		h.logger.WarnContext(r.Context(), "request rejected", slog.Int("status", status), slog.Any("error", err))
	}

	resp := api.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	var opErr *collab.OperationError
	if errors.As(err, &opErr) {
		resp.OperationID = opErr.Operation.ID
		resp.SequenceNumber = opErr.Operation.SequenceNumber
	}
	h.sendJSON(w, resp, status)
}

// sendJSON отправляет JSON ответ
func (h *CollabHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h *CollabHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}, statusCode)
}
