// Package handler exposes the session lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"attest/internal/payment"
	"attest/internal/session/models"
	"attest/internal/session/service"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
)

// Service defines the session operations the handler depends on.
type Service interface {
	CreateSession(ctx context.Context, userID string, kind models.Kind, providerName string) (*models.Session, error)
	CreateSessionV2(ctx context.Context, userID string, kind models.Kind, providerName, paymentRef string) (*models.Session, error)
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	AttachProviderRef(ctx context.Context, id uuid.UUID, ref string) (*models.Session, error)
	MarkFunded(ctx context.Context, id uuid.UUID, paymentRef string) (*models.Session, error)
	IssueSession(ctx context.Context, id uuid.UUID, nullifier string) (*service.IssueResult, error)
	ConfirmDeclaration(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Refund(ctx context.Context, id uuid.UUID) (payment.Receipt, error)
	AllowlistSession(ctx context.Context, id uuid.UUID) error
	AdminFailSession(ctx context.Context, id uuid.UUID, reason string) (*models.Session, error)
}

// Handler handles session endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the public session routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Post("/v2/sessions", h.handleCreateSessionV2)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/sessions/{sessionID}/check", h.handleAttachCheck)
	r.Post("/sessions/{sessionID}/payment", h.handlePayment)
	r.Get("/sessions/{sessionID}/credentials/{nullifier}", h.handleIssue)
	r.Post("/sessions/{sessionID}/declaration/confirm", h.handleConfirmDeclaration)
	r.Post("/sessions/{sessionID}/refund", h.handleRefund)
}

// RegisterAdmin mounts the operator routes. The caller is responsible for
// wrapping them in admin authentication.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/allowlist/{sessionID}", h.handleAllowlist)
	r.Post("/sessions/{sessionID}/fail", h.handleAdminFail)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	sess, err := h.service.CreateSession(ctx, req.UserID, models.Kind(req.Kind), req.Provider)
	if err != nil {
		h.logError(ctx, "failed to create session", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sessionResponse(sess))
}

func (h *Handler) handleCreateSessionV2(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionV2Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	sess, err := h.service.CreateSessionV2(ctx, req.UserID, models.Kind(req.Kind), req.Provider, req.PaymentRef)
	if err != nil {
		h.logError(ctx, "failed to create v2 session", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sessionResponse(sess))
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessions, err := h.service.ListSessions(ctx, r.URL.Query().Get("userId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Sessions: sessionResponses(sessions)})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := sessionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sess, err := h.service.GetSession(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse(sess))
}

func (h *Handler) handleAttachCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := sessionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req attachCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sess, err := h.service.AttachProviderRef(ctx, id, req.ProviderRef)
	if err != nil {
		h.logError(ctx, "failed to attach provider reference", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse(sess))
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := sessionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sess, err := h.service.MarkFunded(ctx, id, req.PaymentRef)
	if err != nil {
		h.logError(ctx, "failed to mark session funded", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse(sess))
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := sessionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.IssueSession(ctx, id, chi.URLParam(r, "nullifier"))
	if err != nil {
		h.logError(ctx, "issuance failed", err)
		httputil.WriteError(w, err)
		return
	}

	if res.PendingDeclaration != nil {
		httputil.WriteJSON(w, http.StatusAccepted, declarationPendingResponse{
			Message:   "User declaration required before credentials can be issued",
			Statement: res.PendingDeclaration.Statement,
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res.Credential)
}

func (h *Handler) handleConfirmDeclaration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := sessionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sess, err := h.service.ConfirmDeclaration(ctx, id)
	if err != nil {
		h.logError(ctx, "failed to confirm declaration", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse(sess))
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := sessionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.service.Refund(ctx, id)
	if err != nil {
		h.logError(ctx, "refund failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleAllowlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := sessionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.AllowlistSession(ctx, id); err != nil {
		h.logError(ctx, "failed to allowlist session", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "allowlisted"})
}

func (h *Handler) handleAdminFail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := sessionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req adminFailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sess, err := h.service.AdminFailSession(ctx, id, req.Reason)
	if err != nil {
		h.logError(ctx, "failed to fail session", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse(sess))
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid session id")
	}
	return id, nil
}
