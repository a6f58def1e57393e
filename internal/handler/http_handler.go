package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/repository"
	"github.com/finipro/be-am-disposals/internal/service"
)

// disposalService is the service surface the HTTP layer needs.
type disposalService interface {
	CreateDisposalRequest(ctx context.Context, actor service.Actor, req *service.CreateDisposalRequest) (*service.CreateDisposalResult, error)
	CreateFromGroupSelection(ctx context.Context, actor service.Actor, req *service.CreateFromSelectionRequest) (*service.CreateDisposalResult, error)
	ListPendingApprovals(ctx context.Context, actor service.Actor) ([]*repository.PendingApproval, error)
	GetWorkflowDetail(ctx context.Context, actor service.Actor, workflowID string) (*service.WorkflowDetail, error)
	Approve(ctx context.Context, actor service.Actor, workflowID string, note *string) (*service.ActionResult, error)
	Reject(ctx context.Context, actor service.Actor, workflowID string, reason string) (*service.ActionResult, error)
	SeedSequences(ctx context.Context, actor service.Actor, assetType string) (int, error)
}

// HTTPHandler handles HTTP requests for the disposal workflow engine.
type HTTPHandler struct {
	service disposalService
	log     zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc disposalService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{service: svc, log: log}
}

// Register mounts the disposal routes on the API subrouter.
func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/disposals", h.CreateDisposal).Methods(http.MethodPost)
	r.HandleFunc("/disposals/from-group", h.CreateFromGroupSelection).Methods(http.MethodPost)
	r.HandleFunc("/disposals/{id}", h.GetWorkflowDetail).Methods(http.MethodGet)
	r.HandleFunc("/disposals/{id}/approve", h.Approve).Methods(http.MethodPost)
	r.HandleFunc("/disposals/{id}/reject", h.Reject).Methods(http.MethodPost)
	r.HandleFunc("/approvals/pending", h.ListPendingApprovals).Methods(http.MethodGet)
	r.HandleFunc("/admin/sequences/seed", h.SeedSequences).Methods(http.MethodPost)
}

// CreateDisposal handles single-asset or whole-group disposal requests.
func (h *HTTPHandler) CreateDisposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("missing actor identity"))
		return
	}

	var req service.CreateDisposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	result, err := h.service.CreateDisposalRequest(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// CreateFromGroupSelection handles subset-of-group disposal requests.
func (h *HTTPHandler) CreateFromGroupSelection(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("missing actor identity"))
		return
	}

	var req service.CreateFromSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	result, err := h.service.CreateFromGroupSelection(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// ListPendingApprovals returns the actor's approval inbox.
func (h *HTTPHandler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("missing actor identity"))
		return
	}

	items, err := h.service.ListPendingApprovals(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if items == nil {
		items = []*repository.PendingApproval{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"approvals": items})
}

// GetWorkflowDetail returns one workflow's header, assets and step instances.
func (h *HTTPHandler) GetWorkflowDetail(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("missing actor identity"))
		return
	}

	detail, err := h.service.GetWorkflowDetail(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// Approve records an approval on a workflow.
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("missing actor identity"))
		return
	}

	var req struct {
		Note *string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	result, err := h.service.Approve(r.Context(), actor, mux.Vars(r)["id"], req.Note)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Reject records a rejection on a workflow.
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("missing actor identity"))
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	result, err := h.service.Reject(r.Context(), actor, mux.Vars(r)["id"], req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// SeedSequences copies the maintenance approval chain into the disposal
// catalog for an asset type.
func (h *HTTPHandler) SeedSequences(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("missing actor identity"))
		return
	}

	var req struct {
		AssetType string `json:"asset_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	copied, err := h.service.SeedSequences(r.Context(), actor, req.AssetType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"steps_copied": copied})
}

// ── response helpers ──────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"code":    apperrors.CodeOf(err),
		"message": apperrors.MessageOf(err),
	})
}
