package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellerdesk/api/internal/domain"
	"github.com/sellerdesk/api/internal/platform/httpx"
	"github.com/sellerdesk/api/internal/platform/requestctx"
	"github.com/sellerdesk/api/internal/services"
)

type automationNodePayload struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Config map[string]any `json:"config,omitempty"`
}

type automationPayload struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name,omitempty"`
	Status    string                  `json:"status"`
	Nodes     []automationNodePayload `json:"nodes"`
	CreatedAt *time.Time              `json:"createdAt,omitempty"`
	UpdatedAt *time.Time              `json:"updatedAt,omitempty"`
}

type automationListResponse struct {
	Items []automationPayload `json:"items"`
}

type saveAutomationRequest struct {
	ID     string                  `json:"id"`
	Name   string                  `json:"name"`
	Status string                  `json:"status"`
	Nodes  []automationNodePayload `json:"nodes"`
}

// AutomationHandlers exposes automation definition endpoints.
type AutomationHandlers struct {
	automations services.AutomationService
}

// NewAutomationHandlers constructs a new AutomationHandlers instance.
func NewAutomationHandlers(automations services.AutomationService) *AutomationHandlers {
	return &AutomationHandlers{automations: automations}
}

// Routes registers the /automations endpoints.
func (h *AutomationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listAutomations)
	r.Put("/", h.saveAutomation)
}

func (h *AutomationHandlers) listAutomations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}

	defs, err := h.automations.ListAutomations(ctx, storeID)
	if err != nil {
		writeAutomationError(ctx, w, err)
		return
	}

	items := make([]automationPayload, 0, len(defs))
	for _, def := range defs {
		items = append(items, buildAutomationPayload(def))
	}
	httpx.WriteJSON(w, http.StatusOK, automationListResponse{Items: items})
}

func (h *AutomationHandlers) saveAutomation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}

	var req saveAutomationRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	nodes := make([]domain.AutomationNode, 0, len(req.Nodes))
	for _, node := range req.Nodes {
		nodes = append(nodes, domain.AutomationNode{
			Type:   domain.AutomationNodeType(strings.TrimSpace(node.Type)),
			ID:     strings.TrimSpace(node.ID),
			Config: node.Config,
		})
	}

	def, err := h.automations.SaveAutomation(ctx, services.SaveAutomationCommand{
		ID:      req.ID,
		StoreID: storeID,
		Name:    req.Name,
		Status:  domain.AutomationStatus(strings.TrimSpace(req.Status)),
		Nodes:   nodes,
	})
	if err != nil {
		writeAutomationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildAutomationPayload(def))
}

func (h *AutomationHandlers) requireScope(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.automations == nil {
		httpx.WriteError(ctx, w, httpx.NewError("automation_service_unavailable", "automation service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	storeID := requestctx.StoreID(ctx)
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("store_scope_required", "X-Store-Id header is required", http.StatusBadRequest))
		return "", false
	}
	return storeID, true
}

func buildAutomationPayload(def services.AutomationDefinition) automationPayload {
	nodes := make([]automationNodePayload, 0, len(def.Nodes))
	for _, node := range def.Nodes {
		nodes = append(nodes, automationNodePayload{
			Type:   string(node.Type),
			ID:     node.ID,
			Config: node.Config,
		})
	}
	payload := automationPayload{
		ID:     def.ID,
		Name:   def.Name,
		Status: string(def.Status),
		Nodes:  nodes,
	}
	if !def.CreatedAt.IsZero() {
		created := def.CreatedAt
		payload.CreatedAt = &created
	}
	if !def.UpdatedAt.IsZero() {
		updated := def.UpdatedAt
		payload.UpdatedAt = &updated
	}
	return payload
}

func writeAutomationError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrAutomationInvalid) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_automation", err.Error(), http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
}
