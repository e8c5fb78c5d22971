package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/storegate/storegate/internal/log"
	"github.com/storegate/storegate/internal/prompt"
)

// promptHandler serves the per-store prompt registry. These routes are
// store-scoped only and take no credential.
type promptHandler struct {
	store  prompt.Store
	logger log.Logger
}

func parseID(w http.ResponseWriter, raw string, logger log.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "malformed id", logger)
		return uuid.Nil, false
	}
	return id, true
}

func (h *promptHandler) list(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.store.List(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts}, h.logger)
}

func (h *promptHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.Content == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "name and content are required", h.logger)
		return
	}

	created, err := h.store.Create(r.Context(), r.PathValue("id"), req.Name, req.Content)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, created, h.logger)
}

func (h *promptHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("promptID"), h.logger)
	if !ok {
		return
	}
	p, err := h.store.Get(r.Context(), r.PathValue("id"), id)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, p, h.logger)
}

func (h *promptHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("promptID"), h.logger)
	if !ok {
		return
	}

	var req struct {
		Name    *string `json:"name,omitempty"`
		Content *string `json:"content,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body", h.logger)
		return
	}
	if req.Name == nil && req.Content == nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "nothing to update", h.logger)
		return
	}

	p, err := h.store.Update(r.Context(), r.PathValue("id"), id, prompt.PromptUpdate{
		Name:    req.Name,
		Content: req.Content,
	})
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, p, h.logger)
}

func (h *promptHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("promptID"), h.logger)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), r.PathValue("id"), id); err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeAck(w, http.StatusOK, id.String(), h.logger)
}

func (h *promptHandler) setActive(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("promptID"), h.logger)
	if !ok {
		return
	}
	if err := h.store.SetActive(r.Context(), r.PathValue("id"), id); err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeAck(w, http.StatusOK, id.String(), h.logger)
}

func (h *promptHandler) getActive(w http.ResponseWriter, r *http.Request) {
	p, found, err := h.store.GetActive(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"active": nil}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": p}, h.logger)
}
