package api

import (
	"net/http"

	"github.com/storegate/storegate/internal/log"
	"github.com/storegate/storegate/internal/prompt"
	"github.com/storegate/storegate/internal/rag"
	"github.com/storegate/storegate/internal/tenant"
)

// chatHandler serves the stateful conversation routes. Each tenant
// context carries one current conversation; starting a new chat
// replaces it.
type chatHandler struct {
	provider rag.Provider
	router   *tenant.Router
	resolver *prompt.Resolver
	logger   log.Logger
}

func (h *chatHandler) start(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	cc, key, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}

	var req struct {
		StoreID     string `json:"store_id,omitempty"`
		Instruction string `json:"instruction,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body", h.logger)
		return
	}

	storeID := scopedStore(key, req.StoreID)
	if storeID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "store_id is required without an api key", h.logger)
		return
	}

	instruction, res, err := h.resolver.Resolve(r.Context(), req.Instruction, key, storeID)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	if err := cc.StartChat(r.Context(), storeID, instruction); err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"store_id":      storeID,
		"prompt_source": res,
	}, h.logger)
}

func (h *chatHandler) message(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	cc, _, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Message == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "message is required", h.logger)
		return
	}

	ans, err := cc.SendMessage(r.Context(), req.Message)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":  ans.Text,
		"sources": ans.Sources,
	}, h.logger)
}

func (h *chatHandler) history(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	cc, _, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}

	msgs, err := cc.History(r.Context())
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	storeID, _ := cc.ChatStore()
	writeJSON(w, http.StatusOK, map[string]any{
		"store_id": storeID,
		"messages": msgs,
	}, h.logger)
}
