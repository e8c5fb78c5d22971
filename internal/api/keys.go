package api

import (
	"net/http"

	"github.com/storegate/storegate/internal/apikey"
	"github.com/storegate/storegate/internal/log"
)

// keyHandler serves the credential lifecycle. The raw secret appears
// in exactly one response: the creation reply.
type keyHandler struct {
	keys   apikey.Store
	logger log.Logger
}

func (h *keyHandler) list(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context(), r.URL.Query().Get("store"))
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys}, h.logger)
}

func (h *keyHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerName      string `json:"owner_name"`
		StoreID        string `json:"store_id"`
		PromptSelector *int32 `json:"prompt_selector,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil || req.OwnerName == "" || req.StoreID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "owner_name and store_id are required", h.logger)
		return
	}
	if req.PromptSelector != nil && *req.PromptSelector < 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "prompt_selector must not be negative", h.logger)
		return
	}

	key, secret, err := apikey.Issue(req.OwnerName, req.StoreID, req.PromptSelector)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	if err := h.keys.Create(r.Context(), key); err != nil {
		handleError(w, err, h.logger)
		return
	}

	h.logger.Info("api key issued", "id", key.ID, "store", key.StoreID, "prefix", key.SecretPrefix)
	writeJSON(w, http.StatusCreated, struct {
		*apikey.Key
		Secret apikey.Secret `json:"secret"`
	}{Key: key, Secret: secret}, h.logger)
}

func (h *keyHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("id"), h.logger)
	if !ok {
		return
	}
	key, err := h.keys.Get(r.Context(), id)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, key, h.logger)
}

func (h *keyHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("id"), h.logger)
	if !ok {
		return
	}

	var req struct {
		OwnerName      *string `json:"owner_name,omitempty"`
		PromptSelector *int32  `json:"prompt_selector,omitempty"`
		ClearSelector  bool    `json:"clear_prompt_selector,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body", h.logger)
		return
	}
	if req.OwnerName == nil && req.PromptSelector == nil && !req.ClearSelector {
		WriteError(w, http.StatusBadRequest, "invalid_request", "nothing to update", h.logger)
		return
	}
	if req.PromptSelector != nil && *req.PromptSelector < 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "prompt_selector must not be negative", h.logger)
		return
	}

	key, err := h.keys.UpdateKey(r.Context(), id, apikey.Update{
		OwnerName:           req.OwnerName,
		PromptSelector:      req.PromptSelector,
		ClearPromptSelector: req.ClearSelector,
	})
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, key, h.logger)
}

func (h *keyHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("id"), h.logger)
	if !ok {
		return
	}
	if err := h.keys.Delete(r.Context(), id); err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeAck(w, http.StatusOK, id.String(), h.logger)
}
