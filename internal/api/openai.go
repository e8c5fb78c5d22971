package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storegate/storegate/internal/log"
	"github.com/storegate/storegate/internal/prompt"
	"github.com/storegate/storegate/internal/rag"
	"github.com/storegate/storegate/internal/tenant"
)

// completionsHandler is the OpenAI-compatible shim. It flattens the
// conversation payload into a single grounded query against the
// credential's bound store.
type completionsHandler struct {
	provider      rag.Provider
	router        *tenant.Router
	resolver      *prompt.Resolver
	defaultModel  string
	allowedModels []string
	logger        log.Logger
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`

	// Accepted for client compatibility, ignored otherwise.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	User        string   `json:"user,omitempty"`
}

type completionChoice struct {
	Index        int               `json:"index"`
	Message      completionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// completionUsage is always zeroed: token accounting is reported as
// zero, not estimated and not omitted.
type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
}

func (h *completionsHandler) completions(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}

	// Unlike the native routes, the shim requires a credential: the
	// bound store is the only way to know what to query.
	if credentialFromRequest(r) == "" {
		unauthorized(w, h.logger)
		return
	}
	_, key, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}

	// OpenAI clients send many optional knobs; unknown fields are
	// tolerated here rather than rejected like on the native routes.
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body", h.logger)
		return
	}
	if len(req.Messages) == 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "messages must not be empty", h.logger)
		return
	}

	question, inline := flattenMessages(req.Messages)
	if question == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "no user message found", h.logger)
		return
	}

	model, warning := h.pickModel(req.Model)

	instruction, _, err := h.resolver.Resolve(r.Context(), inline, key, key.StoreID)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	ans, err := h.provider.Query(r.Context(), key.StoreID, question, instruction)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	content := ans.Text
	if warning != "" {
		content = warning + content
	}

	writeJSON(w, http.StatusOK, completionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []completionChoice{{
			Index:        0,
			Message:      completionMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	}, h.logger)
}

// flattenMessages picks the last user-authored message as the query
// and the last system message as the inline instruction.
func flattenMessages(msgs []completionMessage) (question, inline string) {
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "user":
			question = m.Content
		case "system", "developer":
			inline = m.Content
		}
	}
	return question, inline
}

// pickModel validates the requested model against the allow-list. An
// unknown model is substituted with the default and announced with a
// visible warning so the caller can detect the swap.
func (h *completionsHandler) pickModel(requested string) (model, warning string) {
	if requested == "" || slices.Contains(h.allowedModels, requested) {
		if requested == "" {
			return h.defaultModel, ""
		}
		return requested, ""
	}
	return h.defaultModel, fmt.Sprintf("[model %q is not available, answered with %q] ", requested, h.defaultModel)
}
