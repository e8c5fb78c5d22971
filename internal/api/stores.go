package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/storegate/storegate/internal/apikey"
	"github.com/storegate/storegate/internal/log"
	"github.com/storegate/storegate/internal/prompt"
	"github.com/storegate/storegate/internal/rag"
	"github.com/storegate/storegate/internal/tenant"
)

// maxUploadBytes caps multipart upload memory/disk staging.
const maxUploadBytes = 100 << 20

// storeHandler serves store and file passthrough plus one-shot query.
type storeHandler struct {
	provider rag.Provider
	router   *tenant.Router
	resolver *prompt.Resolver
	logger   log.Logger
}

// resolveTenant authenticates the optional per-request credential and
// returns the tenant's execution context. A missing credential maps to
// the default context; an invalid one is a 401 and ends the request.
func resolveTenant(w http.ResponseWriter, r *http.Request, router *tenant.Router, logger log.Logger) (*tenant.Context, *apikey.Key, bool) {
	cc, key, err := router.Resolve(r.Context(), credentialFromRequest(r))
	if err != nil {
		if errors.Is(err, apikey.ErrKeyNotFound) {
			unauthorized(w, logger)
		} else {
			handleError(w, err, logger)
		}
		return nil, nil, false
	}
	return cc, key, true
}

// scopedStore picks the effective store for a request: a credential's
// bound store always wins over what the request names.
func scopedStore(key *apikey.Key, requested string) string {
	if key != nil {
		return key.StoreID
	}
	return requested
}

// checkScope rejects requests whose path names a store outside the
// credential's scope. Misses report not-found rather than forbidden,
// so credentials cannot probe for foreign store IDs.
func checkScope(w http.ResponseWriter, key *apikey.Key, storeID string, logger log.Logger) bool {
	if key != nil && key.StoreID != storeID {
		WriteError(w, http.StatusNotFound, "not_found", "resource not found", logger)
		return false
	}
	return true
}

func (h *storeHandler) listStores(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	_, key, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}

	stores, err := h.provider.ListStores(r.Context())
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	if key != nil {
		scoped := stores[:0]
		for _, st := range stores {
			if st.ID == key.StoreID {
				scoped = append(scoped, st)
			}
		}
		stores = scoped
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": stores}, h.logger)
}

func (h *storeHandler) createStore(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	if _, _, ok := resolveTenant(w, r, h.router, h.logger); !ok {
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DisplayName == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "display_name is required", h.logger)
		return
	}

	st, err := h.provider.CreateStore(r.Context(), req.DisplayName)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, st, h.logger)
}

func (h *storeHandler) deleteStore(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	_, key, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}
	storeID := r.PathValue("id")
	if !checkScope(w, key, storeID, h.logger) {
		return
	}

	if err := h.provider.DeleteStore(r.Context(), storeID); err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeAck(w, http.StatusOK, storeID, h.logger)
}

func (h *storeHandler) listFiles(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	_, key, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}
	storeID := r.PathValue("id")
	if !checkScope(w, key, storeID, h.logger) {
		return
	}

	files, err := h.provider.ListFiles(r.Context(), storeID)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files}, h.logger)
}

// uploadFile stages the multipart upload to a temp file and hands the
// path to the provider. The MIME type is left empty so the provider
// sniffs it from content rather than trusting the client header.
func (h *storeHandler) uploadFile(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	_, key, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}
	storeID := r.PathValue("id")
	if !checkScope(w, key, storeID, h.logger) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required", h.logger)
		return
	}
	defer file.Close()

	staged, err := stageUpload(file, header.Filename)
	if err != nil {
		h.logger.Error("staging upload", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "failed to stage upload", h.logger)
		return
	}
	defer os.Remove(staged)

	displayName := r.FormValue("display_name")
	if displayName == "" {
		displayName = header.Filename
	}

	uploaded, err := h.provider.UploadFile(r.Context(), rag.UploadRequest{
		StoreID:     storeID,
		Path:        staged,
		DisplayName: displayName,
	})
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, uploaded, h.logger)
}

// stageUpload copies the part to a uniquely named temp file, keeping
// the original extension so type sniffing still has a hint.
func stageUpload(src io.Reader, filename string) (string, error) {
	name := uuid.NewString() + filepath.Ext(filename)
	path := filepath.Join(os.TempDir(), name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (h *storeHandler) deleteFile(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	_, key, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}

	// File IDs are full resource names and contain slashes, so the
	// route uses a trailing wildcard. The owning store is part of the
	// name, which lets bound credentials be scope-checked here too.
	fileID := r.PathValue("id")
	if key != nil && !checkScope(w, key, rag.FileStoreID(fileID), h.logger) {
		return
	}
	if err := h.provider.DeleteFile(r.Context(), fileID); err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeAck(w, http.StatusOK, fileID, h.logger)
}

func (h *storeHandler) query(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		providerUnavailable(w, h.logger)
		return
	}
	_, key, ok := resolveTenant(w, r, h.router, h.logger)
	if !ok {
		return
	}

	var req struct {
		Question    string `json:"question"`
		StoreID     string `json:"store_id,omitempty"`
		Instruction string `json:"instruction,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Question == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "question is required", h.logger)
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

	ans, err := h.provider.Query(r.Context(), storeID, req.Question, instruction)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":        ans.Text,
		"sources":       ans.Sources,
		"prompt_source": res,
	}, h.logger)
}
