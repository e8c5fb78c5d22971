package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storegate/storegate/internal/rag"
)

func createStore(t *testing.T, env *testEnv, name string) rag.Store {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/stores", map[string]string{"display_name": name}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /stores = %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[rag.Store](t, rec)
}

func TestStoreLifecycle(t *testing.T) {
	env := newTestEnv(t)

	st := createStore(t, env, "docs")
	if st.ID == "" || st.DisplayName != "docs" {
		t.Fatalf("store = %+v", st)
	}

	rec := env.do(t, http.MethodGet, "/stores", nil, nil)
	body := decodeBody[map[string][]rag.Store](t, rec)
	if len(body["stores"]) != 1 {
		t.Fatalf("stores = %v", body["stores"])
	}

	rec = env.do(t, http.MethodDelete, "/stores/"+st.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /stores/{id} = %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/stores/"+st.ID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("DELETE missing store = %d, want 404", rec.Code)
	}
}

func TestCreateStore_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/stores", map[string]string{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST /stores without display_name = %d, want 400", rec.Code)
	}
}

func TestUploadAndFiles(t *testing.T) {
	env := newTestEnv(t)
	st := createStore(t, env, "docs")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "report.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("contents")); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/stores/"+st.ID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d: %s", rec.Code, rec.Body.String())
	}
	uploaded := decodeBody[rag.File](t, rec)
	if uploaded.DisplayName != "report.txt" {
		t.Errorf("display name = %q", uploaded.DisplayName)
	}

	listRec := env.do(t, http.MethodGet, "/stores/"+st.ID+"/files", nil, nil)
	files := decodeBody[map[string][]rag.File](t, listRec)["files"]
	if len(files) != 1 {
		t.Fatalf("files = %v", files)
	}

	// File IDs contain slashes; the delete route must accept them.
	delRec := env.do(t, http.MethodDelete, "/files/"+files[0].ID, nil, nil)
	if delRec.Code != http.StatusOK {
		t.Fatalf("DELETE /files = %d: %s", delRec.Code, delRec.Body.String())
	}
}

func TestDeleteFile_ScopedToBoundStore(t *testing.T) {
	env := newTestEnv(t)
	mine := createStore(t, env, "mine")
	theirs := createStore(t, env, "theirs")

	myFile, err := env.provider.UploadFile(t.Context(), rag.UploadRequest{StoreID: mine.ID, DisplayName: "a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	theirFile, err := env.provider.UploadFile(t.Context(), rag.UploadRequest{StoreID: theirs.ID, DisplayName: "b.txt"})
	if err != nil {
		t.Fatal(err)
	}

	_, secret := env.issueKey(t, mine.ID, nil)
	auth := map[string]string{"X-API-Key": secret}

	// A bound credential must not reach documents of another store.
	rec := env.do(t, http.MethodDelete, "/files/"+theirFile.ID, nil, auth)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("DELETE foreign file = %d, want 404", rec.Code)
	}
	left, err := env.provider.ListFiles(t.Context(), theirs.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Errorf("foreign store files = %d, want 1", len(left))
	}

	rec = env.do(t, http.MethodDelete, "/files/"+myFile.ID, nil, auth)
	if rec.Code != http.StatusOK {
		t.Errorf("DELETE own file = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	env := newTestEnv(t)
	st := createStore(t, env, "docs")

	rec := env.do(t, http.MethodPost, "/stores/"+st.ID+"/upload", map[string]string{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("upload without multipart = %d, want 400", rec.Code)
	}
}

func TestQuery(t *testing.T) {
	env := newTestEnv(t)
	st := createStore(t, env, "docs")

	t.Run("unauthenticated needs store_id", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/query", map[string]string{"question": "hi"}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query without store_id = %d, want 400", rec.Code)
		}
	})

	t.Run("unauthenticated with store_id", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/query",
			map[string]string{"question": "hi", "store_id": st.ID}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("query = %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody[map[string]any](t, rec)
		if body["answer"] != "answer: hi" {
			t.Errorf("answer = %v", body["answer"])
		}
		if body["prompt_source"] != "none" {
			t.Errorf("prompt_source = %v, want none", body["prompt_source"])
		}
	})

	t.Run("credential scopes the store", func(t *testing.T) {
		_, secret := env.issueKey(t, st.ID, nil)
		rec := env.do(t, http.MethodPost, "/query",
			map[string]string{"question": "hi"},
			map[string]string{"X-API-Key": secret})
		if rec.Code != http.StatusOK {
			t.Fatalf("scoped query = %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("invalid credential", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/query",
			map[string]string{"question": "hi", "store_id": st.ID},
			map[string]string{"X-API-Key": "sg_bogus"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("query with bad key = %d, want 401", rec.Code)
		}
	})

	t.Run("inline instruction wins", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/query",
			map[string]string{"question": "hi", "store_id": st.ID, "instruction": "terse"}, nil)
		body := decodeBody[map[string]any](t, rec)
		if body["answer"] != "[terse] answer: hi" {
			t.Errorf("answer = %v", body["answer"])
		}
		if body["prompt_source"] != "inline" {
			t.Errorf("prompt_source = %v, want inline", body["prompt_source"])
		}
	})

	t.Run("provider rate limit maps to 429", func(t *testing.T) {
		env.provider.Err = rag.ErrRateLimited
		defer func() { env.provider.Err = nil }()

		rec := env.do(t, http.MethodPost, "/query",
			map[string]string{"question": "hi", "store_id": st.ID}, nil)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("rate limited query = %d, want 429", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("429 must carry Retry-After")
		}
	})
}

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t)
	st := createStore(t, env, "docs")
	_, secret := env.issueKey(t, st.ID, nil)
	auth := map[string]string{"X-API-Key": secret}

	rec := env.do(t, http.MethodPost, "/chat/message", map[string]string{"message": "early"}, auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("message before start = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/chat/start", map[string]string{}, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat start = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/chat/message", map[string]string{"message": "hello"}, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat message = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/chat/history", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat history = %d", rec.Code)
	}
	history := decodeBody[map[string]any](t, rec)
	msgs, _ := history["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("history length = %d, want 2", len(msgs))
	}

	// A different credential has its own context and no chat yet.
	_, other := env.issueKey(t, st.ID, nil)
	rec = env.do(t, http.MethodGet, "/chat/history", nil, map[string]string{"X-API-Key": other})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("history on fresh context = %d, want 400", rec.Code)
	}
}

func TestPromptEndpoints(t *testing.T) {
	env := newTestEnv(t)
	base := "/stores/st1/prompts"

	mkPrompt := func(name string) map[string]any {
		rec := env.do(t, http.MethodPost, base, map[string]string{"name": name, "content": name + " text"}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create prompt = %d: %s", rec.Code, rec.Body.String())
		}
		return decodeBody[map[string]any](t, rec)
	}

	p1 := mkPrompt("one")
	mkPrompt("two")
	mkPrompt("three")

	// Ceiling is 3 in the test env.
	rec := env.do(t, http.MethodPost, base, map[string]string{"name": "four", "content": "x"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create beyond ceiling = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, base, nil, nil)
	prompts := decodeBody[map[string][]map[string]any](t, rec)["prompts"]
	if len(prompts) != 3 || prompts[0]["name"] != "one" {
		t.Fatalf("prompts = %v", prompts)
	}

	id := p1["id"].(string)

	rec = env.do(t, http.MethodGet, base+"/active", nil, nil)
	if active := decodeBody[map[string]any](t, rec)["active"]; active != nil {
		t.Errorf("active before set = %v, want null", active)
	}

	rec = env.do(t, http.MethodPut, base+"/"+id+"/active", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("set active = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, base+"/active", nil, nil)
	active, _ := decodeBody[map[string]any](t, rec)["active"].(map[string]any)
	if active == nil || active["id"] != id {
		t.Fatalf("active = %v, want %s", active, id)
	}

	// Deleting the active prompt clears the pointer.
	rec = env.do(t, http.MethodDelete, base+"/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete prompt = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, base+"/active", nil, nil)
	if active := decodeBody[map[string]any](t, rec)["active"]; active != nil {
		t.Errorf("active after delete = %v, want null", active)
	}

	// Prompt IDs are store-scoped.
	rec = env.do(t, http.MethodGet, "/stores/st2/prompts/"+prompts[1]["id"].(string), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-store get = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodGet, base+"/not-a-uuid", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed prompt id = %d, want 400", rec.Code)
	}
}

func TestKeyEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/keys",
		map[string]any{"owner_name": "alice", "store_id": "st1"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create key = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]any](t, rec)
	secret, _ := created["secret"].(string)
	if len(secret) < 10 {
		t.Fatalf("creation response must carry the raw secret, got %v", created)
	}
	id := created["id"].(string)

	// No other response ever exposes the secret or its hash.
	rec = env.do(t, http.MethodGet, "/keys", nil, nil)
	listing := rec.Body.String()
	if bytes.Contains([]byte(listing), []byte(secret)) {
		t.Error("listing leaked the raw secret")
	}
	if bytes.Contains([]byte(listing), []byte("secret_hash")) {
		t.Error("listing leaked the secret hash")
	}

	rec = env.do(t, http.MethodGet, "/keys/"+id, nil, nil)
	got := decodeBody[map[string]any](t, rec)
	if got["store_id"] != "st1" || got["owner_name"] != "alice" {
		t.Fatalf("key = %v", got)
	}

	// Renaming never touches the bound store.
	rec = env.do(t, http.MethodPut, "/keys/"+id, map[string]any{"owner_name": "bob"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update key = %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[map[string]any](t, rec)
	if updated["store_id"] != "st1" || updated["owner_name"] != "bob" {
		t.Errorf("after rename: %v", updated)
	}

	rec = env.do(t, http.MethodPut, "/keys/"+id, map[string]any{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty update = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/keys/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete key = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/keys/"+id, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted key = %d, want 404", rec.Code)
	}
}

func TestKeyCreate_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing owner", map[string]any{"store_id": "st"}},
		{"missing store", map[string]any{"owner_name": "alice"}},
		{"negative selector", map[string]any{"owner_name": "alice", "store_id": "st", "prompt_selector": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/keys", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("create = %d, want 400", rec.Code)
			}
		})
	}
}
