package api

import (
	"net/http"
	"strings"
	"testing"
)

func completionsBody(model string, messages ...map[string]string) map[string]any {
	return map[string]any{"model": model, "messages": messages}
}

func TestCompletions_RequiresCredential(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/chat/completions",
		completionsBody("gemini-2.5-flash", map[string]string{"role": "user", "content": "hi"}), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("completions without bearer = %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/chat/completions",
		completionsBody("gemini-2.5-flash", map[string]string{"role": "user", "content": "hi"}),
		map[string]string{"Authorization": "Bearer sg_bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("completions with bad bearer = %d, want 401", rec.Code)
	}
}

func TestCompletions_ActivePromptApplied(t *testing.T) {
	env := newTestEnv(t)
	st := createStore(t, env, "docs")
	_, secret := env.issueKey(t, st.ID, nil)

	p, err := env.prompts.Create(t.Context(), st.ID, "helpful", "Helpful")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.prompts.SetActive(t.Context(), st.ID, p.ID); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/v1/chat/completions",
		completionsBody("gemini-2.5-flash", map[string]string{"role": "user", "content": "hi"}),
		map[string]string{"Authorization": "Bearer " + secret})
	if rec.Code != http.StatusOK {
		t.Fatalf("completions = %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody[completionResponse](t, rec)
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Errorf("id = %q", resp.ID)
	}
	if resp.Object != "chat.completion" || resp.Created == 0 {
		t.Errorf("envelope = %+v", resp)
	}
	if resp.Usage.PromptTokens != 0 || resp.Usage.CompletionTokens != 0 || resp.Usage.TotalTokens != 0 {
		t.Errorf("usage must be zeroed, got %+v", resp.Usage)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices = %v", resp.Choices)
	}
	content := resp.Choices[0].Message.Content
	if content != "[Helpful] answer: hi" {
		t.Errorf("content = %q, want active prompt applied", content)
	}
}

func TestCompletions_SelectorBeatsActive(t *testing.T) {
	env := newTestEnv(t)
	st := createStore(t, env, "docs")

	a, err := env.prompts.Create(t.Context(), st.ID, "a", "A")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.prompts.Create(t.Context(), st.ID, "b", "B"); err != nil {
		t.Fatal(err)
	}
	if err := env.prompts.SetActive(t.Context(), st.ID, a.ID); err != nil {
		t.Fatal(err)
	}

	// Selector index 1 pins this credential to "B" regardless of the
	// store's active prompt.
	sel := int32(1)
	_, secret := env.issueKey(t, st.ID, &sel)

	rec := env.do(t, http.MethodPost, "/v1/chat/completions",
		completionsBody("gemini-2.5-flash", map[string]string{"role": "user", "content": "hi"}),
		map[string]string{"Authorization": "Bearer " + secret})
	if rec.Code != http.StatusOK {
		t.Fatalf("completions = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[completionResponse](t, rec)
	if got := resp.Choices[0].Message.Content; got != "[B] answer: hi" {
		t.Errorf("content = %q, want selector-pinned prompt", got)
	}
}

func TestCompletions_SystemMessageWins(t *testing.T) {
	env := newTestEnv(t)
	st := createStore(t, env, "docs")
	_, secret := env.issueKey(t, st.ID, nil)

	rec := env.do(t, http.MethodPost, "/v1/chat/completions",
		completionsBody("gemini-2.5-flash",
			map[string]string{"role": "system", "content": "terse"},
			map[string]string{"role": "user", "content": "first"},
			map[string]string{"role": "assistant", "content": "noise"},
			map[string]string{"role": "user", "content": "last"},
		),
		map[string]string{"Authorization": "Bearer " + secret})
	if rec.Code != http.StatusOK {
		t.Fatalf("completions = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[completionResponse](t, rec)

	// Last user message is the query; the system message is the
	// inline instruction.
	if got := resp.Choices[0].Message.Content; got != "[terse] answer: last" {
		t.Errorf("content = %q", got)
	}
}

func TestCompletions_ModelSubstitution(t *testing.T) {
	env := newTestEnv(t)
	st := createStore(t, env, "docs")
	_, secret := env.issueKey(t, st.ID, nil)
	auth := map[string]string{"Authorization": "Bearer " + secret}

	t.Run("unknown model substituted with visible warning", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/chat/completions",
			completionsBody("gpt-4o", map[string]string{"role": "user", "content": "hi"}), auth)
		resp := decodeBody[completionResponse](t, rec)
		if resp.Model != "gemini-2.5-flash" {
			t.Errorf("model = %q, want substituted default", resp.Model)
		}
		content := resp.Choices[0].Message.Content
		if !strings.Contains(content, `"gpt-4o"`) || !strings.HasPrefix(content, "[model ") {
			t.Errorf("substitution must be visible in the answer, got %q", content)
		}
	})

	t.Run("allow-listed model passes unmodified", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/chat/completions",
			completionsBody("gemini-2.5-pro", map[string]string{"role": "user", "content": "hi"}), auth)
		resp := decodeBody[completionResponse](t, rec)
		if resp.Model != "gemini-2.5-pro" {
			t.Errorf("model = %q", resp.Model)
		}
		if strings.HasPrefix(resp.Choices[0].Message.Content, "[model ") {
			t.Error("no warning expected for an allowed model")
		}
	})

	t.Run("empty model uses default silently", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/chat/completions",
			completionsBody("", map[string]string{"role": "user", "content": "hi"}), auth)
		resp := decodeBody[completionResponse](t, rec)
		if resp.Model != "gemini-2.5-flash" {
			t.Errorf("model = %q", resp.Model)
		}
	})
}

func TestCompletions_Validation(t *testing.T) {
	env := newTestEnv(t)
	st := createStore(t, env, "docs")
	_, secret := env.issueKey(t, st.ID, nil)
	auth := map[string]string{"Authorization": "Bearer " + secret}

	rec := env.do(t, http.MethodPost, "/v1/chat/completions",
		completionsBody("gemini-2.5-flash"), auth)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty messages = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/chat/completions",
		completionsBody("gemini-2.5-flash", map[string]string{"role": "assistant", "content": "x"}), auth)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no user message = %d, want 400", rec.Code)
	}
}
