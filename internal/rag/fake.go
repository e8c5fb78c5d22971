package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fake is an in-memory Provider for tests. Answers echo the question
// and instruction so tests can assert on prompt resolution without a
// live backend.
type Fake struct {
	mu     sync.Mutex
	stores map[string]*fakeStore

	// Err, when set, is returned by every call. Tests use it to
	// exercise the error taxonomy.
	Err error
}

type fakeStore struct {
	store Store
	files []File
}

// NewFake creates an empty Fake provider.
func NewFake() *Fake {
	return &Fake{stores: make(map[string]*fakeStore)}
}

var _ Provider = (*Fake)(nil)

func (f *Fake) CreateStore(_ context.Context, displayName string) (*Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	st := Store{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	f.stores[st.ID] = &fakeStore{store: st}
	return &st, nil
}

func (f *Fake) ListStores(_ context.Context) ([]Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]Store, 0, len(f.stores))
	for _, fs := range f.stores {
		out = append(out, fs.store)
	}
	return out, nil
}

func (f *Fake) DeleteStore(_ context.Context, storeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.stores[storeID]; !ok {
		return fmt.Errorf("delete store: %w", ErrNotFound)
	}
	delete(f.stores, storeID)
	return nil
}

func (f *Fake) UploadFile(_ context.Context, req UploadRequest) (*File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	fs, ok := f.stores[req.StoreID]
	if !ok {
		return nil, fmt.Errorf("upload file: %w", ErrNotFound)
	}
	file := File{
		ID:          storePrefix + req.StoreID + "/documents/" + uuid.NewString(),
		DisplayName: req.DisplayName,
		MimeType:    req.MimeType,
		State:       "ACTIVE",
	}
	fs.files = append(fs.files, file)
	return &file, nil
}

func (f *Fake) ListFiles(_ context.Context, storeID string) ([]File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	fs, ok := f.stores[storeID]
	if !ok {
		return nil, fmt.Errorf("list files: %w", ErrNotFound)
	}
	return append([]File(nil), fs.files...), nil
}

func (f *Fake) DeleteFile(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for _, fs := range f.stores {
		for i, file := range fs.files {
			if file.ID == fileID {
				fs.files = append(fs.files[:i], fs.files[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("delete file: %w", ErrNotFound)
}

func (f *Fake) Query(_ context.Context, storeID, question, instruction string) (*Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if _, ok := f.stores[storeID]; !ok {
		return nil, fmt.Errorf("query: %w", ErrNotFound)
	}
	return fakeAnswer(question, instruction), nil
}

func (f *Fake) StartChat(_ context.Context, storeID, instruction string) (Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if _, ok := f.stores[storeID]; !ok {
		return nil, fmt.Errorf("start chat: %w", ErrNotFound)
	}
	return &fakeChat{parent: f, instruction: instruction}, nil
}

// fakeAnswer makes the resolved instruction observable to tests.
func fakeAnswer(question, instruction string) *Answer {
	text := "answer: " + question
	if instruction != "" {
		text = "[" + instruction + "] " + text
	}
	return &Answer{Text: text}
}

type fakeChat struct {
	parent      *Fake
	instruction string

	mu      sync.Mutex
	history []Message
}

var _ Chat = (*fakeChat)(nil)

func (c *fakeChat) SendMessage(_ context.Context, text string) (*Answer, error) {
	if err := c.parent.chatErr(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ans := fakeAnswer(text, c.instruction)
	c.history = append(c.history,
		Message{Role: "user", Text: text},
		Message{Role: "model", Text: ans.Text},
	)
	return ans, nil
}

func (c *fakeChat) History(_ context.Context) ([]Message, error) {
	if err := c.parent.chatErr(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.history...), nil
}

func (f *Fake) chatErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Err
}
