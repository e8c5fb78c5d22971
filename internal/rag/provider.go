// Package rag defines the retrieval provider abstraction and its Gemini
// File Search implementation.
//
// A Provider owns document stores, the files inside them, and grounded
// question answering over those files. Handlers talk to the Provider
// interface only; the Gemini type is the production implementation and
// Fake backs the tests.
package rag

import (
	"context"
	"time"
)

// Store is a document store as exposed to clients. ID is the short
// identifier without the provider's resource prefix.
type Store struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// File is a document inside a store. ID is the provider's full resource
// name, since documents are only ever addressed for deletion.
type File struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	State       string `json:"state,omitempty"`
}

// Source is a grounding citation attached to an answer.
type Source struct {
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Answer is the result of a grounded query or chat message.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
}

// Message is a single turn of a chat transcript.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// UploadRequest carries a staged local file into a store.
type UploadRequest struct {
	StoreID     string
	Path        string
	DisplayName string
	// MimeType is optional. When empty the provider sniffs the type
	// from the file itself.
	MimeType string
}

// Chat is a stateful conversation grounded on a single store.
type Chat interface {
	// SendMessage appends a user turn and returns the model's reply.
	SendMessage(ctx context.Context, text string) (*Answer, error)
	// History returns the transcript so far in order.
	History(ctx context.Context) ([]Message, error)
}

// Provider is the retrieval backend. All methods are safe for
// concurrent use.
type Provider interface {
	CreateStore(ctx context.Context, displayName string) (*Store, error)
	ListStores(ctx context.Context) ([]Store, error)
	// DeleteStore removes a store and everything in it.
	DeleteStore(ctx context.Context, storeID string) error

	UploadFile(ctx context.Context, req UploadRequest) (*File, error)
	ListFiles(ctx context.Context, storeID string) ([]File, error)
	// DeleteFile takes the document's full resource name.
	DeleteFile(ctx context.Context, fileID string) error

	// Query answers a one-shot question grounded on the store, with
	// instruction as the system prompt when non-empty.
	Query(ctx context.Context, storeID, question, instruction string) (*Answer, error)

	// StartChat opens a new conversation grounded on the store.
	StartChat(ctx context.Context, storeID, instruction string) (Chat, error)
}
