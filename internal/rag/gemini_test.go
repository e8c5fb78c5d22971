package rag

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestStoreNameRoundTrip(t *testing.T) {
	if got := shortStoreID("fileSearchStores/abc123"); got != "abc123" {
		t.Errorf("shortStoreID = %q, want abc123", got)
	}
	if got := shortStoreID("abc123"); got != "abc123" {
		t.Errorf("shortStoreID(bare) = %q, want abc123", got)
	}
	if got := storeName("abc123"); got != "fileSearchStores/abc123" {
		t.Errorf("storeName = %q", got)
	}
	// Already-prefixed IDs pass through unchanged.
	if got := storeName("fileSearchStores/abc123"); got != "fileSearchStores/abc123" {
		t.Errorf("storeName(prefixed) = %q", got)
	}
}

func TestFileStoreID(t *testing.T) {
	tests := []struct {
		name   string
		fileID string
		want   string
	}{
		{"document resource name", "fileSearchStores/abc123/documents/doc-1", "abc123"},
		{"nested document segments", "fileSearchStores/abc123/documents/a/b", "abc123"},
		{"bare store name", "fileSearchStores/abc123", ""},
		{"missing prefix", "abc123/documents/doc-1", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileStoreID(tt.fileID); got != tt.want {
				t.Errorf("FileStoreID(%q) = %q, want %q", tt.fileID, got, tt.want)
			}
		})
	}
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"not found", genai.APIError{Code: 404, Status: "NOT_FOUND"}, ErrNotFound},
		{"quota", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, ErrRateLimited},
		{"exhausted without 429", genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, ErrRateLimited},
		{"bad credential", genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, ErrUnauthenticated},
		{"wrapped", fmt.Errorf("call: %w", genai.APIError{Code: 404}), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapErr("op", tt.err)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("mapErr = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("mapErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMapErr_WrapsUnknownAsProviderError(t *testing.T) {
	err := mapErr("query", errors.New("connection reset"))

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("mapErr = %T, want *ProviderError", err)
	}
	if pe.Op != "query" {
		t.Errorf("Op = %q, want query", pe.Op)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrRateLimited) {
		t.Error("generic failure must not match a sentinel")
	}
}
