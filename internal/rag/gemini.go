package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storegate/storegate/internal/log"
	"google.golang.org/genai"
)

// storePrefix is the resource-name prefix Gemini puts on every file
// search store. Clients see IDs with the prefix stripped.
const storePrefix = "fileSearchStores/"

// uploadPollInterval is how often pending import operations are checked.
const uploadPollInterval = 500 * time.Millisecond

// Gemini implements Provider on top of the Gemini File Search API.
type Gemini struct {
	client *genai.Client
	model  string
	logger log.Logger
	tracer trace.Tracer
}

// NewGemini builds a Provider backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string, logger log.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  model,
		logger: logger,
		tracer: otel.Tracer("storegate/rag"),
	}, nil
}

// startSpan opens a provider span. The returned func records err (if the
// pointer target is non-nil at defer time) and ends the span.
func (g *Gemini) startSpan(ctx context.Context, op string, errp *error, attrs ...attribute.KeyValue) (context.Context, func()) {
	ctx, span := g.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	return ctx, func() {
		if err := *errp; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

var _ Provider = (*Gemini)(nil)

// shortStoreID strips the resource prefix so store IDs stay a single
// URL path segment.
func shortStoreID(name string) string {
	return strings.TrimPrefix(name, storePrefix)
}

// FileStoreID extracts the client-facing store ID from a document
// resource name ("fileSearchStores/{store}/documents/..."), or ""
// when the name has a different shape.
func FileStoreID(fileID string) string {
	rest, ok := strings.CutPrefix(fileID, storePrefix)
	if !ok {
		return ""
	}
	store, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return store
}

// storeName restores the full resource name from a client-facing ID.
func storeName(id string) string {
	if strings.HasPrefix(id, storePrefix) {
		return id
	}
	return storePrefix + id
}

// mapErr converts genai API failures into the package's error taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 404:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED":
			return fmt.Errorf("%s: %w", op, ErrRateLimited)
		case apiErr.Code == 401 || apiErr.Code == 403:
			return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
		}
	}
	return providerErr(op, err)
}

func (g *Gemini) CreateStore(ctx context.Context, displayName string) (_ *Store, err error) {
	ctx, end := g.startSpan(ctx, "rag.CreateStore", &err)
	defer end()

	fss, err := g.client.FileSearchStores.Create(ctx, &genai.CreateFileSearchStoreConfig{
		DisplayName: displayName,
	})
	if err != nil {
		return nil, mapErr("create store", err)
	}
	g.logger.Info("store created", "store", fss.Name)
	return &Store{ID: shortStoreID(fss.Name), DisplayName: fss.DisplayName}, nil
}

func (g *Gemini) ListStores(ctx context.Context) (_ []Store, err error) {
	ctx, end := g.startSpan(ctx, "rag.ListStores", &err)
	defer end()

	stores := make([]Store, 0)
	for fss, err := range g.client.FileSearchStores.All(ctx) {
		if err != nil {
			return nil, mapErr("list stores", err)
		}
		stores = append(stores, Store{
			ID:          shortStoreID(fss.Name),
			DisplayName: fss.DisplayName,
		})
	}
	return stores, nil
}

func (g *Gemini) DeleteStore(ctx context.Context, storeID string) (err error) {
	ctx, end := g.startSpan(ctx, "rag.DeleteStore", &err, attribute.String("rag.store", storeID))
	defer end()

	err = g.client.FileSearchStores.Delete(ctx, storeName(storeID), &genai.DeleteFileSearchStoreConfig{
		Force: genai.Ptr(true),
	})
	if err != nil {
		return mapErr("delete store", err)
	}
	g.logger.Info("store deleted", "store", storeID)
	return nil
}

// UploadFile imports a staged local file and blocks until the provider
// finishes processing it or ctx is cancelled.
func (g *Gemini) UploadFile(ctx context.Context, req UploadRequest) (_ *File, err error) {
	ctx, end := g.startSpan(ctx, "rag.UploadFile", &err, attribute.String("rag.store", req.StoreID))
	defer end()

	cfg := &genai.UploadToFileSearchStoreConfig{DisplayName: req.DisplayName}
	if req.MimeType != "" {
		cfg.MIMEType = req.MimeType
	}
	op, err := g.client.FileSearchStores.UploadToFileSearchStoreFromPath(ctx, req.Path, storeName(req.StoreID), cfg)
	if err != nil {
		return nil, mapErr("upload file", err)
	}

	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(uploadPollInterval):
		}
		op, err = g.client.Operations.GetUploadToFileSearchStoreOperation(ctx, op, nil)
		if err != nil {
			return nil, mapErr("upload file", err)
		}
	}

	f := &File{DisplayName: req.DisplayName, MimeType: req.MimeType, State: "ACTIVE"}
	if resp := op.Response; resp != nil {
		f.ID = resp.DocumentName
	}
	g.logger.Info("file uploaded", "store", req.StoreID, "file", f.ID)
	return f, nil
}

func (g *Gemini) ListFiles(ctx context.Context, storeID string) (_ []File, err error) {
	ctx, end := g.startSpan(ctx, "rag.ListFiles", &err, attribute.String("rag.store", storeID))
	defer end()

	files := make([]File, 0)
	for doc, err := range g.client.FileSearchStores.Documents.All(ctx, storeName(storeID)) {
		if err != nil {
			return nil, mapErr("list files", err)
		}
		files = append(files, File{
			ID:          doc.Name,
			DisplayName: doc.DisplayName,
			SizeBytes:   doc.SizeBytes,
			MimeType:    doc.MIMEType,
			State:       string(doc.State),
		})
	}
	return files, nil
}

func (g *Gemini) DeleteFile(ctx context.Context, fileID string) (err error) {
	ctx, end := g.startSpan(ctx, "rag.DeleteFile", &err)
	defer end()

	err = g.client.FileSearchStores.Documents.Delete(ctx, fileID, &genai.DeleteDocumentConfig{
		Force: genai.Ptr(true),
	})
	if err != nil {
		return mapErr("delete file", err)
	}
	g.logger.Info("file deleted", "file", fileID)
	return nil
}

// generateConfig builds the shared tool and system-instruction config
// for grounded generation.
func (g *Gemini) generateConfig(storeID, instruction string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{
			FileSearch: &genai.FileSearch{
				FileSearchStoreNames: []string{storeName(storeID)},
			},
		}},
	}
	if instruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}
	return cfg
}

func (g *Gemini) Query(ctx context.Context, storeID, question, instruction string) (_ *Answer, err error) {
	ctx, end := g.startSpan(ctx, "rag.Query", &err, attribute.String("rag.store", storeID))
	defer end()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(question), g.generateConfig(storeID, instruction))
	if err != nil {
		return nil, mapErr("query", err)
	}
	return answerFromResponse(resp), nil
}

func (g *Gemini) StartChat(ctx context.Context, storeID, instruction string) (_ Chat, err error) {
	ctx, end := g.startSpan(ctx, "rag.StartChat", &err, attribute.String("rag.store", storeID))
	defer end()

	chat, err := g.client.Chats.Create(ctx, g.model, g.generateConfig(storeID, instruction), nil)
	if err != nil {
		return nil, mapErr("start chat", err)
	}
	return &geminiChat{chat: chat}, nil
}

// answerFromResponse flattens the generation response into text plus
// grounding citations.
func answerFromResponse(resp *genai.GenerateContentResponse) *Answer {
	ans := &Answer{Text: resp.Text()}
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return ans
	}
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		rc := chunk.RetrievedContext
		if rc == nil {
			continue
		}
		ans.Sources = append(ans.Sources, Source{Title: rc.Title, Snippet: rc.Text})
	}
	return ans
}

type geminiChat struct {
	chat *genai.Chat
}

var _ Chat = (*geminiChat)(nil)

func (c *geminiChat) SendMessage(ctx context.Context, text string) (*Answer, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return nil, mapErr("send message", err)
	}
	return answerFromResponse(resp), nil
}

func (c *geminiChat) History(ctx context.Context) ([]Message, error) {
	history := c.chat.History(false)
	msgs := make([]Message, 0, len(history))
	for _, content := range history {
		var sb strings.Builder
		for _, part := range content.Parts {
			sb.WriteString(part.Text)
		}
		msgs = append(msgs, Message{Role: string(content.Role), Text: sb.String()})
	}
	return msgs, nil
}
