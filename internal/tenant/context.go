// Package tenant maps credentials to cached per-tenant execution
// contexts. A context holds the conversation state for one credential
// (or the unauthenticated default) and lives for the process lifetime.
package tenant

import (
	"context"
	"errors"
	"sync"

	"github.com/storegate/storegate/internal/rag"
)

// ErrNoActiveChat is returned when a message or history call arrives
// before the tenant has started a conversation.
var ErrNoActiveChat = errors.New("no active chat session")

// Context is the execution context for one credential. It carries the
// tenant's single current conversation. Methods serialize access, so
// concurrent requests under the same credential do not interleave
// turns within one chat.
type Context struct {
	provider rag.Provider

	mu        sync.Mutex
	chat      rag.Chat
	chatStore string
}

func newContext(provider rag.Provider) *Context {
	return &Context{provider: provider}
}

// StartChat opens a fresh conversation on the store, replacing any
// previous one.
func (c *Context) StartChat(ctx context.Context, storeID, instruction string) error {
	chat, err := c.provider.StartChat(ctx, storeID, instruction)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chat = chat
	c.chatStore = storeID
	return nil
}

// SendMessage appends a turn to the current conversation.
func (c *Context) SendMessage(ctx context.Context, text string) (*rag.Answer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat == nil {
		return nil, ErrNoActiveChat
	}
	return c.chat.SendMessage(ctx, text)
}

// History returns the current conversation's transcript.
func (c *Context) History(ctx context.Context) ([]rag.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat == nil {
		return nil, ErrNoActiveChat
	}
	return c.chat.History(ctx)
}

// ChatStore reports which store the current conversation is grounded
// on, if one exists.
func (c *Context) ChatStore() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat == nil {
		return "", false
	}
	return c.chatStore, true
}
