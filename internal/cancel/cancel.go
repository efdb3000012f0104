// Package cancel provides cooperative cancellation of in-flight generations.
//
// Each conversation surface owns one flag. Starting a generation resets it,
// a pause request sets it, and the streaming loop polls it between chunks.
package cancel

import (
	"context"
	"sync"
)

// SignalCompletionPaused is the signal name all flags are keyed under.
const SignalCompletionPaused = "chat_completion_paused"

// Bus stores one cancellation flag per surface key.
type Bus interface {
	Reset(ctx context.Context, surface string) error
	RequestCancel(ctx context.Context, surface string) error
	IsCancelRequested(ctx context.Context, surface string) bool
}

// Key returns the storage key for a surface's flag.
func Key(surface string) string {
	return SignalCompletionPaused + ":" + surface
}

// Token is the view of one surface's flag handed to a streaming call.
type Token struct {
	ctx     context.Context
	bus     Bus
	surface string
}

func NewToken(ctx context.Context, bus Bus, surface string) Token {
	return Token{ctx: context.WithoutCancel(ctx), bus: bus, surface: surface}
}

func (t Token) Surface() string { return t.surface }

// IsCancelRequested reports whether a pause was requested since the last reset.
func (t Token) IsCancelRequested() bool {
	if t.bus == nil {
		return false
	}
	return t.bus.IsCancelRequested(t.ctx, t.surface)
}

// Memory is a process-local Bus.
type Memory struct {
	mu    sync.Mutex
	flags map[string]bool
}

var _ Bus = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{flags: make(map[string]bool)}
}

func (m *Memory) Reset(_ context.Context, surface string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, Key(surface))
	return nil
}

func (m *Memory) RequestCancel(_ context.Context, surface string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[Key(surface)] = true
	return nil
}

func (m *Memory) IsCancelRequested(_ context.Context, surface string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags[Key(surface)]
}
