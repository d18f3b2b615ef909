package runner

import (
	"context"
	"sync"
	"time"
)

type MockRunner struct {
	Responder func(cmd Command, timeout time.Duration) (Result, error)

	mu    sync.Mutex
	calls []Command
}

func (m *MockRunner) Execute(ctx context.Context, cmd Command, timeout time.Duration) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, cmd)
	m.mu.Unlock()
	if m.Responder == nil {
		return Result{}, nil
	}
	return m.Responder(cmd, timeout)
}

func (m *MockRunner) Calls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.calls...)
}
