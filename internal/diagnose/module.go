package diagnose

import (
	"context"
	"sync"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"go.uber.org/zap"
)

// Diagnostic is the contract shared by every diagnostic module. It returns
// true when the run completed without a fatal failure.
type Diagnostic interface {
	Name() string
	RunDiagnostic(ctx context.Context) bool
}

type Module struct {
	engine *Engine
	logger *zap.Logger

	mu          sync.Mutex
	subscribers []func(model.DiagnosticReport)
}

func NewModule(engine *Engine, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{engine: engine, logger: logger}
}

func (m *Module) Name() string {
	return "dns"
}

// Subscribe registers fn to receive every finished report.
func (m *Module) Subscribe(fn func(model.DiagnosticReport)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

func (m *Module) RunDiagnostic(ctx context.Context) bool {
	report, err := m.engine.Run(ctx)
	if err != nil && len(report.Summary) == 0 {
		m.logger.Error("dns diagnostic failed", zap.Error(err))
		return false
	}

	m.mu.Lock()
	subscribers := append([]func(model.DiagnosticReport){}, m.subscribers...)
	m.mu.Unlock()
	for _, fn := range subscribers {
		fn(report)
	}
	if err != nil {
		m.logger.Error("dns diagnostic aborted", zap.Error(err))
		return false
	}
	return report.ConnectivityOK
}

var _ Diagnostic = (*Module)(nil)
