package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/runner"
)

var (
	ErrUnparsable    = errors.New("no address in tool output")
	ErrCommandFailed = errors.New("command exited non-zero")
	ErrNoStrategy    = errors.New("no strategy applies")
)

type Scope int

const (
	// ScopeAny strategies accept both an explicit server and the system default.
	ScopeAny Scope = iota
	// ScopeDefaultOnly strategies cannot target a specific server.
	ScopeDefaultOnly
)

// Strategy is one tool-backed way of resolving a name. Build renders the
// command for a server (empty for the system default) and Parse extracts the
// first address from the tool's stdout.
type Strategy struct {
	Name  string
	Tool  string
	Scope Scope
	Build func(server, domain string, timeout time.Duration) runner.Command
	Parse func(stdout string) (string, error)
}

func (s Strategy) Applies(server string) bool {
	if s.Scope == ScopeDefaultOnly {
		return server == ""
	}
	return true
}

// Classify maps an error produced while running a strategy to its kind.
func Classify(err error) model.ErrorKind {
	var spawnErr *runner.SpawnError
	switch {
	case err == nil:
		return model.ErrorNone
	case errors.Is(err, runner.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return model.ErrorTimeout
	case errors.Is(err, runner.ErrToolUnavailable), errors.Is(err, ErrNoStrategy):
		return model.ErrorToolUnavailable
	case errors.As(err, &spawnErr):
		return model.ErrorSpawn
	case errors.Is(err, ErrUnparsable):
		return model.ErrorUnparsableOutput
	case errors.Is(err, context.Canceled):
		return model.ErrorCanceled
	default:
		return model.ErrorCommandFailed
	}
}

func seconds(timeout time.Duration) string {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%d", secs)
}
