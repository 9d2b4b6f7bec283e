package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// SessionGenerator produces engine session ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type SessionGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for testing.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
//	gen := NewFixedGenerator("s-1", "s-2")
//	gen.Generate() // "s-1"
//	gen.Generate() // "s-2"
//	gen.Generate() // panic: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
// Panics once all tokens have been consumed so misconfigured tests fail fast.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// WithSession creates an engine, passes it to fn and tears it down on
// every exit path: normal return, error return or panic. Teardown logs the
// session id, final state and fact count, then clears the engine. A panic
// in fn is re-raised after teardown.
func WithSession(fn func(*Engine) error, opts ...EngineOption) (err error) {
	e := New(opts...)
	slog.Info("session started", "session", e.SessionID(), "max_iterations", e.MaxIterations())

	defer func() {
		r := recover()

		attrs := []any{
			"session", e.SessionID(),
			"state", e.State().String(),
			"facts", e.facts.Len(),
			"rules", len(e.rules),
			"iterations", e.Iterations(),
		}
		switch {
		case r != nil:
			slog.Error("session closed by panic", append(attrs, "panic", fmt.Sprint(r))...)
		case err != nil:
			slog.Warn("session closed with error", append(attrs, "error", err)...)
		default:
			slog.Info("session closed", attrs...)
		}

		e.Clear()
		if r != nil {
			panic(r)
		}
	}()

	return fn(e)
}
