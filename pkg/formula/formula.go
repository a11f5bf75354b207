package formula

import (
	"fmt"
	"log/slog"

	"github.com/fieldgrid/device-policy-engine/pkg/types"
)

// Formula is a compiled policy expression. Compilation happens once in
// New; a Formula is immutable afterwards and safe to evaluate from any
// number of goroutines concurrently.
type Formula struct {
	source string
	root   *Node
	logger *slog.Logger
}

// Option configures a Formula at construction.
type Option func(*Formula)

// WithLogger sets the logger used for evaluation-time diagnostics such as
// unknown function names. The default logger is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Formula) {
		f.logger = logger
	}
}

// New compiles source into a Formula. It returns a LexError or SyntaxError
// (wrapped with the source text) when the input is malformed; a returned
// Formula is fully parsed and can never fail to evaluate.
func New(source string, opts ...Option) (*Formula, error) {
	if len(source) > MaxFormulaLength {
		return nil, fmt.Errorf("formula exceeds %d characters", MaxFormulaLength)
	}

	tokens, err := NewLexer(source).Tokenize()
	if err != nil {
		return nil, fmt.Errorf("tokenizing %q: %w", source, err)
	}
	root, err := ParseFormula(tokens, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", source, err)
	}

	f := &Formula{source: source, root: root, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Compute evaluates the formula against the given provider. Evaluation is
// total and pure: it never fails, never mutates the provider, and yields
// NaN for anything undefined.
func (f *Formula) Compute(provider ValueProvider) types.Value {
	e := &evaluator{provider: provider, logger: f.logger}
	return e.eval(f.root)
}

// Source returns the formula text the Formula was compiled from.
func (f *Formula) Source() string {
	return f.source
}

// Dump renders the parsed tree in the prefix notation [OP|lhs|rhs].
func (f *Formula) Dump() string {
	return f.root.Dump()
}
