package formula

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/fieldgrid/device-policy-engine/pkg/types"
)

// ValueProvider supplies attribute values during evaluation. The current
// value is the attribute's committed state; the in-process value is the
// pending state staged during an evaluation pass. A provider returns
// ok=false when it has no value under the given name.
type ValueProvider interface {
	GetCurrentValue(name string) (types.Value, bool)
	GetInProcessValue(name string) (types.Value, bool)
}

// evaluator walks a parsed tree against one provider. Evaluation is total:
// every node yields a value, and anything undefined yields NaN.
type evaluator struct {
	provider ValueProvider
	logger   *slog.Logger
}

func (e *evaluator) eval(n *Node) types.Value {
	switch n.Op {
	case OpTerminal:
		return e.resolveTerminal(n.Term)

	case OpGroup:
		return e.eval(n.Left)

	case OpUnaryPlus:
		return types.NewNumber(e.eval(n.Left).AsNumber())
	case OpUnaryMinus:
		return types.NewNumber(-e.eval(n.Left).AsNumber())
	case OpNot:
		// Logical negation is strict: only the exact number 1 is true.
		return types.NewBool(e.eval(n.Left).AsNumber() != 1)

	case OpPlus:
		lhs, rhs := e.eval(n.Left), e.eval(n.Right)
		if lhs.IsString() && rhs.IsString() {
			return types.NewString(lhs.AsString() + rhs.AsString())
		}
		return types.NewNumber(lhs.AsNumber() + rhs.AsNumber())
	case OpMinus:
		return types.NewNumber(e.eval(n.Left).AsNumber() - e.eval(n.Right).AsNumber())
	case OpMul:
		return types.NewNumber(e.eval(n.Left).AsNumber() * e.eval(n.Right).AsNumber())
	case OpDiv:
		q := e.eval(n.Left).AsNumber() / e.eval(n.Right).AsNumber()
		if math.IsInf(q, 0) {
			return types.NaN
		}
		return types.NewNumber(q)
	case OpMod:
		return types.NewNumber(math.Mod(e.eval(n.Left).AsNumber(), e.eval(n.Right).AsNumber()))

	case OpAnd:
		a, b := e.eval(n.Left).AsNumber(), e.eval(n.Right).AsNumber()
		if math.IsNaN(a) || math.IsNaN(b) {
			return types.NewBool(false)
		}
		return types.NewBool(a != 0 && b != 0)
	case OpOr:
		a, b := e.eval(n.Left).AsNumber(), e.eval(n.Right).AsNumber()
		if math.IsNaN(a) {
			return types.NewBool(!math.IsNaN(b))
		}
		return types.NewBool(a != 0 || b != 0)

	case OpEq:
		return types.NewBool(e.eval(n.Left).Equal(e.eval(n.Right)))
	case OpNeq:
		return types.NewBool(!e.eval(n.Left).Equal(e.eval(n.Right)))

	// Ordering is NaN-aware and deliberately asymmetric: an unknown left
	// operand never satisfies a comparison, an unknown right operand
	// (typically a missing threshold) is permissive.
	case OpGt:
		a, b := e.eval(n.Left).AsNumber(), e.eval(n.Right).AsNumber()
		switch {
		case math.IsNaN(a):
			return types.NewBool(false)
		case math.IsNaN(b):
			return types.NewBool(true)
		}
		return types.NewBool(a > b)
	case OpGte:
		a, b := e.eval(n.Left).AsNumber(), e.eval(n.Right).AsNumber()
		switch {
		case math.IsNaN(a) && math.IsNaN(b):
			return types.NewBool(true)
		case math.IsNaN(a):
			return types.NewBool(false)
		case math.IsNaN(b):
			return types.NewBool(true)
		}
		return types.NewBool(a >= b)
	case OpLt:
		a, b := e.eval(n.Left).AsNumber(), e.eval(n.Right).AsNumber()
		switch {
		case math.IsNaN(a):
			return types.NewBool(false)
		case math.IsNaN(b):
			return types.NewBool(true)
		}
		return types.NewBool(a < b)
	case OpLte:
		a, b := e.eval(n.Left).AsNumber(), e.eval(n.Right).AsNumber()
		switch {
		case math.IsNaN(a) && math.IsNaN(b):
			return types.NewBool(true)
		case math.IsNaN(a):
			return types.NewBool(false)
		case math.IsNaN(b):
			return types.NewBool(true)
		}
		return types.NewBool(a <= b)

	case OpLike:
		lhs, rhs := e.eval(n.Left), e.eval(n.Right)
		if !lhs.IsString() || !rhs.IsString() {
			return types.NewBool(false)
		}
		return types.NewBool(likeMatch(lhs.AsString(), rhs.AsString()))

	case OpTernary:
		cond := e.eval(n.Left)
		alt := n.Right
		if cond.IsNumber() && cond.AsNumber() == 1 {
			return e.eval(alt.Left)
		}
		return e.eval(alt.Right)
	case OpAlternative:
		// Only reachable under a TERNARY; evaluating one directly takes
		// the false branch.
		return e.eval(n.Right)

	case OpLower:
		return e.fold(n.Left, strings.ToLower)
	case OpUpper:
		return e.fold(n.Left, strings.ToUpper)

	case OpFunction:
		return e.callFunction(n)
	}
	return types.NaN
}

// fold applies a case fold to a string operand. A non-string operand, a
// missing operand, and NaN all fold to the empty string.
func (e *evaluator) fold(operand *Node, fn func(string) string) types.Value {
	if operand == nil {
		return types.NewString("")
	}
	v := e.eval(operand)
	if !v.IsString() {
		return types.NewString("")
	}
	return types.NewString(fn(v.AsString()))
}

// callFunction dispatches a FUNCTION node by name. The name terminal sits
// on the left; arguments are chained on the right as GROUP cells. Only
// the case folds are defined; an unknown name logs a warning and yields
// NaN.
func (e *evaluator) callFunction(n *Node) types.Value {
	name := n.Left.Term.Text

	var arg *Node
	if n.Right != nil {
		arg = n.Right.Left
	}

	switch {
	case strings.EqualFold(name, "LOWER"):
		return e.fold(arg, strings.ToLower)
	case strings.EqualFold(name, "UPPER"):
		return e.fold(arg, strings.ToUpper)
	}

	e.logger.Warn("unknown function in formula", "function", name)
	return types.NaN
}

// resolveTerminal produces the value of a leaf. Number literals that do
// not parse and attribute lookups that miss both resolve to NaN; bare
// identifiers and string literals resolve to their text verbatim.
func (e *evaluator) resolveTerminal(t *Terminal) types.Value {
	switch t.Type {
	case TerminalNumber:
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return types.NaN
		}
		return types.NewNumber(f)

	case TerminalString, TerminalIdent:
		return types.NewString(t.Text)

	case TerminalCurrentAttribute:
		if v, ok := e.provider.GetCurrentValue(t.Text); ok {
			return v
		}
		return types.NaN

	case TerminalInProcessAttribute:
		if v, ok := e.provider.GetInProcessValue(t.Text); ok {
			return v
		}
		if v, ok := e.provider.GetCurrentValue(t.Text); ok {
			return v
		}
		return types.NaN
	}
	return types.NaN
}

// likeMatch implements the LIKE wildcard match: '%' matches any run of
// characters, '_' matches exactly one, and a backslash escapes the next
// character. The pattern must cover the whole subject. It is walked by
// rune so multi-byte literals survive into the regex. A pattern that
// fails to compile matches nothing.
func likeMatch(subject, pattern string) bool {
	var sb strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteByte('.')
		case '\\':
			if i+1 < len(runes) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(runes[i])))
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re, err := regexp.Compile("^(?:" + sb.String() + ")$")
	if err != nil {
		return false
	}
	return re.MatchString(subject)
}
