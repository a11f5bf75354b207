package formula

import "strings"

// Operation tags an AST node. The set is closed and fixed; the evaluator
// switches exhaustively over it so a new operator cannot silently fall
// through.
type Operation int

const (
	OpUnaryPlus Operation = iota
	OpUnaryMinus
	OpPlus
	OpMinus
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpLike
	OpTernary
	OpAlternative
	OpNot
	OpLower
	OpUpper
	OpFunction
	OpGroup
	OpTerminal
)

// precedence returns the binding strength used by the prioritize rotation.
// Unary operators bind tightest; grouping, ternary and function nodes are
// opaque to the rotation, and terminals sit below everything.
func (op Operation) precedence() int {
	switch op {
	case OpUnaryPlus, OpUnaryMinus, OpNot:
		return 6
	case OpMul, OpDiv, OpMod:
		return 4
	case OpPlus, OpMinus:
		return 3
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpLike:
		return 2
	case OpAnd, OpOr:
		return 1
	case OpTernary, OpAlternative, OpLower, OpUpper, OpFunction, OpGroup:
		return 0
	case OpTerminal:
		return -1
	default:
		return -1
	}
}

// String returns the operation name used in dumps.
func (op Operation) String() string {
	switch op {
	case OpUnaryPlus:
		return "UNARY_PLUS"
	case OpUnaryMinus:
		return "UNARY_MINUS"
	case OpPlus:
		return "PLUS"
	case OpMinus:
		return "MINUS"
	case OpMul:
		return "MUL"
	case OpDiv:
		return "DIV"
	case OpMod:
		return "MOD"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpEq:
		return "EQ"
	case OpNeq:
		return "NEQ"
	case OpLt:
		return "LT"
	case OpLte:
		return "LTE"
	case OpGt:
		return "GT"
	case OpGte:
		return "GTE"
	case OpLike:
		return "LIKE"
	case OpTernary:
		return "TERNARY"
	case OpAlternative:
		return "ALTERNATIVE"
	case OpNot:
		return "NOT"
	case OpLower:
		return "LOWER"
	case OpUpper:
		return "UPPER"
	case OpFunction:
		return "FUNCTION"
	case OpGroup:
		return "GROUP"
	case OpTerminal:
		return "TERMINAL"
	default:
		return "UNKNOWN"
	}
}

// TerminalType classifies a leaf node.
type TerminalType int

const (
	TerminalInProcessAttribute TerminalType = iota // $(name)
	TerminalCurrentAttribute                       // $$(name)
	TerminalNumber
	TerminalIdent
	TerminalString
)

// String returns the terminal type name used in dumps.
func (t TerminalType) String() string {
	switch t {
	case TerminalInProcessAttribute:
		return "IN_PROCESS_ATTRIBUTE"
	case TerminalCurrentAttribute:
		return "CURRENT_ATTRIBUTE"
	case TerminalNumber:
		return "NUMBER"
	case TerminalIdent:
		return "IDENT"
	case TerminalString:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// Terminal is the payload of a leaf node: a literal, identifier, or
// attribute reference.
type Terminal struct {
	Type TerminalType
	Text string
}

// Node is a binary tree node. A node exclusively owns its children; the
// tree is acyclic, carries no back-references, and is never mutated after
// construction, so a parsed tree is safe for concurrent read-only reuse.
// Unary operations use only the left child; FUNCTION nodes carry the name
// terminal on the left and chain arguments on the right via GROUP cells.
type Node struct {
	Op    Operation
	Left  *Node
	Right *Node
	Term  *Terminal // set only when Op == OpTerminal
}

// Dump renders the subtree in the prefix notation [OP|lhs|rhs] used for
// tests and logging. Terminals render as their literal text.
func (n *Node) Dump() string {
	if n == nil {
		return ""
	}
	if n.Op == OpTerminal {
		if n.Term.Type == TerminalString {
			return `"` + n.Term.Text + `"`
		}
		return n.Term.Text
	}
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(n.Op.String())
	sb.WriteByte('|')
	sb.WriteString(n.Left.Dump())
	sb.WriteByte('|')
	sb.WriteString(n.Right.Dump())
	sb.WriteByte(']')
	return sb.String()
}
