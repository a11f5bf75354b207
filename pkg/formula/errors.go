package formula

import "fmt"

// LexError reports a malformed literal found while scanning a formula.
// It is raised only at construction time; a parsed Formula never fails.
type LexError struct {
	Pos int
	Msg string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at position %d: %s", e.Pos, e.Msg)
}

// SyntaxError reports a token stream that no top-level production could
// fully consume, or a structurally required token missing at an expected
// position. Pos is the byte offset of the offending token.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}
