package formula

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, source string) *Node {
	t.Helper()
	tokens, err := NewLexer(source).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize(%q) error: %v", source, err)
	}
	node, err := ParseFormula(tokens, source)
	if err != nil {
		t.Fatalf("ParseFormula(%q) error: %v", source, err)
	}
	return node
}

func TestParserTreeShape(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "left associative subtraction",
			source: "10 - 3 - 2",
			want:   "[MINUS|[MINUS|10|3]|2]",
		},
		{
			name:   "longer subtraction chain",
			source: "10 - 3 - 2 - 1",
			want:   "[MINUS|[MINUS|[MINUS|10|3]|2]|1]",
		},
		{
			name:   "multiplication binds tighter",
			source: "2 + 3 * 4",
			want:   "[PLUS|2|[MUL|3|4]]",
		},
		{
			name:   "tight subtree inside a chain",
			source: "1 + 2 * 3 + 4",
			want:   "[PLUS|[PLUS|1|[MUL|2|3]]|4]",
		},
		{
			name:   "parentheses override precedence",
			source: "(2 + 3) * 4",
			want:   "[MUL|[GROUP|[PLUS|2|3]|]|4]",
		},
		{
			name:   "unary minus",
			source: "-5 + 3",
			want:   "[PLUS|[UNARY_MINUS|5|]|3]",
		},
		{
			name:   "not over attribute",
			source: "$(armed) && NOT $(override)",
			want:   "[AND|armed|[NOT|override|]]",
		},
		{
			name:   "and and or share a level",
			source: "a || b && c",
			want:   "[AND|[OR|a|b]|c]",
		},
		{
			name:   "comparison of additive operands",
			source: "1 + 2 == 3",
			want:   "[EQ|[PLUS|1|2]|3]",
		},
		{
			name:   "string equality",
			source: `$$(mode) == "eco"`,
			want:   `[EQ|mode|"eco"]`,
		},
		{
			name:   "ternary",
			source: "$(speed) > 50 ? 1 : 0",
			want:   "[TERNARY|[GT|speed|50]|[ALTERNATIVE|1|0]]",
		},
		{
			name:   "like",
			source: `$(firmware) LIKE "2.%"`,
			want:   `[LIKE|firmware|"2.%"]`,
		},
		{
			name:   "upper call lowers to prefix operation",
			source: "UPPER($(name))",
			want:   "[UPPER|name|]",
		},
		{
			name:   "lower call case insensitive",
			source: "Lower(x)",
			want:   "[LOWER|x|]",
		},
		{
			name:   "function arguments chain right",
			source: "max(1, 2 + 3)",
			want:   "[FUNCTION|max|[GROUP|1|[GROUP|[PLUS|2|3]|]]]",
		},
		{
			name:   "zero argument function",
			source: "now()",
			want:   "[FUNCTION|now|]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := mustParse(t, tt.source)
			if got := node.Dump(); got != tt.want {
				t.Errorf("Dump(%q) = %s, want %s", tt.source, got, tt.want)
			}
		})
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "trailing operator", source: "1 +"},
		{name: "unclosed paren", source: "(1"},
		{name: "missing colon", source: "a ? 1"},
		{name: "adjacent terminals", source: "1 2"},
		{name: "empty input", source: ""},
		{name: "chained comparison", source: "1 < 2 < 3"},
		{name: "too many dollars", source: "$$$(x) + 1"},
		{name: "bare dollar", source: "$ + 1"},
		{name: "attribute without name", source: "$()"},
		{
			name:   "nesting too deep",
			source: strings.Repeat("(", MaxNestingDepth+2) + "1" + strings.Repeat(")", MaxNestingDepth+2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := NewLexer(tt.source).Tokenize()
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tt.source, err)
			}
			_, err = ParseFormula(tokens, tt.source)
			var synErr *SyntaxError
			if !errors.As(err, &synErr) {
				t.Fatalf("ParseFormula(%q) = %v, want SyntaxError", tt.source, err)
			}
		})
	}
}
