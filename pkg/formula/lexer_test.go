package formula

import (
	"errors"
	"testing"
)

func TestLexerTokenTypes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []TokenType
	}{
		{
			name:  "arithmetic",
			input: "1 + 2 * 3.5",
			want:  []TokenType{TokenNumber, TokenPlus, TokenNumber, TokenMul, TokenNumber},
		},
		{
			name:  "comparison operators",
			input: "a == b != c <= d >= e < f > g",
			want: []TokenType{
				TokenIdent, TokenEq, TokenIdent, TokenNeq, TokenIdent, TokenLte,
				TokenIdent, TokenGte, TokenIdent, TokenLt, TokenIdent, TokenGt, TokenIdent,
			},
		},
		{
			name:  "logical symbols",
			input: "a && b || c",
			want:  []TokenType{TokenIdent, TokenAnd, TokenIdent, TokenOr, TokenIdent},
		},
		{
			name:  "reserved words case insensitive",
			input: "a AND b or NOT c like d",
			want: []TokenType{
				TokenIdent, TokenAnd, TokenIdent, TokenOr, TokenNot,
				TokenIdent, TokenLike, TokenIdent,
			},
		},
		{
			name:  "ternary structure",
			input: "a ? 1 : 2",
			want:  []TokenType{TokenIdent, TokenQuestion, TokenNumber, TokenColon, TokenNumber},
		},
		{
			name:  "in-process attribute",
			input: "$(speed)",
			want:  []TokenType{TokenAttribute, TokenIdent, TokenRParen},
		},
		{
			name:  "current attribute",
			input: "$$(speed)",
			want:  []TokenType{TokenAttribute, TokenIdent, TokenRParen},
		},
		{
			name:  "function call",
			input: "UPPER(name)",
			want:  []TokenType{TokenFunction, TokenIdent, TokenRParen},
		},
		{
			name:  "identifier before space and paren stays identifier",
			input: "upper (name)",
			want:  []TokenType{TokenIdent, TokenLParen, TokenIdent, TokenRParen},
		},
		{
			name:  "string literal",
			input: `"hello world"`,
			want:  []TokenType{TokenString},
		},
		{
			name:  "string absorbs operators",
			input: `"a + b && c"`,
			want:  []TokenType{TokenString},
		},
		{
			name:  "escaped quote does not terminate",
			input: `"say \"hi\"" + x`,
			want:  []TokenType{TokenString, TokenPlus, TokenIdent},
		},
		{
			name:  "unterminated string absorbs rest",
			input: `"abc + 1`,
			want:  []TokenType{TokenString},
		},
		{
			name:  "leading dot number",
			input: ".5 + 1",
			want:  []TokenType{TokenNumber, TokenPlus, TokenNumber},
		},
		{
			name:  "consecutive parens split",
			input: "((1))",
			want:  []TokenType{TokenLParen, TokenLParen, TokenNumber, TokenRParen, TokenRParen},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "whitespace only",
			input: "  \t\n ",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := NewLexer(tt.input).Tokenize()
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tt.input, err)
			}
			if len(tokens) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %d tokens, want %d", tt.input, len(tokens), len(tt.want))
			}
			for i, tok := range tokens {
				if tok.Type != tt.want[i] {
					t.Errorf("token %d: got %s, want %s", i, tok.Type, tt.want[i])
				}
			}
		})
	}
}

func TestLexerTokenText(t *testing.T) {
	input := `$$(mode) == "eco" && UPPER(tag)`
	tokens, err := NewLexer(input).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize error: %v", err)
	}

	want := []string{"$$(", "mode", ")", "==", `"eco"`, "&&", "UPPER(", "tag", ")"}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, tok := range tokens {
		if got := tok.Text(input); got != want[i] {
			t.Errorf("token %d: got %q, want %q", i, got, want[i])
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
	}{
		{name: "trailing dot", input: "1.", pos: 1},
		{name: "dot without digit", input: "1. + 2", pos: 1},
		{name: "bare dot", input: ". + 2", pos: 0},
		{name: "unexpected character", input: "1 @ 2", pos: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLexer(tt.input).Tokenize()
			var lexErr *LexError
			if !errors.As(err, &lexErr) {
				t.Fatalf("Tokenize(%q) = %v, want LexError", tt.input, err)
			}
			if lexErr.Pos != tt.pos {
				t.Errorf("error position = %d, want %d", lexErr.Pos, tt.pos)
			}
		})
	}
}
