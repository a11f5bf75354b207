package formula

import (
	"strings"
	"unicode"
)

// Lexer tokenizes a formula string in a single left-to-right scan with
// one character of lookahead. Whitespace is discarded; every other
// character lands in exactly one token, and token spans are contiguous
// and non-overlapping in source order.
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize scans the entire input and returns all tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			return l.tokens, nil
		}
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
	}
}

// next returns the next token from the input. The caller has already
// skipped whitespace and checked for end of input.
func (l *Lexer) next() (Token, error) {
	ch := l.input[l.pos]

	if ch == '"' {
		return l.readString(), nil
	}

	if ch >= '0' && ch <= '9' {
		return l.readNumber()
	}

	// A leading '.' starts a number only when a digit follows ([0-9]*"."[0-9]+).
	if ch == '.' {
		if l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]) {
			return l.readNumber()
		}
		return Token{}, &LexError{Pos: l.pos, Msg: "'.' not followed by a digit"}
	}

	if ch == '$' {
		return l.readAttributeMarker(), nil
	}

	// Two-character operators
	if l.pos+1 < len(l.input) {
		var tt TokenType = -1
		switch l.input[l.pos : l.pos+2] {
		case "==":
			tt = TokenEq
		case "!=":
			tt = TokenNeq
		case "<=":
			tt = TokenLte
		case ">=":
			tt = TokenGte
		case "&&":
			tt = TokenAnd
		case "||":
			tt = TokenOr
		}
		if tt != -1 {
			tok := Token{Type: tt, Pos: l.pos, Len: 2}
			l.pos += 2
			return tok, nil
		}
	}

	// Single-character operators and structure. Consecutive parens always
	// split into separate tokens; each is a distinct structural element.
	var tt TokenType = -1
	switch ch {
	case '+':
		tt = TokenPlus
	case '-':
		tt = TokenMinus
	case '*':
		tt = TokenMul
	case '/':
		tt = TokenDiv
	case '%':
		tt = TokenMod
	case '<':
		tt = TokenLt
	case '>':
		tt = TokenGt
	case '(':
		tt = TokenLParen
	case ')':
		tt = TokenRParen
	case ',':
		tt = TokenComma
	case ':':
		tt = TokenColon
	case '?':
		tt = TokenQuestion
	}
	if tt != -1 {
		tok := Token{Type: tt, Pos: l.pos, Len: 1}
		l.pos++
		return tok, nil
	}

	if isIdentStart(ch) {
		return l.readIdentifier(), nil
	}

	return Token{}, &LexError{Pos: l.pos, Msg: "unexpected character " + string(ch)}
}

// readString absorbs everything between matching quotes into one STRING
// token, regardless of the individual character classes inside. A backslash
// keeps the following character (so \" does not terminate the literal). An
// unterminated literal absorbs the rest of the input.
func (l *Lexer) readString() Token {
	start := l.pos
	l.pos++ // opening quote
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos += 2
			continue
		}
		l.pos++
		if ch == '"' {
			break
		}
	}
	return Token{Type: TokenString, Pos: start, Len: l.pos - start}
}

// readNumber scans [0-9]+ or [0-9]*"."[0-9]+. A '.' is only accepted as
// part of the number when the following character is a digit; otherwise it
// is a lex error, so "1." is illegal.
func (l *Lexer) readNumber() (Token, error) {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isDigit(ch) {
			l.pos++
			continue
		}
		if ch == '.' {
			if l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]) {
				l.pos += 2
				continue
			}
			return Token{}, &LexError{Pos: l.pos, Msg: "'.' not followed by a digit"}
		}
		break
	}
	return Token{Type: TokenNumber, Pos: start, Len: l.pos - start}, nil
}

// readAttributeMarker consumes a run of '$' and, when present, the opening
// paren, producing one ATTRIBUTE token ("$(", "$$(", ...). A run without a
// paren still tokenizes; the parser rejects it with a position.
func (l *Lexer) readAttributeMarker() Token {
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] == '$' {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '(' {
		l.pos++
	}
	return Token{Type: TokenAttribute, Pos: start, Len: l.pos - start}
}

// readIdentifier reads an identifier, reclassifies the reserved words
// AND/OR/NOT/LIKE case-insensitively, and promotes an identifier that is
// immediately followed by '(' to a FUNCTION token consuming the paren.
func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}

	word := l.input[start:l.pos]
	switch {
	case strings.EqualFold(word, "AND"):
		return Token{Type: TokenAnd, Pos: start, Len: l.pos - start}
	case strings.EqualFold(word, "OR"):
		return Token{Type: TokenOr, Pos: start, Len: l.pos - start}
	case strings.EqualFold(word, "NOT"):
		return Token{Type: TokenNot, Pos: start, Len: l.pos - start}
	case strings.EqualFold(word, "LIKE"):
		return Token{Type: TokenLike, Pos: start, Len: l.pos - start}
	}

	if l.pos < len(l.input) && l.input[l.pos] == '(' {
		l.pos++
		return Token{Type: TokenFunction, Pos: start, Len: l.pos - start}
	}
	return Token{Type: TokenIdent, Pos: start, Len: l.pos - start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
