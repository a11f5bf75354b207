// Package formula implements the device policy formula language: a
// tokenizer, a recursive descent parser with precedence rotation, and a
// total tree-walking evaluator over caller-supplied attribute values.
package formula

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Logical operators
	TokenAnd TokenType = iota // && or AND
	TokenOr                   // || or OR
	TokenNot                  // NOT

	// Comparison
	TokenEq   // ==
	TokenNeq  // !=
	TokenLt   // <
	TokenLte  // <=
	TokenGt   // >
	TokenGte  // >=
	TokenLike // LIKE

	// Arithmetic
	TokenPlus  // +
	TokenMinus // -
	TokenMul   // *
	TokenDiv   // /
	TokenMod   // %

	// Structure
	TokenLParen   // (
	TokenRParen   // )
	TokenComma    // ,
	TokenColon    // :
	TokenQuestion // ?

	// Literals and names
	TokenNumber // decimal literal
	TokenString // quoted literal
	TokenIdent  // bare identifier

	// ATTRIBUTE is the marker opening an attribute reference: a run of '$'
	// ending in '(' lexed as one token ("$(", "$$(", ...).
	TokenAttribute

	// FUNCTION is an identifier immediately followed by '('; the paren is
	// part of the token span.
	TokenFunction
)

// Token is an immutable record pointing into the source text. The literal
// substring is recovered lazily via Text so tokens stay cheap to copy.
type Token struct {
	Type TokenType
	Pos  int // byte offset into the source
	Len  int // span length in bytes
}

// Text returns the literal substring of source covered by the token.
func (t Token) Text(source string) string {
	return source[t.Pos : t.Pos+t.Len]
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenEq:
		return "EQ"
	case TokenNeq:
		return "NEQ"
	case TokenLt:
		return "LT"
	case TokenLte:
		return "LTE"
	case TokenGt:
		return "GT"
	case TokenGte:
		return "GTE"
	case TokenLike:
		return "LIKE"
	case TokenPlus:
		return "PLUS"
	case TokenMinus:
		return "MINUS"
	case TokenMul:
		return "MUL"
	case TokenDiv:
		return "DIV"
	case TokenMod:
		return "MOD"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenComma:
		return "COMMA"
	case TokenColon:
		return "COLON"
	case TokenQuestion:
		return "QUESTION"
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenIdent:
		return "IDENT"
	case TokenAttribute:
		return "ATTRIBUTE"
	case TokenFunction:
		return "FUNCTION"
	default:
		return "UNKNOWN"
	}
}
