package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Squirrel lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42, 0xFF, 'a'
	TokenFloat      // 3.14, 1.5e10
	TokenString     // "hello", @"verbatim"
	TokenIdentifier // foo, Bar

	// Delimiters
	TokenLParen      // (
	TokenRParen      // )
	TokenLBracket    // [
	TokenRBracket    // ]
	TokenLBrace      // {
	TokenRBrace      // }
	TokenComma       // ,
	TokenSemicolon   // ;
	TokenDot         // .
	TokenColon       // :
	TokenDoubleColon // ::
	TokenQuestion    // ?
	TokenQDot        // ?.
	TokenQBracket    // ?[
	TokenEllipsis    // ...

	// Assignment
	TokenAssign    // =
	TokenNewSlot   // <-
	TokenPlusEq    // +=
	TokenMinusEq   // -=
	TokenStarEq    // *=
	TokenSlashEq   // /=
	TokenPercentEq // %=

	// Operators
	TokenPlus       // +
	TokenMinus      // -
	TokenStar       // *
	TokenSlash      // /
	TokenPercent    // %
	TokenInc        // ++
	TokenDec        // --
	TokenEq         // ==
	TokenNe         // !=
	TokenLt         // <
	TokenLe         // <=
	TokenGt         // >
	TokenGe         // >=
	TokenCmp        // <=>
	TokenAndAnd     // &&
	TokenOrOr       // ||
	TokenBang       // !
	TokenTilde      // ~
	TokenAmp        // &
	TokenPipe       // |
	TokenCaret      // ^
	TokenShl        // <<
	TokenShr        // >>
	TokenUShr       // >>>

	// Keywords
	TokenLocal
	TokenFunction
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenDo
	TokenFor
	TokenForeach
	TokenIn
	TokenBreak
	TokenContinue
	TokenYield
	TokenResume
	TokenThrow
	TokenTry
	TokenCatch
	TokenClass
	TokenExtends
	TokenStatic
	TokenBase
	TokenThis
	TokenNull
	TokenTrue
	TokenFalse
	TokenTypeof
	TokenInstanceof
	TokenDelete
	TokenClone
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenInteger:     "INTEGER",
	TokenFloat:       "FLOAT",
	TokenString:      "STRING",
	TokenIdentifier:  "IDENTIFIER",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenComma:       ",",
	TokenSemicolon:   ";",
	TokenDot:         ".",
	TokenColon:       ":",
	TokenDoubleColon: "::",
	TokenQuestion:    "?",
	TokenQDot:        "?.",
	TokenQBracket:    "?[",
	TokenEllipsis:    "...",
	TokenAssign:      "=",
	TokenNewSlot:     "<-",
	TokenPlusEq:      "+=",
	TokenMinusEq:     "-=",
	TokenStarEq:      "*=",
	TokenSlashEq:     "/=",
	TokenPercentEq:   "%=",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenInc:         "++",
	TokenDec:         "--",
	TokenEq:          "==",
	TokenNe:          "!=",
	TokenLt:          "<",
	TokenLe:          "<=",
	TokenGt:          ">",
	TokenGe:          ">=",
	TokenCmp:         "<=>",
	TokenAndAnd:      "&&",
	TokenOrOr:        "||",
	TokenBang:        "!",
	TokenTilde:       "~",
	TokenAmp:         "&",
	TokenPipe:        "|",
	TokenCaret:       "^",
	TokenShl:         "<<",
	TokenShr:         ">>",
	TokenUShr:        ">>>",
	TokenLocal:       "local",
	TokenFunction:    "function",
	TokenReturn:      "return",
	TokenIf:          "if",
	TokenElse:        "else",
	TokenWhile:       "while",
	TokenDo:          "do",
	TokenFor:         "for",
	TokenForeach:     "foreach",
	TokenIn:          "in",
	TokenBreak:       "break",
	TokenContinue:    "continue",
	TokenYield:       "yield",
	TokenResume:      "resume",
	TokenThrow:       "throw",
	TokenTry:         "try",
	TokenCatch:       "catch",
	TokenClass:       "class",
	TokenExtends:     "extends",
	TokenStatic:      "static",
	TokenBase:        "base",
	TokenThis:        "this",
	TokenNull:        "null",
	TokenTrue:        "true",
	TokenFalse:       "false",
	TokenTypeof:      "typeof",
	TokenInstanceof:  "instanceof",
	TokenDelete:      "delete",
	TokenClone:       "clone",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text, or the decoded value for strings
	Pos     Position // start position
	Newline bool     // a line break separates this token from the previous one
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"local":      TokenLocal,
	"function":   TokenFunction,
	"return":     TokenReturn,
	"if":         TokenIf,
	"else":       TokenElse,
	"while":      TokenWhile,
	"do":         TokenDo,
	"for":        TokenFor,
	"foreach":    TokenForeach,
	"in":         TokenIn,
	"break":      TokenBreak,
	"continue":   TokenContinue,
	"yield":      TokenYield,
	"resume":     TokenResume,
	"throw":      TokenThrow,
	"try":        TokenTry,
	"catch":      TokenCatch,
	"class":      TokenClass,
	"extends":    TokenExtends,
	"static":     TokenStatic,
	"base":       TokenBase,
	"this":       TokenThis,
	"null":       TokenNull,
	"true":       TokenTrue,
	"false":      TokenFalse,
	"typeof":     TokenTypeof,
	"instanceof": TokenInstanceof,
	"delete":     TokenDelete,
	"clone":      TokenClone,
}

// Keywords returns the reserved words of the language, for completion.
func Keywords() []string {
	out := make([]string, 0, len(reservedWords))
	for w := range reservedWords {
		out = append(out, w)
	}
	return out
}

// IsAssignOp reports whether t is an assignment operator.
func IsAssignOp(t TokenType) bool {
	switch t {
	case TokenAssign, TokenNewSlot, TokenPlusEq, TokenMinusEq, TokenStarEq, TokenSlashEq, TokenPercentEq:
		return true
	}
	return false
}
