package compiler

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Squirrel syntax
// ---------------------------------------------------------------------------

// Lexer tokenizes Squirrel source code.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        rune // current character
	line      int  // current line (1-based)
	lineStart int  // offset of current line start
	newline   bool // a newline was skipped before the current token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.lineStart = l.readPos
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.pos - l.lineStart + 1,
	}
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.newline = false
	if errTok, ok := l.skipWhitespaceAndComments(); !ok {
		return errTok
	}
	tok := l.scan()
	tok.Newline = l.newline
	return tok
}

func (l *Lexer) scan() Token {
	pos := l.position()

	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos}
	}

	ch := l.ch
	switch {
	case isIdentStart(ch):
		return l.scanIdentifier(pos)
	case isDigit(ch):
		return l.scanNumber(pos)
	case ch == '"':
		return l.scanString(pos)
	case ch == '@' && l.peekChar() == '"':
		l.readChar()
		return l.scanVerbatimString(pos)
	case ch == '\'':
		return l.scanChar(pos)
	}

	// Operators: longest match first
	for _, op := range operatorTable {
		if strings.HasPrefix(l.input[l.pos:], op.text) {
			for range op.text {
				l.readChar()
			}
			return Token{Type: op.typ, Literal: op.text, Pos: pos}
		}
	}

	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + strconv.QuoteRune(ch), Pos: pos}
}

// operatorTable lists punctuation sorted so that longer operators match first.
var operatorTable = []struct {
	text string
	typ  TokenType
}{
	{">>>", TokenUShr},
	{"<=>", TokenCmp},
	{"...", TokenEllipsis},
	{"::", TokenDoubleColon},
	{"?.", TokenQDot},
	{"?[", TokenQBracket},
	{"<-", TokenNewSlot},
	{"+=", TokenPlusEq},
	{"-=", TokenMinusEq},
	{"*=", TokenStarEq},
	{"/=", TokenSlashEq},
	{"%=", TokenPercentEq},
	{"++", TokenInc},
	{"--", TokenDec},
	{"==", TokenEq},
	{"!=", TokenNe},
	{"<=", TokenLe},
	{">=", TokenGe},
	{"&&", TokenAndAnd},
	{"||", TokenOrOr},
	{"<<", TokenShl},
	{">>", TokenShr},
	{"(", TokenLParen},
	{")", TokenRParen},
	{"[", TokenLBracket},
	{"]", TokenRBracket},
	{"{", TokenLBrace},
	{"}", TokenRBrace},
	{",", TokenComma},
	{";", TokenSemicolon},
	{".", TokenDot},
	{":", TokenColon},
	{"?", TokenQuestion},
	{"=", TokenAssign},
	{"+", TokenPlus},
	{"-", TokenMinus},
	{"*", TokenStar},
	{"/", TokenSlash},
	{"%", TokenPercent},
	{"<", TokenLt},
	{">", TokenGt},
	{"!", TokenBang},
	{"~", TokenTilde},
	{"&", TokenAmp},
	{"|", TokenPipe},
	{"^", TokenCaret},
}

// skipWhitespaceAndComments skips blanks, //, # and /* */ comments.
// Returns false with an error token for an unterminated block comment.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for !l.atEOF() {
		switch {
		case l.ch == '\n':
			l.newline = true
			l.readChar()
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '#', l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			pos := l.position()
			l.readChar()
			l.readChar()
			for {
				if l.atEOF() {
					return Token{Type: TokenError, Literal: "unterminated comment", Pos: pos}, false
				}
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				if l.ch == '\n' {
					l.newline = true
				}
				l.readChar()
			}
		default:
			return Token{}, true
		}
	}
	return Token{}, true
}

func (l *Lexer) scanIdentifier(pos Position) Token {
	start := l.pos
	for !l.atEOF() && isIdentPart(l.ch) {
		l.readChar()
	}
	word := l.input[start:l.pos]
	if typ, ok := reservedWords[word]; ok {
		return Token{Type: typ, Literal: word, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: word, Pos: pos}
}

// scanNumber scans decimal and hex integers and floats.
// Literal holds the source text; the parser converts it.
func (l *Lexer) scanNumber(pos Position) Token {
	start := l.pos

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		digits := l.pos
		for !l.atEOF() && isHexDigit(l.ch) {
			l.readChar()
		}
		if l.pos == digits {
			return Token{Type: TokenError, Literal: "malformed hex literal", Pos: pos}
		}
		return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
	}

	typ := TokenInteger
	for !l.atEOF() && isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		typ = TokenFloat
		l.readChar()
		for !l.atEOF() && isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			typ = TokenFloat
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				return Token{Type: TokenError, Literal: "malformed exponent", Pos: pos}
			}
			for !l.atEOF() && isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	if isIdentStart(l.ch) {
		return Token{Type: TokenError, Literal: "malformed number", Pos: pos}
	}
	return Token{Type: typ, Literal: l.input[start:l.pos], Pos: pos}
}

// scanString scans a "..." literal, decoding escapes into Literal.
func (l *Lexer) scanString(pos Position) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for {
		if l.atEOF() || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		if l.ch == '"' {
			l.readChar()
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			if !l.scanEscape(&sb) {
				return Token{Type: TokenError, Literal: "invalid escape sequence", Pos: l.position()}
			}
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
}

func (l *Lexer) scanEscape(sb *strings.Builder) bool {
	switch l.ch {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		sb.WriteByte(0)
	case '\\', '"', '\'':
		sb.WriteRune(l.ch)
	case 'x':
		l.readChar()
		n, digits := 0, 0
		for digits < 4 && isHexDigit(l.ch) {
			n = n*16 + hexValue(l.ch)
			digits++
			l.readChar()
		}
		if digits == 0 {
			return false
		}
		if n < 0x80 {
			sb.WriteByte(byte(n))
		} else {
			sb.WriteRune(rune(n))
		}
		return true
	default:
		return false
	}
	l.readChar()
	return true
}

// scanVerbatimString scans @"..." where "" stands for a quote and newlines are kept.
func (l *Lexer) scanVerbatimString(pos Position) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for {
		if l.atEOF() {
			return Token{Type: TokenError, Literal: "unterminated verbatim string", Pos: pos}
		}
		if l.ch == '"' {
			if l.peekChar() == '"' {
				sb.WriteByte('"')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
}

// scanChar scans 'c', producing an integer token with the character code.
func (l *Lexer) scanChar(pos Position) Token {
	l.readChar()
	var sb strings.Builder
	if l.ch == '\\' {
		l.readChar()
		if !l.scanEscape(&sb) {
			return Token{Type: TokenError, Literal: "invalid escape sequence", Pos: pos}
		}
	} else if !l.atEOF() && l.ch != '\'' {
		sb.WriteRune(l.ch)
		l.readChar()
	}
	if l.ch != '\'' || sb.Len() == 0 {
		return Token{Type: TokenError, Literal: "malformed character literal", Pos: pos}
	}
	l.readChar()
	r, _ := utf8.DecodeRuneInString(sb.String())
	return Token{Type: TokenInteger, Literal: strconv.Itoa(int(r)), Pos: pos}
}

// Tokenize returns every token in input, ending with EOF or the first error.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var out []Token
	for {
		tok := l.NextToken()
		out = append(out, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return out
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func hexValue(r rune) int {
	switch {
	case isDigit(r):
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	default:
		return int(r-'A') + 10
	}
}
