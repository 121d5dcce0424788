package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Squirrel syntax
// ---------------------------------------------------------------------------

// Parser parses Squirrel source code into an AST.
// It stops at the first error.
type Parser struct {
	lexer  *Lexer
	source string // script name used in error messages

	curToken  Token
	peekToken Token
	prevToken Token

	funcs []*FuncDecl // enclosing function declarations, innermost last
}

// NewParser creates a new parser for the given input.
func NewParser(input, source string) *Parser {
	p := &Parser{
		lexer:  NewLexer(input),
		source: source,
	}
	// Read two tokens to fill curToken and peekToken. Lexical errors in
	// them are reported once parsing starts.
	p.curToken = p.lexer.NextToken()
	p.peekToken = p.lexer.NextToken()
	return p
}

// checkFirst reports a lexical error in the very first token.
func (p *Parser) checkFirst() {
	if p.curToken.Type == TokenError {
		p.fail(p.curToken.Pos, "%s", p.curToken.Literal)
	}
}

// Parse parses a whole script.
func Parse(input, source string) (prog *Program, err error) {
	p := NewParser(input, source)
	return p.ParseProgram()
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	if p.curToken.Type == TokenError {
		p.fail(p.curToken.Pos, "%s", p.curToken.Literal)
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// expect consumes the current token if it matches, otherwise fails.
func (p *Parser) expect(t TokenType) Token {
	tok := p.curToken
	if tok.Type != t {
		p.errorf("expected '%s', got %s", t, describe(tok))
	}
	p.nextToken()
	return tok
}

// accept consumes the current token if it matches.
func (p *Parser) accept(t TokenType) bool {
	if p.curToken.Type == t {
		p.nextToken()
		return true
	}
	return false
}

// errorf aborts parsing with an error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.fail(p.curToken.Pos, format, args...)
}

func (p *Parser) fail(pos Position, format string, args ...interface{}) {
	panic(bailout{&Error{Source: p.source, Pos: pos, Msg: fmt.Sprintf(format, args...)}})
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of script"
	case TokenIdentifier, TokenInteger, TokenFloat:
		return fmt.Sprintf("'%s'", tok.Literal)
	case TokenString:
		return "string literal"
	default:
		return fmt.Sprintf("'%s'", tok.Type)
	}
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.prevToken.Pos}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses statements until end of input.
func (p *Parser) ParseProgram() (prog *Program, err error) {
	defer catchBailout(&err)
	p.checkFirst()

	start := p.curToken.Pos
	var stmts []Stmt
	for !p.curTokenIs(TokenEOF) {
		stmts = append(stmts, p.parseStatement())
	}
	return &Program{SpanVal: p.span(start), Stmts: stmts}, nil
}

// ParseExpression parses a single expression followed by end of input.
func (p *Parser) ParseExpression() (e Expr, err error) {
	defer catchBailout(&err)
	p.checkFirst()

	e = p.parseExpression()
	p.accept(TokenSemicolon)
	if !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after expression", describe(p.curToken))
	}
	return e, nil
}

// endStatement requires ';', a newline, '}' or end of input after a simple statement.
func (p *Parser) endStatement() {
	if p.accept(TokenSemicolon) {
		return
	}
	if p.curTokenIs(TokenRBrace) || p.curTokenIs(TokenEOF) || p.curToken.Newline {
		return
	}
	p.errorf("end of statement expected (; or lf), got %s", describe(p.curToken))
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	start := p.curToken.Pos

	switch p.curToken.Type {
	case TokenSemicolon:
		p.nextToken()
		return &BlockStmt{SpanVal: p.span(start)}
	case TokenLBrace:
		return p.parseBlock()
	case TokenLocal:
		return p.parseLocal()
	case TokenFunction:
		if p.peekToken.Type == TokenIdentifier {
			return p.parseFunctionStmt()
		}
	case TokenClass:
		return p.parseClassStmt()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenDo:
		return p.parseDoWhile()
	case TokenFor:
		return p.parseFor()
	case TokenForeach:
		return p.parseForeach()
	case TokenBreak:
		p.nextToken()
		p.endStatement()
		return &BreakStmt{SpanVal: p.span(start)}
	case TokenContinue:
		p.nextToken()
		p.endStatement()
		return &ContinueStmt{SpanVal: p.span(start)}
	case TokenReturn:
		p.nextToken()
		var value Expr
		if p.startsExpression() {
			value = p.parseExpression()
		}
		p.endStatement()
		return &ReturnStmt{SpanVal: p.span(start), Value: value}
	case TokenThrow:
		p.nextToken()
		value := p.parseExpression()
		p.endStatement()
		return &ThrowStmt{SpanVal: p.span(start), Value: value}
	case TokenTry:
		return p.parseTry()
	}

	x := p.parseExpression()
	p.endStatement()
	return &ExprStmt{SpanVal: p.span(start), X: x}
}

// startsExpression reports whether an optional expression follows on the same line.
func (p *Parser) startsExpression() bool {
	if p.curToken.Newline {
		return false
	}
	switch p.curToken.Type {
	case TokenSemicolon, TokenRBrace, TokenRParen, TokenRBracket, TokenComma, TokenEOF:
		return false
	}
	return true
}

func (p *Parser) parseBlock() *BlockStmt {
	start := p.expect(TokenLBrace).Pos
	var stmts []Stmt
	for !p.curTokenIs(TokenRBrace) {
		if p.curTokenIs(TokenEOF) {
			p.errorf("expected '}', got end of script")
		}
		stmts = append(stmts, p.parseStatement())
	}
	p.nextToken()
	return &BlockStmt{SpanVal: p.span(start), Stmts: stmts}
}

func (p *Parser) parseLocal() Stmt {
	start := p.expect(TokenLocal).Pos

	if p.curTokenIs(TokenFunction) {
		p.nextToken()
		name := p.expect(TokenIdentifier).Literal
		fn := p.parseFuncBody(start, name)
		return &LocalFuncStmt{SpanVal: p.span(start), Func: fn}
	}

	stmt := &LocalStmt{}
	for {
		name := p.expect(TokenIdentifier).Literal
		var value Expr
		if p.accept(TokenAssign) {
			value = p.parseExpression()
		}
		stmt.Names = append(stmt.Names, name)
		stmt.Values = append(stmt.Values, value)
		if !p.accept(TokenComma) {
			break
		}
	}
	p.endStatement()
	stmt.SpanVal = p.span(start)
	return stmt
}

func (p *Parser) parsePath() []string {
	path := []string{p.expect(TokenIdentifier).Literal}
	for p.accept(TokenDot) {
		path = append(path, p.expect(TokenIdentifier).Literal)
	}
	return path
}

func (p *Parser) parseFunctionStmt() Stmt {
	start := p.expect(TokenFunction).Pos
	path := p.parsePath()
	fn := p.parseFuncBody(start, path[len(path)-1])
	return &FunctionStmt{SpanVal: p.span(start), Path: path, Func: fn}
}

func (p *Parser) parseClassStmt() Stmt {
	start := p.expect(TokenClass).Pos
	path := p.parsePath()
	cls := p.parseClassBody(start, path[len(path)-1])
	return &ClassStmt{SpanVal: p.span(start), Path: path, Class: cls}
}

func (p *Parser) parseCondition() Expr {
	p.expect(TokenLParen)
	cond := p.parseExpression()
	p.expect(TokenRParen)
	return cond
}

func (p *Parser) parseIf() Stmt {
	start := p.expect(TokenIf).Pos
	cond := p.parseCondition()
	then := p.parseStatement()
	var els Stmt
	if p.accept(TokenElse) {
		els = p.parseStatement()
	}
	return &IfStmt{SpanVal: p.span(start), Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseWhile() Stmt {
	start := p.expect(TokenWhile).Pos
	cond := p.parseCondition()
	body := p.parseStatement()
	return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body}
}

func (p *Parser) parseDoWhile() Stmt {
	start := p.expect(TokenDo).Pos
	body := p.parseStatement()
	p.expect(TokenWhile)
	cond := p.parseCondition()
	p.accept(TokenSemicolon)
	return &DoWhileStmt{SpanVal: p.span(start), Body: body, Cond: cond}
}

func (p *Parser) parseFor() Stmt {
	start := p.expect(TokenFor).Pos
	p.expect(TokenLParen)

	stmt := &ForStmt{}
	if p.curTokenIs(TokenLocal) {
		stmt.Init = p.parseLocal() // consumes the ';'
	} else {
		if !p.curTokenIs(TokenSemicolon) {
			initStart := p.curToken.Pos
			stmt.Init = &ExprStmt{X: p.parseExpression(), SpanVal: p.span(initStart)}
		}
		p.expect(TokenSemicolon)
	}
	if !p.curTokenIs(TokenSemicolon) {
		stmt.Cond = p.parseExpression()
	}
	p.expect(TokenSemicolon)
	if !p.curTokenIs(TokenRParen) {
		stmt.Post = p.parseExpression()
	}
	p.expect(TokenRParen)
	stmt.Body = p.parseStatement()
	stmt.SpanVal = p.span(start)
	return stmt
}

func (p *Parser) parseForeach() Stmt {
	start := p.expect(TokenForeach).Pos
	p.expect(TokenLParen)

	stmt := &ForeachStmt{}
	first := p.expect(TokenIdentifier).Literal
	if p.accept(TokenComma) {
		stmt.Key = first
		stmt.Value = p.expect(TokenIdentifier).Literal
	} else {
		stmt.Value = first
	}
	p.expect(TokenIn)
	stmt.Iterable = p.parseExpression()
	p.expect(TokenRParen)
	stmt.Body = p.parseStatement()
	stmt.SpanVal = p.span(start)
	return stmt
}

func (p *Parser) parseTry() Stmt {
	start := p.expect(TokenTry).Pos
	body := p.parseStatement()
	p.expect(TokenCatch)
	p.expect(TokenLParen)
	name := p.expect(TokenIdentifier).Literal
	p.expect(TokenRParen)
	catch := p.parseStatement()
	return &TryStmt{SpanVal: p.span(start), Body: body, CatchVar: name, Catch: catch}
}

// ---------------------------------------------------------------------------
// Functions and classes
// ---------------------------------------------------------------------------

// parseFuncBody parses (params) { body } after the function name.
func (p *Parser) parseFuncBody(start Position, name string) *FuncDecl {
	decl := &FuncDecl{Name: name}

	p.expect(TokenLParen)
	for !p.curTokenIs(TokenRParen) {
		if p.accept(TokenEllipsis) {
			decl.Varargs = true
			break
		}
		param := p.expect(TokenIdentifier).Literal
		for _, existing := range decl.Params {
			if existing == param {
				p.fail(p.prevToken.Pos, "duplicate parameter '%s'", param)
			}
		}
		decl.Params = append(decl.Params, param)
		if !p.accept(TokenComma) {
			break
		}
	}
	p.expect(TokenRParen)
	if len(decl.Params) > 253 {
		p.fail(start, "too many parameters")
	}

	p.funcs = append(p.funcs, decl)
	body := p.parseBlock()
	p.funcs = p.funcs[:len(p.funcs)-1]

	decl.Body = body.Stmts
	decl.SpanVal = p.span(start)
	return decl
}

func (p *Parser) parseClassBody(start Position, name string) *ClassDecl {
	cls := &ClassDecl{Name: name}
	if p.accept(TokenExtends) {
		cls.Base = p.parsePostfix()
	}
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) {
		if p.accept(TokenSemicolon) || p.accept(TokenComma) {
			continue
		}
		static := p.accept(TokenStatic)
		memberStart := p.curToken.Pos

		var member ClassMember
		switch {
		case p.curTokenIs(TokenFunction):
			p.nextToken()
			fname := p.expectMemberName()
			member.Key = &StringLiteral{SpanVal: p.span(memberStart), Value: fname}
			fn := p.parseFuncBody(memberStart, fname)
			member.Value = &FuncLiteral{SpanVal: p.span(memberStart), Func: fn}
		case p.curTokenIs(TokenIdentifier) && p.curToken.Literal == "constructor" && p.peekToken.Type == TokenLParen:
			p.nextToken()
			member.Key = &StringLiteral{SpanVal: p.span(memberStart), Value: "constructor"}
			fn := p.parseFuncBody(memberStart, "constructor")
			member.Value = &FuncLiteral{SpanVal: p.span(memberStart), Func: fn}
		case p.curTokenIs(TokenLBracket):
			p.nextToken()
			member.Key = p.parseExpression()
			p.expect(TokenRBracket)
			p.expect(TokenAssign)
			member.Value = p.parseExpression()
		default:
			fname := p.expectMemberName()
			member.Key = &StringLiteral{SpanVal: p.span(memberStart), Value: fname}
			p.expect(TokenAssign)
			member.Value = p.parseExpression()
		}
		member.Static = static
		cls.Members = append(cls.Members, member)
	}
	p.nextToken()
	cls.SpanVal = p.span(start)
	return cls
}

// expectMemberName accepts identifiers and keywords used as slot names.
func (p *Parser) expectMemberName() string {
	tok := p.curToken
	if tok.Type == TokenIdentifier {
		p.nextToken()
		return tok.Literal
	}
	if typ, ok := reservedWords[tok.Literal]; ok && typ == tok.Type {
		p.nextToken()
		return tok.Literal
	}
	p.errorf("expected member name, got %s", describe(tok))
	return ""
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExpression parses an expression; assignment has the lowest precedence.
func (p *Parser) parseExpression() Expr {
	start := p.curToken.Pos
	left := p.parseTernary()

	if IsAssignOp(p.curToken.Type) {
		op := p.curToken.Type
		switch t := left.(type) {
		case *Identifier, *RootExpr:
		case *IndexExpr:
			if t.NullSafe {
				p.errorf("can't assign to a null-safe access")
			}
		default:
			p.errorf("can't assign expression")
		}
		p.nextToken()
		value := p.parseExpression()
		return &AssignExpr{SpanVal: p.span(start), Op: op, Target: left, Value: value}
	}
	return left
}

func (p *Parser) parseTernary() Expr {
	start := p.curToken.Pos
	cond := p.parseBinary(1)
	if !p.accept(TokenQuestion) {
		return cond
	}
	then := p.parseExpression()
	p.expect(TokenColon)
	els := p.parseExpression()
	return &TernaryExpr{SpanVal: p.span(start), Cond: cond, Then: then, Else: els}
}

// binaryPrecedence lists binary operators from loosest (1) to tightest.
var binaryPrecedence = map[TokenType]int{
	TokenOrOr:       1,
	TokenAndAnd:     2,
	TokenPipe:       3,
	TokenCaret:      4,
	TokenAmp:        5,
	TokenEq:         6,
	TokenNe:         6,
	TokenCmp:        6,
	TokenLt:         7,
	TokenLe:         7,
	TokenGt:         7,
	TokenGe:         7,
	TokenIn:         7,
	TokenInstanceof: 7,
	TokenShl:        8,
	TokenShr:        8,
	TokenUShr:       8,
	TokenPlus:       9,
	TokenMinus:      9,
	TokenStar:       10,
	TokenSlash:      10,
	TokenPercent:    10,
}

// parseBinary implements precedence climbing for left-associative operators.
func (p *Parser) parseBinary(minPrec int) Expr {
	start := p.curToken.Pos
	left := p.parseUnary()
	for {
		op := p.curToken.Type
		prec, ok := binaryPrecedence[op]
		if !ok || prec < minPrec {
			return left
		}
		p.nextToken()
		right := p.parseBinary(prec + 1)
		if op == TokenAndAnd || op == TokenOrOr {
			left = &LogicalExpr{SpanVal: p.span(start), Op: op, Left: left, Right: right}
		} else {
			left = &BinaryExpr{SpanVal: p.span(start), Op: op, Left: left, Right: right}
		}
	}
}

func (p *Parser) parseUnary() Expr {
	start := p.curToken.Pos
	switch op := p.curToken.Type; op {
	case TokenMinus:
		p.nextToken()
		x := p.parseUnary()
		switch lit := x.(type) {
		case *IntLiteral:
			lit.Value = -lit.Value
			lit.SpanVal = p.span(start)
			return lit
		case *FloatLiteral:
			lit.Value = -lit.Value
			lit.SpanVal = p.span(start)
			return lit
		}
		return &UnaryExpr{SpanVal: p.span(start), Op: op, X: x}
	case TokenBang, TokenTilde, TokenTypeof, TokenResume, TokenClone:
		p.nextToken()
		x := p.parseUnary()
		return &UnaryExpr{SpanVal: p.span(start), Op: op, X: x}
	case TokenDelete:
		p.nextToken()
		x := p.parseUnary()
		if idx, ok := x.(*IndexExpr); !ok || idx.NullSafe {
			p.fail(start, "can't delete an expression that is not a slot")
		}
		return &UnaryExpr{SpanVal: p.span(start), Op: op, X: x}
	case TokenInc, TokenDec:
		p.nextToken()
		x := p.parseUnary()
		p.checkIncDecTarget(start, x)
		return &IncDecExpr{SpanVal: p.span(start), Op: op, Prefix: true, Target: x}
	case TokenYield:
		p.nextToken()
		if len(p.funcs) == 0 {
			p.fail(start, "'yield' outside of a function")
		}
		p.funcs[len(p.funcs)-1].IsGenerator = true
		var value Expr
		if p.startsExpression() {
			value = p.parseExpression()
		}
		return &YieldExpr{SpanVal: p.span(start), Value: value}
	}
	return p.parsePostfix()
}

func (p *Parser) checkIncDecTarget(pos Position, x Expr) {
	switch t := x.(type) {
	case *Identifier, *RootExpr:
		return
	case *IndexExpr:
		if !t.NullSafe {
			return
		}
	}
	p.fail(pos, "'++' and '--' need a variable or slot")
}

func (p *Parser) parsePostfix() Expr {
	start := p.curToken.Pos
	x := p.parsePrimary()
	for {
		switch p.curToken.Type {
		case TokenDot, TokenQDot:
			nullSafe := p.curTokenIs(TokenQDot)
			p.nextToken()
			keyStart := p.curToken.Pos
			name := p.expectMemberName()
			key := &StringLiteral{SpanVal: p.span(keyStart), Value: name}
			x = &IndexExpr{SpanVal: p.span(start), Object: x, Key: key, NullSafe: nullSafe}
		case TokenLBracket, TokenQBracket:
			if p.curToken.Newline {
				return x
			}
			nullSafe := p.curTokenIs(TokenQBracket)
			p.nextToken()
			key := p.parseExpression()
			p.expect(TokenRBracket)
			x = &IndexExpr{SpanVal: p.span(start), Object: x, Key: key, NullSafe: nullSafe}
		case TokenLParen:
			if p.curToken.Newline {
				return x
			}
			p.nextToken()
			args := p.parseList(TokenRParen)
			if len(args) > 255 {
				p.fail(start, "too many arguments")
			}
			x = &CallExpr{SpanVal: p.span(start), Fn: x, Args: args}
		case TokenInc, TokenDec:
			if p.curToken.Newline {
				return x
			}
			op := p.curToken.Type
			p.checkIncDecTarget(p.curToken.Pos, x)
			p.nextToken()
			x = &IncDecExpr{SpanVal: p.span(start), Op: op, Target: x}
		default:
			return x
		}
	}
}

// parseList parses comma-separated expressions up to and including end.
func (p *Parser) parseList(end TokenType) []Expr {
	var items []Expr
	for !p.curTokenIs(end) {
		items = append(items, p.parseExpression())
		if !p.accept(TokenComma) {
			break
		}
	}
	p.expect(end)
	return items
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	start := tok.Pos

	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		return &IntLiteral{SpanVal: p.span(start), Value: p.parseInteger(tok)}
	case TokenFloat:
		p.nextToken()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.fail(start, "malformed float '%s'", tok.Literal)
		}
		return &FloatLiteral{SpanVal: p.span(start), Value: f}
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: p.span(start), Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: p.span(start), Value: tok.Type == TokenTrue}
	case TokenNull:
		p.nextToken()
		return &NullLiteral{SpanVal: p.span(start)}
	case TokenThis:
		p.nextToken()
		return &ThisExpr{SpanVal: p.span(start)}
	case TokenBase:
		p.nextToken()
		return &BaseExpr{SpanVal: p.span(start)}
	case TokenIdentifier:
		p.nextToken()
		return &Identifier{SpanVal: p.span(start), Name: tok.Literal}
	case TokenDoubleColon:
		p.nextToken()
		name := p.expectMemberName()
		return &RootExpr{SpanVal: p.span(start), Name: name}
	case TokenLParen:
		p.nextToken()
		x := p.parseExpression()
		p.expect(TokenRParen)
		return x
	case TokenLBracket:
		p.nextToken()
		elems := p.parseList(TokenRBracket)
		return &ArrayLiteral{SpanVal: p.span(start), Elements: elems}
	case TokenLBrace:
		return p.parseTable()
	case TokenFunction:
		p.nextToken()
		fn := p.parseFuncBody(start, "")
		return &FuncLiteral{SpanVal: p.span(start), Func: fn}
	case TokenClass:
		p.nextToken()
		cls := p.parseClassBody(start, "")
		return &ClassLiteral{SpanVal: p.span(start), Class: cls}
	}

	p.errorf("unexpected %s", describe(tok))
	return nil
}

func (p *Parser) parseInteger(tok Token) int64 {
	lit := tok.Literal
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		u, err := strconv.ParseUint(lit[2:], 16, 64)
		if err != nil {
			p.fail(tok.Pos, "hex literal '%s' out of range", lit)
		}
		return int64(u)
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		p.fail(tok.Pos, "integer literal '%s' out of range", lit)
	}
	return n
}

// parseTable parses { k = v, ["k"] = v, "k": v, function m() {} }.
func (p *Parser) parseTable() Expr {
	start := p.expect(TokenLBrace).Pos
	table := &TableLiteral{}
	for !p.curTokenIs(TokenRBrace) {
		entryStart := p.curToken.Pos
		var entry TableEntry
		switch p.curToken.Type {
		case TokenFunction:
			p.nextToken()
			name := p.expectMemberName()
			entry.Key = &StringLiteral{SpanVal: p.span(entryStart), Value: name}
			fn := p.parseFuncBody(entryStart, name)
			entry.Value = &FuncLiteral{SpanVal: p.span(entryStart), Func: fn}
		case TokenLBracket:
			p.nextToken()
			entry.Key = p.parseExpression()
			p.expect(TokenRBracket)
			p.expect(TokenAssign)
			entry.Value = p.parseExpression()
		case TokenString:
			entry.Key = &StringLiteral{SpanVal: p.span(entryStart), Value: p.curToken.Literal}
			p.nextToken()
			if !p.accept(TokenColon) {
				p.expect(TokenAssign)
			}
			entry.Value = p.parseExpression()
		default:
			name := p.expectMemberName()
			entry.Key = &StringLiteral{SpanVal: p.span(entryStart), Value: name}
			p.expect(TokenAssign)
			entry.Value = p.parseExpression()
		}
		table.Entries = append(table.Entries, entry)
		if !p.accept(TokenComma) && !p.curTokenIs(TokenRBrace) && !p.curToken.Newline {
			p.errorf("expected ',' or '}' in table, got %s", describe(p.curToken))
		}
	}
	p.nextToken()
	table.SpanVal = p.span(start)
	return table
}
