package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: lint checks over a parsed script
// ---------------------------------------------------------------------------

// Diagnostic is a warning found by the semantic analyzer. Scripts with
// warnings still compile.
type Diagnostic struct {
	Span Span
	Msg  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("warning: line %d, column %d: %s", d.Span.Start.Line, d.Span.Start.Column, d.Msg)
}

// SemanticAnalyzer checks for unused locals, unreachable code, base outside
// of class methods and names that nothing in the script or host defines.
type SemanticAnalyzer struct {
	diags []Diagnostic

	// Names known to exist at runtime: host globals plus every slot the
	// script creates with <-, function or class statements, or literals.
	knownGlobals map[string]bool

	scopes    []*semScope
	inMethods int // nesting of class member functions
}

type semScope struct {
	locals map[string]*semLocal
	order  []string
}

type semLocal struct {
	node Node
	used bool
}

// NewSemanticAnalyzer creates a new semantic analyzer.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{knownGlobals: map[string]bool{"vargv": true}}
}

// AddKnownGlobal adds a global to the known globals set.
func (s *SemanticAnalyzer) AddKnownGlobal(name string) {
	s.knownGlobals[name] = true
}

// warnAt records a warning with position information.
func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...interface{}) {
	s.diags = append(s.diags, Diagnostic{Span: node.Span(), Msg: fmt.Sprintf(format, args...)})
}

// Analyze checks prog and returns its warnings in source order.
func (s *SemanticAnalyzer) Analyze(prog *Program) []Diagnostic {
	s.collectSlots(prog.Stmts)
	s.pushScope()
	s.analyzeStatements(prog.Stmts)
	s.popScope()
	sort.SliceStable(s.diags, func(i, j int) bool {
		return s.diags[i].Span.Start.Offset < s.diags[j].Span.Start.Offset
	})
	return s.diags
}

// Analyze runs semantic analysis with the given host globals.
func Analyze(prog *Program, globals []string) []Diagnostic {
	analyzer := NewSemanticAnalyzer()
	for _, g := range globals {
		analyzer.AddKnownGlobal(g)
	}
	return analyzer.Analyze(prog)
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

func (s *SemanticAnalyzer) pushScope() {
	s.scopes = append(s.scopes, &semScope{locals: make(map[string]*semLocal)})
}

func (s *SemanticAnalyzer) popScope() {
	scope := s.scopes[len(s.scopes)-1]
	s.scopes = s.scopes[:len(s.scopes)-1]
	for _, name := range scope.order {
		l := scope.locals[name]
		if !l.used && !strings.HasPrefix(name, "_") {
			s.warnAt(l.node, "local '%s' declared but not used", name)
		}
	}
}

func (s *SemanticAnalyzer) declare(node Node, name string, used bool) {
	scope := s.scopes[len(s.scopes)-1]
	if _, exists := scope.locals[name]; !exists {
		scope.order = append(scope.order, name)
	}
	scope.locals[name] = &semLocal{node: node, used: used}
}

func (s *SemanticAnalyzer) use(id *Identifier) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if l, ok := s.scopes[i].locals[id.Name]; ok {
			l.used = true
			return
		}
	}
	if !s.knownGlobals[id.Name] {
		s.warnAt(id, "unknown name '%s'", id.Name)
	}
}

// ---------------------------------------------------------------------------
// Slot collection
// ---------------------------------------------------------------------------

// collectSlots records names created dynamically anywhere in the script so
// they are not reported as unknown.
func (s *SemanticAnalyzer) collectSlots(stmts []Stmt) {
	walkStmts(stmts, func(n Node) {
		switch v := n.(type) {
		case *FunctionStmt:
			s.knownGlobals[v.Path[len(v.Path)-1]] = true
		case *ClassStmt:
			s.knownGlobals[v.Path[len(v.Path)-1]] = true
		case *AssignExpr:
			if id, ok := v.Target.(*Identifier); ok && v.Op == TokenNewSlot {
				s.knownGlobals[id.Name] = true
			}
			if root, ok := v.Target.(*RootExpr); ok {
				s.knownGlobals[root.Name] = true
			}
		case *TableLiteral:
			for _, e := range v.Entries {
				if k, ok := e.Key.(*StringLiteral); ok {
					s.knownGlobals[k.Value] = true
				}
			}
		case *ClassDecl:
			for _, m := range v.Members {
				if k, ok := m.Key.(*StringLiteral); ok {
					s.knownGlobals[k.Value] = true
				}
			}
		}
	})
}

// ---------------------------------------------------------------------------
// Statements and expressions
// ---------------------------------------------------------------------------

// analyzeStatements analyzes a list of statements.
func (s *SemanticAnalyzer) analyzeStatements(stmts []Stmt) {
	for _, stmt := range stmts {
		s.analyzeStmt(stmt)
	}
	s.checkUnreachableCode(stmts)
}

func (s *SemanticAnalyzer) analyzeScoped(stmt Stmt) {
	s.pushScope()
	s.analyzeStmt(stmt)
	s.popScope()
}

func (s *SemanticAnalyzer) analyzeStmt(stmt Stmt) {
	switch n := stmt.(type) {
	case *ExprStmt:
		s.analyzeExpr(n.X)
	case *BlockStmt:
		s.pushScope()
		s.analyzeStatements(n.Stmts)
		s.popScope()
	case *LocalStmt:
		for i, name := range n.Names {
			if n.Values[i] != nil {
				s.analyzeExpr(n.Values[i])
			}
			s.declare(n, name, false)
		}
	case *LocalFuncStmt:
		s.declare(n, n.Func.Name, false)
		s.analyzeFunc(n.Func, false)
	case *FunctionStmt:
		if len(n.Path) > 1 {
			s.use(&Identifier{SpanVal: n.SpanVal, Name: n.Path[0]})
		}
		s.analyzeFunc(n.Func, false)
	case *ClassStmt:
		if len(n.Path) > 1 {
			s.use(&Identifier{SpanVal: n.SpanVal, Name: n.Path[0]})
		}
		s.analyzeClass(n.Class)
	case *IfStmt:
		s.analyzeExpr(n.Cond)
		s.analyzeScoped(n.Then)
		if n.Else != nil {
			s.analyzeScoped(n.Else)
		}
	case *WhileStmt:
		s.analyzeExpr(n.Cond)
		s.analyzeScoped(n.Body)
	case *DoWhileStmt:
		s.analyzeScoped(n.Body)
		s.analyzeExpr(n.Cond)
	case *ForStmt:
		s.pushScope()
		if n.Init != nil {
			s.analyzeStmt(n.Init)
		}
		if n.Cond != nil {
			s.analyzeExpr(n.Cond)
		}
		if n.Post != nil {
			s.analyzeExpr(n.Post)
		}
		s.analyzeScoped(n.Body)
		s.popScope()
	case *ForeachStmt:
		s.analyzeExpr(n.Iterable)
		s.pushScope()
		if n.Key != "" {
			s.declare(n, n.Key, true)
		}
		s.declare(n, n.Value, true)
		s.analyzeScoped(n.Body)
		s.popScope()
	case *ReturnStmt:
		if n.Value != nil {
			s.analyzeExpr(n.Value)
		}
	case *ThrowStmt:
		s.analyzeExpr(n.Value)
	case *TryStmt:
		s.analyzeScoped(n.Body)
		s.pushScope()
		s.declare(n, n.CatchVar, true)
		s.analyzeStmt(n.Catch)
		s.popScope()
	}
}

func (s *SemanticAnalyzer) analyzeFunc(fn *FuncDecl, method bool) {
	if method {
		s.inMethods++
		defer func() { s.inMethods-- }()
	}
	s.pushScope()
	for _, p := range fn.Params {
		s.declare(fn, p, true)
	}
	if fn.Varargs {
		s.declare(fn, "vargv", true)
	}
	s.analyzeStatements(fn.Body)
	s.popScope()
}

func (s *SemanticAnalyzer) analyzeClass(cls *ClassDecl) {
	if cls.Base != nil {
		s.analyzeExpr(cls.Base)
	}
	for _, m := range cls.Members {
		s.analyzeExpr(m.Key)
		if fl, ok := m.Value.(*FuncLiteral); ok {
			s.analyzeFunc(fl.Func, true)
			continue
		}
		s.analyzeExpr(m.Value)
	}
}

func (s *SemanticAnalyzer) analyzeExpr(expr Expr) {
	switch n := expr.(type) {
	case *Identifier:
		s.use(n)
	case *BaseExpr:
		if s.inMethods == 0 {
			s.warnAt(n, "'base' used outside of a class method")
		}
	case *IndexExpr:
		s.analyzeExpr(n.Object)
		s.analyzeExpr(n.Key)
	case *CallExpr:
		s.analyzeExpr(n.Fn)
		for _, a := range n.Args {
			s.analyzeExpr(a)
		}
	case *UnaryExpr:
		s.analyzeExpr(n.X)
	case *BinaryExpr:
		s.analyzeExpr(n.Left)
		s.analyzeExpr(n.Right)
	case *LogicalExpr:
		s.analyzeExpr(n.Left)
		s.analyzeExpr(n.Right)
	case *TernaryExpr:
		s.analyzeExpr(n.Cond)
		s.analyzeExpr(n.Then)
		s.analyzeExpr(n.Else)
	case *AssignExpr:
		// x <- v creates the slot; no read happens
		if _, ok := n.Target.(*Identifier); !ok || n.Op != TokenNewSlot {
			s.analyzeExpr(n.Target)
		}
		s.analyzeExpr(n.Value)
	case *IncDecExpr:
		s.analyzeExpr(n.Target)
	case *YieldExpr:
		if n.Value != nil {
			s.analyzeExpr(n.Value)
		}
	case *FuncLiteral:
		s.analyzeFunc(n.Func, false)
	case *TableLiteral:
		for _, e := range n.Entries {
			s.analyzeExpr(e.Key)
			if fl, ok := e.Value.(*FuncLiteral); ok {
				s.analyzeFunc(fl.Func, false)
				continue
			}
			s.analyzeExpr(e.Value)
		}
	case *ArrayLiteral:
		for _, e := range n.Elements {
			s.analyzeExpr(e)
		}
	case *ClassLiteral:
		s.analyzeClass(n.Class)
	}
}

// checkUnreachableCode checks for code after a statement that always leaves the block.
func (s *SemanticAnalyzer) checkUnreachableCode(stmts []Stmt) {
	for i, stmt := range stmts {
		var what string
		switch stmt.(type) {
		case *ReturnStmt:
			what = "return"
		case *ThrowStmt:
			what = "throw"
		case *BreakStmt:
			what = "break"
		case *ContinueStmt:
			what = "continue"
		default:
			continue
		}
		if i < len(stmts)-1 {
			s.warnAt(stmts[i+1], "unreachable code after %s", what)
			return // Only warn once
		}
	}
}

// ---------------------------------------------------------------------------
// AST walking
// ---------------------------------------------------------------------------

// walkStmts visits every statement, expression and declaration under stmts.
func walkStmts(stmts []Stmt, visit func(Node)) {
	for _, st := range stmts {
		walkNode(st, visit)
	}
}

func walkNode(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	switch v := n.(type) {
	case *ExprStmt:
		walkNode(v.X, visit)
	case *BlockStmt:
		walkStmts(v.Stmts, visit)
	case *LocalStmt:
		for _, e := range v.Values {
			if e != nil {
				walkNode(e, visit)
			}
		}
	case *LocalFuncStmt:
		walkNode(v.Func, visit)
	case *FunctionStmt:
		walkNode(v.Func, visit)
	case *ClassStmt:
		walkNode(v.Class, visit)
	case *IfStmt:
		walkNode(v.Cond, visit)
		walkNode(v.Then, visit)
		if v.Else != nil {
			walkNode(v.Else, visit)
		}
	case *WhileStmt:
		walkNode(v.Cond, visit)
		walkNode(v.Body, visit)
	case *DoWhileStmt:
		walkNode(v.Body, visit)
		walkNode(v.Cond, visit)
	case *ForStmt:
		if v.Init != nil {
			walkNode(v.Init, visit)
		}
		if v.Cond != nil {
			walkNode(v.Cond, visit)
		}
		if v.Post != nil {
			walkNode(v.Post, visit)
		}
		walkNode(v.Body, visit)
	case *ForeachStmt:
		walkNode(v.Iterable, visit)
		walkNode(v.Body, visit)
	case *ReturnStmt:
		if v.Value != nil {
			walkNode(v.Value, visit)
		}
	case *ThrowStmt:
		walkNode(v.Value, visit)
	case *TryStmt:
		walkNode(v.Body, visit)
		walkNode(v.Catch, visit)
	case *FuncDecl:
		walkStmts(v.Body, visit)
	case *ClassDecl:
		if v.Base != nil {
			walkNode(v.Base, visit)
		}
		for _, m := range v.Members {
			walkNode(m.Key, visit)
			walkNode(m.Value, visit)
		}
	case *IndexExpr:
		walkNode(v.Object, visit)
		walkNode(v.Key, visit)
	case *CallExpr:
		walkNode(v.Fn, visit)
		for _, a := range v.Args {
			walkNode(a, visit)
		}
	case *UnaryExpr:
		walkNode(v.X, visit)
	case *BinaryExpr:
		walkNode(v.Left, visit)
		walkNode(v.Right, visit)
	case *LogicalExpr:
		walkNode(v.Left, visit)
		walkNode(v.Right, visit)
	case *TernaryExpr:
		walkNode(v.Cond, visit)
		walkNode(v.Then, visit)
		walkNode(v.Else, visit)
	case *AssignExpr:
		walkNode(v.Target, visit)
		walkNode(v.Value, visit)
	case *IncDecExpr:
		walkNode(v.Target, visit)
	case *YieldExpr:
		if v.Value != nil {
			walkNode(v.Value, visit)
		}
	case *FuncLiteral:
		walkNode(v.Func, visit)
	case *TableLiteral:
		for _, e := range v.Entries {
			walkNode(e.Key, visit)
			walkNode(e.Value, visit)
		}
	case *ArrayLiteral:
		for _, e := range v.Elements {
			walkNode(e, visit)
		}
	case *ClassLiteral:
		walkNode(v.Class, visit)
	}
}
