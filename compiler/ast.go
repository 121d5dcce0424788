package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Squirrel
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// NullLiteral represents null.
type NullLiteral struct {
	SpanVal Span
}

func (n *NullLiteral) Span() Span { return n.SpanVal }
func (n *NullLiteral) node()      {}
func (n *NullLiteral) expr()      {}

// Identifier represents a bare name.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// ThisExpr represents this.
type ThisExpr struct {
	SpanVal Span
}

func (n *ThisExpr) Span() Span { return n.SpanVal }
func (n *ThisExpr) node()      {}
func (n *ThisExpr) expr()      {}

// BaseExpr represents base, the superclass of the running method's class.
type BaseExpr struct {
	SpanVal Span
}

func (n *BaseExpr) Span() Span { return n.SpanVal }
func (n *BaseExpr) node()      {}
func (n *BaseExpr) expr()      {}

// RootExpr represents ::name, a slot of the root table.
type RootExpr struct {
	SpanVal Span
	Name    string
}

func (n *RootExpr) Span() Span { return n.SpanVal }
func (n *RootExpr) node()      {}
func (n *RootExpr) expr()      {}

// IndexExpr represents obj[key] and obj.key (Key is a StringLiteral).
// NullSafe is set for ?. and ?[ which yield null instead of failing.
type IndexExpr struct {
	SpanVal  Span
	Object   Expr
	Key      Expr
	NullSafe bool
}

func (n *IndexExpr) Span() Span { return n.SpanVal }
func (n *IndexExpr) node()      {}
func (n *IndexExpr) expr()      {}

// CallExpr represents fn(args).
type CallExpr struct {
	SpanVal Span
	Fn      Expr
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// UnaryExpr represents a prefix operator: - ! ~ typeof resume delete clone.
type UnaryExpr struct {
	SpanVal Span
	Op      TokenType
	X       Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryExpr represents an arithmetic, comparison, bitwise, in or instanceof operation.
type BinaryExpr struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// LogicalExpr represents short-circuit && and ||.
type LogicalExpr struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *LogicalExpr) Span() Span { return n.SpanVal }
func (n *LogicalExpr) node()      {}
func (n *LogicalExpr) expr()      {}

// TernaryExpr represents cond ? a : b.
type TernaryExpr struct {
	SpanVal Span
	Cond    Expr
	Then    Expr
	Else    Expr
}

func (n *TernaryExpr) Span() Span { return n.SpanVal }
func (n *TernaryExpr) node()      {}
func (n *TernaryExpr) expr()      {}

// AssignExpr represents target op value for = <- += -= *= /= %=.
type AssignExpr struct {
	SpanVal Span
	Op      TokenType
	Target  Expr // Identifier, IndexExpr or RootExpr
	Value   Expr
}

func (n *AssignExpr) Span() Span { return n.SpanVal }
func (n *AssignExpr) node()      {}
func (n *AssignExpr) expr()      {}

// IncDecExpr represents ++x, --x, x++ and x--.
type IncDecExpr struct {
	SpanVal Span
	Op      TokenType // TokenInc or TokenDec
	Prefix  bool
	Target  Expr
}

func (n *IncDecExpr) Span() Span { return n.SpanVal }
func (n *IncDecExpr) node()      {}
func (n *IncDecExpr) expr()      {}

// YieldExpr suspends the enclosing generator. Its value is whatever the
// next resume passes in.
type YieldExpr struct {
	SpanVal Span
	Value   Expr // may be nil
}

func (n *YieldExpr) Span() Span { return n.SpanVal }
func (n *YieldExpr) node()      {}
func (n *YieldExpr) expr()      {}

// FuncLiteral represents function(params) { body }.
type FuncLiteral struct {
	SpanVal Span
	Func    *FuncDecl
}

func (n *FuncLiteral) Span() Span { return n.SpanVal }
func (n *FuncLiteral) node()      {}
func (n *FuncLiteral) expr()      {}

// TableEntry is one key = value pair in a table literal.
type TableEntry struct {
	Key   Expr
	Value Expr
}

// TableLiteral represents { k = v, ["k"] = v, function m() {} }.
type TableLiteral struct {
	SpanVal Span
	Entries []TableEntry
}

func (n *TableLiteral) Span() Span { return n.SpanVal }
func (n *TableLiteral) node()      {}
func (n *TableLiteral) expr()      {}

// ArrayLiteral represents [a, b, c].
type ArrayLiteral struct {
	SpanVal  Span
	Elements []Expr
}

func (n *ArrayLiteral) Span() Span { return n.SpanVal }
func (n *ArrayLiteral) node()      {}
func (n *ArrayLiteral) expr()      {}

// ClassLiteral represents class [extends Base] { ... } in expression position.
type ClassLiteral struct {
	SpanVal Span
	Class   *ClassDecl
}

func (n *ClassLiteral) Span() Span { return n.SpanVal }
func (n *ClassLiteral) node()      {}
func (n *ClassLiteral) expr()      {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// FuncDecl is a function prototype before code generation.
type FuncDecl struct {
	SpanVal     Span
	Name        string
	Params      []string
	Varargs     bool
	IsGenerator bool // body contains yield
	Body        []Stmt
}

func (d *FuncDecl) Span() Span { return d.SpanVal }
func (d *FuncDecl) node()      {}

// ClassMember is a field, method or static of a class body.
type ClassMember struct {
	Key    Expr
	Value  Expr
	Static bool
}

// ClassDecl describes a class body.
type ClassDecl struct {
	SpanVal Span
	Name    string
	Base    Expr // nil when the class has no base
	Members []ClassMember
}

func (d *ClassDecl) Span() Span { return d.SpanVal }
func (d *ClassDecl) node()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	SpanVal Span
	X       Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// LocalStmt declares locals: local a = 1, b.
type LocalStmt struct {
	SpanVal Span
	Names   []string
	Values  []Expr // nil entries for names without initializer
}

func (n *LocalStmt) Span() Span { return n.SpanVal }
func (n *LocalStmt) node()      {}
func (n *LocalStmt) stmt()      {}

// LocalFuncStmt declares local function f() {}; f is visible inside its own body.
type LocalFuncStmt struct {
	SpanVal Span
	Func    *FuncDecl
}

func (n *LocalFuncStmt) Span() Span { return n.SpanVal }
func (n *LocalFuncStmt) node()      {}
func (n *LocalFuncStmt) stmt()      {}

// FunctionStmt is function a.b.c() {}: a new slot c in a.b, or in this.
type FunctionStmt struct {
	SpanVal Span
	Path    []string
	Func    *FuncDecl
}

func (n *FunctionStmt) Span() Span { return n.SpanVal }
func (n *FunctionStmt) node()      {}
func (n *FunctionStmt) stmt()      {}

// ClassStmt is class a.B extends C {}: a new slot B in a, or in this.
type ClassStmt struct {
	SpanVal Span
	Path    []string
	Class   *ClassDecl
}

func (n *ClassStmt) Span() Span { return n.SpanVal }
func (n *ClassStmt) node()      {}
func (n *ClassStmt) stmt()      {}

// BlockStmt is { stmts }.
type BlockStmt struct {
	SpanVal Span
	Stmts   []Stmt
}

func (n *BlockStmt) Span() Span { return n.SpanVal }
func (n *BlockStmt) node()      {}
func (n *BlockStmt) stmt()      {}

// IfStmt is if (cond) then [else els].
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    Stmt
	Else    Stmt // may be nil
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt is while (cond) body.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    Stmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// DoWhileStmt is do body while (cond).
type DoWhileStmt struct {
	SpanVal Span
	Body    Stmt
	Cond    Expr
}

func (n *DoWhileStmt) Span() Span { return n.SpanVal }
func (n *DoWhileStmt) node()      {}
func (n *DoWhileStmt) stmt()      {}

// ForStmt is for (init; cond; post) body. Any part may be nil.
type ForStmt struct {
	SpanVal Span
	Init    Stmt
	Cond    Expr
	Post    Expr
	Body    Stmt
}

func (n *ForStmt) Span() Span { return n.SpanVal }
func (n *ForStmt) node()      {}
func (n *ForStmt) stmt()      {}

// ForeachStmt is foreach ([key,] value in iterable) body.
type ForeachStmt struct {
	SpanVal  Span
	Key      string // empty when omitted
	Value    string
	Iterable Expr
	Body     Stmt
}

func (n *ForeachStmt) Span() Span { return n.SpanVal }
func (n *ForeachStmt) node()      {}
func (n *ForeachStmt) stmt()      {}

// BreakStmt is break.
type BreakStmt struct {
	SpanVal Span
}

func (n *BreakStmt) Span() Span { return n.SpanVal }
func (n *BreakStmt) node()      {}
func (n *BreakStmt) stmt()      {}

// ContinueStmt is continue.
type ContinueStmt struct {
	SpanVal Span
}

func (n *ContinueStmt) Span() Span { return n.SpanVal }
func (n *ContinueStmt) node()      {}
func (n *ContinueStmt) stmt()      {}

// ReturnStmt is return [value].
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // may be nil
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// ThrowStmt is throw value.
type ThrowStmt struct {
	SpanVal Span
	Value   Expr
}

func (n *ThrowStmt) Span() Span { return n.SpanVal }
func (n *ThrowStmt) node()      {}
func (n *ThrowStmt) stmt()      {}

// TryStmt is try body catch (name) handler.
type TryStmt struct {
	SpanVal  Span
	Body     Stmt
	CatchVar string
	Catch    Stmt
}

func (n *TryStmt) Span() Span { return n.SpanVal }
func (n *TryStmt) node()      {}
func (n *TryStmt) stmt()      {}

// Program is a parsed source file: the body of the implicit main function.
type Program struct {
	SpanVal Span
	Stmts   []Stmt
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}
