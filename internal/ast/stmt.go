package ast

// Statement is the sum type of Move statement forms (§3). Every concrete
// statement type also exposes Index(), the statement's position in the
// source-order, nested-blocks-included flattening of its Function.Body
// (FlattenBody), assigned by Module.Validate and used verbatim in every
// reported Location. Line is the 1-based source line Parse found the
// statement's opening token on; it is 0 for statements built directly
// by a test (no source text to derive a line from).
type Statement interface {
	isStatement()
	Index() int
	SetIndex(int)
	Line() int
	SetLine(int)
}

type stmtBase struct {
	idx  int
	line int
}

func (s *stmtBase) Index() int     { return s.idx }
func (s *stmtBase) SetIndex(i int) { s.idx = i }
func (s *stmtBase) Line() int      { return s.line }
func (s *stmtBase) SetLine(l int)  { s.line = l }

// LetStmt declares a new local, optionally with an explicit type.
type LetStmt struct {
	stmtBase
	Name string
	Type Type // nil if inferred
	Expr Expression
}

func (*LetStmt) isStatement() {}

// LValue is the assignable target of an AssignStmt: a bare variable, a
// field access through a (possibly nested) variable, or an index
// expression.
type LValue interface {
	isLValue()
	RootVar() string
}

// VarLValue assigns directly to a local.
type VarLValue struct{ Name string }

func (*VarLValue) isLValue()          {}
func (v *VarLValue) RootVar() string  { return v.Name }

// FieldLValue assigns to a (possibly nested) field path rooted at a
// local, e.g. `obj.inner.value = x`.
type FieldLValue struct {
	Base  LValue
	Field string
}

func (*FieldLValue) isLValue()         {}
func (f *FieldLValue) RootVar() string { return f.Base.RootVar() }

// Path returns the field chain from the root variable, outermost last.
func (f *FieldLValue) Path() []string {
	var path []string
	cur := LValue(f)
	for {
		fl, ok := cur.(*FieldLValue)
		if !ok {
			break
		}
		path = append([]string{fl.Field}, path...)
		cur = fl.Base
	}
	return path
}

// IndexLValue assigns through an index expression, e.g. `v[i] = x`.
type IndexLValue struct {
	Base  LValue
	Index Expression
}

func (*IndexLValue) isLValue()         {}
func (i *IndexLValue) RootVar() string { return i.Base.RootVar() }

// AssignStmt assigns to an existing lvalue.
type AssignStmt struct {
	stmtBase
	LValue LValue
	Op     AssignOp
	RHS    Expression
}

func (*AssignStmt) isStatement() {}

// AssignOp distinguishes plain assignment from the arithmetic
// compound-assignment forms the DoS/arithmetic rules special-case.
type AssignOp string

const (
	AssignSet AssignOp = "="
	AssignAdd AssignOp = "+="
	AssignSub AssignOp = "-="
	AssignMul AssignOp = "*="
	AssignDiv AssignOp = "/="
)

// CallStmt is a statement-position call whose result is discarded.
type CallStmt struct {
	stmtBase
	Call *CallExpr
}

func (*CallStmt) isStatement() {}

// IfStmt is a conditional with a then-block and an optional else-block.
type IfStmt struct {
	stmtBase
	Cond Expression
	Then []Statement
	Else []Statement // nil if no else branch
}

func (*IfStmt) isStatement() {}

// WhileStmt is a pre-tested loop. Move's `for` over ranges/iterators
// desugars to this shape for CFG purposes (§3).
type WhileStmt struct {
	stmtBase
	Cond Expression
	Body []Statement
}

func (*WhileStmt) isStatement() {}

// ReturnStmt returns from the enclosing function, optionally with a
// value (Expr is nil for a bare `return`).
type ReturnStmt struct {
	stmtBase
	Expr Expression
}

func (*ReturnStmt) isStatement() {}

// BlockStmt groups statements without introducing control flow of its
// own (used for nested scopes that aren't loops or conditionals).
type BlockStmt struct {
	stmtBase
	Stmts []Statement
}

func (*BlockStmt) isStatement() {}

// AbortStmt aborts the transaction with an error code.
type AbortStmt struct {
	stmtBase
	Code Expression
}

func (*AbortStmt) isStatement() {}

// AssertStmt is Move's `assert!(cond, code)` macro, modeled directly
// (rather than desugared to an if/abort) because several rules (time-
// gating, invariant guards) specifically look for a dominating assert.
type AssertStmt struct {
	stmtBase
	Cond Expression
	Code Expression
}

func (*AssertStmt) isStatement() {}
