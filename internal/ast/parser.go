package ast

import (
	"fmt"
	"strings"
)

// Parse reads back the form produced by Print, reconstructing an
// equivalent Module. It is the other half of the round-trip test
// required by spec.md §8 and is deliberately not a Move source parser:
// it only understands the parenthesized encoding printer.go emits.
func Parse(src string) (*Module, error) {
	p := &sexprParser{src: src}
	p.skipSpace()
	m, err := p.parseModule()
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

type sexprParser struct {
	src string
	pos int
}

func (p *sexprParser) errf(format string, args ...any) error {
	return fmt.Errorf("ast.Parse: at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

// skipSpace skips whitespace and, since a `// hydra-ignore` pragma
// (internal/suppress) can appear anywhere the source text this parser
// consumes can, `//`-to-end-of-line comments too. Outside quoted atoms
// (whose contents, such as the "/" operator, skipSpace never scans),
// nothing in the grammar uses `/`, so this can't collide with a real token.
func (p *sexprParser) skipSpace() {
	for p.pos < len(p.src) {
		switch {
		case p.src[p.pos] == ' ' || p.src[p.pos] == '\n' || p.src[p.pos] == '\t' || p.src[p.pos] == '\r':
			p.pos++
		case p.src[p.pos] == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *sexprParser) expect(b byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != b {
		return p.errf("expected %q", b)
	}
	p.pos++
	return nil
}

// tag reads a bare identifier immediately following '(' (e.g. "module",
// "struct", "let") without consuming the following whitespace.
func (p *sexprParser) tag() (string, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == ')' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.errf("expected tag")
	}
	return p.src[start:p.pos], nil
}

func (p *sexprParser) atom() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var out []byte
	for {
		if p.pos >= len(p.src) {
			return "", p.errf("unterminated atom")
		}
		c := p.src[p.pos]
		if c == '\\' {
			p.pos++
			if p.pos >= len(p.src) {
				return "", p.errf("unterminated escape")
			}
			out = append(out, p.src[p.pos])
			p.pos++
			continue
		}
		if c == '"' {
			p.pos++
			break
		}
		out = append(out, c)
		p.pos++
	}
	return string(out), nil
}

func (p *sexprParser) open() error { return p.expect('(') }
func (p *sexprParser) close() error { return p.expect(')') }

func (p *sexprParser) peekByte() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *sexprParser) parseModule() (*Module, error) {
	if err := p.open(); err != nil {
		return nil, err
	}
	tag, err := p.tag()
	if err != nil || tag != "module" {
		return nil, p.errf("expected (module ...)")
	}
	m := &Module{}
	if m.Name, err = p.atom(); err != nil {
		return nil, err
	}
	if m.Address, err = p.atom(); err != nil {
		return nil, err
	}

	if err := p.openTagged("imports"); err != nil {
		return nil, err
	}
	for p.peekByte() != ')' {
		imp, err := p.atom()
		if err != nil {
			return nil, err
		}
		m.Imports = append(m.Imports, imp)
	}
	if err := p.close(); err != nil {
		return nil, err
	}

	if err := p.openTagged("structs"); err != nil {
		return nil, err
	}
	for p.peekByte() != ')' {
		s, err := p.parseStruct()
		if err != nil {
			return nil, err
		}
		m.Structs = append(m.Structs, s)
	}
	if err := p.close(); err != nil {
		return nil, err
	}

	if err := p.openTagged("funcs"); err != nil {
		return nil, err
	}
	for p.peekByte() != ')' {
		f, err := p.parseFunc()
		if err != nil {
			return nil, err
		}
		m.Funcs = append(m.Funcs, f)
	}
	if err := p.close(); err != nil {
		return nil, err
	}

	return m, p.close()
}

func (p *sexprParser) openTagged(want string) error {
	if err := p.open(); err != nil {
		return err
	}
	tag, err := p.tag()
	if err != nil {
		return err
	}
	if tag != want {
		return p.errf("expected tag %q, got %q", want, tag)
	}
	return nil
}

func (p *sexprParser) parseStruct() (*Struct, error) {
	if err := p.openTagged("struct"); err != nil {
		return nil, err
	}
	s := &Struct{}
	var err error
	if s.Name, err = p.atom(); err != nil {
		return nil, err
	}
	if s.Address, err = p.atom(); err != nil {
		return nil, err
	}
	if err := p.openTagged("abilities"); err != nil {
		return nil, err
	}
	for p.peekByte() != ')' {
		a, err := p.atom()
		if err != nil {
			return nil, err
		}
		s.Abilities = append(s.Abilities, Ability(a))
	}
	if err := p.close(); err != nil {
		return nil, err
	}
	if err := p.openTagged("fields"); err != nil {
		return nil, err
	}
	for p.peekByte() != ')' {
		if err := p.openTagged("field"); err != nil {
			return nil, err
		}
		name, err := p.atom()
		if err != nil {
			return nil, err
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, Field{Name: name, Type: t})
		if err := p.close(); err != nil {
			return nil, err
		}
	}
	if err := p.close(); err != nil {
		return nil, err
	}
	return s, p.close()
}

func (p *sexprParser) parseType() (Type, error) {
	if err := p.open(); err != nil {
		return nil, err
	}
	tag, err := p.tag()
	if err != nil {
		return nil, err
	}
	switch tag {
	case "prim":
		p.skipSpace()
		k, err := p.tag()
		if err != nil {
			return nil, err
		}
		return &PrimitiveType{Kind: PrimitiveKind(k)}, p.close()
	case "vector":
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &VectorType{Elem: elem}, p.close()
	case "named":
		mod, err := p.atom()
		if err != nil {
			return nil, err
		}
		st, err := p.atom()
		if err != nil {
			return nil, err
		}
		if err := p.openTagged("args"); err != nil {
			return nil, err
		}
		var args []Type
		for p.peekByte() != ')' {
			a, err := p.parseType()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &NamedType{Module: mod, Struct: st, Args: args}, p.close()
	case "ref":
		p.skipSpace()
		m, err := p.tag()
		if err != nil {
			return nil, err
		}
		target, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &RefType{Target: target, Mutable: m == "mut"}, p.close()
	case "tuple":
		var elems []Type
		for p.peekByte() != ')' {
			e, err := p.parseType()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		return &TupleType{Elems: elems}, p.close()
	case "generic":
		name, err := p.atom()
		if err != nil {
			return nil, err
		}
		return &GenericParamType{Name: name}, p.close()
	default:
		return nil, p.errf("unknown type tag %q", tag)
	}
}

func (p *sexprParser) parseFunc() (*Function, error) {
	if err := p.openTagged("func"); err != nil {
		return nil, err
	}
	f := &Function{}
	var err error
	if f.Name, err = p.atom(); err != nil {
		return nil, err
	}
	vis, err := p.atom()
	if err != nil {
		return nil, err
	}
	f.Visibility = Visibility(vis)

	if err := p.openTagged("typeparams"); err != nil {
		return nil, err
	}
	for p.peekByte() != ')' {
		tp, err := p.atom()
		if err != nil {
			return nil, err
		}
		f.TypeParams = append(f.TypeParams, tp)
	}
	if err := p.close(); err != nil {
		return nil, err
	}

	if err := p.openTagged("params"); err != nil {
		return nil, err
	}
	for p.peekByte() != ')' {
		if err := p.openTagged("param"); err != nil {
			return nil, err
		}
		name, err := p.atom()
		if err != nil {
			return nil, err
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		f.Params = append(f.Params, Parameter{Name: name, Type: t})
		if err := p.close(); err != nil {
			return nil, err
		}
	}
	if err := p.close(); err != nil {
		return nil, err
	}

	if err := p.openTagged("returns"); err != nil {
		return nil, err
	}
	for p.peekByte() != ')' {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		f.Returns = append(f.Returns, t)
	}
	if err := p.close(); err != nil {
		return nil, err
	}

	if err := p.openTagged("body"); err != nil {
		return nil, err
	}
	for p.peekByte() != ')' {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		f.Body = append(f.Body, s)
	}
	if err := p.close(); err != nil {
		return nil, err
	}
	return f, p.close()
}

// lineAt returns the 1-based line pos falls on, used to stamp each
// statement with the source line its opening "(" started at (spec.md §6
// output schema; internal/suppress keys its pragma map the same way).
func (p *sexprParser) lineAt(pos int) int {
	return 1 + strings.Count(p.src[:pos], "\n")
}

func (p *sexprParser) parseStmt() (Statement, error) {
	p.skipSpace()
	line := p.lineAt(p.pos)
	s, err := p.parseStmtTagged()
	if err != nil {
		return nil, err
	}
	s.SetLine(line)
	return s, nil
}

func (p *sexprParser) parseStmtTagged() (Statement, error) {
	if err := p.open(); err != nil {
		return nil, err
	}
	tag, err := p.tag()
	if err != nil {
		return nil, err
	}
	switch tag {
	case "let":
		name, err := p.atom()
		if err != nil {
			return nil, err
		}
		var typ Type
		if p.peekByte() == '(' {
			// either (notype) or a real type
			save := p.pos
			if err := p.openTagged("notype"); err == nil {
				if err := p.close(); err != nil {
					return nil, err
				}
			} else {
				p.pos = save
				typ, err = p.parseType()
				if err != nil {
					return nil, err
				}
			}
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &LetStmt{Name: name, Type: typ, Expr: e}, nil
	case "assign":
		lv, err := p.parseLValue()
		if err != nil {
			return nil, err
		}
		op, err := p.atom()
		if err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &AssignStmt{LValue: lv, Op: AssignOp(op), RHS: rhs}, nil
	case "callstmt":
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce, ok := e.(*CallExpr)
		if !ok {
			return nil, p.errf("callstmt expects a call expression")
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &CallStmt{Call: ce}, nil
	case "if":
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		then, err := p.parseStmtList("then")
		if err != nil {
			return nil, err
		}
		els, err := p.parseStmtList("else")
		if err != nil {
			return nil, err
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &IfStmt{Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseStmtList("body")
		if err != nil {
			return nil, err
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &WhileStmt{Cond: cond, Body: body}, nil
	case "return":
		if p.peekByte() == '(' {
			save := p.pos
			if err := p.openTagged("none"); err == nil {
				if err := p.close(); err != nil {
					return nil, err
				}
				if err := p.close(); err != nil {
					return nil, err
				}
				return &ReturnStmt{}, nil
			}
			p.pos = save
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &ReturnStmt{Expr: e}, nil
	case "block":
		var stmts []Statement
		for p.peekByte() != ')' {
			s, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, s)
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &BlockStmt{Stmts: stmts}, nil
	case "abort":
		code, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &AbortStmt{Code: code}, nil
	case "assert":
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		code, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &AssertStmt{Cond: cond, Code: code}, nil
	default:
		return nil, p.errf("unknown statement tag %q", tag)
	}
}

func (p *sexprParser) parseStmtList(want string) ([]Statement, error) {
	if err := p.openTagged(want); err != nil {
		return nil, err
	}
	var out []Statement
	for p.peekByte() != ')' {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, p.close()
}

func (p *sexprParser) parseLValue() (LValue, error) {
	if err := p.open(); err != nil {
		return nil, err
	}
	tag, err := p.tag()
	if err != nil {
		return nil, err
	}
	switch tag {
	case "lvar":
		name, err := p.atom()
		if err != nil {
			return nil, err
		}
		return &VarLValue{Name: name}, p.close()
	case "lfield":
		base, err := p.parseLValue()
		if err != nil {
			return nil, err
		}
		field, err := p.atom()
		if err != nil {
			return nil, err
		}
		return &FieldLValue{Base: base, Field: field}, p.close()
	case "lindex":
		base, err := p.parseLValue()
		if err != nil {
			return nil, err
		}
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &IndexLValue{Base: base, Index: idx}, p.close()
	default:
		return nil, p.errf("unknown lvalue tag %q", tag)
	}
}

func (p *sexprParser) parseExpr() (Expression, error) {
	if err := p.open(); err != nil {
		return nil, err
	}
	tag, err := p.tag()
	if err != nil {
		return nil, err
	}
	switch tag {
	case "litint":
		p.skipSpace()
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != ')' {
			p.pos++
		}
		n, err := itoa64(p.src[start:p.pos])
		if err != nil {
			return nil, err
		}
		return NewIntLiteral(n), p.close()
	case "litbool":
		p.skipSpace()
		b, err := p.tag()
		if err != nil {
			return nil, err
		}
		return &LiteralExpr{Kind: LiteralBool, Bool: b == "true"}, p.close()
	case "litaddr":
		s, err := p.atom()
		if err != nil {
			return nil, err
		}
		return &LiteralExpr{Kind: LiteralAddress, Text: s}, p.close()
	case "litbytes":
		s, err := p.atom()
		if err != nil {
			return nil, err
		}
		return &LiteralExpr{Kind: LiteralByteString, Text: s}, p.close()
	case "var":
		name, err := p.atom()
		if err != nil {
			return nil, err
		}
		return &VarExpr{Name: name}, p.close()
	case "field":
		base, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		field, err := p.atom()
		if err != nil {
			return nil, err
		}
		return &FieldAccessExpr{Base: base, Field: field}, p.close()
	case "index":
		base, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &IndexExpr{Base: base, Index: idx}, p.close()
	case "borrow":
		p.skipSpace()
		m, err := p.tag()
		if err != nil {
			return nil, err
		}
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &BorrowExpr{Operand: operand, Mutable: m == "mut"}, p.close()
	case "deref":
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &DerefExpr{Operand: operand}, p.close()
	case "call":
		mod, err := p.atom()
		if err != nil {
			return nil, err
		}
		fn, err := p.atom()
		if err != nil {
			return nil, err
		}
		if err := p.openTagged("typeargs"); err != nil {
			return nil, err
		}
		var typeArgs []Type
		for p.peekByte() != ')' {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			typeArgs = append(typeArgs, t)
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		if err := p.openTagged("args"); err != nil {
			return nil, err
		}
		var args []Expression
		for p.peekByte() != ')' {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &CallExpr{Module: mod, Function: fn, TypeArgs: typeArgs, Args: args}, p.close()
	case "binary":
		op, err := p.atom()
		if err != nil {
			return nil, err
		}
		l, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		r, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: BinaryOp(op), Left: l, Right: r}, p.close()
	case "ctor":
		mod, err := p.atom()
		if err != nil {
			return nil, err
		}
		st, err := p.atom()
		if err != nil {
			return nil, err
		}
		if err := p.openTagged("fields"); err != nil {
			return nil, err
		}
		var fields []FieldInit
		for p.peekByte() != ')' {
			if err := p.openTagged("finit"); err != nil {
				return nil, err
			}
			name, err := p.atom()
			if err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fields = append(fields, FieldInit{Name: name, Expr: e})
			if err := p.close(); err != nil {
				return nil, err
			}
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &StructCtorExpr{Module: mod, Struct: st, Fields: fields}, p.close()
	case "vecop":
		kind, err := p.atom()
		if err != nil {
			return nil, err
		}
		if err := p.openTagged("args"); err != nil {
			return nil, err
		}
		var args []Expression
		for p.peekByte() != ')' {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return &VectorOpExpr{Kind: VectorOpKind(kind), Args: args}, p.close()
	default:
		return nil, p.errf("unknown expression tag %q", tag)
	}
}
