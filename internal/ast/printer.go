package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders a Module to a deterministic, parenthesized textual form.
// This is not a Move pretty-printer: it exists solely to drive the
// Print→Parse round-trip test of spec.md §8 ("tests the model, not the
// parser"), so it only needs to be a faithful, lossless encoding of the
// AST types in this package.
func Print(m *Module) string {
	var b strings.Builder
	b.WriteString("(module ")
	writeAtom(&b, m.Name)
	b.WriteByte(' ')
	writeAtom(&b, m.Address)
	b.WriteString(" (imports")
	for _, imp := range m.Imports {
		b.WriteByte(' ')
		writeAtom(&b, imp)
	}
	b.WriteString(") (structs")
	for _, s := range m.Structs {
		b.WriteByte(' ')
		printStruct(&b, s)
	}
	b.WriteString(") (funcs")
	for _, f := range m.Funcs {
		b.WriteByte(' ')
		printFunc(&b, f)
	}
	b.WriteString("))")
	return b.String()
}

func writeAtom(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
}

func printStruct(b *strings.Builder, s *Struct) {
	b.WriteString("(struct ")
	writeAtom(b, s.Name)
	b.WriteByte(' ')
	writeAtom(b, s.Address)
	b.WriteString(" (abilities")
	for _, a := range s.Abilities {
		b.WriteByte(' ')
		writeAtom(b, string(a))
	}
	b.WriteString(") (fields")
	for _, f := range s.Fields {
		b.WriteString(" (field ")
		writeAtom(b, f.Name)
		b.WriteByte(' ')
		printType(b, f.Type)
		b.WriteByte(')')
	}
	b.WriteString("))")
}

func printType(b *strings.Builder, t Type) {
	switch v := t.(type) {
	case *PrimitiveType:
		fmt.Fprintf(b, "(prim %s)", v.Kind)
	case *VectorType:
		b.WriteString("(vector ")
		printType(b, v.Elem)
		b.WriteByte(')')
	case *NamedType:
		b.WriteString("(named ")
		writeAtom(b, v.Module)
		b.WriteByte(' ')
		writeAtom(b, v.Struct)
		b.WriteString(" (args")
		for _, a := range v.Args {
			b.WriteByte(' ')
			printType(b, a)
		}
		b.WriteString("))")
	case *RefType:
		b.WriteString("(ref ")
		if v.Mutable {
			b.WriteString("mut ")
		} else {
			b.WriteString("imm ")
		}
		printType(b, v.Target)
		b.WriteByte(')')
	case *TupleType:
		b.WriteString("(tuple")
		for _, e := range v.Elems {
			b.WriteByte(' ')
			printType(b, e)
		}
		b.WriteByte(')')
	case *GenericParamType:
		b.WriteString("(generic ")
		writeAtom(b, v.Name)
		b.WriteByte(')')
	default:
		panic(fmt.Sprintf("ast: unknown Type %T", t))
	}
}

func printFunc(b *strings.Builder, f *Function) {
	b.WriteString("(func ")
	writeAtom(b, f.Name)
	b.WriteByte(' ')
	writeAtom(b, string(f.Visibility))
	b.WriteString(" (typeparams")
	for _, tp := range f.TypeParams {
		b.WriteByte(' ')
		writeAtom(b, tp)
	}
	b.WriteString(") (params")
	for _, p := range f.Params {
		b.WriteString(" (param ")
		writeAtom(b, p.Name)
		b.WriteByte(' ')
		printType(b, p.Type)
		b.WriteByte(')')
	}
	b.WriteString(") (returns")
	for _, r := range f.Returns {
		b.WriteByte(' ')
		printType(b, r)
	}
	b.WriteString(") (body")
	for _, s := range f.Body {
		b.WriteByte(' ')
		printStmt(b, s)
	}
	b.WriteString("))")
}

func printStmt(b *strings.Builder, s Statement) {
	switch v := s.(type) {
	case *LetStmt:
		b.WriteString("(let ")
		writeAtom(b, v.Name)
		b.WriteByte(' ')
		if v.Type == nil {
			b.WriteString("(notype)")
		} else {
			printType(b, v.Type)
		}
		b.WriteByte(' ')
		printExpr(b, v.Expr)
		b.WriteByte(')')
	case *AssignStmt:
		b.WriteString("(assign ")
		printLValue(b, v.LValue)
		b.WriteByte(' ')
		writeAtom(b, string(v.Op))
		b.WriteByte(' ')
		printExpr(b, v.RHS)
		b.WriteByte(')')
	case *CallStmt:
		b.WriteString("(callstmt ")
		printExpr(b, v.Call)
		b.WriteByte(')')
	case *IfStmt:
		b.WriteString("(if ")
		printExpr(b, v.Cond)
		b.WriteString(" (then")
		for _, t := range v.Then {
			b.WriteByte(' ')
			printStmt(b, t)
		}
		b.WriteString(") (else")
		for _, e := range v.Else {
			b.WriteByte(' ')
			printStmt(b, e)
		}
		b.WriteString("))")
	case *WhileStmt:
		b.WriteString("(while ")
		printExpr(b, v.Cond)
		b.WriteString(" (body")
		for _, s := range v.Body {
			b.WriteByte(' ')
			printStmt(b, s)
		}
		b.WriteString("))")
	case *ReturnStmt:
		b.WriteString("(return ")
		if v.Expr == nil {
			b.WriteString("(none)")
		} else {
			printExpr(b, v.Expr)
		}
		b.WriteByte(')')
	case *BlockStmt:
		b.WriteString("(block")
		for _, s := range v.Stmts {
			b.WriteByte(' ')
			printStmt(b, s)
		}
		b.WriteByte(')')
	case *AbortStmt:
		b.WriteString("(abort ")
		printExpr(b, v.Code)
		b.WriteByte(')')
	case *AssertStmt:
		b.WriteString("(assert ")
		printExpr(b, v.Cond)
		b.WriteByte(' ')
		printExpr(b, v.Code)
		b.WriteByte(')')
	default:
		panic(fmt.Sprintf("ast: unknown Statement %T", s))
	}
}

func printLValue(b *strings.Builder, l LValue) {
	switch v := l.(type) {
	case *VarLValue:
		b.WriteString("(lvar ")
		writeAtom(b, v.Name)
		b.WriteByte(')')
	case *FieldLValue:
		b.WriteString("(lfield ")
		printLValue(b, v.Base)
		b.WriteByte(' ')
		writeAtom(b, v.Field)
		b.WriteByte(')')
	case *IndexLValue:
		b.WriteString("(lindex ")
		printLValue(b, v.Base)
		b.WriteByte(' ')
		printExpr(b, v.Index)
		b.WriteByte(')')
	default:
		panic(fmt.Sprintf("ast: unknown LValue %T", l))
	}
}

func printExpr(b *strings.Builder, e Expression) {
	switch v := e.(type) {
	case *LiteralExpr:
		switch v.Kind {
		case LiteralInt:
			n, _ := v.SmallValue()
			fmt.Fprintf(b, "(litint %d)", n)
		case LiteralBool:
			fmt.Fprintf(b, "(litbool %t)", v.Bool)
		case LiteralAddress:
			b.WriteString("(litaddr ")
			writeAtom(b, v.Text)
			b.WriteByte(')')
		case LiteralByteString:
			b.WriteString("(litbytes ")
			writeAtom(b, v.Text)
			b.WriteByte(')')
		}
	case *VarExpr:
		b.WriteString("(var ")
		writeAtom(b, v.Name)
		b.WriteByte(')')
	case *FieldAccessExpr:
		b.WriteString("(field ")
		printExpr(b, v.Base)
		b.WriteByte(' ')
		writeAtom(b, v.Field)
		b.WriteByte(')')
	case *IndexExpr:
		b.WriteString("(index ")
		printExpr(b, v.Base)
		b.WriteByte(' ')
		printExpr(b, v.Index)
		b.WriteByte(')')
	case *BorrowExpr:
		b.WriteString("(borrow ")
		if v.Mutable {
			b.WriteString("mut ")
		} else {
			b.WriteString("imm ")
		}
		printExpr(b, v.Operand)
		b.WriteByte(')')
	case *DerefExpr:
		b.WriteString("(deref ")
		printExpr(b, v.Operand)
		b.WriteByte(')')
	case *CallExpr:
		b.WriteString("(call ")
		writeAtom(b, v.Module)
		b.WriteByte(' ')
		writeAtom(b, v.Function)
		b.WriteString(" (typeargs")
		for _, t := range v.TypeArgs {
			b.WriteByte(' ')
			printType(b, t)
		}
		b.WriteString(") (args")
		for _, a := range v.Args {
			b.WriteByte(' ')
			printExpr(b, a)
		}
		b.WriteString("))")
	case *BinaryExpr:
		b.WriteString("(binary ")
		writeAtom(b, string(v.Op))
		b.WriteByte(' ')
		printExpr(b, v.Left)
		b.WriteByte(' ')
		printExpr(b, v.Right)
		b.WriteByte(')')
	case *StructCtorExpr:
		b.WriteString("(ctor ")
		writeAtom(b, v.Module)
		b.WriteByte(' ')
		writeAtom(b, v.Struct)
		b.WriteString(" (fields")
		for _, fi := range v.Fields {
			b.WriteString(" (finit ")
			writeAtom(b, fi.Name)
			b.WriteByte(' ')
			printExpr(b, fi.Expr)
			b.WriteByte(')')
		}
		b.WriteString("))")
	case *VectorOpExpr:
		b.WriteString("(vecop ")
		writeAtom(b, string(v.Kind))
		b.WriteString(" (args")
		for _, a := range v.Args {
			b.WriteByte(' ')
			printExpr(b, a)
		}
		b.WriteString("))")
	default:
		panic(fmt.Sprintf("ast: unknown Expression %T", e))
	}
}

// itoa64 is used by the parser half (parser.go) to read back integers
// printed by printExpr; kept here to keep encode/decode symmetric in one
// file pair.
func itoa64(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }
