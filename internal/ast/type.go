package ast

import "fmt"

// Type is the sum type of Move type forms: primitive, named (struct
// instantiation), reference, tuple, vector, and generic-param. It is
// implemented as a small closed interface rather than a tagged struct so
// that the analyzer's pattern matching (§9, "polymorphism over statement
// kinds") reads as a type switch, matching the Statement/Expression
// design.
type Type interface {
	isType()
	String() string
}

// PrimitiveKind enumerates Move's built-in scalar kinds.
type PrimitiveKind string

const (
	PrimU8      PrimitiveKind = "u8"
	PrimU64     PrimitiveKind = "u64"
	PrimU128    PrimitiveKind = "u128"
	PrimBool    PrimitiveKind = "bool"
	PrimAddress PrimitiveKind = "address"
)

// PrimitiveType is a built-in scalar type.
type PrimitiveType struct{ Kind PrimitiveKind }

func (*PrimitiveType) isType()         {}
func (p *PrimitiveType) String() string { return string(p.Kind) }

// VectorType is vector<T>.
type VectorType struct{ Elem Type }

func (*VectorType) isType()         {}
func (v *VectorType) String() string { return fmt.Sprintf("vector<%s>", v.Elem) }

// NamedType is a reference to a module-qualified struct, optionally
// instantiated with type arguments.
type NamedType struct {
	Module string
	Struct string
	Args   []Type
}

func (*NamedType) isType() {}
func (n *NamedType) String() string {
	if len(n.Args) == 0 {
		return fmt.Sprintf("%s::%s", n.Module, n.Struct)
	}
	s := fmt.Sprintf("%s::%s<", n.Module, n.Struct)
	for i, a := range n.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ">"
}

// RefType is &T or &mut T.
type RefType struct {
	Target  Type
	Mutable bool
}

func (*RefType) isType() {}
func (r *RefType) String() string {
	if r.Mutable {
		return fmt.Sprintf("&mut %s", r.Target)
	}
	return fmt.Sprintf("&%s", r.Target)
}

// TupleType is a fixed-arity tuple, used for multi-value returns.
type TupleType struct{ Elems []Type }

func (*TupleType) isType() {}
func (t *TupleType) String() string {
	s := "("
	for i, e := range t.Elems {
		if i > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s + ")"
}

// GenericParamType references one of the enclosing function's declared
// type parameters by name.
type GenericParamType struct{ Name string }

func (*GenericParamType) isType()         {}
func (g *GenericParamType) String() string { return g.Name }

// IsKeyObject reports whether t names a struct with the `key` ability,
// given a symbol table to resolve the struct definition. Non-named types
// are never key objects.
func IsKeyObject(t Type, mod *Module) bool {
	n, ok := t.(*NamedType)
	if !ok {
		return false
	}
	s, ok := mod.LookupStruct(n.Struct)
	if !ok {
		return false
	}
	return s.HasAbility(AbilityKey)
}

// IsCapability reports whether t names a struct whose name ends in "Cap",
// the default heuristic from spec.md §4.4 (a configured set can widen
// this; see internal/config).
func IsCapability(t Type, extra map[string]bool) bool {
	n, ok := t.(*NamedType)
	if !ok {
		return false
	}
	if len(n.Struct) > 3 && n.Struct[len(n.Struct)-3:] == "Cap" {
		return true
	}
	return extra[n.Struct]
}
