// Package ast defines the in-memory representation of a parsed Sui Move
// module that the analysis engine consumes. Construction of this tree from
// Move source text is an external collaborator's job (the Move parser);
// this package only models the shape and provides a deterministic
// Print/Parse round trip used to test the model itself.
package ast

// Ability is one of the four Move struct abilities.
type Ability string

const (
	AbilityKey   Ability = "key"
	AbilityStore Ability = "store"
	AbilityCopy  Ability = "copy"
	AbilityDrop  Ability = "drop"
)

// Visibility is a function's declared visibility.
type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityPublic       Visibility = "public"
	VisibilityPublicFriend Visibility = "public(friend)"
	VisibilityEntry        Visibility = "entry"
)

// Module is a single compiled Move module.
//
// Invariant: struct names are unique within the module; function names
// are unique within the module. Callers that build a Module by hand
// (tests, fixture loaders) should call Module.Validate to check this.
type Module struct {
	Name    string
	Address string
	Imports []string
	Structs []*Struct
	Funcs   []*Function

	// structIndex and funcIndex are built by Validate, read by Lookup*, and
	// back the index-based symbol table described in the design notes:
	// cross-references inside the tree are by name, resolved through
	// these maps rather than owning pointers, so cyclic type references
	// (a struct field referencing the enclosing struct) need no special
	// handling.
	structIndex map[string]int
	funcIndex   map[string]int
}

// Field is one named, typed field of a Struct.
type Field struct {
	Name string
	Type Type
}

// Struct is a Move struct definition.
type Struct struct {
	Name     string
	Address  string
	Abilities []Ability
	Fields   []Field
}

// HasAbility reports whether the struct declares the given ability.
func (s *Struct) HasAbility(a Ability) bool {
	for _, x := range s.Abilities {
		if x == a {
			return true
		}
	}
	return false
}

// UIDField returns the name of the struct's designated UID field, if any.
// By convention (and by spec.md's invariant that a `key` struct has
// exactly one UID field) this is a field named "id" of type
// named("object", "UID").
func (s *Struct) UIDField() (string, bool) {
	for _, f := range s.Fields {
		if n, ok := f.Type.(*NamedType); ok && n.Module == "object" && n.Struct == "UID" {
			return f.Name, true
		}
	}
	return "", false
}

// FieldType returns the declared type of a named field, if present.
func (s *Struct) FieldType(name string) (Type, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// Parameter is one formal parameter of a Function.
type Parameter struct {
	Name string
	Type Type
}

// IsReference reports whether the parameter's declared type is a
// reference (mutable or immutable).
func (p Parameter) IsReference() bool {
	_, ok := p.Type.(*RefType)
	return ok
}

// Function is a Move function definition.
type Function struct {
	Name       string
	Visibility Visibility
	Params     []Parameter
	Returns    []Type
	Body       []Statement

	// TypeParams records the function's generic type-parameter names, in
	// declaration order; a Type in Params/Returns/Body may reference one
	// of these via GenericParam.
	TypeParams []string
}

// IsPublicLike reports whether external callers (including cross-module
// calls) can invoke this function directly. Entry functions are callable
// only as transaction entry points, not from other modules, but are
// still treated as externally-reachable for boundary-crossing purposes.
func (f *Function) IsPublicLike() bool {
	switch f.Visibility {
	case VisibilityPublic, VisibilityPublicFriend, VisibilityEntry:
		return true
	default:
		return false
	}
}
