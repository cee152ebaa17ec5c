package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleModule() *Module {
	return &Module{
		Name:    "bank",
		Address: "0x1",
		Imports: []string{"sui::object", "sui::transfer"},
		Structs: []*Struct{
			{
				Name:      "Vault",
				Address:   "0x1",
				Abilities: []Ability{AbilityKey, AbilityStore},
				Fields: []Field{
					{Name: "id", Type: &NamedType{Module: "object", Struct: "UID"}},
					{Name: "balance", Type: &PrimitiveType{Kind: PrimU64}},
				},
			},
		},
		Funcs: []*Function{
			{
				Name:       "deposit",
				Visibility: VisibilityPublic,
				Params: []Parameter{
					{Name: "vault", Type: &RefType{Target: &NamedType{Module: "bank", Struct: "Vault"}, Mutable: true}},
					{Name: "amount", Type: &PrimitiveType{Kind: PrimU64}},
				},
				Returns: nil,
				Body: []Statement{
					&AssertStmt{Cond: &BinaryExpr{Op: OpGt, Left: &VarExpr{Name: "amount"}, Right: NewIntLiteral(0)}, Code: NewIntLiteral(1)},
					&AssignStmt{
						LValue: &FieldLValue{Base: &VarLValue{Name: "vault"}, Field: "balance"},
						Op:     AssignAdd,
						RHS:    &VarExpr{Name: "amount"},
					},
					&ReturnStmt{},
				},
			},
		},
	}
}

func TestPrintParseRoundTrip(t *testing.T) {
	m := sampleModule()
	require.NoError(t, m.Validate())

	text := Print(m)
	require.NotEmpty(t, text)

	reparsed, err := Parse(text)
	require.NoError(t, err)

	require.Equal(t, text, Print(reparsed), "round trip through Print/Parse must be stable")
}

func TestStructInvariants(t *testing.T) {
	m := &Module{
		Name: "bad",
		Structs: []*Struct{
			{Name: "NoUID", Abilities: []Ability{AbilityKey}},
		},
	}
	require.Error(t, m.Validate())
}

func TestDuplicateStructName(t *testing.T) {
	m := &Module{
		Name: "dup",
		Structs: []*Struct{
			{Name: "A"},
			{Name: "A"},
		},
	}
	require.Error(t, m.Validate())
}

func TestParseStampsStatementLine(t *testing.T) {
	src := "(module \"m\" \"0x1\" (imports) (structs) (funcs (func \"f\" \"public\" (typeparams) (params) (returns) (body\n" +
		"  (assert (litbool true) (litint 1))\n" +
		"  (return (none))\n" +
		"))))"
	m, err := Parse(src)
	require.NoError(t, err)

	stmts := FlattenBody(m.Funcs[0].Body)
	require.Len(t, stmts, 2)
	require.Equal(t, 2, stmts[0].Line(), "assert statement sits on line 2")
	require.Equal(t, 3, stmts[1].Line(), "return statement sits on line 3")
}
