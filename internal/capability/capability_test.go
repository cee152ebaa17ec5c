package capability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/cfg"
	"github.com/hydra-analyzer/hydra/internal/config"
	"github.com/hydra-analyzer/hydra/internal/dataflow"
)

func adminModule() *ast.Module {
	m := &ast.Module{
		Name: "admin",
		Structs: []*ast.Struct{
			{
				Name:      "AdminCap",
				Abilities: []ast.Ability{ast.AbilityKey, ast.AbilityStore},
				Fields: []ast.Field{
					{Name: "id", Type: &ast.NamedType{Module: "object", Struct: "UID"}},
					{Name: "expiry", Type: &ast.PrimitiveType{Kind: ast.PrimU64}},
					{Name: "vault_id", Type: &ast.PrimitiveType{Kind: ast.PrimAddress}},
				},
			},
		},
	}
	_ = m.Validate()
	return m
}

func analyze(t *testing.T, m *ast.Module, fn *ast.Function) *dataflow.Result {
	t.Helper()
	m.Funcs = append(m.Funcs, fn)
	require.NoError(t, m.Validate())
	graph := cfg.Build(fn)
	return dataflow.Analyze(m, fn, graph, config.Default())
}

// TestCapabilityLeakOnCrossModulePass exercises spec.md §4.4 "Leak":
// passing a capability by value to a cross-module call flags
// CapabilityLeak.
func TestCapabilityLeakOnCrossModulePass(t *testing.T) {
	m := adminModule()
	fn := &ast.Function{
		Name:       "hand_off",
		Visibility: ast.VisibilityPublic,
		Params: []ast.Parameter{
			{Name: "cap", Type: &ast.NamedType{Module: "admin", Struct: "AdminCap"}},
		},
		Body: []ast.Statement{
			&ast.CallStmt{Call: &ast.CallExpr{Module: "other", Function: "accept", Args: []ast.Expression{
				&ast.VarExpr{Name: "cap"},
			}}},
			&ast.ReturnStmt{},
		},
	}
	res := analyze(t, m, fn)
	vs := Check(m, fn, res, config.Default())

	require.NotEmpty(t, vs)
	require.Equal(t, "CapabilityLeak", string(vs[0].Kind))
}

// TestMissingExpiryCheckOnCapUse exercises spec.md §4.4 "Expiry": using
// a capability carrying an `expiry` field, with no dominating
// clock::timestamp_ms comparison, flags MissingExpiryCheck.
func TestMissingExpiryCheckOnCapUse(t *testing.T) {
	m := adminModule()
	fn := &ast.Function{
		Name:       "use_cap",
		Visibility: ast.VisibilityPublic,
		Params: []ast.Parameter{
			{Name: "cap", Type: &ast.NamedType{Module: "admin", Struct: "AdminCap"}},
		},
		Body: []ast.Statement{
			&ast.CallStmt{Call: &ast.CallExpr{Module: "", Function: "do_admin_thing", Args: []ast.Expression{
				&ast.VarExpr{Name: "cap"},
			}}},
			&ast.ReturnStmt{},
		},
	}
	res := analyze(t, m, fn)
	vs := Check(m, fn, res, config.Default())

	var found bool
	for _, v := range vs {
		if string(v.Kind) == "MissingExpiryCheck" {
			found = true
		}
	}
	require.True(t, found, "expected MissingExpiryCheck among %+v", vs)
}

// TestExpiryCheckSatisfiesRule exercises the positive case: a dominating
// clock::timestamp_ms comparison against cap.expiry suppresses
// MissingExpiryCheck.
func TestExpiryCheckSatisfiesRule(t *testing.T) {
	m := adminModule()
	fn := &ast.Function{
		Name:       "use_cap_checked",
		Visibility: ast.VisibilityPublic,
		Params: []ast.Parameter{
			{Name: "cap", Type: &ast.NamedType{Module: "admin", Struct: "AdminCap"}},
			{Name: "clock", Type: &ast.RefType{Target: &ast.NamedType{Module: "clock", Struct: "Clock"}}},
		},
		Body: []ast.Statement{
			&ast.AssertStmt{
				Cond: &ast.BinaryExpr{
					Op:    ast.OpLt,
					Left:  &ast.CallExpr{Module: "clock", Function: "timestamp_ms", Args: []ast.Expression{&ast.VarExpr{Name: "clock"}}},
					Right: &ast.FieldAccessExpr{Base: &ast.VarExpr{Name: "cap"}, Field: "expiry"},
				},
				Code: ast.NewIntLiteral(1),
			},
			&ast.CallStmt{Call: &ast.CallExpr{Module: "", Function: "do_admin_thing", Args: []ast.Expression{
				&ast.VarExpr{Name: "cap"},
			}}},
			&ast.ReturnStmt{},
		},
	}
	res := analyze(t, m, fn)
	vs := Check(m, fn, res, config.Default())

	for _, v := range vs {
		require.NotEqual(t, "MissingExpiryCheck", string(v.Kind))
	}
}

// TestPrivilegeEscalationLiteralAllPermissions exercises spec.md §4.4
// "Privilege escalation": assigning the 0xFF literal into a
// `permissions` field flags PrivilegeEscalation.
func TestPrivilegeEscalationLiteralAllPermissions(t *testing.T) {
	m := &ast.Module{
		Name: "admin",
		Structs: []*ast.Struct{
			{
				Name:      "RoleCap",
				Abilities: []ast.Ability{ast.AbilityKey, ast.AbilityStore},
				Fields: []ast.Field{
					{Name: "id", Type: &ast.NamedType{Module: "object", Struct: "UID"}},
					{Name: "permissions", Type: &ast.PrimitiveType{Kind: ast.PrimU64}},
				},
			},
		},
	}
	_ = m.Validate()
	fn := &ast.Function{
		Name:       "elevate",
		Visibility: ast.VisibilityPublic,
		Params: []ast.Parameter{
			{Name: "cap", Type: &ast.RefType{Target: &ast.NamedType{Module: "admin", Struct: "RoleCap"}, Mutable: true}},
		},
		Body: []ast.Statement{
			&ast.AssignStmt{
				LValue: &ast.FieldLValue{Base: &ast.VarLValue{Name: "cap"}, Field: "permissions"},
				Op:     ast.AssignSet,
				RHS:    ast.NewIntLiteral(0xFF),
			},
			&ast.ReturnStmt{},
		},
	}
	res := analyze(t, m, fn)
	vs := Check(m, fn, res, config.Default())

	require.Len(t, vs, 1)
	require.Equal(t, "PrivilegeEscalation", string(vs[0].Kind))
}
