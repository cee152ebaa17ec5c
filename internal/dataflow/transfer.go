package dataflow

import (
	"fmt"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/finding"
	"github.com/hydra-analyzer/hydra/internal/lattice"
)

// transfer applies one statement's transfer function to env, per the
// per-statement rules enumerated in spec.md §4.2, and returns the
// resulting (forked, not mutated) environment. Side effects on
// a.res (leaks, side tables) are recorded here too, since the
// per-statement environment is exactly the context those tables need.
func (a *analyzer) transfer(env *lattice.Environment, stmt ast.Statement) *lattice.Environment {
	out := env.Fork()

	switch s := stmt.(type) {
	case *ast.LetStmt:
		a.transferLet(out, env, s)

	case *ast.AssignStmt:
		a.transferAssign(out, env, s)

	case *ast.CallStmt:
		a.res.Calls = append(a.res.Calls, CallSite{StmtIndex: s.Index(), Call: s.Call, Pre: env})
		a.checkCallArgs(out, env, s.Call, s.Index())

	case *ast.ReturnStmt:
		a.res.Returns = append(a.res.Returns, ReturnSite{StmtIndex: s.Index(), Expr: s.Expr, Pre: env})
		if s.Expr != nil {
			a.checkReturnEscape(env, s.Expr, s.Index())
			for _, rt := range a.fn.Returns {
				if _, isRef := rt.(*ast.RefType); !isRef {
					continue
				}
				// An OkRef returned through a reference-typed result
				// escapes to the caller: promote it in the post-state.
				for _, name := range collectVarRefs(s.Expr) {
					if v := env.Get(name); v.Ref == lattice.OkRef {
						v.Ref = lattice.InvRef
						out.Set(name, v)
					}
				}
				break
			}
		}

	case *ast.AssertStmt:
		a.res.Asserts = append(a.res.Asserts, AssertSite{StmtIndex: s.Index(), Cond: s.Cond})
		a.applyAssertFacts(out, s.Cond)

	case *ast.AbortStmt, *ast.IfStmt, *ast.WhileStmt, *ast.BlockStmt:
		// Branch/loop headers and block groupings carry no direct
		// transfer of their own at the block-statement level; their
		// bodies are separate CFG blocks already threaded through the
		// worklist. AbortStmt ends the block with no successor.

	default:
		// Unrecognized statement kind (spec.md §4.7): treat as an
		// opaque statement that widens every in-scope reference to
		// InvRef and clears the *-checked bits of every in-scope
		// variable, then continue rather than aborting the whole analysis.
		a.widenOpaque(out, stmt)
	}

	return out
}

func (a *analyzer) transferLet(out, env *lattice.Environment, s *ast.LetStmt) {
	switch e := s.Expr.(type) {
	case *ast.BorrowExpr:
		val := lattice.OkRef
		if a.borrowsInvariantField(e) {
			val = lattice.InvRef
		}
		out.Set(s.Name, lattice.VarState{Ref: val})

	case *ast.StructCtorExpr:
		out.Set(s.Name, a.structCtorState(env, e))

	case *ast.VarExpr:
		// Move: the new local inherits the source variable's full state.
		out.Set(s.Name, env.Get(e.Name))

	case *ast.CallExpr:
		a.res.Calls = append(a.res.Calls, CallSite{StmtIndex: s.Index(), Call: e, Pre: env, AssignedTo: s.Name})
		a.checkCallArgs(out, env, e, s.Index())
		out.Set(s.Name, lattice.VarState{Ref: lattice.NonRef})

	default:
		out.Set(s.Name, lattice.VarState{Ref: lattice.NonRef})
	}
}

// borrowsInvariantField implements spec.md §4.2's heuristic: a borrow
// of a field path inside a parameter whose struct declares
// invariant-relevant fields (any field other than `id` of a
// `key`-having struct, unless the field's type is Copy) widens to
// InvRef.
func (a *analyzer) borrowsInvariantField(b *ast.BorrowExpr) bool {
	fa, ok := b.Operand.(*ast.FieldAccessExpr)
	if !ok {
		return false
	}
	base, ok := fa.Base.(*ast.VarExpr)
	if !ok {
		return false
	}
	param, ok := a.paramByName(base.Name)
	if !ok {
		return false
	}
	structType := derefType(param.Type)
	named, ok := structType.(*ast.NamedType)
	if !ok {
		return false
	}
	st, ok := a.mod.LookupStruct(named.Struct)
	if !ok || !st.HasAbility(ast.AbilityKey) {
		return false
	}
	if fa.Field == "id" {
		return false
	}
	ft, ok := st.FieldType(fa.Field)
	if !ok {
		return false
	}
	if prim, ok := ft.(*ast.NamedType); ok && len(prim.Args) == 0 {
		// A named field type could itself declare `copy`; resolve it if
		// it is a struct in this module and check the ability.
		if fs, ok := a.mod.LookupStruct(prim.Struct); ok && fs.HasAbility(ast.AbilityCopy) {
			return false
		}
	}
	return true
}

func (a *analyzer) paramByName(name string) (ast.Parameter, bool) {
	for _, p := range a.fn.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ast.Parameter{}, false
}

// structCtorState computes the VarState for a newly constructed struct,
// seeding an ObjectFact when the constructor initializes a UID field
// via object::new, and tainting the value to InvRef when any field
// initializer is itself a reference (spec.md §4.2 "StructCtor").
func (a *analyzer) structCtorState(env *lattice.Environment, ctor *ast.StructCtorExpr) lattice.VarState {
	state := lattice.VarState{Ref: lattice.NonRef}

	st, ok := a.mod.LookupStruct(ctor.Struct)
	refTainted := false
	for _, f := range ctor.Fields {
		if exprIsReference(env, f.Expr) {
			refTainted = true
		}
	}
	if refTainted {
		state.Ref = lattice.InvRef
	}

	if ok && st.HasAbility(ast.AbilityKey) {
		uidField, hasUID := st.UIDField()
		fact := &lattice.ObjectFact{CreatedHere: true}
		allInit := true
		sawID := !hasUID
		for _, f := range ctor.Fields {
			if hasUID && f.Name == uidField {
				if call, ok := f.Expr.(*ast.CallExpr); ok && call.QualifiedName() == "object::new" {
					sawID = true
				} else {
					allInit = false
				}
				continue
			}
			if isZeroOrDefault(f.Expr) {
				allInit = false
			}
		}
		fact.Initialized = sawID && allInit
		state.Obj = fact
	}
	return state
}

func isZeroOrDefault(e ast.Expression) bool {
	lit, ok := e.(*ast.LiteralExpr)
	if !ok {
		return false
	}
	if v, ok := lit.SmallValue(); ok {
		return v == 0
	}
	return lit.Kind == ast.LiteralAddress && lit.Text == "@0x0"
}

func exprIsReference(env *lattice.Environment, e ast.Expression) bool {
	switch x := e.(type) {
	case *ast.BorrowExpr:
		return true
	case *ast.VarExpr:
		return env.Get(x.Name).Ref != lattice.NonRef
	default:
		return false
	}
}

func (a *analyzer) transferAssign(out, env *lattice.Environment, s *ast.AssignStmt) {
	root := s.LValue.RootVar()

	if fl, ok := s.LValue.(*ast.FieldLValue); ok {
		a.res.FieldWrites = append(a.res.FieldWrites, FieldWrite{
			StmtIndex: s.Index(),
			Root:      root,
			Path:      fl.Path(),
			Op:        s.Op,
			RHS:       s.RHS,
			Pre:       env,
		})
	}

	// spec.md §4.2 "Assign": a reference written into a struct
	// constructor that is later returned gets promoted to InvRef; a
	// write of a reference into the same &mut parameter it was borrowed
	// from is not a leak. Model the common case: if the RHS is itself a
	// reference into the same root the LHS is rooted at, no widening;
	// otherwise if RHS is reference-typed, widen the root to InvRef as
	// a conservative approximation of "this reference now aliases
	// mutable state reachable beyond the statement".
	if exprIsReference(env, s.RHS) && !referencesSameRoot(s.RHS, root) {
		state := env.Get(root)
		state.Ref = lattice.InvRef
		out.Set(root, state)
	}
}

func referencesSameRoot(e ast.Expression, root string) bool {
	switch x := e.(type) {
	case *ast.VarExpr:
		return x.Name == root
	case *ast.BorrowExpr:
		return referencesSameRoot(x.Operand, root)
	case *ast.FieldAccessExpr:
		return referencesSameRoot(x.Base, root)
	default:
		return false
	}
}

// checkReturnEscape implements spec.md §4.2 "Return e": InvRef
// sub-expressions emit ReferenceEscape. The conservative promotion of
// an OkRef reference returned through a reference-typed result to
// InvRef is applied to the Return statement's post-state by transfer.
func (a *analyzer) checkReturnEscape(env *lattice.Environment, expr ast.Expression, idx int) {
	vars := collectVarRefs(expr)
	for _, name := range vars {
		v := env.Get(name)
		if v.Ref == lattice.InvRef {
			a.res.Leaks = append(a.res.Leaks, finding.SafetyViolation{
				Kind:     finding.KindReferenceEscape,
				Severity: finding.High,
				Location: a.loc(idx),
				Message:  fmt.Sprintf("reference %q escapes function %q through return", name, a.fn.Name),
			})
		}
	}
}

// collectVarRefs returns every variable name referenced anywhere within
// expr (through field access, deref, borrow, or direct use), used to
// find the reference operands of a return expression.
func collectVarRefs(e ast.Expression) []string {
	var out []string
	var walk func(ast.Expression)
	walk = func(e ast.Expression) {
		switch x := e.(type) {
		case *ast.VarExpr:
			out = append(out, x.Name)
		case *ast.FieldAccessExpr:
			walk(x.Base)
		case *ast.IndexExpr:
			walk(x.Base)
			walk(x.Index)
		case *ast.BorrowExpr:
			walk(x.Operand)
		case *ast.DerefExpr:
			walk(x.Operand)
		case *ast.BinaryExpr:
			walk(x.Left)
			walk(x.Right)
		case *ast.CallExpr:
			for _, arg := range x.Args {
				walk(arg)
			}
		case *ast.StructCtorExpr:
			for _, f := range x.Fields {
				walk(f.Expr)
			}
		case *ast.VectorOpExpr:
			for _, arg := range x.Args {
				walk(arg)
			}
		}
	}
	walk(e)
	return out
}

// checkCallArgs implements spec.md §4.2 "Call f(args...)": cross-module
// calls receiving an InvRef, key-object, or capability argument emit
// BoundaryCrossing, and collection-insert builtins of reference-typed
// elements emit StoredReference.
func (a *analyzer) checkCallArgs(out, env *lattice.Environment, call *ast.CallExpr, idx int) {
	if call == nil {
		return
	}
	crossesModule := call.Module != "" && call.Module != a.mod.Name
	for _, arg := range call.Args {
		name, ok := argRootVar(arg)
		if !ok {
			continue
		}
		v := env.Get(name)
		if crossesModule && (v.Ref == lattice.InvRef || v.Obj != nil || v.Cap != nil) {
			a.res.Leaks = append(a.res.Leaks, finding.SafetyViolation{
				Kind:     finding.KindBoundaryCrossing,
				Severity: finding.High,
				Location: a.loc(idx),
				Message:  fmt.Sprintf("call to %q crosses module boundary with a tainted argument %q", call.QualifiedName(), name),
			})
		}
	}

	if op, isVecOp := vectorOpKindOf(call); isVecOp {
		for _, arg := range call.Args {
			name, ok := argRootVar(arg)
			if !ok {
				continue
			}
			if env.Get(name).Ref != lattice.NonRef {
				a.res.Leaks = append(a.res.Leaks, finding.SafetyViolation{
					Kind:     finding.KindStoredReference,
					Severity: finding.Medium,
					Location: a.loc(idx),
					Message:  fmt.Sprintf("%s stores a reference-typed value %q", op, name),
				})
			}
		}
	}

	a.applyObjectLifecycle(out, env, call)
}

// applyObjectLifecycle advances the ObjectFact state machine of spec.md
// §4.6: transfer::transfer/public_transfer sets Transferred;
// transfer::share_object sets Shared. The internal/object rule pack
// reads these bits back out of Pre environments to decide
// UnsafeTransfer/UseAfterTransfer/InvalidSharedAccess.
func (a *analyzer) applyObjectLifecycle(out, env *lattice.Environment, call *ast.CallExpr) {
	name, ok := firstArgVar(call)
	if !ok {
		return
	}
	v := env.Get(name)
	if v.Obj == nil {
		return
	}
	fact := *v.Obj
	switch call.QualifiedName() {
	case "transfer::transfer", "transfer::public_transfer":
		fact.Transferred = true
	case "transfer::share_object":
		fact.Shared = true
	default:
		return
	}
	v.Obj = &fact
	out.Set(name, v)
}

func firstArgVar(call *ast.CallExpr) (string, bool) {
	if len(call.Args) == 0 {
		return "", false
	}
	return argRootVar(call.Args[0])
}

func argRootVar(e ast.Expression) (string, bool) {
	switch x := e.(type) {
	case *ast.VarExpr:
		return x.Name, true
	case *ast.BorrowExpr:
		return argRootVar(x.Operand)
	case *ast.FieldAccessExpr:
		return argRootVar(x.Base)
	default:
		return "", false
	}
}

func vectorOpKindOf(call *ast.CallExpr) (string, bool) {
	switch call.QualifiedName() {
	case "vector::push_back", "table::add", "dynamic_field::add":
		return call.QualifiedName(), true
	default:
		return "", false
	}
}

// widenOpaque implements spec.md §4.7: an unrecognized AST node widens
// every in-scope reference (every variable that is not NonRef) to InvRef
// and clears the *-checked bits of every in-scope variable; the node's
// contents are not inspected, so bits are cleared whether or not the
// statement mentions the variable. Since this
// package's Statement union is closed and every case above is handled
// explicitly, this path is reached only by test fixtures exercising the
// recovery behavior itself.
func (a *analyzer) widenOpaque(out *lattice.Environment, stmt ast.Statement) {
	a.res.Warnings = append(a.res.Warnings, finding.SafetyViolation{
		Kind:     finding.KindAnalysisWarning,
		Severity: finding.Info,
		Location: a.loc(stmt.Index()),
		Message:  "unrecognized statement node; widening in-scope state conservatively",
	})
	for _, name := range out.Names() {
		v := out.Get(name)
		if v.Ref != lattice.NonRef {
			v.Ref = lattice.InvRef
		}
		if v.Obj != nil {
			v.Obj = &lattice.ObjectFact{
				CreatedHere: v.Obj.CreatedHere,
				Initialized: v.Obj.Initialized,
				Transferred: v.Obj.Transferred,
				Shared:      v.Obj.Shared,
			}
		}
		if v.Cap != nil {
			v.Cap = &lattice.CapabilityFact{PermissionsMask: v.Cap.PermissionsMask}
		}
		out.Set(name, v)
	}
}

// loc builds the Location a finding reports at stmtIdx, recovering the
// statement's source Line (if any) from the flattened body so a
// suppression pragma scanned at that line actually matches.
func (a *analyzer) loc(stmtIdx int) finding.Location {
	loc := finding.Location{Module: a.mod.Name, Function: a.fn.Name, StmtIndex: stmtIdx}
	if stmtIdx >= 0 && stmtIdx < len(a.stmts) {
		loc.Line = a.stmts[stmtIdx].Line()
	}
	return loc
}
