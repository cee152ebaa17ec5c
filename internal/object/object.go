// Package object implements the object state tracker of spec.md §4.3:
// lifecycle (construction/initialization/transfer/share), transfer
// safety, invariant-field guard, and arithmetic-safety rules, consulting
// the per-statement environments and side tables internal/dataflow
// already computed rather than re-running the fixpoint.
//
// Grounded on the state machine of spec.md §4.6 and on
// internal/compiler/validate.go's "named constant per rule" shape from
// the teacher repository (mirrored here by finding.Kind), with exact
// field names (`locked`, `frozen`, `min_*`/`max_*`) cross-checked
// against original_source/src/analyzer/object_lifecycle.rs and
// invariant_tracking.rs.
package object

import (
	"fmt"
	"strings"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/config"
	"github.com/hydra-analyzer/hydra/internal/dataflow"
	"github.com/hydra-analyzer/hydra/internal/finding"
)

// Check runs every object-lifecycle rule of spec.md §4.3 over one
// function's dataflow result and returns the violations found, in
// statement-index order (spec.md §5 "deterministic order").
func Check(mod *ast.Module, fn *ast.Function, res *dataflow.Result, cfg config.Config) []finding.SafetyViolation {
	c := &checker{mod: mod, fn: fn, res: res, cfg: cfg, stmts: ast.FlattenBody(fn.Body)}
	c.checkTransfersAndShares()
	c.checkInvariantWrites()
	c.checkArithmetic()
	c.checkResourceLeaks()
	c.checkDynamicFieldCleanup()
	sortByStmtIndex(c.out)
	return c.out
}

type checker struct {
	mod   *ast.Module
	fn    *ast.Function
	res   *dataflow.Result
	cfg   config.Config
	out   []finding.SafetyViolation
	stmts []ast.Statement
}

// loc builds the Location a finding reports at idx, recovering the
// statement's source Line (if any) from the flattened body so a
// suppression pragma scanned at that line actually matches.
func (c *checker) loc(idx int) finding.Location {
	loc := finding.Location{Module: c.mod.Name, Function: c.fn.Name, StmtIndex: idx}
	if idx >= 0 && idx < len(c.stmts) {
		loc.Line = c.stmts[idx].Line()
	}
	return loc
}

// checkTransfersAndShares implements spec.md §4.3 "Transfer" and
// "Share": transfer::transfer without a recipient check emits
// UnsafeTransfer; any further use of a transferred/shared variable
// emits UseAfterTransfer; mutation of a shared object without a
// consensus check dominating it emits InvalidSharedAccess (the latter
// is cross-checked again, at higher specificity, by internal/verifier's
// MissingConsensus rule over raw field writes).
func (c *checker) checkTransfersAndShares() {
	transferredAt := map[string]int{}

	for _, call := range c.res.Calls {
		switch call.Call.QualifiedName() {
		case "transfer::transfer", "transfer::public_transfer":
			c.checkTransferCall(call)
			if name, ok := firstArgVar(call.Call); ok {
				transferredAt[name] = call.StmtIndex
			}
		}
	}

	for _, call := range c.res.Calls {
		for _, arg := range call.Call.Args {
			name, ok := argRootVar(arg)
			if !ok {
				continue
			}
			if at, done := transferredAt[name]; done && call.StmtIndex > at {
				c.out = append(c.out, finding.SafetyViolation{
					Kind:     finding.KindUseAfterTransfer,
					Severity: finding.High,
					Location: c.loc(call.StmtIndex),
					Message:  fmt.Sprintf("%q is used after being transferred at statement %d", name, at),
				})
			}
		}
	}

	for _, fw := range c.res.FieldWrites {
		v := fw.Pre.Get(fw.Root)
		if v.Obj == nil || !v.Obj.Shared {
			continue
		}
		if !v.Obj.ConsensusChecked {
			c.out = append(c.out, finding.SafetyViolation{
				Kind:     finding.KindInvalidSharedAccess,
				Severity: finding.High,
				Location: c.loc(fw.StmtIndex),
				Message:  fmt.Sprintf("mutation of shared object %q without a dominating consensus::verify()/assert_synchronized()", fw.Root),
			})
		}
	}
}

func (c *checker) checkTransferCall(call dataflow.CallSite) {
	name, ok := firstArgVar(call.Call)
	if !ok {
		return
	}
	v := call.Pre.Get(name)
	if v.Obj != nil && v.Obj.OwnerChecked {
		return
	}
	if len(call.Call.Args) > 1 && isAssertionHelperCall(call.Call, c.cfg.Hydra.RecipientAssertionHelpers) {
		return
	}
	c.out = append(c.out, finding.SafetyViolation{
		Kind:     finding.KindUnsafeTransfer,
		Severity: finding.High,
		Location: c.loc(call.StmtIndex),
		Message:  fmt.Sprintf("transfer of %q has no dominating recipient/owner check", name),
	})
}

func isAssertionHelperCall(call *ast.CallExpr, extra []string) bool {
	name := call.Function
	if strings.Contains(name, "is_valid_recipient") {
		return true
	}
	for _, h := range extra {
		if h == name {
			return true
		}
	}
	return false
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

// isInvariantField matches the default invariant-protected field name
// patterns of spec.md §4.3: `locked`, `frozen`, `min_*`/`max_*`, and
// any field whose name ends in a timestamp-ish suffix.
func isInvariantField(name string) bool {
	switch {
	case name == "locked" || name == "frozen":
		return true
	case strings.HasPrefix(name, "min_") || strings.HasPrefix(name, "max_"):
		return true
	case strings.HasSuffix(name, "_ms") || strings.HasSuffix(name, "_timestamp"):
		return true
	default:
		return false
	}
}

// checkInvariantWrites implements spec.md §4.3 "Invariant fields": a
// write to an invariant-protected field (matched by field name only; the
// root's struct type and abilities are not examined) without a guarding
// assert! dominating it emits InvariantViolation.
func (c *checker) checkInvariantWrites() {
	for _, fw := range c.res.FieldWrites {
		if len(fw.Path) == 0 {
			continue
		}
		leaf := fw.Path[len(fw.Path)-1]
		if !isInvariantField(leaf) {
			continue
		}
		v := fw.Pre.Get(fw.Root)
		if v.Obj != nil && v.Obj.InvariantGuarded {
			continue
		}
		c.out = append(c.out, finding.SafetyViolation{
			Kind:     finding.KindInvariantViolation,
			Severity: finding.Medium,
			Location: c.loc(fw.StmtIndex),
			Message:  fmt.Sprintf("write to invariant-protected field %q.%s without a dominating guard assert!", fw.Root, leaf),
		})
	}
}

// checkArithmetic implements spec.md §4.3 "Arithmetic" over field
// writes: every `+=`/`*=` write and every `+`/`*` right-hand side emits
// UncheckedArithmetic, and every `-=` write and every `-` right-hand side
// emits PossibleUnderflow; neither the field's declared type nor any
// preceding assert! is examined. Division emits DivByZero unless the
// divisor is a non-zero literal.
func (c *checker) checkArithmetic() {
	for _, fw := range c.res.FieldWrites {
		switch fw.Op {
		case ast.AssignAdd, ast.AssignMul:
			c.out = append(c.out, finding.SafetyViolation{
				Kind:     finding.KindUncheckedArithmetic,
				Severity: finding.Medium,
				Location: c.loc(fw.StmtIndex),
				Message:  fmt.Sprintf("arithmetic write to %q is not preceded by an overflow-predicate assertion", fieldPath(fw)),
			})
		case ast.AssignSub:
			c.out = append(c.out, finding.SafetyViolation{
				Kind:     finding.KindPossibleUnderflow,
				Severity: finding.Medium,
				Location: c.loc(fw.StmtIndex),
				Message:  fmt.Sprintf("subtraction into %q has no lower-bound check", fieldPath(fw)),
			})
		case ast.AssignDiv:
			if !divisorGuarded(fw) {
				c.out = append(c.out, finding.SafetyViolation{
					Kind:     finding.KindDivByZero,
					Severity: finding.Medium,
					Location: c.loc(fw.StmtIndex),
					Message:  fmt.Sprintf("division assigning %q has no non-zero divisor check", fieldPath(fw)),
				})
			}
		}

		if bin, ok := fw.RHS.(*ast.BinaryExpr); ok {
			c.checkBinaryArithmetic(fw, bin)
		}
	}
}

func (c *checker) checkBinaryArithmetic(fw dataflow.FieldWrite, bin *ast.BinaryExpr) {
	switch bin.Op {
	case ast.OpAdd, ast.OpMul:
		c.out = append(c.out, finding.SafetyViolation{
			Kind:     finding.KindUncheckedArithmetic,
			Severity: finding.Medium,
			Location: c.loc(fw.StmtIndex),
			Message:  fmt.Sprintf("arithmetic expression assigned to %q is not preceded by an overflow-predicate assertion", fieldPath(fw)),
		})
	case ast.OpSub:
		c.out = append(c.out, finding.SafetyViolation{
			Kind:     finding.KindPossibleUnderflow,
			Severity: finding.Medium,
			Location: c.loc(fw.StmtIndex),
			Message:  fmt.Sprintf("subtraction expression assigned to %q has no lower-bound check", fieldPath(fw)),
		})
	case ast.OpDiv:
		if isLiteralZeroDivisorUnchecked(bin) {
			c.out = append(c.out, finding.SafetyViolation{
				Kind:     finding.KindDivByZero,
				Severity: finding.Medium,
				Location: c.loc(fw.StmtIndex),
				Message:  fmt.Sprintf("division expression assigned to %q has no non-zero divisor check", fieldPath(fw)),
			})
		}
	}
}

func isLiteralZeroDivisorUnchecked(bin *ast.BinaryExpr) bool {
	// The analyzer has no general predicate solver; any divisor that is
	// not a literal is assumed unchecked (no assert! is consulted).
	// Divisor literals other than zero are self-evidently safe.
	lit, ok := bin.Right.(*ast.LiteralExpr)
	if ok {
		v, isInt := lit.SmallValue()
		return isInt && v == 0
	}
	return true
}

func divisorGuarded(fw dataflow.FieldWrite) bool {
	// Division via compound assignment (`x /= y`) has no divisor
	// expression to inspect beyond the RHS itself; treat any
	// non-literal RHS as unguarded (conservative) and literal non-zero
	// RHS as safe.
	lit, ok := fw.RHS.(*ast.LiteralExpr)
	if !ok {
		return false
	}
	v, isInt := lit.SmallValue()
	return isInt && v != 0
}

func fieldPath(fw dataflow.FieldWrite) string {
	return fw.Root + "." + strings.Join(fw.Path, ".")
}

// checkResourceLeaks implements spec.md §4.5 "Resource leak": a
// variable of a type with `store` but not `drop` that flows out of the
// function without being moved into vector::push_back, transferred, or
// returned emits ResourceLeak. Only struct constructors bound by a
// top-level let are examined, and a consumption anywhere in the function
// counts: a value consumed on one if-branch but not the other is not
// flagged.
func (c *checker) checkResourceLeaks() {
	consumed := map[string]bool{}
	for _, call := range c.res.Calls {
		switch call.Call.QualifiedName() {
		case "transfer::transfer", "transfer::public_transfer", "transfer::share_object",
			"vector::push_back", "table::add":
			if name, ok := firstArgVar(call.Call); ok {
				consumed[name] = true
			}
		}
	}
	for _, r := range c.res.Returns {
		for _, name := range collectVarRefs(r.Expr) {
			consumed[name] = true
		}
	}

	for _, stmt := range c.fn.Body {
		let, ok := stmt.(*ast.LetStmt)
		if !ok {
			continue
		}
		ctor, ok := let.Expr.(*ast.StructCtorExpr)
		if !ok {
			continue
		}
		st, ok := c.mod.LookupStruct(ctor.Struct)
		if !ok || !st.HasAbility(ast.AbilityStore) || st.HasAbility(ast.AbilityDrop) {
			continue
		}
		if !consumed[let.Name] {
			c.out = append(c.out, finding.SafetyViolation{
				Kind:     finding.KindResourceLeak,
				Severity: finding.High,
				Location: c.loc(let.Index()),
				Message:  fmt.Sprintf("%q (type %s, store without drop) never transferred, shared, stored, or returned", let.Name, ctor.Struct),
			})
		}
	}
}

func collectVarRefs(e ast.Expression) []string {
	var out []string
	var walk func(ast.Expression)
	walk = func(e ast.Expression) {
		switch x := e.(type) {
		case *ast.VarExpr:
			out = append(out, x.Name)
		case *ast.FieldAccessExpr:
			walk(x.Base)
		case *ast.BorrowExpr:
			walk(x.Operand)
		case *ast.DerefExpr:
			walk(x.Operand)
		case *ast.StructCtorExpr:
			for _, f := range x.Fields {
				walk(f.Expr)
			}
		}
	}
	walk(e)
	return out
}

// checkDynamicFieldCleanup implements spec.md §9's instruction to emit
// Info severity, not infer stronger intent, when a dynamic field is
// added without a matching remove anywhere in the module.
func (c *checker) checkDynamicFieldCleanup() {
	added := map[string]int{}
	removed := map[string]bool{}
	for _, call := range c.res.Calls {
		switch call.Call.QualifiedName() {
		case "dynamic_field::add":
			if len(call.Call.Args) > 1 {
				if key, ok := argRootVar(call.Call.Args[1]); ok {
					added[key] = call.StmtIndex
				}
			}
		}
	}
	// A remove counts wherever it appears in the module.
	for _, fn := range c.mod.Funcs {
		for _, stmt := range ast.FlattenBody(fn.Body) {
			var call *ast.CallExpr
			switch s := stmt.(type) {
			case *ast.CallStmt:
				call = s.Call
			case *ast.LetStmt:
				call, _ = s.Expr.(*ast.CallExpr)
			}
			if call != nil && call.QualifiedName() == "dynamic_field::remove" && len(call.Args) > 1 {
				if key, ok := argRootVar(call.Args[1]); ok {
					removed[key] = true
				}
			}
		}
	}
	for key, idx := range added {
		if removed[key] {
			continue
		}
		c.out = append(c.out, finding.SafetyViolation{
			Kind:     finding.KindDynamicFieldNotRemoved,
			Severity: finding.Info,
			Location: c.loc(idx),
			Message:  fmt.Sprintf("dynamic field keyed by %q is added but never removed in this module", key),
		})
	}
}

func sortByStmtIndex(vs []finding.SafetyViolation) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && vs[j-1].Location.StmtIndex > vs[j].Location.StmtIndex; j-- {
			vs[j-1], vs[j] = vs[j], vs[j-1]
		}
	}
}
