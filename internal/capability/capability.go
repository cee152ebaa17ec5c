// Package capability implements the capability checker of spec.md
// §4.4: leak, unsafe delegation, missing expiry check, resource
// mismatch, and privilege escalation, over a capability-typed variable
// (type name ending in "Cap", or configured) tracked by
// internal/dataflow as a lattice.CapabilityFact.
//
// Grounded on original_source/src/analyzer/safety_checker.rs for the
// exact field names (`expiry`, `*_id`, permission masks) DESIGN.md
// records, adapted to operate over lattice.CapabilityFact instead of
// the Rust implementation's ad hoc HashMap tracking.
package capability

import (
	"fmt"
	"strings"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/config"
	"github.com/hydra-analyzer/hydra/internal/dataflow"
	"github.com/hydra-analyzer/hydra/internal/finding"
)

// Check runs every capability rule over one function's dataflow result.
func Check(mod *ast.Module, fn *ast.Function, res *dataflow.Result, cfg config.Config) []finding.SafetyViolation {
	c := &checker{mod: mod, fn: fn, res: res, cfg: cfg, stmts: ast.FlattenBody(fn.Body)}
	c.checkLeak()
	c.checkDelegation()
	c.checkExpiry()
	c.checkResourceMismatch()
	c.checkPrivilegeEscalation()
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

func (c *checker) capExtras() map[string]bool {
	extra := make(map[string]bool, len(c.cfg.Hydra.CapabilityTypeNames))
	for _, n := range c.cfg.Hydra.CapabilityTypeNames {
		extra[n] = true
	}
	return extra
}

// checkLeak implements spec.md §4.4 "Leak": a function that returns a
// `&mut Cap`, or passes a by-value Cap to a cross-module call, emits
// CapabilityLeak at Critical severity (spec.md §8 scenario S4).
func (c *checker) checkLeak() {
	if retType, ok := returnsMutCap(c.fn, c.mod, c.capExtras()); ok {
		for _, r := range c.res.Returns {
			for _, name := range collectVarRefs(r.Expr) {
				v := r.Pre.Get(name)
				if v.Cap != nil {
					c.out = append(c.out, finding.SafetyViolation{
						Kind:     finding.KindCapabilityLeak,
						Severity: finding.Critical,
						Location: c.loc(r.StmtIndex),
						Message:  fmt.Sprintf("function %q returns mutable capability %q (type %s)", c.fn.Name, name, retType),
					})
				}
			}
		}
	}

	for _, call := range c.res.Calls {
		if call.Call.Module == "" || call.Call.Module == c.mod.Name {
			continue
		}
		for _, arg := range call.Call.Args {
			name, ok := argRootVar(arg)
			if !ok {
				continue
			}
			if call.Pre.Get(name).Cap != nil {
				c.out = append(c.out, finding.SafetyViolation{
					Kind:     finding.KindCapabilityLeak,
					Severity: finding.Critical,
					Location: c.loc(call.StmtIndex),
					Message:  fmt.Sprintf("capability %q passed by value to cross-module call %q", name, call.Call.QualifiedName()),
				})
			}
		}
	}
}

func returnsMutCap(fn *ast.Function, mod *ast.Module, extra map[string]bool) (string, bool) {
	for _, rt := range fn.Returns {
		ref, ok := rt.(*ast.RefType)
		if !ok || !ref.Mutable {
			continue
		}
		if ast.IsCapability(ref.Target, extra) {
			return ref.Target.String(), true
		}
	}
	return "", false
}

// checkDelegation implements spec.md §4.4 "Delegation": a constructor
// producing a derivative capability (type name containing "Delegate")
// without consulting the source cap's permission mask, or granting a
// mask that is not a subset of the source's, emits UnsafeDelegation.
func (c *checker) checkDelegation() {
	for _, stmt := range c.fn.Body {
		let, ok := stmt.(*ast.LetStmt)
		if !ok {
			continue
		}
		ctor, ok := let.Expr.(*ast.StructCtorExpr)
		if !ok || !isDelegateType(ctor.Struct) {
			continue
		}
		source, sourceMask, hasSource := c.delegationSource(ctor, let.Index())
		if !hasSource {
			c.out = append(c.out, finding.SafetyViolation{
				Kind:     finding.KindUnsafeDelegation,
				Severity: finding.High,
				Location: c.loc(let.Index()),
				Message:  fmt.Sprintf("delegate capability %q constructed without consulting a source capability's permission mask", let.Name),
			})
			continue
		}
		grantedMask, hasMask := literalPermissionsField(ctor)
		if hasMask && grantedMask&^sourceMask != 0 {
			c.out = append(c.out, finding.SafetyViolation{
				Kind:     finding.KindUnsafeDelegation,
				Severity: finding.High,
				Location: c.loc(let.Index()),
				Message:  fmt.Sprintf("delegate capability %q grants permissions not held by source %q", let.Name, source),
			})
		}
	}
}

func isDelegateType(name string) bool {
	return strings.Contains(name, "Delegate")
}

func (c *checker) delegationSource(ctor *ast.StructCtorExpr, idx int) (string, uint64, bool) {
	pre := c.res.Pre[idx]
	if pre == nil {
		return "", 0, false
	}
	for _, f := range ctor.Fields {
		name, ok := argRootVar(f.Expr)
		if !ok {
			continue
		}
		// The source cap is whichever field initializer references a
		// variable currently tracked as a CapabilityFact; its mask is
		// read from the pre-environment at the constructor statement.
		if v := pre.Get(name); v.Cap != nil {
			return name, v.Cap.PermissionsMask, true
		}
	}
	return "", 0, false
}

func literalPermissionsField(ctor *ast.StructCtorExpr) (uint64, bool) {
	for _, f := range ctor.Fields {
		if f.Name != "permissions" && f.Name != "permissions_mask" {
			continue
		}
		lit, ok := f.Expr.(*ast.LiteralExpr)
		if !ok {
			return 0, false
		}
		v, isInt := lit.SmallValue()
		return v, isInt
	}
	return 0, false
}

// checkExpiry implements spec.md §4.4 "Expiry": a function using a cap
// carrying an expiry field without asserting
// `clock::timestamp_ms(clock) < cap.expiry` before the use emits
// MissingExpiryCheck.
func (c *checker) checkExpiry() {
	c.forEachCapUse(func(name string, v dataflow.CallSite) {
		fact := v.Pre.Get(name).Cap
		if fact == nil || fact.ExpiryChecked {
			return
		}
		if !c.capHasField(name, "expiry") {
			return
		}
		c.out = append(c.out, finding.SafetyViolation{
			Kind:     finding.KindMissingExpiryCheck,
			Severity: finding.High,
			Location: c.loc(v.StmtIndex),
			Message:  fmt.Sprintf("use of %q (has expiry field) without a dominating clock::timestamp_ms(clock) < %s.expiry check", name, name),
		})
	})
}

// checkResourceMismatch implements spec.md §4.4 "Bound resource": a cap
// carrying a `*_id` field used inside an operation on the corresponding
// resource without an equality assertion emits CapabilityResourceMismatch.
func (c *checker) checkResourceMismatch() {
	c.forEachCapUse(func(name string, v dataflow.CallSite) {
		fact := v.Pre.Get(name).Cap
		if fact == nil || fact.BoundResourceChecked {
			return
		}
		if !c.capHasResourceIDField(name) {
			return
		}
		c.out = append(c.out, finding.SafetyViolation{
			Kind:     finding.KindCapabilityResourceMismatch,
			Severity: finding.High,
			Location: c.loc(v.StmtIndex),
			Message:  fmt.Sprintf("use of %q (binds a resource ID) without an equality assertion against the target resource", name),
		})
	})
}

func (c *checker) forEachCapUse(f func(string, dataflow.CallSite)) {
	seen := map[string]bool{}
	for _, call := range c.res.Calls {
		for _, arg := range call.Call.Args {
			name, ok := argRootVar(arg)
			if !ok {
				continue
			}
			if call.Pre.Get(name).Cap == nil {
				continue
			}
			key := fmt.Sprintf("%s@%d", name, call.StmtIndex)
			if seen[key] {
				continue
			}
			seen[key] = true
			f(name, call)
		}
	}
}

func (c *checker) capHasField(varName, field string) bool {
	return c.capStructHasField(varName, field)
}

func (c *checker) capHasResourceIDField(varName string) bool {
	return c.capStructHasFieldSuffix(varName, "_id")
}

func (c *checker) capStructHasField(varName, field string) bool {
	st := c.capStruct(varName)
	if st == nil {
		return false
	}
	_, ok := st.FieldType(field)
	return ok
}

func (c *checker) capStructHasFieldSuffix(varName, suffix string) bool {
	st := c.capStruct(varName)
	if st == nil {
		return false
	}
	for _, f := range st.Fields {
		if len(f.Name) >= len(suffix) && f.Name[len(f.Name)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

func (c *checker) capStruct(varName string) *ast.Struct {
	for _, p := range c.fn.Params {
		if p.Name != varName {
			continue
		}
		t := p.Type
		if r, ok := t.(*ast.RefType); ok {
			t = r.Target
		}
		named, ok := t.(*ast.NamedType)
		if !ok {
			return nil
		}
		st, _ := c.mod.LookupStruct(named.Struct)
		return st
	}
	return nil
}

// checkPrivilegeEscalation implements spec.md §4.4 "Privilege
// escalation": assignment of a literal 0xFF, or arithmetic widening of
// a permissions byte, through a `&mut Cap` receiver emits
// PrivilegeEscalation.
func (c *checker) checkPrivilegeEscalation() {
	for _, fw := range c.res.FieldWrites {
		if fw.Path == nil {
			continue
		}
		leaf := fw.Path[len(fw.Path)-1]
		if leaf != "permissions" && leaf != "permissions_mask" {
			continue
		}
		v := fw.Pre.Get(fw.Root)
		if v.Cap == nil {
			continue
		}
		if lit, ok := fw.RHS.(*ast.LiteralExpr); ok {
			if val, isInt := lit.SmallValue(); isInt && val == 0xFF {
				c.out = append(c.out, finding.SafetyViolation{
					Kind:     finding.KindPrivilegeEscalation,
					Severity: finding.Critical,
					Location: c.loc(fw.StmtIndex),
					Message:  fmt.Sprintf("%q.%s is set to the all-permissions literal 0xFF", fw.Root, leaf),
				})
			}
			continue
		}
		if fw.Op == ast.AssignAdd || fw.Op == ast.AssignMul {
			c.out = append(c.out, finding.SafetyViolation{
				Kind:     finding.KindPrivilegeEscalation,
				Severity: finding.Critical,
				Location: c.loc(fw.StmtIndex),
				Message:  fmt.Sprintf("%q.%s widened arithmetically through a &mut capability receiver", fw.Root, leaf),
			})
		}
	}
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
		}
	}
	walk(e)
	return out
}

func sortByStmtIndex(vs []finding.SafetyViolation) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && vs[j-1].Location.StmtIndex > vs[j].Location.StmtIndex; j-- {
			vs[j-1], vs[j] = vs[j], vs[j-1]
		}
	}
}
