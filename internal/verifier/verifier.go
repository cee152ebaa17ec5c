// Package verifier implements the shared-object consensus/time-gating
// and denial-of-service rule family of spec.md §4.5: a second,
// call-site-granularity pass over shared/time-sensitive objects
// (complementing internal/object's field-write-granularity checks), plus
// the loop-nesting and external-call heuristics that flag Move code
// vulnerable to gas-griefing.
//
// Grounded on original_source/src/analyzer/dos_detector.rs and
// loop_analysis.rs for the external-call-in-loop and dynamic-bound
// heuristics; the loop-nesting walk itself follows those files' direct
// descent over the loop AST rather than reusing internal/compiler's
// Tarjan SCC (that machinery is reused by internal/callgraph instead,
// where the graph is the call graph rather than a single function's
// loop nest).
package verifier

import (
	"fmt"
	"strings"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/config"
	"github.com/hydra-analyzer/hydra/internal/dataflow"
	"github.com/hydra-analyzer/hydra/internal/finding"
)

// Check runs every verifier rule over one function's dataflow result.
func Check(mod *ast.Module, fn *ast.Function, res *dataflow.Result, cfg config.Config) []finding.SafetyViolation {
	c := &checker{mod: mod, fn: fn, res: res, cfg: cfg, stmts: ast.FlattenBody(fn.Body)}
	c.checkSharedMutationConsensus()
	c.checkTimestampGating()
	c.checkUnusedClock()
	c.checkLoops(fn.Body, 0)
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

// checkSharedMutationConsensus implements spec.md §4.5 "Consensus": a
// call that operates on a shared object without a dominating
// consensus::verify()/assert_synchronized() emits MissingConsensus. This
// is the call-granularity counterpart of internal/object's
// InvalidSharedAccess, which only looks at raw field writes.
func (c *checker) checkSharedMutationConsensus() {
	for _, call := range c.res.Calls {
		switch call.Call.QualifiedName() {
		case "transfer::share_object":
			continue // the share itself needs no prior consensus check
		}
		for _, arg := range call.Call.Args {
			name, ok := argRootVar(arg)
			if !ok {
				continue
			}
			v := call.Pre.Get(name)
			if v.Obj == nil || !v.Obj.Shared || v.Obj.ConsensusChecked {
				continue
			}
			c.out = append(c.out, finding.SafetyViolation{
				Kind:     finding.KindMissingConsensus,
				Severity: finding.High,
				Location: c.loc(call.StmtIndex),
				Message:  fmt.Sprintf("call %q operates on shared object %q without a dominating consensus check", call.Call.QualifiedName(), name),
			})
		}
	}
}

// checkTimestampGating implements spec.md §4.5 "Time gating": a write to
// a deadline/expiry-shaped field without a dominating
// clock::timestamp_ms comparison emits MissingTimestampCheck.
func (c *checker) checkTimestampGating() {
	for _, fw := range c.res.FieldWrites {
		if len(fw.Path) == 0 {
			continue
		}
		leaf := fw.Path[len(fw.Path)-1]
		if !isTimeSensitiveField(leaf) {
			continue
		}
		v := fw.Pre.Get(fw.Root)
		if v.Obj != nil && v.Obj.TimestampChecked {
			continue
		}
		c.out = append(c.out, finding.SafetyViolation{
			Kind:     finding.KindMissingTimestampCheck,
			Severity: finding.Medium,
			Location: c.loc(fw.StmtIndex),
			Message:  fmt.Sprintf("write to time-sensitive field %q.%s without a dominating clock::timestamp_ms check", fw.Root, leaf),
		})
	}
}

func isTimeSensitiveField(name string) bool {
	return strings.Contains(name, "deadline") || strings.Contains(name, "expiry") || strings.HasSuffix(name, "_ms")
}

// checkUnusedClock implements spec.md §4.5 "Unused clock": a &Clock
// parameter never referenced anywhere in the function body emits
// UnusedClock at Info severity (the function may be correct, but an
// unused clock parameter usually means a missing time check elsewhere).
func (c *checker) checkUnusedClock() {
	for _, p := range c.fn.Params {
		if !isClockType(p.Type) {
			continue
		}
		if c.clockReferenced(p.Name) {
			continue
		}
		c.out = append(c.out, finding.SafetyViolation{
			Kind:     finding.KindUnusedClock,
			Severity: finding.Info,
			Location: c.loc(c.entryIndex()),
			Message:  fmt.Sprintf("parameter %q of type Clock is never read in %q", p.Name, c.fn.Name),
		})
	}
}

func (c *checker) entryIndex() int {
	if len(c.fn.Body) == 0 {
		return 0
	}
	return c.fn.Body[0].Index()
}

func isClockType(t ast.Type) bool {
	if r, ok := t.(*ast.RefType); ok {
		t = r.Target
	}
	n, ok := t.(*ast.NamedType)
	return ok && n.Module == "clock" && n.Struct == "Clock"
}

func (c *checker) clockReferenced(name string) bool {
	for _, call := range c.res.Calls {
		for _, arg := range call.Call.Args {
			if argNamesVar(arg, name) {
				return true
			}
		}
	}
	for _, a := range c.res.Asserts {
		if exprMentionsVar(a.Cond, name) {
			return true
		}
	}
	for _, r := range c.res.Returns {
		if r.Expr != nil && exprMentionsVar(r.Expr, name) {
			return true
		}
	}
	for _, fw := range c.res.FieldWrites {
		if exprMentionsVar(fw.RHS, name) {
			return true
		}
	}
	return false
}

func argNamesVar(e ast.Expression, name string) bool {
	v, ok := argRootVar(e)
	return ok && v == name
}

func exprMentionsVar(e ast.Expression, name string) bool {
	for _, v := range collectVarRefs(e) {
		if v == name {
			return true
		}
	}
	return false
}

// checkLoops implements spec.md §4.5 "DoS": recursive descent over the
// statement tree tracking loop nesting depth. An external (cross-module)
// call found inside a while body emits ExternalCallInLoop; one found at
// depth >= 2 additionally emits NestedExternalLoops; a while condition
// whose bound derives from vector::length/table::length rather than a
// fixed iteration count emits DynamicLoopBound.
func (c *checker) checkLoops(stmts []ast.Statement, depth int) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.WhileStmt:
			if isDynamicBound(s.Cond) {
				c.out = append(c.out, finding.SafetyViolation{
					Kind:     finding.KindDynamicLoopBound,
					Severity: finding.Low,
					Location: c.loc(s.Index()),
					Message:  "loop bound derives from a collection length rather than a fixed count",
				})
			}
			externalCalls := c.collectExternalCalls(s.Body)
			for _, idx := range externalCalls {
				c.out = append(c.out, finding.SafetyViolation{
					Kind:     finding.KindExternalCallInLoop,
					Severity: finding.Medium,
					Location: c.loc(idx),
					Message:  "cross-module call inside a loop body can be griefed by an unbounded iteration count",
				})
				if depth+1 >= 2 {
					c.out = append(c.out, finding.SafetyViolation{
						Kind:     finding.KindNestedExternalLoops,
						Severity: finding.High,
						Location: c.loc(idx),
						Message:  fmt.Sprintf("cross-module call inside a loop nested %d levels deep", depth+1),
					})
				}
			}
			c.checkLoops(s.Body, depth+1)

		case *ast.IfStmt:
			c.checkLoops(s.Then, depth)
			c.checkLoops(s.Else, depth)

		case *ast.BlockStmt:
			c.checkLoops(s.Stmts, depth)
		}
	}
}

// collectExternalCalls returns the statement indices of every
// cross-module call reachable from stmts, not descending into nested
// while bodies (those are accounted for separately by the recursive
// checkLoops call so a call isn't double-counted against two loop
// depths).
func (c *checker) collectExternalCalls(stmts []ast.Statement) []int {
	var out []int
	var walk func([]ast.Statement)
	walk = func(stmts []ast.Statement) {
		for _, stmt := range stmts {
			switch s := stmt.(type) {
			case *ast.CallStmt:
				if c.crossesModule(s.Call) {
					out = append(out, s.Index())
				}
			case *ast.LetStmt:
				if call, ok := s.Expr.(*ast.CallExpr); ok && c.crossesModule(call) {
					out = append(out, s.Index())
				}
			case *ast.IfStmt:
				walk(s.Then)
				walk(s.Else)
			case *ast.BlockStmt:
				walk(s.Stmts)
			}
		}
	}
	walk(stmts)
	return out
}

func (c *checker) crossesModule(call *ast.CallExpr) bool {
	return call != nil && call.Module != "" && call.Module != c.mod.Name
}

func isDynamicBound(cond ast.Expression) bool {
	found := false
	var walk func(ast.Expression)
	walk = func(e ast.Expression) {
		switch x := e.(type) {
		case *ast.CallExpr:
			if x.QualifiedName() == "vector::length" || x.QualifiedName() == "table::length" {
				found = true
			}
			for _, arg := range x.Args {
				walk(arg)
			}
		case *ast.BinaryExpr:
			walk(x.Left)
			walk(x.Right)
		case *ast.FieldAccessExpr:
			walk(x.Base)
		case *ast.BorrowExpr:
			walk(x.Operand)
		case *ast.DerefExpr:
			walk(x.Operand)
		}
	}
	walk(cond)
	return found
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

func sortByStmtIndex(vs []finding.SafetyViolation) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && vs[j-1].Location.StmtIndex > vs[j].Location.StmtIndex; j-- {
			vs[j-1], vs[j] = vs[j], vs[j-1]
		}
	}
}
