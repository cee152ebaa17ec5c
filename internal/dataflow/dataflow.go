// Package dataflow implements Ξimm, the path-sensitive intraprocedural
// escape/path analyzer of spec.md §4.2: a worklist fixpoint over a
// function's CFG that produces, for every statement, the joined
// Environment in effect immediately before it executes, plus the
// ReferenceEscape/BoundaryCrossing/StoredReference findings the
// transfer functions emit directly.
//
// Grounded on internal/engine/executor.go's worklist/queue-driven
// processing loop (dirty-block propagation in place of dirty-invocation
// propagation) and internal/compiler/validate.go's collect-all-errors,
// don't-fail-fast posture, both from the teacher repository.
package dataflow

import (
	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/cfg"
	"github.com/hydra-analyzer/hydra/internal/config"
	"github.com/hydra-analyzer/hydra/internal/finding"
	"github.com/hydra-analyzer/hydra/internal/lattice"
)

// CallSite records one Call/CallStmt/CallExpr occurrence together with
// the environment in effect just before it, for the object/capability/
// verifier rule packs to consult without re-running the fixpoint.
type CallSite struct {
	StmtIndex int
	Call      *ast.CallExpr
	Pre       *lattice.Environment
	// AssignedTo is the lvalue root variable the call result is bound
	// to, when the call appears as the RHS of a Let/Assign rather than
	// a bare CallStmt.
	AssignedTo string
}

// FieldWrite records a write to a (possibly nested) field path on a
// variable, with the environment just before the write.
type FieldWrite struct {
	StmtIndex int
	Root      string
	Path      []string
	Op        ast.AssignOp
	RHS       ast.Expression
	Pre       *lattice.Environment
}

// ReturnSite records a return statement with its pre-environment.
type ReturnSite struct {
	StmtIndex int
	Expr      ast.Expression
	Pre       *lattice.Environment
}

// AssertSite records an assert! condition and its statement index; it
// carries no environment of its own. Dominating guards are tested
// through the checked bits instead (the conservative AND-over-predecessors join already encodes
// "dominates every path" into the post-assert environment's checked
// bits, so callers only need to look at Pre at the guarded write).
type AssertSite struct {
	StmtIndex int
	Cond      ast.Expression
}

// Result is the output of analyzing one function (spec.md §4.2
// "Contract").
type Result struct {
	Func *ast.Function
	CFG  *cfg.Graph

	// Pre/Post map a statement index to the environment immediately
	// before/after it executes.
	Pre  map[int]*lattice.Environment
	Post map[int]*lattice.Environment

	Calls       []CallSite
	FieldWrites []FieldWrite
	Returns     []ReturnSite
	Asserts     []AssertSite

	Leaks    []finding.SafetyViolation
	Warnings []finding.SafetyViolation
}

// Analyze runs the Ξimm fixpoint for one function of mod and returns its
// per-statement environments, side tables, and reference-leak findings.
func Analyze(mod *ast.Module, fn *ast.Function, graph *cfg.Graph, cfg_ config.Config) *Result {
	a := &analyzer{
		mod:    mod,
		fn:     fn,
		graph:  graph,
		cfg:    cfg_,
		stmts:  ast.FlattenBody(fn.Body),
		res: &Result{
			Func: fn,
			CFG:  graph,
			Pre:  make(map[int]*lattice.Environment),
			Post: make(map[int]*lattice.Environment),
		},
		blockOut: make(map[int]*lattice.Environment),
	}
	a.run()
	return a.res
}

type analyzer struct {
	mod   *ast.Module
	fn    *ast.Function
	graph *cfg.Graph
	cfg   config.Config
	res   *Result
	stmts []ast.Statement

	blockOut map[int]*lattice.Environment
}

// run performs the reverse-post-order worklist fixpoint described in
// spec.md §4.2: blocks are (re-)processed until no block's output
// environment changes, which for the finite-height (=3) Ξimm lattice
// plus the monotone object/capability fact joins is guaranteed to
// terminate (§4.7 "Non-termination is impossible").
func (a *analyzer) run() {
	seeded := a.seedEntry()
	order := a.graph.ReversePostOrder()
	preds := a.graph.Preds()

	inQueue := make(map[int]bool, len(order))
	queue := append([]int(nil), order...)
	for _, id := range order {
		inQueue[id] = true
	}

	// Safety bound matching spec.md §4.2's "O(nodes * 3)" per-variable
	// convergence claim, generalized across the whole block set; a real
	// bug in a transfer function (non-monotone update) would otherwise
	// spin forever, so this is also the §4.7 "non-termination is
	// impossible" guarantee made concrete.
	maxPasses := len(a.graph.Blocks)*3 + 16
	passes := 0

	for len(queue) > 0 && passes < maxPasses*len(a.graph.Blocks)+1 {
		id := queue[0]
		queue = queue[1:]
		inQueue[id] = false
		passes++

		in := a.blockInput(id, seeded, preds)
		out := a.execBlock(a.graph.Block(id), in)

		prev, ok := a.blockOut[id]
		a.blockOut[id] = out
		if ok && lattice.Equal(prev, out) {
			continue
		}
		for _, e := range a.graph.Block(id).Succ {
			if !inQueue[e.To] {
				queue = append(queue, e.To)
				inQueue[e.To] = true
			}
		}
	}
}

// blockInput computes a block's input environment as the join of every
// predecessor's current output, or the seeded entry environment for the
// CFG's entry block. Predecessors not yet visited contribute the
// lattice bottom (an empty Environment, whose Get returns NonRef/no
// facts for every variable), which is the correct initial approximation
// since NonRef and nil facts are the bottom of every joined component.
func (a *analyzer) blockInput(id int, seeded *lattice.Environment, preds map[int][]int) *lattice.Environment {
	if id == a.graph.Entry {
		return seeded
	}
	ps := preds[id]
	if len(ps) == 0 {
		return lattice.NewEnvironment()
	}
	envs := make([]*lattice.Environment, 0, len(ps))
	for _, p := range ps {
		if out, ok := a.blockOut[p]; ok {
			envs = append(envs, out)
		} else {
			envs = append(envs, lattice.NewEnvironment())
		}
	}
	return lattice.JoinManyEnv(envs)
}

// seedEntry builds the function-entry environment from the parameter
// list (spec.md §3 "Environment... created at function entry with
// parameters seeded from signature").
func (a *analyzer) seedEntry() *lattice.Environment {
	env := lattice.NewEnvironment()
	for _, p := range a.fn.Params {
		state := lattice.VarState{Ref: lattice.NonRef}
		if _, ok := p.Type.(*ast.RefType); ok {
			state.Ref = lattice.OkRef
		}
		if ast.IsKeyObject(derefType(p.Type), a.mod) {
			state.Obj = &lattice.ObjectFact{Initialized: true}
		}
		if ast.IsCapability(derefType(p.Type), a.capabilityExtras()) {
			state.Cap = &lattice.CapabilityFact{PermissionsMask: ^uint64(0)}
		}
		env.Set(p.Name, state)
	}
	return env
}

func (a *analyzer) capabilityExtras() map[string]bool {
	extra := make(map[string]bool, len(a.cfg.Hydra.CapabilityTypeNames))
	for _, n := range a.cfg.Hydra.CapabilityTypeNames {
		extra[n] = true
	}
	return extra
}

func derefType(t ast.Type) ast.Type {
	if r, ok := t.(*ast.RefType); ok {
		return r.Target
	}
	return t
}

// execBlock threads env through every top-level statement of b in
// order, recording Pre/Post per statement and appending to the result's
// side tables, and returns the environment after the last statement
// (the block's output, used to seed successor blocks).
func (a *analyzer) execBlock(b *cfg.Block, env *lattice.Environment) *lattice.Environment {
	cur := env
	for _, stmt := range b.Stmts {
		a.res.Pre[stmt.Index()] = cur
		cur = a.transfer(cur, stmt)
		a.res.Post[stmt.Index()] = cur
	}
	return cur
}
