// Package callgraph builds a whole-module call graph annotated with the
// per-function shape (has-loops, has-assertions, external calls) used by
// the report renderer's call-graph view and by the recursive-entry-point
// warning (SPEC_FULL.md §3's supplemented "call graph" feature, not present
// in spec.md's distillation but present in the original implementation).
//
// Grounded on original_source/src/analyzer/call_graph.rs's CallNode/
// CallGraph shape and its check_vulnerabilities heuristics, adapted to
// a module-at-a-time build over ast.Module instead of a single-pass
// mutable HashSet/BTreeMap structure. Cycle (recursive-entry) detection
// reuses internal/compiler/cycle.go's Tarjan SCC from the teacher
// repository, retargeted from a sync-rule dependency graph to the
// function call graph.
package callgraph

import (
	"sort"
	"strings"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/finding"
)

// Node is one function's call-graph entry (original_source's CallNode).
type Node struct {
	Name           string
	IsPublic       bool
	Calls          map[string]bool
	CalledBy       map[string]bool
	HasLoops       bool
	HasAssertions  bool
	ExternalCalls  map[string]bool
	MissingChecks  []string
}

// Graph is a module's whole call graph plus its cross-module dependency
// set, mirroring original_source's CallGraph.
type Graph struct {
	Nodes              map[string]*Node
	ModuleDependencies map[string]bool
	// Cycles lists every strongly-connected component of size > 1 (or a
	// self-loop), i.e. every set of mutually- or self-recursive
	// functions, in deterministic smallest-member-first order.
	Cycles [][]string
}

// Build analyzes every function of mod and returns its call graph.
func Build(mod *ast.Module) *Graph {
	g := &Graph{
		Nodes:              make(map[string]*Node, len(mod.Funcs)),
		ModuleDependencies: make(map[string]bool, len(mod.Imports)),
	}
	for _, imp := range mod.Imports {
		g.ModuleDependencies[normalizeImport(imp)] = true
	}

	for _, fn := range mod.Funcs {
		g.Nodes[fn.Name] = analyzeFunction(mod, fn)
	}

	// Update caller relationships (original_source's second pass).
	for caller, node := range g.Nodes {
		for callee := range node.Calls {
			if callee == "" {
				continue
			}
			if target, ok := g.Nodes[callee]; ok {
				target.CalledBy[caller] = true
			}
		}
	}

	for _, node := range g.Nodes {
		checkVulnerabilities(node)
	}

	g.Cycles = tarjanCycles(g.Nodes)
	return g
}

func normalizeImport(path string) string {
	if strings.HasPrefix(path, "std::") || strings.HasPrefix(path, "sui::") {
		return path
	}
	return "std::" + path
}

func analyzeFunction(mod *ast.Module, fn *ast.Function) *Node {
	node := &Node{
		Name:          fn.Name,
		IsPublic:      fn.IsPublicLike(),
		Calls:         map[string]bool{},
		CalledBy:      map[string]bool{},
		ExternalCalls: map[string]bool{},
	}
	var walk func([]ast.Statement)
	walk = func(stmts []ast.Statement) {
		for _, stmt := range stmts {
			switch s := stmt.(type) {
			case *ast.AssertStmt:
				node.HasAssertions = true
			case *ast.WhileStmt:
				node.HasLoops = true
				walk(s.Body)
			case *ast.IfStmt:
				walk(s.Then)
				walk(s.Else)
			case *ast.BlockStmt:
				walk(s.Stmts)
			case *ast.CallStmt:
				recordCall(mod, node, s.Call)
			case *ast.LetStmt:
				if call, ok := s.Expr.(*ast.CallExpr); ok {
					recordCall(mod, node, call)
				}
			}
		}
	}
	walk(fn.Body)
	return node
}

func recordCall(mod *ast.Module, node *Node, call *ast.CallExpr) {
	if call == nil {
		return
	}
	qualified := call.QualifiedName()
	if call.Module == "" || call.Module == mod.Name {
		// An intra-module call resolves to a node in this same graph by
		// its bare function name.
		node.Calls[call.Function] = true
		return
	}
	node.Calls[qualified] = true
	node.ExternalCalls[qualified] = true
}

// checkVulnerabilities implements original_source's missing_checks
// heuristics: a coarse, name-pattern-based second opinion layered on top
// of the precise internal/object, internal/capability, and
// internal/verifier rule packs, surfaced in the call-graph report view
// rather than as a SafetyViolation of its own.
func checkVulnerabilities(node *Node) {
	if node.HasLoops && len(node.ExternalCalls) > 0 {
		node.MissingChecks = append(node.MissingChecks, "external calls in loops detected")
	}
	if node.IsPublic && !node.HasAssertions {
		switch {
		case strings.Contains(node.Name, "init"):
			node.MissingChecks = append(node.MissingChecks, "resource leak in error path")
		case strings.Contains(node.Name, "transfer"):
			node.MissingChecks = append(node.MissingChecks, "missing resource validation")
		case strings.Contains(node.Name, "store"):
			node.MissingChecks = append(node.MissingChecks, "missing cleanup of existing resources")
		case strings.Contains(node.Name, "cleanup"):
			node.MissingChecks = append(node.MissingChecks, "missing safety checks")
			if !hasDynamicFieldRemove(node.ExternalCalls) {
				node.MissingChecks = append(node.MissingChecks, "incomplete cleanup of resources")
			}
		}
	}
}

func hasDynamicFieldRemove(calls map[string]bool) bool {
	for c := range calls {
		if strings.Contains(c, "dynamic_field::remove") {
			return true
		}
	}
	return false
}

// RecursiveEntryWarnings emits an AnalysisWarning for every public entry
// function that participates in a call cycle, since Move has no stack
// depth limit enforcement visible to this static analyzer and an
// unbounded recursive entry point is a latent DoS surface (spec.md
// §4.5's rationale, extended here to the whole-module graph rather than
// one function's loop nest).
func RecursiveEntryWarnings(moduleName string, g *Graph) []finding.SafetyViolation {
	var out []finding.SafetyViolation
	for _, cycle := range g.Cycles {
		for _, name := range cycle {
			node, ok := g.Nodes[name]
			if !ok || !node.IsPublic {
				continue
			}
			out = append(out, finding.SafetyViolation{
				Kind:     finding.KindAnalysisWarning,
				Severity: finding.Info,
				Location: finding.Location{Module: moduleName, Function: name},
				Message:  "function participates in a recursive call cycle: " + strings.Join(cycle, " -> "),
			})
		}
	}
	return out
}

// tarjanCycles finds every strongly-connected component of size > 1, or
// a single-node component with a self-loop, in the Calls graph —
// exactly internal/compiler/cycle.go's tarjanSCC, retargeted from a
// dependencyGraph of sync rule IDs to a map of function names.
func tarjanCycles(nodes map[string]*Node) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		node, ok := nodes[v]
		if ok {
			for w := range node.Calls {
				if _, known := nodes[w]; !known {
					continue
				}
				if _, visited := indices[w]; !visited {
					strongConnect(w)
					if lowlink[w] < lowlink[v] {
						lowlink[v] = lowlink[w]
					}
				} else if onStack[w] {
					if indices[w] < lowlink[v] {
						lowlink[v] = indices[w]
					}
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 || (len(scc) == 1 && nodes[scc[0]] != nil && nodes[scc[0]].Calls[scc[0]]) {
				sort.Strings(scc)
				sccs = append(sccs, scc)
			}
		}
	}

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, visited := indices[name]; !visited {
			strongConnect(name)
		}
	}

	sort.Slice(sccs, func(i, j int) bool { return sccs[i][0] < sccs[j][0] })
	return sccs
}
