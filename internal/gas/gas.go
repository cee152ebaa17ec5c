// Package gas implements a lightweight, heuristic gas-cost estimate per
// function, used to annotate DoS findings with a concrete cost delta
// rather than a bare "this could be expensive" message (SPEC_FULL.md §3's
// supplemented "gas estimation" feature, present in the original
// implementation but dropped from spec.md's distillation).
//
// Grounded on original_source/src/analyzer/gas_estimator.rs: the same
// per-operation-kind cost table and loop/external-call multiplier, kept
// as a static cost model (no real Move VM gas schedule is available to
// this analyzer) rather than an attempt at a precise estimate.
package gas

import (
	"fmt"
	"strings"

	"github.com/hydra-analyzer/hydra/internal/ast"
)

// OperationKind classifies one costed operation (original_source's
// OperationType).
type OperationKind string

const (
	OpExternalCall    OperationKind = "external_call"
	OpLoopIteration   OperationKind = "loop_iteration"
	OpVectorOperation OperationKind = "vector_operation"
	OpStorageAccess   OperationKind = "storage_access"
	OpComputation     OperationKind = "computation"
)

// Operation is one line item of a function's gas estimate.
type Operation struct {
	Kind     OperationKind
	Cost     uint64
	Location string
}

// Estimate is a function's total estimated gas cost: Base assumes every
// loop runs once, Max applies the configured worst-case iteration
// multiplier once to each loop and to every operation inside a loop; the
// multiplier does not compound with loop nesting depth.
type Estimate struct {
	BaseCost   uint64
	MaxCost    uint64
	Operations []Operation
}

// Estimator holds the static per-operation-kind cost table.
type Estimator struct {
	LoopCost          uint64
	ExternalCallCost  uint64
	VectorOpCost      uint64
	StorageOpCost     uint64
	LoopMultiplier    uint64
	InLoopAssignMult  uint64
}

// Default returns the cost table from original_source/gas_estimator.rs
// unchanged (loop=50, external_call=500, vector_op=100, storage_op=200),
// plus the 10x loop multiplier and 5x in-loop-assignment multiplier its
// estimate_function_cost applies.
func Default() Estimator {
	return Estimator{
		LoopCost:         50,
		ExternalCallCost: 500,
		VectorOpCost:     100,
		StorageOpCost:    200,
		LoopMultiplier:   10,
		InLoopAssignMult: 5,
	}
}

// EstimateFunction walks fn's body, producing a cost estimate. inLoop
// tracks whether a statement is reachable under at least one while loop;
// nested loops simply reuse the same single loop multiplier, mirroring
// original_source's flat `in_loop` boolean rather than compounding per
// nesting level (a closer whole-module estimate is out of scope for this
// analyzer's static, non-execution-tracing model).
func (e Estimator) EstimateFunction(fn *ast.Function) Estimate {
	est := Estimate{}
	var walk func(stmts []ast.Statement, inLoop bool)
	walk = func(stmts []ast.Statement, inLoop bool) {
		for _, stmt := range stmts {
			switch s := stmt.(type) {
			case *ast.WhileStmt:
				est.add(OpLoopIteration, e.LoopCost, e.LoopCost*e.LoopMultiplier, fmt.Sprintf("%s: loop", fn.Name))
				walk(s.Body, true)

			case *ast.IfStmt:
				walk(s.Then, inLoop)
				walk(s.Else, inLoop)

			case *ast.BlockStmt:
				walk(s.Stmts, inLoop)

			case *ast.AssertStmt:
				est.add(OpComputation, 50, 50, fmt.Sprintf("%s: assert", fn.Name))

			case *ast.CallStmt:
				e.costCall(&est, fn, s.Call, inLoop)

			case *ast.LetStmt:
				if call, ok := s.Expr.(*ast.CallExpr); ok {
					e.costCall(&est, fn, call, inLoop)
					continue
				}
				cost, kind := e.costExpr(s.Expr)
				mult := uint64(1)
				if inLoop {
					mult = e.InLoopAssignMult
				}
				est.add(kind, cost, cost*mult, fmt.Sprintf("%s: let", fn.Name))

			case *ast.AssignStmt:
				cost, kind := e.costExpr(s.RHS)
				mult := uint64(1)
				if inLoop {
					mult = e.InLoopAssignMult
				}
				est.add(kind, cost, cost*mult, fmt.Sprintf("%s: assign", fn.Name))

			case *ast.ReturnStmt:
				if s.Expr != nil {
					cost, kind := e.costExpr(s.Expr)
					est.add(kind, cost, cost, fmt.Sprintf("%s: return", fn.Name))
				}
			}
		}
	}
	walk(fn.Body, false)
	return est
}

func (e Estimator) costCall(est *Estimate, fn *ast.Function, call *ast.CallExpr, inLoop bool) {
	if call == nil {
		return
	}
	cost, kind := e.costCallCost(call)
	mult := uint64(1)
	if inLoop {
		mult = e.LoopMultiplier
	}
	est.add(kind, cost, cost*mult, fmt.Sprintf("%s: call %s", fn.Name, call.QualifiedName()))
}

func (e Estimator) costCallCost(call *ast.CallExpr) (uint64, OperationKind) {
	name := call.QualifiedName()
	switch {
	case containsVectorOp(name):
		return e.VectorOpCost, OpVectorOperation
	default:
		return e.ExternalCallCost, OpExternalCall
	}
}

func (e Estimator) costExpr(expr ast.Expression) (uint64, OperationKind) {
	switch x := expr.(type) {
	case *ast.VarExpr:
		return 10, OpComputation
	case *ast.FieldAccessExpr:
		return e.StorageOpCost, OpStorageAccess
	case *ast.CallExpr:
		base, kind := e.costCallCost(x)
		return base + uint64(len(x.Args))*10, kind
	case *ast.LiteralExpr:
		return 5, OpComputation
	default:
		return 10, OpComputation
	}
}

func containsVectorOp(name string) bool {
	return strings.Contains(name, "vector::")
}

func (est *Estimate) add(kind OperationKind, baseDelta, maxDelta uint64, location string) {
	est.Operations = append(est.Operations, Operation{Kind: kind, Cost: maxDelta, Location: location})
	est.BaseCost += baseDelta
	est.MaxCost += maxDelta
}
