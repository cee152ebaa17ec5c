package dataflow

import (
	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/lattice"
)

// condSignals summarizes what an assert!/abort-guard condition proves,
// recognized by matching the qualified call names and field-comparison
// shapes the rule packs care about (spec.md §4.3, §4.4, §4.5). This is
// a syntactic heuristic, not a theorem prover: it mirrors the
// conservatism of the rest of the analyzer (false negatives over false
// positives on the guard side, since a missed guard only produces a
// finding that a human then confirms or suppresses).
type condSignals struct {
	consensus     bool
	timestamp     bool
	expiry        bool
	resourceID    bool
	recipient     map[string]bool // variable names proven equal to a recipient/owner field
	invariantGate bool            // e.g. assert!(!obj.locked)
}

// applyAssertFacts threads an assert's condition signals into every
// in-scope variable's Obj/Cap facts. Applying a checked bit to every
// live variable (rather than just the one expression mentions) mirrors
// the function-level granularity of spec.md's "dominating assert!"
// rules: a consensus::verify() anywhere upstream of a shared-object
// write satisfies the rule regardless of which local variable named the
// shared object in the assert's own condition.
func (a *analyzer) applyAssertFacts(env *lattice.Environment, cond ast.Expression) {
	sig := analyzeCond(cond)
	for _, name := range env.Names() {
		v := env.Get(name)
		changed := false
		if v.Obj != nil {
			obj := *v.Obj
			if sig.consensus {
				obj.ConsensusChecked = true
				changed = true
			}
			if sig.timestamp {
				obj.TimestampChecked = true
				changed = true
			}
			if sig.recipient[name] {
				obj.OwnerChecked = true
				changed = true
			}
			if sig.invariantGate {
				obj.InvariantGuarded = true
				changed = true
			}
			if changed {
				v.Obj = &obj
			}
		}
		if v.Cap != nil {
			capChanged := false
			cap_ := *v.Cap
			if sig.expiry {
				cap_.ExpiryChecked = true
				capChanged = true
			}
			if sig.resourceID {
				cap_.BoundResourceChecked = true
				capChanged = true
			}
			if capChanged {
				v.Cap = &cap_
				changed = true
			}
		}
		if changed {
			env.Set(name, v)
		}
	}
}

func analyzeCond(e ast.Expression) condSignals {
	sig := condSignals{recipient: map[string]bool{}}
	var walk func(ast.Expression)
	walk = func(e ast.Expression) {
		switch x := e.(type) {
		case *ast.BinaryExpr:
			if x.Op == ast.OpAnd || x.Op == ast.OpOr {
				walk(x.Left)
				walk(x.Right)
				return
			}
			analyzeComparison(x, &sig)
			walk(x.Left)
			walk(x.Right)
		case *ast.CallExpr:
			switch x.QualifiedName() {
			case "consensus::verify", "consensus::assert_synchronized":
				sig.consensus = true
			case "clock::timestamp_ms":
				sig.timestamp = true
			}
			for _, arg := range x.Args {
				walk(arg)
			}
		case *ast.BorrowExpr:
			walk(x.Operand)
		case *ast.DerefExpr:
			walk(x.Operand)
		}
	}
	walk(e)
	return sig
}

// analyzeComparison recognizes the field-equality/threshold shapes that
// prove a recipient, expiry, or bound-resource-ID check (spec.md §4.3
// "Transfer", §4.4 "Expiry"/"Bound resource").
func analyzeComparison(b *ast.BinaryExpr, sig *condSignals) {
	if b.Op != ast.OpEq && b.Op != ast.OpNeq && b.Op != ast.OpLt && b.Op != ast.OpLe &&
		b.Op != ast.OpGt && b.Op != ast.OpGe {
		return
	}
	for _, side := range [2]ast.Expression{b.Left, b.Right} {
		fa, ok := side.(*ast.FieldAccessExpr)
		if !ok {
			continue
		}
		switch {
		case fa.Field == "expiry":
			sig.expiry = true
		case isResourceIDField(fa.Field):
			sig.resourceID = true
		case fa.Field == "owner" || fa.Field == "recipient":
			if base, ok := fa.Base.(*ast.VarExpr); ok {
				sig.recipient[base.Name] = true
			}
			if other, ok := otherSide(b, side).(*ast.VarExpr); ok {
				sig.recipient[other.Name] = true
			}
		case fa.Field == "locked" || fa.Field == "frozen":
			sig.invariantGate = true
		}
	}
}

func otherSide(b *ast.BinaryExpr, side ast.Expression) ast.Expression {
	if b.Left == side {
		return b.Right
	}
	return b.Left
}

func isResourceIDField(name string) bool {
	if len(name) < 3 {
		return false
	}
	return name[len(name)-3:] == "_id"
}
