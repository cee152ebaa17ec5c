// Package lattice implements Ξimm, the three-valued reference
// abstraction domain (spec.md §3), and the per-function Environment that
// threads it (plus object/capability facts) through the dataflow pass.
package lattice

// Value is one of the three points of Ξimm. The zero value is NonRef so
// an unseeded map entry behaves like "not a reference" rather than
// panicking callers who forget to seed it.
type Value int

const (
	// NonRef: not a reference at all — owned data or a primitive.
	NonRef Value = iota
	// OkRef: a reference proven not to escape and not to touch
	// invariant-protected state.
	OkRef
	// InvRef: a reference that either points at invariant-protected
	// state or has been observed to flow to an escape point. spec.md §9
	// notes these two causes are folded together at the lattice level;
	// InvRefReason (below) names the two causes, but no VarState or
	// finding message records one, so the two are not distinguished.
	InvRef
)

func (v Value) String() string {
	switch v {
	case NonRef:
		return "NonRef"
	case OkRef:
		return "OkRef"
	case InvRef:
		return "InvRef"
	default:
		return "Unknown"
	}
}

// InvRefReason enumerates why a value can widen to InvRef. It is not
// stored in VarState and has no effect on ordering or join.
type InvRefReason int

const (
	ReasonNone InvRefReason = iota
	ReasonInvariantState
	ReasonEscaped
)

// Join computes the least upper bound of two Ξimm values under
// NonRef ⊏ OkRef ⊏ InvRef.
func Join(a, b Value) Value {
	if a > b {
		return a
	}
	return b
}

// Leq reports whether a is less than or equal to b in the lattice order.
func Leq(a, b Value) bool { return a <= b }
