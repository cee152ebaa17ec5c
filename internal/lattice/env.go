package lattice

// VarState is everything tracked for one variable at one program point:
// its Ξimm value plus its optional object/capability facts (spec.md §3,
// "Environment").
type VarState struct {
	Ref Value
	Obj *ObjectFact
	Cap *CapabilityFact
}

// Environment maps variable identifiers to VarState. Per the design
// notes (§9 "Environment sharing at branches"), predecessor environments
// are treated as read-only and a join produces a fresh successor; to
// avoid an O(n) copy on every branch, Environment layers a small
// overlay on top of an optional parent rather than copying the parent's
// whole backing map. Lookups walk the overlay chain; only Fork pays for
// a new (empty) overlay, not a full copy.
type Environment struct {
	parent  *Environment
	overlay map[string]VarState
}

// NewEnvironment returns an empty root environment.
func NewEnvironment() *Environment {
	return &Environment{overlay: make(map[string]VarState)}
}

// Fork returns a child environment that shares e's bindings until
// overridden, implementing the copy-on-write layering described above.
func (e *Environment) Fork() *Environment {
	return &Environment{parent: e, overlay: make(map[string]VarState)}
}

// Get looks up a variable, walking the overlay chain from the most
// recent fork back to the root. The zero VarState (NonRef, no facts) is
// returned for an unknown variable.
func (e *Environment) Get(name string) VarState {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.overlay[name]; ok {
			return v
		}
	}
	return VarState{Ref: NonRef}
}

// Set binds name in this environment's own overlay, shadowing any
// binding from a parent.
func (e *Environment) Set(name string, v VarState) {
	e.overlay[name] = v
}

// Names returns every variable name visible from e (own overlay plus
// ancestors), deduplicated, in no particular order — callers that need
// determinism should sort.
func (e *Environment) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for env := e; env != nil; env = env.parent {
		for k := range env.overlay {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	return names
}

// Flatten collapses the overlay chain into a single fresh Environment
// with no parent. Used when an environment will live a long time (e.g.
// a loop header's fixed-point state) so chain length doesn't grow
// unboundedly across iterations.
func (e *Environment) Flatten() *Environment {
	out := NewEnvironment()
	for _, n := range e.Names() {
		out.overlay[n] = e.Get(n)
	}
	return out
}

// JoinEnv computes the pointwise least-upper-bound environment of two
// predecessor environments at a CFG merge (spec.md §4.2 "Join"). Both
// inputs are treated as read-only; the result is a fresh, flattened
// environment.
func JoinEnv(a, b *Environment) *Environment {
	out := NewEnvironment()
	names := make(map[string]bool)
	for _, n := range a.Names() {
		names[n] = true
	}
	for _, n := range b.Names() {
		names[n] = true
	}
	for n := range names {
		av := a.Get(n)
		bv := b.Get(n)
		out.overlay[n] = VarState{
			Ref: Join(av.Ref, bv.Ref),
			Obj: JoinObjectFact(av.Obj, bv.Obj),
			Cap: JoinCapabilityFact(av.Cap, bv.Cap),
		}
	}
	return out
}

// JoinManyEnv folds JoinEnv across an arbitrary number of predecessor
// environments (a CFG merge with more than two predecessors is
// possible, e.g. multiple back-edges into one loop header). Panics if
// envs is empty — callers always have at least the loop entry edge.
func JoinManyEnv(envs []*Environment) *Environment {
	if len(envs) == 0 {
		panic("lattice: JoinManyEnv requires at least one environment")
	}
	out := envs[0]
	for _, e := range envs[1:] {
		out = JoinEnv(out, e)
	}
	return out
}

// Equal reports whether two environments bind the same variables to
// value-equal VarStates, used by the fixed-point loop to detect
// convergence (spec.md §4.2, "Fixed point").
func Equal(a, b *Environment) bool {
	an, bn := a.Names(), b.Names()
	if len(an) != len(bn) {
		return false
	}
	for _, n := range an {
		av, bv := a.Get(n), b.Get(n)
		if av.Ref != bv.Ref {
			return false
		}
		if !objEqual(av.Obj, bv.Obj) {
			return false
		}
		if !capEqual(av.Cap, bv.Cap) {
			return false
		}
	}
	return true
}

func objEqual(a, b *ObjectFact) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func capEqual(a, b *CapabilityFact) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
