package lattice

// ObjectFact tracks the lifecycle of one live variable of a `key`-having
// type (spec.md §3, §4.3, §4.6).
type ObjectFact struct {
	CreatedHere      bool
	Initialized      bool
	Transferred      bool
	Shared           bool
	OwnerChecked     bool
	ConsensusChecked bool
	TimestampChecked bool
	// InvariantGuarded records whether a dominating assert! guarding an
	// invariant-protected field (e.g. `assert!(!obj.locked)`) has been
	// observed on every incoming path (spec.md §4.3 "Invariant fields").
	InvariantGuarded bool
}

// JoinObjectFact merges two object facts observed on different
// predecessor edges of a CFG merge. Per spec.md §4.2's join rule,
// boolean "checked" attributes are ANDed (conservative: a check only
// holds if it held on every path), while lifecycle flags
// (Transferred/Shared/CreatedHere/Initialized) are ORed: once true on
// any path, later code must treat the object as though it is always
// true, which is the conservative direction for "must not appear in
// subsequent use sites" (the §3 invariant).
func JoinObjectFact(a, b *ObjectFact) *ObjectFact {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &ObjectFact{
		CreatedHere:      a.CreatedHere || b.CreatedHere,
		Initialized:      a.Initialized || b.Initialized,
		Transferred:      a.Transferred || b.Transferred,
		Shared:           a.Shared || b.Shared,
		OwnerChecked:     a.OwnerChecked && b.OwnerChecked,
		ConsensusChecked: a.ConsensusChecked && b.ConsensusChecked,
		TimestampChecked: a.TimestampChecked && b.TimestampChecked,
		InvariantGuarded: a.InvariantGuarded && b.InvariantGuarded,
	}
}

// Clone returns a shallow copy, used so callers can mutate a fact
// in-place for the successor environment without aliasing a
// predecessor's (read-only, per spec.md §9) environment.
func (f *ObjectFact) Clone() *ObjectFact {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

// CapabilityFact tracks a capability-typed variable (spec.md §3, §4.4).
type CapabilityFact struct {
	PermissionsMask      uint64
	ExpiryChecked        bool
	BoundResourceChecked bool
	MaxAmountChecked     bool
	DelegatedFrom        string // empty if not a delegate
}

// JoinCapabilityFact merges capability facts at a CFG merge with the
// same conservative AND-over-checks rule as JoinObjectFact. The
// permissions mask is intersected: a capability can only be assumed to
// carry a permission bit if every path agreed it had it.
func JoinCapabilityFact(a, b *CapabilityFact) *CapabilityFact {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	delegatedFrom := a.DelegatedFrom
	if delegatedFrom == "" {
		delegatedFrom = b.DelegatedFrom
	}
	return &CapabilityFact{
		PermissionsMask:      a.PermissionsMask & b.PermissionsMask,
		ExpiryChecked:        a.ExpiryChecked && b.ExpiryChecked,
		BoundResourceChecked: a.BoundResourceChecked && b.BoundResourceChecked,
		MaxAmountChecked:     a.MaxAmountChecked && b.MaxAmountChecked,
		DelegatedFrom:        delegatedFrom,
	}
}

// Clone returns a shallow copy.
func (f *CapabilityFact) Clone() *CapabilityFact {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}
