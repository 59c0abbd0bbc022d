package events

// Flags is a grow-only set of identifiers that remembers insertion order.
type Flags struct {
	order []string
	set   map[string]struct{}
}

// NewFlags creates a set holding ids.
func NewFlags(ids ...string) *Flags {
	f := &Flags{set: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		f.Add(id)
	}
	return f
}

// Add inserts id. It reports whether id was new.
func (f *Flags) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := f.set[id]; ok {
		return false
	}
	f.set[id] = struct{}{}
	f.order = append(f.order, id)
	return true
}

// Has reports whether id is set.
func (f *Flags) Has(id string) bool {
	_, ok := f.set[id]
	return ok
}

// Holds evaluates a flag predicate: "name" must be set, "!name" must not be.
// An empty predicate always holds.
func (f *Flags) Holds(pred string) bool {
	if pred == "" {
		return true
	}
	if pred[0] == '!' {
		return !f.Has(pred[1:])
	}
	return f.Has(pred)
}

// List returns the ids in insertion order.
func (f *Flags) List() []string {
	return append([]string(nil), f.order...)
}

// Len returns the number of flags set.
func (f *Flags) Len() int {
	return len(f.order)
}
