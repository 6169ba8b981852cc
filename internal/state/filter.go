package state

// Filter selects states by identifier, tool name, attachment, and
// terminal presence. Nil fields match everything; set fields must all
// hold. Matching never mutates the state.
type Filter struct {
	ID       *string
	Name     *string
	Attached *bool
	Terminal *bool
}

func (f Filter) Match(s *State) bool {
	if s == nil {
		return false
	}
	if f.ID != nil && s.ID != *f.ID {
		return false
	}
	if f.Name != nil && s.Name() != *f.Name {
		return false
	}
	if f.Attached != nil && s.Attached() != *f.Attached {
		return false
	}
	if f.Terminal != nil && s.HasTerminal() != *f.Terminal {
		return false
	}
	return true
}

// Empty reports whether the filter matches every state.
func (f Filter) Empty() bool {
	return f.ID == nil && f.Name == nil && f.Attached == nil && f.Terminal == nil
}

// ByID filters for the state with the exact identifier.
func ByID(id string) Filter {
	return Filter{ID: &id}
}

// Named is shorthand for a filter on the tool name. An empty name
// yields the match-all filter.
func Named(name string) Filter {
	if name == "" {
		return Filter{}
	}
	return Filter{Name: &name}
}

// AttachedNamed filters for live sessions, optionally narrowed by tool
// name.
func AttachedNamed(name string) Filter {
	attached := true
	f := Named(name)
	f.Attached = &attached
	return f
}
