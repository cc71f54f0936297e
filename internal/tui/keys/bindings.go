package keys

import "github.com/gdamore/tcell/v2"

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

type scope struct {
	names   []string
	actions map[string]*Action
}

func (s *scope) add(name string, a *Action) {
	if s.actions == nil {
		s.actions = make(map[string]*Action)
	}
	if _, ok := s.actions[name]; !ok {
		s.names = append(s.names, name)
	}
	s.actions[name] = a
}

func (s *scope) each(fn func(*Action) bool) bool {
	if s == nil {
		return false
	}
	for _, n := range s.names {
		if fn(s.actions[n]) {
			return true
		}
	}
	return false
}

// Registry holds keybindings organized by scope. Hints and matching follow
// registration order.
type Registry struct {
	global scope
	views  map[string]*scope
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string]*scope)}
}

// AddGlobal registers a global keybinding. Re-adding a name replaces it.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global.add(name, action)
}

// AddView registers a view-specific keybinding.
func (r *Registry) AddView(view, name string, action *Action) {
	s, ok := r.views[view]
	if !ok {
		s = &scope{}
		r.views[view] = s
	}
	s.add(name, action)
}

// Hints returns visible keybinding descriptions for a given view, view
// bindings first.
func (r *Registry) Hints(view string) []string {
	var hints []string
	collect := func(a *Action) bool {
		if a.Visible {
			hints = append(hints, a.Description)
		}
		return false
	}
	r.views[view].each(collect)
	r.global.each(collect)
	return hints
}

// HandleEvent dispatches a key event to matching action in the given view.
// Returns true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	run := func(a *Action) bool {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
		return false
	}
	if r.views[view].each(run) {
		return true
	}
	return r.global.each(run)
}
