package keys

import (
	"reflect"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func runeEvent(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestViewBindingWinsOverGlobal(t *testing.T) {
	r := NewRegistry()
	var hit string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { hit = "global" }})
	r.AddView("chat", "quit", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { hit = "chat" }})

	if !r.HandleEvent("chat", runeEvent('q')) || hit != "chat" {
		t.Errorf("chat view hit = %q", hit)
	}
	if !r.HandleEvent("chats", runeEvent('q')) || hit != "global" {
		t.Errorf("chats view hit = %q", hit)
	}
	if r.HandleEvent("chats", runeEvent('x')) {
		t.Error("unbound key handled")
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	called := false
	r.AddView("scheduled", "delete", &Action{Key: tcell.KeyDelete, Handler: func() { called = true }})

	if !r.HandleEvent("scheduled", tcell.NewEventKey(tcell.KeyDelete, 0, tcell.ModNone)) || !called {
		t.Error("delete key not dispatched")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	noop := func() {}
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true, Handler: noop})
	r.AddGlobal("hidden", &Action{Key: tcell.KeyRune, Rune: 'z', Description: "z", Handler: noop})
	r.AddView("chats", "open", &Action{Key: tcell.KeyEnter, Description: "enter:open", Visible: true, Handler: noop})
	r.AddView("chats", "refresh", &Action{Key: tcell.KeyRune, Rune: 'r', Description: "r:refresh", Visible: true, Handler: noop})
	r.AddView("chats", "open", &Action{Key: tcell.KeyEnter, Description: "enter:read", Visible: true, Handler: noop})

	want := []string{"enter:read", "r:refresh", "q:quit"}
	if got := r.Hints("chats"); !reflect.DeepEqual(got, want) {
		t.Errorf("Hints = %v, want %v", got, want)
	}
	if got := r.Hints("unknown"); !reflect.DeepEqual(got, []string{"q:quit"}) {
		t.Errorf("Hints(unknown) = %v", got)
	}
}
