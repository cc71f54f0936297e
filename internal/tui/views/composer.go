package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages.
type Composer struct {
	*tview.InputField
	onSend   func(text string)
	readOnly bool
}

// NewComposer creates a new message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	c := &Composer{InputField: input}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			c.submit()
		}
	})
	return c
}

func (c *Composer) submit() {
	if c.readOnly || c.onSend == nil {
		return
	}
	text := strings.TrimSpace(c.GetText())
	if text == "" {
		return
	}
	c.onSend(text)
	c.SetText("")
}

// SetOnSend sets the callback when a message is sent.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetReadOnly blocks sending, for chats the daemon cannot address.
func (c *Composer) SetReadOnly(readOnly bool) {
	c.readOnly = readOnly
	c.SetText("")
	c.SetDisabled(readOnly)
	if readOnly {
		c.SetPlaceholder("group chats are read-only")
	} else {
		c.SetPlaceholder("press i to write, enter to send")
	}
}
