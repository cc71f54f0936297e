package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/wpplus/internal/store"
	"github.com/rivo/tview"
)

// MessageView displays messages for a single chat.
type MessageView struct {
	*tview.TextView
}

// NewMessageView creates a new message view.
func NewMessageView(theme *Theme) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	theme.frame(tv.Box, "Messages")

	return &MessageView{TextView: tv}
}

// SetChatName updates the title with the chat name.
func (mv *MessageView) SetChatName(name string) {
	mv.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))
}

// Update renders msgs, which arrive oldest first.
func (mv *MessageView) Update(msgs []store.Message) {
	mv.Clear()
	now := time.Now()
	for _, m := range msgs {
		_, _ = fmt.Fprint(mv, formatMessage(m, now))
	}
	mv.ScrollToEnd()
}

func formatMessage(m store.Message, now time.Time) string {
	sender := m.Sender
	if m.FromMe {
		sender = "You"
	}
	if sender == "" {
		sender = "?"
	}
	body := tview.Escape(sanitizeForTerminal(m.Body))
	if m.MediaType != "" {
		attachment := "[::d]" + tview.Escape("["+m.MediaType+"]") + "[-:-:-]"
		if body == "" {
			body = attachment
		} else {
			body = attachment + " " + body
		}
	}
	color := "-"
	if m.FromMe {
		color = "green"
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
		color, tview.Escape(sender), formatTimestamp(m.Timestamp, now), body)
}
