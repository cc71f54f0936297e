package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/wpplus/internal/store"
	"github.com/rivo/tview"
)

// ChatList is the main chat list view (K9s-inspired table).
type ChatList struct {
	*tview.Table
	theme *Theme
	chats []store.ChatSummary
}

// NewChatList creates a new chat list table.
func NewChatList(theme *Theme) *ChatList {
	return &ChatList{Table: theme.table("Chats"), theme: theme}
}

// Update refreshes the list, keeping the cursor on the same chat when it
// is still present.
func (cl *ChatList) Update(chats []store.ChatSummary) {
	selected := cl.SelectedChat()
	cl.chats = chats
	cl.Clear()
	cl.theme.header(cl.Table, "Name", "Number", "Messages", "Updated")

	cursor := 1
	for i, chat := range chats {
		row := i + 1
		name := chat.Name
		if name == "" {
			name = chat.RemoteID
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+sanitizeForTerminal(name)).SetMaxWidth(30).SetExpansion(2))
		cl.SetCell(row, 1, tview.NewTableCell(" "+chat.RemoteID).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf(" %d", chat.MessageCount)).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(chat.UpdatedAt, time.Now())).SetMaxWidth(12))
		if chat.ID == selected {
			cursor = row
		}
	}
	cl.SetTitle(fmt.Sprintf(" Chats (%d) ", len(chats)))
	if len(chats) > 0 {
		cl.Select(cursor, 0)
	}
}

// SelectedChat returns the id of the highlighted chat.
func (cl *ChatList) SelectedChat() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.chats) {
		return cl.chats[idx].ID
	}
	return ""
}

// formatTimestamp shows the time for today and the date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
