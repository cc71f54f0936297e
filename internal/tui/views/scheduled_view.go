package views

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpplus/internal/store"
	"github.com/rivo/tview"
)

// ScheduledView lists the scheduled queue.
type ScheduledView struct {
	*tview.Table
	theme *Theme
	items []store.ScheduledMessage
}

// NewScheduledView creates the scheduled queue table.
func NewScheduledView(theme *Theme) *ScheduledView {
	return &ScheduledView{Table: theme.table("Scheduled"), theme: theme}
}

var statusColors = map[store.ScheduledStatus]tcell.Color{
	store.StatusPending:     tcell.ColorYellow,
	store.StatusDispatching: tcell.ColorAqua,
	store.StatusSent:        tcell.ColorGreen,
	store.StatusFailed:      tcell.ColorOrangeRed,
}

// Update refreshes the table.
func (sv *ScheduledView) Update(items []store.ScheduledMessage) {
	sv.items = items
	sv.Clear()
	sv.theme.header(sv.Table, "When", "To", "Status", "Message", "Error")

	for i, m := range items {
		row := i + 1
		to := m.ContactName
		if to == "" {
			to = m.ContactRemoteID
		}
		sv.SetCell(row, 0, tview.NewTableCell(" "+m.ScheduledAt.Local().Format("2006-01-02 15:04")))
		sv.SetCell(row, 1, tview.NewTableCell(" "+sanitizeForTerminal(to)).SetMaxWidth(24))
		sv.SetCell(row, 2, tview.NewTableCell(" "+string(m.Status)).SetTextColor(statusColors[m.Status]))
		sv.SetCell(row, 3, tview.NewTableCell(" "+preview(m.Content)).SetMaxWidth(40).SetExpansion(1))
		sv.SetCell(row, 4, tview.NewTableCell(" "+m.LastError).SetMaxWidth(30))
	}
	sv.SetTitle(fmt.Sprintf(" Scheduled (%d) ", len(items)))
}

// Selected returns the highlighted message, or nil.
func (sv *ScheduledView) Selected() *store.ScheduledMessage {
	row, _ := sv.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.items) {
		return &sv.items[idx]
	}
	return nil
}

func preview(s string) string {
	return sanitizeForTerminal(strings.Join(strings.Fields(s), " "))
}

// ScheduleForm collects a new scheduled message.
type ScheduleForm struct {
	*tview.Form
	contacts []store.ContactSummary
	onSubmit func(contactID, content string, at time.Time)
	onError  func(err error)
	onCancel func()
}

// TimeLayout is the local time format the form accepts.
const TimeLayout = "2006-01-02 15:04"

// NewScheduleForm creates an empty form.
func NewScheduleForm(theme *Theme) *ScheduleForm {
	f := &ScheduleForm{Form: tview.NewForm()}
	theme.frame(f.Box, "Schedule Message")
	return f
}

// SetHandlers wires the form's buttons.
func (f *ScheduleForm) SetHandlers(submit func(contactID, content string, at time.Time), onErr func(error), cancel func()) {
	f.onSubmit, f.onError, f.onCancel = submit, onErr, cancel
}

// Reset rebuilds the fields for contacts, defaulting the time to now+1h.
func (f *ScheduleForm) Reset(contacts []store.ContactSummary, now time.Time) {
	f.contacts = contacts
	f.Clear(true)

	options := make([]string, len(contacts))
	for i, c := range contacts {
		label := c.Name
		if label == "" {
			label = c.RemoteID
		}
		options[i] = sanitizeForTerminal(label)
	}
	f.AddDropDown("To", options, 0, nil)
	f.AddInputField("When", now.Add(time.Hour).Local().Format(TimeLayout), 20, nil, nil)
	f.AddTextArea("Message", "", 0, 4, 0, nil)
	f.AddButton("Schedule", f.submit)
	f.AddButton("Cancel", func() {
		if f.onCancel != nil {
			f.onCancel()
		}
	})
}

func (f *ScheduleForm) submit() {
	idx, _ := f.GetFormItemByLabel("To").(*tview.DropDown).GetCurrentOption()
	when := f.GetFormItemByLabel("When").(*tview.InputField).GetText()
	content := f.GetFormItemByLabel("Message").(*tview.TextArea).GetText()

	contactID, at, err := parseScheduleInput(f.contacts, idx, when, content)
	if err != nil {
		if f.onError != nil {
			f.onError(err)
		}
		return
	}
	if f.onSubmit != nil {
		f.onSubmit(contactID, strings.TrimSpace(content), at)
	}
}

func parseScheduleInput(contacts []store.ContactSummary, idx int, when, content string) (string, time.Time, error) {
	if idx < 0 || idx >= len(contacts) {
		return "", time.Time{}, errors.New("pick a contact")
	}
	if strings.TrimSpace(content) == "" {
		return "", time.Time{}, errors.New("message is empty")
	}
	at, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(when), time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("time must look like %s", TimeLayout)
	}
	return contacts[idx].ID, at, nil
}
