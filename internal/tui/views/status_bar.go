package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wpplus/internal/api"
	"github.com/matheus3301/wpplus/internal/status"
	"github.com/rivo/tview"
)

// StatusBar displays the session state, hints and flash messages.
type StatusBar struct {
	*tview.TextView
	theme   *Theme
	session string
	state   *api.StatusResponse
	hints   []string
	flash   string
	isErr   bool
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetState updates the connection display.
func (sb *StatusBar) SetState(st *api.StatusResponse) {
	sb.state = st
	sb.render()
}

// SetHints updates the key hints for the current page.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string, isErr bool) {
	sb.flash, sb.isErr = msg, isErr
	sb.render()
}

func statusLabel(st *api.StatusResponse) string {
	if st == nil {
		return "[gray]offline[-]"
	}
	switch st.Status {
	case status.Ready:
		return "[green]ready[-]"
	case status.Connecting:
		if st.Code != "" {
			return "[yellow]scan QR[-]"
		}
		return "[yellow]connecting[-]"
	default:
		return "[red]disconnected[-]"
	}
}

func (sb *StatusBar) line() string {
	parts := []string{fmt.Sprintf(" [::b]%s[-:-:-]", sb.session), statusLabel(sb.state)}
	if sb.state != nil && sb.state.Stats != nil {
		s := sb.state.Stats
		parts = append(parts, fmt.Sprintf("%d chats, %d msgs, %d queued", s.Chats, s.Messages, s.Scheduled))
	}
	parts = append(parts, sb.now().Format("15:04"))
	if sb.flash != "" {
		tag := sb.theme.FlashInfoTag
		if sb.isErr {
			tag = sb.theme.FlashErrTag
		}
		parts = append(parts, fmt.Sprintf("[%s]%s[-]", tag, tview.Escape(sb.flash)))
	}
	out := strings.Join(parts, " | ")
	if len(sb.hints) > 0 {
		keys := make([]string, len(sb.hints))
		for i, h := range sb.hints {
			k, d, _ := strings.Cut(h, ":")
			keys[i] = fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", sb.theme.KeyTag, k, d)
		}
		out += "\n " + strings.Join(keys, "  ")
	}
	return out
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}
