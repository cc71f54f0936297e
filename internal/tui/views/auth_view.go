package views

import (
	"fmt"

	"github.com/matheus3301/wpplus/internal/qr"
	"github.com/rivo/tview"
)

// AuthView displays the pairing QR code.
type AuthView struct {
	*tview.TextView
	code string
}

// NewAuthView creates a new auth view.
func NewAuthView(theme *Theme) *AuthView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	theme.frame(tv.Box, "Authentication Required")
	tv.SetTextColor(theme.FgColor)

	return &AuthView{TextView: tv}
}

// ShowQR renders the pairing payload. Re-rendering the same payload is a
// no-op, so polling does not flicker.
func (av *AuthView) ShowQR(code string) {
	if code == av.code {
		return
	}
	av.code = code
	av.Clear()

	art, err := qr.Render(code)
	if err != nil {
		_, _ = fmt.Fprintf(av, "\n\n[red]%s[-]", tview.Escape(err.Error()))
		return
	}
	_, _ = fmt.Fprintf(av, "\n  Scan this QR code with WhatsApp (Linked devices):\n\n%s\n  [::d]Waiting for authentication...", art)
}

// ShowMessage displays a status message.
func (av *AuthView) ShowMessage(msg string) {
	av.code = ""
	av.Clear()
	_, _ = fmt.Fprintf(av, "\n\n%s", tview.Escape(msg))
}
