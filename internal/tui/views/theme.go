package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor       tcell.Color
	FgColor       tcell.Color
	BorderColor   tcell.Color
	TitleColor    tcell.Color
	TableHeaderFg tcell.Color
	CursorFg      tcell.Color
	CursorBg      tcell.Color
	// Color tags for tview dynamic text.
	KeyTag       string
	FlashInfoTag string
	FlashErrTag  string
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:       tcell.ColorBlack,
		FgColor:       tcell.ColorCadetBlue,
		BorderColor:   tcell.ColorDodgerBlue,
		TitleColor:    tcell.ColorFuchsia,
		TableHeaderFg: tcell.ColorWhite,
		CursorFg:      tcell.ColorBlack,
		CursorBg:      tcell.ColorAqua,
		KeyTag:        "dodgerblue",
		FlashInfoTag:  "navajowhite",
		FlashErrTag:   "orangered",
	}
}

func (t *Theme) frame(b *tview.Box, title string) {
	b.SetBorder(true).
		SetTitle(" " + title + " ").
		SetBorderColor(t.BorderColor).
		SetTitleColor(t.TitleColor).
		SetBackgroundColor(t.BgColor)
}

func (t *Theme) table(title string) *tview.Table {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetSelectedStyle(tcell.StyleDefault.Foreground(t.CursorFg).Background(t.CursorBg))
	t.frame(table.Box, title)
	return table
}

func (t *Theme) header(table *tview.Table, cols ...string) {
	for i, c := range cols {
		table.SetCell(0, i, tview.NewTableCell(" "+c).
			SetSelectable(false).
			SetTextColor(t.TableHeaderFg).
			SetAttributes(tcell.AttrBold))
	}
}
