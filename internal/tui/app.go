// Package tui is the terminal client for a profile daemon.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpplus/internal/tui/keys"
	"github.com/matheus3301/wpplus/internal/tui/model"
	"github.com/matheus3301/wpplus/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageChats     = "chats"
	pageChat      = "chat"
	pageScheduled = "scheduled"
	pageSchedule  = "schedule"
	pageAuth      = "auth"

	refreshInterval = 5 * time.Second
	flashTTL        = 5 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	registry  *keys.Registry
	statusBar *views.StatusBar
	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	schedView *views.ScheduledView
	schedForm *views.ScheduleForm
	authView  *views.AuthView
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(b model.Backend, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := views.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(b),
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(theme),
		chatList:  views.NewChatList(theme),
		msgView:   views.NewMessageView(theme),
		composer:  views.NewComposer(),
		schedView: views.NewScheduledView(theme),
		schedForm: views.NewScheduleForm(theme),
		authView:  views.NewAuthView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal("chats", &keys.Action{
		Rune: '1', Key: tcell.KeyRune,
		Description: "1:chats", Visible: true,
		Handler: a.showChats,
	})
	a.registry.AddGlobal("scheduled", &keys.Action{
		Rune: '2', Key: tcell.KeyRune,
		Description: "2:scheduled", Visible: true,
		Handler: a.showScheduled,
	})
	a.registry.AddGlobal("refresh", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:refresh", Visible: true,
		Handler: func() { go a.refresh() },
	})

	a.registry.AddView(pageChats, "open", &keys.Action{
		Key: tcell.KeyEnter, Description: "enter:open", Visible: true,
		Handler: func() {
			if id := a.chatList.SelectedChat(); id != "" {
				a.openChat(id)
			}
		},
	})
	a.registry.AddView(pageChat, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:write", Visible: true,
		Handler: func() { a.app.SetFocus(a.composer) },
	})
	a.registry.AddView(pageScheduled, "new", &keys.Action{
		Rune: 'n', Key: tcell.KeyRune,
		Description: "n:new", Visible: true,
		Handler: a.showScheduleForm,
	})
	a.registry.AddView(pageScheduled, "delete", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Description: "d:delete", Visible: true,
		Handler: a.deleteSelected,
	})
	a.registry.AddView(pageScheduled, "run", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Description: "x:run now", Visible: true,
		Handler: a.runScheduler,
	})
}

func (a *App) setupCallbacks() {
	a.composer.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.SendText(a.ctx, text); err != nil {
				a.vm.Flash.Error("Send failed: "+err.Error(), flashTTL)
			} else if err := a.vm.ReloadActive(a.ctx); err != nil {
				a.vm.Flash.Error("Load failed: "+err.Error(), flashTTL)
			}
			a.app.QueueUpdateDraw(func() {
				a.msgView.Update(a.vm.Messages())
				a.renderFlash()
			})
		}()
	})

	a.schedForm.SetHandlers(
		func(contactID, content string, at time.Time) {
			go func() {
				if err := a.vm.Schedule(a.ctx, contactID, content, at); err != nil {
					a.vm.Flash.Error("Schedule failed: "+err.Error(), flashTTL)
					a.app.QueueUpdateDraw(a.renderFlash)
					return
				}
				a.app.QueueUpdateDraw(func() {
					a.schedView.Update(a.vm.Scheduled())
					a.switchTo(pageScheduled, a.schedView)
				})
			}()
		},
		func(err error) {
			a.vm.Flash.Error(err.Error(), flashTTL)
			a.renderFlash()
		},
		func() { a.switchTo(pageScheduled, a.schedView) },
	)
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageChat, chatFlex, true, false)
	a.pages.AddPage(pageScheduled, a.schedView, true, false)
	a.pages.AddPage(pageSchedule, a.schedForm, true, false)
	a.pages.AddPage(pageAuth, a.authView, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 2, 0, false)

	a.app.SetRoot(root, true)
	a.statusBar.SetHints(a.registry.Hints(pageChats))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case pageChat:
				a.vm.CloseChat()
				a.showChats()
				return nil
			case pageSchedule:
				a.switchTo(pageScheduled, a.schedView)
				return nil
			case pageScheduled:
				a.showChats()
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		switch a.app.GetFocus().(type) {
		case *tview.InputField, *tview.TextArea, *tview.DropDown:
			return event
		}
		if currentPage == pageSchedule {
			return event
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

func (a *App) switchTo(page string, focus tview.Primitive) {
	a.pages.SwitchToPage(page)
	a.app.SetFocus(focus)
	a.statusBar.SetHints(a.registry.Hints(page))
}

func (a *App) showChats() {
	a.chatList.Update(a.vm.Chats())
	a.switchTo(pageChats, a.chatList)
}

func (a *App) showScheduled() {
	a.switchTo(pageScheduled, a.schedView)
	go func() {
		if err := a.vm.LoadScheduled(a.ctx); err != nil {
			a.vm.Flash.Error("Load failed: "+err.Error(), flashTTL)
		}
		a.app.QueueUpdateDraw(func() {
			a.schedView.Update(a.vm.Scheduled())
			a.renderFlash()
		})
	}()
}

func (a *App) showScheduleForm() {
	go func() {
		if err := a.vm.LoadContacts(a.ctx); err != nil {
			a.vm.Flash.Error("Load contacts failed: "+err.Error(), flashTTL)
			a.app.QueueUpdateDraw(a.renderFlash)
			return
		}
		a.app.QueueUpdateDraw(func() {
			contacts := a.vm.Contacts()
			if len(contacts) == 0 {
				a.vm.Flash.Error("No contacts yet, add or sync some first", flashTTL)
				a.renderFlash()
				return
			}
			a.schedForm.Reset(contacts, time.Now())
			a.switchTo(pageSchedule, a.schedForm)
		})
	}()
}

func (a *App) deleteSelected() {
	m := a.schedView.Selected()
	if m == nil {
		return
	}
	id := m.ID
	go func() {
		if err := a.vm.DeleteScheduled(a.ctx, id); err != nil {
			a.vm.Flash.Error("Delete failed: "+err.Error(), flashTTL)
		}
		a.app.QueueUpdateDraw(func() {
			a.schedView.Update(a.vm.Scheduled())
			a.renderFlash()
		})
	}()
}

func (a *App) runScheduler() {
	go func() {
		rep, err := a.vm.RunScheduler(a.ctx)
		switch {
		case err != nil:
			a.vm.Flash.Error("Run failed: "+err.Error(), flashTTL)
		case rep.Skipped:
			a.vm.Flash.Set("A dispatch pass is already running", flashTTL)
		default:
			a.vm.Flash.Set(fmt.Sprintf("Due %d, sent %d, failed %d", rep.Due, rep.Sent, rep.Failed), flashTTL)
		}
		a.app.QueueUpdateDraw(func() {
			a.schedView.Update(a.vm.Scheduled())
			a.renderFlash()
		})
	}()
}

func (a *App) openChat(id string) {
	go func() {
		if err := a.vm.OpenChat(a.ctx, id); err != nil {
			a.vm.Flash.Error("Load failed: "+err.Error(), flashTTL)
			a.app.QueueUpdateDraw(a.renderFlash)
			return
		}
		chat := a.vm.ActiveChat()
		name := chat.Name
		if name == "" {
			name = chat.RemoteID
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.SetChatName(name)
			a.msgView.Update(a.vm.Messages())
			a.composer.SetReadOnly(!a.vm.CanSend())
			a.switchTo(pageChat, a.msgView)
		})
	}()
}

func (a *App) renderFlash() {
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// refresh polls the daemon and redraws whatever page is showing. Polling
// status also boots the daemon's session, so the QR shows up here.
func (a *App) refresh() {
	if err := a.vm.LoadStatus(a.ctx); err != nil {
		a.vm.Flash.Error("Daemon unreachable: "+err.Error(), flashTTL)
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetState(nil)
			a.renderFlash()
		})
		return
	}
	_ = a.vm.LoadChats(a.ctx)

	currentPage, _ := a.pages.GetFrontPage()
	switch currentPage {
	case pageChat:
		_ = a.vm.ReloadActive(a.ctx)
	case pageScheduled:
		_ = a.vm.LoadScheduled(a.ctx)
	}

	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetState(a.vm.Status())
		page, _ := a.pages.GetFrontPage()
		switch {
		case a.vm.NeedsAuth():
			a.authView.ShowQR(a.vm.Status().Code)
			if page != pageAuth {
				a.switchTo(pageAuth, a.authView)
			}
		case page == pageAuth:
			a.authView.ShowMessage("Connected")
			a.showChats()
		case page == pageChats:
			a.chatList.Update(a.vm.Chats())
		case page == pageChat:
			a.msgView.Update(a.vm.Messages())
		case page == pageScheduled:
			a.schedView.Update(a.vm.Scheduled())
		}
		a.renderFlash()
	})
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	go func() {
		a.refresh()
		a.startRefreshLoop()
	}()
	defer a.cancel()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
