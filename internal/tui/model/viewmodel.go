package model

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wpplus/internal/api"
	"github.com/matheus3301/wpplus/internal/dispatch"
	"github.com/matheus3301/wpplus/internal/scheduler"
	"github.com/matheus3301/wpplus/internal/store"
)

const (
	pageSize = 100
	// maxMessages bounds how much history one chat view holds.
	maxMessages = 1000
)

// ErrReadOnlyChat is returned when sending to a chat that is not a
// one-to-one conversation.
var ErrReadOnlyChat = errors.New("only one-to-one chats accept messages")

// Backend is the daemon API used by the view model. *client.Client
// implements it.
type Backend interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Send(ctx context.Context, phone, content string) (string, error)
	ListChats(ctx context.Context) ([]store.ChatSummary, error)
	ListMessages(ctx context.Context, chatID, cursor string, limit int) (*api.MessagePage, error)
	ListScheduled(ctx context.Context) ([]store.ScheduledMessage, error)
	CreateScheduled(ctx context.Context, contactID, content string, at time.Time) (*store.ScheduledMessage, error)
	DeleteScheduled(ctx context.Context, id string) error
	RunScheduler(ctx context.Context) (*scheduler.TickReport, error)
	ListContacts(ctx context.Context) ([]store.ContactSummary, error)
}

// ViewModel caches daemon state for the views. Load methods fetch; the
// accessors return snapshots.
type ViewModel struct {
	mu sync.RWMutex

	backend    Backend
	status     *api.StatusResponse
	chats      []store.ChatSummary
	messages   []store.Message
	activeChat *store.ChatSummary
	scheduled  []store.ScheduledMessage
	contacts   []store.ContactSummary

	Flash Flash
}

// NewViewModel creates a view model backed by the daemon client.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{backend: b}
}

// LoadStatus fetches the session state. The daemon boots the session on
// this call if it is not running.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.backend.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	return nil
}

// LoadChats fetches the chat list.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	chats, err := vm.backend.ListChats(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.chats = chats
	vm.mu.Unlock()
	return nil
}

// OpenChat makes chatID the active chat and loads its history, oldest
// first. Only the newest maxMessages are kept.
func (vm *ViewModel) OpenChat(ctx context.Context, chatID string) error {
	var msgs []store.Message
	cursor := ""
	for {
		page, err := vm.backend.ListMessages(ctx, chatID, cursor, pageSize)
		if err != nil {
			return err
		}
		msgs = append(msgs, page.Items...)
		if len(msgs) > maxMessages {
			msgs = msgs[len(msgs)-maxMessages:]
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.messages = msgs
	vm.activeChat = nil
	for i := range vm.chats {
		if vm.chats[i].ID == chatID {
			c := vm.chats[i]
			vm.activeChat = &c
			break
		}
	}
	if vm.activeChat == nil {
		vm.activeChat = &store.ChatSummary{Chat: store.Chat{ID: chatID}}
	}
	return nil
}

// ReloadActive refreshes the history of the active chat, if any.
func (vm *ViewModel) ReloadActive(ctx context.Context) error {
	chat := vm.ActiveChat()
	if chat == nil {
		return nil
	}
	return vm.OpenChat(ctx, chat.ID)
}

// CloseChat clears the active chat.
func (vm *ViewModel) CloseChat() {
	vm.mu.Lock()
	vm.activeChat = nil
	vm.messages = nil
	vm.mu.Unlock()
}

// SendText sends text to the active chat.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	chat := vm.ActiveChat()
	if chat == nil {
		return errors.New("no chat open")
	}
	if !isUserChat(chat.RemoteID) {
		return ErrReadOnlyChat
	}
	if _, err := vm.backend.Send(ctx, dispatch.NormalizeNumber(chat.RemoteID), text); err != nil {
		return err
	}
	vm.Flash.Set("Message sent", 3*time.Second)
	return nil
}

// CanSend reports whether the active chat accepts messages.
func (vm *ViewModel) CanSend() bool {
	chat := vm.ActiveChat()
	return chat != nil && isUserChat(chat.RemoteID)
}

func isUserChat(remoteID string) bool {
	return strings.HasSuffix(remoteID, "@"+dispatch.UserServer)
}

// LoadScheduled fetches the scheduled queue.
func (vm *ViewModel) LoadScheduled(ctx context.Context) error {
	list, err := vm.backend.ListScheduled(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.scheduled = list
	vm.mu.Unlock()
	return nil
}

// LoadContacts fetches the contact list used by the schedule form.
func (vm *ViewModel) LoadContacts(ctx context.Context) error {
	list, err := vm.backend.ListContacts(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.contacts = list
	vm.mu.Unlock()
	return nil
}

// Schedule queues content for contactID and reloads the queue.
func (vm *ViewModel) Schedule(ctx context.Context, contactID, content string, at time.Time) error {
	if _, err := vm.backend.CreateScheduled(ctx, contactID, content, at); err != nil {
		return err
	}
	vm.Flash.Set("Message scheduled for "+at.Local().Format("Jan 2 15:04"), 3*time.Second)
	return vm.LoadScheduled(ctx)
}

// DeleteScheduled removes a pending message and reloads the queue.
func (vm *ViewModel) DeleteScheduled(ctx context.Context, id string) error {
	if err := vm.backend.DeleteScheduled(ctx, id); err != nil {
		return err
	}
	vm.Flash.Set("Scheduled message deleted", 3*time.Second)
	return vm.LoadScheduled(ctx)
}

// RunScheduler forces a dispatch pass and reloads the queue.
func (vm *ViewModel) RunScheduler(ctx context.Context) (*scheduler.TickReport, error) {
	rep, err := vm.backend.RunScheduler(ctx)
	if err != nil {
		return nil, err
	}
	return rep, vm.LoadScheduled(ctx)
}

// Status returns the last fetched session state, or nil.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// NeedsAuth reports whether the daemon is waiting for a QR scan.
func (vm *ViewModel) NeedsAuth() bool {
	st := vm.Status()
	return st != nil && st.Code != ""
}

// Chats returns a snapshot of the chat list.
func (vm *ViewModel) Chats() []store.ChatSummary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.chats
}

// Messages returns a snapshot of the active chat's history.
func (vm *ViewModel) Messages() []store.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// ActiveChat returns the open chat, or nil.
func (vm *ViewModel) ActiveChat() *store.ChatSummary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeChat
}

// Scheduled returns a snapshot of the scheduled queue.
func (vm *ViewModel) Scheduled() []store.ScheduledMessage {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.scheduled
}

// Contacts returns a snapshot of the contact list.
func (vm *ViewModel) Contacts() []store.ContactSummary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.contacts
}
