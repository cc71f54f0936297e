package store

import "time"

// ScheduledStatus is the lifecycle state of a scheduled message.
type ScheduledStatus string

const (
	StatusPending     ScheduledStatus = "Pending"
	StatusDispatching ScheduledStatus = "Dispatching"
	StatusSent        ScheduledStatus = "Sent"
	StatusFailed      ScheduledStatus = "Failed"
)

// Terminal reports whether no further transition is allowed.
func (s ScheduledStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Contact is an address-book entry. RemoteID is the WhatsApp JID.
type Contact struct {
	ID        string    `json:"id"`
	RemoteID  string    `json:"remoteId"`
	Name      string    `json:"name"`
	PushName  string    `json:"pushName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ContactSummary is a contact plus how many messages are scheduled for it.
type ContactSummary struct {
	Contact
	ScheduledCount int `json:"scheduledCount"`
}

// Chat is a mirrored conversation.
type Chat struct {
	ID        string    `json:"id"`
	RemoteID  string    `json:"remoteId"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatSummary is a chat plus its stored message count.
type ChatSummary struct {
	Chat
	MessageCount int `json:"messageCount"`
}

// Message is a mirrored message. RemoteID is the dedup key.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	RemoteID  string    `json:"remoteId"`
	Sender    string    `json:"sender,omitempty"`
	Body      string    `json:"body"`
	FromMe    bool      `json:"fromMe"`
	MediaType string    `json:"mediaType,omitempty"`
	MediaPath string    `json:"mediaPath,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IncomingMessage is a message to record together with the chat it belongs to.
type IncomingMessage struct {
	ChatRemoteID string
	ChatName     string
	Message      Message
}

// ScheduledMessage is a message queued for future delivery to a contact.
type ScheduledMessage struct {
	ID          string          `json:"id"`
	Content     string          `json:"content"`
	ScheduledAt time.Time       `json:"scheduledAt"`
	ContactID   string          `json:"contactId"`
	Status      ScheduledStatus `json:"status"`
	LastError   string          `json:"lastError,omitempty"`
	MessageID   string          `json:"messageId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`

	// Joined from contacts on reads.
	ContactRemoteID string `json:"contactRemoteId,omitempty"`
	ContactName     string `json:"contactName,omitempty"`
}

// QuickReply is a reusable message template.
type QuickReply struct {
	ID        string    `json:"id"`
	Shortcut  string    `json:"shortcut"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
