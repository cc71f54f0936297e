package wa

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow"
)

// Client is a live WhatsApp session handle.
type Client interface {
	// Initialize starts connecting. Progress is reported through the
	// Handler the client was built with; Initialize returns once the
	// connection attempt is under way.
	Initialize(ctx context.Context) error
	// SendText sends text to chatID and returns the server message id.
	SendText(ctx context.Context, chatID, text string) (string, error)
	// Close tears the connection down. The handle is unusable afterwards.
	Close()
}

// ContactLister is implemented by clients that expose an address book.
type ContactLister interface {
	Contacts(ctx context.Context) ([]Contact, error)
}

// MediaDownloader is implemented by clients that can fetch attachments.
type MediaDownloader interface {
	Download(ctx context.Context, m *Media) ([]byte, error)
}

// LogoutClient is implemented by clients that can unlink the device.
type LogoutClient interface {
	Logout(ctx context.Context) error
}

// Factory builds a new handle whose lifecycle events go to h.
type Factory func(ctx context.Context, h Handler) (Client, error)

// Handler receives lifecycle and message events. It must not block.
type Handler func(Event)

// EventKind enumerates what the client reports.
type EventKind string

const (
	KindQR            EventKind = "qr"
	KindReady         EventKind = "ready"
	KindAuthenticated EventKind = "authenticated"
	KindAuthFailure   EventKind = "auth_failure"
	KindDisconnected  EventKind = "disconnected"
	KindMessage       EventKind = "message"
	KindHistory       EventKind = "history"
)

// Event is a library-agnostic client event.
type Event struct {
	Kind    EventKind
	QRCode  string
	Reason  string
	Message *InboundMessage
	History []*InboundMessage
}

// InboundMessage is a normalized message observed on the session, sent by
// us or by someone else.
type InboundMessage struct {
	ChatID     string
	ChatName   string
	ID         string
	Sender     string
	SenderName string
	Body       string
	Type       string
	FromMe     bool
	Timestamp  time.Time
	Media      *Media
}

// Media points at a downloadable attachment.
type Media struct {
	MimeType string
	FileName string
	source   whatsmeow.DownloadableMessage
}

// Contact is an address-book entry reported by the client.
type Contact struct {
	JID      string
	Name     string
	PushName string
}
