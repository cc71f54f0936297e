package wa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/wpplus/internal/logging"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Options configures the whatsmeow-backed client.
type Options struct {
	// SessionDBPath is where whatsmeow keeps device keys. Opaque to us.
	SessionDBPath string
	// DeviceName is shown in the phone's linked devices list.
	DeviceName string
}

// Adapter wraps the whatsmeow client and implements Client.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	handler   Handler
	logger    *zap.Logger
}

// NewFactory returns a Factory that opens a fresh whatsmeow client per call.
func NewFactory(opts Options, logger *zap.Logger) Factory {
	return func(ctx context.Context, h Handler) (Client, error) {
		return NewAdapter(ctx, opts, h, logger)
	}
}

// NewAdapter opens the device store and builds a client whose events are
// translated and passed to h.
func NewAdapter(ctx context.Context, opts Options, h Handler, logger *zap.Logger) (*Adapter, error) {
	if opts.DeviceName != "" {
		wastore.SetOSInfo(opts.DeviceName, [3]uint32{0, 1, 0})
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", opts.SessionDBPath),
		logging.WA(logger, "whatsmeow.db"),
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client:    whatsmeow.NewClient(deviceStore, logging.WA(logger, "whatsmeow")),
		container: container,
		handler:   h,
		logger:    logger,
	}
	a.client.AddEventHandler(a.handleRaw)
	return a, nil
}

// IsLoggedIn returns whether the device store holds credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Initialize connects. Without stored credentials it first opens the QR
// channel so pairing codes are emitted as KindQR events.
func (a *Adapter) Initialize(ctx context.Context) error {
	if a.IsLoggedIn() {
		a.logger.Info("connecting to WhatsApp with stored credentials")
		if err := a.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		return nil
	}

	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get QR channel: %w", err)
	}
	a.logger.Info("connecting to WhatsApp for pairing")
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	go a.pumpQR(qrChan)
	return nil
}

func (a *Adapter) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			a.emit(Event{Kind: KindQR, QRCode: item.Code})
		case "success":
			a.emit(Event{Kind: KindAuthenticated})
			return
		case "timeout":
			a.emit(Event{Kind: KindAuthFailure, Reason: "QR code timeout"})
			return
		default:
			if item.Error != nil {
				a.emit(Event{Kind: KindAuthFailure, Reason: item.Error.Error()})
				return
			}
			a.logger.Debug("ignoring QR channel event", zap.String("event", item.Event))
		}
	}
}

func (a *Adapter) handleRaw(raw any) {
	evt, ok := Translate(raw, a.resolveJID)
	if !ok {
		return
	}
	a.emit(evt)
}

func (a *Adapter) emit(evt Event) {
	if evt.Reason != "" {
		a.logger.Info("whatsapp event", zap.String("kind", string(evt.Kind)), zap.String("reason", evt.Reason))
	}
	if a.handler != nil {
		a.handler(evt)
	}
}

// SendText sends a text message to the given JID. Returns the server message ID.
func (a *Adapter) SendText(ctx context.Context, chatID, text string) (string, error) {
	to, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// Download fetches and decrypts an attachment.
func (a *Adapter) Download(ctx context.Context, m *Media) ([]byte, error) {
	if m == nil || m.source == nil {
		return nil, errors.New("message has no downloadable media")
	}
	data, err := a.client.Download(ctx, m.source)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	return data, nil
}

// Contacts returns the address book kept in the device store.
func (a *Adapter) Contacts(ctx context.Context) ([]Contact, error) {
	all, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	contacts := make([]Contact, 0, len(all))
	for jid, info := range all {
		normalized := a.resolveJID(jid.ToNonAD().String())
		if !strings.HasSuffix(normalized, "@"+types.DefaultUserServer) {
			continue
		}
		contacts = append(contacts, Contact{
			JID:      normalized,
			Name:     info.FullName,
			PushName: info.PushName,
		})
	}
	return contacts, nil
}

// Logout unlinks the device and removes stored credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// Close disconnects and releases the device store.
func (a *Adapter) Close() {
	a.client.Disconnect()
	if err := a.container.Close(); err != nil {
		a.logger.Warn("close session store", zap.Error(err))
	}
}

func (a *Adapter) resolveJID(s string) string {
	s = NormalizeJID(s)
	jid, err := types.ParseJID(s)
	if err != nil || !isLID(jid) {
		return s
	}
	return a.ResolveLID(context.Background(), jid).String()
}

// ResolveLID resolves a LID JID to its phone number JID using the device store mapping.
// Returns the original JID if it's not a LID or if resolution fails.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if !isLID(jid) {
		return jid
	}
	if a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}
