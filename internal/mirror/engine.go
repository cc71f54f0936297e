// Package mirror copies messages observed on the session into the local
// store, exactly once per remote id.
package mirror

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/matheus3301/wpplus/internal/bus"
	"github.com/matheus3301/wpplus/internal/store"
	"github.com/matheus3301/wpplus/internal/wa"
	"go.uber.org/zap"
)

// MediaFetcher downloads attachment bytes.
type MediaFetcher interface {
	Download(ctx context.Context, m *wa.Media) ([]byte, error)
}

// ContactSource lists the session's address book.
type ContactSource interface {
	Contacts(ctx context.Context) ([]wa.Contact, error)
}

// Engine ingests inbound and outbound messages into the store.
// It subscribes to "wa." events on the bus.
type Engine struct {
	db       *store.DB
	bus      *bus.Bus
	fetcher  MediaFetcher
	mediaDir string
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewEngine creates an engine. fetcher may be nil, in which case media is
// never downloaded.
func NewEngine(db *store.DB, b *bus.Bus, fetcher MediaFetcher, mediaDir string, logger *zap.Logger) *Engine {
	return &Engine{
		db:       db,
		bus:      b,
		fetcher:  fetcher,
		mediaDir: mediaDir,
		logger:   logger,
	}
}

// Start subscribes to session events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("wa.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop unsubscribes and waits for the event loop to exit.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindWAMessage:
		msg, ok := evt.Payload.(*wa.InboundMessage)
		if !ok {
			return
		}
		if _, err := e.IngestMessage(ctx, msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("remote_id", msg.ID))
		}
	case bus.KindWAHistoryBatch:
		msgs, ok := evt.Payload.([]*wa.InboundMessage)
		if !ok {
			return
		}
		n, err := e.IngestHistory(ctx, msgs)
		if err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(msgs)))
			return
		}
		e.logger.Info("history batch ingested", zap.Int("messages", len(msgs)), zap.Int("new", n))
	}
}

// RemoteID returns the dedup key of msg: its server id, or a synthesized
// id derived from chat, timestamp and body when the server gave none.
func RemoteID(msg *wa.InboundMessage) string {
	if msg.ID != "" {
		return msg.ID
	}
	sum := sha1.Sum([]byte(msg.Body))
	return fmt.Sprintf("synth-%s-%d-%s", msg.ChatID, msg.Timestamp.UnixMilli(), hex.EncodeToString(sum[:])[:8])
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SafeFileName strips directories and every character outside
// [a-zA-Z0-9._-] from name.
func SafeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = unsafeName.ReplaceAllString(name, "")
	if name == "." || name == ".." {
		return ""
	}
	return name
}

func toIncoming(msg *wa.InboundMessage) store.IncomingMessage {
	return store.IncomingMessage{
		ChatRemoteID: msg.ChatID,
		ChatName:     msg.ChatName,
		Message: store.Message{
			RemoteID:  RemoteID(msg),
			Sender:    msg.Sender,
			Body:      msg.Body,
			FromMe:    msg.FromMe,
			Timestamp: msg.Timestamp,
		},
	}
}

// IngestMessage stores msg unless its remote id is already known. Media is
// downloaded first; a failed download stores the message as text only.
func (e *Engine) IngestMessage(ctx context.Context, msg *wa.InboundMessage) (bool, error) {
	in := toIncoming(msg)
	remoteID := in.Message.RemoteID

	exists, err := e.db.MessageExists(ctx, remoteID)
	if err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	if exists {
		return false, nil
	}

	if msg.Media != nil {
		if name, err := e.saveMedia(ctx, remoteID, msg.Media); err != nil {
			e.logger.Warn("media download failed, storing text only",
				zap.String("remote_id", remoteID), zap.Error(err))
		} else {
			in.Message.MediaType = msg.Type
			in.Message.MediaPath = name
		}
	}

	inserted, err := e.db.SaveMessage(ctx, &in)
	if err != nil {
		return false, fmt.Errorf("save message: %w", err)
	}
	if inserted {
		e.publishStored(in.Message)
	}
	return inserted, nil
}

// IngestHistory stores a batch in one transaction without downloading
// media. It returns how many messages were new.
func (e *Engine) IngestHistory(ctx context.Context, msgs []*wa.InboundMessage) (int, error) {
	batch := make([]store.IncomingMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.ChatID == "" {
			continue
		}
		batch = append(batch, toIncoming(m))
	}
	n, err := e.db.SaveMessages(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("save history batch: %w", err)
	}
	return n, nil
}

// RecordOutgoing stores a message we sent.
func (e *Engine) RecordOutgoing(ctx context.Context, chatRemoteID, remoteID, body string, ts time.Time) error {
	in := store.IncomingMessage{
		ChatRemoteID: chatRemoteID,
		Message: store.Message{
			RemoteID:  remoteID,
			Body:      body,
			FromMe:    true,
			Timestamp: ts,
		},
	}
	inserted, err := e.db.SaveMessage(ctx, &in)
	if err != nil {
		return fmt.Errorf("record outgoing: %w", err)
	}
	if inserted {
		e.publishStored(in.Message)
	}
	return nil
}

// SyncContacts copies the user contacts of src into the store and returns
// how many were written. Group and broadcast entries are skipped.
func (e *Engine) SyncContacts(ctx context.Context, src ContactSource) (int, error) {
	entries, err := src.Contacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list contacts: %w", err)
	}
	contacts := make([]store.Contact, 0, len(entries))
	for _, c := range entries {
		if !strings.HasSuffix(c.JID, "@s.whatsapp.net") {
			continue
		}
		contacts = append(contacts, store.Contact{RemoteID: c.JID, Name: c.Name, PushName: c.PushName})
	}
	if err := e.db.BulkUpsertContacts(ctx, contacts); err != nil {
		return 0, fmt.Errorf("store contacts: %w", err)
	}
	e.logger.Info("contacts synced", zap.Int("count", len(contacts)))
	return len(contacts), nil
}

func (e *Engine) saveMedia(ctx context.Context, remoteID string, m *wa.Media) (string, error) {
	if e.fetcher == nil || e.mediaDir == "" {
		return "", fmt.Errorf("media download not configured")
	}
	data, err := e.fetcher.Download(ctx, m)
	if err != nil {
		return "", err
	}
	base := SafeFileName(remoteID)
	if base == "" {
		return "", fmt.Errorf("no usable file name for %q", remoteID)
	}
	name := base + extension(m.MimeType, data)

	if err := os.MkdirAll(e.mediaDir, 0700); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(e.mediaDir, name), data, 0600); err != nil {
		return "", err
	}
	return name, nil
}

// extension picks a file extension for the declared MIME type, falling
// back to sniffing the content.
func extension(declared string, data []byte) string {
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = declared[:i]
	}
	declared = strings.TrimSpace(strings.ToLower(declared))
	if declared != "" {
		if mt := mimetype.Lookup(declared); mt != nil && mt.Extension() != "" {
			return mt.Extension()
		}
	}
	return mimetype.Detect(data).Extension()
}

func (e *Engine) publishStored(m store.Message) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(bus.KindMirrorStored, m)
}
