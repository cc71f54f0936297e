// Package dispatch sends text messages through the live session after
// checking readiness and normalizing the destination.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wpplus/internal/status"
	"go.uber.org/zap"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrInvalidNumber = errors.New("invalid number")
)

// UserServer is the WhatsApp user-id domain.
const UserServer = "s.whatsapp.net"

// StatusReader reports the connection status.
type StatusReader interface {
	Status() status.Status
}

// Sender is the send primitive of the session handle.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) (string, error)
}

// Recorder persists a successfully sent message.
type Recorder interface {
	RecordOutgoing(ctx context.Context, chatRemoteID, remoteID, body string, ts time.Time) error
}

// Result is the outcome of a send. Error carries the user-facing message
// and Err the underlying error for errors.Is checks.
type Result struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Err       error  `json:"-"`
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error(), Err: err}
}

// Dispatcher sends messages. It never retries.
type Dispatcher struct {
	state    StatusReader
	sender   Sender
	recorder Recorder
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder persists each successful send.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithTimeout bounds each send. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithClock overrides time.Now for recorded timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(state StatusReader, sender Sender, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:  state,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NormalizeNumber keeps the digits of the user part of destination.
// Anything from the first "@" on is discarded.
func NormalizeNumber(destination string) string {
	if i := strings.IndexByte(destination, '@'); i >= 0 {
		destination = destination[:i]
	}
	var b strings.Builder
	for _, r := range destination {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RecipientID returns the chat id for a normalized number.
func RecipientID(digits string) string {
	return digits + "@" + UserServer
}

// Send delivers content to destination. The transport is not touched
// unless the session is ready and the destination has digits.
func (d *Dispatcher) Send(ctx context.Context, destination, content string) Result {
	if d.state.Status() != status.Ready {
		return failed(ErrNotConnected)
	}
	digits := NormalizeNumber(destination)
	if digits == "" {
		return failed(ErrInvalidNumber)
	}
	chatID := RecipientID(digits)

	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	msgID, err := d.sender.SendText(sendCtx, chatID, content)
	if err != nil {
		d.logger.Warn("send failed", zap.String("chat", chatID), zap.Error(err))
		return failed(fmt.Errorf("send message: %w", err))
	}

	if msgID == "" {
		msgID = "local-" + uuid.NewString()
	}
	if d.recorder != nil {
		if err := d.recorder.RecordOutgoing(ctx, chatID, msgID, content, d.now()); err != nil {
			d.logger.Warn("record outgoing message", zap.String("message_id", msgID), zap.Error(err))
		}
	}
	d.logger.Info("message sent", zap.String("chat", chatID), zap.String("message_id", msgID))
	return Result{Success: true, MessageID: msgID}
}
