// Package lifecycle owns the WhatsApp session handle and keeps the
// connection state in step with it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wpplus/internal/bus"
	"github.com/matheus3301/wpplus/internal/config"
	"github.com/matheus3301/wpplus/internal/qr"
	"github.com/matheus3301/wpplus/internal/status"
	"github.com/matheus3301/wpplus/internal/wa"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNoSession is returned when an operation needs a live handle and none
// has been constructed.
var ErrNoSession = errors.New("no session")

// ErrUnsupported is returned when the handle lacks an optional capability.
var ErrUnsupported = errors.New("operation not supported by session client")

// Options tunes recovery after a failed start.
type Options struct {
	// RetryPolicy is config.RetryDiscard (default) or config.RetryReuse.
	RetryPolicy string
	// RetryBackoff is the minimum wait before re-initializing a reused
	// handle. Only used with config.RetryReuse.
	RetryBackoff time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Manager lazily constructs exactly one session handle, initializes it and
// projects its events onto the connection state store.
type Manager struct {
	state   *status.Store
	factory wa.Factory
	encode  qr.Encoder
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu          sync.Mutex
	client      wa.Client
	gen         uint64
	initStarted bool
	failedAt    time.Time
}

// NewManager creates a manager. No handle is built until EnsureStarted.
func NewManager(state *status.Store, factory wa.Factory, encode qr.Encoder, b *bus.Bus, logger *zap.Logger, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetryPolicy == "" {
		opts.RetryPolicy = config.RetryDiscard
	}
	if encode == nil {
		encode = qr.DataURL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:   state,
		factory: factory,
		encode:  encode,
		bus:     b,
		logger:  logger,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns the current connection snapshot.
func (m *Manager) State() status.State {
	return m.state.Snapshot()
}

// EnsureStarted makes sure a handle exists and is initializing. It is a
// no-op while ready. It blocks only on handle construction; connection
// progress is reported through the state store.
func (m *Manager) EnsureStarted(ctx context.Context) error {
	if m.state.Status() == status.Ready {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.backingOff() {
		return nil
	}

	m.state.Apply(status.Event{Kind: status.EventStarting})

	c, gen, err := m.handle()
	if err != nil {
		return err
	}
	m.startInit(c, gen)
	return nil
}

// handle returns the memoized client, constructing it once. Concurrent
// callers share a single construction.
func (m *Manager) handle() (wa.Client, uint64, error) {
	m.mu.Lock()
	if m.client != nil {
		c, gen := m.client, m.gen
		m.mu.Unlock()
		return c, gen, nil
	}
	m.mu.Unlock()

	type built struct {
		client wa.Client
		gen    uint64
	}
	v, err, _ := m.group.Do("handle", func() (any, error) {
		m.mu.Lock()
		if m.client != nil {
			b := built{m.client, m.gen}
			m.mu.Unlock()
			return b, nil
		}
		m.gen++
		gen := m.gen
		m.mu.Unlock()

		c, err := m.factory(m.ctx, m.handlerFor(gen))
		if err != nil {
			m.logger.Error("construct session handle", zap.Error(err))
			m.state.Apply(status.Event{Kind: status.EventInitFailed})
			return nil, fmt.Errorf("construct session: %w", err)
		}

		m.mu.Lock()
		if m.gen != gen {
			// Close ran while the factory was building c.
			m.mu.Unlock()
			c.Close()
			return nil, ErrNoSession
		}
		m.client = c
		m.initStarted = false
		m.failedAt = time.Time{}
		m.mu.Unlock()
		m.logger.Info("session handle constructed", zap.Uint64("generation", gen))
		return built{c, gen}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	b := v.(built)
	return b.client, b.gen, nil
}

func (m *Manager) startInit(c wa.Client, gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.client != c || m.initStarted {
		m.mu.Unlock()
		return
	}
	m.initStarted = true
	m.mu.Unlock()

	go m.initialize(c, gen)
}

func (m *Manager) initialize(c wa.Client, gen uint64) {
	err := c.Initialize(m.ctx)
	if err == nil {
		return
	}
	if m.ctx.Err() != nil {
		return
	}
	m.logger.Error("initialize session", zap.Error(err), zap.Uint64("generation", gen))
	if m.current(gen) {
		m.state.Apply(status.Event{Kind: status.EventInitFailed})
	}
	m.retire(gen, false)
}

// retire applies the retry policy to a handle that can no longer make
// progress. force always discards.
func (m *Manager) retire(gen uint64, force bool) {
	m.mu.Lock()
	if m.gen != gen || m.client == nil {
		m.mu.Unlock()
		return
	}
	if m.opts.RetryPolicy == config.RetryReuse && !force {
		m.initStarted = false
		m.failedAt = m.opts.Now()
		m.mu.Unlock()
		m.logger.Info("keeping session handle for retry", zap.Duration("backoff", m.opts.RetryBackoff))
		return
	}
	c := m.client
	m.client = nil
	m.initStarted = false
	m.mu.Unlock()

	m.logger.Info("discarding session handle", zap.Uint64("generation", gen))
	// Close may be reached from inside the client's own event callback.
	go c.Close()
}

func (m *Manager) backingOff() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil || m.initStarted || m.failedAt.IsZero() {
		return false
	}
	return m.opts.Now().Sub(m.failedAt) < m.opts.RetryBackoff
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

func (m *Manager) handlerFor(gen uint64) wa.Handler {
	return func(evt wa.Event) {
		if !m.current(gen) {
			m.logger.Debug("dropping event from retired session handle",
				zap.String("kind", string(evt.Kind)), zap.Uint64("generation", gen))
			return
		}
		m.project(gen, evt)
	}
}

func (m *Manager) project(gen uint64, evt wa.Event) {
	switch evt.Kind {
	case wa.KindQR:
		url, err := m.encode(evt.QRCode)
		if err != nil {
			m.logger.Warn("render QR code", zap.Error(err))
			url = ""
		}
		m.state.Apply(status.Event{Kind: status.EventQR, QR: url, Code: evt.QRCode})
	case wa.KindReady:
		m.state.Apply(status.Event{Kind: status.EventReady})
		m.mu.Lock()
		m.failedAt = time.Time{}
		m.mu.Unlock()
	case wa.KindAuthenticated:
		m.state.Apply(status.Event{Kind: status.EventAuthenticated})
	case wa.KindAuthFailure:
		m.logger.Warn("session authentication failed", zap.String("reason", evt.Reason))
		m.state.Apply(status.Event{Kind: status.EventAuthFailure})
		m.retire(gen, false)
	case wa.KindDisconnected:
		m.logger.Warn("session disconnected", zap.String("reason", evt.Reason))
		m.state.Apply(status.Event{Kind: status.EventDisconnected})
	case wa.KindMessage:
		if m.bus != nil && evt.Message != nil {
			m.bus.Emit(bus.KindWAMessage, evt.Message)
		}
	case wa.KindHistory:
		if m.bus != nil && len(evt.History) > 0 {
			m.bus.Emit(bus.KindWAHistoryBatch, evt.History)
		}
	}
}

// Client returns the live handle.
func (m *Manager) Client() (wa.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, ErrNoSession
	}
	return m.client, nil
}

// SendText sends through the live handle.
func (m *Manager) SendText(ctx context.Context, chatID, text string) (string, error) {
	c, err := m.Client()
	if err != nil {
		return "", err
	}
	return c.SendText(ctx, chatID, text)
}

// Contacts lists the address book of the live handle.
func (m *Manager) Contacts(ctx context.Context) ([]wa.Contact, error) {
	c, err := m.Client()
	if err != nil {
		return nil, err
	}
	lister, ok := c.(wa.ContactLister)
	if !ok {
		return nil, ErrUnsupported
	}
	return lister.Contacts(ctx)
}

// Download fetches an attachment through the live handle.
func (m *Manager) Download(ctx context.Context, media *wa.Media) ([]byte, error) {
	c, err := m.Client()
	if err != nil {
		return nil, err
	}
	dl, ok := c.(wa.MediaDownloader)
	if !ok {
		return nil, ErrUnsupported
	}
	return dl.Download(ctx, media)
}

// Logout unlinks the device and discards the handle. The next
// EnsureStarted pairs from scratch.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	c, gen := m.client, m.gen
	m.mu.Unlock()
	if c == nil {
		return ErrNoSession
	}
	lc, ok := c.(wa.LogoutClient)
	if !ok {
		return ErrUnsupported
	}
	if err := lc.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	m.state.Apply(status.Event{Kind: status.EventAuthFailure})
	m.retire(gen, true)
	return nil
}

// Close stops any initialization in progress and closes the handle.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	c := m.client
	m.client = nil
	m.gen++
	m.mu.Unlock()
	if c != nil {
		c.Close()
	}
	m.state.Apply(status.Event{Kind: status.EventDisconnected})
}
