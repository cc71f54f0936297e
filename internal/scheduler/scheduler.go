// Package scheduler stores messages for future delivery and dispatches the
// due ones on a timer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/wpplus/internal/bus"
	"github.com/matheus3301/wpplus/internal/dispatch"
	"github.com/matheus3301/wpplus/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("scheduled message not found or no longer pending")
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, destination, content string) dispatch.Result
}

// Input is a request to schedule a message.
type Input struct {
	Content     string    `json:"content"`
	ScheduledAt time.Time `json:"scheduledAt"`
	ContactID   string    `json:"contactId"`
}

// Patch changes a Pending message. Nil fields are left alone.
type Patch struct {
	Content     *string    `json:"content,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// TickReport summarizes one pass over the due rows.
type TickReport struct {
	Skipped bool `json:"skipped"`
	Due     int  `json:"due"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
	Lost    int  `json:"lost"`
}

// Result is published on the bus for every dispatched row.
type Result struct {
	ID        string                `json:"id"`
	Status    store.ScheduledStatus `json:"status"`
	MessageID string                `json:"messageId,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Options configures the timer.
type Options struct {
	// Interval between ticks. Defaults to one minute.
	Interval time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Scheduler owns ScheduledMessage validation and dispatch.
type Scheduler struct {
	db       *store.DB
	sender   Sender
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	running atomic.Bool

	mu   sync.Mutex
	cron *cron.Cron
}

func New(db *store.DB, sender Sender, b *bus.Bus, logger *zap.Logger, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		db:       db,
		sender:   sender,
		bus:      b,
		logger:   logger,
		interval: opts.Interval,
		now:      opts.Now,
	}
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Create validates and stores a Pending message.
func (s *Scheduler) Create(ctx context.Context, in Input) (*store.ScheduledMessage, error) {
	content := strings.TrimSpace(in.Content)
	contactID := strings.TrimSpace(in.ContactID)
	switch {
	case content == "":
		return nil, validation("content is required")
	case contactID == "":
		return nil, validation("contactId is required")
	case in.ScheduledAt.IsZero():
		return nil, validation("scheduledAt is required")
	}
	now := s.now()
	if !in.ScheduledAt.After(now) {
		return nil, validation("scheduledAt must be in the future")
	}

	if _, err := s.db.GetContact(ctx, contactID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, validation("contact %s does not exist", contactID)
		}
		return nil, fmt.Errorf("load contact: %w", err)
	}

	msg, err := s.db.CreateScheduled(ctx, &store.ScheduledMessage{
		Content:     content,
		ScheduledAt: in.ScheduledAt,
		ContactID:   contactID,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("create scheduled message: %w", err)
	}
	s.logger.Info("message scheduled",
		zap.String("scheduled_id", msg.ID),
		zap.String("contact_id", contactID),
		zap.Time("scheduled_at", msg.ScheduledAt))
	return msg, nil
}

// Update edits a Pending message. ErrNotFound means no Pending row matched
// and nothing changed.
func (s *Scheduler) Update(ctx context.Context, id string, p Patch) (*store.ScheduledMessage, error) {
	if p.Content != nil {
		trimmed := strings.TrimSpace(*p.Content)
		if trimmed == "" {
			return nil, validation("content must not be empty")
		}
		p.Content = &trimmed
	}
	now := s.now()
	if p.ScheduledAt != nil {
		if p.ScheduledAt.IsZero() {
			return nil, validation("scheduledAt must not be empty")
		}
		if !p.ScheduledAt.After(now) {
			return nil, validation("scheduledAt must be in the future")
		}
	}
	msg, err := s.db.UpdatePendingScheduled(ctx, id, p.Content, p.ScheduledAt, now)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update scheduled message: %w", err)
	}
	return msg, nil
}

// Delete removes a Pending message. Non-Pending rows are left alone and
// ErrNotFound is returned.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	err := s.db.DeletePendingScheduled(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete scheduled message: %w", err)
	}
	return nil
}

// List returns every scheduled message, Pending first.
func (s *Scheduler) List(ctx context.Context) ([]store.ScheduledMessage, error) {
	return s.db.ListScheduled(ctx)
}

// Tick dispatches every due Pending row, earliest first. A call that
// overlaps a running tick returns at once with Skipped set.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("tick already running, skipping")
		return TickReport{Skipped: true}
	}
	defer s.running.Store(false)

	var report TickReport
	due, err := s.db.DueScheduled(ctx, s.now())
	if err != nil {
		s.logger.Error("load due scheduled messages", zap.Error(err))
		return report
	}
	report.Due = len(due)

	for i := range due {
		if ctx.Err() != nil {
			break
		}
		switch s.dispatchOne(ctx, &due[i]) {
		case store.StatusSent:
			report.Sent++
		case store.StatusFailed:
			report.Failed++
		default:
			report.Lost++
		}
	}
	if report.Due > 0 {
		s.logger.Info("scheduler tick",
			zap.Int("due", report.Due),
			zap.Int("sent", report.Sent),
			zap.Int("failed", report.Failed),
			zap.Int("lost", report.Lost))
	}
	return report
}

// dispatchOne claims, sends and finalizes one row. It returns the final
// status, or "" when the claim was lost or finalizing failed.
func (s *Scheduler) dispatchOne(ctx context.Context, msg *store.ScheduledMessage) store.ScheduledStatus {
	log := s.logger.With(zap.String("scheduled_id", msg.ID))

	// The batch was loaded before earlier sends ran; the claim re-checks the
	// row and yields the content to send.
	content, claimed, err := s.db.ClaimScheduled(ctx, msg.ID, s.now())
	if err != nil {
		log.Error("claim scheduled message", zap.Error(err))
		return ""
	}
	if !claimed {
		log.Debug("scheduled message changed or claimed elsewhere")
		return ""
	}

	var res dispatch.Result
	if msg.ContactRemoteID == "" {
		res = dispatch.Result{Error: "contact not found"}
	} else {
		res = s.sender.Send(ctx, msg.ContactRemoteID, content)
	}

	// Finalize even if ctx was cancelled mid-send so the row never sticks
	// in Dispatching.
	finishCtx := context.WithoutCancel(ctx)
	out := Result{ID: msg.ID, MessageID: res.MessageID, Error: res.Error}
	if res.Success {
		out.Status = store.StatusSent
		err = s.db.MarkScheduledSent(finishCtx, msg.ID, res.MessageID, s.now())
	} else {
		out.Status = store.StatusFailed
		err = s.db.MarkScheduledFailed(finishCtx, msg.ID, res.Error, s.now())
	}
	if err != nil {
		log.Error("finalize scheduled message", zap.String("status", string(out.Status)), zap.Error(err))
		return ""
	}

	if res.Success {
		log.Info("scheduled message sent", zap.String("message_id", res.MessageID))
	} else {
		log.Warn("scheduled message failed", zap.String("error", res.Error))
	}
	if s.bus != nil {
		s.bus.Emit(bus.KindScheduledResult, out)
	}
	return out.Status
}

// Recover fails rows left in Dispatching by a previous process. They are
// never re-sent.
func (s *Scheduler) Recover(ctx context.Context) error {
	n, err := s.db.FailInterrupted(ctx, s.now())
	if err != nil {
		return fmt.Errorf("recover interrupted dispatches: %w", err)
	}
	if n > 0 {
		s.logger.Warn("marked interrupted dispatches as failed", zap.Int64("count", n))
	}
	return nil
}

// Start runs Tick every interval until Stop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	l := cronLogger{s.logger.Named("cron").Sugar()}
	c := cron.New(cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)), cron.WithLogger(l))
	spec := "@every " + s.interval.String()
	if _, err := c.AddFunc(spec, func() { s.Tick(context.Background()) }); err != nil {
		return fmt.Errorf("schedule tick %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the timer and waits for a running tick to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
