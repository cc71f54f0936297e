package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wpplus/internal/bus"
	"github.com/matheus3301/wpplus/internal/dispatch"
	"github.com/matheus3301/wpplus/internal/store"
	"go.uber.org/zap"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSender struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]bool
	entered chan struct{}
	release chan struct{}
	// during runs before a send is recorded.
	during func(content string)
}

func (f *fakeSender) Send(ctx context.Context, destination, content string) dispatch.Result {
	if f.during != nil {
		f.during(content)
	}
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, content)
	if f.fail[content] {
		return dispatch.Result{Error: "not connected", Err: dispatch.ErrNotConnected}
	}
	return dispatch.Result{Success: true, MessageID: "wamid-" + content}
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixture struct {
	db     *store.DB
	sched  *Scheduler
	sender *fakeSender
	clock  *clock
	bus    *bus.Bus
	dana   *store.Contact
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "wpp.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	dana, err := db.UpsertContact(context.Background(), &store.Contact{RemoteID: "972501234567@s.whatsapp.net", Name: "Dana"})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		db:     db,
		sender: &fakeSender{fail: map[string]bool{}},
		clock:  &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		bus:    bus.New(),
		dana:   dana,
	}
	f.sched = New(db, f.sender, f.bus, zap.NewNop(), Options{Now: f.clock.Now})
	return f
}

func (f *fixture) schedule(t *testing.T, content string, in time.Duration) *store.ScheduledMessage {
	t.Helper()
	msg, err := f.sched.Create(context.Background(), Input{
		Content:     content,
		ScheduledAt: f.clock.Now().Add(in),
		ContactID:   f.dana.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	tests := []struct {
		name string
		in   Input
	}{
		{"empty content", Input{Content: "   ", ScheduledAt: now.Add(time.Hour), ContactID: f.dana.ID}},
		{"missing contact", Input{Content: "hi", ScheduledAt: now.Add(time.Hour)}},
		{"zero time", Input{Content: "hi", ContactID: f.dana.ID}},
		{"past time", Input{Content: "hi", ScheduledAt: now.Add(-time.Minute), ContactID: f.dana.ID}},
		{"now", Input{Content: "hi", ScheduledAt: now, ContactID: f.dana.ID}},
		{"unknown contact", Input{Content: "hi", ScheduledAt: now.Add(time.Hour), ContactID: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.sched.Create(context.Background(), tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("Create() error = %v, want ErrValidation", err)
			}
		})
	}

	list, err := f.sched.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("invalid input persisted %d rows", len(list))
	}
}

func TestCreateTrimsContent(t *testing.T) {
	f := newFixture(t)
	msg := f.schedule(t, "  hello  ", time.Hour)
	if msg.Content != "hello" || msg.Status != store.StatusPending {
		t.Errorf("created %+v", msg)
	}
	if msg.ContactRemoteID != f.dana.RemoteID {
		t.Errorf("contact remote id = %q", msg.ContactRemoteID)
	}
}

func TestTickDispatchesDueInOrder(t *testing.T) {
	f := newFixture(t)
	later := f.schedule(t, "second", 2*time.Minute)
	first := f.schedule(t, "first", time.Minute)
	future := f.schedule(t, "future", time.Hour)
	f.sender.fail["second"] = true

	events, unsub := f.bus.Subscribe("scheduler.", 4)
	defer unsub()

	f.clock.Advance(3 * time.Minute)
	report := f.sched.Tick(context.Background())

	if report.Skipped || report.Due != 2 || report.Sent != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if got := f.sender.sent(); len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("send order = %v", got)
	}

	ctx := context.Background()
	sent, _ := f.db.GetScheduled(ctx, first.ID)
	if sent.Status != store.StatusSent || sent.MessageID != "wamid-first" {
		t.Errorf("first = %+v", sent)
	}
	failed, _ := f.db.GetScheduled(ctx, later.ID)
	if failed.Status != store.StatusFailed || failed.LastError != "not connected" {
		t.Errorf("second = %+v", failed)
	}
	pending, _ := f.db.GetScheduled(ctx, future.ID)
	if pending.Status != store.StatusPending {
		t.Errorf("future = %+v", pending)
	}

	for i := 0; i < 2; i++ {
		select {
		case evt := <-events:
			if evt.Kind != bus.KindScheduledResult {
				t.Errorf("event kind = %s", evt.Kind)
			}
		case <-time.After(time.Second):
			t.Fatal("missing scheduler event")
		}
	}

	// terminal rows are never sent again
	report = f.sched.Tick(ctx)
	if report.Due != 0 || len(f.sender.sent()) != 2 {
		t.Errorf("second tick report = %+v, sends = %v", report, f.sender.sent())
	}
}

func TestTickHonorsEditsMadeDuringBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t, "first", time.Minute)
	second := f.schedule(t, "second", 2*time.Minute)
	f.clock.Advance(3 * time.Minute)

	edited := "edited"
	tomorrow := f.clock.Now().Add(24 * time.Hour)
	f.sender.during = func(content string) {
		if content != "first" {
			return
		}
		if _, err := f.sched.Update(ctx, second.ID, Patch{Content: &edited, ScheduledAt: &tomorrow}); err != nil {
			t.Errorf("Update during send: %v", err)
		}
	}

	report := f.sched.Tick(ctx)
	if report.Due != 2 || report.Sent != 1 || report.Lost != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := f.sender.sent(); len(got) != 1 || got[0] != "first" {
		t.Errorf("sent = %v", got)
	}
	got, _ := f.db.GetScheduled(ctx, second.ID)
	if got.Status != store.StatusPending || got.Content != "edited" || !got.ScheduledAt.Equal(tomorrow) {
		t.Errorf("edited row = %+v", got)
	}
}

func TestTickSendsContentAsClaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t, "first", time.Minute)
	second := f.schedule(t, "second", 2*time.Minute)
	f.clock.Advance(3 * time.Minute)

	edited := "second, edited"
	f.sender.during = func(content string) {
		if content == "first" {
			if _, err := f.sched.Update(ctx, second.ID, Patch{Content: &edited}); err != nil {
				t.Errorf("Update during send: %v", err)
			}
		}
	}

	f.sched.Tick(ctx)
	if got := f.sender.sent(); len(got) != 2 || got[1] != edited {
		t.Errorf("sent = %v", got)
	}
}

func TestTickSkipsWhenAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "slow", time.Minute)
	f.clock.Advance(2 * time.Minute)

	f.sender.entered = make(chan struct{})
	f.sender.release = make(chan struct{})

	done := make(chan TickReport)
	go func() { done <- f.sched.Tick(context.Background()) }()

	<-f.sender.entered
	if report := f.sched.Tick(context.Background()); !report.Skipped {
		t.Errorf("overlapping tick report = %+v, want skipped", report)
	}
	close(f.sender.release)

	report := <-done
	if report.Sent != 1 {
		t.Errorf("first tick report = %+v", report)
	}
	if n := len(f.sender.sent()); n != 1 {
		t.Errorf("sent %d times, want 1", n)
	}
}

func TestUpdateOnlyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.schedule(t, "draft", time.Minute)

	content := "  final  "
	at := f.clock.Now().Add(2 * time.Minute)
	updated, err := f.sched.Update(ctx, msg.ID, Patch{Content: &content, ScheduledAt: &at})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Content != "final" || !updated.ScheduledAt.Equal(at) {
		t.Errorf("updated = %+v", updated)
	}

	empty := " "
	if _, err := f.sched.Update(ctx, msg.ID, Patch{Content: &empty}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty content error = %v", err)
	}
	past := f.clock.Now().Add(-time.Second)
	if _, err := f.sched.Update(ctx, msg.ID, Patch{ScheduledAt: &past}); !errors.Is(err, ErrValidation) {
		t.Errorf("past time error = %v", err)
	}
	if got, _ := f.db.GetScheduled(ctx, msg.ID); !got.ScheduledAt.Equal(at) {
		t.Errorf("rejected update changed scheduledAt to %v", got.ScheduledAt)
	}

	f.clock.Advance(5 * time.Minute)
	f.sched.Tick(ctx)

	changed := "too late"
	if _, err := f.sched.Update(ctx, msg.ID, Patch{Content: &changed}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of sent row error = %v, want ErrNotFound", err)
	}
	got, _ := f.db.GetScheduled(ctx, msg.ID)
	if got.Content != "final" || got.Status != store.StatusSent {
		t.Errorf("sent row changed: %+v", got)
	}
}

func TestDeleteOnlyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keep := f.schedule(t, "keep", time.Minute)
	drop := f.schedule(t, "drop", time.Hour)

	if err := f.sched.Delete(ctx, drop.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.GetScheduled(ctx, drop.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted row still present: %v", err)
	}

	f.clock.Advance(2 * time.Minute)
	f.sched.Tick(ctx)

	if err := f.sched.Delete(ctx, keep.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete of sent row error = %v, want ErrNotFound", err)
	}
	if _, err := f.db.GetScheduled(ctx, keep.ID); err != nil {
		t.Errorf("sent row removed: %v", err)
	}
}

func TestListOrdersPendingFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t, "a", time.Minute)
	f.clock.Advance(2 * time.Minute)
	f.sched.Tick(ctx)
	f.schedule(t, "b", 2*time.Hour)
	f.schedule(t, "c", time.Hour)

	list, err := f.sched.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range list {
		got = append(got, m.Content)
	}
	want := []string{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("list = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list = %v, want %v", got, want)
		}
	}
}

func TestRecoverFailsInterrupted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.schedule(t, "stuck", time.Minute)

	f.clock.Advance(2 * time.Minute)
	_, ok, err := f.db.ClaimScheduled(ctx, msg.ID, f.clock.Now())
	if err != nil || !ok {
		t.Fatalf("claim = %v, %v", ok, err)
	}
	if err := f.sched.Recover(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := f.db.GetScheduled(ctx, msg.ID)
	if got.Status != store.StatusFailed || got.LastError != "interrupted" {
		t.Errorf("recovered row = %+v", got)
	}

	f.clock.Advance(time.Hour)
	f.sched.Tick(ctx)
	if n := len(f.sender.sent()); n != 0 {
		t.Errorf("interrupted row re-sent %d times", n)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	if err := f.sched.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.sched.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.sched.Stop(ctx)
	f.sched.Stop(ctx)
}
