package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/wpplus/internal/status"
	"go.uber.org/zap"
)

type fixedStatus status.Status

func (s fixedStatus) Status() status.Status { return status.Status(s) }

type fakeSender struct {
	calls    []string
	id       string
	err      error
	deadline bool
}

func (f *fakeSender) SendText(ctx context.Context, chatID, text string) (string, error) {
	f.calls = append(f.calls, chatID+"|"+text)
	_, f.deadline = ctx.Deadline()
	return f.id, f.err
}

type fakeRecorder struct {
	chat, id, body string
	err            error
	calls          int
}

func (r *fakeRecorder) RecordOutgoing(ctx context.Context, chat, id, body string, ts time.Time) error {
	r.calls++
	r.chat, r.id, r.body = chat, id, body
	return r.err
}

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+55 (11) 99999-0000", "5511999990000"},
		{"5511999990000@c.us", "5511999990000"},
		{"972501234567@s.whatsapp.net", "972501234567"},
		{"abc", ""},
		{"@123", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeNumber(tt.in); got != tt.want {
			t.Errorf("NormalizeNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSendNotReadyLeavesTransportUntouched(t *testing.T) {
	for _, st := range []status.Status{status.Disconnected, status.Connecting} {
		sender := &fakeSender{id: "X"}
		d := New(fixedStatus(st), sender, zap.NewNop())

		res := d.Send(context.Background(), "5511999990000", "hi")
		if res.Success || res.Error != "not connected" || !errors.Is(res.Err, ErrNotConnected) {
			t.Errorf("%s: result = %+v", st, res)
		}
		if len(sender.calls) != 0 {
			t.Errorf("%s: transport called %d times", st, len(sender.calls))
		}
	}
}

func TestSendInvalidNumber(t *testing.T) {
	sender := &fakeSender{}
	d := New(fixedStatus(status.Ready), sender, zap.NewNop())

	res := d.Send(context.Background(), "no digits@c.us", "hi")
	if res.Success || res.Error != "invalid number" || !errors.Is(res.Err, ErrInvalidNumber) {
		t.Errorf("result = %+v", res)
	}
	if len(sender.calls) != 0 {
		t.Error("transport called for invalid number")
	}
}

func TestSendSuccessRecords(t *testing.T) {
	sender := &fakeSender{id: "3EB0ABC"}
	rec := &fakeRecorder{}
	d := New(fixedStatus(status.Ready), sender, zap.NewNop(),
		WithRecorder(rec), WithTimeout(time.Second))

	res := d.Send(context.Background(), "+972 50-123-4567", "hello")
	if !res.Success || res.MessageID != "3EB0ABC" || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "972501234567@s.whatsapp.net|hello" {
		t.Errorf("calls = %v", sender.calls)
	}
	if !sender.deadline {
		t.Error("send context has no deadline")
	}
	if rec.calls != 1 || rec.chat != "972501234567@s.whatsapp.net" || rec.id != "3EB0ABC" || rec.body != "hello" {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestSendWithoutServerIDUsesLocalID(t *testing.T) {
	rec := &fakeRecorder{}
	d := New(fixedStatus(status.Ready), &fakeSender{}, zap.NewNop(), WithRecorder(rec))

	res := d.Send(context.Background(), "123", "x")
	if !res.Success || !strings.HasPrefix(res.MessageID, "local-") {
		t.Fatalf("result = %+v", res)
	}
	if rec.id != res.MessageID {
		t.Errorf("recorded id %q, want %q", rec.id, res.MessageID)
	}
}

func TestRecordFailureKeepsSuccess(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	d := New(fixedStatus(status.Ready), &fakeSender{id: "A"}, zap.NewNop(), WithRecorder(rec))

	if res := d.Send(context.Background(), "123", "x"); !res.Success {
		t.Errorf("record failure turned send into failure: %+v", res)
	}
}

func TestSendTransportError(t *testing.T) {
	boom := errors.New("socket closed")
	rec := &fakeRecorder{}
	d := New(fixedStatus(status.Ready), &fakeSender{err: boom}, zap.NewNop(), WithRecorder(rec))

	res := d.Send(context.Background(), "123", "x")
	if res.Success || !errors.Is(res.Err, boom) {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Error, "socket closed") {
		t.Errorf("error = %q", res.Error)
	}
	if rec.calls != 0 {
		t.Error("failed send was recorded")
	}
}
