package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/bus"
	"github.com/matheus3301/wpplus/internal/dispatch"
	"github.com/matheus3301/wpplus/internal/lifecycle"
	"github.com/matheus3301/wpplus/internal/mirror"
	"github.com/matheus3301/wpplus/internal/scheduler"
	"github.com/matheus3301/wpplus/internal/status"
	"github.com/matheus3301/wpplus/internal/store"
	"github.com/matheus3301/wpplus/internal/wa"
	"go.uber.org/zap"
)

type fakeSession struct {
	state     status.State
	starts    int
	startErr  error
	logoutErr error
}

func (s *fakeSession) EnsureStarted(ctx context.Context) error {
	s.starts++
	if s.startErr == nil && s.state.Status != status.Ready {
		s.state.Status = status.Connecting
	}
	return s.startErr
}

func (s *fakeSession) State() status.State { return s.state }

func (s *fakeSession) Logout(ctx context.Context) error { return s.logoutErr }

func (s *fakeSession) Status() status.Status { return s.state.Status }

type fakeTransport struct {
	sent []string
	err  error
}

func (f *fakeTransport) SendText(ctx context.Context, chatID, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, chatID+"|"+text)
	return "WAMID1", nil
}

type fakeContacts struct {
	err error
}

func (f fakeContacts) Contacts(ctx context.Context) ([]wa.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []wa.Contact{{JID: "5511@s.whatsapp.net", Name: "Rui"}}, nil
}

type testServer struct {
	echo      *echo.Echo
	db        *store.DB
	session   *fakeSession
	transport *fakeTransport
	mediaDir  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "wpp.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	sess := &fakeSession{state: status.State{Status: status.Ready}}
	transport := &fakeTransport{}
	mediaDir := filepath.Join(dir, "media")

	m := mirror.NewEngine(db, b, nil, mediaDir, logger)
	d := dispatch.New(sess, transport, logger, dispatch.WithRecorder(m))
	sched := scheduler.New(db, d, b, logger, scheduler.Options{})

	h := NewHandler(Deps{
		SessionName: "main",
		Session:     sess,
		Sender:      d,
		Scheduler:   sched,
		DB:          db,
		Mirror:      m,
		Contacts:    fakeContacts{},
		MediaDir:    mediaDir,
		Logger:      logger,
	})
	return &testServer{
		echo:      NewEcho(h, "http://localhost:3000", logger),
		db:        db,
		session:   sess,
		transport: transport,
		mediaDir:  mediaDir,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatusStartsSession(t *testing.T) {
	s := newTestServer(t)
	s.session.state = status.State{Status: status.Disconnected}

	rec := s.do(t, http.MethodGet, "/api/whatsapp/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if s.session.starts != 1 {
		t.Errorf("EnsureStarted called %d times", s.session.starts)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "connecting" || body["session"] != "main" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["qr"]; ok {
		t.Error("qr present without a code")
	}
}

func TestStatusReportsQR(t *testing.T) {
	s := newTestServer(t)
	s.session.state = status.State{Status: status.Connecting, QR: "data:image/png;base64,AAA", Code: "2@abc"}

	body := decode[map[string]any](t, s.do(t, http.MethodGet, "/api/whatsapp/status", ""))
	if body["qr"] != "data:image/png;base64,AAA" || body["code"] != "2@abc" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusSurvivesStartError(t *testing.T) {
	s := newTestServer(t)
	s.session.state = status.State{Status: status.Disconnected}
	s.session.startErr = errors.New("sqlite locked")

	rec := s.do(t, http.MethodGet, "/api/whatsapp/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["status"] != "disconnected" {
		t.Errorf("body = %v", body)
	}

	if rec := s.do(t, http.MethodPost, "/api/whatsapp/connect", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("connect code = %d", rec.Code)
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	s := newTestServer(t)
	s.session.logoutErr = lifecycle.ErrNoSession
	if rec := s.do(t, http.MethodPost, "/api/whatsapp/logout", ""); rec.Code != http.StatusConflict {
		t.Errorf("logout code = %d", rec.Code)
	}
}

func TestSendStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status status.Status
		sendEr error
		body   string
		want   int
		code   string
	}{
		{"ok", status.Ready, nil, `{"phone":"+55 11 99999-0000","content":"hi"}`, http.StatusOK, ""},
		{"missing content", status.Ready, nil, `{"phone":"5511"}`, http.StatusBadRequest, "MISSING_FIELDS"},
		{"invalid number", status.Ready, nil, `{"phone":"abc","content":"hi"}`, http.StatusBadRequest, "INVALID_NUMBER"},
		{"not connected", status.Connecting, nil, `{"phone":"5511","content":"hi"}`, http.StatusConflict, "NOT_CONNECTED"},
		{"transport", status.Ready, errors.New("socket closed"), `{"phone":"5511","content":"hi"}`, http.StatusBadGateway, "SEND_FAILED"},
		{"bad json", status.Ready, nil, `{"phone":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown template", status.Ready, nil, `{"phone":"5511","templateId":"nope"}`, http.StatusBadRequest, "TEMPLATE_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.session.state.Status = tt.status
			s.transport.err = tt.sendEr

			rec := s.do(t, http.MethodPost, "/api/send", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.code != "" {
				if body := decode[ErrorBody](t, rec); body.Code != tt.code {
					t.Errorf("error code = %q, want %q", body.Code, tt.code)
				}
			}
		})
	}
}

func TestSendRecordsOutgoing(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/send", `{"phone":"5511999990000","content":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d %s", rec.Code, rec.Body.String())
	}
	if body := decode[map[string]any](t, rec); body["messageId"] != "WAMID1" {
		t.Errorf("body = %v", body)
	}
	chat, err := s.db.GetChatByRemoteID(context.Background(), "5511999990000@s.whatsapp.net")
	if err != nil {
		t.Fatalf("outgoing chat not recorded: %v", err)
	}
	msgs, _, _ := s.db.ListMessages(context.Background(), chat.ID, "", 10)
	if len(msgs) != 1 || msgs[0].RemoteID != "WAMID1" || !msgs[0].FromMe {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSendByTemplate(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/quick-replies", `{"shortcut":"/hi","content":"Hello there"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template = %d", rec.Code)
	}
	tpl := decode[store.QuickReply](t, rec)

	rec = s.do(t, http.MethodPost, "/api/send", `{"phone":"5511","templateId":"`+tpl.ID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("send = %d %s", rec.Code, rec.Body.String())
	}
	if len(s.transport.sent) != 1 || s.transport.sent[0] != "5511@s.whatsapp.net|Hello there" {
		t.Errorf("sent = %v", s.transport.sent)
	}
}

func createContact(t *testing.T, s *testServer) store.Contact {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/contacts", `{"phone":"+972 50 123 4567","name":"Dana"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create contact = %d %s", rec.Code, rec.Body.String())
	}
	return decode[store.Contact](t, rec)
}

func TestContacts(t *testing.T) {
	s := newTestServer(t)
	c := createContact(t, s)
	if c.RemoteID != "972501234567@s.whatsapp.net" || c.Name != "Dana" {
		t.Errorf("contact = %+v", c)
	}

	if rec := s.do(t, http.MethodPost, "/api/contacts", `{"phone":"none"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid phone code = %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/contacts/sync", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sync = %d %s", rec.Code, rec.Body.String())
	}

	list := decode[[]store.ContactSummary](t, s.do(t, http.MethodGet, "/api/contacts", ""))
	if len(list) != 2 {
		t.Errorf("contacts = %+v", list)
	}
}

func TestScheduledLifecycle(t *testing.T) {
	s := newTestServer(t)
	c := createContact(t, s)
	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	rec := s.do(t, http.MethodPost, "/api/scheduled",
		`{"content":"later","scheduledAt":"`+at+`","contactId":"`+c.ID+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	msg := decode[store.ScheduledMessage](t, rec)
	if msg.Status != store.StatusPending {
		t.Errorf("status = %s", msg.Status)
	}

	rec = s.do(t, http.MethodPatch, "/api/scheduled/"+msg.ID, `{"content":"edited"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[store.ScheduledMessage](t, rec); got.Content != "edited" {
		t.Errorf("content = %q", got.Content)
	}

	list := decode[[]store.ScheduledMessage](t, s.do(t, http.MethodGet, "/api/scheduled", ""))
	if len(list) != 1 || list[0].ContactName != "Dana" {
		t.Errorf("list = %+v", list)
	}

	if rec := s.do(t, http.MethodDelete, "/api/scheduled/"+msg.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/scheduled/"+msg.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
	if rec := s.do(t, http.MethodPatch, "/api/scheduled/"+msg.ID, `{"content":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("update deleted = %d, want 404", rec.Code)
	}
}

func TestScheduledValidation(t *testing.T) {
	s := newTestServer(t)
	c := createContact(t, s)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	tests := []string{
		`{"content":"x","scheduledAt":"` + past + `","contactId":"` + c.ID + `"}`,
		`{"content":"x","scheduledAt":"tomorrow","contactId":"` + c.ID + `"}`,
		`{"content":"","scheduledAt":"2999-01-01T00:00:00Z","contactId":"` + c.ID + `"}`,
		`{"content":"x","scheduledAt":"2999-01-01T00:00:00Z","contactId":"missing"}`,
	}
	for _, body := range tests {
		if rec := s.do(t, http.MethodPost, "/api/scheduled", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: code = %d, want 400", body, rec.Code)
		}
	}
}

func TestRunSchedulerNow(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scheduled/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("run = %d", rec.Code)
	}
	report := decode[scheduler.TickReport](t, rec)
	if report.Skipped || report.Due != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunSchedulerOutlivesCaller(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	c, err := s.db.UpsertContact(ctx, &store.Contact{RemoteID: "5511@s.whatsapp.net", Name: "Rui"})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	msg, err := s.db.CreateScheduled(ctx, &store.ScheduledMessage{
		Content: "due", ScheduledAt: now.Add(-time.Minute), ContactID: c.ID,
	}, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	gone, cancel := context.WithCancel(ctx)
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/scheduled/run", nil).WithContext(gone)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	report := decode[scheduler.TickReport](t, rec)
	if report.Due != 1 || report.Sent != 1 {
		t.Errorf("report = %+v", report)
	}
	got, _ := s.db.GetScheduled(ctx, msg.ID)
	if got.Status != store.StatusSent {
		t.Errorf("row = %+v, want Sent", got)
	}
}

func TestChatsAndMessages(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		if rec := s.do(t, http.MethodPost, "/api/send", `{"phone":"5511","content":"m"}`); rec.Code != http.StatusOK {
			t.Fatalf("send = %d", rec.Code)
		}
		s.transport.sent = nil
	}
	// the fake transport returns the same id each time, so one row exists
	chats := decode[[]store.ChatSummary](t, s.do(t, http.MethodGet, "/api/chats", ""))
	if len(chats) != 1 || chats[0].MessageCount != 1 {
		t.Fatalf("chats = %+v", chats)
	}

	page := decode[MessagePage](t, s.do(t, http.MethodGet, "/api/chats/"+chats[0].ID+"/messages?limit=500", ""))
	if len(page.Items) != 1 || page.NextCursor != "" {
		t.Errorf("page = %+v", page)
	}

	if rec := s.do(t, http.MethodGet, "/api/chats/"+chats[0].ID+"/messages?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit code = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/chats/"+chats[0].ID+"/messages?cursor=nope", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad cursor code = %d", rec.Code)
	}
}

func TestChatsWithoutSchema(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "raw.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	h := NewHandler(Deps{DB: db, Session: &fakeSession{}, Logger: zap.NewNop()})
	e := NewEcho(h, "", zap.NewNop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chats", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("chats = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/contacts", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("contacts code = %d", rec.Code)
	}
	body := decode[ErrorBody](t, rec)
	if body.Code != "INTERNAL" || body.Details != "database schema missing, run migrations" {
		t.Errorf("body = %+v", body)
	}
	if strings.Contains(rec.Body.String(), "no such table") {
		t.Error("storage error leaked to client")
	}
}

func TestQuickRepliesCRUD(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodPost, "/api/quick-replies", `{"shortcut":" ","content":"x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty shortcut code = %d", rec.Code)
	}
	q := decode[store.QuickReply](t, s.do(t, http.MethodPost, "/api/quick-replies", `{"shortcut":"/bye","content":"Bye"}`))

	list := decode[[]store.QuickReply](t, s.do(t, http.MethodGet, "/api/quick-replies", ""))
	if len(list) != 1 || list[0].Shortcut != "/bye" {
		t.Errorf("list = %+v", list)
	}
	if rec := s.do(t, http.MethodDelete, "/api/quick-replies/"+q.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/quick-replies/"+q.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", rec.Code)
	}
}

func TestMediaServing(t *testing.T) {
	s := newTestServer(t)
	if err := os.MkdirAll(s.mediaDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.mediaDir, "IMG1.png"), []byte("\x89PNG\r\n\x1a\n"), 0600); err != nil {
		t.Fatal(err)
	}

	rec := s.do(t, http.MethodGet, "/media/IMG1.png", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("media = %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}

	for _, path := range []string{"/media/missing.png", "/media/..%2F..%2Fetc%2Fpasswd", "/media/%2E%2E"} {
		if rec := s.do(t, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: code = %d, want 404", path, rec.Code)
		}
	}
}
