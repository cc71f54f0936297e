package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
)

type fakeDaemon struct {
	mu       sync.Mutex
	requests []string
	bodies   []map[string]string
	routes   map[string]string
}

func (f *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.Method + " " + r.URL.Path
	f.requests = append(f.requests, key)
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies = append(f.bodies, body)

	reply, ok := f.routes[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NOT_FOUND","error":"no route"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(reply))
}

func (f *fakeDaemon) calls() ([]string, []map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...), append([]map[string]string(nil), f.bodies...)
}

func execute(t *testing.T, routes map[string]string, args ...string) (string, *fakeDaemon, error) {
	t.Helper()
	t.Setenv("WPP_HOME", t.TempDir())
	fd := &fakeDaemon{routes: routes}
	srv := httptest.NewServer(fd)
	t.Cleanup(srv.Close)
	t.Setenv("WPP_ADDR", srv.URL)

	var out bytes.Buffer
	cmd := rootCmd(viper.New())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), fd, err
}

func TestStatusCommand(t *testing.T) {
	out, fd, err := execute(t, map[string]string{
		"GET /api/whatsapp/status": `{"status":"ready","session":"main","uptimeMs":65000,"stats":{"contacts":2,"chats":3,"messages":9,"scheduled":1}}`,
	}, "status")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Session: main", "Status:  ready", "Uptime:  1m5s", "2 contacts, 3 chats, 9 messages, 1 scheduled"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if reqs, _ := fd.calls(); len(reqs) != 1 {
		t.Errorf("requests = %v", reqs)
	}
}

func TestStatusJSON(t *testing.T) {
	out, _, err := execute(t, map[string]string{
		"GET /api/whatsapp/status": `{"status":"connecting","code":"2@x","session":"main"}`,
	}, "status", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, out)
	}
	if got["code"] != "2@x" {
		t.Errorf("json = %v", got)
	}
}

func TestSendCommand(t *testing.T) {
	out, fd, err := execute(t, map[string]string{
		"POST /api/send": `{"ok":true,"messageId":"3EB0AA"}`,
	}, "send", "5511999", "hello", "there")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Sent 3EB0AA") {
		t.Errorf("out = %q", out)
	}
	_, bodies := fd.calls()
	if bodies[0]["phone"] != "5511999" || bodies[0]["content"] != "hello there" {
		t.Errorf("body = %v", bodies[0])
	}
}

func TestSendRequiresText(t *testing.T) {
	_, fd, err := execute(t, nil, "send", "5511999")
	if err == nil {
		t.Fatal("expected error")
	}
	if reqs, _ := fd.calls(); len(reqs) != 0 {
		t.Errorf("requests = %v", reqs)
	}
}

func TestDaemonErrorSurfaces(t *testing.T) {
	_, _, err := execute(t, nil, "scheduled", "delete", "nope")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("err = %v", err)
	}
}

func TestScheduledCreate(t *testing.T) {
	out, fd, err := execute(t, map[string]string{
		"POST /api/scheduled": `{"id":"s1","scheduledAt":"2030-01-02T03:04:05Z","status":"Pending"}`,
	}, "scheduled", "create", "--contact", "c1", "--at", "2030-01-02T03:04:05Z", "see", "you")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Scheduled s1") {
		t.Errorf("out = %q", out)
	}
	_, bodies := fd.calls()
	b := bodies[0]
	if b["contactId"] != "c1" || b["content"] != "see you" || b["scheduledAt"] != "2030-01-02T03:04:05Z" {
		t.Errorf("body = %v", b)
	}
}

func TestAuthWaitsForReady(t *testing.T) {
	out, _, err := execute(t, map[string]string{
		"GET /api/whatsapp/status": `{"status":"ready"}`,
	}, "auth", "--interval", "10ms")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Session is ready.") {
		t.Errorf("out = %q", out)
	}
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseWhen("+90m", now)
	if err != nil || !got.Equal(now.Add(90*time.Minute)) {
		t.Errorf("+90m = %v, %v", got, err)
	}
	got, err = parseWhen("2030-02-03T04:05:06Z", now)
	if err != nil || !got.Equal(time.Date(2030, 2, 3, 4, 5, 6, 0, time.UTC)) {
		t.Errorf("rfc3339 = %v, %v", got, err)
	}
	got, err = parseWhen("2030-02-03 04:05", now)
	if err != nil || !got.Equal(time.Date(2030, 2, 3, 4, 5, 0, 0, time.Local)) {
		t.Errorf("local = %v, %v", got, err)
	}
	for _, bad := range []string{"", "tomorrow", "+soon"} {
		if _, err := parseWhen(bad, now); err == nil {
			t.Errorf("parseWhen(%q) succeeded", bad)
		}
	}
}
