package qr

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestDataURL(t *testing.T) {
	url, err := DataURL("2@abcdef,ghijkl,mnop")
	if err != nil {
		t.Fatalf("DataURL() error = %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("DataURL() = %q, want %s prefix", url[:32], prefix)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Error("payload is not a PNG")
	}
}

func TestDataURLEmpty(t *testing.T) {
	if _, err := DataURL(""); err == nil {
		t.Error("DataURL(\"\") should fail")
	}
}

func TestRender(t *testing.T) {
	out, err := Render("hello")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) < 10 {
		t.Errorf("Render() produced %d lines, want a full QR block", len(lines))
	}
	if !strings.ContainsAny(out, "█▀▄") {
		t.Error("Render() output has no block characters")
	}
}
