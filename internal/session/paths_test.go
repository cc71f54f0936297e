package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/wpplus/internal/config"
)

func TestDirDefaultsToHome(t *testing.T) {
	t.Setenv("WPP_HOME", "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".wpp", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPathsUnderProfile(t *testing.T) {
	t.Setenv("WPP_HOME", "/tmp/wpp-home")
	tests := []struct {
		got  string
		want string
	}{
		{LockPath("test"), "/tmp/wpp-home/sessions/test/LOCK"},
		{SessionDBPath("test"), "/tmp/wpp-home/sessions/test/session.db"},
		{AppDBPath("test"), "/tmp/wpp-home/sessions/test/wpp.db"},
		{MediaDir("test"), "/tmp/wpp-home/sessions/test/media"},
		{LogPath("test"), "/tmp/wpp-home/sessions/test/logs/wppd.log"},
		{ConfigPath(), "/tmp/wpp-home/config.toml"},
		{EnvPath(), "/tmp/wpp-home/.env"},
	}
	for _, tt := range tests {
		if tt.got != filepath.FromSlash(tt.want) {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("WPP_HOME", t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	for _, d := range []string{Dir("test"), LogDir("test"), MediaDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("%s permission = %o, want 0700", d, perm)
		}
	}
	if !strings.HasSuffix(MediaDir("test"), "media") {
		t.Error("media dir should be named media")
	}
}

func TestResolveName(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		cfg     *config.Config
		want    string
		wantErr bool
	}{
		{"flag wins", "work", &config.Config{DefaultSession: "home"}, "work", false},
		{"config default", "", &config.Config{DefaultSession: "home"}, "home", false},
		{"nil config", "", nil, DefaultSessionName, false},
		{"empty config", "", &config.Config{}, DefaultSessionName, false},
		{"invalid flag", "Work", nil, "", true},
		{"invalid config", "", &config.Config{DefaultSession: "../etc"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveName(tt.flag, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("error %v does not wrap ErrInvalidName", err)
			}
			if got != tt.want {
				t.Errorf("ResolveName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"main", "work123", "my-session", "my_session", "a", "0day", strings.Repeat("a", 64)}
	invalid := []string{"", "Main", "my session", "my.session", "-flag", "_x", strings.Repeat("a", 65), "my@session", "my/session"}

	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v", name, err)
		}
	}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) accepted", name)
		}
	}
}
