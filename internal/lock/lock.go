package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HeldError is returned when another daemon already owns the profile.
type HeldError struct {
	Info Info
	Path string
}

func (e *HeldError) Error() string {
	if e.Info.Addr != "" {
		return fmt.Sprintf("profile locked by PID %d serving %s (%s)", e.Info.PID, e.Info.Addr, e.Path)
	}
	return fmt.Sprintf("profile locked by PID %d (%s)", e.Info.PID, e.Path)
}

// Info is what the lock owner records in the lock file.
type Info struct {
	PID   int
	Addr  string
	Since time.Time
}

// Lock is an acquired profile lock. Holding it is what makes this process
// the only owner of the WhatsApp session stored in the profile.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive, non-blocking flock on path and records the
// owner's PID and listen address. Returns *HeldError when another process
// holds it.
func Acquire(path, addr string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		info, _ := Read(path)
		_ = f.Close()
		return nil, &HeldError{Info: info, Path: path}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\naddr=%s\ntime=%s\n", os.Getpid(), addr, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: path}, nil
}

// Read parses the lock file at path without locking it. Clients use it to
// find the address of a running daemon.
func Read(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	for _, line := range strings.Split(string(data), "\n") {
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(val)
		case "addr":
			info.Addr = val
		case "time":
			info.Since, _ = time.Parse(time.RFC3339, val)
		}
	}
	if info.PID == 0 {
		return info, errors.New("lock file has no pid")
	}
	return info, nil
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}
