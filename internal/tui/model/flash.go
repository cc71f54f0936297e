package model

import (
	"sync"
	"time"
)

// Flash holds one transient notification. Errors are flagged so the status
// bar can color them.
type Flash struct {
	mu      sync.RWMutex
	message string
	isErr   bool
	expires time.Time
	now     func() time.Time
}

func (f *Flash) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

// Set stores an informational message that expires after d.
func (f *Flash) Set(msg string, d time.Duration) {
	f.set(msg, false, d)
}

// Error stores an error message that expires after d.
func (f *Flash) Error(msg string, d time.Duration) {
	f.set(msg, true, d)
}

func (f *Flash) set(msg string, isErr bool, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.isErr = isErr
	f.expires = f.clock().Add(d)
}

// Get returns the current message and whether it is an error, or an empty
// string once expired.
func (f *Flash) Get() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.clock().After(f.expires) {
		return "", false
	}
	return f.message, f.isErr
}
