package model

import (
	"sync"
	"time"
)

// Level grades a flash message.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Flash holds one transient status line message. The zero value is ready
// to use.
type Flash struct {
	mu      sync.RWMutex
	message string
	level   Level
	expires time.Time
	now     func() time.Time
}

func (f *Flash) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

// Info shows msg for d.
func (f *Flash) Info(msg string, d time.Duration) { f.set(msg, LevelInfo, d) }

// Warn shows msg for d.
func (f *Flash) Warn(msg string, d time.Duration) { f.set(msg, LevelWarn, d) }

// Error shows msg for d.
func (f *Flash) Error(msg string, d time.Duration) { f.set(msg, LevelError, d) }

func (f *Flash) set(msg string, level Level, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.level = level
	f.expires = f.clock().Add(d)
}

// Get returns the current message and its level, or "" once it expired.
func (f *Flash) Get() (string, Level) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.clock().Before(f.expires) {
		return "", LevelInfo
	}
	return f.message, f.level
}
