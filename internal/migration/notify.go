// internal/migration/notify.go
package migration

import (
	"sync"
	"time"
)

// Level of an operator notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-facing message produced by a panel operation.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// feedSize bounds the undrained notifications kept per panel.
const feedSize = 100

// Feed buffers notifications until the next Drain. The oldest entries are
// dropped when it is full.
type Feed struct {
	mu    sync.Mutex
	items []Notification
}

// NewFeed returns an empty feed.
func NewFeed() *Feed { return &Feed{} }

func (f *Feed) Notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if len(f.items) > feedSize {
		f.items = f.items[len(f.items)-feedSize:]
	}
}

// Drain returns and clears the buffered notifications.
func (f *Feed) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.items
	f.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}
