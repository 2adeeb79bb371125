// Package notification holds dismissible user-visible notices raised by the
// task store and shown by the presentation layers.
package notification

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Level identifies the severity of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// DefaultMaxActive bounds how many undismissed notices are retained.
const DefaultMaxActive = 20

// Notification is a single notice shown to the user until dismissed
type Notification struct {
	ID        string
	Level     Level
	Message   string
	Timestamp time.Time
}

// Manager keeps the active notifications in arrival order.
type Manager struct {
	mu        sync.Mutex
	items     []Notification
	maxActive int
	now       func() time.Time
	logger    zerolog.Logger
	onPush    func(Notification)
}

// Option is a functional option for configuring a Manager
type Option func(*Manager)

// WithMaxActive sets how many notices are retained before the oldest is dropped.
func WithMaxActive(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxActive = n
		}
	}
}

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger forwards every pushed notice to logger at the matching level.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSendCallback sets a callback invoked after each push
func WithSendCallback(callback func(Notification)) Option {
	return func(m *Manager) {
		m.onPush = callback
	}
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		maxActive: DefaultMaxActive,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Push records a notice and returns it.
func (m *Manager) Push(level Level, message string) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		Timestamp: m.now(),
	}

	m.mu.Lock()
	m.items = append(m.items, n)
	if len(m.items) > m.maxActive {
		m.items = append([]Notification(nil), m.items[len(m.items)-m.maxActive:]...)
	}
	callback := m.onPush
	m.mu.Unlock()

	m.log(n)
	if callback != nil {
		callback(n)
	}
	return n
}

// Info pushes an informational notice
func (m *Manager) Info(message string) Notification { return m.Push(LevelInfo, message) }

// Warn pushes a warning notice
func (m *Manager) Warn(message string) Notification { return m.Push(LevelWarning, message) }

// Error pushes an error notice
func (m *Manager) Error(message string) Notification { return m.Push(LevelError, message) }

// Active returns a copy of the undismissed notices, oldest first.
func (m *Manager) Active() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.items))
	copy(out, m.items)
	return out
}

// Latest returns the most recent undismissed notice.
func (m *Manager) Latest() (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return Notification{}, false
	}
	return m.items[len(m.items)-1], true
}

// Dismiss removes the notice with the given id and reports whether it existed.
func (m *Manager) Dismiss(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.items {
		if n.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return true
		}
	}
	return false
}

// DismissLatest removes the most recent notice, if any.
func (m *Manager) DismissLatest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return false
	}
	m.items = m.items[:len(m.items)-1]
	return true
}

// DismissAll clears every notice
func (m *Manager) DismissAll() {
	m.mu.Lock()
	m.items = nil
	m.mu.Unlock()
}

// Count returns the number of active notices
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Manager) log(n Notification) {
	var ev *zerolog.Event
	switch n.Level {
	case LevelError:
		ev = m.logger.Error()
	case LevelWarning:
		ev = m.logger.Warn()
	default:
		ev = m.logger.Info()
	}
	ev.Str("notification_id", n.ID).Msg(n.Message)
}
