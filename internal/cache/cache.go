// Package cache provides the client-side task list cache. An entry is the
// full task collection plus the time it was captured; it is served only while
// younger than the configured expiry and is discarded on any read that finds
// it stale or unreadable.
package cache

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"taskflow/backend"
)

const (
	// PayloadKey holds the JSON task array.
	PayloadKey = "tasks_cache"
	// TimestampKey holds the capture time as epoch milliseconds.
	TimestampKey = "tasks_cache_timestamp"

	DefaultExpiry = 5 * time.Minute
)

// Engine reads and writes cache entries. Storage faults never reach the
// caller: they are logged and treated as a miss.
type Engine struct {
	storage Storage
	expiry  time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithExpiry sets how long an entry stays valid. Non-positive values are ignored.
func WithExpiry(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.expiry = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger used for swallowed storage faults.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New returns an Engine over storage.
func New(storage Storage, opts ...Option) *Engine {
	e := &Engine{
		storage: storage,
		expiry:  DefaultExpiry,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expiry returns the configured validity window.
func (e *Engine) Expiry() time.Duration {
	return e.expiry
}

// Read returns the cached tasks if an entry exists and is younger than the
// expiry. In every other case it returns false and removes whatever was stored.
func (e *Engine) Read() ([]backend.Task, bool) {
	payload, hasPayload, err := e.storage.Get(PayloadKey)
	if err != nil {
		e.log.Warn().Err(err).Msg("cache read failed, discarding entry")
		e.Clear()
		return nil, false
	}
	rawTS, hasTS, err := e.storage.Get(TimestampKey)
	if err != nil {
		e.log.Warn().Err(err).Msg("cache timestamp read failed, discarding entry")
		e.Clear()
		return nil, false
	}
	if !hasPayload && !hasTS {
		return nil, false
	}
	if !hasPayload || !hasTS {
		e.log.Debug().Bool("payload", hasPayload).Bool("timestamp", hasTS).Msg("incomplete cache entry")
		e.Clear()
		return nil, false
	}

	captured, err := parseTimestamp(rawTS)
	if err != nil {
		e.log.Warn().Err(err).Msg("corrupt cache timestamp")
		e.Clear()
		return nil, false
	}
	if age := e.now().Sub(captured); age >= e.expiry {
		e.log.Debug().Dur("age", age).Msg("cache entry expired")
		e.Clear()
		return nil, false
	}

	tasks, err := decodeTasks(payload)
	if err != nil {
		e.log.Warn().Err(err).Msg("corrupt cache payload")
		e.Clear()
		return nil, false
	}
	return tasks, true
}

// Write stores tasks stamped with the current time, replacing any entry.
func (e *Engine) Write(tasks []backend.Task) {
	if tasks == nil {
		tasks = []backend.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to encode cache entry")
		return
	}
	err = e.storage.Set(map[string]string{
		PayloadKey:   string(data),
		TimestampKey: strconv.FormatInt(e.now().UnixMilli(), 10),
	})
	if err != nil {
		e.log.Error().Err(err).Msg("failed to write cache entry")
		return
	}
	e.log.Debug().Int("tasks", len(tasks)).Msg("cache written")
}

// Clear removes the entry. It is safe to call when nothing is cached.
func (e *Engine) Clear() {
	if err := e.storage.Delete(PayloadKey, TimestampKey); err != nil {
		e.log.Error().Err(err).Msg("failed to clear cache")
	}
}

// IsValid reports whether a timestamp is stored and younger than the expiry.
// It never modifies storage and does not look at the payload.
func (e *Engine) IsValid() bool {
	rawTS, ok, err := e.storage.Get(TimestampKey)
	if err != nil || !ok {
		return false
	}
	captured, err := parseTimestamp(rawTS)
	if err != nil {
		return false
	}
	return e.now().Sub(captured) < e.expiry
}

// Info is a read-only snapshot of the cache state.
type Info struct {
	Present    bool          `json:"present"`
	Valid      bool          `json:"valid"`
	Corrupt    bool          `json:"corrupt"`
	CapturedAt time.Time     `json:"capturedAt,omitempty"`
	Age        time.Duration `json:"age"`
	ExpiresIn  time.Duration `json:"expiresIn"`
	Expiry     time.Duration `json:"expiry"`
	TaskCount  int           `json:"taskCount"`
}

// Info inspects the entry without modifying storage.
func (e *Engine) Info() Info {
	info := Info{Expiry: e.expiry}

	payload, hasPayload, perr := e.storage.Get(PayloadKey)
	rawTS, hasTS, terr := e.storage.Get(TimestampKey)
	if perr != nil || terr != nil {
		info.Corrupt = true
		return info
	}
	info.Present = hasPayload || hasTS
	if !info.Present {
		return info
	}
	if !hasPayload || !hasTS {
		info.Corrupt = true
		return info
	}

	captured, err := parseTimestamp(rawTS)
	if err != nil {
		info.Corrupt = true
		return info
	}
	info.CapturedAt = captured
	info.Age = e.now().Sub(captured)
	if remaining := e.expiry - info.Age; remaining > 0 {
		info.ExpiresIn = remaining
	}

	tasks, err := decodeTasks(payload)
	if err != nil {
		info.Corrupt = true
		return info
	}
	info.TaskCount = len(tasks)
	info.Valid = info.Age < e.expiry
	return info
}

var errNotTaskArray = errors.New("cache payload is not a task array")

func parseTimestamp(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// decodeTasks requires a JSON array; null or any other shape is corrupt.
func decodeTasks(payload string) ([]backend.Task, error) {
	var tasks []backend.Task
	if err := json.Unmarshal([]byte(payload), &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		return nil, errNotTaskArray
	}
	return tasks, nil
}
