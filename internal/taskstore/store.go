// Package taskstore owns the client-side task collection and the protocol that
// decides whether it comes from the local cache or the remote API.
package taskstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"taskflow/backend"
	"taskflow/internal/cache"
	"taskflow/internal/client"
	"taskflow/internal/notification"
	"taskflow/internal/views"
)

// FallbackWarning is shown when the remote API failed and cached tasks are displayed instead.
const FallbackWarning = "Remote data unavailable, showing cached tasks"

// Remote is the subset of the API client the store depends on.
type Remote interface {
	ListTasks(ctx context.Context) ([]backend.Task, error)
	CreateTask(ctx context.Context, req backend.CreateTaskRequest) (*backend.Task, error)
	UpdateTask(ctx context.Context, id int64, patch backend.TaskPatch) (*backend.Task, error)
	DeleteTask(ctx context.Context, id int64) (*backend.Task, error)
	SearchTasks(ctx context.Context, query string, limit int) ([]backend.ScoredTask, error)
}

// Event is delivered to subscribers after every state change.
type Event struct {
	Status  cache.Status
	Warning string
	Err     error
}

// Store is the authoritative in-memory task collection plus its view options.
type Store struct {
	remote Remote
	cache  *cache.Engine
	notes  *notification.Manager
	logger zerolog.Logger

	mu      sync.RWMutex
	tasks   []backend.Task
	opts    views.Options
	status  cache.Status
	warning string
	lastErr error
	loading bool

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Option configures a Store
type Option func(*Store)

// WithNotifications sets the manager that receives warnings and errors.
func WithNotifications(m *notification.Manager) Option {
	return func(s *Store) {
		s.notes = m
	}
}

// WithLogger sets the store logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithViewOptions sets the initial filter, search and sort.
func WithViewOptions(o views.Options) Option {
	return func(s *Store) {
		s.opts = o
	}
}

// New creates an idle Store.
func New(remote Remote, engine *cache.Engine, opts ...Option) *Store {
	s := &Store{
		remote: remote,
		cache:  engine,
		logger: zerolog.Nop(),
		opts:   views.DefaultOptions(),
		status: cache.StatusIdle,
		subs:   make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notes == nil {
		s.notes = notification.NewManager(notification.WithLogger(s.logger))
	}
	return s
}

// =============================================================================
// Fetch / refresh protocol
// =============================================================================

// Load populates the collection. Unless force is set a valid cache entry is
// used without contacting the remote. When the remote fails, a still-valid
// cache entry is shown with FallbackWarning; otherwise the status becomes
// error, the prior collection is kept and the returned error is non-nil.
func (s *Store) Load(ctx context.Context, force bool) error {
	if !force {
		if tasks, ok := s.cache.Read(); ok {
			s.logger.Debug().Int("tasks", len(tasks)).Msg("loaded tasks from cache")
			s.adopt(tasks, cache.StatusLoadedFromCache, "")
			return nil
		}
	}

	s.beginFetch()
	tasks, err := s.remote.ListTasks(ctx)
	s.setLoading(false)

	if err == nil {
		s.cache.Write(tasks)
		s.logger.Debug().Int("tasks", len(tasks)).Bool("forced", force).Msg("loaded tasks from remote")
		s.adopt(tasks, cache.StatusLoadedFromRemote, "")
		return nil
	}

	s.logger.Warn().Err(err).Msg("remote fetch failed")
	if cached, ok := s.cache.Read(); ok {
		s.notes.Warn(FallbackWarning)
		s.adopt(cached, cache.StatusFallbackToCache, FallbackWarning)
		return nil
	}

	s.fail(err)
	return err
}

// Refresh discards the cache entry and fetches from the remote.
func (s *Store) Refresh(ctx context.Context) error {
	s.cache.Clear()
	return s.Load(ctx, true)
}

// =============================================================================
// Mutations
// =============================================================================

// Create adds a task through the remote and appends it to the cached collection.
func (s *Store) Create(ctx context.Context, req backend.CreateTaskRequest) (*backend.Task, error) {
	created, err := s.mutate(ctx, func(ctx context.Context) (*backend.Task, error) {
		return s.remote.CreateTask(ctx, req)
	}, func(tasks []backend.Task, t backend.Task) []backend.Task {
		return append(tasks, t)
	})
	return created, err
}

// Update applies patch to task id through the remote.
func (s *Store) Update(ctx context.Context, id int64, patch backend.TaskPatch) (*backend.Task, error) {
	return s.mutate(ctx, func(ctx context.Context) (*backend.Task, error) {
		return s.remote.UpdateTask(ctx, id, patch)
	}, replaceTask)
}

// Delete removes task id through the remote.
func (s *Store) Delete(ctx context.Context, id int64) (*backend.Task, error) {
	return s.mutate(ctx, func(ctx context.Context) (*backend.Task, error) {
		return s.remote.DeleteTask(ctx, id)
	}, func(tasks []backend.Task, t backend.Task) []backend.Task {
		out := tasks[:0]
		for _, existing := range tasks {
			if existing.ID != t.ID {
				out = append(out, existing)
			}
		}
		return out
	})
}

// mutate runs call and, on success, folds its result into the collection and
// writes the collection to the cache. The cache is never read here.
func (s *Store) mutate(ctx context.Context, call func(context.Context) (*backend.Task, error), fold func([]backend.Task, backend.Task) []backend.Task) (*backend.Task, error) {
	s.setLoading(true)
	result, err := call(ctx)
	s.setLoading(false)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.mu.Lock()
	tasks := fold(cloneTasks(s.tasks), *result)
	s.tasks = tasks
	s.status = cache.StatusUpdated
	s.warning = ""
	s.lastErr = nil
	snapshot := cloneTasks(tasks)
	s.mu.Unlock()

	s.cache.Write(snapshot)
	s.emit()
	return result, nil
}

func replaceTask(tasks []backend.Task, t backend.Task) []backend.Task {
	for i := range tasks {
		if tasks[i].ID == t.ID {
			tasks[i] = t
			return tasks
		}
	}
	return append(tasks, t)
}

// =============================================================================
// Search
// =============================================================================

// Search runs a semantic search on the remote. Results are not cached and do
// not change the collection.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]backend.ScoredTask, error) {
	s.setLoading(true)
	hits, err := s.remote.SearchTasks(ctx, query, limit)
	s.setLoading(false)
	if err != nil {
		s.notes.Error(ErrorMessage(err))
		return nil, err
	}
	return hits, nil
}

// =============================================================================
// State accessors
// =============================================================================

// Status returns the cache status of the last operation.
func (s *Store) Status() cache.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Warning returns the fallback warning, if the collection is a fallback copy.
func (s *Store) Warning() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warning
}

// Err returns the error of the last failed operation, cleared on success.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Loading reports whether a remote call is running.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Tasks returns a copy of the authoritative collection.
func (s *Store) Tasks() []backend.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.tasks)
}

// View returns the collection filtered and sorted by the current options.
func (s *Store) View() []backend.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return views.Apply(s.tasks, s.opts)
}

// Find returns the task with the given id from the collection.
func (s *Store) Find(id int64) (backend.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return backend.Task{}, false
}

// Notifications returns the manager holding the store's notices.
func (s *Store) Notifications() *notification.Manager {
	return s.notes
}

// Options returns the current view options
func (s *Store) Options() views.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// SetStatusFilter changes the status filter of the view.
func (s *Store) SetStatusFilter(f views.StatusFilter) {
	s.updateOptions(func(o *views.Options) { o.Status = f })
}

// SetSort changes the sort key of the view.
func (s *Store) SetSort(k views.SortKey) {
	s.updateOptions(func(o *views.Options) { o.Sort = k })
}

// SetSearch changes the substring search term of the view.
func (s *Store) SetSearch(term string) {
	s.updateOptions(func(o *views.Options) { o.Search = strings.TrimSpace(term) })
}

func (s *Store) updateOptions(fn func(*views.Options)) {
	s.mu.Lock()
	fn(&s.opts)
	s.mu.Unlock()
	s.emit()
}

// Subscribe registers fn to be called after every state change and returns a
// function that removes it.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// =============================================================================
// Internal state transitions
// =============================================================================

func (s *Store) adopt(tasks []backend.Task, status cache.Status, warning string) {
	s.mu.Lock()
	s.tasks = cloneTasks(tasks)
	s.status = status
	s.warning = warning
	s.lastErr = nil
	s.mu.Unlock()
	s.emit()
}

// fail records err without touching the collection.
func (s *Store) fail(err error) {
	s.mu.Lock()
	s.status = cache.StatusError
	s.warning = ""
	s.lastErr = err
	s.mu.Unlock()

	s.notes.Error(ErrorMessage(err))
	s.emit()
}

func (s *Store) beginFetch() {
	s.mu.Lock()
	s.loading = true
	s.status = cache.StatusFetching
	s.mu.Unlock()
	s.emit()
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

func (s *Store) emit() {
	s.mu.RLock()
	ev := Event{Status: s.status, Warning: s.warning, Err: s.lastErr}
	s.mu.RUnlock()

	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// ErrorMessage is the user-facing text for a failed remote call. Validation
// messages returned by the server are appended verbatim.
func ErrorMessage(err error) string {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	msg := apiErr.Message
	if msg == "" {
		msg = client.NetworkErrorMessage
	}
	if len(apiErr.Errors) > 0 {
		msg += ": " + strings.Join(apiErr.Errors, "; ")
	}
	return msg
}

func cloneTasks(tasks []backend.Task) []backend.Task {
	if tasks == nil {
		return nil
	}
	out := make([]backend.Task, len(tasks))
	copy(out, tasks)
	return out
}
