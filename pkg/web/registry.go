package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-falldetect/pkg/session"
)

// DefaultSessionID is used by requests without an X-Session-ID header
const DefaultSessionID = "default"

// ErrUnknownSession is returned for session IDs the registry never issued
// or has already closed.
var ErrUnknownSession = errors.New("web: unknown session")

// Factory creates the engine backing a new session
type Factory func() (*session.Engine, error)

type entry struct {
	engine   *session.Engine
	lastUsed time.Time
}

// Registry owns the detection sessions served over HTTP
type Registry struct {
	factory Factory
	idle    time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

// NewRegistry creates a registry. Sessions unused for idle are closed by
// Sweep; zero disables eviction.
func NewRegistry(factory Factory, idle time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		factory:  factory,
		idle:     idle,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Create starts a new session with a random ID
func (r *Registry) Create() (string, *session.Engine, error) {
	id := uuid.NewString()
	e, err := r.open(id)
	if err != nil {
		return "", nil, err
	}
	return id, e, nil
}

// Get returns the session for id. The default session is created on first use.
func (r *Registry) Get(id string) (*session.Engine, error) {
	if id == "" {
		id = DefaultSessionID
	}

	r.mu.Lock()
	if en, ok := r.sessions[id]; ok {
		en.lastUsed = r.now()
		r.mu.Unlock()
		return en.engine, nil
	}
	r.mu.Unlock()

	if id != DefaultSessionID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return r.open(id)
}

// open creates and stores a session, keeping an existing one if another
// request got there first
func (r *Registry) open(id string) (*session.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, session.ErrSourceUnavailable
	}
	if en, ok := r.sessions[id]; ok {
		en.lastUsed = r.now()
		return en.engine, nil
	}

	e, err := r.factory()
	if err != nil {
		return nil, err
	}
	r.sessions[id] = &entry{engine: e, lastUsed: r.now()}
	r.logger.Info("session opened", "session", id, "sessions", len(r.sessions))
	return e, nil
}

// Remove closes and forgets a session
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	en, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	r.logger.Info("session closed", "session", id)
	return en.engine.Close()
}

// IDs returns the open session IDs in sorted order
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the registry timeout
func (r *Registry) Sweep() error {
	if r.idle <= 0 {
		return nil
	}
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var stale []*session.Engine
	for id, en := range r.sessions {
		if en.lastUsed.Before(cutoff) {
			stale = append(stale, en.engine)
			delete(r.sessions, id)
			r.logger.Info("session expired", "session", id)
		}
	}
	r.mu.Unlock()

	return closeAll(stale)
}

// Run sweeps idle sessions until ctx is cancelled
func (r *Registry) Run(ctx context.Context) {
	if r.idle <= 0 {
		return
	}
	ticker := time.NewTicker(max(r.idle/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(); err != nil {
				r.logger.Error("failed to close idle session", "error", err)
			}
		}
	}
}

// Close closes every session. Teardown failures are joined.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	engines := make([]*session.Engine, 0, len(r.sessions))
	for _, en := range r.sessions {
		engines = append(engines, en.engine)
	}
	clear(r.sessions)
	r.mu.Unlock()

	return closeAll(engines)
}

func closeAll(engines []*session.Engine) error {
	var errs []error
	for _, e := range engines {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
