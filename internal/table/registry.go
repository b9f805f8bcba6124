package table

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Registry tracks the live sessions of the process. It is built once at
// startup and passed to whatever needs to find a table.
type Registry struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	ctx      context.Context
	started  bool
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:   logger.With().Str("component", "table_registry").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Start starts every registered session, and any registered later.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.started = true
	sessions := r.snapshotLocked()
	r.mu.Unlock()

	for _, s := range sessions {
		s.Start(ctx)
	}
	r.logger.Info().Int("tables", len(sessions)).Msg("Tables started")
}

// Register adds a session. Ids must be unique.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	if _, ok := r.sessions[s.ID()]; ok {
		r.mu.Unlock()
		return fmt.Errorf("table %s already registered", s.ID())
	}
	r.sessions[s.ID()] = s
	started, ctx := r.started, r.ctx
	r.mu.Unlock()

	if started {
		s.Start(ctx)
	}
	return nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove closes and forgets the session with id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// Sessions returns the registered sessions ordered by id.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// List summarises every table. Tables that close while listing are skipped.
func (r *Registry) List() []Info {
	var out []Info
	for _, s := range r.Sessions() {
		info, err := s.Info()
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out
}

// Stop closes every session in parallel.
func (r *Registry) Stop() error {
	r.mu.Lock()
	sessions := r.snapshotLocked()
	r.sessions = make(map[string]*Session)
	r.started = false
	r.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(s.Close)
	}
	err := g.Wait()
	r.logger.Info().Int("tables", len(sessions)).Msg("Tables stopped")
	return err
}
