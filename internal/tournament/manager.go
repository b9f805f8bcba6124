// Package tournament runs tournaments on top of table sessions: buy-ins,
// starting, blind escalation, eliminations and payouts.
//
// A tournament only refers to its tables by id, and a tournament table only
// carries the tournament id, so either side can shut down on its own.
package tournament

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lox/housepoker/internal/randutil"
	"github.com/lox/housepoker/internal/scheduler"
	"github.com/lox/housepoker/internal/store"
	"github.com/lox/housepoker/internal/table"
)

const pendingKey = "tournaments/pending"

// Settings tune the manager.
type Settings struct {
	Timings       table.Timings
	SitAndGoDelay time.Duration
	PendingCheck  time.Duration
	// Bots is the roster used to fill tournaments that allow bots.
	Bots []store.BotEntry
	Seed int64
	// TableOptions are applied to every tournament table.
	TableOptions []table.Option
}

// Manager owns every running tournament of the process.
type Manager struct {
	store     *store.Store
	registry  *table.Registry
	sched     *scheduler.Scheduler
	publisher Publisher
	settings  Settings
	logger    zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	running map[int64]*run
}

// New creates a manager. Tables it creates are registered in registry.
func New(st *store.Store, registry *table.Registry, sched *scheduler.Scheduler, publisher Publisher, settings Settings, logger zerolog.Logger) *Manager {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if settings.SitAndGoDelay <= 0 {
		settings.SitAndGoDelay = 10 * time.Second
	}
	if settings.PendingCheck <= 0 {
		settings.PendingCheck = 10 * time.Second
	}
	if settings.Seed == 0 {
		settings.Seed = randutil.Seed()
	}
	return &Manager{
		store:     st,
		registry:  registry,
		sched:     sched,
		publisher: publisher,
		settings:  settings,
		logger:    logger.With().Str("component", "tournaments").Logger(),
		ctx:       context.Background(),
		running:   make(map[int64]*run),
	}
}

// Start begins the periodic check for tournaments that are due.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	stale, err := m.store.ListTournaments(ctx, store.StatusRunning)
	if err != nil {
		return err
	}
	for _, t := range stale {
		// seating is not persisted, a tournament cut off by a restart cannot resume
		m.logger.Warn().Int64("tournament_id", t.ID).Str("name", t.Name).Msg("Tournament was running when the server stopped")
	}

	m.sched.Every(pendingKey, m.settings.PendingCheck, func() { m.checkPending(m.context()) })
	m.logger.Info().Dur("interval", m.settings.PendingCheck).Msg("Tournament manager started")
	return nil
}

// Stop cancels tournament timers and stops result processing. Tables are
// closed by their registry.
func (m *Manager) Stop() {
	m.sched.Cancel(pendingKey)
	m.sched.CancelPrefix("tournament/")

	m.mu.Lock()
	runs := make([]*run, 0, len(m.running))
	for _, r := range m.running {
		runs = append(runs, r)
	}
	m.running = make(map[int64]*run)
	m.mu.Unlock()

	for _, r := range runs {
		r.stop()
	}
}

func (m *Manager) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// Create stores a new tournament. Its blind schedule and payout curve are
// validated before anything is written.
func (m *Manager) Create(ctx context.Context, def *store.Tournament) (*store.Tournament, error) {
	id, err := m.store.CreateTournament(ctx, def)
	if err != nil {
		return nil, err
	}
	m.logger.Info().Int64("tournament_id", id).Str("name", def.Name).Str("type", string(def.Type)).Msg("Tournament created")
	return m.store.GetTournament(ctx, id)
}

// EnsureCreated creates def unless a tournament with the same name is still
// registering or running.
func (m *Manager) EnsureCreated(ctx context.Context, def *store.Tournament) (*store.Tournament, error) {
	open, err := m.store.ListTournaments(ctx, store.StatusRegistering, store.StatusRunning)
	if err != nil {
		return nil, err
	}
	for _, t := range open {
		if t.Name == def.Name {
			return t, nil
		}
	}
	return m.Create(ctx, def)
}

// Register buys userID into a tournament. A sit and go that reaches its
// minimum starts after a short grace period.
func (m *Manager) Register(ctx context.Context, tournamentID int64, userID string) (*store.Entry, error) {
	entry, err := m.store.Register(ctx, tournamentID, userID)
	if err != nil {
		return nil, registrationError(err)
	}
	m.logger.Info().Int64("tournament_id", tournamentID).Str("user_id", userID).Msg("Player registered")

	t, err := m.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return entry, nil
	}
	if t.Type == store.SitAndGo && t.CurrentPlayers >= t.MinPlayers {
		m.scheduleStart(t.ID, m.settings.SitAndGoDelay)
	}
	return entry, nil
}

// Unregister refunds userID's buy-in while registration is open.
func (m *Manager) Unregister(ctx context.Context, tournamentID int64, userID string) error {
	if err := m.store.Unregister(ctx, tournamentID, userID); err != nil {
		return registrationError(err)
	}
	m.logger.Info().Int64("tournament_id", tournamentID).Str("user_id", userID).Msg("Player unregistered")
	return nil
}

// Info is a tournament with its entries and live state.
type Info struct {
	*store.Tournament
	Entries    []*store.Entry `json:"entries"`
	Level      int            `json:"level,omitempty"`
	SmallBlind int            `json:"smallBlind,omitempty"`
	BigBlind   int            `json:"bigBlind,omitempty"`
	Tables     []string       `json:"tables,omitempty"`
}

// Get returns a tournament with its entries.
func (m *Manager) Get(ctx context.Context, id int64) (*Info, error) {
	t, err := m.store.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := m.store.Entries(ctx, id)
	if err != nil {
		return nil, err
	}
	info := &Info{Tournament: t, Entries: entries}

	m.mu.Lock()
	r := m.running[id]
	m.mu.Unlock()
	if r != nil {
		level := r.currentLevel()
		info.Level, info.SmallBlind, info.BigBlind = level.Level, level.SmallBlind, level.BigBlind
		info.Tables = r.tableIDs()
	}
	return info, nil
}

// List returns tournaments with any of the given statuses, or all.
func (m *Manager) List(ctx context.Context, statuses ...store.TournamentStatus) ([]*store.Tournament, error) {
	return m.store.ListTournaments(ctx, statuses...)
}

// Done returns a channel closed when the tournament finishes, or nil when it
// is not running in this process.
func (m *Manager) Done(id int64) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.running[id]; ok {
		return r.finished
	}
	return nil
}

func (m *Manager) startKey(id int64) string {
	return fmt.Sprintf("tournament/%d/start", id)
}

func (m *Manager) scheduleStart(id int64, delay time.Duration) {
	if _, pending := m.sched.Pending(m.startKey(id)); pending {
		return
	}
	m.sched.Schedule(m.startKey(id), delay, func() {
		if err := m.start(m.context(), id); err != nil {
			m.logger.Error().Err(err).Int64("tournament_id", id).Msg("Failed to start tournament")
		}
	})
	m.logger.Info().Int64("tournament_id", id).Dur("delay", delay).Msg("Tournament start scheduled")
}

// checkPending starts scheduled tournaments whose time has come and sit and
// goes that filled while no start was scheduled.
func (m *Manager) checkPending(ctx context.Context) {
	pending, err := m.store.ListTournaments(ctx, store.StatusRegistering)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list pending tournaments")
		return
	}
	now := m.sched.Now()
	for _, t := range pending {
		// bots top up scheduled tournaments at start, sit and goes wait for humans
		short := t.CurrentPlayers < t.MinPlayers
		if short && (t.Type != store.Scheduled || !t.BotsEnabled || t.CurrentPlayers == 0) {
			continue
		}
		switch t.Type {
		case store.Scheduled:
			if t.ScheduledStart != nil && !now.Before(*t.ScheduledStart) {
				if err := m.start(ctx, t.ID); err != nil {
					m.logger.Error().Err(err).Int64("tournament_id", t.ID).Msg("Failed to start tournament")
				}
			}
		case store.SitAndGo:
			m.scheduleStart(t.ID, m.settings.SitAndGoDelay)
		}
	}
}

// RegistrationError is a rejected registration change.
type RegistrationError struct {
	Reason string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration rejected (%s): %v", e.Reason, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

func registrationError(err error) error {
	reason := ""
	switch {
	case errors.Is(err, store.ErrRegistrationClosed):
		reason = "registration_closed"
	case errors.Is(err, store.ErrTournamentFull):
		reason = "tournament_full"
	case errors.Is(err, store.ErrAlreadyRegistered):
		reason = "already_registered"
	case errors.Is(err, store.ErrNotRegistered):
		reason = "not_registered"
	case errors.Is(err, store.ErrInsufficientBalance):
		reason = "insufficient_balance"
	case errors.Is(err, store.ErrNotFound):
		reason = "not_found"
	default:
		return err
	}
	return &RegistrationError{Reason: reason, Err: err}
}
