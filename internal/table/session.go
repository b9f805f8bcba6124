// Package table runs live tables. Each Session owns one game.Table and is the
// only thing that mutates it: every command, timer and bot decision is queued
// onto the session goroutine and applied there in order.
package table

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/internal/phh"
	"github.com/lox/housepoker/internal/randutil"
	"github.com/lox/housepoker/internal/scheduler"
	"github.com/lox/housepoker/internal/store"
)

var (
	// ErrClosed is returned by every method once the session has shut down.
	ErrClosed = errors.New("table closed")
	// ErrNotStarted is returned by commands sent before Start.
	ErrNotStarted = errors.New("table not started")
)

var errStale = errors.New("stale timer")

// Timings are the delays a session schedules.
type Timings struct {
	TurnTimeout     time.Duration
	BotDelayMin     time.Duration
	BotDelayMax     time.Duration
	DisconnectGrace time.Duration
	RunoutDelay     time.Duration
	NextHandDelay   time.Duration
}

// DefaultTimings returns the production delays.
func DefaultTimings() Timings {
	return Timings{
		TurnTimeout:     30 * time.Second,
		BotDelayMin:     time.Second,
		BotDelayMax:     3 * time.Second,
		DisconnectGrace: 5 * time.Second,
		RunoutDelay:     time.Second,
		NextHandDelay:   5 * time.Second,
	}
}

// Config describes a table.
type Config struct {
	ID           string
	Variant      game.Variant
	MaxSeats     int
	SmallBlind   int
	BigBlind     int
	Rake         game.RakeConfig
	BuyIn        int
	TournamentID int64
	Timings      Timings
	// AutoDeal deals hands by itself whenever two funded players are seated.
	AutoDeal bool
	Seed     int64
}

// Settler persists hand settlements. *store.Store implements it.
type Settler interface {
	RecordSettlement(ctx context.Context, st *store.Settlement) (bool, error)
	TableStacks(ctx context.Context, tableID string) (map[int]store.SeatStack, error)
	ClearSeat(ctx context.Context, tableID string, seat int) error
}

// HistoryWriter stores finished hands. *phh.Writer implements it.
type HistoryWriter interface {
	Write(h *phh.HandHistory) (string, error)
}

// Option configures a Session.
type Option func(*Session)

// WithSettler makes completed hands durable.
func WithSettler(st Settler) Option {
	return func(s *Session) { s.settler = st }
}

// WithCheckpointer records pre-hand stacks so a crashed hand can be voided.
func WithCheckpointer(cp store.Checkpointer) Option {
	return func(s *Session) { s.checkpoints = cp }
}

// WithHandHistory writes a PHH file for every completed hand.
func WithHandHistory(w HistoryWriter) Option {
	return func(s *Session) { s.history = w }
}

// WithRand replaces the seeded generator used for shuffles and bots.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

// OnHandComplete registers fn to run after each hand is settled, voided
// hands included. fn runs on the session goroutine: it must not block or
// call Session methods.
func OnHandComplete(fn func(*game.HandResult)) Option {
	return func(s *Session) { s.hooks = append(s.hooks, fn) }
}

// Session is one live table.
type Session struct {
	cfg    Config
	logger zerolog.Logger
	sched  *scheduler.Scheduler
	table  *game.Table
	rng    *rand.Rand

	settler     Settler
	checkpoints store.Checkpointer
	history     HistoryWriter
	hooks       []func(*game.HandResult)

	inbox     chan func()
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	running   atomic.Bool

	// owned by the session goroutine
	observers map[Observer]string
	leaving   map[string]bool
	handled   string
	armed     string
	turn      string    // decision the clock below belongs to
	turnEnds  time.Time // full deadline, fixed when the seat starts acting
	retry     []*store.Settlement
	closed    bool
}

// New creates a session. It does nothing until Start.
func New(cfg Config, sched *scheduler.Scheduler, logger zerolog.Logger, opts ...Option) *Session {
	if cfg.MaxSeats <= 0 {
		cfg.MaxSeats = game.DefaultMaxSeats
	}
	if cfg.Timings == (Timings{}) {
		cfg.Timings = DefaultTimings()
	}
	if cfg.Seed == 0 {
		cfg.Seed = randutil.Seed()
	}

	s := &Session{
		cfg:       cfg,
		logger:    logger.With().Str("component", "table").Str("table_id", cfg.ID).Logger(),
		sched:     sched,
		rng:       randutil.For(cfg.Seed, "table/"+cfg.ID),
		inbox:     make(chan func(), 64),
		done:      make(chan struct{}),
		observers: make(map[Observer]string),
		leaving:   make(map[string]bool),
	}
	s.table = game.NewTable(cfg.ID,
		game.WithVariant(cfg.Variant),
		game.WithMaxSeats(cfg.MaxSeats),
		game.WithBlinds(cfg.SmallBlind, cfg.BigBlind),
		game.WithRake(cfg.Rake),
		game.WithTournament(cfg.TournamentID),
	)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID is the table id.
func (s *Session) ID() string {
	return s.cfg.ID
}

// Config returns the configuration the session was created with.
func (s *Session) Config() Config {
	return s.cfg
}

// Done is closed when the session stops.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start launches the session goroutine and voids any hand a previous process
// left unfinished. Calling it again is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.running.Store(true)
		go s.run()
		if err := s.call(func() error { return s.restoreCheckpoint(ctx) }); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Error().Err(err).Msg("Failed to recover interrupted hand")
		}
	})
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// call runs fn on the session goroutine and waits for it. A nil error from
// fn means the table may have changed: invariants are checked, timers
// re-armed and views broadcast.
func (s *Session) call(fn func() error) error {
	if !s.running.Load() {
		return ErrNotStarted
	}
	errc := make(chan error, 1)
	select {
	case s.inbox <- func() { errc <- s.exec(fn) }:
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		// Close itself finishes by closing done
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	}
}

// read runs fn on the session goroutine without the post-mutation step.
func (s *Session) read(fn func()) error {
	err := s.call(func() error {
		fn()
		return errStale
	})
	if errors.Is(err, errStale) {
		return nil
	}
	return err
}

func (s *Session) exec(fn func() error) (err error) {
	if s.closed {
		return ErrClosed
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Table command panicked")
			s.voidHand(fmt.Sprintf("internal error: %v", r))
			s.step()
			err = fmt.Errorf("table %s: internal error", s.cfg.ID)
		}
	}()
	if err = fn(); err != nil {
		return err
	}
	if !s.closed {
		s.step()
	}
	return nil
}

// step runs after every accepted mutation.
func (s *Session) step() {
	t := s.table
	if err := t.CheckInvariants(); err != nil {
		s.logger.Error().Err(err).Str("hand_id", t.HandID).Msg("Invariant violated, voiding hand")
		s.voidHand(err.Error())
	}
	if r := t.Result(); r != nil && r.HandID != "" && r.HandID != s.handled {
		s.handled = r.HandID
		s.finishHand(r)
	}
	s.arm()
	s.broadcast()
}

func (s *Session) voidHand(reason string) {
	if !s.table.InHand() {
		return
	}
	r := s.table.Void(reason)
	s.logger.Warn().Str("hand_id", r.HandID).Str("reason", reason).Msg("Hand voided")
}

func (s *Session) now() time.Time {
	return s.sched.Now()
}

func (s *Session) key(name string) string {
	return "table/" + s.cfg.ID + "/" + name
}

func (s *Session) emit(e Event) {
	e.TableID = s.cfg.ID
	for o := range s.observers {
		o.Send(e)
	}
}

func (s *Session) broadcast() {
	now := s.now()
	for o, viewer := range s.observers {
		o.Send(Event{Type: EventState, TableID: s.cfg.ID, View: Personalize(s.table, viewer, now)})
	}
}

// Close voids any hand in progress, cancels every timer of the table and
// stops the session.
func (s *Session) Close() error {
	if !s.running.Load() {
		s.stopOnce.Do(func() { close(s.done) })
		return nil
	}
	err := s.call(func() error {
		if s.table.InHand() {
			s.voidHand("table closed")
			if r := s.table.Result(); r != nil && r.HandID != s.handled {
				s.handled = r.HandID
				s.finishHand(r)
			}
		}
		n := s.sched.CancelPrefix(s.key(""))
		s.emit(Event{Type: EventTableClosed})
		s.closed = true
		s.stopOnce.Do(func() { close(s.done) })
		s.logger.Info().Int("timers_cancelled", n).Msg("Table closed")
		// skip the post-command step
		return errClosing
	})
	if errors.Is(err, errClosing) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

var errClosing = errors.New("closing")
