package tournament

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/housepoker/internal/scheduler"
	"github.com/lox/housepoker/internal/scheduler/clocktest"
	"github.com/lox/housepoker/internal/store"
	"github.com/lox/housepoker/internal/table"
)

type events struct {
	mu  sync.Mutex
	all []Event
}

func (e *events) Publish(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, ev)
}

func (e *events) of(typ EventType) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.all {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	mock     *quartz.Mock
	sched    *scheduler.Scheduler
	store    *store.Store
	registry *table.Registry
	manager  *Manager
	events   *events
}

var fastTimings = table.Timings{
	TurnTimeout:     2 * time.Second,
	BotDelayMin:     100 * time.Millisecond,
	BotDelayMax:     100 * time.Millisecond,
	DisconnectGrace: time.Second,
	RunoutDelay:     100 * time.Millisecond,
	NextHandDelay:   500 * time.Millisecond,
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	mock := quartz.NewMock(t)
	sched := scheduler.New(mock, zerolog.Nop())

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "tournament.db"), zerolog.Nop(), store.WithClock(func() time.Time { return mock.Now() }))
	require.NoError(t, err)

	registry := table.NewRegistry(zerolog.Nop())
	registry.Start(ctx)

	ev := &events{}
	m := New(st, registry, sched, ev, Settings{
		Timings:       fastTimings,
		SitAndGoDelay: 10 * time.Second,
		PendingCheck:  30 * time.Second,
		Bots: []store.BotEntry{
			{Name: "Ace", Difficulty: "easy"},
			{Name: "Bluff", Difficulty: "medium"},
			{Name: "Shark", Difficulty: "hard"},
		},
		Seed: 7,
	}, zerolog.Nop())
	require.NoError(t, m.Start(ctx))

	t.Cleanup(func() {
		m.Stop()
		_ = registry.Stop()
		sched.Stop()
		_ = st.Close()
	})
	return &testEnv{mock: mock, sched: sched, store: st, registry: registry, manager: m, events: ev}
}

func turboSchedule() []store.BlindLevel {
	blinds := [][2]int{{10, 20}, {25, 50}, {50, 100}, {100, 200}, {200, 400}, {400, 800}, {1000, 2000}}
	levels := make([]store.BlindLevel, len(blinds))
	for i, b := range blinds {
		levels[i] = store.BlindLevel{Level: i + 1, SmallBlind: b[0], BigBlind: b[1], Duration: 0.05}
	}
	return levels
}

func TestSitAndGoPlaysToAWinner(t *testing.T) {
	for _, tc := range []struct {
		name     string
		entrants int
		tables   []string
	}{
		{"single table", 9, []string{"t1-1"}},
		{"two tables", 10, []string{"t1-1", "t1-2"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			playToAWinner(t, tc.entrants, tc.tables)
		})
	}
}

func playToAWinner(t *testing.T, entrants int, tables []string) {
	env := newEnv(t)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		_, err := env.store.EnsureUser(ctx, id, id, 10000)
		require.NoError(t, err)
	}
	_, err := env.store.EnsureUser(ctx, "carol", "carol", 50)
	require.NoError(t, err)

	tour, err := env.manager.Create(ctx, &store.Tournament{
		Name:          "Turbo",
		Type:          store.SitAndGo,
		Variant:       "holdem",
		BuyIn:         100,
		EntryFee:      10,
		StartingChips: 1500,
		MinPlayers:    2,
		MaxPlayers:    entrants,
		BotsEnabled:   true,
		BlindSchedule: turboSchedule(),
	})
	require.NoError(t, err)

	_, err = env.manager.Register(ctx, tour.ID, "alice")
	require.NoError(t, err)
	_, err = env.manager.Register(ctx, tour.ID, "alice")
	var rejected *RegistrationError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "already_registered", rejected.Reason)

	_, err = env.manager.Register(ctx, tour.ID, "carol")
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "insufficient_balance", rejected.Reason)

	_, pending := env.sched.Pending("tournament/1/start")
	assert.False(t, pending, "one player does not start a sit and go")

	_, err = env.manager.Register(ctx, tour.ID, "bob")
	require.NoError(t, err)
	_, pending = env.sched.Pending("tournament/1/start")
	require.True(t, pending)

	clocktest.Advance(t, env.mock, 10*time.Second)
	done := env.manager.Done(tour.ID)
	require.NotNil(t, done, "tournament is running")

	info, err := env.manager.Get(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, info.Status)
	assert.Len(t, info.Entries, entrants, "bots fill the empty seats")
	assert.Equal(t, tables, info.Tables)
	assert.Equal(t, int64(200), info.PrizePool, "bots add nothing to the pool")

	_, err = env.manager.Register(ctx, tour.ID, "carol")
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "registration_closed", rejected.Reason)

finished:
	for i := 0; i < 50000; i++ {
		select {
		case <-done:
			break finished
		default:
		}
		clocktest.Advance(t, env.mock, 100*time.Millisecond)
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tournament did not finish")
	}

	got, err := env.store.GetTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)

	entries, err := env.store.Entries(ctx, tour.ID)
	require.NoError(t, err)
	positions := map[int]bool{}
	var paid int64
	for _, e := range entries {
		require.NotZero(t, e.FinishPosition, "entry %d placed", e.ID)
		assert.False(t, positions[e.FinishPosition], "position %d taken once", e.FinishPosition)
		positions[e.FinishPosition] = true
		paid += e.PrizeWon
		if e.FinishPosition == 1 {
			assert.Equal(t, store.EntryFinished, e.Status)
			assert.Equal(t, int64(1500*entrants), e.ChipStack, "the winner holds every chip")
		} else {
			assert.Equal(t, store.EntryEliminated, e.Status)
		}
		if !e.IsBot {
			u, err := env.store.GetUser(ctx, e.UserID)
			require.NoError(t, err)
			assert.Equal(t, 10000-110+e.PrizeWon, u.Balance)
		}
	}
	assert.LessOrEqual(t, paid, got.PrizePool)

	assert.Len(t, env.events.of(EventStarted), 1)
	assert.NotEmpty(t, env.events.of(EventBlindLevelRaised))
	assert.Len(t, env.events.of(EventPlayerEliminated), entrants-1)
	ended := env.events.of(EventEnded)
	require.Len(t, ended, 1)
	assert.Len(t, ended[0].Placements, entrants)

	assert.Empty(t, env.registry.Sessions(), "tournament tables are closed")
	assert.Empty(t, env.sched.Keys("tournament/1/"))
	assert.Empty(t, env.sched.Keys("table/"))
	assert.Nil(t, env.manager.Done(tour.ID))
}

func TestScheduledTournamentWaitsForItsStartTime(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		_, err := env.store.EnsureUser(ctx, id, id, 1000)
		require.NoError(t, err)
	}
	start := env.mock.Now().Add(time.Minute)
	tour, err := env.manager.Create(ctx, &store.Tournament{
		Name:           "Nightly",
		Type:           store.Scheduled,
		BuyIn:          100,
		StartingChips:  1000,
		MinPlayers:     2,
		MaxPlayers:     9,
		BlindSchedule:  turboSchedule(),
		ScheduledStart: &start,
	})
	require.NoError(t, err)
	for _, id := range []string{"alice", "bob"} {
		_, err = env.manager.Register(ctx, tour.ID, id)
		require.NoError(t, err)
	}

	clocktest.Advance(t, env.mock, 30*time.Second)
	info, err := env.manager.Get(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRegistering, info.Status)

	clocktest.Advance(t, env.mock, 30*time.Second)
	info, err = env.manager.Get(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, info.Status)
	assert.Len(t, info.Entries, 2, "bots were not enabled")
	assert.Equal(t, 1, info.Level)
	assert.Equal(t, []string{"t1-1"}, info.Tables)
}

func TestUnregisterRefundsBuyIn(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.store.EnsureUser(ctx, "alice", "alice", 1000)
	require.NoError(t, err)
	tour, err := env.manager.Create(ctx, &store.Tournament{
		Name:          "Refund",
		Type:          store.SitAndGo,
		BuyIn:         100,
		EntryFee:      10,
		StartingChips: 1000,
		MinPlayers:    3,
		MaxPlayers:    9,
		BlindSchedule: turboSchedule(),
	})
	require.NoError(t, err)

	_, err = env.manager.Register(ctx, tour.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, env.manager.Unregister(ctx, tour.ID, "alice"))

	u, err := env.store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), u.Balance)

	err = env.manager.Unregister(ctx, tour.ID, "alice")
	var rejected *RegistrationError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "not_registered", rejected.Reason)
}

func TestEnsureCreatedIsIdempotentByName(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	def := func() *store.Tournament {
		return &store.Tournament{Name: "Daily", Type: store.SitAndGo, BuyIn: 10, StartingChips: 500, MinPlayers: 2, MaxPlayers: 6, BlindSchedule: turboSchedule()}
	}

	first, err := env.manager.EnsureCreated(ctx, def())
	require.NoError(t, err)
	second, err := env.manager.EnsureCreated(ctx, def())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestFinishOrderAndPayouts(t *testing.T) {
	t.Parallel()
	at := func(min int) *time.Time {
		ts := time.Date(2024, 1, 1, 12, min, 0, 0, time.UTC)
		return &ts
	}
	entries := []*store.Entry{
		{ID: 1, UserID: "alice", Status: store.EntryEliminated, EliminatedAt: at(5)},
		{ID: 2, UserID: "bob", Status: store.EntryActive, ChipStack: 3000},
		{ID: 3, IsBot: true, Status: store.EntryEliminated, EliminatedAt: at(5)},
		{ID: 4, UserID: "carol", Status: store.EntryWithdrawn},
		{ID: 5, UserID: "dave", Status: store.EntryEliminated, EliminatedAt: at(1)},
	}

	// 3 and 1 went out in the same hand, 3 with the smaller stack
	order := FinishOrder(entries, []int64{5, 3, 1})
	ids := make([]int64, len(order))
	for i, e := range order {
		ids[i] = e.ID
	}
	assert.Equal(t, []int64{2, 1, 3, 5}, ids)

	placements := Payouts(1001, store.DefaultPayouts, order)
	assert.Equal(t, []store.Placement{
		{EntryID: 2, UserID: "bob", Position: 1, Prize: 500},
		{EntryID: 1, UserID: "alice", Position: 2, Prize: 300},
		{EntryID: 3, Position: 3, Prize: 200},
		{EntryID: 5, UserID: "dave", Position: 4, Prize: 0},
	}, placements)

	// without a bust order elimination time decides
	order = FinishOrder(entries, nil)
	assert.Equal(t, int64(5), order[len(order)-1].ID)
}
