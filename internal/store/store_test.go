package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "house.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSchedule() []BlindLevel {
	return []BlindLevel{
		{Level: 1, SmallBlind: 10, BigBlind: 20, Duration: 5},
		{Level: 2, SmallBlind: 20, BigBlind: 40, Duration: 5},
		{Level: 3, SmallBlind: 50, BigBlind: 100, Duration: 5},
	}
}

func createTournament(t *testing.T, s *Store, mut func(*Tournament)) *Tournament {
	t.Helper()
	tour := &Tournament{
		Name:          "Nightly",
		Type:          SitAndGo,
		BuyIn:         100,
		EntryFee:      10,
		StartingChips: 1500,
		MinPlayers:    2,
		MaxPlayers:    3,
		BlindSchedule: testSchedule(),
	}
	if mut != nil {
		mut(tour)
	}
	_, err := s.CreateTournament(context.Background(), tour)
	require.NoError(t, err)
	return tour
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "house.db")

	s, err := Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	applied, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, len(migrations), n)
}

func TestSkipMigrationsDefersToMigrate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "house.db"), zerolog.Nop(), SkipMigrations())
	require.NoError(t, err)
	defer s.Close()

	applied, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, len(migrations))
	assert.Equal(t, migrations[0].name, applied[0])
}

func TestBalances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	u, err := s.EnsureUser(ctx, "alice", "Alice", 500)
	require.NoError(t, err)
	assert.EqualValues(t, 500, u.Balance)

	// a second ensure keeps the stored balance
	u, err = s.EnsureUser(ctx, "alice", "Alice", 9999)
	require.NoError(t, err)
	assert.EqualValues(t, 500, u.Balance)

	require.NoError(t, s.AdjustBalance(ctx, "alice", -200, "test"))
	err = s.AdjustBalance(ctx, "alice", -301, "test")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 300, u.Balance)

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistrationIsAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)
	tour := createTournament(t, s, nil)

	_, err := s.EnsureUser(ctx, "rich", "Rich", 1000)
	require.NoError(t, err)
	_, err = s.EnsureUser(ctx, "poor", "Poor", 50)
	require.NoError(t, err)

	entry, err := s.Register(ctx, tour.ID, "rich")
	require.NoError(t, err)
	assert.Equal(t, EntryRegistered, entry.Status)
	assert.EqualValues(t, 1500, entry.ChipStack)

	_, err = s.Register(ctx, tour.ID, "rich")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = s.Register(ctx, tour.ID, "poor")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	got, err := s.GetTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentPlayers, "failed registration leaves counters alone")
	assert.EqualValues(t, 100, got.PrizePool, "entry fee is not part of the prize pool")

	poor, err := s.GetUser(ctx, "poor")
	require.NoError(t, err)
	assert.EqualValues(t, 50, poor.Balance)

	rich, err := s.GetUser(ctx, "rich")
	require.NoError(t, err)
	assert.EqualValues(t, 890, rich.Balance)
}

func TestUnregisterRefundsAndKeepsEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)
	tour := createTournament(t, s, nil)

	_, err := s.EnsureUser(ctx, "bob", "Bob", 200)
	require.NoError(t, err)
	_, err = s.Register(ctx, tour.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, s.Unregister(ctx, tour.ID, "bob"))
	assert.ErrorIs(t, s.Unregister(ctx, tour.ID, "bob"), ErrNotRegistered)

	bob, err := s.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 200, bob.Balance)

	entries, err := s.Entries(ctx, tour.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, EntryWithdrawn, entries[0].Status)

	// registering again reuses the withdrawn entry
	again, err := s.Register(ctx, tour.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, again.ID)
	assert.Equal(t, EntryRegistered, again.Status)

	got, err := s.GetTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentPlayers)
	assert.EqualValues(t, 100, got.PrizePool)
}

func TestRegistrationLimits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)
	tour := createTournament(t, s, func(t *Tournament) { t.MaxPlayers = 2; t.BuyIn = 0; t.EntryFee = 0 })

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.EnsureUser(ctx, id, id, 0)
		require.NoError(t, err)
	}
	_, err := s.Register(ctx, tour.ID, "a")
	require.NoError(t, err)
	_, err = s.Register(ctx, tour.ID, "b")
	require.NoError(t, err)
	_, err = s.Register(ctx, tour.ID, "c")
	assert.ErrorIs(t, err, ErrTournamentFull)

	require.NoError(t, s.MarkRunning(ctx, tour.ID))
	assert.ErrorIs(t, s.MarkRunning(ctx, tour.ID), ErrRegistrationClosed)
	assert.ErrorIs(t, s.Unregister(ctx, tour.ID, "a"), ErrRegistrationClosed)

	entries, err := s.Entries(ctx, tour.ID)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, EntryActive, e.Status)
	}
}

func TestBotsEliminationAndCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)
	tour := createTournament(t, s, func(t *Tournament) { t.MaxPlayers = 4 })

	_, err := s.EnsureUser(ctx, "hero", "Hero", 110)
	require.NoError(t, err)
	hero, err := s.Register(ctx, tour.ID, "hero")
	require.NoError(t, err)

	bots, err := s.AddBots(ctx, tour.ID, []BotEntry{
		{Name: "Ace", Difficulty: "easy"},
		{Name: "King", Difficulty: "hard"},
		{Name: "Queen", Difficulty: "medium"},
		{Name: "Jack", Difficulty: "medium"},
	})
	require.NoError(t, err)
	require.Len(t, bots, 3, "bots only fill free seats")
	require.NoError(t, s.MarkRunning(ctx, tour.ID))

	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Eliminate(ctx, tour.ID, bots[0].ID, at))
	assert.ErrorIs(t, s.Eliminate(ctx, tour.ID, bots[0].ID, at), ErrNotFound)
	require.NoError(t, s.UpdateStacks(ctx, tour.ID, map[int64]int64{hero.ID: 4000, bots[1].ID: 500}))

	require.NoError(t, s.Complete(ctx, tour.ID, []Placement{
		{EntryID: hero.ID, UserID: "hero", Position: 1, Prize: 50},
		{EntryID: bots[1].ID, Position: 2, Prize: 30},
	}))

	got, err := s.GetTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotNil(t, got.EndedAt)

	entries, err := s.Entries(ctx, tour.ID)
	require.NoError(t, err)
	byID := map[int64]*Entry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.Equal(t, EntryFinished, byID[hero.ID].Status)
	assert.Equal(t, 1, byID[hero.ID].FinishPosition)
	assert.EqualValues(t, 50, byID[hero.ID].PrizeWon)
	assert.EqualValues(t, 0, byID[bots[1].ID].PrizeWon, "bots are never paid")
	assert.Equal(t, EntryEliminated, byID[bots[0].ID].Status)
	require.NotNil(t, byID[bots[0].ID].EliminatedAt)
	assert.True(t, at.Equal(*byID[bots[0].ID].EliminatedAt))

	u, err := s.GetUser(ctx, "hero")
	require.NoError(t, err)
	assert.EqualValues(t, 50, u.Balance)
}

func TestSettlementIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	st := &Settlement{
		HandID:     "hand-1",
		TableID:    "main",
		HandNumber: 1,
		Rake:       1,
		Deltas: []SeatDelta{
			{Seat: 0, UserID: "a", Before: 1000, After: 1019},
			{Seat: 1, UserID: "b", Before: 1000, After: 980},
		},
	}
	applied, err := s.RecordSettlement(ctx, st)
	require.NoError(t, err)
	assert.True(t, applied)

	st.Deltas[0].After = 5000
	applied, err = s.RecordSettlement(ctx, st)
	require.NoError(t, err)
	assert.False(t, applied, "replaying a hand must not apply it twice")

	stacks, err := s.TableStacks(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 1019, stacks[0].Chips)
	assert.Equal(t, 980, stacks[1].Chips)

	got, err := s.GetSettlement(ctx, "hand-1")
	require.NoError(t, err)
	assert.Equal(t, 1019, got.Deltas[0].After)

	require.NoError(t, s.ClearSeat(ctx, "main", 1))
	stacks, err = s.TableStacks(ctx, "main")
	require.NoError(t, err)
	assert.Len(t, stacks, 1)
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		levels  []BlindLevel
		payouts []Payout
	}{
		{"empty schedule", nil, DefaultPayouts},
		{"zero duration", []BlindLevel{{Level: 1, SmallBlind: 10, BigBlind: 20}}, DefaultPayouts},
		{"levels out of order", []BlindLevel{{Level: 2, SmallBlind: 10, BigBlind: 20, Duration: 1}}, DefaultPayouts},
		{"decreasing blinds", []BlindLevel{
			{Level: 1, SmallBlind: 20, BigBlind: 40, Duration: 1},
			{Level: 2, SmallBlind: 10, BigBlind: 20, Duration: 1},
		}, DefaultPayouts},
		{"payouts over 100", testSchedule(), []Payout{{1, 70}, {2, 40}}},
		{"negative payout", testSchedule(), []Payout{{1, -5}}},
		{"payout places skip", testSchedule(), []Payout{{1, 60}, {3, 40}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := openTestStore(t)
			_, err := s.CreateTournament(context.Background(), &Tournament{
				Name: tt.name, Type: SitAndGo, StartingChips: 1000, MinPlayers: 2, MaxPlayers: 9,
				BlindSchedule: tt.levels, Payouts: tt.payouts,
			})
			assert.Error(t, err)
		})
	}
}

func TestStoredScheduleIsRevalidated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)
	tour := createTournament(t, s, nil)

	_, err := s.db.Exec(`UPDATE tournaments SET blind_schedule = '[{"level": "one"}]' WHERE id = ?`, tour.ID)
	require.NoError(t, err)
	_, err = s.GetTournament(ctx, tour.ID)
	assert.Error(t, err)
}

func testCheckpointer(t *testing.T, cp Checkpointer) {
	ctx := context.Background()
	_, err := cp.Load(ctx, "main")
	assert.ErrorIs(t, err, ErrNotFound)

	want := &Checkpoint{TableID: "main", HandID: "h1", HandNumber: 3, Stacks: map[int]int{0: 100, 4: 250}}
	require.NoError(t, cp.Save(ctx, want))
	got, err := cp.Load(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, want.HandID, got.HandID)
	assert.Equal(t, want.Stacks, got.Stacks)

	require.NoError(t, cp.Remove(ctx, "main"))
	_, err = cp.Load(ctx, "main")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCheckpoints(t *testing.T) {
	t.Parallel()
	testCheckpointer(t, NewMemoryCheckpoints())
}

func TestRedisCheckpoints(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	r := NewRedisCheckpoints(addr, "", 0)
	defer r.Close()
	r.prefix = "housepoker:test:" + t.Name() + ":"
	require.NoError(t, r.Ping(context.Background()))
	testCheckpointer(t, r)
}
