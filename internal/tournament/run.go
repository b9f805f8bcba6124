package tournament

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lox/housepoker/internal/bot"
	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/internal/randutil"
	"github.com/lox/housepoker/internal/store"
	"github.com/lox/housepoker/internal/table"
)

// seat maps a table user id back to its entry.
type seat struct {
	entry   *store.Entry
	name    string
	tableID string
}

func (s *seat) userID() string {
	if s.entry.IsBot {
		return fmt.Sprintf("bot:%d", s.entry.ID)
	}
	return s.entry.UserID
}

// run is one tournament in progress. Hand results arrive from table
// goroutines and are handled in order on the run's own goroutine.
type run struct {
	m      *Manager
	t      *store.Tournament
	logger zerolog.Logger

	mu      sync.Mutex
	level   int
	tables  map[string]*table.Session
	players map[string]*seat
	busted  []int64
	done    bool

	qmu      sync.Mutex
	queue    []*game.HandResult
	wake     chan struct{}
	quit     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

func newRun(m *Manager, t *store.Tournament) *run {
	return &run{
		m:        m,
		t:        t,
		logger:   m.logger.With().Int64("tournament_id", t.ID).Logger(),
		tables:   make(map[string]*table.Session),
		players:  make(map[string]*seat),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (r *run) key(name string) string {
	return fmt.Sprintf("tournament/%d/%s", r.t.ID, name)
}

// start moves a registering tournament onto tables. It is a no-op for a
// tournament that already started or has too few players.
func (m *Manager) start(ctx context.Context, id int64) error {
	m.mu.Lock()
	_, running := m.running[id]
	m.mu.Unlock()
	if running {
		return nil
	}

	t, err := m.store.GetTournament(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != store.StatusRegistering {
		return nil
	}
	if t.BotsEnabled && t.CurrentPlayers < t.MaxPlayers {
		added, err := m.store.AddBots(ctx, id, m.botsFor(t.MaxPlayers-t.CurrentPlayers))
		if err != nil {
			return err
		}
		m.logger.Info().Int64("tournament_id", id).Int("bots", len(added)).Msg("Filled tournament with bots")
	}

	entries, err := m.store.Entries(ctx, id)
	if err != nil {
		return err
	}
	var entrants []*store.Entry
	for _, e := range entries {
		if e.Status == store.EntryRegistered {
			entrants = append(entrants, e)
		}
	}
	if len(entrants) < max(t.MinPlayers, 2) {
		m.logger.Info().Int64("tournament_id", id).Int("players", len(entrants)).Msg("Not enough players to start")
		return nil
	}

	if err := m.store.MarkRunning(ctx, id); err != nil {
		if errors.Is(err, store.ErrRegistrationClosed) {
			return nil
		}
		return err
	}
	if t, err = m.store.GetTournament(ctx, id); err != nil {
		return err
	}

	r := newRun(m, t)
	m.mu.Lock()
	m.running[id] = r
	m.mu.Unlock()

	if err := r.seatPlayers(ctx, entrants); err != nil {
		return err
	}
	go r.loop(ctx)

	r.mu.Lock()
	r.armBlinds()
	sessions := r.sessionsLocked()
	r.mu.Unlock()

	level := t.BlindSchedule[0]
	m.publisher.Publish(Event{
		Type:         EventStarted,
		TournamentID: id,
		Level:        level.Level,
		SmallBlind:   level.SmallBlind,
		BigBlind:     level.BigBlind,
		Tables:       r.tableIDs(),
		PlayersLeft:  len(entrants),
		PrizePool:    t.PrizePool,
		At:           m.sched.Now(),
	})
	r.logger.Info().Int("players", len(entrants)).Int("tables", len(sessions)).Int64("prize_pool", t.PrizePool).Msg("Tournament started")

	for _, s := range sessions {
		if err := s.Deal(); err != nil {
			r.logger.Error().Err(err).Str("table_id", s.ID()).Msg("Failed to deal first hand")
		}
	}
	return nil
}

func (m *Manager) botsFor(n int) []store.BotEntry {
	roster := m.settings.Bots
	if len(roster) == 0 {
		roster = []store.BotEntry{{Name: "Bot", Difficulty: string(bot.Medium)}}
	}
	out := make([]store.BotEntry, 0, n)
	for i := 0; i < n; i++ {
		b := roster[i%len(roster)]
		if round := i / len(roster); round > 0 || len(roster) == 1 {
			b.Name = fmt.Sprintf("%s %d", b.Name, round+1)
		}
		out = append(out, b)
	}
	return out
}

// seatPlayers splits entrants over as few full tables as possible.
func (r *run) seatPlayers(ctx context.Context, entrants []*store.Entry) error {
	variant, err := game.ParseVariant(r.t.Variant)
	if err != nil {
		return err
	}
	rng := randutil.For(r.m.settings.Seed, fmt.Sprintf("tournament/%d", r.t.ID))
	rng.Shuffle(len(entrants), func(i, j int) { entrants[i], entrants[j] = entrants[j], entrants[i] })

	n := (len(entrants) + game.DefaultMaxSeats - 1) / game.DefaultMaxSeats
	level := r.t.BlindSchedule[0]
	sessions := make([]*table.Session, n)
	for i := range sessions {
		s := table.New(table.Config{
			ID:           fmt.Sprintf("t%d-%d", r.t.ID, i+1),
			Variant:      variant,
			MaxSeats:     game.DefaultMaxSeats,
			SmallBlind:   level.SmallBlind,
			BigBlind:     level.BigBlind,
			TournamentID: r.t.ID,
			Timings:      r.m.settings.Timings,
			AutoDeal:     true,
			Seed:         r.m.settings.Seed + int64(i),
		}, r.m.sched, r.m.logger, r.tableOptions()...)
		if err := r.m.registry.Register(s); err != nil {
			return err
		}
		s.Start(ctx)
		sessions[i] = s
	}

	r.mu.Lock()
	for _, s := range sessions {
		r.tables[s.ID()] = s
	}
	r.mu.Unlock()

	for i, e := range entrants {
		p := &seat{entry: e, name: e.BotName}
		if !e.IsBot {
			p.name = e.UserID
			if u, err := r.m.store.GetUser(ctx, e.UserID); err == nil {
				p.name = u.Name
			}
		}
		if err := r.seat(sessions[i%n], p, int(e.ChipStack)); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) tableOptions() []table.Option {
	opts := []table.Option{table.WithSettler(r.m.store), table.OnHandComplete(r.enqueue)}
	return append(opts, r.m.settings.TableOptions...)
}

func (r *run) seat(s *table.Session, p *seat, chips int) error {
	var err error
	if p.entry.IsBot {
		_, err = s.AddBot(p.userID(), p.name, bot.Difficulty(p.entry.BotDifficulty), chips)
	} else {
		_, err = s.Join(p.userID(), p.name, -1, chips)
	}
	if err != nil {
		return errors.Wrapf(err, "seat entry %d at %s", p.entry.ID, s.ID())
	}
	r.mu.Lock()
	p.tableID = s.ID()
	r.players[p.userID()] = p
	r.mu.Unlock()
	return nil
}

func (r *run) sessionsLocked() []*table.Session {
	out := make([]*table.Session, 0, len(r.tables))
	for _, s := range r.tables {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *run) tableIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tables))
	for id := range r.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *run) currentLevel() store.BlindLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t.BlindSchedule[r.level]
}

// armBlinds schedules the next level. The last level lasts until the end.
func (r *run) armBlinds() {
	if r.level+1 >= len(r.t.BlindSchedule) {
		return
	}
	d := r.t.BlindSchedule[r.level].Length()
	if d <= 0 {
		return
	}
	r.m.sched.Schedule(r.key("blinds"), d, r.raiseBlinds)
}

func (r *run) raiseBlinds() {
	r.mu.Lock()
	if r.done || r.level+1 >= len(r.t.BlindSchedule) {
		r.mu.Unlock()
		return
	}
	r.level++
	level := r.t.BlindSchedule[r.level]
	sessions := r.sessionsLocked()
	r.armBlinds()
	r.mu.Unlock()

	for _, s := range sessions {
		// applies from the next hand at each table
		if err := s.SetBlinds(level.SmallBlind, level.BigBlind); err != nil && !errors.Is(err, table.ErrClosed) {
			r.logger.Error().Err(err).Str("table_id", s.ID()).Msg("Failed to raise blinds")
		}
	}
	r.m.publisher.Publish(Event{
		Type:         EventBlindLevelRaised,
		TournamentID: r.t.ID,
		Level:        level.Level,
		SmallBlind:   level.SmallBlind,
		BigBlind:     level.BigBlind,
		At:           r.m.sched.Now(),
	})
	r.logger.Info().Int("level", level.Level).Int("small_blind", level.SmallBlind).Int("big_blind", level.BigBlind).Msg("Blinds raised")
}

// enqueue is the tables' hand-complete hook. It runs on a table goroutine
// and only queues the result.
func (r *run) enqueue(res *game.HandResult) {
	r.qmu.Lock()
	r.queue = append(r.queue, res)
	r.qmu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *run) loop(ctx context.Context) {
	for {
		select {
		case <-r.wake:
		case <-r.quit:
			return
		}
		for {
			r.qmu.Lock()
			if len(r.queue) == 0 {
				r.qmu.Unlock()
				break
			}
			res := r.queue[0]
			r.queue = r.queue[1:]
			r.qmu.Unlock()

			if r.handle(ctx, res) {
				return
			}
		}
	}
}

func (r *run) stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// handle books one hand: stacks, eliminations, and the end of the
// tournament once a single player is left. It reports whether the
// tournament finished.
func (r *run) handle(ctx context.Context, res *game.HandResult) bool {
	if res.Voided {
		return false
	}
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return true
	}
	stacks := make(map[int64]int64, len(res.Deltas))
	for _, d := range res.Deltas {
		if p, ok := r.players[d.UserID]; ok {
			p.entry.ChipStack = int64(d.After)
			stacks[p.entry.ID] = int64(d.After)
		}
	}
	busts := res.Eliminated()
	r.mu.Unlock()

	if err := r.m.store.UpdateStacks(ctx, r.t.ID, stacks); err != nil {
		r.logger.Error().Err(err).Str("hand_id", res.HandID).Msg("Failed to update stacks")
	}

	// the shorter stack went out first and finishes lower
	sort.SliceStable(busts, func(i, j int) bool { return busts[i].Before < busts[j].Before })
	now := r.m.sched.Now()
	for _, d := range busts {
		r.mu.Lock()
		p, ok := r.players[d.UserID]
		if !ok || p.entry.Status == store.EntryEliminated {
			r.mu.Unlock()
			continue
		}
		p.entry.Status = store.EntryEliminated
		p.entry.EliminatedAt = &now
		r.busted = append(r.busted, p.entry.ID)
		left := r.liveLocked()
		r.mu.Unlock()

		if err := r.m.store.Eliminate(ctx, r.t.ID, p.entry.ID, now); err != nil {
			r.logger.Error().Err(err).Int64("entry_id", p.entry.ID).Msg("Failed to eliminate entry")
		}
		r.m.publisher.Publish(Event{
			Type:         EventPlayerEliminated,
			TournamentID: r.t.ID,
			EntryID:      p.entry.ID,
			Position:     left + 1,
			PlayersLeft:  left,
			At:           now,
		})
		r.logger.Info().Str("player", p.name).Int("position", left+1).Msg("Player eliminated")
	}

	r.mu.Lock()
	left := r.liveLocked()
	level := r.t.BlindSchedule[r.level]
	r.mu.Unlock()
	r.m.publisher.Publish(Event{
		Type:         EventState,
		TournamentID: r.t.ID,
		Level:        level.Level,
		SmallBlind:   level.SmallBlind,
		BigBlind:     level.BigBlind,
		Tables:       r.tableIDs(),
		PlayersLeft:  left,
		PrizePool:    r.t.PrizePool,
		At:           now,
	})

	if left <= 1 {
		r.finish(ctx)
		return true
	}
	r.breakTable(res.TableID)
	return false
}

func (r *run) liveLocked() int {
	n := 0
	for _, p := range r.players {
		if p.entry.Status != store.EntryEliminated {
			n++
		}
	}
	return n
}

// breakTable moves the last player of a table to the emptiest other table so
// play can continue.
func (r *run) breakTable(tableID string) {
	r.mu.Lock()
	if len(r.tables) < 2 {
		r.mu.Unlock()
		return
	}
	counts := make(map[string]int, len(r.tables))
	for id := range r.tables {
		counts[id] = 0
	}
	var lone *seat
	for _, p := range r.players {
		if p.entry.Status == store.EntryEliminated {
			continue
		}
		counts[p.tableID]++
		if p.tableID == tableID {
			lone = p
		}
	}
	src := r.tables[tableID]
	if counts[tableID] != 1 || src == nil {
		r.mu.Unlock()
		return
	}
	var dst *table.Session
	for _, s := range r.sessionsLocked() {
		if s.ID() == tableID || counts[s.ID()] >= game.DefaultMaxSeats {
			continue
		}
		if dst == nil || counts[s.ID()] < counts[dst.ID()] {
			dst = s
		}
	}
	if dst == nil {
		r.mu.Unlock()
		return
	}
	delete(r.tables, tableID)
	r.mu.Unlock()

	stacks, err := src.Stacks()
	if err != nil {
		r.logger.Error().Err(err).Str("table_id", tableID).Msg("Failed to read stacks of broken table")
		return
	}
	chips := stacks[lone.userID()]
	if err := src.Leave(lone.userID()); err != nil {
		r.logger.Warn().Err(err).Str("table_id", tableID).Msg("Failed to stand player from broken table")
	}
	if err := r.seat(dst, lone, chips); err != nil {
		r.logger.Error().Err(err).Msg("Failed to move player")
	}
	if err := r.m.registry.Remove(tableID); err != nil {
		r.logger.Warn().Err(err).Str("table_id", tableID).Msg("Failed to close broken table")
	}
	r.logger.Info().Str("player", lone.name).Str("from", tableID).Str("to", dst.ID()).Msg("Table broken")
}

// finish pays out and closes the tournament.
func (r *run) finish(ctx context.Context) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	sessions := r.sessionsLocked()
	busted := append([]int64(nil), r.busted...)
	r.mu.Unlock()

	r.m.sched.CancelPrefix(r.key(""))

	var placements []store.Placement
	entries, err := r.m.store.Entries(ctx, r.t.ID)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to load entries for payout")
	} else {
		placements = Payouts(r.t.PrizePool, r.t.Payouts, FinishOrder(entries, busted))
		if err := r.m.store.Complete(ctx, r.t.ID, placements); err != nil {
			r.logger.Error().Err(err).Msg("Failed to complete tournament")
		}
	}

	for _, s := range sessions {
		if err := r.m.registry.Remove(s.ID()); err != nil {
			r.logger.Warn().Err(err).Str("table_id", s.ID()).Msg("Failed to close table")
		}
	}

	r.m.publisher.Publish(Event{
		Type:         EventEnded,
		TournamentID: r.t.ID,
		PrizePool:    r.t.PrizePool,
		Placements:   placements,
		At:           r.m.sched.Now(),
	})
	if len(placements) > 0 {
		r.logger.Info().Int64("winner_entry", placements[0].EntryID).Int64("prize", placements[0].Prize).Msg("Tournament complete")
	}

	r.m.mu.Lock()
	delete(r.m.running, r.t.ID)
	r.m.mu.Unlock()
	close(r.finished)
}
