package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TournamentStatus is the lifecycle state of a tournament.
type TournamentStatus string

const (
	StatusRegistering TournamentStatus = "registering"
	StatusRunning     TournamentStatus = "running"
	StatusCompleted   TournamentStatus = "completed"
)

// TournamentType decides how a tournament starts.
type TournamentType string

const (
	SitAndGo  TournamentType = "sit_and_go"
	Scheduled TournamentType = "scheduled"
)

// EntryStatus is the state of one tournament entry.
type EntryStatus string

const (
	EntryRegistered EntryStatus = "registered"
	EntryActive     EntryStatus = "active"
	EntryEliminated EntryStatus = "eliminated"
	EntryFinished   EntryStatus = "finished"
	EntryWithdrawn  EntryStatus = "withdrawn"
)

// BlindLevel is one step of a blind schedule. Duration is in minutes.
type BlindLevel struct {
	Level      int     `json:"level"`
	SmallBlind int     `json:"smallBlind"`
	BigBlind   int     `json:"bigBlind"`
	Duration   float64 `json:"duration"`
}

// Length converts the level duration to a time.Duration.
func (l BlindLevel) Length() time.Duration {
	return time.Duration(l.Duration * float64(time.Minute))
}

// Payout is the share of the prize pool paid to one finishing place.
type Payout struct {
	Place      int     `json:"place"`
	Percentage float64 `json:"percentage"`
}

// DefaultPayouts is used when a tournament has no payout curve.
var DefaultPayouts = []Payout{{1, 50}, {2, 30}, {3, 20}}

type Tournament struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	Type           TournamentType   `json:"type"`
	Variant        string           `json:"variant"`
	Status         TournamentStatus `json:"status"`
	BuyIn          int64            `json:"buyIn"`
	EntryFee       int64            `json:"entryFee"`
	StartingChips  int64            `json:"startingChips"`
	MinPlayers     int              `json:"minPlayers"`
	MaxPlayers     int              `json:"maxPlayers"`
	CurrentPlayers int              `json:"currentPlayers"`
	PrizePool      int64            `json:"prizePool"`
	BlindSchedule  []BlindLevel     `json:"blindSchedule"`
	Payouts        []Payout         `json:"payouts"`
	BotsEnabled    bool             `json:"botsEnabled"`
	BotCount       int              `json:"botCount"`
	ScheduledStart *time.Time       `json:"scheduledStart,omitempty"`
	StartedAt      *time.Time       `json:"startedAt,omitempty"`
	EndedAt        *time.Time       `json:"endedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

type Entry struct {
	ID             int64       `json:"id"`
	TournamentID   int64       `json:"tournamentId"`
	UserID         string      `json:"userId,omitempty"`
	IsBot          bool        `json:"isBot"`
	BotName        string      `json:"botName,omitempty"`
	BotDifficulty  string      `json:"botDifficulty,omitempty"`
	ChipStack      int64       `json:"chipStack"`
	Status         EntryStatus `json:"status"`
	EliminatedAt   *time.Time  `json:"eliminatedAt,omitempty"`
	FinishPosition int         `json:"finishPosition,omitempty"`
	PrizeWon       int64       `json:"prizeWon"`
}

// Live reports whether the entry still holds a seat in a running tournament.
func (e *Entry) Live() bool {
	return e.Status == EntryRegistered || e.Status == EntryActive
}

// BotEntry describes a house bot added to a tournament.
type BotEntry struct {
	Name       string
	Difficulty string
}

// Placement is the final result for one entry.
type Placement struct {
	EntryID  int64
	UserID   string
	Position int
	Prize    int64
}

// CreateTournament validates and stores a new tournament in the registering
// state. A missing payout curve gets DefaultPayouts.
func (s *Store) CreateTournament(ctx context.Context, t *Tournament) (int64, error) {
	if len(t.Payouts) == 0 {
		t.Payouts = DefaultPayouts
	}
	if t.Variant == "" {
		t.Variant = "holdem"
	}
	if err := ValidateBlindSchedule(t.BlindSchedule); err != nil {
		return 0, err
	}
	if err := ValidatePayouts(t.Payouts); err != nil {
		return 0, err
	}
	if t.MinPlayers < 2 || t.MaxPlayers < t.MinPlayers {
		return 0, fmt.Errorf("tournament %q: invalid player limits %d..%d", t.Name, t.MinPlayers, t.MaxPlayers)
	}
	if t.StartingChips <= 0 {
		return 0, fmt.Errorf("tournament %q: starting chips must be positive", t.Name)
	}

	blinds, _ := json.Marshal(t.BlindSchedule)
	payouts, _ := json.Marshal(t.Payouts)
	t.Status = StatusRegistering
	t.CreatedAt = s.now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tournaments (name, type, variant, status, buy_in, entry_fee, starting_chips,
			min_players, max_players, blind_schedule, payout_curve, bots_enabled, bot_count,
			scheduled_start, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Type, t.Variant, t.Status, t.BuyIn, t.EntryFee, t.StartingChips,
		t.MinPlayers, t.MaxPlayers, string(blinds), string(payouts), t.BotsEnabled, t.BotCount,
		nullTime(t.ScheduledStart), t.CreatedAt)
	if err != nil {
		return 0, errors.Wrapf(err, "insert tournament %q", t.Name)
	}
	t.ID, err = res.LastInsertId()
	return t.ID, errors.Wrap(err, "tournament id")
}

const tournamentColumns = `id, name, type, variant, status, buy_in, entry_fee, starting_chips,
	min_players, max_players, current_players, prize_pool, blind_schedule, payout_curve,
	bots_enabled, bot_count, scheduled_start, started_at, ended_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTournament(row rowScanner) (*Tournament, error) {
	var (
		t                         Tournament
		blinds, payouts           string
		scheduled, started, ended sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Variant, &t.Status, &t.BuyIn, &t.EntryFee,
		&t.StartingChips, &t.MinPlayers, &t.MaxPlayers, &t.CurrentPlayers, &t.PrizePool,
		&blinds, &payouts, &t.BotsEnabled, &t.BotCount, &scheduled, &started, &ended, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	// stored configuration is re-validated so a hand-edited row fails here, not mid-tournament
	if err := validateJSON("blind_schedule", []byte(blinds)); err != nil {
		return nil, errors.Wrapf(err, "tournament %d", t.ID)
	}
	if err := validateJSON("payout_curve", []byte(payouts)); err != nil {
		return nil, errors.Wrapf(err, "tournament %d", t.ID)
	}
	if err := json.Unmarshal([]byte(blinds), &t.BlindSchedule); err != nil {
		return nil, errors.Wrapf(err, "tournament %d blind schedule", t.ID)
	}
	if err := json.Unmarshal([]byte(payouts), &t.Payouts); err != nil {
		return nil, errors.Wrapf(err, "tournament %d payouts", t.ID)
	}
	t.ScheduledStart = scanTime(scheduled)
	t.StartedAt = scanTime(started)
	t.EndedAt = scanTime(ended)
	return &t, nil
}

// GetTournament loads one tournament.
func (s *Store) GetTournament(ctx context.Context, id int64) (*Tournament, error) {
	return getTournament(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getTournament(ctx context.Context, q queryer, id int64) (*Tournament, error) {
	t, err := scanTournament(q.QueryRowContext(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "tournament %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get tournament %d", id)
	}
	return t, nil
}

// ListTournaments returns tournaments in any of statuses (all when empty),
// oldest first.
func (s *Store) ListTournaments(ctx context.Context, statuses ...TournamentStatus) ([]*Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list tournaments")
	}
	defer rows.Close()

	var out []*Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tournament")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "list tournaments")
}

const entryColumns = `id, tournament_id, user_id, is_bot, bot_name, bot_difficulty, chip_stack,
	status, eliminated_at, finish_position, prize_won`

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                           Entry
		userID, botName, difficulty sql.NullString
		eliminated                  sql.NullTime
		position                    sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.TournamentID, &userID, &e.IsBot, &botName, &difficulty,
		&e.ChipStack, &e.Status, &eliminated, &position, &e.PrizeWon)
	if err != nil {
		return nil, err
	}
	e.UserID = userID.String
	e.BotName = botName.String
	e.BotDifficulty = difficulty.String
	e.EliminatedAt = scanTime(eliminated)
	e.FinishPosition = int(position.Int64)
	return &e, nil
}

// Entries lists a tournament's entries in registration order, including
// withdrawn ones.
func (s *Store) Entries(ctx context.Context, tournamentID int64) ([]*Entry, error) {
	return entries(ctx, s.db, tournamentID)
}

func entries(ctx context.Context, q queryer, tournamentID int64) ([]*Entry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM tournament_entries WHERE tournament_id = ? ORDER BY id`, tournamentID)
	if err != nil {
		return nil, errors.Wrapf(err, "entries of tournament %d", tournamentID)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "entries")
}

// Register buys userID into a tournament: the balance debit, the entry and
// the tournament counters change in one transaction or not at all.
func (s *Store) Register(ctx context.Context, tournamentID int64, userID string) (*Entry, error) {
	var entryID int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := getTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != StatusRegistering {
			return ErrRegistrationClosed
		}
		if t.CurrentPlayers >= t.MaxPlayers {
			return ErrTournamentFull
		}

		var existing int64
		var status EntryStatus
		err = tx.QueryRowContext(ctx,
			`SELECT id, status FROM tournament_entries WHERE tournament_id = ? AND user_id = ?`,
			tournamentID, userID).Scan(&existing, &status)
		switch {
		case err == nil && status != EntryWithdrawn:
			return ErrAlreadyRegistered
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return errors.Wrap(err, "find entry")
		}

		if cost := t.BuyIn + t.EntryFee; cost > 0 {
			reason := fmt.Sprintf("tournament %d buy-in", tournamentID)
			if err := adjustBalance(ctx, tx, userID, -cost, reason); err != nil {
				return err
			}
		}

		if existing != 0 {
			entryID = existing
			_, err = tx.ExecContext(ctx,
				`UPDATE tournament_entries SET status = ?, chip_stack = ? WHERE id = ?`,
				EntryRegistered, t.StartingChips, existing)
		} else {
			var res sql.Result
			res, err = tx.ExecContext(ctx,
				`INSERT INTO tournament_entries (tournament_id, user_id, chip_stack, status) VALUES (?, ?, ?, ?)`,
				tournamentID, userID, t.StartingChips, EntryRegistered)
			if err == nil {
				entryID, err = res.LastInsertId()
			}
		}
		if err != nil {
			return errors.Wrap(err, "write entry")
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE tournaments SET current_players = current_players + 1, prize_pool = prize_pool + ? WHERE id = ?`,
			t.BuyIn, tournamentID)
		return errors.Wrap(err, "update tournament counters")
	})
	if err != nil {
		return nil, err
	}
	return getEntry(ctx, s.db, entryID)
}

func getEntry(ctx context.Context, q queryer, id int64) (*Entry, error) {
	e, err := scanEntry(q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM tournament_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "entry %d", id)
	}
	return e, errors.Wrapf(err, "get entry %d", id)
}

// Unregister refunds buy-in and entry fee and marks the entry withdrawn.
// Entries are never deleted.
func (s *Store) Unregister(ctx context.Context, tournamentID int64, userID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := getTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != StatusRegistering {
			return ErrRegistrationClosed
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE tournament_entries SET status = ? WHERE tournament_id = ? AND user_id = ? AND status = ?`,
			EntryWithdrawn, tournamentID, userID, EntryRegistered)
		if err != nil {
			return errors.Wrap(err, "withdraw entry")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotRegistered
		}

		if cost := t.BuyIn + t.EntryFee; cost > 0 {
			if err := adjustBalance(ctx, tx, userID, cost, fmt.Sprintf("tournament %d refund", tournamentID)); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE tournaments SET current_players = current_players - 1, prize_pool = prize_pool - ? WHERE id = ?`,
			t.BuyIn, tournamentID)
		return errors.Wrap(err, "update tournament counters")
	})
}

// AddBots adds house bots up to the tournament's capacity and returns the
// new entries. Bots pay nothing and add nothing to the prize pool.
func (s *Store) AddBots(ctx context.Context, tournamentID int64, bots []BotEntry) ([]*Entry, error) {
	var ids []int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := getTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		free := t.MaxPlayers - t.CurrentPlayers
		if len(bots) > free {
			bots = bots[:max(free, 0)]
		}
		for _, b := range bots {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO tournament_entries (tournament_id, is_bot, bot_name, bot_difficulty, chip_stack, status)
				VALUES (?, 1, ?, ?, ?, ?)`,
				tournamentID, b.Name, b.Difficulty, t.StartingChips, EntryRegistered)
			if err != nil {
				return errors.Wrapf(err, "add bot %s", b.Name)
			}
			id, _ := res.LastInsertId()
			ids = append(ids, id)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE tournaments SET current_players = current_players + ? WHERE id = ?`, len(bots), tournamentID)
		return errors.Wrap(err, "update tournament counters")
	})
	if err != nil {
		return nil, err
	}

	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		e, err := getEntry(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// MarkRunning moves a registering tournament to running and activates its
// entries. It returns ErrRegistrationClosed if the tournament already left
// registration, so concurrent starts run once.
func (s *Store) MarkRunning(ctx context.Context, tournamentID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tournaments SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			StatusRunning, s.now().UTC(), tournamentID, StatusRegistering)
		if err != nil {
			return errors.Wrap(err, "mark running")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrRegistrationClosed
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE tournament_entries SET status = ? WHERE tournament_id = ? AND status = ?`,
			EntryActive, tournamentID, EntryRegistered)
		return errors.Wrap(err, "activate entries")
	})
}

// UpdateStacks records chip stacks by entry id.
func (s *Store) UpdateStacks(ctx context.Context, tournamentID int64, stacks map[int64]int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for id, chips := range stacks {
			if _, err := tx.ExecContext(ctx,
				`UPDATE tournament_entries SET chip_stack = ? WHERE id = ? AND tournament_id = ?`,
				chips, id, tournamentID); err != nil {
				return errors.Wrapf(err, "update stack of entry %d", id)
			}
		}
		return nil
	})
}

// Eliminate marks a live entry eliminated at the given time.
func (s *Store) Eliminate(ctx context.Context, tournamentID, entryID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tournament_entries SET status = ?, eliminated_at = ?, chip_stack = 0
		WHERE id = ? AND tournament_id = ? AND status IN (?, ?)`,
		EntryEliminated, at.UTC(), entryID, tournamentID, EntryRegistered, EntryActive)
	if err != nil {
		return errors.Wrapf(err, "eliminate entry %d", entryID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "live entry %d", entryID)
	}
	return nil
}

// Complete finishes a running tournament: finish positions, prizes and
// balance credits are written in one transaction. Placements without a user
// (bots) get a position but no credit.
func (s *Store) Complete(ctx context.Context, tournamentID int64, placements []Placement) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tournaments SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
			StatusCompleted, s.now().UTC(), tournamentID, StatusRunning)
		if err != nil {
			return errors.Wrap(err, "mark completed")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrapf(ErrNotFound, "running tournament %d", tournamentID)
		}

		for _, p := range placements {
			prize := p.Prize
			if p.UserID == "" {
				prize = 0
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE tournament_entries
				SET finish_position = ?, prize_won = ?,
					status = CASE WHEN status = ? THEN ? ELSE status END
				WHERE id = ?`,
				p.Position, prize, EntryActive, EntryFinished, p.EntryID); err != nil {
				return errors.Wrapf(err, "place entry %d", p.EntryID)
			}
			if prize > 0 {
				reason := fmt.Sprintf("tournament %d place %d", tournamentID, p.Position)
				if err := adjustBalance(ctx, tx, p.UserID, prize, reason); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
