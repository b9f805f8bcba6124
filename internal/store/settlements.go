package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// SeatDelta is one seat's stack before and after a hand.
type SeatDelta struct {
	Seat   int    `json:"seat"`
	UserID string `json:"userId"`
	IsBot  bool   `json:"isBot,omitempty"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// Settlement is the durable record of a completed hand.
type Settlement struct {
	HandID       string      `json:"handId"`
	TableID      string      `json:"tableId"`
	TournamentID int64       `json:"tournamentId,omitempty"`
	HandNumber   int         `json:"handNumber"`
	Rake         int         `json:"rake"`
	Voided       bool        `json:"voided,omitempty"`
	Deltas       []SeatDelta `json:"deltas"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// SeatStack is the last settled stack of a seat.
type SeatStack struct {
	Seat   int    `json:"seat"`
	UserID string `json:"userId"`
	Chips  int    `json:"chips"`
	HandID string `json:"handId"`
}

// RecordSettlement writes a hand settlement and the resulting table stacks
// in one transaction. Writing the same hand id twice is a no-op; applied
// reports whether this call wrote it.
func (s *Store) RecordSettlement(ctx context.Context, st *Settlement) (applied bool, err error) {
	deltas, err := json.Marshal(st.Deltas)
	if err != nil {
		return false, errors.Wrap(err, "encode deltas")
	}
	var tournament any
	if st.TournamentID != 0 {
		tournament = st.TournamentID
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO hand_settlements (hand_id, table_id, tournament_id, hand_number, rake, voided, deltas, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(hand_id) DO NOTHING`,
			st.HandID, st.TableID, tournament, st.HandNumber, st.Rake, st.Voided, string(deltas), s.now().UTC())
		if err != nil {
			return errors.Wrapf(err, "insert settlement %s", st.HandID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		applied = true

		for _, d := range st.Deltas {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO table_stacks (table_id, seat, user_id, chips, hand_id, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(table_id, seat) DO UPDATE SET
					user_id = excluded.user_id, chips = excluded.chips,
					hand_id = excluded.hand_id, updated_at = excluded.updated_at`,
				st.TableID, d.Seat, d.UserID, d.After, st.HandID, s.now().UTC()); err != nil {
				return errors.Wrapf(err, "store stack for seat %d", d.Seat)
			}
		}
		return nil
	})
	return applied, err
}

// GetSettlement loads a settlement by hand id.
func (s *Store) GetSettlement(ctx context.Context, handID string) (*Settlement, error) {
	var (
		st         Settlement
		tournament sql.NullInt64
		deltas     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT hand_id, table_id, tournament_id, hand_number, rake, voided, deltas, created_at
		FROM hand_settlements WHERE hand_id = ?`, handID).
		Scan(&st.HandID, &st.TableID, &tournament, &st.HandNumber, &st.Rake, &st.Voided, &deltas, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "settlement %s", handID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get settlement %s", handID)
	}
	st.TournamentID = tournament.Int64
	if err := json.Unmarshal([]byte(deltas), &st.Deltas); err != nil {
		return nil, errors.Wrapf(err, "decode settlement %s", handID)
	}
	return &st, nil
}

// TableStacks returns the last settled stack of every seat at a table.
func (s *Store) TableStacks(ctx context.Context, tableID string) (map[int]SeatStack, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seat, user_id, chips, COALESCE(hand_id, '') FROM table_stacks WHERE table_id = ?`, tableID)
	if err != nil {
		return nil, errors.Wrapf(err, "stacks of table %s", tableID)
	}
	defer rows.Close()

	out := make(map[int]SeatStack)
	for rows.Next() {
		var ss SeatStack
		if err := rows.Scan(&ss.Seat, &ss.UserID, &ss.Chips, &ss.HandID); err != nil {
			return nil, errors.Wrap(err, "scan stack")
		}
		out[ss.Seat] = ss
	}
	return out, errors.Wrap(rows.Err(), "table stacks")
}

// ClearSeat forgets a seat's stack when its player leaves.
func (s *Store) ClearSeat(ctx context.Context, tableID string, seat int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM table_stacks WHERE table_id = ? AND seat = ?`, tableID, seat)
	return errors.Wrapf(err, "clear seat %d of %s", seat, tableID)
}
