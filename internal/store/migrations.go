package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

type migration struct {
	name string
	sql  string
}

// migrations run in order, each once. Append only.
var migrations = []migration{
	{"0001_users", `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE balance_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(id),
			amount INTEGER NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`},
	{"0002_tournaments", `
		CREATE TABLE tournaments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			variant TEXT NOT NULL DEFAULT 'holdem',
			status TEXT NOT NULL DEFAULT 'registering',
			buy_in INTEGER NOT NULL DEFAULT 0,
			entry_fee INTEGER NOT NULL DEFAULT 0,
			starting_chips INTEGER NOT NULL,
			min_players INTEGER NOT NULL,
			max_players INTEGER NOT NULL,
			current_players INTEGER NOT NULL DEFAULT 0,
			prize_pool INTEGER NOT NULL DEFAULT 0,
			blind_schedule TEXT NOT NULL,
			payout_curve TEXT NOT NULL,
			bots_enabled INTEGER NOT NULL DEFAULT 0,
			bot_count INTEGER NOT NULL DEFAULT 0,
			scheduled_start TIMESTAMP,
			started_at TIMESTAMP,
			ended_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE tournament_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tournament_id INTEGER NOT NULL REFERENCES tournaments(id),
			user_id TEXT,
			is_bot INTEGER NOT NULL DEFAULT 0,
			bot_name TEXT,
			bot_difficulty TEXT,
			chip_stack INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'registered',
			eliminated_at TIMESTAMP,
			finish_position INTEGER,
			prize_won INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX tournament_entries_user ON tournament_entries(tournament_id, user_id) WHERE user_id IS NOT NULL;`},
	{"0003_settlements", `
		CREATE TABLE hand_settlements (
			hand_id TEXT PRIMARY KEY,
			table_id TEXT NOT NULL,
			tournament_id INTEGER,
			hand_number INTEGER NOT NULL,
			rake INTEGER NOT NULL DEFAULT 0,
			voided INTEGER NOT NULL DEFAULT 0,
			deltas TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX hand_settlements_table ON hand_settlements(table_id, hand_number);
		CREATE TABLE table_stacks (
			table_id TEXT NOT NULL,
			seat INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			chips INTEGER NOT NULL CHECK (chips >= 0),
			hand_id TEXT,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (table_id, seat)
		);`},
}

// Migrate applies pending migrations and returns the names it applied.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return nil, errors.Wrap(err, "create schema_migrations")
	}

	done := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "list migrations")
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan migration")
		}
		done[name] = true
	}
	rows.Close()

	var applied []string
	for _, m := range migrations {
		if done[m.name] {
			continue
		}
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES (?)`, m.name)
			return err
		})
		if err != nil {
			return applied, errors.Wrapf(err, "migration %s", m.name)
		}
		s.logger.Info().Str("migration", m.name).Msg("Applied migration")
		applied = append(applied, m.name)
	}
	return applied, nil
}
