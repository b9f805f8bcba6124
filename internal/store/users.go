package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// User is an account with a chip balance.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

// EnsureUser creates the user with an opening balance if it does not exist
// and returns the stored row either way.
func (s *Store) EnsureUser(ctx context.Context, id, name string, balance int64) (*User, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, name, balance, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			id, name, balance, s.now().UTC())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 && balance != 0 {
			return recordTransaction(ctx, tx, id, balance, "opening balance")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "ensure user %s", id)
	}
	return s.GetUser(ctx, id)
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, balance, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Balance, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "user %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get user %s", id)
	}
	return u, nil
}

// AdjustBalance adds amount (negative to debit) to a user's balance and
// records the transaction. Debits that would overdraw fail with
// ErrInsufficientBalance.
func (s *Store) AdjustBalance(ctx context.Context, userID string, amount int64, reason string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return adjustBalance(ctx, tx, userID, amount, reason)
	})
}

func adjustBalance(ctx context.Context, tx *sql.Tx, userID string, amount int64, reason string) error {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "user %s", userID)
	}
	if err != nil {
		return errors.Wrapf(err, "balance of %s", userID)
	}
	if balance+amount < 0 {
		return errors.Wrapf(ErrInsufficientBalance, "user %s has %d, needs %d", userID, balance, -amount)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET balance = balance + ? WHERE id = ?`, amount, userID); err != nil {
		return errors.Wrapf(err, "update balance of %s", userID)
	}
	return recordTransaction(ctx, tx, userID, amount, reason)
}

func recordTransaction(ctx context.Context, tx *sql.Tx, userID string, amount int64, reason string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO balance_transactions (user_id, amount, reason) VALUES (?, ?, ?)`,
		userID, amount, reason)
	return errors.Wrap(err, "record transaction")
}
