package table

import (
	"context"
	"errors"
	"time"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/internal/phh"
	"github.com/lox/housepoker/internal/store"
)

const (
	storeTimeout  = 5 * time.Second
	retryInterval = 5 * time.Second
)

// startHand deals the next hand and checkpoints the pre-hand stacks.
func (s *Session) startHand() error {
	if err := s.table.StartHand(s.rng); err != nil {
		return err
	}
	t := s.table
	s.logger.Debug().Str("hand_id", t.HandID).Int("hand_number", t.HandNumber).Msg("Hand started")

	if s.checkpoints == nil {
		return nil
	}
	cp := &store.Checkpoint{
		TableID:    t.ID,
		HandID:     t.HandID,
		HandNumber: t.HandNumber,
		Stacks:     t.PreHandChips(),
		Users:      make(map[int]string),
		SavedAt:    s.now(),
	}
	for _, p := range t.Players() {
		cp.Users[p.Seat] = p.UserID
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		s.logger.Error().Err(err).Str("hand_id", t.HandID).Msg("Failed to checkpoint hand")
	}
	return nil
}

// finishHand runs once per completed or voided hand: settle, clean up the
// checkpoint, write history, notify hooks, then tell the table.
func (s *Session) finishHand(r *game.HandResult) {
	log := s.logger.With().Str("hand_id", r.HandID).Int("hand_number", r.HandNumber).Logger()

	s.persist(settlementFor(r, s.now()))

	if s.checkpoints != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := s.checkpoints.Remove(ctx, s.cfg.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to remove checkpoint")
		}
		cancel()
	}

	if s.history != nil && !r.Voided {
		if h, err := phh.FromTable(s.table, s.now()); err != nil {
			log.Warn().Err(err).Msg("Failed to build hand history")
		} else if _, err := s.history.Write(h); err != nil {
			log.Warn().Err(err).Msg("Failed to write hand history")
		}
	}

	for _, hook := range s.hooks {
		hook(r)
	}

	s.standLeavers()
	if s.cfg.TournamentID != 0 {
		// busted tournament players leave the table
		for _, p := range s.table.Players() {
			if p.Chips == 0 {
				s.stand(p.Seat)
			}
		}
	}

	if r.Voided {
		s.emit(Event{Type: EventHandVoided, Result: r, Reason: r.Reason})
		return
	}
	log.Info().Int("rake", r.Rake).Bool("showdown", r.Showdown).Int("awards", len(r.Awards)).Msg("Hand complete")
	s.emit(Event{Type: EventHandResult, Result: r})
}

func settlementFor(r *game.HandResult, at time.Time) *store.Settlement {
	st := &store.Settlement{
		HandID:       r.HandID,
		TableID:      r.TableID,
		TournamentID: r.TournamentID,
		HandNumber:   r.HandNumber,
		Rake:         r.Rake,
		Voided:       r.Voided,
		CreatedAt:    at,
	}
	for _, d := range r.Deltas {
		st.Deltas = append(st.Deltas, store.SeatDelta{
			Seat:   d.Seat,
			UserID: d.UserID,
			IsBot:  d.IsBot,
			Before: d.Before,
			After:  d.After,
		})
	}
	return st
}

// persist writes a settlement. A store failure must not stall the table:
// the settlement is queued and retried until the store takes it. Writes are
// idempotent by hand id, so a retry after a lost acknowledgement is safe.
func (s *Session) persist(st *store.Settlement) {
	if s.settler == nil {
		return
	}
	s.retry = append(s.retry, st)
	s.flushSettlements()
}

func (s *Session) flushSettlements() {
	for len(s.retry) > 0 {
		st := s.retry[0]
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		applied, err := s.settler.RecordSettlement(ctx, st)
		cancel()
		if err != nil {
			s.logger.Error().Err(err).Str("hand_id", st.HandID).Int("queued", len(s.retry)).Msg("Failed to record settlement, will retry")
			s.sched.Schedule(s.key("settle"), retryInterval, func() {
				_ = s.read(s.flushSettlements)
			})
			return
		}
		if !applied {
			s.logger.Debug().Str("hand_id", st.HandID).Msg("Settlement already recorded")
		}
		s.retry = s.retry[1:]
	}
}

// PendingSettlements is the number of settlements waiting for the store.
func (s *Session) PendingSettlements() int {
	var n int
	_ = s.read(func() { n = len(s.retry) })
	return n
}

// restoreCheckpoint voids a hand that a previous process dealt but never
// settled. The voided settlement puts every seat back on its pre-hand stack
// in the store, where rejoining players pick it up.
func (s *Session) restoreCheckpoint(ctx context.Context) error {
	if s.checkpoints == nil {
		return nil
	}
	cp, err := s.checkpoints.Load(ctx, s.cfg.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.table.RestoreStacks(cp.Stacks)
	st := &store.Settlement{
		HandID:       cp.HandID,
		TableID:      cp.TableID,
		TournamentID: s.cfg.TournamentID,
		HandNumber:   cp.HandNumber,
		Voided:       true,
		CreatedAt:    s.now(),
	}
	for seat, chips := range cp.Stacks {
		st.Deltas = append(st.Deltas, store.SeatDelta{Seat: seat, UserID: cp.Users[seat], Before: chips, After: chips})
	}
	s.persist(st)
	if err := s.checkpoints.Remove(ctx, s.cfg.ID); err != nil {
		return err
	}
	s.logger.Warn().Str("hand_id", cp.HandID).Int("hand_number", cp.HandNumber).Msg("Voided hand interrupted by restart")
	return nil
}

func (s *Session) standLeavers() {
	for userID := range s.leaving {
		seat := s.table.SeatOf(userID)
		if seat < 0 {
			delete(s.leaving, userID)
			continue
		}
		if s.stand(seat) {
			delete(s.leaving, userID)
		}
	}
}

func (s *Session) stand(seat int) bool {
	p, err := s.table.Stand(seat)
	if err != nil {
		return false
	}
	if s.settler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := s.settler.ClearSeat(ctx, s.cfg.ID, seat); err != nil {
			s.logger.Warn().Err(err).Int("seat", seat).Msg("Failed to clear seat")
		}
	}
	s.logger.Info().Int("seat", seat).Str("user_id", p.UserID).Int("chips", p.Chips).Msg("Player left table")
	return true
}
