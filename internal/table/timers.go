package table

import (
	"errors"
	"fmt"
	"time"

	"github.com/lox/housepoker/internal/bot"
	"github.com/lox/housepoker/internal/game"
)

// decision identifies the choice the table is waiting for. Any accepted
// action or dealt street produces a new one.
func (s *Session) decision() string {
	t := s.table
	if !t.InHand() {
		return ""
	}
	return fmt.Sprintf("%s/%d/%d", t.HandID, len(t.Log()), t.ActingSeat)
}

// turnToken is the decision plus the acting player's connection state, so a
// disconnect or reconnect re-arms the timer.
func (s *Session) turnToken() string {
	d := s.decision()
	if d == "" {
		return ""
	}
	away := false
	if p := s.table.Player(s.table.ActingSeat); p != nil {
		away = p.SittingOut
	}
	return fmt.Sprintf("%s/%t", d, away)
}

// turnDeadline returns when the acting seat's clock runs out. The full
// timeout starts once per decision; reconnecting never moves it, and being
// away only shortens it to the grace period.
func (s *Session) turnDeadline(away bool) time.Time {
	now := s.now()
	if d := s.decision(); d != s.turn {
		s.turn = d
		s.turnEnds = now.Add(s.cfg.Timings.TurnTimeout)
	}
	if away {
		return minTime(s.turnEnds, now.Add(s.cfg.Timings.DisconnectGrace))
	}
	return s.turnEnds
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// arm schedules whatever the table waits on next: the acting seat's timer,
// a runout street or the next hand. Timers for an unchanged decision are
// left alone so chat and subscriptions never extend a turn.
func (s *Session) arm() {
	t := s.table
	token := s.turnToken()
	if token != "" && token == s.armed {
		return
	}
	s.armed = token
	s.sched.Cancel(s.key("act"))
	s.sched.Cancel(s.key("runout"))
	t.ActionDeadline = time.Time{}

	switch {
	case t.NeedsRunout():
		s.after("runout", s.cfg.Timings.RunoutDelay, token, s.table.AdvanceRunout)

	case t.InHand():
		p := t.Player(t.ActingSeat)
		if p == nil {
			return
		}
		seat := p.Seat
		if p.IsBot {
			s.after("act", s.botDelay(), token, func() error { return s.botAct(seat) })
			return
		}
		deadline := s.turnDeadline(p.SittingOut)
		t.ActionDeadline = deadline
		s.after("act", deadline.Sub(s.now()), token, func() error { return s.timeout(seat) })

	case s.cfg.AutoDeal && t.Funded() >= 2:
		if _, pending := s.sched.Pending(s.key("next")); pending {
			return
		}
		s.sched.Schedule(s.key("next"), s.cfg.Timings.NextHandDelay, func() {
			err := s.call(func() error {
				if s.table.InHand() {
					return errStale
				}
				return s.startHand()
			})
			if err != nil && !errors.Is(err, errStale) && !errors.Is(err, ErrClosed) && !errors.Is(err, game.ErrNotEnoughPlayers) {
				s.logger.Error().Err(err).Msg("Failed to start next hand")
			}
		})
	}
}

// after schedules fn under key name. It only runs if the table is still
// waiting on the same decision when the timer fires.
func (s *Session) after(name string, d time.Duration, token string, fn func() error) {
	s.sched.Schedule(s.key(name), d, func() {
		err := s.call(func() error {
			if s.turnToken() != token {
				return errStale
			}
			return fn()
		})
		if err != nil && !errors.Is(err, errStale) && !errors.Is(err, ErrClosed) {
			s.logger.Error().Err(err).Str("timer", name).Msg("Timer action failed")
		}
	})
}

func (s *Session) botDelay() time.Duration {
	lo, hi := s.cfg.Timings.BotDelayMin, s.cfg.Timings.BotDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)))
}

func (s *Session) botAct(seat int) error {
	d := bot.Decide(seat, s.table, s.rng)
	if err := s.table.Apply(seat, d.Action, d.Amount); err != nil {
		// a bot must never stall the table
		s.logger.Warn().Err(err).Int("seat", seat).Str("reasoning", d.Reasoning).Msg("Bot decision rejected, using default")
		return s.table.Apply(seat, s.table.DefaultAction(seat), 0)
	}
	s.logger.Debug().Int("seat", seat).Stringer("action", d.Action).Int("amount", d.Amount).Str("reasoning", d.Reasoning).Msg("Bot acted")
	return nil
}

// timeout applies the default action for a seat whose clock ran out.
func (s *Session) timeout(seat int) error {
	action := s.table.DefaultAction(seat)
	s.logger.Info().Int("seat", seat).Stringer("action", action).Msg("Turn timed out")
	return s.table.Apply(seat, action, 0)
}
