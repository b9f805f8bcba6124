package table

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lox/housepoker/internal/bot"
	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/poker"
)

const maxChatLength = 500

// Join seats a human. A negative seat takes the first free one and chips of
// zero buy in for the table's default. A player
// with a stack left on this table by an interrupted session gets it back
// instead of chips. Joining again while seated returns the current seat and
// cancels a pending leave.
func (s *Session) Join(userID, name string, seat, chips int) (int, error) {
	if userID == "" {
		return -1, errors.New("user id required")
	}
	taken := -1
	err := s.call(func() error {
		if n := s.table.SeatOf(userID); n >= 0 {
			delete(s.leaving, userID)
			s.table.Player(n).SittingOut = false
			taken = n
			return nil
		}
		if resumed, ok := s.savedStack(userID); ok {
			chips = resumed
		} else if chips == 0 {
			chips = s.cfg.BuyIn
		}
		if chips <= 0 {
			return game.ErrInsufficientChips
		}
		n, err := s.table.Sit(seat, &game.Player{UserID: userID, Name: name, Chips: chips})
		if err != nil {
			return err
		}
		taken = n
		s.notify(userID, Event{Type: EventSeatAssigned, Seat: n})
		s.logger.Info().Str("user_id", userID).Int("seat", n).Int("chips", chips).Msg("Player joined table")
		return nil
	})
	return taken, err
}

func (s *Session) savedStack(userID string) (int, bool) {
	if s.settler == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	stacks, err := s.settler.TableStacks(ctx, s.cfg.ID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load saved stacks")
		return 0, false
	}
	for _, ss := range stacks {
		if ss.UserID == userID && ss.Chips > 0 {
			return ss.Chips, true
		}
	}
	return 0, false
}

// AddBot seats a house bot. An empty userID gets a generated one.
func (s *Session) AddBot(userID, name string, difficulty bot.Difficulty, chips int) (int, error) {
	if _, err := bot.ParseDifficulty(string(difficulty)); err != nil {
		return -1, err
	}
	if userID == "" {
		userID = "bot-" + uuid.NewString()[:8]
	}
	taken := -1
	err := s.call(func() error {
		n, err := s.table.Sit(-1, &game.Player{
			UserID:     userID,
			Name:       name,
			IsBot:      true,
			Difficulty: string(difficulty),
			Chips:      chips,
		})
		if err != nil {
			return err
		}
		taken = n
		s.logger.Info().Str("bot", name).Int("seat", n).Str("difficulty", string(difficulty)).Msg("Bot joined table")
		return nil
	})
	return taken, err
}

// Leave removes a player. Mid-hand the player folds at once and gives up the
// seat when the hand ends; all-in players keep their claim on the pot.
func (s *Session) Leave(userID string) error {
	return s.call(func() error {
		seat := s.table.SeatOf(userID)
		if seat < 0 {
			return game.ErrNotSeated
		}
		if p := s.table.Player(seat); s.table.InHand() && p.InHand {
			s.table.Forfeit(seat)
			s.leaving[userID] = true
			return nil
		}
		s.stand(seat)
		return nil
	})
}

// SubmitAction applies a player's action. A declined action is returned as
// a *game.ActionError and nothing is broadcast.
func (s *Session) SubmitAction(userID string, action game.Action, amount int) error {
	return s.call(func() error {
		seat := s.table.SeatOf(userID)
		if seat < 0 {
			return game.ErrNotSeated
		}
		if err := s.table.Apply(seat, action, amount); err != nil {
			return err
		}
		// acting proves the player is back
		s.table.Player(seat).SittingOut = false
		return nil
	})
}

// Subscribe pushes events to o personalised for viewer, starting with the
// current view. An empty viewer watches as a spectator.
func (s *Session) Subscribe(viewer string, o Observer) error {
	return s.read(func() {
		s.observers[o] = viewer
		o.Send(Event{Type: EventState, TableID: s.cfg.ID, View: Personalize(s.table, viewer, s.now())})
	})
}

// Unsubscribe stops pushing events to o.
func (s *Session) Unsubscribe(o Observer) {
	_ = s.read(func() { delete(s.observers, o) })
}

// Disconnect marks a seated player as away. They stay in the deal; when it
// is their turn the default action fires after the grace period.
func (s *Session) Disconnect(userID string) error {
	err := s.call(func() error {
		seat := s.table.SeatOf(userID)
		if seat < 0 {
			return errStale
		}
		s.table.Player(seat).SittingOut = true
		s.logger.Info().Str("user_id", userID).Int("seat", seat).Msg("Player disconnected")
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	return err
}

// Reconnect clears the away flag and subscribes o. The player immediately
// gets a view with a fresh server time; a pending turn keeps the deadline it
// started with.
func (s *Session) Reconnect(userID string, o Observer) error {
	return s.call(func() error {
		if o != nil {
			s.observers[o] = userID
		}
		if seat := s.table.SeatOf(userID); seat >= 0 {
			s.table.Player(seat).SittingOut = false
		}
		return nil
	})
}

// SetBlinds changes the blinds from the next hand on.
func (s *Session) SetBlinds(small, big int) error {
	return s.call(func() error {
		s.table.SetBlinds(small, big)
		return nil
	})
}

// StackDeck makes the next hand deal from deck.
func (s *Session) StackDeck(deck *poker.Deck) error {
	return s.read(func() { s.table.StackDeck(deck) })
}

// Deal starts a hand now.
func (s *Session) Deal() error {
	return s.call(func() error {
		s.sched.Cancel(s.key("next"))
		return s.startHand()
	})
}

// Chat relays text from a seated player or spectator to the table.
func (s *Session) Chat(userID, name, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}
	return s.read(func() {
		if seat := s.table.SeatOf(userID); seat >= 0 {
			name = s.table.Player(seat).Name
		}
		s.emit(Event{Type: EventChat, Chat: &ChatMessage{UserID: userID, Name: name, Text: text, SentAt: s.now()}})
	})
}

// View returns the table as viewer sees it.
func (s *Session) View(viewer string) (*View, error) {
	var v *View
	err := s.read(func() { v = Personalize(s.table, viewer, s.now()) })
	return v, err
}

// Stacks returns every seated player's chips by user id.
func (s *Session) Stacks() (map[string]int, error) {
	out := make(map[string]int)
	err := s.read(func() {
		for _, p := range s.table.Players() {
			out[p.UserID] = p.Chips
		}
	})
	return out, err
}

// Info summarises the table for listings.
type Info struct {
	ID           string     `json:"id"`
	TournamentID int64      `json:"tournament_id,omitempty"`
	Variant      string     `json:"variant"`
	MaxSeats     int        `json:"max_seats"`
	Seated       int        `json:"seated"`
	SmallBlind   int        `json:"small_blind"`
	BigBlind     int        `json:"big_blind"`
	HandNumber   int        `json:"hand_number"`
	Phase        game.Phase `json:"phase"`
}

// Info returns a summary of the table.
func (s *Session) Info() (Info, error) {
	var info Info
	err := s.read(func() {
		t := s.table
		info = Info{
			ID:           t.ID,
			TournamentID: t.TournamentID,
			Variant:      t.Variant.String(),
			MaxSeats:     len(t.Seats),
			Seated:       len(t.Players()),
			SmallBlind:   t.SmallBlind,
			BigBlind:     t.BigBlind,
			HandNumber:   t.HandNumber,
			Phase:        t.Phase,
		}
	})
	return info, err
}

func (s *Session) notify(viewer string, e Event) {
	e.TableID = s.cfg.ID
	for o, v := range s.observers {
		if v == viewer {
			o.Send(e)
		}
	}
}
