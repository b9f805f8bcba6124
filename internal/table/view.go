package table

import (
	"slices"
	"time"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/poker"
)

// EventType names an outbound table event.
type EventType string

const (
	EventState        EventType = "state"
	EventSeatAssigned EventType = "seat_assigned"
	EventHandResult   EventType = "hand_result"
	EventHandVoided   EventType = "hand_voided"
	EventChat         EventType = "chat_message"
	EventTableClosed  EventType = "table_closed"
)

// Event is pushed to observers. Only the fields for its type are set.
type Event struct {
	Type    EventType        `json:"type"`
	TableID string           `json:"table_id"`
	View    *View            `json:"view,omitempty"`
	Seat    int              `json:"seat"`
	Result  *game.HandResult `json:"result,omitempty"`
	Chat    *ChatMessage     `json:"chat,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

// Observer receives events for one viewer. Send is called from the session
// goroutine and must not block or call back into the session.
type Observer interface {
	Send(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Send(e Event) { f(e) }

// ChatMessage is relayed to everyone at the table unchanged.
type ChatMessage struct {
	UserID string    `json:"user_id"`
	Name   string    `json:"name"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// SeatView is the public part of a seat, plus hole cards when the viewer may
// see them.
type SeatView struct {
	Seat       int          `json:"seat"`
	UserID     string       `json:"user_id"`
	Name       string       `json:"name"`
	IsBot      bool         `json:"is_bot,omitempty"`
	Chips      int          `json:"chips"`
	Bet        int          `json:"bet"`
	TotalBet   int          `json:"total_bet"`
	Folded     bool         `json:"folded,omitempty"`
	AllIn      bool         `json:"all_in,omitempty"`
	InHand     bool         `json:"in_hand,omitempty"`
	SittingOut bool         `json:"sitting_out,omitempty"`
	LastAction string       `json:"last_action,omitempty"`
	CardCount  int          `json:"card_count,omitempty"`
	HoleCards  []poker.Card `json:"hole_cards,omitempty"`
}

// View is a table snapshot personalised for one viewer.
type View struct {
	TableID        string       `json:"table_id"`
	TournamentID   int64        `json:"tournament_id,omitempty"`
	Variant        string       `json:"variant"`
	HandID         string       `json:"hand_id,omitempty"`
	HandNumber     int          `json:"hand_number"`
	Phase          game.Phase   `json:"phase"`
	Board          []poker.Card `json:"board"`
	Pots           []game.Pot   `json:"pots"`
	CurrentBet     int          `json:"current_bet"`
	MinRaise       int          `json:"min_raise"`
	SmallBlind     int          `json:"small_blind"`
	BigBlind       int          `json:"big_blind"`
	Dealer         int          `json:"dealer"`
	SmallBlindSeat int          `json:"small_blind_seat"`
	BigBlindSeat   int          `json:"big_blind_seat"`
	ActingSeat     int          `json:"acting_seat"`
	ActionDeadline *time.Time   `json:"action_deadline,omitempty"`
	ServerTime     time.Time    `json:"server_time"`
	Seats          []SeatView   `json:"seats"`
	YourSeat       int          `json:"your_seat"`
	Legal          *game.Legal  `json:"legal,omitempty"`
}

// Personalize projects t for viewer. The viewer's own hole cards are always
// included; other seats show theirs only once revealed at showdown. An empty
// viewer is a spectator.
func Personalize(t *game.Table, viewer string, now time.Time) *View {
	v := &View{
		TableID:        t.ID,
		TournamentID:   t.TournamentID,
		Variant:        t.Variant.String(),
		HandID:         t.HandID,
		HandNumber:     t.HandNumber,
		Phase:          t.Phase,
		Board:          slices.Clone(t.Board),
		Pots:           slices.Clone(t.Pots),
		CurrentBet:     t.CurrentBet,
		MinRaise:       t.MinRaise,
		SmallBlind:     t.SmallBlind,
		BigBlind:       t.BigBlind,
		Dealer:         t.Dealer,
		SmallBlindSeat: t.SmallBlindSeat,
		BigBlindSeat:   t.BigBlindSeat,
		ActingSeat:     t.ActingSeat,
		ServerTime:     now,
		YourSeat:       -1,
	}
	if !t.ActionDeadline.IsZero() {
		deadline := t.ActionDeadline
		v.ActionDeadline = &deadline
	}

	for _, p := range t.Players() {
		sv := SeatView{
			Seat:       p.Seat,
			UserID:     p.UserID,
			Name:       p.Name,
			IsBot:      p.IsBot,
			Chips:      p.Chips,
			Bet:        p.Bet,
			TotalBet:   p.TotalBet,
			Folded:     p.Folded,
			AllIn:      p.AllIn,
			InHand:     p.InHand,
			SittingOut: p.SittingOut,
			LastAction: p.LastAction,
			CardCount:  len(p.HoleCards),
		}
		own := viewer != "" && p.UserID == viewer
		if own {
			v.YourSeat = p.Seat
		}
		if own || p.Revealed {
			sv.HoleCards = slices.Clone(p.HoleCards)
		}
		v.Seats = append(v.Seats, sv)
	}

	if v.YourSeat >= 0 && v.YourSeat == t.ActingSeat {
		legal := t.LegalActions(v.YourSeat)
		v.Legal = &legal
	}
	return v
}
