package tournament

import (
	"time"

	"github.com/lox/housepoker/internal/store"
)

// EventType names a tournament event.
type EventType string

const (
	EventStarted          EventType = "tournament_started"
	EventBlindLevelRaised EventType = "blind_level_increased"
	EventState            EventType = "tournament_state"
	EventPlayerEliminated EventType = "player_eliminated"
	EventEnded            EventType = "tournament_ended"
)

// Event is published to everyone following a tournament.
type Event struct {
	Type         EventType         `json:"type"`
	TournamentID int64             `json:"tournament_id"`
	Level        int               `json:"level,omitempty"`
	SmallBlind   int               `json:"small_blind,omitempty"`
	BigBlind     int               `json:"big_blind,omitempty"`
	Tables       []string          `json:"tables,omitempty"`
	PlayersLeft  int               `json:"players_left,omitempty"`
	PrizePool    int64             `json:"prize_pool,omitempty"`
	EntryID      int64             `json:"entry_id,omitempty"`
	Position     int               `json:"position,omitempty"`
	Placements   []store.Placement `json:"placements,omitempty"`
	At           time.Time         `json:"at"`
}

// Publisher delivers tournament events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// Publishers fans an event out to several publishers in order.
type Publishers []Publisher

func (ps Publishers) Publish(e Event) {
	for _, p := range ps {
		p.Publish(e)
	}
}
