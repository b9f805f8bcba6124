package game

import (
	"slices"

	"github.com/lox/housepoker/poker"
)

// LogEntry is one line of the hand log: a blind, an action or dealt board
// cards. Amount is the chips added for calls and the raise-to total for
// raises and blinds.
type LogEntry struct {
	Phase  Phase        `json:"phase"`
	Seat   int          `json:"seat"`
	Kind   string       `json:"kind"`
	Amount int          `json:"amount,omitempty"`
	Cards  []poker.Card `json:"cards,omitempty"`
}

// Log returns a copy of the current hand log.
func (t *Table) Log() []LogEntry {
	return slices.Clone(t.log)
}

// PreHandChips returns the stacks snapshotted when the current hand started.
func (t *Table) PreHandChips() map[int]int {
	out := make(map[int]int, len(t.preHand))
	for k, v := range t.preHand {
		out[k] = v
	}
	return out
}

func (t *Table) record(seat int, action Action, amount int) {
	if p := t.player(seat); p != nil {
		p.LastAction = action.String()
	}
	t.log = append(t.log, LogEntry{Phase: t.Phase, Seat: seat, Kind: action.String(), Amount: amount})
}

func (t *Table) recordBoard(cards []poker.Card) {
	t.log = append(t.log, LogEntry{Phase: t.Phase, Seat: -1, Kind: "board", Cards: slices.Clone(cards)})
}
