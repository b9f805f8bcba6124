package phh

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/poker"
)

// Variant codes used by PHH.
const (
	NoLimitHoldem = "NT"
	PotLimitOmaha = "PO"
)

// HandHistory is one hand as a PHH document. Per-player slices are ordered
// from the small blind clockwise.
type HandHistory struct {
	Variant           string `toml:"variant"`
	Table             string `toml:"table,omitempty"`
	HandID            string `toml:"hand"`
	SeatCount         int    `toml:"seat_count,omitempty"`
	MinBet            int    `toml:"min_bet"`
	Antes             []int  `toml:"antes"`
	BlindsOrStraddles []int  `toml:"blinds_or_straddles"`

	Players         []string `toml:"players,omitempty"`
	Seats           []int    `toml:"seats,omitempty"`
	StartingStacks  []int    `toml:"starting_stacks"`
	FinishingStacks []int    `toml:"finishing_stacks,omitempty"`
	Winnings        []int    `toml:"winnings,omitempty"`
	Actions         []string `toml:"actions"`

	Time     string `toml:"time,omitempty"`
	TimeZone string `toml:"time_zone,omitempty"`
	Day      int    `toml:"day,omitempty"`
	Month    int    `toml:"month,omitempty"`
	Year     int    `toml:"year,omitempty"`

	// hand_number, rake and tournament_id
	Metadata  map[string]any `toml:"metadata,omitempty"`
	Timestamp time.Time      `toml:"-"`
}

// FromTable builds the history of the hand the table just finished.
// Players are listed from the small blind clockwise, as PHH expects.
func FromTable(t *game.Table, at time.Time) (*HandHistory, error) {
	result := t.Result()
	if result == nil {
		return nil, fmt.Errorf("phh: table %s has no finished hand", t.ID)
	}

	var order []*game.Player
	n := len(t.Seats)
	for i := 0; i < n; i++ {
		p := t.Seats[(t.SmallBlindSeat+i)%n]
		if p != nil && p.InHand {
			order = append(order, p)
		}
	}
	index := make(map[int]int, len(order))
	for i, p := range order {
		index[p.Seat] = i + 1
	}

	at = at.UTC()
	h := &HandHistory{
		Variant:           NoLimitHoldem,
		Table:             t.ID,
		SeatCount:         n,
		MinBet:            t.BigBlind,
		HandID:            result.HandID,
		Time:              at.Format("15:04:05"),
		TimeZone:          "UTC",
		Day:               at.Day(),
		Month:             int(at.Month()),
		Year:              at.Year(),
		Timestamp:         at,
		Antes:             make([]int, len(order)),
		BlindsOrStraddles: make([]int, len(order)),
		StartingStacks:    make([]int, len(order)),
		FinishingStacks:   make([]int, len(order)),
		Winnings:          make([]int, len(order)),
		Metadata: map[string]any{
			"hand_number": result.HandNumber,
			"rake":        result.Rake,
		},
	}
	if t.Variant == game.Omaha {
		h.Variant = PotLimitOmaha
	}
	if result.TournamentID != 0 {
		h.Metadata["tournament_id"] = result.TournamentID
	}

	pre := t.PreHandChips()
	for i, p := range order {
		h.Seats = append(h.Seats, p.Seat+1)
		h.Players = append(h.Players, p.Name)
		h.StartingStacks[i] = pre[p.Seat]
		h.FinishingStacks[i] = p.Chips
		h.Actions = append(h.Actions, fmt.Sprintf("d dh p%d %s", i+1, joinCards(p.HoleCards)))
	}
	for _, a := range result.Awards {
		if i, ok := index[a.Seat]; ok {
			h.Winnings[i-1] += a.Amount
		}
	}

	streetBet := 0
	for _, e := range t.Log() {
		switch e.Kind {
		case "small_blind", "big_blind":
			if i, ok := index[e.Seat]; ok {
				h.BlindsOrStraddles[i-1] = e.Amount
			}
			streetBet = max(streetBet, e.Amount)
		case "board":
			h.Actions = append(h.Actions, "d db "+joinCards(e.Cards))
			streetBet = 0
		default:
			action, err := game.ParseAction(e.Kind)
			if err != nil {
				// uncalled returns and rake are not PHH actions
				continue
			}
			i, ok := index[e.Seat]
			if !ok {
				continue
			}
			h.Actions = append(h.Actions, FormatAction(i, action, e.Amount, streetBet))
			if action == game.Raise || action == game.AllIn {
				streetBet = max(streetBet, e.Amount)
			}
		}
	}

	if result.Showdown {
		for i, p := range order {
			if p.Revealed {
				h.Actions = append(h.Actions, fmt.Sprintf("p%d sm %s", i+1, joinCards(p.HoleCards)))
			}
		}
	}
	return h, nil
}

func joinCards(cards []poker.Card) string {
	var b strings.Builder
	for _, c := range cards {
		b.WriteString(c.String())
	}
	return b.String()
}
