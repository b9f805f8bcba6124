package game

import (
	"slices"

	"github.com/lox/housepoker/poker"
)

// Award is chips won from one pot.
type Award struct {
	Seat     int          `json:"seat"`
	UserID   string       `json:"user_id"`
	Amount   int          `json:"amount"`
	Pot      int          `json:"pot"`
	Category string       `json:"category,omitempty"`
	Best     []poker.Card `json:"best,omitempty"`
}

// Delta is a seat's stack change over a hand.
type Delta struct {
	Seat   int    `json:"seat"`
	UserID string `json:"user_id"`
	IsBot  bool   `json:"is_bot"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// Change is the net chips won or lost.
func (d Delta) Change() int { return d.After - d.Before }

// HandResult is the settled outcome of a hand, or of a voided one.
type HandResult struct {
	HandID       string       `json:"hand_id"`
	HandNumber   int          `json:"hand_number"`
	TableID      string       `json:"table_id"`
	TournamentID int64        `json:"tournament_id,omitempty"`
	Board        []poker.Card `json:"board"`
	Awards       []Award      `json:"awards"`
	Deltas       []Delta      `json:"deltas"`
	Rake         int          `json:"rake"`
	Showdown     bool         `json:"showdown"`
	Voided       bool         `json:"voided,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}

// Eliminated lists seats that finished the hand with no chips.
func (r *HandResult) Eliminated() []Delta {
	var out []Delta
	for _, d := range r.Deltas {
		if d.After == 0 && d.Before > 0 {
			out = append(out, d)
		}
	}
	return out
}

// showdown reveals the live hands and settles each pot independently.
func (t *Table) showdown() {
	t.Phase = PhaseShowdown
	t.ActingSeat = -1

	values := make(map[int]poker.HandValue)
	for _, p := range t.Seats {
		if p == nil || !p.live() {
			continue
		}
		p.Revealed = true
		values[p.Seat] = t.evaluate(p)
	}

	rake := t.takeRake()
	var awards []Award
	for i, pot := range t.Pots {
		var winners []int
		var best poker.HandValue
		for _, seat := range t.clockwiseFromDealer(pot.Eligible) {
			hv, ok := values[seat]
			if !ok {
				continue
			}
			switch cmp := poker.Compare(hv, best); {
			case winners == nil || cmp > 0:
				winners = []int{seat}
				best = hv
			case cmp == 0:
				winners = append(winners, seat)
			}
		}
		if len(winners) == 0 {
			continue
		}

		share := pot.Amount / len(winners)
		remainder := pot.Amount % len(winners)
		for j, seat := range winners {
			amount := share
			if j == 0 {
				amount += remainder
			}
			p := t.Seats[seat]
			p.Chips += amount
			hv := values[seat]
			awards = append(awards, Award{
				Seat:     seat,
				UserID:   p.UserID,
				Amount:   amount,
				Pot:      i,
				Category: hv.Category.String(),
				Best:     hv.Best,
			})
		}
	}
	t.complete(awards, rake, true)
}

// finishUncontested awards everything to the last live player without
// revealing cards.
func (t *Table) finishUncontested() {
	t.returnUncalled()
	t.collectBets()
	t.Phase = PhaseShowdown
	t.ActingSeat = -1

	var winner *Player
	total := 0
	for _, p := range t.Seats {
		if p == nil || !p.InHand {
			continue
		}
		total += p.TotalBet
		if p.live() {
			winner = p
		}
	}
	t.Pots = []Pot{{Amount: total, Eligible: []int{winner.Seat}}}

	rake := t.takeRake()
	winner.Chips += t.Pots[0].Amount
	awards := []Award{{Seat: winner.Seat, UserID: winner.UserID, Amount: t.Pots[0].Amount}}
	t.complete(awards, rake, false)
}

func (t *Table) evaluate(p *Player) poker.HandValue {
	if t.Variant == Omaha {
		return poker.EvaluateOmaha(p.HoleCards, t.Board)
	}
	return poker.Evaluate(append(slices.Clone(p.HoleCards), t.Board...)...)
}

// takeRake removes the house fee from the pots, main pot first. Tournament
// tables and hands that end before the flop are not raked.
func (t *Table) takeRake() int {
	if t.TournamentID != 0 || t.Rake.Percentage <= 0 || len(t.Board) == 0 {
		return 0
	}
	total := 0
	for _, pot := range t.Pots {
		total += pot.Amount
	}
	if total < t.Rake.MinPot {
		return 0
	}
	rake := total * t.Rake.Percentage / 100
	if t.Rake.Cap > 0 {
		rake = min(rake, t.Rake.Cap)
	}
	left := rake
	for i := range t.Pots {
		take := min(left, t.Pots[i].Amount)
		t.Pots[i].Amount -= take
		left -= take
	}
	return rake
}

// clockwiseFromDealer orders seats starting left of the dealer, so the first
// entry is the earliest position.
func (t *Table) clockwiseFromDealer(seats []int) []int {
	n := len(t.Seats)
	out := slices.Clone(seats)
	slices.SortFunc(out, func(a, b int) int {
		return (a-t.Dealer-1+2*n)%n - (b-t.Dealer-1+2*n)%n
	})
	return out
}

func (t *Table) complete(awards []Award, rake int, showdown bool) {
	t.result = &HandResult{
		HandID:       t.HandID,
		HandNumber:   t.HandNumber,
		TableID:      t.ID,
		TournamentID: t.TournamentID,
		Board:        slices.Clone(t.Board),
		Awards:       awards,
		Deltas:       t.deltas(),
		Rake:         rake,
		Showdown:     showdown,
	}
	kind := "showdown"
	if !showdown {
		kind = "uncontested"
	}
	t.log = append(t.log, LogEntry{Phase: PhaseShowdown, Seat: -1, Kind: kind, Amount: rake})
}

func (t *Table) deltas() []Delta {
	var out []Delta
	for _, p := range t.Seats {
		if p == nil {
			continue
		}
		before, ok := t.preHand[p.Seat]
		if !ok {
			continue
		}
		out = append(out, Delta{Seat: p.Seat, UserID: p.UserID, IsBot: p.IsBot, Before: before, After: p.Chips})
	}
	return out
}

// Void abandons the current hand and restores every stack to its pre-hand
// value. The table returns to waiting.
func (t *Table) Void(reason string) *HandResult {
	for _, p := range t.Seats {
		if p == nil {
			continue
		}
		if before, ok := t.preHand[p.Seat]; ok {
			p.Chips = before
		}
		p.Bet = 0
		p.TotalBet = 0
		p.AllIn = false
		p.InHand = false
	}
	t.Pots = nil
	t.CurrentBet = 0
	t.ActingSeat = -1
	t.Phase = PhaseWaiting
	t.result = &HandResult{
		HandID:       t.HandID,
		HandNumber:   t.HandNumber,
		TableID:      t.ID,
		TournamentID: t.TournamentID,
		Deltas:       t.deltas(),
		Voided:       true,
		Reason:       reason,
	}
	return t.result
}

// RestoreStacks sets stacks from a checkpoint taken at the start of an
// interrupted hand. Unknown seats are ignored.
func (t *Table) RestoreStacks(stacks map[int]int) {
	for seat, chips := range stacks {
		if p := t.player(seat); p != nil {
			p.Chips = chips
		}
	}
}
