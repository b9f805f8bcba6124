package game

import (
	"fmt"
	rand "math/rand/v2"
	"testing"

	"github.com/lox/housepoker/poker"
)

func newTestTable(t *testing.T, stacks []int, opts ...Option) *Table {
	t.Helper()
	opts = append([]Option{WithBlinds(5, 10), WithMaxSeats(max(len(stacks), 2))}, opts...)
	tbl := NewTable("test", opts...)
	for i, chips := range stacks {
		p := &Player{UserID: fmt.Sprintf("user-%d", i), Name: fmt.Sprintf("player%d", i), Chips: chips}
		if _, err := tbl.Sit(i, p); err != nil {
			t.Fatalf("sit %d: %v", i, err)
		}
	}
	return tbl
}

func testRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func startHand(t *testing.T, tbl *Table) {
	t.Helper()
	if err := tbl.StartHand(testRNG(1)); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	requireInvariants(t, tbl)
}

func apply(t *testing.T, tbl *Table, seat int, action Action, amount int) {
	t.Helper()
	if err := tbl.Apply(seat, action, amount); err != nil {
		t.Fatalf("Apply(%d, %s, %d): %v", seat, action, amount, err)
	}
	requireInvariants(t, tbl)
}

func requireInvariants(t *testing.T, tbl *Table) {
	t.Helper()
	if err := tbl.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func stacked(cards string) *poker.Deck {
	return poker.NewStackedDeck(poker.MustParseCards(cards)...)
}

func totalChips(tbl *Table) int {
	total := 0
	for _, p := range tbl.Players() {
		total += p.Chips
	}
	return total
}

// snapshot captures everything an action could mutate.
func snapshot(tbl *Table) string {
	s := fmt.Sprintf("%s|%d|%d|%d|%d|%v|", tbl.Phase, tbl.ActingSeat, tbl.CurrentBet, tbl.MinRaise, len(tbl.log), tbl.Pots)
	for _, p := range tbl.Players() {
		s += fmt.Sprintf("%d:%d/%d/%d/%t/%t/%s/%d;", p.Seat, p.Chips, p.Bet, p.TotalBet, p.Folded, p.AllIn, p.LastAction, p.actedAt)
	}
	return s
}
