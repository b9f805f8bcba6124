package game

import (
	"errors"
	"testing"
)

func TestRandomPlayKeepsInvariants(t *testing.T) {
	t.Parallel()

	for _, variant := range []Variant{Holdem, Omaha} {
		t.Run(variant.String(), func(t *testing.T) {
			t.Parallel()
			rng := testRNG(uint64(variant) + 11)
			tbl := newTestTable(t, []int{200, 350, 80, 1000, 45, 600}, WithVariant(variant))
			chips := totalChips(tbl)

			for hand := 0; hand < 300; hand++ {
				if tbl.Funded() < 3 {
					for _, p := range tbl.Players() {
						if p.Chips == 0 {
							p.Chips = 300
							chips += 300
						}
					}
				}
				if err := tbl.StartHand(rng); err != nil {
					t.Fatalf("hand %d: %v", hand, err)
				}
				requireInvariants(t, tbl)

				for steps := 0; tbl.Result() == nil; steps++ {
					if steps > 200 {
						t.Fatalf("hand %d did not finish", hand)
					}
					if tbl.NeedsRunout() {
						if err := tbl.AdvanceRunout(); err != nil {
							t.Fatal(err)
						}
						requireInvariants(t, tbl)
						continue
					}

					seat := tbl.ActingSeat
					legal := tbl.LegalActions(seat)
					if len(legal.Actions) == 0 {
						t.Fatalf("hand %d: acting seat %d has no legal actions", hand, seat)
					}
					action := legal.Actions[rng.IntN(len(legal.Actions))]
					amount := 0
					if action == Raise {
						if legal.MaxRaiseTo < legal.MinRaiseTo {
							t.Fatalf("empty raise range %+v", legal)
						}
						amount = legal.MinRaiseTo + rng.IntN(legal.MaxRaiseTo-legal.MinRaiseTo+1)
					}
					if err := tbl.Apply(seat, action, amount); err != nil {
						t.Fatalf("hand %d: legal %s %d rejected: %v (%+v)", hand, action, amount, err, legal)
					}
					requireInvariants(t, tbl)
					for _, p := range tbl.Players() {
						if p.Chips < 0 {
							t.Fatalf("seat %d negative stack", p.Seat)
						}
					}
				}

				if got := totalChips(tbl); got != chips {
					t.Fatalf("hand %d: chips %d, want %d", hand, got, chips)
				}
				awarded := 0
				for _, a := range tbl.Result().Awards {
					awarded += a.Amount
				}
				contributed := 0
				for _, p := range tbl.Players() {
					contributed += p.TotalBet
				}
				if awarded != contributed {
					t.Fatalf("hand %d: awarded %d of %d contributed", hand, awarded, contributed)
				}
			}
		})
	}
}

func TestCheckInvariantsDetectsCorruption(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		corrupt func(*Table)
		check   string
	}{
		{"chips appear", func(tb *Table) { tb.Seats[0].Chips += 10 }, "conservation"},
		{"pot leak", func(tb *Table) { tb.Pots = []Pot{{Amount: 5, Eligible: []int{0}}} }, "pot"},
		{"negative stack", func(tb *Table) { tb.Seats[2].Chips = -1 }, "stack"},
		{"folded actor", func(tb *Table) { tb.Seats[tb.ActingSeat].Folded = true }, "acting"},
		{"duplicate card", func(tb *Table) { tb.Seats[1].HoleCards[0] = tb.Seats[0].HoleCards[0] }, "deck"},
		{"card left in deck", func(tb *Table) { tb.Seats[0].HoleCards[0] = tb.Deck.Cards()[0] }, "deck"},
		{"empty pot eligibility", func(tb *Table) { tb.Pots = []Pot{{Amount: 0}} }, "eligible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tbl := newTestTable(t, []int{1000, 1000, 1000})
			startHand(t, tbl)
			tt.corrupt(tbl)

			err := tbl.CheckInvariants()
			var inv *InvariantError
			if !errors.As(err, &inv) {
				t.Fatalf("expected invariant error, got %v", err)
			}
			if inv.Check != tt.check {
				t.Fatalf("check = %s (%s), want %s", inv.Check, inv.Detail, tt.check)
			}
		})
	}
}
