package game

import (
	"reflect"
	"testing"
)

func TestSidePotsFromUnequalAllIns(t *testing.T) {
	t.Parallel()

	// Deal order starts left of the dealer (seat 0): seats 1, 2, 0, 1, 2, 0.
	deck := stacked("Kc Qc Ac Kd Qd Ad 2s 3h 7s 9d 2d Jc 2h 4s")
	tbl := newTestTable(t, []int{100, 50, 200}, WithDeck(deck))
	startHand(t, tbl)

	apply(t, tbl, 0, Raise, 30)
	apply(t, tbl, 1, AllIn, 0)
	apply(t, tbl, 2, AllIn, 0)
	apply(t, tbl, 0, AllIn, 0)

	if tbl.Phase != PhaseFlop || !tbl.NeedsRunout() || tbl.ActingSeat != -1 {
		t.Fatalf("expected runout on the flop, phase=%s acting=%d", tbl.Phase, tbl.ActingSeat)
	}

	want := []Pot{
		{Amount: 150, Eligible: []int{0, 1, 2}},
		{Amount: 100, Eligible: []int{0, 2}},
	}
	if !reflect.DeepEqual(tbl.Pots, want) {
		t.Fatalf("pots = %+v, want %+v", tbl.Pots, want)
	}
	if got := tbl.Seats[2].Chips; got != 100 {
		t.Fatalf("uncalled 100 should return to seat 2, stack = %d", got)
	}
	if tbl.Seats[2].AllIn {
		t.Fatal("seat 2 is no longer all-in after the refund")
	}

	for tbl.NeedsRunout() {
		if err := tbl.AdvanceRunout(); err != nil {
			t.Fatal(err)
		}
		requireInvariants(t, tbl)
	}
	if err := tbl.AdvanceRunout(); err == nil {
		t.Fatal("runout after showdown should fail")
	}

	if tbl.Phase != PhaseShowdown || len(tbl.Board) != 5 {
		t.Fatalf("phase %s board %d", tbl.Phase, len(tbl.Board))
	}
	if got := []int{tbl.Seats[0].Chips, tbl.Seats[1].Chips, tbl.Seats[2].Chips}; !reflect.DeepEqual(got, []int{250, 0, 100}) {
		t.Fatalf("stacks = %v, want aces to scoop both pots", got)
	}

	result := tbl.Result()
	if result == nil || !result.Showdown {
		t.Fatalf("expected showdown result, got %+v", result)
	}
	eliminated := result.Eliminated()
	if len(eliminated) != 1 || eliminated[0].Seat != 1 {
		t.Fatalf("eliminated = %+v", eliminated)
	}
	for _, p := range tbl.Players() {
		if !p.Revealed {
			t.Errorf("seat %d should be revealed at showdown", p.Seat)
		}
	}
}

func TestSplitPotOddChipGoesLeftOfDealer(t *testing.T) {
	t.Parallel()

	// Everyone plays the broadway board.
	deck := stacked("2c 4c 6c 3d 5d 7d 2s Ah Kd Qs 3s Jc 4s Th")
	tbl := newTestTable(t, []int{1000, 1000, 1000}, WithDeck(deck))
	startHand(t, tbl)

	apply(t, tbl, 0, Call, 0)
	apply(t, tbl, 1, Fold, 0)
	apply(t, tbl, 2, Check, 0)
	for tbl.Phase != PhaseShowdown {
		apply(t, tbl, tbl.ActingSeat, Check, 0)
	}

	// 25 chips split two ways: seat 2 sits left of the dealer and takes the odd chip.
	if got := tbl.Seats[2].Chips; got != 1003 {
		t.Errorf("seat 2 = %d, want 1003", got)
	}
	if got := tbl.Seats[0].Chips; got != 1002 {
		t.Errorf("seat 0 = %d, want 1002", got)
	}
	if got := tbl.Seats[1].Chips; got != 995 {
		t.Errorf("seat 1 = %d, want 995", got)
	}
	for _, a := range tbl.Result().Awards {
		if a.Category != "Straight" {
			t.Errorf("award category %q", a.Category)
		}
	}
}

func TestUncontestedPotIsNotRevealed(t *testing.T) {
	t.Parallel()
	tbl := newTestTable(t, []int{1000, 1000, 1000})
	startHand(t, tbl)

	apply(t, tbl, 0, Raise, 30)
	apply(t, tbl, 1, Fold, 0)
	apply(t, tbl, 2, Fold, 0)

	result := tbl.Result()
	if result == nil || result.Showdown {
		t.Fatalf("expected uncontested result, got %+v", result)
	}
	if got := tbl.Seats[0].Chips; got != 1015 {
		t.Fatalf("winner stack = %d, want 1015", got)
	}
	for _, p := range tbl.Players() {
		if p.Revealed {
			t.Errorf("seat %d revealed without a showdown", p.Seat)
		}
	}

	var refunded bool
	for _, e := range tbl.Log() {
		if e.Kind == "uncalled" && e.Seat == 0 && e.Amount == 20 {
			refunded = true
		}
	}
	if !refunded {
		t.Fatalf("uncalled 20 should be logged: %+v", tbl.Log())
	}
}

func TestRakeOnCashTables(t *testing.T) {
	t.Parallel()
	rake := RakeConfig{Percentage: 5, Cap: 3, MinPot: 20}

	tbl := newTestTable(t, []int{1000, 1000}, WithRake(rake))
	startHand(t, tbl)
	apply(t, tbl, 0, Call, 0)
	apply(t, tbl, 1, Check, 0)
	for tbl.Phase != PhaseShowdown {
		apply(t, tbl, tbl.ActingSeat, Check, 0)
	}
	if got := tbl.Result().Rake; got != 1 {
		t.Fatalf("rake on a 20 pot = %d, want 1", got)
	}
	if got := totalChips(tbl); got != 1999 {
		t.Fatalf("chips after rake = %d", got)
	}

	tourney := newTestTable(t, []int{1000, 1000}, WithRake(rake), WithTournament(7))
	startHand(t, tourney)
	apply(t, tourney, 0, Call, 0)
	apply(t, tourney, 1, Check, 0)
	for tourney.Phase != PhaseShowdown {
		apply(t, tourney, tourney.ActingSeat, Check, 0)
	}
	if got := tourney.Result().Rake; got != 0 {
		t.Fatalf("tournament tables are never raked, got %d", got)
	}
}

func TestVoidRestoresPreHandStacks(t *testing.T) {
	t.Parallel()
	tbl := newTestTable(t, []int{1000, 700, 300})
	startHand(t, tbl)
	apply(t, tbl, 0, Raise, 60)
	apply(t, tbl, 1, Call, 0)

	result := tbl.Void("store unavailable")
	if !result.Voided || result.Reason != "store unavailable" {
		t.Fatalf("result = %+v", result)
	}
	if tbl.Phase != PhaseWaiting || tbl.ActingSeat != -1 {
		t.Fatalf("phase %s acting %d", tbl.Phase, tbl.ActingSeat)
	}
	for i, want := range []int{1000, 700, 300} {
		if got := tbl.Seats[i].Chips; got != want {
			t.Errorf("seat %d = %d, want %d", i, got, want)
		}
	}
	for _, d := range result.Deltas {
		if d.Change() != 0 {
			t.Errorf("voided hand moved chips for seat %d", d.Seat)
		}
	}

	startHand(t, tbl)
}

func TestBuildPotsFoldedOverContribution(t *testing.T) {
	t.Parallel()
	seats := []*Player{
		{Seat: 0, TotalBet: 40, InHand: true, AllIn: true},
		{Seat: 1, TotalBet: 60, InHand: true, Folded: true},
		{Seat: 2, TotalBet: 40, InHand: true},
	}
	want := []Pot{{Amount: 140, Eligible: []int{0, 2}}}
	if got := buildPots(seats); !reflect.DeepEqual(got, want) {
		t.Fatalf("pots = %+v, want %+v", got, want)
	}
}
