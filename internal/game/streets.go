package game

import (
	"slices"
)

// closeStreet ends the current betting round: uncalled chips go back, bets
// are collected into pots and the next street is dealt.
func (t *Table) closeStreet() {
	t.returnUncalled()
	t.collectBets()

	if t.liveCount() == 1 {
		t.finishUncontested()
		return
	}
	t.dealNextStreet()
}

// dealNextStreet advances the phase, opening betting when at least two
// players can still act.
func (t *Table) dealNextStreet() {
	switch t.Phase {
	case PhasePreflop:
		t.Phase = PhaseFlop
		t.burnAndReveal(3)
	case PhaseFlop:
		t.Phase = PhaseTurn
		t.burnAndReveal(1)
	case PhaseTurn:
		t.Phase = PhaseRiver
		t.burnAndReveal(1)
	case PhaseRiver:
		t.showdown()
		return
	default:
		return
	}

	t.CurrentBet = 0
	t.MinRaise = t.BigBlind
	t.fullRaises = 0
	for _, p := range t.Seats {
		if p != nil {
			p.actedAt = -1
		}
	}

	if !t.canBet() {
		t.ActingSeat = -1
		return
	}
	t.ActingSeat = t.nextToAct(t.Dealer)
}

// AdvanceRunout deals the next street of an all-in runout. The session calls
// it after a short display delay until the hand completes.
func (t *Table) AdvanceRunout() error {
	if !t.NeedsRunout() {
		return ErrNoRunout
	}
	t.dealNextStreet()
	return nil
}

// RunOut deals every remaining street at once.
func (t *Table) RunOut() {
	for t.NeedsRunout() {
		t.dealNextStreet()
	}
}

func (t *Table) burnAndReveal(n int) {
	if burn, ok := t.Deck.Pop(); ok {
		t.Burned = append(t.Burned, burn)
	}
	cards := t.Deck.Deal(n)
	t.Board = append(t.Board, cards...)
	t.recordBoard(cards)
}

// returnUncalled refunds the part of the largest contribution that nobody
// matched.
func (t *Table) returnUncalled() {
	var top *Player
	highest, second := 0, 0
	for _, p := range t.Seats {
		if p == nil || !p.InHand {
			continue
		}
		switch {
		case p.TotalBet > highest:
			second = highest
			highest = p.TotalBet
			top = p
		case p.TotalBet > second:
			second = p.TotalBet
		}
	}
	if top == nil || !top.live() || highest == second {
		return
	}
	refund := min(highest-second, top.Bet)
	if refund <= 0 {
		return
	}
	top.Bet -= refund
	top.TotalBet -= refund
	top.Chips += refund
	top.AllIn = top.Chips == 0
	t.log = append(t.log, LogEntry{Phase: t.Phase, Seat: top.Seat, Kind: "uncalled", Amount: refund})
}

func (t *Table) collectBets() {
	for _, p := range t.Seats {
		if p != nil {
			p.Bet = 0
		}
	}
	t.Pots = buildPots(t.Seats)
}

// dropEligible removes a folded seat from the pots collected on earlier
// streets. A pot nobody contests any more joins the pot below it.
func (t *Table) dropEligible(seat int) {
	pots := t.Pots[:0]
	carry := 0
	for _, pot := range t.Pots {
		pot.Amount += carry
		carry = 0
		pot.Eligible = slices.DeleteFunc(slices.Clone(pot.Eligible), func(s int) bool { return s == seat })
		switch {
		case len(pot.Eligible) > 0:
			pots = append(pots, pot)
		case len(pots) > 0:
			pots[len(pots)-1].Amount += pot.Amount
		default:
			carry = pot.Amount
		}
	}
	if carry > 0 && len(pots) > 0 {
		pots[len(pots)-1].Amount += carry
	}
	t.Pots = pots
}

// buildPots splits collected contributions into a main pot and side pots.
// Every distinct all-in contribution of a live player closes a stratum; each
// stratum is contested by the live players who reached it. A stratum no live
// player reached is merged into the pot below it.
func buildPots(seats []*Player) []Pot {
	levels := make([]int, 0, len(seats))
	top := 0
	for _, p := range seats {
		if p == nil || !p.InHand {
			continue
		}
		collected := p.TotalBet - p.Bet
		top = max(top, collected)
		if p.live() && p.AllIn && collected > 0 {
			levels = append(levels, collected)
		}
	}
	levels = append(levels, top)
	slices.Sort(levels)
	levels = slices.Compact(levels)

	var pots []Pot
	carry, prev := 0, 0
	for _, level := range levels {
		if level <= prev {
			continue
		}
		pot := Pot{Amount: carry}
		carry = 0
		for _, p := range seats {
			if p == nil || !p.InHand {
				continue
			}
			collected := p.TotalBet - p.Bet
			pot.Amount += max(min(collected, level)-prev, 0)
			if p.live() && collected > prev {
				pot.Eligible = append(pot.Eligible, p.Seat)
			}
		}
		prev = level

		switch {
		case pot.Amount == 0:
		case len(pot.Eligible) == 0 && len(pots) > 0:
			pots[len(pots)-1].Amount += pot.Amount
		case len(pot.Eligible) == 0:
			carry = pot.Amount
		default:
			pots = append(pots, pot)
		}
	}
	if carry > 0 && len(pots) > 0 {
		pots[len(pots)-1].Amount += carry
	}
	return pots
}
