package game

import (
	"github.com/lox/housepoker/poker"
)

// CheckInvariants verifies chip conservation, turn order, deck integrity and
// pot eligibility. It returns the first *InvariantError found.
func (t *Table) CheckInvariants() error {
	if t.Phase == PhaseWaiting || t.preHand == nil {
		return nil
	}

	potTotal, betTotal, contributed, chips := 0, 0, 0, 0
	for _, pot := range t.Pots {
		if pot.Amount < 0 {
			return violation("pot", "negative pot %d", pot.Amount)
		}
		potTotal += pot.Amount
	}
	for _, p := range t.Seats {
		if p == nil {
			continue
		}
		if p.Chips < 0 || p.Bet < 0 || p.TotalBet < 0 {
			return violation("stack", "seat %d chips=%d bet=%d total=%d", p.Seat, p.Chips, p.Bet, p.TotalBet)
		}
		if p.Bet > p.TotalBet {
			return violation("stack", "seat %d bet %d exceeds hand total %d", p.Seat, p.Bet, p.TotalBet)
		}
		betTotal += p.Bet
		contributed += p.TotalBet
		if _, ok := t.preHand[p.Seat]; ok {
			chips += p.Chips
		}
	}

	before := 0
	for _, c := range t.preHand {
		before += c
	}

	if t.result == nil {
		if potTotal+betTotal != contributed {
			return violation("pot", "pots %d + bets %d != contributed %d", potTotal, betTotal, contributed)
		}
		if chips+contributed != before {
			return violation("conservation", "stacks %d + contributed %d != pre-hand %d", chips, contributed, before)
		}
	} else if chips+t.result.Rake != before {
		return violation("conservation", "stacks %d + rake %d != pre-hand %d", chips, t.result.Rake, before)
	}

	if t.Phase.Betting() && t.result == nil {
		if t.ActingSeat >= 0 {
			p := t.player(t.ActingSeat)
			if p == nil || !p.CanAct() {
				return violation("acting", "seat %d cannot act", t.ActingSeat)
			}
		} else if t.canBet() && t.nextToAct(t.Dealer) >= 0 {
			return violation("acting", "no acting seat while betting is open")
		}
	}

	if err := t.checkCards(); err != nil {
		return err
	}

	for i, pot := range t.Pots {
		if len(pot.Eligible) == 0 {
			return violation("eligible", "pot %d has no eligible seats", i)
		}
		for _, seat := range pot.Eligible {
			p := t.player(seat)
			if p == nil || !p.live() || (t.result == nil && p.TotalBet == 0) {
				return violation("eligible", "pot %d lists seat %d which is not contesting", i, seat)
			}
		}
	}
	return nil
}

func (t *Table) checkCards() error {
	if t.Deck == nil {
		return nil
	}
	var dealt poker.Hand
	add := func(where string, cards []poker.Card) error {
		for _, c := range cards {
			if dealt.Contains(c) {
				return violation("deck", "%s card %s dealt twice", where, c)
			}
			dealt = dealt.Add(c)
		}
		return nil
	}
	for _, p := range t.Seats {
		if p != nil && p.InHand {
			if err := add("hole", p.HoleCards); err != nil {
				return err
			}
		}
	}
	if err := add("board", t.Board); err != nil {
		return err
	}
	if err := add("burn", t.Burned); err != nil {
		return err
	}
	if overlap := t.Deck.Undealt() & dealt; overlap != 0 {
		return violation("deck", "dealt cards still in deck: %s", poker.FormatCards(overlap.Cards()))
	}
	return nil
}
