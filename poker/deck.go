package poker

import (
	rand "math/rand/v2"
)

// Deck is a shuffled 52-card deck consumed from the end.
type Deck struct {
	cards []Card
	dealt Hand
}

// NewDeck creates a deck shuffled with rng. The rng is required so that
// every deal is reproducible from its seed.
func NewDeck(rng *rand.Rand) *Deck {
	if rng == nil {
		panic("poker: rng is required to shuffle a deck")
	}
	d := &Deck{cards: make([]Card, 0, 52)}
	for suit := range uint8(4) {
		for rank := range uint8(13) {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	// Fisher-Yates
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return d
}

// NewStackedDeck builds a deck whose next cards are top, in order, followed by
// the remaining cards. Used to script deals in tests.
func NewStackedDeck(top ...Card) *Deck {
	used := NewHand(top...)
	d := &Deck{cards: make([]Card, 0, 52)}
	for suit := uint8(4); suit > 0; suit-- {
		for rank := uint8(13); rank > 0; rank-- {
			c := NewCard(rank-1, suit-1)
			if !used.Contains(c) {
				d.cards = append(d.cards, c)
			}
		}
	}
	for i := len(top) - 1; i >= 0; i-- {
		d.cards = append(d.cards, top[i])
	}
	return d
}

// Pop removes and returns the card at the end of the deck.
func (d *Deck) Pop() (Card, bool) {
	if len(d.cards) == 0 {
		return 0, false
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	d.dealt |= Hand(c)
	return c, true
}

// Deal pops n cards, or returns nil without consuming anything if fewer remain.
func (d *Deck) Deal(n int) []Card {
	if n > len(d.cards) {
		return nil
	}
	out := make([]Card, n)
	for i := range out {
		out[i], _ = d.Pop()
	}
	return out
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Contains reports whether c is still undealt.
func (d *Deck) Contains(c Card) bool {
	for _, dc := range d.cards {
		if dc == c {
			return true
		}
	}
	return false
}

// Undealt returns the set of cards still in the deck.
func (d *Deck) Undealt() Hand {
	return NewHand(d.cards...)
}

// Dealt returns the set of cards popped so far.
func (d *Deck) Dealt() Hand {
	return d.dealt
}

// Cards returns a copy of the remaining cards, bottom first.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// RestoreDeck rebuilds a deck from a saved bottom-first card list.
func RestoreDeck(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	all := Hand(0)
	for suit := range uint8(4) {
		for rank := range uint8(13) {
			all |= Hand(NewCard(rank, suit))
		}
	}
	d.dealt = all &^ NewHand(cards...)
	return d
}
