package game

import (
	"slices"

	"github.com/lox/housepoker/poker"
)

// Player is one occupied seat. It is owned by its Table and only changed
// through Table methods.
type Player struct {
	Seat       int
	UserID     string
	Name       string
	IsBot      bool
	Difficulty string
	Chips      int
	HoleCards  []poker.Card
	Bet        int // this street
	TotalBet   int // this hand
	Folded     bool
	AllIn      bool
	LastAction string
	// SittingOut marks a disconnected player. They stay in the deal and act
	// by default after the grace period.
	SittingOut bool
	InHand     bool
	Revealed   bool

	// value of Table.fullRaises when this seat last acted, -1 before acting
	actedAt int
}

// live reports whether the player still contests the current hand.
func (p *Player) live() bool {
	return p.InHand && !p.Folded
}

// Live is the exported form of live for views and bots.
func (p *Player) Live() bool { return p.live() }

// CanAct reports whether the player could still put chips in.
func (p *Player) CanAct() bool {
	return p.live() && !p.AllIn
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	cp := *p
	cp.HoleCards = slices.Clone(p.HoleCards)
	return &cp
}

func (p *Player) resetForHand(inHand bool) {
	p.Bet = 0
	p.TotalBet = 0
	p.Folded = false
	p.AllIn = false
	p.LastAction = ""
	p.HoleCards = nil
	p.Revealed = false
	p.InHand = inHand
	p.actedAt = -1
}
