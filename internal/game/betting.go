package game

import (
	"fmt"
	"strings"
)

// Phase is the stage of the current hand.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhasePreflop
	PhaseFlop
	PhaseTurn
	PhaseRiver
	PhaseShowdown
)

func (p Phase) String() string {
	if p < PhaseWaiting || p > PhaseShowdown {
		return "unknown"
	}
	return [...]string{"waiting", "preflop", "flop", "turn", "river", "showdown"}[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for q := PhaseWaiting; q <= PhaseShowdown; q++ {
		if q.String() == string(b) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// Betting reports whether players can act in this phase.
func (p Phase) Betting() bool {
	return p >= PhasePreflop && p <= PhaseRiver
}

// Action represents a player action
type Action int

const (
	Fold Action = iota
	Check
	Call
	Raise
	AllIn
)

func (a Action) String() string {
	if a < Fold || a > AllIn {
		return "unknown"
	}
	return [...]string{"fold", "check", "call", "raise", "allin"}[a]
}

// MarshalText encodes the action by name.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes an action name.
func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction accepts the wire names of actions. "bet" is an alias for raise
// and "all_in" for allin.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fold":
		return Fold, nil
	case "check":
		return Check, nil
	case "call":
		return Call, nil
	case "raise", "bet":
		return Raise, nil
	case "allin", "all_in", "all-in":
		return AllIn, nil
	}
	return Fold, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Variant selects the dealing and betting structure.
type Variant int

const (
	// Holdem is no-limit with two hole cards.
	Holdem Variant = iota
	// Omaha is pot-limit with four hole cards, exactly two of which play.
	Omaha
)

func (v Variant) String() string {
	if v == Omaha {
		return "omaha"
	}
	return "holdem"
}

// HoleCards returns the number of cards dealt to each player.
func (v Variant) HoleCards() int {
	if v == Omaha {
		return 4
	}
	return 2
}

// PotLimit reports whether raises are capped by the pot.
func (v Variant) PotLimit() bool {
	return v == Omaha
}

// ParseVariant maps a config name to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "", "holdem", "nlhe", "texas":
		return Holdem, nil
	case "omaha", "plo":
		return Omaha, nil
	}
	return Holdem, fmt.Errorf("unknown variant %q", s)
}

// Legal describes what the acting seat may do. Raise amounts are raise-to
// totals for the street.
type Legal struct {
	Actions    []Action `json:"actions"`
	CallAmount int      `json:"call_amount"`
	MinRaiseTo int      `json:"min_raise_to"`
	MaxRaiseTo int      `json:"max_raise_to"`
	CanRaise   bool     `json:"can_raise"`
}

// Allows reports whether a is among the legal actions.
func (l Legal) Allows(a Action) bool {
	for _, la := range l.Actions {
		if la == a {
			return true
		}
	}
	return false
}

// LegalActions computes the legal moves for seat. It returns the zero value
// when the seat cannot act.
func (t *Table) LegalActions(seat int) Legal {
	p := t.player(seat)
	if p == nil || !t.Phase.Betting() || !p.live() || p.AllIn {
		return Legal{}
	}

	toCall := max(t.CurrentBet-p.Bet, 0)
	stackTo := p.Bet + p.Chips

	l := Legal{
		CallAmount: min(toCall, p.Chips),
		MinRaiseTo: min(t.CurrentBet+t.MinRaise, stackTo),
		MaxRaiseTo: stackTo,
	}
	if t.Variant.PotLimit() {
		l.MaxRaiseTo = min(stackTo, t.CurrentBet+t.TotalPot()+toCall)
	}
	l.CanRaise = stackTo > t.CurrentBet && p.actedAt < t.fullRaises && t.othersCanAct(seat)

	l.Actions = append(l.Actions, Fold)
	if toCall == 0 {
		l.Actions = append(l.Actions, Check)
	} else {
		l.Actions = append(l.Actions, Call)
	}
	if l.CanRaise && l.MinRaiseTo < stackTo {
		l.Actions = append(l.Actions, Raise)
	}
	if p.Chips > 0 && (stackTo <= t.CurrentBet || (l.CanRaise && stackTo <= l.MaxRaiseTo)) {
		l.Actions = append(l.Actions, AllIn)
	}
	return l
}

// DefaultAction is the timeout fallback for seat: check when free, otherwise fold.
func (t *Table) DefaultAction(seat int) Action {
	if p := t.player(seat); p != nil && t.CurrentBet > p.Bet {
		return Fold
	}
	return Check
}

// Apply validates and applies an action for seat. amount is only read for
// Raise, where it is the raise-to total. A rejected action returns an
// *ActionError and leaves the table untouched.
func (t *Table) Apply(seat int, action Action, amount int) error {
	if !t.Phase.Betting() || t.ActingSeat < 0 {
		return reject(seat, action, ErrNoHand)
	}
	if seat != t.ActingSeat {
		return reject(seat, action, ErrNotYourTurn)
	}
	p := t.Seats[seat]
	legal := t.LegalActions(seat)

	switch action {
	case Fold:
		p.Folded = true
		t.dropEligible(seat)
		t.record(seat, Fold, 0)

	case Check, Call:
		if legal.CallAmount == 0 {
			t.record(seat, Check, 0)
			break
		}
		if action == Check {
			return reject(seat, action, ErrCannotCheck)
		}
		t.pay(p, legal.CallAmount)
		t.record(seat, Call, legal.CallAmount)

	case Raise:
		stackTo := p.Bet + p.Chips
		switch {
		case !legal.CanRaise:
			return reject(seat, action, ErrRaiseNotReopened)
		case amount > stackTo:
			return reject(seat, action, ErrInsufficientChips)
		case amount > legal.MaxRaiseTo:
			return reject(seat, action, ErrRaiseTooLarge)
		case amount <= t.CurrentBet, amount < legal.MinRaiseTo:
			return reject(seat, action, ErrRaiseTooSmall)
		}
		t.raiseTo(p, amount)

	case AllIn:
		stackTo := p.Bet + p.Chips
		if p.Chips == 0 {
			return reject(seat, action, ErrInsufficientChips)
		}
		if stackTo <= t.CurrentBet {
			t.pay(p, p.Chips)
			t.record(seat, AllIn, stackTo)
			break
		}
		if !legal.CanRaise {
			return reject(seat, action, ErrRaiseNotReopened)
		}
		if stackTo > legal.MaxRaiseTo {
			return reject(seat, action, ErrRaiseTooLarge)
		}
		t.raiseTo(p, stackTo)

	default:
		return reject(seat, action, ErrUnknownAction)
	}

	p.actedAt = t.fullRaises
	t.afterAction(seat)
	return nil
}

// Forfeit folds seat out of turn, used when a player leaves mid-hand.
// All-in players keep their claim on the pot.
func (t *Table) Forfeit(seat int) {
	p := t.player(seat)
	if p == nil || !t.Phase.Betting() || !p.live() || p.AllIn {
		return
	}
	if seat == t.ActingSeat {
		_ = t.Apply(seat, Fold, 0)
		return
	}
	p.Folded = true
	t.dropEligible(seat)
	t.record(seat, Fold, 0)
	if t.liveCount() == 1 {
		t.finishUncontested()
		return
	}
	if t.ActingSeat < 0 {
		return
	}
	// the fold may have left the acting seat with nobody to answer
	n := len(t.Seats)
	if next := t.nextToAct((t.ActingSeat + n - 1) % n); next >= 0 {
		t.ActingSeat = next
		return
	}
	t.closeStreet()
}

func (t *Table) raiseTo(p *Player, to int) {
	increment := to - t.CurrentBet
	t.pay(p, to-p.Bet)
	if increment >= t.MinRaise {
		t.MinRaise = increment
		t.fullRaises++
	}
	t.CurrentBet = to
	action := Raise
	if p.Chips == 0 {
		action = AllIn
	}
	t.record(p.Seat, action, to)
}

func (t *Table) pay(p *Player, amount int) {
	amount = min(amount, p.Chips)
	p.Chips -= amount
	p.Bet += amount
	p.TotalBet += amount
	if p.Chips == 0 {
		p.AllIn = true
	}
}

// afterAction moves the turn on or closes the street.
func (t *Table) afterAction(seat int) {
	if t.liveCount() == 1 {
		t.finishUncontested()
		return
	}
	if next := t.nextToAct(seat); next >= 0 {
		t.ActingSeat = next
		return
	}
	t.closeStreet()
}

// nextToAct returns the first seat clockwise after from that still owes an
// action this street, or -1 when the street is complete.
func (t *Table) nextToAct(from int) int {
	active := 0
	for _, p := range t.Seats {
		if p != nil && p.live() && !p.AllIn {
			active++
		}
	}
	if active == 0 {
		return -1
	}
	if active == 1 {
		for _, p := range t.Seats {
			if p != nil && p.live() && !p.AllIn && p.Bet < t.CurrentBet {
				return p.Seat
			}
		}
		return -1
	}

	n := len(t.Seats)
	for i := 1; i <= n; i++ {
		p := t.Seats[(from+i)%n]
		if p == nil || !p.live() || p.AllIn {
			continue
		}
		if p.actedAt != t.fullRaises || p.Bet < t.CurrentBet {
			return p.Seat
		}
	}
	return -1
}

// othersCanAct reports whether any other live seat could respond to a raise.
func (t *Table) othersCanAct(seat int) bool {
	for _, p := range t.Seats {
		if p != nil && p.Seat != seat && p.live() && !p.AllIn {
			return true
		}
	}
	return false
}

func (t *Table) canBet() bool {
	active := 0
	for _, p := range t.Seats {
		if p != nil && p.live() && !p.AllIn {
			active++
		}
	}
	return active >= 2
}
