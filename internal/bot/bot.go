// Package bot chooses actions for house-controlled seats.
package bot

import (
	"fmt"
	rand "math/rand/v2"
	"slices"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/poker"
)

// Difficulty tunes how loose and aggressive a bot plays.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// ParseDifficulty validates a roster difficulty. Empty means medium.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case "", Medium:
		return Medium, nil
	case Easy, Hard:
		return Difficulty(s), nil
	}
	return Medium, fmt.Errorf("unknown bot difficulty %q", s)
}

// Decision is the action a bot submits. Amount is a raise-to total.
type Decision struct {
	Action    game.Action
	Amount    int
	Reasoning string
}

type profile struct {
	shift     float64 // added to every preflop strength threshold
	raiseFreq float64 // premium hands preflop
	valueFreq float64 // trips or better postflop
	callFreq  float64 // scales the speculative call frequencies
	bluffFreq float64
}

var profiles = map[Difficulty]profile{
	Easy:   {shift: -0.1, raiseFreq: 0.4, valueFreq: 0.4, callFreq: 1.5, bluffFreq: 0},
	Medium: {shift: 0, raiseFreq: 0.7, valueFreq: 0.6, callFreq: 1, bluffFreq: 0.1},
	Hard:   {shift: 0.05, raiseFreq: 0.7, valueFreq: 0.7, callFreq: 0.5, bluffFreq: 0.2},
}

// Decide picks a legal action for seat. It only reads the table; the caller
// applies the decision through Table.Apply like any human action.
func Decide(seat int, t *game.Table, rng *rand.Rand) Decision {
	p := t.Player(seat)
	legal := t.LegalActions(seat)
	if p == nil || len(legal.Actions) == 0 {
		return Decision{Action: game.Fold, Reasoning: "not acting"}
	}

	difficulty, err := ParseDifficulty(p.Difficulty)
	if err != nil {
		difficulty = Medium
	}
	prof := profiles[difficulty]

	var d Decision
	if t.Phase == game.PhasePreflop {
		d = preflop(p, t, legal, prof, rng)
	} else {
		d = postflop(p, t, legal, prof, rng)
	}
	return Legalize(d, p, legal)
}

func preflop(p *game.Player, t *game.Table, legal game.Legal, prof profile, rng *rand.Rand) Decision {
	strength := poker.BestPreflopStrength(p.HoleCards)
	toCall := legal.CallAmount
	roll := rng.Float64()

	switch {
	case strength > 0.8+prof.shift:
		if roll < prof.raiseFreq {
			to := t.BigBlind * (3 + rng.IntN(3))
			return Decision{Action: game.Raise, Amount: to, Reasoning: fmt.Sprintf("premium %.2f", strength)}
		}
		return Decision{Action: game.Call, Reasoning: "premium flat"}
	case strength > 0.5+prof.shift:
		if toCall <= 3*t.BigBlind || roll < 0.3*prof.callFreq {
			return Decision{Action: game.Call, Reasoning: "playable"}
		}
	case strength > 0.3+prof.shift:
		if toCall <= t.BigBlind || roll < 0.15*prof.callFreq {
			return Decision{Action: game.Call, Reasoning: "speculative"}
		}
	}
	return Decision{Action: game.Fold, Reasoning: fmt.Sprintf("weak %.2f", strength)}
}

func postflop(p *game.Player, t *game.Table, legal game.Legal, prof profile, rng *rand.Rand) Decision {
	var hv poker.HandValue
	if t.Variant == game.Omaha {
		hv = poker.EvaluateOmaha(p.HoleCards, t.Board)
	} else {
		hv = poker.Evaluate(append(slices.Clone(p.HoleCards), t.Board...)...)
	}
	pot := t.TotalPot()
	toCall := legal.CallAmount
	roll := rng.Float64()

	switch {
	case hv.Category >= poker.ThreeOfAKind:
		if roll < prof.valueFreq {
			size := int(float64(pot) * (0.5 + rng.Float64()*0.5))
			return Decision{Action: game.Raise, Amount: t.CurrentBet + size, Reasoning: "value " + hv.Category.String()}
		}
		return Decision{Action: game.Call, Reasoning: "slowplay " + hv.Category.String()}
	case hv.Category >= poker.OnePair:
		if toCall <= pot/2 || roll < 0.3*prof.callFreq {
			return Decision{Action: game.Call, Reasoning: "pair"}
		}
		return Decision{Action: game.Fold, Reasoning: "pair facing a big bet"}
	}

	if toCall == 0 {
		return Decision{Action: game.Check, Reasoning: "nothing"}
	}
	if toCall <= t.BigBlind && roll < 0.3*prof.callFreq {
		return Decision{Action: game.Call, Reasoning: "cheap look"}
	}
	if roll < prof.bluffFreq {
		return Decision{Action: game.Raise, Amount: t.CurrentBet + pot*6/10, Reasoning: "bluff"}
	}
	return Decision{Action: game.Fold, Reasoning: "nothing"}
}

// Legalize turns any decision into one Table.Apply accepts for this seat:
// raises are clamped to the legal range or downgraded, free folds become
// checks and calls with nothing owed become checks.
func Legalize(d Decision, p *game.Player, legal game.Legal) Decision {
	stackTo := p.Bet + p.Chips
	switch d.Action {
	case game.Raise, game.AllIn:
		if d.Action == game.AllIn {
			d.Amount = stackTo
		}
		if !legal.CanRaise {
			return Legalize(Decision{Action: game.Call, Reasoning: d.Reasoning}, p, legal)
		}
		d.Amount = min(max(d.Amount, legal.MinRaiseTo), legal.MaxRaiseTo)
		if d.Amount >= stackTo && legal.Allows(game.AllIn) {
			return Decision{Action: game.AllIn, Amount: stackTo, Reasoning: d.Reasoning}
		}
		d.Action = game.Raise
		return d
	case game.Call:
		if legal.CallAmount == 0 {
			return Decision{Action: game.Check, Reasoning: d.Reasoning}
		}
		return Decision{Action: game.Call, Amount: legal.CallAmount, Reasoning: d.Reasoning}
	case game.Check:
		if !legal.Allows(game.Check) {
			return Decision{Action: game.Fold, Reasoning: d.Reasoning}
		}
		return d
	}
	if legal.Allows(game.Check) {
		return Decision{Action: game.Check, Reasoning: d.Reasoning}
	}
	return Decision{Action: game.Fold, Reasoning: d.Reasoning}
}
