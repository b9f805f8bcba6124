package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/lox/housepoker/poker"
)

// EvalCmd ranks one or more hands against a shared board.
type EvalCmd struct {
	Hands []string `arg:"" name:"hand" help:"Hole cards per player, e.g. 'As Kd'"`
	Board string   `short:"b" help:"Community cards, e.g. 'Qh Jh Th 2c'"`
	Omaha bool     `help:"Play exactly two hole cards (implied by four hole cards)"`
}

func (c *EvalCmd) Run() error {
	return c.run(os.Stdout)
}

func (c *EvalCmd) run(w io.Writer) error {
	board, err := poker.ParseCards(c.Board)
	if err != nil {
		return errors.Wrap(err, "board")
	}
	seen := poker.NewHand(board...)
	if seen.Count() != len(board) {
		return errors.New("duplicate card on the board")
	}

	values := make([]poker.HandValue, len(c.Hands))
	for i, h := range c.Hands {
		hole, err := poker.ParseCards(h)
		if err != nil {
			return errors.Wrapf(err, "hand %d", i+1)
		}
		for _, card := range hole {
			if seen.Contains(card) {
				return errors.Errorf("card %s dealt twice", card)
			}
			seen = seen.Add(card)
		}
		if c.Omaha || len(hole) == 4 {
			values[i] = poker.EvaluateOmaha(hole, board)
		} else {
			values[i] = poker.Evaluate(append(hole, board...)...)
		}
	}

	var best poker.HandValue
	for _, v := range values {
		if poker.Compare(v, best) > 0 {
			best = v
		}
	}
	for i, v := range values {
		marker := ""
		if len(values) > 1 && poker.Compare(v, best) == 0 {
			marker = "  *"
		}
		fmt.Fprintf(w, "%-16s %-16s %s%s\n", c.Hands[i], v.Category, poker.FormatCards(v.Best), marker)
	}
	return nil
}
