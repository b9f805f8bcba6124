// Package phh writes hand histories in the Poker Hand History (PHH) TOML
// format.
package phh

import (
	"bytes"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/lox/housepoker/internal/game"
)

// Encode writes the hand history to w in PHH TOML format.
func Encode(w io.Writer, hand *HandHistory) error {
	if hand == nil {
		return fmt.Errorf("phh: hand history is nil")
	}
	enc := toml.NewEncoder(w)
	enc.Indent = "\t"
	return enc.Encode(hand)
}

// EncodeToBytes encodes and returns the result as bytes.
func EncodeToBytes(hand *HandHistory) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, hand); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a PHH document.
func Decode(r io.Reader) (*HandHistory, error) {
	var hand HandHistory
	if _, err := toml.NewDecoder(r).Decode(&hand); err != nil {
		return nil, fmt.Errorf("phh: %w", err)
	}
	return &hand, nil
}

// FormatAction converts a betting action to its PHH string. player is the
// 1-based PHH player index, amount the raise-to total. streetBet is the bet
// to match before the action, which decides whether an all-in is a call or
// a raise.
func FormatAction(player int, action game.Action, amount, streetBet int) string {
	p := fmt.Sprintf("p%d", player)
	switch action {
	case game.Fold:
		return p + " f"
	case game.Check, game.Call:
		return p + " cc"
	case game.AllIn:
		if amount <= streetBet {
			return p + " cc"
		}
		return fmt.Sprintf("%s cbr %d", p, amount)
	case game.Raise:
		return fmt.Sprintf("%s cbr %d", p, amount)
	}
	return fmt.Sprintf("# %s %s %d", p, action, amount)
}
