package tournament

import (
	"math"
	"sort"

	"github.com/lox/housepoker/internal/store"
)

// FinishOrder ranks entries from first place down. Players still holding
// chips come first by stack, then the eliminated, latest elimination first.
// busted lists eliminated entry ids in the order they went out; entries
// missing from it fall back to their elimination time.
func FinishOrder(entries []*store.Entry, busted []int64) []*store.Entry {
	bustIndex := make(map[int64]int, len(busted))
	for i, id := range busted {
		bustIndex[id] = i
	}

	var alive, out []*store.Entry
	for _, e := range entries {
		switch {
		case e.Status == store.EntryWithdrawn:
		case e.Status == store.EntryEliminated:
			out = append(out, e)
		default:
			alive = append(alive, e)
		}
	}

	sort.SliceStable(alive, func(i, j int) bool {
		return alive[i].ChipStack > alive[j].ChipStack
	})
	sort.SliceStable(out, func(i, j int) bool {
		bi, iok := bustIndex[out[i].ID]
		bj, jok := bustIndex[out[j].ID]
		if iok && jok {
			return bi > bj
		}
		if iok != jok {
			// known late busts rank above unknown ones
			return iok
		}
		ti, tj := out[i].EliminatedAt, out[j].EliminatedAt
		if ti == nil || tj == nil {
			return ti != nil
		}
		return ti.After(*tj)
	})
	return append(alive, out...)
}

// Payouts places entries in finish order and pays each place its share of
// the prize pool, rounded down. Places beyond the curve win nothing.
func Payouts(prizePool int64, curve []store.Payout, order []*store.Entry) []store.Placement {
	share := make(map[int]float64, len(curve))
	for _, p := range curve {
		share[p.Place] = p.Percentage
	}

	placements := make([]store.Placement, 0, len(order))
	for i, e := range order {
		position := i + 1
		prize := int64(math.Floor(float64(prizePool) * share[position] / 100))
		placements = append(placements, store.Placement{
			EntryID:  e.ID,
			UserID:   e.UserID,
			Position: position,
			Prize:    prize,
		})
	}
	return placements
}
