package poker

import (
	"slices"
)

// Category enumerates hand classes from weakest to strongest.
type Category uint8

const (
	HighCard Category = iota
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

var categoryNames = [...]string{
	"High Card",
	"One Pair",
	"Two Pair",
	"Three of a Kind",
	"Straight",
	"Flush",
	"Full House",
	"Four of a Kind",
	"Straight Flush",
	"Royal Flush",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "Unknown"
}

// HandValue is the best five card hand found for a player. Score orders any
// two hands with a single comparison: higher wins, equal scores tie.
type HandValue struct {
	Category Category
	Score    uint32
	Best     []Card
}

// Layout: category in bits 20-23, then five 4-bit kicker ranks (rank+2, so 2..14),
// most significant first.
const categoryShift = 20

// Evaluate returns the best 5-card hand contained in cards by scoring every
// 5-card subset. With fewer than five cards the available cards are scored as
// they stand (no straights or flushes).
func Evaluate(cards ...Card) HandValue {
	n := len(cards)
	if n < 5 {
		cat, score := scoreCards(cards)
		return HandValue{Category: cat, Score: score, Best: slices.Clone(cards)}
	}

	var best HandValue
	var combo [5]Card
	for a := 0; a < n-4; a++ {
		for b := a + 1; b < n-3; b++ {
			for c := b + 1; c < n-2; c++ {
				for d := c + 1; d < n-1; d++ {
					for e := d + 1; e < n; e++ {
						combo = [5]Card{cards[a], cards[b], cards[c], cards[d], cards[e]}
						cat, score := scoreCards(combo[:])
						if best.Best == nil || score > best.Score {
							best = HandValue{Category: cat, Score: score, Best: slices.Clone(combo[:])}
						}
					}
				}
			}
		}
	}
	return best
}

// EvaluateOmaha returns the best hand made from exactly two hole cards and
// three board cards.
func EvaluateOmaha(hole, board []Card) HandValue {
	if len(board) < 3 || len(hole) < 2 {
		return Evaluate(append(slices.Clone(hole), board...)...)
	}

	var best HandValue
	var combo [5]Card
	for h1 := 0; h1 < len(hole)-1; h1++ {
		for h2 := h1 + 1; h2 < len(hole); h2++ {
			for b1 := 0; b1 < len(board)-2; b1++ {
				for b2 := b1 + 1; b2 < len(board)-1; b2++ {
					for b3 := b2 + 1; b3 < len(board); b3++ {
						combo = [5]Card{hole[h1], hole[h2], board[b1], board[b2], board[b3]}
						cat, score := scoreCards(combo[:])
						if best.Best == nil || score > best.Score {
							best = HandValue{Category: cat, Score: score, Best: slices.Clone(combo[:])}
						}
					}
				}
			}
		}
	}
	return best
}

// Compare returns 1 if a beats b, -1 if b beats a and 0 on a tie.
func Compare(a, b HandValue) int {
	switch {
	case a.Score > b.Score:
		return 1
	case a.Score < b.Score:
		return -1
	}
	return 0
}

type rankGroup struct {
	rank  uint8
	count int
}

// scoreCards classifies up to five cards.
func scoreCards(cards []Card) (Category, uint32) {
	var counts [13]int
	suit := cards[0].Suit()
	flush := len(cards) == 5
	for _, c := range cards {
		counts[c.Rank()]++
		if c.Suit() != suit {
			flush = false
		}
	}

	groups := make([]rankGroup, 0, 5)
	for r := 12; r >= 0; r-- {
		if counts[r] > 0 {
			groups = append(groups, rankGroup{rank: uint8(r), count: counts[r]})
		}
	}
	slices.SortStableFunc(groups, func(a, b rankGroup) int {
		return b.count - a.count
	})

	straightHigh, straight := straightHighCard(groups, len(cards))

	switch {
	case straight && flush && straightHigh == Ace:
		return RoyalFlush, pack(RoyalFlush, Ace)
	case straight && flush:
		return StraightFlush, pack(StraightFlush, straightHigh)
	case groups[0].count == 4:
		return FourOfAKind, pack(FourOfAKind, groupRanks(groups)...)
	case groups[0].count == 3 && len(groups) > 1 && groups[1].count == 2:
		return FullHouse, pack(FullHouse, groupRanks(groups)...)
	case flush:
		return Flush, pack(Flush, groupRanks(groups)...)
	case straight:
		return Straight, pack(Straight, straightHigh)
	case groups[0].count == 3:
		return ThreeOfAKind, pack(ThreeOfAKind, groupRanks(groups)...)
	case groups[0].count == 2 && len(groups) > 1 && groups[1].count == 2:
		return TwoPair, pack(TwoPair, groupRanks(groups)...)
	case groups[0].count == 2:
		return OnePair, pack(OnePair, groupRanks(groups)...)
	}
	return HighCard, pack(HighCard, groupRanks(groups)...)
}

// straightHighCard reports the top rank of a five distinct rank straight.
// The wheel (A-2-3-4-5) is five high.
func straightHighCard(groups []rankGroup, n int) (uint8, bool) {
	if n != 5 || len(groups) != 5 {
		return 0, false
	}
	hi, lo := groups[0].rank, groups[4].rank
	if hi-lo == 4 {
		return hi, true
	}
	if hi == Ace && groups[1].rank == Five && lo == Two {
		return Five, true
	}
	return 0, false
}

func groupRanks(groups []rankGroup) []uint8 {
	ranks := make([]uint8, len(groups))
	for i, g := range groups {
		ranks[i] = g.rank
	}
	return ranks
}

func pack(cat Category, ranks ...uint8) uint32 {
	score := uint32(cat) << categoryShift
	for i := 0; i < 5 && i < len(ranks); i++ {
		score |= uint32(ranks[i]+2) << (16 - 4*i)
	}
	return score
}
