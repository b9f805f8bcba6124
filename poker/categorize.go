package poker

// HoleCardCategory is a coarse label for a starting hand.
type HoleCardCategory string

const (
	CategoryPremium HoleCardCategory = "premium"
	CategoryStrong  HoleCardCategory = "strong"
	CategoryMedium  HoleCardCategory = "medium"
	CategoryWeak    HoleCardCategory = "weak"
	CategoryTrash   HoleCardCategory = "trash"
)

// PreflopStrength scores two hole cards on [0,1] from pairing, suitedness,
// connectedness and high card value.
func PreflopStrength(a, b Card) float64 {
	high, low := rankValue(a.Rank()), rankValue(b.Rank())
	if low > high {
		high, low = low, high
	}
	suited := a.Suit() == b.Suit()

	pick := func(s, o float64) float64 {
		if suited {
			return s
		}
		return o
	}

	switch {
	case high == low:
		switch {
		case high >= 10:
			return 0.95
		case high >= 7:
			return 0.75
		}
		return 0.55
	case high == 14:
		switch {
		case low >= 10:
			return pick(0.88, 0.82)
		case low >= 7:
			return pick(0.65, 0.55)
		}
		return pick(0.45, 0.35)
	case high >= 12 && low >= 10:
		return pick(0.72, 0.65)
	case suited && high-low <= 2:
		return 0.45
	case suited:
		return 0.35
	}
	return 0.2
}

// BestPreflopStrength returns the strongest two-card strength among the hole
// cards, so four-card hands are judged by their best pair of cards.
func BestPreflopStrength(hole []Card) float64 {
	best := 0.0
	for i := 0; i < len(hole); i++ {
		for j := i + 1; j < len(hole); j++ {
			best = max(best, PreflopStrength(hole[i], hole[j]))
		}
	}
	return best
}

// CategorizeStrength maps a preflop strength to its label.
func CategorizeStrength(s float64) HoleCardCategory {
	switch {
	case s > 0.8:
		return CategoryPremium
	case s > 0.6:
		return CategoryStrong
	case s > 0.4:
		return CategoryMedium
	case s > 0.3:
		return CategoryWeak
	}
	return CategoryTrash
}

// rankValue converts 0-12 ranks to 2-14.
func rankValue(rank uint8) int {
	return int(rank) + 2
}
