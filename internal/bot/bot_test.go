package bot

import (
	"fmt"
	rand "math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/poker"
)

func newBotTable(t *testing.T, variant game.Variant, difficulty Difficulty, stacks ...int) *game.Table {
	t.Helper()
	tbl := game.NewTable("bots", game.WithBlinds(10, 20), game.WithMaxSeats(len(stacks)), game.WithVariant(variant))
	for i, chips := range stacks {
		_, err := tbl.Sit(i, &game.Player{
			UserID:     fmt.Sprintf("bot-%d", i),
			Name:       fmt.Sprintf("Bot %d", i),
			IsBot:      true,
			Difficulty: string(difficulty),
			Chips:      chips,
		})
		require.NoError(t, err)
	}
	return tbl
}

func TestDecisionsAreAlwaysLegal(t *testing.T) {
	t.Parallel()
	for _, variant := range []game.Variant{game.Holdem, game.Omaha} {
		for _, difficulty := range []Difficulty{Easy, Medium, Hard} {
			t.Run(variant.String()+"/"+string(difficulty), func(t *testing.T) {
				t.Parallel()
				rng := rand.New(rand.NewPCG(5, uint64(len(difficulty))))
				tbl := newBotTable(t, variant, difficulty, 1500, 1500, 800, 2500, 300, 1500)

				for hand := 0; hand < 150; hand++ {
					if tbl.Funded() < 2 {
						for _, p := range tbl.Players() {
							p.Chips = 1500
						}
					}
					require.NoError(t, tbl.StartHand(rng))
					for steps := 0; tbl.Result() == nil; steps++ {
						require.Less(t, steps, 200, "hand did not finish")
						if tbl.NeedsRunout() {
							tbl.RunOut()
							continue
						}
						seat := tbl.ActingSeat
						d := Decide(seat, tbl, rng)
						require.NoError(t, tbl.Apply(seat, d.Action, d.Amount), "decision %+v", d)
						require.NoError(t, tbl.CheckInvariants())
					}
				}
			})
		}
	}
}

func TestPremiumHandsRaisePreflop(t *testing.T) {
	t.Parallel()
	raises := 0
	for i := 0; i < 200; i++ {
		rng := rand.New(rand.NewPCG(uint64(i), 3))
		tbl := newBotTable(t, game.Holdem, Medium, 1000, 1000, 1000)
		tbl.StackDeck(poker.NewStackedDeck(poker.MustParseCards("2c 3d As 7h 9d Ad")...))
		require.NoError(t, tbl.StartHand(rng))
		require.Equal(t, 0, tbl.ActingSeat)

		d := Decide(0, tbl, rng)
		switch d.Action {
		case game.Raise:
			raises++
			assert.GreaterOrEqual(t, d.Amount, 60)
			assert.LessOrEqual(t, d.Amount, 100)
		case game.Call:
		default:
			t.Fatalf("pocket aces should never fold: %+v", d)
		}
	}
	assert.InDelta(t, 140, raises, 40, "premium hands raise about 70%% of the time")
}

func TestTrashFoldsPreflopButChecksWhenFree(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 1))

	// Seat 0 acts first with 7-2 offsuit facing the big blind.
	tbl := newBotTable(t, game.Holdem, Medium, 1000, 1000, 1000)
	tbl.StackDeck(poker.NewStackedDeck(poker.MustParseCards("Kc Qd 7s Kd Qh 2h")...))
	require.NoError(t, tbl.StartHand(rng))
	d := Decide(0, tbl, rng)
	assert.Equal(t, game.Fold, d.Action)

	// Heads-up big blind with 7-2 when the small blind limps: folding is free, so check.
	hu := newBotTable(t, game.Holdem, Medium, 1000, 1000)
	hu.StackDeck(poker.NewStackedDeck(poker.MustParseCards("7s Kd 2h Kh")...))
	require.NoError(t, hu.StartHand(rng))
	require.NoError(t, hu.Apply(0, game.Call, 0))
	d = Decide(1, hu, rng)
	assert.Equal(t, game.Check, d.Action)
}

func TestLegalize(t *testing.T) {
	t.Parallel()
	player := &game.Player{Chips: 480, Bet: 20}
	open := game.Legal{
		Actions:    []game.Action{game.Fold, game.Call, game.Raise, game.AllIn},
		CallAmount: 40,
		MinRaiseTo: 120,
		MaxRaiseTo: 500,
		CanRaise:   true,
	}
	closed := game.Legal{
		Actions:    []game.Action{game.Fold, game.Call},
		CallAmount: 40,
		CanRaise:   false,
	}
	free := game.Legal{
		Actions:    []game.Action{game.Fold, game.Check, game.Raise, game.AllIn},
		MinRaiseTo: 20,
		MaxRaiseTo: 500,
		CanRaise:   true,
	}

	tests := []struct {
		name  string
		in    Decision
		legal game.Legal
		want  Decision
	}{
		{"raise below minimum is lifted", Decision{Action: game.Raise, Amount: 50}, open, Decision{Action: game.Raise, Amount: 120}},
		{"raise beyond stack becomes all-in", Decision{Action: game.Raise, Amount: 9000}, open, Decision{Action: game.AllIn, Amount: 500}},
		{"raise when closed calls", Decision{Action: game.Raise, Amount: 200}, closed, Decision{Action: game.Call, Amount: 40}},
		{"free fold checks", Decision{Action: game.Fold}, free, Decision{Action: game.Check}},
		{"free call checks", Decision{Action: game.Call}, free, Decision{Action: game.Check}},
		{"check facing bet folds", Decision{Action: game.Check}, open, Decision{Action: game.Fold}},
		{"call carries amount", Decision{Action: game.Call}, open, Decision{Action: game.Call, Amount: 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Legalize(tt.in, player, tt.legal)
			assert.Equal(t, tt.want.Action, got.Action)
			assert.Equal(t, tt.want.Amount, got.Amount)
		})
	}
}

func TestParseDifficulty(t *testing.T) {
	t.Parallel()
	d, err := ParseDifficulty("")
	require.NoError(t, err)
	assert.Equal(t, Medium, d)

	d, err = ParseDifficulty("hard")
	require.NoError(t, err)
	assert.Equal(t, Hard, d)

	_, err = ParseDifficulty("nightmare")
	assert.Error(t, err)
}
