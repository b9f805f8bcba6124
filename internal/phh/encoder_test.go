package phh_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/internal/phh"
	"github.com/lox/housepoker/internal/randutil"
	"github.com/lox/housepoker/poker"
)

func TestFormatAction(t *testing.T) {
	tests := []struct {
		name      string
		player    int
		action    game.Action
		amount    int
		streetBet int
		want      string
	}{
		{"fold", 1, game.Fold, 0, 10, "p1 f"},
		{"check", 2, game.Check, 0, 0, "p2 cc"},
		{"call", 4, game.Call, 50, 60, "p4 cc"},
		{"raise", 1, game.Raise, 120, 40, "p1 cbr 120"},
		{"all-in raise", 1, game.AllIn, 350, 100, "p1 cbr 350"},
		{"all-in call for less", 3, game.AllIn, 80, 100, "p3 cc"},
	}

	for _, tt := range tests {
		if got := phh.FormatAction(tt.player, tt.action, tt.amount, tt.streetBet); got != tt.want {
			t.Fatalf("%s: got %q want %q", tt.name, got, tt.want)
		}
	}
}

func playedHand(t *testing.T) *game.Table {
	t.Helper()
	deck := poker.NewStackedDeck(poker.MustParseCards("Ah Kd 7c Ks 2d 7d")...)
	tbl := game.NewTable("main", game.WithBlinds(5, 10), game.WithMaxSeats(3), game.WithDeck(deck))
	for i, name := range []string{"alice", "bob", "carol"} {
		if _, err := tbl.Sit(i, &game.Player{UserID: name, Name: name, Chips: 1000}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tbl.StartHand(randutil.New(1)); err != nil {
		t.Fatal(err)
	}
	for _, step := range []struct {
		seat   int
		action game.Action
		amount int
	}{{0, game.Raise, 30}, {1, game.Fold, 0}, {2, game.Fold, 0}} {
		if err := tbl.Apply(step.seat, step.action, step.amount); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func TestFromTable(t *testing.T) {
	tbl := playedHand(t)
	at := time.Date(2025, time.November, 14, 15, 22, 0, 0, time.UTC)

	h, err := phh.FromTable(tbl, at)
	if err != nil {
		t.Fatal(err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"variant", h.Variant, "NT"},
		{"players", h.Players, []string{"bob", "carol", "alice"}},
		{"seats", h.Seats, []int{2, 3, 1}},
		{"blinds", h.BlindsOrStraddles, []int{5, 10, 0}},
		{"starting", h.StartingStacks, []int{1000, 1000, 1000}},
		{"finishing", h.FinishingStacks, []int{995, 990, 1015}},
		{"winnings", h.Winnings, []int{0, 0, 25}},
		{"actions", h.Actions, []string{
			"d dh p1 AhKs",
			"d dh p2 Kd2d",
			"d dh p3 7c7d",
			"p3 cbr 30",
			"p1 f",
			"p2 f",
		}},
		{"time", h.Time, "15:22:00"},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestFromTableRequiresFinishedHand(t *testing.T) {
	tbl := game.NewTable("empty")
	if _, err := phh.FromTable(tbl, time.Now()); err == nil {
		t.Fatal("expected an error for a table without a finished hand")
	}
}

func TestEncodeHandHistory(t *testing.T) {
	hand := &phh.HandHistory{
		Variant:           "NT",
		Table:             "default",
		SeatCount:         3,
		Seats:             []int{1, 2, 3},
		Antes:             []int{0, 0, 0},
		BlindsOrStraddles: []int{1, 2, 0},
		MinBet:            2,
		StartingStacks:    []int{200, 200, 200},
		FinishingStacks:   []int{200, 200, 200},
		Winnings:          []int{0, 0, 0},
		Actions: []string{
			"d dh p1 AhKh",
			"d dh p2 7c2d",
			"d dh p3 QsJs",
			"p1 cbr 6",
			"p2 f",
			"p3 cc",
		},
		Players:  []string{"alice", "bob", "carol"},
		HandID:   "hand-00042",
		Time:     "15:22:00",
		TimeZone: "UTC",
		Day:      14,
		Month:    11,
		Year:     2025,
	}

	var buf bytes.Buffer
	if err := phh.Encode(&buf, hand); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	got := buf.String()
	want := "" +
		"variant = \"NT\"\n" +
		"table = \"default\"\n" +
		"seat_count = 3\n" +
		"seats = [1, 2, 3]\n" +
		"antes = [0, 0, 0]\n" +
		"blinds_or_straddles = [1, 2, 0]\n" +
		"min_bet = 2\n" +
		"starting_stacks = [200, 200, 200]\n" +
		"finishing_stacks = [200, 200, 200]\n" +
		"winnings = [0, 0, 0]\n" +
		"actions = [\"d dh p1 AhKh\", \"d dh p2 7c2d\", \"d dh p3 QsJs\", \"p1 cbr 6\", \"p2 f\", \"p3 cc\"]\n" +
		"players = [\"alice\", \"bob\", \"carol\"]\n" +
		"hand = \"hand-00042\"\n" +
		"time = \"15:22:00\"\n" +
		"time_zone = \"UTC\"\n" +
		"day = 14\n" +
		"month = 11\n" +
		"year = 2025\n"

	if got != want {
		t.Fatalf("Encode output mismatch.\nGot:\n%s\nWant:\n%s", got, want)
	}

	decoded, err := phh.Decode(strings.NewReader(got))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(decoded.Actions, hand.Actions) {
		t.Fatalf("decoded actions %v", decoded.Actions)
	}
}

func TestWriterStoresOneFilePerHand(t *testing.T) {
	dir := t.TempDir()
	w, err := phh.NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	h, err := phh.FromTable(playedHand(t), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	path, err := w.Write(h)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "main", fmt.Sprintf("000001-%s.phh", h.HandID)); path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	back, err := phh.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if back.HandID != h.HandID || len(back.Actions) != len(h.Actions) {
		t.Fatalf("round trip lost data: %+v", back)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "main", "*.tmp.*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}
