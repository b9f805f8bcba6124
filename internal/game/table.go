package game

import (
	rand "math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/lox/housepoker/poker"
)

// DefaultMaxSeats is the seat count of a full ring table.
const DefaultMaxSeats = 9

// RakeConfig is the house fee taken from cash table pots.
type RakeConfig struct {
	Percentage int // of the pot, 0-100
	Cap        int // 0 for no cap
	MinPot     int // pots below this are not raked
}

// Pot is the main pot or a side pot.
type Pot struct {
	Amount   int   `json:"amount"`
	Eligible []int `json:"eligible"`
}

// Table is the authoritative state of one table. It is not safe for
// concurrent use; a table session serialises access to it.
type Table struct {
	ID           string
	TournamentID int64
	Variant      Variant
	Phase        Phase
	Board        []poker.Card
	Burned       []poker.Card
	Deck         *poker.Deck
	Seats        []*Player
	Pots         []Pot

	CurrentBet     int
	MinRaise       int
	Dealer         int
	SmallBlindSeat int
	BigBlindSeat   int
	ActingSeat     int
	ActionDeadline time.Time

	HandNumber int
	HandID     string
	SmallBlind int
	BigBlind   int
	Rake       RakeConfig

	pendingSB, pendingBB int
	fullRaises           int
	preHand              map[int]int
	log                  []LogEntry
	nextDeck             *poker.Deck
	result               *HandResult
}

// Option configures a Table during creation.
type Option func(*Table)

// WithTournament marks the table as part of a tournament. Tournament tables
// are never raked.
func WithTournament(id int64) Option {
	return func(t *Table) { t.TournamentID = id }
}

// WithVariant selects holdem or omaha.
func WithVariant(v Variant) Option {
	return func(t *Table) { t.Variant = v }
}

// WithBlinds sets the opening blinds.
func WithBlinds(small, big int) Option {
	return func(t *Table) {
		t.SmallBlind, t.BigBlind = small, big
		t.pendingSB, t.pendingBB = small, big
	}
}

// WithRake enables rake on a cash table.
func WithRake(r RakeConfig) Option {
	return func(t *Table) { t.Rake = r }
}

// WithMaxSeats sets the number of seats.
func WithMaxSeats(n int) Option {
	return func(t *Table) {
		if n >= 2 {
			t.Seats = make([]*Player, n)
		}
	}
}

// WithDeck makes the next hand use deck instead of a fresh shuffle. Only the
// next hand is affected.
func WithDeck(deck *poker.Deck) Option {
	return func(t *Table) { t.nextDeck = deck }
}

// NewTable creates an empty table waiting for players.
//
// Example:
//
//	t := game.NewTable("main", game.WithBlinds(5, 10), game.WithMaxSeats(6))
//	t.Sit(-1, &game.Player{UserID: "u1", Name: "alice", Chips: 1000})
func NewTable(id string, opts ...Option) *Table {
	t := &Table{
		ID:             id,
		Seats:          make([]*Player, DefaultMaxSeats),
		SmallBlind:     5,
		BigBlind:       10,
		pendingSB:      5,
		pendingBB:      10,
		Dealer:         -1,
		SmallBlindSeat: -1,
		BigBlindSeat:   -1,
		ActingSeat:     -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StackDeck makes the next hand deal from deck.
func (t *Table) StackDeck(deck *poker.Deck) {
	t.nextDeck = deck
}

// SetBlinds schedules new blinds. They take effect when the next hand starts.
func (t *Table) SetBlinds(small, big int) {
	t.pendingSB, t.pendingBB = small, big
	if !t.Phase.Betting() {
		t.SmallBlind, t.BigBlind = small, big
	}
}

// Sit places p at seat, or the first free seat when seat is negative. It
// returns the seat taken.
func (t *Table) Sit(seat int, p *Player) (int, error) {
	for _, other := range t.Seats {
		if other != nil && p.UserID != "" && other.UserID == p.UserID {
			return other.Seat, ErrAlreadySeated
		}
	}
	if seat < 0 {
		seat = slices.Index(t.Seats, nil)
		if seat < 0 {
			return -1, ErrTableFull
		}
	}
	if seat >= len(t.Seats) {
		return -1, ErrSeatOutOfRange
	}
	if t.Seats[seat] != nil {
		return -1, ErrSeatTaken
	}
	p.Seat = seat
	p.InHand = false
	p.actedAt = -1
	t.Seats[seat] = p
	return seat, nil
}

// Stand removes the player at seat. Players still contesting a hand cannot
// stand until it completes.
func (t *Table) Stand(seat int) (*Player, error) {
	p := t.player(seat)
	if p == nil {
		return nil, ErrNotSeated
	}
	if t.Phase.Betting() && p.InHand {
		return nil, ErrHandInProgress
	}
	if t.Phase.Betting() {
		delete(t.preHand, seat)
	} else {
		// the books of the finished hand no longer balance without this seat
		t.preHand = nil
	}
	t.Seats[seat] = nil
	return p, nil
}

// Player returns the player at seat, or nil.
func (t *Table) Player(seat int) *Player {
	return t.player(seat)
}

// SeatOf returns the seat of userID, or -1.
func (t *Table) SeatOf(userID string) int {
	for _, p := range t.Seats {
		if p != nil && p.UserID == userID {
			return p.Seat
		}
	}
	return -1
}

// Players returns the occupied seats in seat order.
func (t *Table) Players() []*Player {
	out := make([]*Player, 0, len(t.Seats))
	for _, p := range t.Seats {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Funded counts seated players with chips.
func (t *Table) Funded() int {
	n := 0
	for _, p := range t.Seats {
		if p != nil && p.Chips > 0 {
			n++
		}
	}
	return n
}

// TotalPot is every chip committed this hand, collected or not.
func (t *Table) TotalPot() int {
	total := 0
	for _, pot := range t.Pots {
		total += pot.Amount
	}
	for _, p := range t.Seats {
		if p != nil {
			total += p.Bet
		}
	}
	return total
}

// InHand reports whether a hand is being played or awaits runout.
func (t *Table) InHand() bool {
	return t.Phase.Betting()
}

// NeedsRunout reports whether the remaining streets must be dealt without
// betting because at most one contester can still act.
func (t *Table) NeedsRunout() bool {
	return t.Phase.Betting() && t.ActingSeat < 0 && t.result == nil
}

// Result returns the outcome of the last completed hand, or nil while a hand
// is in progress.
func (t *Table) Result() *HandResult {
	return t.result
}

// StartHand deals a new hand: fresh deck, dealer rotation, blinds, hole
// cards, and the first player to act.
func (t *Table) StartHand(rng *rand.Rand) error {
	if t.Phase.Betting() {
		return ErrHandInProgress
	}
	t.SmallBlind, t.BigBlind = t.pendingSB, t.pendingBB

	eligible := 0
	for _, p := range t.Seats {
		if p == nil {
			continue
		}
		p.resetForHand(p.Chips > 0)
		if p.InHand {
			eligible++
		}
	}
	if eligible < 2 {
		for _, p := range t.Seats {
			if p != nil {
				p.InHand = false
			}
		}
		return ErrNotEnoughPlayers
	}

	deck := t.nextDeck
	t.nextDeck = nil
	if deck == nil {
		deck = poker.NewDeck(rng)
	}

	t.Deck = deck
	t.HandNumber++
	t.HandID = uuid.NewString()
	t.Phase = PhasePreflop
	t.Board = nil
	t.Burned = nil
	t.Pots = nil
	t.log = nil
	t.result = nil
	t.fullRaises = 0
	t.CurrentBet = 0
	t.MinRaise = t.BigBlind
	t.ActionDeadline = time.Time{}

	t.preHand = make(map[int]int, eligible)
	for _, p := range t.Seats {
		if p != nil {
			t.preHand[p.Seat] = p.Chips
		}
	}

	t.Dealer = t.nextInHand(t.Dealer)
	if eligible == 2 {
		// heads-up: the dealer posts the small blind and acts first preflop
		t.SmallBlindSeat = t.Dealer
	} else {
		t.SmallBlindSeat = t.nextInHand(t.Dealer)
	}
	t.BigBlindSeat = t.nextInHand(t.SmallBlindSeat)

	t.postBlind(t.Seats[t.SmallBlindSeat], t.SmallBlind, "small_blind")
	t.postBlind(t.Seats[t.BigBlindSeat], t.BigBlind, "big_blind")
	t.CurrentBet = t.BigBlind

	t.dealHoleCards()

	if next := t.nextToAct(t.BigBlindSeat); next >= 0 {
		t.ActingSeat = next
	} else {
		t.closeStreet()
	}
	return nil
}

func (t *Table) postBlind(p *Player, amount int, kind string) {
	t.pay(p, amount)
	p.LastAction = kind
	t.log = append(t.log, LogEntry{Phase: PhasePreflop, Seat: p.Seat, Kind: kind, Amount: p.Bet})
}

func (t *Table) dealHoleCards() {
	n := t.Variant.HoleCards()
	for round := 0; round < n; round++ {
		seat := t.Dealer
		for range t.Seats {
			seat = t.nextInHand(seat)
			c, _ := t.Deck.Pop()
			t.Seats[seat].HoleCards = append(t.Seats[seat].HoleCards, c)
			if seat == t.Dealer {
				break
			}
		}
	}
}

// nextInHand returns the next seat clockwise after from that was dealt in.
func (t *Table) nextInHand(from int) int {
	n := len(t.Seats)
	if from < 0 {
		from = n - 1
	}
	for i := 1; i <= n; i++ {
		seat := (from + i) % n
		if p := t.Seats[seat]; p != nil && p.InHand {
			return seat
		}
	}
	return -1
}

func (t *Table) player(seat int) *Player {
	if seat < 0 || seat >= len(t.Seats) {
		return nil
	}
	return t.Seats[seat]
}

func (t *Table) liveCount() int {
	n := 0
	for _, p := range t.Seats {
		if p != nil && p.live() {
			n++
		}
	}
	return n
}
