package game

import (
	"errors"
	rand "math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/pokerhall/holdemd/internal/deck"
	"github.com/pokerhall/holdemd/internal/randutil"
)

var (
	ErrTableFull     = errors.New("game: table is full")
	ErrAlreadySeated = errors.New("game: user already at this table")
	ErrNotAtTable    = errors.New("game: user not at this table")
	ErrHandInFlight  = errors.New("game: a hand is already in progress")
)

// Table owns the seats and spectators of one poker table across hands.
// It is not safe for concurrent use; the table runtime serializes all
// access behind its own lock.
type Table struct {
	ID         int64
	Name       string
	SmallBlind int64
	BigBlind   int64
	MaxPlayers int

	Players     []*Player // seats in position order
	Watching    []*Player // spectators, no seat
	DealerIndex int
	Game        *Game
	LastHand    *HandResult

	rng           *rand.Rand
	startStacks   map[int64]int64
	pendingLeave  map[int64]bool
	pendingPayout map[int64]int64
}

// NewTable creates an empty table. A nil rng falls back to a
// time-seeded one.
func NewTable(id int64, name string, smallBlind, bigBlind int64, maxPlayers int, rng *rand.Rand) *Table {
	if rng == nil {
		rng = randutil.New(time.Now().UnixNano())
	}
	return &Table{
		ID:           id,
		Name:         name,
		SmallBlind:   smallBlind,
		BigBlind:     bigBlind,
		MaxPlayers:   maxPlayers,
		rng:          rng,
		pendingLeave: make(map[int64]bool),
	}
}

// HandResult is the immutable record of a finished hand, used both for
// the inter-hand reveal snapshot and for persistence.
type HandResult struct {
	HandID        string
	TableID       int64
	Board         []deck.Card
	Pot           int64
	Winners       []int64
	BestHandRank  string
	BestHandCards []deck.Card
	Players       []PlayerResult
}

// PlayerResult is one participant's line in a finished hand.
type PlayerResult struct {
	UserID    int64
	Position  int
	HoleCards []deck.Card
	Status    Status
	Bet       int64 // total committed across the hand
	Stack     int64
	Delta     int64
	Won       bool
	Revealed  bool
}

// Player returns the seat or spectator entry for a user.
func (t *Table) Player(userID int64) *Player {
	for _, p := range t.Players {
		if p.UserID == userID {
			return p
		}
	}
	for _, s := range t.Watching {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

// PublicPlayers returns the seats visible to clients. Seats waiting to
// be evicted after the current hand are hidden.
func (t *Table) PublicPlayers() []*Player {
	seats := make([]*Player, 0, len(t.Players))
	for _, p := range t.Players {
		if !t.pendingLeave[p.UserID] {
			seats = append(seats, p)
		}
	}
	return seats
}

// Spectators returns the watching users.
func (t *Table) Spectators() []*Player {
	return t.Watching
}

// SeatCount returns the number of occupied seats.
func (t *Table) SeatCount() int {
	return len(t.Players)
}

// IsEmpty reports whether nobody is seated or watching.
func (t *Table) IsEmpty() bool {
	return len(t.Players) == 0 && len(t.Watching) == 0
}

// HandActive reports whether a hand is currently being played.
func (t *Table) HandActive() bool {
	return t.Game != nil && t.Game.HandActive
}

// Seat adds a user with the given buy-in. Joining while a hand is in
// flight seats them as waiting; they are dealt in from the next hand.
func (t *Table) Seat(userID, buyIn int64) (*Player, error) {
	if t.Player(userID) != nil {
		return nil, ErrAlreadySeated
	}
	if len(t.Players) >= t.MaxPlayers {
		return nil, ErrTableFull
	}
	status := StatusActive
	if t.HandActive() {
		status = StatusWaiting
	}
	p := &Player{
		UserID:   userID,
		Position: len(t.Players),
		Stack:    buyIn,
		Status:   status,
	}
	t.Players = append(t.Players, p)
	return p, nil
}

// Spectate adds a user as a spectator.
func (t *Table) Spectate(userID int64) (*Player, error) {
	if t.Player(userID) != nil {
		return nil, ErrAlreadySeated
	}
	s := &Player{
		UserID:   userID,
		Position: -1,
		Status:   StatusSpectator,
	}
	t.Watching = append(t.Watching, s)
	return s, nil
}

// Leave removes a user from the table and returns the chips to cash
// out. Leaving mid-hand forfeits the chips already committed to the
// pot: the seat is force-folded, the uncommitted stack is cashed out
// and the seat is evicted once the hand settles. If the forced fold
// ends the hand the finished result is returned as well.
func (t *Table) Leave(userID int64) (int64, *HandResult, error) {
	p := t.Player(userID)
	if p == nil {
		return 0, nil, ErrNotAtTable
	}

	if p.Status == StatusSpectator {
		t.removeSpectator(userID)
		return 0, nil, nil
	}

	if !t.HandActive() {
		cashout := p.Stack
		t.removeSeat(userID)
		return cashout, nil, nil
	}

	// The running game borrows the seat slice, so no seat may be
	// removed while a hand is active; every mid-hand leaver is marked
	// pending and evicted when the hand settles.
	if p.InHand() {
		if err := t.Game.ForceFold(p); err != nil {
			return 0, nil, err
		}
	}
	cashout := p.Stack
	p.Stack = 0
	if t.Game != nil && t.Game.HandActive {
		t.pendingLeave[userID] = true
		if cashout > 0 {
			if t.pendingPayout == nil {
				t.pendingPayout = make(map[int64]int64)
			}
			t.pendingPayout[userID] = cashout
		}
		return cashout, nil, nil
	}

	// The fold ended the hand; settle it, then evict this leaver along
	// with any earlier pending ones.
	p.Stack = cashout
	result := t.settleHand()
	cashout = p.Stack
	t.removeSeat(userID)
	t.evictPendingLeavers()
	return cashout, result, nil
}

// StartHand promotes waiting seats, deals a new hand and snapshots the
// starting stacks. Options are forwarded to the hand, which lets tests
// stack the deck.
func (t *Table) StartHand(opts ...Option) error {
	if t.HandActive() {
		return ErrHandInFlight
	}
	for _, p := range t.Players {
		if p.Status == StatusWaiting {
			p.Status = StatusActive
		}
	}

	if len(opts) == 0 {
		opts = []Option{WithRand(t.rng)}
	}
	g, err := NewGame(t.Players, t.DealerIndex, t.SmallBlind, t.BigBlind, opts...)
	if err != nil {
		return err
	}
	if err := g.Start(); err != nil {
		return err
	}

	t.Game = g
	t.startStacks = make(map[int64]int64, len(t.Players))
	for _, p := range t.Players {
		t.startStacks[p.UserID] = p.Stack + p.TotalBet
	}
	return nil
}

// ApplyAction routes a player action into the running hand. When the
// action finishes the hand the settled result is returned.
func (t *Table) ApplyAction(userID int64, action Action, amount int64) (*HandResult, error) {
	p := t.Player(userID)
	if p == nil {
		return nil, ErrNotAtTable
	}
	if !t.HandActive() {
		return nil, ErrHandFinished
	}
	if err := t.Game.ApplyAction(p, action, amount); err != nil {
		return nil, err
	}
	if t.Game.HandActive {
		return nil, nil
	}
	result := t.settleHand()
	t.evictPendingLeavers()
	return result, nil
}

// ForceFold folds a seat out of turn (disconnect timeout, kick). When
// the fold finishes the hand the settled result is returned.
func (t *Table) ForceFold(userID int64) (*HandResult, error) {
	p := t.Player(userID)
	if p == nil {
		return nil, ErrNotAtTable
	}
	if !t.HandActive() {
		return nil, nil
	}
	if err := t.Game.ForceFold(p); err != nil {
		return nil, err
	}
	if t.Game.HandActive {
		return nil, nil
	}
	result := t.settleHand()
	t.evictPendingLeavers()
	return result, nil
}

// settleHand records the finished hand, advances the dealer button to
// the next funded seat and detaches the game. The caller evicts pending
// leavers afterwards.
func (t *Table) settleHand() *HandResult {
	g := t.Game
	if g == nil {
		return nil
	}

	winnerIDs := make([]int64, 0, len(g.Winners))
	won := make(map[int64]bool, len(g.Winners))
	for _, w := range g.Winners {
		winnerIDs = append(winnerIDs, w.UserID)
		won[w.UserID] = true
	}

	result := &HandResult{
		HandID:  uuid.NewString(),
		TableID: t.ID,
		Board:   append([]deck.Card(nil), g.Board...),
		Pot:     g.FinalPot,
		Winners: winnerIDs,
	}
	if g.BestHand != nil {
		result.BestHandRank = g.BestHand.Rank.String()
		result.BestHandCards = append([]deck.Card(nil), g.BestHand.Cards...)
	}

	// Contenders go face up whenever the hand produced winners, a
	// fold-out win included.
	for _, p := range t.Players {
		if len(p.HoleCards) == 0 {
			continue
		}
		payout := t.pendingPayout[p.UserID]
		result.Players = append(result.Players, PlayerResult{
			UserID:    p.UserID,
			Position:  p.Position,
			HoleCards: append([]deck.Card(nil), p.HoleCards...),
			Status:    p.Status,
			Bet:       p.TotalBet,
			Stack:     p.Stack,
			Delta:     p.Stack + payout - t.startStacks[p.UserID],
			Won:       won[p.UserID],
			Revealed:  len(winnerIDs) > 0 && p.InHand(),
		})
	}

	t.LastHand = result
	t.Game = nil
	t.pendingPayout = nil
	t.advanceDealerButton()
	return result
}

// Reveal flips a participant's cards face up in the last hand record.
func (t *Table) Reveal(userID int64) bool {
	if t.LastHand == nil {
		return false
	}
	for i := range t.LastHand.Players {
		if t.LastHand.Players[i].UserID == userID {
			t.LastHand.Players[i].Revealed = true
			return true
		}
	}
	return false
}

// advanceDealerButton moves the button to the next seat that can post.
func (t *Table) advanceDealerButton() {
	if len(t.Players) == 0 {
		t.DealerIndex = 0
		return
	}
	index := (t.DealerIndex + 1) % len(t.Players)
	for range len(t.Players) {
		if t.Players[index].Stack > 0 {
			t.DealerIndex = index
			return
		}
		index = (index + 1) % len(t.Players)
	}
}

func (t *Table) evictPendingLeavers() {
	for userID := range t.pendingLeave {
		t.removeSeat(userID)
	}
}

// removeSeat drops a seated user and compacts positions, keeping the
// dealer button on the same seat where possible.
func (t *Table) removeSeat(userID int64) {
	index := -1
	for i, p := range t.Players {
		if p.UserID == userID {
			index = i
			break
		}
	}
	delete(t.pendingLeave, userID)
	if index < 0 {
		return
	}
	t.Players = append(t.Players[:index], t.Players[index+1:]...)
	for i, p := range t.Players {
		p.Position = i
	}
	if len(t.Players) == 0 {
		t.DealerIndex = 0
		return
	}
	if index < t.DealerIndex {
		t.DealerIndex--
	}
	t.DealerIndex %= len(t.Players)
}

func (t *Table) removeSpectator(userID int64) {
	for i, s := range t.Watching {
		if s.UserID == userID {
			t.Watching = append(t.Watching[:i], t.Watching[i+1:]...)
			return
		}
	}
}

// CanStart reports whether a new hand could begin right now.
func (t *Table) CanStart() bool {
	if t.HandActive() {
		return false
	}
	eligible := 0
	for _, p := range t.Players {
		if p.Stack > 0 {
			eligible++
		}
	}
	return eligible >= 2
}
