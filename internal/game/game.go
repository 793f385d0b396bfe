package game

import (
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sort"
	"time"

	"github.com/pokerhall/holdemd/internal/deck"
	"github.com/pokerhall/holdemd/internal/evaluator"
	"github.com/pokerhall/holdemd/internal/randutil"
)

// Phase is the state of a single hand.
type Phase int

const (
	PhasePreflop Phase = iota
	PhaseFlop
	PhaseTurn
	PhaseRiver
	PhaseShowdown
	PhaseFinished
)

// String returns the wire representation of a phase.
func (p Phase) String() string {
	switch p {
	case PhasePreflop:
		return "preflop"
	case PhaseFlop:
		return "flop"
	case PhaseTurn:
		return "turn"
	case PhaseRiver:
		return "river"
	case PhaseShowdown:
		return "showdown"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Action is a player action within a betting round.
type Action int

const (
	ActionFold Action = iota
	ActionCheck
	ActionCall
	ActionBet
	ActionRaise
	ActionAllIn
)

// String returns the wire representation of an action.
func (a Action) String() string {
	switch a {
	case ActionFold:
		return "fold"
	case ActionCheck:
		return "check"
	case ActionCall:
		return "call"
	case ActionBet:
		return "bet"
	case ActionRaise:
		return "raise"
	case ActionAllIn:
		return "all_in"
	default:
		return "unknown"
	}
}

// ErrUnknownAction is returned for action strings outside the protocol.
var ErrUnknownAction = errors.New("game: unknown action")

// ParseAction maps a wire action string to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "fold":
		return ActionFold, nil
	case "check":
		return ActionCheck, nil
	case "call":
		return ActionCall, nil
	case "bet":
		return ActionBet, nil
	case "raise":
		return ActionRaise, nil
	case "all_in":
		return ActionAllIn, nil
	default:
		return 0, ErrUnknownAction
	}
}

var (
	ErrNotEnoughPlayers = errors.New("game: not enough players with chips to start the hand")
	ErrHandFinished     = errors.New("game: the hand is finished")
	ErrNotSeated        = errors.New("game: player not seated at this table")
	ErrNoActionExpected = errors.New("game: no player should act right now")
	ErrNotPlayersTurn   = errors.New("game: it is not this player's turn")
	ErrCannotAct        = errors.New("game: player cannot act right now")
	ErrCheckFacingBet   = errors.New("game: cannot check when facing a bet")
	ErrBetNotAvailable  = errors.New("game: betting is not available after someone has bet")
	ErrBetTooSmall      = errors.New("game: bet amount is smaller than minimum bet")
	ErrNoBetToRaise     = errors.New("game: no bet to raise")
	ErrRaiseTooSmall    = errors.New("game: raise must exceed current bet")
	ErrRaiseBelowMin    = errors.New("game: raise is below minimum allowed size")
)

// Game drives a single hand of no-limit hold'em over a borrowed seat
// slice. It never outlives the Table that owns the seats, and all
// access happens under the table runtime's lock.
type Game struct {
	Players []*Player
	Deck    *deck.Deck
	Board   []deck.Card

	DealerIndex     int
	SmallBlindIdx   int
	BigBlindIdx     int
	SmallBlind      int64
	BigBlind        int64
	Phase           Phase
	Pot             int64
	CurrentBet      int64
	MinimumRaise    int64
	CurrentIndex    int // -1 when nobody is due to act
	LastAggressor   int // -1 when nobody has bet or raised
	HandActive      bool
	Winners         []*Player
	BestHand        *evaluator.Evaluation
	FinalPot        int64 // total distributed once the hand finishes
}

// Option configures a new Game.
type Option func(*Game)

// WithDeck fixes the deck, skipping the reshuffle on start. Tests use
// this to stack known deals.
func WithDeck(d *deck.Deck) Option {
	return func(g *Game) { g.Deck = d }
}

// WithRand sets the RNG used to shuffle the deck.
func WithRand(rng *rand.Rand) Option {
	return func(g *Game) { g.Deck = deck.New(rng) }
}

// NewGame creates a hand over the given seats. The dealer index is
// taken modulo the seat count.
func NewGame(players []*Player, dealer int, smallBlind, bigBlind int64, opts ...Option) (*Game, error) {
	if len(players) < 2 {
		return nil, ErrNotEnoughPlayers
	}
	g := &Game{
		Players:       players,
		DealerIndex:   dealer % len(players),
		SmallBlind:    smallBlind,
		BigBlind:      bigBlind,
		MinimumRaise:  bigBlind,
		Phase:         PhaseFinished,
		CurrentIndex:  -1,
		LastAggressor: -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.Deck == nil {
		g.Deck = deck.New(randutil.New(time.Now().UnixNano()))
	}
	return g, nil
}

// Start resets the deck and seats, posts blinds, deals hole cards and
// opens the preflop betting round.
func (g *Game) Start() error {
	eligible := 0
	for _, p := range g.Players {
		if p.Stack > 0 && p.Status != StatusSpectator && p.Status != StatusWaiting {
			eligible++
		}
	}
	if eligible < 2 {
		return ErrNotEnoughPlayers
	}
	if err := g.prepareNewHand(); err != nil {
		return err
	}
	g.Phase = PhasePreflop
	g.CurrentIndex = g.startBettingRound(g.nextIndex(g.BigBlindIdx), true)
	return nil
}

func (g *Game) prepareNewHand() error {
	g.Deck.Reset()
	g.Board = nil
	g.Pot = 0
	g.FinalPot = 0
	g.Winners = nil
	g.BestHand = nil
	g.HandActive = true
	g.LastAggressor = -1
	for _, p := range g.Players {
		p.ResetForNewHand()
	}

	// Heads-up the dealer posts the small blind; otherwise the blinds
	// are the next two eligible seats after the button.
	if g.countEligibleForBlinds() == 2 && g.eligibleForBlind(g.DealerIndex) {
		g.SmallBlindIdx = g.DealerIndex
	} else {
		g.SmallBlindIdx = g.nextEligibleIndex(g.DealerIndex)
	}
	g.BigBlindIdx = g.nextEligibleIndex(g.SmallBlindIdx)
	g.Players[g.SmallBlindIdx].IsSmallBlind = true
	g.Players[g.BigBlindIdx].IsBigBlind = true
	if err := g.postBlind(g.SmallBlindIdx, g.SmallBlind); err != nil {
		return err
	}
	if err := g.postBlind(g.BigBlindIdx, g.BigBlind); err != nil {
		return err
	}

	g.CurrentBet = 0
	for _, p := range g.Players {
		if p.Bet > g.CurrentBet {
			g.CurrentBet = p.Bet
		}
	}
	g.MinimumRaise = g.BigBlind
	return g.dealHoleCards()
}

func (g *Game) postBlind(index int, amount int64) error {
	p := g.Players[index]
	if p.Status == StatusOut || p.Status == StatusSpectator {
		return nil
	}
	blind := min(amount, p.Stack)
	if blind <= 0 {
		return nil
	}
	committed, err := p.BetChips(blind)
	if err != nil {
		return err
	}
	g.Pot += committed
	return nil
}

func (g *Game) dealHoleCards() error {
	for range 2 {
		for _, p := range g.Players {
			if p.Status == StatusSpectator || p.Status == StatusOut {
				continue
			}
			card, err := g.Deck.Draw()
			if err != nil {
				return err
			}
			p.HoleCards = append(p.HoleCards, card)
		}
	}
	return nil
}

// ApplyAction validates and applies one player action, advancing the
// turn, the betting round and possibly the whole hand.
func (g *Game) ApplyAction(p *Player, action Action, amount int64) error {
	if !g.HandActive {
		return ErrHandFinished
	}
	index := g.indexOf(p)
	if index < 0 {
		return ErrNotSeated
	}
	if g.CurrentIndex == -1 {
		return ErrNoActionExpected
	}
	if index != g.CurrentIndex {
		return ErrNotPlayersTurn
	}
	if p.Status != StatusActive && p.Status != StatusAllIn {
		return ErrCannotAct
	}

	switch action {
	case ActionFold:
		p.Fold()
		p.HasActed = true
		if len(g.playersInHand()) <= 1 {
			g.finishWithSinglePlayer()
			return nil
		}

	case ActionCheck:
		if p.Bet != g.CurrentBet {
			return ErrCheckFacingBet
		}
		p.Check()

	case ActionCall:
		required := g.CurrentBet - p.Bet
		if required < 0 {
			required = 0
		}
		committed, err := p.Call(required)
		if err != nil {
			return err
		}
		g.Pot += committed

	case ActionBet:
		if g.CurrentBet != 0 {
			return ErrBetNotAvailable
		}
		if amount < g.MinimumRaise {
			return ErrBetTooSmall
		}
		committed, err := p.BetChips(amount)
		if err != nil {
			return err
		}
		g.CurrentBet = p.Bet
		g.Pot += committed
		g.MinimumRaise = amount
		g.LastAggressor = index
		g.resetRoundActions(index)

	case ActionRaise:
		if g.CurrentBet == 0 {
			return ErrNoBetToRaise
		}
		if amount <= g.CurrentBet {
			return ErrRaiseTooSmall
		}
		raiseSize := amount - g.CurrentBet
		if raiseSize < g.MinimumRaise {
			return ErrRaiseBelowMin
		}
		committed, err := p.RaiseBet(amount - p.Bet)
		if err != nil {
			return err
		}
		g.Pot += committed
		g.CurrentBet = p.Bet
		g.MinimumRaise = raiseSize
		g.LastAggressor = index
		g.resetRoundActions(index)

	case ActionAllIn:
		committed, err := p.AllIn()
		if err != nil {
			return err
		}
		g.Pot += committed
		if p.Bet > g.CurrentBet {
			raiseSize := p.Bet - g.CurrentBet
			g.CurrentBet = p.Bet
			// A short all-in moves the price to call but does not
			// reopen the betting for players who already acted.
			if raiseSize >= g.MinimumRaise {
				g.MinimumRaise = raiseSize
				g.LastAggressor = index
				g.resetRoundActions(index)
			}
		}

	default:
		return fmt.Errorf("%w: %d", ErrUnknownAction, action)
	}

	return g.advanceTurn()
}

// ForceFold folds a seat regardless of turn order. The runtime uses it
// when a seated player leaves or is disconnected past the grace period.
func (g *Game) ForceFold(p *Player) error {
	if !g.HandActive {
		return nil
	}
	index := g.indexOf(p)
	if index < 0 {
		return ErrNotSeated
	}
	if !p.InHand() {
		return nil
	}

	// A departing all-in player must not stay in contention, so the
	// status is forced past the usual active-only fold rule.
	p.Status = StatusFolded
	p.LastAction = "fold"
	p.HasActed = true
	if g.LastAggressor == index {
		g.LastAggressor = -1
	}

	if len(g.playersInHand()) <= 1 {
		g.finishWithSinglePlayer()
		return nil
	}
	if index == g.CurrentIndex {
		g.CurrentIndex = g.findNextPlayer(g.nextIndex(index))
	}
	if g.isRoundComplete() {
		g.CurrentIndex = -1
		return g.advancePhase()
	}
	if g.CurrentIndex == -1 {
		return g.advancePhase()
	}
	return nil
}

func (g *Game) advanceTurn() error {
	if !g.HandActive {
		return nil
	}
	if len(g.playersInHand()) <= 1 {
		g.finishWithSinglePlayer()
		return nil
	}
	if g.isRoundComplete() {
		g.CurrentIndex = -1
		return g.advancePhase()
	}
	g.CurrentIndex = g.findNextPlayer(g.nextIndex(g.CurrentIndex))
	if g.CurrentIndex == -1 {
		return g.advancePhase()
	}
	return nil
}

// advancePhase moves to the next street once a betting round is done,
// skipping streets nobody can bet on (all remaining contenders all-in).
func (g *Game) advancePhase() error {
	if !g.HandActive {
		return nil
	}
	for {
		switch g.Phase {
		case PhasePreflop:
			g.Phase = PhaseFlop
			if err := g.dealBoardCards(3); err != nil {
				return err
			}
			g.CurrentIndex = g.startBettingRound(g.nextIndex(g.DealerIndex), false)
		case PhaseFlop:
			g.Phase = PhaseTurn
			if err := g.dealBoardCards(1); err != nil {
				return err
			}
			g.CurrentIndex = g.startBettingRound(g.nextIndex(g.DealerIndex), false)
		case PhaseTurn:
			g.Phase = PhaseRiver
			if err := g.dealBoardCards(1); err != nil {
				return err
			}
			g.CurrentIndex = g.startBettingRound(g.nextIndex(g.DealerIndex), false)
		case PhaseRiver:
			g.Phase = PhaseShowdown
			return g.runShowdown()
		default:
			return nil
		}

		if g.CurrentIndex != -1 {
			return nil
		}
		// Nobody can act on this street; deal straight through.
	}
}

func (g *Game) dealBoardCards(n int) error {
	if _, err := g.Deck.Draw(); err != nil { // burn
		return err
	}
	cards, err := g.Deck.DrawMany(n)
	if err != nil {
		return err
	}
	g.Board = append(g.Board, cards...)
	return nil
}

func (g *Game) startBettingRound(start int, preserveExistingBets bool) int {
	if !preserveExistingBets {
		for _, p := range g.Players {
			p.ResetForBettingRound()
		}
		g.CurrentBet = 0
		g.MinimumRaise = g.BigBlind
	}
	for _, p := range g.Players {
		p.HasActed = p.Status != StatusActive
	}
	return g.findNextPlayer(start)
}

func (g *Game) isRoundComplete() bool {
	var active []*Player
	for _, p := range g.Players {
		if p.Status == StatusActive {
			active = append(active, p)
		}
	}
	if len(active) <= 1 {
		return true
	}
	for _, p := range active {
		if !p.HasActed || p.Bet != g.CurrentBet {
			return false
		}
	}
	return true
}

// runShowdown evaluates the contenders and distributes the layered pots.
func (g *Game) runShowdown() error {
	contenders := g.playersInHand()
	if len(contenders) == 0 {
		g.Phase = PhaseFinished
		g.HandActive = false
		return nil
	}

	holes := make([][]deck.Card, len(contenders))
	for i, p := range contenders {
		holes[i] = p.HoleCards
	}
	winnerIdxs, best, err := evaluator.DetermineWinners(holes, g.Board)
	if err != nil {
		return err
	}
	g.Winners = make([]*Player, 0, len(winnerIdxs))
	for _, i := range winnerIdxs {
		g.Winners = append(g.Winners, contenders[i])
	}
	g.BestHand = &best

	g.FinalPot = g.Pot
	g.distributePots()
	g.Pot = 0
	g.Phase = PhaseFinished
	g.HandActive = false
	return nil
}

// distributePots awards each pot layer to the best hand among the seats
// eligible for it. Within a layer the odd chips go to the earliest
// winners in seat order starting from the small blind.
func (g *Game) distributePots() {
	evals := make(map[int]evaluator.Evaluation, len(g.Players))
	for i, p := range g.Players {
		if !p.InHand() {
			continue
		}
		eval, err := evaluator.BestHand(p.HoleCards, g.Board)
		if err != nil {
			continue
		}
		evals[i] = eval
	}

	for _, layer := range buildPots(g.Players) {
		var winners []int
		for _, idx := range layer.eligible {
			eval, ok := evals[idx]
			if !ok {
				continue
			}
			if len(winners) == 0 {
				winners = []int{idx}
				continue
			}
			switch evals[winners[0]].Compare(eval) {
			case -1:
				winners = []int{idx}
			case 0:
				winners = append(winners, idx)
			}
		}
		if len(winners) == 0 {
			continue
		}
		g.sortFromSmallBlind(winners)
		share := layer.amount / int64(len(winners))
		remainder := layer.amount % int64(len(winners))
		for i, idx := range winners {
			bonus := int64(0)
			if int64(i) < remainder {
				bonus = 1
			}
			g.Players[idx].Stack += share + bonus
		}
	}
}

// sortFromSmallBlind orders seat indexes clockwise starting at the
// small blind.
func (g *Game) sortFromSmallBlind(indexes []int) {
	n := len(g.Players)
	sort.Slice(indexes, func(i, j int) bool {
		return (indexes[i]-g.SmallBlindIdx+n)%n < (indexes[j]-g.SmallBlindIdx+n)%n
	})
}

func (g *Game) finishWithSinglePlayer() {
	remaining := g.playersInHand()
	if len(remaining) == 0 {
		g.HandActive = false
		g.Phase = PhaseFinished
		return
	}
	winner := remaining[0]
	g.FinalPot = g.Pot
	winner.Stack += g.Pot
	g.Winners = []*Player{winner}
	g.Pot = 0
	g.HandActive = false
	g.Phase = PhaseFinished
}

func (g *Game) playersInHand() []*Player {
	var in []*Player
	for _, p := range g.Players {
		if p.InHand() {
			in = append(in, p)
		}
	}
	return in
}

func (g *Game) findNextPlayer(start int) int {
	n := len(g.Players)
	index := start % n
	for range n {
		p := g.Players[index]
		if p.Status == StatusActive && !p.HasActed {
			return index
		}
		index = g.nextIndex(index)
	}
	return -1
}

func (g *Game) indexOf(p *Player) int {
	for i, candidate := range g.Players {
		if candidate == p {
			return i
		}
	}
	return -1
}

func (g *Game) nextIndex(index int) int {
	return (index + 1) % len(g.Players)
}

func (g *Game) eligibleForBlind(index int) bool {
	p := g.Players[index]
	return p.Status != StatusOut && p.Status != StatusSpectator && p.Stack > 0
}

func (g *Game) countEligibleForBlinds() int {
	count := 0
	for i := range g.Players {
		if g.eligibleForBlind(i) {
			count++
		}
	}
	return count
}

func (g *Game) nextEligibleIndex(from int) int {
	index := g.nextIndex(from)
	for range len(g.Players) {
		if g.eligibleForBlind(index) {
			return index
		}
		index = g.nextIndex(index)
	}
	return from
}

func (g *Game) resetRoundActions(exceptIndex int) {
	for i, p := range g.Players {
		if i == exceptIndex {
			p.HasActed = true
			continue
		}
		p.HasActed = p.Status != StatusActive
	}
}
