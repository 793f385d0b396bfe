package game

import (
	"errors"

	"github.com/pokerhall/holdemd/internal/deck"
)

// Status is the per-seat player status.
type Status int

const (
	StatusActive Status = iota
	StatusFolded
	StatusAllIn
	StatusOut
	StatusSpectator
	StatusWaiting
)

// String returns the wire representation of a status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFolded:
		return "folded"
	case StatusAllIn:
		return "all_in"
	case StatusOut:
		return "out"
	case StatusSpectator:
		return "spectator"
	case StatusWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

var (
	ErrNegativeAmount    = errors.New("game: bet amount must be non-negative")
	ErrInsufficientChips = errors.New("game: not enough chips to commit requested amount")
	ErrNoChips           = errors.New("game: player has no chips left to go all-in")
)

// Player holds the per-seat state for one user at a table. The Table
// owns its players; a Game borrows the seat slice for one hand.
type Player struct {
	UserID   int64
	Position int
	Stack    int64
	Status   Status

	HoleCards []deck.Card
	Bet       int64 // committed this betting round
	TotalBet  int64 // committed this hand, drives side-pot layering

	LastAction   string
	IsSmallBlind bool
	IsBigBlind   bool
	HasActed     bool
}

// ResetForNewHand prepares the seat for the next hand. Zero-stack seats
// sit out; spectators stay spectators; everyone else (including seats
// that joined mid-hand as waiting) becomes active.
func (p *Player) ResetForNewHand() {
	switch {
	case p.Status == StatusSpectator:
	case p.Stack <= 0:
		p.Status = StatusOut
	default:
		p.Status = StatusActive
	}
	p.HoleCards = nil
	p.Bet = 0
	p.TotalBet = 0
	p.LastAction = ""
	p.IsSmallBlind = false
	p.IsBigBlind = false
	p.HasActed = false
}

// ResetForBettingRound clears the round-local state.
func (p *Player) ResetForBettingRound() {
	p.Bet = 0
	p.HasActed = false
}

// Fold moves an active player out of the hand.
func (p *Player) Fold() {
	if p.Status == StatusActive {
		p.Status = StatusFolded
		p.LastAction = "fold"
	}
}

// Check records a check.
func (p *Player) Check() {
	p.LastAction = "check"
	p.HasActed = true
}

// Call commits up to required chips, going all-in when the stack is short.
// Returns the amount actually committed.
func (p *Player) Call(required int64) (int64, error) {
	committed, err := p.commit(required, true)
	if err != nil {
		return 0, err
	}
	p.LastAction = "call"
	p.HasActed = true
	return committed, nil
}

// BetChips commits an opening bet. The amount must fit in the stack.
func (p *Player) BetChips(amount int64) (int64, error) {
	committed, err := p.commit(amount, false)
	if err != nil {
		return 0, err
	}
	p.LastAction = "bet"
	p.HasActed = true
	return committed, nil
}

// RaiseBet commits the chips needed to reach a raise target.
func (p *Player) RaiseBet(required int64) (int64, error) {
	committed, err := p.commit(required, false)
	if err != nil {
		return 0, err
	}
	p.LastAction = "raise"
	p.HasActed = true
	return committed, nil
}

// AllIn commits the entire remaining stack.
func (p *Player) AllIn() (int64, error) {
	if p.Stack <= 0 {
		return 0, ErrNoChips
	}
	committed, err := p.commit(p.Stack, false)
	if err != nil {
		return 0, err
	}
	p.LastAction = "all_in"
	p.HasActed = true
	return committed, nil
}

func (p *Player) commit(amount int64, allowPartial bool) (int64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	if !allowPartial && amount > p.Stack {
		return 0, ErrInsufficientChips
	}
	committed := min(amount, p.Stack)
	p.Stack -= committed
	p.Bet += committed
	p.TotalBet += committed
	if p.Stack == 0 && p.Status != StatusSpectator {
		p.Status = StatusAllIn
	}
	return committed, nil
}

// InHand reports whether the player can still win the pot.
func (p *Player) InHand() bool {
	return p.Status == StatusActive || p.Status == StatusAllIn
}
