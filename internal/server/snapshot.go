package server

import (
	"github.com/pokerhall/holdemd/internal/deck"
	"github.com/pokerhall/holdemd/internal/game"
)

// Snapshot is the personalized table state sent to one viewer. Hole
// cards are included only where that viewer is allowed to see them.
type Snapshot struct {
	TableID      int64            `json:"table_id"`
	Name         string           `json:"name"`
	Phase        string           `json:"phase"`
	HandActive   bool             `json:"hand_active"`
	Pot          int64            `json:"pot"`
	Board        []string         `json:"board"`
	SmallBlind   int64            `json:"small_blind"`
	BigBlind     int64            `json:"big_blind"`
	CurrentBet   int64            `json:"current_bet"`
	MinimumRaise int64            `json:"minimum_raise"`
	CurrentTurn  *int64           `json:"current_turn"`
	Players      []SnapshotPlayer `json:"players"`
	Spectators   []int64          `json:"spectators"`
	Winners      []int64          `json:"winners"`
	BestHand     string           `json:"best_hand,omitempty"`
	BestCards    []string         `json:"best_cards,omitempty"`
}

// SnapshotPlayer is one seat in a snapshot.
type SnapshotPlayer struct {
	UserID       int64    `json:"user_id"`
	Position     int      `json:"position"`
	Stack        int64    `json:"stack"`
	Bet          int64    `json:"bet"`
	Status       string   `json:"status"`
	HoleCards    []string `json:"hole_cards,omitempty"`
	LastAction   string   `json:"last_action,omitempty"`
	IsDealer     bool     `json:"is_dealer"`
	IsSmallBlind bool     `json:"is_small_blind"`
	IsBigBlind   bool     `json:"is_big_blind"`
	AtTable      bool     `json:"at_table"`
}

// BuildSnapshot renders the table for a specific viewer. Spectators
// with show_all toggled on see every hole card; everyone else sees only
// their own until the hand finishes and the showdown (or an explicit
// reveal) exposes them.
func BuildSnapshot(t *game.Table, viewerID int64, showAll bool) *Snapshot {
	snap := &Snapshot{
		TableID:    t.ID,
		Name:       t.Name,
		Phase:      "waiting",
		SmallBlind: t.SmallBlind,
		BigBlind:   t.BigBlind,
		Winners:    []int64{},
		Board:      []string{},
	}
	for _, s := range t.Spectators() {
		snap.Spectators = append(snap.Spectators, s.UserID)
	}

	if t.HandActive() {
		buildLiveSnapshot(snap, t, viewerID, showAll)
		return snap
	}
	buildIdleSnapshot(snap, t, viewerID, showAll)
	return snap
}

func buildLiveSnapshot(snap *Snapshot, t *game.Table, viewerID int64, showAll bool) {
	g := t.Game
	snap.Phase = g.Phase.String()
	snap.HandActive = true
	snap.Pot = g.Pot
	snap.Board = deck.Tokens(g.Board)
	snap.CurrentBet = g.CurrentBet
	snap.MinimumRaise = g.MinimumRaise
	if g.CurrentIndex >= 0 && g.CurrentIndex < len(g.Players) {
		id := g.Players[g.CurrentIndex].UserID
		snap.CurrentTurn = &id
	}

	for _, p := range t.PublicPlayers() {
		sp := SnapshotPlayer{
			UserID:       p.UserID,
			Position:     p.Position,
			Stack:        p.Stack,
			Bet:          p.Bet,
			Status:       p.Status.String(),
			LastAction:   p.LastAction,
			IsDealer:     p.Position == t.DealerIndex,
			IsSmallBlind: p.IsSmallBlind,
			IsBigBlind:   p.IsBigBlind,
			AtTable:      true,
		}
		if len(p.HoleCards) > 0 && (p.UserID == viewerID || showAll) {
			sp.HoleCards = deck.Tokens(p.HoleCards)
		}
		snap.Players = append(snap.Players, sp)
	}
}

// buildIdleSnapshot renders the inter-hand pause. The finished hand's
// board, pot and reveals stay visible, including for participants who
// already left the table. A finished hand with winners reveals every
// participant's cards.
func buildIdleSnapshot(snap *Snapshot, t *game.Table, viewerID int64, showAll bool) {
	last := t.LastHand
	results := make(map[int64]*game.PlayerResult)
	if last != nil {
		snap.Phase = game.PhaseFinished.String()
		snap.Pot = last.Pot
		snap.Board = deck.Tokens(last.Board)
		snap.Winners = last.Winners
		snap.BestHand = last.BestHandRank
		snap.BestCards = deck.Tokens(last.BestHandCards)
		for i := range last.Players {
			results[last.Players[i].UserID] = &last.Players[i]
		}
		if len(last.Winners) > 0 {
			showAll = true
		}
	}

	seen := make(map[int64]bool)
	for _, p := range t.PublicPlayers() {
		seen[p.UserID] = true
		sp := SnapshotPlayer{
			UserID:       p.UserID,
			Position:     p.Position,
			Stack:        p.Stack,
			Bet:          p.Bet,
			Status:       p.Status.String(),
			LastAction:   p.LastAction,
			IsDealer:     p.Position == t.DealerIndex,
			IsSmallBlind: p.IsSmallBlind,
			IsBigBlind:   p.IsBigBlind,
			AtTable:      true,
		}
		if r, ok := results[p.UserID]; ok && revealed(r, viewerID, showAll) {
			sp.HoleCards = deck.Tokens(r.HoleCards)
		}
		snap.Players = append(snap.Players, sp)
	}

	if last == nil {
		return
	}
	for i := range last.Players {
		r := &last.Players[i]
		if seen[r.UserID] {
			continue
		}
		sp := SnapshotPlayer{
			UserID:   r.UserID,
			Position: r.Position,
			Stack:    r.Stack,
			Bet:      r.Bet,
			Status:   r.Status.String(),
		}
		if revealed(r, viewerID, showAll) {
			sp.HoleCards = deck.Tokens(r.HoleCards)
		}
		snap.Players = append(snap.Players, sp)
	}
}

func revealed(r *game.PlayerResult, viewerID int64, showAll bool) bool {
	return r.Revealed || showAll || r.UserID == viewerID
}
