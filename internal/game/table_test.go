package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerhall/holdemd/internal/deck"
	"github.com/pokerhall/holdemd/internal/randutil"
)

func newTestTable(t *testing.T, userIDs ...int64) *Table {
	t.Helper()
	table := NewTable(1, "test", 1, 2, 6, randutil.New(1))
	for _, id := range userIDs {
		_, err := table.Seat(id, 100)
		require.NoError(t, err)
	}
	return table
}

func TestSeatAndSpectateInvariants(t *testing.T) {
	table := newTestTable(t, 1, 2)

	_, err := table.Seat(1, 100)
	assert.ErrorIs(t, err, ErrAlreadySeated)
	_, err = table.Spectate(2)
	assert.ErrorIs(t, err, ErrAlreadySeated)

	_, err = table.Spectate(3)
	require.NoError(t, err)
	assert.Equal(t, 2, table.SeatCount(), "spectators do not occupy seats")
	assert.Len(t, table.Spectators(), 1)
}

func TestSeatRespectsMaxPlayers(t *testing.T) {
	table := NewTable(1, "tiny", 1, 2, 2, randutil.New(1))
	_, err := table.Seat(1, 100)
	require.NoError(t, err)
	_, err = table.Seat(2, 100)
	require.NoError(t, err)

	_, err = table.Seat(3, 100)
	assert.ErrorIs(t, err, ErrTableFull)

	// Spectating is still allowed at a full table.
	_, err = table.Spectate(3)
	assert.NoError(t, err)
}

func TestJoinDuringHandSeatsAsWaiting(t *testing.T) {
	table := newTestTable(t, 1, 2)
	require.NoError(t, table.StartHand())

	p, err := table.Seat(3, 100)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, p.Status)
	assert.Empty(t, p.HoleCards, "waiting players are not dealt into a running hand")
}

func TestWaitingPlayerJoinsNextHand(t *testing.T) {
	table := newTestTable(t, 1, 2)
	require.NoError(t, table.StartHand())
	_, err := table.Seat(3, 100)
	require.NoError(t, err)

	// Dealer folds, hand settles.
	dealerID := table.Game.Players[table.Game.SmallBlindIdx].UserID
	result, err := table.ApplyAction(dealerID, ActionFold, 0)
	require.NoError(t, err)
	require.NotNil(t, result)

	require.NoError(t, table.StartHand())
	p := table.Player(3)
	assert.Equal(t, StatusActive, p.Status)
	assert.Len(t, p.HoleCards, 2)
}

func TestLeaveBetweenHandsCashesOutStack(t *testing.T) {
	table := newTestTable(t, 1, 2)

	cashout, result, err := table.Leave(1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cashout)
	assert.Nil(t, result)
	assert.Nil(t, table.Player(1))

	// Positions compact after removal.
	assert.Equal(t, 0, table.Player(2).Position)
}

func TestLeaveMidHandForfeitsCommittedChips(t *testing.T) {
	table := newTestTable(t, 1, 2, 3)
	require.NoError(t, table.StartHand())

	// Seats: dealer=0, SB=1 (1 chip), BB=2 (2 chips). The big blind
	// leaves mid-hand and only gets the uncommitted stack back.
	bb := table.Game.Players[table.Game.BigBlindIdx]
	cashout, result, err := table.Leave(bb.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(98), cashout)
	assert.Nil(t, result, "hand continues with two players left")
	assert.NotNil(t, table.Player(bb.UserID), "seat stays until the hand settles")

	// Dealer folds against the small blind; the hand settles and the
	// leaver is evicted.
	dealer := table.Game.Players[table.Game.DealerIndex]
	result, err = table.ApplyAction(dealer.UserID, ActionFold, 0)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, table.Player(bb.UserID))

	// The forfeited big blind went to the hand's winner.
	winner := table.Player(result.Winners[0])
	assert.Equal(t, int64(102), winner.Stack)
}

func TestLeaveUnknownUser(t *testing.T) {
	table := newTestTable(t, 1)
	_, _, err := table.Leave(9)
	assert.ErrorIs(t, err, ErrNotAtTable)
}

func TestSplitPotOddChipGoesToEarlierSeatFromSmallBlind(t *testing.T) {
	table := newTestTable(t, 1, 2, 3)
	table.DealerIndex = 1 // SB = seat 2, BB = seat 0

	// Seats deal in order, so the stack reads: seat0 card1, seat1
	// card1, seat2 card1, then the second round, then burn/board.
	cards, err := deck.ParseCards("2H 2S KH 3D 3C KD 4H 5H 6D 7S 4C 8C 4D 9H")
	require.NoError(t, err)
	require.NoError(t, table.StartHand(WithDeck(deck.NewStacked(cards...))))

	g := table.Game
	require.Equal(t, 2, g.SmallBlindIdx)
	require.Equal(t, 0, g.BigBlindIdx)

	// Preflop: seat1 calls, small blind folds, big blind checks.
	_, err = table.ApplyAction(2, ActionCall, 0)
	require.NoError(t, err)
	_, err = table.ApplyAction(3, ActionFold, 0)
	require.NoError(t, err)
	_, err = table.ApplyAction(1, ActionCheck, 0)
	require.NoError(t, err)

	// Both remaining players check the board straight down.
	var result *HandResult
	for table.HandActive() {
		actor := g.Players[g.CurrentIndex].UserID
		result, err = table.ApplyAction(actor, ActionCheck, 0)
		require.NoError(t, err)
	}
	require.NotNil(t, result)

	assert.Equal(t, int64(5), result.Pot)
	assert.Equal(t, []int64{1, 2}, result.Winners)
	assert.Equal(t, "STRAIGHT", result.BestHandRank)

	// Pot of 5 splits 3/2 with the odd chip to the winner closest to
	// the small blind clockwise.
	assert.Equal(t, int64(101), table.Player(1).Stack)
	assert.Equal(t, int64(100), table.Player(2).Stack)
	assert.Equal(t, int64(99), table.Player(3).Stack)
}

func TestHandResultRecordsParticipants(t *testing.T) {
	table := newTestTable(t, 1, 2, 3)
	table.DealerIndex = 1

	cards, err := deck.ParseCards("2H 2S KH 3D 3C KD 4H 5H 6D 7S 4C 8C 4D 9H")
	require.NoError(t, err)
	require.NoError(t, table.StartHand(WithDeck(deck.NewStacked(cards...))))

	_, err = table.ApplyAction(2, ActionCall, 0)
	require.NoError(t, err)
	_, err = table.ApplyAction(3, ActionFold, 0)
	require.NoError(t, err)
	_, err = table.ApplyAction(1, ActionCheck, 0)
	require.NoError(t, err)

	var result *HandResult
	for table.HandActive() {
		actor := table.Game.Players[table.Game.CurrentIndex].UserID
		result, err = table.ApplyAction(actor, ActionCheck, 0)
		require.NoError(t, err)
	}
	require.NotNil(t, result)

	assert.NotEmpty(t, result.HandID)
	assert.Equal(t, int64(1), result.TableID)
	assert.Equal(t, "5H 6D 7S 8C 9H", deck.Join(result.Board))
	require.Len(t, result.Players, 3)

	byUser := make(map[int64]PlayerResult)
	for _, p := range result.Players {
		byUser[p.UserID] = p
	}
	assert.Equal(t, int64(1), byUser[1].Delta)
	assert.Equal(t, int64(0), byUser[2].Delta)
	assert.Equal(t, int64(-1), byUser[3].Delta)
	assert.True(t, byUser[1].Won)
	assert.True(t, byUser[2].Won)
	assert.False(t, byUser[3].Won)
	assert.True(t, byUser[1].Revealed, "showdown contenders are face up")
	assert.False(t, byUser[3].Revealed, "folded seats are not marked revealed in the record")
	assert.Equal(t, int64(2), byUser[1].Bet, "bet records the whole hand's commitment")

	// The result stays available for the inter-hand pause.
	assert.Same(t, result, table.LastHand)
	assert.Nil(t, table.Game)
}

func TestRevealFlipsLastHandCards(t *testing.T) {
	table := newTestTable(t, 1, 2)
	require.NoError(t, table.StartHand())

	dealerID := table.Game.Players[table.Game.SmallBlindIdx].UserID
	result, err := table.ApplyAction(dealerID, ActionFold, 0)
	require.NoError(t, err)
	require.NotNil(t, result)

	// The fold-out winner is face up in the record; the folder is not.
	for _, p := range result.Players {
		if p.UserID == dealerID {
			assert.False(t, p.Revealed)
		} else {
			assert.True(t, p.Revealed, "winners are revealed even without a showdown")
		}
	}
	require.True(t, table.Reveal(dealerID))
	found := false
	for _, p := range table.LastHand.Players {
		if p.UserID == dealerID {
			found = true
			assert.True(t, p.Revealed)
		}
	}
	assert.True(t, found)
	assert.False(t, table.Reveal(42), "unknown participants cannot reveal")
}

func TestLeaveAfterFoldingWaitsForHandToSettle(t *testing.T) {
	table := newTestTable(t, 1, 2, 3)
	require.NoError(t, table.StartHand())

	// The dealer folds in turn, then leaves while the hand is live.
	_, err := table.ApplyAction(1, ActionFold, 0)
	require.NoError(t, err)
	cashout, result, err := table.Leave(1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cashout)
	assert.Nil(t, result, "two players are still in the hand")

	// The seat stays until settlement; the game's borrowed seat slice
	// must keep its exact shape.
	require.NotNil(t, table.Player(1))
	ids := make([]int64, 0, len(table.Game.Players))
	for _, p := range table.Game.Players {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)

	// Play the hand out to showdown.
	var last *HandResult
	for table.HandActive() {
		g := table.Game
		actor := g.Players[g.CurrentIndex].UserID
		last, err = table.ApplyAction(actor, ActionCall, 0)
		require.NoError(t, err)
		if table.HandActive() && g.CurrentIndex >= 0 && g.Players[g.CurrentIndex].Bet == g.CurrentBet {
			last, err = table.ApplyAction(g.Players[g.CurrentIndex].UserID, ActionCheck, 0)
			require.NoError(t, err)
		}
	}
	require.NotNil(t, last)
	assert.Nil(t, table.Player(1), "the leaver is evicted at settlement")

	total := cashout
	for _, p := range table.Players {
		total += p.Stack
	}
	assert.Equal(t, int64(300), total, "chips must be conserved after a mid-hand leave")

	// The leaver still gets a participant row in the finished hand.
	found := false
	for _, p := range last.Players {
		if p.UserID == 1 {
			found = true
			assert.Equal(t, int64(0), p.Delta)
		}
	}
	assert.True(t, found)
}

func TestHandEndingLeaveEvictsEarlierPendingLeavers(t *testing.T) {
	table := newTestTable(t, 1, 2, 3)
	require.NoError(t, table.StartHand())

	// The dealer leaves mid-hand and stays pending.
	_, result, err := table.Leave(1)
	require.NoError(t, err)
	require.Nil(t, result)
	require.NotNil(t, table.Player(1))

	// The small blind's leave ends the hand; both leavers are evicted.
	cashout, result, err := table.Leave(2)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(99), cashout)
	assert.Equal(t, []int64{3}, result.Winners)

	assert.Nil(t, table.Player(1))
	assert.Nil(t, table.Player(2))
	winner := table.Player(3)
	require.NotNil(t, winner)
	assert.Equal(t, 0, winner.Position)
	assert.Equal(t, int64(101), winner.Stack)
	assert.Equal(t, 1, table.SeatCount())
}

func TestDealerRotatesBetweenHands(t *testing.T) {
	table := newTestTable(t, 1, 2, 3)
	require.Equal(t, 0, table.DealerIndex)
	require.NoError(t, table.StartHand())

	// Everyone folds to the big blind.
	for table.HandActive() {
		g := table.Game
		actor := g.Players[g.CurrentIndex].UserID
		_, err := table.ApplyAction(actor, ActionFold, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, table.DealerIndex)
}

func TestCanStart(t *testing.T) {
	table := newTestTable(t, 1)
	assert.False(t, table.CanStart(), "one player cannot play")

	_, err := table.Spectate(2)
	require.NoError(t, err)
	assert.False(t, table.CanStart(), "spectators do not count")

	_, err = table.Seat(3, 100)
	require.NoError(t, err)
	assert.True(t, table.CanStart())

	require.NoError(t, table.StartHand())
	assert.False(t, table.CanStart(), "no second hand while one runs")
}

func TestChipConservationAcrossTable(t *testing.T) {
	table := newTestTable(t, 1, 2, 3)
	require.NoError(t, table.StartHand())

	total := func() int64 {
		sum := int64(0)
		if table.Game != nil {
			sum += table.Game.Pot
		}
		for _, p := range table.Players {
			sum += p.Stack
		}
		return sum
	}
	require.Equal(t, int64(300), total())

	for table.HandActive() {
		g := table.Game
		actor := g.Players[g.CurrentIndex].UserID
		_, err := table.ApplyAction(actor, ActionCall, 0)
		require.NoError(t, err)
		if table.HandActive() && g.CurrentIndex >= 0 && g.Players[g.CurrentIndex].Bet == g.CurrentBet {
			_, err = table.ApplyAction(g.Players[g.CurrentIndex].UserID, ActionCheck, 0)
			require.NoError(t, err)
		}
		require.Equal(t, int64(300), total())
	}
	assert.Equal(t, int64(300), total())
}
