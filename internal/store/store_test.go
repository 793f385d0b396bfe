package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerhall/holdemd/internal/deck"
	"github.com/pokerhall/holdemd/internal/game"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndFetchUser(t *testing.T) {
	s := openTestStore(t)

	created, err := s.CreateUser("alice", "hash", 5000)
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, int64(5000), created.Balance)
	assert.True(t, created.IsActive)

	byID, err := s.UserByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byID.ID)

	byName, err := s.UserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
	assert.Equal(t, "hash", byName.PasswordHash)
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	s := openTestStore(t)

	_, err := s.CreateUser("bob", "hash", 0)
	require.NoError(t, err)

	_, err = s.CreateUser("bob", "other", 0)
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestUserNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.UserByID(99)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = s.UserByUsername("ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDebitAndCreditBalance(t *testing.T) {
	s := openTestStore(t)
	u, err := s.CreateUser("carol", "hash", 1000)
	require.NoError(t, err)

	require.NoError(t, s.DebitBalance(u.ID, 400))
	after, err := s.UserByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), after.Balance)

	// A short balance fails without changing anything.
	err = s.DebitBalance(u.ID, 601)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	after, err = s.UserByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), after.Balance)

	require.NoError(t, s.CreditBalance(u.ID, 150))
	after, err = s.UserByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), after.Balance)

	assert.ErrorIs(t, s.DebitBalance(99, 1), ErrUserNotFound)
	assert.ErrorIs(t, s.CreditBalance(99, 1), ErrUserNotFound)
}

func testHandResult(t *testing.T, handID string, winnerID, loserID int64) *game.HandResult {
	t.Helper()
	board, err := deck.ParseCards("2H 7D KS 9C 4S")
	require.NoError(t, err)
	winnerHole, err := deck.ParseCards("AS AH")
	require.NoError(t, err)
	loserHole, err := deck.ParseCards("QD JC")
	require.NoError(t, err)

	return &game.HandResult{
		HandID:       handID,
		TableID:      1,
		Board:        board,
		Pot:          200,
		Winners:      []int64{winnerID},
		BestHandRank: "PAIR",
		Players: []game.PlayerResult{
			{
				UserID:    winnerID,
				Position:  0,
				HoleCards: winnerHole,
				Status:    game.StatusActive,
				Bet:       100,
				Stack:     1100,
				Delta:     100,
				Won:       true,
			},
			{
				UserID:    loserID,
				Position:  1,
				HoleCards: loserHole,
				Status:    game.StatusActive,
				Bet:       100,
				Stack:     900,
				Delta:     -100,
				Won:       false,
			},
		},
	}
}

func TestSaveFinishedHandAndHistory(t *testing.T) {
	s := openTestStore(t)
	winner, err := s.CreateUser("winner", "hash", 0)
	require.NoError(t, err)
	loser, err := s.CreateUser("loser", "hash", 0)
	require.NoError(t, err)

	result := testHandResult(t, "hand-1", winner.ID, loser.ID)
	require.NoError(t, s.SaveFinishedHand(result))

	history, err := s.HandHistory(winner.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hand-1", history[0].HandID)
	assert.Equal(t, int64(200), history[0].Pot)
	assert.Equal(t, "2H 7D KS 9C 4S", history[0].Board)
	assert.Equal(t, "AS AH", history[0].HoleCards)
	assert.Equal(t, int64(100), history[0].Delta)
	assert.True(t, history[0].Won)

	loserHistory, err := s.HandHistory(loser.ID, 10)
	require.NoError(t, err)
	require.Len(t, loserHistory, 1)
	assert.False(t, loserHistory[0].Won)
	assert.Equal(t, int64(-100), loserHistory[0].Delta)
}

func TestHandHistoryOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	winner, err := s.CreateUser("winner", "hash", 0)
	require.NoError(t, err)
	loser, err := s.CreateUser("loser", "hash", 0)
	require.NoError(t, err)

	for i := range 5 {
		result := testHandResult(t, fmt.Sprintf("hand-%d", i), winner.ID, loser.ID)
		require.NoError(t, s.SaveFinishedHand(result))
	}

	history, err := s.HandHistory(winner.ID, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "hand-4", history[0].HandID, "newest first")

	// A non-positive limit falls back to the default.
	all, err := s.HandHistory(winner.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStatsAccumulateAcrossHands(t *testing.T) {
	s := openTestStore(t)
	winner, err := s.CreateUser("winner", "hash", 0)
	require.NoError(t, err)
	loser, err := s.CreateUser("loser", "hash", 0)
	require.NoError(t, err)

	require.NoError(t, s.SaveFinishedHand(testHandResult(t, "hand-1", winner.ID, loser.ID)))
	require.NoError(t, s.SaveFinishedHand(testHandResult(t, "hand-2", winner.ID, loser.ID)))

	stats, err := s.StatsForUser(winner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.HandsWon)
	assert.Equal(t, int64(0), stats.HandsLost)
	assert.Equal(t, int64(200), stats.WonStack)
	assert.Equal(t, int64(1100), stats.MaxBal)
	assert.Equal(t, int64(100), stats.MaxBet)

	loserStats, err := s.StatsForUser(loser.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), loserStats.HandsWon)
	assert.Equal(t, int64(2), loserStats.HandsLost)
	assert.Equal(t, int64(200), loserStats.LostStack)
}

func TestStatsForUnknownUserAreZero(t *testing.T) {
	s := openTestStore(t)

	stats, err := s.StatsForUser(123)
	require.NoError(t, err)
	assert.Equal(t, int64(123), stats.UserID)
	assert.Zero(t, stats.HandsWon)
	assert.Zero(t, stats.HandsLost)
}
