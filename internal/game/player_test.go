package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetForNewHand(t *testing.T) {
	tests := []struct {
		name   string
		before Player
		want   Status
	}{
		{"active stays active", Player{Stack: 100, Status: StatusFolded}, StatusActive},
		{"waiting joins the hand", Player{Stack: 100, Status: StatusWaiting}, StatusActive},
		{"broke player sits out", Player{Stack: 0, Status: StatusActive}, StatusOut},
		{"spectator stays spectator", Player{Stack: 0, Status: StatusSpectator}, StatusSpectator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.before
			p.Bet = 10
			p.TotalBet = 25
			p.HasActed = true
			p.IsBigBlind = true
			p.ResetForNewHand()

			assert.Equal(t, tt.want, p.Status)
			assert.Zero(t, p.Bet)
			assert.Zero(t, p.TotalBet)
			assert.Empty(t, p.HoleCards)
			assert.False(t, p.HasActed)
			assert.False(t, p.IsBigBlind)
		})
	}
}

func TestCallGoesAllInWhenShort(t *testing.T) {
	p := Player{Stack: 60, Status: StatusActive}
	committed, err := p.Call(100)
	require.NoError(t, err)

	assert.Equal(t, int64(60), committed)
	assert.Zero(t, p.Stack)
	assert.Equal(t, StatusAllIn, p.Status)
	assert.Equal(t, int64(60), p.Bet)
}

func TestBetChipsRejectsOversizedBet(t *testing.T) {
	p := Player{Stack: 50, Status: StatusActive}
	_, err := p.BetChips(80)
	assert.ErrorIs(t, err, ErrInsufficientChips)
	assert.Equal(t, int64(50), p.Stack, "failed bet must not move chips")
	assert.Zero(t, p.Bet)
}

func TestBetForEntireStackIsAllIn(t *testing.T) {
	p := Player{Stack: 50, Status: StatusActive}
	committed, err := p.BetChips(50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), committed)
	assert.Equal(t, StatusAllIn, p.Status)
}

func TestAllInRequiresChips(t *testing.T) {
	p := Player{Stack: 0, Status: StatusActive}
	_, err := p.AllIn()
	assert.ErrorIs(t, err, ErrNoChips)
}

func TestNegativeAmountsRejected(t *testing.T) {
	p := Player{Stack: 100, Status: StatusActive}
	_, err := p.Call(-1)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestFoldOnlyAffectsActivePlayers(t *testing.T) {
	p := Player{Stack: 0, Status: StatusAllIn}
	p.Fold()
	assert.Equal(t, StatusAllIn, p.Status, "all-in players cannot fold themselves")

	p = Player{Stack: 100, Status: StatusActive}
	p.Fold()
	assert.Equal(t, StatusFolded, p.Status)
	assert.Equal(t, "fold", p.LastAction)
}

func TestTotalBetAccumulatesAcrossRounds(t *testing.T) {
	p := Player{Stack: 100, Status: StatusActive}
	_, err := p.BetChips(20)
	require.NoError(t, err)
	p.ResetForBettingRound()
	_, err = p.BetChips(30)
	require.NoError(t, err)

	assert.Equal(t, int64(30), p.Bet)
	assert.Equal(t, int64(50), p.TotalBet)
	assert.Equal(t, int64(50), p.Stack)
}

func TestInHand(t *testing.T) {
	assert.True(t, (&Player{Status: StatusActive}).InHand())
	assert.True(t, (&Player{Status: StatusAllIn}).InHand())
	assert.False(t, (&Player{Status: StatusFolded}).InHand())
	assert.False(t, (&Player{Status: StatusOut}).InHand())
	assert.False(t, (&Player{Status: StatusSpectator}).InHand())
	assert.False(t, (&Player{Status: StatusWaiting}).InHand())
}
