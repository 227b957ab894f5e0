package main

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoom(t *testing.T, humans, bots int) *Room {
	t.Helper()

	r := newRoom("TEST", nil)
	r.rng = rand.New(rand.NewPCG(1, 2))
	for i := range humans {
		_, err := r.joinLocked(fmt.Sprintf("p%d", i+1), fmt.Sprintf("Player%d", i+1), maxPlayers)
		require.NoError(t, err)
	}
	for range bots {
		_, err := r.addBotLocked(maxPlayers)
		require.NoError(t, err)
	}
	return r
}

func hostCount(r *Room) int {
	count := 0
	for _, p := range r.players {
		if p.IsHost {
			count++
		}
	}
	return count
}

func TestJoinRejectsBeyondCapacity(t *testing.T) {
	r := testRoom(t, maxPlayers, 0)

	_, err := r.joinLocked("p13", "Latecomer", maxPlayers)
	assert.ErrorIs(t, err, errRoomFull)
	assert.Len(t, r.players, maxPlayers)
}

func TestJoinRejectsOutsideLobbyPhases(t *testing.T) {
	r := testRoom(t, 3, 0)

	for _, p := range []gamePhase{phaseGame, phaseDebate, phaseVoting, phaseScoreboard, phaseGameOver} {
		r.phase = p
		_, err := r.joinLocked("late", "Late", maxPlayers)
		assert.ErrorIs(t, err, errNotJoinable, "phase %s", p)
	}

	r.phase = phaseLobby
	_, err := r.joinLocked("ok", "Fine", maxPlayers)
	assert.NoError(t, err)
}

func TestFirstJoinBecomesHost(t *testing.T) {
	r := testRoom(t, 3, 0)

	assert.True(t, r.players[0].IsHost)
	assert.Equal(t, 1, hostCount(r))
}

func TestHostTransferPrefersHumans(t *testing.T) {
	r := testRoom(t, 1, 1)
	_, err := r.joinLocked("p2", "Player2", maxPlayers)
	require.NoError(t, err)

	// Roster: host p1, bot, human p2. Removing the host must hand
	// host to the human even though the bot joined first.
	removed, empty := r.removePlayerLocked("p1")
	require.NotNil(t, removed)
	assert.False(t, empty)
	assert.Equal(t, 1, hostCount(r))

	host := r.hostLocked()
	require.NotNil(t, host)
	assert.Equal(t, "p2", host.ID)
	assert.False(t, host.IsBot)
}

func TestHostTransferFallsBackToBot(t *testing.T) {
	r := testRoom(t, 1, 1)

	_, empty := r.removePlayerLocked("p1")
	assert.False(t, empty)

	host := r.hostLocked()
	require.NotNil(t, host)
	assert.True(t, host.IsBot)
	assert.Equal(t, 1, hostCount(r))
}

func TestRemoveLastPlayerEmptiesRoom(t *testing.T) {
	r := testRoom(t, 1, 0)

	_, empty := r.removePlayerLocked("p1")
	assert.True(t, empty)
	assert.Empty(t, r.players)
}

func TestAddBotNamesFromPool(t *testing.T) {
	r := testRoom(t, 1, 0)

	first, err := r.addBotLocked(maxPlayers)
	require.NoError(t, err)
	second, err := r.addBotLocked(maxPlayers)
	require.NoError(t, err)

	assert.Equal(t, "Alpha", first.Nickname)
	assert.Equal(t, "Beta", second.Nickname)
	assert.True(t, first.IsBot)

	_, err = testRoomAtCapacity(t).addBotLocked(maxPlayers)
	assert.ErrorIs(t, err, errRoomFull)
}

func testRoomAtCapacity(t *testing.T) *Room {
	t.Helper()
	return testRoom(t, maxPlayers, 0)
}

func TestConfirmCustomization(t *testing.T) {
	r := testRoom(t, 3, 0)

	settings := &GameSettings{
		WinCondition:  winByRounds,
		WinTarget:     5,
		AnswerSeconds: 30,
		DebateSeconds: 60,
		VoteSeconds:   20,
	}
	custom := []Question{
		{MajorityPrompt: "Majority?", MinorityPrompt: "Minority?"},
		{MajorityPrompt: "", MinorityPrompt: "dropped"},
	}

	require.NoError(t, r.confirmCustomizationLocked(settings, custom, false, defaultQuestions))

	assert.Equal(t, phaseLobby, r.phase)
	assert.Equal(t, *settings, r.settings)
	require.Len(t, r.questions, 1)
	assert.True(t, r.questions[0].IsCustom)
}

func TestConfirmCustomizationValidatesSettings(t *testing.T) {
	r := testRoom(t, 3, 0)

	bad := &GameSettings{WinCondition: "sudden-death", WinTarget: 1, AnswerSeconds: 30, DebateSeconds: 60, VoteSeconds: 20}
	assert.ErrorIs(t, r.confirmCustomizationLocked(bad, nil, true, nil), errBadWinSetting)
	assert.Equal(t, phaseCustomizeGame, r.phase)

	r.phase = phaseLobby
	assert.ErrorIs(t, r.confirmCustomizationLocked(nil, nil, true, nil), errWrongPhase)
}

func TestStartRoundAssignsExactlyOneAnomaly(t *testing.T) {
	r := testRoom(t, 4, 1)
	r.phase = phaseLobby

	for round := 1; round <= 5; round++ {
		r.startRoundLocked("")

		assert.Equal(t, phaseGame, r.phase)
		assert.Equal(t, round, r.round)

		anomalies := 0
		for _, p := range r.players {
			switch p.Role {
			case roleAnomaly:
				anomalies++
			case roleEntity:
			default:
				t.Fatalf("player %s has role %q", p.ID, p.Role)
			}
		}
		assert.Equal(t, 1, anomalies)
		assert.Empty(t, r.answers)
		assert.Empty(t, r.votes)
		assert.Empty(t, r.readyPlayers)
		require.NotNil(t, r.currentQuestion)

		r.phase = phaseScoreboard
	}
}

func TestStartRoundForcedAnomaly(t *testing.T) {
	r := testRoom(t, 4, 0)
	r.phase = phaseLobby

	r.startRoundLocked("p3")

	anomaly := r.anomalyLocked()
	require.NotNil(t, anomaly)
	assert.Equal(t, "p3", anomaly.ID)
}

func TestStartRoundUsesPlaceholderOnEmptyDeck(t *testing.T) {
	r := testRoom(t, 3, 0)
	r.questions = nil
	r.phase = phaseLobby

	r.startRoundLocked("")

	require.NotNil(t, r.currentQuestion)
	assert.NotEmpty(t, r.currentQuestion.MajorityPrompt)
	assert.NotEmpty(t, r.currentQuestion.MinorityPrompt)
}

func TestPlayAgainKeepsScores(t *testing.T) {
	r := testRoom(t, 3, 0)
	r.phase = phaseGameOver
	r.round = 4
	r.winnerID = "p1"
	r.players[0].Score = 10
	r.players[1].Score = 3
	r.reveal = &Reveal{}

	require.NoError(t, r.playAgainLocked())

	assert.Equal(t, phaseCustomizeGame, r.phase)
	assert.Zero(t, r.round)
	assert.Empty(t, r.winnerID)
	assert.Nil(t, r.reveal)
	assert.Equal(t, 10, r.players[0].Score)
	assert.Equal(t, 3, r.players[1].Score)
}

func TestPlayAgainOnlyFromEndPhases(t *testing.T) {
	r := testRoom(t, 3, 0)
	r.phase = phaseVoting

	assert.ErrorIs(t, r.playAgainLocked(), errWrongPhase)
}
