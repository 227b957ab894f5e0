package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		maxPlayers:  maxPlayers,
		gracePeriod: 50 * time.Millisecond,
		graceTick:   10 * time.Millisecond,
		tallyDelay:  20 * time.Millisecond,
	}
}

func newTestGateway() *Gateway {
	return NewGateway(testConfig(), NewRoomStore(), defaultQuestions)
}

// nextEvent drains the client's events until one of the given type shows up.
func nextEvent(t *testing.T, c *localClient, eventType string) serverEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for %s", eventType)
			}
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

// waitForPhase drains state updates until the room reaches one of the
// given phases.
func waitForPhase(t *testing.T, c *localClient, phases ...gamePhase) roomSnapshot {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for %v", phases)
			}
			if ev.Type != "updateGameState" || ev.State == nil {
				continue
			}
			for _, phase := range phases {
				if ev.State.Phase == phase {
					return *ev.State
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %v", phases)
		}
	}
}

// startThreePlayerGame walks host and two guests through create, join,
// customization, and game start.
func startThreePlayerGame(t *testing.T, g *Gateway) (clients []*localClient, code string) {
	t.Helper()

	host := g.connectLocal()
	require.NoError(t, host.Emit(intentMessage{Type: "createRoom", Nickname: "Host"}))
	created := nextEvent(t, host, "updateGameState")
	code = created.State.Code
	require.Equal(t, phaseCustomizeGame, created.State.Phase)

	clients = []*localClient{host}
	for i := 2; i <= 3; i++ {
		guest := g.connectLocal()
		require.NoError(t, guest.Emit(intentMessage{
			Type:     "joinRoom",
			Nickname: fmt.Sprintf("Guest%d", i),
			RoomCode: code,
		}))
		nextEvent(t, guest, "updateGameState")
		clients = append(clients, guest)
	}

	require.NoError(t, host.Emit(intentMessage{Type: "confirmCustomization"}))
	waitForPhase(t, host, phaseLobby)

	require.NoError(t, host.Emit(intentMessage{Type: "startGame"}))
	snapshot := waitForPhase(t, host, phaseGame)
	require.Equal(t, 1, snapshot.Round)

	return clients, code
}

func TestRoundTrip(t *testing.T) {
	g := newTestGateway()
	clients, code := startThreePlayerGame(t, g)
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	// Everyone answers; the last answer advances straight to Debate.
	for i, c := range clients {
		require.NoError(t, c.Emit(intentMessage{Type: "submitAnswer", Answer: fmt.Sprintf("answer %d", i)}))
	}
	debate := waitForPhase(t, clients[0], phaseDebate)
	assert.Len(t, debate.Answers, 3)

	for _, c := range clients {
		require.NoError(t, c.Emit(intentMessage{Type: "readyForVote"}))
	}
	voting := waitForPhase(t, clients[0], phaseVoting)

	// Pick one entity; everyone votes for them, so the anomaly survives.
	var target string
	for _, p := range voting.Players {
		if p.Role == roleEntity {
			target = p.ID
			break
		}
	}
	require.NotEmpty(t, target)

	for _, c := range clients {
		require.NoError(t, c.Emit(intentMessage{Type: "vote", VotedPlayerID: &target}))
	}

	// The tally fires once, after the suspense delay.
	result := waitForPhase(t, clients[0], phaseScoreboard, phaseGameOver)
	require.NotNil(t, result.Reveal)
	require.NotNil(t, result.Reveal.EliminatedPlayerID)
	assert.Equal(t, target, *result.Reveal.EliminatedPlayerID)
	assert.False(t, result.Reveal.AnomalyCaught)
	assert.Equal(t, result.Reveal.AnomalyPlayerID, anomalyOf(result))

	// And never a second time: the room stays put afterwards.
	time.Sleep(3 * g.cfg.tallyDelay)
	require.NoError(t, clients[0].Emit(intentMessage{Type: "sendMessage", Message: "gg"}))
	after := nextEvent(t, clients[0], "updateGameState")
	assert.Equal(t, result.Phase, after.State.Phase)
	assert.Equal(t, 1, after.State.Round)

	room, ok := g.store.Get(code)
	require.True(t, ok)
	room.mu.Lock()
	anomalyScore := room.anomalyLocked().Score
	room.mu.Unlock()
	assert.Equal(t, 2, anomalyScore, "surviving anomaly scores two")
}

func anomalyOf(s roomSnapshot) string {
	for _, p := range s.Players {
		if p.Role == roleAnomaly {
			return p.ID
		}
	}
	return ""
}

func TestJoinFullRoomRejected(t *testing.T) {
	g := newTestGateway()

	host := g.connectLocal()
	defer host.Close()
	require.NoError(t, host.Emit(intentMessage{Type: "createRoom", Nickname: "Host"}))
	code := nextEvent(t, host, "updateGameState").State.Code

	for i := 2; i <= maxPlayers; i++ {
		guest := g.connectLocal()
		defer guest.Close()
		require.NoError(t, guest.Emit(intentMessage{Type: "joinRoom", Nickname: "G", RoomCode: code}))
		nextEvent(t, guest, "updateGameState")
	}

	extra := g.connectLocal()
	defer extra.Close()
	require.NoError(t, extra.Emit(intentMessage{Type: "joinRoom", Nickname: "Extra", RoomCode: code}))
	rejection := nextEvent(t, extra, "error")
	assert.Equal(t, errRoomFull.Error(), rejection.Message)

	require.NoError(t, host.Emit(intentMessage{Type: "sendMessage", Message: "full house"}))
	snapshot := nextEvent(t, host, "updateGameState")
	assert.Len(t, snapshot.State.Players, maxPlayers)
}

func TestJoinUnknownRoom(t *testing.T) {
	g := newTestGateway()

	c := g.connectLocal()
	defer c.Close()

	require.NoError(t, c.Emit(intentMessage{Type: "joinRoom", Nickname: "X", RoomCode: "ZZZZ"}))
	assert.Equal(t, errRoomNotFound.Error(), nextEvent(t, c, "error").Message)

	require.NoError(t, c.Emit(intentMessage{Type: "joinRoom", Nickname: "X", RoomCode: "toolong"}))
	assert.Equal(t, errBadRoomCode.Error(), nextEvent(t, c, "error").Message)
}

func TestChatRetention(t *testing.T) {
	g := newTestGateway()

	host := g.connectLocal()
	defer host.Close()
	require.NoError(t, host.Emit(intentMessage{Type: "createRoom", Nickname: "Host"}))
	nextEvent(t, host, "updateGameState")

	var last roomSnapshot
	for i := 1; i <= chatLimit+1; i++ {
		require.NoError(t, host.Emit(intentMessage{Type: "sendMessage", Message: fmt.Sprintf("msg %d", i)}))
		last = *nextEvent(t, host, "updateGameState").State
	}

	require.Len(t, last.ChatMessages, chatLimit)
	assert.Equal(t, "msg 2", last.ChatMessages[0].Text, "oldest message evicted")
	assert.Equal(t, fmt.Sprintf("msg %d", chatLimit+1), last.ChatMessages[chatLimit-1].Text)
}

func TestGraceActivatesAtHalfAndExpires(t *testing.T) {
	g := newTestGateway()

	clients := fourPlayerGame(t, g)
	defer closeAll(clients)

	// Two of four humans answer: 50% reached, countdown starts.
	for _, c := range clients[:2] {
		require.NoError(t, c.Emit(intentMessage{Type: "submitAnswer", Answer: "early"}))
	}

	deadline := time.After(2 * time.Second)
	for {
		var active bool
		select {
		case ev := <-clients[0].Events():
			if ev.Type == "updateGameState" && ev.State.GracePeriod.Active {
				require.NotNil(t, ev.State.GracePeriod.SecondsLeft)
				active = true
			}
		case <-deadline:
			t.Fatal("grace period never activated")
		}
		if active {
			break
		}
	}

	// Nobody else answers; expiry forces Debate with answers still missing.
	expired := waitForPhase(t, clients[0], phaseDebate)
	assert.Len(t, expired.Answers, 2)
	assert.False(t, expired.GracePeriod.Active)
}

func TestGraceCancelledWhenAllAnswer(t *testing.T) {
	g := newTestGateway()

	clients := fourPlayerGame(t, g)
	defer closeAll(clients)

	for _, c := range clients[:2] {
		require.NoError(t, c.Emit(intentMessage{Type: "submitAnswer", Answer: "early"}))
	}
	for _, c := range clients[2:] {
		require.NoError(t, c.Emit(intentMessage{Type: "submitAnswer", Answer: "late"}))
	}

	debate := waitForPhase(t, clients[0], phaseDebate)
	assert.Len(t, debate.Answers, 4)

	// No grace tick may mutate state after the transition.
	time.Sleep(g.cfg.gracePeriod + 3*g.cfg.tick())
	require.NoError(t, clients[0].Emit(intentMessage{Type: "sendMessage", Message: "still here"}))
	after := nextEvent(t, clients[0], "updateGameState")
	assert.Equal(t, phaseDebate, after.State.Phase)
	assert.False(t, after.State.GracePeriod.Active)
}

func fourPlayerGame(t *testing.T, g *Gateway) []*localClient {
	t.Helper()

	host := g.connectLocal()
	require.NoError(t, host.Emit(intentMessage{Type: "createRoom", Nickname: "Host"}))
	code := nextEvent(t, host, "updateGameState").State.Code

	clients := []*localClient{host}
	for i := 2; i <= 4; i++ {
		guest := g.connectLocal()
		require.NoError(t, guest.Emit(intentMessage{Type: "joinRoom", Nickname: fmt.Sprintf("Guest%d", i), RoomCode: code}))
		nextEvent(t, guest, "updateGameState")
		clients = append(clients, guest)
	}

	require.NoError(t, host.Emit(intentMessage{Type: "confirmCustomization"}))
	require.NoError(t, host.Emit(intentMessage{Type: "startGame"}))
	waitForPhase(t, host, phaseGame)

	return clients
}

func closeAll(clients []*localClient) {
	for _, c := range clients {
		_ = c.Close()
	}
}

func TestStartGameRequiresThreePlayers(t *testing.T) {
	g := newTestGateway()

	host := g.connectLocal()
	defer host.Close()
	require.NoError(t, host.Emit(intentMessage{Type: "createRoom", Nickname: "Host"}))
	nextEvent(t, host, "updateGameState")

	require.NoError(t, host.Emit(intentMessage{Type: "confirmCustomization"}))
	require.NoError(t, host.Emit(intentMessage{Type: "startGame"}))
	assert.Equal(t, errTooFewPlayers.Error(), nextEvent(t, host, "error").Message)
}

func TestStartGameHostOnly(t *testing.T) {
	g := newTestGateway()
	clients, _ := lobbyWithThree(t, g)
	defer closeAll(clients)

	require.NoError(t, clients[1].Emit(intentMessage{Type: "startGame"}))
	assert.Equal(t, errNotHost.Error(), nextEvent(t, clients[1], "error").Message)
}

func lobbyWithThree(t *testing.T, g *Gateway) (clients []*localClient, code string) {
	t.Helper()

	host := g.connectLocal()
	require.NoError(t, host.Emit(intentMessage{Type: "createRoom", Nickname: "Host"}))
	code = nextEvent(t, host, "updateGameState").State.Code

	clients = []*localClient{host}
	for i := 2; i <= 3; i++ {
		guest := g.connectLocal()
		require.NoError(t, guest.Emit(intentMessage{Type: "joinRoom", Nickname: "G", RoomCode: code}))
		nextEvent(t, guest, "updateGameState")
		clients = append(clients, guest)
	}

	require.NoError(t, host.Emit(intentMessage{Type: "confirmCustomization"}))
	waitForPhase(t, host, phaseLobby)

	return clients, code
}

func TestKickPlayer(t *testing.T) {
	g := newTestGateway()
	clients, _ := lobbyWithThree(t, g)
	defer closeAll(clients)

	kickedID := clients[2].id()
	require.NoError(t, clients[0].Emit(intentMessage{Type: "kickPlayer", PlayerID: kickedID}))

	nextEvent(t, clients[2], "kicked")
	snapshot := nextEvent(t, clients[0], "updateGameState")
	assert.Len(t, snapshot.State.Players, 2)

	// A kicked connection is free to start over.
	require.NoError(t, clients[2].Emit(intentMessage{Type: "createRoom", Nickname: "Again"}))
	fresh := nextEvent(t, clients[2], "updateGameState")
	assert.Equal(t, phaseCustomizeGame, fresh.State.Phase)
}

func TestHostDisconnectTransfersToHuman(t *testing.T) {
	g := newTestGateway()

	host := g.connectLocal()
	require.NoError(t, host.Emit(intentMessage{Type: "createRoom", Nickname: "Host"}))
	code := nextEvent(t, host, "updateGameState").State.Code

	require.NoError(t, host.Emit(intentMessage{Type: "addBot"}))
	nextEvent(t, host, "updateGameState")

	human := g.connectLocal()
	defer human.Close()
	require.NoError(t, human.Emit(intentMessage{Type: "joinRoom", Nickname: "Human", RoomCode: code}))
	nextEvent(t, human, "updateGameState")

	require.NoError(t, host.Close())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-human.Events():
			if ev.Type != "updateGameState" || len(ev.State.Players) != 2 {
				continue
			}
			for _, p := range ev.State.Players {
				if p.IsHost {
					assert.False(t, p.IsBot, "host must transfer to the human")
					assert.Equal(t, human.id(), p.ID)
					return
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for host transfer")
		}
	}
}

func TestRoomDestroyedOnLastDisconnect(t *testing.T) {
	g := newTestGateway()
	clients, code := startThreePlayerGame(t, g)

	// Get a tally pending, then everyone leaves before it fires.
	for _, c := range clients {
		require.NoError(t, c.Emit(intentMessage{Type: "submitAnswer", Answer: "a"}))
	}
	waitForPhase(t, clients[0], phaseDebate)
	for _, c := range clients {
		require.NoError(t, c.Emit(intentMessage{Type: "readyForVote"}))
	}
	voting := waitForPhase(t, clients[0], phaseVoting)
	target := voting.Players[0].ID
	for _, c := range clients {
		require.NoError(t, c.Emit(intentMessage{Type: "vote", VotedPlayerID: &target}))
	}

	closeAll(clients)

	_, ok := g.store.Get(code)
	assert.False(t, ok, "room must be gone once its last player leaves")

	// The cancelled tally must not resurrect or mutate anything.
	time.Sleep(3 * g.cfg.tallyDelay)
	assert.Zero(t, g.store.Count())
}

func TestScheduleTallyIdempotent(t *testing.T) {
	g := newTestGateway()

	room, err := g.store.Create(nil)
	require.NoError(t, err)

	room.mu.Lock()
	room.phase = phaseVoting
	g.scheduleTallyLocked(room)
	first := room.tallyTimer
	g.scheduleTallyLocked(room)
	assert.Same(t, first, room.tallyTimer, "second all-voted observation must not arm another tally")
	room.cancelTallyLocked()
	room.mu.Unlock()
}

func TestBotsExcludedFromVoteCompletion(t *testing.T) {
	g := newTestGateway()
	clients, code := startThreePlayerGame(t, g)
	defer closeAll(clients)

	room, ok := g.store.Get(code)
	require.True(t, ok)

	// Seed a bot mid-session directly; completion checks must ignore it.
	room.mu.Lock()
	_, err := room.addBotLocked(g.cfg.maxPlayers)
	require.NoError(t, err)
	room.phase = phaseVoting
	room.mu.Unlock()

	for _, c := range clients {
		require.NoError(t, c.Emit(intentMessage{Type: "vote", VotedPlayerID: nil}))
	}

	result := waitForPhase(t, clients[0], phaseScoreboard, phaseGameOver)
	assert.Nil(t, result.Reveal.EliminatedPlayerID, "abstain-only vote eliminates nobody")
}
