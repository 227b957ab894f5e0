package main

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	minPlayers  = 3
	maxPlayers  = 12
	avatarCount = 12
	chatLimit   = 100
)

type gamePhase string

const (
	phaseCustomizeGame gamePhase = "CustomizeGame"
	phaseLobby         gamePhase = "Lobby"
	phaseGame          gamePhase = "Game"
	phaseDebate        gamePhase = "Debate"
	phaseVoting        gamePhase = "Voting"
	phaseScoreboard    gamePhase = "Scoreboard"
	phaseGameOver      gamePhase = "GameOver"
)

const (
	roleEntity  = "Entity"
	roleAnomaly = "The Anomaly"
)

const (
	winByScore  = "score"
	winByRounds = "rounds"
)

// Player is one roster entry. ID is the connection identifier for humans
// and a generated identity for bots.
type Player struct {
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	IsHost      bool   `json:"isHost"`
	Score       int    `json:"score"`
	Role        string `json:"role,omitempty"`
	IsBot       bool   `json:"isBot,omitempty"`
	AvatarIndex int    `json:"avatarIndex"`
}

type GameSettings struct {
	WinCondition  string `json:"winCondition"`
	WinTarget     int    `json:"winTarget"`
	AnswerSeconds int    `json:"answerSeconds"`
	DebateSeconds int    `json:"debateSeconds"`
	VoteSeconds   int    `json:"voteSeconds"`
}

func defaultSettings() GameSettings {
	return GameSettings{
		WinCondition:  winByScore,
		WinTarget:     10,
		AnswerSeconds: 60,
		DebateSeconds: 120,
		VoteSeconds:   30,
	}
}

func (s GameSettings) validate() error {
	if (s.WinCondition != winByScore && s.WinCondition != winByRounds) || s.WinTarget < 1 {
		return errBadWinSetting
	}
	if s.AnswerSeconds < 1 || s.DebateSeconds < 1 || s.VoteSeconds < 1 {
		return errBadTimerValues
	}
	return nil
}

// Reveal is the outcome of one vote tally, replaced each round.
type Reveal struct {
	EliminatedPlayerID *string        `json:"eliminatedPlayerId"`
	AnomalyPlayerID    string         `json:"anomalyPlayerId"`
	AnomalyCaught      bool           `json:"anomalyCaught"`
	ScoreDeltas        map[string]int `json:"scoreDeltas"`
}

type ChatMessage struct {
	PlayerID string    `json:"playerId"`
	Nickname string    `json:"nickname"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

// Room is the unit of isolation: one game session. All fields below mu are
// guarded by it; methods suffixed Locked assume the caller holds it.
type Room struct {
	mu sync.Mutex

	code            string
	phase           gamePhase
	players         []*Player
	settings        GameSettings
	questions       []Question
	round           int
	currentQuestion *Question
	answers         map[string]string
	readyPlayers    map[string]bool
	votes           map[string]*string
	reveal          *Reveal
	winnerID        string
	chat            []ChatMessage

	graceActive bool
	graceLeft   int
	graceCancel chan struct{}
	tallyTimer  *time.Timer

	lastActive time.Time
	rng        *rand.Rand
}

func newRoom(code string, deck []Question) *Room {
	return &Room{
		code:         code,
		phase:        phaseCustomizeGame,
		settings:     defaultSettings(),
		questions:    deck,
		answers:      make(map[string]string),
		readyPlayers: make(map[string]bool),
		votes:        make(map[string]*string),
		lastActive:   time.Now(),
		rng:          newRNG(),
	}
}

func newRNG() *rand.Rand {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))
}

func (r *Room) touchLocked() {
	r.lastActive = time.Now()
}

func (r *Room) playerLocked(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) hostLocked() *Player {
	for _, p := range r.players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

func (r *Room) anomalyLocked() *Player {
	for _, p := range r.players {
		if p.Role == roleAnomaly {
			return p
		}
	}
	return nil
}

func (r *Room) humanIDsLocked() []string {
	ids := make([]string, 0, len(r.players))
	for _, p := range r.players {
		if !p.IsBot {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// appendChatLocked appends to the bounded chat log, evicting the oldest
// entry once the cap is reached.
func (r *Room) appendChatLocked(msg ChatMessage) {
	r.chat = append(r.chat, msg)
	if len(r.chat) > chatLimit {
		r.chat = append(r.chat[:0], r.chat[len(r.chat)-chatLimit:]...)
	}
}

// pickAvatarLocked chooses an unused avatar index when one remains;
// collisions are prevented best-effort only.
func (r *Room) pickAvatarLocked() int {
	used := make(map[int]bool, len(r.players))
	for _, p := range r.players {
		used[p.AvatarIndex] = true
	}
	free := make([]int, 0, avatarCount)
	for i := range avatarCount {
		if !used[i] {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return r.rng.IntN(avatarCount)
	}
	return free[r.rng.IntN(len(free))]
}

type graceSnapshot struct {
	Active      bool `json:"active"`
	SecondsLeft *int `json:"secondsLeft"`
}

// roomSnapshot is the full authoritative state broadcast after every
// mutation. Snapshot, not diff.
type roomSnapshot struct {
	Code            string             `json:"code"`
	Phase           gamePhase          `json:"phase"`
	Players         []Player           `json:"players"`
	Settings        GameSettings       `json:"settings"`
	Round           int                `json:"round"`
	CurrentQuestion *Question          `json:"currentQuestion,omitempty"`
	Answers         map[string]string  `json:"answers"`
	ReadyPlayers    []string           `json:"readyPlayers"`
	Votes           map[string]*string `json:"votes"`
	Reveal          *Reveal            `json:"reveal,omitempty"`
	WinnerID        string             `json:"winnerId,omitempty"`
	ChatMessages    []ChatMessage      `json:"chatMessages"`
	GracePeriod     graceSnapshot      `json:"gracePeriod"`
}

// snapshotLocked deep-copies everything mutable so the snapshot can be
// serialized after the room lock is released.
func (r *Room) snapshotLocked() roomSnapshot {
	players := make([]Player, len(r.players))
	for i, p := range r.players {
		players[i] = *p
	}

	answers := make(map[string]string, len(r.answers))
	for k, v := range r.answers {
		answers[k] = v
	}

	ready := make([]string, 0, len(r.readyPlayers))
	for _, p := range r.players {
		if r.readyPlayers[p.ID] {
			ready = append(ready, p.ID)
		}
	}

	votes := make(map[string]*string, len(r.votes))
	for k, v := range r.votes {
		if v == nil {
			votes[k] = nil
			continue
		}
		target := *v
		votes[k] = &target
	}

	chat := make([]ChatMessage, len(r.chat))
	copy(chat, r.chat)

	var reveal *Reveal
	if r.reveal != nil {
		deltas := make(map[string]int, len(r.reveal.ScoreDeltas))
		for k, v := range r.reveal.ScoreDeltas {
			deltas[k] = v
		}
		reveal = &Reveal{
			EliminatedPlayerID: r.reveal.EliminatedPlayerID,
			AnomalyPlayerID:    r.reveal.AnomalyPlayerID,
			AnomalyCaught:      r.reveal.AnomalyCaught,
			ScoreDeltas:        deltas,
		}
	}

	grace := graceSnapshot{Active: r.graceActive}
	if r.graceActive {
		left := r.graceLeft
		grace.SecondsLeft = &left
	}

	return roomSnapshot{
		Code:            r.code,
		Phase:           r.phase,
		Players:         players,
		Settings:        r.settings,
		Round:           r.round,
		CurrentQuestion: r.currentQuestion,
		Answers:         answers,
		ReadyPlayers:    ready,
		Votes:           votes,
		Reveal:          reveal,
		WinnerID:        r.winnerID,
		ChatMessages:    chat,
		GracePeriod:     grace,
	}
}
