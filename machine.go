package main

import (
	"github.com/google/uuid"
)

// Names handed to bots in order; Omega catches the overflow case where the
// whole pool is somehow taken.
var botNames = []string{
	"Alpha", "Beta", "Gamma", "Delta", "Epsilon", "Zeta",
	"Eta", "Theta", "Iota", "Kappa", "Lambda", "Mu",
}

const botNameFallback = "Omega"

// joinLocked appends a new human player. Rooms accept joins only while
// customizing or in the lobby, and never beyond capacity.
func (r *Room) joinLocked(id, nickname string, capacity int) (*Player, error) {
	if r.phase != phaseLobby && r.phase != phaseCustomizeGame {
		return nil, errNotJoinable
	}
	if len(r.players) >= capacity {
		return nil, errRoomFull
	}

	p := &Player{
		ID:          id,
		Nickname:    sanitizeNickname(nickname),
		IsHost:      len(r.players) == 0,
		AvatarIndex: r.pickAvatarLocked(),
	}
	r.players = append(r.players, p)
	r.touchLocked()

	return p, nil
}

// addBotLocked synthesizes a bot player using the first unused pool name.
func (r *Room) addBotLocked(capacity int) (*Player, error) {
	if len(r.players) >= capacity {
		return nil, errRoomFull
	}

	taken := make(map[string]bool, len(r.players))
	for _, p := range r.players {
		taken[p.Nickname] = true
	}
	name := botNameFallback
	for _, candidate := range botNames {
		if !taken[candidate] {
			name = candidate
			break
		}
	}

	bot := &Player{
		ID:          "bot-" + uuid.NewString(),
		Nickname:    name,
		IsBot:       true,
		IsHost:      len(r.players) == 0,
		AvatarIndex: r.pickAvatarLocked(),
	}
	r.players = append(r.players, bot)
	r.touchLocked()

	return bot, nil
}

// removePlayerLocked drops a player from the roster, transferring host if
// needed, and scrubs their per-round entries. Returns the removed player
// and whether the roster is now empty.
func (r *Room) removePlayerLocked(id string) (*Player, bool) {
	var removed *Player
	dst := r.players[:0]
	for _, p := range r.players {
		if p.ID == id {
			removed = p
			continue
		}
		dst = append(dst, p)
	}
	r.players = dst

	if removed == nil {
		return nil, len(r.players) == 0
	}

	delete(r.answers, id)
	delete(r.readyPlayers, id)
	delete(r.votes, id)
	r.touchLocked()

	if len(r.players) == 0 {
		return removed, true
	}

	if removed.IsHost {
		r.transferHostLocked()
	}

	// Losing the anomaly mid-round leaves the round without one; the next
	// round reassigns. Recorded votes for the removed player stay valid,
	// the tally simply may eliminate an absent id.

	return removed, false
}

// transferHostLocked hands host to the first remaining non-bot player,
// falling back to the first remaining player of any kind.
func (r *Room) transferHostLocked() {
	for _, p := range r.players {
		p.IsHost = false
	}
	for _, p := range r.players {
		if !p.IsBot {
			p.IsHost = true
			return
		}
	}
	if len(r.players) > 0 {
		r.players[0].IsHost = true
	}
}

// confirmCustomizationLocked applies settings and custom question pairs,
// then moves the room to the lobby.
func (r *Room) confirmCustomizationLocked(settings *GameSettings, custom []Question, includeDefaults bool, deck []Question) error {
	if r.phase != phaseCustomizeGame {
		return errWrongPhase
	}

	if settings != nil {
		if err := settings.validate(); err != nil {
			return err
		}
		r.settings = *settings
	}

	questions := make([]Question, 0, len(deck)+len(custom))
	if includeDefaults {
		questions = append(questions, deck...)
	}
	for _, q := range custom {
		q.MajorityPrompt = sanitizeFreeText(q.MajorityPrompt, maxAnswerLength)
		q.MinorityPrompt = sanitizeFreeText(q.MinorityPrompt, maxAnswerLength)
		if q.MajorityPrompt == "" || q.MinorityPrompt == "" {
			continue
		}
		q.IsCustom = true
		questions = append(questions, q)
	}
	r.questions = questions

	r.phase = phaseLobby
	r.touchLocked()

	return nil
}

// startRoundLocked enters the Game phase: bumps the round counter, assigns
// exactly one anomaly, clears per-round state, and draws a question.
// forcedAnomalyID overrides the random role draw when it names a player
// (a debug affordance); empty means uniform random.
func (r *Room) startRoundLocked(forcedAnomalyID string) {
	r.cancelGraceLocked()
	r.cancelTallyLocked()

	r.round++
	r.phase = phaseGame
	r.answers = make(map[string]string)
	r.readyPlayers = make(map[string]bool)
	r.votes = make(map[string]*string)
	r.reveal = nil

	anomalyIdx := r.rng.IntN(len(r.players))
	if forcedAnomalyID != "" {
		for i, p := range r.players {
			if p.ID == forcedAnomalyID {
				anomalyIdx = i
				break
			}
		}
	}
	for i, p := range r.players {
		if i == anomalyIdx {
			p.Role = roleAnomaly
		} else {
			p.Role = roleEntity
		}
	}

	if len(r.questions) == 0 {
		q := placeholderQuestion()
		r.currentQuestion = &q
	} else {
		q := r.questions[r.rng.IntN(len(r.questions))]
		r.currentQuestion = &q
	}

	r.touchLocked()
}

func (r *Room) enterDebateLocked() {
	r.cancelGraceLocked()
	r.phase = phaseDebate
	r.readyPlayers = make(map[string]bool)
	r.touchLocked()
}

func (r *Room) enterVotingLocked() {
	r.phase = phaseVoting
	r.touchLocked()
}

// playAgainLocked restarts the session cycle: back to CustomizeGame with
// round state cleared. Players and their scores are intentionally kept;
// only a brand-new room starts from zero.
func (r *Room) playAgainLocked() error {
	if r.phase != phaseScoreboard && r.phase != phaseGameOver {
		return errWrongPhase
	}

	r.cancelGraceLocked()
	r.cancelTallyLocked()

	r.phase = phaseCustomizeGame
	r.round = 0
	r.answers = make(map[string]string)
	r.readyPlayers = make(map[string]bool)
	r.votes = make(map[string]*string)
	r.reveal = nil
	r.winnerID = ""
	r.currentQuestion = nil
	for _, p := range r.players {
		p.Role = ""
	}
	r.touchLocked()

	return nil
}

// cancelGraceLocked stops any outstanding grace countdown. The countdown
// goroutine also re-checks phase before every mutation, so a late fire
// after this is a no-op either way.
func (r *Room) cancelGraceLocked() {
	if r.graceCancel != nil {
		close(r.graceCancel)
		r.graceCancel = nil
	}
	r.graceActive = false
	r.graceLeft = 0
}

func (r *Room) cancelTallyLocked() {
	if r.tallyTimer != nil {
		r.tallyTimer.Stop()
		r.tallyTimer = nil
	}
}

// cancelTimersLocked is called before a room is destroyed so nothing can
// resurrect it afterwards.
func (r *Room) cancelTimersLocked() {
	r.cancelGraceLocked()
	r.cancelTallyLocked()
}
