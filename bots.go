package main

import (
	"time"
)

// Canned bot answers; bots exist to pad small lobbies, not to pass a
// Turing test.
var botAnswers = []string{
	"Probably cheese",
	"My neighbor",
	"Forty-two",
	"A very long nap",
	"The moon, obviously",
	"Whatever Alpha said",
	"Hard to say",
	"Tuesday",
	"An alarming amount",
	"Ask me next round",
}

// botActionDelay spaces bot responses out so they feel less mechanical.
func (r *Room) botActionDelayLocked() time.Duration {
	return 500*time.Millisecond + time.Duration(r.rng.IntN(2000))*time.Millisecond
}

// scheduleBotAnswersLocked queues one delayed answer per bot for the round
// just started. The callbacks re-check room, phase, and round before
// touching anything, so a stale timer is a no-op. Bot answers never count
// toward the human thresholds that advance the phase.
func (g *Gateway) scheduleBotAnswersLocked(room *Room) {
	round := room.round
	for _, p := range room.players {
		if !p.IsBot {
			continue
		}
		botID := p.ID
		answer := botAnswers[room.rng.IntN(len(botAnswers))]
		time.AfterFunc(room.botActionDelayLocked(), func() {
			g.botSubmitAnswer(room, botID, round, answer)
		})
	}
}

func (g *Gateway) botSubmitAnswer(room *Room, botID string, round int, answer string) {
	if _, ok := g.store.Get(room.code); !ok {
		return
	}

	room.mu.Lock()
	stale := room.phase != phaseGame || room.round != round
	if !stale {
		if p := room.playerLocked(botID); p != nil && p.IsBot {
			room.upsertAnswerLocked(botID, answer)
		} else {
			stale = true
		}
	}
	room.mu.Unlock()

	if !stale {
		g.broadcastRoom(room)
	}
}

// scheduleBotVotesLocked queues one delayed vote per bot at Voting entry.
// Bots pick a uniformly random target other than themselves; their votes
// count in the tally but never toward the all-humans-voted trigger.
func (g *Gateway) scheduleBotVotesLocked(room *Room) {
	round := room.round
	for _, p := range room.players {
		if !p.IsBot {
			continue
		}
		botID := p.ID
		time.AfterFunc(room.botActionDelayLocked(), func() {
			g.botCastVote(room, botID, round)
		})
	}
}

func (g *Gateway) botCastVote(room *Room, botID string, round int) {
	if _, ok := g.store.Get(room.code); !ok {
		return
	}

	room.mu.Lock()
	stale := room.phase != phaseVoting || room.round != round
	if !stale {
		voter := room.playerLocked(botID)
		if voter == nil || !voter.IsBot {
			stale = true
		} else {
			targets := make([]string, 0, len(room.players))
			for _, candidate := range room.players {
				if candidate.ID != botID {
					targets = append(targets, candidate.ID)
				}
			}
			if len(targets) > 0 {
				target := targets[room.rng.IntN(len(targets))]
				_ = room.upsertVoteLocked(botID, &target)
			}
		}
	}
	room.mu.Unlock()

	if !stale {
		g.broadcastRoom(room)
	}
}
