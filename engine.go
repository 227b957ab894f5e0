package main

import (
	"sort"
	"time"
)

// upsertAnswerLocked records or overwrites a player's answer for the
// current round. Resubmission is allowed and silent.
func (r *Room) upsertAnswerLocked(id, text string) {
	r.answers[id] = text
	r.touchLocked()
}

// answeredHumansLocked counts answered humans against all humans. Bots are
// excluded from both sides of the ratio.
func (r *Room) answeredHumansLocked() (answered, total int) {
	for _, p := range r.players {
		if p.IsBot {
			continue
		}
		total++
		if _, ok := r.answers[p.ID]; ok {
			answered++
		}
	}
	return answered, total
}

func (r *Room) markReadyLocked(id string) {
	r.readyPlayers[id] = true
	r.touchLocked()
}

func (r *Room) allHumansReadyLocked() bool {
	for _, p := range r.players {
		if p.IsBot {
			continue
		}
		if !r.readyPlayers[p.ID] {
			return false
		}
	}
	return true
}

// upsertVoteLocked records a vote. A nil target is an abstention; a non-nil
// target must name a current roster member.
func (r *Room) upsertVoteLocked(voterID string, target *string) error {
	if target != nil && r.playerLocked(*target) == nil {
		return errMalformedVote
	}
	r.votes[voterID] = target
	r.touchLocked()
	return nil
}

func (r *Room) allHumansVotedLocked() bool {
	for _, p := range r.players {
		if p.IsBot {
			continue
		}
		if _, ok := r.votes[p.ID]; !ok {
			return false
		}
	}
	return true
}

// tallyLocked runs the once-per-round vote tally: counts non-abstain votes,
// picks the eliminated player (random among ties), applies score deltas,
// evaluates the win condition, and lands on Scoreboard or GameOver.
func (r *Room) tallyLocked() {
	counts := make(map[string]int)
	for _, target := range r.votes {
		if target == nil {
			continue
		}
		counts[*target]++
	}

	var eliminated *string
	if len(counts) > 0 {
		max := 0
		for _, n := range counts {
			if n > max {
				max = n
			}
		}
		tied := make([]string, 0, len(counts))
		for id, n := range counts {
			if n == max {
				tied = append(tied, id)
			}
		}
		sort.Strings(tied)
		pick := tied[r.rng.IntN(len(tied))]
		eliminated = &pick
	}

	anomalyID := ""
	if anomaly := r.anomalyLocked(); anomaly != nil {
		anomalyID = anomaly.ID
	}
	caught := eliminated != nil && anomalyID != "" && *eliminated == anomalyID

	deltas := make(map[string]int, len(r.players))
	for _, p := range r.players {
		delta := 0
		switch p.Role {
		case roleAnomaly:
			if !caught {
				delta = 2
			}
		default:
			if caught {
				delta++
			}
			if vote, ok := r.votes[p.ID]; ok && vote != nil && anomalyID != "" && *vote == anomalyID {
				delta++
			}
		}
		deltas[p.ID] = delta
		p.Score += delta
	}

	r.reveal = &Reveal{
		EliminatedPlayerID: eliminated,
		AnomalyPlayerID:    anomalyID,
		AnomalyCaught:      caught,
		ScoreDeltas:        deltas,
	}

	if winner := r.findWinnerLocked(); winner != nil {
		r.winnerID = winner.ID
		r.phase = phaseGameOver
	} else {
		r.phase = phaseScoreboard
	}
	r.touchLocked()
}

// findWinnerLocked evaluates the configured win condition. Ties fall to
// join order in both modes.
func (r *Room) findWinnerLocked() *Player {
	switch r.settings.WinCondition {
	case winByScore:
		for _, p := range r.players {
			if p.Score >= r.settings.WinTarget {
				return p
			}
		}
	case winByRounds:
		if r.round < r.settings.WinTarget {
			return nil
		}
		var best *Player
		for _, p := range r.players {
			if best == nil || p.Score > best.Score {
				best = p
			}
		}
		return best
	}
	return nil
}

// startGraceLocked begins the answer grace period: a countdown that
// force-advances to Debate so one slow human cannot block the room forever.
// Ticks re-check the phase under the lock before mutating, so a tick racing
// a cancellation is a no-op.
func (g *Gateway) startGraceLocked(r *Room) {
	seconds := int(g.cfg.gracePeriod / g.cfg.tick())
	if seconds < 1 {
		seconds = 1
	}

	r.graceActive = true
	r.graceLeft = seconds
	cancel := make(chan struct{})
	r.graceCancel = cancel

	go func() {
		ticker := time.NewTicker(g.cfg.tick())
		defer ticker.Stop()

		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				r.mu.Lock()
				if r.phase != phaseGame || !r.graceActive {
					r.mu.Unlock()
					return
				}
				r.graceLeft--
				expired := r.graceLeft <= 0
				if expired {
					r.enterDebateLocked()
				}
				r.mu.Unlock()

				g.broadcastRoom(r)
				if expired {
					return
				}
			}
		}
	}()
}

// scheduleTallyLocked arms the one-shot suspense delay between the final
// vote and the reveal. Idempotent: a second all-voted observation while a
// tally is pending does not arm another.
func (g *Gateway) scheduleTallyLocked(r *Room) {
	if r.tallyTimer != nil {
		return
	}
	r.tallyTimer = time.AfterFunc(g.cfg.tallyDelay, func() {
		g.finishTally(r)
	})
}

// finishTally executes the scheduled tally, guarding against the room
// having been destroyed or having moved on while the timer was in flight.
func (g *Gateway) finishTally(r *Room) {
	if _, ok := g.store.Get(r.code); !ok {
		return
	}

	r.mu.Lock()
	if r.phase != phaseVoting || r.tallyTimer == nil {
		r.mu.Unlock()
		return
	}
	r.tallyTimer = nil
	r.tallyLocked()
	phase := r.phase
	round := r.round
	r.mu.Unlock()

	g.log.Debug().
		Str("room", r.code).
		Int("round", round).
		Str("phase", string(phase)).
		Msg("tally complete")

	g.broadcastRoom(r)
}
