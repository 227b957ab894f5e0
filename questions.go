package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

// Question is a prompt pair. The majority prompt goes to Entity players,
// the minority prompt to The Anomaly. Selection happens client-side based
// on the player's own role for the round.
type Question struct {
	MajorityPrompt string `json:"majorityPrompt"`
	MinorityPrompt string `json:"minorityPrompt"`
	IsCustom       bool   `json:"isCustom,omitempty"`
}

//go:embed questions.json
var defaultQuestionData []byte

var defaultQuestions = mustParseQuestions(defaultQuestionData)

func mustParseQuestions(data []byte) []Question {
	questions, err := parseQuestions(data)
	if err != nil {
		panic("embedded question deck: " + err.Error())
	}
	return questions
}

func parseQuestions(data []byte) ([]Question, error) {
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}

	valid := questions[:0]
	for _, q := range questions {
		q.MajorityPrompt = sanitizeFreeText(q.MajorityPrompt, maxAnswerLength)
		q.MinorityPrompt = sanitizeFreeText(q.MinorityPrompt, maxAnswerLength)
		if q.MajorityPrompt == "" || q.MinorityPrompt == "" {
			continue
		}
		valid = append(valid, q)
	}
	return valid, nil
}

// loadDeck returns the default deck, extended with pairs from the
// configured questions file if one was given.
func loadDeck(cfg *Config) ([]Question, error) {
	deck := make([]Question, len(defaultQuestions))
	copy(deck, defaultQuestions)

	if cfg.questionsFile == "" {
		return deck, nil
	}

	data, err := os.ReadFile(cfg.questionsFile)
	if err != nil {
		return nil, fmt.Errorf("reading questions file: %w", err)
	}
	extra, err := parseQuestions(data)
	if err != nil {
		return nil, fmt.Errorf("parsing questions file %q: %w", cfg.questionsFile, err)
	}

	return append(deck, extra...), nil
}

// placeholderQuestion fills in when a room ends up with an empty deck.
func placeholderQuestion() Question {
	return Question{
		MajorityPrompt: "Describe your perfect weekend.",
		MinorityPrompt: "Describe your most boring weekend.",
	}
}
