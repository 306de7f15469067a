// Package chatbot implements the conversation orchestration engine:
// intent classification, handoff policy and the inbound turn state
// machine.
package chatbot

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"comms-hub/internal/store"

	log "github.com/sirupsen/logrus"
)

// IntentMatch identifies the intent a classifier matched.
type IntentMatch struct {
	IntentID uint
	Name     string
}

// IntentClassifier is the pluggable classification capability. A nil
// match with confidence 0.0 means no intent was detected; confidence is
// always reported.
type IntentClassifier interface {
	Classify(text string) (*IntentMatch, float64)
}

// TFIDFClassifier matches input text against intent training phrases in
// a term-weighted vector space. The trained model is immutable; Retrain
// builds a new one and swaps it in atomically, so readers always see
// either the fully old or fully new model.
type TFIDFClassifier struct {
	bots          *store.ChatbotStore
	minSimilarity float64
	model         atomic.Pointer[tfidfModel]
	logger        *log.Entry
}

type tfidfModel struct {
	vocab      map[string]int
	idf        []float64
	phraseVecs [][]float64
	intents    []IntentMatch // parallel to phraseVecs
}

func NewTFIDFClassifier(bots *store.ChatbotStore, minSimilarity float64) *TFIDFClassifier {
	c := &TFIDFClassifier{
		bots:          bots,
		minSimilarity: minSimilarity,
		logger:        log.WithField("component", "classifier"),
	}
	c.model.Store(&tfidfModel{vocab: map[string]int{}})
	return c
}

// Retrain rebuilds the vector space from the current training phrases.
// On failure the previous model stays in place.
func (c *TFIDFClassifier) Retrain(ctx context.Context) error {
	intents, err := c.bots.ListIntents(ctx)
	if err != nil {
		c.logger.WithError(err).Error("retrain failed, keeping previous model")
		return err
	}

	var phrases []string
	var owners []IntentMatch
	for _, intent := range intents {
		var tp []string
		if len(intent.TrainingPhrases) > 0 {
			if err := json.Unmarshal(intent.TrainingPhrases, &tp); err != nil {
				c.logger.WithError(err).WithField("intent", intent.Name).
					Warn("skipping intent with malformed training phrases")
				continue
			}
		}
		for _, phrase := range tp {
			phrases = append(phrases, phrase)
			owners = append(owners, IntentMatch{IntentID: intent.ID, Name: intent.Name})
		}
	}

	c.model.Store(buildModel(phrases, owners))
	c.logger.WithFields(log.Fields{
		"intents": len(intents),
		"phrases": len(phrases),
	}).Info("classifier model rebuilt")
	return nil
}

// Classify returns the intent owning the most similar training phrase,
// or (nil, 0.0) when nothing clears the similarity floor. Equal maxima
// resolve to the first-encountered phrase.
func (c *TFIDFClassifier) Classify(text string) (*IntentMatch, float64) {
	m := c.model.Load()
	if len(m.phraseVecs) == 0 {
		return nil, 0.0
	}

	query := m.vectorize(text)
	if query == nil {
		return nil, 0.0
	}

	best := -1
	bestSim := 0.0
	for i, vec := range m.phraseVecs {
		sim := dot(query, vec)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}

	if best < 0 || bestSim <= c.minSimilarity {
		return nil, 0.0
	}
	match := m.intents[best]
	return &match, bestSim
}

func buildModel(phrases []string, owners []IntentMatch) *tfidfModel {
	m := &tfidfModel{vocab: map[string]int{}}
	if len(phrases) == 0 {
		return m
	}

	tokenized := make([][]string, len(phrases))
	df := map[string]int{}
	for i, phrase := range phrases {
		tokens := tokenize(phrase)
		tokenized[i] = tokens
		seen := map[string]bool{}
		for _, t := range tokens {
			if _, ok := m.vocab[t]; !ok {
				m.vocab[t] = len(m.vocab)
			}
			if !seen[t] {
				df[t]++
				seen[t] = true
			}
		}
	}

	// Smoothed idf, so terms present in every phrase still carry weight.
	n := float64(len(phrases))
	m.idf = make([]float64, len(m.vocab))
	for term, idx := range m.vocab {
		m.idf[idx] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	m.phraseVecs = make([][]float64, len(phrases))
	m.intents = owners
	for i, tokens := range tokenized {
		m.phraseVecs[i] = m.weigh(tokens)
	}
	return m
}

// vectorize maps text into the model's term space, l2-normalized, so the
// dot product with a phrase vector is the cosine similarity. Returns nil
// when no token of the text is in the vocabulary.
func (m *tfidfModel) vectorize(text string) []float64 {
	tokens := tokenize(text)
	known := false
	for _, t := range tokens {
		if _, ok := m.vocab[t]; ok {
			known = true
			break
		}
	}
	if !known {
		return nil
	}
	return m.weigh(tokens)
}

func (m *tfidfModel) weigh(tokens []string) []float64 {
	vec := make([]float64, len(m.vocab))
	for _, t := range tokens {
		if idx, ok := m.vocab[t]; ok {
			vec[idx]++
		}
	}
	norm := 0.0
	for idx := range vec {
		vec[idx] *= m.idf[idx]
		norm += vec[idx] * vec[idx]
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for idx := range vec {
		vec[idx] /= norm
	}
	return vec
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
