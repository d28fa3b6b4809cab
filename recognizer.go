package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

// SpeechRecognizer restricts recognition to a vocabulary. Results arrive on
// the bus as WordRecognized events.
type SpeechRecognizer interface {
	SetVocabulary(words []string) error
}

// vocabRecognizer turns heard text into recognition results for the active
// vocabulary. Each heard token is snapped onto the closest vocabulary entry
// by edit distance and its confidence scaled by that similarity.
type vocabRecognizer struct {
	mu            sync.Mutex
	vocabulary    []string
	minSimilarity float64
	fold          cases.Caser
	pub           Publisher
	logger        *slog.Logger
}

func newVocabRecognizer(pub Publisher, minSimilarity float64, logger *slog.Logger) *vocabRecognizer {
	return &vocabRecognizer{
		minSimilarity: minSimilarity,
		fold:          cases.Fold(),
		pub:           pub,
		logger:        logger,
	}
}

func (r *vocabRecognizer) SetVocabulary(words []string) error {
	if len(words) == 0 {
		return fmt.Errorf("empty vocabulary")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vocabulary = append(r.vocabulary[:0:0], words...)
	r.logger.Debug("vocabulary set", "size", len(words))
	return nil
}

// VocabularySize reports how many words are currently recognizable.
func (r *vocabRecognizer) VocabularySize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.vocabulary)
}

// snap returns the vocabulary entry closest to heard and its similarity in
// [0,1].
func (r *vocabRecognizer) snap(heard string) (string, float64) {
	heard = r.fold.String(strings.TrimSpace(heard))
	best, bestSim := "", 0.0
	for _, w := range r.vocabulary {
		fw := r.fold.String(w)
		if fw == heard {
			return w, 1
		}
		longest := max(len(fw), len(heard))
		if longest == 0 {
			continue
		}
		sim := 1 - float64(levenshtein.ComputeDistance(fw, heard))/float64(longest)
		if sim > bestSim {
			best, bestSim = w, sim
		}
	}
	return best, bestSim
}

// Hear publishes a recognition result for the given hypotheses.
func (r *vocabRecognizer) Hear(heard []Candidate) error {
	r.mu.Lock()
	if len(r.vocabulary) == 0 {
		r.mu.Unlock()
		return fmt.Errorf("no vocabulary set")
	}
	byToken := make(map[string]float64)
	for _, h := range heard {
		tok, sim := r.snap(h.Token)
		if sim < r.minSimilarity {
			r.logger.Debug("heard word outside vocabulary", "word", h.Token, "similarity", sim)
			continue
		}
		if c := h.Confidence * sim; c > byToken[tok] {
			byToken[tok] = c
		}
	}
	r.mu.Unlock()

	if len(byToken) == 0 {
		return fmt.Errorf("nothing heard matches the vocabulary")
	}
	cands := make([]Candidate, 0, len(byToken))
	for tok, c := range byToken {
		cands = append(cands, Candidate{Token: tok, Confidence: c})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Confidence != cands[j].Confidence {
			return cands[i].Confidence > cands[j].Confidence
		}
		return cands[i].Token < cands[j].Token
	})
	r.logger.Debug("recognized", "best", cands[0].Token, "confidence", cands[0].Confidence)
	return r.pub.Publish(WordRecognized{Candidates: cands})
}

// listen reads one utterance per line from in until EOF or ctx ends.
func (r *vocabRecognizer) listen(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read utterances: %w", err)
			}
			return nil
		case line := <-lines:
			heard, err := parseHeard(strings.Fields(line))
			if err != nil {
				r.logger.Warn("bad utterance", "line", line, "error", err)
				continue
			}
			if len(heard) == 0 {
				continue
			}
			if err := r.Hear(heard); err != nil {
				r.logger.Warn("utterance not recognized", "line", line, "error", err)
			}
		}
	}
}
