package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Candidate is one hypothesis from the recognizer.
type Candidate struct {
	Token      string  `json:"token"`
	Confidence float64 `json:"confidence"`
}

// vote is the outcome of ranking a recognition result.
type vote struct {
	best      Candidate
	runnerUp  Candidate
	hasRunner bool
}

// tally ranks candidates by confidence. ok is false for an empty result.
func tally(cands []Candidate) (v vote, ok bool) {
	if len(cands) == 0 {
		return vote{}, false
	}
	ranked := make([]Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	v.best = ranked[0]
	if len(ranked) > 1 {
		v.runnerUp = ranked[1]
		v.hasRunner = true
	}
	return v, true
}

// gate holds the acceptance rules for a vote.
type gate struct {
	threshold float64
	// margin is the minimum lead of the best candidate over the runner-up.
	// Zero disables the check.
	margin float64
}

func (g gate) accept(v vote) bool {
	if v.best.Confidence < g.threshold {
		return false
	}
	if g.margin > 0 && v.hasRunner && v.best.Confidence-v.runnerUp.Confidence < g.margin {
		return false
	}
	return true
}

// parseHeard reads a typed utterance such as "capital a 0.9 b 0.4 stop".
// Words up to a decimal score form one token; a token without a score gets 1.
func parseHeard(fields []string) ([]Candidate, error) {
	var (
		cands []Candidate
		words []string
	)
	flush := func(score float64) {
		cands = append(cands, Candidate{Token: strings.Join(words, " "), Confidence: score})
		words = words[:0]
	}
	for _, f := range fields {
		if len(words) == 0 || !strings.Contains(f, ".") {
			words = append(words, f)
			continue
		}
		score, err := strconv.ParseFloat(f, 64)
		if err != nil {
			words = append(words, f)
			continue
		}
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("score %q out of range [0,1]", f)
		}
		flush(score)
	}
	if len(words) > 0 {
		flush(1)
	}
	return cands, nil
}
