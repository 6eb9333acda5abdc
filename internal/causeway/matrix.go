package causeway

import (
	"fmt"
	"sort"
	"strings"
)

// Rating is an evidence item's consistency with a hypothesis
type Rating string

const (
	RatingVeryConsistent   Rating = "very_consistent"
	RatingConsistent       Rating = "consistent"
	RatingNeutral          Rating = "neutral"
	RatingInconsistent     Rating = "inconsistent"
	RatingVeryInconsistent Rating = "very_inconsistent"
	RatingNotApplicable    Rating = "not_applicable"
)

var ratingCodes = map[string]Rating{
	"cc": RatingVeryConsistent,
	"c":  RatingConsistent,
	"n":  RatingNeutral,
	"i":  RatingInconsistent,
	"ii": RatingVeryInconsistent,
	"na": RatingNotApplicable,
}

// ParseRating accepts the long names and the short matrix codes (CC, C, N, I, II, NA).
func ParseRating(s string) (Rating, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if r, ok := ratingCodes[key]; ok {
		return r, nil
	}
	switch r := Rating(key); r {
	case RatingVeryConsistent, RatingConsistent, RatingNeutral,
		RatingInconsistent, RatingVeryInconsistent, RatingNotApplicable:
		return r, nil
	}
	return "", fmt.Errorf("unknown rating %q", s)
}

// inconsistency is how much a rating counts against a hypothesis.
func (r Rating) inconsistency() float64 {
	switch r {
	case RatingInconsistent:
		return 1
	case RatingVeryInconsistent:
		return 2
	default:
		return 0
	}
}

// Hypothesis is a column in the matrix
type Hypothesis struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Evidence is a row in the matrix. Weight scales its inconsistency
// contribution; zero means 1.
type Evidence struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Weight      float64           `json:"weight,omitempty"`
	Ratings     map[string]Rating `json:"ratings,omitempty"`
}

// HypothesisScore is the per-column tally
type HypothesisScore struct {
	HypothesisID      string  `json:"hypothesis_id"`
	Inconsistency     float64 `json:"inconsistency"`
	InconsistentCount int     `json:"inconsistent_count"`
	ConsistentCount   int     `json:"consistent_count"`
	Rank              int     `json:"rank"`
}

// Matrix is evidence rows by hypothesis columns
type Matrix struct {
	Hypotheses []Hypothesis      `json:"hypotheses"`
	Rows       []MatrixRow       `json:"rows"`
	Scores     []HypothesisScore `json:"scores"`
}

// MatrixRow carries one evidence item's ratings in column order.
type MatrixRow struct {
	EvidenceID  string   `json:"evidence_id"`
	Description string   `json:"description"`
	Cells       []Rating `json:"cells"`
}

// BuildMatrix lays evidence against hypotheses. Unrated cells are neutral.
// Scores are ranked least inconsistent first; ties keep hypothesis order.
func BuildMatrix(hypotheses []Hypothesis, evidence []Evidence) Matrix {
	m := Matrix{
		Hypotheses: hypotheses,
		Rows:       make([]MatrixRow, 0, len(evidence)),
		Scores:     make([]HypothesisScore, len(hypotheses)),
	}
	for i, h := range hypotheses {
		m.Scores[i].HypothesisID = h.ID
	}

	for _, e := range evidence {
		weight := e.Weight
		if weight <= 0 {
			weight = 1
		}
		row := MatrixRow{EvidenceID: e.ID, Description: e.Description, Cells: make([]Rating, len(hypotheses))}
		for i, h := range hypotheses {
			r, ok := e.Ratings[h.ID]
			if !ok || r == "" {
				r = RatingNeutral
			}
			row.Cells[i] = r

			score := &m.Scores[i]
			score.Inconsistency += r.inconsistency() * weight
			switch r {
			case RatingInconsistent, RatingVeryInconsistent:
				score.InconsistentCount++
			case RatingConsistent, RatingVeryConsistent:
				score.ConsistentCount++
			}
		}
		m.Rows = append(m.Rows, row)
	}

	order := make([]int, len(m.Scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return m.Scores[order[a]].Inconsistency < m.Scores[order[b]].Inconsistency
	})
	for rank, idx := range order {
		m.Scores[idx].Rank = rank + 1
	}
	return m
}

// Ranked returns the scores ordered by rank
func (m Matrix) Ranked() []HypothesisScore {
	out := append([]HypothesisScore(nil), m.Scores...)
	sort.Slice(out, func(a, b int) bool { return out[a].Rank < out[b].Rank })
	return out
}
