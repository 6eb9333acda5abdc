package server

import (
	"net/http"
	"strings"

	apperrors "researchtools/internal/errors"
)

const (
	defaultQuestionsPerCategory = 3
	defaultSummaryWords         = 150
)

// requireText rejects an empty text field
func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.NewValidationError(field+" is required", map[string]interface{}{"field": field})
	}
	return nil
}

func (s *Server) handle5W(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireText("content", in.Content); err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.deps.AI.Generate5WAnalysis(r.Context(), in.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, result)
}

func (s *Server) handleStarbursting(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Topic                string `json:"topic"`
		QuestionsPerCategory int    `json:"questions_per_category"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireText("topic", in.Topic); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.QuestionsPerCategory <= 0 {
		in.QuestionsPerCategory = defaultQuestionsPerCategory
	}
	result, err := s.deps.AI.GenerateStarburstingQuestions(r.Context(), in.Topic, in.QuestionsPerCategory)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, result)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content  string `json:"content"`
		MaxWords int    `json:"max_words"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireText("content", in.Content); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.MaxWords <= 0 {
		in.MaxWords = defaultSummaryWords
	}
	summary, err := s.deps.AI.SummarizeContent(r.Context(), in.Content, in.MaxWords)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, summary)
}

func (s *Server) handleDIME(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Scenario string `json:"scenario"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireText("scenario", in.Scenario); err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.deps.AI.GenerateDIMESuggestions(r.Context(), in.Scenario)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, result)
}
