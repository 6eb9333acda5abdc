package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	apperrors "researchtools/internal/errors"
	"researchtools/internal/research"
	"researchtools/internal/store"
)

const defaultListLimit = 50

func (s *Server) handleProcessURL(w http.ResponseWriter, r *http.Request) {
	var in struct {
		URL     string `json:"url"`
		Archive bool   `json:"archive"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.deps.Research.ProcessURL(r.Context(), currentUserID(r), in.URL, in.Archive)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccessStatus(w, http.StatusCreated, p)
}

func (s *Server) handleListURLs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	urls, err := s.deps.Research.ListProcessedURLs(r.Context(), currentUserID(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, urls)
}

func (s *Server) handleGetURL(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Research.GetProcessedURL(r.Context(), currentUserID(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, p)
}

func (s *Server) handleCreateCitation(w http.ResponseWriter, r *http.Request) {
	var in research.CitationInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.deps.Research.CreateCitation(r.Context(), currentUserID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccessStatus(w, http.StatusCreated, c)
}

func (s *Server) handleListCitations(w http.ResponseWriter, r *http.Request) {
	citations, err := s.deps.Research.ListCitations(r.Context(), currentUserID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, citations)
}

func (s *Server) handleGetCitation(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Research.GetCitation(r.Context(), currentUserID(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, c)
}

func (s *Server) handleDeleteCitation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Research.DeleteCitation(r.Context(), currentUserID(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, map[string]string{"id": id, "message": "citation deleted"})
}

func (s *Server) handleFormatCitation(w http.ResponseWriter, r *http.Request) {
	style := r.URL.Query().Get("style")
	if style == "" {
		style = "apa"
	}
	f, err := s.deps.Research.FormatStoredCitation(r.Context(), currentUserID(r), mux.Vars(r)["id"], style)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, f)
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var in struct {
		URL      string `json:"url"`
		MaxPages int    `json:"max_pages"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.deps.Research.Scrape(r.Context(), in.URL, in.MaxPages)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, result)
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	var in research.DocumentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.deps.Research.ProcessDocument(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, report)
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req research.JobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	job, err := s.deps.Jobs.Submit(r.Context(), currentUserID(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccessStatus(w, http.StatusAccepted, research.ViewJob(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jobs, err := s.deps.Jobs.List(r.Context(), currentUserID(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, viewJobs(jobs))
}

func viewJobs(jobs []*store.ResearchJob) []*research.JobView {
	views := make([]*research.JobView, len(jobs))
	for i, j := range jobs {
		views[i] = research.ViewJob(j)
	}
	return views
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), currentUserID(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, research.ViewJob(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Cancel(r.Context(), currentUserID(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, research.ViewJob(job))
}

// handleSearch runs a semantic query over the user's framework sessions
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		s.fail(w, r, apperrors.NewNotImplementedError("Session search is disabled"))
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.fail(w, r, apperrors.NewValidationError("q is required", map[string]interface{}{"field": "q"}))
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	hits, err := s.deps.Search.Search(r.Context(), currentUserID(r), q, r.URL.Query().Get("type"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, map[string]interface{}{"query": q, "results": hits})
}
