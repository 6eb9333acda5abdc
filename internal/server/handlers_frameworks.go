package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"researchtools/internal/auth"
	"researchtools/internal/causeway"
	apperrors "researchtools/internal/errors"
	"researchtools/internal/framework"
)

func currentUserID(r *http.Request) string {
	u, _ := auth.GetUserFromContext(r.Context())
	return u.ID
}

// queryInt reads a non-negative integer query parameter
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewValidationError(fmt.Sprintf("%s must be a non-negative integer", name),
			map[string]interface{}{"field": name})
	}
	return n, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func pathType(r *http.Request) (framework.Type, error) {
	return framework.ParseType(mux.Vars(r)["type"])
}

func (s *Server) handleListFrameworkTypes(w http.ResponseWriter, r *http.Request) {
	apperrors.SendSuccess(w, framework.Types())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter := framework.ListFilter{Type: t}
	if raw := r.URL.Query().Get("status"); raw != "" {
		if filter.Status, err = framework.ParseStatus(raw); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if filter.Limit, err = queryInt(r, "limit", 50); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		s.fail(w, r, err)
		return
	}

	sessions, err := s.deps.Frameworks.List(r.Context(), currentUserID(r), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in framework.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.deps.Frameworks.Create(r.Context(), currentUserID(r), t, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccessStatus(w, http.StatusCreated, sess)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	templates, err := framework.Templates(t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, map[string]interface{}{
		"framework_type": t,
		"templates":      templates,
		"sections":       framework.Sections(t),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.deps.Frameworks.GetTyped(r.Context(), currentUserID(r), t, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, sess)
}

// typedSession checks that the path's id belongs to the path's framework
func (s *Server) typedSession(r *http.Request) (string, error) {
	t, err := pathType(r)
	if err != nil {
		return "", err
	}
	id := mux.Vars(r)["id"]
	if _, err := s.deps.Frameworks.GetTyped(r.Context(), currentUserID(r), t, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var in framework.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.typedSession(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.deps.Frameworks.Update(r.Context(), currentUserID(r), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.typedSession(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Frameworks.Delete(r.Context(), currentUserID(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, map[string]string{"id": id, "message": "session deleted"})
}

func (s *Server) handleAnalyzeSession(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.deps.Frameworks.AnalyzeWithAI(r.Context(), currentUserID(r), t, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, sess)
}

func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format := r.URL.Query().Get("format")
	if r.ContentLength != 0 {
		var in struct {
			Format string `json:"format"`
		}
		if err := decodeJSON(w, r, &in); err != nil {
			s.fail(w, r, err)
			return
		}
		if in.Format != "" {
			format = in.Format
		}
	}
	if format == "" {
		format = "json"
	}

	res, err := s.deps.Frameworks.Export(r.Context(), currentUserID(r), t, mux.Vars(r)["id"], format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, res)
}

func (s *Server) handleAppendEntry(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		s.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	entry, sess, err := s.deps.Frameworks.AppendEntry(r.Context(), currentUserID(r), t, vars["id"], vars["section"], raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccessStatus(w, http.StatusCreated, map[string]interface{}{
		"section": vars["section"],
		"entry":   entry,
		"session": sess,
	})
}

func (s *Server) handleACHMatrix(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Frameworks.ACHMatrix(r.Context(), currentUserID(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, m)
}

func graphOptions(r *http.Request) causeway.BuildOptions {
	return causeway.BuildOptions{
		FilterOutReqs:  queryBool(r, "filter_out_reqs"),
		FilterOutCaps:  queryBool(r, "filter_out_caps"),
		FilterOutPTARs: queryBool(r, "filter_out_pptars"),
	}
}

func (s *Server) handleCauseWayGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Frameworks.CauseWayGraph(r.Context(), currentUserID(r), mux.Vars(r)["id"], graphOptions(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, map[string]interface{}{"graph": g, "counts": g.CountByKind()})
}

func (s *Server) handleCauseWayChains(w http.ResponseWriter, r *http.Request) {
	chains, err := s.deps.Frameworks.CauseWayChains(r.Context(), currentUserID(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, map[string]interface{}{"chains": chains})
}

func (s *Server) handleCauseWayRisk(w http.ResponseWriter, r *http.Request) {
	risk, err := s.deps.Frameworks.CauseWayRisk(r.Context(), currentUserID(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, risk)
}

// handleBuildCauseWayGraph builds a graph from a posted tree without storing it
func (s *Server) handleBuildCauseWayGraph(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Tree json.RawMessage `json:"tree"`
		causeway.BuildOptions
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(in.Tree) == 0 {
		s.fail(w, r, apperrors.NewValidationError("tree is required", map[string]interface{}{"field": "tree"}))
		return
	}
	tree, err := causeway.ParseTree(in.Tree)
	if err != nil {
		s.fail(w, r, apperrors.NewValidationError(err.Error(), map[string]interface{}{"field": "tree"}))
		return
	}
	g := causeway.BuildGraph(tree, in.BuildOptions)
	apperrors.SendSuccess(w, map[string]interface{}{"graph": g, "counts": g.CountByKind()})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Frameworks.RenderDownload(r.Context(), currentUserID(r), mux.Vars(r)["file"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(d.Body)
}
