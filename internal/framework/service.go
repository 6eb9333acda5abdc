package framework

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"researchtools/internal/causeway"
	"researchtools/internal/inference"
	"researchtools/internal/store"
)

// Repository persists sessions. *store.DB satisfies it.
type Repository interface {
	CreateSession(ctx context.Context, s *store.FrameworkSession) error
	GetSession(ctx context.Context, userID, id string) (*store.FrameworkSession, error)
	ListSessions(ctx context.Context, userID string, f store.SessionFilter) ([]*store.FrameworkSession, error)
	UpdateSession(ctx context.Context, s *store.FrameworkSession, at time.Time) error
	DeleteSession(ctx context.Context, userID, id string) error
}

// Suggester produces AI suggestions. *inference.Service satisfies it.
type Suggester interface {
	GenerateFrameworkSuggestions(ctx context.Context, req inference.SuggestionRequest) (*inference.Suggestion, error)
}

// Observer is told about saved and deleted sessions. Observers must not block.
type Observer interface {
	SessionSaved(ctx context.Context, s *Session)
	SessionDeleted(ctx context.Context, userID, id string)
}

// Service implements the session operations shared by every framework
type Service struct {
	repo      Repository
	ai        Suggester
	observers []Observer
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a Service. ai may be nil, in which case analysis fails
// with inference.ErrUnavailable.
func NewService(repo Repository, ai Suggester, logger *zap.Logger, observers ...Observer) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		ai:        ai,
		observers: observers,
		logger:    logger.Named("framework"),
		now:       time.Now,
	}
}

// Create stores a new draft session at version 1. When RequestAI is set the
// AI analysis is attempted first; its failure is logged and creation goes on.
func (s *Service) Create(ctx context.Context, userID string, t Type, in CreateInput) (*Session, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	data, err := DecodeData(t, in.Data)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Type:        t,
		Status:      StatusDraft,
		UserID:      userID,
		Data:        data,
		Version:     1,
		Tags:        normalizeTags(in.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if in.RequestAI {
		suggestions, err := s.suggest(ctx, sess)
		if err != nil {
			s.logger.Warn("AI analysis failed during create",
				zap.String("framework", string(t)), zap.Error(err))
		} else {
			sess.AISuggestions = suggestions
		}
	}

	rec, err := toRecord(sess)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Info("session created",
		zap.String("session_id", sess.ID), zap.String("framework", string(t)), zap.String("user_id", userID))
	s.notifySaved(ctx, sess)
	return sess, nil
}

// Get fetches a session owned by userID
func (s *Service) Get(ctx context.Context, userID, id string) (*Session, error) {
	rec, err := s.repo.GetSession(ctx, userID, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return fromRecord(rec)
}

// GetTyped fetches a session and checks its framework type
func (s *Service) GetTyped(ctx context.Context, userID string, t Type, id string) (*Session, error) {
	sess, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Type != t {
		return nil, fmt.Errorf("%w: %s is a %s session", ErrWrongType, id, sess.Type)
	}
	return sess, nil
}

// List returns the user's sessions, most recently updated first
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]*Session, error) {
	recs, err := s.repo.ListSessions(ctx, userID, store.SessionFilter{
		FrameworkType: string(f.Type),
		Status:        string(f.Status),
		Limit:         f.Limit,
		Offset:        f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	out := make([]*Session, 0, len(recs))
	for _, rec := range recs {
		sess, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Update merges the given fields into the session and bumps its version.
// Concurrent updates are last-writer-wins.
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*Session, error) {
	sess, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return nil, err
		}
		sess.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		sess.Description = *in.Description
	}
	if in.Status != nil {
		st, err := ParseStatus(*in.Status)
		if err != nil {
			return nil, err
		}
		sess.Status = st
	}
	if in.Tags != nil {
		sess.Tags = normalizeTags(*in.Tags)
	}
	if len(bytes.TrimSpace(in.Data)) > 0 {
		current, err := json.Marshal(sess.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding session data: %w", err)
		}
		merged, err := mergeObjects(current, in.Data)
		if err != nil {
			return nil, err
		}
		if sess.Data, err = DecodeData(sess.Type, merged); err != nil {
			return nil, err
		}
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a session owned by userID
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteSession(ctx, userID, id); err != nil {
		return mapStoreErr(err)
	}
	s.logger.Info("session deleted", zap.String("session_id", id), zap.String("user_id", userID))
	for _, o := range s.observers {
		o.SessionDeleted(ctx, userID, id)
	}
	return nil
}

// AppendEntry decodes raw as one entry of the named section, appends it and
// saves the session. It returns the stored entry.
func (s *Service) AppendEntry(ctx context.Context, userID string, t Type, id, sectionName string, raw json.RawMessage) (any, *Session, error) {
	sess, err := s.GetTyped(ctx, userID, t, id)
	if err != nil {
		return nil, nil, err
	}

	fn, ok := registry[t].sections[sectionName]
	if !ok {
		return nil, nil, &ChoiceError{Field: "section", Value: sectionName, Allowed: Sections(t)}
	}
	entry, err := fn(sess.Data, raw)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.Data.Validate(); err != nil {
		return nil, nil, err
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, nil, err
	}
	return entry(), sess, nil
}

// AnalyzeWithAI requests suggestions for the session and stores them.
func (s *Service) AnalyzeWithAI(ctx context.Context, userID string, t Type, id string) (*Session, error) {
	sess, err := s.GetTyped(ctx, userID, t, id)
	if err != nil {
		return nil, err
	}
	suggestions, err := s.suggest(ctx, sess)
	if err != nil {
		return nil, err
	}
	sess.AISuggestions = suggestions
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) suggest(ctx context.Context, sess *Session) (map[string]any, error) {
	tmpl := registry[sess.Type].template
	if tmpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFramework, sess.Type)
	}
	if s.ai == nil {
		return nil, inference.ErrUnavailable
	}

	data, err := json.Marshal(sess.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding session data: %w", err)
	}
	reply, err := s.ai.GenerateFrameworkSuggestions(ctx, inference.SuggestionRequest{
		FrameworkType: string(sess.Type),
		Instruction:   tmpl.Instruction,
		CurrentData:   data,
		ReplyShape:    tmpl.ReplyShape,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		tmpl.ReplyKey:  reply.Content,
		"model":        reply.Model,
		"usage":        reply.Usage,
		"generated_at": s.now().UTC().Format(time.RFC3339),
	}, nil
}

// Export validates the format and returns where the rendered file is served.
func (s *Service) Export(ctx context.Context, userID string, t Type, id, format string) (*ExportResult, error) {
	f, err := ParseExportFormat(format)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetTyped(ctx, userID, t, id); err != nil {
		return nil, err
	}

	filename := ExportFilename(t, id, f)
	return &ExportResult{
		SessionID:   id,
		Format:      f,
		Filename:    filename,
		DownloadURL: "/api/v1/downloads/" + filename,
	}, nil
}

// ACHMatrix builds the evidence matrix of an ACH session
func (s *Service) ACHMatrix(ctx context.Context, userID, id string) (causeway.Matrix, error) {
	sess, err := s.GetTyped(ctx, userID, TypeACH, id)
	if err != nil {
		return causeway.Matrix{}, err
	}
	data := sess.Data.(*ACHData)
	return causeway.BuildMatrix(data.Hypotheses, data.Evidence), nil
}

func (s *Service) causeWayData(ctx context.Context, userID, id string) (*CauseWayData, error) {
	sess, err := s.GetTyped(ctx, userID, TypeCauseWay, id)
	if err != nil {
		return nil, err
	}
	return sess.Data.(*CauseWayData), nil
}

// CauseWayGraph builds the capability graph of a CauseWay session
func (s *Service) CauseWayGraph(ctx context.Context, userID, id string, opts causeway.BuildOptions) (*causeway.Graph, error) {
	data, err := s.causeWayData(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	var tree causeway.Tree
	if len(bytes.TrimSpace(data.Tree)) > 0 {
		if tree, err = causeway.ParseTree(data.Tree); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataCorrupt, err)
		}
	}
	return causeway.BuildGraph(tree, opts), nil
}

// CauseWayChains derives the causal chains of a CauseWay session
func (s *Service) CauseWayChains(ctx context.Context, userID, id string) ([][]string, error) {
	data, err := s.causeWayData(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return causeway.GenerateCausalChains(data.Causes, data.Relationships), nil
}

// CauseWayRisk scores the causes of a CauseWay session
func (s *Service) CauseWayRisk(ctx context.Context, userID, id string) (causeway.RiskScore, error) {
	data, err := s.causeWayData(ctx, userID, id)
	if err != nil {
		return causeway.RiskScore{}, err
	}
	return causeway.CalculateRiskScore(data.Causes), nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	rec, err := toRecord(sess)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateSession(ctx, rec, s.now()); err != nil {
		return mapStoreErr(err)
	}
	sess.Version = rec.Version
	sess.UpdatedAt = rec.UpdatedAt
	s.notifySaved(ctx, sess)
	return nil
}

func (s *Service) notifySaved(ctx context.Context, sess *Session) {
	for _, o := range s.observers {
		o.SessionSaved(ctx, sess)
	}
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func toRecord(sess *Session) (*store.FrameworkSession, error) {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding session data: %w", err)
	}
	var ai string
	if sess.AISuggestions != nil {
		b, err := json.Marshal(sess.AISuggestions)
		if err != nil {
			return nil, fmt.Errorf("encoding AI suggestions: %w", err)
		}
		ai = string(b)
	}
	return &store.FrameworkSession{
		ID:            sess.ID,
		UserID:        sess.UserID,
		Title:         sess.Title,
		Description:   sess.Description,
		FrameworkType: string(sess.Type),
		Status:        string(sess.Status),
		Data:          string(data),
		Version:       sess.Version,
		Tags:          sess.Tags,
		AISuggestions: ai,
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
	}, nil
}

// fromRecord decodes a stored row. A payload that no longer decodes is
// reported as ErrDataCorrupt rather than replaced with an empty payload.
func fromRecord(rec *store.FrameworkSession) (*Session, error) {
	t, err := ParseType(rec.FrameworkType)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrDataCorrupt, rec.ID, err)
	}
	status, err := ParseStatus(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrDataCorrupt, rec.ID, err)
	}
	data, err := DecodeData(t, []byte(rec.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrDataCorrupt, rec.ID, err)
	}

	var ai map[string]any
	if rec.AISuggestions != "" {
		if err := json.Unmarshal([]byte(rec.AISuggestions), &ai); err != nil {
			return nil, fmt.Errorf("%w: session %s AI suggestions: %v", ErrDataCorrupt, rec.ID, err)
		}
	}

	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return &Session{
		ID:            rec.ID,
		Title:         rec.Title,
		Description:   rec.Description,
		Type:          t,
		Status:        status,
		UserID:        rec.UserID,
		Data:          data,
		Version:       rec.Version,
		Tags:          tags,
		AISuggestions: ai,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}, nil
}

// mergeObjects overlays the top-level keys of patch onto base.
func mergeObjects(base, patch []byte) ([]byte, error) {
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("decoding stored data: %w", err)
	}
	if merged == nil {
		merged = make(map[string]json.RawMessage)
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, invalid("data", "must be a JSON object")
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
