// Package framework manages analysis sessions for the structured analytic
// frameworks. Each framework type has a typed data payload, a set of
// appendable sections and, for most types, an AI suggestion template.
package framework

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type identifies an analytic framework
type Type string

const (
	TypeSWOT               Type = "swot"
	TypeCOG                Type = "cog"
	TypePMESIIPT           Type = "pmesii_pt"
	TypeACH                Type = "ach"
	TypeDIME               Type = "dime"
	TypeDOTMLPF            Type = "dotmlpf"
	TypeStarbursting       Type = "starbursting"
	TypeCauseWay           Type = "causeway"
	TypeDeceptionDetection Type = "deception_detection"
	TypeBehavioralAnalysis Type = "behavioral_analysis"
	TypePEST               Type = "pest"
	TypeVRIO               Type = "vrio"
	TypeStakeholder        Type = "stakeholder"
	TypeTrend              Type = "trend"
	TypeSurveillance       Type = "surveillance"
	TypeFundamentalFlow    Type = "fundamental_flow"
)

// AllTypes lists every framework type in display order.
var AllTypes = []Type{
	TypeSWOT, TypeCOG, TypePMESIIPT, TypeACH, TypeDIME, TypeDOTMLPF, TypeStarbursting,
	TypeCauseWay, TypeDeceptionDetection, TypeBehavioralAnalysis, TypePEST, TypeVRIO,
	TypeStakeholder, TypeTrend, TypeSurveillance, TypeFundamentalFlow,
}

// Status is the lifecycle state of a session
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

// AllStatuses lists the accepted statuses.
var AllStatuses = []Status{StatusDraft, StatusInProgress, StatusCompleted, StatusArchived}

// ExportFormats is the export allow-list.
var ExportFormats = []string{"pdf", "docx", "pptx", "json", "markdown"}

var (
	ErrNotFound             = errors.New("framework session not found")
	ErrUnsupportedFramework = errors.New("AI analysis is not supported for this framework")
	ErrDataCorrupt          = errors.New("stored framework data is corrupt")
	ErrWrongType            = errors.New("session has a different framework type")
	ErrExportNotRendered    = errors.New("export format is not rendered by this server")
)

// ChoiceError reports a value outside an allowed set.
type ChoiceError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ChoiceError) Error() string {
	return fmt.Sprintf("invalid %s %q: must be one of %s", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// ValidationError reports a malformed payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseType validates a framework type name
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTypes {
		if t == known {
			return t, nil
		}
	}
	allowed := make([]string, len(AllTypes))
	for i, k := range AllTypes {
		allowed[i] = string(k)
	}
	return "", &ChoiceError{Field: "framework_type", Value: s, Allowed: allowed}
}

// ParseStatus validates a status name
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	allowed := make([]string, len(AllStatuses))
	for i, k := range AllStatuses {
		allowed[i] = string(k)
	}
	return "", &ChoiceError{Field: "status", Value: s, Allowed: allowed}
}

// ParseExportFormat validates an export format
func ParseExportFormat(s string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(s))
	for _, known := range ExportFormats {
		if f == known {
			return f, nil
		}
	}
	return "", &ChoiceError{Field: "format", Value: s, Allowed: ExportFormats}
}

// Session is an analysis session with its decoded data
type Session struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Type          Type           `json:"framework_type"`
	Status        Status         `json:"status"`
	UserID        string         `json:"user_id"`
	Data          Data           `json:"data"`
	Version       int            `json:"version"`
	Tags          []string       `json:"tags"`
	AISuggestions map[string]any `json:"ai_suggestions,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CreateInput is the payload for Create
type CreateInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Data        RawData  `json:"data"`
	Tags        []string `json:"tags"`
	RequestAI   bool     `json:"request_ai_analysis"`
}

// UpdateInput carries the fields to change. Nil fields are left alone; Data is
// merged into the stored data key by key.
type UpdateInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Data        RawData   `json:"data"`
	Tags        *[]string `json:"tags"`
}

// ListFilter narrows List
type ListFilter struct {
	Type   Type
	Status Status
	Limit  int
	Offset int
}

// ExportResult describes where an export can be downloaded
type ExportResult struct {
	SessionID   string `json:"session_id"`
	Format      string `json:"format"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
}

// TypeInfo describes a framework for listings
type TypeInfo struct {
	Type        Type     `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Sections    []string `json:"sections"`
	AISupported bool     `json:"ai_supported"`
}

const maxTitleLength = 200

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return invalid("title", "is required")
	}
	if len(title) > maxTitleLength {
		return invalid("title", "must be at most %d characters", maxTitleLength)
	}
	return nil
}
