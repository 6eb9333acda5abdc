package framework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"researchtools/internal/causeway"
)

// RawData is an undecoded framework payload
type RawData = json.RawMessage

// Data is the typed payload of a session. Validate checks the payload and
// fills defaults such as missing entry IDs.
type Data interface {
	Validate() error
}

// DecodeData decodes raw into the payload struct for t. Unknown fields are
// rejected. Empty input yields an empty payload.
func DecodeData(t Type, raw []byte) (Data, error) {
	def, ok := registry[t]
	if !ok {
		_, err := ParseType(string(t))
		return nil, err
	}

	d := def.newData()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := decodeStrict(trimmed, d); err != nil {
			return nil, invalid("data", "%v", err)
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

func nonEmpty(field string, items []string) error {
	for i, item := range items {
		if strings.TrimSpace(item) == "" {
			return invalid(fmt.Sprintf("%s[%d]", field, i), "must not be empty")
		}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ChoiceError{Field: field, Value: value, Allowed: allowed}
}

func unitInterval(field string, v float64) error {
	if v < 0 || v > 1 {
		return invalid(field, "must be between 0 and 1")
	}
	return nil
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// SWOTData holds a SWOT analysis
type SWOTData struct {
	Objective     string   `json:"objective"`
	Context       string   `json:"context"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

func (d *SWOTData) Validate() error {
	for field, items := range map[string][]string{
		"strengths": d.Strengths, "weaknesses": d.Weaknesses,
		"opportunities": d.Opportunities, "threats": d.Threats,
	} {
		if err := nonEmpty(field, items); err != nil {
			return err
		}
	}
	return nil
}

// COGEntity is one node of a center of gravity analysis
type COGEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// COGRelationship links two entities
type COGRelationship struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
}

var cogEntityTypes = []string{
	"center_of_gravity", "critical_capability", "critical_requirement", "critical_vulnerability",
}

// COGData holds a center of gravity analysis
type COGData struct {
	Actor         string            `json:"actor"`
	Scenario      string            `json:"scenario"`
	Entities      []COGEntity       `json:"entities"`
	Relationships []COGRelationship `json:"relationships"`
}

func (d *COGData) Validate() error {
	ids := make(map[string]bool, len(d.Entities))
	for i := range d.Entities {
		e := &d.Entities[i]
		ensureID(&e.ID)
		if strings.TrimSpace(e.Name) == "" {
			return invalid(fmt.Sprintf("entities[%d].name", i), "is required")
		}
		if err := oneOf("entity type", e.Type, cogEntityTypes...); err != nil {
			return err
		}
		ids[e.ID] = true
	}
	for i, r := range d.Relationships {
		if !ids[r.SourceID] || !ids[r.TargetID] {
			return invalid(fmt.Sprintf("relationships[%d]", i), "must reference existing entities")
		}
	}
	return nil
}

// PMESIIPTData holds a PMESII-PT operational environment analysis
type PMESIIPTData struct {
	Scenario            string   `json:"scenario"`
	Political           []string `json:"political"`
	Military            []string `json:"military"`
	Economic            []string `json:"economic"`
	Social              []string `json:"social"`
	Information         []string `json:"information"`
	Infrastructure      []string `json:"infrastructure"`
	PhysicalEnvironment []string `json:"physical_environment"`
	Time                []string `json:"time"`
}

func (d *PMESIIPTData) Validate() error {
	for field, items := range map[string][]string{
		"political": d.Political, "military": d.Military, "economic": d.Economic,
		"social": d.Social, "information": d.Information, "infrastructure": d.Infrastructure,
		"physical_environment": d.PhysicalEnvironment, "time": d.Time,
	} {
		if err := nonEmpty(field, items); err != nil {
			return err
		}
	}
	return nil
}

// ACHData holds an analysis of competing hypotheses
type ACHData struct {
	Question   string                `json:"question"`
	Hypotheses []causeway.Hypothesis `json:"hypotheses"`
	Evidence   []causeway.Evidence   `json:"evidence"`
}

// Validate canonicalizes rating codes (C, II, ...) and checks that ratings
// name existing hypotheses.
func (d *ACHData) Validate() error {
	ids := make(map[string]bool, len(d.Hypotheses))
	for i := range d.Hypotheses {
		h := &d.Hypotheses[i]
		ensureID(&h.ID)
		if strings.TrimSpace(h.Description) == "" {
			return invalid(fmt.Sprintf("hypotheses[%d].description", i), "is required")
		}
		if ids[h.ID] {
			return invalid(fmt.Sprintf("hypotheses[%d].id", i), "duplicate id %q", h.ID)
		}
		ids[h.ID] = true
	}

	for i := range d.Evidence {
		e := &d.Evidence[i]
		ensureID(&e.ID)
		if strings.TrimSpace(e.Description) == "" {
			return invalid(fmt.Sprintf("evidence[%d].description", i), "is required")
		}
		if e.Weight < 0 {
			return invalid(fmt.Sprintf("evidence[%d].weight", i), "must not be negative")
		}
		for hid, r := range e.Ratings {
			if !ids[hid] {
				return invalid(fmt.Sprintf("evidence[%d].ratings", i), "unknown hypothesis %q", hid)
			}
			canonical, err := causeway.ParseRating(string(r))
			if err != nil {
				return invalid(fmt.Sprintf("evidence[%d].ratings", i), "%v", err)
			}
			e.Ratings[hid] = canonical
		}
	}
	return nil
}

// DIMEData holds a DIME instruments-of-power analysis
type DIMEData struct {
	Scenario    string   `json:"scenario"`
	Diplomatic  []string `json:"diplomatic"`
	Information []string `json:"information"`
	Military    []string `json:"military"`
	Economic    []string `json:"economic"`
}

func (d *DIMEData) Validate() error {
	for field, items := range map[string][]string{
		"diplomatic": d.Diplomatic, "information": d.Information,
		"military": d.Military, "economic": d.Economic,
	} {
		if err := nonEmpty(field, items); err != nil {
			return err
		}
	}
	return nil
}

// DOTMLPFData holds a DOTMLPF-P capability gap analysis
type DOTMLPFData struct {
	Mission      string   `json:"mission"`
	Doctrine     []string `json:"doctrine"`
	Organization []string `json:"organization"`
	Training     []string `json:"training"`
	Materiel     []string `json:"materiel"`
	Leadership   []string `json:"leadership"`
	Personnel    []string `json:"personnel"`
	Facilities   []string `json:"facilities"`
	Policy       []string `json:"policy"`
}

func (d *DOTMLPFData) Validate() error {
	for field, items := range map[string][]string{
		"doctrine": d.Doctrine, "organization": d.Organization, "training": d.Training,
		"materiel": d.Materiel, "leadership": d.Leadership, "personnel": d.Personnel,
		"facilities": d.Facilities, "policy": d.Policy,
	} {
		if err := nonEmpty(field, items); err != nil {
			return err
		}
	}
	return nil
}

// StarburstQuestion is one question around the central idea
type StarburstQuestion struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

var starburstCategories = []string{"who", "what", "when", "where", "why", "how"}

// StarburstingData holds a starbursting question set
type StarburstingData struct {
	CentralIdea string              `json:"central_idea"`
	Questions   []StarburstQuestion `json:"questions"`
}

func (d *StarburstingData) Validate() error {
	for i := range d.Questions {
		q := &d.Questions[i]
		ensureID(&q.ID)
		q.Category = strings.ToLower(q.Category)
		if err := oneOf("category", q.Category, starburstCategories...); err != nil {
			return err
		}
		if strings.TrimSpace(q.Question) == "" {
			return invalid(fmt.Sprintf("questions[%d].question", i), "is required")
		}
	}
	return nil
}

var impactLevels = []string{"low", "medium", "high", "critical"}

// CauseWayData holds a CauseWay analysis: the capability tree plus the cause
// and relationship sets used for chains and risk.
type CauseWayData struct {
	Scenario      string                  `json:"scenario"`
	Tree          json.RawMessage         `json:"tree,omitempty"`
	Causes        []causeway.Cause        `json:"causes"`
	Relationships []causeway.Relationship `json:"relationships"`
}

func (d *CauseWayData) Validate() error {
	if len(bytes.TrimSpace(d.Tree)) > 0 {
		if _, err := causeway.ParseTree(d.Tree); err != nil {
			return invalid("tree", "%v", err)
		}
	}

	ids := make(map[string]bool, len(d.Causes))
	for i := range d.Causes {
		c := &d.Causes[i]
		ensureID(&c.ID)
		if c.Type == "" {
			c.Type = causeway.CauseContributing
		}
		if c.ImpactLevel == "" {
			c.ImpactLevel = "medium"
		}
		if err := oneOf("impact_level", c.ImpactLevel, impactLevels...); err != nil {
			return err
		}
		if err := unitInterval(fmt.Sprintf("causes[%d].likelihood", i), c.Likelihood); err != nil {
			return err
		}
		if err := unitInterval(fmt.Sprintf("causes[%d].confidence", i), c.Confidence); err != nil {
			return err
		}
		ids[c.ID] = true
	}
	for i, r := range d.Relationships {
		if !ids[r.SourceID] || !ids[r.TargetID] {
			return invalid(fmt.Sprintf("relationships[%d]", i), "must reference existing causes")
		}
	}
	return nil
}

// DeceptionIndicator is one finding from the deception checklists
type DeceptionIndicator struct {
	ID          string  `json:"id"`
	Checklist   string  `json:"checklist"`
	Description string  `json:"description"`
	Likelihood  float64 `json:"likelihood"`
}

var deceptionChecklists = []string{"mom", "pop", "moses", "eve"}

// DeceptionDetectionData holds a deception detection analysis
type DeceptionDetectionData struct {
	Scenario   string               `json:"scenario"`
	Indicators []DeceptionIndicator `json:"indicators"`
	Assessment string               `json:"assessment"`
}

func (d *DeceptionDetectionData) Validate() error {
	for i := range d.Indicators {
		ind := &d.Indicators[i]
		ensureID(&ind.ID)
		ind.Checklist = strings.ToLower(ind.Checklist)
		if err := oneOf("checklist", ind.Checklist, deceptionChecklists...); err != nil {
			return err
		}
		if strings.TrimSpace(ind.Description) == "" {
			return invalid(fmt.Sprintf("indicators[%d].description", i), "is required")
		}
		if err := unitInterval(fmt.Sprintf("indicators[%d].likelihood", i), ind.Likelihood); err != nil {
			return err
		}
	}
	return nil
}

// Likelihood is the mean indicator likelihood, or 0 without indicators.
func (d *DeceptionDetectionData) Likelihood() float64 {
	if len(d.Indicators) == 0 {
		return 0
	}
	var sum float64
	for _, ind := range d.Indicators {
		sum += ind.Likelihood
	}
	return sum / float64(len(d.Indicators))
}

// Observation is a recorded behavior
type Observation struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	ObservedAt  string `json:"observed_at"`
}

// BehavioralAnalysisData holds a behavioral analysis of a subject
type BehavioralAnalysisData struct {
	Subject      string        `json:"subject"`
	Context      string        `json:"context"`
	Observations []Observation `json:"observations"`
	Motivations  []string      `json:"motivations"`
	Patterns     []string      `json:"patterns"`
}

func (d *BehavioralAnalysisData) Validate() error {
	for i := range d.Observations {
		o := &d.Observations[i]
		ensureID(&o.ID)
		if strings.TrimSpace(o.Description) == "" {
			return invalid(fmt.Sprintf("observations[%d].description", i), "is required")
		}
	}
	if err := nonEmpty("motivations", d.Motivations); err != nil {
		return err
	}
	return nonEmpty("patterns", d.Patterns)
}

// PESTData holds a PEST environmental scan
type PESTData struct {
	Scope         string   `json:"scope"`
	Political     []string `json:"political"`
	Economic      []string `json:"economic"`
	Social        []string `json:"social"`
	Technological []string `json:"technological"`
}

func (d *PESTData) Validate() error {
	for field, items := range map[string][]string{
		"political": d.Political, "economic": d.Economic,
		"social": d.Social, "technological": d.Technological,
	} {
		if err := nonEmpty(field, items); err != nil {
			return err
		}
	}
	return nil
}

// VRIOResource is a resource scored on the four VRIO questions
type VRIOResource struct {
	Name        string `json:"name"`
	Valuable    bool   `json:"valuable"`
	Rare        bool   `json:"rare"`
	Inimitable  bool   `json:"inimitable"`
	Organized   bool   `json:"organized"`
	Description string `json:"description"`
}

// Implication is the competitive implication of the resource's answers.
func (r VRIOResource) Implication() string {
	switch {
	case !r.Valuable:
		return "competitive_disadvantage"
	case !r.Rare:
		return "competitive_parity"
	case !r.Inimitable:
		return "temporary_advantage"
	case !r.Organized:
		return "unused_advantage"
	default:
		return "sustained_advantage"
	}
}

// VRIOData holds a VRIO resource analysis
type VRIOData struct {
	Organization string         `json:"organization"`
	Resources    []VRIOResource `json:"resources"`
}

func (d *VRIOData) Validate() error {
	for i, r := range d.Resources {
		if strings.TrimSpace(r.Name) == "" {
			return invalid(fmt.Sprintf("resources[%d].name", i), "is required")
		}
	}
	return nil
}

// Stakeholder is a party with an interest in the issue
type Stakeholder struct {
	Name      string `json:"name"`
	Interest  string `json:"interest"`
	Influence string `json:"influence"`
	Position  string `json:"position"`
}

var levels = []string{"low", "medium", "high"}

// StakeholderData holds a stakeholder map
type StakeholderData struct {
	Issue        string        `json:"issue"`
	Stakeholders []Stakeholder `json:"stakeholders"`
}

func (d *StakeholderData) Validate() error {
	for i, s := range d.Stakeholders {
		if strings.TrimSpace(s.Name) == "" {
			return invalid(fmt.Sprintf("stakeholders[%d].name", i), "is required")
		}
		if err := oneOf("interest", s.Interest, levels...); err != nil {
			return err
		}
		if err := oneOf("influence", s.Influence, levels...); err != nil {
			return err
		}
	}
	return nil
}

// Trend is an observed development over time
type Trend struct {
	Name      string   `json:"name"`
	Direction string   `json:"direction"`
	Drivers   []string `json:"drivers"`
	Horizon   string   `json:"horizon"`
}

// TrendData holds a trend analysis
type TrendData struct {
	Domain string  `json:"domain"`
	Trends []Trend `json:"trends"`
}

func (d *TrendData) Validate() error {
	for i, t := range d.Trends {
		if strings.TrimSpace(t.Name) == "" {
			return invalid(fmt.Sprintf("trends[%d].name", i), "is required")
		}
		if err := oneOf("direction", t.Direction, "rising", "falling", "stable", "volatile"); err != nil {
			return err
		}
	}
	return nil
}

// SurveillanceEntry is one logged observation of a target
type SurveillanceEntry struct {
	ID          string `json:"id"`
	Location    string `json:"location"`
	Observation string `json:"observation"`
	ObservedAt  string `json:"observed_at"`
	Source      string `json:"source"`
}

// SurveillanceData holds a surveillance log
type SurveillanceData struct {
	Target  string              `json:"target"`
	Entries []SurveillanceEntry `json:"entries"`
}

func (d *SurveillanceData) Validate() error {
	for i := range d.Entries {
		e := &d.Entries[i]
		ensureID(&e.ID)
		if strings.TrimSpace(e.Observation) == "" {
			return invalid(fmt.Sprintf("entries[%d].observation", i), "is required")
		}
	}
	return nil
}

// FlowStage is one stage of a fundamental flow
type FlowStage struct {
	Name    string   `json:"name"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// FundamentalFlowData holds a flow of resources, people or information
type FundamentalFlowData struct {
	FlowType string      `json:"flow_type"`
	Stages   []FlowStage `json:"stages"`
}

func (d *FundamentalFlowData) Validate() error {
	for i, s := range d.Stages {
		if strings.TrimSpace(s.Name) == "" {
			return invalid(fmt.Sprintf("stages[%d].name", i), "is required")
		}
	}
	return nil
}
