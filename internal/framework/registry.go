package framework

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"researchtools/internal/causeway"
)

// sectionFunc appends one decoded entry to a section of d. The returned getter
// reads the stored entry back after the payload has been validated, so it
// carries any defaults Validate filled in.
type sectionFunc func(d Data, raw json.RawMessage) (func() any, error)

type definition struct {
	name        string
	description string
	newData     func() Data
	sections    map[string]sectionFunc
	template    *Template
	catalog     []AnalysisTemplate
}

// section builds an appender for the slice selected by field.
func section[P Data, E any](field func(P) *[]E) sectionFunc {
	return func(d Data, raw json.RawMessage) (func() any, error) {
		typed, ok := d.(P)
		if !ok {
			return nil, fmt.Errorf("section does not apply to %T", d)
		}

		var entry E
		if err := decodeStrict(raw, &entry); err != nil {
			return nil, invalid("entry", "%v", err)
		}
		if s, ok := any(entry).(string); ok && strings.TrimSpace(s) == "" {
			return nil, invalid("entry", "must not be empty")
		}

		list := field(typed)
		*list = append(*list, entry)
		idx := len(*list) - 1
		return func() any { return (*field(typed))[idx] }, nil
	}
}

func strs[P Data](field func(P) *[]string) sectionFunc { return section(field) }

var registry = map[Type]*definition{
	TypeSWOT: {
		name:        "SWOT Analysis",
		description: "Strengths, weaknesses, opportunities and threats",
		newData:     func() Data { return &SWOTData{} },
		sections: map[string]sectionFunc{
			"strengths":     strs(func(d *SWOTData) *[]string { return &d.Strengths }),
			"weaknesses":    strs(func(d *SWOTData) *[]string { return &d.Weaknesses }),
			"opportunities": strs(func(d *SWOTData) *[]string { return &d.Opportunities }),
			"threats":       strs(func(d *SWOTData) *[]string { return &d.Threats }),
		},
	},
	TypeCOG: {
		name:        "Center of Gravity Analysis",
		description: "Centers of gravity with critical capabilities, requirements and vulnerabilities",
		newData:     func() Data { return &COGData{} },
		sections: map[string]sectionFunc{
			"entities":      section(func(d *COGData) *[]COGEntity { return &d.Entities }),
			"relationships": section(func(d *COGData) *[]COGRelationship { return &d.Relationships }),
		},
	},
	TypePMESIIPT: {
		name:        "PMESII-PT Analysis",
		description: "Operational environment across eight variables",
		newData:     func() Data { return &PMESIIPTData{} },
		sections: map[string]sectionFunc{
			"political":            strs(func(d *PMESIIPTData) *[]string { return &d.Political }),
			"military":             strs(func(d *PMESIIPTData) *[]string { return &d.Military }),
			"economic":             strs(func(d *PMESIIPTData) *[]string { return &d.Economic }),
			"social":               strs(func(d *PMESIIPTData) *[]string { return &d.Social }),
			"information":          strs(func(d *PMESIIPTData) *[]string { return &d.Information }),
			"infrastructure":       strs(func(d *PMESIIPTData) *[]string { return &d.Infrastructure }),
			"physical_environment": strs(func(d *PMESIIPTData) *[]string { return &d.PhysicalEnvironment }),
			"time":                 strs(func(d *PMESIIPTData) *[]string { return &d.Time }),
		},
	},
	TypeACH: {
		name:        "Analysis of Competing Hypotheses",
		description: "Evidence scored against mutually exclusive hypotheses",
		newData:     func() Data { return &ACHData{} },
		sections: map[string]sectionFunc{
			"hypotheses": section(func(d *ACHData) *[]causeway.Hypothesis { return &d.Hypotheses }),
			"evidence":   section(func(d *ACHData) *[]causeway.Evidence { return &d.Evidence }),
		},
	},
	TypeDIME: {
		name:        "DIME Analysis",
		description: "Diplomatic, information, military and economic instruments of power",
		newData:     func() Data { return &DIMEData{} },
		sections: map[string]sectionFunc{
			"diplomatic":  strs(func(d *DIMEData) *[]string { return &d.Diplomatic }),
			"information": strs(func(d *DIMEData) *[]string { return &d.Information }),
			"military":    strs(func(d *DIMEData) *[]string { return &d.Military }),
			"economic":    strs(func(d *DIMEData) *[]string { return &d.Economic }),
		},
	},
	TypeDOTMLPF: {
		name:        "DOTMLPF-P Analysis",
		description: "Capability gaps across doctrine, organization, training, materiel, leadership, personnel, facilities and policy",
		newData:     func() Data { return &DOTMLPFData{} },
		sections: map[string]sectionFunc{
			"doctrine":     strs(func(d *DOTMLPFData) *[]string { return &d.Doctrine }),
			"organization": strs(func(d *DOTMLPFData) *[]string { return &d.Organization }),
			"training":     strs(func(d *DOTMLPFData) *[]string { return &d.Training }),
			"materiel":     strs(func(d *DOTMLPFData) *[]string { return &d.Materiel }),
			"leadership":   strs(func(d *DOTMLPFData) *[]string { return &d.Leadership }),
			"personnel":    strs(func(d *DOTMLPFData) *[]string { return &d.Personnel }),
			"facilities":   strs(func(d *DOTMLPFData) *[]string { return &d.Facilities }),
			"policy":       strs(func(d *DOTMLPFData) *[]string { return &d.Policy }),
		},
	},
	TypeStarbursting: {
		name:        "Starbursting",
		description: "Who, what, when, where, why and how questions around a central idea",
		newData:     func() Data { return &StarburstingData{} },
		sections: map[string]sectionFunc{
			"questions": section(func(d *StarburstingData) *[]StarburstQuestion { return &d.Questions }),
		},
	},
	TypeCauseWay: {
		name:        "CauseWay Analysis",
		description: "Ultimate targets, capabilities, requirements and proximate targets with causal chains",
		newData:     func() Data { return &CauseWayData{} },
		sections: map[string]sectionFunc{
			"causes":        section(func(d *CauseWayData) *[]causeway.Cause { return &d.Causes }),
			"relationships": section(func(d *CauseWayData) *[]causeway.Relationship { return &d.Relationships }),
		},
	},
	TypeDeceptionDetection: {
		name:        "Deception Detection",
		description: "MOM, POP, MOSES and EVE checklists",
		newData:     func() Data { return &DeceptionDetectionData{} },
		sections: map[string]sectionFunc{
			"indicators": section(func(d *DeceptionDetectionData) *[]DeceptionIndicator { return &d.Indicators }),
		},
	},
	TypeBehavioralAnalysis: {
		name:        "Behavioral Analysis",
		description: "Observed behaviors, motivations and patterns of a subject",
		newData:     func() Data { return &BehavioralAnalysisData{} },
		sections: map[string]sectionFunc{
			"observations": section(func(d *BehavioralAnalysisData) *[]Observation { return &d.Observations }),
			"motivations":  strs(func(d *BehavioralAnalysisData) *[]string { return &d.Motivations }),
			"patterns":     strs(func(d *BehavioralAnalysisData) *[]string { return &d.Patterns }),
		},
	},
	TypePEST: {
		name:        "PEST Analysis",
		description: "Political, economic, social and technological factors",
		newData:     func() Data { return &PESTData{} },
		sections: map[string]sectionFunc{
			"political":     strs(func(d *PESTData) *[]string { return &d.Political }),
			"economic":      strs(func(d *PESTData) *[]string { return &d.Economic }),
			"social":        strs(func(d *PESTData) *[]string { return &d.Social }),
			"technological": strs(func(d *PESTData) *[]string { return &d.Technological }),
		},
	},
	TypeVRIO: {
		name:        "VRIO Analysis",
		description: "Resources scored for value, rarity, imitability and organization",
		newData:     func() Data { return &VRIOData{} },
		sections: map[string]sectionFunc{
			"resources": section(func(d *VRIOData) *[]VRIOResource { return &d.Resources }),
		},
	},
	TypeStakeholder: {
		name:        "Stakeholder Analysis",
		description: "Parties mapped by interest and influence",
		newData:     func() Data { return &StakeholderData{} },
		sections: map[string]sectionFunc{
			"stakeholders": section(func(d *StakeholderData) *[]Stakeholder { return &d.Stakeholders }),
		},
	},
	TypeTrend: {
		name:        "Trend Analysis",
		description: "Developments with direction, drivers and horizon",
		newData:     func() Data { return &TrendData{} },
		sections: map[string]sectionFunc{
			"trends": section(func(d *TrendData) *[]Trend { return &d.Trends }),
		},
	},
	TypeSurveillance: {
		name:        "Surveillance Log",
		description: "Timestamped observations of a target",
		newData:     func() Data { return &SurveillanceData{} },
		sections: map[string]sectionFunc{
			"entries": section(func(d *SurveillanceData) *[]SurveillanceEntry { return &d.Entries }),
		},
	},
	TypeFundamentalFlow: {
		name:        "Fundamental Flow Analysis",
		description: "Stages of a flow of resources, people or information",
		newData:     func() Data { return &FundamentalFlowData{} },
		sections: map[string]sectionFunc{
			"stages": section(func(d *FundamentalFlowData) *[]FlowStage { return &d.Stages }),
		},
	},
}

func init() {
	for t, tmpl := range aiTemplates {
		tmpl := tmpl
		registry[t].template = &tmpl
	}
	for t, def := range registry {
		def.catalog = catalogFor(t, def)
	}
}

// Sections returns the appendable section names of t, sorted.
func Sections(t Type) []string {
	def, ok := registry[t]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(def.sections))
	for name := range def.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Types describes every framework type
func Types() []TypeInfo {
	out := make([]TypeInfo, 0, len(AllTypes))
	for _, t := range AllTypes {
		def := registry[t]
		out = append(out, TypeInfo{
			Type:        t,
			Name:        def.name,
			Description: def.description,
			Sections:    Sections(t),
			AISupported: def.template != nil,
		})
	}
	return out
}
