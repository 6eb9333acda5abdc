package framework

// Template declares how a framework asks for AI suggestions: the instruction
// sent with the session data, the key the reply is stored under and the shape
// the reply should take.
type Template struct {
	Instruction string
	ReplyKey    string
	ReplyShape  any
}

type swotReply struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

type cogReply struct {
	CentersOfGravity        []string `json:"centers_of_gravity"`
	CriticalCapabilities    []string `json:"critical_capabilities"`
	CriticalRequirements    []string `json:"critical_requirements"`
	CriticalVulnerabilities []string `json:"critical_vulnerabilities"`
}

type pmesiiReply struct {
	Political           []string `json:"political"`
	Military            []string `json:"military"`
	Economic            []string `json:"economic"`
	Social              []string `json:"social"`
	Information         []string `json:"information"`
	Infrastructure      []string `json:"infrastructure"`
	PhysicalEnvironment []string `json:"physical_environment"`
	Time                []string `json:"time"`
}

type achReply struct {
	AdditionalHypotheses []string `json:"additional_hypotheses"`
	DiagnosticEvidence   []string `json:"diagnostic_evidence"`
	MostLikely           string   `json:"most_likely"`
	Reasoning            string   `json:"reasoning"`
}

type dimeReply struct {
	Diplomatic  []string `json:"diplomatic"`
	Information []string `json:"information"`
	Military    []string `json:"military"`
	Economic    []string `json:"economic"`
}

type dotmlpfReply struct {
	Gaps            []string `json:"gaps"`
	Recommendations []string `json:"recommendations"`
}

type starburstReply struct {
	Who   []string `json:"who"`
	What  []string `json:"what"`
	When  []string `json:"when"`
	Where []string `json:"where"`
	Why   []string `json:"why"`
	How   []string `json:"how"`
}

type causewayReply struct {
	RootCauses       []string `json:"root_causes"`
	ProximateTargets []string `json:"proximate_targets"`
	Mitigations      []string `json:"mitigations"`
}

type deceptionReply struct {
	Indicators []string `json:"indicators"`
	Likelihood float64  `json:"likelihood"`
	Assessment string   `json:"assessment"`
}

type behavioralReply struct {
	Patterns    []string `json:"patterns"`
	Motivations []string `json:"motivations"`
	Predictions []string `json:"predictions"`
}

var aiTemplates = map[Type]Template{
	TypeSWOT: {
		Instruction: "Review this SWOT analysis and suggest additional strengths, weaknesses, opportunities and threats that are missing.",
		ReplyKey:    "suggestions",
		ReplyShape:  swotReply{},
	},
	TypeCOG: {
		Instruction: "Review this center of gravity analysis. Identify likely centers of gravity and derive critical capabilities, requirements and vulnerabilities.",
		ReplyKey:    "analysis",
		ReplyShape:  cogReply{},
	},
	TypePMESIIPT: {
		Instruction: "Review this PMESII-PT analysis and suggest factors for each operational variable.",
		ReplyKey:    "suggestions",
		ReplyShape:  pmesiiReply{},
	},
	TypeACH: {
		Instruction: "Review these hypotheses and evidence. Suggest hypotheses that are missing, evidence that would be diagnostic, and the hypothesis with the least inconsistent evidence.",
		ReplyKey:    "analysis",
		ReplyShape:  achReply{},
	},
	TypeDIME: {
		Instruction: "Suggest diplomatic, information, military and economic considerations for this scenario.",
		ReplyKey:    "suggestions",
		ReplyShape:  dimeReply{},
	},
	TypeDOTMLPF: {
		Instruction: "Identify capability gaps across doctrine, organization, training, materiel, leadership, personnel, facilities and policy, and recommend fixes.",
		ReplyKey:    "analysis",
		ReplyShape:  dotmlpfReply{},
	},
	TypeStarbursting: {
		Instruction: "Generate probing who, what, when, where, why and how questions about the central idea that are not already listed.",
		ReplyKey:    "questions",
		ReplyShape:  starburstReply{},
	},
	TypeCauseWay: {
		Instruction: "Review this CauseWay analysis. Identify root causes, likely proximate targets and mitigations.",
		ReplyKey:    "analysis",
		ReplyShape:  causewayReply{},
	},
	TypeDeceptionDetection: {
		Instruction: "Apply the deception detection checklists to this scenario. List indicators, estimate the likelihood of deception between 0 and 1 and give an assessment.",
		ReplyKey:    "analysis",
		ReplyShape:  deceptionReply{},
	},
	TypeBehavioralAnalysis: {
		Instruction: "Analyze the observed behaviors. Identify patterns and motivations and predict likely future behavior.",
		ReplyKey:    "analysis",
		ReplyShape:  behavioralReply{},
	},
}

// AnalysisTemplate is a catalog entry offered when starting a session
type AnalysisTemplate struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Prompts     []string `json:"prompts"`
}

var catalogExtras = map[Type][]AnalysisTemplate{
	TypeSWOT: {
		{ID: "swot-competitor", Name: "Competitor Assessment", Description: "SWOT of a rival organization",
			Prompts: []string{"What resources does the competitor control?", "Where is it overextended?"}},
		{ID: "swot-policy", Name: "Policy Option", Description: "SWOT of a proposed course of action",
			Prompts: []string{"Which stakeholders gain?", "What external events could derail it?"}},
	},
	TypeCOG: {
		{ID: "cog-adversary", Name: "Adversary Military", Description: "Strange model applied to an adversary force",
			Prompts: []string{"What is the source of the adversary's freedom of action?"}},
		{ID: "cog-friendly", Name: "Friendly Force", Description: "Identify own vulnerabilities to protect",
			Prompts: []string{"Which requirements are single points of failure?"}},
	},
	TypeACH: {
		{ID: "ach-attribution", Name: "Attribution", Description: "Who is responsible for an incident",
			Prompts: []string{"List every plausible actor, including insiders.", "Which evidence would only fit one actor?"}},
	},
	TypePMESIIPT: {
		{ID: "pmesii-country", Name: "Country Study", Description: "Baseline operational environment of a country",
			Prompts: []string{"Who holds formal and informal power?", "Which infrastructure is critical?"}},
	},
	TypeDeceptionDetection: {
		{ID: "deception-source", Name: "Source Reliability", Description: "Test a single reporting source for deception",
			Prompts: []string{"Could the source be controlled?", "Has the source's access been verified?"}},
	},
	TypeCauseWay: {
		{ID: "causeway-threat", Name: "Threat Pathway", Description: "From adversary goal to exploitable target",
			Prompts: []string{"What must be true for the adversary to succeed?"}},
	},
}

func catalogFor(t Type, def *definition) []AnalysisTemplate {
	out := []AnalysisTemplate{{
		ID:          string(t) + "-standard",
		Name:        "Standard " + def.name,
		Description: def.description,
		Prompts:     []string{},
	}}
	return append(out, catalogExtras[t]...)
}

// Templates returns the analysis template catalog for t
func Templates(t Type) ([]AnalysisTemplate, error) {
	def, ok := registry[t]
	if !ok {
		_, err := ParseType(string(t))
		return nil, err
	}
	return def.catalog, nil
}
