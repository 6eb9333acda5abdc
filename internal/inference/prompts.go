package inference

// Prompts for framework suggestions and research helpers
const (
	// AnalystPersona is the system prompt for every request.
	AnalystPersona = `You are an experienced intelligence analyst trained in structured analytic
techniques. Be precise, separate evidence from judgement, state assumptions
explicitly and flag low-confidence conclusions. Prefer concise, concrete
language over generalities.`

	// StructuredReplyPrompt wraps a framework instruction with its reply schema.
	StructuredReplyPrompt = `%s

Current analysis data:
%s

Respond ONLY with a JSON object matching this JSON Schema:
%s
`

	// FiveWPrompt asks for a labelled who/what/when/where/why breakdown.
	FiveWPrompt = `Analyze the following content and answer the five W questions.
Answer each on its own line, prefixed exactly with its label:
WHO: ...
WHAT: ...
WHEN: ...
WHERE: ...
WHY: ...

--- CONTENT ---
%s
--- END CONTENT ---
`

	// StarburstingPrompt asks for questions grouped by interrogative.
	StarburstingPrompt = `Apply the starbursting technique to the following topic.
For each of WHO, WHAT, WHEN, WHERE, WHY and HOW write up to %d probing questions.
Put each question on its own line, prefixed with its label, for example:
WHO: Who benefits from this?

--- TOPIC ---
%s
--- END TOPIC ---
`

	// SummarizePrompt asks for a summary and key points.
	SummarizePrompt = `Summarize the following content in at most %d words, then list the key points.
Use exactly this layout:
SUMMARY: <summary>
KEY POINT: <point>
KEY POINT: <point>

--- CONTENT ---
%s
--- END CONTENT ---
`

	// DIMEPrompt asks for instruments-of-power considerations.
	DIMEPrompt = `Using the DIME framework, list considerations for the following scenario
across the diplomatic, information, military and economic instruments of power.
Put each consideration on its own line prefixed with its label:
DIPLOMATIC: ...
INFORMATION: ...
MILITARY: ...
ECONOMIC: ...

--- SCENARIO ---
%s
--- END SCENARIO ---
`
)

// frameworkAddenda extend the persona for frameworks with established doctrine.
var frameworkAddenda = map[string]string{
	"swot": `For SWOT, keep internal factors (strengths, weaknesses) separate from
external factors (opportunities, threats). Each item should be a single, testable statement.`,
	"cog": `For center of gravity analysis, follow Strange's model: identify the
center of gravity, then its critical capabilities, critical requirements and
critical vulnerabilities, each derived from the previous tier.`,
	"pmesii_pt": `For PMESII-PT, cover the political, military, economic, social,
information, infrastructure, physical environment and time variables, and note
interactions between variables.`,
	"ach": `For analysis of competing hypotheses, favour evidence that is diagnostic
across hypotheses. Work to refute hypotheses rather than confirm them and name
missing evidence that would discriminate between them.`,
	"deception_detection": `For deception detection, apply the MOM, POP, MOSES and EVE
checklists: motive, opportunity and means; past opposition practices; manipulability
of sources; and evaluation of evidence.`,
}

// SystemPrompt returns the persona plus any framework addendum.
func SystemPrompt(frameworkType string) string {
	if addendum, ok := frameworkAddenda[frameworkType]; ok {
		return AnalystPersona + "\n\n" + addendum
	}
	return AnalystPersona
}
