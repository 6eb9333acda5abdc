package causeway

// CauseType classifies a cause within a root-cause analysis
type CauseType string

const (
	CauseRoot         CauseType = "root_cause"
	CauseContributing CauseType = "contributing_factor"
	CauseImmediate    CauseType = "immediate_cause"
	CauseEffect       CauseType = "effect"
)

// Cause is one node of a root-cause analysis
type Cause struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        CauseType `json:"type"`
	Description string    `json:"description,omitempty"`
	ImpactLevel string    `json:"impact_level"`
	Likelihood  float64   `json:"likelihood"`
	Confidence  float64   `json:"confidence"`
}

// Relationship is a directed cause→effect link
type Relationship struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Type     string  `json:"relationship_type,omitempty"`
	Strength float64 `json:"strength,omitempty"`
}

// GenerateCausalChains follows each root cause along its first outgoing
// relationship until it runs out of edges or would revisit a cause. A root is
// a root_cause entry with no incoming edge from outside the causes it reaches,
// so a cycle leading back into a root keeps it a root. Chains of a single cause
// are omitted.
func GenerateCausalChains(causes []Cause, relationships []Relationship) [][]string {
	adjacency := make(map[string][]string)
	incoming := make(map[string][]string)
	for _, r := range relationships {
		adjacency[r.SourceID] = append(adjacency[r.SourceID], r.TargetID)
		incoming[r.TargetID] = append(incoming[r.TargetID], r.SourceID)
	}

	chains := [][]string{}
	for _, c := range causes {
		if c.Type != CauseRoot || fedFromOutside(c.ID, adjacency, incoming) {
			continue
		}

		chain := []string{c.ID}
		visited := map[string]bool{c.ID: true}
		cur := c.ID
		for {
			next := adjacency[cur]
			if len(next) == 0 || visited[next[0]] {
				break
			}
			cur = next[0]
			visited[cur] = true
			chain = append(chain, cur)
		}

		if len(chain) > 1 {
			chains = append(chains, chain)
		}
	}
	return chains
}

// fedFromOutside reports whether id has a predecessor it cannot reach.
func fedFromOutside(id string, adjacency, incoming map[string][]string) bool {
	if len(incoming[id]) == 0 {
		return false
	}
	reach := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if !reach[next] {
				reach[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, pred := range incoming[id] {
		if !reach[pred] {
			return true
		}
	}
	return false
}
