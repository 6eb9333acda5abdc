// Package causeway builds CauseWay capability graphs and derives causal chains
// and risk scores from cause/relationship sets.
package causeway

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Tree is the typed form of a nested CauseWay definition.
type Tree struct {
	UltimateTargets []UltimateTarget `json:"ultimate_targets"`
}

// UltimateTarget is the top tier of the tree
type UltimateTarget struct {
	Name         string       `json:"name"`
	Capabilities []Capability `json:"capabilities"`
}

// Capability belongs to an ultimate target
type Capability struct {
	Name         string        `json:"name"`
	Requirements []Requirement `json:"requirements"`
}

// Requirement belongs to a capability. PotentialPTARs is empty when the input
// listed requirements by name only.
type Requirement struct {
	Name           string   `json:"name"`
	PotentialPTARs []string `json:"potential_ptars"`
}

// ParseTree decodes the nested mapping
//
//	{ut: {"capabilities": {cap: {"requirements": {req: {"potential_ptars": [...]}}}}}}
//
// keeping input key order. "requirements" (and "capabilities") may also be a
// list of names.
func ParseTree(raw []byte) (Tree, error) {
	top, err := decodeObject(raw)
	if err != nil {
		return Tree{}, fmt.Errorf("causeway tree: %w", err)
	}

	var tree Tree
	for pair := top.Oldest(); pair != nil; pair = pair.Next() {
		ut := UltimateTarget{Name: pair.Key}
		var body struct {
			Capabilities json.RawMessage `json:"capabilities"`
		}
		if err := unmarshalOptional(pair.Value, &body); err != nil {
			return Tree{}, fmt.Errorf("ultimate target %q: %w", pair.Key, err)
		}
		caps, err := parseNamedChildren(body.Capabilities)
		if err != nil {
			return Tree{}, fmt.Errorf("ultimate target %q capabilities: %w", pair.Key, err)
		}
		for _, c := range caps {
			capability := Capability{Name: c.name}
			var capBody struct {
				Requirements json.RawMessage `json:"requirements"`
			}
			if err := unmarshalOptional(c.body, &capBody); err != nil {
				return Tree{}, fmt.Errorf("capability %q: %w", c.name, err)
			}
			reqs, err := parseNamedChildren(capBody.Requirements)
			if err != nil {
				return Tree{}, fmt.Errorf("capability %q requirements: %w", c.name, err)
			}
			for _, r := range reqs {
				req := Requirement{Name: r.name}
				var reqBody struct {
					PotentialPTARs []string `json:"potential_ptars"`
				}
				if err := unmarshalOptional(r.body, &reqBody); err != nil {
					return Tree{}, fmt.Errorf("requirement %q: %w", r.name, err)
				}
				req.PotentialPTARs = reqBody.PotentialPTARs
				capability.Requirements = append(capability.Requirements, req)
			}
			ut.Capabilities = append(ut.Capabilities, capability)
		}
		tree.UltimateTargets = append(tree.UltimateTargets, ut)
	}
	return tree, nil
}

type namedChild struct {
	name string
	body json.RawMessage
}

// parseNamedChildren accepts either {"name": {...}} or ["name", ...].
func parseNamedChildren(raw json.RawMessage) ([]namedChild, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, fmt.Errorf("expected a list of names: %w", err)
		}
		out := make([]namedChild, 0, len(names))
		for _, n := range names {
			out = append(out, namedChild{name: n})
		}
		return out, nil
	}

	obj, err := decodeObject(trimmed)
	if err != nil {
		return nil, err
	}
	out := make([]namedChild, 0, obj.Len())
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, namedChild{name: pair.Key, body: pair.Value})
	}
	return out, nil
}

func decodeObject(raw []byte) (*orderedmap.OrderedMap[string, json.RawMessage], error) {
	obj := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, obj); err != nil {
		return nil, fmt.Errorf("expected an object: %w", err)
	}
	return obj, nil
}

// unmarshalOptional treats empty and null bodies as zero values.
func unmarshalOptional(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, v)
}

// PTARNames returns every distinct potential proximate target in the tree.
func (t Tree) PTARNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ut := range t.UltimateTargets {
		for _, c := range ut.Capabilities {
			for _, r := range c.Requirements {
				for _, p := range r.PotentialPTARs {
					if !seen[p] {
						seen[p] = true
						names = append(names, p)
					}
				}
			}
		}
	}
	return names
}
