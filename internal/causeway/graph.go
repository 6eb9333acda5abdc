package causeway

import "sort"

// NodeKind is the tier a graph node belongs to
type NodeKind string

const (
	KindUltimateTarget  NodeKind = "ultimate_target"
	KindCapability      NodeKind = "capability"
	KindRequirement     NodeKind = "requirement"
	KindProximateTarget NodeKind = "proximate_target"
)

// Palette cycles across proximate-target clusters.
var Palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

var kindColors = map[NodeKind]string{
	KindUltimateTarget: "#b22222",
	KindCapability:     "#ffa500",
	KindRequirement:    "#ffd700",
}

// Node is a vertex in the CauseWay graph
type Node struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Kind  NodeKind `json:"kind"`
	Color string   `json:"color"`
}

// Edge connects a parent node to a child node
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a directed graph with insertion-ordered nodes and edges
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	index    map[string]int
	edgeSet  map[Edge]struct{}
	children map[string][]string
}

// BuildOptions suppress graph tiers. A suppressed tier's parent is connected
// directly to the tier's children.
type BuildOptions struct {
	FilterOutReqs  bool `json:"filter_out_reqs"`
	FilterOutCaps  bool `json:"filter_out_caps"`
	FilterOutPTARs bool `json:"filter_out_pptars"`
}

func newGraph() *Graph {
	return &Graph{
		index:    make(map[string]int),
		edgeSet:  make(map[Edge]struct{}),
		children: make(map[string][]string),
	}
}

// NodeID returns the graph identifier for a named node of the given kind.
func NodeID(kind NodeKind, name string) string {
	return string(kind) + ":" + name
}

// BuildGraph converts the tree to a graph, honouring opts.
func BuildGraph(tree Tree, opts BuildOptions) *Graph {
	g := newGraph()
	colors := AssignColors(tree.PTARNames())

	for _, ut := range tree.UltimateTargets {
		utID := g.addNode(KindUltimateTarget, ut.Name, kindColors[KindUltimateTarget])

		for _, c := range ut.Capabilities {
			capParent := utID
			if !opts.FilterOutCaps {
				capID := g.addNode(KindCapability, c.Name, kindColors[KindCapability])
				g.addEdge(utID, capID)
				capParent = capID
			}

			for _, r := range c.Requirements {
				reqParent := capParent
				if !opts.FilterOutReqs {
					reqID := g.addNode(KindRequirement, r.Name, kindColors[KindRequirement])
					g.addEdge(capParent, reqID)
					reqParent = reqID
				}
				if opts.FilterOutPTARs {
					continue
				}
				for _, p := range r.PotentialPTARs {
					pID := g.addNode(KindProximateTarget, p, colors[p])
					g.addEdge(reqParent, pID)
				}
			}
		}
	}
	return g
}

// AssignColors maps each distinct name to a palette color by its position in
// sorted order, so the same input always yields the same colors.
func AssignColors(names []string) map[string]string {
	unique := make(map[string]bool, len(names))
	sorted := make([]string, 0, len(names))
	for _, n := range names {
		if !unique[n] {
			unique[n] = true
			sorted = append(sorted, n)
		}
	}
	sort.Strings(sorted)

	colors := make(map[string]string, len(sorted))
	for i, n := range sorted {
		colors[n] = Palette[i%len(Palette)]
	}
	return colors
}

func (g *Graph) addNode(kind NodeKind, name, color string) string {
	id := NodeID(kind, name)
	if _, ok := g.index[id]; ok {
		return id
	}
	g.index[id] = len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{ID: id, Label: name, Kind: kind, Color: color})
	return id
}

func (g *Graph) addEdge(source, target string) {
	e := Edge{Source: source, Target: target}
	if _, ok := g.edgeSet[e]; ok {
		return
	}
	g.edgeSet[e] = struct{}{}
	g.Edges = append(g.Edges, e)
	g.children[source] = append(g.children[source], target)
}

// Node looks up a node by ID
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Children returns the direct successors of id in insertion order
func (g *Graph) Children(id string) []string {
	return g.children[id]
}

// HasEdge reports whether source→target exists
func (g *Graph) HasEdge(source, target string) bool {
	_, ok := g.edgeSet[Edge{Source: source, Target: target}]
	return ok
}

// Reachable reports whether target can be reached from source
func (g *Graph) Reachable(source, target string) bool {
	visited := map[string]bool{source: true}
	queue := []string{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true
		}
		for _, next := range g.children[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// CountByKind tallies nodes per tier
func (g *Graph) CountByKind() map[NodeKind]int {
	counts := make(map[NodeKind]int)
	for _, n := range g.Nodes {
		counts[n.Kind]++
	}
	return counts
}
