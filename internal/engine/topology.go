package engine

import "fmt"

// NodeKind identifies what an arena slot does.
type NodeKind uint8

const (
	KindSource NodeKind = iota
	KindBandFilter
	KindDynamics
	KindGain
	KindConvolver
	KindDelayLine
	KindFeedbackGain
	KindStereoPanner
	KindAnalysis
	KindOutput
)

var kindNames = [...]string{
	KindSource:       "source",
	KindBandFilter:   "band-filter",
	KindDynamics:     "dynamics",
	KindGain:         "gain",
	KindConvolver:    "convolver",
	KindDelayLine:    "delay-line",
	KindFeedbackGain: "feedback-gain",
	KindStereoPanner: "stereo-panner",
	KindAnalysis:     "analysis",
	KindOutput:       "output",
}

func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// NodeID is a handle into the node arena.
type NodeID int

type edge struct {
	from, to NodeID
}

// topology is the connection table between arena slots. Nodes never hold
// references to each other; everything goes through handles here.
type topology struct {
	kinds  []NodeKind
	names  []string
	edges  []edge
	inputs [][]NodeID
	order  []NodeID
}

func (t *topology) add(kind NodeKind, name string) NodeID {
	t.kinds = append(t.kinds, kind)
	t.names = append(t.names, name)
	t.inputs = append(t.inputs, nil)
	return NodeID(len(t.kinds) - 1)
}

func (t *topology) connect(from, to NodeID) {
	t.edges = append(t.edges, edge{from: from, to: to})
	t.inputs[to] = append(t.inputs[to], from)
}

// deferred reports whether a node consumes its inputs after the rest of the
// quantum has run. Delay lines do: they emit from their buffer first and
// take their input at the end, which is what lets a feedback loop exist
// without a cycle in the processing order.
func deferred(k NodeKind) bool {
	return k == KindDelayLine
}

// sort computes the processing order with Kahn's algorithm. Edges into
// deferred nodes are ignored for ordering. Any remaining cycle is an error.
func (t *topology) sort() error {
	n := len(t.kinds)
	indegree := make([]int, n)
	adj := make([][]NodeID, n)
	for _, e := range t.edges {
		if deferred(t.kinds[e.to]) {
			continue
		}
		adj[e.from] = append(adj[e.from], e.to)
		indegree[e.to]++
	}

	queue := make([]NodeID, 0, n)
	for id := range n {
		if indegree[id] == 0 {
			queue = append(queue, NodeID(id))
		}
	}

	order := make([]NodeID, 0, n)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != n {
		return fmt.Errorf("graph has a cycle without a delay line (%d of %d nodes ordered)", len(order), n)
	}
	t.order = order
	return nil
}

// position returns where id sits in the processing order, or -1.
func (t *topology) position(id NodeID) int {
	for i, o := range t.order {
		if o == id {
			return i
		}
	}
	return -1
}
