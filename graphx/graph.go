// Package graphx rebuilds the event graph of one task from its reports and
// indexes the durations of Start/End intervals.
package graphx

import (
	"slices"
	"sort"
	"strings"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/reportx"
)

// Graph is an immutable view over the reports of one task keyed by op id.
// Reports name their parents in Edge; Graph keeps the inverse, parent to
// children, so traversal runs forward in time. Op ids are hex and matched
// without regard to case.
type Graph struct {
	reports  map[string]*reportx.Report
	ids      []string
	parents  map[string][]string
	children map[string][]string
}

// Build indexes reports keyed by op id hex. Keys and Edge values are
// uppercased; when two keys differ only in case the later one in sorted
// order wins. Children lists are ordered by op id so traversal is
// deterministic.
func Build(reports map[string]*reportx.Report) *Graph {
	keys := make([]string, 0, len(reports))
	for k, r := range reports {
		if r != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	g := &Graph{
		reports:  make(map[string]*reportx.Report, len(keys)),
		ids:      make([]string, 0, len(keys)),
		parents:  make(map[string][]string, len(keys)),
		children: make(map[string][]string),
	}
	for _, k := range keys {
		id := strings.ToUpper(k)
		if _, dup := g.reports[id]; !dup {
			g.ids = append(g.ids, id)
		}
		g.reports[id] = reports[k]
	}
	sort.Strings(g.ids)

	for _, id := range g.ids {
		for _, edge := range g.reports[id].Get(reportx.KeyEdge) {
			parent := strings.ToUpper(edge)
			if parent == id || slices.Contains(g.parents[id], parent) {
				continue
			}
			g.parents[id] = append(g.parents[id], parent)
			g.children[parent] = append(g.children[parent], id)
		}
	}
	return g
}

// FromReports keys reports by their own op id. Reports without metadata
// are skipped. A later report replaces an earlier one with the same op id,
// the same rule the store applies to re-sent reports.
func FromReports(rs []*reportx.Report) *Graph {
	m := make(map[string]*reportx.Report, len(rs))
	for _, r := range rs {
		if r == nil {
			continue
		}
		if _, ok := r.Metadata(); !ok {
			continue
		}
		m[r.OpID()] = r
	}
	return Build(m)
}

// GroupByTask splits a mixed bag of reports per task id, each keyed by op
// id, ready for Build. Duplicates follow the FromReports rule.
func GroupByTask(rs []*reportx.Report) map[string]map[string]*reportx.Report {
	out := make(map[string]map[string]*reportx.Report)
	for _, r := range rs {
		if r == nil {
			continue
		}
		md, ok := r.Metadata()
		if !ok {
			continue
		}
		task := md.TaskID().String()
		if out[task] == nil {
			out[task] = make(map[string]*reportx.Report)
		}
		out[task][md.OpIDString()] = r
	}
	return out
}

func (g *Graph) Len() int { return len(g.ids) }

// IDs returns op ids in sorted order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

func (g *Graph) Report(id string) (*reportx.Report, bool) {
	r, ok := g.reports[strings.ToUpper(id)]
	return r, ok
}

// Children returns the op ids that name id in their Edge field.
func (g *Graph) Children(id string) []string {
	c := g.children[strings.ToUpper(id)]
	out := make([]string, len(c))
	copy(out, c)
	return out
}

// FindEnd searches breadth-first from the children of start for the first
// report whose End field holds tag. The start report itself is never a
// candidate. Among equally distant candidates the one discovered first
// wins, which given the ordered children lists means the lowest op id
// along the lowest op id path.
func (g *Graph) FindEnd(start, tag string) (string, bool) {
	start = strings.ToUpper(start)
	seen := map[string]bool{start: true}
	queue := make([]string, 0, len(g.children[start]))
	for _, c := range g.children[start] {
		if !seen[c] {
			seen[c] = true
			queue = append(queue, c)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if r, ok := g.reports[cur]; ok && r.Has(reportx.KeyEnd, tag) {
			return cur, true
		}
		for _, c := range g.children[cur] {
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	return "", false
}

// TopoSort orders op ids so every parent precedes its children, breaking
// ties by op id. Edges to reports outside the graph are ignored. When the
// data holds a cycle the ids that could be ordered are returned with an
// error.
func (g *Graph) TopoSort() ([]string, error) {
	indeg := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		for _, p := range g.parents[id] {
			if _, ok := g.reports[p]; ok {
				indeg[id]++
			}
		}
	}

	var ready []string
	for _, id := range g.ids {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	out := make([]string, 0, len(g.ids))
	for len(ready) > 0 {
		sort.Strings(ready)
		cur := ready[0]
		ready = ready[1:]
		out = append(out, cur)
		for _, c := range g.children[cur] {
			indeg[c]--
			if indeg[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(out) != len(g.ids) {
		return out, errorx.New(errorx.ErrMalformedReport,
			errorx.WithService(errorx.ServiceIndex),
			errorx.WithMessage("event graph contains a cycle"))
	}
	return out, nil
}

// Causal returns the reports with every report after the ones it names in
// Edge. Reports caught in a cycle follow in op id order.
func (g *Graph) Causal() []*reportx.Report {
	order, err := g.TopoSort()
	if err != nil {
		placed := make(map[string]bool, len(order))
		for _, id := range order {
			placed[id] = true
		}
		for _, id := range g.ids {
			if !placed[id] {
				order = append(order, id)
			}
		}
	}
	out := make([]*reportx.Report, len(order))
	for i, id := range order {
		out[i] = g.reports[id]
	}
	return out
}
