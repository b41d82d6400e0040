package graphx

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/imattdu/xtrace/reportx"
)

// Index maps an interval tag to the durations, in milliseconds, of every
// matched Start/End pair carrying it.
type Index map[string][]int64

// Index matches every Start tag to its closest reachable End and records
// the duration. Pairs where either report lacks a Timestamp are skipped.
// Durations for a tag are in start op id order.
func (g *Graph) Index() Index {
	ix := make(Index)
	for _, id := range g.ids {
		start := g.reports[id]
		for _, tag := range start.Get(reportx.KeyStart) {
			endID, ok := g.FindEnd(id, tag)
			if !ok {
				continue
			}
			t0, ok := start.Timestamp()
			if !ok {
				continue
			}
			t1, ok := g.reports[endID].Timestamp()
			if !ok {
				continue
			}
			ix[tag] = append(ix[tag], int64(math.Round(1000*(t1-t0))))
		}
	}
	return ix
}

// Tags returns the indexed tags in sorted order.
func (ix Index) Tags() []string {
	tags := make([]string, 0, len(ix))
	for t := range ix {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Lines renders one "<tag> d1,d2,..." line per tag, sorted by tag.
func (ix Index) Lines() []string {
	lines := make([]string, 0, len(ix))
	for _, tag := range ix.Tags() {
		ds := ix[tag]
		parts := make([]string, len(ds))
		for i, d := range ds {
			parts[i] = strconv.FormatInt(d, 10)
		}
		lines = append(lines, tag+" "+strings.Join(parts, ","))
	}
	return lines
}

// Reconstruct indexes the reports of one task keyed by op id and returns
// the duration lines.
func Reconstruct(reports map[string]*reportx.Report) []string {
	return Build(reports).Index().Lines()
}
