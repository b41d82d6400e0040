package graphx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imattdu/xtrace/metax"
	"github.com/imattdu/xtrace/reportx"
)

func report(kv ...string) *reportx.Report {
	r := reportx.New()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Put(kv[i], kv[i+1])
	}
	return r
}

func TestReconstructExample(t *testing.T) {
	reports := map[string]*reportx.Report{
		"A": report("Start", "svc", "Timestamp", "10.000"),
		"B": report("Edge", "A", "End", "svc", "Timestamp", "10.250"),
	}
	assert.Equal(t, []string{"svc 250"}, Reconstruct(reports))
}

func TestReconstructNoMatch(t *testing.T) {
	reports := map[string]*reportx.Report{
		"A": report("Start", "x", "Timestamp", "1.000"),
		"B": report("Edge", "A", "End", "y", "Timestamp", "2.000"),
		"C": report("Start", "lonely", "End", "lonely", "Timestamp", "3.000"),
	}
	assert.Empty(t, Reconstruct(reports))
	assert.Empty(t, Reconstruct(nil))
}

func TestReconstructMissingTimestamp(t *testing.T) {
	reports := map[string]*reportx.Report{
		"A": report("Start", "svc"),
		"B": report("Edge", "A", "End", "svc", "Timestamp", "10.250"),
	}
	assert.Empty(t, Reconstruct(reports))
}

func TestClosestEndWins(t *testing.T) {
	// A -> B -> C(End) and A -> D(End): D is one hop away
	reports := map[string]*reportx.Report{
		"A": report("Start", "t", "Timestamp", "0.000"),
		"B": report("Edge", "A", "Timestamp", "0.100"),
		"C": report("Edge", "B", "End", "t", "Timestamp", "0.900"),
		"D": report("Edge", "A", "End", "t", "Timestamp", "0.400"),
	}
	assert.Equal(t, []string{"t 400"}, Reconstruct(reports))

	end, ok := Build(reports).FindEnd("A", "t")
	require.True(t, ok)
	assert.Equal(t, "D", end)
}

func TestMultipleStartsAndTags(t *testing.T) {
	reports := map[string]*reportx.Report{
		"A": report("Start", "outer", "Start", "inner", "Timestamp", "1.000"),
		"B": report("Edge", "A", "End", "inner", "Timestamp", "1.010"),
		"C": report("Edge", "B", "Start", "inner", "Timestamp", "1.020"),
		"D": report("Edge", "C", "End", "inner", "End", "outer", "Timestamp", "1.5004"),
	}
	assert.Equal(t, []string{"inner 10,480", "outer 500"}, Reconstruct(reports))
}

func TestCycleTerminates(t *testing.T) {
	reports := map[string]*reportx.Report{
		"A": report("Edge", "C", "Start", "t", "Timestamp", "1"),
		"B": report("Edge", "A", "Timestamp", "2"),
		"C": report("Edge", "B", "Timestamp", "3"),
	}
	assert.Empty(t, Reconstruct(reports))

	g := Build(reports)
	order, err := g.TopoSort()
	assert.Error(t, err)
	assert.Empty(t, order)
}

func TestTopoSort(t *testing.T) {
	reports := map[string]*reportx.Report{
		"D": report("Edge", "B", "Edge", "C"),
		"C": report("Edge", "A"),
		"B": report("Edge", "A"),
		"A": report("Edge", "ZZ"),
	}
	order, err := Build(reports).TopoSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, order)
	assert.Equal(t, []string{"B", "C"}, Build(reports).Children("A"))
}

func TestFromReportsAndGroupByTask(t *testing.T) {
	task1, _ := metax.NewTaskID(8)
	task2, _ := metax.NewTaskID(8)

	mk := func(task metax.TaskID, op []byte, kv ...string) *reportx.Report {
		r := report(kv...)
		r.Put(reportx.KeyXTrace, metax.New(task, op).String())
		return r
	}
	a := mk(task1, []byte{0, 0, 0, 1}, "Start", "s", "Timestamp", "5.000")
	b := mk(task1, []byte{0, 0, 0, 2}, "Edge", "00000001", "End", "s", "Timestamp", "5.125")
	c := mk(task2, []byte{0, 0, 0, 3})
	junk := report("Start", "s")

	groups := GroupByTask([]*reportx.Report{a, b, c, junk, nil})
	require.Len(t, groups, 2)
	assert.Len(t, groups[task1.String()], 2)
	assert.Contains(t, groups[task2.String()], "00000003")

	g := FromReports([]*reportx.Report{a, b, junk})
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"00000001", "00000002"}, g.IDs())
	assert.Equal(t, []string{"s 125"}, g.Index().Lines())
}

func TestEdgeHexIgnoresCase(t *testing.T) {
	reports := map[string]*reportx.Report{
		"0000000A": report("Start", "svc", "Timestamp", "10.000"),
		"0000000B": report("Edge", "0000000a", "End", "svc", "Timestamp", "10.250"),
	}
	assert.Equal(t, []string{"svc 250"}, Reconstruct(reports))

	lowerKeys := map[string]*reportx.Report{
		"0000000a": report("Start", "svc", "Timestamp", "10.000"),
		"0000000b": report("Edge", "0000000A", "Edge", "0000000a", "End", "svc", "Timestamp", "10.250"),
	}
	g := Build(lowerKeys)
	assert.Equal(t, []string{"0000000A", "0000000B"}, g.IDs())
	assert.Equal(t, []string{"0000000B"}, g.Children("0000000a"))
	assert.Equal(t, []string{"svc 250"}, g.Index().Lines())
}

func TestLaterDuplicateWins(t *testing.T) {
	task, _ := metax.NewTaskID(8)
	op := []byte{0, 0, 0, 1}
	first := report("Start", "s", "Timestamp", "1.000")
	first.Put(reportx.KeyXTrace, metax.New(task, op).String())
	again := report("Start", "s", "Timestamp", "2.000")
	again.Put(reportx.KeyXTrace, metax.New(task, op).String())

	g := FromReports([]*reportx.Report{first, again})
	r, ok := g.Report("00000001")
	require.True(t, ok)
	assert.Same(t, again, r)
	assert.Same(t, again, GroupByTask([]*reportx.Report{first, again})[task.String()]["00000001"])
}

func TestCausal(t *testing.T) {
	reports := map[string]*reportx.Report{
		"D": report("Edge", "B", "Edge", "C"),
		"C": report("Edge", "A"),
		"B": report("Edge", "A"),
		"A": report(),
	}
	got := Build(reports).Causal()
	require.Len(t, got, 4)
	for i, id := range []string{"A", "B", "C", "D"} {
		assert.Same(t, reports[id], got[i])
	}

	// a cycle keeps every report, the ordered prefix first
	cyclic := map[string]*reportx.Report{
		"A": report(),
		"B": report("Edge", "A", "Edge", "C"),
		"C": report("Edge", "B"),
	}
	got = Build(cyclic).Causal()
	require.Len(t, got, 3)
	assert.Same(t, cyclic["A"], got[0])
	assert.Same(t, cyclic["B"], got[1])
	assert.Same(t, cyclic["C"], got[2])
}
