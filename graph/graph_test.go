package graph

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestTopologicalOrderDeterministic(t *testing.T) {
	models := []Model{
		{Name: "A", DependsOn: []string{"B", "C"}},
		{Name: "B", DependsOn: []string{"C"}},
		{Name: "C"},
	}
	g, err := New(models, nil)
	assert.NoError(t, err)

	order, err := g.Order()
	assert.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, order)
}

func TestCycleDetection(t *testing.T) {
	models := []Model{
		{Name: "A", DependsOn: []string{"B", "C"}},
		{Name: "B", DependsOn: []string{"C"}},
		{Name: "C", DependsOn: []string{"A"}},
	}
	g, err := New(models, nil)
	assert.NoError(t, err)

	_, err = g.Order()
	assert.Error(t, err)
	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"A", "B", "C"}, cycleErr.Models)
}

func TestCycleDetectionReportsOnlyTheCycleNotDependentsOfIt(t *testing.T) {
	models := []Model{
		{Name: "A", DependsOn: []string{"B"}},
		{Name: "B", DependsOn: []string{"C"}},
		{Name: "C", DependsOn: []string{"B"}},
	}
	g, err := New(models, nil)
	assert.NoError(t, err)

	_, err = g.Order()
	assert.Error(t, err)
	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"B", "C"}, cycleErr.Models)
}

func TestUndefinedReference(t *testing.T) {
	models := []Model{
		{Name: "A", DependsOn: []string{"ghost"}},
	}
	_, err := New(models, nil)
	assert.Error(t, err)
	var undef *UndefinedRefError
	assert.True(t, errors.As(err, &undef))
	assert.Equal(t, 1, len(undef.Edges))
	assert.Equal(t, "A", undef.Edges[0].From)
	assert.Equal(t, "ghost", undef.Edges[0].To)
}

func TestExternalSourceMatchesFullOrBareSuffix(t *testing.T) {
	models := []Model{
		{Name: "A", DependsOn: []string{"raw.events", "legacy"}},
	}
	g, err := New(models, []string{"raw.events", "warehouse.legacy"})
	assert.NoError(t, err)

	order, err := g.Order()
	assert.NoError(t, err)
	assert.Equal(t, []string{"A"}, order)
}

func TestFIFOTieBreakAmongEqualInDegree(t *testing.T) {
	models := []Model{
		{Name: "X"},
		{Name: "Y"},
		{Name: "Z"},
	}
	g, err := New(models, nil)
	assert.NoError(t, err)
	order, err := g.Order()
	assert.NoError(t, err)
	assert.Equal(t, []string{"X", "Y", "Z"}, order)
}
