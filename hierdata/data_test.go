package hierdata

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kshedden/copulaglm/statmodel"
)

func data1(t *testing.T) *Data {
	stratum := []string{"a", "a", "a", "b", "b", "a", "b"}
	plot := []float64{1, 1, 2, 1, 1, 1, 2}
	x := []float64{0, 3, 0, 1, 1, 0, 5}
	y := []float64{0, 4, 0, 1, 2, 1, 5}
	yr := []float64{2000, 2001, 2000, 2002, 2005, math.NaN(), 2001}

	d, err := NewFromFlat([]interface{}{stratum, plot, x, y, yr},
		[]string{"stratum", "plot", "x", "y", "year"})
	require.NoError(t, err)
	return d
}

func TestNewFromFlat(t *testing.T) {

	d := data1(t)
	assert.Equal(t, 7, d.NumObs())
	assert.Equal(t, 5, d.NumVar())

	j, ok := d.Pos("x")
	assert.True(t, ok)
	assert.Equal(t, 2, j)
	assert.Nil(t, d.Get("zz"))

	_, err := d.Float64("stratum")
	assert.Error(t, err)
	_, err = d.Float64("zz")
	assert.True(t, errors.Is(err, statmodel.ErrFieldNotFound))

	_, err = NewFromFlat([]interface{}{[]float64{1, 2}, []float64{1}}, []string{"a", "b"})
	assert.True(t, errors.Is(err, statmodel.ErrDimension))

	_, err = NewFromFlat([]interface{}{[]int{1, 2}}, []string{"a"})
	assert.Error(t, err)
}

func TestGroups(t *testing.T) {

	d := data1(t)

	_, err := d.Groups()
	assert.True(t, errors.Is(err, statmodel.ErrNoHierarchy))

	err = d.SetHierarchicalLevels("stratum/missing")
	assert.True(t, errors.Is(err, statmodel.ErrFieldNotFound))

	require.NoError(t, d.SetHierarchicalLevels("stratum/plot"))
	assert.True(t, d.HasLevels([]string{"plot"}))
	assert.False(t, d.HasLevels([]string{"year"}))

	groups, err := d.Groups()
	require.NoError(t, err)

	expected := []Group{
		{Key: "a/1", Index: []int{0, 1, 5}},
		{Key: "a/2", Index: []int{2}},
		{Key: "b/1", Index: []int{3, 4}},
		{Key: "b/2", Index: []int{6}},
	}
	assert.Equal(t, expected, groups)

	// Every observation is in exactly one group
	seen := make(map[int]int)
	for _, g := range groups {
		for _, i := range g.Index {
			seen[i]++
		}
	}
	assert.Len(t, seen, d.NumObs())
	for _, c := range seen {
		assert.Equal(t, 1, c)
	}

	require.NoError(t, d.SetHierarchicalLevels("stratum"))
	groups, err = d.Groups()
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestGroupsSlashInValue(t *testing.T) {

	// Both observations join to "a/b/c" but belong to different groups.
	stratum := []string{"a/b", "a"}
	plot := []string{"c", "b/c"}
	y := []float64{0, 1}

	d, err := NewFromFlat([]interface{}{stratum, plot, y}, []string{"stratum", "plot", "y"})
	require.NoError(t, err)
	require.NoError(t, d.SetHierarchicalLevels("stratum/plot"))

	groups, err := d.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []int{1}, groups[0].Index)
	assert.Equal(t, []int{0}, groups[1].Index)
	assert.Equal(t, "a/b/c", groups[0].Key)
	assert.Equal(t, "a/b/c", groups[1].Key)
}

func TestParse(t *testing.T) {
	assert.Equal(t, []string{"stratum", "plot"}, ParseLevels("stratum/plot"))
	assert.Equal(t, []string{"plot"}, ParseLevels(" plot/"))
	assert.Equal(t, [][]string{{"x", "y"}, {"year"}}, ParseDistanceFields("x+y, year"))
	assert.Nil(t, ParseDistanceFields(""))
}

func TestDistances(t *testing.T) {

	d := data1(t)

	_, err := d.Distances()
	assert.True(t, errors.Is(err, statmodel.ErrNotSpatial))

	assert.True(t, errors.Is(d.SetDistanceFields("x+z"), statmodel.ErrFieldNotFound))
	assert.True(t, errors.Is(d.SetDistanceFields("stratum"), statmodel.ErrNotSpatial))

	require.NoError(t, d.SetDistanceFields("x+y,year"))
	assert.Equal(t, 2, d.NumDistanceDims())

	// Levels are needed to know which pairs to compute
	_, err = d.Distances()
	assert.True(t, errors.Is(err, statmodel.ErrNoHierarchy))

	require.NoError(t, d.SetHierarchicalLevels("stratum/plot"))
	dist, err := d.Distances()
	require.NoError(t, err)
	require.Len(t, dist, 2)

	v, ok := dist[0].Get(0, 1)
	assert.True(t, ok)
	assert.InDelta(t, 5, v, 1e-12)
	v, ok = dist[0].Get(1, 0)
	assert.True(t, ok)
	assert.InDelta(t, 5, v, 1e-12)

	v, ok = dist[1].Get(3, 4)
	assert.True(t, ok)
	assert.InDelta(t, 3, v, 1e-12)

	// Observation 5 has a missing year, so its pairs are unavailable
	// in all dimensions.
	_, ok = dist[0].Get(0, 5)
	assert.False(t, ok)
	v, ok = dist[1].Get(1, 5)
	assert.False(t, ok)
	assert.True(t, math.IsInf(v, 1))

	// Different groups
	_, ok = d.Distance(0, 0, 3)
	assert.False(t, ok)

	assert.Equal(t, 2, dist[0].NumPairs())

	d.MaxDistance(2)
	dist, err = d.Distances()
	require.NoError(t, err)
	_, ok = dist[0].Get(0, 1)
	assert.False(t, ok)
	_, ok = dist[0].Get(3, 4)
	assert.False(t, ok)
}
