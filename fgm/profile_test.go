package fgm

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/copulaglm/copula"
)

func TestProfile(t *testing.T) {

	m, err := New(marginal(clustered(t), "icept", "x"), copula.NewConstant("grp", 0))
	require.NoError(t, err)
	rslt, err := m.Fit()
	require.NoError(t, err)

	pr := NewProfiler(rslt, 2)
	assert.Equal(t, rslt.Params()[2], pr.MLE())

	// The profile is maximized at the fitted value.
	assert.InDelta(t, rslt.LogLike(), pr.LogLike(pr.MLE()), 1e-6)
	assert.Less(t, pr.LogLike(pr.MLE()-0.3), rslt.LogLike())
	assert.Less(t, pr.LogLike(pr.MLE()+0.3), rslt.LogLike())

	lcb, ucb, err := pr.ConfInt(0.95)
	require.NoError(t, err)
	assert.True(t, lcb >= -1 && lcb < pr.MLE())
	assert.True(t, ucb <= 1 && ucb > pr.MLE())

	require.NotEmpty(t, pr.Profile)
	assert.True(t, sort.SliceIsSorted(pr.Profile, func(i, j int) bool {
		return pr.Profile[i][0] < pr.Profile[j][0]
	}))

	// The model is returned to the fit.
	assert.True(t, floats.EqualApprox(rslt.Params(), m.Parameters(), 1e-12))

	assert.Panics(t, func() { NewProfiler(rslt, 3) })
}

func TestBisectRoot(t *testing.T) {

	f := func(x float64) float64 { return -x * x }
	r, hist, err := bisectroot(f, 0, 2, 0, -4, -1)
	require.NoError(t, err)
	assert.InDelta(t, 1, r, 1e-4)
	assert.NotEmpty(t, hist)

	_, _, err = bisectroot(f, 0, 0.5, 0, -0.25, -1)
	assert.Error(t, err)
}
