package statmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutLocate(t *testing.T) {

	for _, l := range []Layout{{3, 1}, {1, 2}, {4, 4}, {2, 0}} {
		for i := 0; i < l.Total(); i++ {
			b, j := l.Locate(i)
			if i < l.Marginal {
				assert.Equal(t, MarginalBlock, b)
				assert.Equal(t, i, j)
			} else {
				assert.Equal(t, DependenceBlock, b)
				assert.Equal(t, i-l.Marginal, j)
			}
			assert.Equal(t, i, l.Index(b, j))
		}
	}

	l := Layout{Marginal: 2, Dependence: 1}
	assert.Panics(t, func() { l.Locate(3) })
	assert.Panics(t, func() { l.Locate(-1) })
}

func TestLayoutStackSplit(t *testing.T) {

	l := Layout{Marginal: 3, Dependence: 2}
	x := l.Stack(nil, []float64{1, 2, 3}, []float64{4, 5})
	require.Equal(t, []float64{1, 2, 3, 4, 5}, x)

	m, d := l.Split(x)
	assert.Equal(t, []float64{1, 2, 3}, m)
	assert.Equal(t, []float64{4, 5}, d)

	// Split shares storage
	d[0] = 9
	assert.Equal(t, 9.0, x[3])

	assert.Panics(t, func() { l.Stack(nil, []float64{1}, []float64{4, 5}) })
	assert.Panics(t, func() { l.Split([]float64{1, 2}) })
	assert.Equal(t, "marginal", MarginalBlock.String())
	assert.Equal(t, "dependence", DependenceBlock.String())
}
