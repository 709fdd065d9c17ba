package fgm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/copulaglm/copula"
	"github.com/kshedden/copulaglm/glm"
	"github.com/kshedden/copulaglm/hierdata"
)

// newComposite builds a composite log-likelihood on d without fitting
// the marginal model.
func newComposite(t *testing.T, d *hierdata.Data, cop copula.Expression, mcoeff []float64, covs ...string) *CompositeLogLike {

	g := marginal(d, covs...)
	require.NoError(t, cop.Initialize(d))
	groups, err := d.Groups()
	require.NoError(t, err)

	return NewCompositeLogLike(g, glm.NewGLMParams(mcoeff), cop, groups)
}

func TestSignRule(t *testing.T) {

	// With a zero intercept every marginal likelihood is 1/2.
	c := newComposite(t, pairData(t), copula.NewConstant("grp", 0.5), []float64{0}, "icept")

	require.Equal(t, 4, c.NumGroups())
	assert.InDelta(t, 0.875, c.GroupTerm(0), 1e-14)
	assert.InDelta(t, 1.125, c.GroupTerm(1), 1e-14)
	assert.InDelta(t, 1.125, c.GroupTerm(2), 1e-14)
	assert.Equal(t, 1.0, c.GroupTerm(3))

	expected := 7*math.Log(0.5) + math.Log(0.875) + 2*math.Log(1.125)
	assert.InDelta(t, expected, c.Value(), 1e-12)

	// The singleton group contributes nothing to the derivatives.
	assert.Equal(t, []float64{0, 0}, c.GroupGradient(3))
	assert.Equal(t, 0.0, mat.Norm(c.GroupHessian(3), 1))

	assert.Equal(t, -1.0, sign(1, 0))
	assert.Equal(t, -1.0, sign(0, 1))
	assert.Equal(t, 1.0, sign(1, 1))
	assert.Equal(t, 1.0, sign(0, 0))
}

func TestCacheCounters(t *testing.T) {

	c := newComposite(t, pairData(t), copula.NewConstant("grp", 0.5), []float64{0.2}, "icept")

	counts := func() []int {
		var n []int
		for tier := ValueTier; tier < numTiers; tier++ {
			n = append(n, c.Recomputes(tier))
		}
		return n
	}

	v := c.Value()
	assert.Equal(t, []int{1, 0, 0, 1, 0, 0}, counts())
	assert.Equal(t, v, c.Value())
	assert.Equal(t, []int{1, 0, 0, 1, 0, 0}, counts())

	c.Gradient()
	assert.Equal(t, []int{1, 1, 0, 1, 1, 0}, counts())

	c.Hessian()
	c.Hessian()
	c.Gradient()
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1}, counts())

	// Unknown events are ignored.
	c.Notify(Event("line search"))
	c.Value()
	c.Hessian()
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1}, counts())

	c.Notify(IterationStarted)
	assert.Equal(t, v, c.Value())
	assert.Equal(t, []int{2, 1, 1, 2, 1, 1}, counts())

	c.Notify(OptimizationStarted)
	c.Gradient()
	assert.Equal(t, []int{2, 2, 1, 2, 2, 1}, counts())

	assert.Equal(t, "term hessians", TermHessianTier.String())
	assert.Equal(t, "Tier(9)", Tier(9).String())
}

func TestHessianFirst(t *testing.T) {

	c := newComposite(t, pairData(t), copula.NewConstant("grp", 0.5), []float64{0.2}, "icept")

	c.Hessian()
	assert.Equal(t, 1, c.Recomputes(TermGradientTier))
	assert.Equal(t, 1, c.Recomputes(TermHessianTier))
	assert.Equal(t, 0, c.Recomputes(TermTier))

	// The terms are available from the gradient pass.
	c.Value()
	c.Gradient()
	assert.Equal(t, 0, c.Recomputes(TermTier))
	assert.Equal(t, 1, c.Recomputes(TermGradientTier))
	assert.Equal(t, 1, c.Recomputes(ValueTier))
	assert.Equal(t, 1, c.Recomputes(GradientTier))
}

func TestParameters(t *testing.T) {

	c := newComposite(t, clustered(t), copula.NewConstant("grp", 0.3), []float64{0.1, 0.2}, "icept", "x")

	assert.Equal(t, 3, c.NumParams())
	assert.Equal(t, 2, c.Layout().Marginal)
	assert.Equal(t, 1, c.Layout().Dependence)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, c.Parameters())

	x := []float64{-0.5, 1.5, -0.25}
	c.SetParameters(x)
	assert.Equal(t, x, c.Parameters())
	for i, v := range x {
		assert.Equal(t, v, c.ParameterValue(i))
	}

	// Setting a parameter does not clear the caches.
	v := c.Value()
	c.SetParameterValue(2, 0.5)
	assert.Equal(t, 0.5, c.ParameterValue(2))
	assert.Equal(t, v, c.Value())
	c.Invalidate()
	assert.NotEqual(t, v, c.Value())

	c.SetParameterValue(0, 0.75)
	assert.Equal(t, []float64{0.75, 1.5, 0.5}, c.Parameters())

	// The returned vector is a copy.
	p := c.Parameters()
	p[0] = 99
	assert.Equal(t, 0.75, c.ParameterValue(0))
}

func TestDistanceShortCircuit(t *testing.T) {

	y := []float64{1, 1, 0}
	icept := []float64{1, 1, 1}
	cx := []float64{0, 3, math.NaN()}
	cy := []float64{0, 4, 1}

	// Observation 2 has no coordinates, so it pairs with nothing.
	build := func(grp []string) *CompositeLogLike {
		d, err := hierdata.NewFromFlat([]interface{}{y, icept, cx, cy, grp},
			[]string{"y", "icept", "cx", "cy", "grp"})
		require.NoError(t, err)
		cop := copula.NewDistanceLink("grp", "cx+cy", glm.NewLink(glm.LogLink), []float64{-0.2})
		return newComposite(t, d, cop, []float64{0.3}, "icept")
	}

	c1 := build([]string{"a", "a", "a"})
	c2 := build([]string{"a", "a", "b"})

	assert.InDelta(t, c2.Value(), c1.Value(), 1e-14)
	assert.True(t, floats.EqualApprox(c1.Gradient(), c2.Gradient(), 1e-14))
	assert.True(t, mat.EqualApprox(c1.Hessian(), c2.Hessian(), 1e-14))

	u := 1 / (1 + math.Exp(-0.3))
	assert.InDelta(t, 1+math.Exp(-1)*(1-u)*(1-u), c1.GroupTerm(0), 1e-14)
}

// Settings for numerical derivatives
var (
	gradSettings = &fd.Settings{Formula: fd.Central, Step: 1e-6}
	hessSettings = &fd.Settings{Formula: fd.Central, Step: 1e-4}
)

var derivTests = []struct {
	title string
	cop   func() copula.Expression
	x     []float64
	ll    float64
}{
	{
		title: "Constant",
		cop:   func() copula.Expression { return copula.NewConstant("grp", 0) },
		x:     []float64{-0.1416699924081093, 0.6854412177744741, 0.3},
		ll:    -29.33479972263986,
	},
	{
		title: "Logistic constant",
		cop:   func() copula.Expression { return copula.NewLogisticConstant("grp", 0) },
		x:     []float64{0.2, -0.4, 1.1},
	},
	{
		title: "Distance, log link",
		cop: func() copula.Expression {
			return copula.NewDistanceLink("grp", "cx+cy", glm.NewLink(glm.LogLink), nil)
		},
		x:  []float64{-0.1, 0.5, -0.5},
		ll: -29.70867429456599,
	},
	{
		title: "Distance, logit link",
		cop: func() copula.Expression {
			return copula.NewDistanceLink("grp", "cx+cy", glm.NewLink(glm.LogitLink), nil)
		},
		x: []float64{0.3, 0.2, -0.7},
	},
}

func TestDerivatives(t *testing.T) {

	for _, dt := range derivTests {

		c := newComposite(t, clustered(t), dt.cop(), []float64{0, 0}, "icept", "x")

		f := func(x []float64) float64 {
			c.SetParameters(x)
			c.Invalidate()
			return c.Value()
		}

		ngrad := fd.Gradient(nil, f, dt.x, gradSettings)
		nhess := mat.NewSymDense(len(dt.x), nil)
		fd.Hessian(nhess, f, dt.x, hessSettings)

		v := f(dt.x)
		if dt.ll != 0 {
			assert.InDelta(t, dt.ll, v, 1e-10, dt.title)
		}
		assert.True(t, floats.EqualApprox(c.Gradient(), ngrad, 1e-5), dt.title)
		assert.True(t, mat.EqualApprox(c.Hessian(), nhess, 1e-4), dt.title)

		// The per-group derivatives add up with the marginal model
		// derivatives.
		score := make([]float64, 2)
		c.model.Score(c.mpar, score)
		total := []float64{score[0], score[1], 0}
		for g := 0; g < c.NumGroups(); g++ {
			floats.Add(total, c.GroupGradient(g))
		}
		assert.True(t, floats.EqualApprox(c.Gradient(), total, 1e-12), dt.title)
	}
}
