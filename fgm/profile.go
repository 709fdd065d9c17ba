package fgm

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kshedden/copulaglm/copula"
)

// Profiler is used to do likelihood profile analysis on one parameter
// of a fitted copula model.  The other parameters are re-optimized at
// each point of the profile.
type Profiler struct {

	// The profile analysis is done with respect to this fitted
	// model.
	results *Results
	model   *Model

	// The position of the profiled parameter
	index int

	// The parameter estimates of the fit
	params []float64

	// The bound of the profiled parameter
	bound copula.Bound

	// The fitted value of the profiled parameter, and the
	// composite log-likelihood at the fit.
	mle        float64
	maxLogLike float64

	// A sequence of (parameter, log-likelihood) values that lie on
	// the profile curve.
	Profile [][2]float64
}

// NewProfiler returns a Profiler for parameter index of the model that
// produced the given results.
func NewProfiler(result *Results, index int) *Profiler {

	m := result.model
	n := m.NumParams()
	if index < 0 || index >= n {
		panic("profiled parameter out of range")
	}

	params := make([]float64, n)
	copy(params, result.Params())

	bound := copula.Unbounded()
	layout := m.cll.Layout()
	if index >= layout.Marginal {
		bound = m.cop.Bounds()[index-layout.Marginal]
	}

	return &Profiler{
		results:    result,
		model:      m,
		index:      index,
		params:     params,
		bound:      bound,
		mle:        params[index],
		maxLogLike: result.LogLike(),
	}
}

// MLE returns the fitted value of the profiled parameter.
func (pr *Profiler) MLE() float64 {
	return pr.mle
}

// LogLike returns the profile log-likelihood at the given value of the
// profiled parameter.  It returns NaN if the optimization fails.
func (pr *Profiler) LogLike(v float64) float64 {

	m := pr.model

	x := make([]float64, len(pr.params))
	copy(x, pr.params)
	x[pr.index] = v
	m.SetParameters(x)

	if m.NumParams() == 1 {
		return m.LogLike()
	}

	obj := newObjective(m.cll, allParams(m.NumParams(), pr.index))
	optrslt, err := obj.minimize(m.settings, m.method)
	if err != nil {
		m.log.Warn().Err(err).Float64("value", v).Msg("profile optimization failed")
		return math.NaN()
	}

	return -optrslt.F
}

func bisectroot(f func(float64) float64, x0, x1, y0, y1, yt float64) (float64, [][2]float64, error) {

	if (y0-yt)*(y1-yt) > 0 {
		return 0, nil, errors.Newf("invalid bracket [%v, %v]", x0, x1)
	}

	var hist [][2]float64

	for x1-x0 > 1e-4 {
		x := (x0 + x1) / 2
		y := f(x)
		hist = append(hist, [2]float64{x, y})
		if (y-yt)*(y0-yt) > 0 {
			x0 = x
			y0 = y
		} else {
			x1 = x
		}
	}

	return (x0 + x1) / 2, hist, nil
}

// step returns the distance between successive trial points when
// searching for a confidence limit.
func (pr *Profiler) step() float64 {
	if se := pr.results.StdErr(); se != nil && se[pr.index] > 0 && !math.IsNaN(se[pr.index]) {
		return se[pr.index]
	}
	return 0.1
}

// ConfInt identifies values lcb, ucb of the profiled parameter that
// define a profile confidence interval with the given coverage
// probability.  A limit that would fall outside the bound of the
// parameter is set to the bound.  All points on the profile likelihood
// visited during the search are added to the Profile field.  The model
// is returned to the fitted parameters.
func (pr *Profiler) ConfInt(prob float64) (float64, float64, error) {

	defer pr.model.SetParameters(pr.params)

	qp := distuv.ChiSquared{K: 1}.Quantile(prob) / 2
	target := pr.maxLogLike - qp
	d := pr.step()

	lcb, err := pr.limit(-d, target)
	if err != nil {
		return 0, 0, errors.Wrap(err, "lower confidence limit")
	}

	ucb, err := pr.limit(d, target)
	if err != nil {
		return 0, 0, errors.Wrap(err, "upper confidence limit")
	}

	sort.Slice(pr.Profile, func(i, j int) bool {
		return pr.Profile[i][0] < pr.Profile[j][0]
	})

	return lcb, ucb, nil
}

// limit steps away from the fitted value in increments of d until the
// profile log-likelihood drops below target, then bisects.
func (pr *Profiler) limit(d, target float64) (float64, error) {

	// Maximum number of steps
	maxstep := 100

	v := pr.mle
	for k := 0; k < maxstep; k++ {
		v1 := v + d
		atBound := false
		if !pr.bound.Contains(v1) {
			v1 = math.Max(pr.bound.Lower, math.Min(pr.bound.Upper, v1))
			atBound = true
		}

		ll1 := pr.LogLike(v1)
		pr.Profile = append(pr.Profile, [2]float64{v1, ll1})

		if ll1 <= target || math.IsNaN(ll1) {
			x0, x1 := v, v1
			y0, y1 := pr.LogLike(v), ll1
			if math.IsNaN(y1) {
				y1 = math.Inf(-1)
			}
			if x0 > x1 {
				x0, x1 = x1, x0
				y0, y1 = y1, y0
			}
			r, hist, err := bisectroot(pr.LogLike, x0, x1, y0, y1, target)
			pr.Profile = append(pr.Profile, hist...)
			return r, err
		}

		if atBound {
			return v1, nil
		}
		v = v1
	}

	return 0, errors.Newf("profile log-likelihood did not drop below %v in %d steps", target, maxstep)
}
