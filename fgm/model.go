// Package fgm fits generalized linear models for clustered binary
// outcomes, with pairwise dependence within clusters expressed through
// the Farlie-Gumbel-Morgenstern copula.  Estimation maximizes a
// composite log-likelihood with Newton-Raphson.
package fgm

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/kshedden/copulaglm/copula"
	"github.com/kshedden/copulaglm/glm"
	"github.com/kshedden/copulaglm/hierdata"
	"github.com/kshedden/copulaglm/statmodel"
)

// DefaultSpearmanBins is the default number of distance bins used by
// the residual diagnostic.
const DefaultSpearmanBins = 21

// Model is a binary regression model with FGM copula dependence
// between members of the same group.
type Model struct {

	// The marginal model and its parameter
	glm  *glm.GLM
	mpar *glm.GLMParams

	cop    copula.Expression
	data   *hierdata.Data
	groups []hierdata.Group

	cll *CompositeLogLike

	settings *optimize.Settings
	method   optimize.Method

	nbins int

	log zerolog.Logger

	results *Results
}

// fitter presents a Model as a statmodel.RegFitter.
type fitter struct {
	*Model
}

var _ statmodel.RegFitter = fitter{}

// LogLike returns the composite log-likelihood at the given parameter,
// which becomes the current parameter.  The exact flag is ignored.
func (f fitter) LogLike(par statmodel.Parameter, _ bool) float64 {
	f.at(par.GetCoeff())
	return f.cll.Value()
}

// GridPoint is a parameter vector visited by a grid search, and its
// composite log-likelihood.
type GridPoint struct {
	Params  []float64
	LogLike float64
}

// New returns a copula model combining the marginal model g with the
// dependence expression cop.  The marginal model is fit first if it
// has not been fit, or if its fit did not converge; its estimates are
// the starting values of the marginal coefficients.  The expression is
// initialized against the marginal model's data, so errors in the
// hierarchical levels or distance fields are returned here.
func New(g *glm.GLM, cop copula.Expression) (*Model, error) {

	rslt := g.Results()
	if rslt == nil || !rslt.Converged() {
		var err error
		rslt, err = g.Fit()
		if err != nil {
			return nil, errors.Wrap(err, "fitting marginal model")
		}
	}

	coeff := make([]float64, len(rslt.Params()))
	copy(coeff, rslt.Params())
	mpar := glm.NewGLMParams(coeff)

	data := g.DataSet()
	if err := cop.Initialize(data); err != nil {
		return nil, errors.Wrap(err, "initializing copula")
	}

	groups, err := data.Groups()
	if err != nil {
		return nil, err
	}

	return &Model{
		glm:    g,
		mpar:   mpar,
		cop:    cop,
		data:   data,
		groups: groups,
		cll:    NewCompositeLogLike(g, mpar, cop, groups),
		nbins:  DefaultSpearmanBins,
		log:    zerolog.Nop(),
	}, nil
}

// Log sets a logger, which is also used by the composite
// log-likelihood.
func (m *Model) Log(log zerolog.Logger) *Model {
	m.log = log
	m.cll.Log(log)
	return m
}

// OptSettings sets the optimizer settings.  A recorder is always
// installed to keep the composite likelihood caches current.
func (m *Model) OptSettings(s *optimize.Settings) *Model {
	m.settings = s
	return m
}

// OptMethod sets the optimization method.  The default is Newton's
// method with a backtracking line search.
func (m *Model) OptMethod(method optimize.Method) *Model {
	m.method = method
	return m
}

// SpearmanBins sets the number of distance bins in the residual
// diagnostic.
func (m *Model) SpearmanBins(n int) *Model {
	if n < 1 {
		panic("SpearmanBins requires a positive number of bins")
	}
	m.nbins = n
	return m
}

// Marginal returns the marginal model.
func (m *Model) Marginal() *glm.GLM {
	return m.glm
}

// Copula returns the dependence expression.
func (m *Model) Copula() copula.Expression {
	return m.cop
}

// Groups returns the groups of dependent observations.
func (m *Model) Groups() []hierdata.Group {
	return m.groups
}

// CompositeLogLike returns the composite log-likelihood of the model.
func (m *Model) CompositeLogLike() *CompositeLogLike {
	return m.cll
}

// NumParams returns the number of marginal and dependence parameters.
func (m *Model) NumParams() int {
	return m.cll.NumParams()
}

// NumObs returns the number of observations.
func (m *Model) NumObs() int {
	return m.glm.NumObs()
}

// Design returns the covariates of the marginal model.
func (m *Model) Design() [][]statmodel.Dtype {
	return m.glm.Design()
}

// Names returns the names of the marginal coefficients followed by the
// names of the dependence parameters.
func (m *Model) Names() []string {
	var names []string
	names = append(names, m.glm.CovariateNames()...)
	names = append(names, m.cop.Names()...)
	return names
}

// Parameters returns the marginal coefficients stacked on top of the
// dependence parameters.
func (m *Model) Parameters() []float64 {
	return m.cll.Parameters()
}

// SetParameters sets the stacked parameter vector.  If x is nil the
// marginal coefficients are set to zero and the dependence parameters
// are not changed.
func (m *Model) SetParameters(x []float64) {
	if x == nil {
		zero(m.mpar.GetCoeff())
	} else {
		m.cll.SetParameters(x)
	}
	m.cll.Invalidate()
}

// at moves the model to the parameter x if it differs from the current
// parameter.
func (m *Model) at(x []float64) {
	if !floats.Equal(x, m.cll.Parameters()) {
		m.SetParameters(x)
	}
}

// LogLike returns the composite log-likelihood at the current
// parameters.
func (m *Model) LogLike() float64 {
	return m.cll.Value()
}

// Score fills score with the gradient of the composite log-likelihood
// at the given parameter, which becomes the current parameter.
func (m *Model) Score(par statmodel.Parameter, score []float64) {
	m.at(par.GetCoeff())
	copy(score, m.cll.Gradient())
}

// Hessian fills hess with the vectorized observed Hessian of the
// composite log-likelihood at the given parameter, which becomes the
// current parameter.
func (m *Model) Hessian(par statmodel.Parameter, _ statmodel.HessType, hess []float64) {
	m.at(par.GetCoeff())
	h := m.cll.Hessian()
	n := m.NumParams()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			hess[i*n+j] = h.At(i, j)
		}
	}
}

// GridSearch evaluates the composite log-likelihood as parameter index
// takes the values start, start+step, ..., up to and including end
// when end lies on the grid, with the other parameters held fixed.
// The model is left at the grid point with the greatest non-NaN
// log-likelihood; the first such point wins ties.
func (m *Model) GridSearch(index int, start, end, step float64) ([]GridPoint, error) {

	if start >= end || step <= 0 {
		return nil, errors.Wrapf(statmodel.ErrInvalidGrid, "start=%v end=%v step=%v", start, end, step)
	}
	if index < 0 || index >= m.NumParams() {
		return nil, errors.Wrapf(statmodel.ErrInvalidGrid, "parameter %d out of range [0, %d)",
			index, m.NumParams())
	}

	orig := m.Parameters()

	// Grid values are start + k*step, k = 0, ..., n.
	n := int(math.Floor((end-start)/step + 1e-9))
	points := make([]GridPoint, 0, n+1)
	for k := 0; k <= n; k++ {
		v := start + float64(k)*step
		m.cll.SetParameterValue(index, v)
		m.cll.Invalidate()
		ll := m.cll.Value()
		points = append(points, GridPoint{Params: m.cll.Parameters(), LogLike: ll})
		m.log.Debug().Int("index", index).Float64("value", v).Float64("loglike", ll).Msg("grid point")
	}

	best := -1
	for k, pt := range points {
		if math.IsNaN(pt.LogLike) {
			continue
		}
		if best == -1 || pt.LogLike > points[best].LogLike {
			best = k
		}
	}

	if best == -1 {
		m.SetParameters(orig)
		return nil, errors.Wrapf(statmodel.ErrAllNaN, "grid search over parameter %d", index)
	}

	m.SetParameters(points[best].Params)
	m.log.Info().Int("index", index).Float64("value", points[best].Params[index]).
		Float64("loglike", points[best].LogLike).Msg("grid search")

	return points, nil
}

// Fit maximizes the composite log-likelihood over all parameters,
// starting from the current parameters, which must lie within the
// bounds of the dependence parameters.
func (m *Model) Fit() (*Results, error) {

	n := m.NumParams()
	obj := newObjective(m.cll, allParams(n))

	optrslt, err := obj.minimize(m.settings, m.method)
	if err != nil {
		m.log.Warn().Err(err).Msg("composite likelihood optimization failed")
		return nil, errors.Wrap(err, "fitting copula model")
	}

	converged := !optrslt.Status.Early()
	if !converged {
		m.log.Warn().Str("status", optrslt.Status.String()).Msg("composite likelihood optimization stopped early")
	}

	params := m.Parameters()
	ll := m.cll.Value()

	hess := make([]float64, n*n)
	m.Hessian(statmodel.NewGenericParameter(params), statmodel.ObsHess, hess)
	vcov, err := statmodel.VcovFromHessian(hess, n)
	if err != nil {
		m.log.Warn().Err(err).Msg("no standard errors")
		vcov = nil
	}

	results := &Results{
		BaseResults: statmodel.NewBaseResults(fitter{m}, ll, params, m.Names(), vcov),
		model:       m,
		converged:   converged,
		status:      optrslt.Status,
		iterations:  optrslt.MajorIterations,
	}

	if converged {
		results.spearman, err = m.Spearman()
		if err != nil {
			return nil, err
		}
	}

	m.log.Info().Float64("loglike", ll).Int("iterations", optrslt.MajorIterations).
		Bool("converged", converged).Msg("copula model fit")

	m.results = results

	return results, nil
}

// Results returns the most recent fit, or nil if the model has not
// been fit.
func (m *Model) Results() *Results {
	return m.results
}

// Residuals returns the observed outcomes minus the fitted
// probabilities of the marginal model at the current coefficients.
func (m *Model) Residuals() []float64 {
	mn := m.glm.Mean(m.mpar)
	y := m.glm.Response()
	resid := make([]float64, len(y))
	floats.SubTo(resid, y, mn)
	return resid
}

// Spearman computes the residual rank correlation diagnostic at the
// current parameters.  For a DistanceLink copula the pairs are binned
// by their distance along the first distance dimension.
func (m *Model) Spearman() ([]SpearmanBin, error) {

	var dist hierdata.PairDistances
	if m.cop.Kind() == copula.DistanceLink {
		d, err := m.data.Distances()
		if err != nil {
			return nil, err
		}
		dist = d[0]
	}

	return Spearman(m.Residuals(), m.groups, dist, m.nbins), nil
}
