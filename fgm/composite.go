package fgm

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/copulaglm/copula"
	"github.com/kshedden/copulaglm/hierdata"
	"github.com/kshedden/copulaglm/statmodel"
)

// Tier identifies one of the cached quantities of a composite
// log-likelihood.
type Tier int

// ValueTier, GradientTier and HessianTier are the log-likelihood and
// its derivatives.  TermTier, TermGradientTier and TermHessianTier are
// the per-group correction terms, their log-gradients and their
// log-Hessians.
const (
	ValueTier Tier = iota
	GradientTier
	HessianTier
	TermTier
	TermGradientTier
	TermHessianTier
	numTiers
)

func (t Tier) String() string {
	switch t {
	case ValueTier:
		return "value"
	case GradientTier:
		return "gradient"
	case HessianTier:
		return "hessian"
	case TermTier:
		return "terms"
	case TermGradientTier:
		return "term gradients"
	case TermHessianTier:
		return "term hessians"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Event is a notification from an optimizer.
type Event string

// Either event means that the parameters may have changed.
const (
	OptimizationStarted Event = "optimization started"
	IterationStarted    Event = "inner iteration started"
)

type tierState int

const (
	stale tierState = iota
	fresh
)

// termLevel is the state of the per-group correction tier.  The
// levels are ordered, each one includes the previous ones.
type termLevel int

const (
	termsStale termLevel = iota
	termsFresh
	termGradsFresh
	termHessFresh
)

// CompositeLogLike is the FGM composite log-likelihood for binary
// outcomes.  It is the independence log-likelihood of a marginal model
// plus, for every group, the log of a pairwise correction term
//
//	1 + sum_{a<b} s_ab c_ab (1-u_a) (1-u_b)
//
// where u is the likelihood of an observation under the marginal
// model, c_ab is the dependence value of the pair and s_ab is -1 when
// exactly one of the two outcomes is 1, and +1 otherwise.
//
// Values are computed lazily and cached.  The caches are not cleared
// when a parameter is set; call Invalidate or Notify after changing
// the parameters.  A CompositeLogLike is not safe for concurrent use.
type CompositeLogLike struct {
	model  statmodel.ObsLiker
	mpar   statmodel.Parameter
	cop    copula.Expression
	groups []hierdata.Group
	layout statmodel.Layout
	y      []float64

	value      float64
	valueState tierState

	grad      []float64
	gradState tierState

	hess      *mat.SymDense
	hessState tierState

	level     termLevel
	terms     []float64
	termGrads [][]float64
	termHess  []*mat.SymDense

	recomputes [numTiers]int

	log zerolog.Logger
}

// NewCompositeLogLike returns a composite log-likelihood combining the
// marginal model at the parameter mpar with the dependence expression
// cop.  The coefficients of mpar and cop are used by reference.
func NewCompositeLogLike(model statmodel.ObsLiker, mpar statmodel.Parameter, cop copula.Expression,
	groups []hierdata.Group) *CompositeLogLike {

	layout := statmodel.Layout{
		Marginal:   model.NumParams(),
		Dependence: cop.NumParams(),
	}

	return &CompositeLogLike{
		model:     model,
		mpar:      mpar,
		cop:       cop,
		groups:    groups,
		layout:    layout,
		y:         model.Response(),
		terms:     make([]float64, len(groups)),
		termGrads: make([][]float64, len(groups)),
		termHess:  make([]*mat.SymDense, len(groups)),
		log:       zerolog.Nop(),
	}
}

// Log sets a logger.
func (c *CompositeLogLike) Log(log zerolog.Logger) *CompositeLogLike {
	c.log = log
	return c
}

// Layout returns the layout of the stacked parameter vector.
func (c *CompositeLogLike) Layout() statmodel.Layout {
	return c.layout
}

// NumParams returns the total number of parameters.
func (c *CompositeLogLike) NumParams() int {
	return c.layout.Total()
}

// NumGroups returns the number of groups.
func (c *CompositeLogLike) NumGroups() int {
	return len(c.groups)
}

// ParameterValue returns parameter i of the stacked vector.
func (c *CompositeLogLike) ParameterValue(i int) float64 {
	b, j := c.layout.Locate(i)
	if b == statmodel.MarginalBlock {
		return c.mpar.GetCoeff()[j]
	}
	return c.cop.Coeff()[j]
}

// SetParameterValue sets parameter i of the stacked vector.  The
// caches are not cleared.
func (c *CompositeLogLike) SetParameterValue(i int, v float64) {
	b, j := c.layout.Locate(i)
	if b == statmodel.MarginalBlock {
		c.mpar.GetCoeff()[j] = v
		return
	}
	x := make([]float64, c.layout.Dependence)
	copy(x, c.cop.Coeff())
	x[j] = v
	c.cop.SetCoeff(x)
}

// Parameters returns a copy of the stacked parameter vector.
func (c *CompositeLogLike) Parameters() []float64 {
	return c.layout.Stack(nil, c.mpar.GetCoeff(), c.cop.Coeff())
}

// SetParameters sets the stacked parameter vector.  The caches are not
// cleared.
func (c *CompositeLogLike) SetParameters(x []float64) {
	marg, dep := c.layout.Split(x)
	copy(c.mpar.GetCoeff(), marg)
	c.cop.SetCoeff(dep)
}

// Notify clears every cache when an optimizer reports that the
// optimization or an inner iteration has started.  Other events are
// ignored.
func (c *CompositeLogLike) Notify(ev Event) {
	switch ev {
	case OptimizationStarted, IterationStarted:
		c.log.Debug().Str("event", string(ev)).Msg("invalidating composite likelihood")
		c.Invalidate()
	default:
		c.log.Debug().Str("event", string(ev)).Msg("ignoring event")
	}
}

// Invalidate clears every cache.
func (c *CompositeLogLike) Invalidate() {
	c.valueState = stale
	c.gradState = stale
	c.hessState = stale
	c.level = termsStale
}

// Recomputes returns the number of times the given tier has been
// computed.
func (c *CompositeLogLike) Recomputes(t Tier) int {
	return c.recomputes[t]
}

// Value returns the composite log-likelihood.
func (c *CompositeLogLike) Value() float64 {

	if c.valueState == fresh {
		return c.value
	}

	c.updateTerms()

	llk := c.model.LogLike(c.mpar, true)
	for _, t := range c.terms {
		llk += math.Log(t)
	}

	c.value = llk
	c.valueState = fresh
	c.recomputes[ValueTier]++

	return c.value
}

// Gradient returns the gradient of the composite log-likelihood with
// respect to the stacked parameter vector.  The returned slice is
// owned by c and must not be modified.
func (c *CompositeLogLike) Gradient() []float64 {

	if c.gradState == fresh {
		return c.grad
	}

	c.updateTermGrads()

	base := make([]float64, c.layout.Marginal)
	c.model.Score(c.mpar, base)
	c.grad = c.layout.Stack(c.grad, base, make([]float64, c.layout.Dependence))
	for _, tg := range c.termGrads {
		floats.Add(c.grad, tg)
	}

	c.gradState = fresh
	c.recomputes[GradientTier]++

	return c.grad
}

// Hessian returns the Hessian matrix of the composite log-likelihood
// with respect to the stacked parameter vector.  The returned matrix is
// owned by c and must not be modified.
func (c *CompositeLogLike) Hessian() *mat.SymDense {

	if c.hessState == fresh {
		return c.hess
	}

	c.updateTermHess()

	p := c.layout.Marginal
	base := make([]float64, p*p)
	c.model.Hessian(c.mpar, statmodel.ObsHess, base)

	if c.hess == nil {
		c.hess = mat.NewSymDense(c.layout.Total(), nil)
	} else {
		c.hess.Zero()
	}
	for j1 := 0; j1 < p; j1++ {
		for j2 := j1; j2 < p; j2++ {
			c.hess.SetSym(j1, j2, base[j1*p+j2])
		}
	}
	for _, th := range c.termHess {
		c.hess.AddSym(c.hess, th)
	}

	c.hessState = fresh
	c.recomputes[HessianTier]++

	return c.hess
}

// GroupTerm returns the correction term of group g.  A group with
// fewer than two members has term 1.
func (c *CompositeLogLike) GroupTerm(g int) float64 {
	c.updateTerms()
	return c.terms[g]
}

// GroupGradient returns the gradient of the log of the correction term
// of group g.
func (c *CompositeLogLike) GroupGradient(g int) []float64 {
	c.updateTermGrads()
	return c.termGrads[g]
}

// GroupHessian returns the Hessian of the log of the correction term
// of group g.
func (c *CompositeLogLike) GroupHessian(g int) *mat.SymDense {
	c.updateTermHess()
	return c.termHess[g]
}

func (c *CompositeLogLike) updateTerms() {
	if c.level >= termsFresh {
		return
	}
	for g, grp := range c.groups {
		c.terms[g] = c.groupTerm(grp)
	}
	c.level = termsFresh
	c.recomputes[TermTier]++
}

func (c *CompositeLogLike) updateTermGrads() {
	if c.level >= termGradsFresh {
		return
	}
	for g, grp := range c.groups {
		c.terms[g], c.termGrads[g] = c.groupGradient(grp, c.termGrads[g])
	}
	c.level = termGradsFresh
	c.recomputes[TermGradientTier]++
}

func (c *CompositeLogLike) updateTermHess() {
	if c.level >= termHessFresh {
		return
	}

	// The log-Hessian of a term uses its log-gradient.
	c.updateTermGrads()

	for g, grp := range c.groups {
		c.termHess[g] = c.groupHessian(grp, c.terms[g], c.termGrads[g], c.termHess[g])
	}
	c.level = termHessFresh
	c.recomputes[TermHessianTier]++
}

// margins holds the marginal likelihood of each member of a group, and
// optionally its gradient and vectorized Hessian.
type margins struct {
	u   []float64
	du  [][]float64
	d2u [][]float64
}

func (c *CompositeLogLike) margins(idx []int, level termLevel) *margins {

	p := c.layout.Marginal
	m := &margins{u: make([]float64, len(idx))}
	if level >= termGradsFresh {
		m.du = make([][]float64, len(idx))
	}
	if level >= termHessFresh {
		m.d2u = make([][]float64, len(idx))
	}

	for k, i := range idx {
		var grad, hess []float64
		if m.du != nil {
			grad = make([]float64, p)
			m.du[k] = grad
		}
		if m.d2u != nil {
			hess = make([]float64, p*p)
			m.d2u[k] = hess
		}
		m.u[k] = c.model.ObsLike(c.mpar, i, grad, hess)
	}

	return m
}

// sign returns -1 if exactly one of the two binary outcomes is 1, and
// +1 otherwise.
func sign(ya, yb float64) float64 {
	if math.Round(ya+yb) == 1 {
		return -1
	}
	return 1
}

func (c *CompositeLogLike) groupTerm(grp hierdata.Group) float64 {

	idx := grp.Index
	if len(idx) < 2 {
		return 1
	}

	m := c.margins(idx, termsFresh)

	term := 1.0
	for a := 0; a < len(idx)-1; a++ {
		for b := a + 1; b < len(idx); b++ {
			cv, ok := c.cop.Evaluate(idx[a], idx[b], nil, nil)
			if !ok {
				continue
			}
			s := sign(c.y[idx[a]], c.y[idx[b]])
			term += s * cv * (1 - m.u[a]) * (1 - m.u[b])
		}
	}

	return term
}

// groupGradient returns the correction term of a group and the
// gradient of its log, stored in dst if dst is not nil.
func (c *CompositeLogLike) groupGradient(grp hierdata.Group, dst []float64) (float64, []float64) {

	p := c.layout.Marginal
	q := c.layout.Dependence

	if dst == nil {
		dst = make([]float64, p+q)
	} else {
		zero(dst)
	}

	idx := grp.Index
	if len(idx) < 2 {
		return 1, dst
	}

	m := c.margins(idx, termGradsFresh)
	top, bottom := c.layout.Split(dst)
	cgrad := make([]float64, q)

	term := 1.0
	for a := 0; a < len(idx)-1; a++ {
		for b := a + 1; b < len(idx); b++ {
			cv, ok := c.cop.Evaluate(idx[a], idx[b], cgrad, nil)
			if !ok {
				continue
			}
			s := sign(c.y[idx[a]], c.y[idx[b]])
			qa, qb := 1-m.u[a], 1-m.u[b]
			term += s * cv * qa * qb

			dua, dub := m.du[a], m.du[b]
			for j := range top {
				top[j] += s * cv * (-dua[j]*qb - dub[j]*qa)
			}
			floats.AddScaled(bottom, s*qa*qb, cgrad)
		}
	}

	floats.Scale(1/term, dst)

	return term, dst
}

// groupHessian returns the Hessian of the log of a group's correction
// term, given the term and the gradient of its log.
func (c *CompositeLogLike) groupHessian(grp hierdata.Group, term float64, tgrad []float64, dst *mat.SymDense) *mat.SymDense {

	p := c.layout.Marginal
	q := c.layout.Dependence
	n := p + q

	idx := grp.Index
	if len(idx) < 2 {
		if dst == nil {
			return mat.NewSymDense(n, nil)
		}
		dst.Zero()
		return dst
	}

	m := c.margins(idx, termHessFresh)
	cgrad := make([]float64, q)
	chess := make([]float64, q*q)

	// The Hessian of the term itself, row-major
	h := make([]float64, n*n)

	for a := 0; a < len(idx)-1; a++ {
		for b := a + 1; b < len(idx); b++ {
			cv, ok := c.cop.Evaluate(idx[a], idx[b], cgrad, chess)
			if !ok {
				continue
			}
			s := sign(c.y[idx[a]], c.y[idx[b]])
			qa, qb := 1-m.u[a], 1-m.u[b]
			dua, dub := m.du[a], m.du[b]
			d2a, d2b := m.d2u[a], m.d2u[b]

			for j1 := 0; j1 < p; j1++ {

				// Marginal by marginal
				for j2 := j1; j2 < p; j2++ {
					v := -d2a[j1*p+j2]*qb - d2b[j1*p+j2]*qa + dua[j1]*dub[j2] + dub[j1]*dua[j2]
					h[j1*n+j2] += s * cv * v
				}

				// Marginal by dependence
				f := s * (-dua[j1]*qb - dub[j1]*qa)
				for k := 0; k < q; k++ {
					h[j1*n+p+k] += f * cgrad[k]
				}
			}

			// Dependence by dependence
			for k1 := 0; k1 < q; k1++ {
				for k2 := k1; k2 < q; k2++ {
					h[(p+k1)*n+p+k2] += s * chess[k1*q+k2] * qa * qb
				}
			}
		}
	}

	// Only the upper triangle of h is used.
	hs := mat.NewSymDense(n, h)
	if dst == nil {
		dst = mat.NewSymDense(n, nil)
	}
	dst.ScaleSym(1/term, hs)
	dst.SymRankOne(dst, -1, mat.NewVecDense(n, tgrad))

	return dst
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}
