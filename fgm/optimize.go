package fgm

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/kshedden/copulaglm/copula"
)

// recorder reports the progress of an optimizer to a composite
// log-likelihood.
type recorder struct {
	c *CompositeLogLike
}

var _ optimize.Recorder = recorder{}

func (r recorder) Init() error {
	r.c.Notify(OptimizationStarted)
	return nil
}

func (r recorder) Record(_ *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op&optimize.MajorIteration != 0 {
		r.c.Notify(IterationStarted)
	}
	return nil
}

// objective is the negative composite log-likelihood as a function of
// a subset of the parameters.  The other parameters keep their
// current values.
type objective struct {
	c      *CompositeLogLike
	free   []int
	bounds []copula.Bound
}

func newObjective(c *CompositeLogLike, free []int) *objective {

	layout := c.Layout()
	cb := c.cop.Bounds()
	bounds := make([]copula.Bound, layout.Total())
	for i := range bounds {
		if i < layout.Marginal {
			bounds[i] = copula.Unbounded()
		} else {
			bounds[i] = cb[i-layout.Marginal]
		}
	}

	return &objective{
		c:      c,
		free:   free,
		bounds: bounds,
	}
}

// allParams returns the positions 0, ..., n-1, skipping the positions
// in omit.
func allParams(n int, omit ...int) []int {
	var ix []int
outer:
	for i := 0; i < n; i++ {
		for _, j := range omit {
			if i == j {
				continue outer
			}
		}
		ix = append(ix, i)
	}
	return ix
}

// start returns the current values of the free parameters.
func (o *objective) start() []float64 {
	x := make([]float64, len(o.free))
	for k, i := range o.free {
		x[k] = o.c.ParameterValue(i)
	}
	return x
}

// sync moves the composite log-likelihood to the point x, clearing
// the caches if any parameter changes.  It reports whether x is within
// the parameter bounds.
func (o *objective) sync(x []float64) bool {

	changed := false
	inside := true
	for k, i := range o.free {
		if o.c.ParameterValue(i) != x[k] {
			o.c.SetParameterValue(i, x[k])
			changed = true
		}
		if !o.bounds[i].Contains(x[k]) {
			inside = false
		}
	}

	if changed {
		o.c.Invalidate()
	}

	return inside
}

func (o *objective) problem() optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			if !o.sync(x) {
				return math.Inf(1)
			}
			f := -o.c.Value()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return math.Inf(1)
			}
			return f
		},
		Grad: func(grad, x []float64) {
			o.sync(x)
			g := o.c.Gradient()
			for k, i := range o.free {
				grad[k] = -g[i]
			}
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			o.sync(x)
			h := o.c.Hessian()
			for k1, i1 := range o.free {
				for k2 := k1; k2 < len(o.free); k2++ {
					hess.SetSym(k1, k2, -h.At(i1, o.free[k2]))
				}
			}
		},
	}
}

// minimize maximizes the composite log-likelihood over the free
// parameters, leaving the composite log-likelihood at the optimum.
func (o *objective) minimize(settings *optimize.Settings, method optimize.Method) (*optimize.Result, error) {

	var s optimize.Settings
	if settings != nil {
		s = *settings
	} else {
		s.GradientThreshold = 1e-6
		s.MajorIterations = 100
	}
	s.Recorder = recorder{c: o.c}

	if method == nil {
		method = &optimize.Newton{Linesearcher: &optimize.Backtracking{}}
	}

	optrslt, err := optimize.Minimize(o.problem(), o.start(), &s, method)
	if optrslt != nil {
		o.sync(optrslt.X)
	}

	return optrslt, err
}
