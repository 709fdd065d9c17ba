// Package copula provides the dependence parameterizations used by
// the FGM copula models.  Each parameterization maps a pair of
// observations to a dependence value through a linear predictor with
// its own coefficients.
package copula

import (
	"fmt"
	"math"

	"github.com/kshedden/copulaglm/hierdata"
)

// Kind identifies a dependence parameterization.
type Kind int

// Constant is a single dependence parameter used directly,
// LogisticConstant is a single parameter mapped through the logistic
// function, and DistanceLink is a link function of a linear
// combination of pairwise distances.
const (
	Constant Kind = iota
	LogisticConstant
	DistanceLink
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "Constant"
	case LogisticConstant:
		return "LogisticConstant"
	case DistanceLink:
		return "DistanceLink"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Bound is a closed interval of admissible values for a parameter.
type Bound struct {
	Lower float64
	Upper float64
}

// Unbounded returns the bound (-Inf, +Inf).
func Unbounded() Bound {
	return Bound{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// Contains reports whether v lies within the bound.
func (b Bound) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// Expression is a dependence parameterization for pairs of
// observations.
type Expression interface {

	// Kind returns the parameterization.
	Kind() Kind

	// Levels returns the hierarchical levels within which pairs of
	// observations are dependent.
	Levels() []string

	// Initialize registers the hierarchical levels, and any distance
	// fields, with the dataset.  It must be called once before
	// Evaluate.
	Initialize(data *hierdata.Data) error

	// Evaluate returns the dependence value for the pair of
	// observations (i, j).  If grad and hess are not nil they are
	// filled with the gradient and the vectorized Hessian of the
	// value with respect to the coefficients.  If ok is false, the
	// pair is not dependent and the outputs are not set.
	Evaluate(i, j int, grad, hess []float64) (value float64, ok bool)

	// NumParams returns the number of coefficients.
	NumParams() int

	// Coeff returns the coefficients.
	Coeff() []float64

	// SetCoeff copies the given values into the coefficients.
	SetCoeff([]float64)

	// Bounds returns the admissible range of each coefficient.
	Bounds() []Bound

	// Names returns a label for each coefficient.
	Names() []string
}
