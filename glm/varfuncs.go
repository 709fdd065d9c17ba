package glm

import (
	"fmt"
)

// VarianceType is used to specify a GLM variance function.
type VarianceType uint8

// BinomialVar is the Bernoulli variance p(1-p).
const (
	BinomialVar VarianceType = iota
)

// Variance is the variance of an outcome as a function of its mean,
// with its derivative.  It determines the IRLS weights and the
// expected Hessian.
type Variance struct {
	Name  string
	Var   VecFunc
	Deriv VecFunc
}

// NewVariance returns the variance function of the given type.
func NewVariance(vartype VarianceType) *Variance {
	if vartype != BinomialVar {
		panic(fmt.Sprintf("Unknown variance function: %d\n", vartype))
	}
	return &Variance{
		Name: "Binomial",
		Var: func(mn, v []float64) {
			for i, p := range mn {
				v[i] = p * (1 - p)
			}
		},
		Deriv: func(mn, dv []float64) {
			for i, p := range mn {
				dv[i] = 1 - 2*p
			}
		},
	}
}
