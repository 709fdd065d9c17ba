package glm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// VecFunc is a function with two float64 array arguments.
type VecFunc func([]float64, []float64)

// Link specifies a GLM link function.
type Link struct {
	Name string

	TypeCode LinkType

	// Link calculates the link function (usually mapping the mean
	// value to the linear predictor).
	Link VecFunc

	// InvLink calculates the inverse of the link function
	// (usually mapping the linear predictor to the mean value).
	InvLink VecFunc

	// Deriv calculates the derivative of the link function.
	Deriv VecFunc

	// Deriv2 calculates the second derivative of the link function.
	Deriv2 VecFunc

	// mean returns the inverse link at a scalar linear predictor,
	// together with its first and second derivatives.
	mean func(float64) (float64, float64, float64)
}

// LinkType is used to specify a GLM link function.
type LinkType uint8

// LogLink, etc. indicate the different link functions.
const (
	LogLink LinkType = iota
	IdentityLink
	LogitLink
	CloglogLink
	ProbitLink
)

// NewLink returns a link function object corresponding to the given
// type.
func NewLink(link LinkType) *Link {

	switch link {
	case LogLink:
		return &logLink
	case IdentityLink:
		return &idLink
	case CloglogLink:
		return &cLogLogLink
	case LogitLink:
		return &logitLink
	case ProbitLink:
		return &probitLink
	default:
		msg := fmt.Sprintf("Link unknown: %v\n", link)
		panic(msg)
	}
}

// Mean returns the inverse link function evaluated at the linear
// predictor eta, and the first and second derivatives of the inverse
// link with respect to eta.
func (link *Link) Mean(eta float64) (mu, dmu, d2mu float64) {
	return link.mean(eta)
}

var logLink = Link{
	Name:     "Log",
	TypeCode: LogLink,
	Link:     logFunc,
	InvLink:  expFunc,
	Deriv:    logDerivFunc,
	Deriv2:   logDeriv2Func,
	mean: func(eta float64) (float64, float64, float64) {
		e := math.Exp(eta)
		return e, e, e
	},
}

var idLink = Link{
	Name:     "Identity",
	TypeCode: IdentityLink,
	Link:     idFunc,
	InvLink:  idFunc,
	Deriv:    idDerivFunc,
	Deriv2:   idDeriv2Func,
	mean: func(eta float64) (float64, float64, float64) {
		return eta, 1, 0
	},
}

var cLogLogLink = Link{
	Name:     "CLogLog",
	TypeCode: CloglogLink,
	Link:     cloglogFunc,
	InvLink:  cloglogInvFunc,
	Deriv:    cloglogDerivFunc,
	Deriv2:   cloglogDeriv2Func,
	mean: func(eta float64) (float64, float64, float64) {
		e := math.Exp(eta)
		d := math.Exp(eta - e)
		return -math.Expm1(-e), d, d * (1 - e)
	},
}

var logitLink = Link{
	Name:     "Logit",
	TypeCode: LogitLink,
	Link:     logitFunc,
	InvLink:  expitFunc,
	Deriv:    logitDerivFunc,
	Deriv2:   logitDeriv2Func,
	mean: func(eta float64) (float64, float64, float64) {
		p := expit(eta)
		v := p * (1 - p)
		return p, v, v * (1 - 2*p)
	},
}

var probitLink = Link{
	Name:     "Probit",
	TypeCode: ProbitLink,
	Link:     probitFunc,
	InvLink:  probitInvFunc,
	Deriv:    probitDerivFunc,
	Deriv2:   probitDeriv2Func,
	mean: func(eta float64) (float64, float64, float64) {
		d := distuv.UnitNormal.Prob(eta)
		return distuv.UnitNormal.CDF(eta), d, -eta * d
	},
}

func logFunc(x []float64, y []float64) {
	for i := 0; i < len(x); i++ {
		y[i] = math.Log(x[i])
	}
}

func logDerivFunc(x []float64, y []float64) {
	for i := 0; i < len(x); i++ {
		y[i] = 1 / x[i]
	}
}

func logDeriv2Func(x []float64, y []float64) {
	for i := 0; i < len(x); i++ {
		y[i] = -1 / (x[i] * x[i])
	}
}

func expFunc(x []float64, y []float64) {
	for i := 0; i < len(x); i++ {
		y[i] = math.Exp(x[i])
	}
}

func logitFunc(x []float64, y []float64) {
	for i := 0; i < len(x); i++ {
		r := x[i] / (1 - x[i])
		y[i] = math.Log(r)
	}
}

func logitDerivFunc(x []float64, y []float64) {
	for i := 0; i < len(x); i++ {
		y[i] = 1 / (x[i] * (1 - x[i]))
	}
}

func logitDeriv2Func(x []float64, y []float64) {
	for i := 0; i < len(x); i++ {
		v := x[i] * (1 - x[i])
		y[i] = (2*x[i] - 1) / (v * v)
	}
}

// expit is the logistic function, evaluated so that it does not
// overflow for large |x|.
func expit(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func expitFunc(x []float64, y []float64) {
	for i := 0; i < len(x); i++ {
		y[i] = expit(x[i])
	}
}

func idFunc(x []float64, y []float64) {
	copy(y, x)
}

func idDerivFunc(x []float64, y []float64) {
	one(y)
}

func idDeriv2Func(x []float64, y []float64) {
	zero(y)
}

func cloglogFunc(x []float64, y []float64) {
	for i, v := range x {
		y[i] = math.Log(-math.Log(1 - v))
	}
}

func cloglogDerivFunc(x []float64, y []float64) {
	for i, v := range x {
		y[i] = 1 / ((v - 1) * math.Log(1-v))
	}
}

func cloglogDeriv2Func(x []float64, y []float64) {
	for i, v := range x {
		f := math.Log(1 - v)
		r := -1 / ((1 - v) * (1 - v) * f)
		y[i] = r * (1 + 1/f)
	}
}

func cloglogInvFunc(x []float64, y []float64) {
	for i, v := range x {
		y[i] = 1 - math.Exp(-math.Exp(v))
	}
}

func probitFunc(x []float64, y []float64) {
	for i, v := range x {
		y[i] = distuv.UnitNormal.Quantile(v)
	}
}

func probitInvFunc(x []float64, y []float64) {
	for i, v := range x {
		y[i] = distuv.UnitNormal.CDF(v)
	}
}

// The derivative of the probit link is 1/phi(eta), with eta the
// normal quantile of the mean.
func probitDerivFunc(x []float64, y []float64) {
	for i, v := range x {
		eta := distuv.UnitNormal.Quantile(v)
		y[i] = 1 / distuv.UnitNormal.Prob(eta)
	}
}

func probitDeriv2Func(x []float64, y []float64) {
	for i, v := range x {
		eta := distuv.UnitNormal.Quantile(v)
		d := distuv.UnitNormal.Prob(eta)
		y[i] = eta / (d * d)
	}
}
