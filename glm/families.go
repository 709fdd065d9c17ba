package glm

import (
	"fmt"
	"math"

	"github.com/kshedden/copulaglm/statmodel"
)

// FamilyType is the type of GLM family used in a model.
type FamilyType uint8

// BinomialFamily is the family of models for 0/1 outcomes.
const (
	BinomialFamily FamilyType = iota
)

// Family is the distribution of the outcome given its mean.
type Family struct {

	// The name of the family
	Name string

	// The numeric code for the family
	TypeCode FamilyType

	// LogLike returns the log-likelihood of the outcomes y at the
	// means mn.
	LogLike func(y []statmodel.Dtype, mn []float64) float64

	// Deviance returns the deviance of the outcomes y at the means
	// mn.
	Deviance func(y []statmodel.Dtype, mn []float64) float64

	// Links that may be used with the family, the canonical link
	// first
	validLinks []LinkType
}

// NewFamily returns a family object corresponding to the given type.
func NewFamily(fam FamilyType) *Family {

	switch fam {
	case BinomialFamily:
		return &binomial
	default:
		msg := fmt.Sprintf("Unknown family: %v\n", fam)
		panic(msg)
	}
}

var binomial = Family{
	Name:       "Binomial",
	TypeCode:   BinomialFamily,
	LogLike:    bernoulliLogLike,
	Deviance:   bernoulliDeviance,
	validLinks: []LinkType{LogitLink, ProbitLink, CloglogLink, LogLink, IdentityLink},
}

// IsValidLink reports whether the link can be used with the family.
func (fam *Family) IsValidLink(link *Link) bool {
	for _, q := range fam.validLinks {
		if link.TypeCode == q {
			return true
		}
	}
	return false
}

// bernoulliProb is the probability of the outcome y when P(Y = 1) = p.
func bernoulliProb(y, p float64) float64 {
	if y == 1 {
		return p
	}
	return 1 - p
}

func bernoulliLogLike(y []statmodel.Dtype, mn []float64) float64 {
	var ll float64
	for i := range y {
		ll += math.Log(bernoulliProb(y[i], mn[i]))
	}
	return ll
}

// For 0/1 outcomes the saturated log-likelihood is zero.
func bernoulliDeviance(y []statmodel.Dtype, mn []float64) float64 {
	return -2 * bernoulliLogLike(y, mn)
}
