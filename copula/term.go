package copula

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/kshedden/copulaglm/glm"
	"github.com/kshedden/copulaglm/hierdata"
	"github.com/kshedden/copulaglm/statmodel"
)

// Term is a dependence value of the form link(x'b), where the
// covariates x of a pair are determined by the kind of the term.
type Term struct {
	kind Kind

	levels []string

	// Distance dimensions, for DistanceLink terms
	distSpec string
	distDims [][]string
	dist     []hierdata.PairDistances

	link *glm.Link

	coeff  []float64
	bounds []Bound
	names  []string
}

var _ Expression = (*Term)(nil)

// NewConstant returns a term whose value is its single coefficient,
// which is restricted to [-1, 1].  Pairs within the same group at the
// finest of the given levels (e.g. "stratum/plot") are dependent.
func NewConstant(levels string, start float64) *Term {
	return &Term{
		kind:   Constant,
		levels: hierdata.ParseLevels(levels),
		link:   glm.NewLink(glm.IdentityLink),
		coeff:  []float64{start},
		bounds: []Bound{{Lower: -1, Upper: 1}},
		names:  []string{"fgm"},
	}
}

// NewLogisticConstant returns a term whose value is the logistic
// function of its single, unbounded coefficient.
func NewLogisticConstant(levels string, start float64) *Term {
	return &Term{
		kind:   LogisticConstant,
		levels: hierdata.ParseLevels(levels),
		link:   glm.NewLink(glm.LogitLink),
		coeff:  []float64{start},
		bounds: []Bound{Unbounded()},
		names:  []string{"fgm(logit)"},
	}
}

// NewDistanceLink returns a term whose value is the inverse of the
// given link applied to a linear combination of the pairwise distances
// along each of the dimensions in distFields (e.g. "x+y,year").  There
// is one coefficient per dimension.  If start is nil the coefficients
// start at zero.
func NewDistanceLink(levels, distFields string, link *glm.Link, start []float64) *Term {

	dims := hierdata.ParseDistanceFields(distFields)
	if len(dims) == 0 {
		msg := fmt.Sprintf("no distance dimensions in '%s'", distFields)
		panic(msg)
	}

	coeff := make([]float64, len(dims))
	if start != nil {
		if len(start) != len(dims) {
			msg := fmt.Sprintf("%d starting values for %d distance dimensions", len(start), len(dims))
			panic(msg)
		}
		copy(coeff, start)
	}

	bounds := make([]Bound, len(dims))
	names := make([]string, len(dims))
	for k, d := range dims {
		bounds[k] = Unbounded()
		names[k] = fmt.Sprintf("fgm:%s", strings.Join(d, "+"))
	}

	return &Term{
		kind:     DistanceLink,
		levels:   hierdata.ParseLevels(levels),
		distSpec: distFields,
		distDims: dims,
		link:     link,
		coeff:    coeff,
		bounds:   bounds,
		names:    names,
	}
}

// Kind returns the parameterization of the term.
func (t *Term) Kind() Kind {
	return t.kind
}

// Levels returns the hierarchical levels.
func (t *Term) Levels() []string {
	return t.levels
}

// DistanceFields returns the distance dimensions of a DistanceLink
// term, and nil otherwise.
func (t *Term) DistanceFields() [][]string {
	return t.distDims
}

// Link returns the link function of the term.
func (t *Term) Link() *glm.Link {
	return t.link
}

// NumParams returns the number of coefficients.
func (t *Term) NumParams() int {
	return len(t.coeff)
}

// Coeff returns the coefficients.  The returned slice refers to the
// term's storage.
func (t *Term) Coeff() []float64 {
	return t.coeff
}

// SetCoeff copies x into the coefficients.
func (t *Term) SetCoeff(x []float64) {
	if len(x) != len(t.coeff) {
		msg := fmt.Sprintf("%d coefficients provided, term has %d", len(x), len(t.coeff))
		panic(msg)
	}
	copy(t.coeff, x)
}

// Bounds returns the admissible range of each coefficient.
func (t *Term) Bounds() []Bound {
	return t.bounds
}

// Names returns the coefficient labels.
func (t *Term) Names() []string {
	return t.names
}

// Initialize sets the hierarchical levels, and for DistanceLink terms
// the distance fields, on the dataset.  Distances are computed here,
// so that configuration errors surface before any fitting.
func (t *Term) Initialize(data *hierdata.Data) error {

	if len(t.levels) == 0 {
		return errors.Wrap(statmodel.ErrNoHierarchy, "copula has no hierarchical levels")
	}

	spec := strings.Join(t.levels, "/")
	if err := data.SetHierarchicalLevels(spec); err != nil {
		return errors.Wrapf(err, "%s copula", t.kind)
	}

	if t.kind != DistanceLink {
		return nil
	}

	if err := data.SetDistanceFields(t.distSpec); err != nil {
		return errors.Wrapf(err, "%s copula", t.kind)
	}

	dist, err := data.Distances()
	if err != nil {
		return errors.Wrapf(err, "%s copula", t.kind)
	}
	if len(dist) != len(t.coeff) {
		return errors.Wrapf(statmodel.ErrDimension, "%d distance dimensions for %d coefficients",
			len(dist), len(t.coeff))
	}
	t.dist = dist

	return nil
}

// covariates fills x with the covariates of the pair (i, j).  It
// returns false if a distance is unavailable.
func (t *Term) covariates(i, j int, x []float64) bool {

	switch t.kind {
	case Constant, LogisticConstant:
		x[0] = 1
		return true
	case DistanceLink:
		if t.dist == nil {
			panic("DistanceLink copula used before Initialize")
		}
		for k, pd := range t.dist {
			v, ok := pd.Get(i, j)
			if !ok {
				return false
			}
			x[k] = v
		}
		return true
	default:
		panic(fmt.Sprintf("unknown copula kind %v", t.kind))
	}
}

// Evaluate returns link^-1(x'b) for the covariates x of the pair
// (i, j), and its derivatives with respect to b.
func (t *Term) Evaluate(i, j int, grad, hess []float64) (float64, bool) {

	var buf [8]float64
	q := len(t.coeff)
	x := buf[:]
	if q > len(buf) {
		x = make([]float64, q)
	}
	x = x[:q]

	if !t.covariates(i, j, x) {
		return 0, false
	}

	var eta float64
	for k, b := range t.coeff {
		eta += x[k] * b
	}

	mu, dmu, d2mu := t.link.Mean(eta)

	if grad != nil {
		for k := range x {
			grad[k] = dmu * x[k]
		}
	}

	if hess != nil {
		for k1 := range x {
			for k2 := 0; k2 <= k1; k2++ {
				v := d2mu * x[k1] * x[k2]
				hess[k1*q+k2] = v
				hess[k2*q+k1] = v
			}
		}
	}

	return mu, true
}
