package statmodel

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

type Dtype = float64

// HessType indicates the type of a Hessian matrix for a log-likelihood.
type HessType int

// ObsHess (observed Hessian) and ExpHess (expected Hessian) are the two type of log-likelihood
// Hessian matrices
const (
	ObsHess HessType = iota
	ExpHess
)

// Parameter is the parameter of a model.
type Parameter interface {

	// Get the coefficients of the covariates in the linear
	// predictor.  The returned value should be a reference so
	// that changes to it lead to corresponding changes in the
	// parameter itself.
	GetCoeff() []float64

	// Set the coefficients of the covariates in the linear
	// predictor.
	SetCoeff([]float64)

	// Clone creates a deep copy of the Parameter struct.
	Clone() Parameter
}

// GenericParameter is a Parameter holding only a coefficient vector.
type GenericParameter struct {
	params []float64
}

// NewGenericParameter returns a GenericParameter that refers to the
// given coefficients.
func NewGenericParameter(coeff []float64) GenericParameter {
	return GenericParameter{params: coeff}
}

func (gp GenericParameter) GetCoeff() []float64 {
	return gp.params
}

func (gp GenericParameter) SetCoeff(x []float64) {
	copy(gp.params, x)
}

func (gp GenericParameter) Clone() Parameter {
	y := GenericParameter{params: make([]float64, len(gp.params))}
	copy(y.params, gp.params)
	return y
}

// RegFitter is a regression model that can be fit to data.
type RegFitter interface {

	// Number of parameters in the model.
	NumParams() int

	// Number of observations in the data set
	NumObs() int

	// The covariate columns, in the same order as the
	// coefficients.
	Design() [][]Dtype

	// The log-likelihood function
	LogLike(Parameter, bool) float64

	// The score vector
	Score(Parameter, []float64)

	// The Hessian matrix
	Hessian(Parameter, HessType, []float64)
}

// ObsLiker is a regression model whose likelihood factors into
// independent per-observation contributions.
type ObsLiker interface {
	RegFitter

	// Response returns the observed outcomes.
	Response() []Dtype

	// ObsLike returns the likelihood (not the log-likelihood) of
	// observation i.  If grad or hess are not nil, they are filled
	// with the gradient and the vectorized Hessian of the likelihood
	// with respect to the coefficients.
	ObsLike(param Parameter, i int, grad, hess []float64) float64
}

// BaseResultser is a fitted model that can produce results (parameter estimates, etc.).
type BaseResultser interface {
	Model() RegFitter
	Names() []string
	LogLike() float64
	Params() []float64
	VCov() []float64
	StdErr() []float64
	ZScores() []float64
	PValues() []float64
}

// BaseResults contains the results after fitting a model to data.
type BaseResults struct {
	model   RegFitter
	loglike float64
	params  []float64
	xnames  []string
	vcov    []float64

	// Wald inference, nil when vcov is nil
	stderr  []float64
	zscores []float64
	pvalues []float64
}

// NewBaseResults returns a BaseResults corresponding to the given
// fitted model.  The vectorized covariance matrix vcov may be nil, in
// which case no standard errors are available.
func NewBaseResults(model RegFitter, loglike float64, params []float64, xnames []string, vcov []float64) BaseResults {

	rslt := BaseResults{
		model:   model,
		loglike: loglike,
		params:  params,
		xnames:  xnames,
		vcov:    vcov,
	}

	if vcov != nil {
		p := len(params)
		rslt.stderr = make([]float64, p)
		rslt.zscores = make([]float64, p)
		rslt.pvalues = make([]float64, p)
		for i, b := range params {
			se := math.Sqrt(vcov[i*p+i])
			rslt.stderr[i] = se
			rslt.zscores[i] = b / se
			rslt.pvalues[i] = 2 * distuv.UnitNormal.CDF(-math.Abs(b/se))
		}
	}

	return rslt
}

// Model returns the model that produced the results.
func (rslt *BaseResults) Model() RegFitter {
	return rslt.model
}

// FittedValues returns the fitted linear predictor for a regression
// model.  If da is nil, the fitted values are based on the data used
// to fit the model.  Otherwise da holds the covariate columns in the
// order of the coefficients.
func (rslt *BaseResults) FittedValues(da [][]Dtype) []float64 {

	if da == nil {
		da = rslt.model.Design()
	}

	if len(da) != len(rslt.params) {
		msg := fmt.Sprintf("Data has incorrect number of columns, %d != %d\n",
			len(da), len(rslt.params))
		panic(msg)
	}

	fv := make([]float64, len(da[0]))
	for k, z := range da {
		floats.AddScaled(fv, rslt.params[k], z)
	}

	return fv
}

// Names returns the names of the parameters in the model.
func (rslt *BaseResults) Names() []string {
	return rslt.xnames
}

// Params returns the point estimates for the parameters in the model.
func (rslt *BaseResults) Params() []float64 {
	return rslt.params
}

// VCov returns the vectorized sampling covariance matrix of the
// parameter estimates, or nil.
func (rslt *BaseResults) VCov() []float64 {
	return rslt.vcov
}

// LogLike returns the log-likelihood or objective function value for the fitted model.
func (rslt *BaseResults) LogLike() float64 {
	return rslt.loglike
}

// StdErr returns the standard errors of the parameter estimates, or
// nil if the covariance matrix is not available.
func (rslt *BaseResults) StdErr() []float64 {
	return rslt.stderr
}

// ZScores returns the parameter estimates divided by their standard
// errors, or nil.
func (rslt *BaseResults) ZScores() []float64 {
	return rslt.zscores
}

// PValues returns two-sided p-values for the null hypothesis that each
// parameter is zero, or nil.
func (rslt *BaseResults) PValues() []float64 {
	return rslt.pvalues
}

// GetVcov returns the sampling variance/covariance matrix for the parameter estimates.
func GetVcov(model RegFitter, params Parameter) ([]float64, error) {
	nvar := model.NumParams()
	hess := make([]float64, nvar*nvar)
	model.Hessian(params, ExpHess, hess)
	return VcovFromHessian(hess, nvar)
}

// VcovFromHessian inverts the negative of the given vectorized
// log-likelihood Hessian.
func VcovFromHessian(hess []float64, nvar int) ([]float64, error) {
	hmat := mat.NewDense(nvar, nvar, hess)
	hessi := make([]float64, nvar*nvar)
	himat := mat.NewDense(nvar, nvar, hessi)
	if err := himat.Inverse(hmat); err != nil {
		return nil, errors.Wrap(err, "can't invert Hessian")
	}
	himat.Scale(-1, himat)

	return hessi, nil
}

// SummaryTable holds the summary values for a fitted model.
type SummaryTable struct {

	// Title
	Title string

	// Column names
	ColNames []string

	// Formatters for the column values
	ColFmt []Fmter

	// Cols[j] is the j^th column.  It's concrete type should
	// be an array, e.g. of numbers or strings.
	Cols []interface{}

	// Values at the top of the summary
	Top []string

	// Messages displayed below the table
	Msg []string

	// Total width of the table
	tw int
}

// Draw a line constructed of the given character filling the width of
// the table.
func (s *SummaryTable) line(c string) string {
	return strings.Repeat(c, s.tw) + "\n"
}

// cleanTop ensures that all fields in the top part of the table have
// the same width.
func (s *SummaryTable) cleanTop() {

	w := len(s.Top[0])
	for _, x := range s.Top {
		if len(x) > w {
			w = len(x)
		}
	}

	for i, x := range s.Top {
		if len(x) < w {
			s.Top[i] = x + strings.Repeat(" ", w-len(x))
		}
	}
}

// Construct the upper part of the table, which contains summary
// values for the model.
func (s *SummaryTable) top(gap int) string {

	w := []int{0, 0}

	for j, x := range s.Top {
		if len(x) > w[j%2] {
			w[j%2] = len(x)
		}
	}

	var b bytes.Buffer

	for j, x := range s.Top {
		fmt.Fprintf(&b, "%-*s", w[j%2], x)
		if j%2 == 1 {
			b.WriteString("\n")
		} else {
			b.WriteString(strings.Repeat(" ", gap))
		}
	}

	if len(s.Top)%2 == 1 {
		b.WriteString("\n")
	}

	return b.String()
}

// Fmter formats the elements of an array of values.
type Fmter func(interface{}, string) []string

// StringFmt left-justifies a column of strings to a common width.
func StringFmt(x interface{}, h string) []string {
	y := x.([]string)
	m := len(h)
	for i := range y {
		if len(y[i]) > m {
			m = len(y[i])
		}
	}
	z := make([]string, len(y))
	for i := range y {
		z[i] = fmt.Sprintf("%-*s", m, y[i])
	}
	return z
}

// FloatFmt formats a column of float64 values with four decimals.
func FloatFmt(x interface{}, h string) []string {
	y := x.([]float64)
	s := make([]string, len(y))
	for i := range y {
		s[i] = fmt.Sprintf("%10.4f", y[i])
	}
	return s
}

// IntFmt formats a column of int values.
func IntFmt(x interface{}, h string) []string {
	y := x.([]int)
	s := make([]string, len(y))
	for i := range y {
		s[i] = fmt.Sprintf("%10d", y[i])
	}
	return s
}

// String returns the table as a string.
func (s *SummaryTable) String() string {

	s.cleanTop()

	var tab [][]string
	var wx []int
	for j, c := range s.Cols {
		u := s.ColFmt[j](c, s.ColNames[j])
		tab = append(tab, u)
		if len(u) > 0 && len(u[0]) > len(s.ColNames[j]) {
			wx = append(wx, len(u[0]))
		} else {
			wx = append(wx, len(s.ColNames[j]))
		}
	}

	gap := 10

	// Get the total width of the table
	s.tw = 0
	for _, w := range wx {
		s.tw += w
	}
	if s.tw < len(s.Title) {
		s.tw = len(s.Title)
	}
	if s.tw < gap+2*len(s.Top[0]) {
		s.tw = gap + 2*len(s.Top[0])
	}

	var buf bytes.Buffer

	// Center the title
	kr := (s.tw - len(s.Title)) / 2
	if kr < 0 {
		kr = 0
	}
	buf.WriteString(strings.Repeat(" ", kr))
	buf.WriteString(s.Title)
	buf.WriteString("\n")

	buf.WriteString(s.line("="))
	buf.WriteString(s.top(gap))
	buf.WriteString(s.line("-"))

	for j, c := range s.ColNames {
		fmt.Fprintf(&buf, "%*s", wx[j], c)
	}
	buf.WriteString("\n")
	buf.WriteString(s.line("-"))

	if len(tab) > 0 {
		for i := 0; i < len(tab[0]); i++ {
			for j := 0; j < len(tab); j++ {
				fmt.Fprintf(&buf, "%*s", wx[j], tab[j][i])
			}
			buf.WriteString("\n")
		}
	}
	buf.WriteString(s.line("-"))

	for _, msg := range s.Msg {
		buf.WriteString(msg + "\n")
	}

	return buf.String()
}
