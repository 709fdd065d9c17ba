package glm

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/kshedden/copulaglm/hierdata"
	"github.com/kshedden/copulaglm/statmodel"
)

// GLM represents a generalized linear model for a binary outcome.
type GLM struct {
	data *hierdata.Data

	// Names and positions of the covariates
	xnames []string
	xpos   []int

	// Name and position of the outcome variable
	yname string
	ypos  int

	// Name and position of the offset variable, if present.
	offsetname string
	offsetpos  int

	// The GLM family
	fam *Family

	// The GLM link function
	link *Link

	// The GLM variance function
	vari *Variance

	// Either IRLS (default) or gradient.
	fitMethod string

	// Starting values, optional
	start []float64

	// L2 (ridge) penalty weights, optional.  Must fit using
	// Gradient method if present.
	l2wgt []float64

	// The covariate, outcome and offset columns
	xdat [][]float64
	ydat []float64
	off  []float64

	// Optimization settings
	settings *optimize.Settings

	// Optimization method
	method optimize.Method

	log zerolog.Logger

	// Use concurrent calculations in IRLS if the sample size is at
	// least as large as this value.
	concurrentIRLS int

	// The most recent fit, or nil
	results *GLMResults
}

// GLMParams represents the model parameters for a GLM.
type GLMParams struct {
	coeff []float64
	scale float64
}

// NewGLMParams returns a parameter value holding the given
// coefficients (not copied) and a unit scale.
func NewGLMParams(coeff []float64) *GLMParams {
	return &GLMParams{coeff: coeff, scale: 1}
}

// GetCoeff returns the coefficients (slopes for individual
// covariates) from the parameter.
func (p *GLMParams) GetCoeff() []float64 {
	return p.coeff
}

// SetCoeff sets the coefficients (slopes for individual covariates)
// for the parameter.
func (p *GLMParams) SetCoeff(coeff []float64) {
	p.coeff = coeff
}

// Clone produces a deep copy of the parameter value.
func (p *GLMParams) Clone() statmodel.Parameter {
	coeff := make([]float64, len(p.coeff))
	copy(coeff, p.coeff)
	return &GLMParams{
		coeff: coeff,
		scale: p.scale,
	}
}

// NewGLM creates a new binomial GLM with the logit link, for the
// outcome variable yname.
func NewGLM(data *hierdata.Data, yname string) *GLM {

	return &GLM{
		data:           data,
		yname:          yname,
		fam:            NewFamily(BinomialFamily),
		fitMethod:      "irls",
		concurrentIRLS: 1000,
		log:            zerolog.Nop(),
	}
}

// Log sets the logger used to report on the fit.
func (glm *GLM) Log(log zerolog.Logger) *GLM {
	glm.log = log
	return glm
}

// NumParams returns the number of covariates in the model.
func (glm *GLM) NumParams() int {
	return len(glm.xpos)
}

// NumObs returns the number of observations in the model.
func (glm *GLM) NumObs() int {
	return glm.data.NumObs()
}

// Xpos returns the positions of the covariates in the model's data.
func (glm *GLM) Xpos() []int {
	return glm.xpos
}

// CovariateNames returns the names of the covariates, in the order of
// the coefficients.
func (glm *GLM) CovariateNames() []string {
	return glm.xnames
}

// Design returns the covariate columns.
func (glm *GLM) Design() [][]statmodel.Dtype {
	return glm.xdat
}

// Response returns the outcome values.
func (glm *GLM) Response() []statmodel.Dtype {
	return glm.ydat
}

// DataSet returns the data that is used to fit the model.
func (glm *GLM) DataSet() *hierdata.Data {
	return glm.data
}

// Family returns the family of the model.
func (glm *GLM) Family() *Family {
	return glm.fam
}

// LinkFunc returns the link function of the model.
func (glm *GLM) LinkFunc() *Link {
	return glm.link
}

// ConcurrentIRLS sets the minimum sample size for which concurrent
// calculations are used during IRLS.
func (glm *GLM) ConcurrentIRLS(n int) *GLM {
	glm.concurrentIRLS = n
	return glm
}

// Covariates sets the names of the covariates.  If not called, all
// numeric variables other than the outcome and the offset are used.
func (glm *GLM) Covariates(names ...string) *GLM {
	glm.xnames = names
	return glm
}

// FitMethod sets the fitting method, either IRLS or gradient.
func (glm *GLM) FitMethod(method string) *GLM {
	lmethod := strings.ToLower(method)
	if lmethod != "irls" && lmethod != "gradient" {
		msg := fmt.Sprintf("GLM fitting method %s not allowed.\n", method)
		panic(msg)
	}
	glm.fitMethod = lmethod
	return glm
}

// Offset sets the name of the offset variable
func (glm *GLM) Offset(name string) *GLM {
	glm.offsetname = name
	return glm
}

// L2Weight set the L2 weights used for ridge-regularization.
func (glm *GLM) L2Weight(l2wgt []float64) *GLM {
	glm.l2wgt = l2wgt
	return glm
}

// Start sets starting values for the fitting algorithm.
func (glm *GLM) Start(start []float64) *GLM {
	glm.start = start
	return glm
}

// Link sets the link function.
func (glm *GLM) Link(link *Link) *GLM {

	if !glm.fam.IsValidLink(link) {
		panic("Invalid link")
	}
	glm.link = link

	return glm
}

func (glm *GLM) findvars() {

	glm.offsetpos = -1
	glm.ypos = -1
	glm.xpos = glm.xpos[0:0]

	names := glm.data.Names()
	for k, na := range names {
		switch na {
		case glm.yname:
			glm.ypos = k
		case glm.offsetname:
			glm.offsetpos = k
		}
	}

	if glm.ypos == -1 {
		msg := fmt.Sprintf("Outcome variable '%s' not found.", glm.yname)
		panic(msg)
	}
	if glm.offsetpos == -1 && glm.offsetname != "" {
		msg := fmt.Sprintf("Offset variable '%s' not found.", glm.offsetname)
		panic(msg)
	}

	if glm.xnames == nil {
		for k, na := range names {
			if k == glm.ypos || k == glm.offsetpos {
				continue
			}
			if _, ok := glm.data.GetPos(k).([]float64); ok {
				glm.xnames = append(glm.xnames, na)
			}
		}
	}

	for _, na := range glm.xnames {
		k, ok := glm.data.Pos(na)
		if !ok {
			msg := fmt.Sprintf("Covariate '%s' not found.", na)
			panic(msg)
		}
		glm.xpos = append(glm.xpos, k)
	}
}

func (glm *GLM) getcols() {

	var err error
	glm.ydat, err = glm.data.Float64(glm.yname)
	if err != nil {
		panic(err)
	}
	for i, y := range glm.ydat {
		if y != 0 && y != 1 {
			msg := fmt.Sprintf("Outcome value %v at position %d is not binary.", y, i)
			panic(msg)
		}
	}

	glm.xdat = make([][]float64, len(glm.xnames))
	for j, na := range glm.xnames {
		glm.xdat[j], err = glm.data.Float64(na)
		if err != nil {
			panic(err)
		}
	}

	if glm.offsetpos != -1 {
		glm.off, err = glm.data.Float64(glm.offsetname)
		if err != nil {
			panic(err)
		}
	}
}

func (glm *GLM) setup() {

	if glm.link == nil {
		glm.link = NewLink(glm.fam.validLinks[0])
	}

	// The variance always follows the Bernoulli mean.
	glm.vari = NewVariance(BinomialVar)
}

func (glm *GLM) check() {

	if glm.l2wgt != nil && len(glm.l2wgt) != len(glm.xpos) {
		msg := fmt.Sprintf("GLM: The L2 weight vector has length %d, but the model has %d covariates.\n",
			len(glm.l2wgt), len(glm.xpos))
		panic(msg)
	}

	if len(glm.start) != len(glm.xpos) {
		msg := fmt.Sprintf("GLM: The starting values have length %d, but the model has %d covariates.\n",
			len(glm.start), len(glm.xpos))
		panic(msg)
	}
}

// Done completes definition of a GLM.  After calling Done the GLM can
// be fit by calling the Fit method.
func (glm *GLM) Done() *GLM {

	glm.findvars()
	glm.getcols()
	glm.setup()

	if len(glm.start) == 0 {
		glm.start = make([]float64, glm.NumParams())
	}

	glm.check()

	return glm
}

// linpred computes the linear predictor into lp.
func (glm *GLM) linpred(coeff, lp []float64) {
	zero(lp)
	for j, x := range glm.xdat {
		floats.AddScaled(lp, coeff[j], x)
	}
	if glm.off != nil {
		floats.Add(lp, glm.off)
	}
}

// Mean returns the fitted probabilities at the given parameter value.
func (glm *GLM) Mean(params statmodel.Parameter) []float64 {
	n := glm.NumObs()
	lp := make([]float64, n)
	mn := make([]float64, n)
	glm.linpred(params.GetCoeff(), lp)
	glm.link.InvLink(lp, mn)
	return mn
}

// LogLike returns the log-likelihood value for the generalized linear
// model at the given parameter values, less the L2 penalty.  The exact
// flag has no effect for 0/1 outcomes.
func (glm *GLM) LogLike(params statmodel.Parameter, _ bool) float64 {

	coeff := params.GetCoeff()

	mn := glm.Mean(params)
	loglike := glm.fam.LogLike(glm.ydat, mn)

	// Account for the L2 penalty
	if glm.l2wgt != nil {
		nobs := float64(glm.NumObs())
		for j, v := range glm.l2wgt {
			loglike -= nobs * v * coeff[j] * coeff[j] / 2
		}
	}

	return loglike
}

func scoreFactor(yda, mn, deriv, va, sfac []float64) {
	for i, y := range yda {
		sfac[i] = (y - mn[i]) / (deriv[i] * va[i])
	}
}

// Score returns the score vector for the generalized linear model at
// the given parameter values.
func (glm *GLM) Score(params statmodel.Parameter, score []float64) {

	coeff := params.GetCoeff()

	n := glm.NumObs()
	mn := glm.Mean(params)
	deriv := make([]float64, n)
	va := make([]float64, n)
	fac := make([]float64, n)

	glm.link.Deriv(mn, deriv)
	glm.vari.Var(mn, va)
	scoreFactor(glm.ydat, mn, deriv, va, fac)

	for j, x := range glm.xdat {
		score[j] = floats.Dot(fac, x)
	}

	// Account for the L2 penalty
	if glm.l2wgt != nil {
		nobs := float64(n)
		for j, v := range glm.l2wgt {
			score[j] -= nobs * v * coeff[j]
		}
	}
}

// Hessian returns the Hessian matrix for the model.  The Hessian is
// returned as a one-dimensional array, which is the vectorized form
// of the Hessian matrix.  Either the observed or expected Hessian can
// be calculated.
func (glm *GLM) Hessian(params statmodel.Parameter, ht statmodel.HessType, hess []float64) {

	n := glm.NumObs()
	nvar := glm.NumParams()

	mn := glm.Mean(params)
	lderiv := make([]float64, n)
	va := make([]float64, n)
	fac := make([]float64, n)

	glm.link.Deriv(mn, lderiv)
	glm.vari.Var(mn, va)

	// Factor for the expected Hessian
	for i := range lderiv {
		fac[i] = 1 / (lderiv[i] * lderiv[i] * va[i])
	}

	// Adjust the factor for the observed Hessian
	if ht == statmodel.ObsHess {
		vad := make([]float64, n)
		lderiv2 := make([]float64, n)
		sfac := make([]float64, n)
		glm.link.Deriv2(mn, lderiv2)
		glm.vari.Deriv(mn, vad)
		scoreFactor(glm.ydat, mn, lderiv, va, sfac)

		for i := range fac {
			h := va[i]*lderiv2[i] + lderiv[i]*vad[i]
			fac[i] *= 1 + h*sfac[i]
		}
	}

	zero(hess)
	for j1, x1 := range glm.xdat {
		for j2 := 0; j2 <= j1; j2++ {
			x2 := glm.xdat[j2]
			var u float64
			for i := range x1 {
				u += fac[i] * x1[i] * x2[i]
			}
			hess[j1*nvar+j2] = -u
			hess[j2*nvar+j1] = -u
		}
	}

	// Account for the L2 penalty
	if glm.l2wgt != nil {
		nobs := float64(n)
		for j, v := range glm.l2wgt {
			hess[j*nvar+j] -= nobs * v
		}
	}
}

// ObsLike returns the likelihood P(Y_i = y_i) of observation i.  If
// grad is not nil, it is filled with the gradient of this probability
// with respect to the coefficients.  If hess is not nil, it is filled
// with the vectorized Hessian of the probability.
func (glm *GLM) ObsLike(params statmodel.Parameter, i int, grad, hess []float64) float64 {

	coeff := params.GetCoeff()

	var eta float64
	for j, x := range glm.xdat {
		eta += coeff[j] * x[i]
	}
	if glm.off != nil {
		eta += glm.off[i]
	}

	mu, dmu, d2mu := glm.link.Mean(eta)

	// The probability of a zero outcome has derivatives of the
	// opposite sign.
	u := bernoulliProb(glm.ydat[i], mu)
	if glm.ydat[i] == 0 {
		dmu = -dmu
		d2mu = -d2mu
	}

	if grad != nil {
		for j, x := range glm.xdat {
			grad[j] = dmu * x[i]
		}
	}

	if hess != nil {
		nvar := len(glm.xdat)
		for j1, x1 := range glm.xdat {
			for j2 := 0; j2 <= j1; j2++ {
				v := d2mu * x1[i] * glm.xdat[j2][i]
				hess[j1*nvar+j2] = v
				hess[j2*nvar+j1] = v
			}
		}
	}

	return u
}

// GLMResults describes the results of a fitted generalized linear model.
type GLMResults struct {
	statmodel.BaseResults

	converged bool
}

var _ statmodel.BaseResultser = (*GLMResults)(nil)

// Converged reports whether the fitting algorithm converged.
func (rslt *GLMResults) Converged() bool {
	return rslt.converged
}

// Results returns the most recent fit of the model, or nil if the
// model has not been fit.
func (glm *GLM) Results() *GLMResults {
	return glm.results
}

// Fit estimates the parameters of the GLM and returns a results
// object.
func (glm *GLM) Fit() (*GLMResults, error) {

	maxiter := 20

	start := make([]float64, glm.NumParams())
	copy(start, glm.start)

	method := glm.fitMethod
	if glm.l2wgt != nil {
		method = "gradient"
	}

	var params []float64
	var converged bool
	var err error

	if method == "gradient" {
		glm.log.Info().Msg("Unregularized fitting using gradient optimization")
		params, converged, err = glm.fitGradient(start)
	} else {
		glm.log.Info().Msg("Unregularized fitting using IRLS")
		params, converged, err = glm.fitIRLS(start, maxiter)
	}
	if err != nil {
		return nil, errors.Wrap(err, "GLM fit")
	}

	par := NewGLMParams(params)
	vcov, err := statmodel.GetVcov(glm, par)
	if err != nil {
		glm.log.Warn().Err(err).Msg("no standard errors")
		vcov = nil
	}

	ll := glm.LogLike(par, true)

	results := &GLMResults{
		BaseResults: statmodel.NewBaseResults(glm, ll, params, glm.xnames, vcov),
		converged:   converged,
	}
	glm.results = results

	return results, nil
}

// fitGradient uses gradient-based optimization to obtain the fitted
// GLM parameters.
func (glm *GLM) fitGradient(start []float64) ([]float64, bool, error) {

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			return -glm.LogLike(NewGLMParams(x), false)
		},
		Grad: func(grad, x []float64) {
			glm.Score(NewGLMParams(x), grad)
			floats.Scale(-1, grad)
		},
	}

	settings := glm.settings
	if settings == nil {
		settings = &optimize.Settings{
			GradientThreshold: 1e-6,
		}
	}

	method := glm.method
	if method == nil {
		method = &optimize.BFGS{}
	}

	optrslt, err := optimize.Minimize(p, start, settings, method)
	if err != nil {
		if optrslt != nil {
			glm.failMessage(optrslt)
		}
		return nil, false, err
	}
	if err = optrslt.Status.Err(); err != nil {
		return nil, false, err
	}

	params := make([]float64, len(optrslt.X))
	copy(params, optrslt.X)

	return params, true, nil
}

// OptSettings allows the caller to provide an optimization settings
// value.
func (glm *GLM) OptSettings(s *optimize.Settings) *GLM {
	glm.settings = s
	return glm
}

// OptMethod sets the optimization method from gonum.Optimize.
func (glm *GLM) OptMethod(method optimize.Method) *GLM {
	glm.method = method
	return glm
}

// failMessage logs information that can help diagnose optimization failures.
func (glm *GLM) failMessage(optrslt *optimize.Result) {

	for j, x := range optrslt.X {
		ev := glm.log.Warn().Str("variable", glm.xnames[j]).Float64("value", x)
		if optrslt.Gradient != nil {
			ev = ev.Float64("gradient", optrslt.Gradient[j])
		}
		ev.Float64("mean", stat.Mean(glm.xdat[j], nil)).
			Float64("sd", stat.PopStdDev(glm.xdat[j], nil)).
			Msg("current point")
	}
}

// zero sets all elements of the slice to 0
func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

// one sets all elements of the slice to 1
func one(x []float64) {
	for i := range x {
		x[i] = 1
	}
}

// GLMSummary summarizes a fitted generalized linear model.
type GLMSummary struct {

	// The GLM
	glm *GLM

	// The results structure
	results *GLMResults

	// Transform the parameters with this function.  If nil,
	// no transformation is applied.  If paramXform is provided,
	// the standard error and Z-score are not shown.
	paramXform func(float64) float64

	// Messages that are appended to the table
	messages []string
}

// SetScale sets the scale on which the parameter results are
// displayed in the summary.  'xf' is a function that maps
// parameters and confidence limits from the linear scale to
// the desired scale.  'msg' is a message that is appended
// to the summary table.
func (gs *GLMSummary) SetScale(xf func(float64) float64, msg string) *GLMSummary {
	gs.paramXform = xf
	gs.messages = append(gs.messages, msg)
	return gs
}

// String returns a string representation of a summary table for the model.
func (gs *GLMSummary) String() string {

	xf := func(x float64) float64 {
		return x
	}

	if gs.paramXform != nil {
		xf = gs.paramXform
	}

	sum := &statmodel.SummaryTable{
		Msg: gs.messages,
	}

	sum.Title = "Generalized linear model analysis"

	sum.Top = []string{
		fmt.Sprintf("Family:    %s", gs.glm.fam.Name),
		fmt.Sprintf("Link:      %s", gs.glm.link.Name),
		fmt.Sprintf("Variance:  %s", gs.glm.vari.Name),
		fmt.Sprintf("Num obs:   %d", gs.glm.NumObs()),
		fmt.Sprintf("Converged: %t", gs.results.converged),
		fmt.Sprintf("Log-like:  %.4f", gs.results.LogLike()),
	}

	if gs.paramXform == nil {
		sum.ColNames = []string{"Variable   ", "Parameter", "SE", "LCB", "UCB", "Z-score", "P-value"}
		sum.ColFmt = []statmodel.Fmter{statmodel.StringFmt, statmodel.FloatFmt, statmodel.FloatFmt,
			statmodel.FloatFmt, statmodel.FloatFmt, statmodel.FloatFmt, statmodel.FloatFmt}
	} else {
		sum.ColNames = []string{"Variable   ", "Parameter", "LCB", "UCB", "P-value"}
		sum.ColFmt = []statmodel.Fmter{statmodel.StringFmt, statmodel.FloatFmt,
			statmodel.FloatFmt, statmodel.FloatFmt, statmodel.FloatFmt}
	}

	// Create estimate and CI for the parameters
	var par, lcb, ucb []float64
	pax := gs.results.Params()
	se := gs.results.StdErr()
	for j := range pax {
		par = append(par, xf(pax[j]))
		lcb = append(lcb, xf(pax[j]-2*se[j]))
		ucb = append(ucb, xf(pax[j]+2*se[j]))
	}

	if gs.paramXform == nil {
		sum.Cols = []interface{}{
			gs.results.Names(),
			par,
			se,
			lcb,
			ucb,
			gs.results.ZScores(),
			gs.results.PValues(),
		}
	} else {
		sum.Cols = []interface{}{
			gs.results.Names(),
			par,
			lcb,
			ucb,
			gs.results.PValues(),
		}
	}

	return sum.String()
}

// Summary displays a summary table of the model results.
func (rslt *GLMResults) Summary() *GLMSummary {

	glm := rslt.Model().(*GLM)

	return &GLMSummary{
		glm:     glm,
		results: rslt,
	}
}
