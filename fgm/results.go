package fgm

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/kshedden/copulaglm/copula"
	"github.com/kshedden/copulaglm/statmodel"
)

// Results describes a fitted copula model.  The standard errors are
// based on the inverse of the negative Hessian of the composite
// log-likelihood.
type Results struct {
	statmodel.BaseResults

	model *Model

	converged  bool
	status     optimize.Status
	iterations int

	// Residual rank correlations, only set when the fit converged.
	spearman []SpearmanBin
}

var _ statmodel.BaseResultser = (*Results)(nil)

// Converged reports whether the optimizer converged.
func (rslt *Results) Converged() bool {
	return rslt.converged
}

// Status returns the termination status of the optimizer.
func (rslt *Results) Status() optimize.Status {
	return rslt.status
}

// Iterations returns the number of major iterations used by the
// optimizer.
func (rslt *Results) Iterations() int {
	return rslt.iterations
}

// Spearman returns the residual rank correlations computed after a
// converged fit, or nil.
func (rslt *Results) Spearman() []SpearmanBin {
	return rslt.spearman
}

// FittedValues returns the fitted linear predictor of the marginal
// model.  If da is nil, the fitted values are based on the data used
// to fit the model.
func (rslt *Results) FittedValues(da [][]statmodel.Dtype) []float64 {

	if da == nil {
		da = rslt.model.Design()
	}

	pa := rslt.Params()
	if len(da) > len(pa) {
		msg := fmt.Sprintf("Data has %d columns, model has %d marginal coefficients\n", len(da), len(pa))
		panic(msg)
	}

	fv := make([]float64, len(da[0]))
	for k, z := range da {
		for i := range z {
			fv[i] += pa[k] * z[i]
		}
	}

	return fv
}

// Summary summarizes a fitted copula model.
type Summary struct {
	results *Results
}

// Summary returns a summary of the fit.
func (rslt *Results) Summary() *Summary {
	return &Summary{results: rslt}
}

// String returns the summary as a table.  When the fit converged, a
// table of residual rank correlations is appended.
func (s *Summary) String() string {

	rslt := s.results
	m := rslt.model

	sum := &statmodel.SummaryTable{
		Title: "FGM copula GLM analysis",
	}

	link := m.glm.LinkFunc().Name
	sum.Top = []string{
		fmt.Sprintf("Family:      %s", m.glm.Family().Name),
		fmt.Sprintf("Link:        %s", link),
		fmt.Sprintf("Copula:      %s", m.cop.Kind()),
		fmt.Sprintf("Levels:      %s", strings.Join(m.cop.Levels(), "/")),
		fmt.Sprintf("Num obs:     %d", m.NumObs()),
		fmt.Sprintf("Num groups:  %d", len(m.groups)),
		fmt.Sprintf("Converged:   %t", rslt.converged),
		fmt.Sprintf("Iterations:  %d", rslt.iterations),
		fmt.Sprintf("Composite LL: %.4f", rslt.LogLike()),
	}

	if t, ok := m.cop.(*copula.Term); ok && t.Kind() == copula.DistanceLink {
		sum.Top = append(sum.Top, fmt.Sprintf("Copula link: %s", t.Link().Name))
	}

	pa := rslt.Params()
	se := rslt.StdErr()

	if se != nil {
		var lcb, ucb []float64
		for j := range pa {
			lcb = append(lcb, pa[j]-2*se[j])
			ucb = append(ucb, pa[j]+2*se[j])
		}
		sum.ColNames = []string{"Variable   ", "Parameter", "SE", "LCB", "UCB", "Z-score", "P-value"}
		sum.ColFmt = []statmodel.Fmter{statmodel.StringFmt, statmodel.FloatFmt, statmodel.FloatFmt,
			statmodel.FloatFmt, statmodel.FloatFmt, statmodel.FloatFmt, statmodel.FloatFmt}
		sum.Cols = []interface{}{rslt.Names(), pa, se, lcb, ucb, rslt.ZScores(), rslt.PValues()}
	} else {
		sum.ColNames = []string{"Variable   ", "Parameter"}
		sum.ColFmt = []statmodel.Fmter{statmodel.StringFmt, statmodel.FloatFmt}
		sum.Cols = []interface{}{rslt.Names(), pa}
		sum.Msg = append(sum.Msg, "The Hessian is singular, standard errors are not available.")
	}

	out := sum.String()

	if rslt.converged && len(rslt.spearman) > 0 {
		out += "\n" + s.spearmanTable()
	}

	return out
}

func (s *Summary) spearmanTable() string {

	rslt := s.results
	m := rslt.model

	resid := m.Residuals()
	mean, sd := stat.MeanStdDev(resid, nil)

	tab := &statmodel.SummaryTable{
		Title: "Spearman correlation of residuals",
		Top: []string{
			fmt.Sprintf("Residual mean: %.4f", mean),
			fmt.Sprintf("Residual SD:   %.4f", sd),
		},
		Msg: []string{"Bins are rounded distances between members of a group."},
	}

	var bin, n, pairs []int
	var cv, va, cr []float64
	for _, b := range rslt.spearman {
		bin = append(bin, b.Bin)
		n = append(n, b.N)
		pairs = append(pairs, b.Pairs)
		cv = append(cv, b.Covariance)
		va = append(va, b.Variance)
		cr = append(cr, b.Correlation)
	}

	tab.ColNames = []string{"Bin", "N", "Pairs", "Covariance", "Variance", "Correlation"}
	tab.ColFmt = []statmodel.Fmter{statmodel.IntFmt, statmodel.IntFmt, statmodel.IntFmt,
		statmodel.FloatFmt, statmodel.FloatFmt, statmodel.FloatFmt}
	tab.Cols = []interface{}{bin, n, pairs, cv, va, cr}

	return tab.String()
}
