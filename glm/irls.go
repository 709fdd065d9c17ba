package glm

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

// Convergence tolerance for the change in deviance between IRLS
// iterations.
const irlsTol = 1e-8

func (glm *GLM) fitIRLS(start []float64, maxiter int) ([]float64, bool, error) {

	n := glm.NumObs()
	linpred := make([]float64, n)
	mn := make([]float64, n)
	va := make([]float64, n)
	lderiv := make([]float64, n)
	irlsw := make([]float64, n)
	adjy := make([]float64, n)

	var nparam mat.VecDense

	nvar := glm.NumParams()

	xty := make([]float64, nvar)
	xtx := make([]float64, nvar*nvar)

	params := start
	if params == nil {
		params = make([]float64, nvar)
	}

	var dev []float64
	var converged bool

	yda := glm.ydat
	off := glm.off

	// IRLS iterations
	for iter := 0; iter < maxiter; iter++ {

		zero(xtx)
		zero(xty)

		glm.linpred(params, linpred)

		if iter == 0 {
			startingMu(yda, mn)
		} else {
			glm.link.InvLink(linpred, mn)
		}

		glm.link.Deriv(mn, lderiv)
		glm.vari.Var(mn, va)

		devi := glm.fam.Deviance(yda, mn)

		// Create weights for WLS
		for i := range yda {
			irlsw[i] = 1 / (lderiv[i] * lderiv[i] * va[i])
		}

		// Create an adjusted response for WLS
		for i := range yda {
			adjy[i] = linpred[i] + lderiv[i]*(yda[i]-mn[i])
			if off != nil {
				adjy[i] -= off[i]
			}
		}

		// Update the weighted moment matrices.  For large data sets, this is by far the
		// most expensive step.
		glm.irlsXprod(glm.xdat, adjy, irlsw, xty, xtx)

		// Fill in the unfilled triangle of xtx
		for j1 := 0; j1 < nvar; j1++ {
			for j2 := j1 + 1; j2 < nvar; j2++ {
				xtx[j1*nvar+j2] = xtx[j2*nvar+j1]
			}
		}

		// Update the parameters
		xtxm := mat.NewDense(nvar, nvar, xtx)
		xtyv := mat.NewVecDense(nvar, xty)
		if err := nparam.SolveVec(xtxm, xtyv); err != nil {
			for j := 0; j < nvar; j++ {
				glm.log.Warn().Int("variable", j).Float64("xty", xty[j]).
					Float64("xtx", xtx[j*nvar+j]).Msg("singular IRLS system")
			}
			return nil, false, errors.Wrapf(err, "IRLS iteration %d", iter+1)
		}
		params = make([]float64, nvar)
		copy(params, nparam.RawVector().Data)

		glm.log.Debug().Int("iteration", iter+1).Float64("deviance", devi).Msg("IRLS")

		// Check convergence
		dev = append(dev, devi)
		if len(dev) > 3 && math.Abs(dev[len(dev)-1]-dev[len(dev)-2]) < irlsTol {
			converged = true
			break
		}
	}

	if converged {
		glm.log.Debug().Int("iterations", len(dev)).Msg("IRLS converged")
	} else {
		glm.log.Warn().Int("iterations", maxiter).Msg("IRLS did not converge")
	}

	return params, converged, nil
}

func (glm *GLM) irlsXprod(xdat [][]float64, adjy, irlsw, xty, xtx []float64) {

	if len(adjy) >= glm.concurrentIRLS {
		glm.irlsXprodConcurrent(xdat, adjy, irlsw, xty, xtx)
		return
	}

	nvar := len(xdat)

	for j1, xda := range xdat {

		// Update x' w^-1 yadj
		var u float64
		for i := range adjy {
			u += adjy[i] * xda[i] * irlsw[i]
		}
		xty[j1] += u

		// Update x' w^-1 x
		for j2 := 0; j2 <= j1; j2++ {
			xdb := xdat[j2]
			var u float64
			for i := range xda {
				u += xda[i] * xdb[i] * irlsw[i]
			}
			xtx[j1*nvar+j2] += u
		}
	}
}

// irlsXprodConcurrent is a concurrent version of irlsXprod
func (glm *GLM) irlsXprodConcurrent(xdat [][]float64, adjy, irlsw, xty, xtx []float64) {

	nvar := len(xdat)

	var wg sync.WaitGroup

	for j1, xda := range xdat {

		// Update x' w^-1 yadj
		wg.Add(1)
		go func(j1 int, xda []float64) {
			defer wg.Done()
			var u float64
			for i := range adjy {
				u += adjy[i] * xda[i] * irlsw[i]
			}
			xty[j1] += u
		}(j1, xda)

		// Update x' w^-1 x
		for j2 := 0; j2 <= j1; j2++ {
			xdb := xdat[j2]
			wg.Add(1)
			go func(j1, j2 int, xda []float64) {
				defer wg.Done()
				var u float64
				for i := range xda {
					u += xda[i] * xdb[i] * irlsw[i]
				}
				xtx[j1*nvar+j2] += u
			}(j1, j2, xda)
		}
	}

	wg.Wait()
}

// startingMu fills mn with starting values for the mean of a binary
// outcome.
func startingMu(y []float64, mn []float64) {
	for i := range mn {
		mn[i] = (y[i] + 0.5) / 2
	}
}
