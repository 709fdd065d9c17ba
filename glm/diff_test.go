package glm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/copulaglm/statmodel"
)

// Settings for numerical Hessians
var hessSettings = &fd.Settings{Formula: fd.Central, Step: 1e-4}

// A test problem
type difftestprob struct {
	title  string
	link   LinkType
	offset bool
	params [][]float64
	l2wgt  []float64
}

var diffTests = []difftestprob{
	{
		title:  "Logit",
		link:   LogitLink,
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Logit offset",
		link:   LogitLink,
		offset: true,
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Logit L2",
		link:   LogitLink,
		params: [][]float64{{1, 0}, {0.5, -0.2}},
		l2wgt:  []float64{0.1, 0.3},
	},
	{
		title:  "Probit",
		link:   ProbitLink,
		params: [][]float64{{0.5, 0}, {0, 0.3}, {-0.2, 0.1}},
	},
	{
		title:  "CLogLog",
		link:   CloglogLink,
		params: [][]float64{{0.5, 0}, {0, 0.3}, {-0.2, 0.1}},
	},
	{
		title:  "Log",
		link:   LogLink,
		params: [][]float64{{-1, 0.05}, {-2, 0.1}, {-0.8, -0.05}},
	},
	{
		title:  "Identity",
		link:   IdentityLink,
		params: [][]float64{{0.5, 0.01}, {0.4, -0.05}},
	},
}

func (dt *difftestprob) model(t *testing.T) *GLM {
	glm := NewGLM(data5(t), "y").Link(NewLink(dt.link))
	if dt.offset {
		glm = glm.Offset("off")
	} else {
		glm = glm.Covariates("x1", "x2")
	}
	if dt.l2wgt != nil {
		glm = glm.L2Weight(dt.l2wgt)
	}
	return glm.Done()
}

func TestGrad(t *testing.T) {

	for _, dt := range diffTests {

		glm := dt.model(t)

		p := len(dt.params[0])
		ngrad := make([]float64, p)
		score := make([]float64, p)

		loglike := func(x []float64) float64 {
			return glm.LogLike(NewGLMParams(x), true)
		}

		for _, params := range dt.params {
			fd.Gradient(ngrad, loglike, params, nil)
			glm.Score(NewGLMParams(params), score)
			assert.True(t, floats.EqualApprox(score, ngrad, 1e-5),
				"%s\nNumerical:  %v\nAnalytical: %v", dt.title, ngrad, score)
		}
	}
}

func TestHess(t *testing.T) {

	for _, dt := range diffTests {

		glm := dt.model(t)

		p := len(dt.params[0])
		nhess := mat.NewSymDense(p, nil)
		hess := make([]float64, p*p)

		loglike := func(x []float64) float64 {
			return glm.LogLike(NewGLMParams(x), true)
		}

		for _, params := range dt.params {
			fd.Hessian(nhess, loglike, params, hessSettings)
			glm.Hessian(NewGLMParams(params), statmodel.ObsHess, hess)
			ahess := mat.NewDense(p, p, hess)
			assert.True(t, mat.EqualApprox(nhess, ahess, 1e-4),
				"%s\nNumerical:  %v\nAnalytical: %v", dt.title, mat.Formatted(nhess), mat.Formatted(ahess))
		}
	}
}

func TestObsLikeDeriv(t *testing.T) {

	for _, dt := range diffTests {

		glm := dt.model(t)

		p := len(dt.params[0])
		ngrad := make([]float64, p)
		grad := make([]float64, p)
		nhess := mat.NewSymDense(p, nil)
		hess := make([]float64, p*p)

		for _, params := range dt.params {
			for i := 0; i < glm.NumObs(); i++ {
				f := func(x []float64) float64 {
					return glm.ObsLike(NewGLMParams(x), i, nil, nil)
				}
				u := glm.ObsLike(NewGLMParams(params), i, grad, hess)
				assert.InDelta(t, f(params), u, 1e-14)

				fd.Gradient(ngrad, f, params, nil)
				assert.True(t, floats.EqualApprox(grad, ngrad, 1e-6),
					"%s obs %d\nNumerical:  %v\nAnalytical: %v", dt.title, i, ngrad, grad)

				fd.Hessian(nhess, f, params, hessSettings)
				ahess := mat.NewDense(p, p, hess)
				assert.True(t, mat.EqualApprox(nhess, ahess, 1e-4),
					"%s obs %d\nNumerical:  %v\nAnalytical: %v", dt.title, i, mat.Formatted(nhess), mat.Formatted(ahess))
			}
		}
	}
}
