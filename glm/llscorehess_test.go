package glm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/copulaglm/statmodel"
)

type ptlsh struct {
	link    *Link
	params  []float64
	ll      float64
	score   []float64
	exphess []float64
	obshess []float64
}

var pq = []ptlsh{
	{
		params:  []float64{0, 0, 0},
		ll:      -4.85203026392,
		score:   []float64{-1.5, -1, -1},
		exphess: []float64{-1.75, -2.5, -2, -2.5, -21.5, 3.25, -2, 3.25, -8.5},
		obshess: []float64{-1.75, -2.5, -2, -2.5, -21.5, 3.25, -2, 3.25, -8.5},
	},
	{
		link:   NewLink(LogLink),
		params: []float64{-0.7, 0.1, 0},
		ll:     -5.723744262199457,
		score:  []float64{-6.572167452803759, -18.693957756052953, -0.7969905018158787},
		exphess: []float64{-13.90478923984685, -44.461269365771834, -13.646267854985965,
			-44.461269365771834, -208.05518429370176, -43.7920848619,
			-13.646267854985965, -43.7920848619, -37.79906219486784},
		obshess: []float64{-26.675517734244828, -80.72857999533855, -11.416151962815684,
			-80.72857999533855, -305.5778896142587, -25.997063473696592,
			-11.416151962815684, -25.997063473696592, -41.47835198801655},
	},
	{
		params: []float64{1, 0, 1},
		ll:     -11.818141430960326,
		score:  []float64{-3.59249274, -3.06001622, -5.53517637},
		exphess: []float64{-0.86262393, -1.84351226, 0.08233338, -1.84351226, -6.42091245,
			-0.02006538, 0.08233338, -0.02006538, -1.05735013},
		obshess: []float64{-0.86262393, -1.84351226, 0.08233338, -1.84351226, -6.42091245,
			-0.02006538, 0.08233338, -0.02006538, -1.05735013},
	},
	{
		params: []float64{0, -1, 2},
		ll:     -16.857341743396212,
		score:  []float64{-0.66377831, 7.25672511, -3.82448106},
		exphess: []float64{-0.59521913, -2.01281245, -0.68818286, -2.01281245, -8.51489657,
			-2.86562434, -0.68818286, -2.86562434, -1.18506228},
		obshess: []float64{-0.59521913, -2.01281245, -0.68818286, -2.01281245, -8.51489657,
			-2.86562434, -0.68818286, -2.86562434, -1.18506228},
	},
}

func TestLLScoreHess(t *testing.T) {

	for pj, ps := range pq {

		glm := NewGLM(data2(t), "y")
		if ps.link != nil {
			glm = glm.Link(ps.link)
		}
		glm = glm.Done()

		m := glm.NumParams()
		score := make([]float64, m)
		hess := make([]float64, m*m)
		par := NewGLMParams(ps.params)

		ll := glm.LogLike(par, true)
		assert.True(t, scalarClose(ll, ps.ll, 1e-5), "LogLike %d: %v", pj, ll)

		glm.Score(par, score)
		assert.True(t, floats.EqualApprox(score, ps.score, 1e-5), "Score %d: %v", pj, score)

		glm.Hessian(par, statmodel.ExpHess, hess)
		assert.True(t, floats.EqualApprox(hess, ps.exphess, 1e-5), "ExpHess %d: %v", pj, hess)

		glm.Hessian(par, statmodel.ObsHess, hess)
		assert.True(t, floats.EqualApprox(hess, ps.obshess, 1e-5), "ObsHess %d: %v", pj, hess)
	}
}
