/*
This example fits an FGM copula model to simulated spatially clustered
binary outcomes.

The data consist of plots within sites.  Each plot has a random effect
shared by the observations it contains, and each observation has
planar coordinates within its plot.  The marginal model is a logistic
regression on one covariate.  Dependence within a plot decays with
distance, c = exp(b*d), which is fit with a DistanceLink copula using
the log link.

A grid search over the dependence coefficient provides a starting
value for the joint fit, and its profile is plotted.  The Spearman correlations of the residuals
are plotted against the rounded distance between pairs.
*/

package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/kshedden/copulaglm/copula"
	"github.com/kshedden/copulaglm/fgm"
	"github.com/kshedden/copulaglm/glm"
	"github.com/kshedden/copulaglm/hierdata"
)

const (
	nsite    = 20
	nplot    = 10
	plotsize = 6
)

func simulate(src rand.Source) (*hierdata.Data, error) {

	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	re := distuv.Normal{Mu: 0, Sigma: 0.8, Src: src}
	loc := distuv.Uniform{Min: 0, Max: 4, Src: src}

	var site, plt []string
	var y, icept, x, cx, cy []float64

	for i := 0; i < nsite; i++ {
		for j := 0; j < nplot; j++ {
			u := re.Rand()
			for k := 0; k < plotsize; k++ {
				xv := norm.Rand()
				eta := -0.5 + 0.7*xv + u
				p := 1 / (1 + math.Exp(-eta))
				yv := distuv.Bernoulli{P: p, Src: src}.Rand()

				site = append(site, strconv.Itoa(i))
				plt = append(plt, strconv.Itoa(j))
				y = append(y, yv)
				icept = append(icept, 1)
				x = append(x, xv)
				cx = append(cx, loc.Rand())
				cy = append(cy, loc.Rand())
			}
		}
	}

	return hierdata.NewFromFlat([]interface{}{site, plt, y, icept, x, cx, cy},
		[]string{"site", "plot", "y", "icept", "x", "cx", "cy"})
}

func correlogram(sp []fgm.SpearmanBin, filename string) error {

	p := plot.New()
	p.Title.Text = "Residual rank correlation"
	p.X.Label.Text = "Distance"
	p.Y.Label.Text = "Spearman correlation"

	pts := make(plotter.XYs, len(sp))
	for i, b := range sp {
		pts[i].X = float64(b.Bin)
		pts[i].Y = b.Correlation
	}

	if err := plotutil.AddLinePoints(p, "Residuals", pts); err != nil {
		return err
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, filename)
}

func gridplot(points []fgm.GridPoint, index int, filename string) error {

	p := plot.New()
	p.Title.Text = "Grid search"
	p.X.Label.Text = "Dependence coefficient"
	p.Y.Label.Text = "Composite log-likelihood"

	var pts plotter.XYs
	for _, pt := range points {
		if math.IsNaN(pt.LogLike) {
			continue
		}
		pts = append(pts, plotter.XY{X: pt.Params[index], Y: pt.LogLike})
	}

	if err := plotutil.AddLines(p, pts); err != nil {
		return err
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, filename)
}

func main() {

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	data, err := simulate(rand.NewPCG(3, 11))
	if err != nil {
		log.Fatal().Err(err).Msg("simulating data")
	}
	data.Log(log)

	g := glm.NewGLM(data, "y").Covariates("icept", "x").Log(log).Done()
	rslt, err := g.Fit()
	if err != nil {
		log.Fatal().Err(err).Msg("fitting marginal model")
	}
	fmt.Println(rslt.Summary().String())

	cop := copula.NewDistanceLink("site/plot", "cx+cy", glm.NewLink(glm.LogLink), []float64{-1})
	model, err := fgm.New(g, cop)
	if err != nil {
		log.Fatal().Err(err).Msg("creating copula model")
	}
	model.Log(log)

	points, err := model.GridSearch(2, -3, -0.1, 0.1)
	if err != nil {
		log.Fatal().Err(err).Msg("grid search")
	}
	if err := gridplot(points, 2, "spatial_grid.png"); err != nil {
		log.Fatal().Err(err).Msg("plotting")
	}

	frslt, err := model.Fit()
	if err != nil {
		log.Fatal().Err(err).Msg("fitting copula model")
	}
	fmt.Println(frslt.Summary().String())

	pr := fgm.NewProfiler(frslt, 2)
	lcb, ucb, err := pr.ConfInt(0.95)
	if err != nil {
		log.Error().Err(err).Msg("profile confidence interval")
	} else {
		fmt.Printf("Profile 95%% interval for %s: (%.3f, %.3f)\n", frslt.Names()[2], lcb, ucb)
	}

	if sp := frslt.Spearman(); len(sp) > 0 {
		if err := correlogram(sp, "spatial_correlogram.png"); err != nil {
			log.Fatal().Err(err).Msg("plotting")
		}
	}
}
