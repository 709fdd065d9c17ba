package fgm

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/copulaglm/hierdata"
)

// SpearmanBin is a rank correlation between the residuals of pairs of
// observations in the same group, for the pairs whose rounded distance
// is Bin.
type SpearmanBin struct {

	// The rounded distance, always 0 when distances are not used
	Bin int

	// The number of distinct observations that were ranked
	N int

	// The number of pairs
	Pairs int

	Covariance  float64
	Variance    float64
	Correlation float64
}

// MidRanks returns the ranks of x, starting at 1.  Tied values receive
// the mean of the ranks they occupy.
func MidRanks(x []float64) []float64 {

	n := len(x)
	s := make([]float64, n)
	copy(s, x)
	inds := make([]int, n)
	floats.Argsort(s, inds)

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && s[j+1] == s[i] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[inds[k]] = r
		}
		i = j + 1
	}

	return ranks
}

type pair struct {
	a, b int
}

// Spearman estimates the rank correlation of resid between pairs of
// observations in the same group.  If dist is nil all pairs form a
// single bin.  Otherwise pairs are binned by rounded distance into bins
// 0, ..., nbins-1; pairs with unavailable distance, or whose bin is
// nbins or greater, are not used.  Empty bins are omitted.
//
// Within a bin, the residuals of the observations that belong to at
// least one pair are ranked.  The variance is the mean squared
// deviation of the ranks from (n+1)/2, and the covariance is the mean
// over pairs of the product of the deviations.  When every ranked
// residual in a bin is tied the variance is zero and the correlation
// is NaN.
func Spearman(resid []float64, groups []hierdata.Group, dist hierdata.PairDistances, nbins int) []SpearmanBin {

	if dist == nil {
		nbins = 1
	}

	pairs := make([][]pair, nbins)
	for _, g := range groups {
		ix := g.Index
		for a := 0; a < len(ix)-1; a++ {
			for b := a + 1; b < len(ix); b++ {
				var bin int
				if dist != nil {
					d, ok := dist.Get(ix[a], ix[b])
					if !ok {
						continue
					}
					bin = int(math.Round(d))
					if bin >= nbins {
						continue
					}
				}
				pairs[bin] = append(pairs[bin], pair{ix[a], ix[b]})
			}
		}
	}

	var bins []SpearmanBin
	for bin, pb := range pairs {
		if len(pb) == 0 {
			continue
		}
		bins = append(bins, spearmanBin(bin, resid, pb))
	}

	return bins
}

func spearmanBin(bin int, resid []float64, pairs []pair) SpearmanBin {

	// Position of each participating observation among the ranked
	// values
	pos := make(map[int]int)
	var vals []float64
	for _, p := range pairs {
		for _, i := range []int{p.a, p.b} {
			if _, ok := pos[i]; !ok {
				pos[i] = len(vals)
				vals = append(vals, resid[i])
			}
		}
	}

	ranks := MidRanks(vals)
	n := len(ranks)
	center := float64(n+1) / 2

	var va float64
	for _, r := range ranks {
		va += (r - center) * (r - center)
	}
	va /= float64(n)

	var cv float64
	for _, p := range pairs {
		cv += (ranks[pos[p.a]] - center) * (ranks[pos[p.b]] - center)
	}
	cv /= float64(len(pairs))

	r := math.NaN()
	if va > 0 {
		r = cv / va
	}

	return SpearmanBin{
		Bin:         bin,
		N:           n,
		Pairs:       len(pairs),
		Covariance:  cv,
		Variance:    va,
		Correlation: r,
	}
}
