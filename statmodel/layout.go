package statmodel

import "fmt"

// Block identifies one of the two sub-vectors of a stacked parameter
// vector.
type Block int

// MarginalBlock holds the coefficients of the marginal regression,
// DependenceBlock holds the parameters of the dependence model.
const (
	MarginalBlock Block = iota
	DependenceBlock
)

func (b Block) String() string {
	switch b {
	case MarginalBlock:
		return "marginal"
	case DependenceBlock:
		return "dependence"
	default:
		return fmt.Sprintf("Block(%d)", int(b))
	}
}

// Layout describes a parameter vector formed by stacking the marginal
// coefficients on top of the dependence parameters.
type Layout struct {
	Marginal   int
	Dependence int
}

// Total returns the length of the stacked vector.
func (l Layout) Total() int {
	return l.Marginal + l.Dependence
}

// Locate maps position i of the stacked vector to a block and a
// position within that block.  It panics if i is out of range.
func (l Layout) Locate(i int) (Block, int) {
	switch {
	case i < 0 || i >= l.Total():
		msg := fmt.Sprintf("parameter index %d out of range [0, %d)", i, l.Total())
		panic(msg)
	case i < l.Marginal:
		return MarginalBlock, i
	default:
		return DependenceBlock, i - l.Marginal
	}
}

// Index is the inverse of Locate.
func (l Layout) Index(b Block, j int) int {
	if b == MarginalBlock {
		return j
	}
	return l.Marginal + j
}

// Stack concatenates the marginal and dependence vectors into dst,
// which is allocated if nil.
func (l Layout) Stack(dst, marg, dep []float64) []float64 {
	if len(marg) != l.Marginal || len(dep) != l.Dependence {
		msg := fmt.Sprintf("cannot stack vectors of lengths %d and %d into layout %d+%d",
			len(marg), len(dep), l.Marginal, l.Dependence)
		panic(msg)
	}
	if dst == nil {
		dst = make([]float64, l.Total())
	}
	copy(dst, marg)
	copy(dst[l.Marginal:], dep)
	return dst
}

// Split returns the marginal and dependence sub-slices of x.  The
// returned slices share storage with x.
func (l Layout) Split(x []float64) ([]float64, []float64) {
	if len(x) != l.Total() {
		msg := fmt.Sprintf("vector of length %d does not match layout %d+%d",
			len(x), l.Marginal, l.Dependence)
		panic(msg)
	}
	return x[:l.Marginal], x[l.Marginal:]
}
