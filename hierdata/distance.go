package hierdata

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/kshedden/copulaglm/statmodel"
)

// PairDistances holds distances between pairs of observations, keyed
// by the smaller index and then the larger index.  A missing entry
// means that the distance is unavailable.
type PairDistances map[int]map[int]float64

// Get returns the distance between observations i and j, and false if
// it is unavailable.
func (p PairDistances) Get(i, j int) (float64, bool) {
	if i > j {
		i, j = j, i
	}
	m, ok := p[i]
	if !ok {
		return math.Inf(1), false
	}
	v, ok := m[j]
	if !ok {
		return math.Inf(1), false
	}
	return v, true
}

// NumPairs returns the number of stored pairs.
func (p PairDistances) NumPairs() int {
	var n int
	for _, m := range p {
		n += len(m)
	}
	return n
}

func (p PairDistances) set(i, j int, v float64) {
	if i > j {
		i, j = j, i
	}
	m, ok := p[i]
	if !ok {
		m = make(map[int]float64)
		p[i] = m
	}
	m[j] = v
}

// ParseDistanceFields parses a distance specification.  Dimensions are
// separated by "," and the coordinate fields within a dimension by
// "+", so "x+y,year" declares a planar distance on (x, y) and a
// separate distance on year.
func ParseDistanceFields(spec string) [][]string {
	var dims [][]string
	for _, dim := range strings.Split(spec, ",") {
		var fields []string
		for _, f := range strings.Split(dim, "+") {
			f = strings.TrimSpace(f)
			if f != "" {
				fields = append(fields, f)
			}
		}
		if len(fields) > 0 {
			dims = append(dims, fields)
		}
	}
	return dims
}

// SetDistanceFields declares the coordinate fields used to compute
// distances between observations, see ParseDistanceFields.  Every
// field must be a numeric variable of the dataset.
func (d *Data) SetDistanceFields(spec string) error {

	dims := ParseDistanceFields(spec)
	if len(dims) == 0 {
		return errors.Wrapf(statmodel.ErrNotSpatial, "empty distance specification '%s'", spec)
	}

	pos := make([][]int, len(dims))
	for k, dim := range dims {
		for _, na := range dim {
			j, ok := d.Pos(na)
			if !ok {
				return errors.Wrapf(statmodel.ErrFieldNotFound, "coordinate '%s'", na)
			}
			if _, ok := d.cols[j].([]float64); !ok {
				return errors.Wrapf(statmodel.ErrNotSpatial, "coordinate '%s' is not numeric", na)
			}
			pos[k] = append(pos[k], j)
		}
	}

	d.distFields = dims
	d.distPos = pos
	d.distances = nil

	return nil
}

// DistanceFields returns the declared distance dimensions.
func (d *Data) DistanceFields() [][]string {
	return d.distFields
}

// NumDistanceDims returns the number of declared distance dimensions.
func (d *Data) NumDistanceDims() int {
	return len(d.distFields)
}

// IsSpatial reports whether distance fields have been declared.
func (d *Data) IsSpatial() bool {
	return len(d.distFields) > 0
}

// MaxDistance sets a cutoff; pairs that are farther apart than max in
// some dimension are treated as having unavailable distance.  A
// negative value (the default) disables the cutoff.
func (d *Data) MaxDistance(max float64) *Data {
	d.maxDist = max
	d.distances = nil
	return d
}

// Distances returns the distances between all pairs of observations
// within the same group, one PairDistances value per distance
// dimension.  The distances are computed on the first call.
func (d *Data) Distances() ([]PairDistances, error) {

	if !d.IsSpatial() {
		return nil, statmodel.ErrNotSpatial
	}

	if d.distances != nil {
		return d.distances, nil
	}

	groups, err := d.Groups()
	if err != nil {
		return nil, err
	}

	coords := make([][][]float64, len(d.distPos))
	for k, pos := range d.distPos {
		for _, j := range pos {
			coords[k] = append(coords[k], d.cols[j].([]float64))
		}
	}

	dist := make([]PairDistances, len(d.distPos))
	for k := range dist {
		dist[k] = make(PairDistances)
	}

	var skipped int
	for _, g := range groups {
		ix := g.Index
		for a := 0; a < len(ix)-1; a++ {
		pair:
			for b := a + 1; b < len(ix); b++ {
				// A pair is stored in every dimension or in none.
				vals := make([]float64, len(coords))
				for k, cx := range coords {
					v := euclid(cx, ix[a], ix[b])
					if math.IsNaN(v) || (d.maxDist >= 0 && v > d.maxDist) {
						skipped++
						continue pair
					}
					vals[k] = v
				}
				for k, v := range vals {
					dist[k].set(ix[a], ix[b], v)
				}
			}
		}
	}

	d.distances = dist
	d.log.Debug().Int("pairs", dist[0].NumPairs()).Int("skipped", skipped).
		Int("dims", len(dist)).Msg("pairwise distances")

	return d.distances, nil
}

// Distance returns the distance between observations i and j in the
// given dimension, and false if it is unavailable.
func (d *Data) Distance(dim, i, j int) (float64, bool) {
	dist, err := d.Distances()
	if err != nil {
		return math.Inf(1), false
	}
	return dist[dim].Get(i, j)
}

func euclid(coords [][]float64, i, j int) float64 {
	var s float64
	for _, x := range coords {
		u := x[i] - x[j]
		s += u * u
	}
	return math.Sqrt(s)
}
