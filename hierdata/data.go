// Package hierdata provides an in-memory columnar dataset whose
// observations are grouped by nested categorical levels, and which
// can compute pairwise distances between observations sharing a group.
package hierdata

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/kshedden/copulaglm/statmodel"
)

// Data is a columnar dataset.  Each column is either a []float64 or a
// []string, and all columns have the same length.
type Data struct {
	names []string
	cols  []interface{}
	nobs  int

	// Hierarchical levels, coarsest first, and their positions.
	levels   []string
	levelPos []int
	groups   []Group

	// Distance dimensions; each dimension combines one or more
	// coordinate fields.
	distFields [][]string
	distPos    [][]int
	distances  []PairDistances

	// Pairs farther apart than this in any dimension are not stored.
	maxDist float64

	log zerolog.Logger
}

// Group is a set of observations that share the same values of all
// hierarchical levels.
type Group struct {

	// Key joins the level values, coarsest first, with "/".  It is for
	// display; distinct groups may share a Key when the level values
	// contain "/".
	Key string

	// Index holds the positions of the group members, in increasing
	// order.
	Index []int
}

// NewFromFlat creates a dataset from a slice of columns and the
// corresponding variable names.  Columns must be []float64 or
// []string.
func NewFromFlat(cols []interface{}, names []string) (*Data, error) {

	if len(cols) != len(names) {
		return nil, errors.Wrapf(statmodel.ErrDimension,
			"%d columns but %d names", len(cols), len(names))
	}

	d := &Data{
		names:   names,
		cols:    cols,
		nobs:    -1,
		maxDist: -1,
		log:     zerolog.Nop(),
	}

	for j, c := range cols {
		var n int
		switch x := c.(type) {
		case []float64:
			n = len(x)
		case []string:
			n = len(x)
		default:
			return nil, errors.Newf("column '%s' has unsupported type %T", names[j], c)
		}
		if d.nobs == -1 {
			d.nobs = n
		} else if n != d.nobs {
			return nil, errors.Wrapf(statmodel.ErrDimension,
				"column '%s' has length %d, expected %d", names[j], n, d.nobs)
		}
	}

	if d.nobs == -1 {
		d.nobs = 0
	}

	return d, nil
}

// Log sets a logger.
func (d *Data) Log(log zerolog.Logger) *Data {
	d.log = log
	return d
}

// Names returns the variable names.
func (d *Data) Names() []string {
	return d.names
}

// NumObs returns the number of observations.
func (d *Data) NumObs() int {
	return d.nobs
}

// NumVar returns the number of variables.
func (d *Data) NumVar() int {
	return len(d.names)
}

// GetPos returns the column at position pos.
func (d *Data) GetPos(pos int) interface{} {
	return d.cols[pos]
}

// Pos returns the position of the named variable.
func (d *Data) Pos(name string) (int, bool) {
	for j, na := range d.names {
		if na == name {
			return j, true
		}
	}
	return -1, false
}

// Get returns the named column, or nil if it is not present.
func (d *Data) Get(name string) interface{} {
	j, ok := d.Pos(name)
	if !ok {
		return nil
	}
	return d.cols[j]
}

// Float64 returns the named column, which must be of type []float64.
func (d *Data) Float64(name string) ([]float64, error) {
	j, ok := d.Pos(name)
	if !ok {
		return nil, errors.Wrapf(statmodel.ErrFieldNotFound, "variable '%s'", name)
	}
	x, ok := d.cols[j].([]float64)
	if !ok {
		return nil, errors.Newf("variable '%s' is not numeric", name)
	}
	return x, nil
}

// ParseLevels splits a "/"-delimited hierarchical level specification,
// coarsest level first.  Empty components are ignored.
func ParseLevels(spec string) []string {
	var levels []string
	for _, s := range strings.Split(spec, "/") {
		s = strings.TrimSpace(s)
		if s != "" {
			levels = append(levels, s)
		}
	}
	return levels
}

// SetHierarchicalLevels declares the hierarchical structure of the
// data using a "/"-delimited list of variable names, coarsest level
// first (e.g. "stratum/plot").  Every level must be a variable of the
// dataset.
func (d *Data) SetHierarchicalLevels(spec string) error {

	levels := ParseLevels(spec)
	if len(levels) == 0 {
		return errors.Newf("empty hierarchical level specification '%s'", spec)
	}

	pos := make([]int, len(levels))
	for k, na := range levels {
		j, ok := d.Pos(na)
		if !ok {
			return errors.Wrapf(statmodel.ErrFieldNotFound, "hierarchical level '%s'", na)
		}
		pos[k] = j
	}

	d.levels = levels
	d.levelPos = pos
	d.groups = nil
	d.distances = nil

	return nil
}

// Levels returns the hierarchical levels, or nil if they have not been
// set.
func (d *Data) Levels() []string {
	return d.levels
}

// HasLevels reports whether every given level is part of the declared
// hierarchical structure.
func (d *Data) HasLevels(levels []string) bool {
	for _, a := range levels {
		found := false
		for _, b := range d.levels {
			if a == b {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// valueString formats observation i of column j as a group key
// component.
func (d *Data) valueString(j, i int) string {
	switch x := d.cols[j].(type) {
	case []string:
		return x[i]
	case []float64:
		return strconv.FormatFloat(x[i], 'g', -1, 64)
	default:
		panic(fmt.Sprintf("unsupported column type %T", x))
	}
}

// Groups returns the groups formed at the finest hierarchical level,
// sorted by key.
func (d *Data) Groups() ([]Group, error) {

	if d.levels == nil {
		return nil, statmodel.ErrNoHierarchy
	}

	if d.groups != nil {
		return d.groups, nil
	}

	// Groups are identified by their quoted level values, so that a
	// "/" inside a value cannot merge distinct groups.
	idx := make(map[string]int)
	var tuples [][]string
	var members [][]int
	qparts := make([]string, len(d.levelPos))
	for i := 0; i < d.nobs; i++ {
		parts := make([]string, len(d.levelPos))
		for k, j := range d.levelPos {
			parts[k] = d.valueString(j, i)
			qparts[k] = strconv.Quote(parts[k])
		}
		id := strings.Join(qparts, "/")
		g, ok := idx[id]
		if !ok {
			g = len(tuples)
			idx[id] = g
			tuples = append(tuples, parts)
			members = append(members, nil)
		}
		members[g] = append(members[g], i)
	}

	order := make([]int, len(tuples))
	for g := range order {
		order[g] = g
	}
	sort.Slice(order, func(a, b int) bool {
		return slices.Compare(tuples[order[a]], tuples[order[b]]) < 0
	})

	d.groups = make([]Group, len(order))
	for g, k := range order {
		d.groups[g] = Group{Key: strings.Join(tuples[k], "/"), Index: members[k]}
	}

	d.log.Debug().Int("groups", len(d.groups)).Strs("levels", d.levels).Msg("hierarchical structure")

	return d.groups, nil
}
