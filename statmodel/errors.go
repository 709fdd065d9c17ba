package statmodel

import "github.com/cockroachdb/errors"

// Sentinel errors shared by the model packages.  Callers should test
// for them with errors.Is, since they are usually wrapped with
// additional context.
var (
	// ErrFieldNotFound indicates that a named field is not present in
	// the dataset.
	ErrFieldNotFound = errors.New("field not found")

	// ErrNotSpatial indicates that spatial coordinates are required but
	// have not been declared, or are not numeric.
	ErrNotSpatial = errors.New("dataset has no spatial coordinates")

	// ErrNoHierarchy indicates that the hierarchical structure has not
	// been set on the dataset.
	ErrNoHierarchy = errors.New("hierarchical structure not set")

	// ErrDimension indicates inconsistent lengths.
	ErrDimension = errors.New("dimension mismatch")

	// ErrInvalidGrid indicates invalid bounds or step for a grid search.
	ErrInvalidGrid = errors.New("invalid grid")

	// ErrAllNaN indicates that every evaluated log-likelihood was NaN.
	ErrAllNaN = errors.New("all log-likelihood values are NaN")
)
