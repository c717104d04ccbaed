package addrmatcher

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for malformed parameters: a non-positive threshold,
	// an unknown similarity algorithm, or a region query mixing a name list with an operator.
	ErrInvalidArgument = errors.New("addrmatcher: invalid argument")

	// ErrNotFound is returned when a data directory, index file, shard file or a region
	// referenced by a strict lookup does not exist.
	ErrNotFound = errors.New("addrmatcher: not found")

	// ErrDuplicateKey is returned when a hierarchy type identifier is registered twice.
	ErrDuplicateKey = errors.New("addrmatcher: duplicate key")

	// ErrSchema is returned when reference data is missing required columns.
	ErrSchema = errors.New("addrmatcher: schema mismatch")

	// ErrOutOfRange is returned when a coordinate lies outside the hierarchy's boundary.
	ErrOutOfRange = errors.New("addrmatcher: coordinate out of range")

	// ErrSearchExhausted is returned when the coordinate search radius has been doubled
	// MaxRadiusSteps times without collecting enough addresses. It wraps ErrNotFound.
	ErrSearchExhausted = fmt.Errorf("%w: radius search exhausted", ErrNotFound)
)
