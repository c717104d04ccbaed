package addrmatcher

import (
	"fmt"
	"strings"
)

// Region describes one level of an administrative or statistical area classification,
// for example a state, a suburb or a statistical area level.
//
// Two regions are the same region when their name and short name match. The column
// name only tells the matcher where the level's values live in the reference data, so
// one logical region can be re-columned across corpora without changing its identity.
//
// Region is an immutable value; WithColName returns a modified copy.
type Region struct {
	name      string
	shortName string
	colName   string
}

// NewRegion creates a Region. The name must not be empty.
func NewRegion(name, shortName, colName string) (Region, error) {
	if strings.TrimSpace(name) == "" {
		return Region{}, fmt.Errorf("%w: region name must not be empty", ErrInvalidArgument)
	}
	return Region{name: name, shortName: shortName, colName: colName}, nil
}

// MustRegion is like NewRegion but panics on error. Intended for package-level
// hierarchy definitions.
func MustRegion(name, shortName, colName string) Region {
	r, err := NewRegion(name, shortName, colName)
	if err != nil {
		panic(err)
	}
	return r
}

// Name returns the full name of the area level (e.g. "Statistical Area 4").
func (r Region) Name() string { return r.name }

// ShortName returns the abbreviation of the area level (e.g. "SA4").
func (r Region) ShortName() string { return r.shortName }

// ColName returns the reference dataset column holding this level's values.
func (r Region) ColName() string { return r.colName }

// IsValid reports whether r was built by NewRegion (the zero Region is invalid).
func (r Region) IsValid() bool { return r.name != "" }

// Equal reports whether r and o identify the same region.
func (r Region) Equal(o Region) bool {
	return r.name == o.name && r.shortName == o.shortName
}

// WithColName returns a copy of r bound to a different column.
func (r Region) WithColName(col string) Region {
	r.colName = col
	return r
}

func (r Region) String() string { return r.name }

// identity is the map key used for structural-equality lookups.
type identity struct {
	name, shortName string
}

func (r Region) id() identity { return identity{r.name, r.shortName} }

// matchesName reports whether n is r's name or short name, ignoring case.
func (r Region) matchesName(n string) bool {
	return strings.EqualFold(r.name, n) || (r.shortName != "" && strings.EqualFold(r.shortName, n))
}
