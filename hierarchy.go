package addrmatcher

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Operator selects the direction of a hierarchy query relative to a reference region.
type Operator int

const (
	// NoOperator means the query is a plain name lookup.
	NoOperator Operator = iota
	// AtOrAbove returns the path from the hierarchy root down to the reference region.
	AtOrAbove
	// AtOrBelow returns the subtree rooted at the reference region, pre-order.
	AtOrBelow
)

func (o Operator) String() string {
	switch o {
	case NoOperator:
		return ""
	case AtOrAbove:
		return "at-or-above"
	case AtOrBelow:
		return "at-or-below"
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator parses "at-or-above"/"ge", "at-or-below"/"le" or "" (no operator).
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return NoOperator, nil
	case "at-or-above", "ge", ">=":
		return AtOrAbove, nil
	case "at-or-below", "le", "<=":
		return AtOrBelow, nil
	}
	return NoOperator, fmt.Errorf("%w: unknown operator %q", ErrInvalidArgument, s)
}

// Attribute names a Region field returned by RegionAttributes.
type Attribute string

const (
	AttributeName      Attribute = "name"
	AttributeShortName Attribute = "short_name"
	AttributeColName   Attribute = "col_name"
)

func (a Attribute) of(r Region) (string, error) {
	switch a {
	case AttributeName:
		return r.name, nil
	case AttributeShortName:
		return r.shortName, nil
	case AttributeColName:
		return r.colName, nil
	}
	return "", fmt.Errorf("%w: unknown attribute %q (want name, short_name or col_name)", ErrInvalidArgument, string(a))
}

// RegionQuery selects regions from a Hierarchy.
//
//   - Names set: the named regions in input order; unknown names are skipped. Name
//     and Operator must then be empty.
//   - Name + Operator: the path above, or the subtree below, the named region.
//   - Name alone: the named region (a list of one).
//   - Zero value: every region, pre-order.
type RegionQuery struct {
	Names    []string
	Name     string
	Operator Operator
}

// IsZero reports whether q selects the whole hierarchy.
func (q RegionQuery) IsZero() bool {
	return len(q.Names) == 0 && strings.TrimSpace(q.Name) == "" && q.Operator == NoOperator
}

// Boundary is a country's coordinate bounding box in degrees.
type Boundary struct {
	LatMin, LatMax, LonMin, LonMax float64
}

// Contains reports whether (lat, lon) lies inside b, edges included.
func (b Boundary) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

type node struct {
	region   Region
	parent   int // -1 for the root
	children []int
}

// Hierarchy is a rooted tree of Regions for one country. A region may appear under
// several parents (a meshblock sits under both a suburb and a statistical area); name
// and identity lookups then resolve to the first occurrence in depth-first pre-order.
//
// A Hierarchy is built once at startup and is safe for concurrent readers afterwards.
// Mutating it while queries run is not supported.
type Hierarchy struct {
	name     string
	nodes    []node
	byID     map[identity][]int
	byName   map[string][]int
	types    map[string]string
	typeRoot map[string]int
	boundary *Boundary
}

// NewHierarchy creates a hierarchy rooted at root (usually the country level).
func NewHierarchy(root Region, countryName string) (*Hierarchy, error) {
	if !root.IsValid() {
		return nil, fmt.Errorf("%w: root must be a valid Region", ErrInvalidArgument)
	}
	h := &Hierarchy{
		name:     countryName,
		byID:     make(map[identity][]int),
		byName:   make(map[string][]int),
		types:    make(map[string]string),
		typeRoot: make(map[string]int),
	}
	h.insert(root, -1)
	return h, nil
}

// Name returns the country name given at construction.
func (h *Hierarchy) Name() string { return h.name }

// Root returns the root region.
func (h *Hierarchy) Root() Region { return h.nodes[0].region }

func (h *Hierarchy) insert(r Region, parent int) int {
	idx := len(h.nodes)
	h.nodes = append(h.nodes, node{region: r, parent: parent})
	if parent >= 0 {
		h.nodes[parent].children = append(h.nodes[parent].children, idx)
	}
	h.byID[r.id()] = append(h.byID[r.id()], idx)
	h.byName[strings.ToLower(r.name)] = append(h.byName[strings.ToLower(r.name)], idx)
	if r.shortName != "" && !strings.EqualFold(r.shortName, r.name) {
		key := strings.ToLower(r.shortName)
		h.byName[key] = append(h.byName[key], idx)
	}
	return idx
}

// AddRegion inserts region as a child of the node holding parent.
func (h *Hierarchy) AddRegion(region, parent Region) error {
	if !region.IsValid() {
		return fmt.Errorf("%w: region must be a valid Region", ErrInvalidArgument)
	}
	if !parent.IsValid() {
		return fmt.Errorf("%w: parent region must be a valid Region", ErrInvalidArgument)
	}
	p, ok := h.first(h.byID[parent.id()])
	if !ok {
		return fmt.Errorf("%w: parent region %q", ErrNotFound, parent.name)
	}
	h.insert(region, p)
	return nil
}

// AddType registers a named sub-hierarchy (e.g. administrative vs statistical) rooted
// at an existing region. An empty typeName defaults to typeID.
func (h *Hierarchy) AddType(region Region, typeID, typeName string) error {
	if strings.TrimSpace(typeID) == "" {
		return fmt.Errorf("%w: type id must not be empty", ErrInvalidArgument)
	}
	if !region.IsValid() {
		return fmt.Errorf("%w: region must be a valid Region", ErrInvalidArgument)
	}
	if _, dup := h.types[typeID]; dup {
		return fmt.Errorf("%w: type %q", ErrDuplicateKey, typeID)
	}
	idx, ok := h.first(h.byID[region.id()])
	if !ok {
		return fmt.Errorf("%w: type root region %q", ErrNotFound, region.name)
	}
	if strings.TrimSpace(typeName) == "" {
		typeName = typeID
	}
	h.types[typeID] = typeName
	h.typeRoot[typeID] = idx
	return nil
}

// Types returns a copy of the type registry (type id -> label).
func (h *Hierarchy) Types() map[string]string {
	out := make(map[string]string, len(h.types))
	for k, v := range h.types {
		out[k] = v
	}
	return out
}

// TypeRoot returns the region at which the typed sub-hierarchy is rooted.
func (h *Hierarchy) TypeRoot(typeID string) (Region, bool) {
	idx, ok := h.typeRoot[typeID]
	if !ok {
		return Region{}, false
	}
	return h.nodes[idx].region, true
}

// TypeRegions returns the regions of a typed sub-hierarchy, pre-order from its root.
func (h *Hierarchy) TypeRegions(typeID string) ([]Region, error) {
	idx, ok := h.typeRoot[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: type %q", ErrNotFound, typeID)
	}
	return h.collect(h.preorder(idx)), nil
}

// Regions resolves q against the hierarchy.
func (h *Hierarchy) Regions(q RegionQuery) ([]Region, error) {
	if len(q.Names) > 0 && q.Operator != NoOperator {
		return nil, fmt.Errorf("%w: operator must be empty when a list of names is given", ErrInvalidArgument)
	}
	name := strings.TrimSpace(q.Name)
	if len(q.Names) > 0 && name != "" {
		return nil, fmt.Errorf("%w: give either a list of names or a single name, not both", ErrInvalidArgument)
	}
	switch q.Operator {
	case NoOperator:
	case AtOrAbove, AtOrBelow:
		if name == "" {
			return nil, fmt.Errorf("%w: operator %s requires a reference name", ErrInvalidArgument, q.Operator)
		}
	default:
		return nil, fmt.Errorf("%w: unknown operator %d", ErrInvalidArgument, int(q.Operator))
	}

	names := q.Names
	if len(names) == 0 && name != "" && q.Operator == NoOperator {
		names = []string{name}
	}
	if len(names) > 0 {
		out := make([]Region, 0, len(names))
		for _, n := range names {
			if idx, ok := h.lookup(n); ok {
				out = append(out, h.nodes[idx].region)
			}
		}
		return out, nil
	}

	if q.Operator == NoOperator {
		return h.collect(h.preorder(0)), nil
	}

	idx, ok := h.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: region %q", ErrNotFound, name)
	}
	if q.Operator == AtOrAbove {
		return h.collect(h.path(idx)), nil
	}
	return h.collect(h.preorder(idx)), nil
}

// RegionAttributes is Regions projected onto a single attribute.
func (h *Hierarchy) RegionAttributes(q RegionQuery, attr Attribute) ([]string, error) {
	if _, err := attr.of(Region{}); err != nil {
		return nil, err
	}
	regions, err := h.Regions(q)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(regions))
	for i, r := range regions {
		out[i], _ = attr.of(r)
	}
	return out, nil
}

// SmallestRegion returns the region at the first leaf found depth-first; it stands for
// the most granular unit of the hierarchy.
func (h *Hierarchy) SmallestRegion() Region {
	idx := 0
	for len(h.nodes[idx].children) > 0 {
		idx = h.nodes[idx].children[0]
	}
	return h.nodes[idx].region
}

// Columns returns the distinct non-empty column names of all regions, pre-order.
func (h *Hierarchy) Columns() []string {
	var cols []string
	seen := make(map[string]bool)
	for _, r := range h.collect(h.preorder(0)) {
		if r.colName == "" || seen[r.colName] {
			continue
		}
		seen[r.colName] = true
		cols = append(cols, r.colName)
	}
	return cols
}

// SetCoordinateBoundary sets the country's bounding box. It rejects latMin >= latMax,
// lonMin >= lonMax and coordinates outside the globe.
func (h *Hierarchy) SetCoordinateBoundary(latMin, latMax, lonMin, lonMax float64) error {
	if !validCoordinate(latMin, lonMin) || !validCoordinate(latMax, lonMax) {
		return fmt.Errorf("%w: boundary [%v %v %v %v] is not a valid coordinate box", ErrInvalidArgument, latMin, latMax, lonMin, lonMax)
	}
	if latMin >= latMax {
		return fmt.Errorf("%w: latitude range is invalid (lat_min %v >= lat_max %v)", ErrInvalidArgument, latMin, latMax)
	}
	if lonMin >= lonMax {
		return fmt.Errorf("%w: longitude range is invalid (lon_min %v >= lon_max %v)", ErrInvalidArgument, lonMin, lonMax)
	}
	h.boundary = &Boundary{LatMin: latMin, LatMax: latMax, LonMin: lonMin, LonMax: lonMax}
	return nil
}

// CoordinateBoundary returns the boundary and whether one was set.
func (h *Hierarchy) CoordinateBoundary() (Boundary, bool) {
	if h.boundary == nil {
		return Boundary{}, false
	}
	return *h.boundary, true
}

func (h *Hierarchy) lookup(name string) (int, bool) {
	return h.first(h.byName[strings.ToLower(strings.TrimSpace(name))])
}

// first picks the candidate node that a depth-first search from the root meets first.
func (h *Hierarchy) first(candidates []int) (int, bool) {
	switch len(candidates) {
	case 0:
		return 0, false
	case 1:
		return candidates[0], true
	}
	rank := make(map[int]int, len(h.nodes))
	for i, idx := range h.preorder(0) {
		rank[idx] = i
	}
	sorted := append([]int(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return rank[sorted[i]] < rank[sorted[j]] })
	return sorted[0], true
}

func (h *Hierarchy) preorder(from int) []int {
	var out []int
	stack := []int{from}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, idx)
		children := h.nodes[idx].children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out
}

func (h *Hierarchy) path(idx int) []int {
	var out []int
	for ; idx >= 0; idx = h.nodes[idx].parent {
		out = append(out, idx)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// collect maps node indices to regions, dropping repeated regions.
func (h *Hierarchy) collect(idxs []int) []Region {
	out := make([]Region, 0, len(idxs))
	seen := make(map[identity]bool, len(idxs))
	for _, idx := range idxs {
		r := h.nodes[idx].region
		if seen[r.id()] {
			continue
		}
		seen[r.id()] = true
		out = append(out, r)
	}
	return out
}
