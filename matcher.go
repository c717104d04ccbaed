package addrmatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/andreiashu/addrmatcher/internal/metrics"
)

// Defaults for Config and the query options.
const (
	DefaultRowCap         = 10000
	DefaultMaxRadiusSteps = 32
	DefaultShardCacheSize = 8
	DefaultThreshold      = 0.9
	DefaultRadiusKm       = 1.0
)

// maxShrinkSteps bounds the bisection that trims an oversized candidate set.
const maxShrinkSteps = 64

// maxAddressInputLen limits the runes of an address query. Longer input is truncated
// before scoring, which is quadratic in the input length.
const maxAddressInputLen = 512

// Config holds the settings of a GeoMatcher.
type Config struct {
	DataDir        string      // Directory with the index and shard files (default: "./data/<hierarchy name>")
	IndexFile      string      // Index file name or path; empty means the first of IndexFileNames found in DataDir
	Logger         *zap.Logger // Default: no-op logger
	Workers        int         // Parallel shard reads and index scoring (default: GOMAXPROCS)
	RowCap         int         // Rows kept beyond n before the search box is shrunk (default: 10000)
	MaxRadiusSteps int         // Radius doublings before a coordinate search gives up (default: 32)
	ShardCacheSize int         // Decoded shards kept in memory; 0 disables the cache (default: 8)
	Registerer     prometheus.Registerer
}

// Option is a functional option for configuring a GeoMatcher.
type Option func(*Config)

// WithDataDir sets the reference data directory.
func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.DataDir = dir
	}
}

// WithIndexFile sets the index file, relative to the data directory unless absolute.
func WithIndexFile(name string) Option {
	return func(c *Config) {
		c.IndexFile = name
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithWorkers sets the parallelism of shard reads and nearest-key scoring.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithRowCap sets how many rows beyond n a coordinate search may keep before it
// shrinks its box.
func WithRowCap(n int) Option {
	return func(c *Config) {
		c.RowCap = n
	}
}

// WithMaxRadiusSteps sets how many times a coordinate search may double its radius.
func WithMaxRadiusSteps(n int) Option {
	return func(c *Config) {
		c.MaxRadiusSteps = n
	}
}

// WithShardCacheSize sets the number of decoded shards kept in memory.
func WithShardCacheSize(n int) Option {
	return func(c *Config) {
		c.ShardCacheSize = n
	}
}

// WithMetrics registers the matcher's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

// DefaultConfig returns the default configuration. DataDir is filled in by Open.
func DefaultConfig() *Config {
	return &Config{
		Logger:         zap.NewNop(),
		Workers:        runtime.GOMAXPROCS(0),
		RowCap:         DefaultRowCap,
		MaxRadiusSteps: DefaultMaxRadiusSteps,
		ShardCacheSize: DefaultShardCacheSize,
	}
}

func (c *Config) validate() error {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.RowCap < 0 {
		return fmt.Errorf("%w: row cap must not be negative, got %d", ErrInvalidArgument, c.RowCap)
	}
	if c.MaxRadiusSteps < 0 {
		return fmt.Errorf("%w: max radius steps must not be negative, got %d", ErrInvalidArgument, c.MaxRadiusSteps)
	}
	if c.ShardCacheSize < 0 {
		return fmt.Errorf("%w: shard cache size must not be negative, got %d", ErrInvalidArgument, c.ShardCacheSize)
	}
	return nil
}

// RegionValue is the value an address holds for one hierarchy level.
type RegionValue struct {
	Region Region
	Value  string
}

// AddressMatch is one result of MatchAddress.
type AddressMatch struct {
	FullAddress string
	Score       float64
	Regions     []RegionValue
}

// Region returns the value for the level named name (name, short name or column
// name, case-insensitive).
func (m AddressMatch) Region(name string) (string, bool) { return regionValue(m.Regions, name) }

// CoordinateMatch is one result of MatchCoordinates.
type CoordinateMatch struct {
	FullAddress     string
	Latitude        float64
	Longitude       float64
	AddressDetailID string
	DistanceKm      float64
	Regions         []RegionValue
}

// Region returns the value for the level named name (name, short name or column
// name, case-insensitive).
func (m CoordinateMatch) Region(name string) (string, bool) { return regionValue(m.Regions, name) }

func regionValue(values []RegionValue, name string) (string, bool) {
	for _, v := range values {
		if v.Region.matchesName(name) || strings.EqualFold(v.Region.colName, name) {
			return v.Value, true
		}
	}
	return "", false
}

// AddressOptions configures MatchAddress.
type AddressOptions struct {
	Threshold float64     // Minimum score in (0, 1]
	TopN      int         // Maximum results, at least 1
	Regions   RegionQuery // Hierarchy levels to project; zero value selects all
	Algorithm Algorithm
	Cleaning  bool // Correct the normalised address against the index before lookup
}

// DefaultAddressOptions returns threshold 0.9, the single best result, all regions and
// Levenshtein scoring without cleaning.
func DefaultAddressOptions() AddressOptions {
	return AddressOptions{Threshold: DefaultThreshold, TopN: 1, Algorithm: Levenshtein}
}

// CoordinateOptions configures MatchCoordinates.
type CoordinateOptions struct {
	N        int         // Nearest addresses to return (default: 1)
	RadiusKm float64     // Initial search radius (default: 1 km)
	Regions  RegionQuery // Hierarchy levels to project; zero value selects all
}

// GeoMatcher resolves addresses and coordinates to regions of a hierarchy using a
// sharded reference corpus. It is safe for concurrent use.
type GeoMatcher struct {
	h       *Hierarchy
	cfg     *Config
	index   *ShardIndex
	shards  *ShardStore
	columns []string
	colPos  map[string]int
	log     *zap.Logger
}

// Open binds a matcher to h and the reference data directory.
//
// Example:
//
//	h, _ := hierarchies.Australia()
//	m, err := addrmatcher.Open(h, addrmatcher.WithDataDir("/srv/gnaf"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	matches, err := m.MatchAddress(ctx, "UNIT 410 GEORGINA CRESCENT KALEEN ACT 2617", addrmatcher.DefaultAddressOptions())
func Open(h *Hierarchy, opts ...Option) (*GeoMatcher, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: hierarchy must not be nil", ErrInvalidArgument)
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(".", "data", h.Name())
	}
	if cfg.Registerer != nil {
		if err := metrics.Register(cfg.Registerer); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	fi, err := os.Stat(cfg.DataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: data directory %s", ErrNotFound, cfg.DataDir)
		}
		return nil, fmt.Errorf("stat data directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, cfg.DataDir)
	}

	indexPath := cfg.IndexFile
	switch {
	case indexPath == "":
		if indexPath, err = FindIndexFile(cfg.DataDir); err != nil {
			return nil, err
		}
	case !filepath.IsAbs(indexPath):
		indexPath = filepath.Join(cfg.DataDir, indexPath)
	}
	index, err := LoadShardIndex(indexPath)
	if err != nil {
		return nil, err
	}

	columns := h.Columns()
	shards, err := openShardStore(cfg.DataDir, index.Files(), columns, cfg)
	if err != nil {
		return nil, err
	}

	m := &GeoMatcher{
		h:       h,
		cfg:     cfg,
		index:   index,
		shards:  shards,
		columns: columns,
		colPos:  make(map[string]int, len(columns)),
		log:     cfg.Logger.With(zap.String("hierarchy", h.Name())),
	}
	for i, c := range columns {
		m.colPos[c] = i
	}
	m.log.Info("matcher opened",
		zap.String("data_dir", cfg.DataDir),
		zap.Int("index_rows", index.Len()),
		zap.Int("shards", len(shards.Files())),
		zap.Int("addresses", shards.Rows()))
	return m, nil
}

// Hierarchy returns the hierarchy the matcher was opened with.
func (m *GeoMatcher) Hierarchy() *Hierarchy { return m.h }

// Index returns the loaded shard index.
func (m *GeoMatcher) Index() *ShardIndex { return m.index }

// Shards returns the shard store.
func (m *GeoMatcher) Shards() *ShardStore { return m.shards }

type projection struct {
	region Region
	pos    int
}

// projectionFor resolves q to the region columns present in the corpus, in query order.
func (m *GeoMatcher) projectionFor(q RegionQuery) ([]projection, error) {
	regions, err := m.h.Regions(q)
	if err != nil {
		return nil, err
	}
	var out []projection
	seen := make(map[string]bool)
	for _, r := range regions {
		pos, ok := m.colPos[r.colName]
		if !ok || seen[r.colName] {
			continue
		}
		seen[r.colName] = true
		out = append(out, projection{region: r, pos: pos})
	}
	return out, nil
}

func project(cols []projection, values []string) []RegionValue {
	out := make([]RegionValue, len(cols))
	for i, c := range cols {
		out[i] = RegionValue{Region: c.region, Value: values[c.pos]}
	}
	return out
}

func outcome(n int, err error) string {
	switch {
	case err != nil:
		return "error"
	case n == 0:
		return "empty"
	}
	return "match"
}

type scored struct {
	row   int
	score float64
}

// MatchAddress finds the reference addresses most similar to text. It normalises the
// text, picks the street group through the index (exactly, or by the best-scoring key
// when the street is unknown), scores every address of that group against the original
// text and returns those scoring at least opts.Threshold, best first. No candidate above
// the threshold yields an empty result and no error.
func (m *GeoMatcher) MatchAddress(ctx context.Context, text string, opts AddressOptions) (matches []AddressMatch, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery("address", outcome(len(matches), err), started) }()

	if math.IsNaN(opts.Threshold) || opts.Threshold <= 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in (0, 1], got %v", ErrInvalidArgument, opts.Threshold)
	}
	if opts.TopN < 1 {
		return nil, fmt.Errorf("%w: top n must be at least 1, got %d", ErrInvalidArgument, opts.TopN)
	}
	score, err := opts.Algorithm.scorer()
	if err != nil {
		return nil, err
	}
	cols, err := m.projectionFor(opts.Regions)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxAddressInputLen {
		text = string(runes[:maxAddressInputLen])
	}
	if text == "" {
		return nil, fmt.Errorf("%w: address must not be empty", ErrInvalidArgument)
	}

	key := StripLeadingNumericTokens(text)
	if opts.Cleaning {
		key = CleanWithIndex(key, m.index)
	}
	row, ok := m.index.Lookup(key)
	if !ok {
		var keyScore float64
		row, keyScore, err = m.index.Nearest(ctx, key, opts.Algorithm, m.cfg.Workers)
		if err != nil {
			return nil, err
		}
		metrics.IndexFallbacksTotal.Inc()
		m.log.Debug("index key not found, using nearest key",
			zap.String("key", key), zap.String("nearest", row.Key()), zap.Float64("score", keyScore))
	}

	recs, err := m.shards.LoadGroup(ctx, row)
	if err != nil {
		return nil, err
	}
	metrics.CandidateRows.WithLabelValues("address").Observe(float64(len(recs)))

	query := prepare(text)
	var hits []scored
	for i, r := range recs {
		if s := score(query, prepare(r.FullAddress)); s >= opts.Threshold {
			hits = append(hits, scored{row: i, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > opts.TopN {
		hits = hits[:opts.TopN]
	}

	matches = make([]AddressMatch, len(hits))
	for i, h := range hits {
		r := recs[h.row]
		matches[i] = AddressMatch{FullAddress: r.FullAddress, Score: h.score, Regions: project(cols, r.Regions)}
	}
	return matches, nil
}

// MatchCoordinates returns the opts.N reference addresses nearest to (lat, lon) by
// great-circle distance, nearest first.
//
// The search loads every address inside a square box around the point, doubling its
// half-width until at least N addresses are found or the box covers the whole corpus.
// Oversized candidate sets are trimmed by bisecting between the last two box sizes.
func (m *GeoMatcher) MatchCoordinates(ctx context.Context, lat, lon float64, opts CoordinateOptions) (matches []CoordinateMatch, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery("coordinates", outcome(len(matches), err), started) }()

	n := opts.N
	if n == 0 {
		n = 1
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: n must be at least 1, got %d", ErrInvalidArgument, opts.N)
	}
	radius := opts.RadiusKm
	if radius == 0 {
		radius = DefaultRadiusKm
	}
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
		return nil, fmt.Errorf("%w: radius must be a positive number of km, got %v", ErrInvalidArgument, opts.RadiusKm)
	}
	if !validCoordinate(lat, lon) {
		return nil, fmt.Errorf("%w: (%v, %v) is not a valid coordinate", ErrOutOfRange, lat, lon)
	}
	boundary, bounded := m.h.CoordinateBoundary()
	if bounded && !boundary.Contains(lat, lon) {
		return nil, fmt.Errorf("%w: (%v, %v) is outside %s [%v, %v] x [%v, %v]", ErrOutOfRange,
			lat, lon, m.h.Name(), boundary.LatMin, boundary.LatMax, boundary.LonMin, boundary.LonMax)
	}
	cols, err := m.projectionFor(opts.Regions)
	if err != nil {
		return nil, err
	}

	extent, ok := m.shards.Extent()
	if !ok {
		return nil, fmt.Errorf("%w: corpus has no addresses", ErrNotFound)
	}
	if bounded {
		extent = extent.union(boundary)
	}

	lo, hi := 0.0, radius/kmPerDegree
	rows, err := m.shards.LoadWithin(ctx, searchBox(lat, lon, hi))
	if err != nil {
		return nil, err
	}
	grown := 0
	for len(rows) < n && !searchBox(lat, lon, hi).covers(extent) {
		if grown >= m.cfg.MaxRadiusSteps {
			return nil, fmt.Errorf("%w: %d of %d addresses within %.3f km after %d steps",
				ErrSearchExhausted, len(rows), n, hi*kmPerDegree, grown)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lo, hi = hi, hi*2
		grown++
		if rows, err = m.shards.LoadWithin(ctx, searchBox(lat, lon, hi)); err != nil {
			return nil, err
		}
		m.log.Debug("search radius grown", zap.Float64("radius_km", hi*kmPerDegree), zap.Int("rows", len(rows)))
	}
	metrics.RadiusSteps.WithLabelValues("grow").Observe(float64(grown))
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no addresses near (%v, %v)", ErrNotFound, lat, lon)
	}

	// lo never holds n rows and hi always does, unless the corpus itself is smaller.
	shrunk := 0
	for len(rows) >= n+m.cfg.RowCap && shrunk < maxShrinkSteps {
		mid := lo + (hi-lo)/2
		box := searchBox(lat, lon, mid)
		var inside []AddressRecord
		for _, r := range rows {
			if box.Contains(r.Latitude, r.Longitude) {
				inside = append(inside, r)
			}
		}
		if len(inside) < n {
			lo = mid
		} else {
			hi, rows = mid, inside
		}
		shrunk++
	}
	metrics.RadiusSteps.WithLabelValues("shrink").Observe(float64(shrunk))
	metrics.CandidateRows.WithLabelValues("coordinates").Observe(float64(len(rows)))

	nearest := nearestRows(rows, lat, lon, n)
	matches = make([]CoordinateMatch, len(nearest))
	for i, nb := range nearest {
		r := rows[nb.row]
		matches[i] = CoordinateMatch{
			FullAddress:     r.FullAddress,
			Latitude:        r.Latitude,
			Longitude:       r.Longitude,
			AddressDetailID: r.AddressDetailID,
			DistanceKm:      nb.distanceKm,
			Regions:         project(cols, r.Regions),
		}
	}
	return matches, nil
}
