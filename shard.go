package addrmatcher

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andreiashu/addrmatcher/internal/columnar"
	"github.com/andreiashu/addrmatcher/internal/metrics"
)

// AddressRecord is one reference address read from a shard. Regions holds the values
// of the store's region columns, in the order given by ShardStore.Columns.
type AddressRecord struct {
	FullAddress     string
	Latitude        float64
	Longitude       float64
	AddressDetailID string
	Regions         []string
}

type shardFile struct {
	name   string
	path   string
	header columnar.Header
}

// ShardStore reads address groups from the shard files of a data directory. Only
// headers are kept resident; group data is decoded on demand and optionally held in
// an LRU of decoded shards.
type ShardStore struct {
	dir     string
	columns []string
	files   []*shardFile
	byName  map[string]*shardFile
	cache   *shardCache
	workers int
	log     *zap.Logger
}

// openShardStore reads the headers of the named shard files and checks that each one
// carries the address columns plus regionColumns.
func openShardStore(dir string, names, regionColumns []string, cfg *Config) (*ShardStore, error) {
	s := &ShardStore{
		dir:     dir,
		columns: append([]string(nil), regionColumns...),
		byName:  make(map[string]*shardFile, len(names)),
		cache:   newShardCache(cfg.ShardCacheSize),
		workers: cfg.Workers,
		log:     cfg.Logger,
	}
	required := append([]string{ColFullAddress, ColLatitude, ColLongitude, ColAddressDetailID}, regionColumns...)
	for _, name := range names {
		if _, dup := s.byName[name]; dup {
			continue
		}
		path, err := resolveShardPath(dir, name)
		if err != nil {
			return nil, err
		}
		hdr, err := columnar.ReadHeader(path)
		if err != nil {
			if errors.Is(err, columnar.ErrFormat) {
				return nil, fmt.Errorf("%w: shard %s: %v", ErrSchema, name, err)
			}
			return nil, fmt.Errorf("reading shard %s: %w", name, err)
		}
		if missing := hdr.Missing(required...); len(missing) > 0 {
			return nil, fmt.Errorf("%w: shard %s lacks columns %s", ErrSchema, name, strings.Join(missing, ", "))
		}
		for _, col := range []string{ColLatitude, ColLongitude} {
			if hdr.Kind(col) != columnar.Float {
				return nil, fmt.Errorf("%w: shard %s column %s is %s, want float", ErrSchema, name, col, hdr.Kind(col))
			}
		}
		for _, col := range append([]string{ColFullAddress, ColAddressDetailID}, regionColumns...) {
			if hdr.Kind(col) != columnar.String {
				return nil, fmt.Errorf("%w: shard %s column %s is %s, want string", ErrSchema, name, col, hdr.Kind(col))
			}
		}
		f := &shardFile{name: name, path: path, header: hdr}
		s.files = append(s.files, f)
		s.byName[name] = f
	}
	return s, nil
}

// resolveShardPath finds name in dir, falling back to its bzip2-compressed twin.
func resolveShardPath(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	candidates := []string{path}
	if !strings.HasSuffix(path, ".bz2") {
		candidates = append(candidates, path+".bz2")
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: shard file %s in %s", ErrNotFound, name, dir)
}

// Columns returns the region columns carried by every AddressRecord.
func (s *ShardStore) Columns() []string { return append([]string(nil), s.columns...) }

// Files returns the shard file names in catalog order.
func (s *ShardStore) Files() []string {
	names := make([]string, len(s.files))
	for i, f := range s.files {
		names[i] = f.name
	}
	return names
}

// Rows returns the number of addresses across all shards.
func (s *ShardStore) Rows() int {
	n := 0
	for _, f := range s.files {
		n += f.header.Rows()
	}
	return n
}

// Extent returns the box spanned by every address, from the group statistics.
func (s *ShardStore) Extent() (Boundary, bool) {
	b := Boundary{LatMin: math.Inf(1), LatMax: math.Inf(-1), LonMin: math.Inf(1), LonMax: math.Inf(-1)}
	found := false
	for _, f := range s.files {
		for _, g := range f.header.Groups {
			latMin, ok1 := g.Min[ColLatitude]
			latMax, ok2 := g.Max[ColLatitude]
			lonMin, ok3 := g.Min[ColLongitude]
			lonMax, ok4 := g.Max[ColLongitude]
			if !ok1 || !ok2 || !ok3 || !ok4 {
				continue
			}
			found = true
			b.LatMin, b.LatMax = math.Min(b.LatMin, latMin), math.Max(b.LatMax, latMax)
			b.LonMin, b.LonMax = math.Min(b.LonMin, lonMin), math.Max(b.LonMax, lonMax)
		}
	}
	return b, found
}

// LoadGroup returns the addresses of the group an index row points at: the group at
// row.RowID when set, otherwise the group whose key equals row.Key().
func (s *ShardStore) LoadGroup(ctx context.Context, row IndexRow) ([]AddressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, ok := s.byName[row.FileName]
	if !ok {
		return nil, fmt.Errorf("%w: shard file %s is not in the catalog", ErrNotFound, row.FileName)
	}
	gi := row.RowID
	if gi < 0 {
		key := row.Key()
		for i, st := range f.header.Groups {
			if st.Key == key {
				gi = i
				break
			}
		}
	}
	if gi < 0 || gi >= len(f.header.Groups) {
		return nil, fmt.Errorf("%w: group %q (row %d) in shard %s", ErrNotFound, row.Key(), row.RowID, f.name)
	}

	cf, err := s.decode(f, func(i int, _ columnar.GroupStats) bool { return i == gi })
	if err != nil {
		return nil, err
	}
	return s.records(cf.Groups[gi], nil), nil
}

// LoadWithin returns every address inside box. Shards whose group statistics miss the
// box are skipped; the rest are read in parallel. Results follow catalog order.
func (s *ShardStore) LoadWithin(ctx context.Context, box Boundary) ([]AddressRecord, error) {
	overlaps := func(_ int, st columnar.GroupStats) bool {
		return st.Overlaps(ColLatitude, box.LatMin, box.LatMax) && st.Overlaps(ColLongitude, box.LonMin, box.LonMax)
	}
	parts := make([][]AddressRecord, len(s.files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.workers, 1))
	for i, f := range s.files {
		touched := false
		for gi, st := range f.header.Groups {
			if overlaps(gi, st) {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cf, err := s.decode(f, overlaps)
			if err != nil {
				return err
			}
			var out []AddressRecord
			for gi := range cf.Groups {
				if !cf.Loaded(gi) || !overlaps(gi, cf.Header.Groups[gi]) {
					continue
				}
				out = append(out, s.records(cf.Groups[gi], func(lat, lon float64) bool { return box.Contains(lat, lon) })...)
			}
			parts[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []AddressRecord
	for _, p := range parts {
		all = append(all, p...)
	}
	return all, nil
}

// decode returns the decoded file. With the cache enabled the whole file is decoded
// once and shared; otherwise only the groups selected by want are decoded.
func (s *ShardStore) decode(f *shardFile, want func(int, columnar.GroupStats) bool) (*columnar.File, error) {
	if s.cache != nil {
		if cf, ok := s.cache.Get(f.path); ok {
			metrics.ShardCacheHitsTotal.Inc()
			return cf, nil
		}
		want = nil
	}
	cf, err := columnar.Read(f.path, want)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: shard file %s", ErrNotFound, f.path)
		}
		if errors.Is(err, columnar.ErrFormat) {
			return nil, fmt.Errorf("%w: shard %s: %v", ErrSchema, f.name, err)
		}
		return nil, fmt.Errorf("reading shard %s: %w", f.name, err)
	}
	metrics.ShardLoadsTotal.Inc()
	s.log.Debug("shard decoded", zap.String("file", f.name), zap.Int("groups", len(cf.Groups)))
	if s.cache != nil {
		s.cache.Set(f.path, cf)
	}
	return cf, nil
}

func (s *ShardStore) records(g columnar.Group, keep func(lat, lon float64) bool) []AddressRecord {
	addrs := g.Strings[ColFullAddress]
	lats, lons := g.Floats[ColLatitude], g.Floats[ColLongitude]
	ids := g.Strings[ColAddressDetailID]
	out := make([]AddressRecord, 0, len(addrs))
	for i := range addrs {
		if keep != nil && !keep(lats[i], lons[i]) {
			continue
		}
		rec := AddressRecord{
			FullAddress:     addrs[i],
			Latitude:        lats[i],
			Longitude:       lons[i],
			AddressDetailID: ids[i],
			Regions:         make([]string, len(s.columns)),
		}
		for c, col := range s.columns {
			rec.Regions[c] = g.Strings[col][i]
		}
		out = append(out, rec)
	}
	return out
}

// shardCache is a mutex-guarded LRU of decoded shard files keyed by path. Cached files
// are never modified.
type shardCache struct {
	mu   sync.Mutex
	cap  int
	lst  *list.List
	dict map[string]*list.Element
}

type shardEntry struct {
	k string
	v *columnar.File
}

// newShardCache returns nil for a non-positive capacity, which disables caching.
func newShardCache(capacity int) *shardCache {
	if capacity <= 0 {
		return nil
	}
	return &shardCache{cap: capacity, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *shardCache) Get(k string) (*columnar.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		c.lst.MoveToFront(e)
		return e.Value.(shardEntry).v, true
	}
	return nil, false
}

func (c *shardCache) Set(k string, v *columnar.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		e.Value = shardEntry{k: k, v: v}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(shardEntry{k: k, v: v})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(shardEntry).k)
		c.lst.Remove(back)
	}
}

func (c *shardCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
