package addrmatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/andreiashu/addrmatcher/internal/columnar"
)

// Column names of the shard index.
const (
	ColStreetName     = "street_name"
	ColStreetTypeCode = "street_type_code"
	ColLocalityName   = "locality_name"
	ColState          = "state"
	ColPostcode       = "postcode"
	ColFileName       = "file_name"
	ColAddressCount   = "address_count"
	ColRowID          = "row_id"
)

// Column names of the address shards. Region columns come from the hierarchy.
const (
	ColFullAddress     = "full_address"
	ColLatitude        = "latitude"
	ColLongitude       = "longitude"
	ColAddressDetailID = "address_detail_id"
)

var indexStringColumns = []string{ColStreetName, ColStreetTypeCode, ColLocalityName, ColState, ColPostcode, ColFileName}

// IndexFileNames are tried in order when locating the index in a data directory.
var IndexFileNames = []string{"index.dmp", "index.dmp.bz2"}

// IndexRow locates one street group in the shard files.
type IndexRow struct {
	StreetName     string
	StreetTypeCode string
	LocalityName   string
	State          string
	Postcode       string
	FileName       string
	// RowID is the group's position inside FileName, or -1 when the index carries no
	// row ids and the group is found by key instead.
	RowID        int
	AddressCount int64
}

// Key returns the canonical address key of the row: street name, street type,
// locality, state and postcode, upper-cased and single-spaced.
func (r IndexRow) Key() string {
	return MakeKey(r.StreetName, r.StreetTypeCode, r.LocalityName, r.State, r.Postcode)
}

// MakeKey joins the non-empty parts with single spaces, upper-cased.
func MakeKey(parts ...string) string {
	return strings.Join(strings.Fields(strings.ToUpper(strings.Join(parts, " "))), " ")
}

// ShardIndex maps canonical street keys to the shard group holding their addresses.
// It is immutable once loaded.
type ShardIndex struct {
	rows     []IndexRow
	keys     []string
	prepared []string
	byKey    map[string]int
	byArea   map[string][]int
}

// NewShardIndex builds an index from rows. When two rows share a key the first wins.
func NewShardIndex(rows []IndexRow) *ShardIndex {
	x := &ShardIndex{
		rows:     rows,
		keys:     make([]string, len(rows)),
		prepared: make([]string, len(rows)),
		byKey:    make(map[string]int, len(rows)),
		byArea:   make(map[string][]int),
	}
	for i, r := range rows {
		k := r.Key()
		x.keys[i] = k
		x.prepared[i] = prepare(k)
		if _, dup := x.byKey[k]; !dup {
			x.byKey[k] = i
		}
		area := areaKey(r.State, r.Postcode)
		x.byArea[area] = append(x.byArea[area], i)
	}
	return x
}

func areaKey(state, postcode string) string {
	return strings.ToUpper(strings.TrimSpace(state)) + " " + strings.TrimSpace(postcode)
}

// FindIndexFile returns the first of IndexFileNames present in dir.
func FindIndexFile(dir string) (string, error) {
	for _, name := range IndexFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no index file (%s) in %s", ErrNotFound, strings.Join(IndexFileNames, ", "), dir)
}

// LoadShardIndex reads the index file at path.
func LoadShardIndex(path string) (*ShardIndex, error) {
	f, err := columnar.Read(path, nil)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: index file %s", ErrNotFound, path)
		}
		if errors.Is(err, columnar.ErrFormat) {
			return nil, fmt.Errorf("%w: index file %s: %v", ErrSchema, path, err)
		}
		return nil, fmt.Errorf("loading index %s: %w", path, err)
	}

	hdr := f.Header
	if missing := hdr.Missing(append(indexStringColumns, ColAddressCount)...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: index file %s lacks columns %s", ErrSchema, path, strings.Join(missing, ", "))
	}
	for _, col := range indexStringColumns {
		if hdr.Kind(col) != columnar.String {
			return nil, fmt.Errorf("%w: index column %s is %s, want string", ErrSchema, col, hdr.Kind(col))
		}
	}
	if hdr.Kind(ColAddressCount) != columnar.Int {
		return nil, fmt.Errorf("%w: index column %s is %s, want int", ErrSchema, ColAddressCount, hdr.Kind(ColAddressCount))
	}
	hasRowID := hdr.Kind(ColRowID) == columnar.Int

	rows := make([]IndexRow, 0, hdr.Rows())
	for _, g := range f.Groups {
		for i := 0; i < g.Len(); i++ {
			r := IndexRow{
				StreetName:     strings.ToUpper(g.Strings[ColStreetName][i]),
				StreetTypeCode: strings.ToUpper(g.Strings[ColStreetTypeCode][i]),
				LocalityName:   strings.ToUpper(g.Strings[ColLocalityName][i]),
				State:          strings.ToUpper(g.Strings[ColState][i]),
				Postcode:       g.Strings[ColPostcode][i],
				FileName:       g.Strings[ColFileName][i],
				RowID:          -1,
				AddressCount:   g.Ints[ColAddressCount][i],
			}
			if hasRowID {
				r.RowID = int(g.Ints[ColRowID][i])
			}
			rows = append(rows, r)
		}
	}
	return NewShardIndex(rows), nil
}

// Len returns the number of index rows.
func (x *ShardIndex) Len() int { return len(x.rows) }

// Row returns row i.
func (x *ShardIndex) Row(i int) IndexRow { return x.rows[i] }

// Lookup returns the row whose key equals key exactly.
func (x *ShardIndex) Lookup(key string) (IndexRow, bool) {
	i, ok := x.byKey[MakeKey(key)]
	if !ok {
		return IndexRow{}, false
	}
	return x.rows[i], true
}

// InArea returns the rows of one state and postcode.
func (x *ShardIndex) InArea(state, postcode string) []IndexRow {
	idxs := x.byArea[areaKey(state, postcode)]
	out := make([]IndexRow, len(idxs))
	for i, idx := range idxs {
		out[i] = x.rows[idx]
	}
	return out
}

// Files returns the distinct shard file names referenced by the index, in index order.
func (x *ShardIndex) Files() []string {
	var files []string
	seen := make(map[string]bool)
	for _, r := range x.rows {
		if !seen[r.FileName] {
			seen[r.FileName] = true
			files = append(files, r.FileName)
		}
	}
	return files
}

// nearestChunk is the minimum number of keys scored by one worker.
const nearestChunk = 4096

// Nearest scores text against every index key with algo and returns the best row and
// its score. Ties go to the row that comes first in the index. Scoring is split across
// at most workers goroutines.
func (x *ShardIndex) Nearest(ctx context.Context, text string, algo Algorithm, workers int) (IndexRow, float64, error) {
	score, err := algo.scorer()
	if err != nil {
		return IndexRow{}, 0, err
	}
	if len(x.rows) == 0 {
		return IndexRow{}, 0, fmt.Errorf("%w: index is empty", ErrNotFound)
	}
	query := prepare(text)

	workers = max(workers, 1)
	chunk := max(nearestChunk, (len(x.rows)+workers-1)/workers)
	type best struct {
		idx   int
		score float64
	}
	results := make([]best, (len(x.rows)+chunk-1)/chunk)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := range results {
		c := c
		lo, hi := c*chunk, min((c+1)*chunk, len(x.rows))
		g.Go(func() error {
			b := best{idx: -1, score: -1}
			for i := lo; i < hi; i++ {
				if (i-lo)%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if s := score(query, x.prepared[i]); s > b.score {
					b = best{idx: i, score: s}
				}
			}
			results[c] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IndexRow{}, 0, err
	}

	// Chunks are in index order, so a strict comparison keeps the earliest tie.
	top := results[0]
	for _, b := range results[1:] {
		if b.score > top.score {
			top = b
		}
	}
	return x.rows[top.idx], top.score, nil
}
