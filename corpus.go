package addrmatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andreiashu/addrmatcher/internal/columnar"
)

// DefaultMaxRowsPerShard bounds the number of addresses written to one shard file.
const DefaultMaxRowsPerShard = 500_000

// CorpusRecord is one canonical address as produced by the reference-data ETL.
type CorpusRecord struct {
	FullAddress     string
	Latitude        float64
	Longitude       float64
	AddressDetailID string

	StreetName     string
	StreetTypeCode string
	LocalityName   string
	State          string
	Postcode       string

	// Regions holds the record's value for each hierarchy column.
	Regions map[string]string
}

// Key returns the street key the record is grouped under.
func (r CorpusRecord) Key() string {
	return MakeKey(r.StreetName, r.StreetTypeCode, r.LocalityName, r.State, r.Postcode)
}

// CorpusStats summarises what a CorpusWriter wrote.
type CorpusStats struct {
	Records int
	Groups  int
	Shards  []string
	Index   string
}

// CorpusOption configures a CorpusWriter.
type CorpusOption func(*CorpusWriter)

// WithMaxRowsPerShard sets the shard size limit. A street group larger than the limit
// still goes into one shard on its own.
func WithMaxRowsPerShard(n int) CorpusOption {
	return func(w *CorpusWriter) {
		if n > 0 {
			w.maxRows = n
		}
	}
}

// WithoutRowIDs writes an index without the row_id column; readers then find each
// group by its key.
func WithoutRowIDs() CorpusOption {
	return func(w *CorpusWriter) { w.rowIDs = false }
}

// CorpusWriter packs address records into shard files plus the index that maps every
// street key to its shard group. Records are buffered in memory until Close.
type CorpusWriter struct {
	dir     string
	columns []string
	maxRows int
	rowIDs  bool
	groups  map[string]*corpusGroup
	records int
	closed  bool
}

type corpusGroup struct {
	row     IndexRow
	records []CorpusRecord
}

// NewCorpusWriter writes into dir, creating it if needed. regionColumns are the
// hierarchy columns stored with every address (see Hierarchy.Columns).
func NewCorpusWriter(dir string, regionColumns []string, opts ...CorpusOption) (*CorpusWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating corpus dir %s: %w", dir, err)
	}
	w := &CorpusWriter{
		dir:     dir,
		columns: append([]string(nil), regionColumns...),
		maxRows: DefaultMaxRowsPerShard,
		rowIDs:  true,
		groups:  make(map[string]*corpusGroup),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add buffers one record.
func (w *CorpusWriter) Add(rec CorpusRecord) error {
	if w.closed {
		return fmt.Errorf("%w: corpus writer is closed", ErrInvalidArgument)
	}
	if strings.TrimSpace(rec.FullAddress) == "" {
		return fmt.Errorf("%w: record has no full address", ErrInvalidArgument)
	}
	if !validCoordinate(rec.Latitude, rec.Longitude) {
		return fmt.Errorf("%w: record %q has invalid coordinate (%v, %v)", ErrInvalidArgument, rec.FullAddress, rec.Latitude, rec.Longitude)
	}
	key := rec.Key()
	if key == "" {
		return fmt.Errorf("%w: record %q has no street key", ErrInvalidArgument, rec.FullAddress)
	}
	g, ok := w.groups[key]
	if !ok {
		g = &corpusGroup{row: IndexRow{
			StreetName:     strings.ToUpper(strings.TrimSpace(rec.StreetName)),
			StreetTypeCode: strings.ToUpper(strings.TrimSpace(rec.StreetTypeCode)),
			LocalityName:   strings.ToUpper(strings.TrimSpace(rec.LocalityName)),
			State:          strings.ToUpper(strings.TrimSpace(rec.State)),
			Postcode:       strings.TrimSpace(rec.Postcode),
		}}
		w.groups[key] = g
	}
	g.records = append(g.records, rec)
	w.records++
	return nil
}

func (w *CorpusWriter) shardColumns() []columnar.Column {
	cols := []columnar.Column{
		{Name: ColFullAddress, Kind: columnar.String},
		{Name: ColLatitude, Kind: columnar.Float},
		{Name: ColLongitude, Kind: columnar.Float},
		{Name: ColAddressDetailID, Kind: columnar.String},
	}
	for _, c := range w.columns {
		cols = append(cols, columnar.Column{Name: c, Kind: columnar.String})
	}
	return cols
}

// Close writes the shards and the index. Groups are ordered by state, postcode and
// key so neighbouring streets land in the same shard.
func (w *CorpusWriter) Close() (CorpusStats, error) {
	if w.closed {
		return CorpusStats{}, fmt.Errorf("%w: corpus writer is closed", ErrInvalidArgument)
	}
	w.closed = true
	if len(w.groups) == 0 {
		return CorpusStats{}, fmt.Errorf("%w: no records to write", ErrInvalidArgument)
	}

	keys := make([]string, 0, len(w.groups))
	for k := range w.groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := w.groups[keys[i]].row, w.groups[keys[j]].row
		if a.State != b.State {
			return a.State < b.State
		}
		if a.Postcode != b.Postcode {
			return a.Postcode < b.Postcode
		}
		return keys[i] < keys[j]
	})

	stats := CorpusStats{Records: w.records, Groups: len(keys)}
	cols := w.shardColumns()
	var (
		index   []IndexRow
		pending []columnar.Group
		rows    int
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		name := fmt.Sprintf("shard-%04d.dmp", len(stats.Shards)+1)
		if err := columnar.Write(filepath.Join(w.dir, name), cols, pending); err != nil {
			return fmt.Errorf("writing shard %s: %w", name, err)
		}
		for i := len(index) - len(pending); i < len(index); i++ {
			index[i].FileName = name
		}
		stats.Shards = append(stats.Shards, name)
		pending, rows = nil, 0
		return nil
	}

	for _, k := range keys {
		g := w.groups[k]
		if rows > 0 && rows+len(g.records) > w.maxRows {
			if err := flush(); err != nil {
				return stats, err
			}
		}
		row := g.row
		row.RowID = len(pending)
		row.AddressCount = int64(len(g.records))
		index = append(index, row)
		pending = append(pending, w.group(k, g.records))
		rows += len(g.records)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	stats.Index = IndexFileNames[0]
	if err := w.writeIndex(filepath.Join(w.dir, stats.Index), index); err != nil {
		return stats, err
	}
	return stats, nil
}

func (w *CorpusWriter) group(key string, recs []CorpusRecord) columnar.Group {
	g := columnar.NewGroup(key)
	for _, r := range recs {
		g.Strings[ColFullAddress] = append(g.Strings[ColFullAddress], r.FullAddress)
		g.Floats[ColLatitude] = append(g.Floats[ColLatitude], r.Latitude)
		g.Floats[ColLongitude] = append(g.Floats[ColLongitude], r.Longitude)
		g.Strings[ColAddressDetailID] = append(g.Strings[ColAddressDetailID], r.AddressDetailID)
		for _, c := range w.columns {
			g.Strings[c] = append(g.Strings[c], r.Regions[c])
		}
	}
	return g
}

func (w *CorpusWriter) writeIndex(path string, rows []IndexRow) error {
	cols := []columnar.Column{
		{Name: ColStreetName, Kind: columnar.String},
		{Name: ColStreetTypeCode, Kind: columnar.String},
		{Name: ColLocalityName, Kind: columnar.String},
		{Name: ColState, Kind: columnar.String},
		{Name: ColPostcode, Kind: columnar.String},
		{Name: ColFileName, Kind: columnar.String},
		{Name: ColAddressCount, Kind: columnar.Int},
	}
	if w.rowIDs {
		cols = append(cols, columnar.Column{Name: ColRowID, Kind: columnar.Int})
	}
	g := columnar.NewGroup("index")
	for _, r := range rows {
		g.Strings[ColStreetName] = append(g.Strings[ColStreetName], r.StreetName)
		g.Strings[ColStreetTypeCode] = append(g.Strings[ColStreetTypeCode], r.StreetTypeCode)
		g.Strings[ColLocalityName] = append(g.Strings[ColLocalityName], r.LocalityName)
		g.Strings[ColState] = append(g.Strings[ColState], r.State)
		g.Strings[ColPostcode] = append(g.Strings[ColPostcode], r.Postcode)
		g.Strings[ColFileName] = append(g.Strings[ColFileName], r.FileName)
		g.Ints[ColAddressCount] = append(g.Ints[ColAddressCount], r.AddressCount)
		if w.rowIDs {
			g.Ints[ColRowID] = append(g.Ints[ColRowID], int64(r.RowID))
		}
	}
	if err := columnar.Write(path, cols, []columnar.Group{g}); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}
