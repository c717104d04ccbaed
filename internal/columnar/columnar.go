// Package columnar implements the immutable column-oriented file format used for
// address shards and the shard index.
//
// A file is a gob stream: one Header followed by one Group per row group. The header
// carries the schema and per-group statistics (row count, group key, min/max of every
// float column) so readers can skip groups that cannot match a predicate, the way
// parquet row-group statistics are used. Files are read through a read-only memory map;
// a ".bz2" suffix is decompressed on the fly. Writers always emit uncompressed files;
// compress them afterwards with `bzip2 -k`.
package columnar

import (
	"bytes"
	"compress/bzip2"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// Magic identifies columnar files.
const Magic = "ADDRCOL"

// Version is the current format version.
const Version = 1

// ErrFormat is returned for files that are not valid columnar files.
var ErrFormat = errors.New("columnar: invalid file format")

// Kind is the physical type of a column.
type Kind uint8

const (
	String Kind = iota + 1
	Float
	Int
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Float:
		return "float"
	case Int:
		return "int"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Column describes one column of the schema.
type Column struct {
	Name string
	Kind Kind
}

// GroupStats summarises one row group.
type GroupStats struct {
	Rows int
	Key  string
	Min  map[string]float64
	Max  map[string]float64
}

// Overlaps reports whether the group's [min, max] range of col intersects [lo, hi].
// Groups without statistics for col always overlap.
func (s GroupStats) Overlaps(col string, lo, hi float64) bool {
	mn, okMin := s.Min[col]
	mx, okMax := s.Max[col]
	if !okMin || !okMax {
		return true
	}
	return mx >= lo && mn <= hi
}

// Header is the first value of every file.
type Header struct {
	Magic   string
	Version int
	Columns []Column
	Groups  []GroupStats
}

// Kind returns the kind of col, or 0 if the column does not exist.
func (h Header) Kind(col string) Kind {
	for _, c := range h.Columns {
		if c.Name == col {
			return c.Kind
		}
	}
	return 0
}

// Missing returns the names from want that the schema lacks.
func (h Header) Missing(want ...string) []string {
	var missing []string
	for _, w := range want {
		if h.Kind(w) == 0 {
			missing = append(missing, w)
		}
	}
	return missing
}

// Rows returns the total row count across groups.
func (h Header) Rows() int {
	n := 0
	for _, g := range h.Groups {
		n += g.Rows
	}
	return n
}

// Group holds the values of one row group, keyed by column name.
type Group struct {
	Key     string
	Strings map[string][]string
	Floats  map[string][]float64
	Ints    map[string][]int64
}

// NewGroup returns an empty group with the given key.
func NewGroup(key string) Group {
	return Group{
		Key:     key,
		Strings: make(map[string][]string),
		Floats:  make(map[string][]float64),
		Ints:    make(map[string][]int64),
	}
}

// Len returns the number of rows in the group.
func (g Group) Len() int {
	for _, v := range g.Strings {
		return len(v)
	}
	for _, v := range g.Floats {
		return len(v)
	}
	for _, v := range g.Ints {
		return len(v)
	}
	return 0
}

func (g Group) stats(cols []Column) (GroupStats, error) {
	n := g.Len()
	st := GroupStats{Rows: n, Key: g.Key, Min: make(map[string]float64), Max: make(map[string]float64)}
	for _, c := range cols {
		var got int
		switch c.Kind {
		case String:
			got = len(g.Strings[c.Name])
		case Int:
			got = len(g.Ints[c.Name])
		case Float:
			vals := g.Floats[c.Name]
			got = len(vals)
			if got == 0 {
				break
			}
			mn, mx := math.Inf(1), math.Inf(-1)
			for _, v := range vals {
				mn = math.Min(mn, v)
				mx = math.Max(mx, v)
			}
			st.Min[c.Name], st.Max[c.Name] = mn, mx
		default:
			return st, fmt.Errorf("%w: column %q has unknown kind %d", ErrFormat, c.Name, c.Kind)
		}
		if got != n {
			return st, fmt.Errorf("%w: group %q column %q has %d rows, want %d", ErrFormat, g.Key, c.Name, got, n)
		}
	}
	return st, nil
}

// Write stores groups under cols at path. The file is written to a temporary name in
// the same directory and renamed into place, so readers never observe a partial file.
func Write(path string, cols []Column, groups []Group) (err error) {
	hdr := Header{Magic: Magic, Version: Version, Columns: cols, Groups: make([]GroupStats, len(groups))}
	for i, g := range groups {
		if hdr.Groups[i], err = g.stats(cols); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(hdr); err != nil {
		return fmt.Errorf("encoding header of %s: %w", path, err)
	}
	for _, g := range groups {
		if err := enc.Encode(g); err != nil {
			return fmt.Errorf("encoding group %q of %s: %w", g.Key, path, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	success = true
	return nil
}

// File is a decoded file. Groups not selected by the reader's filter are left empty.
type File struct {
	Header Header
	Groups []Group
	loaded []bool
}

// Loaded reports whether group i was decoded.
func (f *File) Loaded(i int) bool { return i >= 0 && i < len(f.loaded) && f.loaded[i] }

// ReadHeader decodes only the header of the file at path.
func ReadHeader(path string) (Header, error) {
	var hdr Header
	err := withDecoder(path, func(dec *gob.Decoder) error {
		var err error
		hdr, err = decodeHeader(dec, path)
		return err
	})
	return hdr, err
}

// Read decodes the file at path. want selects the groups to keep; nil keeps all.
func Read(path string, want func(i int, s GroupStats) bool) (*File, error) {
	f := &File{}
	err := withDecoder(path, func(dec *gob.Decoder) error {
		hdr, err := decodeHeader(dec, path)
		if err != nil {
			return err
		}
		f.Header = hdr
		f.Groups = make([]Group, len(hdr.Groups))
		f.loaded = make([]bool, len(hdr.Groups))
		last := -1
		for i, st := range hdr.Groups {
			if want == nil || want(i, st) {
				last = i
			}
		}
		// Groups are stored in order, so nothing past the last wanted one is decoded.
		for i := 0; i <= last; i++ {
			var g Group
			if err := dec.Decode(&g); err != nil {
				return fmt.Errorf("%w: decoding group %d of %s: %v", ErrFormat, i, path, err)
			}
			if want == nil || want(i, hdr.Groups[i]) {
				f.Groups[i] = g
				f.loaded[i] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func decodeHeader(dec *gob.Decoder, path string) (Header, error) {
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return hdr, fmt.Errorf("%w: decoding header of %s: %v", ErrFormat, path, err)
	}
	if hdr.Magic != Magic {
		return hdr, fmt.Errorf("%w: %s has magic %q", ErrFormat, path, hdr.Magic)
	}
	if hdr.Version != Version {
		return hdr, fmt.Errorf("%w: %s has version %d, want %d", ErrFormat, path, hdr.Version, Version)
	}
	return hdr, nil
}

// withDecoder memory-maps path read-only and hands a gob decoder over it to fn.
// The mapping is released when fn returns; gob copies every decoded value.
func withDecoder(path string, fn func(*gob.Decoder) error) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	fi, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrFormat, path)
	}

	m, err := mmap.Map(fh, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", path, err)
	}
	defer m.Unmap()

	var r io.Reader = bytes.NewReader(m)
	if strings.HasSuffix(path, ".bz2") {
		r = bzip2.NewReader(r)
	}
	return fn(gob.NewDecoder(r))
}
