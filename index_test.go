package addrmatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/andreiashu/addrmatcher/internal/columnar"
)

func TestIndexRowKey(t *testing.T) {
	r := IndexRow{StreetName: "st georges ", StreetTypeCode: "TERRACE", LocalityName: "Perth", State: "wa", Postcode: "6000"}
	if got, want := r.Key(), "ST GEORGES TERRACE PERTH WA 6000"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if got := MakeKey("", "  KING", "", "QLD"); got != "KING QLD" {
		t.Errorf("MakeKey() = %q, want %q", got, "KING QLD")
	}
}

func TestShardIndexLookup(t *testing.T) {
	idx := cleaningIndex()

	tests := []struct {
		key      string
		wantOK   bool
		wantFile string
		wantRow  int
	}{
		{"KING STREET BUDERIM QLD 4556", true, "shard-0002.dmp", 0},
		{"  king   street mooloolaba qld 4557 ", true, "shard-0002.dmp", 1},
		{"GEELONG ROAD BRAYBROOK VIC 3019", true, "shard-0001.dmp", 2},
		{"KING STREET BUDERIM QLD 4557", false, "", 0},
		{"", false, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			row, ok := idx.Lookup(tt.key)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.key, ok, tt.wantOK)
			}
			if ok && (row.FileName != tt.wantFile || row.RowID != tt.wantRow) {
				t.Errorf("Lookup(%q) = %s#%d, want %s#%d", tt.key, row.FileName, row.RowID, tt.wantFile, tt.wantRow)
			}
		})
	}
}

func TestShardIndexInAreaAndFiles(t *testing.T) {
	idx := cleaningIndex()
	if got := len(idx.InArea("vic", "3019")); got != 4 {
		t.Errorf("len(InArea(VIC, 3019)) = %d, want 4", got)
	}
	if got := idx.InArea("NSW", "2000"); len(got) != 0 {
		t.Errorf("InArea(NSW, 2000) = %v, want none", got)
	}
	files := idx.Files()
	if len(files) != 2 || files[0] != "shard-0001.dmp" || files[1] != "shard-0002.dmp" {
		t.Errorf("Files() = %v", files)
	}
	if idx.Len() != 7 || idx.Row(5).StreetName != "KING" {
		t.Errorf("Len() = %d, Row(5) = %+v", idx.Len(), idx.Row(5))
	}
}

func TestShardIndexNearest(t *testing.T) {
	idx := cleaningIndex()
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		algo Algorithm
		want string
	}{
		{"misspelt locality", "DARNLEY STREET BRAYBROOKT VIC 3019", Levenshtein, "DARNLEY STREET BRAYBROOK VIC 3019"},
		{"other postcode", "DARNLEY STREET SUNSHINE VIC 3020", Jaro, "DARNLEY STREET SUNSHINE VIC 3020"},
		{"abbreviated", "KING ST MOOLOOLABA QLD 4557", JaroWinkler, "KING STREET MOOLOOLABA QLD 4557"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, score, err := idx.Nearest(ctx, tt.text, tt.algo, 2)
			if err != nil {
				t.Fatalf("Nearest() error = %v", err)
			}
			if row.Key() != tt.want {
				t.Errorf("Nearest(%q) = %q (score %.3f), want %q", tt.text, row.Key(), score, tt.want)
			}
			if score <= 0 || score > 1 {
				t.Errorf("score = %v, want (0, 1]", score)
			}
		})
	}

	if _, _, err := idx.Nearest(ctx, "X", Algorithm(9), 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Nearest(unknown algorithm) error = %v, want ErrInvalidArgument", err)
	}
	if _, _, err := NewShardIndex(nil).Nearest(ctx, "X", Levenshtein, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Nearest(empty index) error = %v, want ErrNotFound", err)
	}
}

func TestShardIndexNearestTieGoesToFirstRow(t *testing.T) {
	rows := make([]IndexRow, 10000)
	for i := range rows {
		rows[i] = IndexRow{
			StreetName:     fmt.Sprintf("STREET%05d", i),
			StreetTypeCode: "ROAD",
			LocalityName:   "SOMEWHERE",
			State:          "NSW",
			Postcode:       "2000",
			FileName:       "a.dmp",
			RowID:          i,
		}
	}
	target := rows[5000]
	target.FileName = "first.dmp"
	rows[5000] = target
	target.FileName = "second.dmp"
	rows[9500] = target

	idx := NewShardIndex(rows)
	for _, workers := range []int{1, 3, 8} {
		row, score, err := idx.Nearest(context.Background(), target.Key(), Levenshtein, workers)
		if err != nil {
			t.Fatal(err)
		}
		if row.FileName != "first.dmp" || score != 1 {
			t.Errorf("workers=%d: Nearest() = %s (score %v), want first.dmp with score 1", workers, row.FileName, score)
		}
	}
}

func TestShardIndexNearestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := cleaningIndex().Nearest(ctx, "KING", Levenshtein, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Nearest(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestLoadShardIndex(t *testing.T) {
	h, err := newTestHierarchy()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if _, err := writeTestCorpus(dir, h); err != nil {
		t.Fatal(err)
	}

	path, err := FindIndexFile(dir)
	if err != nil {
		t.Fatalf("FindIndexFile() error = %v", err)
	}
	idx, err := LoadShardIndex(path)
	if err != nil {
		t.Fatalf("LoadShardIndex() error = %v", err)
	}
	if idx.Len() != 7 {
		t.Errorf("Len() = %d, want 7 street groups", idx.Len())
	}
	row, ok := idx.Lookup("GEORGINA CRESCENT KALEEN ACT 2617")
	if !ok {
		t.Fatal("GEORGINA CRESCENT not indexed")
	}
	if row.AddressCount != 4 || row.RowID < 0 || row.FileName == "" {
		t.Errorf("row = %+v", row)
	}
}

func TestLoadShardIndexErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := FindIndexFile(dir); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindIndexFile(empty dir) error = %v, want ErrNotFound", err)
	}
	if _, err := LoadShardIndex(filepath.Join(dir, "index.dmp")); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadShardIndex(missing) error = %v, want ErrNotFound", err)
	}

	garbage := filepath.Join(dir, "garbage.dmp")
	if err := os.WriteFile(garbage, []byte("not an index"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadShardIndex(garbage); !errors.Is(err, ErrSchema) {
		t.Errorf("LoadShardIndex(garbage) error = %v, want ErrSchema", err)
	}

	// An index without file_name cannot locate shards.
	cols := []columnar.Column{
		{Name: ColStreetName, Kind: columnar.String},
		{Name: ColStreetTypeCode, Kind: columnar.String},
		{Name: ColLocalityName, Kind: columnar.String},
		{Name: ColState, Kind: columnar.String},
		{Name: ColPostcode, Kind: columnar.String},
		{Name: ColAddressCount, Kind: columnar.Int},
	}
	g := columnar.NewGroup("index")
	g.Strings[ColStreetName] = []string{"KING"}
	g.Strings[ColStreetTypeCode] = []string{"STREET"}
	g.Strings[ColLocalityName] = []string{"BUDERIM"}
	g.Strings[ColState] = []string{"QLD"}
	g.Strings[ColPostcode] = []string{"4556"}
	g.Ints[ColAddressCount] = []int64{3}
	partial := filepath.Join(dir, "partial.dmp")
	if err := columnar.Write(partial, cols, []columnar.Group{g}); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadShardIndex(partial); !errors.Is(err, ErrSchema) {
		t.Errorf("LoadShardIndex(no file_name) error = %v, want ErrSchema", err)
	}
}
