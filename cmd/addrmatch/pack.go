package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andreiashu/addrmatcher"
)

// Source columns of the flattened G-NAF extract.
const (
	srcAddressDetailPID = "ADDRESS_DETAIL_PID"
	srcFullAddress      = "FULL_ADDRESS"
	srcLatitude         = "LATITUDE"
	srcLongitude        = "LONGITUDE"
	srcStreetName       = "STREET_NAME"
	srcStreetTypeCode   = "STREET_TYPE_CODE"
	srcLocalityName     = "LOCALITY_NAME"
	srcState            = "STATE"
	srcPostcode         = "POSTCODE"
)

var requiredSourceColumns = []string{
	srcFullAddress, srcLatitude, srcLongitude, srcStreetName, srcLocalityName, srcState, srcPostcode,
}

func createPackCmd(g *globalFlags, log *zap.Logger) *cobra.Command {
	var (
		in        string
		out       string
		delimiter string
		maxRows   int
		noRowIDs  bool
	)
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Pack a flattened address extract into shard files and an index",
		Long: `Read a delimited address extract with a header row and write the shard
files and index that the address and coords commands query. Every hierarchy
column must be present in the extract.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hierarchyFor(g.country)
			if err != nil {
				return err
			}
			delim, size := utf8.DecodeRuneInString(delimiter)
			if size == 0 || size != len(delimiter) {
				return fmt.Errorf("%w: delimiter must be a single character, got %q", addrmatcher.ErrInvalidArgument, delimiter)
			}
			if out == "" {
				out = g.dataDir
			}
			if out == "" {
				out = filepath.Join(".", "data", h.Name())
			}

			fh, err := os.Open(in)
			if err != nil {
				return fmt.Errorf("opening extract: %w", err)
			}
			defer fh.Close()

			var opts []addrmatcher.CorpusOption
			if maxRows > 0 {
				opts = append(opts, addrmatcher.WithMaxRowsPerShard(maxRows))
			}
			if noRowIDs {
				opts = append(opts, addrmatcher.WithoutRowIDs())
			}
			w, err := addrmatcher.NewCorpusWriter(out, h.Columns(), opts...)
			if err != nil {
				return err
			}
			read, skipped, err := readExtract(fh, delim, h.Columns(), w, log)
			if err != nil {
				return err
			}
			stats, err := w.Close()
			if err != nil {
				return err
			}
			log.Info("corpus packed",
				zap.String("dir", out),
				zap.Int("read", read),
				zap.Int("skipped", skipped),
				zap.Int("groups", stats.Groups),
				zap.Int("shards", len(stats.Shards)))
			fmt.Fprintf(cmd.OutOrStdout(), "Packed %d addresses in %d streets into %d shards under %s (%d rows skipped).\n",
				stats.Records, stats.Groups, len(stats.Shards), out, skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Extract to read")
	cmd.Flags().StringVar(&out, "out", "", "Output directory (default --data-dir)")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "Field delimiter, e.g. '|' for G-NAF psv files")
	cmd.Flags().IntVar(&maxRows, "max-rows", addrmatcher.DefaultMaxRowsPerShard, "Addresses per shard file")
	cmd.Flags().BoolVar(&noRowIDs, "no-row-ids", false, "Omit row ids from the index; readers find groups by key")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

// readExtract feeds every row of r into w. Rows that fail to parse or that w rejects
// are logged and skipped; a header missing a required or hierarchy column is an
// ErrSchema error.
func readExtract(r io.Reader, delim rune, regionColumns []string, w *addrmatcher.CorpusWriter, log *zap.Logger) (read, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, want := range append(append([]string(nil), requiredSourceColumns...), regionColumns...) {
		if _, ok := col[want]; !ok {
			return 0, 0, fmt.Errorf("%w: extract has no %s column", addrmatcher.ErrSchema, want)
		}
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return read, skipped, nil
		}
		read++
		var perr *csv.ParseError
		if err != nil && !errors.As(err, &perr) {
			return read, skipped, fmt.Errorf("reading line %d: %w", line, err)
		}
		if err != nil {
			log.Warn("skipping unreadable row", zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}
		lat, latErr := strconv.ParseFloat(get(rec, srcLatitude), 64)
		lon, lonErr := strconv.ParseFloat(get(rec, srcLongitude), 64)
		if latErr != nil || lonErr != nil {
			log.Warn("skipping row without coordinates", zap.Int("line", line))
			skipped++
			continue
		}
		cr := addrmatcher.CorpusRecord{
			FullAddress:     get(rec, srcFullAddress),
			Latitude:        lat,
			Longitude:       lon,
			AddressDetailID: get(rec, srcAddressDetailPID),
			StreetName:      get(rec, srcStreetName),
			StreetTypeCode:  get(rec, srcStreetTypeCode),
			LocalityName:    get(rec, srcLocalityName),
			State:           get(rec, srcState),
			Postcode:        get(rec, srcPostcode),
			Regions:         make(map[string]string, len(regionColumns)),
		}
		for _, c := range regionColumns {
			cr.Regions[c] = get(rec, c)
		}
		if err := w.Add(cr); err != nil {
			log.Warn("skipping row", zap.Int("line", line), zap.Error(err))
			skipped++
		}
	}
}
