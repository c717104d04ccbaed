package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andreiashu/addrmatcher"
)

type regionFlags struct {
	names    []string
	name     string
	operator string
}

func (f *regionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.names, "regions", nil, "Regions to report, by name, short name or column")
	cmd.Flags().StringVar(&f.name, "name", "", "Reference region for --operator")
	cmd.Flags().StringVar(&f.operator, "operator", "", "at-or-above or at-or-below the --name region")
}

func (f *regionFlags) query() (addrmatcher.RegionQuery, error) {
	op, err := addrmatcher.ParseOperator(f.operator)
	if err != nil {
		return addrmatcher.RegionQuery{}, err
	}
	return addrmatcher.RegionQuery{Names: f.names, Name: f.name, Operator: op}, nil
}

// resultJSON is the printed form of one match.
type resultJSON struct {
	Query           string            `json:"query"`
	FullAddress     string            `json:"full_address"`
	Score           float64           `json:"score,omitempty"`
	Latitude        float64           `json:"latitude,omitempty"`
	Longitude       float64           `json:"longitude,omitempty"`
	AddressDetailID string            `json:"address_detail_id,omitempty"`
	DistanceKm      *float64          `json:"distance_km,omitempty"`
	Regions         map[string]string `json:"regions"`
}

func regionMap(values []addrmatcher.RegionValue) map[string]string {
	out := make(map[string]string, len(values))
	for _, v := range values {
		out[v.Region.ShortName()] = v.Value
	}
	return out
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func createAddressCmd(g *globalFlags, log *zap.Logger) *cobra.Command {
	var (
		threshold float64
		top       int
		algorithm string
		cleaning  bool
		stdin     bool
		rf        regionFlags
	)
	cmd := &cobra.Command{
		Use:   "address [ADDRESS...]",
		Short: "Match free-text addresses to the reference corpus",
		Long: `Match each address argument, or each line of standard input with --stdin,
and print one JSON object per match.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdin && len(args) == 0 {
				return fmt.Errorf("%w: no address given (pass arguments or --stdin)", addrmatcher.ErrInvalidArgument)
			}
			algo, err := addrmatcher.ParseAlgorithm(algorithm)
			if err != nil {
				return err
			}
			q, err := rf.query()
			if err != nil {
				return err
			}
			m, err := openMatcher(g, log)
			if err != nil {
				return err
			}
			opts := addrmatcher.AddressOptions{
				Threshold: threshold,
				TopN:      top,
				Regions:   q,
				Algorithm: algo,
				Cleaning:  cleaning,
			}
			ctx, cancel := signalContext()
			defer cancel()

			enc := json.NewEncoder(cmd.OutOrStdout())
			match := func(text string) error {
				matches, err := m.MatchAddress(ctx, text, opts)
				if err != nil {
					return err
				}
				for _, r := range matches {
					if err := enc.Encode(resultJSON{Query: text, FullAddress: r.FullAddress, Score: r.Score, Regions: regionMap(r.Regions)}); err != nil {
						return err
					}
				}
				return nil
			}
			if !stdin {
				for _, a := range args {
					if err := match(a); err != nil {
						return err
					}
				}
				return nil
			}
			return eachLine(cmd.InOrStdin(), func(line string) {
				if err := match(line); err != nil {
					log.Warn("address not matched", zap.String("address", line), zap.Error(err))
				}
			})
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", addrmatcher.DefaultThreshold, "Minimum similarity score in (0, 1]")
	cmd.Flags().IntVar(&top, "top", 1, "Maximum matches per address")
	cmd.Flags().StringVar(&algorithm, "algorithm", "levenshtein", "levenshtein, jaro or jaro-winkler")
	cmd.Flags().BoolVar(&cleaning, "clean", false, "Correct locality and street names against the index first")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "Read one address per line from standard input")
	rf.bind(cmd)
	return cmd
}

func eachLine(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			fn(line)
		}
	}
	return sc.Err()
}

func createCoordsCmd(g *globalFlags, log *zap.Logger) *cobra.Command {
	var (
		n      int
		radius float64
		rf     regionFlags
	)
	cmd := &cobra.Command{
		Use:   "coords LAT LON",
		Short: "Find the addresses nearest to a coordinate",
		Long:  `Find the nearest addresses to LAT LON. Put "--" before negative latitudes.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("%w: latitude %q", addrmatcher.ErrInvalidArgument, args[0])
			}
			lon, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("%w: longitude %q", addrmatcher.ErrInvalidArgument, args[1])
			}
			q, err := rf.query()
			if err != nil {
				return err
			}
			m, err := openMatcher(g, log)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			matches, err := m.MatchCoordinates(ctx, lat, lon, addrmatcher.CoordinateOptions{N: n, RadiusKm: radius, Regions: q})
			if err != nil {
				return err
			}
			query := args[0] + "," + args[1]
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range matches {
				d := r.DistanceKm
				if err := enc.Encode(resultJSON{
					Query:           query,
					FullAddress:     r.FullAddress,
					Latitude:        r.Latitude,
					Longitude:       r.Longitude,
					AddressDetailID: r.AddressDetailID,
					DistanceKm:      &d,
					Regions:         regionMap(r.Regions),
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "num", "n", 1, "Nearest addresses to return")
	cmd.Flags().Float64Var(&radius, "radius-km", addrmatcher.DefaultRadiusKm, "Initial search radius in km")
	rf.bind(cmd)
	return cmd
}

func createRegionsCmd(g *globalFlags) *cobra.Command {
	var (
		attr string
		rf   regionFlags
	)
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List hierarchy regions",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hierarchyFor(g.country)
			if err != nil {
				return err
			}
			q, err := rf.query()
			if err != nil {
				return err
			}
			values, err := h.RegionAttributes(q, addrmatcher.Attribute(attr))
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&attr, "attribute", string(addrmatcher.AttributeName), "name, short_name or col_name")
	rf.bind(cmd)
	return cmd
}
