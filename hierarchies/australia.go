// Package hierarchies defines the region hierarchies of supported countries.
package hierarchies

import (
	"fmt"

	"github.com/andreiashu/addrmatcher"
)

// Australian regions, with the 2016 ASGS column names of the G-NAF derived corpus.
var (
	AUSCountry   = addrmatcher.MustRegion("Country", "National", "")
	AUSState     = addrmatcher.MustRegion("State", "State", "STATE")
	AUSLGA       = addrmatcher.MustRegion("Local Government Area", "LGA", "LGA_NAME_2016")
	AUSSuburb    = addrmatcher.MustRegion("Suburb", "Suburb", "SSC_NAME_2016")
	AUSSA4       = addrmatcher.MustRegion("Statistical Area 4", "SA4", "SA4_NAME_2016")
	AUSSA3       = addrmatcher.MustRegion("Statistical Area 3", "SA3", "SA3_NAME_2016")
	AUSSA2       = addrmatcher.MustRegion("Statistical Area 2", "SA2", "SA2_NAME_2016")
	AUSSA1       = addrmatcher.MustRegion("Statistical Area 1", "SA1", "SA1_7DIGITCODE_2016")
	AUSMeshblock = addrmatcher.MustRegion("Meshblock", "MB", "MB_CODE_2016")
)

// AUSBoundary is the box spanning every G-NAF address.
var AUSBoundary = addrmatcher.Boundary{
	LatMin: -43.58301104,
	LatMax: -9.23000371,
	LonMin: 96.82159219,
	LonMax: 167.99384663,
}

// Australia returns a new hierarchy with two branches under each state: the
// administrative one (LGA, suburb, meshblock) and the statistical one (SA4 to SA1,
// meshblock). Meshblocks sit under both.
func Australia() (*addrmatcher.Hierarchy, error) {
	h, err := addrmatcher.NewHierarchy(AUSCountry, "Australia")
	if err != nil {
		return nil, err
	}
	edges := []struct{ region, parent addrmatcher.Region }{
		{AUSState, AUSCountry},
		{AUSLGA, AUSState},
		{AUSSuburb, AUSLGA},
		{AUSMeshblock, AUSSuburb},
		{AUSSA4, AUSState},
		{AUSSA3, AUSSA4},
		{AUSSA2, AUSSA3},
		{AUSSA1, AUSSA2},
		{AUSMeshblock, AUSSA1},
	}
	for _, e := range edges {
		if err := h.AddRegion(e.region, e.parent); err != nil {
			return nil, fmt.Errorf("adding %s under %s: %w", e.region, e.parent, err)
		}
	}
	if err := h.AddType(AUSLGA, "Administrative", ""); err != nil {
		return nil, err
	}
	if err := h.AddType(AUSSA4, "ASGS", "Australian Statistical Geography Standard"); err != nil {
		return nil, err
	}
	b := AUSBoundary
	if err := h.SetCoordinateBoundary(b.LatMin, b.LatMax, b.LonMin, b.LonMax); err != nil {
		return nil, err
	}
	return h, nil
}
