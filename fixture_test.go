package addrmatcher

import "fmt"

var (
	tCountry = MustRegion("Country", "National", "")
	tState   = MustRegion("State", "State", "STATE")
	tLGA     = MustRegion("Local Government Area", "LGA", "LGA_NAME_2016")
	tSuburb  = MustRegion("Suburb", "Suburb", "SSC_NAME_2016")
	tSA4     = MustRegion("Statistical Area 4", "SA4", "SA4_NAME_2016")
	tSA3     = MustRegion("Statistical Area 3", "SA3", "SA3_NAME_2016")
	tSA2     = MustRegion("Statistical Area 2", "SA2", "SA2_NAME_2016")
	tSA1     = MustRegion("Statistical Area 1", "SA1", "SA1_7DIGITCODE_2016")
	tMB      = MustRegion("Meshblock", "MB", "MB_CODE_2016")
)

// newTestHierarchy builds the Australian hierarchy: an administrative branch and a
// statistical branch under State, both ending in Meshblock.
func newTestHierarchy() (*Hierarchy, error) {
	h, err := NewHierarchy(tCountry, "Australia")
	if err != nil {
		return nil, err
	}
	for _, e := range [][2]Region{
		{tState, tCountry},
		{tLGA, tState},
		{tSuburb, tLGA},
		{tMB, tSuburb},
		{tSA4, tState},
		{tSA3, tSA4},
		{tSA2, tSA3},
		{tSA1, tSA2},
		{tMB, tSA1},
	} {
		if err := h.AddRegion(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	if err := h.AddType(tLGA, "Administrative", ""); err != nil {
		return nil, err
	}
	if err := h.AddType(tSA4, "ASGS", "Australian Statistical Geography Standard"); err != nil {
		return nil, err
	}
	if err := h.SetCoordinateBoundary(-43.58301104, -9.23000371, 96.82159219, 167.99384663); err != nil {
		return nil, err
	}
	return h, nil
}

type fixtureAddress struct {
	full                                string
	street, streetType, locality, state string
	postcode, lga, suburb, sa2          string
	lat, lon                            float64
}

var fixtureAddresses = []fixtureAddress{
	{"UNIT 410, 1 GEORGINA CRESCENT, KALEEN ACT 2617", "GEORGINA", "CRESCENT", "KALEEN", "ACT", "2617", "Unincorporated ACT", "Kaleen", "Kaleen", -35.2291, 149.1067},
	{"UNIT 411, 1 GEORGINA CRESCENT, KALEEN ACT 2617", "GEORGINA", "CRESCENT", "KALEEN", "ACT", "2617", "Unincorporated ACT", "Kaleen", "Kaleen", -35.2291, 149.1067},
	{"3 GEORGINA CRESCENT, KALEEN ACT 2617", "GEORGINA", "CRESCENT", "KALEEN", "ACT", "2617", "Unincorporated ACT", "Kaleen", "Kaleen", -35.2295, 149.1071},
	{"5 GEORGINA CRESCENT, KALEEN ACT 2617", "GEORGINA", "CRESCENT", "KALEEN", "ACT", "2617", "Unincorporated ACT", "Kaleen", "Kaleen", -35.2298, 149.1075},
	{"2885 DARNLEY STREET, BRAYBROOK VIC 3019", "DARNLEY", "STREET", "BRAYBROOK", "VIC", "3019", "Maribyrnong (C)", "Braybrook", "Braybrook", -37.7866, 144.8555},
	{"2887 DARNLEY STREET, BRAYBROOK VIC 3019", "DARNLEY", "STREET", "BRAYBROOK", "VIC", "3019", "Maribyrnong (C)", "Braybrook", "Braybrook", -37.7867, 144.8556},
	{"12 DARNLEY STREET, BRAYBROOK VIC 3019", "DARNLEY", "STREET", "BRAYBROOK", "VIC", "3019", "Maribyrnong (C)", "Braybrook", "Braybrook", -37.7870, 144.8560},
	{"1 ASHLEY STREET, BRAYBROOK VIC 3019", "ASHLEY", "STREET", "BRAYBROOK", "VIC", "3019", "Maribyrnong (C)", "Braybrook", "Braybrook", -37.7840, 144.8530},
	{"14 KING STREET, BUDERIM QLD 4556", "KING", "STREET", "BUDERIM", "QLD", "4556", "Sunshine Coast (R)", "Buderim", "Buderim - South", -26.6573, 153.0950},
	{"16 KING STREET, BUDERIM QLD 4556", "KING", "STREET", "BUDERIM", "QLD", "4556", "Sunshine Coast (R)", "Buderim", "Buderim - South", -26.6575, 153.0953},
	{"18 KING STREET, BUDERIM QLD 4556", "KING", "STREET", "BUDERIM", "QLD", "4556", "Sunshine Coast (R)", "Buderim", "Buderim - South", -26.6578, 153.0957},
	{"2 BURNETT STREET, BUDERIM QLD 4556", "BURNETT", "STREET", "BUDERIM", "QLD", "4556", "Sunshine Coast (R)", "Buderim", "Buderim - North", -26.6850, 153.0570},
	{"9 CARLISLE STREET, ST KILDA VIC 3182", "CARLISLE", "STREET", "ST KILDA", "VIC", "3182", "Port Phillip (C)", "St Kilda", "St Kilda", -37.8677, 144.9810},
	{"100 ST GEORGES TERRACE, PERTH WA 6000", "ST GEORGES", "TERRACE", "PERTH", "WA", "6000", "Perth (C)", "Perth (WA)", "Perth City", -31.9550, 115.8590},
}

func (a fixtureAddress) record(i int) CorpusRecord {
	return CorpusRecord{
		FullAddress:     a.full,
		Latitude:        a.lat,
		Longitude:       a.lon,
		AddressDetailID: fmt.Sprintf("GAACT%09d", 700000000+i),
		StreetName:      a.street,
		StreetTypeCode:  a.streetType,
		LocalityName:    a.locality,
		State:           a.state,
		Postcode:        a.postcode,
		Regions: map[string]string{
			"STATE":               a.state,
			"LGA_NAME_2016":       a.lga,
			"SSC_NAME_2016":       a.suburb,
			"SA4_NAME_2016":       a.state + " - SA4",
			"SA3_NAME_2016":       a.lga + " - SA3",
			"SA2_NAME_2016":       a.sa2,
			"SA1_7DIGITCODE_2016": fmt.Sprintf("%07d", 8100000+i),
			"MB_CODE_2016":        fmt.Sprintf("%011d", 80000000000+int64(i)),
		},
	}
}

// writeTestCorpus writes every fixture address into dir using the columns of h.
func writeTestCorpus(dir string, h *Hierarchy, opts ...CorpusOption) (CorpusStats, error) {
	w, err := NewCorpusWriter(dir, h.Columns(), opts...)
	if err != nil {
		return CorpusStats{}, err
	}
	for i, a := range fixtureAddresses {
		if err := w.Add(a.record(i)); err != nil {
			return CorpusStats{}, err
		}
	}
	return w.Close()
}
