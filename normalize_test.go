package addrmatcher

import "testing"

func TestStripLeadingNumericTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unit and street number", "UNIT 410 GEORGINA CRESCENT KALEEN ACT 2617", "GEORGINA CRESCENT KALEEN ACT 2617"},
		{"house number with commas", "2885 Darnley Street, Braybrookt, VIC 3019", "DARNLEY STREET BRAYBROOKT VIC 3019"},
		{"unit slash number", "4/12 Smith St, Kaleen ACT 2617", "SMITH STREET KALEEN ACT 2617"},
		{"number range", "12-14 Smith Rd Kaleen ACT 2617", "SMITH ROAD KALEEN ACT 2617"},
		{"letter suffix", "12A Main Ave, Buderim QLD 4556", "MAIN AVENUE BUDERIM QLD 4556"},
		{"lot and number", "LOT 5 14 KING ST BUDERIM QLD 4556", "KING STREET BUDERIM QLD 4556"},
		{"level and unit", "Level 3, Unit 7, 1 George Cres", "GEORGE CRESCENT"},
		{"leading saint kept", "100 St Georges Tce, Perth WA 6000", "ST GEORGES TERRACE PERTH WA 6000"},
		{"saint locality kept", "9 Carlisle St, St Kilda VIC 3182", "CARLISLE STREET ST KILDA VIC 3182"},
		{"already canonical", "GEORGINA CRESCENT KALEEN ACT 2617", "GEORGINA CRESCENT KALEEN ACT 2617"},
		{"whitespace collapsed", "  14   King   St  ", "KING STREET"},
		{"trailing postcode untouched", "KING STREET BUDERIM QLD 4556", "KING STREET BUDERIM QLD 4556"},
		{"state codes untouched", "1 MAIN RD SA 5000", "MAIN ROAD SA 5000"},
		{"empty", "", ""},
		{"only number", "42", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripLeadingNumericTokens(tt.in); got != tt.want {
				t.Errorf("StripLeadingNumericTokens(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripLeadingNumericTokensIdempotent(t *testing.T) {
	inputs := []string{
		"UNIT 410 GEORGINA CRESCENT KALEEN ACT 2617",
		"2885 Darnley Street, Braybrookt, VIC 3019",
		"9 Carlisle St, St Kilda VIC 3182",
		"St Kilda Rd, Melbourne VIC 3004",
		"Shop 3, 12-14 The Esp, St Kilda VIC 3182",
		"U 5 7 CNR ST AND RD",
		"1 ST ST ST",
		"apt 4b 22 pde",
	}
	for _, a := range fixtureAddresses {
		inputs = append(inputs, a.full)
	}
	for _, in := range inputs {
		once := StripLeadingNumericTokens(in)
		if twice := StripLeadingNumericTokens(once); twice != once {
			t.Errorf("not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestStreetTypesAreFixedPoint(t *testing.T) {
	for abbr, full := range StreetTypes {
		if _, ok := StreetTypes[full]; ok && StreetTypes[full] != full {
			t.Errorf("%s -> %s expands again to %s", abbr, full, StreetTypes[full])
		}
		for _, state := range StateCodes {
			if abbr == state {
				t.Errorf("street type %s shadows state code", abbr)
			}
		}
	}
}

func cleaningIndex() *ShardIndex {
	return NewShardIndex([]IndexRow{
		{StreetName: "DARNLEY", StreetTypeCode: "STREET", LocalityName: "BRAYBROOK", State: "VIC", Postcode: "3019", FileName: "shard-0001.dmp"},
		{StreetName: "ASHLEY", StreetTypeCode: "STREET", LocalityName: "BRAYBROOK", State: "VIC", Postcode: "3019", FileName: "shard-0001.dmp", RowID: 1},
		{StreetName: "GEELONG", StreetTypeCode: "ROAD", LocalityName: "BRAYBROOK", State: "VIC", Postcode: "3019", FileName: "shard-0001.dmp", RowID: 2},
		{StreetName: "GEELONG", StreetTypeCode: "STREET", LocalityName: "BRAYBROOK", State: "VIC", Postcode: "3019", FileName: "shard-0001.dmp", RowID: 3},
		{StreetName: "DARNLEY", StreetTypeCode: "STREET", LocalityName: "SUNSHINE", State: "VIC", Postcode: "3020", FileName: "shard-0001.dmp", RowID: 4},
		{StreetName: "KING", StreetTypeCode: "STREET", LocalityName: "BUDERIM", State: "QLD", Postcode: "4556", FileName: "shard-0002.dmp"},
		{StreetName: "KING", StreetTypeCode: "STREET", LocalityName: "MOOLOOLABA", State: "QLD", Postcode: "4557", FileName: "shard-0002.dmp", RowID: 1},
	})
}

func TestCleanWithIndex(t *testing.T) {
	idx := cleaningIndex()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"locality with trailing letter", "DARNLEY STREET BRAYBROOKT VIC 3019", "DARNLEY STREET BRAYBROOK VIC 3019"},
		{"misspelt locality", "DARNLEY STREET BRAYBROK VIC 3019", "DARNLEY STREET BRAYBROOK VIC 3019"},
		{"street type abbreviated in input", "DARNLEY ST BRAYBROOK VIC 3019", "DARNLEY STREET BRAYBROOK VIC 3019"},
		{"locality missing, street unique in area", "ASHLEY STREET VIC 3019", "ASHLEY STREET BRAYBROOK VIC 3019"},
		{"shared street name resolved by type", "GEELONG ROAD BRAYBROOK VIC 3019", "GEELONG ROAD BRAYBROOK VIC 3019"},
		{"shared street name without type", "GEELONG BRAYBROOK VIC 3019", "GEELONG BRAYBROOK VIC 3019"},
		{"no state and postcode", "DARNLEY STREET BRAYBROOK", "DARNLEY STREET BRAYBROOK"},
		{"unknown area", "DARNLEY STREET BRAYBROOK NSW 2000", "DARNLEY STREET BRAYBROOK NSW 2000"},
		{"unknown street", "SMITH STREET BRAYBROOK VIC 3019", "SMITH STREET BRAYBROOK VIC 3019"},
		{"lower case input", "king street buderim qld 4556", "KING STREET BUDERIM QLD 4556"},
		{"only state and postcode", "VIC 3019", "VIC 3019"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanWithIndex(tt.in, idx); got != tt.want {
				t.Errorf("CleanWithIndex(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if got := CleanWithIndex("DARNLEY STREET VIC 3019", nil); got != "DARNLEY STREET VIC 3019" {
		t.Errorf("CleanWithIndex(nil index) = %q", got)
	}
}
