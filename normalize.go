package addrmatcher

import (
	"regexp"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
)

// StreetTypes maps street-type abbreviations to the full street-type names used by
// the reference corpus (e.g. "ST" -> "STREET").
var StreetTypes = map[string]string{
	"ACCS": "ACCESS", "ALLY": "ALLEY", "ALWY": "ALLEYWAY", "AMBL": "AMBLE",
	"APP": "APPROACH", "ARC": "ARCADE", "ARTL": "ARTERIAL", "AV": "AVENUE",
	"AVE": "AVENUE", "BVD": "BOULEVARD", "BLVD": "BOULEVARD", "BRAE": "BRAE",
	"BYPA": "BYPASS", "BWY": "BROADWAY", "CCT": "CIRCUIT", "CH": "CHASE",
	"CIR": "CIRCLE", "CL": "CLOSE", "CNR": "CORNER", "CON": "CONCOURSE",
	"CPS": "COPSE", "CR": "CRESCENT", "CRES": "CRESCENT", "CRST": "CREST",
	"CRSS": "CROSS", "CSAC": "CUL-DE-SAC", "CT": "COURT", "CRT": "COURT",
	"CTR": "CENTRE", "CUTT": "CUTTING", "DR": "DRIVE", "DRV": "DRIVE",
	"DRWY": "DRIVEWAY", "EDGE": "EDGE", "ENT": "ENTRANCE", "ESP": "ESPLANADE",
	"EXP": "EXPRESSWAY", "EXPY": "EXPRESSWAY", "FAWY": "FAIRWAY", "FWY": "FREEWAY",
	"GDNS": "GARDENS", "GLDE": "GLADE", "GR": "GROVE", "GRA": "GRANGE",
	"GRN": "GREEN", "GRV": "GROVE", "HTS": "HEIGHTS", "HWY": "HIGHWAY",
	"JNC": "JUNCTION", "LN": "LANE", "LNWY": "LANEWAY", "LP": "LOOP",
	"MEWS": "MEWS", "MWY": "MOTORWAY", "PDE": "PARADE", "PKWY": "PARKWAY",
	"PL": "PLACE", "PLZA": "PLAZA", "PNT": "POINT", "PROM": "PROMENADE",
	"PWY": "PATHWAY", "QY": "QUAY", "RD": "ROAD", "RDGE": "RIDGE",
	"RTT": "RETREAT", "RVR": "RIVER", "SQ": "SQUARE", "ST": "STREET",
	"STRP": "STRIP", "TCE": "TERRACE", "TRK": "TRACK", "TRL": "TRAIL",
	"VSTA": "VISTA", "WALK": "WALK", "WY": "WAY", "WKWY": "WALKWAY",
}

// streetTypeWords is the set of full street-type names; a "ST" right after one of them
// starts a locality such as "ST KILDA" and stays as "Saint".
var streetTypeWords = sync.OnceValue(func() map[string]bool {
	words := make(map[string]bool, len(StreetTypes))
	for _, full := range StreetTypes {
		words[full] = true
	}
	return words
})

// leadingNumberRegex matches one leading lot/unit/level/flat/house number token,
// optionally introduced by its designator word, followed by whitespace.
var leadingNumberRegex = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`^(?:(?:UNIT|U|LOT|LEVEL|LVL|L|FLAT|APT|APARTMENT|SHOP|SUITE|SHED)\s+)?[A-Z]?\d+[A-Z]*(?:[/-][A-Z]?\d+[A-Z]*)*\s+`)
})

// StripLeadingNumericTokens canonicalises an address for index lookup: it upper-cases,
// drops commas, removes leading unit/lot/level/house numbers and expands street-type
// abbreviations. A leading "ST" is read as "Saint" and kept. The result is a fixed
// point: normalising it again returns it unchanged.
func StripLeadingNumericTokens(address string) string {
	s := strings.ToUpper(strings.ReplaceAll(address, ",", " "))
	s = strings.Join(strings.Fields(s), " ")

	re := leadingNumberRegex()
	for {
		loc := re.FindStringIndex(s)
		if loc == nil {
			break
		}
		s = s[loc[1]:]
	}
	return expandStreetTypes(strings.Fields(s))
}

func expandStreetTypes(tokens []string) string {
	words := streetTypeWords()
	for i, tok := range tokens {
		if tok == "ST" && (i == 0 || words[tokens[i-1]]) {
			continue
		}
		if full, ok := StreetTypes[tok]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

// StateCodes are the state and territory codes recognised at the end of an address.
var StateCodes = []string{"ACT", "NSW", "NT", "OT", "QLD", "SA", "TAS", "VIC", "WA"}

var statePostcodeRegex = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`(?:^|\s)(` + strings.Join(StateCodes, "|") + `)\s+(\d{4})$`)
})

// maxLocalityEdits bounds the edit distance accepted when a misspelt locality is not
// contained in the address text.
const maxLocalityEdits = 2

// CleanWithIndex corrects a normalised address against the index. It reads the trailing
// "STATE POSTCODE", narrows the index to that area, then to localities and streets
// named in the text, and returns the canonical index key when exactly one street
// resolves. Anything else, including text without a state and postcode, returns the
// input unchanged.
func CleanWithIndex(noNumberAddress string, idx *ShardIndex) string {
	if idx == nil {
		return noNumberAddress
	}
	text := strings.Join(strings.Fields(strings.ToUpper(noNumberAddress)), " ")
	m := statePostcodeRegex().FindStringSubmatchIndex(text)
	if m == nil {
		return noNumberAddress
	}
	state, postcode := text[m[2]:m[3]], text[m[4]:m[5]]
	remaining := strings.TrimSpace(text[:m[0]])

	area := idx.InArea(state, postcode)
	if len(area) == 0 || remaining == "" {
		return noNumberAddress
	}

	localities := filterRows(area, func(r IndexRow) bool {
		return r.LocalityName != "" && strings.Contains(remaining, r.LocalityName)
	})
	if len(localities) == 0 {
		localities = nearestLocalities(area, strings.Fields(remaining))
	}
	streets := filterRows(localities, func(r IndexRow) bool {
		return r.StreetName != "" && strings.Contains(remaining, r.StreetName)
	})
	if key, ok := uniqueKey(streets, remaining); ok {
		return key
	}

	streets = filterRows(area, func(r IndexRow) bool {
		return r.StreetName != "" && strings.Contains(remaining, r.StreetName)
	})
	if key, ok := uniqueKey(streets, remaining); ok {
		return key
	}
	return noNumberAddress
}

func filterRows(rows []IndexRow, keep func(IndexRow) bool) []IndexRow {
	var out []IndexRow
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// uniqueKey returns the single key among rows. When several streets share a name it
// narrows to those whose "NAME TYPE" appears in text.
func uniqueKey(rows []IndexRow, text string) (string, bool) {
	keys := distinctKeys(rows)
	if len(keys) == 1 {
		return keys[0], true
	}
	if len(keys) == 0 {
		return "", false
	}
	typed := filterRows(rows, func(r IndexRow) bool {
		return r.StreetTypeCode != "" && strings.Contains(text, r.StreetName+" "+r.StreetTypeCode)
	})
	if keys = distinctKeys(typed); len(keys) == 1 {
		return keys[0], true
	}
	return "", false
}

func distinctKeys(rows []IndexRow) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range rows {
		k := r.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// nearestLocalities compares each locality of the area with the same number of trailing
// tokens of the address and keeps the rows of the closest locality within
// maxLocalityEdits. Localities of three letters or fewer are never guessed.
func nearestLocalities(area []IndexRow, tokens []string) []IndexRow {
	best := maxLocalityEdits + 1
	var names []string
	seen := make(map[string]bool)
	for _, r := range area {
		name := r.LocalityName
		if seen[name] || len(name) <= 3 {
			continue
		}
		seen[name] = true
		n := len(strings.Fields(name))
		if n == 0 || n > len(tokens) {
			continue
		}
		tail := strings.Join(tokens[len(tokens)-n:], " ")
		d := levenshtein.ComputeDistance(tail, name)
		switch {
		case d < best:
			best = d
			names = []string{name}
		case d == best:
			names = append(names, name)
		}
	}
	if len(names) != 1 {
		return nil
	}
	return filterRows(area, func(r IndexRow) bool { return r.LocalityName == names[0] })
}
