package addrmatcher

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
	"github.com/xrash/smetrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Algorithm selects the string similarity measure used to score candidate addresses.
// Every algorithm yields a score in [0, 1], 1 meaning identical after preparation.
type Algorithm int

const (
	// Levenshtein scores the normalised indel distance, 1 - indel/(lenA+lenB), where
	// a substitution counts as a deletion plus an insertion.
	Levenshtein Algorithm = iota
	// Jaro is the Jaro similarity.
	Jaro
	// JaroWinkler is the Jaro similarity with a common-prefix boost.
	JaroWinkler
)

// Jaro-Winkler parameters: boost above 0.7, prefix up to four characters.
const (
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
)

func (a Algorithm) String() string {
	switch a {
	case Levenshtein:
		return "levenshtein"
	case Jaro:
		return "jaro"
	case JaroWinkler:
		return "jaro-winkler"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm accepts "levenshtein", "jaro" and "jaro-winkler" (case-insensitive,
// "_" or no separator also accepted).
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "levenshtein", "lev", "":
		return Levenshtein, nil
	case "jaro":
		return Jaro, nil
	case "jaro-winkler", "jaro_winkler", "jarowinkler":
		return JaroWinkler, nil
	}
	return 0, fmt.Errorf("%w: unknown similarity algorithm %q", ErrInvalidArgument, s)
}

// scoreFunc compares two prepared strings.
type scoreFunc func(a, b string) float64

func (a Algorithm) scorer() (scoreFunc, error) {
	switch a {
	case Levenshtein:
		return levenshteinRatio, nil
	case Jaro:
		return func(x, y string) float64 {
			if bx, by, ok := byteAlphabet(x, y); ok {
				return smetrics.Jaro(bx, by)
			}
			return float64(edlib.JaroSimilarity(x, y))
		}, nil
	case JaroWinkler:
		return func(x, y string) float64 {
			if bx, by, ok := byteAlphabet(x, y); ok {
				return smetrics.JaroWinkler(bx, by, jaroWinklerBoostThreshold, jaroWinklerPrefixSize)
			}
			return float64(edlib.JaroWinklerSimilarity(x, y))
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown similarity algorithm %d", ErrInvalidArgument, int(a))
}

func levenshteinRatio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	return 1 - float64(edlib.LCSEditDistance(a, b))/float64(total)
}

// byteAlphabet rewrites x and y so that every distinct rune becomes one distinct byte.
// smetrics indexes strings by byte; Jaro scores depend only on character equality and
// position, so the rewrite leaves them unchanged. ok is false when the two strings use
// more than 256 distinct runes.
func byteAlphabet(x, y string) (bx, by string, ok bool) {
	if isASCII(x) && isASCII(y) {
		return x, y, true
	}
	codes := make(map[rune]byte)
	remap := func(s string) (string, bool) {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			c, seen := codes[r]
			if !seen {
				if len(codes) == 256 {
					return "", false
				}
				c = byte(len(codes))
				codes[r] = c
			}
			out = append(out, c)
		}
		return string(out), true
	}
	if bx, ok = remap(x); !ok {
		return "", "", false
	}
	if by, ok = remap(y); !ok {
		return "", "", false
	}
	return bx, by, true
}

// Similarity scores a against b with the given algorithm. Both strings are lower-cased,
// stripped of diacritics and stripped of everything that is not a letter or digit.
func Similarity(a, b string, algo Algorithm) (float64, error) {
	score, err := algo.scorer()
	if err != nil {
		return 0, err
	}
	return score(prepare(a), prepare(b)), nil
}

// prepare canonicalises a string for scoring.
func prepare(s string) string {
	if !isASCII(s) {
		// Transformers carry state, so each call gets its own chain.
		fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if folded, _, err := transform.String(fold, s); err == nil {
			s = folded
		}
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
