// Package matcher compares free-text guesses against a movie's title and aliases.
package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/playperu/reelquiz/internal/moviequiz"
)

const (
	MatchThreshold = 0.92
	// NearMissThreshold marks a wrong guess as close.
	NearMissThreshold = 0.75

	// numberMismatchCap bounds the similarity of titles whose numbers
	// differ: "mission impossible 2" is a near miss for "mission
	// impossible 3", never a match, however long the shared prefix.
	numberMismatchCap = 0.9
)

type Result struct {
	IsMatch    bool    `json:"isMatch"`
	Similarity float64 `json:"similarity"`
}

func (r Result) NearMiss() bool {
	return !r.IsMatch && r.Similarity >= NearMissThreshold
}

var articles = map[string]bool{"the": true, "a": true, "an": true}

var romanNumerals = map[string]string{
	"ii": "2", "iii": "3", "iv": "4", "v": "5",
	"vi": "6", "vii": "7", "viii": "8", "ix": "9", "x": "10",
}

// Normalize folds s into the comparable form used for titles: no diacritics,
// lowercase, punctuation as spaces, single spaces, no leading article.
func Normalize(s string) string {
	// Transformers are stateful, so build a fresh chain per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, "&", " and ")

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\'' || r == '’':
			// "Schindler's" and "Schindlers" should agree.
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	if len(fields) > 1 && articles[fields[0]] {
		fields = fields[1:]
	}
	for i, f := range fields {
		if d, ok := romanNumerals[f]; ok && i > 0 {
			fields[i] = d
		}
	}
	return strings.Join(fields, " ")
}

// Evaluate scores guess against the title and every alias of m.
func Evaluate(guess string, m moviequiz.Movie) Result {
	g := Normalize(guess)
	if g == "" {
		return Result{}
	}

	candidates := make([]string, 0, 1+len(m.Aliases))
	title := m.NormalizedTitle
	if title == "" {
		title = Normalize(m.Title)
	}
	candidates = append(candidates, title)
	for _, a := range m.Aliases {
		candidates = append(candidates, Normalize(a))
	}

	best := 0.0
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if c == g {
			return Result{IsMatch: true, Similarity: 1}
		}
		s := Similarity(g, c)
		if !sameNumbers(g, c) {
			s = min(s, numberMismatchCap)
		}
		if s > best {
			best = s
		}
	}
	return Result{IsMatch: best >= MatchThreshold, Similarity: best}
}

// sameNumbers reports whether two normalized titles carry the same
// sequence of numeric tokens. Roman numerals are already folded to digits.
func sameNumbers(a, b string) bool {
	na, nb := numbers(a), numbers(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func numbers(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		if strings.IndexFunc(f, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
			out = append(out, strings.TrimLeft(f, "0"))
		}
	}
	return out
}

// Similarity returns 1 - levenshtein(a, b)/max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
