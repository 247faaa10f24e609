package comparison

import (
	"regexp"
	"strings"
)

var (
	smartPunct = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
		"–", "-", "—", "-",
	)
	reDropPunct = regexp.MustCompile(`[^\p{L}\p{N}_\s%.]`)
	reSpaces    = regexp.MustCompile(`\s+`)
	reNonAlnum  = regexp.MustCompile(`[^a-z0-9]`)
	reWords     = regexp.MustCompile(`[a-z0-9]+`)
)

// normText lowercases, drops punctuation other than '%' and '.', and collapses whitespace.
func normText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = smartPunct.Replace(s)
	s = reDropPunct.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// alnum keeps only lowercase ASCII letters and digits.
func alnum(s string) string {
	return reNonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// collapseUpper is the case- and whitespace-insensitive form used for the warning text.
func collapseUpper(s string) string {
	return reSpaces.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), " ")
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range reWords.FindAllString(strings.ToLower(s), -1) {
		out[w] = struct{}{}
	}
	return out
}

func fieldSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}

// overlap returns |a ∩ b| and the ratio against |a| (at least 1).
func overlap(a, b map[string]struct{}) (int, float64) {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	total := len(a)
	if total < 1 {
		total = 1
	}
	return n, float64(n) / float64(total)
}
