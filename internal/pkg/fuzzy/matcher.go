// Package fuzzy scores free-text queries against weighted record fields
// using approximate substring edit distance.
package fuzzy

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the highest accepted score. 0 is an exact substring
// hit on the heaviest field; 1 is no resemblance.
const DefaultThreshold = 0.35

// Field is one searchable attribute with its relative weight.
type Field struct {
	Name   string
	Weight float64
}

// Matcher scores queries against records exposing fields in the same order
// as Fields.
type Matcher struct {
	fields    []Field
	maxWeight float64
	threshold float64
}

// NewMatcher creates a matcher. A threshold <= 0 uses DefaultThreshold.
func NewMatcher(threshold float64, fields ...Field) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	m := &Matcher{fields: fields, threshold: threshold}
	for _, f := range fields {
		if f.Weight > m.maxWeight {
			m.maxWeight = f.Weight
		}
	}
	return m
}

// Threshold returns the acceptance cutoff.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Normalize folds case and composes Unicode so Thai and Latin input compare
// consistently. cases.Caser is not safe for concurrent use, so a fresh one
// is created per call.
func Normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// Prepare normalizes record field values once so repeated queries avoid
// re-folding them.
func (m *Matcher) Prepare(values ...string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}

// Terms normalizes query terms once per query. Blank terms are dropped.
func Terms(raw ...string) [][]rune {
	var out [][]rune
	for _, t := range raw {
		if n := Normalize(t); n != "" {
			out = append(out, []rune(n))
		}
	}
	return out
}

// Score returns the best weighted score of query over the prepared values.
func (m *Matcher) Score(query string, prepared []string) float64 {
	return m.score([]rune(Normalize(query)), prepared)
}

// score works on an already normalized term. Field scores are normalized
// edit distances scaled up for lighter fields.
func (m *Matcher) score(q []rune, prepared []string) float64 {
	if len(q) == 0 {
		return 0
	}
	best := 1.0
	for i, v := range prepared {
		if i >= len(m.fields) || v == "" {
			continue
		}
		w := m.fields[i].Weight
		if w <= 0 {
			continue
		}
		d := float64(substringDistance(q, v)) / float64(len(q))
		s := d * (m.maxWeight / w)
		if s < best {
			best = s
		}
		if best == 0 {
			break
		}
	}
	return best
}

// Match reports whether every term, as returned by Terms, scores within
// the threshold.
func (m *Matcher) Match(terms [][]rune, prepared []string) bool {
	for _, t := range terms {
		if m.score(t, prepared) > m.threshold {
			return false
		}
	}
	return true
}

// substringDistance is the minimum edit distance between q and any
// substring of text (Sellers' algorithm).
func substringDistance(q []rune, text string) int {
	if strings.Contains(text, string(q)) {
		return 0
	}
	prev := make([]int, len(q)+1)
	cur := make([]int, len(q)+1)
	for i := range prev {
		prev[i] = i
	}
	best := len(q)
	for len(text) > 0 {
		r, size := utf8.DecodeRuneInString(text)
		text = text[size:]
		cur[0] = 0
		for i := 1; i <= len(q); i++ {
			cost := 1
			if q[i-1] == r {
				cost = 0
			}
			cur[i] = min(prev[i-1]+cost, prev[i]+1, cur[i-1]+1)
		}
		if cur[len(q)] < best {
			best = cur[len(q)]
		}
		prev, cur = cur, prev
	}
	return best
}
