package domain

import (
	"math"
	"strconv"
	"strings"
)

// Query is built per viewport or filter event and consumed once.
type Query struct {
	BBox     *Bounds
	Types    *TypeSet
	Text     string
	District string
	Postcode string
	Limit    int // zero means unlimited
}

// HasText reports whether any text or region term is set.
func (q Query) HasText() bool {
	return strings.TrimSpace(q.Text) != "" ||
		strings.TrimSpace(q.District) != "" ||
		strings.TrimSpace(q.Postcode) != ""
}

// TextKey joins the lowercased, trimmed text terms.
func (q Query) TextKey() string {
	var terms []string
	for _, s := range []string{q.Text, q.District, q.Postcode} {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			terms = append(terms, s)
		}
	}
	return strings.Join(terms, " ")
}

// FilterKey identifies the non-spatial part of the query. Two queries with
// the same FilterKey select the same points before the bbox is applied.
func (q Query) FilterKey() string {
	return q.Types.String() + "|" + q.TextKey()
}

// Fingerprint normalizes the query for no-op detection. The bbox is rounded
// to 1e-6 degrees.
func (q Query) Fingerprint() string {
	bbox := "-"
	if q.BBox != nil {
		bbox = roundCoord(q.BBox.West) + "," + roundCoord(q.BBox.South) + "," +
			roundCoord(q.BBox.East) + "," + roundCoord(q.BBox.North)
	}
	return bbox + "|" + q.FilterKey()
}

func roundCoord(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e6)/1e6, 'f', 6, 64)
}
