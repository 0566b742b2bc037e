package http

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/namtang/stopmap/internal/core/domain"
)

// maxTextLen is counted in runes.
const maxTextLen = 200

// checkTextLen rejects text filters longer than maxTextLen. The error
// echoes only a short prefix.
func checkTextLen(q domain.Query) error {
	for name, v := range map[string]string{"q": q.Text, "district": q.District, "postcode": q.Postcode} {
		if utf8.RuneCountInString(v) > maxTextLen {
			return &domain.QueryError{Param: name, Value: truncate(v, 20) + "..."}
		}
	}
	return nil
}

// truncate returns the first n runes of s.
func truncate(s string, n int) string {
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}

// parseQuery reads the shared filter parameters bbox, types, q, district,
// postcode and limit. A malformed bbox means no bbox filter; a missing
// types parameter means every type while an empty one means none.
func parseQuery(c *fiber.Ctx) (domain.Query, error) {
	var q domain.Query

	if b, ok := domain.ParseBounds(c.Query("bbox")); ok {
		q.BBox = &b
	}

	args := c.Context().QueryArgs()
	q.Types = domain.ParseTypeSet(string(args.Peek("types")), args.Has("types"))

	q.Text = strings.TrimSpace(c.Query("q"))
	q.District = strings.TrimSpace(c.Query("district"))
	q.Postcode = strings.TrimSpace(c.Query("postcode"))
	if err := checkTextLen(q); err != nil {
		return q, err
	}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, &domain.QueryError{Param: "limit", Value: raw}
		}
		q.Limit = n
	}
	return q, nil
}

// parseLatLng reads "lat,lng".
func parseLatLng(param, raw string) (domain.LatLng, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return domain.LatLng{}, &domain.QueryError{Param: param, Value: raw}
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	p := domain.LatLng{Lat: lat, Lng: lng}
	if err1 != nil || err2 != nil || !p.Valid() {
		return domain.LatLng{}, &domain.QueryError{Param: param, Value: raw}
	}
	return p, nil
}

// floatParam reads a required finite float.
func floatParam(c *fiber.Ctx, name string) (float64, error) {
	raw := c.Query(name)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &domain.QueryError{Param: name, Value: raw}
	}
	return v, nil
}

// zoomParam reads the zoom parameter, defaulting to def.
func zoomParam(c *fiber.Ctx, def int) (int, error) {
	raw := c.Query("zoom")
	if raw == "" {
		return def, nil
	}
	z, err := strconv.ParseFloat(raw, 64)
	if err != nil || z < 0 || z > 30 || math.IsNaN(z) {
		return 0, &domain.QueryError{Param: "zoom", Value: raw}
	}
	return int(math.Floor(z)), nil
}
