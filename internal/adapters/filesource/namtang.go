// Package filesource reads point datasets from local files.
package filesource

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/namtang/stopmap/internal/core/domain"
)

// Field positions in a namtang record.
const (
	colID        = 0
	colNameTH    = 1
	colNameEN    = 2
	colLat       = 3
	colLng       = 4
	colAddressTH = 6
	colAddressEN = 7
	colIcon      = 13
	minFields    = 14
)

// ParseStats counts what a parse accepted and dropped.
type ParseStats struct {
	Lines    int
	Accepted int
	Skipped  int
}

// ParseNamtang reads line-oriented records of single-quoted fields.
// Lines with fewer than 14 fields or unusable coordinates are skipped.
// Only read failures are returned as errors.
func ParseNamtang(r io.Reader) ([]domain.Point, ParseStats, error) {
	var (
		points []domain.Point
		stats  ParseStats
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		stats.Lines++

		p, ok := parseRecord(quotedFields(line))
		if !ok {
			stats.Skipped++
			continue
		}
		points = append(points, p)
		stats.Accepted++
	}
	if err := sc.Err(); err != nil {
		return nil, stats, err
	}
	return points, stats, nil
}

func parseRecord(cols []string) (domain.Point, bool) {
	if len(cols) < minFields {
		return domain.Point{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(cols[colLat]), 64)
	if err != nil {
		return domain.Point{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(cols[colLng]), 64)
	if err != nil {
		return domain.Point{}, false
	}
	return domain.NewPoint(domain.PointInput{
		ID:        cols[colID],
		NameTH:    cols[colNameTH],
		NameEN:    cols[colNameEN],
		Lat:       lat,
		Lng:       lng,
		AddressTH: cols[colAddressTH],
		AddressEN: cols[colAddressEN],
		RawTag:    cols[colIcon],
		Weight:    domain.WeightStop,
		Source:    domain.SourceNamtang,
	})
}

// quotedFields returns the contents of every '...' pair on the line.
// Text outside quotes (separators, parentheses) is ignored.
func quotedFields(line string) []string {
	var cols []string
	for {
		start := strings.IndexByte(line, '\'')
		if start < 0 {
			return cols
		}
		end := strings.IndexByte(line[start+1:], '\'')
		if end < 0 {
			return cols
		}
		cols = append(cols, line[start+1:start+1+end])
		line = line[start+end+2:]
	}
}
