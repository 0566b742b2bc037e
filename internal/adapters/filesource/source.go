package filesource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/ports"
)

var _ ports.PointSource = (*NamtangFile)(nil)
var _ ports.PointSource = (*FacilityFile)(nil)

// NamtangFile reads the namtang stop list. Files ending in ".zst" are
// decompressed on the fly.
type NamtangFile struct {
	path string
}

// NewNamtangFile creates a source for path.
func NewNamtangFile(path string) *NamtangFile {
	return &NamtangFile{path: path}
}

func (f *NamtangFile) Name() string { return f.path }

// Version returns the file modification time in nanoseconds.
func (f *NamtangFile) Version(ctx context.Context) (int64, error) {
	return modTime(f.path)
}

func (f *NamtangFile) Load(ctx context.Context) ([]domain.Point, error) {
	r, closeFn, err := open(f.path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	points, stats, err := ParseNamtang(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	slog.InfoContext(ctx, "namtang file parsed",
		"path", f.path, "lines", stats.Lines, "accepted", stats.Accepted, "skipped", stats.Skipped)
	return points, nil
}

// FacilityFile reads the health-facility CSV with header columns
// id_depart, Ministry, Address, Department, Agency, dcode, dname, Lat, Long.
type FacilityFile struct {
	path string
}

// NewFacilityFile creates a source for path.
func NewFacilityFile(path string) *FacilityFile {
	return &FacilityFile{path: path}
}

func (f *FacilityFile) Name() string { return f.path }

func (f *FacilityFile) Version(ctx context.Context) (int64, error) {
	return modTime(f.path)
}

func (f *FacilityFile) Load(ctx context.Context) ([]domain.Point, error) {
	r, closeFn, err := open(f.path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	points, skipped, err := ParseFacilities(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	slog.InfoContext(ctx, "facility file parsed", "path", f.path, "accepted", len(points), "skipped", skipped)
	return points, nil
}

// ParseFacilities reads facility rows. Rows with unusable coordinates are
// skipped. Facilities carry no icon tag, so their type is unknown.
func ParseFacilities(r io.Reader) ([]domain.Point, int, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	cols := indexColumns(header)

	var (
		points  []domain.Point
		skipped int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		lat, err1 := strconv.ParseFloat(getField(record, cols, "lat"), 64)
		lng, err2 := strconv.ParseFloat(getField(record, cols, "long"), 64)
		if err1 != nil || err2 != nil {
			skipped++
			continue
		}
		p, ok := domain.NewPoint(domain.PointInput{
			ID:        getField(record, cols, "id_depart"),
			NameTH:    getField(record, cols, "ministry"),
			NameEN:    getField(record, cols, "agency"),
			Lat:       lat,
			Lng:       lng,
			AddressTH: strings.TrimSpace(getField(record, cols, "address") + " " + getField(record, cols, "dname")),
			AddressEN: getField(record, cols, "department"),
			Weight:    domain.WeightFacility,
			Source:    domain.SourceFacility,
		})
		if !ok {
			skipped++
			continue
		}
		points = append(points, p)
	}
	return points, skipped, nil
}

func indexColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		m[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	return m
}

func getField(record []string, cols map[string]int, name string) string {
	if idx, ok := cols[name]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func modTime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.ModTime().UnixNano(), nil
}

func open(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, func() { _ = f.Close() }, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("zstd %s: %w", path, err)
	}
	return dec, func() {
		dec.Close()
		_ = f.Close()
	}, nil
}
