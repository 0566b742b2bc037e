package domain

import (
	"sort"
	"strings"
)

// StopType is the categorical kind of a point, derived from its raw icon tag.
type StopType string

const (
	TypeBus     StopType = "bus"
	TypeBTS     StopType = "bts"
	TypeBoat    StopType = "boat"
	TypeBRT     StopType = "brt"
	TypeUnknown StopType = "unknown"
)

// AllTypes lists every known type key.
var AllTypes = []StopType{TypeBus, TypeBTS, TypeBoat, TypeBRT, TypeUnknown}

// Default heatmap weights per dataset.
const (
	WeightStop     = 0.6
	WeightFacility = 0.8
)

// Dataset names carried on Point.Source.
const (
	SourceNamtang  = "namtang"
	SourceFacility = "facility"
)

// InferType classifies a raw tag. Rules are case-insensitive substring
// checks applied in priority order bts, brt, boat/pier/ferry, bus.
func InferType(rawTag string) StopType {
	s := strings.ToLower(rawTag)
	switch {
	case strings.Contains(s, "bts"):
		return TypeBTS
	case strings.Contains(s, "brt"):
		return TypeBRT
	case strings.Contains(s, "boat"), strings.Contains(s, "pier"), strings.Contains(s, "ferry"):
		return TypeBoat
	case strings.Contains(s, "bus"):
		return TypeBus
	default:
		return TypeUnknown
	}
}

// ParseStopType maps a query token to a type key.
func ParseStopType(s string) (StopType, bool) {
	t := StopType(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range AllTypes {
		if k == t {
			return t, true
		}
	}
	return "", false
}

// Point is a single geo-tagged record. Type is derived in NewPoint and
// never reassigned.
type Point struct {
	ID        string   `json:"id"`
	NameTH    string   `json:"name_th"`
	NameEN    string   `json:"name_en"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	AddressTH string   `json:"address_th,omitempty"`
	AddressEN string   `json:"address_en,omitempty"`
	RawTag    string   `json:"raw_tag,omitempty"`
	Type      StopType `json:"type"`
	Weight    float64  `json:"weight"`
	Source    string   `json:"source,omitempty"`
}

// PointInput carries the raw fields used to construct a Point.
type PointInput struct {
	ID        string
	NameTH    string
	NameEN    string
	Lat       float64
	Lng       float64
	AddressTH string
	AddressEN string
	RawTag    string
	Weight    float64
	Source    string
}

// NewPoint validates the coordinates and derives the type. It returns
// false for records that must be dropped.
func NewPoint(in PointInput) (Point, bool) {
	loc := LatLng{Lat: in.Lat, Lng: in.Lng}
	if !loc.Valid() {
		return Point{}, false
	}
	w := in.Weight
	if w <= 0 {
		w = WeightStop
	}
	src := in.Source
	if src == "" {
		src = SourceNamtang
	}
	return Point{
		ID:        in.ID,
		NameTH:    in.NameTH,
		NameEN:    in.NameEN,
		Lat:       in.Lat,
		Lng:       in.Lng,
		AddressTH: in.AddressTH,
		AddressEN: in.AddressEN,
		RawTag:    in.RawTag,
		Type:      InferType(in.RawTag),
		Weight:    w,
		Source:    src,
	}, true
}

// Location returns the coordinate of the point.
func (p Point) Location() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// TypeSet restricts a query to a set of types. A nil *TypeSet matches
// every type; a non-nil empty set matches nothing.
type TypeSet struct {
	m map[StopType]struct{}
}

// NewTypeSet builds a set from the given types.
func NewTypeSet(types ...StopType) *TypeSet {
	s := &TypeSet{m: make(map[StopType]struct{}, len(types))}
	for _, t := range types {
		s.m[t] = struct{}{}
	}
	return s
}

// ParseTypeSet interprets the comma-joined "types" parameter.
// present == false yields nil (all types). An empty string yields the
// empty set. Unrecognized tokens are dropped, so they match nothing.
func ParseTypeSet(raw string, present bool) *TypeSet {
	if !present {
		return nil
	}
	s := NewTypeSet()
	for _, tok := range strings.Split(raw, ",") {
		if t, ok := ParseStopType(tok); ok {
			s.m[t] = struct{}{}
		}
	}
	return s
}

// Contains reports whether t passes the filter.
func (s *TypeSet) Contains(t StopType) bool {
	if s == nil {
		return true
	}
	_, ok := s.m[t]
	return ok
}

// Empty reports whether the set explicitly matches nothing.
func (s *TypeSet) Empty() bool {
	return s != nil && len(s.m) == 0
}

// Keys returns the sorted members, or nil for the match-all set.
func (s *TypeSet) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.m))
	for t := range s.m {
		keys = append(keys, string(t))
	}
	sort.Strings(keys)
	return keys
}

// String renders the set for fingerprints and cache keys.
func (s *TypeSet) String() string {
	if s == nil {
		return "*"
	}
	return strings.Join(s.Keys(), ",")
}
