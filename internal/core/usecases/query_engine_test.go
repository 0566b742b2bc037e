package usecases_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/usecases"
)

func newEngine(t *testing.T, points ...domain.Point) (*usecases.QueryEngine, *usecases.PointStore) {
	t.Helper()
	store := usecases.NewPointStore(staticSource(points...), nil, nil)
	_, err := store.Load(context.Background())
	require.NoError(t, err)
	return usecases.NewQueryEngine(store, 0), store
}

func scenarioPoints() []domain.Point {
	return []domain.Point{
		pt("1", "BTS Siam", 13.7456, 100.5340),
		pt("2", "bus stop 12", 13.7500, 100.5000),
		pt("3", "Pier 4 boat", 13.7190, 100.5140),
		pt("4", "brt station", 13.7100, 100.5300),
	}
}

func TestQueryEngine_Scenario(t *testing.T) {
	points := scenarioPoints()
	var types []domain.StopType
	for _, p := range points {
		types = append(types, p.Type)
	}
	assert.Equal(t, []domain.StopType{domain.TypeBTS, domain.TypeBus, domain.TypeBoat, domain.TypeBRT}, types)

	engine, _ := newEngine(t, points...)
	got, err := engine.Query(context.Background(), domain.Query{
		Types: domain.NewTypeSet(domain.TypeBus, domain.TypeBTS),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(got))
}

func TestQueryEngine_EmptyTypesMatchNothing(t *testing.T) {
	engine, _ := newEngine(t, scenarioPoints()...)

	none, err := engine.Query(context.Background(), domain.Query{Types: domain.NewTypeSet()})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := engine.Query(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestQueryEngine_UnknownTypeTokenMatchesNothing(t *testing.T) {
	engine, _ := newEngine(t, scenarioPoints()...)

	got, err := engine.Query(context.Background(), domain.Query{Types: domain.ParseTypeSet("tram", true)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryEngine_BBoxProperty(t *testing.T) {
	const eps = domain.BBoxPad
	b := domain.Bounds{West: 100.50, South: 13.70, East: 100.55, North: 13.75}

	// Random points around the box plus points right at and around the
	// padded edges.
	rng := rand.New(rand.NewSource(42))
	var points []domain.Point
	for i := 0; i < 500; i++ {
		lat := 13.69 + rng.Float64()*0.07
		lng := 100.49 + rng.Float64()*0.07
		points = append(points, pt("r", "bus", lat, lng))
	}
	for _, d := range []float64{0, eps / 2, eps * 2} {
		points = append(points,
			pt("e", "bus", b.North+d, b.West),
			pt("e", "bus", b.South-d, b.East),
			pt("e", "bus", 13.72, b.West-d),
			pt("e", "bus", 13.72, b.East+d),
		)
	}

	engine, store := newEngine(t, points...)
	got := engine.Filter(store.Snapshot(), domain.Query{BBox: &b})

	want := 0
	for _, p := range points {
		if p.Lat >= b.South-eps && p.Lat <= b.North+eps && p.Lng >= b.West-eps && p.Lng <= b.East+eps {
			want++
		}
	}
	assert.Len(t, got, want)
	for _, p := range got {
		assert.True(t, p.Lat >= b.South-eps && p.Lat <= b.North+eps, "lat %f outside", p.Lat)
		assert.True(t, p.Lng >= b.West-eps && p.Lng <= b.East+eps, "lng %f outside", p.Lng)
	}
}

func TestQueryEngine_FuzzyText(t *testing.T) {
	p1, _ := domain.NewPoint(domain.PointInput{ID: "1", NameEN: "Siam Paragon", NameTH: "สยามพารากอน", Lat: 13.746, Lng: 100.535, RawTag: "bus"})
	p2, _ := domain.NewPoint(domain.PointInput{ID: "2", NameEN: "Victory Monument", AddressEN: "Ratchathewi", Lat: 13.765, Lng: 100.538, RawTag: "bus"})
	p3, _ := domain.NewPoint(domain.PointInput{ID: "3", NameEN: "Mo Chit", AddressEN: "Chatuchak", Lat: 13.802, Lng: 100.553, RawTag: "bts"})
	engine, _ := newEngine(t, p1, p2, p3)

	tests := []struct {
		name string
		q    domain.Query
		want []string
	}{
		{"exact substring", domain.Query{Text: "paragon"}, []string{"1"}},
		{"typo", domain.Query{Text: "siam paragn"}, []string{"1"}},
		{"thai", domain.Query{Text: "สยาม"}, []string{"1"}},
		{"case insensitive", domain.Query{Text: "VICTORY"}, []string{"2"}},
		{"district term", domain.Query{District: "chatuchak"}, []string{"3"}},
		{"all terms must match", domain.Query{Text: "mo chit", District: "ratchathewi"}, []string{}},
		{"no match", domain.Query{Text: "zzzzzz"}, []string{}},
		{"respects type filter", domain.Query{Text: "mo chit", Types: domain.NewTypeSet(domain.TypeBus)}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Query(context.Background(), tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestQueryEngine_PostcodeIsExact(t *testing.T) {
	a, _ := domain.NewPoint(domain.PointInput{ID: "a", NameEN: "Siam", AddressEN: "Pathum Wan 10330", Lat: 13.746, Lng: 100.534, RawTag: "bts"})
	b, _ := domain.NewPoint(domain.PointInput{ID: "b", NameEN: "Sathorn", AddressEN: "Bang Rak 10500", Lat: 13.719, Lng: 100.514, RawTag: "boat"})
	c, _ := domain.NewPoint(domain.PointInput{ID: "c", NameEN: "Ekkamai", AddressTH: "วัฒนา 10310", Lat: 13.719, Lng: 100.585, RawTag: "bts"})
	engine, _ := newEngine(t, a, b, c)

	tests := []struct {
		name string
		q    domain.Query
		want []string
	}{
		{"neighbouring postcode excluded", domain.Query{Postcode: "10330"}, []string{"a"}},
		{"thai address field", domain.Query{Postcode: " 10310 "}, []string{"c"}},
		{"combined with text", domain.Query{Text: "siam", Postcode: "10500"}, []string{}},
		{"unknown postcode", domain.Query{Postcode: "10900"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Query(context.Background(), tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestQueryEngine_LimitKeepsSourceOrder(t *testing.T) {
	engine, _ := newEngine(t, scenarioPoints()...)

	got, err := engine.Query(context.Background(), domain.Query{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(got))
}

func TestQueryEngine_NotReady(t *testing.T) {
	store := usecases.NewPointStore(staticSource(), nil, nil)
	engine := usecases.NewQueryEngine(store, 0)

	_, err := engine.Query(context.Background(), domain.Query{})
	assert.ErrorIs(t, err, domain.ErrNotReady)
	_, err = engine.Nearest(context.Background(), 13.7, 100.5, 3, 0)
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func nearestFixture() []domain.Point {
	return []domain.Point{
		pt("a", "bus", 13.751, 100.50),
		pt("b", "bus", 13.755, 100.50),
		pt("c", "bus", 13.752, 100.50),
		pt("d", "bus", 13.760, 100.50),
		pt("e", "bus", 13.753, 100.50),
	}
}

func TestQueryEngine_Nearest(t *testing.T) {
	engine, _ := newEngine(t, nearestFixture()...)

	got, err := engine.Nearest(context.Background(), 13.75, 100.50, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "e"}, ids(got))

	within, err := engine.Nearest(context.Background(), 13.75, 100.50, 3, 250)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(within))

	all, err := engine.Nearest(context.Background(), 13.75, 100.50, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestNearestIn_TiesKeepSourceOrder(t *testing.T) {
	points := []domain.Point{
		pt("north", "bus", 13.751, 100.50),
		pt("south", "bus", 13.749, 100.50),
	}
	got := usecases.NearestIn(points, 13.75, 100.50, 2, 0)
	assert.Equal(t, []string{"north", "south"}, ids(got))
}

func TestQueryEngine_CancelledContext(t *testing.T) {
	points := make([]domain.Point, 5000)
	for i := range points {
		points[i] = pt("p", "bus", 13.7, 100.5)
	}
	engine, store := newEngine(t, points...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.QuerySnapshot(ctx, store.Snapshot(), domain.Query{})
	assert.ErrorIs(t, err, context.Canceled)
}
