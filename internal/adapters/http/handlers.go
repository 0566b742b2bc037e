package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/spatial"
	"github.com/namtang/stopmap/internal/core/usecases"
)

const (
	defaultZoom       = 10
	defaultLeavesPage = 100
	maxLeavesPage     = 1000
	maxNearestK       = 500
)

// StopsHandler returns the points matching bbox, types and text terms.
// The response is never cached: the map refilters on every pan.
func StopsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseQuery(c)
		if err != nil {
			return stopsError(c, err)
		}
		points, err := deps.Engine.Query(c.UserContext(), q)
		if err != nil {
			return stopsError(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(StopsResponse{OK: true, Count: len(points), Data: points})
	}
}

// NearestHandler returns the k points closest to lat,lng.
func NearestHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat, err := floatParam(c, "lat")
		if err != nil {
			return stopsError(c, err)
		}
		lng, err := floatParam(c, "lng")
		if err != nil {
			return stopsError(c, err)
		}
		if !(domain.LatLng{Lat: lat, Lng: lng}).Valid() {
			return stopsError(c, &domain.QueryError{Param: "lat,lng", Value: c.Query("lat") + "," + c.Query("lng")})
		}

		k := c.QueryInt("k", usecases.DefaultNearestK)
		if k > maxNearestK {
			k = maxNearestK
		}
		within := c.QueryFloat("within_meters", 0)

		points, err := deps.Engine.Nearest(c.UserContext(), lat, lng, k, within)
		if err != nil {
			return stopsError(c, err)
		}
		return c.JSON(StopsResponse{OK: true, Count: len(points), Data: points})
	}
}

// ClustersHandler returns the clustered viewport as a GeoJSON
// FeatureCollection.
func ClustersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseQuery(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		zoom, err := zoomParam(c, defaultZoom)
		if err != nil {
			return errFromDomain(c, err)
		}
		nodes, err := deps.Clusters.Clusters(c.UserContext(), q, zoom)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(spatial.FeatureCollection(nodes))
	}
}

// ExpansionZoomHandler returns the zoom at which an aggregate splits.
func ExpansionZoomHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := clusterID(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		q, err := parseQuery(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		z, err := deps.Clusters.ExpansionZoom(c.UserContext(), q, id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"cluster_id": id, "expansion_zoom": z})
	}
}

// LeavesHandler returns a page of the points under an aggregate.
func LeavesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := clusterID(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		q, err := parseQuery(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		// limit here pages the leaves, it is not a filter limit.
		q.Limit = 0

		offset := c.QueryInt("offset", 0)
		if offset < 0 {
			offset = 0
		}
		limit := c.QueryInt("limit", defaultLeavesPage)
		if limit <= 0 || limit > maxLeavesPage {
			limit = defaultLeavesPage
		}

		all, err := deps.Clusters.Leaves(c.UserContext(), q, id, 0, 0)
		if err != nil {
			return errFromDomain(c, err)
		}
		end := offset + limit
		if offset > len(all) {
			offset = len(all)
		}
		if end > len(all) {
			end = len(all)
		}

		p := Pagination{Offset: offset, Limit: limit, Total: len(all)}
		SetLinkHeaders(c, p)
		return c.JSON(PaginatedResponse{Data: all[offset:end], Pagination: p})
	}
}

// HeatmapHandler returns weighted density cells for the viewport.
func HeatmapHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseQuery(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		zoom, err := zoomParam(c, defaultZoom)
		if err != nil {
			return errFromDomain(c, err)
		}
		cells, err := deps.Heatmap.Cells(c.UserContext(), q, zoom)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{
			"level": usecases.CellLevel(zoom),
			"count": len(cells),
			"data":  cells,
		})
	}
}

// CorridorResponse is the route corridor with the points inside it.
type CorridorResponse struct {
	Corridor domain.Corridor `json:"corridor"`
	Count    int             `json:"count"`
	Data     []domain.Point  `json:"data"`
}

// CorridorHandler builds the route corridor between from and to and
// returns the matching points within its buffer.
func CorridorHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, err := parseLatLng("from", c.Query("from"))
		if err != nil {
			return errFromDomain(c, err)
		}
		to, err := parseLatLng("to", c.Query("to"))
		if err != nil {
			return errFromDomain(c, err)
		}
		q, err := parseQuery(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		buffer := c.QueryFloat("buffer", deps.Corridor.Buffer())
		if buffer <= 0 {
			buffer = deps.Corridor.Buffer()
		}

		ctx := c.UserContext()
		candidates, err := deps.Engine.Query(ctx, q)
		if err != nil {
			return errFromDomain(c, err)
		}
		corridor, err := deps.Corridor.Build(ctx, from, to)
		if err != nil {
			return errFromDomain(c, err)
		}
		corridor.BufferMeters = buffer

		points := deps.Corridor.Filter(candidates, corridor, buffer)
		return c.JSON(CorridorResponse{Corridor: corridor, Count: len(points), Data: points})
	}
}

// HeatPoint is one facility marker of the heat layer.
type HeatPoint struct {
	ID      string  `json:"id"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Weight  float64 `json:"weight"`
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
}

// FacilitiesHandler returns the facility dataset as heat points.
func FacilitiesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Facilities == nil {
			return errNotFound(c, "facility dataset not configured")
		}
		points, err := deps.Facilities.All()
		if err != nil {
			return errFromDomain(c, err)
		}
		data := make([]HeatPoint, len(points))
		for i, p := range points {
			name := p.NameTH
			if name == "" {
				name = p.NameEN
			}
			data[i] = HeatPoint{
				ID:      p.ID,
				Lat:     p.Lat,
				Lng:     p.Lng,
				Weight:  p.Weight,
				Name:    name,
				Address: p.AddressTH,
			}
		}
		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(fiber.Map{"data": data})
	}
}

func clusterID(c *fiber.Ctx) (int, error) {
	raw := c.Params("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, &domain.QueryError{Param: "id", Value: raw}
	}
	return id, nil
}
