// Package osrm fetches route geometry from an OSRM-compatible HTTP API.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/valyala/fasthttp"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/ports"
)

var _ ports.RouteProvider = (*Client)(nil)

// DefaultProfile is the OSRM routing profile used when none is configured.
const DefaultProfile = "driving"

// Client implements ports.RouteProvider.
type Client struct {
	baseURL string
	profile string
	http    *fasthttp.Client
}

// New creates a client for baseURL, e.g. "https://router.project-osrm.org".
// timeout bounds requests whose context has no deadline.
func New(baseURL, profile string, timeout time.Duration) *Client {
	if profile == "" {
		profile = DefaultProfile
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		http: &fasthttp.Client{
			Name:                "stopmap",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
	}
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry geojson.Geometry `json:"geometry"`
		Distance float64          `json:"distance"`
		Duration float64          `json:"duration"`
	} `json:"routes"`
}

// URL builds the route request URL. OSRM takes coordinates as lng,lat.
func (c *Client) URL(start, end domain.LatLng) string {
	return fmt.Sprintf("%s/route/v1/%s/%s,%s;%s,%s?overview=full&geometries=geojson",
		c.baseURL, c.profile,
		coord(start.Lng), coord(start.Lat),
		coord(end.Lng), coord(end.Lat))
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Route returns the first route's vertices as (lat, lng). Every failure is
// a *domain.FetchError.
func (c *Client) Route(ctx context.Context, start, end domain.LatLng) ([]domain.LatLng, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.URL(start, end))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.Do(req, resp)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, &domain.FetchError{Err: err}
	}

	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return nil, &domain.FetchError{Status: status, Err: errors.New(strings.TrimSpace(string(resp.Body())))}
	}

	var body routeResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, &domain.FetchError{Status: resp.StatusCode(), Err: fmt.Errorf("decode: %w", err)}
	}
	return decodeRoute(body)
}

func decodeRoute(body routeResponse) ([]domain.LatLng, error) {
	if body.Code != "" && body.Code != "Ok" {
		return nil, &domain.FetchError{Err: fmt.Errorf("%s: %s", body.Code, body.Message)}
	}
	if len(body.Routes) == 0 {
		return nil, &domain.FetchError{Err: errors.New("no routes")}
	}
	line, ok := body.Routes[0].Geometry.Geometry().(orb.LineString)
	if !ok || len(line) < 2 {
		return nil, &domain.FetchError{Err: errors.New("route geometry is not a line")}
	}

	out := make([]domain.LatLng, len(line))
	for i, p := range line {
		out[i] = domain.LatLng{Lat: p.Lat(), Lng: p.Lon()}
	}
	return out, nil
}
