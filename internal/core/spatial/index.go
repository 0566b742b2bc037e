// Package spatial builds a zoom-aware hierarchical cluster index over a
// point collection.
//
// Points are projected to the unit Web Mercator square. For every zoom from
// MaxZoom down to MinZoom, nodes closer than Radius pixels (at that zoom,
// with tiles of Extent pixels) are merged greedily into an aggregate placed
// at their count-weighted centroid. Each zoom keeps its own KD-tree, so a
// viewport query is a single range search.
//
// An Index is immutable once built and safe for concurrent readers. When
// the input collection changes, build a new one.
package spatial

import (
	"math"
	"strconv"

	"github.com/MadAppGang/kdbush"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/pkg/geospatial"
)

const (
	DefaultMinZoom          = 0
	DefaultMaxZoom          = 18
	DefaultRadius           = 60
	DefaultExtent           = 512
	DefaultNodeSize         = 64
	DefaultMaxExpansionZoom = 20

	// infinityZoom marks a node not yet visited in the current pass.
	infinityZoom = 100
)

// Options tune the clustering.
type Options struct {
	MinZoom          int
	MaxZoom          int
	Radius           float64 // cluster radius in pixels
	Extent           float64 // tile size in pixels
	NodeSize         int     // KD-tree leaf size
	MaxExpansionZoom int     // ceiling for ExpansionZoom
}

// DefaultOptions returns the map defaults.
func DefaultOptions() Options {
	return Options{
		MinZoom:          DefaultMinZoom,
		MaxZoom:          DefaultMaxZoom,
		Radius:           DefaultRadius,
		Extent:           DefaultExtent,
		NodeSize:         DefaultNodeSize,
		MaxExpansionZoom: DefaultMaxExpansionZoom,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.MaxZoom > 21 {
		o.MaxZoom = 21
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.Extent <= 0 {
		o.Extent = d.Extent
	}
	if o.NodeSize <= 0 {
		o.NodeSize = d.NodeSize
	}
	if o.MaxExpansionZoom <= 0 {
		o.MaxExpansionZoom = d.MaxExpansionZoom
	}
	return o
}

// node is a leaf or aggregate in projected coordinates.
type node struct {
	x, y   float64
	zoom   int
	id     int
	count  int
	weight float64
	leaf   int // index into Index.points, or -1 for aggregates
}

func (n *node) Coordinates() (float64, float64) {
	return n.x, n.y
}

type aggregate struct {
	node     *node
	zoom     int // zoom at which the merge happened
	children []*node
}

type level struct {
	bush  *kdbush.KDBush
	nodes []*node
}

// Index is the built clustering tree.
type Index struct {
	opts     Options
	points   []domain.Point
	levels   []*level // by zoom, MinZoom..MaxZoom+1
	clusters map[int]*aggregate
	idSeed   int
	nextID   int
}

// Build clusters points. The slice is copied.
func Build(points []domain.Point, opts Options) *Index {
	opts = opts.withDefaults()

	// Aggregate ids start at the next power of ten above the point count,
	// so they never collide with leaf indexes.
	seed := int(math.Pow10(len(strconv.Itoa(len(points)))))
	idx := &Index{
		opts:     opts,
		points:   append([]domain.Point(nil), points...),
		levels:   make([]*level, opts.MaxZoom+2),
		clusters: make(map[int]*aggregate),
		idSeed:   seed,
		nextID:   seed,
	}
	if len(points) == 0 {
		return idx
	}

	nodes := make([]*node, len(idx.points))
	for i, p := range idx.points {
		nodes[i] = &node{
			x:      geospatial.LngX(p.Lng),
			y:      geospatial.LatY(p.Lat),
			zoom:   infinityZoom,
			id:     i,
			count:  1,
			weight: p.Weight,
			leaf:   i,
		}
	}

	for z := opts.MaxZoom; z >= opts.MinZoom; z-- {
		lvl := newLevel(nodes, opts.NodeSize)
		idx.levels[z+1] = lvl
		nodes = idx.clusterize(lvl, z)
	}
	idx.levels[opts.MinZoom] = newLevel(nodes, opts.NodeSize)
	return idx
}

func newLevel(nodes []*node, nodeSize int) *level {
	pts := make([]kdbush.Point, len(nodes))
	for i, n := range nodes {
		pts[i] = n
	}
	return &level{bush: kdbush.NewBush(pts, nodeSize), nodes: nodes}
}

// clusterize merges the nodes of lvl (built for zoom+1) into the node set
// for zoom.
func (idx *Index) clusterize(lvl *level, zoom int) []*node {
	r := idx.opts.Radius / (idx.opts.Extent * math.Pow(2, float64(zoom)))
	var result []*node

	for _, p := range lvl.nodes {
		if p.zoom <= zoom {
			continue
		}
		p.zoom = zoom

		neighbours := lvl.bush.Within(&kdbush.SimplePoint{X: p.x, Y: p.y}, r)

		count := p.count
		wx := p.x * float64(count)
		wy := p.y * float64(count)
		weight := p.weight
		var members []*node

		for _, ni := range neighbours {
			b := lvl.nodes[ni]
			if b.zoom <= zoom {
				continue
			}
			b.zoom = zoom
			wx += b.x * float64(b.count)
			wy += b.y * float64(b.count)
			count += b.count
			weight += b.weight
			members = append(members, b)
		}

		if len(members) == 0 {
			result = append(result, p)
			continue
		}

		agg := &node{
			x:      wx / float64(count),
			y:      wy / float64(count),
			zoom:   infinityZoom,
			id:     idx.nextID,
			count:  count,
			weight: weight,
			leaf:   -1,
		}
		idx.nextID++
		idx.clusters[agg.id] = &aggregate{
			node:     agg,
			zoom:     zoom,
			children: append([]*node{p}, members...),
		}
		result = append(result, agg)
	}
	return result
}

// GetClusters returns the leaves and aggregates at zoom whose position lies
// inside b. The zoom is clamped to [MinZoom, MaxZoom+1]. Bounds with
// West > East are not split at the antimeridian and yield nothing.
func (idx *Index) GetClusters(b domain.Bounds, zoom int) []domain.ClusterNode {
	lvl := idx.levels[idx.limitZoom(zoom)]
	if lvl == nil {
		return nil
	}

	minLng, maxLng := clamp(b.West, -180, 180), clamp(b.East, -180, 180)
	if b.East-b.West >= 360 {
		minLng, maxLng = -180, 180
	}
	minLat, maxLat := clamp(b.South, -90, 90), clamp(b.North, -90, 90)

	ids := lvl.bush.Range(
		geospatial.LngX(minLng), geospatial.LatY(maxLat),
		geospatial.LngX(maxLng), geospatial.LatY(minLat),
	)
	result := make([]domain.ClusterNode, len(ids))
	for i, id := range ids {
		result[i] = idx.toClusterNode(lvl.nodes[id])
	}
	return result
}

// ExpansionZoom returns the zoom at which the aggregate's children first
// show separately, capped at MaxExpansionZoom.
func (idx *Index) ExpansionZoom(clusterID int) (int, error) {
	agg, ok := idx.clusters[clusterID]
	if !ok {
		return 0, domain.ErrClusterNotFound
	}
	return idx.expansionZoom(agg), nil
}

func (idx *Index) expansionZoom(agg *aggregate) int {
	z := agg.zoom + 1
	if z > idx.opts.MaxExpansionZoom {
		z = idx.opts.MaxExpansionZoom
	}
	return z
}

// Children returns the nodes merged into the aggregate, one zoom finer.
func (idx *Index) Children(clusterID int) ([]domain.ClusterNode, error) {
	agg, ok := idx.clusters[clusterID]
	if !ok {
		return nil, domain.ErrClusterNotFound
	}
	out := make([]domain.ClusterNode, len(agg.children))
	for i, c := range agg.children {
		out[i] = idx.toClusterNode(c)
	}
	return out, nil
}

// Leaves returns the original points under an aggregate, skipping offset
// and returning at most limit (limit <= 0 returns all).
func (idx *Index) Leaves(clusterID, limit, offset int) ([]domain.Point, error) {
	agg, ok := idx.clusters[clusterID]
	if !ok {
		return nil, domain.ErrClusterNotFound
	}
	var (
		out     []domain.Point
		skipped int
	)
	var walk func(children []*node) bool
	walk = func(children []*node) bool {
		for _, c := range children {
			if c.leaf < 0 {
				if walk(idx.clusters[c.id].children) {
					return true
				}
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, idx.points[c.leaf])
			if limit > 0 && len(out) >= limit {
				return true
			}
		}
		return false
	}
	walk(agg.children)
	return out, nil
}

// Len returns the number of indexed points.
func (idx *Index) Len() int { return len(idx.points) }

// Options returns the effective options.
func (idx *Index) Options() Options { return idx.opts }

func (idx *Index) toClusterNode(n *node) domain.ClusterNode {
	if n.leaf >= 0 {
		p := idx.points[n.leaf]
		return domain.ClusterNode{
			ID:     n.id,
			Lat:    p.Lat,
			Lng:    p.Lng,
			Count:  1,
			Weight: p.Weight,
			Point:  &p,
		}
	}
	cn := domain.ClusterNode{
		ID:     n.id,
		Lat:    geospatial.YLat(n.y),
		Lng:    geospatial.XLng(n.x),
		Count:  n.count,
		Weight: n.weight,
	}
	if agg, ok := idx.clusters[n.id]; ok {
		cn.ExpansionZoom = idx.expansionZoom(agg)
	}
	return cn
}

func (idx *Index) limitZoom(zoom int) int {
	if zoom > idx.opts.MaxZoom+1 {
		zoom = idx.opts.MaxZoom + 1
	}
	if zoom < idx.opts.MinZoom {
		zoom = idx.opts.MinZoom
	}
	return zoom
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
