package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/namtang/stopmap/internal/core/domain"
)

// FeatureCollection renders cluster nodes as GeoJSON point features with
// the usual supercluster properties.
func FeatureCollection(nodes []domain.ClusterNode) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, n := range nodes {
		f := geojson.NewFeature(orb.Point{n.Lng, n.Lat})
		if n.IsCluster() {
			f.Properties["cluster"] = true
			f.Properties["cluster_id"] = n.ID
			f.Properties["point_count"] = n.Count
			f.Properties["expansion_zoom"] = n.ExpansionZoom
			f.Properties["weight"] = n.Weight
		} else {
			p := n.Point
			f.ID = p.ID
			f.Properties["cluster"] = false
			f.Properties["id"] = p.ID
			f.Properties["name_th"] = p.NameTH
			f.Properties["name_en"] = p.NameEN
			f.Properties["type"] = string(p.Type)
			f.Properties["weight"] = p.Weight
		}
		fc.Append(f)
	}
	return fc
}
