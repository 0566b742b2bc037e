package domain

// ClusterNode is one entry of a clustering answer: either a leaf wrapping a
// Point or an aggregate of several points.
type ClusterNode struct {
	ID            int     `json:"id"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Count         int     `json:"count"`
	Weight        float64 `json:"weight"`
	ExpansionZoom int     `json:"expansion_zoom,omitempty"`
	Point         *Point  `json:"point,omitempty"`
}

// IsCluster reports whether the node is an aggregate.
func (n ClusterNode) IsCluster() bool {
	return n.Point == nil
}

// HeatCell is a weighted density bucket.
type HeatCell struct {
	Token  string  `json:"token"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight float64 `json:"weight"`
	Count  int     `json:"count"`
}
