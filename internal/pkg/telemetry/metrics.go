package telemetry

// Span names used for instrumentation.
const (
	// Query path
	SpanQuery   = "query.filter"
	SpanNearest = "query.nearest"

	// Clustering
	SpanIndexBuild = "cluster.index_build"
	SpanClusters   = "cluster.get_clusters"
	SpanHeatmap    = "heatmap.aggregate"

	// Dataset
	SpanDatasetLoad = "store.load"

	// Routing
	SpanRouteFetch = "route.fetch"
	SpanCorridor   = "route.corridor_filter"
)

// TracerName is the instrumentation scope for every span in the service.
const TracerName = "github.com/namtang/stopmap"
