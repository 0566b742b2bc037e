package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to the query services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	pointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Point",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"name_th":    &graphql.Field{Type: graphql.String},
			"name_en":    &graphql.Field{Type: graphql.String},
			"lat":        &graphql.Field{Type: graphql.Float},
			"lng":        &graphql.Field{Type: graphql.Float},
			"address_th": &graphql.Field{Type: graphql.String},
			"address_en": &graphql.Field{Type: graphql.String},
			"weight":     &graphql.Field{Type: graphql.Float},
			"type": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if pt, ok := p.Source.(domain.Point); ok {
						return string(pt.Type), nil
					}
					return nil, nil
				},
			},
		},
	})

	clusterType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ClusterNode",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.Int},
			"lat":            &graphql.Field{Type: graphql.Float},
			"lng":            &graphql.Field{Type: graphql.Float},
			"count":          &graphql.Field{Type: graphql.Int},
			"weight":         &graphql.Field{Type: graphql.Float},
			"expansion_zoom": &graphql.Field{Type: graphql.Int},
			"cluster": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					n, ok := p.Source.(domain.ClusterNode)
					return ok && n.IsCluster(), nil
				},
			},
			"point": &graphql.Field{
				Type: pointType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if n, ok := p.Source.(domain.ClusterNode); ok && n.Point != nil {
						return *n.Point, nil
					}
					return nil, nil
				},
			},
		},
	})

	filterArgs := func(extra graphql.FieldConfigArgument) graphql.FieldConfigArgument {
		args := graphql.FieldConfigArgument{
			"bbox":     &graphql.ArgumentConfig{Type: graphql.String, Description: "west,south,east,north"},
			"types":    &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
			"q":        &graphql.ArgumentConfig{Type: graphql.String},
			"district": &graphql.ArgumentConfig{Type: graphql.String},
			"postcode": &graphql.ArgumentConfig{Type: graphql.String},
		}
		for k, v := range extra {
			args[k] = v
		}
		return args
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"stops": &graphql.Field{
				Type:        graphql.NewList(pointType),
				Description: "Points matching bbox, types and text terms",
				Args: filterArgs(graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, err := gqlQuery(p.Args)
					if err != nil {
						return nil, err
					}
					q.Limit, _ = p.Args["limit"].(int)
					if q.Limit < 0 {
						return nil, &domain.QueryError{Param: "limit", Value: strconv.Itoa(q.Limit)}
					}
					return deps.Engine.Query(p.Context, q)
				},
			},
			"nearest": &graphql.Field{
				Type:        graphql.NewList(pointType),
				Description: "The k points closest to a location",
				Args: graphql.FieldConfigArgument{
					"lat":           &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng":           &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"k":             &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: usecases.DefaultNearestK},
					"within_meters": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat := p.Args["lat"].(float64)
					lng := p.Args["lng"].(float64)
					if !(domain.LatLng{Lat: lat, Lng: lng}).Valid() {
						return nil, &domain.QueryError{
							Param: "lat,lng",
							Value: strconv.FormatFloat(lat, 'g', -1, 64) + "," + strconv.FormatFloat(lng, 'g', -1, 64),
						}
					}
					k, _ := p.Args["k"].(int)
					within, _ := p.Args["within_meters"].(float64)
					if k > maxNearestK {
						k = maxNearestK
					}
					return deps.Engine.Nearest(p.Context, lat, lng, k, within)
				},
			},
			"clusters": &graphql.Field{
				Type:        graphql.NewList(clusterType),
				Description: "Clustered viewport at a zoom level",
				Args: filterArgs(graphql.FieldConfigArgument{
					"zoom": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, err := gqlQuery(p.Args)
					if err != nil {
						return nil, err
					}
					return deps.Clusters.Clusters(p.Context, q, p.Args["zoom"].(int))
				},
			},
			"clusterExpansionZoom": &graphql.Field{
				Type:        graphql.Int,
				Description: "Zoom at which an aggregate splits",
				Args: filterArgs(graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, err := gqlQuery(p.Args)
					if err != nil {
						return nil, err
					}
					return deps.Clusters.ExpansionZoom(p.Context, q, p.Args["id"].(int))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// gqlQuery maps the shared filter arguments onto a Query. A missing types
// argument means every type; an empty list means none. Text arguments are
// held to the same length limit as the REST parameters.
func gqlQuery(args map[string]interface{}) (domain.Query, error) {
	var q domain.Query
	if raw, ok := args["bbox"].(string); ok {
		if b, ok := domain.ParseBounds(raw); ok {
			q.BBox = &b
		}
	}
	if list, ok := args["types"].([]interface{}); ok {
		var types []domain.StopType
		for _, v := range list {
			if s, ok := v.(string); ok {
				if t, ok := domain.ParseStopType(s); ok {
					types = append(types, t)
				}
			}
		}
		q.Types = domain.NewTypeSet(types...)
	}
	q.Text, _ = args["q"].(string)
	q.District, _ = args["district"].(string)
	q.Postcode, _ = args["postcode"].(string)
	return q, checkTextLen(q)
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
