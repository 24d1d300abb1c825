package kg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidQuery indicates unusable search input.
var ErrInvalidQuery = errors.New("kg: invalid search query")

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Place is one geolocated entity from the knowledge graph.
type Place struct {
	IRI   string  `json:"iri"`
	Label string  `json:"label"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// BoundingBox is a lat/lon rectangle for geographic filtering.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Valid reports whether the box is a proper rectangle in WGS84 bounds.
func (b BoundingBox) Valid() bool {
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return false
	}
	return b.MinLat < b.MaxLat && b.MinLon < b.MaxLon
}

// SearchService builds and runs place searches against the graph.
type SearchService struct {
	client *Client
}

// NewSearchService wraps a SPARQL client.
func NewSearchService(client *Client) (*SearchService, error) {
	if client == nil {
		return nil, errors.New("kg: client is required")
	}
	return &SearchService{client: client}, nil
}

// SearchPlaces finds places whose label contains text.
func (s *SearchService) SearchPlaces(ctx context.Context, text string, limit int) ([]Place, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: search text is required", ErrInvalidQuery)
	}
	query := placeQuery(text, nil, clampLimit(limit))
	results, err := s.client.Select(ctx, query)
	if err != nil {
		return nil, err
	}
	return mapPlaces(results), nil
}

// SearchWithin finds matching places inside a bounding box.
func (s *SearchService) SearchWithin(ctx context.Context, text string, box BoundingBox, limit int) ([]Place, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: search text is required", ErrInvalidQuery)
	}
	if !box.Valid() {
		return nil, fmt.Errorf("%w: bounding box is malformed", ErrInvalidQuery)
	}
	query := placeQuery(text, &box, clampLimit(limit))
	results, err := s.client.Select(ctx, query)
	if err != nil {
		return nil, err
	}
	return mapPlaces(results), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func placeQuery(text string, box *BoundingBox, limit int) string {
	var b strings.Builder
	b.WriteString(`PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
PREFIX wgs: <http://www.w3.org/2003/01/geo/wgs84_pos#>
SELECT ?place ?label ?lat ?lon WHERE {
  ?place rdfs:label ?label ;
         wgs:lat ?lat ;
         wgs:long ?lon .
  FILTER(CONTAINS(LCASE(STR(?label)), "` + escapeLiteral(strings.ToLower(text)) + `"))
`)
	if box != nil {
		fmt.Fprintf(&b, "  FILTER(?lat >= %s && ?lat <= %s && ?lon >= %s && ?lon <= %s)\n",
			formatCoord(box.MinLat), formatCoord(box.MaxLat),
			formatCoord(box.MinLon), formatCoord(box.MaxLon))
	}
	fmt.Fprintf(&b, "} LIMIT %d", limit)
	return b.String()
}

// escapeLiteral makes user text safe inside a double-quoted SPARQL string.
func escapeLiteral(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(s)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func mapPlaces(results *Results) []Place {
	places := make([]Place, 0, len(results.Results.Bindings))
	for _, row := range results.Results.Bindings {
		place := Place{
			IRI:   row["place"].Value,
			Label: row["label"].Value,
		}
		lat, errLat := strconv.ParseFloat(row["lat"].Value, 64)
		lon, errLon := strconv.ParseFloat(row["lon"].Value, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		place.Lat = lat
		place.Lon = lon
		places = append(places, place)
	}
	return places
}
