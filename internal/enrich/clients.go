package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LatLon is a bare geographic coordinate.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Geometry is an enriched route path: one or more polylines replacing the
// approximate shape. A relation fetch may return several disjoint
// segments; a routed path is always a single line.
type Geometry struct {
	Lines [][]LatLon `json:"lines"`
}

// RelationClient fetches curated relation geometry by numeric identifier
// from an external mapping service.
type RelationClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRelationClient(baseURL string) *RelationClient {
	return &RelationClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type relationResponse struct {
	Segments [][][2]float64 `json:"segments"`
}

// Fetch returns the relation's line segments, each a sequence of [lat,lon]
// pairs.
func (c *RelationClient) Fetch(ctx context.Context, relationID int64) (*Geometry, error) {
	reqURL := fmt.Sprintf("%s/relation/%d", c.baseURL, relationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var rel relationResponse
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(rel.Segments) == 0 {
		return nil, fmt.Errorf("relation %d has no geometry", relationID)
	}

	geom := &Geometry{Lines: make([][]LatLon, 0, len(rel.Segments))}
	for _, seg := range rel.Segments {
		line := make([]LatLon, 0, len(seg))
		for _, pt := range seg {
			line = append(line, LatLon{Lat: pt[0], Lon: pt[1]})
		}
		geom.Lines = append(geom.Lines, line)
	}
	return geom, nil
}

// RouterClient requests a best-effort path through ordered waypoints from
// an OSRM-compatible routing service.
type RouterClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRouterClient(baseURL string) *RouterClient {
	return &RouterClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns the single best path through the waypoints.
func (c *RouterClient) Route(ctx context.Context, waypoints []LatLon) (*Geometry, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("need at least 2 waypoints, got %d", len(waypoints))
	}

	coords := make([]string, 0, len(waypoints))
	for _, wp := range waypoints {
		// OSRM wants lon,lat order.
		coords = append(coords, fmt.Sprintf("%f,%f", wp.Lon, wp.Lat))
	}
	reqURL := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson",
		c.baseURL, strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var osrm osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&osrm); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if osrm.Code != "Ok" || len(osrm.Routes) == 0 {
		return nil, fmt.Errorf("routing failed: code=%q routes=%d", osrm.Code, len(osrm.Routes))
	}

	coordsOut := osrm.Routes[0].Geometry.Coordinates
	if len(coordsOut) == 0 {
		return nil, fmt.Errorf("routing returned empty geometry")
	}

	line := make([]LatLon, 0, len(coordsOut))
	for _, pt := range coordsOut {
		line = append(line, LatLon{Lat: pt[1], Lon: pt[0]})
	}
	return &Geometry{Lines: [][]LatLon{line}}, nil
}
