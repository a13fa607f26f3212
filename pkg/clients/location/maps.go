// Package location looks up a business and its nearby competitors.
package location

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

type Query struct {
	BusinessName string `json:"business_name"`
	Address      string `json:"address"`
}

// Key identifies q in caches.
func (q Query) Key() string {
	return strings.ToLower(strings.TrimSpace(q.BusinessName) + "|" + strings.TrimSpace(q.Address))
}

// Place is the business as the maps provider knows it.
type Place struct {
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Rating   float32  `json:"rating,omitempty"`
	Reviews  int      `json:"reviews,omitempty"`
	Category string   `json:"category,omitempty"`
	Types    []string `json:"types,omitempty"`
}

type Result struct {
	Place       *Place             `json:"place,omitempty"`
	Competitors []types.Competitor `json:"competitors"`
}

// Client resolves a business location. A business the provider cannot find
// yields an empty Result, not an error.
type Client interface {
	Lookup(ctx context.Context, q Query) (*Result, error)
}

// placesAPI is the subset of *maps.Client used here.
type placesAPI interface {
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
}

type MapsConfig struct {
	APIKey         string
	RadiusMeters   uint
	MaxCompetitors int
	Logger         *zap.Logger
}

// Maps implements Client with Places text and nearby search.
type Maps struct {
	api            placesAPI
	radius         uint
	maxCompetitors int
	logger         *zap.Logger
}

func NewMaps(cfg MapsConfig) (*Maps, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GOOGLE_MAPS_API_KEY is not set")
	}
	api, err := maps.NewClient(maps.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return newMaps(api, cfg), nil
}

func newMaps(api placesAPI, cfg MapsConfig) *Maps {
	m := &Maps{
		api:            api,
		radius:         cfg.RadiusMeters,
		maxCompetitors: cfg.MaxCompetitors,
		logger:         logging.OrNop(cfg.Logger),
	}
	if m.radius == 0 {
		m.radius = 2000
	}
	if m.maxCompetitors <= 0 {
		m.maxCompetitors = 5
	}
	return m
}

func (m *Maps) Lookup(ctx context.Context, q Query) (*Result, error) {
	text := strings.TrimSpace(strings.TrimSpace(q.BusinessName) + " " + strings.TrimSpace(q.Address))
	if text == "" {
		return nil, errors.New(errors.ErrMissingRequired, "location lookup needs a business name or address")
	}

	found, err := m.api.TextSearch(ctx, &maps.TextSearchRequest{Query: text})
	if err != nil {
		return nil, classify(err, "text search")
	}
	if len(found.Results) == 0 {
		m.logger.Debug("business not found", zap.String("query", text))
		return &Result{}, nil
	}

	place := toPlace(found.Results[0])
	result := &Result{Place: place}

	if place.Category == "" {
		return result, nil
	}

	nearby, err := m.api.NearbySearch(ctx, &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: place.Lat, Lng: place.Lng},
		Radius:   m.radius,
		Keyword:  strings.ReplaceAll(place.Category, "_", " "),
	})
	if err != nil {
		return nil, classify(err, "nearby search")
	}

	result.Competitors = competitors(nearby.Results, place.PlaceID, m.maxCompetitors)
	return result, nil
}

// categoryIgnore holds Places types too generic to find competitors by.
var categoryIgnore = map[string]bool{
	"point_of_interest": true,
	"establishment":     true,
	"premise":           true,
	"street_address":    true,
}

func toPlace(r maps.PlacesSearchResult) *Place {
	p := &Place{
		PlaceID: r.PlaceID,
		Name:    r.Name,
		Address: r.FormattedAddress,
		Lat:     r.Geometry.Location.Lat,
		Lng:     r.Geometry.Location.Lng,
		Rating:  r.Rating,
		Reviews: r.UserRatingsTotal,
		Types:   r.Types,
	}
	for _, t := range r.Types {
		if !categoryIgnore[t] {
			p.Category = t
			break
		}
	}
	return p
}

// competitors drops the business itself and keeps the best-rated max entries.
func competitors(results []maps.PlacesSearchResult, selfID string, max int) []types.Competitor {
	out := make([]types.Competitor, 0, len(results))
	for _, r := range results {
		if r.PlaceID == selfID {
			continue
		}
		addr := r.FormattedAddress
		if addr == "" {
			addr = r.Vicinity
		}
		out = append(out, types.Competitor{Name: r.Name, Address: addr, Rating: r.Rating, Reviews: r.UserRatingsTotal})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].Reviews > out[j].Reviews
	})
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// classify maps Places API statuses onto the error taxonomy.
func classify(err error, op string) error {
	msg := err.Error()
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(err, errors.ErrTimeout, op+" timed out")
	case stderrors.Is(err, context.Canceled):
		return err
	case strings.Contains(msg, "OVER_QUERY_LIMIT"):
		return errors.Wrap(err, errors.ErrRateLimit, op+" over quota")
	case strings.Contains(msg, "REQUEST_DENIED"), strings.Contains(msg, "INVALID_REQUEST"):
		return errors.Wrap(err, errors.ErrUpstreamRejected, op+" rejected")
	case strings.Contains(msg, "UNKNOWN_ERROR"):
		return errors.Wrap(err, errors.ErrServiceUnavailable, op+" failed")
	default:
		return errors.Wrap(err, errors.ErrConnectionFailed, op+" failed")
	}
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, q Query) (*Result, error)

func (f ClientFunc) Lookup(ctx context.Context, q Query) (*Result, error) { return f(ctx, q) }
