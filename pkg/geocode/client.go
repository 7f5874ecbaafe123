// Package geocode resolves place names to coordinates via the Open-Meteo
// geocoding API.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/resilience"
)

// DefaultBaseURL is the Open-Meteo geocoding search endpoint.
const DefaultBaseURL = "https://geocoding-api.open-meteo.com/v1/search"

// Client geocodes place names.
type Client interface {
	// Geocode returns the best match for name. A name with no match yields
	// a Result with Matched=false and no error.
	Geocode(ctx context.Context, name string) (*Result, error)
}

// Result holds the geocoding output for a place name.
type Result struct {
	Name      string  `json:"name,omitempty"`
	Country   string  `json:"country,omitempty"`
	Admin1    string  `json:"admin1,omitempty"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Matched   bool    `json:"matched"`
}

// Point returns the matched coordinate.
func (r *Result) Point() model.GeoPoint {
	return model.GeoPoint{Lat: r.Latitude, Lon: r.Longitude}
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBaseURL points the client at another search endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithLanguage sets the language of returned place names.
func WithLanguage(lang string) Option {
	return func(g *geocoder) {
		if lang != "" {
			g.language = lang
		}
	}
}

// WithCache sets the in-memory cache capacity and entry lifetime. A size of
// zero disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(g *geocoder) {
		if size <= 0 || ttl <= 0 {
			g.cache = nil
			return
		}
		g.cache = newPlaceCache(size, ttl)
	}
}

// WithRetry sets the retry policy for transient API failures.
func WithRetry(b resilience.Backoff) Option {
	return func(g *geocoder) {
		g.backoff = b
	}
}

type geocoder struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	language   string
	cache      *placeCache
	backoff    resilience.Backoff
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
		baseURL:    DefaultBaseURL,
		language:   "en",
		cache:      newPlaceCache(512, time.Hour),
		backoff:    resilience.DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode resolves name, consulting the cache first.
func (g *geocoder) Geocode(ctx context.Context, name string) (*Result, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, model.NewError(model.KindInvalidInput, "place name is empty")
	}

	if g.cache != nil {
		if r, ok := g.cache.get(key); ok {
			return r, nil
		}
	}

	r, err := resilience.Retry(ctx, g.backoff, "geocode.search", func(ctx context.Context) (*Result, error) {
		return g.search(ctx, strings.TrimSpace(name))
	})
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		g.cache.put(key, r)
	}
	return r, nil
}
