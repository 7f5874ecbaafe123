package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/resilience"
)

// openMeteoResponse is the JSON body of a geocoding search.
type openMeteoResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
		Admin1    string  `json:"admin1"`
	} `json:"results"`
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func (g *geocoder) search(ctx context.Context, name string) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limiter wait")
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("count", "1")
	params.Set("language", g.language)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read response")
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr openMeteoResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Reason != "" {
			zap.L().Debug("geocode: api rejected query", zap.String("name", name), zap.String("reason", apiErr.Reason))
		}
		return nil, eris.Wrap(&resilience.StatusError{Service: "open-meteo", Status: resp.StatusCode}, "geocode: search")
	}

	var parsed openMeteoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if parsed.Error {
		return nil, eris.Errorf("geocode: api error: %s", parsed.Reason)
	}
	if len(parsed.Results) == 0 {
		return &Result{Matched: false}, nil
	}

	top := parsed.Results[0]
	return &Result{
		Name:      top.Name,
		Country:   top.Country,
		Admin1:    top.Admin1,
		Latitude:  top.Latitude,
		Longitude: top.Longitude,
		Matched:   true,
	}, nil
}
