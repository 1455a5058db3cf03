package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tphakala/birdsearch-go/internal/errors"
	"github.com/tphakala/birdsearch-go/internal/geo"
)

const mapboxReverseURL = "https://api.mapbox.com/search/geocode/v6/reverse"

// MapboxProvider resolves labels via the Mapbox geocoding v6 API.
type MapboxProvider struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewMapboxProvider creates a Mapbox reverse-geocoding provider.
func NewMapboxProvider(token string, timeout time.Duration) *MapboxProvider {
	return &MapboxProvider{
		token:      token,
		baseURL:    mapboxReverseURL,
		httpClient: newHTTPClient(timeout),
	}
}

type mapboxResponse struct {
	Features []struct {
		Properties struct {
			FullAddress string `json:"full_address"`
		} `json:"properties"`
	} `json:"features"`
}

// ReverseGeocode returns the full address of the nearest place feature.
func (p *MapboxProvider) ReverseGeocode(ctx context.Context, pair geo.Pair) (string, error) {
	q := url.Values{}
	q.Set("types", "place")
	q.Set("access_token", p.token)
	q.Set("latitude", fmt.Sprintf("%g", pair.Lat))
	q.Set("longitude", fmt.Sprintf("%g", pair.Lng))

	body, err := fetchJSON(ctx, p.httpClient, p.baseURL+"?"+q.Encode())
	if err != nil {
		return "", err
	}

	var decoded mapboxResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", errors.Newf("failed to parse mapbox response: %w", err).
			Category(errors.CategoryFileParsing).
			Component("geocode").
			Build()
	}

	if len(decoded.Features) == 0 {
		return "", nil
	}
	return decoded.Features[0].Properties.FullAddress, nil
}

// fetchJSON performs a GET request shared by the providers.
func fetchJSON(ctx context.Context, client *http.Client, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Newf("failed to create request: %w", err).
			Category(errors.CategoryNetwork).
			Component("geocode").
			Build()
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Newf("reverse geocoding request failed: %w", err).
			Category(errors.CategoryNetwork).
			Component("geocode").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("reverse geocoding returned status %d", resp.StatusCode).
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Component("geocode").
			Build()
	}

	return io.ReadAll(resp.Body)
}
