package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tphakala/birdsearch-go/internal/errors"
	"github.com/tphakala/birdsearch-go/internal/geo"
)

const osmReverseURL = "https://nominatim.openstreetmap.org/reverse"

// OSMProvider resolves labels via the OpenStreetMap Nominatim API. No API key
// is required, which makes it the default provider.
type OSMProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOSMProvider creates a Nominatim reverse-geocoding provider.
func NewOSMProvider(timeout time.Duration) *OSMProvider {
	return &OSMProvider{
		baseURL:    osmReverseURL,
		httpClient: newHTTPClient(timeout),
	}
}

type osmResponse struct {
	DisplayName string `json:"display_name"`
}

// ReverseGeocode returns the display name for the coordinates.
func (p *OSMProvider) ReverseGeocode(ctx context.Context, pair geo.Pair) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", fmt.Sprintf("%g", pair.Lat))
	q.Set("lon", fmt.Sprintf("%g", pair.Lng))

	body, err := fetchJSON(ctx, p.httpClient, p.baseURL+"?"+q.Encode())
	if err != nil {
		return "", err
	}

	var decoded osmResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", errors.Newf("failed to parse nominatim response: %w", err).
			Category(errors.CategoryFileParsing).
			Component("geocode").
			Build()
	}

	return decoded.DisplayName, nil
}
