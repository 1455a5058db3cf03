package geocode

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdsearch-go/internal/conf"
	"github.com/tphakala/birdsearch-go/internal/geo"
)

var helsinki = geo.Pair{Lat: 60.1699, Lng: 24.9384}

func TestNewServiceSelectsProvider(t *testing.T) {
	settings := &conf.Settings{}
	settings.Geocode.Provider = "osm"
	svc, err := NewService(settings)
	require.NoError(t, err)
	require.NotNil(t, svc)

	settings.Geocode.Provider = "mapbox"
	settings.Geocode.MapboxToken = "token"
	svc, err = NewService(settings)
	require.NoError(t, err)
	require.NotNil(t, svc)

	settings.Geocode.Provider = "google"
	_, err = NewService(settings)
	require.Error(t, err)
}

func TestOSMProviderParsesDisplayName(t *testing.T) {
	provider := NewOSMProvider(time.Second)
	httpmock.ActivateNonDefault(provider.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", `=~^https://nominatim\.openstreetmap\.org/reverse`,
		httpmock.NewStringResponder(http.StatusOK, `{"display_name":"Helsinki, Uusimaa, Finland"}`))

	label, err := provider.ReverseGeocode(context.Background(), helsinki)
	require.NoError(t, err)
	assert.Equal(t, "Helsinki, Uusimaa, Finland", label)
}

func TestMapboxProviderParsesFullAddress(t *testing.T) {
	provider := NewMapboxProvider("token", time.Second)
	httpmock.ActivateNonDefault(provider.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", `=~^https://api\.mapbox\.com/search/geocode/v6/reverse`,
		httpmock.NewStringResponder(http.StatusOK,
			`{"features":[{"properties":{"full_address":"Helsinki, Finland"}}]}`))

	label, err := provider.ReverseGeocode(context.Background(), helsinki)
	require.NoError(t, err)
	assert.Equal(t, "Helsinki, Finland", label)
}

func TestMapboxProviderEmptyFeatures(t *testing.T) {
	provider := NewMapboxProvider("token", time.Second)
	httpmock.ActivateNonDefault(provider.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", `=~^https://api\.mapbox\.com`,
		httpmock.NewStringResponder(http.StatusOK, `{"features":[]}`))

	label, err := provider.ReverseGeocode(context.Background(), helsinki)
	require.NoError(t, err)
	assert.Empty(t, label)
}

type failingProvider struct{}

func (failingProvider) ReverseGeocode(ctx context.Context, p geo.Pair) (string, error) {
	return "", assert.AnError
}

func TestLocationLabelFallsBackToCoordinates(t *testing.T) {
	svc := NewServiceWithProvider(failingProvider{})

	label := svc.LocationLabel(context.Background(), helsinki)
	assert.Equal(t, "60.1699, 24.9384", label)
}

type emptyProvider struct{}

func (emptyProvider) ReverseGeocode(ctx context.Context, p geo.Pair) (string, error) {
	return "", nil
}

func TestLocationLabelFallsBackOnEmptyResult(t *testing.T) {
	svc := NewServiceWithProvider(emptyProvider{})

	label := svc.LocationLabel(context.Background(), geo.Pair{Lat: 1, Lng: 2})
	assert.Equal(t, "1, 2", label)
}

func TestProviderUpstreamError(t *testing.T) {
	provider := NewOSMProvider(time.Second)
	httpmock.ActivateNonDefault(provider.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", `=~^https://nominatim\.openstreetmap\.org/reverse`,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `busy`))

	_, err := provider.ReverseGeocode(context.Background(), helsinki)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
