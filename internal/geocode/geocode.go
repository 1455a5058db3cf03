// Package geocode resolves coordinate pairs to human-readable location
// labels via pluggable reverse-geocoding providers.
package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/tphakala/birdsearch-go/internal/conf"
	"github.com/tphakala/birdsearch-go/internal/errors"
	"github.com/tphakala/birdsearch-go/internal/geo"
	"github.com/tphakala/birdsearch-go/internal/logging"
)

// Package-level logger for the geocode service
var (
	geocodeLogger   *slog.Logger
	geocodeLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	geocodeLevelVar.Set(slog.LevelDebug)

	geocodeLogger, _, err = logging.NewFileLogger(filepath.Join("logs", "geocode.log"), "geocode", geocodeLevelVar)
	if err != nil {
		logging.Error("Failed to initialize geocode file logger", "error", err)
		geocodeLogger = logging.NewDiscardLogger("geocode", geocodeLevelVar)
	}
}

// userAgent identifies this service to upstream geocoders; Nominatim requires it.
const userAgent = "birdsearch-go/1.0 (https://github.com/tphakala/birdsearch-go)"

// Provider is a reverse-geocoding backend.
type Provider interface {
	ReverseGeocode(ctx context.Context, p geo.Pair) (string, error)
}

// Service resolves location labels and guarantees a usable display string:
// provider failures degrade to the raw coordinate pair, never to an error.
type Service struct {
	provider Provider
}

// NewService selects a provider based on configuration.
func NewService(settings *conf.Settings) (*Service, error) {
	var provider Provider

	switch settings.Geocode.Provider {
	case "mapbox":
		provider = NewMapboxProvider(settings.Geocode.MapboxToken, settings.Geocode.Timeout)
	case "osm":
		provider = NewOSMProvider(settings.Geocode.Timeout)
	default:
		return nil, errors.Newf("invalid geocode provider: %s", settings.Geocode.Provider).
			Category(errors.CategoryConfiguration).
			Context("provider", settings.Geocode.Provider).
			Component("geocode").
			Build()
	}

	return &Service{provider: provider}, nil
}

// NewServiceWithProvider wires an explicit provider. Testing and composition.
func NewServiceWithProvider(provider Provider) *Service {
	return &Service{provider: provider}
}

// LocationLabel returns a human-readable label for the coordinates. On any
// provider failure the raw coordinate pair is substituted so the caller
// always has something to display.
func (s *Service) LocationLabel(ctx context.Context, p geo.Pair) string {
	label, err := s.provider.ReverseGeocode(ctx, p)
	if err != nil || label == "" {
		if err != nil {
			geocodeLogger.Warn("reverse geocoding failed, using coordinate label",
				"lat", p.Lat, "lng", p.Lng, "error", err)
		}
		return CoordinateLabel(p)
	}
	return label
}

// CoordinateLabel formats a coordinate pair as a display fallback.
func CoordinateLabel(p geo.Pair) string {
	return fmt.Sprintf("%g, %g", p.Lat, p.Lng)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
