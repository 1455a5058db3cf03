package conf

import (
	"errors"
	"fmt"
)

// ValidateSettings checks that loaded settings are usable. Validation errors
// are collected so a misconfigured node reports everything wrong at once.
func ValidateSettings(settings *Settings) error {
	var errs []error

	if settings.Home.Latitude < -90 || settings.Home.Latitude > 90 {
		errs = append(errs, fmt.Errorf("home.latitude %f out of range [-90, 90]", settings.Home.Latitude))
	}
	if settings.Home.Longitude < -180 || settings.Home.Longitude > 180 {
		errs = append(errs, fmt.Errorf("home.longitude %f out of range [-180, 180]", settings.Home.Longitude))
	}
	if settings.BirdList.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("birdlist.batchsize must be positive, got %d", settings.BirdList.BatchSize))
	}
	if settings.Suggest.Threshold <= 0 || settings.Suggest.Threshold > 1 {
		errs = append(errs, fmt.Errorf("suggest.threshold must be in (0, 1], got %f", settings.Suggest.Threshold))
	}
	if settings.Suggest.Distance <= 0 {
		errs = append(errs, fmt.Errorf("suggest.distance must be positive, got %d", settings.Suggest.Distance))
	}
	switch settings.Geocode.Provider {
	case "mapbox", "osm":
	default:
		errs = append(errs, fmt.Errorf("geocode.provider must be mapbox or osm, got %q", settings.Geocode.Provider))
	}

	return errors.Join(errs...)
}
