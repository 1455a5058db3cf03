package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Main: MainSettings{Name: "test", Port: "8080"},
		Home: HomeSettings{Latitude: 60.17, Longitude: 24.94},
		EBird: EBirdSettings{
			APIKey:  "key",
			BaseURL: "https://api.ebird.org/v2",
			Timeout: 30 * time.Second,
		},
		Suggest:  SuggestSettings{Threshold: 0.4, Distance: 100},
		Geocode:  GeocodeSettings{Provider: "osm", Timeout: 10 * time.Second},
		BirdList: BirdListSettings{BatchSize: 20},
	}
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"latitude out of range", func(s *Settings) { s.Home.Latitude = 91 }, "home.latitude"},
		{"longitude out of range", func(s *Settings) { s.Home.Longitude = -181 }, "home.longitude"},
		{"zero batch size", func(s *Settings) { s.BirdList.BatchSize = 0 }, "batchsize"},
		{"threshold above one", func(s *Settings) { s.Suggest.Threshold = 1.5 }, "threshold"},
		{"zero fuzzy distance", func(s *Settings) { s.Suggest.Distance = 0 }, "distance"},
		{"unknown geocode provider", func(s *Settings) { s.Geocode.Provider = "google" }, "geocode.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
