// config.go: settings struct and loaders for the bird search service.
package conf

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// MainSettings contains top-level application settings.
type MainSettings struct {
	Name string // name of the node
	Port string // HTTP listen port
}

// HomeSettings holds the default map center. Species searches for exactly this
// coordinate pair are the only ones eligible for observation caching.
type HomeSettings struct {
	Latitude  float64 // default map center latitude
	Longitude float64 // default map center longitude
}

// EBirdSettings contains credentials and tuning for the eBird API.
type EBirdSettings struct {
	APIKey         string        // token for data/obs and ref/taxonomy endpoints
	TaxonFindKey   string        // separate token for the ref/taxon/find endpoint
	BaseURL        string        // API base URL
	MapBaseURL     string        // base URL for the range map endpoints
	Timeout        time.Duration // per-request timeout
	FamilyCacheTTL time.Duration // TTL for species-code to family-name cache
}

// SearchIndexSettings configures the full-taxonomy search index used as the
// primary remote suggestion backend.
type SearchIndexSettings struct {
	Host       string // index host
	APIKey     string // index API key
	Collection string // collection holding the full taxonomy
	Timeout    time.Duration
}

// SuggestSettings tunes local fuzzy name matching.
type SuggestSettings struct {
	Threshold float64 // keep matches scoring strictly below this
	Distance  int     // normalization cap for edit distance scoring
}

// GeocodeSettings configures reverse geocoding providers.
type GeocodeSettings struct {
	Provider    string // "mapbox" or "osm"
	MapboxToken string
	Timeout     time.Duration
}

// RedisSettings configures the observation cache backing store.
type RedisSettings struct {
	Address  string
	Password string
	DB       int
}

// BirdListSettings tunes species list browsing.
type BirdListSettings struct {
	BatchSize int // species per image-enrichment batch
}

// Settings is the root configuration object.
type Settings struct {
	Debug bool // true to enable debug logging across services

	Main     MainSettings
	Home     HomeSettings
	EBird    EBirdSettings
	Search   SearchIndexSettings
	Suggest  SuggestSettings
	Geocode  GeocodeSettings
	Redis    RedisSettings
	BirdList BirdListSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and installs it as the current one.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/birdsearch-go")

	viper.SetEnvPrefix("birdsearch")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults plus env cover everything
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SetTestSettings installs a settings instance directly. Testing only.
func SetTestSettings(s *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = s
}
