// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "birdsearch-go")
	viper.SetDefault("main.port", "8080")

	viper.SetDefault("home.latitude", 0.000)
	viper.SetDefault("home.longitude", 0.000)

	viper.SetDefault("ebird.apikey", "")
	viper.SetDefault("ebird.taxonfindkey", "")
	viper.SetDefault("ebird.baseurl", "https://api.ebird.org/v2")
	viper.SetDefault("ebird.mapbaseurl", "https://ebird.org/map")
	viper.SetDefault("ebird.timeout", 30*time.Second)
	viper.SetDefault("ebird.familycachettl", 30*24*time.Hour)

	viper.SetDefault("search.host", "")
	viper.SetDefault("search.apikey", "")
	viper.SetDefault("search.collection", "taxonomy")
	viper.SetDefault("search.timeout", 2*time.Second)

	viper.SetDefault("suggest.threshold", 0.4)
	viper.SetDefault("suggest.distance", 100)

	viper.SetDefault("geocode.provider", "osm")
	viper.SetDefault("geocode.mapboxtoken", "")
	viper.SetDefault("geocode.timeout", 10*time.Second)

	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("birdlist.batchsize", 20)
}
