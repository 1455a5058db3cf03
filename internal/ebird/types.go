// Package ebird provides a client for the eBird API v2: recent observations
// near a point, per-species family taxonomy, free-text taxon search, and
// range-extension bounds.
package ebird

import "time"

// Observation is a single recent observation as returned by the
// data/obs/geo/recent endpoint. Read-only; lifetime is one search session.
type Observation struct {
	SpeciesCode string  `json:"speciesCode"`
	CommonName  string  `json:"comName"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	ObsDt       string  `json:"obsDt"`
	HowMany     int     `json:"howMany"`
	LocName     string  `json:"locName"`
}

// TaxonomyEntry is a single entry from the ref/taxonomy endpoint. Only the
// fields this service consumes are mapped.
type TaxonomyEntry struct {
	ScientificName string `json:"sciName"`
	CommonName     string `json:"comName"`
	SpeciesCode    string `json:"speciesCode"`
	Category       string `json:"category"`
	FamilyComName  string `json:"familyComName"`
	FamilySciName  string `json:"familySciName"`
}

// TaxonFindResult is a name completion candidate from ref/taxon/find. The
// name usually carries a " - " suffixed scientific name.
type TaxonFindResult struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// RangeBounds is the bounding rectangle of a species' range extension, used
// to seed an out-of-local-area search.
type RangeBounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Config holds configuration for the eBird client
type Config struct {
	APIKey         string        // token for data and ref/taxonomy endpoints
	TaxonFindKey   string        // token for the ref/taxon/find endpoint
	BaseURL        string        // API base URL
	MapBaseURL     string        // base URL for range map endpoints
	Timeout        time.Duration // per-request timeout
	FamilyCacheTTL time.Duration // TTL for the species-code to family cache
	RateLimitMS    int           // milliseconds between requests
}

// Error represents an eBird API error response
type Error struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	return e.Detail
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.ebird.org/v2",
		MapBaseURL:     "https://ebird.org/map",
		Timeout:        30 * time.Second,
		FamilyCacheTTL: 30 * 24 * time.Hour, // family assignments rarely change
		RateLimitMS:    100,                 // 10 requests per second max
	}
}
