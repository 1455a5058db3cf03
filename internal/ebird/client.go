package ebird

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birdsearch-go/internal/errors"
	"github.com/tphakala/birdsearch-go/internal/logging"
	"github.com/tphakala/birdsearch-go/internal/taxonomy"
)

// Package-level logger specific to ebird service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "ebird.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "ebird", serviceLevelVar)
	if err != nil {
		logging.Error("Failed to initialize ebird file logger", "error", err)
		logger = logging.NewDiscardLogger("ebird", serviceLevelVar)
		closeLogger = func() error { return nil }
	}
}

// familyLookupConcurrency bounds the taxonomy fan-out so a large species set
// does not open hundreds of simultaneous upstream requests.
const familyLookupConcurrency = 8

// maxTaxonFindResults caps the remote name-completion candidate list.
const maxTaxonFindResults = 150

// Client provides methods for interacting with the eBird API
type Client struct {
	config      Config
	httpClient  *http.Client
	familyCache *cache.Cache
	rateLimiter *time.Ticker
	mu          sync.Mutex
}

// NewClient creates a new eBird API client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("eBird API key is required").
			Category(errors.CategoryConfiguration).
			Component("ebird").
			Build()
	}

	// Use defaults for missing config values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.MapBaseURL == "" {
		config.MapBaseURL = defaults.MapBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.FamilyCacheTTL == 0 {
		config.FamilyCacheTTL = defaults.FamilyCacheTTL
	}
	if config.RateLimitMS == 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}

	client := &Client{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		familyCache: cache.New(config.FamilyCacheTTL, config.FamilyCacheTTL/4),
		rateLimiter: time.NewTicker(time.Duration(config.RateLimitMS) * time.Millisecond),
	}

	logger.Info("eBird client initialized",
		"base_url", config.BaseURL,
		"family_cache_ttl", config.FamilyCacheTTL,
		"rate_limit_ms", config.RateLimitMS,
		"api_key_configured", config.APIKey != "")

	return client, nil
}

// Close cleans up client resources
func (c *Client) Close() {
	c.rateLimiter.Stop()
	logger.Info("Closing eBird client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			logging.Error("Error closing eBird logger", "error", err)
		}
	}
}

// RecentObservations retrieves recent observations near a point. distKm of 0
// uses the upstream default radius.
func (c *Client) RecentObservations(ctx context.Context, lat, lng, distKm float64) ([]Observation, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", lat))
	q.Set("lng", fmt.Sprintf("%g", lng))
	if distKm > 0 {
		q.Set("dist", fmt.Sprintf("%g", distKm))
	}
	reqURL := fmt.Sprintf("%s/data/obs/geo/recent?%s", c.config.BaseURL, q.Encode())

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var observations []Observation
	if err := c.doRequest(reqCtx, reqURL, c.config.APIKey, &observations); err != nil {
		return nil, err
	}

	logger.Debug("recent observations fetched",
		"lat", lat, "lng", lng, "dist_km", distKm, "count", len(observations))

	return observations, nil
}

// RecentSpeciesObservations retrieves recent observations of one species near
// a point. distKm of 0 uses the upstream default radius.
func (c *Client) RecentSpeciesObservations(ctx context.Context, speciesCode string, lat, lng, distKm float64) ([]Observation, error) {
	if speciesCode == "" {
		return nil, errors.Newf("species code is required").
			Category(errors.CategoryValidation).
			Component("ebird").
			Build()
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", lat))
	q.Set("lng", fmt.Sprintf("%g", lng))
	if distKm > 0 {
		q.Set("dist", fmt.Sprintf("%g", distKm))
	}
	reqURL := fmt.Sprintf("%s/data/obs/geo/recent/%s?%s", c.config.BaseURL, url.PathEscape(speciesCode), q.Encode())

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var observations []Observation
	if err := c.doRequest(reqCtx, reqURL, c.config.APIKey, &observations); err != nil {
		return nil, err
	}

	logger.Debug("recent species observations fetched",
		"species_code", speciesCode, "lat", lat, "lng", lng, "count", len(observations))

	return observations, nil
}

// SpeciesFamily returns the family common name for a species code. Results
// are cached with a long TTL since family assignments rarely change.
func (c *Client) SpeciesFamily(ctx context.Context, speciesCode string) (string, error) {
	if speciesCode == "" {
		return "", errors.Newf("species code is required").
			Category(errors.CategoryValidation).
			Component("ebird").
			Build()
	}

	cacheKey := speciesCode + "-family"
	if cached, found := c.familyCache.Get(cacheKey); found {
		if family, ok := cached.(string); ok {
			logger.Debug("species family cache hit", "species_code", speciesCode)
			return family, nil
		}
	}

	reqURL := fmt.Sprintf("%s/ref/taxonomy/ebird?fmt=json&species=%s", c.config.BaseURL, url.QueryEscape(speciesCode))

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var entries []TaxonomyEntry
	if err := c.doRequest(reqCtx, reqURL, c.config.APIKey, &entries); err != nil {
		return "", err
	}

	if len(entries) == 0 {
		return "", errors.Newf("species not found: %s", speciesCode).
			Category(errors.CategoryNotFound).
			Context("species_code", speciesCode).
			Component("ebird").
			Build()
	}

	family := entries[0].FamilyComName
	c.familyCache.Set(cacheKey, family, cache.DefaultExpiration)

	return family, nil
}

// FamilyLookup resolves family names for a batch of species codes with a
// bounded fan-out. Individual lookup failures are logged and skipped so a
// single bad code cannot fail its siblings; the returned map is partial on
// failure, never nil.
func (c *Client) FamilyLookup(ctx context.Context, speciesCodes []string) map[string]string {
	families := make(map[string]string, len(speciesCodes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(familyLookupConcurrency)

	for _, code := range speciesCodes {
		code := code
		g.Go(func() error {
			family, err := c.SpeciesFamily(gctx, code)
			if err != nil {
				logger.Warn("family lookup failed, skipping species",
					"species_code", code, "error", err)
				return nil
			}
			mu.Lock()
			families[code] = family
			mu.Unlock()
			return nil
		})
	}

	// Per-item errors are swallowed above, Wait only observes ctx cancellation
	_ = g.Wait()

	return families
}

// TaxonFind searches the full eBird taxonomy for name completions.
func (c *Client) TaxonFind(ctx context.Context, query string) ([]TaxonFindResult, error) {
	if query == "" {
		return nil, errors.Newf("search text is required").
			Category(errors.CategoryValidation).
			Component("ebird").
			Build()
	}

	q := url.Values{}
	q.Set("cat", "species")
	q.Set("key", c.config.TaxonFindKey)
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", maxTaxonFindResults))
	reqURL := fmt.Sprintf("%s/ref/taxon/find?%s", c.config.BaseURL, q.Encode())

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var results []TaxonFindResult
	if err := c.doRequest(reqCtx, reqURL, c.config.APIKey, &results); err != nil {
		return nil, err
	}

	if len(results) > maxTaxonFindResults {
		results = results[:maxTaxonFindResults]
	}

	return results, nil
}

// RangeExtension returns the bounding rectangle of a species' range. The map
// service requires a two-step flow: fetch an rsid token for the species, then
// exchange it for the environment bounds.
func (c *Client) RangeExtension(ctx context.Context, speciesCode string) (*RangeBounds, error) {
	if speciesCode == "" {
		return nil, errors.Newf("species code is required").
			Category(errors.CategoryValidation).
			Component("ebird").
			Build()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	rsidURL := fmt.Sprintf("%s/rsid?speciesCode=%s&gridScale=100", c.config.MapBaseURL, url.QueryEscape(speciesCode))
	rsid, err := c.doTextRequest(reqCtx, rsidURL)
	if err != nil {
		return nil, err
	}

	envURL := fmt.Sprintf("%s/env?speciesCode=%s&rsid=%s", c.config.MapBaseURL, url.QueryEscape(speciesCode), url.QueryEscape(strings.TrimSpace(rsid)))
	var bounds RangeBounds
	if err := c.doRequest(reqCtx, envURL, "", &bounds); err != nil {
		return nil, err
	}

	return &bounds, nil
}

// SortRecentFirst orders observations by observation time descending, then by
// count descending. Unparseable timestamps sort last.
func SortRecentFirst(observations []Observation) {
	const obsDtLayout = "2006-01-02 15:04"

	parse := func(s string) (time.Time, bool) {
		t, err := time.Parse(obsDtLayout, s)
		return t, err == nil
	}

	sort.SliceStable(observations, func(i, j int) bool {
		ti, oki := parse(observations[i].ObsDt)
		tj, okj := parse(observations[j].ObsDt)
		switch {
		case oki && !okj:
			return true
		case !oki && okj:
			return false
		case oki && okj && !ti.Equal(tj):
			return ti.After(tj)
		}
		return observations[i].HowMany > observations[j].HowMany
	})
}

// SpeciesMap collapses observations into the common-name to species-code map
// used by suggestion matching. Names are lowercased since the common name is
// a case-insensitive key; last writer wins on upstream duplicates.
func SpeciesMap(observations []Observation) map[string]string {
	m := make(map[string]string, len(observations))
	for i := range observations {
		m[strings.ToLower(observations[i].CommonName)] = observations[i].SpeciesCode
	}
	return m
}

// SpeciesEntries collapses observations into a deduplicated species entry
// list preserving observation order.
func SpeciesEntries(observations []Observation) []taxonomy.SpeciesEntry {
	seen := make(map[string]struct{}, len(observations))
	entries := make([]taxonomy.SpeciesEntry, 0, len(observations))
	for i := range observations {
		key := strings.ToLower(observations[i].CommonName)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, taxonomy.SpeciesEntry{
			CommonName:  observations[i].CommonName,
			SpeciesCode: observations[i].SpeciesCode,
		})
	}
	return entries
}

// doRequest performs a GET request with rate limiting and optional auth,
// decoding the JSON response into result.
func (c *Client) doRequest(ctx context.Context, reqURL, apiKey string, result any) error {
	body, err := c.fetch(ctx, reqURL, apiKey)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			logger.Error("Failed to parse eBird API response",
				"error", err,
				"url", reqURL,
				"response_size", len(body))
			return errors.Newf("failed to parse response: %w", err).
				Category(errors.CategoryFileParsing).
				Context("url", reqURL).
				Context("response_size", len(body)).
				Component("ebird").
				Build()
		}
	}

	return nil
}

// doTextRequest performs a GET request returning the raw response body as text.
func (c *Client) doTextRequest(ctx context.Context, reqURL string) (string, error) {
	body, err := c.fetch(ctx, reqURL, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) fetch(ctx context.Context, reqURL, apiKey string) ([]byte, error) {
	// Rate limiting
	c.mu.Lock()
	<-c.rateLimiter.C
	c.mu.Unlock()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", reqURL).
			Component("ebird").
			Build()
	}

	if apiKey != "" {
		req.Header.Set("X-eBirdApiToken", apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("eBird API request failed", "error", err, "url", reqURL)
		return nil, errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", reqURL).
			Component("ebird").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("Failed to read response body",
			"error", err, "url", reqURL, "status_code", resp.StatusCode)
		return nil, errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", reqURL).
			Context("status_code", resp.StatusCode).
			Component("ebird").
			Build()
	}

	if resp.StatusCode >= 400 {
		var apiErr Error
		detail := string(bodyBytes)
		if err := json.Unmarshal(bodyBytes, &apiErr); err == nil && apiErr.Detail != "" {
			detail = apiErr.Detail
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			logger.Error("eBird API authentication failed",
				"status_code", resp.StatusCode,
				"url", reqURL,
				"has_api_key", apiKey != "")
		} else {
			logger.Warn("eBird API error response",
				"status_code", resp.StatusCode,
				"detail", detail,
				"url", reqURL)
		}

		return nil, errors.Newf("eBird API error (status %d): %s", resp.StatusCode, detail).
			Category(errorCategory(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			Context("url", reqURL).
			Component("ebird").
			Build()
	}

	logger.Debug("eBird API request successful",
		"url", reqURL,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_size", len(bodyBytes))

	return bodyBytes, nil
}

// errorCategory maps an HTTP status code to an error category.
func errorCategory(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CategoryConfiguration
	case http.StatusTooManyRequests:
		return errors.CategoryLimit
	case http.StatusNotFound:
		return errors.CategoryNotFound
	default:
		return errors.CategoryNetwork
	}
}
