package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tphakala/birdsearch-go/internal/ebird"
	"github.com/tphakala/birdsearch-go/internal/errors"
	"github.com/tphakala/birdsearch-go/internal/obscache"
	"github.com/tphakala/birdsearch-go/internal/taxonomy"
)

// maxExtendedResults caps the candidate list returned by any resolver.
const maxExtendedResults = 150

// Resolver searches the full species taxonomy for name completions beyond the
// locally loaded set.
type Resolver interface {
	// Name identifies the resolver in logs.
	Name() string
	// Resolve returns candidate species for a query. An empty slice means
	// "no candidates", not an error.
	Resolve(ctx context.Context, query string) ([]taxonomy.SpeciesEntry, error)
}

// CleanName strips the trailing qualifier from a taxonomy display name.
// Upstream completions arrive as "Common Name - Scientific name"; only the
// part before the first separator is a usable common name.
func CleanName(name string) string {
	if idx := strings.Index(name, " - "); idx >= 0 {
		return name[:idx]
	}
	return name
}

// normalizeEntries cleans display names, sorts ascending by cleaned name and
// caps the list.
func normalizeEntries(entries []taxonomy.SpeciesEntry) []taxonomy.SpeciesEntry {
	for i := range entries {
		entries[i].CommonName = CleanName(entries[i].CommonName)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CommonName < entries[j].CommonName
	})
	if len(entries) > maxExtendedResults {
		entries = entries[:maxExtendedResults]
	}
	return entries
}

// IndexResolver queries a hosted search index (Typesense-compatible documents
// search endpoint) over the full taxonomy.
type IndexResolver struct {
	host       string
	apiKey     string
	collection string
	httpClient *http.Client
}

// IndexConfig holds the search index connection settings.
type IndexConfig struct {
	Host       string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewIndexResolver creates a resolver backed by a hosted search index.
func NewIndexResolver(cfg IndexConfig) (*IndexResolver, error) {
	if cfg.Host == "" {
		return nil, errors.Newf("search index host is required").
			Category(errors.CategoryConfiguration).
			Component("suggest").
			Build()
	}
	if cfg.Collection == "" {
		cfg.Collection = "species"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &IndexResolver{
		host:       cfg.Host,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (r *IndexResolver) Name() string { return "index" }

type indexSearchResponse struct {
	Hits []struct {
		Document struct {
			CommonName  string `json:"comName"`
			SpeciesCode string `json:"speciesCode"`
		} `json:"document"`
	} `json:"hits"`
}

// Resolve queries the index collection by common name.
func (r *IndexResolver) Resolve(ctx context.Context, query string) ([]taxonomy.SpeciesEntry, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("query_by", "comName")
	q.Set("per_page", fmt.Sprintf("%d", maxExtendedResults))
	reqURL := fmt.Sprintf("https://%s/collections/%s/documents/search?%s",
		r.host, url.PathEscape(r.collection), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Newf("failed to create index request: %w", err).
			Category(errors.CategoryNetwork).
			Component("suggest").
			Build()
	}
	req.Header.Set("X-TYPESENSE-API-KEY", r.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Newf("index search failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("query", query).
			Component("suggest").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf("failed to read index response: %w", err).
			Category(errors.CategoryNetwork).
			Component("suggest").
			Build()
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("index search returned status %d", resp.StatusCode).
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Component("suggest").
			Build()
	}

	var parsed indexSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Newf("failed to parse index response: %w", err).
			Category(errors.CategoryFileParsing).
			Component("suggest").
			Build()
	}

	entries := make([]taxonomy.SpeciesEntry, 0, len(parsed.Hits))
	for _, hit := range parsed.Hits {
		if hit.Document.CommonName == "" || hit.Document.SpeciesCode == "" {
			continue
		}
		entries = append(entries, taxonomy.SpeciesEntry{
			CommonName:  hit.Document.CommonName,
			SpeciesCode: hit.Document.SpeciesCode,
		})
	}
	return normalizeEntries(entries), nil
}

// EBirdResolver falls back to the eBird taxon find endpoint, with results
// cached per query since the full taxonomy changes rarely.
type EBirdResolver struct {
	client *ebird.Client
	cache  *obscache.Cache
}

// NewEBirdResolver creates a resolver backed by the eBird taxonomy search.
// The cache may be nil, in which case every query goes upstream.
func NewEBirdResolver(client *ebird.Client, cache *obscache.Cache) *EBirdResolver {
	return &EBirdResolver{client: client, cache: cache}
}

func (r *EBirdResolver) Name() string { return "ebird" }

// Resolve searches the eBird taxonomy, consulting the taxon cache first and
// writing fresh results back before returning them.
func (r *EBirdResolver) Resolve(ctx context.Context, query string) ([]taxonomy.SpeciesEntry, error) {
	if cached, found := r.cache.GetTaxonResults(ctx, query); found {
		return resultsToEntries(cached), nil
	}

	results, err := r.client.TaxonFind(ctx, query)
	if err != nil {
		return nil, err
	}

	r.cache.SetTaxonResults(ctx, query, results)

	return resultsToEntries(results), nil
}

func resultsToEntries(results []ebird.TaxonFindResult) []taxonomy.SpeciesEntry {
	entries := make([]taxonomy.SpeciesEntry, 0, len(results))
	for _, res := range results {
		if res.Code == "" {
			continue
		}
		entries = append(entries, taxonomy.SpeciesEntry{
			CommonName:  res.Name,
			SpeciesCode: res.Code,
		})
	}
	return normalizeEntries(entries)
}
