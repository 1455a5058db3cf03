package imageprovider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tphakala/birdsearch-go/internal/errors"
)

const wikipediaSummaryURL = "https://en.wikipedia.org/api/rest_v1/page/summary/"

// userAgent identifies this service per the Wikimedia User-Agent policy.
const userAgent = "birdsearch-go/1.0 (https://github.com/tphakala/birdsearch-go)"

// wikiMediaProvider fetches bird thumbnails from the Wikipedia page summary
// endpoint, keyed by species common name.
type wikiMediaProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewWikiMediaProvider creates a Wikipedia-backed image provider.
func NewWikiMediaProvider(timeout time.Duration) ImageProvider {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &wikiMediaProvider{
		baseURL:    wikipediaSummaryURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type wikiSummaryResponse struct {
	Thumbnail struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
}

// Fetch resolves the page summary thumbnail for a species common name.
func (p *wikiMediaProvider) Fetch(ctx context.Context, commonName string) (BirdImage, error) {
	title := strings.ReplaceAll(strings.TrimSpace(commonName), " ", "_")
	reqURL := p.baseURL + url.PathEscape(title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return BirdImage{}, errors.Newf("failed to create request: %w", err).
			Category(errors.CategoryImageFetch).
			Component("imageprovider").
			Build()
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return BirdImage{}, errors.Newf("image fetch failed: %w", err).
			Category(errors.CategoryImageFetch).
			Context("common_name", commonName).
			Component("imageprovider").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return BirdImage{}, errors.Newf("image fetch returned status %d", resp.StatusCode).
			Category(errors.CategoryImageFetch).
			Context("status_code", resp.StatusCode).
			Context("common_name", commonName).
			Component("imageprovider").
			Build()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return BirdImage{}, errors.Newf("failed to read image response: %w", err).
			Category(errors.CategoryImageFetch).
			Component("imageprovider").
			Build()
	}

	var summary wikiSummaryResponse
	if err := json.Unmarshal(body, &summary); err != nil {
		return BirdImage{}, errors.Newf("failed to parse image response: %w", err).
			Category(errors.CategoryFileParsing).
			Component("imageprovider").
			Build()
	}

	return BirdImage{
		URL:        summary.Thumbnail.Source,
		CommonName: commonName,
	}, nil
}
