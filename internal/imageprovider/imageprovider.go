// Package imageprovider provides functionality for fetching and caching bird
// images used to enrich species list batches.
package imageprovider

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdsearch-go/internal/logging"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger(filepath.Join("logs", "imageprovider.log"), "imageprovider", serviceLevelVar)
	if err != nil {
		logging.Error("Failed to initialize imageprovider file logger", "error", err)
		logger = logging.NewDiscardLogger("imageprovider", serviceLevelVar)
	}
}

// BirdImage represents a fetched bird image with its metadata
type BirdImage struct {
	URL        string    `json:"imageUrl"`
	CommonName string    `json:"name"`
	CachedAt   time.Time `json:"-"`
}

// ImageProvider defines the interface for fetching bird images.
type ImageProvider interface {
	Fetch(ctx context.Context, commonName string) (BirdImage, error)
}

// emptyImageProvider is an ImageProvider that always returns an empty BirdImage.
type emptyImageProvider struct{}

func (emptyImageProvider) Fetch(ctx context.Context, commonName string) (BirdImage, error) {
	return BirdImage{CommonName: commonName}, nil
}

// defaultImageTTL bounds how long a fetched image URL is reused.
const defaultImageTTL = 14 * 24 * time.Hour

// BirdImageCache caches fetched images in front of a provider so repeated
// batches do not refetch species already seen this session.
type BirdImageCache struct {
	provider ImageProvider
	images   *cache.Cache
}

// InitCache initializes a new BirdImageCache with the given ImageProvider.
func InitCache(provider ImageProvider) *BirdImageCache {
	if provider == nil {
		provider = emptyImageProvider{}
	}
	return &BirdImageCache{
		provider: provider,
		images:   cache.New(defaultImageTTL, time.Hour),
	}
}

// SetImageProvider allows setting a custom ImageProvider for testing purposes.
func (c *BirdImageCache) SetImageProvider(provider ImageProvider) {
	c.provider = provider
}

// Get returns the image for a species, fetching through the provider on a
// cache miss. A fetch failure is returned to the caller; nothing is cached
// for failed fetches so a later retry can succeed.
func (c *BirdImageCache) Get(ctx context.Context, commonName string) (BirdImage, error) {
	if cached, found := c.images.Get(commonName); found {
		if img, ok := cached.(BirdImage); ok {
			return img, nil
		}
	}

	img, err := c.provider.Fetch(ctx, commonName)
	if err != nil {
		logger.Warn("image fetch failed", "common_name", commonName, "error", err)
		return BirdImage{}, err
	}

	img.CommonName = commonName
	img.CachedAt = time.Now()
	c.images.Set(commonName, img, cache.DefaultExpiration)

	return img, nil
}
