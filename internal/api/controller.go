// Package api exposes the bird search service over HTTP.
package api

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/birdsearch-go/internal/birdlist"
	"github.com/tphakala/birdsearch-go/internal/conf"
	"github.com/tphakala/birdsearch-go/internal/ebird"
	"github.com/tphakala/birdsearch-go/internal/geocode"
	"github.com/tphakala/birdsearch-go/internal/imageprovider"
	"github.com/tphakala/birdsearch-go/internal/logging"
	"github.com/tphakala/birdsearch-go/internal/obscache"
	"github.com/tphakala/birdsearch-go/internal/session"
	"github.com/tphakala/birdsearch-go/internal/suggest"
)

// ObservationService is the slice of the eBird client the API depends on.
type ObservationService interface {
	RecentObservations(ctx context.Context, lat, lng, distKm float64) ([]ebird.Observation, error)
	RecentSpeciesObservations(ctx context.Context, speciesCode string, lat, lng, distKm float64) ([]ebird.Observation, error)
	FamilyLookup(ctx context.Context, speciesCodes []string) map[string]string
	RangeExtension(ctx context.Context, speciesCode string) (*ebird.RangeBounds, error)
}

// Controller manages the HTTP API and holds the services it fronts.
type Controller struct {
	Echo     *echo.Echo
	Settings *conf.Settings

	Observations ObservationService
	Suggest      *suggest.Engine
	Geocode      *geocode.Service
	ObsCache     *obscache.Cache
	Images       *imageprovider.BirdImageCache
	List         *birdlist.Loader
	Session      *session.Session

	logger          *slog.Logger
	serviceLevelVar *slog.LevelVar
	closeLogger     func() error
}

// New creates the API controller and registers its routes.
func New(settings *conf.Settings, observations ObservationService, suggestEngine *suggest.Engine,
	geocodeService *geocode.Service, obsCache *obscache.Cache,
	images *imageprovider.BirdImageCache, list *birdlist.Loader, sess *session.Session) *Controller {

	c := &Controller{
		Echo:            echo.New(),
		Settings:        settings,
		Observations:    observations,
		Suggest:         suggestEngine,
		Geocode:         geocodeService,
		ObsCache:        obsCache,
		Images:          images,
		List:            list,
		Session:         sess,
		serviceLevelVar: new(slog.LevelVar),
	}

	if settings.Debug {
		c.serviceLevelVar.Set(slog.LevelDebug)
	} else {
		c.serviceLevelVar.Set(slog.LevelInfo)
	}

	var err error
	c.logger, c.closeLogger, err = logging.NewFileLogger(filepath.Join("logs", "api.log"), "api", c.serviceLevelVar)
	if err != nil {
		logging.Error("Failed to initialize api file logger", "error", err)
		c.logger = logging.NewDiscardLogger("api", c.serviceLevelVar)
		c.closeLogger = func() error { return nil }
	}

	c.Echo.HideBanner = true
	c.Echo.Use(middleware.Recover())
	c.Echo.Use(middleware.CORS())

	c.initRoutes()

	return c
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	v1 := c.Echo.Group("/api/v1")

	v1.GET("/species/search", c.SpeciesSearch)
	v1.GET("/species/observations", c.SelectedObservations)
	v1.GET("/taxonomy/species", c.TaxonomySpecies)
	v1.GET("/taxon/find", c.TaxonFind)
	v1.GET("/suggest", c.SuggestSpecies)
	v1.POST("/suggest/select", c.SelectSpecies)
	v1.GET("/species/extension", c.SpeciesExtension)
	v1.GET("/geocode/reverse", c.GeocodeReverse)
	v1.POST("/images", c.BatchImages)
	v1.GET("/list", c.BirdList)
	v1.POST("/list/more", c.BirdListMore)
	v1.GET("/compare", c.CompareLocations)
}

// Start begins serving on the configured port. Blocks until shutdown.
func (c *Controller) Start() error {
	c.logger.Info("starting HTTP API", "port", c.Settings.Main.Port)
	return c.Echo.Start(":" + c.Settings.Main.Port)
}

// Shutdown stops the HTTP server and closes the controller's logger.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.Echo.Shutdown(ctx)
	if c.closeLogger != nil {
		if cerr := c.closeLogger(); cerr != nil {
			logging.Error("Error closing api logger", "error", cerr)
		}
	}
	return err
}
