package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdsearch-go/internal/api"
	"github.com/tphakala/birdsearch-go/internal/birdlist"
	"github.com/tphakala/birdsearch-go/internal/conf"
	"github.com/tphakala/birdsearch-go/internal/ebird"
	"github.com/tphakala/birdsearch-go/internal/geo"
	"github.com/tphakala/birdsearch-go/internal/geocode"
	"github.com/tphakala/birdsearch-go/internal/imageprovider"
	"github.com/tphakala/birdsearch-go/internal/logging"
	"github.com/tphakala/birdsearch-go/internal/obscache"
	"github.com/tphakala/birdsearch-go/internal/session"
	"github.com/tphakala/birdsearch-go/internal/suggest"
)

// shutdownTimeout bounds how long in-flight requests may run during shutdown.
const shutdownTimeout = 10 * time.Second

func serveCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), settings)
		},
	}
}

// runServe wires the services together and serves until interrupted.
func runServe(ctx context.Context, settings *conf.Settings) error {
	ebirdClient, err := ebird.NewClient(ebird.Config{
		APIKey:         settings.EBird.APIKey,
		TaxonFindKey:   settings.EBird.TaxonFindKey,
		BaseURL:        settings.EBird.BaseURL,
		MapBaseURL:     settings.EBird.MapBaseURL,
		Timeout:        settings.EBird.Timeout,
		FamilyCacheTTL: settings.EBird.FamilyCacheTTL,
	})
	if err != nil {
		return err
	}
	defer ebirdClient.Close()

	var store obscache.Store
	if settings.Redis.Address != "" {
		redisStore := obscache.NewRedisStore(settings.Redis.Address, settings.Redis.Password, settings.Redis.DB)
		defer func() {
			_ = redisStore.Close()
		}()
		store = redisStore
	}
	obsCache := obscache.New(store, geo.Pair{Lat: settings.Home.Latitude, Lng: settings.Home.Longitude})

	var resolvers []suggest.Resolver
	if settings.Search.Host != "" {
		indexResolver, err := suggest.NewIndexResolver(suggest.IndexConfig{
			Host:       settings.Search.Host,
			APIKey:     settings.Search.APIKey,
			Collection: settings.Search.Collection,
			Timeout:    settings.Search.Timeout,
		})
		if err != nil {
			return err
		}
		resolvers = append(resolvers, indexResolver)
	}
	resolvers = append(resolvers, suggest.NewEBirdResolver(ebirdClient, obsCache))

	engine := suggest.NewEngine(suggest.Config{
		Threshold: settings.Suggest.Threshold,
		Distance:  settings.Suggest.Distance,
	}, resolvers...)

	geocodeService, err := geocode.NewService(settings)
	if err != nil {
		return err
	}

	images := imageprovider.InitCache(imageprovider.NewWikiMediaProvider(settings.EBird.Timeout))
	list := birdlist.NewLoader(images, settings.BirdList.BatchSize)

	controller := api.New(settings, ebirdClient, engine, geocodeService, obsCache, images, list, session.New())

	errCh := make(chan error, 1)
	go func() {
		if err := controller.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case sig := <-sigCh:
		logging.Info("Received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return controller.Shutdown(shutdownCtx)
}
