package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	drivev3 "google.golang.org/api/drive/v3"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"folderscan/internal/auth"
	"folderscan/internal/config"
	"folderscan/internal/destination"
	"folderscan/internal/drive"
	"folderscan/internal/linkstore"
	"folderscan/internal/ocr"
	"folderscan/internal/pipeline"
	"folderscan/internal/sheets"
	"folderscan/pkg/models"
)

// app holds the wired pipeline and everything that must be closed with it.
type app struct {
	catalog  *drive.Catalog
	pipeline *pipeline.Orchestrator
	closers  []func() error
}

// newApp builds the pipeline capabilities described by cfg.
func newApp(ctx context.Context, cfg *config.Config, workers int, progress pipeline.ProgressFunc, log zerolog.Logger) (*app, error) {
	a := &app{}

	store := drive.NewClient()
	catalog, err := drive.NewCatalog(store, drive.CatalogConfig{
		NamePattern: cfg.ImageNamePattern,
		OrderBy:     cfg.ImageOrderBy,
	})
	if err != nil {
		return nil, err
	}
	a.catalog = catalog

	detector, err := createDetector(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, detector.Close)

	var resolverOpts []destination.Option
	registry, err := newRegistry(ctx, cfg)
	if err != nil {
		a.Close(log)
		return nil, err
	}
	if registry != nil {
		a.closers = append(a.closers, registry.Close)
		resolverOpts = append(resolverOpts, destination.WithRegistry(registry))
	}

	if workers < 1 {
		workers = cfg.ExtractWorkers
	}

	a.pipeline = pipeline.New(
		catalog,
		ocr.NewExtractor(detector),
		destination.NewResolver(store, resolverOpts...),
		sheets.NewWriter(sheets.WithHeader(cfg.SheetHeader)),
		pipeline.Config{Workers: workers, Progress: progress},
	)

	log.Debug().
		Str("ocr_backend", cfg.OCRBackend).
		Str("link_store", cfg.LinkStore).
		Int("workers", workers).
		Msg("Pipeline wired")

	return a, nil
}

// Close releases the OCR client and the link registry.
func (a *app) Close(log zerolog.Logger) {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Msg("Failed to close client")
		}
	}
}

// createDetector creates the configured OCR backend
func createDetector(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Detector, error) {
	detector, err := ocr.NewDetector(ctx, ocr.DetectorConfig{
		Backend:     cfg.OCRBackend,
		ProjectID:   cfg.GoogleCloudProject,
		Location:    cfg.GoogleCloudLocation,
		ProcessorID: cfg.DocumentAIProcessorID,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("backend", cfg.OCRBackend).
			Msg("Failed to create OCR client")
		return nil, fmt.Errorf("failed to create OCR client: %w\n\n"+
			"Set GOOGLE_APPLICATION_CREDENTIALS to a service account JSON file, or\n"+
			"GOOGLE_CREDENTIALS to inline JSON, or run:\n"+
			"   gcloud auth application-default login", err)
	}
	return detector, nil
}

// newRegistry returns the folder link registry named by cfg.LinkStore, or
// nil when link guarding is off.
func newRegistry(ctx context.Context, cfg *config.Config) (linkstore.Registry, error) {
	switch cfg.LinkStore {
	case config.LinkStoreMemory:
		return linkstore.NewMemoryRegistry(), nil
	case config.LinkStoreFirestore:
		r, err := linkstore.NewFirestoreRegistry(ctx, cfg.GoogleCloudProject, cfg.LinkCollection)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.LinkStoreGCS:
		r, err := linkstore.NewGCSRegistry(ctx, cfg.LinkBucket, cfg.LinkPrefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, nil
	}
}

// resolveAuth returns the credential for a command-line run: the --token
// flag, then ACCESS_TOKEN, then Application Default Credentials.
func resolveAuth(ctx context.Context, token string, log zerolog.Logger) (models.AuthContext, error) {
	if token == "" {
		token = os.Getenv("ACCESS_TOKEN")
	}
	if strings.TrimSpace(token) != "" {
		return models.AuthContext{BearerToken: token}, nil
	}

	log.Debug().Msg("No access token given, using Application Default Credentials")
	ts, err := google.DefaultTokenSource(ctx, drivev3.DriveScope, sheetsv4.SpreadsheetsScope)
	if err != nil {
		return models.AuthContext{}, models.NewAuthError("resolveAuth", err, "no --token, ACCESS_TOKEN or default credentials")
	}
	tok, err := ts.Token()
	if err != nil {
		return models.AuthContext{}, models.NewAuthError("resolveAuth", err, "default credentials returned no token")
	}
	return auth.FromToken(tok), nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling run")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
