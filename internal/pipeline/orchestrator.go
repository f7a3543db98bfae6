// Package pipeline runs one folder through discovery, text extraction,
// destination resolution and the final sheet write.
//
// Only authorization, provisioning and write failures abort a run, together
// with cancellation of the caller's context. Listing failures degrade to an
// empty folder and a failed image is counted and skipped, so one unreadable
// image never loses the text read from the others.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"folderscan/internal/auth"
	"folderscan/internal/drive"
	"folderscan/internal/logger"
	"folderscan/pkg/models"
	"folderscan/pkg/services"
)

// DefaultWorkers is the number of concurrent OCR calls when Config.Workers is unset.
const DefaultWorkers = 4

// ProgressFunc is called after each image has been processed. done counts
// finished images, in completion order.
type ProgressFunc func(done, total int, result models.ExtractionResult)

// Config tunes a run.
type Config struct {
	// Workers caps concurrent OCR calls.
	Workers int

	// Progress is optional and may be called from several goroutines, one at a time.
	Progress ProgressFunc
}

// Orchestrator sequences the pipeline capabilities for one folder.
type Orchestrator struct {
	catalog   services.FolderCatalog
	extractor services.TextExtractor
	resolver  services.DestinationResolver
	writer    services.SheetWriter
	config    Config
	log       zerolog.Logger
}

// New creates an orchestrator from explicitly constructed capabilities.
func New(catalog services.FolderCatalog, extractor services.TextExtractor, resolver services.DestinationResolver, writer services.SheetWriter, config Config) *Orchestrator {
	if config.Workers < 1 {
		config.Workers = DefaultWorkers
	}
	return &Orchestrator{
		catalog:   catalog,
		extractor: extractor,
		resolver:  resolver,
		writer:    writer,
		config:    config,
		log:       logger.WithComponent("pipeline"),
	}
}

// Run processes the folder with id folderID. Its display name is looked up
// first; when that lookup fails the run continues with the bare id.
func (o *Orchestrator) Run(ctx context.Context, a models.AuthContext, folderID string) (*models.PipelineOutcome, error) {
	const op = "Run"

	r := o.newRun(models.FolderRef{ID: folderID})
	if err := auth.Validate(a); err != nil {
		return r.abort(op, err)
	}

	folder, err := o.catalog.GetFolder(ctx, a, folderID)
	switch {
	case err == nil:
		r.outcome.FolderName = folder.DisplayName
	case models.IsFatal(err), errors.Is(err, drive.ErrNotFolder):
		return r.abort(op, err)
	default:
		r.log.Warn().Err(err).Msg("Folder lookup failed, continuing with folder id only")
		folder = models.FolderRef{ID: folderID}
		r.outcome.DiscoveryDegraded = true
	}

	return o.process(ctx, a, folder, r)
}

// RunFolder processes a folder whose display name the caller already knows.
func (o *Orchestrator) RunFolder(ctx context.Context, a models.AuthContext, folder models.FolderRef) (*models.PipelineOutcome, error) {
	const op = "RunFolder"

	r := o.newRun(folder)
	if err := auth.Validate(a); err != nil {
		return r.abort(op, err)
	}
	return o.process(ctx, a, folder, r)
}

func (o *Orchestrator) process(ctx context.Context, a models.AuthContext, folder models.FolderRef, r *run) (*models.PipelineOutcome, error) {
	const op = "process"

	r.advance(models.StateFolderResolved)

	assets, err := o.catalog.ListImages(ctx, a, folder)
	if err != nil {
		if models.IsFatal(err) {
			return r.abort(op, err)
		}
		r.log.Warn().Err(err).Msg("Image listing failed, continuing as an empty folder")
		r.outcome.DiscoveryDegraded = true
	}
	r.outcome.ImagesFound = len(assets)
	r.advance(models.StateImagesEnumerated)

	results, err := o.extractAll(ctx, a, assets, r.log)
	if err != nil {
		return r.abort(op, err)
	}
	for _, res := range results {
		switch {
		case res.Failed:
			r.outcome.PerImageFailures++
		case !res.HasText:
			r.outcome.EmptyImages++
		default:
			r.outcome.ExtractedValues = append(r.outcome.ExtractedValues, res.Text)
		}
	}
	r.advance(models.StateExtracted)

	if err := ctx.Err(); err != nil {
		return r.abort(op, err)
	}

	doc, err := o.resolver.Resolve(ctx, a, folder)
	if err != nil {
		return r.abort(op, err)
	}
	r.outcome.DestinationID = doc.ID
	r.outcome.DestinationCreated = doc.Created
	r.advance(models.StateDestinationResolved)

	if len(r.outcome.ExtractedValues) > 0 {
		if err := o.writer.Write(ctx, a, doc, r.outcome.ExtractedValues); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return r.abort(op, ctxErr)
			}
			return r.abort(op, err)
		}
	} else {
		r.log.Info().Msg("No extracted values, leaving destination untouched")
	}
	r.advance(models.StateWritten)

	return r.done(), nil
}

// extractAll runs the extractor over assets with at most config.Workers
// calls in flight. Results keep the enumeration order of assets.
func (o *Orchestrator) extractAll(ctx context.Context, a models.AuthContext, assets []models.ImageAsset, log zerolog.Logger) ([]models.ExtractionResult, error) {
	results := make([]models.ExtractionResult, len(assets))
	if len(assets) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)

	var mu sync.Mutex
	var done int

	for i, asset := range assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := models.ExtractionResult{Index: i, Asset: asset}
			text, ok, err := o.extractor.Extract(gctx, a, asset)
			switch {
			case err == nil:
				res.Text, res.HasText = text, ok
			case models.IsFatal(err):
				return err
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				res.Failed, res.Err = true, err
				log.Warn().
					Err(err).
					Int("index", i).
					Str("asset_id", asset.ID).
					Str("name", asset.Name).
					Msg("Text extraction failed, skipping image")
			}

			// Each index is written by exactly one goroutine
			results[i] = res

			mu.Lock()
			done++
			if o.config.Progress != nil {
				o.config.Progress(done, len(assets), res)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return results, nil
}

// run tracks the outcome and state of one invocation.
type run struct {
	outcome *models.PipelineOutcome
	start   time.Time
	log     zerolog.Logger
}

func (o *Orchestrator) newRun(folder models.FolderRef) *run {
	runID := uuid.NewString()
	r := &run{
		outcome: &models.PipelineOutcome{
			RunID:           runID,
			FolderID:        folder.ID,
			FolderName:      folder.DisplayName,
			ExtractedValues: []string{},
			State:           models.StateAuthorized,
		},
		start: time.Now(),
		log:   logger.WithRunID(o.log, runID).With().Str("folder_id", folder.ID).Logger(),
	}
	r.log.Info().Str("folder_name", folder.DisplayName).Msg("Starting folder run")
	return r
}

func (r *run) advance(state models.RunState) {
	r.outcome.State = state
	r.log.Debug().Str("state", string(state)).Msg("Run advanced")
}

func (r *run) done() *models.PipelineOutcome {
	r.advance(models.StateDone)
	r.outcome.Duration = time.Since(r.start)
	r.log.Info().
		Str("destination_id", r.outcome.DestinationID).
		Int("images", r.outcome.ImagesFound).
		Int("values", len(r.outcome.ExtractedValues)).
		Int("failures", r.outcome.PerImageFailures).
		Dur("duration", r.outcome.Duration).
		Msg("Folder run finished")
	return r.outcome
}

// abort ends the run. The partial outcome is returned with the error so the
// caller keeps any destination id already resolved.
func (r *run) abort(op string, err error) (*models.PipelineOutcome, error) {
	failedAt := r.outcome.State
	r.outcome.State = models.StateAborted
	r.outcome.Duration = time.Since(r.start)
	r.log.Error().
		Err(err).
		Str("failed_after", string(failedAt)).
		Str("destination_id", r.outcome.DestinationID).
		Msg("Folder run aborted")

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return r.outcome, fmt.Errorf("%s: run canceled after %s: %w", op, failedAt, err)
	}
	return r.outcome, err
}
