// Package destination finds or provisions the spreadsheet that receives the
// values extracted from a folder.
//
// The oldest spreadsheet directly inside the folder is reused. When there is
// none, a new one named after the folder is created and moved into it. With a
// link registry configured, the registry decides which document owns the
// folder and a run that loses a creation race discards its own document.
package destination

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"

	"folderscan/internal/auth"
	"folderscan/internal/drive"
	"folderscan/internal/linkstore"
	"folderscan/internal/logger"
	"folderscan/pkg/models"
	"folderscan/pkg/services"
)

// ErrLinkContention is returned when the folder link could not be settled
// after a stale link was released.
var ErrLinkContention = errors.New("folder link is contended")

// claimAttempts bounds Claim calls per Resolve: the first claim plus one
// retry after releasing a stale link.
const claimAttempts = 2

// Resolver implements services.DestinationResolver on a drive.FileStore.
type Resolver struct {
	store    drive.FileStore
	registry linkstore.Registry
	log      zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRegistry guards creation races with a link registry.
func WithRegistry(registry linkstore.Registry) Option {
	return func(r *Resolver) {
		r.registry = registry
	}
}

// NewResolver creates a destination resolver.
func NewResolver(store drive.FileStore, opts ...Option) *Resolver {
	r := &Resolver{
		store: store,
		log:   logger.WithComponent("destination"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the spreadsheet linked to folder, creating it when needed.
func (r *Resolver) Resolve(ctx context.Context, a models.AuthContext, folder models.FolderRef) (models.DestinationDocument, error) {
	const op = "Resolve"

	if err := auth.Validate(a); err != nil {
		return models.DestinationDocument{}, err
	}
	if folder.ID == "" {
		return models.DestinationDocument{}, models.NewProvisioningError(op, errors.New("empty folder id"), "")
	}

	doc, found, err := r.findExisting(ctx, a, folder)
	if err != nil {
		return models.DestinationDocument{}, r.failure(op, err, folder.ID)
	}
	if !found {
		doc, err = r.create(ctx, a, folder)
		if err != nil {
			return models.DestinationDocument{}, r.failure(op, err, folder.ID)
		}
	}

	if r.registry != nil {
		doc, err = r.claim(ctx, a, folder, doc)
		if err != nil {
			return models.DestinationDocument{}, r.failure(op, err, folder.ID)
		}
	}

	r.log.Info().
		Str("folder_id", folder.ID).
		Str("spreadsheet_id", doc.ID).
		Bool("created", doc.Created).
		Msg("Resolved destination spreadsheet")

	return doc, nil
}

// findExisting returns the oldest spreadsheet directly under folder.
func (r *Resolver) findExisting(ctx context.Context, a models.AuthContext, folder models.FolderRef) (models.DestinationDocument, bool, error) {
	entries, err := r.store.ListEntries(ctx, a, drive.SpreadsheetsUnder(folder.ID))
	if err != nil {
		return models.DestinationDocument{}, false, fmt.Errorf("failed to list spreadsheets: %w", err)
	}
	if len(entries) == 0 {
		return models.DestinationDocument{}, false, nil
	}
	if len(entries) > 1 {
		r.log.Warn().
			Str("folder_id", folder.ID).
			Int("spreadsheets", len(entries)).
			Str("reused", entries[0].ID).
			Msg("Folder holds several spreadsheets, reusing the oldest")
	}
	return models.DestinationDocument{ID: entries[0].ID, LinkedFolderID: folder.ID}, true, nil
}

// create provisions a spreadsheet and moves it into folder.
func (r *Resolver) create(ctx context.Context, a models.AuthContext, folder models.FolderRef) (models.DestinationDocument, error) {
	name := folder.DisplayName
	if name == "" {
		name = folder.ID
	}

	entry, err := r.store.CreateEntry(ctx, a, drive.Entry{
		Name:          name,
		MimeType:      drive.SpreadsheetMimeType,
		AppProperties: map[string]string{drive.LinkProperty: folder.ID},
	})
	if err != nil {
		return models.DestinationDocument{}, fmt.Errorf("failed to create spreadsheet: %w", err)
	}

	var remove []string
	for _, p := range entry.Parents {
		if p != folder.ID {
			remove = append(remove, p)
		}
	}
	if _, err := r.store.UpdateEntryParents(ctx, a, entry.ID, []string{folder.ID}, remove); err != nil {
		// Outside the folder the spreadsheet would never be found again
		if trashErr := r.store.TrashEntry(ctx, a, entry.ID); trashErr != nil {
			r.log.Warn().Err(trashErr).Str("spreadsheet_id", entry.ID).Msg("Failed to trash unplaced spreadsheet")
		}
		return models.DestinationDocument{}, fmt.Errorf("failed to move spreadsheet %s into folder: %w", entry.ID, err)
	}

	r.log.Info().
		Str("folder_id", folder.ID).
		Str("spreadsheet_id", entry.ID).
		Str("name", name).
		Msg("Created destination spreadsheet")

	return models.DestinationDocument{ID: entry.ID, LinkedFolderID: folder.ID, Created: true}, nil
}

// claim settles ownership of folder in the registry. A losing document that
// this call created is moved to the trash.
func (r *Resolver) claim(ctx context.Context, a models.AuthContext, folder models.FolderRef, doc models.DestinationDocument) (models.DestinationDocument, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		winner, claimed, err := r.registry.Claim(ctx, linkstore.Link{FolderID: folder.ID, DestinationID: doc.ID})
		if err != nil {
			return models.DestinationDocument{}, fmt.Errorf("failed to claim folder link: %w", err)
		}
		if claimed {
			return doc, nil
		}

		live, err := r.isLive(ctx, a, winner.DestinationID, folder.ID)
		if err != nil {
			return models.DestinationDocument{}, err
		}
		if live {
			r.discard(ctx, a, doc, winner.DestinationID)
			return models.DestinationDocument{ID: winner.DestinationID, LinkedFolderID: folder.ID}, nil
		}

		r.log.Warn().
			Str("folder_id", folder.ID).
			Str("stale_id", winner.DestinationID).
			Msg("Releasing stale folder link")
		if err := r.registry.Release(ctx, folder.ID, winner.DestinationID); err != nil {
			return models.DestinationDocument{}, fmt.Errorf("failed to release stale folder link: %w", err)
		}
	}
	return models.DestinationDocument{}, ErrLinkContention
}

// isLive reports whether id is an untrashed file inside folderID.
func (r *Resolver) isLive(ctx context.Context, a models.AuthContext, id, folderID string) (bool, error) {
	entry, err := r.store.GetEntry(ctx, a, id)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check linked spreadsheet %s: %w", id, err)
	}
	if entry.Trashed {
		return false, nil
	}
	for _, p := range entry.Parents {
		if p == folderID {
			return true, nil
		}
	}
	return false, nil
}

// discard trashes a document this call created after losing the race.
func (r *Resolver) discard(ctx context.Context, a models.AuthContext, doc models.DestinationDocument, winnerID string) {
	if !doc.Created || doc.ID == winnerID {
		return
	}
	if err := r.store.TrashEntry(ctx, a, doc.ID); err != nil {
		r.log.Warn().Err(err).Str("spreadsheet_id", doc.ID).Msg("Failed to trash duplicate spreadsheet")
		return
	}
	r.log.Info().
		Str("spreadsheet_id", doc.ID).
		Str("winner_id", winnerID).
		Msg("Trashed duplicate spreadsheet after losing folder link")
}

func (r *Resolver) failure(op string, err error, folderID string) error {
	if auth.IsUnauthorized(err) {
		return models.NewAuthError(op, err, "drive rejected the credential")
	}
	r.log.Error().Err(err).Str("folder_id", folderID).Msg("Destination provisioning failed")
	return models.NewProvisioningError(op, err, folderID)
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

var _ services.DestinationResolver = (*Resolver)(nil)
