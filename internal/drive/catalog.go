// Package drive discovers folders and images in Google Drive.
//
// Listing failures are reported as discovery errors next to an empty result
// rather than aborting: a folder run prefers a degraded outcome over none.
// Callers can still tell "no images" from "listing failed" by the error.
package drive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"folderscan/internal/auth"
	"folderscan/internal/logger"
	"folderscan/pkg/models"
	"folderscan/pkg/services"
)

// ErrNotFolder is returned by GetFolder when the id names a regular file.
var ErrNotFolder = errors.New("entry is not a folder")

// CatalogConfig tunes image enumeration.
type CatalogConfig struct {
	// NamePattern is an optional doublestar glob applied to image file names.
	NamePattern string

	// OrderBy is the Drive ordering of images, "name" when empty.
	OrderBy string
}

// Catalog implements services.FolderCatalog on a FileStore.
type Catalog struct {
	store  FileStore
	config CatalogConfig
	log    zerolog.Logger
}

// NewCatalog creates a folder catalog.
func NewCatalog(store FileStore, config CatalogConfig) (*Catalog, error) {
	if config.NamePattern != "" && !doublestar.ValidatePattern(config.NamePattern) {
		return nil, fmt.Errorf("invalid image name pattern: %q", config.NamePattern)
	}
	if config.OrderBy == "" {
		config.OrderBy = "name"
	}
	return &Catalog{
		store:  store,
		config: config,
		log:    logger.WithComponent("catalog"),
	}, nil
}

// ListFolders lists every folder visible to the credential.
func (c *Catalog) ListFolders(ctx context.Context, a models.AuthContext) ([]models.FolderRef, error) {
	const op = "ListFolders"

	if err := auth.Validate(a); err != nil {
		return nil, err
	}

	entries, err := c.store.ListEntries(ctx, a, FoldersQuery())
	if err != nil {
		return []models.FolderRef{}, c.discoveryFailure(op, err, "")
	}

	folders := make([]models.FolderRef, 0, len(entries))
	for _, e := range entries {
		folders = append(folders, models.FolderRef{ID: e.ID, DisplayName: e.Name})
	}
	return folders, nil
}

// GetFolder resolves folderID to a FolderRef.
func (c *Catalog) GetFolder(ctx context.Context, a models.AuthContext, folderID string) (models.FolderRef, error) {
	const op = "GetFolder"

	if err := auth.Validate(a); err != nil {
		return models.FolderRef{}, err
	}

	entry, err := c.store.GetEntry(ctx, a, folderID)
	if err != nil {
		return models.FolderRef{}, c.discoveryFailure(op, err, folderID)
	}
	if entry.MimeType != FolderMimeType {
		return models.FolderRef{}, models.NewDiscoveryError(op, ErrNotFolder, fmt.Sprintf("%s has type %s", folderID, entry.MimeType))
	}
	return models.FolderRef{ID: entry.ID, DisplayName: entry.Name}, nil
}

// ListImages lists image files directly under folder in Drive order.
func (c *Catalog) ListImages(ctx context.Context, a models.AuthContext, folder models.FolderRef) ([]models.ImageAsset, error) {
	const op = "ListImages"

	if err := auth.Validate(a); err != nil {
		return nil, err
	}

	entries, err := c.store.ListEntries(ctx, a, ImagesUnder(folder.ID, c.config.OrderBy))
	if err != nil {
		return []models.ImageAsset{}, c.discoveryFailure(op, err, folder.ID)
	}

	assets := make([]models.ImageAsset, 0, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.MimeType, "image/") {
			continue
		}
		if c.config.NamePattern != "" {
			// The pattern was validated in NewCatalog, so Match cannot fail here
			if ok, _ := doublestar.Match(c.config.NamePattern, e.Name); !ok {
				continue
			}
		}
		assets = append(assets, models.ImageAsset{
			ID:              e.ID,
			Name:            e.Name,
			MimeType:        e.MimeType,
			ContentLocation: c.store.ContentURI(e.ID),
		})
	}

	c.log.Info().
		Str("folder_id", folder.ID).
		Int("entries", len(entries)).
		Int("images", len(assets)).
		Msg("Enumerated folder images")

	return assets, nil
}

// discoveryFailure maps a store error to an auth error or a logged discovery error.
func (c *Catalog) discoveryFailure(op string, err error, folderID string) error {
	if auth.IsUnauthorized(err) {
		return models.NewAuthError(op, err, "drive rejected the credential")
	}
	c.log.Warn().
		Err(err).
		Str("op", op).
		Str("folder_id", folderID).
		Msg("Drive listing failed, continuing with empty result")
	return models.NewDiscoveryError(op, err, folderID)
}

var _ services.FolderCatalog = (*Catalog)(nil)
