package services

import (
	"context"

	"folderscan/pkg/models"
)

// FolderCatalog lists folders and the image files inside them
type FolderCatalog interface {
	// ListFolders returns every folder visible to the credential.
	// On transport failure it returns an empty slice and a discovery error.
	ListFolders(ctx context.Context, auth models.AuthContext) ([]models.FolderRef, error)

	// GetFolder resolves the display name of a folder id.
	GetFolder(ctx context.Context, auth models.AuthContext, folderID string) (models.FolderRef, error)

	// ListImages returns image-typed files under folder in enumeration order.
	// On transport failure it returns an empty slice and a discovery error.
	ListImages(ctx context.Context, auth models.AuthContext, folder models.FolderRef) ([]models.ImageAsset, error)
}

// TextExtractor recognizes text in a single image
type TextExtractor interface {
	// Extract returns the trimmed first annotation. ok is false when the
	// service recognized nothing; err is only set for a failed OCR call.
	Extract(ctx context.Context, auth models.AuthContext, asset models.ImageAsset) (text string, ok bool, err error)
}

// DestinationResolver finds or provisions the spreadsheet linked to a folder
type DestinationResolver interface {
	Resolve(ctx context.Context, auth models.AuthContext, folder models.FolderRef) (models.DestinationDocument, error)
}

// SheetWriter writes a column of values into the destination document
type SheetWriter interface {
	// Write is a no-op for an empty values slice.
	Write(ctx context.Context, auth models.AuthContext, doc models.DestinationDocument, values []string) error
}
