package linkstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"folderscan/internal/logger"
)

// FirestoreRegistry stores links as documents <collection>/<folderId>.
type FirestoreRegistry struct {
	client     *firestore.Client
	collection string
	log        zerolog.Logger
}

// NewFirestoreRegistry creates a registry in the given project and collection.
func NewFirestoreRegistry(ctx context.Context, projectID, collection string, opts ...option.ClientOption) (*FirestoreRegistry, error) {
	const op = "NewFirestoreRegistry"

	if projectID == "" {
		return nil, fmt.Errorf("%s: projectID must be provided to create a firestore client", op)
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create Firestore client: %w", op, err)
	}

	return &FirestoreRegistry{
		client:     client,
		collection: collection,
		log:        logger.WithComponent("linkstore"),
	}, nil
}

// Claim implements Registry with DocumentRef.Create, which fails with
// AlreadyExists when another run got there first.
func (r *FirestoreRegistry) Claim(ctx context.Context, link Link) (Link, bool, error) {
	const op = "Claim"

	if link.ClaimedAt.IsZero() {
		link.ClaimedAt = time.Now().UTC()
	}

	ref := r.client.Collection(r.collection).Doc(link.FolderID)
	_, err := ref.Create(ctx, link)
	if err == nil {
		r.log.Debug().Str("folder_id", link.FolderID).Str("destination_id", link.DestinationID).Msg("Claimed folder link")
		return link, true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return Link{}, false, fmt.Errorf("%s: create %s: %w", op, ref.Path, err)
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return Link{}, false, fmt.Errorf("%s: read existing link %s: %w", op, ref.Path, err)
	}
	var existing Link
	if err := snap.DataTo(&existing); err != nil {
		return Link{}, false, fmt.Errorf("%s: decode existing link %s: %w", op, ref.Path, err)
	}
	return existing, existing.DestinationID == link.DestinationID, nil
}

// Release implements Registry. The compare and delete run in one transaction.
func (r *FirestoreRegistry) Release(ctx context.Context, folderID, destinationID string) error {
	const op = "Release"

	ref := r.client.Collection(r.collection).Doc(folderID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var existing Link
		if err := snap.DataTo(&existing); err != nil {
			return err
		}
		if existing.DestinationID != destinationID {
			return nil
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, ref.Path, err)
	}
	return nil
}

// Close closes the Firestore client.
func (r *FirestoreRegistry) Close() error {
	return r.client.Close()
}

var _ Registry = (*FirestoreRegistry)(nil)
