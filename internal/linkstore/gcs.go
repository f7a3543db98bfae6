package linkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"folderscan/internal/logger"
)

// GCSRegistry stores links as JSON objects <prefix><folderId>.json.
type GCSRegistry struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	log    zerolog.Logger
}

// NewGCSRegistry creates a registry in bucket under prefix.
func NewGCSRegistry(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSRegistry, error) {
	const op = "NewGCSRegistry"

	if bucket == "" {
		return nil, fmt.Errorf("%s: bucket must be provided", op)
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create storage client: %w", op, err)
	}

	return &GCSRegistry{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: prefix,
		log:    logger.WithComponent("linkstore"),
	}, nil
}

func (r *GCSRegistry) objectName(folderID string) string {
	return r.prefix + folderID + ".json"
}

// Claim implements Registry with a DoesNotExist write precondition.
func (r *GCSRegistry) Claim(ctx context.Context, link Link) (Link, bool, error) {
	const op = "Claim"

	if link.ClaimedAt.IsZero() {
		link.ClaimedAt = time.Now().UTC()
	}
	name := r.objectName(link.FolderID)

	writer := r.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/json"

	if err := json.NewEncoder(writer).Encode(link); err != nil {
		_ = writer.Close()
		return Link{}, false, fmt.Errorf("%s: write %s: %w", op, name, err)
	}
	err := writer.Close()
	if err == nil {
		r.log.Debug().Str("folder_id", link.FolderID).Str("destination_id", link.DestinationID).Msg("Claimed folder link")
		return link, true, nil
	}
	if !isPreconditionFailed(err) {
		return Link{}, false, fmt.Errorf("%s: finalize %s: %w", op, name, err)
	}

	r.log.Debug().Str("object", name).Msg("Folder link already exists")

	existing, _, err := r.read(ctx, name)
	if err != nil {
		return Link{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return existing, existing.DestinationID == link.DestinationID, nil
}

// Release implements Registry. The delete is conditioned on the generation
// that was read, so a newer claim is never removed.
func (r *GCSRegistry) Release(ctx context.Context, folderID, destinationID string) error {
	const op = "Release"

	name := r.objectName(folderID)
	existing, generation, err := r.read(ctx, name)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if existing.DestinationID != destinationID {
		return nil
	}

	err = r.bucket.Object(name).If(storage.Conditions{GenerationMatch: generation}).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) || isPreconditionFailed(err) {
		return nil
	}
	return fmt.Errorf("%s: delete %s: %w", op, name, err)
}

func (r *GCSRegistry) read(ctx context.Context, name string) (Link, int64, error) {
	reader, err := r.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return Link{}, 0, fmt.Errorf("read %s: %w", name, err)
	}
	defer reader.Close()

	var link Link
	if err := json.NewDecoder(reader).Decode(&link); err != nil {
		return Link{}, 0, fmt.Errorf("decode %s: %w", name, err)
	}
	return link, reader.Attrs.Generation, nil
}

// Close closes the storage client.
func (r *GCSRegistry) Close() error {
	return r.client.Close()
}

// isPreconditionFailed reports whether err is a failed write or delete
// precondition on either storage transport.
func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusPreconditionFailed
	}
	return status.Code(err) == codes.FailedPrecondition
}

var _ Registry = (*GCSRegistry)(nil)
