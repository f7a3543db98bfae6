package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	// Decoders for image pre-flight
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/oauth2"

	"folderscan/internal/auth"
	"folderscan/internal/logger"
	"folderscan/pkg/models"
	"folderscan/pkg/services"
)

// MaxImageSizeBytes is the largest image sent to an OCR service inline (20MB).
const MaxImageSizeBytes = 20 * 1024 * 1024

// Extractor implements services.TextExtractor on top of a Detector.
type Extractor struct {
	detector   Detector
	httpClient *http.Client
	maxBytes   int64
	log        zerolog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithHTTPClient sets the base client used to download images. The caller's
// bearer token is added on top of its transport.
func WithHTTPClient(c *http.Client) ExtractorOption {
	return func(e *Extractor) {
		e.httpClient = c
	}
}

// WithMaxImageBytes overrides MaxImageSizeBytes.
func WithMaxImageBytes(n int64) ExtractorOption {
	return func(e *Extractor) {
		e.maxBytes = n
	}
}

// NewExtractor creates a text extractor around detector.
func NewExtractor(detector Detector, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		detector: detector,
		maxBytes: MaxImageSizeBytes,
		log:      logger.WithComponent("extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the trimmed text of the first annotation of asset.
// ok is false when the service recognized nothing; that is not an error.
func (e *Extractor) Extract(ctx context.Context, a models.AuthContext, asset models.ImageAsset) (string, bool, error) {
	const op = "Extract"

	if err := auth.Validate(a); err != nil {
		return "", false, err
	}

	img, err := e.load(ctx, a, asset)
	if errors.Is(err, ErrDownloadUnauthorized) {
		return "", false, models.NewAuthError(op, err, "drive rejected the credential")
	}
	if err != nil {
		return "", false, models.NewExtractionError(op, err, asset.ID)
	}

	annotations, err := e.detector.DetectText(ctx, img)
	if err != nil {
		return "", false, models.NewExtractionError(op, err, asset.ID)
	}

	var text string
	if len(annotations) > 0 {
		text = strings.TrimSpace(annotations[0].Description)
	}

	e.log.Debug().
		Str("asset_id", asset.ID).
		Str("name", asset.Name).
		Int("annotations", len(annotations)).
		Bool("has_text", text != "").
		Msg("Extracted image text")

	return text, text != "", nil
}

// DetectImage runs the same checks and text detection as Extract on an
// image the caller already holds, such as a local file.
func (e *Extractor) DetectImage(ctx context.Context, img Image) (string, bool, error) {
	if img.URI == "" {
		if int64(len(img.Content)) > e.maxBytes {
			return "", false, fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, len(img.Content), e.maxBytes)
		}
		if err := e.preflight(img.Content); err != nil {
			return "", false, err
		}
	}

	annotations, err := e.detector.DetectText(ctx, img)
	if err != nil {
		return "", false, err
	}
	if len(annotations) == 0 {
		return "", false, nil
	}
	text := strings.TrimSpace(annotations[0].Description)
	return text, text != "", nil
}

// load turns an asset into a detector input. gs:// locations are passed
// through; anything else is downloaded with the caller's credential.
func (e *Extractor) load(ctx context.Context, a models.AuthContext, asset models.ImageAsset) (Image, error) {
	if strings.HasPrefix(asset.ContentLocation, "gs://") {
		return Image{URI: asset.ContentLocation, MimeType: asset.MimeType}, nil
	}

	data, err := e.fetch(ctx, a, asset.ContentLocation)
	if err != nil {
		return Image{}, err
	}
	if err := e.preflight(data); err != nil {
		return Image{}, err
	}
	return Image{Content: data, MimeType: asset.MimeType}, nil
}

func (e *Extractor) fetch(ctx context.Context, a models.AuthContext, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty content location", ErrFetchFailed)
	}

	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}
	client := auth.HTTPClient(ctx, a)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s returned %s", ErrDownloadUnauthorized, location, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetchFailed, location, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, e.maxBytes)
	}
	return data, nil
}

// preflight rejects empty images and images whose header names a known
// format that does not decode. Unknown formats are left to the OCR service.
func (e *Extractor) preflight(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty content", ErrInvalidImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("%w: %s image has no pixels", ErrInvalidImage, format)
	}
	return nil
}

var _ services.TextExtractor = (*Extractor)(nil)
