// Package ocr extracts embedded text from images with Google Cloud OCR services.
//
// Two backends implement Detector: Cloud Vision TEXT_DETECTION (default) and a
// Document AI OCR processor. Extractor sits in front of either one, downloads
// the image with the caller's credential and rejects oversized or corrupt
// images before any OCR call is made.
//
// Service credentials for the OCR backends come from the environment:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//
// Without either, Application Default Credentials are used.
package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
)

// Supported backend names.
const (
	BackendVision     = "vision"
	BackendDocumentAI = "documentai"
)

// Image is the input of a text detection call: inline bytes or a gs:// URI.
type Image struct {
	Content  []byte
	URI      string
	MimeType string
}

// Annotation is one piece of recognized text. The first annotation of a
// detection covers the whole image.
type Annotation struct {
	Description string
}

// Detector is the OCR service capability.
type Detector interface {
	// DetectText returns the text annotations for img, possibly none.
	DetectText(ctx context.Context, img Image) ([]Annotation, error)

	// Close releases the underlying client.
	Close() error
}

// DetectorConfig selects and configures a backend.
type DetectorConfig struct {
	Backend     string
	ProjectID   string
	Location    string
	ProcessorID string
}

// NewDetector creates the detector named by config.Backend.
func NewDetector(ctx context.Context, config DetectorConfig, opts ...option.ClientOption) (Detector, error) {
	switch strings.ToLower(config.Backend) {
	case "", BackendVision:
		d, err := NewVisionDetector(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendDocumentAI:
		d, err := NewDocumentAIDetector(ctx, DocumentAIConfig{
			ProjectID:   config.ProjectID,
			Location:    config.Location,
			ProcessorID: config.ProcessorID,
		}, opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, config.Backend)
	}
}

// credentialOptions returns client options for the service credentials found
// in the environment, or none when Application Default Credentials apply.
func credentialOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}
