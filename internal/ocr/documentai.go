package ocr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"folderscan/internal/logger"
)

// documentProcessor is the part of *documentai.DocumentProcessorClient the detector uses.
type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIConfig identifies the OCR processor to call.
type DocumentAIConfig struct {
	ProjectID   string
	Location    string // "us" when empty
	ProcessorID string
	Timeout     time.Duration
}

// ProcessorName returns the full resource name of the processor.
func (c DocumentAIConfig) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

// DocumentAIDetector implements Detector with a Document AI OCR processor.
// The document text is returned as a single annotation.
type DocumentAIDetector struct {
	client documentProcessor
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIDetector creates a detector for the processor in config.
func NewDocumentAIDetector(ctx context.Context, config DocumentAIConfig, opts ...option.ClientOption) (*DocumentAIDetector, error) {
	const op = "NewDocumentAIDetector"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, fmt.Errorf("%s: project id and processor id are required", op)
	}
	if config.Location == "" {
		config.Location = "us"
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	clientOptions = append(clientOptions, credentialOptions()...)
	clientOptions = append(clientOptions, opts...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create Document AI client for location %s: %w", op, config.Location, err)
	}

	return newDocumentAIDetector(client, config), nil
}

func newDocumentAIDetector(client documentProcessor, config DocumentAIConfig) *DocumentAIDetector {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &DocumentAIDetector{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

// DetectText processes img with the OCR processor.
func (d *DocumentAIDetector) DetectText(ctx context.Context, img Image) ([]Annotation, error) {
	const op = "DetectText"

	processCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{Name: d.config.ProcessorName()}
	mimeType := img.MimeType
	if img.URI != "" {
		req.Source = &documentaipb.ProcessRequest_GcsDocument{
			GcsDocument: &documentaipb.GcsDocument{GcsUri: img.URI, MimeType: mimeType},
		}
	} else {
		if mimeType == "" {
			mimeType = http.DetectContentType(img.Content)
		}
		req.Source = &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: img.Content, MimeType: mimeType},
		}
	}

	resp, err := d.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrOCRFailed, err)
	}
	if resp.GetDocument() == nil {
		return nil, fmt.Errorf("%s: %w: no document in response", op, ErrOCRFailed)
	}

	text := resp.GetDocument().GetText()
	d.log.Debug().
		Int("chars", len(text)).
		Int("pages", len(resp.GetDocument().GetPages())).
		Msg("Document AI processing finished")

	if text == "" {
		return nil, nil
	}
	return []Annotation{{Description: text}}, nil
}

// Close closes the underlying Document AI client.
func (d *DocumentAIDetector) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

var _ Detector = (*DocumentAIDetector)(nil)
