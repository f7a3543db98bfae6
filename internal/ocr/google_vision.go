package ocr

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"folderscan/internal/logger"
)

// imageAnnotator is the part of *vision.ImageAnnotatorClient the detector uses.
type imageAnnotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// VisionDetector implements Detector with Cloud Vision TEXT_DETECTION.
type VisionDetector struct {
	client imageAnnotator
	log    zerolog.Logger
}

// NewVisionDetector creates a Vision detector with credentials from the environment.
// Extra options are applied after the credential options.
func NewVisionDetector(ctx context.Context, opts ...option.ClientOption) (*VisionDetector, error) {
	const op = "NewVisionDetector"

	credOptions := credentialOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, append(credOptions, opts...)...)
	if err != nil {
		if len(credOptions) == 0 {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrMissingCredentials, err)
		}
		return nil, fmt.Errorf("%s: failed to create image annotator client: %w", op, err)
	}

	return newVisionDetector(client), nil
}

func newVisionDetector(client imageAnnotator) *VisionDetector {
	return &VisionDetector{
		client: client,
		log:    logger.WithComponent("vision"),
	}
}

// DetectText runs text detection on a single image.
func (v *VisionDetector) DetectText(ctx context.Context, img Image) ([]Annotation, error) {
	const op = "DetectText"

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: visionImage(img),
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrOCRFailed, err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, fmt.Errorf("%s: %w: no response from Vision API", op, ErrOCRFailed)
	}

	imageResp := resp.GetResponses()[0]
	if imageResp.GetError() != nil {
		return nil, fmt.Errorf("%s: %w: Vision API error: %s", op, ErrOCRFailed, imageResp.GetError().GetMessage())
	}

	annotations := make([]Annotation, 0, len(imageResp.GetTextAnnotations()))
	for _, a := range imageResp.GetTextAnnotations() {
		annotations = append(annotations, Annotation{Description: a.GetDescription()})
	}

	v.log.Debug().
		Int("annotations", len(annotations)).
		Bool("by_uri", img.URI != "").
		Msg("Vision text detection finished")

	return annotations, nil
}

// Close closes the underlying Vision client.
func (v *VisionDetector) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

func visionImage(img Image) *visionpb.Image {
	if img.URI != "" {
		src := &visionpb.ImageSource{ImageUri: img.URI}
		if strings.HasPrefix(img.URI, "gs://") {
			src = &visionpb.ImageSource{GcsImageUri: img.URI}
		}
		return &visionpb.Image{Source: src}
	}
	return &visionpb.Image{Content: img.Content}
}

var _ Detector = (*VisionDetector)(nil)
