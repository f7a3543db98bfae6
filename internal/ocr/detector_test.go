package ocr

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/genproto/googleapis/rpc/status"
)

type fakeAnnotator struct {
	req  *visionpb.BatchAnnotateImagesRequest
	resp *visionpb.BatchAnnotateImagesResponse
	err  error
}

func (f *fakeAnnotator) BatchAnnotateImages(_ context.Context, req *visionpb.BatchAnnotateImagesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeAnnotator) Close() error { return nil }

func TestVisionDetectTextInline(t *testing.T) {
	fake := &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			TextAnnotations: []*visionpb.EntityAnnotation{
				{Description: "METER 0042\n"},
				{Description: "METER"},
				{Description: "0042"},
			},
		}},
	}}

	annotations, err := newVisionDetector(fake).DetectText(context.Background(), Image{Content: []byte("img")})

	require.NoError(t, err)
	assert.Equal(t, []Annotation{{"METER 0042\n"}, {"METER"}, {"0042"}}, annotations)

	require.Len(t, fake.req.GetRequests(), 1)
	r := fake.req.GetRequests()[0]
	assert.Equal(t, []byte("img"), r.GetImage().GetContent())
	assert.Equal(t, visionpb.Feature_TEXT_DETECTION, r.GetFeatures()[0].GetType())
}

func TestVisionDetectTextByURI(t *testing.T) {
	fake := &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{}},
	}}

	annotations, err := newVisionDetector(fake).DetectText(context.Background(), Image{URI: "gs://bucket/a.png"})

	require.NoError(t, err)
	assert.Empty(t, annotations)
	assert.Equal(t, "gs://bucket/a.png", fake.req.GetRequests()[0].GetImage().GetSource().GetGcsImageUri())
}

func TestVisionDetectTextErrors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeAnnotator
	}{
		{"transport", &fakeAnnotator{err: errors.New("unavailable")}},
		{"empty response", &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{}}},
		{"image error", &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{Error: &status.Status{Code: 3, Message: "Bad image data."}}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newVisionDetector(tt.fake).DetectText(context.Background(), Image{Content: []byte("x")})
			assert.ErrorIs(t, err, ErrOCRFailed)
		})
	}
}

type fakeProcessor struct {
	req  *documentaipb.ProcessRequest
	resp *documentaipb.ProcessResponse
	err  error
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, req *documentaipb.ProcessRequest, _ ...gax.CallOption) (*documentaipb.ProcessResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeProcessor) Close() error { return nil }

func TestDocumentAIDetectText(t *testing.T) {
	fake := &fakeProcessor{resp: &documentaipb.ProcessResponse{Document: &documentaipb.Document{Text: "INV-7\n"}}}
	config := DocumentAIConfig{ProjectID: "p", Location: "eu", ProcessorID: "ocr1"}

	annotations, err := newDocumentAIDetector(fake, config).DetectText(context.Background(), Image{Content: []byte("\x89PNG\r\n\x1a\n0000")})

	require.NoError(t, err)
	assert.Equal(t, []Annotation{{"INV-7\n"}}, annotations)
	assert.Equal(t, "projects/p/locations/eu/processors/ocr1", fake.req.GetName())
	assert.Equal(t, "image/png", fake.req.GetRawDocument().GetMimeType())
}

func TestDocumentAIDetectTextEmptyAndErrors(t *testing.T) {
	config := DocumentAIConfig{ProjectID: "p", Location: "us", ProcessorID: "ocr1"}

	annotations, err := newDocumentAIDetector(&fakeProcessor{resp: &documentaipb.ProcessResponse{Document: &documentaipb.Document{}}}, config).
		DetectText(context.Background(), Image{URI: "gs://b/o.png", MimeType: "image/png"})
	require.NoError(t, err)
	assert.Empty(t, annotations)

	_, err = newDocumentAIDetector(&fakeProcessor{resp: &documentaipb.ProcessResponse{}}, config).
		DetectText(context.Background(), Image{Content: []byte("x")})
	assert.ErrorIs(t, err, ErrOCRFailed)

	_, err = newDocumentAIDetector(&fakeProcessor{err: errors.New("deadline")}, config).
		DetectText(context.Background(), Image{Content: []byte("x")})
	assert.ErrorIs(t, err, ErrOCRFailed)
}

func TestNewDetectorUnknownBackend(t *testing.T) {
	_, err := NewDetector(context.Background(), DetectorConfig{Backend: "tesseract"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewDocumentAIDetectorRequiresProcessor(t *testing.T) {
	_, err := NewDocumentAIDetector(context.Background(), DocumentAIConfig{ProjectID: "p"})
	assert.Error(t, err)
}

func TestNewVisionDetectorMissingCredentialsWithExtraOptions(t *testing.T) {
	t.Setenv("GOOGLE_CREDENTIALS", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewVisionDetector(context.Background(), option.WithCredentialsJSON([]byte("not json")))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestNewVisionDetectorBadEnvironmentCredentials(t *testing.T) {
	t.Setenv("GOOGLE_CREDENTIALS", "not json")

	_, err := NewVisionDetector(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingCredentials)
}
