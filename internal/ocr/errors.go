package ocr

import "errors"

// Common OCR processing errors
var (
	// ErrImageTooLarge is returned when an image exceeds the size the OCR
	// services accept inline (20MB).
	ErrImageTooLarge = errors.New("image size exceeds the maximum limit (20MB)")

	// ErrInvalidImage is returned when the bytes claim a known image format
	// but do not decode.
	ErrInvalidImage = errors.New("invalid or corrupted image")

	// ErrOCRFailed is returned when the OCR service rejects or fails a request.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrFetchFailed is returned when the image bytes could not be downloaded.
	ErrFetchFailed = errors.New("image download failed")

	// ErrDownloadUnauthorized is returned when the file store rejects the
	// caller's credential while the image is downloaded.
	ErrDownloadUnauthorized = errors.New("image download unauthorized")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS is configured and no default credentials exist.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrUnknownBackend is returned by NewDetector for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown OCR backend")
)
