package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"folderscan/internal/logger"
	"folderscan/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file|gs://bucket/object]",
	Short: "Recognize the text in a single image",
	Long: `Run the configured OCR backend on one image and print the text that a
folder run would write for it: the first annotation, trimmed.

Useful to check credentials and backend settings before processing a folder.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID (documentai backend)`,
	Example: `  # Recognize a local scan
  folderscan ocr meter.jpg

  # Recognize an image in Cloud Storage with Document AI
  OCR_BACKEND=documentai folderscan ocr gs://scans/meter.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().Duration("timeout", 2*time.Minute, "Processing timeout")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	timeout, _ := cmd.Flags().GetDuration("timeout")
	source := args[0]

	img, err := loadImage(source, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	detector, err := createDetector(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := detector.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close OCR client")
		}
	}()

	start := time.Now()
	text, ok, err := ocr.NewExtractor(detector).DetectImage(ctx, img)
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Str("source", source).
		Str("backend", cfg.OCRBackend).
		Bool("has_text", ok).
		Dur("duration", time.Since(start)).
		Msg("OCR completed")

	if !ok {
		fmt.Fprintln(os.Stderr, "No text found in the image.")
		return nil
	}
	fmt.Println(text)
	return nil
}

// loadImage reads a local image file, or passes a gs:// URI through.
func loadImage(source string, log zerolog.Logger) (ocr.Image, error) {
	if strings.HasPrefix(source, "gs://") {
		return ocr.Image{URI: source}, nil
	}

	fileInfo, err := os.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return ocr.Image{}, fmt.Errorf("image file not found: %s", source)
		}
		return ocr.Image{}, fmt.Errorf("error accessing image file: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return ocr.Image{}, fmt.Errorf("path is not a regular file: %s", source)
	}
	if fileInfo.Size() > ocr.MaxImageSizeBytes {
		log.Error().
			Str("file", source).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxImageSizeBytes).
			Msg("Image file exceeds maximum size limit")
		return ocr.Image{}, fmt.Errorf("image file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxImageSizeBytes)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return ocr.Image{}, fmt.Errorf("failed to read image file: %w", err)
	}

	log.Debug().
		Str("file", filepath.Base(source)).
		Int64("size", fileInfo.Size()).
		Msg("Loaded image file")

	return ocr.Image{Content: data, MimeType: http.DetectContentType(data)}, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, ocr.ErrImageTooLarge):
		return fmt.Errorf("image is too large (maximum 20MB)")
	case errors.Is(err, ocr.ErrInvalidImage):
		return fmt.Errorf("invalid or corrupted image file: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Please check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS: %w", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure the service account may call the OCR API: %w", err)
	default:
		return handleRunError(err, log)
	}
}
