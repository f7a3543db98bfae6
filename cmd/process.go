package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"folderscan/internal/auth"
	"folderscan/internal/drive"
	"folderscan/internal/logger"
	"folderscan/internal/ocr"
	"folderscan/pkg/models"
)

var processCmd = &cobra.Command{
	Use:   "process [folder-id]",
	Short: "OCR every image in a Drive folder into the folder's spreadsheet",
	Long: `Recognize the text in every image of a Google Drive folder and write the
results, one per row and in folder order, into the spreadsheet that belongs
to the folder. The spreadsheet is created inside the folder on the first run
and reused afterwards.

The credential is taken from --token, then ACCESS_TOKEN, then Application
Default Credentials. OCR itself runs with the service credentials:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string

Optional environment variables:
  OCR_BACKEND - vision (default) or documentai
  EXTRACT_WORKERS - Number of parallel OCR calls (default: 4)
  LINK_STORE - none, memory, firestore or gcs`,
	Example: `  # Process a folder
  folderscan process 1AbCdEfGh --token "$(gcloud auth print-access-token)"

  # Use 8 parallel OCR calls and print the outcome as JSON
  folderscan process 1AbCdEfGh --workers 8 --format json

  # Skip the folder name lookup
  folderscan process 1AbCdEfGh --folder-name Receipts`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().String("token", "", "OAuth2 access token (default: $ACCESS_TOKEN)")
	processCmd.Flags().String("format", formatText, "Output format: text, json or yaml")
	processCmd.Flags().Duration("timeout", 0, "Run timeout (default: RUN_TIMEOUT)")
	processCmd.Flags().Int("workers", 0, "Parallel OCR calls (default: EXTRACT_WORKERS)")
	processCmd.Flags().String("folder-name", "", "Folder display name; skips the name lookup")
	processCmd.Flags().Bool("quiet", false, "Do not print per-image progress")
}

func runProcess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("process")

	folderID := args[0]
	token, _ := cmd.Flags().GetString("token")
	format, _ := cmd.Flags().GetString("format")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	workers, _ := cmd.Flags().GetInt("workers")
	folderName, _ := cmd.Flags().GetString("folder-name")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if err := validateFormat(format); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = cfg.RunTimeout
	}

	log.Info().
		Str("folder_id", folderID).
		Str("format", format).
		Dur("timeout", timeout).
		Int("workers", workers).
		Msg("Starting folder processing")

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	a, err := resolveAuth(ctx, token, log)
	if err != nil {
		return handleRunError(err, log)
	}

	var progress func(done, total int, result models.ExtractionResult)
	if !quiet {
		progress = printProgress
	}

	application, err := newApp(ctx, cfg, workers, progress, log)
	if err != nil {
		return err
	}
	defer application.Close(log)

	var outcome *models.PipelineOutcome
	if folderName != "" {
		outcome, err = application.pipeline.RunFolder(ctx, a, models.FolderRef{ID: folderID, DisplayName: folderName})
	} else {
		outcome, err = application.pipeline.Run(ctx, a, folderID)
	}
	if err != nil {
		if outcome != nil && outcome.DestinationID != "" {
			fmt.Fprintf(os.Stderr, "Spreadsheet: %s\n", outcome.DestinationID)
		}
		return handleRunError(err, log)
	}

	log.Info().
		Str("run_id", outcome.RunID).
		Str("destination_id", outcome.DestinationID).
		Int("values", len(outcome.ExtractedValues)).
		Int("failures", outcome.PerImageFailures).
		Dur("duration", outcome.Duration).
		Msg("Folder processing completed")

	return writeOutput(os.Stdout, format, outcome, func(w io.Writer) {
		printSummary(w, outcome)
	})
}

// printProgress prints one line per finished image. The orchestrator
// serializes calls.
func printProgress(done, total int, result models.ExtractionResult) {
	status := "✅"
	detail := ""
	switch {
	case result.Failed:
		status = "❌"
		if result.Err != nil {
			detail = " (" + result.Err.Error() + ")"
		}
	case !result.HasText:
		status = "⚠️"
		detail = " (no text)"
	default:
		detail = fmt.Sprintf(" (%d chars)", len(result.Text))
	}
	fmt.Fprintf(os.Stderr, "[%d/%d] %s - %s%s\n", done, total, result.Asset.Name, status, detail)
}

func printSummary(w io.Writer, outcome *models.PipelineOutcome) {
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w, "                 RESULT")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	name := outcome.FolderName
	if name == "" {
		name = outcome.FolderID
	}
	fmt.Fprintf(w, "Folder: %s\n", name)
	fmt.Fprintf(w, "Images: %d\n", outcome.ImagesFound)
	fmt.Fprintf(w, "Values written: %d\n", len(outcome.ExtractedValues))
	if outcome.EmptyImages > 0 {
		fmt.Fprintf(w, "Without text: %d\n", outcome.EmptyImages)
	}
	if outcome.PerImageFailures > 0 {
		fmt.Fprintf(w, "Failed: %d\n", outcome.PerImageFailures)
	}
	if outcome.DiscoveryDegraded {
		fmt.Fprintln(w, "Warning: folder listing failed, results may be incomplete")
	}
	created := ""
	if outcome.DestinationCreated {
		created = " (created)"
	}
	fmt.Fprintf(w, "Spreadsheet: %s%s\n", outcome.DestinationID, created)
	if outcome.DestinationID != "" {
		fmt.Fprintf(w, "URL: https://docs.google.com/spreadsheets/d/%s\n", outcome.DestinationID)
	}
	fmt.Fprintf(w, "Duration: %s\n", outcome.Duration)
}

// handleRunError provides user-friendly error messages for run failures
func handleRunError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Folder processing failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout or --workers")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, auth.ErrMissingToken):
		return fmt.Errorf("no access token. Pass --token or set ACCESS_TOKEN, for example:\n" +
			"   export ACCESS_TOKEN=$(gcloud auth print-access-token)")
	case errors.Is(err, auth.ErrExpiredToken):
		return fmt.Errorf("the access token has expired, fetch a new one")
	case errors.Is(err, models.ErrAuth):
		return fmt.Errorf("Google rejected the credential. Check that it grants the drive and spreadsheets scopes: %w", err)
	case errors.Is(err, drive.ErrNotFolder):
		return fmt.Errorf("the id does not name a folder: %w", err)
	case errors.Is(err, models.ErrProvisioning):
		return fmt.Errorf("could not find or create the folder's spreadsheet: %w", err)
	case errors.Is(err, models.ErrWrite):
		var perr *models.PipelineError
		if errors.As(err, &perr) && perr.DestinationID != "" {
			return fmt.Errorf("could not write to spreadsheet %s, rerun to retry: %w", perr.DestinationID, err)
		}
		return fmt.Errorf("could not write to the spreadsheet: %w", err)
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("processing failed: %w", err)
	}
}
