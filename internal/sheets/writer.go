// Package sheets writes extracted values into the first sheet of a Google
// Sheets document, one value per row below a header cell.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"folderscan/internal/auth"
	"folderscan/internal/logger"
	"folderscan/pkg/models"
	"folderscan/pkg/services"
)

// DefaultHeader is written to A1 of a sheet that has no header yet.
const DefaultHeader = "Extracted Text"

// ErrNoSheets is returned when the spreadsheet has no sheet to write to.
var ErrNoSheets = errors.New("spreadsheet has no sheets")

// Writer implements services.SheetWriter on the Sheets v4 API.
type Writer struct {
	header     string
	clientOpts []option.ClientOption
	log        zerolog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithHeader sets the header cell text. An empty header disables it.
func WithHeader(header string) WriterOption {
	return func(w *Writer) {
		w.header = header
	}
}

// WithClientOptions appends raw Google API client options.
func WithClientOptions(opts ...option.ClientOption) WriterOption {
	return func(w *Writer) {
		w.clientOpts = append(w.clientOpts, opts...)
	}
}

// NewWriter creates a sheet writer.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		header: DefaultHeader,
		log:    logger.WithComponent("sheets"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write replaces the value column of doc with values. Empty values make no
// remote call.
func (w *Writer) Write(ctx context.Context, a models.AuthContext, doc models.DestinationDocument, values []string) error {
	const op = "Write"

	if len(values) == 0 {
		w.log.Debug().Str("spreadsheet_id", doc.ID).Msg("No values to write")
		return nil
	}
	if err := auth.Validate(a); err != nil {
		return err
	}

	svc, err := sheets.NewService(ctx, auth.ClientOptions(a, w.clientOpts...)...)
	if err != nil {
		return models.NewWriteError(op, fmt.Errorf("failed to create sheets service: %w", err), doc.ID)
	}

	sheetID, title, err := w.firstSheet(ctx, svc, doc.ID)
	if err != nil {
		return w.failure(op, err, doc.ID)
	}

	if w.header != "" {
		if err := w.ensureHeader(ctx, svc, doc.ID, sheetID, title); err != nil {
			return w.failure(op, err, doc.ID)
		}
	}

	rows := make([][]interface{}, len(values))
	for i, v := range values {
		rows[i] = []interface{}{v}
	}

	valueRange := fmt.Sprintf("%s!A2:A%d", quoteSheet(title), len(values)+1)
	_, err = svc.Spreadsheets.Values.Update(doc.ID, valueRange, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return w.failure(op, fmt.Errorf("failed to update %s: %w", valueRange, err), doc.ID)
	}

	// Rows left over from a longer previous run
	staleRange := fmt.Sprintf("%s!A%d:A", quoteSheet(title), len(values)+2)
	if _, err := svc.Spreadsheets.Values.Clear(doc.ID, staleRange, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		w.log.Warn().Err(err).Str("range", staleRange).Msg("Failed to clear stale rows, continuing anyway")
	}

	w.log.Info().
		Str("spreadsheet_id", doc.ID).
		Str("sheet", title).
		Int("rows_written", len(values)).
		Msg("Successfully wrote extracted values")

	return nil
}

// firstSheet returns the id and title of the first sheet of the spreadsheet.
func (w *Writer) firstSheet(ctx context.Context, svc *sheets.Service, spreadsheetID string) (int64, string, error) {
	spreadsheet, err := svc.Spreadsheets.Get(spreadsheetID).
		Fields("sheets(properties(sheetId,title))").
		Context(ctx).
		Do()
	if err != nil {
		return 0, "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	if len(spreadsheet.Sheets) == 0 || spreadsheet.Sheets[0].Properties == nil {
		return 0, "", ErrNoSheets
	}
	props := spreadsheet.Sheets[0].Properties
	return props.SheetId, props.Title, nil
}

// ensureHeader writes the header to A1 when the cell is empty.
func (w *Writer) ensureHeader(ctx context.Context, svc *sheets.Service, spreadsheetID string, sheetID int64, title string) error {
	headerRange := quoteSheet(title) + "!A1"
	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get header: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	w.log.Info().Str("sheet", title).Msg("Adding header to sheet")

	header := &sheets.ValueRange{Values: [][]interface{}{{w.header}}}
	if _, err := svc.Spreadsheets.Values.Update(spreadsheetID, headerRange, header).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to add header: %w", err)
	}

	if err := w.formatHeader(ctx, svc, spreadsheetID, sheetID); err != nil {
		w.log.Warn().Err(err).Msg("Failed to format header, continuing anyway")
	}
	return nil
}

// formatHeader makes the header cell bold and resizes the value column.
func (w *Writer) formatHeader(ctx context.Context, svc *sheets.Service, spreadsheetID string, sheetID int64) error {
	const op = "formatHeader"

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   1,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{
							Red:   0.9,
							Green: 0.9,
							Blue:  0.9,
						},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   1,
				},
			},
		},
	}

	batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := svc.Spreadsheets.BatchUpdate(spreadsheetID, batchUpdateReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (w *Writer) failure(op string, err error, spreadsheetID string) error {
	if auth.IsUnauthorized(err) {
		return models.NewAuthError(op, err, "sheets rejected the credential")
	}
	w.log.Error().Err(err).Str("spreadsheet_id", spreadsheetID).Msg("Sheet write failed")
	return models.NewWriteError(op, err, spreadsheetID)
}

// quoteSheet renders a sheet title for use in A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

var _ services.SheetWriter = (*Writer)(nil)
