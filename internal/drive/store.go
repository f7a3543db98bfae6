package drive

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"folderscan/internal/auth"
	"folderscan/internal/logger"
	"folderscan/pkg/models"
)

const (
	// FolderMimeType is Drive's content type for folders.
	FolderMimeType = "application/vnd.google-apps.folder"

	// SpreadsheetMimeType is Drive's content type for Google Sheets documents.
	SpreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

	// LinkProperty is the appProperties key that records which folder a
	// provisioned spreadsheet belongs to.
	LinkProperty = "folderscanFolderId"

	defaultBasePath = "https://www.googleapis.com/drive/v3/"
	entryFields     = "id, name, mimeType, parents, createdTime, trashed, appProperties"
)

// Entry is the subset of Drive file metadata the pipeline works with.
type Entry struct {
	ID            string
	Name          string
	MimeType      string
	Parents       []string
	CreatedTime   string
	Trashed       bool
	AppProperties map[string]string
}

// Query is a Drive search expression plus optional ordering.
type Query struct {
	Q       string
	OrderBy string
}

// FileStore is the remote file store capability.
type FileStore interface {
	ListEntries(ctx context.Context, a models.AuthContext, query Query) ([]Entry, error)
	GetEntry(ctx context.Context, a models.AuthContext, id string) (Entry, error)
	CreateEntry(ctx context.Context, a models.AuthContext, entry Entry) (Entry, error)
	UpdateEntryParents(ctx context.Context, a models.AuthContext, id string, add, remove []string) (Entry, error)
	TrashEntry(ctx context.Context, a models.AuthContext, id string) error

	// ContentURI returns the URI from which the file's bytes can be fetched
	// with the same credential.
	ContentURI(id string) string
}

// FoldersQuery matches every folder visible to the credential.
func FoldersQuery() Query {
	return Query{
		Q:       fmt.Sprintf("mimeType=%s and trashed=false", quote(FolderMimeType)),
		OrderBy: "name",
	}
}

// ImagesUnder matches image files directly under folderID.
func ImagesUnder(folderID, orderBy string) Query {
	return Query{
		Q:       fmt.Sprintf("%s in parents and mimeType contains 'image/' and trashed=false", quote(folderID)),
		OrderBy: orderBy,
	}
}

// SpreadsheetsUnder matches spreadsheets directly under folderID, oldest first.
func SpreadsheetsUnder(folderID string) Query {
	return Query{
		Q:       fmt.Sprintf("%s in parents and mimeType=%s and trashed=false", quote(folderID), quote(SpreadsheetMimeType)),
		OrderBy: "createdTime",
	}
}

// quote renders s as a Drive query string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// Client implements FileStore on the Drive v3 API. A Drive service is built
// per call from the caller's credential.
type Client struct {
	basePath   string
	clientOpts []option.ClientOption
	log        zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoint points the client at a different Drive API base URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		c.basePath = endpoint
		c.clientOpts = append(c.clientOpts, option.WithEndpoint(endpoint))
	}
}

// WithClientOptions appends raw Google API client options.
func WithClientOptions(opts ...option.ClientOption) ClientOption {
	return func(c *Client) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// NewClient creates a Drive file store.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		basePath: defaultBasePath,
		log:      logger.WithComponent("drive"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) service(ctx context.Context, a models.AuthContext) (*drive.Service, error) {
	svc, err := drive.NewService(ctx, auth.ClientOptions(a, c.clientOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return svc, nil
}

// ListEntries returns every entry matching query, following all pages.
func (c *Client) ListEntries(ctx context.Context, a models.AuthContext, query Query) ([]Entry, error) {
	const op = "ListEntries"

	svc, err := c.service(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	call := svc.Files.List().
		Q(query.Q).
		PageSize(1000).
		Fields("nextPageToken", googleapi.Field("files("+entryFields+")"))
	if query.OrderBy != "" {
		call = call.OrderBy(query.OrderBy)
	}

	var entries []Entry
	err = call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			entries = append(entries, entryFromFile(f))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: query %q: %w", op, query.Q, err)
	}

	c.log.Debug().
		Str("query", query.Q).
		Int("entries", len(entries)).
		Msg("Listed drive entries")

	return entries, nil
}

// GetEntry returns the metadata of a single file.
func (c *Client) GetEntry(ctx context.Context, a models.AuthContext, id string) (Entry, error) {
	const op = "GetEntry"

	svc, err := c.service(ctx, a)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", op, err)
	}

	f, err := svc.Files.Get(id).Fields(entryFields).Context(ctx).Do()
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %s: %w", op, id, err)
	}
	return entryFromFile(f), nil
}

// CreateEntry creates a metadata-only file such as an empty spreadsheet.
func (c *Client) CreateEntry(ctx context.Context, a models.AuthContext, entry Entry) (Entry, error) {
	const op = "CreateEntry"

	svc, err := c.service(ctx, a)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", op, err)
	}

	f, err := svc.Files.Create(&drive.File{
		Name:          entry.Name,
		MimeType:      entry.MimeType,
		Parents:       entry.Parents,
		AppProperties: entry.AppProperties,
	}).Fields(entryFields).Context(ctx).Do()
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %s: %w", op, entry.Name, err)
	}

	c.log.Info().
		Str("id", f.Id).
		Str("name", f.Name).
		Str("mime_type", f.MimeType).
		Msg("Created drive entry")

	return entryFromFile(f), nil
}

// UpdateEntryParents moves a file by adding and removing parent folders.
func (c *Client) UpdateEntryParents(ctx context.Context, a models.AuthContext, id string, add, remove []string) (Entry, error) {
	const op = "UpdateEntryParents"

	svc, err := c.service(ctx, a)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", op, err)
	}

	call := svc.Files.Update(id, &drive.File{}).Fields(entryFields)
	if len(add) > 0 {
		call = call.AddParents(strings.Join(add, ","))
	}
	if len(remove) > 0 {
		call = call.RemoveParents(strings.Join(remove, ","))
	}

	f, err := call.Context(ctx).Do()
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %s: %w", op, id, err)
	}
	return entryFromFile(f), nil
}

// TrashEntry moves a file to the trash.
func (c *Client) TrashEntry(ctx context.Context, a models.AuthContext, id string) error {
	const op = "TrashEntry"

	svc, err := c.service(ctx, a)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := svc.Files.Update(id, &drive.File{Trashed: true}).Fields("id").Context(ctx).Do(); err != nil {
		return fmt.Errorf("%s: %s: %w", op, id, err)
	}
	return nil
}

// ContentURI returns the Drive media download URI for id.
func (c *Client) ContentURI(id string) string {
	return c.basePath + "files/" + url.PathEscape(id) + "?alt=media"
}

func entryFromFile(f *drive.File) Entry {
	return Entry{
		ID:            f.Id,
		Name:          f.Name,
		MimeType:      f.MimeType,
		Parents:       f.Parents,
		CreatedTime:   f.CreatedTime,
		Trashed:       f.Trashed,
		AppProperties: f.AppProperties,
	}
}

var _ FileStore = (*Client)(nil)
