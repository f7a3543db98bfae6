package drive

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"folderscan/pkg/models"
)

// MockFileStore is a mock implementation of FileStore
type MockFileStore struct {
	mock.Mock
}

var _ FileStore = (*MockFileStore)(nil)

func (m *MockFileStore) ListEntries(ctx context.Context, a models.AuthContext, query Query) ([]Entry, error) {
	args := m.Called(ctx, a, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Entry), args.Error(1)
}

func (m *MockFileStore) GetEntry(ctx context.Context, a models.AuthContext, id string) (Entry, error) {
	args := m.Called(ctx, a, id)
	return args.Get(0).(Entry), args.Error(1)
}

func (m *MockFileStore) CreateEntry(ctx context.Context, a models.AuthContext, entry Entry) (Entry, error) {
	args := m.Called(ctx, a, entry)
	return args.Get(0).(Entry), args.Error(1)
}

func (m *MockFileStore) UpdateEntryParents(ctx context.Context, a models.AuthContext, id string, add, remove []string) (Entry, error) {
	args := m.Called(ctx, a, id, add, remove)
	return args.Get(0).(Entry), args.Error(1)
}

func (m *MockFileStore) TrashEntry(ctx context.Context, a models.AuthContext, id string) error {
	args := m.Called(ctx, a, id)
	return args.Error(0)
}

func (m *MockFileStore) ContentURI(id string) string {
	return "https://drive.test/files/" + id + "?alt=media"
}

var testAuth = models.AuthContext{BearerToken: "token"}

func newTestCatalog(t *testing.T, store FileStore, config CatalogConfig) *Catalog {
	t.Helper()
	c, err := NewCatalog(store, config)
	require.NoError(t, err)
	return c
}

func TestListImagesPreservesOrderAndFilters(t *testing.T) {
	store := new(MockFileStore)
	folder := models.FolderRef{ID: "f1", DisplayName: "Receipts"}

	store.On("ListEntries", mock.Anything, testAuth, ImagesUnder("f1", "name")).Return([]Entry{
		{ID: "b", Name: "b.png", MimeType: "image/png"},
		{ID: "x", Name: "notes.txt", MimeType: "text/plain"},
		{ID: "a", Name: "a.jpg", MimeType: "image/jpeg"},
	}, nil)

	c := newTestCatalog(t, store, CatalogConfig{})
	assets, err := c.ListImages(context.Background(), testAuth, folder)

	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "b", assets[0].ID)
	assert.Equal(t, "a", assets[1].ID)
	assert.Equal(t, "https://drive.test/files/b?alt=media", assets[0].ContentLocation)
	store.AssertExpectations(t)
}

func TestListImagesNamePattern(t *testing.T) {
	store := new(MockFileStore)
	store.On("ListEntries", mock.Anything, testAuth, ImagesUnder("f1", "createdTime")).Return([]Entry{
		{ID: "1", Name: "scan-001.png", MimeType: "image/png"},
		{ID: "2", Name: "photo.jpg", MimeType: "image/jpeg"},
		{ID: "3", Name: "scan-002.jpg", MimeType: "image/jpeg"},
	}, nil)

	c := newTestCatalog(t, store, CatalogConfig{NamePattern: "scan-*.{png,jpg}", OrderBy: "createdTime"})
	assets, err := c.ListImages(context.Background(), testAuth, models.FolderRef{ID: "f1"})

	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "1", assets[0].ID)
	assert.Equal(t, "3", assets[1].ID)
}

func TestListImagesTransportFailureDegrades(t *testing.T) {
	store := new(MockFileStore)
	store.On("ListEntries", mock.Anything, testAuth, mock.Anything).Return(nil, errors.New("connection reset"))

	c := newTestCatalog(t, store, CatalogConfig{})
	assets, err := c.ListImages(context.Background(), testAuth, models.FolderRef{ID: "f1"})

	assert.NotNil(t, assets)
	assert.Empty(t, assets)
	assert.ErrorIs(t, err, models.ErrDiscovery)
	assert.False(t, models.IsFatal(err))
}

func TestListFoldersUnauthorized(t *testing.T) {
	store := new(MockFileStore)
	store.On("ListEntries", mock.Anything, testAuth, FoldersQuery()).
		Return(nil, &googleapi.Error{Code: http.StatusUnauthorized, Message: "Invalid Credentials"})

	c := newTestCatalog(t, store, CatalogConfig{})
	_, err := c.ListFolders(context.Background(), testAuth)

	assert.ErrorIs(t, err, models.ErrAuth)
}

func TestListFoldersMissingTokenMakesNoCall(t *testing.T) {
	store := new(MockFileStore)

	c := newTestCatalog(t, store, CatalogConfig{})
	_, err := c.ListFolders(context.Background(), models.AuthContext{})

	assert.ErrorIs(t, err, models.ErrAuth)
	store.AssertNotCalled(t, "ListEntries", mock.Anything, mock.Anything, mock.Anything)
}

func TestListFolders(t *testing.T) {
	store := new(MockFileStore)
	store.On("ListEntries", mock.Anything, testAuth, FoldersQuery()).Return([]Entry{
		{ID: "f1", Name: "Receipts", MimeType: FolderMimeType},
		{ID: "f2", Name: "Meters", MimeType: FolderMimeType},
	}, nil)

	c := newTestCatalog(t, store, CatalogConfig{})
	folders, err := c.ListFolders(context.Background(), testAuth)

	require.NoError(t, err)
	assert.Equal(t, []models.FolderRef{{ID: "f1", DisplayName: "Receipts"}, {ID: "f2", DisplayName: "Meters"}}, folders)
}

func TestGetFolder(t *testing.T) {
	store := new(MockFileStore)
	store.On("GetEntry", mock.Anything, testAuth, "f1").Return(Entry{ID: "f1", Name: "Receipts", MimeType: FolderMimeType}, nil)
	store.On("GetEntry", mock.Anything, testAuth, "doc").Return(Entry{ID: "doc", Name: "a.pdf", MimeType: "application/pdf"}, nil)

	c := newTestCatalog(t, store, CatalogConfig{})

	folder, err := c.GetFolder(context.Background(), testAuth, "f1")
	require.NoError(t, err)
	assert.Equal(t, "Receipts", folder.DisplayName)

	_, err = c.GetFolder(context.Background(), testAuth, "doc")
	assert.ErrorIs(t, err, ErrNotFolder)
	assert.ErrorIs(t, err, models.ErrDiscovery)
}

func TestNewCatalogRejectsBadPattern(t *testing.T) {
	_, err := NewCatalog(new(MockFileStore), CatalogConfig{NamePattern: "scan-[.png"})
	assert.Error(t, err)
}

func TestQueries(t *testing.T) {
	assert.Equal(t, "mimeType='application/vnd.google-apps.folder' and trashed=false", FoldersQuery().Q)
	assert.Equal(t, `'it\'s' in parents and mimeType contains 'image/' and trashed=false`, ImagesUnder("it's", "name").Q)
	assert.Equal(t, "'f1' in parents and mimeType='application/vnd.google-apps.spreadsheet' and trashed=false", SpreadsheetsUnder("f1").Q)
	assert.Equal(t, "createdTime", SpreadsheetsUnder("f1").OrderBy)
}
