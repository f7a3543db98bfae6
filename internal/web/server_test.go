package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"folderscan/internal/drive"
	"folderscan/pkg/models"
	"folderscan/pkg/services"
)

// MockCatalog is a mock implementation of services.FolderCatalog
type MockCatalog struct {
	mock.Mock
}

var _ services.FolderCatalog = (*MockCatalog)(nil)

func (m *MockCatalog) ListFolders(ctx context.Context, a models.AuthContext) ([]models.FolderRef, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FolderRef), args.Error(1)
}

func (m *MockCatalog) GetFolder(ctx context.Context, a models.AuthContext, folderID string) (models.FolderRef, error) {
	args := m.Called(ctx, a, folderID)
	return args.Get(0).(models.FolderRef), args.Error(1)
}

func (m *MockCatalog) ListImages(ctx context.Context, a models.AuthContext, folder models.FolderRef) ([]models.ImageAsset, error) {
	args := m.Called(ctx, a, folder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ImageAsset), args.Error(1)
}

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

var _ Runner = (*MockRunner)(nil)

func (m *MockRunner) Run(ctx context.Context, a models.AuthContext, folderID string) (*models.PipelineOutcome, error) {
	args := m.Called(ctx, a, folderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PipelineOutcome), args.Error(1)
}

var userAuth = mock.MatchedBy(func(a models.AuthContext) bool { return a.BearerToken == "user-token" })

// newTokenServer fakes the OAuth2 token endpoint.
func newTokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": accessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "profile email",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, catalog services.FolderCatalog, runner Runner, accessToken string) *Server {
	t.Helper()
	tokenSrv := newTokenServer(t, accessToken)
	oauth := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/auth/callback",
		Scopes:       []string{"profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.test/o/oauth2/auth",
			TokenURL:  tokenSrv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return NewServer(oauth, catalog, runner, Config{RunTimeout: time.Minute})
}

func serve(s *Server, method, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// login runs the handshake and returns the session cookie.
func login(t *testing.T, s *Server) *http.Cookie {
	t.Helper()

	rec := serve(s, http.MethodGet, "/auth")
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.test", loc.Host)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, sessionCookie, cookie.Name)
	assert.True(t, cookie.HttpOnly)

	rec = serve(s, http.MethodGet, "/auth/callback?state="+url.QueryEscape(state)+"&code=the-code", cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/select-folder", rec.Header().Get("Location"))
	return cookie
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, new(MockCatalog), new(MockRunner), "user-token")
	rec := serve(s, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestFullFlow(t *testing.T) {
	catalog := new(MockCatalog)
	runner := new(MockRunner)
	s := newTestServer(t, catalog, runner, "user-token")

	cookie := login(t, s)

	catalog.On("ListFolders", mock.Anything, userAuth).Return([]models.FolderRef{
		{ID: "f1", DisplayName: "Receipts & Bills"},
	}, nil)

	rec := serve(s, http.MethodGet, "/select-folder", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "folderId=f1")
	assert.Contains(t, rec.Body.String(), "Receipts &amp; Bills")

	runner.On("Run", mock.Anything, userAuth, "f1").Return(&models.PipelineOutcome{
		RunID:           "run-1",
		FolderID:        "f1",
		DestinationID:   "D1",
		ExtractedValues: []string{"A", "B"},
		State:           models.StateDone,
	}, nil)

	rec = serve(s, http.MethodGet, "/process-folder?folderId=f1&folderName=Receipts", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Processing folder: f1", body["message"])
	assert.Equal(t, "D1", body["spreadsheetId"])
	assert.Equal(t, "D1", body["destinationId"])
	assert.Equal(t, []interface{}{"A", "B"}, body["extractedValues"])
	assert.Equal(t, "Receipts", body["folderName"])

	catalog.AssertExpectations(t)
	runner.AssertExpectations(t)
}

func TestCallbackRejectsBadState(t *testing.T) {
	s := newTestServer(t, new(MockCatalog), new(MockRunner), "user-token")

	rec := serve(s, http.MethodGet, "/auth")
	cookie := rec.Result().Cookies()[0]

	rec = serve(s, http.MethodGet, "/auth/callback?state=forged&code=the-code", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication failed", decodeBody(t, rec)["error"])
}

func TestCallbackWithoutSession(t *testing.T) {
	s := newTestServer(t, new(MockCatalog), new(MockRunner), "user-token")

	rec := serve(s, http.MethodGet, "/auth/callback?state=x&code=the-code")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallbackEmptyAccessToken(t *testing.T) {
	s := newTestServer(t, new(MockCatalog), new(MockRunner), "")

	rec := serve(s, http.MethodGet, "/auth")
	loc, _ := url.Parse(rec.Header().Get("Location"))
	cookie := rec.Result().Cookies()[0]

	rec = serve(s, http.MethodGet, "/auth/callback?state="+url.QueryEscape(loc.Query().Get("state"))+"&code=the-code", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication failed", decodeBody(t, rec)["error"])
}

func TestRoutesRequireToken(t *testing.T) {
	catalog := new(MockCatalog)
	runner := new(MockRunner)
	s := newTestServer(t, catalog, runner, "user-token")

	for _, target := range []string{"/select-folder", "/process-folder?folderId=f1&folderName=Receipts"} {
		rec := serve(s, http.MethodGet, target)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.Equal(t, "Unauthorized - Missing Access Token", decodeBody(t, rec)["error"])
	}

	catalog.AssertNotCalled(t, "ListFolders", mock.Anything, mock.Anything)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessFolderMissingParamsRedirects(t *testing.T) {
	s := newTestServer(t, new(MockCatalog), new(MockRunner), "user-token")

	rec := serve(s, http.MethodGet, "/process-folder?folderId=f1")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/select-folder", rec.Header().Get("Location"))
}

func TestIndexRedirects(t *testing.T) {
	s := newTestServer(t, new(MockCatalog), new(MockRunner), "user-token")

	rec := serve(s, http.MethodGet, "/")
	assert.Equal(t, "/auth", rec.Header().Get("Location"))

	cookie := login(t, s)
	rec = serve(s, http.MethodGet, "/", cookie)
	assert.Equal(t, "/select-folder", rec.Header().Get("Location"))
}

func TestSelectFolderDegraded(t *testing.T) {
	catalog := new(MockCatalog)
	s := newTestServer(t, catalog, new(MockRunner), "user-token")
	cookie := login(t, s)

	catalog.On("ListFolders", mock.Anything, userAuth).
		Return([]models.FolderRef{}, models.NewDiscoveryError("ListFolders", errors.New("timeout"), ""))

	rec := serve(s, http.MethodGet, "/select-folder", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "incomplete")
}

func TestSelectFolderUnauthorized(t *testing.T) {
	catalog := new(MockCatalog)
	s := newTestServer(t, catalog, new(MockRunner), "user-token")
	cookie := login(t, s)

	catalog.On("ListFolders", mock.Anything, userAuth).
		Return(nil, models.NewAuthError("ListFolders", errors.New("401"), ""))

	rec := serve(s, http.MethodGet, "/select-folder", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProcessFolderErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		outcome *models.PipelineOutcome
		err     error
		status  int
		destID  string
	}{
		{"auth", &models.PipelineOutcome{}, models.NewAuthError("Extract", errors.New("401"), ""), http.StatusUnauthorized, ""},
		{"not a folder", &models.PipelineOutcome{}, models.NewDiscoveryError("GetFolder", drive.ErrNotFolder, ""), http.StatusBadRequest, ""},
		{"provisioning", &models.PipelineOutcome{}, models.NewProvisioningError("Resolve", errors.New("quota"), "f1"), http.StatusInternalServerError, ""},
		{"write", &models.PipelineOutcome{DestinationID: "D1"}, models.NewWriteError("Write", errors.New("500"), "D1"), http.StatusBadGateway, "D1"},
		{"timeout", &models.PipelineOutcome{}, context.DeadlineExceeded, http.StatusGatewayTimeout, ""},
		{"other", nil, errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(MockRunner)
			s := newTestServer(t, new(MockCatalog), runner, "user-token")
			cookie := login(t, s)

			runner.On("Run", mock.Anything, userAuth, mock.Anything).Return(tt.outcome, tt.err)

			rec := serve(s, http.MethodGet, "/process-folder?folderId=f1&folderName=Receipts", cookie)
			assert.Equal(t, tt.status, rec.Code)

			body := decodeBody(t, rec)
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["request_id"])
			if tt.destID != "" {
				assert.Equal(t, tt.destID, body["destinationId"])
			} else {
				assert.NotContains(t, body, "destinationId")
			}
		})
	}
}

func TestProcessFolderAppliesRunTimeout(t *testing.T) {
	runner := new(MockRunner)
	s := newTestServer(t, new(MockCatalog), runner, "user-token")
	cookie := login(t, s)

	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), userAuth, mock.Anything).Return(&models.PipelineOutcome{DestinationID: "D1"}, nil)

	rec := serve(s, http.MethodGet, "/process-folder?folderId=f1&folderName=Receipts", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	runner.AssertExpectations(t)
}

func TestRequestIDPropagates(t *testing.T) {
	s := newTestServer(t, new(MockCatalog), new(MockRunner), "user-token")

	req := httptest.NewRequest(http.MethodGet, "/select-folder", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-42", decodeBody(t, rec)["request_id"])
}

func TestRecovererReturnsJSON(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody(t, rec)["error"])
}

func TestProcessFolderRejectsFileID(t *testing.T) {
	runner := new(MockRunner)
	s := newTestServer(t, new(MockCatalog), runner, "user-token")
	cookie := login(t, s)

	runner.On("Run", mock.Anything, userAuth, "file-1").
		Return(&models.PipelineOutcome{State: models.StateAborted}, models.NewDiscoveryError("GetFolder", drive.ErrNotFolder, "file-1"))

	rec := serve(s, http.MethodGet, "/process-folder?folderId=file-1&folderName=Receipts", cookie)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, decodeBody(t, rec), "destinationId")
	runner.AssertExpectations(t)
}
