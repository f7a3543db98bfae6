// Package web is the browser front end: it runs the Google OAuth2
// handshake, lists the user's Drive folders and starts a folder run when one
// is picked.
//
// The access token obtained by the handshake stays in an in-memory session
// and is handed to each run as a fresh AuthContext value.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"folderscan/internal/auth"
	"folderscan/internal/drive"
	"folderscan/internal/logger"
	"folderscan/pkg/models"
	"folderscan/pkg/services"
)

const sessionCookie = "folderscan_session"

// Runner starts a folder run. *pipeline.Orchestrator implements it.
type Runner interface {
	// Run looks the folder up before processing it, so an id that names a
	// file is rejected before any spreadsheet is provisioned.
	Run(ctx context.Context, a models.AuthContext, folderID string) (*models.PipelineOutcome, error)
}

// Config holds the front end settings.
type Config struct {
	Addr       string
	RunTimeout time.Duration
	SessionTTL time.Duration
}

// Server serves the front end routes.
type Server struct {
	oauth    *oauth2.Config
	catalog  services.FolderCatalog
	runner   Runner
	sessions *SessionStore
	config   Config
	router   chi.Router
	log      zerolog.Logger
}

// NewServer wires the routes.
func NewServer(oauth *oauth2.Config, catalog services.FolderCatalog, runner Runner, config Config) *Server {
	if config.RunTimeout <= 0 {
		config.RunTimeout = 10 * time.Minute
	}
	s := &Server{
		oauth:    oauth,
		catalog:  catalog,
		runner:   runner,
		sessions: NewSessionStore(config.SessionTTL),
		config:   config,
		log:      logger.WithComponent("web"),
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(requestLogger)
		r.Use(recoverer)

		r.Get("/", s.handleIndex)
		r.Get("/auth", s.handleAuth)
		r.Get("/auth/callback", s.handleCallback)
		r.Get("/select-folder", s.handleSelectFolder)
		r.Get("/process-folder", s.handleProcessFolder)
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.config.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Runs answer only when they are finished
		WriteTimeout: s.config.RunTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.config.Addr).Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessionToken(r); ok {
		http.Redirect(w, r, "/select-folder", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/auth", http.StatusFound)
}

// handleAuth starts the OAuth2 handshake.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	id := s.sessions.Begin(state)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.sessions.ttl.Seconds()),
	})
	http.Redirect(w, r, s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

// handleCallback finishes the handshake and keeps the token in the session.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())
	log := logger.WithRequestID(requestID)

	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		log.Warn().Msg("OAuth callback without session")
		respondError(w, http.StatusUnauthorized, "Authentication failed", requestID)
		return
	}

	state, ok := s.sessions.State(cookie.Value)
	if !ok || r.URL.Query().Get("state") != state {
		log.Warn().Msg("OAuth callback with unknown state")
		respondError(w, http.StatusUnauthorized, "Authentication failed", requestID)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		log.Warn().Str("oauth_error", r.URL.Query().Get("error")).Msg("OAuth callback without code")
		respondError(w, http.StatusUnauthorized, "Authentication failed", requestID)
		return
	}

	tok, err := s.oauth.Exchange(r.Context(), code)
	if err != nil || tok.AccessToken == "" {
		log.Error().Err(err).Msg("OAuth code exchange failed")
		respondError(w, http.StatusUnauthorized, "Authentication failed", requestID)
		return
	}

	if !s.sessions.Complete(cookie.Value, state, tok) {
		respondError(w, http.StatusUnauthorized, "Authentication failed", requestID)
		return
	}

	log.Info().Strs("scopes", auth.FromToken(tok).GrantedScopes).Msg("User authorized")
	http.Redirect(w, r, "/select-folder", http.StatusFound)
}

// handleSelectFolder renders the folder picker.
func (s *Server) handleSelectFolder(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	tok, ok := s.sessionToken(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized - Missing Access Token", requestID)
		return
	}

	folders, err := s.catalog.ListFolders(r.Context(), auth.FromToken(tok))
	degraded := false
	if err != nil {
		if !errors.Is(err, models.ErrDiscovery) {
			s.respondRunError(w, err, nil, requestID)
			return
		}
		degraded = true
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := folderPage.Execute(w, folderPageData{Folders: folders, Degraded: degraded}); err != nil {
		reqLog := logger.WithRequestID(requestID)
		reqLog.Error().Err(err).Msg("Failed to render folder page")
	}
}

// handleProcessFolder runs the pipeline for the picked folder.
func (s *Server) handleProcessFolder(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	folder := models.FolderRef{
		ID:          r.URL.Query().Get("folderId"),
		DisplayName: r.URL.Query().Get("folderName"),
	}
	if folder.ID == "" || folder.DisplayName == "" {
		http.Redirect(w, r, "/select-folder", http.StatusFound)
		return
	}

	tok, ok := s.sessionToken(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized - Missing Access Token", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RunTimeout)
	defer cancel()

	// folderName comes from the query string and only labels the response
	outcome, err := s.runner.Run(ctx, auth.FromToken(tok), folder.ID)
	if err != nil {
		s.respondRunError(w, err, outcome, requestID)
		return
	}
	if outcome.FolderName == "" {
		outcome.FolderName = folder.DisplayName
	}

	writeJSON(w, http.StatusOK, processResponse{
		Message:         "Processing folder: " + folder.ID,
		SpreadsheetID:   outcome.DestinationID,
		PipelineOutcome: outcome,
	})
}

func (s *Server) sessionToken(r *http.Request) (*oauth2.Token, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	return s.sessions.Token(cookie.Value)
}

// respondRunError maps a pipeline error kind to an HTTP status.
func (s *Server) respondRunError(w http.ResponseWriter, err error, outcome *models.PipelineOutcome, requestID string) {
	status, message := statusFor(err)
	resp := errorResponse{Error: message, Details: err.Error(), RequestID: requestID}
	if outcome != nil {
		resp.DestinationID = outcome.DestinationID
	}

	reqLog := logger.WithRequestID(requestID)
	reqLog.Error().
		Err(err).
		Int("status", status).
		Str("destination_id", resp.DestinationID).
		Msg("Request failed")

	writeJSON(w, status, resp)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrAuth):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "Processing timed out"
	case errors.Is(err, drive.ErrNotFolder):
		return http.StatusBadRequest, "Not a folder"
	case errors.Is(err, models.ErrWrite):
		return http.StatusBadGateway, "Failed to write spreadsheet"
	case errors.Is(err, models.ErrProvisioning):
		return http.StatusInternalServerError, "Failed to create spreadsheet"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

type processResponse struct {
	Message       string `json:"message"`
	SpreadsheetID string `json:"spreadsheetId"`
	*models.PipelineOutcome
}

type errorResponse struct {
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
	DestinationID string `json:"destinationId,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}

func respondError(w http.ResponseWriter, status int, message, requestID string) {
	writeJSON(w, status, errorResponse{Error: message, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type folderPageData struct {
	Folders  []models.FolderRef
	Degraded bool
}

var folderPage = template.Must(template.New("folders").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Select a Folder</title></head>
<body>
<h1>Select a Folder</h1>
{{if .Degraded}}<p>Folder listing is incomplete, Google Drive did not answer.</p>{{end}}
<ul>
{{range .Folders}}<li><a href="/process-folder?folderId={{.ID}}&amp;folderName={{.DisplayName}}">{{.DisplayName}}</a></li>
{{end}}</ul>
</body>
</html>
`))
