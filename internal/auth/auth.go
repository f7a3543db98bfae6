// Package auth turns the bearer credential produced by the OAuth2 handshake
// into per-run clients for Google APIs.
//
// Nothing in this package stores a credential: every helper takes an
// AuthContext value and builds what it needs for the duration of one call.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"folderscan/pkg/models"
)

// Scopes requested from the user during the handshake.
var Scopes = []string{
	"profile",
	"email",
	drive.DriveScope,
	sheets.SpreadsheetsScope,
}

var (
	// ErrMissingToken is returned when the bearer token is empty.
	ErrMissingToken = errors.New("missing access token")

	// ErrExpiredToken is returned when the token expiry lies in the past.
	ErrExpiredToken = errors.New("access token expired")
)

// now is replaced in tests.
var now = time.Now

// Validate checks that auth can be used for remote calls.
func Validate(auth models.AuthContext) error {
	const op = "Validate"

	if strings.TrimSpace(auth.BearerToken) == "" {
		return models.NewAuthError(op, ErrMissingToken, "")
	}
	if !auth.Expiry.IsZero() && !auth.Expiry.After(now()) {
		return models.NewAuthError(op, ErrExpiredToken, "expired at "+auth.Expiry.Format(time.RFC3339))
	}
	return nil
}

// TokenSource returns a static token source for auth. It never refreshes.
func TokenSource(auth models.AuthContext) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: auth.BearerToken,
		TokenType:   "Bearer",
		Expiry:      auth.Expiry,
	})
}

// ClientOptions returns Google API client options that authenticate as auth,
// followed by any extra options (endpoints, test clients).
func ClientOptions(auth models.AuthContext, extra ...option.ClientOption) []option.ClientOption {
	opts := []option.ClientOption{option.WithTokenSource(TokenSource(auth))}
	return append(opts, extra...)
}

// HTTPClient returns an HTTP client that adds auth's bearer token to requests.
// A base client stored in ctx under oauth2.HTTPClient is honoured.
func HTTPClient(ctx context.Context, auth models.AuthContext) *http.Client {
	return oauth2.NewClient(ctx, TokenSource(auth))
}

// FromToken converts a token returned by the handshake into an AuthContext.
func FromToken(tok *oauth2.Token) models.AuthContext {
	if tok == nil {
		return models.AuthContext{}
	}
	var scopes []string
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		scopes = strings.Fields(raw)
	}
	return models.AuthContext{
		BearerToken:   tok.AccessToken,
		GrantedScopes: scopes,
		Expiry:        tok.Expiry,
	}
}

// OAuthConfig builds the handshake configuration for the web front end.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// IsUnauthorized reports whether err is a Google API 401 response.
func IsUnauthorized(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusUnauthorized
	}
	return false
}
