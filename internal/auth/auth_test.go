package auth

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"folderscan/pkg/models"
)

func TestValidate(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	tests := []struct {
		name    string
		auth    models.AuthContext
		wantErr error
	}{
		{"empty token", models.AuthContext{}, ErrMissingToken},
		{"blank token", models.AuthContext{BearerToken: "   "}, ErrMissingToken},
		{"expired", models.AuthContext{BearerToken: "t", Expiry: fixed.Add(-time.Minute)}, ErrExpiredToken},
		{"no expiry", models.AuthContext{BearerToken: "t"}, nil},
		{"valid", models.AuthContext{BearerToken: "t", Expiry: fixed.Add(time.Hour)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.auth)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, models.ErrAuth)
		})
	}
}

func TestFromToken(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	tok := (&oauth2.Token{AccessToken: "abc", Expiry: expiry}).
		WithExtra(map[string]interface{}{"scope": "email https://www.googleapis.com/auth/drive"})

	got := FromToken(tok)

	assert.Equal(t, "abc", got.BearerToken)
	assert.Equal(t, expiry, got.Expiry)
	assert.True(t, got.HasScope("https://www.googleapis.com/auth/drive"))
	assert.False(t, got.HasScope("profile"))

	assert.Equal(t, models.AuthContext{}, FromToken(nil))
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(&googleapi.Error{Code: http.StatusUnauthorized}))
	assert.False(t, IsUnauthorized(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, IsUnauthorized(errors.New("boom")))
}

func TestTokenSource(t *testing.T) {
	tok, err := TokenSource(models.AuthContext{BearerToken: "xyz"}).Token()
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
}
