package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeAuthenticator struct {
	authErr       error
	authenticated bool
	token         string
	exchangeErr   error
	exchangedCode string
}

func (f *fakeAuthenticator) AuthCodeURL(state string) string {
	return "https://freesound.example/authorize/?state=" + state
}

func (f *fakeAuthenticator) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	f.exchangedCode = code
	return &oauth2.Token{AccessToken: "exchanged-token", RefreshToken: "refresh"}, nil
}

func (f *fakeAuthenticator) Authenticate(context.Context) error {
	if f.authErr != nil {
		return f.authErr
	}
	f.authenticated = true
	return nil
}

func (f *fakeAuthenticator) AccessToken() string {
	if !f.authenticated {
		return ""
	}
	return f.token
}

func authRouter(client FreesoundAuthenticator) *gin.Engine {
	router := newSessionRouter()
	h := NewAuthHandler(client)
	router.POST("/api/auth/token", h.Token)
	router.POST("/api/auth/unity-token", h.UnityToken)
	router.GET("/api/auth/status", h.Status)
	return router
}

func TestTokenPrefersSessionToken(t *testing.T) {
	client := &fakeAuthenticator{token: "server-token"}
	router := authRouter(client)

	rec := doRequest(router, http.MethodPost, "/api/auth/token", bearer("my-token"), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "my-token", body["access_token"])
	assert.Equal(t, "session", body["source"])
	assert.False(t, client.authenticated, "server credentials must not be touched")
}

func TestTokenFallsBackToClientCredentials(t *testing.T) {
	client := &fakeAuthenticator{token: "server-token"}
	router := authRouter(client)

	rec := doRequest(router, http.MethodPost, "/api/auth/token", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "server-token", body["access_token"])
	assert.Equal(t, "client_credentials", body["source"])
}

func TestTokenUnauthenticated(t *testing.T) {
	client := &fakeAuthenticator{authErr: errors.New("authentication failed")}
	router := authRouter(client)

	rec := doRequest(router, http.MethodPost, "/api/auth/token", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "/freesound/login", body["redirect"])
}

func TestUnityTokenUsesSameIssueFlow(t *testing.T) {
	client := &fakeAuthenticator{token: "server-token"}
	router := authRouter(client)

	rec := doRequest(router, http.MethodPost, "/api/auth/unity-token", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "server-token", decodeBody(t, rec)["access_token"])
}

func TestAuthStatus(t *testing.T) {
	client := &fakeAuthenticator{}
	router := authRouter(client)

	rec := doRequest(router, http.MethodGet, "/api/auth/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, "/freesound/login", body["loginUrl"])

	rec = doRequest(router, http.MethodGet, "/api/auth/status", bearer("tok"), nil)
	assert.Equal(t, true, decodeBody(t, rec)["authenticated"])
}
