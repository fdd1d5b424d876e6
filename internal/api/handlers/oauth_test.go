package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oauthRouter(client FreesoundAuthenticator) *gin.Engine {
	router := newSessionRouter()
	h := NewOAuthHandler(client)
	router.GET("/freesound/login", h.Login)
	router.GET("/freesound/callback", h.Callback)
	router.GET("/freesound/logout", h.Logout)
	router.GET("/freesound/status", h.SessionStatus)
	return router
}

// login performs the login redirect and returns the state parameter plus
// the session cookies that carry it.
func login(t *testing.T, router *gin.Engine) (string, []*http.Cookie) {
	t.Helper()

	rec := doRequest(router, http.MethodGet, "/freesound/login", nil, nil)
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	return state, rec.Result().Cookies()
}

func TestLoginRedirectsWithState(t *testing.T) {
	client := &fakeAuthenticator{}
	router := oauthRouter(client)

	state, cookies := login(t, router)

	assert.NotEmpty(t, state)
	assert.NotEmpty(t, cookies, "state must be persisted in the session")
}

func TestCallbackRejectsBadState(t *testing.T) {
	client := &fakeAuthenticator{}
	router := oauthRouter(client)

	_, cookies := login(t, router)
	rec := doRequest(router, http.MethodGet, "/freesound/callback?state=wrong&code=abc", nil, cookies)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid state parameter", decodeBody(t, rec)["error"])
}

func TestCallbackRejectsMissingCode(t *testing.T) {
	client := &fakeAuthenticator{}
	router := oauthRouter(client)

	state, cookies := login(t, router)
	rec := doRequest(router, http.MethodGet, "/freesound/callback?state="+state, nil, cookies)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackStoresSessionToken(t *testing.T) {
	client := &fakeAuthenticator{}
	router := oauthRouter(client)

	state, cookies := login(t, router)
	rec := doRequest(router, http.MethodGet, "/freesound/callback?state="+state+"&code=abc", nil, cookies)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", client.exchangedCode)
	cookies = mergeCookies(cookies, rec.Result().Cookies())

	rec = doRequest(router, http.MethodGet, "/freesound/status", nil, cookies)
	assert.Equal(t, true, decodeBody(t, rec)["loggedIn"])
}

func TestCallbackExchangeFailure(t *testing.T) {
	client := &fakeAuthenticator{exchangeErr: errors.New("bad code")}
	router := oauthRouter(client)

	state, cookies := login(t, router)
	rec := doRequest(router, http.MethodGet, "/freesound/callback?state="+state+"&code=abc", nil, cookies)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	client := &fakeAuthenticator{}
	router := oauthRouter(client)

	state, cookies := login(t, router)
	rec := doRequest(router, http.MethodGet, "/freesound/callback?state="+state+"&code=abc", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies = mergeCookies(cookies, rec.Result().Cookies())

	rec = doRequest(router, http.MethodGet, "/freesound/logout", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies = mergeCookies(cookies, rec.Result().Cookies())

	rec = doRequest(router, http.MethodGet, "/freesound/status", nil, cookies)
	assert.Equal(t, false, decodeBody(t, rec)["loggedIn"])
}

func TestSessionStatusAnonymous(t *testing.T) {
	router := oauthRouter(&fakeAuthenticator{})

	rec := doRequest(router, http.MethodGet, "/freesound/status", nil, nil)
	assert.Equal(t, false, decodeBody(t, rec)["loggedIn"])
}
