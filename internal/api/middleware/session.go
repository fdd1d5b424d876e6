package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	// SessionName is the browser session cookie.
	SessionName = "roomscape_session"

	// Session value keys.
	SessionKeyAccessToken  = "freesound_access_token"
	SessionKeyRefreshToken = "freesound_refresh_token"
	SessionKeyOAuthState   = "oauth_state"

	contextSessionStore   = "session_store"
	contextFreesoundToken = "freesound_token"

	sessionMaxAge = 24 * 60 * 60
)

// Sessions makes a cookie-backed session store available to handlers.
func Sessions(secret string) gin.HandlerFunc {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
	}
	return func(c *gin.Context) {
		c.Set(contextSessionStore, store)
		c.Next()
	}
}

// Session returns the request's browser session, creating it on first use.
func Session(c *gin.Context) *sessions.Session {
	store := c.MustGet(contextSessionStore).(sessions.Store)
	// Get only errors on a corrupt cookie; a fresh session is returned
	// alongside the error, which is what we want in that case anyway.
	session, _ := store.Get(c.Request, SessionName)
	return session
}

// FreesoundToken resolves the Freesound access token for the request. An
// Authorization bearer header (the Unity client) wins over the browser
// session (a user who completed the OAuth flow).
func FreesoundToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
		if token == "" {
			if v, ok := Session(c).Values[SessionKeyAccessToken].(string); ok {
				token = v
			}
		}
		if token != "" {
			c.Set(contextFreesoundToken, token)
		}
		c.Next()
	}
}

// TokenFromContext returns the resolved Freesound token, "" when the request
// carries none.
func TokenFromContext(c *gin.Context) string {
	return c.GetString(contextFreesoundToken)
}
