package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apimiddleware "github.com/roomscape/roomscape-api/internal/api/middleware"
	"github.com/roomscape/roomscape-api/internal/logger"
)

// OAuthHandler runs the browser half of the Freesound OAuth flow. Tokens
// obtained here live in the user's session, not in the server-side cache.
type OAuthHandler struct {
	client FreesoundAuthenticator
}

func NewOAuthHandler(client FreesoundAuthenticator) *OAuthHandler {
	return &OAuthHandler{client: client}
}

// Login handles GET /freesound/login
func (h *OAuthHandler) Login(c *gin.Context) {
	state := uuid.New().String()

	session := apimiddleware.Session(c)
	session.Values[apimiddleware.SessionKeyOAuthState] = state
	if err := session.Save(c.Request, c.Writer); err != nil {
		fail(c, http.StatusInternalServerError, "could not start login session")
		return
	}

	c.Redirect(http.StatusFound, h.client.AuthCodeURL(state))
}

// Callback handles GET /freesound/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	session := apimiddleware.Session(c)

	expectedState, _ := session.Values[apimiddleware.SessionKeyOAuthState].(string)
	if expectedState == "" || c.Query("state") != expectedState {
		fail(c, http.StatusForbidden, "invalid state parameter")
		return
	}

	code := c.Query("code")
	if code == "" {
		fail(c, http.StatusBadRequest, "missing authorization code")
		return
	}

	token, err := h.client.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		logger.Error("Freesound code exchange failed", err, nil)
		fail(c, http.StatusInternalServerError, "authorization code exchange failed")
		return
	}

	delete(session.Values, apimiddleware.SessionKeyOAuthState)
	session.Values[apimiddleware.SessionKeyAccessToken] = token.AccessToken
	session.Values[apimiddleware.SessionKeyRefreshToken] = token.RefreshToken
	if err := session.Save(c.Request, c.Writer); err != nil {
		fail(c, http.StatusInternalServerError, "could not save login session")
		return
	}

	logger.Info("Freesound login completed", nil)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Freesound authentication successful",
	})
}

// Logout handles GET /freesound/logout
func (h *OAuthHandler) Logout(c *gin.Context) {
	session := apimiddleware.Session(c)
	delete(session.Values, apimiddleware.SessionKeyAccessToken)
	delete(session.Values, apimiddleware.SessionKeyRefreshToken)
	delete(session.Values, apimiddleware.SessionKeyOAuthState)
	if err := session.Save(c.Request, c.Writer); err != nil {
		fail(c, http.StatusInternalServerError, "could not clear session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SessionStatus handles GET /freesound/status
func (h *OAuthHandler) SessionStatus(c *gin.Context) {
	token, _ := apimiddleware.Session(c).Values[apimiddleware.SessionKeyAccessToken].(string)
	c.JSON(http.StatusOK, gin.H{"loggedIn": token != ""})
}
