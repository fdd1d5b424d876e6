package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	apimiddleware "github.com/roomscape/roomscape-api/internal/api/middleware"
	"github.com/roomscape/roomscape-api/internal/logger"
)

// FreesoundAuthenticator is the slice of the Freesound client the auth
// endpoints use.
type FreesoundAuthenticator interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	Authenticate(ctx context.Context) error
	AccessToken() string
}

// AuthHandler issues Freesound tokens to API clients, primarily the Unity
// plugin, which cannot run a browser OAuth flow itself.
type AuthHandler struct {
	client FreesoundAuthenticator
}

func NewAuthHandler(client FreesoundAuthenticator) *AuthHandler {
	return &AuthHandler{client: client}
}

// Token handles POST /api/auth/token
func (h *AuthHandler) Token(c *gin.Context) {
	h.issueToken(c)
}

// UnityToken handles POST /api/auth/unity-token
func (h *AuthHandler) UnityToken(c *gin.Context) {
	h.issueToken(c)
}

// issueToken hands out the caller's own session token when one exists, and
// falls back to the server-side credential chain otherwise.
func (h *AuthHandler) issueToken(c *gin.Context) {
	if token := apimiddleware.TokenFromContext(c); token != "" {
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"access_token": token,
			"source":       "session",
		})
		return
	}

	if err := h.client.Authenticate(c.Request.Context()); err != nil {
		logger.Warn("Token request could not be served", logger.Fields{"error": err.Error()})
		failUnauthenticated(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"access_token": h.client.AccessToken(),
		"source":       "client_credentials",
	})
}

// Status handles GET /api/auth/status
func (h *AuthHandler) Status(c *gin.Context) {
	authenticated := apimiddleware.TokenFromContext(c) != "" || h.client.AccessToken() != ""
	c.JSON(http.StatusOK, gin.H{
		"authenticated": authenticated,
		"loginUrl":      "/freesound/login",
	})
}
