package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// fail writes the error envelope every endpoint shares.
func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// failUnauthenticated is the 401 shape clients key off to start the
// Freesound login flow.
func failUnauthenticated(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success":  false,
		"error":    "Freesound authentication required",
		"redirect": "/freesound/login",
	})
}
