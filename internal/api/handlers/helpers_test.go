package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	apimiddleware "github.com/roomscape/roomscape-api/internal/api/middleware"
)

// newSessionRouter builds a minimal engine with the session and token
// middleware the handlers depend on.
func newSessionRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(apimiddleware.Sessions("test-secret"))
	router.Use(apimiddleware.FreesoundToken())
	return router
}

func doRequest(router *gin.Engine, method, path string, headers map[string]string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// mergeCookies overlays fresh cookies onto an existing jar, newest wins.
func mergeCookies(jar, fresh []*http.Cookie) []*http.Cookie {
	merged := make([]*http.Cookie, 0, len(jar)+len(fresh))
	for _, cookie := range jar {
		replaced := false
		for _, update := range fresh {
			if update.Name == cookie.Name {
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, cookie)
		}
	}
	return append(merged, fresh...)
}
