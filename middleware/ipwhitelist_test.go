package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newWhitelistRouter(entries []string) *gin.Engine {
	r := gin.New()
	r.Use(IPWhitelist(entries))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func whitelistedGet(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if ip != "" {
		req.Header.Set("X-Real-IP", ip)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestIPWhitelistEmptyAllowsAll(t *testing.T) {
	r := newWhitelistRouter(nil)
	assert.Equal(t, http.StatusOK, whitelistedGet(r, "1.2.3.4"))
}

func TestIPWhitelistExactIP(t *testing.T) {
	r := newWhitelistRouter([]string{"10.0.0.1", "10.0.0.2"})
	assert.Equal(t, http.StatusOK, whitelistedGet(r, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, whitelistedGet(r, "10.0.0.2"))
	assert.Equal(t, http.StatusForbidden, whitelistedGet(r, "10.0.0.3"))
}

func TestIPWhitelistCIDR(t *testing.T) {
	r := newWhitelistRouter([]string{"192.168.0.0/16"})
	assert.Equal(t, http.StatusOK, whitelistedGet(r, "192.168.4.7"))
	assert.Equal(t, http.StatusForbidden, whitelistedGet(r, "172.16.0.1"))
}

func TestIPWhitelistMixedEntries(t *testing.T) {
	r := newWhitelistRouter([]string{"10.1.1.1", "192.168.0.0/24"})
	assert.Equal(t, http.StatusOK, whitelistedGet(r, "10.1.1.1"))
	assert.Equal(t, http.StatusOK, whitelistedGet(r, "192.168.0.200"))
	assert.Equal(t, http.StatusForbidden, whitelistedGet(r, "192.168.1.1"))
}
