package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTraceRouter() (*gin.Engine, *string) {
	var seen string
	r := gin.New()
	r.Use(TraceID())
	r.GET("/ping", func(c *gin.Context) {
		seen = GetTraceID(c)
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func TestTraceIDGenerated(t *testing.T) {
	r, seen := newTraceRouter()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotEmpty(t, *seen)
	_, err := uuid.Parse(*seen)
	assert.NoError(t, err)
	assert.Equal(t, *seen, w.Header().Get(TraceIDHeader))
}

func TestTraceIDHonorsValidHeader(t *testing.T) {
	r, seen := newTraceRouter()
	id := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, id)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, id, *seen)
}

func TestTraceIDRejectsGarbageHeader(t *testing.T) {
	r, seen := newTraceRouter()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, "<script>nope</script>")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEqual(t, "<script>nope</script>", *seen)
	_, err := uuid.Parse(*seen)
	assert.NoError(t, err)
}
