package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingChecker struct {
	calls int
	err   error
}

func (c *countingChecker) Check(context.Context) error {
	c.calls++
	return c.err
}

func TestCachedCheckerMemoizesWithinTTL(t *testing.T) {
	inner := &countingChecker{}
	cached := NewCachedChecker(inner, 100*time.Millisecond)

	require.NoError(t, cached.Check(context.Background()))
	require.NoError(t, cached.Check(context.Background()))
	assert.Equal(t, 1, inner.calls, "second check within the ttl must hit the cache")

	time.Sleep(120 * time.Millisecond)
	require.NoError(t, cached.Check(context.Background()))
	assert.Equal(t, 2, inner.calls)
}

func TestCachedCheckerCachesFailuresToo(t *testing.T) {
	inner := &countingChecker{err: errors.New("provider down")}
	cached := NewCachedChecker(inner, time.Minute)

	err1 := cached.Check(context.Background())
	err2 := cached.Check(context.Background())
	assert.Equal(t, 1, inner.calls)
	assert.EqualError(t, err1, "provider down")
	assert.Equal(t, err1, err2)
}

func TestHealthHandlerAggregatesCheckers(t *testing.T) {
	handler := HealthHandler(map[string]HealthChecker{
		"database": &countingChecker{},
		"vision":   &countingChecker{err: errors.New("unreachable")},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var got HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "unhealthy", got.Status)
	assert.Equal(t, "healthy", got.Checks["database"].Status)
	assert.Equal(t, "unreachable", got.Checks["vision"].Message)
}
