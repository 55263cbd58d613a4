package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ironflex/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerCriticalFailure(t *testing.T) {
	checker := NewChecker(logger.Discard(), time.Minute)

	dbErr := errors.New("connection refused")
	checker.RegisterDatabaseCheck(func(context.Context) error { return dbErr })
	checker.RegisterRedisCheck(func(context.Context) error { return nil })

	var seen []bool
	checker.OnChange(func(healthy bool) { seen = append(seen, healthy) })

	checker.RunChecks(context.Background())

	assert.False(t, checker.IsSystemHealthy())
	assert.Equal(t, []bool{false}, seen)

	status := checker.GetStatus()
	assert.Equal(t, StatusDown, status["database"].Status)
	assert.Equal(t, "connection refused", status["database"].Error)
	assert.Equal(t, StatusUp, status["redis"].Status)
}

func TestCheckerRedisDownIsDegraded(t *testing.T) {
	checker := NewChecker(logger.Discard(), time.Minute)
	checker.RegisterDatabaseCheck(func(context.Context) error { return nil })
	checker.RegisterRedisCheck(func(context.Context) error { return errors.New("timeout") })

	checker.RunChecks(context.Background())

	assert.True(t, checker.IsSystemHealthy())
	assert.Equal(t, StatusDegraded, checker.GetStatus()["redis"].Status)
}

func TestHTTPHandler(t *testing.T) {
	checker := NewChecker(logger.Discard(), time.Minute)
	checker.RegisterDatabaseCheck(func(context.Context) error { return nil })
	checker.RunChecks(context.Background())

	w := httptest.NewRecorder()
	checker.HTTPHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body["components"], "database")
}
