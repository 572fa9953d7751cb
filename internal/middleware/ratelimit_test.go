package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_FirstRequestSetsWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, "auth", 2, time.Minute, zap.NewNop())
	h := rl.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	key := "ratelimit:auth:ip:10.0.0.1:5000"
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_OverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, "generation", 2, time.Minute, zap.NewNop())
	h := rl.Middleware(okHandler())

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/x/chat", nil)
	req = req.WithContext(WithUserID(req.Context(), userID))
	mock.ExpectIncr("ratelimit:generation:user:" + userID.String()).SetVal(3)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, "auth", 1, time.Minute, zap.NewNop())
	h := rl.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.2:1"
	mock.ExpectIncr("ratelimit:auth:ip:10.0.0.2:1").SetErr(errors.New("connection refused"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
