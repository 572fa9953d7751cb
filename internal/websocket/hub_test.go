package websocket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type tokenStub struct {
	userID uuid.UUID
	err    error
}

func (s tokenStub) ParseAccessToken(string) (uuid.UUID, error) { return s.userID, s.err }

func channelFor(userID uuid.UUID) string { return "user_updates:" + userID.String() }

func TestHandleWebSocket_RejectsMissingOrBadToken(t *testing.T) {
	hub := NewHub(nil, tokenStub{err: errors.New("bad token")}, channelFor, "*", zap.NewNop())

	for _, target := range []string{"/ws", "/ws?token=garbage"} {
		rec := httptest.NewRecorder()
		hub.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, target, nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestHandleWebSocket_RequiresUpgrade(t *testing.T) {
	userID := uuid.New()
	hub := NewHub(nil, tokenStub{userID: userID}, channelFor, "*", zap.NewNop())

	rec := httptest.NewRecorder()
	hub.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws?token=ok", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, hub.Connections(userID))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker("http://localhost:5173")

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))
	assert.True(t, originChecker("*")(req))
}
