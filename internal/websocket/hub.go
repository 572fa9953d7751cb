package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// TokenParser resolves an access token to its user.
type TokenParser interface {
	ParseAccessToken(token string) (uuid.UUID, error)
}

// ChannelFunc names the pub/sub channel carrying a user's events.
type ChannelFunc func(userID uuid.UUID) string

// userStream is one user's Redis subscription and the sockets it feeds.
type userStream struct {
	conns  map[*websocket.Conn]*sync.Mutex
	cancel context.CancelFunc
}

// Hub relays each user's job progress events from Redis to their open
// WebSocket connections. One subscription is held per connected user.
type Hub struct {
	mu       sync.RWMutex
	streams  map[uuid.UUID]*userStream
	redis    *redis.Client
	tokens   TokenParser
	channel  ChannelFunc
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub accepts browser connections from allowedOrigin only; "*" allows any.
func NewHub(redisClient *redis.Client, tokens TokenParser, channel ChannelFunc, allowedOrigin string, log *zap.Logger) *Hub {
	return &Hub{
		streams: make(map[uuid.UUID]*userStream),
		redis:   redisClient,
		tokens:  tokens,
		channel: channel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
		log: log,
	}
}

func originChecker(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || allowed == "*" || origin == allowed
	}
}

// HandleWebSocket authenticates with the ?token= access token, since browsers
// cannot set headers on a WebSocket handshake.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.ParseAccessToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	writeMu := h.register(userID, conn)
	go h.keepAlive(conn, writeMu)
	go h.readUntilClosed(userID, conn)
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.streams[userID]; ok {
		return len(s.conns)
	}
	return 0
}

func (h *Hub) register(userID uuid.UUID, conn *websocket.Conn) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[userID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		s = &userStream{conns: make(map[*websocket.Conn]*sync.Mutex), cancel: cancel}
		h.streams[userID] = s
		go h.subscribe(ctx, userID)
	}
	writeMu := &sync.Mutex{}
	s.conns[conn] = writeMu

	h.log.Info("websocket connected",
		zap.String("user_id", userID.String()),
		zap.Int("connections", len(s.conns)),
	)
	return writeMu
}

func (h *Hub) unregister(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()
	s, ok := h.streams[userID]
	if !ok {
		return
	}
	delete(s.conns, conn)
	if len(s.conns) == 0 {
		s.cancel()
		delete(h.streams, userID)
	}

	h.log.Info("websocket disconnected", zap.String("user_id", userID.String()))
}

// readUntilClosed drains client frames so pongs and close frames are handled.
func (h *Hub) readUntilClosed(userID uuid.UUID, conn *websocket.Conn) {
	defer h.unregister(userID, conn)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) keepAlive(conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (h *Hub) subscribe(ctx context.Context, userID uuid.UUID) {
	pubsub := h.redis.Subscribe(ctx, h.channel(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.streams[userID]
	if !ok {
		return
	}
	for conn, writeMu := range s.conns {
		writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.TextMessage, data)
		writeMu.Unlock()
		if err != nil {
			h.log.Debug("websocket write failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
}
