package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	broadcastWriteTimeout = 10 * time.Second
	clientSendBufferCap   = 64
)

// WebSocketBroadcaster fans out events to connected dashboard clients over
// websocket, implementing the Bus.Broadcaster interface. Grounded on the
// hub-lifecycle shape of MarketStatusWebSocket, generalized from a single
// inbound connection to many outbound ones.
type WebSocketBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]chan *Event
	log     zerolog.Logger
}

func NewWebSocketBroadcaster(log zerolog.Logger) *WebSocketBroadcaster {
	return &WebSocketBroadcaster{
		clients: make(map[string]chan *Event),
		log:     log.With().Str("component", "event_broadcaster").Logger(),
	}
}

// Broadcast implements Bus.Broadcaster: non-blocking send to every
// connected client, dropping for any client whose buffer is full.
func (b *WebSocketBroadcaster) Broadcast(e *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.clients {
		select {
		case ch <- e:
		default:
			b.log.Warn().Str("client_id", id).Msg("broadcast buffer full, dropping event for client")
		}
	}
}

// ServeHTTP upgrades the request to a websocket connection and streams
// events to it until the client disconnects.
func (b *WebSocketBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		b.log.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	clientID := r.RemoteAddr + ":" + time.Now().Format(time.RFC3339Nano)
	ch := make(chan *Event, clientSendBufferCap)

	b.mu.Lock()
	b.clients[clientID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, clientID)
		b.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			if err := b.writeEvent(ctx, conn, e); err != nil {
				b.log.Debug().Err(err).Str("client_id", clientID).Msg("websocket write failed, closing")
				return
			}
		}
	}
}

func (b *WebSocketBroadcaster) writeEvent(ctx context.Context, conn *websocket.Conn, e *Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, broadcastWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}

// ClientCount returns the number of currently connected dashboard clients.
func (b *WebSocketBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
