package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/events"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
	"github.com/openmined/vaultsync/internal/version"
)

const (
	maxMessageSize = 64 * 1024

	headerVersion  = "X-Vaultsync-Version"
	headerDeviceID = "X-Vaultsync-Device-Id"
)

// WebsocketHub fans ledger change events out to every connected client.
type WebsocketHub struct {
	clients  map[string]*WebsocketClient // map of ConnectionID -> Client
	register chan *WebsocketClient
	done     chan struct{}
	stopOnce sync.Once

	wg sync.WaitGroup
	mu sync.RWMutex
}

func NewHub() *WebsocketHub {
	return &WebsocketHub{
		clients:  make(map[string]*WebsocketClient),
		register: make(chan *WebsocketClient),
		done:     make(chan struct{}),
	}
}

func (h *WebsocketHub) Run(ctx context.Context) {
	slog.Info("wshub started")
	defer slog.Info("wshub stopped")
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ConnID] = client
			slog.Debug("wshub registered", "connId", client.ConnID, "device", client.Info.DeviceID, "active", len(h.clients))
			h.mu.Unlock()

			h.wg.Add(1)
			client.Start(ctx)
			go func() {
				// if client closes, we just remove it from the hub
				<-client.Closed

				h.mu.Lock()
				delete(h.clients, client.ConnID)
				slog.Debug("wshub removed", "connId", client.ConnID, "device", client.Info.DeviceID, "active", len(h.clients))
				h.mu.Unlock()
				h.wg.Done()
			}()

		case <-h.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops accepting clients and closes every open connection.
func (h *WebsocketHub) Shutdown(ctx context.Context) {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.RLock()
	clients := make([]*WebsocketClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		// will remove itself from the hub through its Closed channel
		go client.Close()
	}

	waited := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		slog.Info("wshub shutdown")
	case <-ctx.Done():
		slog.Warn("wshub shutdown timed out", "error", ctx.Err())
	}
}

// Clients returns the number of connected clients.
func (h *WebsocketHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues ev for every client. A client whose buffer is full misses
// the event; it catches up on its next full sync.
func (h *WebsocketHub) Broadcast(ev *events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.MsgTx <- ev:
		default:
			slog.Warn("wshub send buffer full", "connId", client.ConnID, "device", client.Info.DeviceID)
		}
	}
}

// WebsocketHandler upgrades the request and registers the client with the hub.
func (h *WebsocketHub) WebsocketHandler(ctx *gin.Context) {
	conn, err := websocket.Accept(ctx.Writer, ctx.Request, nil)
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("websocket accept failed: %w", err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := NewWebsocketClient(conn, &ClientInfo{
		DeviceID: ctx.GetHeader(headerDeviceID),
		IPAddr:   ctx.ClientIP(),
		Version:  ctx.GetHeader(headerVersion),
	})
	client.MsgTx <- events.NewHello(version.Version)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, shutdownReason)
	}
}
