package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/openmined/vaultsync/internal/events"
)

const (
	writeTimeout   = 20 * time.Second
	shutdownReason = "shutdown"
	sendBufferSize = 256
)

// WebsocketClient is one subscriber of the change feed. MsgTx is never
// closed, so the hub can send to it without coordinating with Close.
type WebsocketClient struct {
	ConnID string
	Info   *ClientInfo
	MsgTx  chan *events.Event
	Closed chan struct{}

	conn      *websocket.Conn
	wsDone    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWebsocketClient(conn *websocket.Conn, info *ClientInfo) *WebsocketClient {
	return &WebsocketClient{
		ConnID: uuid.NewString(),
		Info:   info,
		MsgTx:  make(chan *events.Event, sendBufferSize),
		Closed: make(chan struct{}),
		wsDone: make(chan struct{}),
		conn:   conn,
	}
}

func (c *WebsocketClient) Start(ctx context.Context) {
	slog.Debug("wsclient start", "connId", c.ConnID)
	c.wg.Add(2)
	go c.writeLoop(ctx)
	go c.readLoop(ctx)
}

func (c *WebsocketClient) Close() {
	c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
}

func (c *WebsocketClient) closeConnection(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.wsDone)
		c.conn.Close(status, reason)

		go func() {
			// the loops call closeConnection on exit, wait outside the Once
			c.wg.Wait()
			close(c.Closed)
			slog.Debug("wsclient closed", "connId", c.ConnID)
		}()
	})
}

// readLoop only keeps the connection serviced. Subscribers do not send
// anything meaningful, so frames are read and dropped.
func (c *WebsocketClient) readLoop(ctx context.Context) {
	defer func() {
		slog.Debug("wsclient reader shutdown", "connId", c.ConnID)
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	}()

	for {
		var data any
		err := wsjson.Read(ctx, c.conn, &data)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				// connection closed by client
			} else if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusNoStatusRcvd && status != websocket.StatusGoingAway {
				slog.Warn("wsclient reader", "error", err, "connId", c.ConnID)
			}
			return
		}
	}
}

func (c *WebsocketClient) writeLoop(ctx context.Context) {
	defer func() {
		slog.Debug("wsclient writer shutdown", "connId", c.ConnID)
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	}()

	for {
		select {
		case ev := <-c.MsgTx:
			ctxWrite, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(ctxWrite, c.conn, ev)
			cancel()
			if err != nil {
				slog.Error("wsclient writer", "connId", c.ConnID, "type", ev.Type, "path", ev.Path, "error", err)
				return
			}
			slog.Debug("wsclient writer", "connId", c.ConnID, "type", ev.Type, "path", ev.Path)

		case <-c.wsDone:
			return

		case <-ctx.Done():
			return
		}
	}
}
