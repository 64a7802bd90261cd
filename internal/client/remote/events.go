package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/openmined/vaultsync/internal/events"
	"github.com/sethvargo/go-retry"
)

const (
	pathEvents = "/events"

	eventsBufferSize        = 64
	eventsReconnectDelay    = 1 * time.Second
	eventsMaxReconnectDelay = 30 * time.Second
	eventsDialTimeout       = 10 * time.Second
	eventsMaxMessageSize    = 64 * 1024
)

// EventStream subscribes to the change notifications of a ledger server and
// keeps the subscription alive across disconnects.
type EventStream struct {
	url    string
	header http.Header
	events chan *events.Event
}

func NewEventStream(s *ServerBackend) *EventStream {
	url := strings.TrimSuffix(s.BaseURL(), "/") + pathEvents
	url = strings.Replace(url, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)

	return &EventStream{
		url:    url,
		header: s.Header(),
		events: make(chan *events.Event, eventsBufferSize),
	}
}

// Events delivers remote change notifications. Events from this device are
// filtered out.
func (e *EventStream) Events() <-chan *events.Event {
	return e.events
}

// Run connects and reads until ctx is cancelled, reconnecting with backoff.
func (e *EventStream) Run(ctx context.Context) error {
	for {
		backoff := retry.WithCappedDuration(eventsMaxReconnectDelay,
			retry.WithJitterPercent(25, retry.NewExponential(eventsReconnectDelay)))

		conn, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*websocket.Conn, error) {
			conn, err := e.dial(ctx)
			if errors.Is(err, ErrUnauthorized) {
				return nil, err
			} else if err != nil {
				slog.Warn("events connect", "url", e.url, "error", err)
				return nil, retry.RetryableError(err)
			}
			return conn, nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		slog.Info("events connected", "url", e.url)
		err = e.readLoop(ctx, conn)
		conn.Close(websocket.StatusNormalClosure, "shutdown")

		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !isExpectedCloseError(err) {
			slog.Warn("events disconnected", "error", err)
		} else {
			slog.Info("events disconnected")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(eventsReconnectDelay):
		}
	}
}

func (e *EventStream) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, eventsDialTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, e.url, &websocket.DialOptions{HTTPHeader: e.header})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("remote: events: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("remote: events: %w", err)
	}
	conn.SetReadLimit(eventsMaxMessageSize)
	return conn, nil
}

func (e *EventStream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	self := DeviceID()
	for {
		var ev events.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return err
		}

		if ev.Type == events.TypeHello {
			slog.Debug("events hello", "server", ev.Message)
			continue
		}
		if !ev.IsChange() || ev.Origin == self {
			continue
		}

		select {
		case e.events <- &ev:
		default:
			slog.Warn("events buffer full, dropped", "type", ev.Type, "path", ev.Path)
		}
	}
}

func isExpectedCloseError(err error) bool {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return true
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed)
}
