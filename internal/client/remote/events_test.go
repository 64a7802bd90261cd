package remote

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/openmined/vaultsync/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStream_FiltersOwnEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		wsjson.Write(ctx, conn, events.NewHello("test"))
		wsjson.Write(ctx, conn, events.NewFileWrite("mine.md", 1, "h", DeviceID()))
		wsjson.Write(ctx, conn, events.NewFileWrite("theirs.md", 2, "h2", "other-device"))
		wsjson.Write(ctx, conn, events.NewFileDelete("gone.md", "other-device"))
		conn.Read(ctx)
	})
	b := newTestServerBackend(t, mux)
	stream := NewEventStream(b)
	assert.Contains(t, stream.url, "ws://")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	select {
	case ev := <-stream.Events():
		assert.Equal(t, events.TypeFileWrite, ev.Type)
		assert.Equal(t, "theirs.md", ev.Path)
		assert.Equal(t, uint64(2), ev.Revision)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	select {
	case ev := <-stream.Events():
		assert.Equal(t, events.TypeFileDelete, ev.Type)
		assert.Equal(t, "gone.md", ev.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no delete event received")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestEventStream_Unauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	b := newTestServerBackend(t, mux)

	err := NewEventStream(b).Run(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}
