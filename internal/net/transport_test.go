package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MapBoard/internal/client"
	"MapBoard/internal/loop"
	"MapBoard/internal/proto"
	"MapBoard/internal/relay"
	"MapBoard/internal/state"
)

func fastSettings() *TransportSettings {
	s := DefaultTransportSettings()
	s.ReconnectDelay = 10 * time.Millisecond
	return s
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := loop.New()
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l
}

// onLoop runs fn on l and waits for it.
func onLoop(t *testing.T, l *loop.Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, l.Post(func() {
		defer close(done)
		fn()
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not run the task")
	}
}

type participant struct {
	loop *loop.Loop
	c    *client.Client
	tr   *Transport
}

func join(t *testing.T, url string) *participant {
	t.Helper()
	l := startLoop(t)
	tr := NewTransport(context.Background(), url, l, fastSettings())
	c := client.New(l, client.NewMemorySurface(true), tr, client.DefaultOptions())
	tr.OnEvent(func(env proto.Envelope) {
		if err := c.Handle(env); err != nil {
			t.Logf("handle %s: %s", env.Event, err)
		}
	})
	tr.Start()
	t.Cleanup(tr.Close)
	p := &participant{loop: l, c: c, tr: tr}
	require.Eventually(t, func() bool {
		var id string
		onLoop(t, l, func() { id = c.ID() })
		return id != ""
	}, 2*time.Second, 10*time.Millisecond)
	return p
}

func (p *participant) shapes(t *testing.T) []string {
	var ids []string
	onLoop(t, p.loop, func() { ids = p.c.ShapeIDs() })
	return ids
}

func TestTransportSyncsClientsThroughRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := relay.NewHub(state.NewStore(0), 0)
	go hub.Run(ctx)
	srv := httptest.NewServer(relay.NewServer(ctx, hub).Handler())
	defer srv.Close()

	a := join(t, wsURL(srv))
	b := join(t, wsURL(srv))

	var id string
	var err error
	onLoop(t, a.loop, func() {
		id, err = a.c.Create(state.Shape{Type: state.Marker, Center: state.LatLng{Lat: 1, Lng: 2}})
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ids := b.shapes(t)
		return len(ids) == 1 && ids[0] == id
	}, 2*time.Second, 10*time.Millisecond)

	// a late joiner hydrates from the snapshot
	c := join(t, wsURL(srv))
	require.Eventually(t, func() bool { return len(c.shapes(t)) == 1 }, 2*time.Second, 10*time.Millisecond)

	onLoop(t, b.loop, func() { b.c.Delete(id) })
	require.Eventually(t, func() bool {
		return len(a.shapes(t)) == 0 && len(c.shapes(t)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransportReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if conns.Add(1) == 1 {
			ws.Close()
			return
		}
		frame, _ := proto.Encode(proto.EventConnected, proto.Connected{ID: "second"})
		ws.WriteMessage(websocket.TextMessage, frame)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	l := startLoop(t)
	tr := NewTransport(context.Background(), wsURL(srv), l, fastSettings())
	defer tr.Close()
	states := make(chan bool, 8)
	events := make(chan proto.Envelope, 8)
	tr.OnConnect(func(connected bool) { states <- connected })
	tr.OnEvent(func(env proto.Envelope) { events <- env })
	tr.Start()

	var got []bool
	for len(got) < 3 {
		select {
		case s := <-states:
			got = append(got, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("connection states so far: %v", got)
		}
	}
	assert.Equal(t, []bool{true, false, true}, got)

	select {
	case env := <-events:
		assert.Equal(t, proto.EventConnected, env.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}
	assert.True(t, tr.Connected())
	assert.NoError(t, tr.Emit(proto.EventMapChanged, "x"))
}

func TestTransportGivesUpAfterBoundedAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	settings := fastSettings()
	settings.ReconnectAttempts = 3
	tr := NewTransport(context.Background(), url, startLoop(t), settings)
	tr.Start()

	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transport kept retrying")
	}
	assert.ErrorIs(t, tr.Err(), state.ErrTransport)
}

func TestEmitWhileDisconnected(t *testing.T) {
	tr := NewTransport(context.Background(), "ws://127.0.0.1:1/ws", startLoop(t), fastSettings())
	err := tr.Emit(proto.EventMapChanged, "x")
	assert.ErrorIs(t, err, state.ErrTransport)
	assert.False(t, tr.Connected())
}

func TestCloseStopsTransport(t *testing.T) {
	tr := NewTransport(context.Background(), "ws://127.0.0.1:1/ws", startLoop(t), fastSettings())
	tr.Start()
	tr.Close()
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop")
	}
}

func TestRelayURL(t *testing.T) {
	assert.Equal(t, "ws://10.0.0.2:8080/ws", relayURL("10.0.0.2", 8080))
	assert.Equal(t, "ws://[fe80::1]:8080/ws", relayURL("fe80::1", 8080))
	assert.True(t, strings.HasSuffix(ShareURL(4000), ":4000/ws"))
}
