package net

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"MapBoard/internal/proto"
	"MapBoard/internal/state"
)

type TransportSettings struct {
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	SendBuffer        int
}

func DefaultTransportSettings() *TransportSettings {
	return &TransportSettings{
		ReconnectAttempts: 5,
		ReconnectDelay:    200 * time.Millisecond,
		HandshakeTimeout:  5 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		SendBuffer:        256,
	}
}

// Poster runs callbacks on the goroutine that owns the client.
type Poster interface {
	Post(fn func()) bool
}

// Transport is a participant's connection to the relay. It redials after a
// disconnect, waiting a little longer after each failed attempt, and gives
// up after ReconnectAttempts consecutive failures. Inbound events and
// connection state changes are posted to the loop.
type Transport struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	loop     Poster
	settings *TransportSettings

	mu        sync.Mutex
	send      chan []byte
	onEvent   func(proto.Envelope)
	onConnect func(connected bool)
	err       error

	done chan struct{}
}

func NewTransport(ctx context.Context, url string, loop Poster, settings *TransportSettings) *Transport {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Transport{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      url,
		loop:     loop,
		settings: settings,
		done:     make(chan struct{}),
	}
}

// OnEvent sets the handler for inbound events. Set it before Start.
func (t *Transport) OnEvent(fn func(proto.Envelope)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvent = fn
}

// OnConnect sets the handler for connection state changes. Set it before
// Start.
func (t *Transport) OnConnect(fn func(connected bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = fn
}

func (t *Transport) Start() {
	go t.run()
}

// Close disconnects and stops reconnecting.
func (t *Transport) Close() {
	t.cancel()
}

// Done is closed once the transport has stopped for good.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Err reports why the transport stopped, or nil if it was closed.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.send != nil
}

// Emit queues one event for the relay. Events emitted while disconnected
// are not kept; the relay's snapshot on reconnect supersedes them.
func (t *Transport) Emit(event string, payload any) error {
	frame, err := proto.Encode(event, payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.send == nil {
		return fmt.Errorf("emit %s while disconnected: %w", event, state.ErrTransport)
	}
	select {
	case t.send <- frame:
		return nil
	default:
		return fmt.Errorf("emit %s: send buffer full: %w", event, state.ErrTransport)
	}
}

func (t *Transport) run() {
	defer close(t.done)
	defer t.cancel()

	failures := 0
	for {
		ws, err := t.dial()
		if err != nil {
			failures++
			glog.Infof("[transport] connect %s failed (%d/%d): %s\n", t.url, failures, t.settings.ReconnectAttempts, err)
			if failures >= t.settings.ReconnectAttempts {
				t.mu.Lock()
				t.err = fmt.Errorf("giving up on %s after %d attempts: %w", t.url, failures, state.ErrTransport)
				t.mu.Unlock()
				glog.Errorf("[transport] %s\n", t.Err())
				return
			}
			if !t.wait(time.Duration(failures) * t.settings.ReconnectDelay) {
				return
			}
			continue
		}

		failures = 0
		t.serve(ws)
		if !t.wait(t.settings.ReconnectDelay) {
			return
		}
	}
}

func (t *Transport) wait(d time.Duration) bool {
	select {
	case <-t.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (t *Transport) dial() (*websocket.Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: t.settings.HandshakeTimeout}
	ws, _, err := dialer.DialContext(t.ctx, t.url, nil)
	return ws, err
}

// serve pumps one connection until it fails or the transport is closed.
func (t *Transport) serve(ws *websocket.Conn) {
	handleCtx, handleCancel := context.WithCancel(t.ctx)
	defer handleCancel()

	send := make(chan []byte, t.settings.SendBuffer)
	t.mu.Lock()
	t.send = send
	t.mu.Unlock()
	glog.Infof("[transport] connected to %s\n", t.url)
	t.notify(true)

	defer func() {
		t.mu.Lock()
		t.send = nil
		t.mu.Unlock()
		ws.Close()
		glog.Infof("[transport] disconnected from %s\n", t.url)
		t.notify(false)
	}()

	go func() {
		defer handleCancel()
		ping := time.NewTicker(t.settings.PingInterval)
		defer ping.Stop()
		for {
			select {
			case <-handleCtx.Done():
				ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(t.settings.WriteTimeout))
				// unblocks the reader
				ws.Close()
				return
			case frame := <-send:
				ws.SetWriteDeadline(time.Now().Add(t.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					glog.Infof("[transport] write error = %s\n", err)
					return
				}
			case <-ping.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.settings.WriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	ws.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))
	})
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if handleCtx.Err() == nil {
				glog.Infof("[transport] read error = %s\n", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))
		env, err := proto.Decode(frame)
		if err != nil {
			glog.V(2).Infof("[transport] drop frame: %s\n", err)
			continue
		}
		t.deliver(env)
	}
}

func (t *Transport) deliver(env proto.Envelope) {
	t.mu.Lock()
	h := t.onEvent
	t.mu.Unlock()
	if h == nil {
		return
	}
	if !t.loop.Post(func() { h(env) }) {
		glog.V(2).Infof("[transport] loop stopped, drop %s\n", env.Event)
	}
}

func (t *Transport) notify(connected bool) {
	t.mu.Lock()
	h := t.onConnect
	t.mu.Unlock()
	if h != nil {
		t.loop.Post(func() { h(connected) })
	}
}
