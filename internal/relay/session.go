package relay

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"MapBoard/internal/proto"
)

const (
	writeTimeout = 5 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
	maxFrameSize = 1 << 20
)

// Session is one connected participant. The hub writes frames into send;
// the write pump drains it onto the socket.
type Session struct {
	ID   string
	send chan []byte

	closeOnce sync.Once
}

func newSession(id string, buffer int) *Session {
	return &Session{ID: id, send: make(chan []byte, buffer)}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// serve registers the session with the hub and pumps frames in both
// directions until either side fails.
func (h *Hub) serve(ctx context.Context, ws *websocket.Conn) {
	s := h.newSession()
	select {
	case h.register <- s:
	case <-ctx.Done():
		ws.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(s, ws)
	}()
	h.readPump(ctx, s, ws)

	select {
	case h.unregister <- s:
	case <-ctx.Done():
	}
	<-done
}

func (h *Hub) readPump(ctx context.Context, s *Session, ws *websocket.Conn) {
	defer ws.Close()
	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Infof("[relay]%s<- error = %s\n", s.ID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			glog.V(2).Infof("[relay]other=%d %s<-\n", messageType, s.ID)
			continue
		}
		env, err := proto.Decode(message)
		if err != nil {
			glog.V(2).Infof("[relay]drop %s<- %s\n", s.ID, err)
			continue
		}
		select {
		case h.inbound <- inbound{from: s, env: env}:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) writePump(s *Session, ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()
	for {
		select {
		case frame, ok := <-s.send:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				glog.Infof("[relay]%s-> error = %s\n", s.ID, err)
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
