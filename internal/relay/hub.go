// Package relay fans annotation events out between the participants of one
// shared map. A single hub goroutine owns the state store; sessions talk to
// it over channels.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"MapBoard/internal/proto"
	"MapBoard/internal/state"
)

// DefaultSendBuffer is the number of frames a session may have queued before
// it is considered stalled and evicted.
const DefaultSendBuffer = 256

type inbound struct {
	from *Session
	env  proto.Envelope
}

// Hub serializes every mutation of the store. Only the Run goroutine touches
// store and sessions.
type Hub struct {
	store    *state.Store
	sessions map[string]*Session

	register   chan *Session
	unregister chan *Session
	inbound    chan inbound
	calls      chan func()

	sendBuffer int
}

func NewHub(store *state.Store, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		store:      store,
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		inbound:    make(chan inbound, 64),
		calls:      make(chan func()),
		sendBuffer: sendBuffer,
	}
}

// Run processes hub traffic until ctx is done, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, s := range h.sessions {
			h.drop(s)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.register:
			h.join(s)
		case s := <-h.unregister:
			h.leave(s)
		case in := <-h.inbound:
			h.handle(in.from, in.env)
		case fn := <-h.calls:
			fn()
		}
	}
}

// Snapshot reads the current state on the hub goroutine.
func (h *Hub) Snapshot(ctx context.Context) (state.Snapshot, error) {
	var snap state.Snapshot
	done := make(chan struct{})
	select {
	case h.calls <- func() { snap = h.store.Snapshot(); close(done) }:
	case <-ctx.Done():
		return state.Snapshot{}, ctx.Err()
	}
	select {
	case <-done:
		return snap, nil
	case <-ctx.Done():
		return state.Snapshot{}, ctx.Err()
	}
}

func (h *Hub) newSession() *Session {
	return newSession(state.NewSessionID(), h.sendBuffer)
}

func (h *Hub) join(s *Session) {
	h.sessions[s.ID] = s
	p := h.store.Join(s.ID)
	glog.Infof("[hub] %s joined, %d connected\n", s.ID, len(h.sessions))

	h.send(s, proto.EventConnected, proto.Connected{ID: p.ID})
	h.send(s, proto.EventStateInit, h.store.Snapshot())
	if _, ok := h.sessions[s.ID]; !ok {
		// evicted while the snapshot was queued
		return
	}
	h.broadcast(s, proto.EventUserJoined, proto.UserRef{ID: s.ID})
}

func (h *Hub) leave(s *Session) {
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	h.drop(s)
	h.store.Leave(s.ID)
	glog.Infof("[hub] %s left, %d connected\n", s.ID, len(h.sessions))
	h.broadcast(s, proto.EventUserLeft, proto.UserRef{ID: s.ID})
}

func (h *Hub) drop(s *Session) {
	delete(h.sessions, s.ID)
	s.close()
}

// handle runs one inbound event. Malformed payloads are dropped, and a panic
// in a handler never takes the hub down.
func (h *Hub) handle(from *Session, env proto.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[hub] %s from %s panicked: %v\n", env.Event, from.ID, r)
		}
	}()
	if _, ok := h.sessions[from.ID]; !ok {
		return
	}
	var err error
	switch env.Event {
	case proto.EventPointClicked:
		err = h.pointClicked(from, env.Data)
	case proto.EventMapChanged:
		err = h.mapChanged(from, env.Data)
	case proto.EventDrawCreate:
		err = h.drawCreate(from, env.Data)
	case proto.EventDrawEdit:
		err = h.drawEdit(from, env.Data)
	case proto.EventDrawDelete:
		err = h.drawDelete(from, env.Data)
	case proto.EventDrawProgress:
		err = h.drawProgress(from, env.Data)
	case proto.EventViewChanged:
		err = h.viewChanged(from, env.Data)
	case proto.EventPresenceUpdate:
		err = h.presenceUpdate(from, env.Data)
	case proto.EventUsernameSet:
		err = h.usernameSet(from, env.Data)
	default:
		err = fmt.Errorf("unknown event %q: %w", env.Event, state.ErrValidation)
	}
	if err != nil {
		if errors.Is(err, state.ErrValidation) || errors.Is(err, state.ErrNotFound) {
			glog.V(2).Infof("[hub] drop %s from %s: %s\n", env.Event, from.ID, err)
		} else {
			glog.Warningf("[hub] %s from %s: %s\n", env.Event, from.ID, err)
		}
	}
}

func (h *Hub) pointClicked(from *Session, data json.RawMessage) error {
	var msg struct {
		Lat   *float64 `json:"lat"`
		Lng   *float64 `json:"lng"`
		Color string   `json:"color"`
	}
	if err := proto.DecodeInto(data, &msg); err != nil {
		return err
	}
	if msg.Lat == nil || msg.Lng == nil {
		return fmt.Errorf("click without coordinates: %w", state.ErrValidation)
	}
	click := state.ClickEvent{Lat: *msg.Lat, Lng: *msg.Lng, Color: msg.Color}
	if err := h.store.RecordClick(click); err != nil {
		return err
	}
	h.broadcast(from, proto.EventPointClicked, click)
	return nil
}

func (h *Hub) mapChanged(from *Session, data json.RawMessage) error {
	var ctx string
	if err := proto.DecodeInto(data, &ctx); err != nil {
		return err
	}
	if !h.store.SetContext(ctx) {
		glog.V(2).Infof("[hub] context unchanged for %s, echoing snapshot\n", from.ID)
		h.send(from, proto.EventStateInit, h.store.Snapshot())
		return nil
	}
	glog.Infof("[hub] context is now %q\n", ctx)
	h.broadcast(from, proto.EventMapChanged, ctx)
	return nil
}

func (h *Hub) drawCreate(from *Session, data json.RawMessage) error {
	var d state.Drawing
	if err := proto.DecodeInto(data, &d); err != nil {
		return err
	}
	if err := h.store.CreateDrawing(d); err != nil {
		return err
	}
	h.broadcast(from, proto.EventDrawCreate, d)
	return nil
}

func (h *Hub) drawEdit(from *Session, data json.RawMessage) error {
	var raw []json.RawMessage
	if err := proto.DecodeInto(data, &raw); err != nil {
		return err
	}
	ds := make([]state.Drawing, 0, len(raw))
	for _, r := range raw {
		var d state.Drawing
		if err := json.Unmarshal(r, &d); err == nil {
			ds = append(ds, d)
		}
	}
	accepted := h.store.EditDrawings(ds)
	if len(accepted) == 0 {
		return fmt.Errorf("edit of %d unknown drawings: %w", len(raw), state.ErrNotFound)
	}
	h.broadcast(from, proto.EventDrawEdit, accepted)
	return nil
}

func (h *Hub) drawDelete(from *Session, data json.RawMessage) error {
	var ids []string
	if err := proto.DecodeInto(data, &ids); err != nil {
		return err
	}
	if ids == nil {
		return fmt.Errorf("delete without ids: %w", state.ErrValidation)
	}
	removed := h.store.DeleteDrawings(ids)
	glog.V(2).Infof("[hub] %s deleted %d of %d drawings\n", from.ID, removed, len(ids))
	h.broadcast(from, proto.EventDrawDelete, ids)
	return nil
}

func (h *Hub) drawProgress(from *Session, data json.RawMessage) error {
	if _, err := proto.ParseProgress(data); err != nil {
		return err
	}
	// Forwarded as received; samples are never stored.
	h.broadcastRaw(from, proto.EventDrawProgress, data)
	return nil
}

func (h *Hub) viewChanged(from *Session, data json.RawMessage) error {
	v, err := state.ParseView(data)
	if err != nil {
		return err
	}
	if err := h.store.SetView(v); err != nil {
		return err
	}
	h.broadcast(from, proto.EventViewChanged, v)
	return nil
}

func (h *Hub) presenceUpdate(from *Session, data json.RawMessage) error {
	var d state.PresenceDelta
	if err := proto.DecodeInto(data, &d); err != nil {
		return err
	}
	h.broadcast(from, proto.EventPresenceUpdate, h.store.UpdatePresence(from.ID, d))
	return nil
}

func (h *Hub) usernameSet(from *Session, data json.RawMessage) error {
	var msg struct {
		Name any `json:"name"`
	}
	if err := proto.DecodeInto(data, &msg); err != nil {
		return err
	}
	name, _ := msg.Name.(string)
	p := h.store.SetName(from.ID, name)
	notice := proto.UserUpdated{ID: p.ID, Name: p.Name}
	h.send(from, proto.EventUserUpdated, notice)
	h.broadcast(from, proto.EventUserUpdated, notice)
	return nil
}

func (h *Hub) send(to *Session, event string, payload any) {
	frame, err := proto.Encode(event, payload)
	if err != nil {
		glog.Errorf("[hub] %s\n", err)
		return
	}
	h.deliver(to, frame)
}

func (h *Hub) broadcast(except *Session, event string, payload any) {
	frame, err := proto.Encode(event, payload)
	if err != nil {
		glog.Errorf("[hub] %s\n", err)
		return
	}
	h.fanOut(except, frame)
}

func (h *Hub) broadcastRaw(except *Session, event string, data json.RawMessage) {
	frame, err := json.Marshal(proto.Envelope{Event: event, Data: data})
	if err != nil {
		glog.Errorf("[hub] %s\n", err)
		return
	}
	h.fanOut(except, frame)
}

func (h *Hub) fanOut(except *Session, frame []byte) {
	for id, s := range h.sessions {
		if except != nil && id == except.ID {
			continue
		}
		h.deliver(s, frame)
	}
}

// deliver queues a frame without blocking. A session whose buffer is full
// is evicted and its departure announced.
func (h *Hub) deliver(to *Session, frame []byte) {
	if _, ok := h.sessions[to.ID]; !ok {
		return
	}
	select {
	case to.send <- frame:
	default:
		glog.Warningf("[hub] %s is not keeping up, evicting\n", to.ID)
		h.leave(to)
	}
}
