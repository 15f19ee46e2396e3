// Package client keeps a participant's view of the shared map in step with
// the relay. Remote operations are applied idempotently onto a Surface;
// local gestures become outbound events.
//
// A Client is not safe for concurrent use. Every method, including Handle,
// must be called from the goroutine that runs its Scheduler.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"

	"MapBoard/internal/loop"
	"MapBoard/internal/proto"
	"MapBoard/internal/state"
)

// ErrDuplicate is returned when a local create repeats the previous one.
var ErrDuplicate = errors.New("duplicate create")

type Options struct {
	ReadyPoll      time.Duration
	ReadyAttempts  int
	EditQuiet      time.Duration
	ProgressEvery  time.Duration
	ProgressTTL    time.Duration
	ProgressSweep  time.Duration
	CursorThrottle time.Duration
	FollowSuppress time.Duration
	HistoryLimit   int
	MaxClicks      int
}

func DefaultOptions() Options {
	return Options{
		ReadyPoll:      250 * time.Millisecond,
		ReadyAttempts:  120,
		EditQuiet:      150 * time.Millisecond,
		ProgressEvery:  120 * time.Millisecond,
		ProgressTTL:    3 * time.Second,
		ProgressSweep:  1500 * time.Millisecond,
		CursorThrottle: 90 * time.Millisecond,
		FollowSuppress: 100 * time.Millisecond,
		HistoryLimit:   DefaultHistoryLimit,
		MaxClicks:      state.MaxClickHistory,
	}
}

type shapeEntry struct {
	shape   state.Shape
	feature json.RawMessage
	sig     uint64
}

type clickMark struct {
	layer string
	click state.ClickEvent
}

type Client struct {
	sched   loop.Scheduler
	surface Surface
	out     Emitter
	opts    Options

	id      string
	context string

	shapes   map[string]*shapeEntry
	clicks   []clickMark
	clickSeq int

	queue      []func()
	readyTask  loop.Task
	readyTries int

	editing       string
	lastCreateSig uint64

	edits    *editDebouncer
	gesture  *progressSender
	previews *progressReceiver
	history  *History
	presence *PresenceTracker
}

func New(sched loop.Scheduler, surface Surface, out Emitter, opts Options) *Client {
	c := &Client{
		sched:   sched,
		surface: surface,
		out:     out,
		opts:    opts,
		shapes:  make(map[string]*shapeEntry),
		history: NewHistory(opts.HistoryLimit),
	}
	c.edits = newEditDebouncer(sched, opts.EditQuiet, c.feature, func(id string, raw json.RawMessage) {
		c.emit(proto.EventDrawEdit, []state.Drawing{{ID: id, GeoJSON: raw}})
	})
	c.gesture = &progressSender{
		sched:    sched,
		interval: opts.ProgressEvery,
		emit:     func(p proto.ProgressSample) { c.emit(proto.EventDrawProgress, p) },
	}
	c.previews = &progressReceiver{
		sched:    sched,
		surface:  surface,
		ttl:      opts.ProgressTTL,
		every:    opts.ProgressSweep,
		lastSeen: make(map[string]time.Time),
	}
	c.presence = &PresenceTracker{
		sched:    sched,
		surface:  surface,
		emit:     c.emit,
		suppress: opts.FollowSuppress,
		throttle: opts.CursorThrottle,
		peers:    make(map[string]*state.Presence),
		cursors:  make(map[string]bool),
	}
	return c
}

func (c *Client) ID() string                 { return c.id }
func (c *Client) Context() string            { return c.context }
func (c *Client) Editing() string            { return c.editing }
func (c *Client) History() *History          { return c.history }
func (c *Client) Presence() *PresenceTracker { return c.presence }
func (c *Client) PreviewCount() int          { return c.previews.Len() }
func (c *Client) QueueLen() int              { return len(c.queue) }

// Shape returns a registered shape and its feature.
func (c *Client) Shape(id string) (state.Shape, json.RawMessage, bool) {
	e, ok := c.shapes[id]
	if !ok {
		return state.Shape{}, nil, false
	}
	return e.shape, e.feature, true
}

// ShapeIDs lists the registered shapes in sorted order.
func (c *Client) ShapeIDs() []string {
	ids := make([]string, 0, len(c.shapes))
	for id := range c.shapes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Client) Clicks() []state.ClickEvent {
	out := make([]state.ClickEvent, len(c.clicks))
	for i, m := range c.clicks {
		out[i] = m.click
	}
	return out
}

// Snapshot returns the local view of the workspace in the relay's format.
func (c *Client) Snapshot() state.Snapshot {
	snap := state.Snapshot{
		Context:  c.context,
		Clicks:   c.Clicks(),
		Drawings: make([]state.Drawing, 0, len(c.shapes)),
		Users:    c.presence.Users(),
	}
	for _, id := range c.ShapeIDs() {
		snap.Drawings = append(snap.Drawings, state.Drawing{ID: id, GeoJSON: c.shapes[id].feature})
	}
	if v, ok := c.surface.View(); ok {
		snap.View = &v
	}
	return snap
}

// Handle applies one event received from the relay.
func (c *Client) Handle(env proto.Envelope) error {
	switch env.Event {
	case proto.EventConnected:
		var msg proto.Connected
		if err := proto.DecodeInto(env.Data, &msg); err != nil {
			return err
		}
		c.id = msg.ID
		c.presence.SetSelf(msg.ID)
		c.presence.Announce()
		glog.Infof("[client] connected as %s\n", msg.ID)
		return nil
	case proto.EventDrawProgress:
		p, err := proto.ParseProgress(env.Data)
		if err != nil {
			return err
		}
		if !c.surface.Ready() {
			glog.V(2).Infof("[client] surface not ready, dropping progress %s\n", p.ID)
			return nil
		}
		c.previews.Apply(p)
		return nil
	}

	apply, err := c.decode(env)
	if err != nil {
		return err
	}
	c.whenReady(apply)
	return nil
}

// decode validates a remote event and returns the work that applies it.
func (c *Client) decode(env proto.Envelope) (func(), error) {
	switch env.Event {
	case proto.EventStateInit:
		var snap state.Snapshot
		if err := proto.DecodeInto(env.Data, &snap); err != nil {
			return nil, err
		}
		return func() { c.applySnapshot(snap) }, nil
	case proto.EventMapChanged:
		var ctx string
		if err := proto.DecodeInto(env.Data, &ctx); err != nil {
			return nil, err
		}
		return func() { c.resetContext(ctx) }, nil
	case proto.EventPointClicked:
		var click state.ClickEvent
		if err := proto.DecodeInto(env.Data, &click); err != nil {
			return nil, err
		}
		if !click.Point().Valid() {
			return nil, fmt.Errorf("click: %w", state.ErrValidation)
		}
		return func() { c.addClick(click) }, nil
	case proto.EventDrawCreate:
		var d state.Drawing
		if err := proto.DecodeInto(env.Data, &d); err != nil {
			return nil, err
		}
		if !d.Valid() {
			return nil, fmt.Errorf("create: %w", state.ErrValidation)
		}
		return func() { c.applyCreate(d) }, nil
	case proto.EventDrawEdit:
		var ds []state.Drawing
		if err := proto.DecodeInto(env.Data, &ds); err != nil {
			return nil, err
		}
		return func() { c.applyEdit(ds) }, nil
	case proto.EventDrawDelete:
		var ids []string
		if err := proto.DecodeInto(env.Data, &ids); err != nil {
			return nil, err
		}
		return func() { c.applyDelete(ids) }, nil
	case proto.EventViewChanged:
		v, err := state.ParseView(env.Data)
		if err != nil {
			return nil, err
		}
		return func() { c.presence.ApplyView(v) }, nil
	case proto.EventPresenceUpdate:
		var d state.PresenceDelta
		if err := proto.DecodeInto(env.Data, &d); err != nil {
			return nil, err
		}
		return func() { c.presence.Merge(d) }, nil
	case proto.EventUserJoined, proto.EventUserLeft:
		var ref proto.UserRef
		if err := proto.DecodeInto(env.Data, &ref); err != nil {
			return nil, err
		}
		if env.Event == proto.EventUserJoined {
			return func() { c.presence.Joined(ref.ID) }, nil
		}
		return func() { c.presence.Left(ref.ID) }, nil
	case proto.EventUserUpdated:
		var n proto.UserUpdated
		if err := proto.DecodeInto(env.Data, &n); err != nil {
			return nil, err
		}
		return func() { c.presence.Renamed(n) }, nil
	}
	return nil, fmt.Errorf("unknown event %q: %w", env.Event, state.ErrValidation)
}

// whenReady runs fn now if the surface is ready and nothing is queued ahead
// of it. Otherwise fn waits, in arrival order, for the readiness probe.
func (c *Client) whenReady(fn func()) {
	if len(c.queue) == 0 && c.surface.Ready() {
		fn()
		return
	}
	c.queue = append(c.queue, fn)
	if c.readyTask != nil {
		return
	}
	c.readyTries = 0
	c.readyTask = c.sched.Every(c.opts.ReadyPoll, c.probe)
}

func (c *Client) probe() {
	c.readyTries++
	if c.surface.Ready() {
		c.stopProbe()
		queued := c.queue
		c.queue = nil
		glog.V(2).Infof("[client] surface ready, applying %d queued ops\n", len(queued))
		for _, fn := range queued {
			fn()
		}
		return
	}
	if c.readyTries >= c.opts.ReadyAttempts {
		c.stopProbe()
		glog.Errorf("[client] dropping %d queued ops: %s\n", len(c.queue), fmt.Errorf("after %d probes: %w", c.readyTries, state.ErrStaleReadiness))
		c.queue = nil
	}
}

func (c *Client) stopProbe() {
	if c.readyTask != nil {
		c.readyTask.Cancel()
		c.readyTask = nil
	}
}

func (c *Client) applySnapshot(snap state.Snapshot) {
	c.context = snap.Context
	if snap.View != nil {
		c.presence.ApplyView(*snap.View)
	}

	c.clearClicks()
	for _, click := range snap.Clicks {
		c.addClick(click)
	}

	keep := make(map[string]bool, len(snap.Drawings))
	for _, d := range snap.Drawings {
		keep[d.ID] = true
	}
	for id := range c.shapes {
		if !keep[id] {
			c.removeShape(id)
		}
	}
	for _, d := range snap.Drawings {
		if e, ok := c.shapes[d.ID]; ok && e.sig == state.Signature(d.GeoJSON) {
			continue
		}
		c.applyEdit([]state.Drawing{d})
	}

	c.presence.Reset(snap.Users)
	glog.V(2).Infof("[client] hydrated %q: %d shapes, %d clicks, %d users\n", snap.Context, len(c.shapes), len(c.clicks), len(snap.Users))
}

// resetContext drops everything that belongs to the previous workspace.
func (c *Client) resetContext(ctx string) {
	glog.Infof("[client] context %q -> %q\n", c.context, ctx)
	c.context = ctx
	for id := range c.shapes {
		c.removeShape(id)
	}
	c.clearClicks()
	c.previews.Clear()
	c.history.Clear()
	c.edits.Reset()
	c.lastCreateSig = 0
}

func (c *Client) applyCreate(d state.Drawing) {
	if _, exists := c.shapes[d.ID]; exists {
		return
	}
	if err := c.register(d.ID, d.GeoJSON); err != nil {
		glog.V(2).Infof("[client] drop create %s: %s\n", d.ID, err)
	}
}

// applyEdit fully replaces each known shape and creates unknown ones. A
// remote edit of the shape being edited locally wins over the local edit.
func (c *Client) applyEdit(ds []state.Drawing) {
	for _, d := range ds {
		if !d.Valid() {
			continue
		}
		if _, err := state.ParseFeature(d.GeoJSON); err != nil {
			glog.V(2).Infof("[client] drop edit %s: %s\n", d.ID, err)
			continue
		}
		if _, exists := c.shapes[d.ID]; exists {
			c.yieldEdit(d.ID)
			c.removeShape(d.ID)
		}
		if err := c.register(d.ID, d.GeoJSON); err != nil {
			glog.Warningf("[client] edit %s: %s\n", d.ID, err)
		}
	}
}

func (c *Client) applyDelete(ids []string) {
	for _, id := range ids {
		if _, exists := c.shapes[id]; !exists {
			continue
		}
		c.yieldEdit(id)
		c.removeShape(id)
	}
}

// yieldEdit abandons a local edit of id in favor of remote state.
func (c *Client) yieldEdit(id string) {
	if c.editing != id {
		return
	}
	glog.Infof("[client] remote change to %s overrides local edit\n", id)
	c.edits.Discard(id)
	c.surface.SetEditing(id, false)
	c.editing = ""
}

func (c *Client) register(id string, raw json.RawMessage) error {
	shape, err := state.ParseFeature(raw)
	if err != nil {
		return err
	}
	if err := c.surface.CreateLayer(GroupShapes, id, Layer{Shape: shape}); err != nil {
		return err
	}
	c.shapes[id] = &shapeEntry{shape: shape, feature: raw, sig: state.Signature(raw)}
	c.edits.Seen(id, raw)
	return nil
}

func (c *Client) removeShape(id string) {
	c.surface.RemoveLayer(GroupShapes, id)
	delete(c.shapes, id)
	c.edits.Forget(id)
	if c.editing == id {
		c.editing = ""
	}
}

func (c *Client) feature(id string) (json.RawMessage, bool) {
	e, ok := c.shapes[id]
	if !ok {
		return nil, false
	}
	return e.feature, true
}

func (c *Client) addClick(click state.ClickEvent) {
	c.clickSeq++
	m := clickMark{layer: fmt.Sprintf("c%d", c.clickSeq), click: click}
	style := state.DefaultStyle()
	if col := state.NormalizeColor(click.Color); col != "" {
		style.Color, style.FillColor = col, col
	}
	style.Fill = true
	shape := state.Shape{Type: state.Circle, Center: click.Point(), Radius: 1, Style: style}
	if err := c.surface.CreateLayer(GroupClicks, m.layer, Layer{Shape: shape}); err != nil {
		glog.Warningf("[client] click: %s\n", err)
		return
	}
	c.clicks = append(c.clicks, m)
	max := c.opts.MaxClicks
	if max <= 0 {
		max = state.MaxClickHistory
	}
	for len(c.clicks) > max {
		c.surface.RemoveLayer(GroupClicks, c.clicks[0].layer)
		c.clicks = c.clicks[1:]
	}
}

func (c *Client) clearClicks() {
	for _, m := range c.clicks {
		c.surface.RemoveLayer(GroupClicks, m.layer)
	}
	c.clicks = nil
}

func (c *Client) emit(event string, payload any) {
	if err := c.out.Emit(event, payload); err != nil {
		glog.Warningf("[client] emit %s: %s\n", event, err)
	}
}
