package client

import (
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf16"

	"github.com/golang/glog"

	"MapBoard/internal/loop"
	"MapBoard/internal/proto"
	"MapBoard/internal/state"
)

// PeerColor returns the display color of a participant: the explicit color
// if it is a valid hex color, otherwise one derived from its id or name.
func PeerColor(p state.Presence) string {
	if p.Color != nil {
		if c := state.NormalizeColor(*p.Color); c != "" {
			return c
		}
	}
	seed := p.ID
	if seed == "" && p.Name != nil {
		seed = *p.Name
	}
	if seed == "" {
		seed = "u"
	}
	var h uint32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = h*31 + uint32(c)
	}
	return fmt.Sprintf("hsl(%d, 85%%, 55%%)", h%360)
}

// PresenceTracker mirrors the other participants' presence records, draws
// their cursors and implements follow mode.
type PresenceTracker struct {
	sched    loop.Scheduler
	surface  Surface
	emit     func(event string, payload any)
	suppress time.Duration
	throttle time.Duration

	self    string
	peers   map[string]*state.Presence
	cursors map[string]bool
	local   state.Presence

	follow        string
	suppressUntil time.Time

	lastCursor    time.Time
	pendingCursor *state.LatLng
	cursorTask    loop.Task
}

// Reset replaces every record with users, as delivered in a snapshot.
func (t *PresenceTracker) Reset(users []state.Presence) {
	for id := range t.cursors {
		t.removeCursor(id)
	}
	t.peers = make(map[string]*state.Presence, len(users))
	for _, u := range users {
		u := u
		t.peers[u.ID] = &u
		t.drawCursor(&u)
	}
	if p, ok := t.peers[t.follow]; ok {
		t.applyFollowView(p)
	}
}

func (t *PresenceTracker) SetSelf(id string) {
	t.self = id
	t.local.ID = id
	t.removeCursor(id)
}

func (t *PresenceTracker) Joined(id string) {
	if _, ok := t.peers[id]; !ok {
		t.peers[id] = &state.Presence{ID: id}
	}
}

func (t *PresenceTracker) Left(id string) {
	delete(t.peers, id)
	t.removeCursor(id)
	if t.follow == id {
		glog.Infof("[client] followed peer %s left\n", id)
		t.follow = ""
	}
}

func (t *PresenceTracker) Renamed(n proto.UserUpdated) {
	p := t.peer(n.ID)
	p.Name = n.Name
	if n.ID == t.self {
		t.local.Name = n.Name
	}
	t.drawCursor(p)
}

// Merge folds a peer's partial update into its record.
func (t *PresenceTracker) Merge(d state.PresenceDelta) {
	if d.ID == "" {
		return
	}
	p := t.peer(d.ID)
	d.Apply(p)
	t.drawCursor(p)
	if d.View != nil && d.ID == t.follow {
		t.applyView(*d.View)
	}
}

func (t *PresenceTracker) Peer(id string) (state.Presence, bool) {
	p, ok := t.peers[id]
	if !ok {
		return state.Presence{}, false
	}
	return *p, true
}

// Users lists the known participants ordered by id.
func (t *PresenceTracker) Users() []state.Presence {
	out := make([]state.Presence, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *PresenceTracker) Following() string { return t.follow }

// Follow starts tracking id's viewport; an empty id stops following.
func (t *PresenceTracker) Follow(id string) {
	t.follow = id
	if p, ok := t.peers[id]; ok {
		t.applyFollowView(p)
	}
}

// ApplyView moves the local viewport for a remote reason.
func (t *PresenceTracker) ApplyView(v state.ViewState) { t.applyView(v) }

// Suppressed reports whether local viewport changes are currently the echo
// of a programmatic move.
func (t *PresenceTracker) Suppressed() bool {
	return t.sched.Now().Before(t.suppressUntil)
}

// ViewMoved is called when the local viewport settles after a move.
func (t *PresenceTracker) ViewMoved() {
	if t.Suppressed() {
		glog.V(2).Infof("[client] view move suppressed\n")
		return
	}
	v, ok := t.surface.View()
	if !ok {
		return
	}
	t.local.View = &v
	t.emit(proto.EventPresenceUpdate, state.PresenceDelta{View: &v})
}

// SyncView pushes the local viewport to everyone as the shared view.
func (t *PresenceTracker) SyncView() {
	v, ok := t.surface.View()
	if !ok {
		return
	}
	t.emit(proto.EventViewChanged, v)
}

// MoveCursor reports the local pointer position, at most once per throttle
// window. The last position inside a window is sent when it closes.
func (t *PresenceTracker) MoveCursor(p state.LatLng) {
	if !p.Valid() {
		return
	}
	now := t.sched.Now()
	if wait := t.throttle - now.Sub(t.lastCursor); wait > 0 {
		t.pendingCursor = &p
		if t.cursorTask == nil {
			t.cursorTask = t.sched.AfterFunc(wait, t.flushCursor)
		}
		return
	}
	t.sendCursor(p)
}

func (t *PresenceTracker) flushCursor() {
	t.cursorTask = nil
	if p := t.pendingCursor; p != nil {
		t.pendingCursor = nil
		t.sendCursor(*p)
	}
}

func (t *PresenceTracker) sendCursor(p state.LatLng) {
	t.lastCursor = t.sched.Now()
	t.local.Cursor = &p
	t.emit(proto.EventPresenceUpdate, state.PresenceDelta{Cursor: &p})
}

// SetTool announces the active tool; an empty tool clears it.
func (t *PresenceTracker) SetTool(tool string) {
	d := state.PresenceDelta{HasTool: true}
	if tool != "" {
		d.Tool = &tool
	}
	d.Apply(&t.local)
	t.emit(proto.EventPresenceUpdate, d)
}

func (t *PresenceTracker) SetColor(color string) error {
	c := state.NormalizeColor(color)
	if c == "" {
		return fmt.Errorf("color %q: %w", color, state.ErrValidation)
	}
	d := state.PresenceDelta{Color: c}
	d.Apply(&t.local)
	t.emit(proto.EventPresenceUpdate, d)
	return nil
}

func (t *PresenceTracker) SetName(name string) {
	n := state.NormalizeName(name)
	if n == "" {
		t.local.Name = nil
	} else {
		t.local.Name = &n
	}
	t.emit(proto.EventUsernameSet, proto.UsernameSet{Name: n})
}

// Announce re-sends the local name and presence, used after every
// (re)connect since the relay forgets a session's record when it ends.
func (t *PresenceTracker) Announce() {
	if t.local.Name != nil {
		t.emit(proto.EventUsernameSet, proto.UsernameSet{Name: *t.local.Name})
	}
	d := state.PresenceDelta{Cursor: t.local.Cursor, View: t.local.View}
	if t.local.Tool != nil {
		d.HasTool, d.Tool = true, t.local.Tool
	}
	if t.local.Color != nil {
		d.Color = *t.local.Color
	}
	if !d.Empty() {
		t.emit(proto.EventPresenceUpdate, d)
	}
}

func (t *PresenceTracker) Local() state.Presence { return t.local }

func (t *PresenceTracker) peer(id string) *state.Presence {
	p, ok := t.peers[id]
	if !ok {
		p = &state.Presence{ID: id}
		t.peers[id] = p
	}
	return p
}

func (t *PresenceTracker) drawCursor(p *state.Presence) {
	if p.ID == t.self || p.Cursor == nil {
		return
	}
	label := shortID(p.ID)
	if p.Name != nil {
		label = *p.Name
	}
	color := PeerColor(*p)
	style := state.DefaultStyle()
	style.Color, style.FillColor, style.Fill = color, color, true
	l := Layer{Shape: state.Shape{Type: state.Marker, Center: *p.Cursor, Style: style, IconColor: color}, Label: label}
	var err error
	if t.cursors[p.ID] {
		err = t.surface.UpdateLayer(GroupPresence, p.ID, l)
	} else {
		err = t.surface.CreateLayer(GroupPresence, p.ID, l)
	}
	if err != nil {
		glog.Warningf("[client] cursor %s: %s\n", p.ID, err)
		return
	}
	t.cursors[p.ID] = true
}

func (t *PresenceTracker) removeCursor(id string) {
	if t.cursors[id] {
		t.surface.RemoveLayer(GroupPresence, id)
		delete(t.cursors, id)
	}
}

func (t *PresenceTracker) applyFollowView(p *state.Presence) {
	if p.View != nil {
		t.applyView(*p.View)
	}
}

// applyView moves the surface unless it is already there, and opens the
// suppression window so the resulting move is not re-emitted.
func (t *PresenceTracker) applyView(v state.ViewState) {
	if !v.Valid() {
		return
	}
	if cur, ok := t.surface.View(); ok {
		samePos := math.Abs(cur.Center.Lat-v.Center.Lat)+math.Abs(cur.Center.Lng-v.Center.Lng) < 1e-8
		if samePos && math.Abs(cur.Zoom-v.Zoom) < 1e-6 {
			return
		}
	}
	t.suppressUntil = t.sched.Now().Add(t.suppress)
	t.surface.SetView(v)
}

func shortID(id string) string {
	r := []rune(id)
	if len(r) > 6 {
		return string(r[:3]) + "…" + string(r[len(r)-2:])
	}
	if id == "" {
		return "anon"
	}
	return id
}
