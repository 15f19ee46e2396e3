package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MapBoard/internal/proto"
	"MapBoard/internal/state"
)

func strp(s string) *string { return &s }

func TestPeerColor(t *testing.T) {
	tests := []struct {
		name string
		p    state.Presence
		want string
	}{
		{"explicit", state.Presence{ID: "ab", Color: strp("ABCDEF")}, "#abcdef"},
		{"invalid explicit falls back", state.Presence{ID: "ab", Color: strp("red")}, "hsl(225, 85%, 55%)"},
		{"from id", state.Presence{ID: "ab"}, "hsl(225, 85%, 55%)"},
		{"from name", state.Presence{Name: strp("ab")}, "hsl(225, 85%, 55%)"},
		{"anonymous", state.Presence{}, "hsl(117, 85%, 55%)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeerColor(tt.p))
		})
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc…gh", shortID("abcdefgh"))
	assert.Equal(t, "abcdef", shortID("abcdef"))
	assert.Equal(t, "anon", shortID(""))
}

func TestPeerCursorDrawnButNeverSelf(t *testing.T) {
	h := newHarness(t, true)
	h.recv(t, proto.EventConnected, proto.Connected{ID: "me"})
	h.recv(t, proto.EventUserJoined, proto.UserRef{ID: "peer-12345"})

	h.recv(t, proto.EventPresenceUpdate, state.PresenceDelta{ID: "peer-12345", Cursor: &state.LatLng{Lat: 1, Lng: 2}})
	h.recv(t, proto.EventPresenceUpdate, state.PresenceDelta{ID: "me", Cursor: &state.LatLng{Lat: 3, Lng: 4}})

	assert.Equal(t, []string{"peer-12345"}, h.surf.IDs(GroupPresence))
	l, _ := h.surf.Layer(GroupPresence, "peer-12345")
	assert.Equal(t, "pee…45", l.Label)
	assert.Equal(t, state.LatLng{Lat: 1, Lng: 2}, l.Shape.Center)

	h.recv(t, proto.EventUserUpdated, proto.UserUpdated{ID: "peer-12345", Name: strp("Bo")})
	l, _ = h.surf.Layer(GroupPresence, "peer-12345")
	assert.Equal(t, "Bo", l.Label)

	h.recv(t, proto.EventUserLeft, proto.UserRef{ID: "peer-12345"})
	assert.Empty(t, h.surf.IDs(GroupPresence))
	_, ok := h.c.Presence().Peer("peer-12345")
	assert.False(t, ok)
}

func TestFollowAppliesPeerViewWithSuppression(t *testing.T) {
	h := newHarness(t, true)
	p := h.c.Presence()
	view := state.ViewState{Center: state.LatLng{Lat: 48.1, Lng: 11.5}, Zoom: 12}
	h.recv(t, proto.EventPresenceUpdate, state.PresenceDelta{ID: "p1", View: &view})

	p.Follow("p1")
	got, ok := h.surf.View()
	require.True(t, ok)
	assert.Equal(t, view, got)
	assert.True(t, p.Suppressed())

	p.ViewMoved()
	assert.Empty(t, h.out.named(proto.EventPresenceUpdate), "programmatic move is not echoed")

	h.clock.Advance(100 * time.Millisecond)
	p.ViewMoved()
	assert.Len(t, h.out.named(proto.EventPresenceUpdate), 1)

	next := state.ViewState{Center: state.LatLng{Lat: 48.2, Lng: 11.6}, Zoom: 13}
	h.recv(t, proto.EventPresenceUpdate, state.PresenceDelta{ID: "p1", View: &next})
	got, _ = h.surf.View()
	assert.Equal(t, next, got)
}

func TestFollowIgnoresNegligibleMoves(t *testing.T) {
	h := newHarness(t, true)
	p := h.c.Presence()
	view := state.ViewState{Center: state.LatLng{Lat: 1, Lng: 1}, Zoom: 5}
	h.surf.SetView(view)

	p.ApplyView(state.ViewState{Center: state.LatLng{Lat: 1 + 1e-10, Lng: 1}, Zoom: 5})
	assert.False(t, p.Suppressed(), "no move, no suppression window")
}

func TestFollowClearedWhenPeerLeaves(t *testing.T) {
	h := newHarness(t, true)
	h.recv(t, proto.EventUserJoined, proto.UserRef{ID: "p1"})
	h.c.Presence().Follow("p1")
	require.Equal(t, "p1", h.c.Presence().Following())

	h.recv(t, proto.EventUserLeft, proto.UserRef{ID: "p1"})
	assert.Equal(t, "", h.c.Presence().Following())
}

func TestCursorUpdatesAreThrottled(t *testing.T) {
	h := newHarness(t, true)
	p := h.c.Presence()

	p.MoveCursor(state.LatLng{Lat: 1, Lng: 1})
	p.MoveCursor(state.LatLng{Lat: 2, Lng: 2})
	p.MoveCursor(state.LatLng{Lat: 3, Lng: 3})
	require.Len(t, h.out.named(proto.EventPresenceUpdate), 1)

	h.clock.Advance(90 * time.Millisecond)
	frames := h.out.named(proto.EventPresenceUpdate)
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"cursor":{"lat":3,"lng":3}}`, string(frames[1].Data))

	h.clock.Advance(time.Second)
	assert.Len(t, h.out.named(proto.EventPresenceUpdate), 2)
}

func TestSetColorRejectsInvalid(t *testing.T) {
	h := newHarness(t, true)
	p := h.c.Presence()
	assert.ErrorIs(t, p.SetColor("blue"), state.ErrValidation)
	require.NoError(t, p.SetColor("#00FF00"))
	assert.Equal(t, "#00ff00", *p.Local().Color)

	require.NoError(t, h.c.RecordClick(state.LatLng{Lat: 1, Lng: 1}))
	clicks := h.out.named(proto.EventPointClicked)
	require.Len(t, clicks, 1)
	assert.JSONEq(t, `{"lat":1,"lng":1,"color":"#00ff00"}`, string(clicks[0].Data))
}

func TestSyncViewBroadcastsSharedView(t *testing.T) {
	h := newHarness(t, true)
	h.c.Presence().SyncView()
	assert.Empty(t, h.out.sent, "no viewport yet")

	h.surf.SetView(state.ViewState{Center: state.LatLng{Lat: 1, Lng: 2}, Zoom: 3})
	h.c.Presence().SyncView()
	frames := h.out.named(proto.EventViewChanged)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"center":{"lat":1,"lng":2},"zoom":3}`, string(frames[0].Data))
}
