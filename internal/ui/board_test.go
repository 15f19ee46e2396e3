package ui

import (
	"image/color"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MapBoard/internal/client"
	"MapBoard/internal/state"
)

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	a := test.NewApp()
	t.Cleanup(a.Quit)
	b := NewBoard()
	b.Resize(fyne.NewSize(400, 200))
	return b
}

func drag(b *Board, x, y, dx, dy float32) {
	b.Dragged(&fyne.DragEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)},
		Dragged:    fyne.NewDelta(dx, dy),
	})
}

func TestBoardReadyOnceSized(t *testing.T) {
	test.NewApp()
	b := NewBoard()
	assert.False(t, b.Ready())
	_, ok := b.View()
	assert.False(t, ok)

	b.Resize(fyne.NewSize(400, 200))
	assert.True(t, b.Ready())
	_, ok = b.View()
	assert.True(t, ok)
}

func TestBoardLayerLifecycle(t *testing.T) {
	b := newTestBoard(t)
	l := client.Layer{Shape: state.Shape{Type: state.Marker, Style: state.DefaultStyle()}, Label: "Ann"}

	require.NoError(t, b.CreateLayer(client.GroupShapes, "m1", l))
	assert.Error(t, b.CreateLayer(client.GroupShapes, "m1", l))
	assert.NoError(t, b.CreateLayer(client.GroupPresence, "m1", l), "groups do not collide")
	assert.ErrorIs(t, b.UpdateLayer(client.GroupProgress, "m1", l), state.ErrNotFound)

	objects := test.WidgetRenderer(b).Objects()
	assert.Greater(t, len(objects), 1)

	b.RemoveLayer(client.GroupShapes, "m1")
	b.RemoveLayer(client.GroupShapes, "m1")
	b.RemoveLayer(client.GroupPresence, "m1")
	assert.Len(t, test.WidgetRenderer(b).Objects(), 1, "only the background is left")
}

func TestBoardProjectionRoundTrip(t *testing.T) {
	b := newTestBoard(t)
	b.SetView(state.ViewState{Center: state.LatLng{Lat: 48.1, Lng: 11.5}, Zoom: 5})

	b.mu.RLock()
	defer b.mu.RUnlock()
	assert.Equal(t, fyne.NewPos(200, 100), b.project(state.LatLng{Lat: 48.1, Lng: 11.5}))
	p := state.LatLng{Lat: 48.3, Lng: 11.2}
	back := b.unproject(b.project(p))
	assert.InDelta(t, p.Lat, back.Lat, 1e-3)
	assert.InDelta(t, p.Lng, back.Lng, 1e-3)
}

func TestBoardTapDependsOnTool(t *testing.T) {
	b := newTestBoard(t)
	center := state.LatLng{Lat: 10, Lng: 20}
	b.SetView(state.ViewState{Center: center, Zoom: 4})
	var clicked []state.LatLng
	var shapes []state.Shape
	b.On.Click = func(p state.LatLng) { clicked = append(clicked, p) }
	b.On.Shape = func(s state.Shape) { shapes = append(shapes, s) }
	tap := &fyne.PointEvent{Position: fyne.NewPos(200, 100)}

	b.Tapped(tap)
	assert.Empty(t, clicked, "pan tool ignores taps")

	b.SetTool(ToolClick)
	b.Tapped(tap)
	require.Len(t, clicked, 1)
	assert.Equal(t, center, clicked[0])

	b.SetTool(ToolMarker)
	b.SetColor("#2563EB")
	b.Tapped(tap)
	require.Len(t, shapes, 1)
	assert.Equal(t, state.Marker, shapes[0].Type)
	assert.Equal(t, "#2563eb", shapes[0].Style.Color)
}

func TestBoardDragDrawsRectangle(t *testing.T) {
	b := newTestBoard(t)
	var started []state.ShapeType
	var done []state.Shape
	b.On.GestureStart = func(st state.ShapeType) { started = append(started, st) }
	b.On.Shape = func(s state.Shape) { done = append(done, s) }
	b.SetTool(ToolRectangle)

	drag(b, 210, 90, 10, -10)
	drag(b, 220, 80, 10, -10)
	require.Equal(t, []state.ShapeType{state.Rectangle}, started)

	sketch, ok := b.Sketch()
	require.True(t, ok)
	assert.Equal(t, state.Rectangle, sketch.Type)
	assert.Less(t, sketch.SW.Lat, sketch.NE.Lat)
	assert.Less(t, sketch.SW.Lng, sketch.NE.Lng)

	b.DragEnd()
	require.Len(t, done, 1)
	assert.Equal(t, sketch.NE, done[0].NE)
	_, ok = b.Sketch()
	assert.False(t, ok)
}

func TestBoardSwitchingToolCancelsGesture(t *testing.T) {
	b := newTestBoard(t)
	cancelled := 0
	var tools []string
	b.On.GestureCancel = func() { cancelled++ }
	b.On.ToolChanged = func(t Tool) { tools = append(tools, t.String()) }
	b.SetTool(ToolPolyline)
	drag(b, 210, 90, 10, 10)
	drag(b, 220, 95, 10, 5)

	b.SetTool(ToolPan)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, []string{"polyline", "pan"}, tools)
	_, ok := b.Sketch()
	assert.False(t, ok)
}

func TestBoardPanMovesView(t *testing.T) {
	b := newTestBoard(t)
	moved := 0
	b.On.ViewMoved = func() { moved++ }

	drag(b, 210, 100, 10, 0)
	v, _ := b.View()
	assert.Less(t, v.Center.Lng, 0.0)
	assert.Equal(t, 0, moved, "reported when the drag ends")

	b.DragEnd()
	assert.Equal(t, 1, moved)

	b.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.NewDelta(0, 1)})
	v, _ = b.View()
	assert.Equal(t, 2.5, v.Zoom)
	assert.Equal(t, 2, moved)
}

func TestBoardEditSelectsAndMoves(t *testing.T) {
	b := newTestBoard(t)
	require.NoError(t, b.CreateLayer(client.GroupShapes, "m1", client.Layer{Shape: state.Shape{Type: state.Marker}}))
	var selected []string
	var reshaped state.Shape
	b.On.Select = func(id string) { selected = append(selected, id) }
	b.On.Reshape = func(id string, s state.Shape) {
		assert.Equal(t, "m1", id)
		reshaped = s
	}
	b.SetTool(ToolEdit)

	b.Tapped(&fyne.PointEvent{Position: fyne.NewPos(202, 101)})
	b.Tapped(&fyne.PointEvent{Position: fyne.NewPos(20, 20)})
	assert.Equal(t, []string{"m1", ""}, selected)

	b.SetEditing("m1", true)
	assert.Greater(t, len(test.WidgetRenderer(b).Objects()), 2, "handles drawn")
	drag(b, 210, 100, 10, 0)
	assert.Greater(t, reshaped.Center.Lng, 0.0)
	assert.Equal(t, 0.0, reshaped.Center.Lat)
}

func TestEditDragAccumulatesBeforeLayerUpdates(t *testing.T) {
	b := newTestBoard(t)
	require.NoError(t, b.CreateLayer(client.GroupShapes, "m1", client.Layer{Shape: state.Shape{Type: state.Marker}}))
	b.SetEditing("m1", true)
	var reshaped []state.Shape
	b.On.Reshape = func(_ string, s state.Shape) { reshaped = append(reshaped, s) }
	b.SetTool(ToolEdit)

	// the layer is never updated, as when the loop has not caught up yet
	drag(b, 210, 100, 10, 0)
	drag(b, 220, 100, 10, 0)
	drag(b, 230, 100, 10, 0)
	require.Len(t, reshaped, 3)
	step := reshaped[0].Center.Lng
	assert.Greater(t, step, 0.0)
	assert.InDelta(t, 3*step, reshaped[2].Center.Lng, 1e-9)

	b.DragEnd()
	drag(b, 240, 100, 10, 0)
	require.Len(t, reshaped, 4)
	assert.InDelta(t, step, reshaped[3].Center.Lng, 1e-9, "a new drag starts from the layer")
}

func TestParseColor(t *testing.T) {
	fallback := color.Black
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, parseColor("#FF0000", fallback))
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, parseColor("hsl(0, 100%, 50%)", fallback))
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, parseColor("hsl(120, 100%, 50%)", fallback))
	assert.Equal(t, fallback, parseColor("teal", fallback))

	peer := parseColor(client.PeerColor(state.Presence{ID: "ab"}), fallback)
	assert.NotEqual(t, fallback, peer)
}

func TestWithAlpha(t *testing.T) {
	c := withAlpha(color.NRGBA{R: 10, A: 255}, 0.5)
	assert.Equal(t, uint8(127), c.(color.NRGBA).A)
	assert.Equal(t, color.NRGBA{R: 10, A: 255}, withAlpha(color.NRGBA{R: 10, A: 255}, 1))
}
