package ui

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"MapBoard/internal/client"
	"MapBoard/internal/state"
)

type Tool int

const (
	ToolPan Tool = iota
	ToolClick
	ToolMarker
	ToolPolyline
	ToolRectangle
	ToolEdit
)

var toolNames = [...]string{"pan", "click", "marker", "polyline", "rectangle", "edit"}

func (t Tool) String() string {
	if int(t) < len(toolNames) {
		return toolNames[t]
	}
	return ""
}

const (
	tileSize = 256.0
	minZoom  = 1.0
	maxZoom  = 19.0
	// hitSlop is how far from a shape a tap still selects it, in pixels.
	hitSlop = 8.0
)

// Handlers are called on the UI goroutine when the user acts on the board.
type Handlers struct {
	Click         func(p state.LatLng)
	Cursor        func(p state.LatLng)
	ViewMoved     func()
	GestureStart  func(t state.ShapeType)
	GestureCancel func()
	Shape         func(s state.Shape)
	Select        func(id string)
	Reshape       func(id string, s state.Shape)
	ToolChanged   func(t Tool)
}

type layerKey struct {
	g  client.Group
	id string
}

// Board is a map surface drawn with fyne canvas primitives. It implements
// client.Surface; Surface methods may be called from any goroutine.
type Board struct {
	widget.BaseWidget

	On Handlers

	mu      sync.RWMutex
	size    fyne.Size
	view    state.ViewState
	layers  map[layerKey]client.Layer
	order   []layerKey
	editing map[string]bool

	tool    Tool
	color   string
	sketch  []state.LatLng
	drawing bool
	panned  bool

	// moving is the shape under an edit drag. Each frame translates it
	// rather than the layer, whose update may still be on its way.
	moving   state.Shape
	movingID string
}

var _ client.Surface = (*Board)(nil)
var _ fyne.Widget = (*Board)(nil)
var _ fyne.Draggable = (*Board)(nil)
var _ fyne.Tappable = (*Board)(nil)
var _ fyne.Scrollable = (*Board)(nil)
var _ desktop.Hoverable = (*Board)(nil)

func NewBoard() *Board {
	b := &Board{
		view:    state.ViewState{Zoom: 2},
		layers:  make(map[layerKey]client.Layer),
		editing: make(map[string]bool),
		color:   "#ff6600",
	}
	b.ExtendBaseWidget(b)
	return b
}

func (b *Board) SetTool(t Tool) {
	b.mu.Lock()
	b.tool = t
	cancel := b.drawing
	b.sketch, b.drawing = nil, false
	b.mu.Unlock()
	if cancel && b.On.GestureCancel != nil {
		b.On.GestureCancel()
	}
	if b.On.ToolChanged != nil {
		b.On.ToolChanged(t)
	}
}

// SetColor sets the stroke of shapes drawn from now on.
func (b *Board) SetColor(hex string) {
	if c := state.NormalizeColor(hex); c != "" {
		b.mu.Lock()
		b.color = c
		b.mu.Unlock()
	}
}

func (b *Board) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size.Width > 0 && b.size.Height > 0
}

func (b *Board) CreateLayer(g client.Group, id string, l client.Layer) error {
	k := layerKey{g, id}
	b.mu.Lock()
	if _, exists := b.layers[k]; exists {
		b.mu.Unlock()
		return fmt.Errorf("layer %s/%s exists", g, id)
	}
	b.layers[k] = l
	b.order = append(b.order, k)
	b.mu.Unlock()
	b.redraw()
	return nil
}

func (b *Board) UpdateLayer(g client.Group, id string, l client.Layer) error {
	k := layerKey{g, id}
	b.mu.Lock()
	if _, exists := b.layers[k]; !exists {
		b.mu.Unlock()
		return fmt.Errorf("layer %s/%s: %w", g, id, state.ErrNotFound)
	}
	b.layers[k] = l
	b.mu.Unlock()
	b.redraw()
	return nil
}

func (b *Board) RemoveLayer(g client.Group, id string) {
	k := layerKey{g, id}
	b.mu.Lock()
	if _, exists := b.layers[k]; !exists {
		b.mu.Unlock()
		return
	}
	delete(b.layers, k)
	if g == client.GroupShapes {
		delete(b.editing, id)
	}
	for i, o := range b.order {
		if o == k {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	b.redraw()
}

func (b *Board) SetEditing(id string, editing bool) {
	b.mu.Lock()
	if editing {
		b.editing[id] = true
	} else {
		delete(b.editing, id)
	}
	b.mu.Unlock()
	b.redraw()
}

func (b *Board) View() (state.ViewState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.view, b.size.Width > 0
}

func (b *Board) SetView(v state.ViewState) {
	b.mu.Lock()
	b.view = v
	b.view.Zoom = clampZoom(v.Zoom)
	b.mu.Unlock()
	b.redraw()
}

// Sketch reports the shape being drawn, if any. It is safe to call from
// another goroutine and serves as the gesture sampler.
func (b *Board) Sketch() (state.Shape, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sketchShape()
}

func (b *Board) Resize(size fyne.Size) {
	b.mu.Lock()
	b.size = size
	b.mu.Unlock()
	b.BaseWidget.Resize(size)
}

func (b *Board) redraw() {
	fyne.Do(b.Refresh)
}

func (b *Board) Tapped(ev *fyne.PointEvent) {
	b.mu.RLock()
	tool := b.tool
	p := b.unproject(ev.Position)
	var hit string
	if tool == ToolEdit {
		hit = b.hitTest(ev.Position)
	}
	style := b.style()
	b.mu.RUnlock()

	switch tool {
	case ToolClick:
		if b.On.Click != nil {
			b.On.Click(p)
		}
	case ToolMarker:
		if b.On.Shape != nil {
			b.On.Shape(state.Shape{Type: state.Marker, Center: p, Style: style, IconColor: style.Color})
		}
	case ToolEdit:
		if b.On.Select != nil {
			b.On.Select(hit)
		}
	}
}

func (b *Board) Dragged(ev *fyne.DragEvent) {
	b.mu.Lock()
	switch b.tool {
	case ToolPan:
		scale := b.scale()
		b.view.Center.Lng -= float64(ev.Dragged.DX) / scale
		b.view.Center.Lat += float64(ev.Dragged.DY) / scale
		b.panned = true
		b.mu.Unlock()
		b.Refresh()
		return
	case ToolPolyline, ToolRectangle:
		p := b.unproject(ev.Position)
		started := !b.drawing
		if started {
			start := ev.Position.Subtract(fyne.NewPos(ev.Dragged.DX, ev.Dragged.DY))
			b.sketch = []state.LatLng{b.unproject(start)}
			b.drawing = true
		}
		if b.tool == ToolRectangle {
			b.sketch = append(b.sketch[:1], p)
		} else {
			b.sketch = append(b.sketch, p)
		}
		t := b.sketchType()
		b.mu.Unlock()
		if started && b.On.GestureStart != nil {
			b.On.GestureStart(t)
		}
		b.Refresh()
		return
	case ToolEdit:
		id := b.editingShape()
		if id == "" {
			b.mu.Unlock()
			return
		}
		if id != b.movingID {
			l, ok := b.layers[layerKey{client.GroupShapes, id}]
			if !ok {
				b.mu.Unlock()
				return
			}
			b.moving, b.movingID = l.Shape, id
		}
		scale := b.scale()
		b.moving = translate(b.moving, -float64(ev.Dragged.DY)/scale, float64(ev.Dragged.DX)/scale)
		moved := b.moving
		b.mu.Unlock()
		if b.On.Reshape != nil {
			b.On.Reshape(id, moved)
		}
		return
	}
	b.mu.Unlock()
}

func (b *Board) DragEnd() {
	b.mu.Lock()
	panned := b.panned
	b.panned = false
	shape, ok := b.sketchShape()
	drawing := b.drawing
	b.sketch, b.drawing = nil, false
	b.moving, b.movingID = state.Shape{}, ""
	b.mu.Unlock()

	if panned && b.On.ViewMoved != nil {
		b.On.ViewMoved()
	}
	if !drawing {
		return
	}
	b.Refresh()
	if ok && b.On.Shape != nil {
		b.On.Shape(shape)
	} else if b.On.GestureCancel != nil {
		b.On.GestureCancel()
	}
}

func (b *Board) Scrolled(ev *fyne.ScrollEvent) {
	b.mu.Lock()
	if ev.Scrolled.DY > 0 {
		b.view.Zoom = clampZoom(b.view.Zoom + 0.5)
	} else {
		b.view.Zoom = clampZoom(b.view.Zoom - 0.5)
	}
	b.mu.Unlock()
	b.Refresh()
	if b.On.ViewMoved != nil {
		b.On.ViewMoved()
	}
}

func (b *Board) MouseIn(*desktop.MouseEvent) {}
func (b *Board) MouseOut()                   {}

func (b *Board) MouseMoved(ev *desktop.MouseEvent) {
	if b.On.Cursor == nil {
		return
	}
	b.mu.RLock()
	p := b.unproject(ev.Position)
	b.mu.RUnlock()
	b.On.Cursor(p)
}

func (b *Board) CreateRenderer() fyne.WidgetRenderer {
	r := &boardRenderer{board: b, background: canvas.NewRectangle(color.NRGBA{R: 245, G: 246, B: 248, A: 255})}
	r.Refresh()
	return r
}

// scale is pixels per degree at the current zoom. Callers hold mu.
func (b *Board) scale() float64 {
	return tileSize * math.Pow(2, b.view.Zoom) / 360
}

func (b *Board) project(p state.LatLng) fyne.Position {
	s := b.scale()
	return fyne.NewPos(
		b.size.Width/2+float32((p.Lng-b.view.Center.Lng)*s),
		b.size.Height/2-float32((p.Lat-b.view.Center.Lat)*s),
	)
}

func (b *Board) unproject(pos fyne.Position) state.LatLng {
	s := b.scale()
	return state.LatLng{
		Lat: b.view.Center.Lat - float64(pos.Y-b.size.Height/2)/s,
		Lng: b.view.Center.Lng + float64(pos.X-b.size.Width/2)/s,
	}
}

func (b *Board) style() state.Style {
	st := state.DefaultStyle()
	st.Color, st.FillColor = b.color, b.color
	return st
}

func (b *Board) sketchType() state.ShapeType {
	if b.tool == ToolRectangle {
		return state.Rectangle
	}
	return state.Polyline
}

func (b *Board) sketchShape() (state.Shape, bool) {
	if !b.drawing || len(b.sketch) < 2 {
		return state.Shape{}, false
	}
	s := state.Shape{Type: b.sketchType(), Style: b.style()}
	if s.Type == state.Rectangle {
		var bounds state.Bounds
		bounds.Extend(b.sketch[0])
		bounds.Extend(b.sketch[1])
		s.SW, s.NE = bounds.SouthWest(), bounds.NorthEast()
		return s, true
	}
	s.Points = append([]state.LatLng(nil), b.sketch...)
	return s, true
}

func (b *Board) editingShape() string {
	for id := range b.editing {
		return id
	}
	return ""
}

// hitTest returns the smallest shape whose bounds, grown by hitSlop, hold
// pos. Callers hold mu.
func (b *Board) hitTest(pos fyne.Position) string {
	slop := hitSlop / b.scale()
	p := b.unproject(pos)
	best, bestArea := "", math.Inf(1)
	for _, k := range b.order {
		if k.g != client.GroupShapes {
			continue
		}
		bounds := b.layers[k].Shape.Bounds()
		if bounds.Empty() {
			continue
		}
		if p.Lat < bounds.MinLat-slop || p.Lat > bounds.MaxLat+slop || p.Lng < bounds.MinLng-slop || p.Lng > bounds.MaxLng+slop {
			continue
		}
		if area := (bounds.MaxLat - bounds.MinLat) * (bounds.MaxLng - bounds.MinLng); area < bestArea {
			best, bestArea = k.id, area
		}
	}
	return best
}

func translate(s state.Shape, dLat, dLng float64) state.Shape {
	move := func(p state.LatLng) state.LatLng {
		return state.LatLng{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
	}
	out := s
	out.Points = make([]state.LatLng, len(s.Points))
	for i, p := range s.Points {
		out.Points[i] = move(p)
	}
	out.SW, out.NE, out.Center = move(s.SW), move(s.NE), move(s.Center)
	return out
}

func clampZoom(z float64) float64 {
	return math.Max(minZoom, math.Min(maxZoom, z))
}

type boardRenderer struct {
	board      *Board
	background *canvas.Rectangle
	objects    []fyne.CanvasObject
}

func (r *boardRenderer) Layout(size fyne.Size) {
	r.board.mu.Lock()
	r.board.size = size
	r.board.mu.Unlock()
	r.background.Resize(size)
	r.Refresh()
}

func (r *boardRenderer) MinSize() fyne.Size {
	return fyne.NewSize(300, 300)
}

func (r *boardRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *boardRenderer) Destroy() {}

// Refresh rebuilds the canvas objects: shapes, then clicks, then previews,
// then cursors, then the local sketch.
func (r *boardRenderer) Refresh() {
	b := r.board
	b.mu.RLock()
	objects := []fyne.CanvasObject{r.background}
	keys := append([]layerKey(nil), b.order...)
	sort.SliceStable(keys, func(i, j int) bool { return groupRank(keys[i].g) < groupRank(keys[j].g) })
	for _, k := range keys {
		l := b.layers[k]
		objects = append(objects, b.draw(l)...)
		if k.g == client.GroupShapes && b.editing[k.id] {
			objects = append(objects, b.handles(l.Shape)...)
		}
	}
	if shape, ok := b.sketchShape(); ok {
		objects = append(objects, b.draw(client.Layer{Shape: shape, Dashed: true})...)
	}
	b.mu.RUnlock()
	r.objects = objects
	canvas.Refresh(b)
}

func groupRank(g client.Group) int {
	switch g {
	case client.GroupShapes:
		return 0
	case client.GroupClicks:
		return 1
	case client.GroupProgress:
		return 2
	}
	return 3
}

// draw turns one layer into canvas objects. Callers hold mu.
func (b *Board) draw(l client.Layer) []fyne.CanvasObject {
	s := l.Shape
	stroke := parseColor(s.Style.Color, color.NRGBA{R: 255, G: 102, A: 255})
	stroke = withAlpha(stroke, s.Style.Opacity)
	width := float32(s.Style.Weight)
	if width <= 0 {
		width = 2
	}
	var out []fyne.CanvasObject
	path := func(points []state.LatLng, closed bool) {
		n := len(points)
		if closed {
			n++
		}
		for i := 1; i < n; i++ {
			out = append(out, b.segment(points[i-1], points[i%len(points)], stroke, width, l.Dashed)...)
		}
	}

	switch s.Type {
	case state.Polyline:
		path(s.Points, false)
	case state.Polygon:
		path(s.Points, true)
	case state.Rectangle:
		nw := state.LatLng{Lat: s.NE.Lat, Lng: s.SW.Lng}
		se := state.LatLng{Lat: s.SW.Lat, Lng: s.NE.Lng}
		path([]state.LatLng{s.SW, nw, s.NE, se}, true)
	case state.Circle:
		c := b.project(s.Center)
		rad := float32(s.Radius / 111320 * b.scale())
		if rad < 2 {
			rad = 2
		}
		circle := canvas.NewCircle(color.Transparent)
		if s.Style.Fill {
			circle.FillColor = withAlpha(parseColor(s.Style.FillColor, stroke), s.Style.FillOpacity)
		}
		circle.StrokeColor = stroke
		circle.StrokeWidth = width
		circle.Position1 = fyne.NewPos(c.X-rad, c.Y-rad)
		circle.Position2 = fyne.NewPos(c.X+rad, c.Y+rad)
		out = append(out, circle)
	case state.Marker:
		c := b.project(s.Center)
		pin := canvas.NewCircle(parseColor(s.IconColor, stroke))
		pin.StrokeColor = color.White
		pin.StrokeWidth = 1
		pin.Position1 = fyne.NewPos(c.X-6, c.Y-6)
		pin.Position2 = fyne.NewPos(c.X+6, c.Y+6)
		out = append(out, pin)
	}

	if l.Label != "" {
		anchor := b.project(s.Center)
		text := canvas.NewText(l.Label, stroke)
		text.TextSize = 11
		text.Move(fyne.NewPos(anchor.X+8, anchor.Y-16))
		out = append(out, text)
	}
	return out
}

// segment draws a to b, as alternating dashes if dashed.
func (b *Board) segment(from, to state.LatLng, c color.Color, width float32, dashed bool) []fyne.CanvasObject {
	p1, p2 := b.project(from), b.project(to)
	if !dashed {
		line := canvas.NewLine(c)
		line.StrokeWidth = width
		line.Position1, line.Position2 = p1, p2
		return []fyne.CanvasObject{line}
	}
	const dash = 6
	length := math.Hypot(float64(p2.X-p1.X), float64(p2.Y-p1.Y))
	n := int(length / dash)
	if n < 1 {
		n = 1
	}
	var out []fyne.CanvasObject
	for i := 0; i < n; i += 2 {
		t0, t1 := float32(i)/float32(n), float32(i+1)/float32(n)
		line := canvas.NewLine(c)
		line.StrokeWidth = width
		line.Position1 = fyne.NewPos(p1.X+(p2.X-p1.X)*t0, p1.Y+(p2.Y-p1.Y)*t0)
		line.Position2 = fyne.NewPos(p1.X+(p2.X-p1.X)*t1, p1.Y+(p2.Y-p1.Y)*t1)
		out = append(out, line)
	}
	return out
}

// handles marks the vertices of a shape in edit mode.
func (b *Board) handles(s state.Shape) []fyne.CanvasObject {
	var points []state.LatLng
	switch s.Type {
	case state.Polyline, state.Polygon:
		points = s.Points
	case state.Rectangle:
		points = []state.LatLng{s.SW, s.NE}
	default:
		points = []state.LatLng{s.Center}
	}
	out := make([]fyne.CanvasObject, 0, len(points))
	for _, p := range points {
		pos := b.project(p)
		h := canvas.NewRectangle(color.White)
		h.StrokeColor = color.Black
		h.StrokeWidth = 1
		h.Move(fyne.NewPos(pos.X-4, pos.Y-4))
		h.Resize(fyne.NewSize(8, 8))
		out = append(out, h)
	}
	return out
}
