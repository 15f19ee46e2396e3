package client

import (
	"MapBoard/internal/state"
)

// Group namespaces layer ids on a surface. Ids in different groups never
// collide.
type Group string

const (
	GroupShapes   Group = "shapes"
	GroupProgress Group = "progress"
	GroupPresence Group = "presence"
	GroupClicks   Group = "clicks"
)

// Layer is what a surface draws under one id.
type Layer struct {
	Shape  state.Shape
	Dashed bool
	Label  string
}

// Surface is the rendering capability the client drives. Calls are made
// from the client's loop only.
type Surface interface {
	// Ready reports whether layers can be drawn yet.
	Ready() bool
	CreateLayer(g Group, id string, l Layer) error
	UpdateLayer(g Group, id string, l Layer) error
	RemoveLayer(g Group, id string)
	// SetEditing toggles the interactive editing affordance of a shape.
	SetEditing(id string, editing bool)
	View() (state.ViewState, bool)
	SetView(v state.ViewState)
}

// Emitter sends one event to the relay.
type Emitter interface {
	Emit(event string, payload any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(event string, payload any) error

func (f EmitterFunc) Emit(event string, payload any) error { return f(event, payload) }
