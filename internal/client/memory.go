package client

import (
	"fmt"
	"sort"

	"MapBoard/internal/state"
)

type layerKey struct {
	g  Group
	id string
}

// MemorySurface keeps layers in maps. It backs headless clients and tests.
type MemorySurface struct {
	ready   bool
	layers  map[layerKey]Layer
	editing map[string]bool
	view    *state.ViewState

	// Ops counts surface mutations by kind ("create", "update", "remove").
	Ops map[string]int
}

func NewMemorySurface(ready bool) *MemorySurface {
	return &MemorySurface{
		ready:   ready,
		layers:  make(map[layerKey]Layer),
		editing: make(map[string]bool),
		Ops:     make(map[string]int),
	}
}

func (m *MemorySurface) SetReady(ready bool) { m.ready = ready }

func (m *MemorySurface) Ready() bool { return m.ready }

func (m *MemorySurface) CreateLayer(g Group, id string, l Layer) error {
	k := layerKey{g, id}
	if _, exists := m.layers[k]; exists {
		return fmt.Errorf("layer %s/%s exists", g, id)
	}
	m.layers[k] = l
	m.Ops["create"]++
	return nil
}

func (m *MemorySurface) UpdateLayer(g Group, id string, l Layer) error {
	k := layerKey{g, id}
	if _, exists := m.layers[k]; !exists {
		return fmt.Errorf("layer %s/%s: %w", g, id, state.ErrNotFound)
	}
	m.layers[k] = l
	m.Ops["update"]++
	return nil
}

func (m *MemorySurface) RemoveLayer(g Group, id string) {
	k := layerKey{g, id}
	if _, exists := m.layers[k]; !exists {
		return
	}
	delete(m.layers, k)
	delete(m.editing, id)
	m.Ops["remove"]++
}

func (m *MemorySurface) SetEditing(id string, editing bool) {
	if editing {
		m.editing[id] = true
	} else {
		delete(m.editing, id)
	}
}

func (m *MemorySurface) View() (state.ViewState, bool) {
	if m.view == nil {
		return state.ViewState{}, false
	}
	return *m.view, true
}

func (m *MemorySurface) SetView(v state.ViewState) { m.view = &v }

// Layer returns the layer drawn under (g, id).
func (m *MemorySurface) Layer(g Group, id string) (Layer, bool) {
	l, ok := m.layers[layerKey{g, id}]
	return l, ok
}

// IDs lists the layer ids of a group in sorted order.
func (m *MemorySurface) IDs(g Group) []string {
	var ids []string
	for k := range m.layers {
		if k.g == g {
			ids = append(ids, k.id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *MemorySurface) Editing(id string) bool { return m.editing[id] }
