package client

import (
	"fmt"

	"github.com/golang/glog"

	"MapBoard/internal/proto"
	"MapBoard/internal/state"
)

// Create registers a locally drawn shape, broadcasts it and records it for
// undo. It also ends the construction gesture, if any. Drawing the same
// shape twice in a row is reported as ErrDuplicate and has no effect.
func (c *Client) Create(shape state.Shape) (string, error) {
	defer c.gesture.Stop()
	raw, err := shape.MarshalFeature()
	if err != nil {
		return "", err
	}
	sig := state.Signature(raw)
	if c.lastCreateSig != 0 && sig == c.lastCreateSig {
		return "", ErrDuplicate
	}
	id := state.NewShapeID()
	if err := c.register(id, raw); err != nil {
		return "", err
	}
	c.lastCreateSig = sig
	c.history.Record(Op{Kind: OpCreate, Entries: []Entry{{ID: id, Feature: raw}}})
	c.emit(proto.EventDrawCreate, state.Drawing{ID: id, GeoJSON: raw})
	return id, nil
}

// Delete removes the given local shapes, records one undoable operation and
// broadcasts the ids that were present. Unknown ids are ignored.
func (c *Client) Delete(ids ...string) []string {
	var entries []Entry
	var removed []string
	for _, id := range ids {
		if c.editing == id {
			c.StopEdit()
		}
		e, ok := c.shapes[id]
		if !ok {
			continue
		}
		entries = append(entries, Entry{ID: id, Feature: e.feature})
		removed = append(removed, id)
		c.removeShape(id)
	}
	if len(removed) == 0 {
		return nil
	}
	c.history.Record(Op{Kind: OpDelete, Entries: entries})
	c.emit(proto.EventDrawDelete, removed)
	return removed
}

// StartEdit puts a shape into edit mode, leaving any other one first.
func (c *Client) StartEdit(id string) error {
	if _, ok := c.shapes[id]; !ok {
		return fmt.Errorf("edit %s: %w", id, state.ErrNotFound)
	}
	if c.editing == id {
		return nil
	}
	c.StopEdit()
	c.editing = id
	c.surface.SetEditing(id, true)
	return nil
}

// Reshape replaces the local geometry of a shape, as while dragging its
// handles. The change is broadcast once the shape has been still for the
// quiet period, or when editing stops.
func (c *Client) Reshape(id string, shape state.Shape) error {
	e, ok := c.shapes[id]
	if !ok {
		return fmt.Errorf("reshape %s: %w", id, state.ErrNotFound)
	}
	raw, err := shape.MarshalFeature()
	if err != nil {
		return err
	}
	if err := c.surface.UpdateLayer(GroupShapes, id, Layer{Shape: shape}); err != nil {
		return err
	}
	e.shape, e.feature, e.sig = shape, raw, state.Signature(raw)
	c.edits.Touch(id)
	return nil
}

// StopEdit leaves edit mode and sends any change still waiting.
func (c *Client) StopEdit() {
	id := c.editing
	if id == "" {
		return
	}
	c.edits.Flush(id)
	c.surface.SetEditing(id, false)
	c.editing = ""
}

// Undo reverts the latest local create or delete and broadcasts the
// compensating operation. It reports false when there is nothing to undo.
func (c *Client) Undo() bool {
	op, ok := c.history.Undo()
	if !ok {
		return false
	}
	glog.V(2).Infof("[client] undo %s of %d shapes\n", op.Kind, len(op.Entries))
	switch op.Kind {
	case OpCreate:
		ids := make([]string, 0, len(op.Entries))
		for _, e := range op.Entries {
			if c.editing == e.ID {
				c.StopEdit()
			}
			if _, exists := c.shapes[e.ID]; exists {
				c.removeShape(e.ID)
			}
			ids = append(ids, e.ID)
		}
		c.emit(proto.EventDrawDelete, ids)
	case OpDelete:
		c.restore(op.Entries)
	}
	return true
}

// Redo reapplies the latest undone operation.
func (c *Client) Redo() bool {
	op, ok := c.history.Redo()
	if !ok {
		return false
	}
	glog.V(2).Infof("[client] redo %s of %d shapes\n", op.Kind, len(op.Entries))
	switch op.Kind {
	case OpCreate:
		c.restore(op.Entries)
	case OpDelete:
		var ids []string
		for _, e := range op.Entries {
			if _, exists := c.shapes[e.ID]; !exists {
				continue
			}
			if c.editing == e.ID {
				c.StopEdit()
			}
			c.removeShape(e.ID)
			ids = append(ids, e.ID)
		}
		if len(ids) > 0 {
			c.emit(proto.EventDrawDelete, ids)
		}
	}
	return true
}

// restore recreates entries under their original ids and broadcasts them.
func (c *Client) restore(entries []Entry) {
	for _, e := range entries {
		if _, exists := c.shapes[e.ID]; exists {
			c.removeShape(e.ID)
		}
		if err := c.register(e.ID, e.Feature); err != nil {
			glog.Warningf("[client] restore %s: %s\n", e.ID, err)
			continue
		}
		c.emit(proto.EventDrawCreate, state.Drawing{ID: e.ID, GeoJSON: e.Feature})
	}
}

// StartGesture begins streaming previews of a shape under construction.
func (c *Client) StartGesture(t state.ShapeType, sampler Sampler) string {
	return c.gesture.Start(t, sampler)
}

// CancelGesture abandons the construction in progress.
func (c *Client) CancelGesture() { c.gesture.Stop() }

func (c *Client) Drawing() bool { return c.gesture.Active() }

// RecordClick marks a point for everyone.
func (c *Client) RecordClick(p state.LatLng) error {
	if !p.Valid() {
		return fmt.Errorf("click: %w", state.ErrValidation)
	}
	click := state.ClickEvent{Lat: p.Lat, Lng: p.Lng}
	if col := c.presence.Local().Color; col != nil {
		click.Color = *col
	}
	c.addClick(click)
	c.emit(proto.EventPointClicked, click)
	return nil
}

// SetContext switches workspace. Local state is cleared right away when the
// context actually changes. Asking for the current context makes the relay
// answer with a fresh snapshot.
func (c *Client) SetContext(ctx string) {
	if ctx != c.context {
		c.resetContext(ctx)
	}
	c.emit(proto.EventMapChanged, ctx)
}
