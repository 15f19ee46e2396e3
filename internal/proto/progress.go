package proto

import (
	"encoding/json"
	"fmt"

	"MapBoard/internal/state"
)

// PreviewColor is the stroke of every in-progress overlay.
const PreviewColor = "#22d3ee"

// ProgressSample is one frame of a shape under construction. Rectangles are
// sent as a [sw, ne] point pair and circles as center plus radius.
type ProgressSample struct {
	ID        string          `json:"id"`
	ShapeType state.ShapeType `json:"shapeType"`
	Points    []state.LatLng  `json:"points"`
	Center    *state.LatLng   `json:"center,omitempty"`
	Radius    float64         `json:"radius,omitempty"`
	End       bool            `json:"end,omitempty"`
}

// EndSample is the terminal sample for a gesture.
func EndSample(id string, t state.ShapeType) ProgressSample {
	return ProgressSample{ID: id, ShapeType: t, Points: []state.LatLng{}, End: true}
}

// Validate applies the relay's acceptance rule: an id, a drawable shape type
// and, unless the gesture ended or is a circle, at least one point.
func (p ProgressSample) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("progress without id: %w", state.ErrValidation)
	}
	switch p.ShapeType {
	case state.Polyline, state.Polygon, state.Rectangle, state.Circle:
	default:
		return fmt.Errorf("progress shape type %q: %w", p.ShapeType, state.ErrValidation)
	}
	if len(p.Points) == 0 && !p.End && p.ShapeType != state.Circle {
		return fmt.Errorf("progress without points: %w", state.ErrValidation)
	}
	return nil
}

// ParseProgress decodes and validates a sample.
func ParseProgress(data json.RawMessage) (ProgressSample, error) {
	var p ProgressSample
	if err := DecodeInto(data, &p); err != nil {
		return ProgressSample{}, err
	}
	if err := p.Validate(); err != nil {
		return ProgressSample{}, err
	}
	return p, nil
}

// Signature identifies the sample's structure so unchanged frames can be
// skipped by the sender.
func (p ProgressSample) Signature() uint64 {
	raw, _ := json.Marshal(p)
	return state.Signature(raw)
}

// Shape converts a non-terminal sample into the overlay it describes, in the
// dashed preview style. It fails if the sample lacks the geometry its type
// needs.
func (p ProgressSample) Shape() (state.Shape, error) {
	style := state.Style{
		Color:       PreviewColor,
		Weight:      2,
		Opacity:     0.85,
		Fill:        p.ShapeType != state.Polyline,
		FillColor:   PreviewColor,
		FillOpacity: 0.12,
	}
	s := state.Shape{Type: p.ShapeType, Style: style}
	switch p.ShapeType {
	case state.Circle:
		if p.Center == nil || !p.Center.Valid() {
			return state.Shape{}, fmt.Errorf("circle progress without center: %w", state.ErrValidation)
		}
		s.Center = *p.Center
		s.Radius = max(p.Radius, 1)
	case state.Rectangle:
		if len(p.Points) < 2 {
			return state.Shape{}, fmt.Errorf("rectangle progress needs two corners: %w", state.ErrValidation)
		}
		var b state.Bounds
		b.Extend(p.Points[0])
		b.Extend(p.Points[1])
		s.SW, s.NE = b.SouthWest(), b.NorthEast()
	default:
		s.Points = append([]state.LatLng(nil), p.Points...)
	}
	return s, nil
}
