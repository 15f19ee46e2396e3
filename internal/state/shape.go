package state

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
)

// ShapeType enumerates the kinds of annotation a participant can draw.
type ShapeType string

const (
	Polygon   ShapeType = "polygon"
	Polyline  ShapeType = "polyline"
	Rectangle ShapeType = "rectangle"
	Circle    ShapeType = "circle"
	Marker    ShapeType = "marker"
)

func (t ShapeType) Valid() bool {
	switch t {
	case Polygon, Polyline, Rectangle, Circle, Marker:
		return true
	}
	return false
}

const (
	defaultColor       = "#ff6600"
	defaultWeight      = 2
	defaultOpacity     = 1
	defaultFillOpacity = 0.2
)

type Style struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	Fill        bool    `json:"fill"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

func DefaultStyle() Style {
	return Style{
		Color:       defaultColor,
		Weight:      defaultWeight,
		Opacity:     defaultOpacity,
		FillColor:   defaultColor,
		FillOpacity: defaultFillOpacity,
	}
}

// Shape is the decoded form of a drawing's feature. Which geometry fields
// are meaningful depends on Type:
//
//	Polygon, Polyline  Points (polygon rings are kept open)
//	Rectangle          SW, NE
//	Circle             Center, Radius (meters)
//	Marker             Center, Icon, IconColor
type Shape struct {
	Type      ShapeType
	Points    []LatLng
	SW, NE    LatLng
	Center    LatLng
	Radius    float64
	Style     Style
	Icon      string
	IconColor string
}

type geometryJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type styleJSON struct {
	Color       string   `json:"color,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
	Fill        *bool    `json:"fill,omitempty"`
	FillColor   string   `json:"fillColor,omitempty"`
	FillOpacity *float64 `json:"fillOpacity,omitempty"`
}

type propertiesJSON struct {
	ShapeType ShapeType  `json:"shapeType,omitempty"`
	Style     *styleJSON `json:"style,omitempty"`
	Color     string     `json:"color,omitempty"`
	FillColor string     `json:"fillColor,omitempty"`
	Radius    float64    `json:"radius,omitempty"`
	Icon      string     `json:"icon,omitempty"`
	IconColor string     `json:"iconColor,omitempty"`
}

type featureJSON struct {
	Type       string          `json:"type"`
	Geometry   *geometryJSON   `json:"geometry"`
	Properties *propertiesJSON `json:"properties"`
}

type position [2]float64 // [lng, lat]

func toPosition(p LatLng) position { return position{p.Lng, p.Lat} }
func (p position) latLng() LatLng  { return LatLng{Lat: p[1], Lng: p[0]} }

// MarshalFeature encodes the shape as a GeoJSON feature.
func (s Shape) MarshalFeature() (json.RawMessage, error) {
	var coords any
	var geomType string
	switch s.Type {
	case Polygon:
		ring := make([]position, 0, len(s.Points)+1)
		for _, p := range s.Points {
			ring = append(ring, toPosition(p))
		}
		if n := len(ring); n > 0 && ring[0] != ring[n-1] {
			ring = append(ring, ring[0])
		}
		geomType, coords = "Polygon", [][]position{ring}
	case Rectangle:
		nw := LatLng{Lat: s.NE.Lat, Lng: s.SW.Lng}
		se := LatLng{Lat: s.SW.Lat, Lng: s.NE.Lng}
		ring := []position{toPosition(nw), toPosition(s.NE), toPosition(se), toPosition(s.SW), toPosition(nw)}
		geomType, coords = "Polygon", [][]position{ring}
	case Polyline:
		line := make([]position, 0, len(s.Points))
		for _, p := range s.Points {
			line = append(line, toPosition(p))
		}
		geomType, coords = "LineString", line
	case Circle, Marker:
		geomType, coords = "Point", toPosition(s.Center)
	default:
		return nil, fmt.Errorf("shape type %q: %w", s.Type, ErrValidation)
	}
	rawCoords, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}

	st := s.Style
	if st.Color == "" {
		st.Color = defaultColor
	}
	if st.FillColor == "" {
		st.FillColor = st.Color
	}
	props := &propertiesJSON{
		ShapeType: s.Type,
		Style: &styleJSON{
			Color:       st.Color,
			Weight:      &st.Weight,
			Opacity:     &st.Opacity,
			Fill:        &st.Fill,
			FillColor:   st.FillColor,
			FillOpacity: &st.FillOpacity,
		},
		Color:     st.Color,
		FillColor: st.FillColor,
	}
	switch s.Type {
	case Circle:
		props.Radius = s.Radius
	case Marker:
		props.Icon = s.Icon
		props.IconColor = s.IconColor
	}
	return json.Marshal(featureJSON{
		Type:       "Feature",
		Geometry:   &geometryJSON{Type: geomType, Coordinates: rawCoords},
		Properties: props,
	})
}

// ParseFeature decodes a GeoJSON feature produced by MarshalFeature or by
// any peer speaking the same dialect.
func ParseFeature(raw json.RawMessage) (Shape, error) {
	var f featureJSON
	if err := json.Unmarshal(raw, &f); err != nil {
		return Shape{}, fmt.Errorf("feature: %w", ErrValidation)
	}
	if f.Geometry == nil || f.Properties == nil {
		return Shape{}, fmt.Errorf("feature without geometry or properties: %w", ErrValidation)
	}
	props := f.Properties
	t := props.ShapeType
	if t == "" {
		switch f.Geometry.Type {
		case "LineString":
			t = Polyline
		case "Polygon":
			t = Polygon
		default:
			t = Marker
		}
	}
	s := Shape{Type: t, Style: props.style()}

	switch t {
	case Polygon, Rectangle:
		if f.Geometry.Type != "Polygon" {
			return Shape{}, fmt.Errorf("%s with %s geometry: %w", t, f.Geometry.Type, ErrValidation)
		}
		var rings [][]position
		if err := json.Unmarshal(f.Geometry.Coordinates, &rings); err != nil || len(rings) == 0 || len(rings[0]) == 0 {
			return Shape{}, fmt.Errorf("%s coordinates: %w", t, ErrValidation)
		}
		ring := rings[0]
		if t == Rectangle {
			var b Bounds
			for _, p := range ring {
				b.Extend(p.latLng())
			}
			s.SW, s.NE = b.SouthWest(), b.NorthEast()
			break
		}
		if n := len(ring); n > 1 && ring[0] == ring[n-1] {
			ring = ring[:n-1]
		}
		s.Points = make([]LatLng, 0, len(ring))
		for _, p := range ring {
			s.Points = append(s.Points, p.latLng())
		}
	case Polyline:
		if f.Geometry.Type != "LineString" {
			return Shape{}, fmt.Errorf("polyline with %s geometry: %w", f.Geometry.Type, ErrValidation)
		}
		var line []position
		if err := json.Unmarshal(f.Geometry.Coordinates, &line); err != nil {
			return Shape{}, fmt.Errorf("polyline coordinates: %w", ErrValidation)
		}
		s.Points = make([]LatLng, 0, len(line))
		for _, p := range line {
			s.Points = append(s.Points, p.latLng())
		}
	case Circle, Marker:
		if f.Geometry.Type != "Point" {
			return Shape{}, fmt.Errorf("%s with %s geometry: %w", t, f.Geometry.Type, ErrValidation)
		}
		var p position
		if err := json.Unmarshal(f.Geometry.Coordinates, &p); err != nil {
			return Shape{}, fmt.Errorf("%s coordinates: %w", t, ErrValidation)
		}
		s.Center = p.latLng()
		if t == Circle {
			s.Radius = props.Radius
			if !(s.Radius > 0) {
				s.Radius = 1
			}
		} else {
			s.Icon = props.Icon
			s.IconColor = props.IconColor
		}
	default:
		return Shape{}, fmt.Errorf("shape type %q: %w", t, ErrValidation)
	}
	if !s.finite() {
		return Shape{}, fmt.Errorf("%s has non-finite coordinates: %w", t, ErrValidation)
	}
	return s, nil
}

func (p *propertiesJSON) style() Style {
	st := DefaultStyle()
	base := p.Color
	fillBase := p.FillColor
	if p.Style != nil {
		if p.Style.Color != "" {
			base = p.Style.Color
		}
		if p.Style.FillColor != "" {
			fillBase = p.Style.FillColor
		}
		if p.Style.Weight != nil {
			st.Weight = *p.Style.Weight
		}
		if p.Style.Opacity != nil {
			st.Opacity = *p.Style.Opacity
		}
		if p.Style.Fill != nil {
			st.Fill = *p.Style.Fill
		}
		if p.Style.FillOpacity != nil {
			st.FillOpacity = *p.Style.FillOpacity
		}
	}
	if c := NormalizeColor(base); c != "" {
		st.Color = c
	}
	st.FillColor = st.Color
	if c := NormalizeColor(fillBase); c != "" {
		st.FillColor = c
	}
	return st
}

func (s Shape) finite() bool {
	for _, p := range s.Points {
		if !p.Valid() {
			return false
		}
	}
	return s.SW.Valid() && s.NE.Valid() && s.Center.Valid() && finite(s.Radius)
}

// Signature hashes an encoded feature. Two features with the same signature
// are treated as the same content.
func Signature(raw []byte) uint64 {
	h := fnv.New64a()
	h.Write(raw)
	return h.Sum64()
}

const metersPerDegree = 111320.0

// Bounds returns the shape's bounding box. Circle radii are converted to
// degrees with an equirectangular approximation.
func (s Shape) Bounds() Bounds {
	var b Bounds
	switch s.Type {
	case Polygon, Polyline:
		for _, p := range s.Points {
			b.Extend(p)
		}
	case Rectangle:
		b.Extend(s.SW)
		b.Extend(s.NE)
	case Circle:
		dLat := s.Radius / metersPerDegree
		dLng := dLat
		if c := math.Cos(s.Center.Lat * math.Pi / 180); c > 1e-6 {
			dLng = dLat / c
		}
		b.Extend(LatLng{Lat: s.Center.Lat - dLat, Lng: s.Center.Lng - dLng})
		b.Extend(LatLng{Lat: s.Center.Lat + dLat, Lng: s.Center.Lng + dLng})
	case Marker:
		b.Extend(s.Center)
	}
	return b
}
