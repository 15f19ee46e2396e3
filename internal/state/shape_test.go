package state

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nan() float64 { return math.NaN() }

func TestFeatureRoundTripPerShapeType(t *testing.T) {
	style := DefaultStyle()
	style.Color = "#22d3ee"
	style.FillColor = "#22d3ee"
	style.Fill = true

	shapes := map[ShapeType]Shape{
		Polygon:   {Type: Polygon, Points: []LatLng{{0, 0}, {0, 1}, {1, 1}}, Style: style},
		Polyline:  {Type: Polyline, Points: []LatLng{{0, 0}, {2, 3}}, Style: style},
		Rectangle: {Type: Rectangle, SW: LatLng{0, 0}, NE: LatLng{1, 1}, Style: style},
		Circle:    {Type: Circle, Center: LatLng{10, 20}, Radius: 250, Style: style},
		Marker:    {Type: Marker, Center: LatLng{-5, 7}, Icon: "flag", IconColor: "#ff0000", Style: style},
	}
	for typ, s := range shapes {
		t.Run(string(typ), func(t *testing.T) {
			raw, err := s.MarshalFeature()
			require.NoError(t, err)
			got, err := ParseFeature(raw)
			require.NoError(t, err)
			assert.Equal(t, s, got)
		})
	}
}

func TestRectangleEncodesClosedRing(t *testing.T) {
	raw, err := Shape{Type: Rectangle, SW: LatLng{0, 0}, NE: LatLng{1, 2}, Style: DefaultStyle()}.MarshalFeature()
	require.NoError(t, err)
	var f struct {
		Geometry struct {
			Type        string         `json:"type"`
			Coordinates [][][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	}
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, "Polygon", f.Geometry.Type)
	assert.Equal(t, [][2]float64{{0, 1}, {2, 1}, {2, 0}, {0, 0}, {0, 1}}, f.Geometry.Coordinates[0])
}

func TestParseFeatureDefaultsAndInference(t *testing.T) {
	raw := json.RawMessage(`{"type":"Feature","geometry":{"type":"LineString","coordinates":[[1,2],[3,4]]},"properties":{"color":"ABCDEF"}}`)
	s, err := ParseFeature(raw)
	require.NoError(t, err)
	assert.Equal(t, Polyline, s.Type)
	assert.Equal(t, []LatLng{{Lat: 2, Lng: 1}, {Lat: 4, Lng: 3}}, s.Points)
	assert.Equal(t, "#abcdef", s.Style.Color)
	assert.Equal(t, "#abcdef", s.Style.FillColor)
	assert.Equal(t, 2.0, s.Style.Weight)
	assert.Equal(t, 0.2, s.Style.FillOpacity)

	circle, err := ParseFeature(json.RawMessage(`{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"shapeType":"circle"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, circle.Radius)
}

func TestParseFeatureRejectsMalformed(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":        `{`,
		"no geometry":     `{"type":"Feature","properties":{}}`,
		"type mismatch":   `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"shapeType":"polygon"}}`,
		"unknown type":    `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"shapeType":"hexagon"}}`,
		"bad coordinates": `{"type":"Feature","geometry":{"type":"LineString","coordinates":"x"},"properties":{}}`,
		"empty polygon":   `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[]},"properties":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFeature(json.RawMessage(raw))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSignatureTracksContent(t *testing.T) {
	a, _ := Shape{Type: Marker, Center: LatLng{1, 1}, Style: DefaultStyle()}.MarshalFeature()
	b, _ := Shape{Type: Marker, Center: LatLng{1, 1}, Style: DefaultStyle()}.MarshalFeature()
	c, _ := Shape{Type: Marker, Center: LatLng{1, 2}, Style: DefaultStyle()}.MarshalFeature()
	assert.Equal(t, Signature(a), Signature(b))
	assert.NotEqual(t, Signature(a), Signature(c))
}

func TestShapeBounds(t *testing.T) {
	b := Shape{Type: Polyline, Points: []LatLng{{1, 5}, {-2, 3}, {4, 0}}}.Bounds()
	assert.Equal(t, LatLng{Lat: -2, Lng: 0}, b.SouthWest())
	assert.Equal(t, LatLng{Lat: 4, Lng: 5}, b.NorthEast())

	c := Shape{Type: Circle, Center: LatLng{0, 0}, Radius: metersPerDegree}.Bounds()
	assert.InDelta(t, -1, c.MinLat, 1e-9)
	assert.InDelta(t, 1, c.MaxLng, 1e-9)

	var empty Bounds
	assert.True(t, empty.Empty())
	u := empty.Union(b)
	assert.Equal(t, b, u)
	assert.True(t, u.Pad(0.5).Contains(LatLng{Lat: 6, Lng: 7}))
	assert.False(t, u.Contains(LatLng{Lat: 6, Lng: 7}))
}
