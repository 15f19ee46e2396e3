package proto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MapBoard/internal/state"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	frame, err := Encode(EventDrawDelete, []string{"a", "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"draw delete","data":["a","b"]}`, string(frame))

	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, EventDrawDelete, env.Event)
	var ids []string
	require.NoError(t, DecodeInto(env.Data, &ids))
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`nope`, `{}`, `{"data":1}`, `[]`} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, state.ErrValidation, raw)
	}
	var v []string
	assert.ErrorIs(t, DecodeInto(nil, &v), state.ErrValidation)
	assert.ErrorIs(t, DecodeInto(json.RawMessage(`{"a":1}`), &v), state.ErrValidation)
}

func TestProgressValidation(t *testing.T) {
	valid := []string{
		`{"id":"p","shapeType":"polyline","points":[{"lat":1,"lng":2}]}`,
		`{"id":"p","shapeType":"polygon","points":[],"end":true}`,
		`{"id":"p","shapeType":"circle","center":{"lat":1,"lng":2},"radius":30}`,
	}
	for _, raw := range valid {
		_, err := ParseProgress(json.RawMessage(raw))
		assert.NoError(t, err, raw)
	}
	invalid := []string{
		`{"shapeType":"polyline","points":[{"lat":1,"lng":2}]}`,
		`{"id":"p","shapeType":"marker","points":[{"lat":1,"lng":2}]}`,
		`{"id":"p","shapeType":"polygon","points":[]}`,
		`"p"`,
	}
	for _, raw := range invalid {
		_, err := ParseProgress(json.RawMessage(raw))
		assert.ErrorIs(t, err, state.ErrValidation, raw)
	}
}

func TestProgressShape(t *testing.T) {
	rect := ProgressSample{ID: "p", ShapeType: state.Rectangle, Points: []state.LatLng{{Lat: 2, Lng: 2}, {Lat: 0, Lng: 1}}}
	s, err := rect.Shape()
	require.NoError(t, err)
	assert.Equal(t, state.LatLng{Lat: 0, Lng: 1}, s.SW)
	assert.Equal(t, state.LatLng{Lat: 2, Lng: 2}, s.NE)
	assert.Equal(t, PreviewColor, s.Style.Color)

	circle := ProgressSample{ID: "p", ShapeType: state.Circle, Center: &state.LatLng{Lat: 1, Lng: 1}}
	s, err = circle.Shape()
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Radius)

	_, err = ProgressSample{ID: "p", ShapeType: state.Rectangle, Points: []state.LatLng{{}}}.Shape()
	assert.ErrorIs(t, err, state.ErrValidation)

	line := ProgressSample{ID: "p", ShapeType: state.Polyline, Points: []state.LatLng{{Lat: 1, Lng: 1}}}
	moved := ProgressSample{ID: "p", ShapeType: state.Polyline, Points: []state.LatLng{{Lat: 1, Lng: 2}}}
	assert.Equal(t, line.Signature(), line.Signature())
	assert.NotEqual(t, line.Signature(), moved.Signature())
}

func TestEndSampleEncoding(t *testing.T) {
	raw, err := json.Marshal(EndSample("p", state.Polygon))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p","shapeType":"polygon","points":[],"end":true}`, string(raw))
}
