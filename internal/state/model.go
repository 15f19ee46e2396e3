package state

import (
	"bytes"
	"encoding/json"
	"math"
)

// LatLng is a geographic point.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) Valid() bool {
	return finite(p.Lat) && finite(p.Lng)
}

// ClickEvent is one entry of the shared click history.
type ClickEvent struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Color string  `json:"color,omitempty"`
}

func (c ClickEvent) Point() LatLng { return LatLng{Lat: c.Lat, Lng: c.Lng} }

// ViewState is a map viewport.
type ViewState struct {
	Center LatLng  `json:"center"`
	Zoom   float64 `json:"zoom"`
}

func (v ViewState) Valid() bool {
	return v.Center.Valid() && finite(v.Zoom)
}

// Drawing is a shape as the relay sees it: an id and an opaque feature.
// The relay never interprets the feature beyond checking that it is present.
type Drawing struct {
	ID      string          `json:"id"`
	GeoJSON json.RawMessage `json:"geojson"`
}

// Valid reports whether d has an id and a feature object. The feature is
// otherwise opaque.
func (d Drawing) Valid() bool {
	f := bytes.TrimSpace(d.GeoJSON)
	return d.ID != "" && len(f) > 0 && f[0] == '{'
}

// Presence is the per-session record of a connected participant.
// Nil fields are unknown and serialize as null.
type Presence struct {
	ID     string     `json:"id"`
	Name   *string    `json:"name"`
	Tool   *string    `json:"tool"`
	Cursor *LatLng    `json:"cursor"`
	View   *ViewState `json:"view"`
	Color  *string    `json:"color"`
}

// Snapshot is the full state sent to a participant on join.
type Snapshot struct {
	Context  string       `json:"context"`
	Clicks   []ClickEvent `json:"clicks"`
	Drawings []Drawing    `json:"drawings"`
	View     *ViewState   `json:"view"`
	Users    []Presence   `json:"users"`
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
