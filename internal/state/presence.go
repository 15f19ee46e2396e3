package state

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxToolLen = 24
	maxNameLen = 32
)

var hexColor = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// PresenceDelta is a partial presence update. Only the fields that were
// present on the wire are set; Tool may be explicitly cleared, so it carries
// its own presence flag.
type PresenceDelta struct {
	ID      string
	HasTool bool
	Tool    *string
	Cursor  *LatLng
	View    *ViewState
	Color   string
}

func (d PresenceDelta) Empty() bool {
	return !d.HasTool && d.Cursor == nil && d.View == nil && d.Color == ""
}

// UnmarshalJSON decodes a delta and drops every field that does not validate,
// so callers only ever see canonical values.
func (d *PresenceDelta) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return fmt.Errorf("presence delta: %w", ErrValidation)
	}
	*d = PresenceDelta{}
	if raw, ok := fields["id"]; ok {
		_ = json.Unmarshal(raw, &d.ID)
	}
	if raw, ok := fields["tool"]; ok {
		d.HasTool = true
		var tool string
		if err := json.Unmarshal(raw, &tool); err == nil && string(raw) != "null" {
			tool = truncate(tool, maxToolLen)
			d.Tool = &tool
		}
	}
	if raw, ok := fields["cursor"]; ok {
		var p LatLng
		if err := json.Unmarshal(raw, &p); err == nil && hasKeys(raw, "lat", "lng") && p.Valid() {
			d.Cursor = &p
		}
	}
	if raw, ok := fields["view"]; ok {
		if v, err := ParseView(raw); err == nil {
			d.View = &v
		}
	}
	if raw, ok := fields["color"]; ok {
		var c string
		if err := json.Unmarshal(raw, &c); err == nil {
			d.Color = NormalizeColor(c)
		}
	}
	return nil
}

func (d PresenceDelta) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if d.ID != "" {
		out["id"] = d.ID
	}
	if d.HasTool {
		out["tool"] = d.Tool
	}
	if d.Cursor != nil {
		out["cursor"] = d.Cursor
	}
	if d.View != nil {
		out["view"] = d.View
	}
	if d.Color != "" {
		out["color"] = d.Color
	}
	return json.Marshal(out)
}

// Apply merges the delta into p, leaving absent fields untouched.
func (d PresenceDelta) Apply(p *Presence) {
	if d.HasTool {
		p.Tool = d.Tool
	}
	if d.Cursor != nil {
		c := *d.Cursor
		p.Cursor = &c
	}
	if d.View != nil {
		v := *d.View
		p.View = &v
	}
	if d.Color != "" {
		c := d.Color
		p.Color = &c
	}
}

// NormalizeColor returns a lowercase #rrggbb color, or "" if s is not a
// six-digit hex color.
func NormalizeColor(s string) string {
	s = strings.TrimSpace(s)
	if !hexColor.MatchString(s) {
		return ""
	}
	if s[0] != '#' {
		s = "#" + s
	}
	return strings.ToLower(s)
}

// NormalizeName trims a display name and caps its length. An empty result
// means "no name".
func NormalizeName(s string) string {
	return truncate(strings.TrimSpace(s), maxNameLen)
}

// ParseView decodes and validates a view payload.
func ParseView(raw []byte) (ViewState, error) {
	var v ViewState
	if err := json.Unmarshal(raw, &v); err != nil {
		return ViewState{}, fmt.Errorf("view: %w", ErrValidation)
	}
	var shape struct {
		Center json.RawMessage `json:"center"`
		Zoom   json.RawMessage `json:"zoom"`
	}
	_ = json.Unmarshal(raw, &shape)
	if len(shape.Center) == 0 || len(shape.Zoom) == 0 || !hasKeys(shape.Center, "lat", "lng") || !v.Valid() {
		return ViewState{}, fmt.Errorf("view: %w", ErrValidation)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func hasKeys(raw []byte, keys ...string) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok || string(v) == "null" {
			return false
		}
	}
	return true
}
