package state

import (
	"encoding/json"
	"fmt"

	"github.com/golang/glog"
)

// MaxClickHistory is the default cap of the click history.
const MaxClickHistory = 500

// Store is the authoritative shared state of one relay.
//
// Store is not safe for concurrent use. The relay hub is its only caller and
// runs every operation to completion before starting the next one.
type Store struct {
	context   string
	clicks    []ClickEvent
	maxClicks int

	drawings map[string]json.RawMessage
	order    []string

	view *ViewState

	users     map[string]*Presence
	userOrder []string
}

// NewStore creates an empty store. A non-positive maxClicks selects
// MaxClickHistory.
func NewStore(maxClicks int) *Store {
	if maxClicks <= 0 {
		maxClicks = MaxClickHistory
	}
	return &Store{
		maxClicks: maxClicks,
		drawings:  make(map[string]json.RawMessage),
		users:     make(map[string]*Presence),
	}
}

func (s *Store) Context() string { return s.context }

func (s *Store) DrawingCount() int { return len(s.drawings) }

func (s *Store) Drawing(id string) (json.RawMessage, bool) {
	g, ok := s.drawings[id]
	return g, ok
}

// Snapshot returns a copy of the full state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Context:  s.context,
		Clicks:   make([]ClickEvent, len(s.clicks)),
		Drawings: make([]Drawing, 0, len(s.order)),
		Users:    make([]Presence, 0, len(s.userOrder)),
	}
	copy(snap.Clicks, s.clicks)
	for _, id := range s.order {
		snap.Drawings = append(snap.Drawings, Drawing{ID: id, GeoJSON: s.drawings[id]})
	}
	if s.view != nil {
		v := *s.view
		snap.View = &v
	}
	for _, id := range s.userOrder {
		snap.Users = append(snap.Users, *s.users[id])
	}
	return snap
}

// RecordClick appends a click and trims the history to its cap.
func (s *Store) RecordClick(c ClickEvent) error {
	if !c.Point().Valid() {
		return fmt.Errorf("click: %w", ErrValidation)
	}
	s.clicks = append(s.clicks, c)
	if over := len(s.clicks) - s.maxClicks; over > 0 {
		s.clicks = append(s.clicks[:0:0], s.clicks[over:]...)
	}
	return nil
}

// SetContext switches the workspace. It reports false, and changes nothing,
// if ctx is already the current context. Otherwise shapes and click history
// are cleared.
func (s *Store) SetContext(ctx string) bool {
	if ctx == s.context {
		return false
	}
	glog.V(2).Infof("[store] context %q -> %q, dropping %d drawings and %d clicks\n", s.context, ctx, len(s.drawings), len(s.clicks))
	s.context = ctx
	s.clicks = nil
	s.drawings = make(map[string]json.RawMessage)
	s.order = nil
	return true
}

// CreateDrawing upserts a drawing.
func (s *Store) CreateDrawing(d Drawing) error {
	if !d.Valid() {
		return fmt.Errorf("create: %w", ErrValidation)
	}
	if _, exists := s.drawings[d.ID]; !exists {
		s.order = append(s.order, d.ID)
	}
	s.drawings[d.ID] = d.GeoJSON
	return nil
}

// EditDrawings replaces every drawing in ds that currently exists and
// returns the accepted entries. Unknown or malformed entries are skipped.
func (s *Store) EditDrawings(ds []Drawing) []Drawing {
	accepted := make([]Drawing, 0, len(ds))
	for _, d := range ds {
		if !d.Valid() {
			continue
		}
		if _, exists := s.drawings[d.ID]; !exists {
			glog.V(2).Infof("[store] edit of unknown drawing %s ignored\n", d.ID)
			continue
		}
		s.drawings[d.ID] = d.GeoJSON
		accepted = append(accepted, d)
	}
	return accepted
}

// DeleteDrawings removes the given ids and returns how many existed.
func (s *Store) DeleteDrawings(ids []string) int {
	removed := 0
	for _, id := range ids {
		if _, exists := s.drawings[id]; !exists {
			continue
		}
		delete(s.drawings, id)
		s.order = removeString(s.order, id)
		removed++
	}
	return removed
}

func (s *Store) SetView(v ViewState) error {
	if !v.Valid() {
		return fmt.Errorf("view: %w", ErrValidation)
	}
	s.view = &v
	return nil
}

func (s *Store) View() (ViewState, bool) {
	if s.view == nil {
		return ViewState{}, false
	}
	return *s.view, true
}

// Join registers an anonymous presence record for a new session.
func (s *Store) Join(id string) Presence {
	if p, exists := s.users[id]; exists {
		return *p
	}
	p := &Presence{ID: id}
	s.users[id] = p
	s.userOrder = append(s.userOrder, id)
	return *p
}

// Leave removes a session's presence record.
func (s *Store) Leave(id string) bool {
	if _, exists := s.users[id]; !exists {
		return false
	}
	delete(s.users, id)
	s.userOrder = removeString(s.userOrder, id)
	return true
}

func (s *Store) Presence(id string) (Presence, bool) {
	p, ok := s.users[id]
	if !ok {
		return Presence{}, false
	}
	return *p, true
}

func (s *Store) UserCount() int { return len(s.users) }

// SetName stores the canonical form of name and returns the updated record.
func (s *Store) SetName(id string, name string) Presence {
	p := s.user(id)
	if n := NormalizeName(name); n != "" {
		p.Name = &n
	} else {
		p.Name = nil
	}
	return *p
}

// UpdatePresence merges d into the session's record and returns the delta
// to broadcast, tagged with the session id.
func (s *Store) UpdatePresence(id string, d PresenceDelta) PresenceDelta {
	p := s.user(id)
	d.ID = id
	d.Apply(p)
	return d
}

func (s *Store) user(id string) *Presence {
	p, ok := s.users[id]
	if !ok {
		p = &Presence{ID: id}
		s.users[id] = p
		s.userOrder = append(s.userOrder, id)
	}
	return p
}

func removeString(list []string, v string) []string {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
