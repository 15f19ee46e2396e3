package client

import (
	"time"

	"github.com/golang/glog"

	"MapBoard/internal/loop"
	"MapBoard/internal/proto"
	"MapBoard/internal/state"
)

// Sampler reports the geometry of the gesture in progress, or false while
// there is nothing to show yet.
type Sampler func() (state.Shape, bool)

// progressSender samples an active construction gesture at a fixed cadence
// and emits a preview frame whenever its structure changes.
type progressSender struct {
	sched    loop.Scheduler
	interval time.Duration
	emit     func(proto.ProgressSample)

	id      string
	typ     state.ShapeType
	sampler Sampler
	task    loop.Task
	lastSig uint64
}

func (s *progressSender) Active() bool { return s.id != "" }

// Start begins a new gesture, ending any previous one first.
func (s *progressSender) Start(t state.ShapeType, sampler Sampler) string {
	s.Stop()
	s.id = state.NewShapeID()
	s.typ = t
	s.sampler = sampler
	s.lastSig = 0
	s.task = s.sched.Every(s.interval, s.tick)
	return s.id
}

// Stop ends the gesture and sends its terminal sample.
func (s *progressSender) Stop() {
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
	if s.id == "" {
		return
	}
	s.emit(proto.EndSample(s.id, s.typ))
	s.id = ""
	s.sampler = nil
}

func (s *progressSender) tick() {
	shape, ok := s.sampler()
	if !ok {
		return
	}
	// A polyline gesture may close into a polygon before it is committed.
	if shape.Type != s.typ && !(s.typ == state.Polyline && shape.Type == state.Polygon) {
		return
	}
	sample := proto.ProgressSample{ID: s.id, ShapeType: shape.Type, Points: []state.LatLng{}}
	switch shape.Type {
	case state.Circle:
		c := shape.Center
		sample.Center = &c
		sample.Radius = shape.Radius
	case state.Rectangle:
		sample.Points = []state.LatLng{shape.SW, shape.NE}
	default:
		sample.Points = append(sample.Points, shape.Points...)
	}
	if sig := sample.Signature(); sig != s.lastSig {
		s.lastSig = sig
		s.emit(sample)
	}
}

// progressReceiver renders peers' previews and expires the ones that stop
// updating.
type progressReceiver struct {
	sched   loop.Scheduler
	surface Surface
	ttl     time.Duration
	every   time.Duration

	lastSeen map[string]time.Time
	sweep    loop.Task
}

func (r *progressReceiver) Apply(p proto.ProgressSample) {
	if p.End {
		r.remove(p.ID)
		return
	}
	shape, err := p.Shape()
	if err != nil {
		glog.V(2).Infof("[client] drop progress %s: %s\n", p.ID, err)
		return
	}
	l := Layer{Shape: shape, Dashed: true}
	if _, exists := r.lastSeen[p.ID]; exists {
		err = r.surface.UpdateLayer(GroupProgress, p.ID, l)
	} else {
		err = r.surface.CreateLayer(GroupProgress, p.ID, l)
	}
	if err != nil {
		glog.Warningf("[client] progress %s: %s\n", p.ID, err)
		return
	}
	r.lastSeen[p.ID] = r.sched.Now()
	if r.sweep == nil {
		r.sweep = r.sched.Every(r.every, r.expire)
	}
}

func (r *progressReceiver) Len() int { return len(r.lastSeen) }

// Clear removes every preview.
func (r *progressReceiver) Clear() {
	for id := range r.lastSeen {
		r.remove(id)
	}
}

func (r *progressReceiver) remove(id string) {
	if _, ok := r.lastSeen[id]; !ok {
		return
	}
	r.surface.RemoveLayer(GroupProgress, id)
	delete(r.lastSeen, id)
	r.stopIfIdle()
}

func (r *progressReceiver) expire() {
	now := r.sched.Now()
	for id, seen := range r.lastSeen {
		if now.Sub(seen) > r.ttl {
			glog.V(2).Infof("[client] progress %s expired\n", id)
			r.remove(id)
		}
	}
	r.stopIfIdle()
}

func (r *progressReceiver) stopIfIdle() {
	if len(r.lastSeen) == 0 && r.sweep != nil {
		r.sweep.Cancel()
		r.sweep = nil
	}
}
