package client

import (
	"encoding/json"
	"time"

	"MapBoard/internal/loop"
	"MapBoard/internal/state"
)

// editDebouncer coalesces geometry mutations per shape into trailing-edge
// edit emits, skipping any emit whose feature matches the last one sent for
// that id.
type editDebouncer struct {
	sched loop.Scheduler
	quiet time.Duration

	timers  map[string]loop.Task
	lastSig map[string]uint64

	// current returns the feature to emit for id, or false if the shape is
	// gone.
	current func(id string) (json.RawMessage, bool)
	emit    func(id string, feature json.RawMessage)
}

func newEditDebouncer(sched loop.Scheduler, quiet time.Duration, current func(string) (json.RawMessage, bool), emit func(string, json.RawMessage)) *editDebouncer {
	return &editDebouncer{
		sched:   sched,
		quiet:   quiet,
		timers:  make(map[string]loop.Task),
		lastSig: make(map[string]uint64),
		current: current,
		emit:    emit,
	}
}

// Touch (re)starts the quiet window for id.
func (d *editDebouncer) Touch(id string) {
	if t, ok := d.timers[id]; ok {
		t.Cancel()
	}
	d.timers[id] = d.sched.AfterFunc(d.quiet, func() {
		delete(d.timers, id)
		d.send(id)
	})
}

// Flush emits any pending change for id now.
func (d *editDebouncer) Flush(id string) {
	t, ok := d.timers[id]
	if !ok {
		return
	}
	t.Cancel()
	delete(d.timers, id)
	d.send(id)
}

// Discard drops a pending change without emitting it.
func (d *editDebouncer) Discard(id string) {
	if t, ok := d.timers[id]; ok {
		t.Cancel()
		delete(d.timers, id)
	}
}

// Seen records raw as the last known feature of id, so an identical local
// state is not re-emitted.
func (d *editDebouncer) Seen(id string, raw json.RawMessage) {
	d.lastSig[id] = state.Signature(raw)
}

// Forget drops everything known about id.
func (d *editDebouncer) Forget(id string) {
	d.Discard(id)
	delete(d.lastSig, id)
}

func (d *editDebouncer) Reset() {
	for id := range d.timers {
		d.Discard(id)
	}
	d.lastSig = make(map[string]uint64)
}

func (d *editDebouncer) Pending(id string) bool {
	_, ok := d.timers[id]
	return ok
}

func (d *editDebouncer) send(id string) {
	raw, ok := d.current(id)
	if !ok {
		return
	}
	sig := state.Signature(raw)
	if last, seen := d.lastSig[id]; seen && last == sig {
		return
	}
	d.lastSig[id] = sig
	d.emit(id, raw)
}
