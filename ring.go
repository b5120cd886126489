// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"fmt"
	"log/slog"
)

// ParamsSource supplies the parameter snapshot for each new run.
type ParamsSource interface {
	Params() Params
}

// ParamsFunc adapts a function to ParamsSource.
type ParamsFunc func() Params

// Params calls f.
func (f ParamsFunc) Params() Params { return f() }

// StaticParams returns a source that always yields p.
func StaticParams(p Params) ParamsSource {
	return ParamsFunc(func() Params { return p })
}

// Ring rotates a fixed number of Updaters so that one is always being
// advanced while the others hold completed LUT sets.
//
// Roles are indices, not objects: role k lives in slot (head+k) mod N.
// Role 0 is the active Updater, role 1 the most recently completed, role
// N-1 the oldest. Rotation moves head back by one so the oldest becomes
// active and every completed set moves up one role.
//
// Ring is driven from a single goroutine.
type Ring struct {
	slots  []*Updater
	head   int
	src    ParamsSource
	binder Binder
	opts   options
	log    *slog.Logger

	fadeTicks int
	weight    float32
	rotations uint64
	closed    bool
}

// NewRing creates a ring of Updaters sharing disp and alloc, and starts the
// first run with a snapshot from src.
func NewRing(disp Dispatcher, alloc Allocator, cfg LutConfig, src ParamsSource, opts ...Option) (*Ring, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if o.ringSize < 2 {
		return nil, fmt.Errorf("%w: %d, need at least 2", ErrInvalidRingSize, o.ringSize)
	}
	if o.crossFade && o.ringSize < 3 {
		return nil, fmt.Errorf("%w: %d, cross-fade needs at least 3", ErrInvalidRingSize, o.ringSize)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil params source", ErrInvalidOption)
	}

	r := &Ring{
		src:    src,
		binder: o.binder,
		opts:   o,
		log:    o.log(),
	}
	for i := 0; i < o.ringSize; i++ {
		u, err := NewUpdater(disp, alloc, cfg, opts...)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.slots = append(r.slots, u)
	}
	if err := r.Active().Start(src.Params()); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Size returns the number of slots.
func (r *Ring) Size() int { return len(r.slots) }

// Slot returns the Updater holding role k.
func (r *Ring) Slot(role int) *Updater {
	n := len(r.slots)
	return r.slots[(r.head+role%n+n)%n]
}

// Role returns the current role of physical slot i.
func (r *Ring) Role(slot int) int {
	n := len(r.slots)
	return ((slot-r.head)%n + n) % n
}

// Active returns the Updater being advanced.
func (r *Ring) Active() *Updater { return r.Slot(0) }

// Rotations returns the number of completed rotations.
func (r *Ring) Rotations() uint64 { return r.rotations }

// Weight returns the cross-fade weight in [0, 1]. It is always 1 when
// cross-fade is disabled.
func (r *Ring) Weight() float32 {
	if !r.opts.crossFade {
		return 1
	}
	return r.weight
}

// Current returns the most recently completed LUT set. The set is never
// the one being written.
func (r *Ring) Current() (LUTSet, bool) {
	return r.Slot(1).Result()
}

// Previous returns the set completed before Current. It is only available
// with three or more slots.
func (r *Ring) Previous() (LUTSet, bool) {
	if len(r.slots) < 3 {
		return LUTSet{}, false
	}
	return r.Slot(2).Result()
}

// Tick performs one scheduling step.
//
// If the active run is complete it is published to the Binder, the ring
// rotates and a new run starts on the new active slot. Otherwise the active
// run advances one step. A run error is returned once; the failed slot then
// stays idle until Restart.
func (r *Ring) Tick() error {
	if r.closed {
		return ErrClosed
	}
	active := r.Active()
	rotated := false
	var err error
	switch active.State() {
	case StateDone:
		r.publish()
		r.rotate()
		rotated = true
		err = r.startActive()
	case StateRunning:
		_, err = active.Advance()
	}

	if r.opts.crossFade {
		if rotated {
			r.weight = 0
			r.fadeTicks = 0
		} else if r.fadeTicks < r.opts.fadeTicks {
			r.fadeTicks++
			r.weight = min(1, float32(r.fadeTicks)/float32(r.opts.fadeTicks))
		}
		if r.binder != nil {
			r.binder.SetBlendWeight(r.weight)
		}
	}
	return err
}

// Restart starts a fresh run on the active slot when it is idle or failed.
// It returns ErrRunInProgress while a run is in flight.
func (r *Ring) Restart() error {
	if r.closed {
		return ErrClosed
	}
	if r.Active().IsDone() {
		return nil
	}
	return r.startActive()
}

// Close releases every slot's textures.
func (r *Ring) Close() {
	if r.closed {
		return
	}
	for _, u := range r.slots {
		u.Close()
	}
	r.closed = true
}

func (r *Ring) publish() {
	cur, _ := r.Active().Result()
	var prev *LUTSet
	if r.opts.crossFade {
		if p, ok := r.Slot(1).Result(); ok {
			prev = &p
		}
	}
	r.log.Debug("skylut: publish", "slot", cur.Slot, "run", cur.Ordinal, "previous", prev != nil)
	if r.binder != nil {
		r.binder.BindLUTs(cur, prev)
	}
}

func (r *Ring) rotate() {
	n := len(r.slots)
	r.head = (r.head - 1 + n) % n
	r.rotations++
}

func (r *Ring) startActive() error {
	u := r.Active()
	if err := u.Start(r.src.Params()); err != nil {
		r.log.Warn("skylut: cannot start run", "updater", u.ID(), "error", err)
		return err
	}
	return nil
}
