// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of an Updater.
type State int

const (
	// StateIdle means no run was started, or the Updater was closed.
	StateIdle State = iota

	// StateRunning means a run is in flight.
	StateRunning

	// StateDone means the last run completed and Result is valid.
	StateDone

	// StateFailed means the last run stopped on an error. Result is not
	// valid until a new run completes.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// StepTiming records the CPU time spent encoding one step.
type StepTiming struct {
	Step     Step
	Duration time.Duration
}

var updaterIDs atomic.Int64

// Updater computes one full set of atmosphere LUTs, one Step per Advance.
//
// An Updater owns its textures exclusively. Textures survive between runs
// and are reused as long as the LutConfig does not change, except for the
// two combined sums which are recreated on every run so accumulation always
// starts from zero.
//
// Updater is not safe for concurrent use. Exactly one driver advances it.
type Updater struct {
	id    int
	disp  Dispatcher
	alloc Allocator
	cfg   LutConfig
	opts  options
	log   *slog.Logger

	// wg is the workgroup size per kernel.
	wg map[string][3]uint32

	plan    []Step
	next    int
	state   State
	err     error
	params  Params
	ordinal uint64
	started time.Time
	timings []StepTiming
	closed  bool

	transmittance  Texture
	singleRayleigh Texture
	singleMie      Texture
	// groundIrradiance holds orders 0..N.
	groundIrradiance []Texture
	// multiScattering holds orders 1..N. Index 0 is unused and order 1 is a
	// placeholder that no kernel writes.
	multiScattering []Texture
	density         Texture
	scatteringSum   Texture
	irradianceSum   Texture

	bindings Bindings
}

// NewUpdater creates an idle Updater.
//
// Every kernel in Kernels must be known to disp; a missing kernel is a
// configuration error reported here rather than during a run.
func NewUpdater(disp Dispatcher, alloc Allocator, cfg LutConfig, opts ...Option) (*Updater, error) {
	if disp == nil || alloc == nil {
		return nil, ErrNilCollaborator
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	wg := make(map[string][3]uint32, len(Kernels))
	for _, k := range Kernels {
		size, err := disp.WorkgroupSize(k)
		if err != nil {
			return nil, fmt.Errorf("skylut: kernel %q: %w", k, err)
		}
		wg[k] = size
	}

	u := &Updater{
		id:               int(updaterIDs.Add(1)),
		disp:             disp,
		alloc:            alloc,
		cfg:              cfg,
		opts:             o,
		log:              o.log(),
		wg:               wg,
		plan:             buildPlan(o.orders, o.splits),
		groundIrradiance: make([]Texture, o.orders+1),
		multiScattering:  make([]Texture, o.orders+1),
	}
	return u, nil
}

// ID returns a process-unique identifier for the Updater.
func (u *Updater) ID() int { return u.id }

// Start begins a new run using a copy of p.
//
// Start fails with ErrRunInProgress while a run is in flight; runs are never
// interrupted. Otherwise the previous result is discarded, even when p is
// rejected: invalid params leave the Updater Failed with the validation
// error.
func (u *Updater) Start(p Params) error {
	if u.closed {
		return ErrClosed
	}
	if u.state == StateRunning {
		return ErrRunInProgress
	}
	if err := p.Validate(); err != nil {
		u.state = StateFailed
		u.err = err
		u.log.Warn("skylut: run rejected", "updater", u.id, "error", err)
		return err
	}
	u.params = p
	u.next = 0
	u.err = nil
	u.state = StateRunning
	u.ordinal++
	u.started = time.Now()
	u.timings = u.timings[:0]
	u.log.Debug("skylut: run started", "updater", u.id, "run", u.ordinal, "steps", len(u.plan))
	return nil
}

// Advance performs the next step of the current run and reports whether the
// run is complete. Once complete, further calls return true with no work.
//
// An error fails the run: IsDone stays false and the same error is returned
// by later calls until Start begins a new run.
func (u *Updater) Advance() (bool, error) {
	if u.closed {
		return false, ErrClosed
	}
	switch u.state {
	case StateIdle:
		return false, ErrNotStarted
	case StateDone:
		return true, nil
	case StateFailed:
		return false, u.err
	}

	step := u.plan[u.next]
	t0 := time.Now()
	if err := u.exec(step); err != nil {
		u.state = StateFailed
		u.err = fmt.Errorf("skylut: step %s: %w", step, err)
		u.log.Warn("skylut: run failed", "updater", u.id, "run", u.ordinal, "error", u.err)
		return false, u.err
	}
	d := time.Since(t0)
	u.timings = append(u.timings, StepTiming{Step: step, Duration: d})
	u.log.Debug("skylut: step", "updater", u.id, "step", step.String(), "duration", d)

	u.next++
	if u.next == len(u.plan) {
		u.state = StateDone
		u.log.Info("skylut: run complete",
			"updater", u.id,
			"run", u.ordinal,
			"steps", len(u.plan),
			"elapsed", time.Since(u.started))
	}
	return u.state == StateDone, nil
}

// Run starts a run with p and advances it to completion in one call.
func (u *Updater) Run(p Params) error {
	if err := u.Start(p); err != nil {
		return err
	}
	for {
		done, err := u.Advance()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// IsDone reports whether the last run completed. It is false while running,
// after a failure, and before the first run.
func (u *Updater) IsDone() bool { return u.state == StateDone }

// State returns the lifecycle state.
func (u *Updater) State() State { return u.state }

// Err returns the error that failed the last run, or nil.
func (u *Updater) Err() error { return u.err }

// Ordinal returns the number of runs started so far.
func (u *Updater) Ordinal() uint64 { return u.ordinal }

// Params returns the snapshot the current or last run uses.
func (u *Updater) Params() Params { return u.params }

// Progress returns the number of completed steps and the plan length.
func (u *Updater) Progress() (done, total int) { return u.next, len(u.plan) }

// Plan returns a copy of the step sequence of one run.
func (u *Updater) Plan() []Step { return append([]Step(nil), u.plan...) }

// Timings returns the per-step durations of the current or last run.
func (u *Updater) Timings() []StepTiming { return append([]StepTiming(nil), u.timings...) }

// Result returns the completed LUT set. ok is false unless IsDone.
func (u *Updater) Result() (set LUTSet, ok bool) {
	if u.state != StateDone {
		return LUTSet{}, false
	}
	return LUTSet{
		Transmittance:      u.transmittance,
		SingleRayleigh:     u.singleRayleigh,
		SingleMie:          u.singleMie,
		MultipleScattering: u.scatteringSum,
		Irradiance:         u.irradianceSum,
		TransmittanceSize:  u.cfg.Transmittance,
		ScatteringSize:     u.cfg.Scattering,
		IrradianceSize:     u.cfg.Irradiance,
		Params:             u.params,
		Ordinal:            u.ordinal,
		Slot:               u.id,
	}, true
}

// Textures returns every texture the Updater currently owns.
func (u *Updater) Textures() []Texture {
	var out []Texture
	add := func(t Texture) {
		if t != nil {
			out = append(out, t)
		}
	}
	add(u.transmittance)
	add(u.singleRayleigh)
	add(u.singleMie)
	for _, t := range u.groundIrradiance {
		add(t)
	}
	for _, t := range u.multiScattering {
		add(t)
	}
	add(u.density)
	add(u.scatteringSum)
	add(u.irradianceSum)
	return out
}

// Close releases every texture. The Updater cannot be used afterwards.
func (u *Updater) Close() {
	if u.closed {
		return
	}
	for _, t := range u.Textures() {
		u.alloc.Release(t)
	}
	u.transmittance, u.singleRayleigh, u.singleMie = nil, nil, nil
	clear(u.groundIrradiance)
	clear(u.multiScattering)
	u.density, u.scatteringSum, u.irradianceSum = nil, nil, nil
	u.state = StateIdle
	u.closed = true
}

// exec performs one step.
func (u *Updater) exec(s Step) error {
	cfg := u.cfg
	switch s.Kind {
	case StepTransmittance:
		if err := u.ensure(&u.transmittance, cfg.transmittanceDesc(), false); err != nil {
			return err
		}
		b := u.begin()
		b.SetTexture(BindTransmittanceResult, u.transmittance)
		return u.dispatch(KernelTransmittance, u.transmittanceExtent(), s, b)

	case StepGroundDirectIrradiance:
		g := &u.groundIrradiance[0]
		if err := u.ensure(g, cfg.irradianceDesc(fmt.Sprintf(nameGroundIrradianceFmt, 0)), false); err != nil {
			return err
		}
		b := u.begin()
		b.SetTexture(BindTransmittance, u.transmittance)
		b.SetTexture(BindGroundDirectIrradianceResult, *g)
		return u.dispatch(KernelGroundDirectIrradiance, u.irradianceExtent(), s, b)

	case StepSingleScattering:
		if err := u.ensure(&u.singleRayleigh, cfg.scatteringDesc(nameSingleRayleigh), false); err != nil {
			return err
		}
		if err := u.ensure(&u.singleMie, cfg.scatteringDesc(nameSingleMie), false); err != nil {
			return err
		}
		b := u.begin()
		b.SetTexture(BindTransmittance, u.transmittance)
		b.SetTexture(BindSingleRayleighResult, u.singleRayleigh)
		b.SetTexture(BindSingleMieResult, u.singleMie)
		return u.dispatch(KernelSingleScattering, u.scatteringExtent(), s, b)

	case StepGroundIrradiance:
		o := s.Order
		if err := u.ensure(&u.multiScattering[o], cfg.scatteringDesc(fmt.Sprintf(nameMultiScatteringFmt, o)), false); err != nil {
			return err
		}
		g := &u.groundIrradiance[o]
		if err := u.ensure(g, cfg.irradianceDesc(fmt.Sprintf(nameGroundIrradianceFmt, o)), false); err != nil {
			return err
		}
		b := u.begin()
		b.SetTexture(BindSingleRayleigh, u.singleRayleigh)
		b.SetTexture(BindSingleMie, u.singleMie)
		b.SetTexture(BindMultiScattering, u.multiScattering[o])
		b.SetTexture(BindGroundIrradianceResult, *g)
		b.SetInt(UniformScatteringOrder, o)
		return u.dispatch(KernelGroundIrradiance, u.irradianceExtent(), s, b)

	case StepMultiScatteringDensity:
		o := s.Order
		if err := u.ensure(&u.density, cfg.scatteringDesc(nameDensity), false); err != nil {
			return err
		}
		b := u.begin()
		b.SetTexture(BindTransmittance, u.transmittance)
		b.SetTexture(BindSingleRayleigh, u.singleRayleigh)
		b.SetTexture(BindSingleMie, u.singleMie)
		b.SetTexture(BindMultiScattering, u.multiScattering[o-1])
		b.SetTexture(BindIrradiance, u.groundIrradiance[o-2])
		b.SetInt(UniformScatteringOrder, o-1)
		b.SetTexture(BindDensityResult, u.density)
		return u.dispatch(KernelMultiScatteringDensity, u.scatteringExtent(), s, b)

	case StepMultiScattering:
		o := s.Order
		if err := u.ensure(&u.multiScattering[o], cfg.scatteringDesc(fmt.Sprintf(nameMultiScatteringFmt, o)), false); err != nil {
			return err
		}
		b := u.begin()
		b.SetTexture(BindTransmittance, u.transmittance)
		b.SetTexture(BindDensity, u.density)
		b.SetTexture(BindMultiScatteringResult, u.multiScattering[o])
		return u.dispatch(KernelMultiScattering, u.scatteringExtent(), s, b)

	case StepCombine:
		return u.combine(s)
	}
	return fmt.Errorf("unknown step kind %s", s.Kind)
}

// combine accumulates every order into the two final textures. Both sums
// are reallocated first so accumulation starts from zeroed storage.
func (u *Updater) combine(s Step) error {
	if err := u.ensure(&u.scatteringSum, u.cfg.scatteringDesc(nameScatteringSum), true); err != nil {
		return err
	}
	if err := u.ensure(&u.irradianceSum, u.cfg.irradianceDesc(nameIrradianceSum), true); err != nil {
		return err
	}
	for o := 2; o < len(u.multiScattering); o++ {
		b := u.begin()
		b.SetTexture(BindScatteringSumTarget, u.scatteringSum)
		b.SetTexture(BindScatteringSumAdd, u.multiScattering[o])
		if err := u.dispatch(KernelScatteringSum, u.scatteringExtent(), s, b); err != nil {
			return err
		}
	}
	for o := range u.groundIrradiance {
		b := u.begin()
		b.SetTexture(BindIrradianceSumTarget, u.irradianceSum)
		b.SetTexture(BindIrradianceSumAdd, u.groundIrradiance[o])
		if err := u.dispatch(KernelIrradianceSum, u.irradianceExtent(), s, b); err != nil {
			return err
		}
	}
	return nil
}

// ensure (re)allocates *slot for desc. On failure *slot is nil.
func (u *Updater) ensure(slot *Texture, desc TextureDesc, force bool) error {
	t, err := u.alloc.Ensure(*slot, desc, force)
	if err != nil {
		*slot = nil
		return fmt.Errorf("allocate %s: %w", desc, err)
	}
	*slot = t
	return nil
}

// begin resets the shared binding set and writes the per-run uniforms.
func (u *Updater) begin() *Bindings {
	b := &u.bindings
	b.Reset()
	u.params.Apply(b)
	u.cfg.Apply(b)
	return b
}

// dispatch issues kernel over the step's sub-range of extent. The split axis
// is X, measured in workgroups, and _ThreadOffset carries the first group.
func (u *Updater) dispatch(kernel string, extent [3]int, s Step, b *Bindings) error {
	wg := u.wg[kernel]
	groups := [3]uint32{
		groupCount(extent[0], wg[0]),
		groupCount(extent[1], wg[1]),
		groupCount(extent[2], wg[2]),
	}
	xs, xe := NormalizeProgressPointer(s.Start, s.End, int(groups[0]))
	if xe <= xs {
		u.log.Debug("skylut: empty sub-range skipped", "kernel", kernel, "step", s.String())
		return nil
	}
	groups[0] = uint32(xe - xs)
	b.SetInts(UniformThreadOffset, xs, 0, 0)
	if err := u.disp.Dispatch(kernel, b, groups); err != nil {
		return fmt.Errorf("dispatch %s: %w", kernel, err)
	}
	return nil
}

func (u *Updater) transmittanceExtent() [3]int {
	return [3]int{u.cfg.Transmittance.Width, u.cfg.Transmittance.Height, 1}
}

func (u *Updater) scatteringExtent() [3]int {
	return [3]int{u.cfg.Scattering.Width, u.cfg.Scattering.Height, u.cfg.Scattering.Depth}
}

func (u *Updater) irradianceExtent() [3]int {
	return [3]int{u.cfg.Irradiance.Width, u.cfg.Irradiance.Height, 1}
}
