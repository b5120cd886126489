// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"
)

type fakeTexture struct {
	id   uint64
	desc TextureDesc
}

func (t *fakeTexture) ID() uint64        { return t.id }
func (t *fakeTexture) Desc() TextureDesc { return t.desc }

// fakeAllocator hands out fakeTextures and tracks which are live.
type fakeAllocator struct {
	nextID   uint64
	live     map[uint64]*fakeTexture
	created  int
	released int

	// fail, when set, is consulted before every allocation.
	fail func(desc TextureDesc) error
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{live: make(map[uint64]*fakeTexture)}
}

func (a *fakeAllocator) Ensure(cur Texture, desc TextureDesc, force bool) (Texture, error) {
	if cur != nil {
		t := cur.(*fakeTexture)
		if a.live[t.id] != t {
			return nil, fmt.Errorf("texture %d is not live", t.id)
		}
		if !force && t.desc == desc {
			return t, nil
		}
		a.Release(t)
	}
	if a.fail != nil {
		if err := a.fail(desc); err != nil {
			return nil, err
		}
	}
	a.nextID++
	t := &fakeTexture{id: a.nextID, desc: desc}
	a.live[t.id] = t
	a.created++
	return t, nil
}

func (a *fakeAllocator) Release(t Texture) {
	ft, ok := t.(*fakeTexture)
	if !ok || a.live[ft.id] != ft {
		return
	}
	delete(a.live, ft.id)
	a.released++
}

// dispatchCall is a snapshot of one Dispatch.
type dispatchCall struct {
	kernel   string
	textures map[string]uint64
	uniforms map[string]Uniform
	groups   [3]uint32
}

func (c dispatchCall) offset() int {
	return int(c.uniforms[UniformThreadOffset].Values[0])
}

// fakeDispatcher records dispatches. Every kernel in Kernels is known with
// an 8x8x1 (2D) or 8x8x8 (3D) workgroup unless removed from wg.
type fakeDispatcher struct {
	wg    map[string][3]uint32
	calls []dispatchCall

	// fail, when set, is consulted before recording a dispatch.
	fail func(kernel string) error
}

func newFakeDispatcher() *fakeDispatcher {
	d := &fakeDispatcher{wg: make(map[string][3]uint32)}
	for _, k := range Kernels {
		d.wg[k] = [3]uint32{8, 8, 1}
	}
	for _, k := range []string{KernelSingleScattering, KernelMultiScatteringDensity, KernelMultiScattering, KernelScatteringSum} {
		d.wg[k] = [3]uint32{8, 8, 8}
	}
	return d
}

func (d *fakeDispatcher) WorkgroupSize(kernel string) ([3]uint32, error) {
	wg, ok := d.wg[kernel]
	if !ok {
		return [3]uint32{}, fmt.Errorf("no entry point %s", kernel)
	}
	return wg, nil
}

func (d *fakeDispatcher) Dispatch(kernel string, b *Bindings, groups [3]uint32) error {
	if d.fail != nil {
		if err := d.fail(kernel); err != nil {
			return err
		}
	}
	c := dispatchCall{
		kernel:   kernel,
		textures: make(map[string]uint64),
		uniforms: make(map[string]Uniform),
		groups:   groups,
	}
	for _, name := range b.TextureNames() {
		t, _ := b.Texture(name)
		c.textures[name] = t.ID()
	}
	for name, u := range b.uniforms {
		c.uniforms[name] = u
	}
	d.calls = append(d.calls, c)
	return nil
}

func (d *fakeDispatcher) callsOf(kernel string) []dispatchCall {
	var out []dispatchCall
	for _, c := range d.calls {
		if c.kernel == kernel {
			out = append(out, c)
		}
	}
	return out
}

// smallLutConfig is the end-to-end reference configuration.
func smallLutConfig() LutConfig {
	return LutConfig{
		Transmittance: Size2D{Width: 64, Height: 64},
		Scattering:    Size3D{Width: 8, Height: 8, Depth: 8},
		Irradiance:    Size2D{Width: 8, Height: 8},
		Format:        gputypes.TextureFormatRGBA32Float,
	}
}

func newTestUpdater(t *testing.T, opts ...Option) (*Updater, *fakeDispatcher, *fakeAllocator) {
	t.Helper()
	disp := newFakeDispatcher()
	alloc := newFakeAllocator()
	u, err := NewUpdater(disp, alloc, smallLutConfig(), opts...)
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}
	t.Cleanup(u.Close)
	return u, disp, alloc
}

// recordingBinder records BindLUTs and SetBlendWeight calls.
type recordingBinder struct {
	bound   []LUTSet
	prev    []*LUTSet
	weights []float32
}

func (b *recordingBinder) BindLUTs(cur LUTSet, prev *LUTSet) {
	b.bound = append(b.bound, cur)
	b.prev = append(b.prev, prev)
}

func (b *recordingBinder) SetBlendWeight(w float32) {
	b.weights = append(b.weights, w)
}
