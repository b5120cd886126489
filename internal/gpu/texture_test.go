// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/skylut"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// countingDevice records texture lifetimes and can fail texture creation.
type countingDevice struct {
	hal.Device
	created   int
	destroyed int
	failNext  bool
}

func (d *countingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	if d.failNext {
		d.failNext = false
		return nil, errors.New("out of device memory")
	}
	d.created++
	return d.Device.CreateTexture(desc)
}

func (d *countingDevice) DestroyTexture(t hal.Texture) {
	d.destroyed++
	d.Device.DestroyTexture(t)
}

// manualQueue reports a completed submission index set by the test.
type manualQueue struct {
	hal.Queue
	completed uint64
}

func (q *manualQueue) PollCompleted() uint64 { return q.completed }

func lutDesc(name string, w, h, d int) skylut.TextureDesc {
	return skylut.TextureDesc{Name: name, Width: w, Height: h, Depth: d, Format: gputypes.TextureFormatRGBA32Float}
}

func TestTextureBytes(t *testing.T) {
	tests := []struct {
		name    string
		desc    skylut.TextureDesc
		want    uint64
		wantErr bool
	}{
		{"2D rgba32", lutDesc("t", 256, 64, 0), 256 * 64 * 16, false},
		{"3D rgba32", lutDesc("s", 32, 128, 32), 32 * 128 * 32 * 16, false},
		{
			"2D rgba16",
			skylut.TextureDesc{Width: 64, Height: 16, Format: gputypes.TextureFormatRGBA16Float},
			64 * 16 * 8, false,
		},
		{
			"rgba8 unsupported",
			skylut.TextureDesc{Width: 4, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm},
			0, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := textureBytes(tt.desc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("error = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("bytes = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewAllocatorBudget(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	tests := []struct {
		maxMB int
		want  uint64
	}{
		{0, DefaultMaxMemoryMB * 1024 * 1024},
		{8, DefaultMaxMemoryMB * 1024 * 1024},
		{16, 16 * 1024 * 1024},
		{64, 64 * 1024 * 1024},
	}
	for _, tt := range tests {
		a := NewAllocator(device, queue, AllocatorConfig{MaxMemoryMB: tt.maxMB})
		if got := a.Stats().TotalBytes; got != tt.want {
			t.Errorf("MaxMemoryMB %d: TotalBytes = %d, want %d", tt.maxMB, got, tt.want)
		}
		a.Close()
	}
}

func TestAllocatorEnsure(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	a := NewAllocator(device, queue, AllocatorConfig{})
	defer a.Close()

	desc := lutDesc("Transmittance", 256, 64, 0)
	first, err := a.Ensure(nil, desc, false)
	if err != nil {
		t.Fatalf("Ensure(nil): %v", err)
	}
	if first.Desc() != desc {
		t.Errorf("Desc = %v, want %v", first.Desc(), desc)
	}
	if tex := first.(*Texture); tex.Raw() == nil || tex.View() == nil {
		t.Error("texture has no HAL texture or view")
	}

	t.Run("reuse", func(t *testing.T) {
		got, err := a.Ensure(first, desc, false)
		if err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if got.ID() != first.ID() {
			t.Errorf("ID = %d, want reused %d", got.ID(), first.ID())
		}
	})

	var replaced skylut.Texture
	t.Run("force replace", func(t *testing.T) {
		replaced, err = a.Ensure(first, desc, true)
		if err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if replaced.ID() == first.ID() {
			t.Error("forced Ensure reused the texture")
		}
	})

	t.Run("resize", func(t *testing.T) {
		bigger := lutDesc("Transmittance", 512, 128, 0)
		got, err := a.Ensure(replaced, bigger, false)
		if err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if got.ID() == replaced.ID() || got.Desc() != bigger {
			t.Errorf("got %d %v, want new texture %v", got.ID(), got.Desc(), bigger)
		}
		replaced = got
	})

	t.Run("stale texture", func(t *testing.T) {
		if _, err := a.Ensure(first, desc, false); !errors.Is(err, ErrForeignTexture) {
			t.Errorf("Ensure(released) error = %v, want ErrForeignTexture", err)
		}
	})

	stats := a.Stats()
	if stats.TextureCount != 1 {
		t.Errorf("TextureCount = %d, want 1", stats.TextureCount)
	}
	if stats.UsedBytes != 512*128*16 {
		t.Errorf("UsedBytes = %d, want %d", stats.UsedBytes, 512*128*16)
	}
	if stats.Allocations != 3 || stats.Releases != 2 {
		t.Errorf("Allocations/Releases = %d/%d, want 3/2", stats.Allocations, stats.Releases)
	}
	if stats.PeakBytes != 512*128*16 {
		t.Errorf("PeakBytes = %d, want %d", stats.PeakBytes, 512*128*16)
	}
}

type foreignTexture struct{}

func (foreignTexture) ID() uint64               { return 1 }
func (foreignTexture) Desc() skylut.TextureDesc { return skylut.TextureDesc{} }

func TestAllocatorForeignTexture(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	a := NewAllocator(device, queue, AllocatorConfig{})
	defer a.Close()

	if _, err := a.Ensure(foreignTexture{}, lutDesc("x", 4, 4, 0), false); !errors.Is(err, ErrForeignTexture) {
		t.Errorf("error = %v, want ErrForeignTexture", err)
	}
	other := NewAllocator(device, queue, AllocatorConfig{})
	defer other.Close()
	tex, err := other.Ensure(nil, lutDesc("x", 4, 4, 0), false)
	if err != nil {
		t.Fatal(err)
	}
	a.Release(tex) // ignored
	if other.Stats().TextureCount != 1 {
		t.Error("Release on another allocator destroyed the texture")
	}
	if _, err := a.Ensure(tex, lutDesc("y", 8, 8, 0), true); !errors.Is(err, ErrForeignTexture) {
		t.Errorf("Ensure(other's texture) = %v, want ErrForeignTexture", err)
	}
	if st := other.Stats(); st.TextureCount != 1 || st.Releases != 0 {
		t.Errorf("owner stats after rejected Ensure = %v", st)
	}
	if st := a.Stats(); st.Allocations != 0 || st.Releases != 0 {
		t.Errorf("rejecting allocator stats = %v", st)
	}
	a.Release(nil)
}

func TestAllocatorInvalidDesc(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	a := NewAllocator(device, queue, AllocatorConfig{})
	defer a.Close()

	tests := []struct {
		name string
		desc skylut.TextureDesc
	}{
		{"zero width", lutDesc("x", 0, 4, 0)},
		{"negative depth", lutDesc("x", 4, 4, -1)},
		{"format", skylut.TextureDesc{Name: "x", Width: 4, Height: 4, Format: gputypes.TextureFormatR8Unorm}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Ensure(nil, tt.desc, false); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAllocatorBudgetExceeded(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	a := NewAllocator(device, queue, AllocatorConfig{MaxMemoryMB: MinMemoryMB})
	defer a.Close()

	// 128x128x128 RGBA32F is 32 MB.
	_, err := a.Ensure(nil, lutDesc("big", 128, 128, 128), false)
	if !errors.Is(err, ErrMemoryBudgetExceeded) {
		t.Fatalf("error = %v, want ErrMemoryBudgetExceeded", err)
	}
	if !strings.Contains(err.Error(), "big") {
		t.Errorf("error %q does not name the texture", err)
	}
	if s := a.Stats(); s.UsedBytes != 0 || s.TextureCount != 0 {
		t.Errorf("stats after failure = %v", s)
	}
}

func TestAllocatorCreateFailureReleasesCurrent(t *testing.T) {
	base, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	device := &countingDevice{Device: base}
	a := NewAllocator(device, queue, AllocatorConfig{})
	defer a.Close()

	cur, err := a.Ensure(nil, lutDesc("x", 8, 8, 0), false)
	if err != nil {
		t.Fatal(err)
	}
	device.failNext = true
	got, err := a.Ensure(cur, lutDesc("x", 8, 8, 0), true)
	if err == nil {
		t.Fatal("expected error")
	}
	if got != nil {
		t.Errorf("texture = %v, want nil", got)
	}
	if n := a.Stats().TextureCount; n != 0 {
		t.Errorf("TextureCount = %d, want 0 (cur released)", n)
	}
}

func TestAllocatorDeferredDestroy(t *testing.T) {
	base, baseQueue, cleanup := createNoopDevice(t)
	defer cleanup()
	device := &countingDevice{Device: base}
	queue := &manualQueue{Queue: baseQueue}
	a := NewAllocator(device, queue, AllocatorConfig{})
	defer a.Close()

	tex, err := a.Ensure(nil, lutDesc("x", 8, 8, 8), false)
	if err != nil {
		t.Fatal(err)
	}
	a.markSubmitted(5)
	a.Release(tex)
	if device.destroyed != 0 {
		t.Fatalf("destroyed = %d before submission 5 completed", device.destroyed)
	}
	if n := a.Stats().TextureCount; n != 0 {
		t.Errorf("TextureCount = %d, want 0", n)
	}

	queue.completed = 4
	a.Collect()
	if device.destroyed != 0 {
		t.Fatalf("destroyed = %d after submission 4", device.destroyed)
	}

	queue.completed = 5
	a.Collect()
	if device.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", device.destroyed)
	}
}

func TestAllocatorNilQueueDestroysImmediately(t *testing.T) {
	base, _, cleanup := createNoopDevice(t)
	defer cleanup()
	device := &countingDevice{Device: base}
	a := NewAllocator(device, nil, AllocatorConfig{})
	defer a.Close()

	tex, err := a.Ensure(nil, lutDesc("x", 4, 4, 0), false)
	if err != nil {
		t.Fatal(err)
	}
	a.Release(tex)
	if device.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", device.destroyed)
	}
}

func TestAllocatorSampler(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	a := NewAllocator(device, queue, AllocatorConfig{})

	lin, err := a.sampler(true)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := a.sampler(true)
	if lin != again {
		t.Error("linear sampler not cached")
	}
	if _, err := a.sampler(false); err != nil {
		t.Fatal(err)
	}

	a.Close()
	if _, err := a.sampler(true); !errors.Is(err, ErrAllocatorClosed) {
		t.Errorf("sampler after Close error = %v, want ErrAllocatorClosed", err)
	}
}

func TestAllocatorClose(t *testing.T) {
	base, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	device := &countingDevice{Device: base}
	a := NewAllocator(device, queue, AllocatorConfig{})

	for i := 0; i < 3; i++ {
		if _, err := a.Ensure(nil, lutDesc("x", 4, 4, 0), false); err != nil {
			t.Fatal(err)
		}
	}
	a.Close()
	a.Close() // idempotent

	if device.destroyed != 3 {
		t.Errorf("destroyed = %d, want 3", device.destroyed)
	}
	if s := a.Stats(); s.UsedBytes != 0 {
		t.Errorf("UsedBytes after Close = %d", s.UsedBytes)
	}
	if _, err := a.Ensure(nil, lutDesc("x", 4, 4, 0), false); !errors.Is(err, ErrAllocatorClosed) {
		t.Errorf("Ensure after Close error = %v, want ErrAllocatorClosed", err)
	}
}

func TestMemoryStatsString(t *testing.T) {
	s := MemoryStats{
		TotalBytes:   256 * 1024 * 1024,
		UsedBytes:    64 * 1024 * 1024,
		PeakBytes:    128 * 1024 * 1024,
		TextureCount: 5,
		Allocations:  7,
		Releases:     2,
		Utilization:  0.25,
	}
	want := "Memory[25.0% used, 64/256 MB, peak 128 MB, 5 textures, 7 allocs, 2 releases]"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
