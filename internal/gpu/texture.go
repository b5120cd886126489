// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/skylut"
	"github.com/gogpu/wgpu/hal"
)

// Allocator errors.
var (
	// ErrMemoryBudgetExceeded is returned when an allocation would exceed the budget.
	ErrMemoryBudgetExceeded = errors.New("skylut/gpu: memory budget exceeded")

	// ErrAllocatorClosed is returned when operating on a closed allocator.
	ErrAllocatorClosed = errors.New("skylut/gpu: allocator closed")

	// ErrForeignTexture is returned when Ensure is handed a texture this
	// allocator did not create.
	ErrForeignTexture = errors.New("skylut/gpu: texture not owned by allocator")

	// ErrUnsupportedFormat is returned for texel formats other than
	// RGBA32Float and RGBA16Float.
	ErrUnsupportedFormat = errors.New("skylut/gpu: unsupported texture format")
)

// Default memory limits.
const (
	// DefaultMaxMemoryMB is the default texture budget (256 MB).
	DefaultMaxMemoryMB = 256

	// MinMemoryMB is the smallest accepted budget (16 MB).
	MinMemoryMB = 16
)

// lutUsage is the usage of every LUT texture: written as storage, read as
// sampled, copyable for readback.
const lutUsage = gputypes.TextureUsageStorageBinding |
	gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst

// MemoryStats contains LUT texture memory statistics.
type MemoryStats struct {
	// TotalBytes is the budget in bytes.
	TotalBytes uint64

	// UsedBytes is the memory of live textures in bytes.
	UsedBytes uint64

	// AvailableBytes is the remaining budget.
	AvailableBytes uint64

	// PeakBytes is the highest UsedBytes observed.
	PeakBytes uint64

	// TextureCount is the number of live textures.
	TextureCount int

	// Allocations and Releases count texture creations and destructions.
	Allocations uint64
	Releases    uint64

	// Utilization is the fraction of the budget in use (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d MB, peak %d MB, %d textures, %d allocs, %d releases]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.TotalBytes/(1024*1024),
		s.PeakBytes/(1024*1024),
		s.TextureCount,
		s.Allocations,
		s.Releases)
}

// Texture is a LUT texture with its default view.
type Texture struct {
	id   uint64
	desc skylut.TextureDesc
	tex  hal.Texture
	view hal.TextureView
	size uint64
}

// ID returns the allocation identity.
func (t *Texture) ID() uint64 { return t.id }

// Desc returns the descriptor the texture was created with.
func (t *Texture) Desc() skylut.TextureDesc { return t.desc }

// Raw returns the HAL texture.
func (t *Texture) Raw() hal.Texture { return t.tex }

// View returns the full-resource view used for binding.
func (t *Texture) View() hal.TextureView { return t.view }

// SizeBytes returns the texel memory of the texture.
func (t *Texture) SizeBytes() uint64 { return t.size }

// retired is a texture released while GPU work may still reference it.
type retired struct {
	tex   hal.Texture
	view  hal.TextureView
	after uint64 // destroy once this submission completed
}

// AllocatorConfig holds configuration for creating an Allocator.
type AllocatorConfig struct {
	// MaxMemoryMB is the texture budget in megabytes.
	// Defaults to DefaultMaxMemoryMB if below MinMemoryMB.
	MaxMemoryMB int
}

// Allocator creates LUT textures on a HAL device and enforces a memory
// budget. It implements skylut.Allocator.
//
// Released textures are destroyed only after the last submission that may
// reference them has completed.
//
// Allocator is safe for concurrent use.
type Allocator struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue

	budgetBytes uint64
	usedBytes   uint64
	peakBytes   uint64
	allocs      uint64
	releases    uint64

	nextID   uint64
	textures map[uint64]*Texture
	retired  []retired

	// lastSubmit is the newest submission index that may use a texture.
	lastSubmit uint64

	linear  hal.Sampler
	nearest hal.Sampler

	closed bool
}

// NewAllocator creates an allocator on device. queue reports completed
// submissions; it may be nil, in which case released textures are
// destroyed immediately.
func NewAllocator(device hal.Device, queue hal.Queue, config AllocatorConfig) *Allocator {
	maxMB := config.MaxMemoryMB
	if maxMB < MinMemoryMB {
		maxMB = DefaultMaxMemoryMB
	}
	//nolint:gosec // G115: maxMB is bounded by MinMemoryMB minimum
	return &Allocator{
		device:      device,
		queue:       queue,
		budgetBytes: uint64(maxMB) * 1024 * 1024,
		textures:    make(map[uint64]*Texture),
	}
}

// bytesPerTexel returns the texel size of the supported LUT formats.
func bytesPerTexel(f gputypes.TextureFormat) (uint64, error) {
	switch f {
	case gputypes.TextureFormatRGBA32Float:
		return 16, nil
	case gputypes.TextureFormatRGBA16Float:
		return 8, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// textureBytes returns the memory a texture of desc occupies.
func textureBytes(desc skylut.TextureDesc) (uint64, error) {
	bpp, err := bytesPerTexel(desc.Format)
	if err != nil {
		return 0, err
	}
	e := desc.Extent()
	//nolint:gosec // G115: dimensions are validated positive before use
	return uint64(e[0]) * uint64(e[1]) * uint64(e[2]) * bpp, nil
}

// Ensure implements skylut.Allocator. A cur from another allocator is
// rejected with ErrForeignTexture and left untouched.
func (a *Allocator) Ensure(cur skylut.Texture, desc skylut.TextureDesc, forceReplace bool) (skylut.Texture, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrAllocatorClosed
	}
	a.collectLocked()

	var t *Texture
	if cur != nil {
		var ok bool
		if t, ok = cur.(*Texture); !ok {
			return nil, fmt.Errorf("%w: %T", ErrForeignTexture, cur)
		}
	}
	if t != nil && a.textures[t.id] != t {
		return nil, fmt.Errorf("%w: id %d", ErrForeignTexture, t.id)
	}

	if t != nil && !forceReplace && t.desc == desc {
		return t, nil
	}
	if t != nil {
		a.releaseLocked(t)
	}

	nt, err := a.createLocked(desc)
	if err != nil {
		return nil, err
	}
	return nt, nil
}

func (a *Allocator) createLocked(desc skylut.TextureDesc) (*Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.Depth < 0 {
		return nil, fmt.Errorf("skylut/gpu: invalid texture size %s", desc)
	}
	size, err := textureBytes(desc)
	if err != nil {
		return nil, err
	}
	if a.usedBytes+size > a.budgetBytes {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d of %d used",
			ErrMemoryBudgetExceeded, desc, size, a.usedBytes, a.budgetBytes)
	}

	e := desc.Extent()
	dim := gputypes.TextureDimension2D
	viewDim := gputypes.TextureViewDimension2D
	if desc.Is3D() {
		dim = gputypes.TextureDimension3D
		viewDim = gputypes.TextureViewDimension3D
	}

	//nolint:gosec // G115: dimensions validated positive above
	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Name,
		Size: hal.Extent3D{
			Width:              uint32(e[0]),
			Height:             uint32(e[1]),
			DepthOrArrayLayers: uint32(e[2]),
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     dim,
		Format:        desc.Format,
		Usage:         lutUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("skylut/gpu: create texture %s: %w", desc, err)
	}
	view, err := a.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           desc.Name,
		Format:          desc.Format,
		Dimension:       viewDim,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		a.device.DestroyTexture(tex)
		return nil, fmt.Errorf("skylut/gpu: create view %s: %w", desc, err)
	}

	a.nextID++
	t := &Texture{id: a.nextID, desc: desc, tex: tex, view: view, size: size}
	a.textures[t.id] = t
	a.usedBytes += size
	a.peakBytes = max(a.peakBytes, a.usedBytes)
	a.allocs++
	slogger().Debug("skylut/gpu: texture allocated", "texture", desc.String(), "id", t.id, "bytes", size)
	return t, nil
}

// Release implements skylut.Allocator. Textures from other allocators and
// nil are ignored.
func (a *Allocator) Release(t skylut.Texture) {
	tt, ok := t.(*Texture)
	if !ok || tt == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.textures[tt.id] != tt {
		return
	}
	a.releaseLocked(tt)
}

func (a *Allocator) releaseLocked(t *Texture) {
	delete(a.textures, t.id)
	a.usedBytes -= t.size
	a.releases++
	a.retired = append(a.retired, retired{tex: t.tex, view: t.view, after: a.lastSubmit})
	a.collectLocked()
}

// markSubmitted records that work up to submission idx may reference any
// live texture.
func (a *Allocator) markSubmitted(idx uint64) {
	a.mu.Lock()
	a.lastSubmit = max(a.lastSubmit, idx)
	a.mu.Unlock()
}

// Collect destroys released textures whose last use has completed.
func (a *Allocator) Collect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collectLocked()
}

func (a *Allocator) collectLocked() {
	if len(a.retired) == 0 {
		return
	}
	completed := a.lastSubmit
	if a.queue != nil {
		completed = a.queue.PollCompleted()
	}
	keep := a.retired[:0]
	for _, r := range a.retired {
		if r.after > completed {
			keep = append(keep, r)
			continue
		}
		a.device.DestroyTextureView(r.view)
		a.device.DestroyTexture(r.tex)
	}
	clear(a.retired[len(keep):])
	a.retired = keep
}

// sampler returns the shared clamp-to-edge sampler: bilinear when linear is
// true, nearest otherwise.
func (a *Allocator) sampler(linear bool) (hal.Sampler, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrAllocatorClosed
	}
	slot, filter, label := &a.nearest, gputypes.FilterModeNearest, "lut_nearest"
	if linear {
		slot, filter, label = &a.linear, gputypes.FilterModeLinear, "lut_linear"
	}
	if *slot != nil {
		return *slot, nil
	}
	s, err := a.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("skylut/gpu: create sampler: %w", err)
	}
	*slot = s
	return s, nil
}

// Stats returns current memory statistics.
func (a *Allocator) Stats() MemoryStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := MemoryStats{
		TotalBytes:   a.budgetBytes,
		UsedBytes:    a.usedBytes,
		PeakBytes:    a.peakBytes,
		TextureCount: len(a.textures),
		Allocations:  a.allocs,
		Releases:     a.releases,
	}
	if a.budgetBytes > a.usedBytes {
		s.AvailableBytes = a.budgetBytes - a.usedBytes
	}
	if a.budgetBytes > 0 {
		s.Utilization = float64(a.usedBytes) / float64(a.budgetBytes)
	}
	return s
}

// Close waits for the device to go idle and destroys every texture and
// sampler. Textures handed out earlier become invalid.
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if err := a.device.WaitIdle(); err != nil {
		slogger().Warn("skylut/gpu: wait idle before texture release", "error", err)
	}
	for id, t := range a.textures {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.tex)
		delete(a.textures, id)
	}
	for _, r := range a.retired {
		a.device.DestroyTextureView(r.view)
		a.device.DestroyTexture(r.tex)
	}
	a.retired = nil
	if a.linear != nil {
		a.device.DestroySampler(a.linear)
		a.linear = nil
	}
	if a.nearest != nil {
		a.device.DestroySampler(a.nearest)
		a.nearest = nil
	}
	a.usedBytes = 0
	a.closed = true
}
