// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu runs skylut kernels on a wgpu HAL device.
//
// A Backend bundles the texture allocator and the compute dispatcher that
// an Updater or Ring needs:
//
//	be, err := gpu.FromProvider(app, gpu.Config{Kernels: atmosphereWGSL})
//	if err != nil {
//		return err
//	}
//	defer be.Close()
//
//	ring, err := skylut.NewRing(be.Dispatcher(), be.Allocator(),
//		skylut.DefaultLutConfig(), skylut.StaticParams(skylut.DefaultParams()))
//
// Use Open for headless tools that own their device, and NewBackend when the
// HAL device and queue are already at hand.
package gpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/skylut"
	gpuimpl "github.com/gogpu/skylut/internal/gpu"
	"github.com/gogpu/wgpu/hal"

	// Register every platform HAL backend for Open.
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func init() {
	skylut.OnLoggerChange(gpuimpl.SetLogger)
}

// ErrNoAdapter is returned by Open when the backend exposes no adapter.
var ErrNoAdapter = errors.New("skylut/gpu: no GPU adapter available")

// MemoryStats contains LUT texture memory statistics.
type MemoryStats = gpuimpl.MemoryStats

// Config configures a Backend.
type Config struct {
	// Kernels is the WGSL source declaring every entry point in skylut.Kernels.
	Kernels string

	// Format is the LUT texel format. It must equal LutConfig.Format.
	// Defaults to RGBA32Float.
	Format gputypes.TextureFormat

	// MaxMemoryMB is the texture budget. Defaults to 256 MB.
	MaxMemoryMB int
}

// Backend owns an Allocator and a Dispatcher sharing one device.
type Backend struct {
	alloc *gpuimpl.Allocator
	disp  *gpuimpl.Dispatcher

	// release destroys a device the backend opened itself.
	release func()
}

// NewBackend creates a backend on an existing device. The caller keeps
// ownership of device and queue.
func NewBackend(device hal.Device, queue hal.Queue, config Config) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("skylut/gpu: nil device or queue")
	}
	if config.Format == gputypes.TextureFormatUndefined {
		config.Format = gputypes.TextureFormatRGBA32Float
	}
	alloc := gpuimpl.NewAllocator(device, queue, gpuimpl.AllocatorConfig{MaxMemoryMB: config.MaxMemoryMB})
	disp, err := gpuimpl.NewDispatcher(device, queue, alloc, gpuimpl.DispatcherConfig{
		Source: config.Kernels,
		Format: config.Format,
	})
	if err != nil {
		alloc.Close()
		return nil, err
	}
	skylut.Logger().Debug("skylut/gpu: backend ready", "format", config.Format.String())
	return &Backend{alloc: alloc, disp: disp}, nil
}

// FromProvider creates a backend on the device of a host application.
//
// The provider must also expose HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider, config Config) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("skylut/gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("skylut/gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("skylut/gpu: provider HalQueue is not hal.Queue")
	}
	info := provider.AdapterInfo()
	skylut.Logger().Info("skylut/gpu: using shared device", "adapter", info.Name, "type", info.Type.String())
	return NewBackend(device, queue, config)
}

// ParseBackend maps a backend name to its variant. Accepted names are
// vulkan, metal, dx12, gl and software. The empty string and "auto" select
// the most capable registered backend.
func ParseBackend(name string) (variant gputypes.Backend, auto bool, err error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return gputypes.BackendEmpty, true, nil
	case "vulkan":
		return gputypes.BackendVulkan, false, nil
	case "metal":
		return gputypes.BackendMetal, false, nil
	case "dx12":
		return gputypes.BackendDX12, false, nil
	case "gl", "gles":
		return gputypes.BackendGL, false, nil
	case "software", "empty":
		return gputypes.BackendEmpty, false, nil
	}
	return 0, false, fmt.Errorf("skylut/gpu: unknown backend %q", name)
}

// Open creates a device on the named HAL backend (see ParseBackend) and a
// Backend owning it.
func Open(name string, config Config) (*Backend, error) {
	variant, auto, err := ParseBackend(name)
	if err != nil {
		return nil, err
	}
	var api hal.Backend
	if auto {
		api, err = hal.SelectBestBackend()
		if err != nil {
			return nil, fmt.Errorf("skylut/gpu: select backend: %w", err)
		}
	} else {
		var ok bool
		if api, ok = hal.GetBackend(variant); !ok {
			return nil, fmt.Errorf("skylut/gpu: backend %s not registered", variant)
		}
	}

	instance, err := api.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("skylut/gpu: create %s instance: %w", api.Variant(), err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w on %s", ErrNoAdapter, api.Variant())
	}
	ad := adapters[0]
	open, err := ad.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("skylut/gpu: open %s: %w", ad.Info.Name, err)
	}
	skylut.Logger().Info("skylut/gpu: device opened", "backend", api.Variant().String(), "adapter", ad.Info.Name)

	be, err := NewBackend(open.Device, open.Queue, config)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	be.release = func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	return be, nil
}

// Allocator returns the texture allocator.
func (b *Backend) Allocator() skylut.Allocator { return b.alloc }

// Dispatcher returns the compute dispatcher.
func (b *Backend) Dispatcher() skylut.Dispatcher { return b.disp }

// Stats returns texture memory statistics.
func (b *Backend) Stats() MemoryStats { return b.alloc.Stats() }

// Dispatches returns the number of dispatches submitted so far.
func (b *Backend) Dispatches() uint64 { return b.disp.Dispatches() }

// Close releases every GPU object, and the device if Open created it.
// Updaters and Rings using the backend must be closed first.
func (b *Backend) Close() {
	b.disp.Close()
	b.alloc.Close()
	if b.release != nil {
		b.release()
		b.release = nil
	}
}
