// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/skylut"
	"github.com/gogpu/wgpu/hal"
)

// Dispatch errors. All of them indicate an integration defect between the
// kernels and the caller rather than a runtime condition.
var (
	// ErrUnboundResource is returned when a kernel references a texture the
	// bindings do not provide.
	ErrUnboundResource = errors.New("skylut/gpu: unbound kernel resource")

	// ErrBindingMismatch is returned when a bound texture's dimension or
	// format does not match the kernel declaration.
	ErrBindingMismatch = errors.New("skylut/gpu: binding does not match kernel declaration")

	// ErrMissingKernel is returned at construction when a required entry
	// point is absent from the kernel source.
	ErrMissingKernel = errors.New("skylut/gpu: required kernel missing")

	// ErrDispatcherClosed is returned when dispatching after Close.
	ErrDispatcherClosed = errors.New("skylut/gpu: dispatcher closed")
)

// DispatcherConfig holds configuration for creating a Dispatcher.
type DispatcherConfig struct {
	// Source is the WGSL module declaring every kernel as a @compute entry point.
	Source string

	// Format is the LUT texel format. Filterable formats get a bilinear
	// sampler and Float sample type; RGBA32Float gets a nearest sampler and
	// UnfilterableFloat.
	Format gputypes.TextureFormat

	// Required lists entry points that must be present.
	// Defaults to skylut.Kernels when nil.
	Required []string
}

// kernelPipeline holds the GPU objects of one entry point.
type kernelPipeline struct {
	info     *kernelInfo
	bgLayout hal.BindGroupLayout
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
}

// pendingDispatch holds per-dispatch objects until the GPU finished with them.
type pendingDispatch struct {
	index     uint64
	uniforms  []hal.Buffer
	bindGroup hal.BindGroup
	cmdBuf    hal.CommandBuffer
}

// Dispatcher binds kernel resources by name and records compute dispatches
// on a HAL device. It implements skylut.Dispatcher.
//
// Dispatch never waits for the GPU. Transient objects of a dispatch (uniform
// buffers, bind group, command buffer) are freed on a later call once the
// queue reports the submission complete.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue
	alloc  *Allocator

	prog      *program
	shader    hal.ShaderModule
	pipelines map[string]*kernelPipeline
	linear    bool

	pending    []pendingDispatch
	dispatches uint64
	closed     bool
}

// NewDispatcher compiles the kernel source and creates one compute pipeline
// per entry point. Textures bound to dispatches must come from alloc.
func NewDispatcher(device hal.Device, queue hal.Queue, alloc *Allocator, config DispatcherConfig) (*Dispatcher, error) {
	if device == nil || queue == nil || alloc == nil {
		return nil, fmt.Errorf("skylut/gpu: dispatcher needs a device, queue and allocator")
	}
	prog, err := parseProgram(config.Source)
	if err != nil {
		return nil, err
	}
	required := config.Required
	if required == nil {
		required = skylut.Kernels
	}
	for _, name := range required {
		if _, ok := prog.kernels[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingKernel, name)
		}
	}

	d := &Dispatcher{
		device:    device,
		queue:     queue,
		alloc:     alloc,
		prog:      prog,
		pipelines: make(map[string]*kernelPipeline, len(prog.kernels)),
		linear:    config.Format == gputypes.TextureFormatRGBA16Float,
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

// init creates the shader module and one pipeline per kernel.
func (d *Dispatcher) init() error {
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "skylut_kernels",
		Source: hal.ShaderSource{WGSL: d.prog.source},
	})
	if err != nil {
		return fmt.Errorf("skylut/gpu: create shader module: %w", err)
	}
	d.shader = module

	names := make([]string, 0, len(d.prog.kernels))
	for name := range d.prog.kernels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info := d.prog.kernels[name]
		kp := &kernelPipeline{info: info}
		d.pipelines[name] = kp

		kp.bgLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   name + "_bgl",
			Entries: d.layoutEntries(info),
		})
		if err != nil {
			d.destroyAll()
			return fmt.Errorf("skylut/gpu: create bind group layout for %s: %w", name, err)
		}

		kp.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            name + "_layout",
			BindGroupLayouts: []hal.BindGroupLayout{kp.bgLayout},
		})
		if err != nil {
			d.destroyAll()
			return fmt.Errorf("skylut/gpu: create pipeline layout for %s: %w", name, err)
		}

		kp.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  name,
			Layout: kp.layout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: name,
			},
		})
		if err != nil {
			d.destroyAll()
			return fmt.Errorf("skylut/gpu: create compute pipeline for %s: %w", name, err)
		}

		slogger().Debug("skylut/gpu: kernel ready",
			"kernel", name,
			"workgroup", info.workgroup,
			"bindings", len(info.resources))
	}
	return nil
}

// layoutEntries maps reflected resources to bind group layout entries.
func (d *Dispatcher) layoutEntries(info *kernelInfo) []gputypes.BindGroupLayoutEntry {
	sampleType := gputypes.TextureSampleTypeUnfilterableFloat
	samplerType := gputypes.SamplerBindingTypeNonFiltering
	if d.linear {
		sampleType = gputypes.TextureSampleTypeFloat
		samplerType = gputypes.SamplerBindingTypeFiltering
	}

	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(info.resources))
	for _, r := range info.resources {
		e := gputypes.BindGroupLayoutEntry{
			Binding:    r.binding,
			Visibility: gputypes.ShaderStageCompute,
		}
		switch r.kind {
		case resourceStorageTexture:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        r.access,
				Format:        r.format,
				ViewDimension: r.dim,
			}
		case resourceSampledTexture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    sampleType,
				ViewDimension: r.dim,
			}
		case resourceSampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: samplerType}
		case resourceUniform:
			e.Buffer = &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: uint64(r.uniform.size),
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// WorkgroupSize implements skylut.Dispatcher.
func (d *Dispatcher) WorkgroupSize(kernel string) ([3]uint32, error) {
	k, err := d.prog.kernel(kernel)
	if err != nil {
		return [3]uint32{}, err
	}
	return k.workgroup, nil
}

// Dispatch implements skylut.Dispatcher. A dispatch with any zero group
// count records nothing.
func (d *Dispatcher) Dispatch(kernel string, b *skylut.Bindings, groups [3]uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	kp, ok := d.pipelines[kernel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKernel, kernel)
	}
	d.collectLocked()

	if groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		slogger().Debug("skylut/gpu: empty dispatch skipped", "kernel", kernel, "groups", groups)
		return nil
	}
	if b == nil {
		b = skylut.NewBindings()
	}

	p := pendingDispatch{}
	entries, err := d.bindGroupEntries(kp.info, b, &p)
	if err != nil {
		d.freeLocked(p)
		return fmt.Errorf("%s: %w", kernel, err)
	}

	p.bindGroup, err = d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   kernel + "_bg",
		Layout:  kp.bgLayout,
		Entries: entries,
	})
	if err != nil {
		d.freeLocked(p)
		return fmt.Errorf("skylut/gpu: create bind group for %s: %w", kernel, err)
	}

	if err := d.encode(kernel, kp, p.bindGroup, groups, &p); err != nil {
		d.freeLocked(p)
		return err
	}

	idx, err := d.queue.Submit([]hal.CommandBuffer{p.cmdBuf})
	if err != nil {
		d.freeLocked(p)
		return fmt.Errorf("skylut/gpu: submit %s: %w", kernel, err)
	}
	p.index = idx
	d.pending = append(d.pending, p)
	d.alloc.markSubmitted(idx)
	d.dispatches++

	slogger().Debug("skylut/gpu: dispatched",
		"kernel", kernel,
		"groups", groups,
		"submission", idx)
	return nil
}

// bindGroupEntries resolves every kernel resource from b. Uniform buffers
// created along the way are recorded in p.
func (d *Dispatcher) bindGroupEntries(info *kernelInfo, b *skylut.Bindings, p *pendingDispatch) ([]gputypes.BindGroupEntry, error) {
	entries := make([]gputypes.BindGroupEntry, 0, len(info.resources))
	for _, r := range info.resources {
		var res gputypes.BindingResource
		switch r.kind {
		case resourceStorageTexture, resourceSampledTexture:
			t, err := lookupTexture(b, r)
			if err != nil {
				return nil, err
			}
			res = gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}

		case resourceSampler:
			s, err := d.alloc.sampler(d.linear)
			if err != nil {
				return nil, err
			}
			res = gputypes.SamplerBinding{Sampler: s.NativeHandle()}

		case resourceUniform:
			data := r.uniform.encode(b)
			buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
				Label: r.name,
				Size:  uint64(len(data)),
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return nil, fmt.Errorf("skylut/gpu: create uniform buffer %s: %w", r.name, err)
			}
			p.uniforms = append(p.uniforms, buf)
			if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
				return nil, fmt.Errorf("skylut/gpu: write uniform buffer %s: %w", r.name, err)
			}
			res = gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: uint64(len(data))}
		}
		entries = append(entries, gputypes.BindGroupEntry{Binding: r.binding, Resource: res})
	}
	return entries, nil
}

// lookupTexture returns the texture bound for r and checks it against the
// kernel declaration.
func lookupTexture(b *skylut.Bindings, r resource) (*Texture, error) {
	bound, ok := b.Texture(r.name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnboundResource, r.name)
	}
	t, ok := bound.(*Texture)
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %s is %T", ErrForeignTexture, r.name, bound)
	}
	want3D := r.dim == gputypes.TextureViewDimension3D
	if t.desc.Is3D() != want3D {
		return nil, fmt.Errorf("%w: %s expects %s, got %s", ErrBindingMismatch, r.name, dimName(want3D), t.desc)
	}
	if r.kind == resourceStorageTexture && t.desc.Format != r.format {
		return nil, fmt.Errorf("%w: %s expects %s, got %s", ErrBindingMismatch, r.name, r.format, t.desc)
	}
	return t, nil
}

func dimName(is3D bool) string {
	if is3D {
		return "3D"
	}
	return "2D"
}

// encode records one compute pass into a new command buffer stored in p.
func (d *Dispatcher) encode(kernel string, kp *kernelPipeline, bg hal.BindGroup, groups [3]uint32, p *pendingDispatch) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: kernel,
	})
	if err != nil {
		return fmt.Errorf("skylut/gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(kernel); err != nil {
		return fmt.Errorf("skylut/gpu: begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: kernel})
	pass.SetPipeline(kp.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(groups[0], groups[1], groups[2])
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("skylut/gpu: end encoding: %w", err)
	}
	p.cmdBuf = cmdBuf
	return nil
}

// Pending returns the number of submissions whose transient objects have
// not been freed yet.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.collectLocked()
	return len(d.pending)
}

// Dispatches returns the number of submitted dispatches.
func (d *Dispatcher) Dispatches() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatches
}

// collectLocked frees the transient objects of completed submissions.
func (d *Dispatcher) collectLocked() {
	if len(d.pending) == 0 {
		return
	}
	completed := d.queue.PollCompleted()
	keep := d.pending[:0]
	for _, p := range d.pending {
		if p.index > completed {
			keep = append(keep, p)
			continue
		}
		d.freeLocked(p)
	}
	clear(d.pending[len(keep):])
	d.pending = keep
}

func (d *Dispatcher) freeLocked(p pendingDispatch) {
	if p.cmdBuf != nil {
		d.device.FreeCommandBuffer(p.cmdBuf)
	}
	if p.bindGroup != nil {
		d.device.DestroyBindGroup(p.bindGroup)
	}
	for _, buf := range p.uniforms {
		d.device.DestroyBuffer(buf)
	}
}

// destroyAll releases every pipeline object created so far.
func (d *Dispatcher) destroyAll() {
	for name, kp := range d.pipelines {
		if kp.pipeline != nil {
			d.device.DestroyComputePipeline(kp.pipeline)
		}
		if kp.layout != nil {
			d.device.DestroyPipelineLayout(kp.layout)
		}
		if kp.bgLayout != nil {
			d.device.DestroyBindGroupLayout(kp.bgLayout)
		}
		delete(d.pipelines, name)
	}
	if d.shader != nil {
		d.device.DestroyShaderModule(d.shader)
		d.shader = nil
	}
}

// Close waits for the device to go idle and releases all GPU objects.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if err := d.device.WaitIdle(); err != nil {
		slogger().Warn("skylut/gpu: wait idle before dispatcher release", "error", err)
	}
	for _, p := range d.pending {
		d.freeLocked(p)
	}
	d.pending = nil
	d.destroyAll()
	d.closed = true
}
