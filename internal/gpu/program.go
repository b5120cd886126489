// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/skylut"
)

// Kernel program errors.
var (
	// ErrUnknownKernel is returned for a kernel name with no @compute entry point.
	ErrUnknownKernel = errors.New("skylut/gpu: unknown kernel")

	// ErrUnsupportedResource is returned for a WGSL global the dispatcher
	// cannot bind by name (buffers other than uniforms, arrayed or cube
	// textures, non-float formats, bind groups other than 0).
	ErrUnsupportedResource = errors.New("skylut/gpu: unsupported kernel resource")
)

// resourceKind classifies a kernel global.
type resourceKind int

const (
	resourceStorageTexture resourceKind = iota
	resourceSampledTexture
	resourceSampler
	resourceUniform
)

// resource is one @group(0) binding referenced by a kernel.
type resource struct {
	name    string
	binding uint32
	kind    resourceKind

	// Texture bindings.
	dim    gputypes.TextureViewDimension
	format gputypes.TextureFormat // storage textures only
	access gputypes.StorageTextureAccess

	// Uniform bindings.
	uniform *uniformLayout
}

// uniformField is one named scalar or vector inside a uniform block.
type uniformField struct {
	name   string
	offset uint32
	kind   ir.ScalarKind
	count  int
}

// uniformLayout describes the bytes of one uniform buffer.
type uniformLayout struct {
	size   uint32
	fields []uniformField
}

// kernelInfo is the reflected interface of one entry point.
type kernelInfo struct {
	name      string
	workgroup [3]uint32
	resources []resource // sorted by binding
}

// program is a parsed WGSL module with its kernels reflected.
type program struct {
	source  string
	kernels map[string]*kernelInfo
}

// parseProgram compiles WGSL source to naga IR and reflects every compute
// entry point.
func parseProgram(src string) (*program, error) {
	ast, err := naga.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("skylut/gpu: parse kernels: %w", err)
	}
	mod, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, fmt.Errorf("skylut/gpu: lower kernels: %w", err)
	}

	p := &program{source: src, kernels: make(map[string]*kernelInfo)}
	for i := range mod.EntryPoints {
		ep := &mod.EntryPoints[i]
		if ep.Stage != ir.StageCompute {
			continue
		}
		info, err := reflectKernel(mod, ep)
		if err != nil {
			return nil, fmt.Errorf("skylut/gpu: kernel %s: %w", ep.Name, err)
		}
		p.kernels[ep.Name] = info
	}
	return p, nil
}

// kernel returns the reflected entry point.
func (p *program) kernel(name string) (*kernelInfo, error) {
	k, ok := p.kernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	return k, nil
}

func reflectKernel(mod *ir.Module, ep *ir.EntryPoint) (*kernelInfo, error) {
	used := make(map[ir.GlobalVariableHandle]bool)
	visited := make(map[ir.FunctionHandle]bool)
	collectGlobals(mod, &ep.Function, used, visited)

	info := &kernelInfo{name: ep.Name, workgroup: ep.Workgroup}
	for h := range used {
		gv := &mod.GlobalVariables[h]
		if gv.Binding == nil {
			continue
		}
		if gv.Binding.Group != 0 {
			return nil, fmt.Errorf("%w: %s uses group %d", ErrUnsupportedResource, gv.Name, gv.Binding.Group)
		}
		r, err := reflectResource(mod, gv)
		if err != nil {
			return nil, err
		}
		info.resources = append(info.resources, r)
	}
	sort.Slice(info.resources, func(i, j int) bool {
		return info.resources[i].binding < info.resources[j].binding
	})
	return info, nil
}

// collectGlobals records every global referenced by fn and by the functions
// it calls.
func collectGlobals(mod *ir.Module, fn *ir.Function, used map[ir.GlobalVariableHandle]bool, visited map[ir.FunctionHandle]bool) {
	visit := func(h ir.FunctionHandle) {
		if visited[h] || int(h) >= len(mod.Functions) {
			return
		}
		visited[h] = true
		collectGlobals(mod, &mod.Functions[h], used, visited)
	}
	for _, e := range fn.Expressions {
		switch k := e.Kind.(type) {
		case ir.ExprGlobalVariable:
			used[k.Variable] = true
		case ir.ExprCallResult:
			visit(k.Function)
		}
	}
	walkCalls(fn.Body, visit)
}

// walkCalls calls visit for every function called from block.
func walkCalls(block []ir.Statement, visit func(ir.FunctionHandle)) {
	for _, s := range block {
		switch k := s.Kind.(type) {
		case ir.StmtCall:
			visit(k.Function)
		case ir.StmtBlock:
			walkCalls(k.Block, visit)
		case ir.StmtIf:
			walkCalls(k.Accept, visit)
			walkCalls(k.Reject, visit)
		case ir.StmtSwitch:
			for _, c := range k.Cases {
				walkCalls(c.Body, visit)
			}
		case ir.StmtLoop:
			walkCalls(k.Body, visit)
			walkCalls(k.Continuing, visit)
		}
	}
}

func reflectResource(mod *ir.Module, gv *ir.GlobalVariable) (resource, error) {
	r := resource{name: gv.Name, binding: gv.Binding.Binding}
	inner := mod.Types[gv.Type].Inner

	if gv.Space == ir.SpaceUniform {
		layout, err := reflectUniform(mod, gv.Name, inner)
		if err != nil {
			return r, err
		}
		r.kind = resourceUniform
		r.uniform = layout
		return r, nil
	}

	switch t := inner.(type) {
	case ir.SamplerType:
		if t.Comparison {
			return r, fmt.Errorf("%w: %s is a comparison sampler", ErrUnsupportedResource, gv.Name)
		}
		r.kind = resourceSampler
		return r, nil

	case ir.ImageType:
		if t.Arrayed || t.Multisampled {
			return r, fmt.Errorf("%w: %s is arrayed or multisampled", ErrUnsupportedResource, gv.Name)
		}
		switch t.Dim {
		case ir.Dim2D:
			r.dim = gputypes.TextureViewDimension2D
		case ir.Dim3D:
			r.dim = gputypes.TextureViewDimension3D
		default:
			return r, fmt.Errorf("%w: %s has dimension %d", ErrUnsupportedResource, gv.Name, t.Dim)
		}
		switch t.Class {
		case ir.ImageClassStorage:
			r.kind = resourceStorageTexture
			switch t.StorageFormat {
			case ir.StorageFormatRgba32Float:
				r.format = gputypes.TextureFormatRGBA32Float
			case ir.StorageFormatRgba16Float:
				r.format = gputypes.TextureFormatRGBA16Float
			default:
				return r, fmt.Errorf("%w: %s storage format %d", ErrUnsupportedResource, gv.Name, t.StorageFormat)
			}
			switch t.StorageAccess {
			case ir.StorageAccessRead:
				r.access = gputypes.StorageTextureAccessReadOnly
			case ir.StorageAccessWrite:
				r.access = gputypes.StorageTextureAccessWriteOnly
			default:
				r.access = gputypes.StorageTextureAccessReadWrite
			}
		case ir.ImageClassSampled:
			if t.SampledKind != ir.ScalarFloat {
				return r, fmt.Errorf("%w: %s is not a float texture", ErrUnsupportedResource, gv.Name)
			}
			r.kind = resourceSampledTexture
		default:
			return r, fmt.Errorf("%w: %s image class %d", ErrUnsupportedResource, gv.Name, t.Class)
		}
		return r, nil
	}
	return r, fmt.Errorf("%w: %s in address space %d", ErrUnsupportedResource, gv.Name, gv.Space)
}

// reflectUniform lays out a uniform global. A struct exposes its members by
// name; any other type is a single field named after the global.
func reflectUniform(mod *ir.Module, name string, inner ir.TypeInner) (*uniformLayout, error) {
	if st, ok := inner.(ir.StructType); ok {
		layout := &uniformLayout{size: align16(st.Span)}
		for _, m := range st.Members {
			kind, count, ok := scalarShape(mod.Types[m.Type].Inner)
			if !ok {
				return nil, fmt.Errorf("%w: uniform member %s.%s is not a scalar or vector",
					ErrUnsupportedResource, name, m.Name)
			}
			layout.fields = append(layout.fields, uniformField{name: m.Name, offset: m.Offset, kind: kind, count: count})
		}
		return layout, nil
	}
	kind, count, ok := scalarShape(inner)
	if !ok {
		return nil, fmt.Errorf("%w: uniform %s is not a struct, scalar or vector", ErrUnsupportedResource, name)
	}
	return &uniformLayout{
		size:   align16(uint32(4 * count)),
		fields: []uniformField{{name: name, kind: kind, count: count}},
	}, nil
}

// scalarShape returns the component kind and count of 32-bit scalars and vectors.
func scalarShape(inner ir.TypeInner) (ir.ScalarKind, int, bool) {
	switch t := inner.(type) {
	case ir.ScalarType:
		return t.Kind, 1, t.Width == 4 || t.Kind == ir.ScalarBool
	case ir.VectorType:
		return t.Scalar.Kind, int(t.Size), t.Scalar.Width == 4 || t.Scalar.Kind == ir.ScalarBool
	}
	return 0, 0, false
}

func align16(n uint32) uint32 {
	if n == 0 {
		return 16
	}
	return (n + 15) &^ 15
}

// encode packs the named uniform values of b into the layout. Fields b does
// not set are zero; components beyond a value's length are zero.
func (l *uniformLayout) encode(b *skylut.Bindings) []byte {
	buf := make([]byte, l.size)
	for _, f := range l.fields {
		u, ok := b.Uniform(f.name)
		if !ok {
			continue
		}
		for i := 0; i < f.count && i < u.Len; i++ {
			off := f.offset + uint32(4*i)
			binary.LittleEndian.PutUint32(buf[off:], scalarBits(f.kind, u.Values[i]))
		}
	}
	return buf
}

// scalarBits converts v to the 32-bit representation of kind.
func scalarBits(kind ir.ScalarKind, v float64) uint32 {
	switch kind {
	case ir.ScalarSint:
		return uint32(int32(math.Round(v)))
	case ir.ScalarUint:
		if v < 0 {
			return 0
		}
		return uint32(math.Round(v))
	case ir.ScalarBool:
		if v != 0 {
			return 1
		}
		return 0
	default:
		return math.Float32bits(float32(v))
	}
}
