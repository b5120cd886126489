// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/skylut"
)

const testKernelSource = `
struct Params {
    size: vec2<i32>,
    order: i32,
    scale: f32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var src: texture_3d<f32>;
@group(0) @binding(2) var dst: texture_storage_2d<rgba16float, write>;
@group(0) @binding(3) var unused: texture_2d<f32>;

fn order() -> i32 {
    return params.order;
}

@compute @workgroup_size(4, 2, 1)
fn Main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let v = textureLoad(src, vec3<i32>(order(), 0, 0), 0);
    textureStore(dst, vec2<i32>(gid.xy), v * params.scale);
}

@compute @workgroup_size(1)
fn Other(@builtin(global_invocation_id) gid: vec3<u32>) {
    let v = textureLoad(unused, vec2<i32>(gid.xy), 0);
    textureStore(dst, vec2<i32>(gid.xy), v);
}
`

// loadKernels reads the full atmosphere kernel set shared by the tests.
func loadKernels(t *testing.T) string {
	t.Helper()
	src, err := os.ReadFile(filepath.Join("..", "..", "testdata", "atmosphere_kernels.wgsl"))
	if err != nil {
		t.Fatalf("read kernels: %v", err)
	}
	return string(src)
}

func TestParseProgram(t *testing.T) {
	p, err := parseProgram(testKernelSource)
	if err != nil {
		t.Fatalf("parseProgram: %v", err)
	}
	if len(p.kernels) != 2 {
		t.Fatalf("kernels = %d, want 2", len(p.kernels))
	}

	k, err := p.kernel("Main")
	if err != nil {
		t.Fatalf("kernel(Main): %v", err)
	}
	if k.workgroup != [3]uint32{4, 2, 1} {
		t.Errorf("workgroup = %v, want [4 2 1]", k.workgroup)
	}

	// unused is only referenced by Other; params.order only through order().
	want := []struct {
		name    string
		binding uint32
		kind    resourceKind
	}{
		{"params", 0, resourceUniform},
		{"src", 1, resourceSampledTexture},
		{"dst", 2, resourceStorageTexture},
	}
	if len(k.resources) != len(want) {
		t.Fatalf("resources = %d, want %d", len(k.resources), len(want))
	}
	for i, w := range want {
		r := k.resources[i]
		if r.name != w.name || r.binding != w.binding || r.kind != w.kind {
			t.Errorf("resource[%d] = {%s %d %d}, want {%s %d %d}",
				i, r.name, r.binding, r.kind, w.name, w.binding, w.kind)
		}
	}

	if got := k.resources[1].dim; got != gputypes.TextureViewDimension3D {
		t.Errorf("src dim = %v, want 3D", got)
	}
	dst := k.resources[2]
	if dst.dim != gputypes.TextureViewDimension2D {
		t.Errorf("dst dim = %v, want 2D", dst.dim)
	}
	if dst.format != gputypes.TextureFormatRGBA16Float {
		t.Errorf("dst format = %v, want RGBA16Float", dst.format)
	}
	if dst.access != gputypes.StorageTextureAccessWriteOnly {
		t.Errorf("dst access = %v, want WriteOnly", dst.access)
	}

	other, err := p.kernel("Other")
	if err != nil {
		t.Fatalf("kernel(Other): %v", err)
	}
	if other.workgroup != [3]uint32{1, 1, 1} {
		t.Errorf("Other workgroup = %v, want [1 1 1]", other.workgroup)
	}
	if len(other.resources) != 2 || other.resources[0].name != "dst" || other.resources[1].name != "unused" {
		t.Errorf("Other resources = %+v, want dst and unused", other.resources)
	}
}

func TestParseProgramUniformLayout(t *testing.T) {
	p, err := parseProgram(testKernelSource)
	if err != nil {
		t.Fatalf("parseProgram: %v", err)
	}
	k, _ := p.kernel("Main")
	l := k.resources[0].uniform
	if l == nil {
		t.Fatal("uniform layout is nil")
	}
	if l.size != 16 {
		t.Errorf("size = %d, want 16", l.size)
	}

	want := []uniformField{
		{name: "size", offset: 0, kind: ir.ScalarSint, count: 2},
		{name: "order", offset: 8, kind: ir.ScalarSint, count: 1},
		{name: "scale", offset: 12, kind: ir.ScalarFloat, count: 1},
	}
	if len(l.fields) != len(want) {
		t.Fatalf("fields = %d, want %d", len(l.fields), len(want))
	}
	for i, w := range want {
		if l.fields[i] != w {
			t.Errorf("field[%d] = %+v, want %+v", i, l.fields[i], w)
		}
	}
}

func TestParseProgramErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{
			name:    "syntax",
			src:     "fn broken( {",
			wantErr: nil,
		},
		{
			name: "bind group 1",
			src: `
@group(1) @binding(0) var dst: texture_storage_2d<rgba32float, write>;
@compute @workgroup_size(1)
fn Main(@builtin(global_invocation_id) gid: vec3<u32>) {
    textureStore(dst, vec2<i32>(gid.xy), vec4<f32>(1.0));
}`,
			wantErr: ErrUnsupportedResource,
		},
		{
			name: "integer texture",
			src: `
@group(0) @binding(0) var src: texture_2d<u32>;
@group(0) @binding(1) var dst: texture_storage_2d<rgba32float, write>;
@compute @workgroup_size(1)
fn Main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let v = textureLoad(src, vec2<i32>(gid.xy), 0);
    textureStore(dst, vec2<i32>(gid.xy), vec4<f32>(f32(v.x)));
}`,
			wantErr: ErrUnsupportedResource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProgram(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProgramUnknownKernel(t *testing.T) {
	p, err := parseProgram(testKernelSource)
	if err != nil {
		t.Fatalf("parseProgram: %v", err)
	}
	if _, err := p.kernel("Missing"); !errors.Is(err, ErrUnknownKernel) {
		t.Errorf("kernel(Missing) error = %v, want ErrUnknownKernel", err)
	}
}

func TestParseAtmosphereKernels(t *testing.T) {
	p, err := parseProgram(loadKernels(t))
	if err != nil {
		t.Fatalf("parseProgram: %v", err)
	}
	for _, name := range skylut.Kernels {
		t.Run(name, func(t *testing.T) {
			k, err := p.kernel(name)
			if err != nil {
				t.Fatalf("kernel: %v", err)
			}
			if k.workgroup[0] != 8 || k.workgroup[1] != 8 {
				t.Errorf("workgroup = %v, want 8x8", k.workgroup)
			}
			if len(k.resources) == 0 || k.resources[0].kind != resourceUniform {
				t.Fatalf("first resource is not the atmosphere uniform: %+v", k.resources)
			}
			if _, ok := fieldByName(k.resources[0].uniform, skylut.UniformThreadOffset); !ok {
				t.Errorf("uniform lacks %s", skylut.UniformThreadOffset)
			}
		})
	}

	k, _ := p.kernel(skylut.KernelScatteringSum)
	for _, r := range k.resources {
		if r.name == skylut.BindScatteringSumTarget && r.access != gputypes.StorageTextureAccessReadWrite {
			t.Errorf("%s access = %v, want ReadWrite", r.name, r.access)
		}
	}

	k, _ = p.kernel(skylut.KernelMultiScattering)
	var hasSampler bool
	for _, r := range k.resources {
		hasSampler = hasSampler || r.kind == resourceSampler
	}
	if !hasSampler {
		t.Errorf("%s does not reference the sampler", skylut.KernelMultiScattering)
	}
}

func fieldByName(l *uniformLayout, name string) (uniformField, bool) {
	for _, f := range l.fields {
		if f.name == name {
			return f, true
		}
	}
	return uniformField{}, false
}

func TestUniformEncode(t *testing.T) {
	l := &uniformLayout{
		size: 32,
		fields: []uniformField{
			{name: "size", offset: 0, kind: ir.ScalarSint, count: 2},
			{name: "order", offset: 8, kind: ir.ScalarUint, count: 1},
			{name: "scale", offset: 12, kind: ir.ScalarFloat, count: 1},
			{name: "coeff", offset: 16, kind: ir.ScalarFloat, count: 3},
			{name: "flag", offset: 28, kind: ir.ScalarBool, count: 1},
		},
	}
	b := skylut.NewBindings()
	b.SetInts("size", 256, -3)
	b.SetInt("order", 4)
	b.SetFloat("scale", 0.5)
	b.SetFloats("coeff", 1, 2) // third component stays zero
	// flag is unset

	buf := l.encode(b)
	if len(buf) != 32 {
		t.Fatalf("len = %d, want 32", len(buf))
	}
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(buf[off:]) }

	if got := int32(u32(0)); got != 256 {
		t.Errorf("size.x = %d, want 256", got)
	}
	if got := int32(u32(4)); got != -3 {
		t.Errorf("size.y = %d, want -3", got)
	}
	if got := u32(8); got != 4 {
		t.Errorf("order = %d, want 4", got)
	}
	if got := math.Float32frombits(u32(12)); got != 0.5 {
		t.Errorf("scale = %v, want 0.5", got)
	}
	if got := math.Float32frombits(u32(16)); got != 1 {
		t.Errorf("coeff.x = %v, want 1", got)
	}
	if got := math.Float32frombits(u32(20)); got != 2 {
		t.Errorf("coeff.y = %v, want 2", got)
	}
	if got := u32(24); got != 0 {
		t.Errorf("coeff.z = %#x, want 0", got)
	}
	if got := u32(28); got != 0 {
		t.Errorf("flag = %d, want 0", got)
	}
}

func TestScalarBits(t *testing.T) {
	tests := []struct {
		name string
		kind ir.ScalarKind
		v    float64
		want uint32
	}{
		{"sint rounds", ir.ScalarSint, 2.6, 3},
		{"sint negative", ir.ScalarSint, -1, 0xFFFFFFFF},
		{"uint clamps negative", ir.ScalarUint, -5, 0},
		{"bool true", ir.ScalarBool, 2, 1},
		{"bool false", ir.ScalarBool, 0, 0},
		{"float", ir.ScalarFloat, 1, 0x3F800000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scalarBits(tt.kind, tt.v); got != tt.want {
				t.Errorf("scalarBits = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestAlign16(t *testing.T) {
	for _, tc := range []struct{ in, want uint32 }{{0, 16}, {1, 16}, {16, 16}, {17, 32}, {100, 112}} {
		if got := align16(tc.in); got != tc.want {
			t.Errorf("align16(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
