// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Uniform is up to four numeric components bound by name. The dispatcher
// converts each component to the scalar kind the kernel declares.
type Uniform struct {
	Values [4]float64
	Len    int
}

// Bindings is a named set of textures and uniform values handed to a
// Dispatcher. Setting a name again replaces the previous value.
//
// The zero value is ready to use.
type Bindings struct {
	textures map[string]Texture
	uniforms map[string]Uniform
}

// NewBindings returns an empty binding set.
func NewBindings() *Bindings {
	return &Bindings{}
}

// Reset removes all bindings, keeping the allocated maps.
func (b *Bindings) Reset() {
	clear(b.textures)
	clear(b.uniforms)
}

// SetTexture binds t to name. A nil t removes the binding.
func (b *Bindings) SetTexture(name string, t Texture) {
	if t == nil {
		delete(b.textures, name)
		return
	}
	if b.textures == nil {
		b.textures = make(map[string]Texture)
	}
	b.textures[name] = t
}

// SetInt binds a single integer.
func (b *Bindings) SetInt(name string, v int) {
	b.SetInts(name, v)
}

// SetInts binds up to four integers. Extra values are dropped.
func (b *Bindings) SetInts(name string, vs ...int) {
	var u Uniform
	for i, v := range vs {
		if i == len(u.Values) {
			break
		}
		u.Values[i] = float64(v)
		u.Len++
	}
	b.setUniform(name, u)
}

// SetFloat binds a single float.
func (b *Bindings) SetFloat(name string, v float32) {
	b.SetFloats(name, v)
}

// SetFloats binds up to four floats. Extra values are dropped.
func (b *Bindings) SetFloats(name string, vs ...float32) {
	var u Uniform
	for i, v := range vs {
		if i == len(u.Values) {
			break
		}
		u.Values[i] = float64(v)
		u.Len++
	}
	b.setUniform(name, u)
}

// SetVec3 binds a three component vector.
func (b *Bindings) SetVec3(name string, v mgl32.Vec3) {
	b.SetFloats(name, v[0], v[1], v[2])
}

func (b *Bindings) setUniform(name string, u Uniform) {
	if b.uniforms == nil {
		b.uniforms = make(map[string]Uniform)
	}
	b.uniforms[name] = u
}

// Texture returns the texture bound to name.
func (b *Bindings) Texture(name string) (Texture, bool) {
	t, ok := b.textures[name]
	return t, ok
}

// Uniform returns the uniform bound to name.
func (b *Bindings) Uniform(name string) (Uniform, bool) {
	u, ok := b.uniforms[name]
	return u, ok
}

// TextureNames returns the bound texture names in sorted order.
func (b *Bindings) TextureNames() []string {
	names := make([]string, 0, len(b.textures))
	for n := range b.textures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
