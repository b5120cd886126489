// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// TextureDesc identifies a LUT texture for caching. Two textures with equal
// descriptors are interchangeable.
type TextureDesc struct {
	Name   string
	Width  int
	Height int
	// Depth is 0 for 2D textures and the slice count for 3D textures.
	Depth  int
	Format gputypes.TextureFormat
}

// Is3D reports whether the descriptor names a volume texture.
func (d TextureDesc) Is3D() bool { return d.Depth > 0 }

// Extent returns width, height and depth, with depth 1 for 2D textures.
func (d TextureDesc) Extent() [3]int {
	depth := d.Depth
	if depth <= 0 {
		depth = 1
	}
	return [3]int{d.Width, d.Height, depth}
}

// String returns a compact description such as "Transmittance 512x512 RGBA32Float".
func (d TextureDesc) String() string {
	if d.Is3D() {
		return fmt.Sprintf("%s %dx%dx%d %s", d.Name, d.Width, d.Height, d.Depth, d.Format)
	}
	return fmt.Sprintf("%s %dx%d %s", d.Name, d.Width, d.Height, d.Format)
}

// Texture is a GPU texture owned by one Updater.
type Texture interface {
	// ID is unique per allocation. A texture that was reused keeps its ID;
	// a reallocated texture gets a new one.
	ID() uint64

	// Desc returns the descriptor the texture was allocated with.
	Desc() TextureDesc
}

// Allocator creates and recreates LUT textures.
type Allocator interface {
	// Ensure returns cur unchanged when it already matches desc and
	// forceReplace is false. Otherwise it releases cur (when non-nil) and
	// allocates new storage. On error the returned texture is nil and cur
	// has already been released, unless cur did not come from this
	// allocator: such a texture is rejected and left untouched.
	Ensure(cur Texture, desc TextureDesc, forceReplace bool) (Texture, error)

	// Release destroys the texture's storage. Releasing nil is a no-op.
	Release(t Texture)
}

// Dispatcher issues compute work.
type Dispatcher interface {
	// Dispatch binds every resource kernel references from b and records one
	// dispatch of the given group counts. It does not wait for the GPU.
	Dispatch(kernel string, b *Bindings, groups [3]uint32) error

	// WorkgroupSize returns the @workgroup_size declared by kernel.
	WorkgroupSize(kernel string) ([3]uint32, error)
}
