// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Size2D is a 2D texture resolution in texels.
type Size2D struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Size3D is a 3D texture resolution in texels.
type Size3D struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
	Depth  int `toml:"depth"`
}

// LutConfig holds the LUT resolutions. It is fixed for the lifetime of an
// Updater; a different config means a different set of textures.
type LutConfig struct {
	Transmittance Size2D `toml:"transmittance"`
	Scattering    Size3D `toml:"scattering"`
	Irradiance    Size2D `toml:"irradiance"`

	// Format is the texel format of every LUT. Only RGBA32Float and
	// RGBA16Float are supported.
	Format gputypes.TextureFormat `toml:"-"`
}

// DefaultLutConfig returns the reference resolutions: 512x512 transmittance,
// 32x32x128 scattering and 32x32 irradiance, all RGBA32Float.
func DefaultLutConfig() LutConfig {
	return LutConfig{
		Transmittance: Size2D{Width: 512, Height: 512},
		Scattering:    Size3D{Width: 32, Height: 32, Depth: 128},
		Irradiance:    Size2D{Width: 32, Height: 32},
		Format:        gputypes.TextureFormatRGBA32Float,
	}
}

// Validate checks that every dimension is positive and the format is supported.
// The returned error wraps ErrInvalidLutConfig.
func (c LutConfig) Validate() error {
	check := func(what string, dims ...int) error {
		for _, d := range dims {
			if d <= 0 {
				return fmt.Errorf("%w: %s size %v has a non-positive dimension", ErrInvalidLutConfig, what, dims)
			}
		}
		return nil
	}
	if err := check("transmittance", c.Transmittance.Width, c.Transmittance.Height); err != nil {
		return err
	}
	if err := check("scattering", c.Scattering.Width, c.Scattering.Height, c.Scattering.Depth); err != nil {
		return err
	}
	if err := check("irradiance", c.Irradiance.Width, c.Irradiance.Height); err != nil {
		return err
	}
	switch c.Format {
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA16Float:
	default:
		return fmt.Errorf("%w: unsupported format %s", ErrInvalidLutConfig, c.Format)
	}
	return nil
}

// Apply writes the resolution uniforms into b.
func (c LutConfig) Apply(b *Bindings) {
	b.SetInts(UniformTransmittanceSize, c.Transmittance.Width, c.Transmittance.Height)
	b.SetInts(UniformScatteringSize, c.Scattering.Width, c.Scattering.Height, c.Scattering.Depth)
	b.SetInts(UniformIrradianceSize, c.Irradiance.Width, c.Irradiance.Height)
}

func (c LutConfig) transmittanceDesc() TextureDesc {
	return TextureDesc{Name: nameTransmittance, Width: c.Transmittance.Width, Height: c.Transmittance.Height, Format: c.Format}
}

func (c LutConfig) scatteringDesc(name string) TextureDesc {
	return TextureDesc{Name: name, Width: c.Scattering.Width, Height: c.Scattering.Height, Depth: c.Scattering.Depth, Format: c.Format}
}

func (c LutConfig) irradianceDesc(name string) TextureDesc {
	return TextureDesc{Name: name, Width: c.Irradiance.Width, Height: c.Irradiance.Height, Format: c.Format}
}
