// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Reference spectral coefficients at sea level for the three color channels.
var (
	// EarthRayleighScattering is the rayleigh scattering coefficient in 1/m.
	EarthRayleighScattering = mgl32.Vec3{5.8, 13.5, 33.1}.Mul(1e-6)

	// EarthOzoneAbsorption is the ozone absorption extinction in 1/m.
	EarthOzoneAbsorption = mgl32.Vec3{3.426, 8.298, 0.356}.Mul(6e-7)
)

const (
	// EarthMieScattering is the mie scattering coefficient in 1/m.
	EarthMieScattering float32 = 2e-6

	// mieExtinctionRatio is extinction over scattering for the default aerosol.
	mieExtinctionRatio float32 = 1.1
)

// Params is a snapshot of the physical atmosphere constants.
//
// Params is a plain value. Updaters copy it when a run starts, so the caller
// may keep editing its own copy while a run is in flight.
type Params struct {
	// TopRadius is the radius of the top of the atmosphere in meters.
	TopRadius float32 `toml:"top_radius"`

	// BottomRadius is the planet radius in meters.
	BottomRadius float32 `toml:"bottom_radius"`

	// SunAngularRadius is the apparent sun radius in degrees.
	SunAngularRadius float32 `toml:"sun_angular_radius"`

	// RayleighScattering is the per-channel rayleigh scattering coefficient (1/m).
	RayleighScattering mgl32.Vec3 `toml:"rayleigh_scattering"`

	// RayleighScaleHeight is the rayleigh density scale height in meters.
	RayleighScaleHeight float32 `toml:"rayleigh_scale_height"`

	// MieScattering is the mie scattering coefficient (1/m).
	MieScattering float32 `toml:"mie_scattering"`

	// MieExtinction is the mie extinction coefficient (1/m).
	MieExtinction float32 `toml:"mie_extinction"`

	// MieScaleHeight is the mie density scale height in meters.
	MieScaleHeight float32 `toml:"mie_scale_height"`

	// MiePhaseG is the Cornette-Shanks asymmetry parameter, in (-1, 1).
	MiePhaseG float32 `toml:"mie_phase_g"`

	// AbsorptionExtinction is the per-channel ozone extinction (1/m).
	AbsorptionExtinction mgl32.Vec3 `toml:"absorption_extinction"`

	// AbsorptionScaleHeight is the absorption layer scale height in meters.
	AbsorptionScaleHeight float32 `toml:"absorption_scale_height"`

	// Density scales every scattering and extinction coefficient.
	Density float32 `toml:"density"`

	// LightingScale is the sun intensity multiplier handed to the consumer.
	LightingScale float32 `toml:"lighting_scale"`
}

// DefaultParams returns the reference atmosphere.
func DefaultParams() Params {
	return Params{
		TopRadius:             6.36e7 + 6e4,
		BottomRadius:          6.36e7,
		SunAngularRadius:      5,
		RayleighScattering:    EarthRayleighScattering,
		RayleighScaleHeight:   8000,
		MieScattering:         EarthMieScattering,
		MieExtinction:         EarthMieScattering * mieExtinctionRatio,
		MieScaleHeight:        1200,
		MiePhaseG:             0.95,
		AbsorptionExtinction:  EarthOzoneAbsorption,
		AbsorptionScaleHeight: 8000,
		Density:               1,
		LightingScale:         2 * math32.Pi,
	}
}

// Validate reports whether p satisfies the atmosphere invariants.
// The returned error wraps ErrInvalidParams.
func (p Params) Validate() error {
	switch {
	case !positive(p.BottomRadius):
		return fmt.Errorf("%w: bottom radius %v must be > 0", ErrInvalidParams, p.BottomRadius)
	case !positive(p.TopRadius):
		return fmt.Errorf("%w: top radius %v must be > 0", ErrInvalidParams, p.TopRadius)
	case p.TopRadius <= p.BottomRadius:
		return fmt.Errorf("%w: top radius %v must exceed bottom radius %v",
			ErrInvalidParams, p.TopRadius, p.BottomRadius)
	case !positive(p.RayleighScaleHeight):
		return fmt.Errorf("%w: rayleigh scale height %v must be > 0", ErrInvalidParams, p.RayleighScaleHeight)
	case !positive(p.MieScaleHeight):
		return fmt.Errorf("%w: mie scale height %v must be > 0", ErrInvalidParams, p.MieScaleHeight)
	case !positive(p.AbsorptionScaleHeight):
		return fmt.Errorf("%w: absorption scale height %v must be > 0", ErrInvalidParams, p.AbsorptionScaleHeight)
	case !finite(p.MiePhaseG) || p.MiePhaseG <= -1 || p.MiePhaseG >= 1:
		return fmt.Errorf("%w: mie phase g %v must be in (-1, 1)", ErrInvalidParams, p.MiePhaseG)
	case !nonNegative(p.SunAngularRadius):
		return fmt.Errorf("%w: sun angular radius %v must be >= 0", ErrInvalidParams, p.SunAngularRadius)
	case !nonNegative(p.Density), !nonNegative(p.LightingScale),
		!nonNegative(p.MieScattering), !nonNegative(p.MieExtinction):
		return fmt.Errorf("%w: multipliers and mie coefficients must be finite and >= 0", ErrInvalidParams)
	}
	for i := 0; i < 3; i++ {
		if !nonNegative(p.RayleighScattering[i]) || !nonNegative(p.AbsorptionExtinction[i]) {
			return fmt.Errorf("%w: spectral coefficients must be finite and >= 0", ErrInvalidParams)
		}
	}
	return nil
}

// Apply writes the kernel uniform values derived from p into b.
// Scattering and extinction coefficients are scaled by Density.
func (p Params) Apply(b *Bindings) {
	b.SetFloat(UniformTopRadius, p.TopRadius)
	b.SetFloat(UniformBottomRadius, p.BottomRadius)
	b.SetFloat(UniformSunAngularRadius, p.SunAngularRadius)
	b.SetVec3(UniformRayleighScattering, p.RayleighScattering.Mul(p.Density))
	b.SetFloat(UniformRayleighScaleHeight, p.RayleighScaleHeight)
	b.SetFloat(UniformMieScattering, p.Density*p.MieScattering)
	b.SetFloat(UniformMieExtinction, p.Density*p.MieExtinction)
	b.SetFloat(UniformMieScaleHeight, p.MieScaleHeight)
	b.SetFloat(UniformMiePhaseG, p.MiePhaseG)
	b.SetVec3(UniformAbsorptionExtinction, p.AbsorptionExtinction.Mul(p.Density))
	b.SetFloat(UniformAbsorptionScaleHeight, p.AbsorptionScaleHeight)
}

func finite(v float32) bool { return !math32.IsNaN(v) && !math32.IsInf(v, 0) }

func positive(v float32) bool { return finite(v) && v > 0 }

func nonNegative(v float32) bool { return finite(v) && v >= 0 }
