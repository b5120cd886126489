// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

// LUTSet is the output of one completed run.
type LUTSet struct {
	Transmittance      Texture
	SingleRayleigh     Texture
	SingleMie          Texture
	MultipleScattering Texture
	Irradiance         Texture

	TransmittanceSize Size2D
	ScatteringSize    Size3D
	IrradianceSize    Size2D

	// Params is the snapshot the set was computed from.
	Params Params

	// Ordinal is the run number of the producing Updater, starting at 1.
	Ordinal uint64

	// Slot is the ID of the producing Updater.
	Slot int
}

// Binder receives completed LUT sets, typically to bind them to a sky
// material. The pipeline never hands a Binder a partially written set.
type Binder interface {
	// BindLUTs is called when a run completes, before the ring rotates.
	// previous is the set completed before current, or nil when cross-fade
	// is disabled or no earlier set exists.
	BindLUTs(current LUTSet, previous *LUTSet)

	// SetBlendWeight is called every tick with cross-fade enabled. Zero
	// selects previous, one selects current.
	SetBlendWeight(w float32)
}

// Material property names for a sky shader consuming a LUTSet.
const (
	MaterialTransmittance      = "_Transmittance"
	MaterialSingleRayleigh     = "_SingleRayleigh"
	MaterialSingleMie          = "_SingleMie"
	MaterialMultipleScattering = "_MultipleScattering"
	MaterialIrradiance         = "_Irradiance"
	MaterialTransmittanceSize  = "_TransmittanceSize"
	MaterialScatteringSize     = "_ScatteringSize"
	MaterialIrradianceSize     = "_IrradianceSize"
	MaterialLightScale         = "_LightScale"
)

// MaterialBindings returns the textures, resolutions and atmosphere uniforms
// of set under the sky material's property names.
func MaterialBindings(set LUTSet) *Bindings {
	b := NewBindings()
	b.SetTexture(MaterialTransmittance, set.Transmittance)
	b.SetTexture(MaterialSingleRayleigh, set.SingleRayleigh)
	b.SetTexture(MaterialSingleMie, set.SingleMie)
	b.SetTexture(MaterialMultipleScattering, set.MultipleScattering)
	b.SetTexture(MaterialIrradiance, set.Irradiance)
	b.SetFloats(MaterialTransmittanceSize, float32(set.TransmittanceSize.Width), float32(set.TransmittanceSize.Height))
	b.SetFloats(MaterialScatteringSize,
		float32(set.ScatteringSize.Width), float32(set.ScatteringSize.Height), float32(set.ScatteringSize.Depth))
	b.SetFloats(MaterialIrradianceSize, float32(set.IrradianceSize.Width), float32(set.IrradianceSize.Height))
	set.Params.Apply(b)
	b.SetFloat(MaterialLightScale, set.Params.LightingScale)
	return b
}
