// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

// Kernel entry point names. A kernel program must export all eight as
// @compute entry points.
const (
	KernelTransmittance          = "CalculateTransmittanceLUT"
	KernelSingleScattering       = "CalculateSingleScatteringLUT"
	KernelGroundDirectIrradiance = "CalculateGroundDirectIrradianceLUT"
	KernelGroundIrradiance       = "CalculateGroundIndirectIrradianceLUT"
	KernelMultiScatteringDensity = "CalculateMultipleScatteringDensityLUT"
	KernelMultiScattering        = "CalculateMultipleScatteringLUT"
	KernelIrradianceSum          = "CombineGroundIrradianceLUT"
	KernelScatteringSum          = "CombineMultipleScatteringLUT"
)

// Kernels lists every entry point the pipeline dispatches, in step order.
var Kernels = []string{
	KernelTransmittance,
	KernelGroundDirectIrradiance,
	KernelSingleScattering,
	KernelGroundIrradiance,
	KernelMultiScatteringDensity,
	KernelMultiScattering,
	KernelIrradianceSum,
	KernelScatteringSum,
}

// Texture binding names. Kernels declare textures as WGSL globals with
// exactly these names.
const (
	BindTransmittanceResult          = "TransmittanceLUTResult"
	BindTransmittance                = "TransmittanceLUT"
	BindSingleRayleighResult         = "SingleScatteringRayleighLUTResult"
	BindSingleMieResult              = "SingleScatteringMieLUTResult"
	BindGroundDirectIrradianceResult = "GroundDirectIrradianceResult"
	BindSingleRayleigh               = "SingleRayleighScatteringLUT"
	BindSingleMie                    = "SingleMieScatteringLUT"
	BindMultiScattering              = "MultipleScatteringLUT"
	BindGroundIrradianceResult       = "GroundIndirectIrradianceResult"
	BindIrradiance                   = "IrradianceLUT"
	BindDensityResult                = "MultipleScatteringDensityResult"
	BindDensity                      = "MultipleScatteringDensityLUT"
	BindMultiScatteringResult        = "MultipleScatteringResult"
	BindScatteringSumTarget          = "ScatteringSumTarget"
	BindScatteringSumAdd             = "ScatteringSumAdd"
	BindIrradianceSumTarget          = "GroundIrradianceSumTarget"
	BindIrradianceSumAdd             = "GroundIrradianceSumAdder"
)

// Uniform names. Kernels declare these as members of a var<uniform> struct
// (or as standalone uniform globals).
const (
	UniformTransmittanceSize = "TransmittanceSize"
	UniformScatteringSize    = "ScatteringSize"
	UniformIrradianceSize    = "IrradianceSize"
	UniformThreadOffset      = "_ThreadOffset"
	UniformScatteringOrder   = "ScatteringOrder"

	UniformTopRadius             = "atmosphere_top_radius"
	UniformBottomRadius          = "atmosphere_bot_radius"
	UniformSunAngularRadius      = "atmosphere_sun_angular_radius"
	UniformRayleighScattering    = "rayleigh_scattering"
	UniformRayleighScaleHeight   = "rayleigh_scale_height"
	UniformMieScattering         = "mie_scattering"
	UniformMieExtinction         = "mie_extinction"
	UniformMieScaleHeight        = "mie_scale_height"
	UniformMiePhaseG             = "mie_phase_function_g"
	UniformAbsorptionExtinction  = "absorption_extinction"
	UniformAbsorptionScaleHeight = "absorption_extinction_scale_height"
)

// Texture names used as labels and cache identity.
const (
	nameTransmittance       = "Transmittance"
	nameSingleRayleigh      = "SingleRayleigh"
	nameSingleMie           = "SingleMie"
	nameDensity             = "MultiScatteringDensity"
	nameScatteringSum       = "Multiple Scattering Combined Final"
	nameIrradianceSum       = "Irradiance Combined Final"
	nameGroundIrradianceFmt = "Ground Irradiance Order %d"
	nameMultiScatteringFmt  = "MultiScattering %d"
)
