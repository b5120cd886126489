// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import "fmt"

// StepKind identifies one stage of a LUT run.
type StepKind int

const (
	// StepTransmittance computes the transmittance LUT from Params alone.
	// Output: Transmittance (2D).
	StepTransmittance StepKind = iota

	// StepGroundDirectIrradiance computes order-0 ground irradiance.
	// Input: Transmittance. Output: GroundIrradiance[0].
	StepGroundDirectIrradiance

	// StepSingleScattering computes single rayleigh and mie scattering.
	// Input: Transmittance. Output: SingleRayleigh, SingleMie (3D).
	StepSingleScattering

	// StepGroundIrradiance computes ground irradiance of one scattering order.
	// Input: SingleRayleigh, SingleMie, MultiScattering[o]. Output: GroundIrradiance[o].
	StepGroundIrradiance

	// StepMultiScatteringDensity computes the scattering density of order o-1.
	// Input: Transmittance, SingleRayleigh, SingleMie, MultiScattering[o-1],
	// GroundIrradiance[o-2]. Output: the shared density volume.
	StepMultiScatteringDensity

	// StepMultiScattering integrates the density along view rays.
	// Input: Transmittance, density. Output: MultiScattering[o].
	StepMultiScattering

	// StepCombine sums MultiScattering[2..N] and GroundIrradiance[0..N].
	StepCombine

	// stepKindCount is the number of step kinds.
	stepKindCount
)

// String returns the step kind name.
func (k StepKind) String() string {
	switch k {
	case StepTransmittance:
		return "transmittance"
	case StepGroundDirectIrradiance:
		return "ground_direct_irradiance"
	case StepSingleScattering:
		return "single_scattering"
	case StepGroundIrradiance:
		return "ground_irradiance"
	case StepMultiScatteringDensity:
		return "multi_scattering_density"
	case StepMultiScattering:
		return "multi_scattering"
	case StepCombine:
		return "combine"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Splits holds the number of sub-ranges each step kind is divided into.
// A zero entry means 1. StepCombine is never split.
type Splits [stepKindCount]int

// parts returns the effective sub-range count for k.
func (s Splits) parts(k StepKind) int {
	if k == StepCombine || s[k] < 1 {
		return 1
	}
	return s[k]
}

// Step is one unit of work. Advance performs exactly one Step.
type Step struct {
	Kind StepKind

	// Order is the scattering order for per-order steps, 0 otherwise.
	Order int

	// Part is the sub-range index in [0, Parts).
	Part  int
	Parts int

	// Start and End bound the progress interval along the split axis.
	Start float32
	End   float32
}

// String returns a label such as "multi_scattering_density o=3 2/4".
func (s Step) String() string {
	label := s.Kind.String()
	if s.Order > 0 {
		label = fmt.Sprintf("%s o=%d", label, s.Order)
	}
	if s.Parts > 1 {
		label = fmt.Sprintf("%s %d/%d", label, s.Part+1, s.Parts)
	}
	return label
}

// buildPlan returns the ordered steps of one run for the given scattering
// order depth.
//
// The density volume is shared across orders: for each order the density
// step, every combine sub-range and the ground-irradiance step run before
// the next order's density step begins.
func buildPlan(orders int, splits Splits) []Step {
	var plan []Step
	add := func(kind StepKind, order int) {
		n := splits.parts(kind)
		for i, r := range SplitRanges(n) {
			plan = append(plan, Step{Kind: kind, Order: order, Part: i, Parts: n, Start: r[0], End: r[1]})
		}
	}

	add(StepTransmittance, 0)
	add(StepGroundDirectIrradiance, 0)
	add(StepSingleScattering, 0)
	add(StepGroundIrradiance, 1)
	for o := 2; o <= orders; o++ {
		add(StepMultiScatteringDensity, o)
		add(StepMultiScattering, o)
		add(StepGroundIrradiance, o)
	}
	add(StepCombine, 0)
	return plan
}
