// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package skylut precomputes atmospheric-scattering lookup tables on the GPU.
//
// # Overview
//
// skylut drives a fixed sequence of compute passes that build the textures a
// physically-based sky shader samples at render time: transmittance, single
// rayleigh and mie scattering, multiple scattering up to a configurable order,
// and ground irradiance. The work is split into steps so a host render loop
// can spread one full rebuild over many frames, and finished LUT sets are kept
// in a small ring so the renderer never samples a partially written set.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/skylut"
//		"github.com/gogpu/skylut/gpu"
//	)
//
//	backend, err := gpu.NewBackend(device, queue, kernelsWGSL)
//	if err != nil {
//		return err
//	}
//	defer backend.Close()
//
//	ring, err := skylut.NewRing(backend.Dispatcher(), backend.Allocator(),
//		skylut.DefaultLutConfig(), skylut.StaticParams(skylut.DefaultParams()),
//		skylut.WithCrossFade(true))
//	if err != nil {
//		return err
//	}
//	defer ring.Close()
//
//	// once per frame:
//	if err := ring.Tick(); err != nil {
//		return err
//	}
//	if set, ok := ring.Current(); ok {
//		// bind set.Transmittance, set.MultipleScattering, ...
//	}
//
// # Architecture
//
// The package is organized into:
//   - Params, LutConfig: physical constants and texture resolutions
//   - Updater: one pipeline instance, advanced one step at a time
//   - Ring: 2 or more Updaters rotated on completion, with an optional cross-fade
//   - Allocator, Dispatcher: GPU collaborators, implemented by package gpu
//
// The compute kernels themselves are supplied by the caller as WGSL. Kernels
// bind resources by name; see the Kernel* and Bind* constants for the names
// the pipeline uses.
package skylut

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"
)
