// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu implements the skylut Allocator and Dispatcher on a wgpu HAL
// device.
//
// This is an internal package used by skylut/gpu. It runs the LUT precompute
// kernels as WGSL compute shaders via the gogpu/wgpu Pure Go WebGPU
// implementation (zero CGO), which supports Vulkan, Metal, and DX12
// backends depending on the platform.
//
// # Architecture Overview
//
//	Bindings -> Dispatcher (reflect, bind, encode) -> Queue.Submit
//	                 |
//	                 +-> Allocator (textures, samplers, deferred destroy)
//
// Key components:
//
//   - Allocator: LUT texture lifetimes within a memory budget
//   - Dispatcher: one compute pipeline per kernel entry point
//   - program: naga reflection of the kernel source
//
// # Name-Based Binding
//
// Kernel resources are matched to skylut.Bindings by the WGSL global
// variable name, not by binding index. The reflected layout of the uniform
// struct decides how each named value is encoded. A kernel only binds the
// globals it reaches, including through helper functions.
//
// # Texture Lifetimes
//
// Released textures are destroyed once the queue reports that the last
// submission that could reference them has completed. Per-dispatch uniform
// buffers and bind groups follow the same rule.
//
// # Thread Safety
//
// Allocator and Dispatcher are safe for concurrent use.
package gpu
