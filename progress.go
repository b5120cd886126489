// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import "github.com/chewxy/math32"

// NormalizeProgressPointer maps the progress interval [start, end] onto an
// axis of length groups and returns the half-open group range [xStart, xEnd).
//
// The interval is reordered so start <= end, both ends are clamped to [0, 1],
// scaled by length and rounded half away from zero. The result is symmetric:
// NormalizeProgressPointer(a, b, n) == NormalizeProgressPointer(b, a, n).
// Adjacent intervals sharing an endpoint map to adjacent ranges, so a
// contiguous partition of [0, 1] covers every group exactly once.
func NormalizeProgressPointer(start, end float32, length int) (xStart, xEnd int) {
	if end < start {
		start, end = end, start
	}
	start = clamp01(start)
	end = clamp01(end)
	n := float32(length)
	return int(math32.Round(n * start)), int(math32.Round(n * end))
}

// SplitRanges divides [0, 1] into parts equal progress intervals.
// parts below 1 is treated as 1.
func SplitRanges(parts int) [][2]float32 {
	if parts < 1 {
		parts = 1
	}
	out := make([][2]float32, parts)
	for i := range out {
		out[i] = [2]float32{float32(i) / float32(parts), float32(i+1) / float32(parts)}
	}
	out[parts-1][1] = 1
	return out
}

func clamp01(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Max(0, math32.Min(1, v))
}

// groupCount returns the number of workgroups of size wg needed to cover
// extent texels, rounding up.
func groupCount(extent int, wg uint32) uint32 {
	if extent <= 0 {
		return 0
	}
	if wg == 0 {
		wg = 1
	}
	return (uint32(extent) + wg - 1) / wg
}
