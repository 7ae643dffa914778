// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ppmslab

// Linspace returns n evenly spaced values from a to b inclusive.
func Linspace(a, b float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{a}
	}
	v := make([]float64, n)
	step := (b - a) / float64(n-1)
	for i := range v {
		v[i] = a + float64(i)*step
	}
	v[n-1] = b
	return v
}

// HysteresisLoop returns 0→max, max→-max, -max→max with n points per leg.
// Leg endpoints are repeated, as the switching measurements expect.
func HysteresisLoop(max float64, n int) []float64 {
	v := Linspace(0, max, n)
	v = append(v, Linspace(max, -max, n)...)
	return append(v, Linspace(-max, max, n)...)
}
