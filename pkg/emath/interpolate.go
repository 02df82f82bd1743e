package emath

import "math"

// NearestAt samples the grid at a real-valued position, rounding to
// the closest sample. Positions outside the grid read as zero.
func (g *FloatGrid)NearestAt(p []float64) float64 {
	idx := 0
	for d, v := range p {
		i := int(math.Floor(v + 0.5))
		if i < 0 || i >= g.dims[d] {
			return 0
		}
		idx += i * g.strides[d]
	}
	return g.values[idx]
}

// LinearAt samples the grid with n-linear interpolation over the 2^d
// surrounding samples. Neighbours outside the grid read as zero.
func (g *FloatGrid)LinearAt(p []float64) float64 {
	n := len(g.dims)
	var base [3]int
	var frac [3]float64
	for d := 0; d < n; d++ {
		f := math.Floor(p[d])
		base[d] = int(f)
		frac[d] = p[d] - f
	}

	sum := 0.0
	for corner := 0; corner < 1<<n; corner++ {
		w := 1.0
		idx := 0
		inside := true
		for d := 0; d < n; d++ {
			i := base[d]
			if corner&(1<<d) != 0 {
				i++
				w *= frac[d]
			} else {
				w *= 1 - frac[d]
			}
			if i < 0 || i >= g.dims[d] {
				inside = false
				break
			}
			idx += i * g.strides[d]
		}
		if inside && w != 0 {
			sum += w * g.values[idx]
		}
	}
	return sum
}
