//go:build !fftw

package fourier

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// transform runs a 1D complex FFT along every line of every axis.
// Neither direction is normalised.
func transform(c *ComplexGrid, inverse bool) {
	for d, n := range c.dims {
		if n < 2 {
			continue
		}
		fft := fourier.NewCmplxFFT(n)
		stride := c.strides[d]
		in := make([]complex128, n)
		out := make([]complex128, n)

		for start := range c.Values {
			if (start/stride)%n != 0 {
				continue // not the first sample of a line along this axis
			}
			for k := 0; k < n; k++ {
				in[k] = c.Values[start+k*stride]
			}
			if inverse {
				fft.Sequence(out, in)
			} else {
				fft.Coefficients(out, in)
			}
			for k := 0; k < n; k++ {
				c.Values[start+k*stride] = out[k]
			}
		}
	}
}
