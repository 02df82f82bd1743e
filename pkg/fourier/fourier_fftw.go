//go:build fftw

package fourier

// Wraps the fftw3 library's complex DFT.
//
// In your OS, install a C buildchain and the FFTW3 dev library:
//  $ sudo apt-get install build-essential
//  $ sudo apt-get install libfftw3-dev
//
// If you run into precision issues, because your underlying C
// platform doesn't think a C 'double' is the same as a Golang
// float64, read https://www.fftw.org/fftw3_doc/Precision.html

// #cgo LDFLAGS: -lm -lfftw3
// #include <fftw3.h>
import "C"

import (
	"sync"
	"unsafe"
)

// Creation & destruction of plans is not thread safe in FFTW; execution is.
var planMu sync.Mutex

func transform(c *ComplexGrid, inverse bool) {
	// FFTW wants the slowest varying dimension first
	rank := len(c.dims)
	n := make([]C.int, rank)
	for d := range c.dims {
		n[rank-1-d] = C.int(c.dims[d])
	}

	size := len(c.Values)
	buf := (*C.fftw_complex)(C.fftw_malloc(C.size_t(size) * C.size_t(unsafe.Sizeof(complex128(0)))))
	defer C.fftw_free(unsafe.Pointer(buf))
	samples := unsafe.Slice((*complex128)(unsafe.Pointer(buf)), size)
	copy(samples, c.Values)

	sign := C.int(C.FFTW_FORWARD)
	if inverse {
		sign = C.int(C.FFTW_BACKWARD)
	}

	planMu.Lock()
	p := C.fftw_plan_dft(C.int(rank), &n[0], buf, buf, sign, C.FFTW_ESTIMATE)
	planMu.Unlock()

	C.fftw_execute(p)

	planMu.Lock()
	C.fftw_destroy_plan(p)
	planMu.Unlock()

	copy(c.Values, samples)
}
