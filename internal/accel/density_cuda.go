//go:build cuda

package accel

/*
#cgo LDFLAGS: -L${SRCDIR} -lkernel -L/usr/local/cuda/lib64 -lcudart
#include "bindings.h"
*/
import "C"
import "log"

// nearestPoseDistanceHardware offloads the nearest-neighbor pose scan to
// an Nvidia GPU, for desk-mounted rigs built against a discrete GPU rather
// than a handheld device: convert Go slices to flat C arrays, cross the
// boundary once, convert back.
func nearestPoseDistanceHardware(query [3]float64, history [][3]float64) float64 {
	n := len(history)
	if n == 0 {
		return 1.0
	}

	flat := make([]C.double, n*3)
	for i, p := range history {
		flat[i*3+0] = C.double(p[0])
		flat[i*3+1] = C.double(p[1])
		flat[i*3+2] = C.double(p[2])
	}

	log.Printf("[accel][CUDA] offloading nearest-neighbor scan over %d poses to GPU", n)

	dist := C.NearestPoseDistanceCUDA(
		C.double(query[0]), C.double(query[1]), C.double(query[2]),
		(*C.double)(&flat[0]), C.int(n),
	)
	return float64(dist)
}
