// Package lattice holds the small pieces of index arithmetic that every
// other package in this module needs to agree on: how a real-space index
// wraps to a signed wavenumber, where the Nyquist and cutoff boundaries
// fall, and how a coordinate reflects to its Hermitian-mirror position.
package lattice

import "fmt"

// WrapSigned maps a real-space/Fourier-space index i in [0, ppd) to its
// signed wavenumber, using index <= ppd/2 as positive and the rest as
// negative. ppd must be even; see AssertEven.
func WrapSigned(i, ppd int) int {
	if i > ppd/2 {
		return i - ppd
	}
	return i
}

// Reflect returns the mirrored coordinate ppd-i, except that the origin
// reflects onto itself. This is the "xHer"/"zHer" rule from the original
// Z-transform driver: every coordinate is mirrored except the one that
// sits on the ky=0/kz=0 axis.
func Reflect(i, ppd int) int {
	if i == 0 {
		return 0
	}
	return ppd - i
}

// NyquistIndex returns the effective Nyquist index for a given cutoff
// factor: floor(ppd/(2*cutoff) + 0.5). Modes whose |kx|, |ky|, or |kz|
// equal this value are zeroed regardless of the cutoff threshold test.
func NyquistIndex(ppd int, cutoff float64) int {
	return int(float64(ppd)/(2*cutoff) + 0.5)
}

// K2Index returns kx^2+ky^2+kz^2 in index units (no fundamental
// wavenumber factor applied).
func K2Index(kx, ky, kz int) int {
	return kx*kx + ky*ky + kz*kz
}

// K2Physical returns the squared physical wavenumber for (kx,ky,kz), using
// the fundamental wavenumber fundamental = 2*pi/boxsize.
func K2Physical(kx, ky, kz int, fundamental float64) float64 {
	k2 := float64(K2Index(kx, ky, kz))
	return k2 * fundamental * fundamental
}

// AssertEven panics if ppd is odd. The pass-1/pass-2 y-shift trick this
// module implements only makes sense for an even lattice side; the design
// explicitly declines to generalize it (see DESIGN.md).
func AssertEven(ppd int) {
	if ppd%2 != 0 {
		panic(fmt.Sprintf("lattice: ppd must be even, got %d", ppd))
	}
}

// WrapUnsigned folds a signed wavenumber k back onto an unsigned table
// index in [0, ppd), the inverse of WrapSigned.
func WrapUnsigned(k, ppd int) int {
	if k < 0 {
		return ppd + k
	}
	return k
}

// FoldPositiveZ folds an unsigned kz table index onto the +kz half-space
// index used by a real-FFT-shaped eigenmode table, i.e. ikz in [0, ppd/2].
func FoldPositiveZ(ikz, ppd int) int {
	if ikz > ppd/2 {
		return ppd - ikz
	}
	return ikz
}
