// Package powerspec is the external PowerSpectrum oracle that spec.md
// treats as an out-of-scope collaborator: it loads the two-column P(k)
// text table, exposes a spline evaluator, the sigma_R integral used for
// the shutdown diagnostic, and the per-row complex Gaussian draw that the
// mode synthesizer consumes. It is implemented in full here because a
// complete, runnable repository needs a concrete loader, grounded on the
// teacher's own two-column table reader and spline interpolator.
package powerspec

import (
	"fmt"
	"math"

	"github.com/phil-mansfield/table"

	zrand "github.com/abacus-sims/zeldovich-ic/internal/rand"
)

// Stream is a loaded P(k) table together with the global seed used to
// derive per-row Gaussian sub-streams.
type Stream struct {
	sp       *spline
	kmin, kmax float64
	seed     int64
}

// Load parses a two-column (k, P(k)) text table, matching the format
// spec.md §6 assigns to Pk_filename, using the same column-table reader
// the teacher uses for halo catalogs (render/halo/io.go).
func Load(path string, seed int64) (*Stream, error) {
	cols, err := table.ReadTable(path, []int{0, 1}, nil)
	if err != nil {
		return nil, fmt.Errorf("powerspec: could not read %q: %w", path, err)
	}
	if len(cols) != 2 {
		return nil, fmt.Errorf("powerspec: expected 2 columns in %q, got %d", path, len(cols))
	}

	ks, ps := cols[0], cols[1]
	sp, err := newSpline(ks, ps)
	if err != nil {
		return nil, fmt.Errorf("powerspec: %q: %w", path, err)
	}

	return &Stream{sp: sp, kmin: ks[0], kmax: ks[len(ks)-1], seed: seed}, nil
}

// PAt evaluates the spline-interpolated power spectrum at k.
func (s *Stream) PAt(k float64) (float64, error) {
	return s.sp.eval(k)
}

// Bounds returns the k range the underlying table covers.
func (s *Stream) Bounds() (kmin, kmax float64) {
	return s.kmin, s.kmax
}

// RowSource returns the complex-Gaussian draw source for one absolute
// y-row. The mode synthesizer calls RowSource once per row (inside the
// single goroutine that owns that row) and reuses it for every (kx,ky,kz)
// triple visited while processing that row.
func (s *Stream) RowSource(row int) *RowSource {
	return &RowSource{sp: s.sp, rs: zrand.NewRowStream(s.seed, row)}
}

// RowSource draws complex Gaussian amplitudes for a single row, with
// variance set by the power spectrum evaluated at the draw's |k|.
type RowSource struct {
	sp *spline
	rs *zrand.RowStream
}

// Gaussian returns the complex draw D with E[|D|^2] = P(kmag), keyed so
// that the same (kmag, row) always returns the identical value under a
// fixed seed — the oversampling contract from spec.md §5.
func (r *RowSource) Gaussian(kmag float64) (complex128, error) {
	p, err := r.sp.eval(kmag)
	if err != nil {
		return 0, err
	}
	if p < 0 {
		return 0, fmt.Errorf("powerspec: P(k) evaluated negative (%g) at k=%g", p, kmag)
	}
	return r.rs.Gaussian(kmag, p), nil
}

// SigmaR computes sigma(R), the rms density fluctuation smoothed with a
// top-hat window of radius R: sigma^2(R) = (1/2pi^2) integral P(k) W(kR)^2
// k^2 dk, via Simpson's rule over the table's covered k range.
func (s *Stream) SigmaR(r float64) (float64, error) {
	const steps = 2048 // even, required by Simpson's rule
	kmin, kmax := s.kmin, s.kmax
	if kmin <= 0 {
		kmin = (kmax - s.kmin) / float64(steps) // avoid k=0 singularity in W
		if kmin <= 0 {
			kmin = 1e-6
		}
	}

	h := (kmax - kmin) / float64(steps)
	integrand := func(k float64) (float64, error) {
		p, err := s.sp.eval(k)
		if err != nil {
			return 0, err
		}
		w := topHatWindow(k * r)
		return p * w * w * k * k, nil
	}

	sum := 0.0
	for i := 0; i <= steps; i++ {
		k := kmin + float64(i)*h
		v, err := integrand(k)
		if err != nil {
			return 0, err
		}
		switch {
		case i == 0 || i == steps:
			sum += v
		case i%2 == 1:
			sum += 4 * v
		default:
			sum += 2 * v
		}
	}
	integral := sum * h / 3

	return math.Sqrt(integral / (2 * math.Pi * math.Pi)), nil
}

// topHatWindow is the Fourier transform of a real-space top-hat filter of
// radius R evaluated at x = kR.
func topHatWindow(x float64) float64 {
	if x < 1e-6 {
		return 1 - x*x/10 // small-x expansion, avoids 0/0
	}
	return 3 * (math.Sin(x) - x*math.Cos(x)) / (x * x * x)
}
