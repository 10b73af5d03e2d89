// Package eigenmode loads the particle-linear-theory (PLT) eigenvector
// table and exposes the shape-vector lookup the mode synthesizer needs:
// a trilinear interpolation of the table's 4 doubles (unit eigenvector
// plus eigenvalue) onto arbitrary integer lattice indices of the working
// PPD grid, plus the plain Zel'dovich k-hat shape vector used when PLT is
// off. The two are exposed behind one ShapeProvider interface so that
// internal/synth never branches on the PLT flag itself — the dynamic
// dispatch replaces the original's PLT-vs-standard branches per spec.md
// §9's design note.
package eigenmode

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/abacus-sims/zeldovich-ic/internal/lattice"
)

// Table is a loaded PLT eigenmode grid of side E, storing, for every
// (ikx, iky, ikz) in the +kz half-space, a unit eigenvector and scalar
// eigenvalue.
type Table struct {
	e     int
	halfE int
	data  []float64 // flat [ikx][iky][ikz][component], component in {ex,ey,ez,alpha}
}

// Load reads the little-endian binary eigenmode file described in
// spec.md §6: a 32-bit signed E, followed by E*E*(E/2+1)*4 float64s.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eigenmode: could not open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("eigenmode: could not stat %q: %w", path, err)
	}

	var e int32
	if err := binary.Read(f, binary.LittleEndian, &e); err != nil {
		return nil, fmt.Errorf("eigenmode: could not read header of %q: %w", path, err)
	}
	if e <= 0 {
		return nil, fmt.Errorf("eigenmode: %q declares non-positive E=%d", path, e)
	}

	halfE := int(e)/2 + 1
	n := int(e) * int(e) * halfE * 4
	wantSize := int64(4) + int64(n)*8
	if info.Size() != wantSize {
		return nil, fmt.Errorf(
			"eigenmode: %q is %d bytes, expected %d bytes for E=%d",
			path, info.Size(), wantSize, e,
		)
	}

	data := make([]float64, n)
	if err := binary.Read(f, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("eigenmode: short read on %q: %w", path, err)
	}

	return &Table{e: int(e), halfE: halfE, data: data}, nil
}

func (t *Table) at(ikx, iky, ikz, comp int) float64 {
	idx := ((ikx*t.e+iky)*t.halfE+ikz)*4 + comp
	return t.data[idx]
}

// interp performs the trilinear interpolation of spec.md §4.2 for
// component comp at integer PPD-grid indices (ikx, iky, ikz), where ikz
// is already folded into the table's +kz half-space.
func (t *Table) interp(ikx, iky, ikz, comp, ppd int) float64 {
	if t.e%ppd == 0 {
		scale := t.e / ppd
		return t.at(ikx*scale, iky*scale, ikz*scale, comp)
	}

	fx := float64(t.e) / float64(ppd) * float64(ikx)
	fy := float64(t.e) / float64(ppd) * float64(iky)
	fz := float64(t.e) / float64(ppd) * float64(ikz)

	half := float64(t.e) / 2
	fx = snapNyquist(fx, half)
	fy = snapNyquist(fy, half)
	fz = snapNyquist(fz, half)

	ikxL, ikxH := splitIndex(fx, t.e)
	ikyL, ikyH := splitIndex(fy, t.e)
	ikzL, ikzH := splitIndex(fz, t.e)
	// The table only stores the +kz half-space; a fold-to-zero wrap would
	// be physically wrong there, and cannot be reached with a nonzero
	// weight since ikz arrives already folded into [0, ppd/2].
	if ikzH >= t.halfE {
		ikzH = ikzL
	}

	fx -= float64(ikxL)
	fy -= float64(ikyL)
	fz -= float64(ikzL)

	w := [8]float64{
		(1 - fx) * (1 - fy) * (1 - fz),
		(1 - fx) * (1 - fy) * fz,
		(1 - fx) * fy * (1 - fz),
		(1 - fx) * fy * fz,
		fx * (1 - fy) * (1 - fz),
		fx * (1 - fy) * fz,
		fx * fy * (1 - fz),
		fx * fy * fz,
	}

	return w[0]*t.at(ikxL, ikyL, ikzL, comp) + w[1]*t.at(ikxL, ikyL, ikzH, comp) +
		w[2]*t.at(ikxL, ikyH, ikzL, comp) + w[3]*t.at(ikxL, ikyH, ikzH, comp) +
		w[4]*t.at(ikxH, ikyL, ikzL, comp) + w[5]*t.at(ikxH, ikyL, ikzH, comp) +
		w[6]*t.at(ikxH, ikyH, ikzL, comp) + w[7]*t.at(ikxH, ikyH, ikzH, comp)
}

// snapNyquist implements the "don't interpolate across the Nyquist
// discontinuity" rule: fractional indices strictly between E/2 and E/2+1
// are snapped up to the next integer instead of blended.
func snapNyquist(f, half float64) float64 {
	if f > half && f < half+1 {
		return math.Floor(f + 1)
	}
	return f
}

// splitIndex returns the lower and upper integer corners bracketing f,
// wrapping the upper corner back to 0 for periodic closure.
func splitIndex(f float64, e int) (lo, hi int) {
	lo = int(f)
	hi = lo + 1
	if hi == e {
		hi = 0
	}
	return lo, hi
}

// ShapeProvider supplies the shape-vector e(k) and scalar eigenvalue
// alpha(k) the mode synthesizer needs; see spec.md §4.1 step 3.
type ShapeProvider interface {
	Shape(kx, ky, kz, ppd int) (vec [3]float64, alpha float64)
}

// Standard is the plain Zel'dovich shape-vector provider: e(k) = k, with
// eigenvalue 1 (so that the PLT growth-factor formulas reduce to their
// non-PLT limit).
type Standard struct{}

func (Standard) Shape(kx, ky, kz, ppd int) ([3]float64, float64) {
	return [3]float64{float64(kx), float64(ky), float64(kz)}, 1
}

// PLT is the particle-linear-theory shape-vector provider, backed by an
// interpolated eigenmode Table.
type PLT struct {
	Table *Table
}

func (p PLT) Shape(kx, ky, kz, ppd int) ([3]float64, float64) {
	ikx := lattice.WrapUnsigned(kx, ppd)
	iky := lattice.WrapUnsigned(ky, ppd)
	ikz := lattice.FoldPositiveZ(lattice.WrapUnsigned(kz, ppd), ppd)

	k2 := float64(kx*kx + ky*ky + kz*kz)

	ex := p.Table.interp(ikx, iky, ikz, 0, ppd)
	ey := p.Table.interp(ikx, iky, ikz, 1, ppd)
	ez := p.Table.interp(ikx, iky, ikz, 2, ppd)
	alpha := p.Table.interp(ikx, iky, ikz, 3, ppd)

	// The table only covers the +kz half-space; restore the sign lost to
	// the fold.
	ez *= math.Copysign(1, float64(kz))

	mag := math.Sqrt(ex*ex + ey*ey + ez*ez)
	ex, ey, ez = ex/mag, ey/mag, ez/mag

	norm := k2 / (float64(kx)*ex + float64(ky)*ey + float64(kz)*ez)
	if k2 == 0 || !isFinite(norm) {
		norm = 0
	}

	return [3]float64{norm * ex, norm * ey, norm * ez}, alpha
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
