// Package synth generates the Fourier-space density and displacement
// fields one y-row at a time, the way the original Z-transform driver
// fills a primary plane and its Hermitian-mirror plane together before
// handing both off for storage. This is the component that draws the
// Gaussian field amplitudes, looks up the Zel'dovich or PLT shape vector,
// packs the real/imaginary "two fields in one complex array" trick, and
// performs the z-direction inverse FFT before the block store ever sees
// the data.
package synth

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/abacus-sims/zeldovich-ic/internal/config"
	"github.com/abacus-sims/zeldovich-ic/internal/eigenmode"
	"github.com/abacus-sims/zeldovich-ic/internal/fft"
	"github.com/abacus-sims/zeldovich-ic/internal/lattice"
	"github.com/abacus-sims/zeldovich-ic/internal/powerspec"
)

// SlabPair is the pair of y-block-sized buffers LoadPlane fills: Slab
// holds the rows belonging to the current y-block, SlabHer holds the
// Hermitian-mirrored rows that belong to the y-block's mirror image.
// Both share the same (array, yres, z, x) layout the block store expects.
type SlabPair struct {
	Block, PPD, NArray int
	Slab, SlabHer      []complex128
}

// NewSlabPair allocates a pair of buffers sized for block rows of an
// ppd x ppd x narray plane each.
func NewSlabPair(block, ppd, narray int) *SlabPair {
	n := narray * block * ppd * ppd
	return &SlabPair{
		Block: block, PPD: ppd, NArray: narray,
		Slab:    make([]complex128, n),
		SlabHer: make([]complex128, n),
	}
}

func (sp *SlabPair) index(a, yres, z, x int) int {
	return x + sp.PPD*(z+sp.PPD*(a+sp.NArray*yres))
}

// At reads one element of buf (Slab or SlabHer).
func (sp *SlabPair) At(buf []complex128, a, yres, z, x int) complex128 {
	return buf[sp.index(a, yres, z, x)]
}

// Set writes one element of buf (Slab or SlabHer).
func (sp *SlabPair) Set(buf []complex128, a, yres, z, x int, v complex128) {
	buf[sp.index(a, yres, z, x)] = v
}

// Synthesizer bundles the collaborators LoadPlane needs: the parameter
// block, the shape-vector provider (Standard or PLT), the power spectrum
// and its per-row Gaussian draw source, and the z-direction FFT facade.
type Synthesizer struct {
	P     *config.Parameters
	Shape eigenmode.ShapeProvider
	Pk    *powerspec.Stream
	FFT   *fft.Facade
}

// New constructs a Synthesizer from its collaborators.
func New(p *config.Parameters, shape eigenmode.ShapeProvider, pk *powerspec.Stream, f *fft.Facade) *Synthesizer {
	return &Synthesizer{P: p, Shape: shape, Pk: pk, FFT: f}
}

// LoadPlane fills sp.Slab at row yres (belonging to yblock) and sp.SlabHer
// at the mirrored row sp.Block-1-yres (belonging to yblock
// NumBlock-1-yblock), applies the
// ky=0, z=0 Hermitian-plane copy and origin zeroing the original performs
// only once per Z-pass, and finishes by inverse-FFTing both rows along z.
func (s *Synthesizer) LoadPlane(sp *SlabPair, yblock, yres int) error {
	if err := s.fillRow(sp, yblock, yres); err != nil {
		return err
	}

	narray := s.P.NArray
	block := s.P.Block
	yresHer := block - 1 - yres
	for a := 0; a < narray; a++ {
		if err := s.transformRow(sp, sp.Slab, a, yres); err != nil {
			return err
		}
		if err := s.transformRow(sp, sp.SlabHer, a, yresHer); err != nil {
			return err
		}
	}
	return nil
}

// fillRow computes the k-space contents of row yres (and its Hermitian
// mirror) without performing the z-direction transform, so that the raw
// Fourier-space packing can be inspected directly.
func (s *Synthesizer) fillRow(sp *SlabPair, yblock, yres int) error {
	p := s.P
	ppd := p.PPD
	block := p.Block
	narray := p.NArray

	y := yres + yblock*block
	ky := lattice.WrapSigned(y, ppd)
	yresHer := block - 1 - yres

	kmax := lattice.NyquistIndex(ppd, p.KCutoff)
	k2cutoff := p.Nyquist * p.Nyquist / (p.KCutoff * p.KCutoff)
	oneMode := p.OneMode()

	row := s.Pk.RowSource(y)

	for z := 0; z < ppd; z++ {
		kz := lattice.WrapSigned(z, ppd)
		zHer := lattice.Reflect(z, ppd)
		for x := 0; x < ppd; x++ {
			kx := lattice.WrapSigned(x, ppd)
			xHer := lattice.Reflect(x, ppd)

			k2idx := kx*kx + ky*ky + kz*kz
			k2 := float64(k2idx) * p.Fundamental * p.Fundamental

			var D complex128
			switch {
			case absInt(kx) == kmax || absInt(ky) == kmax || absInt(kz) == kmax:
				D = 0
			case k2 >= k2cutoff:
				D = 0
			case k2idx == 0:
				D = 0 // the origin is zeroed; no draw at k=0
			case p.QOneMode && !(kx == oneMode[0] && ky == oneMode[1] && kz == oneMode[2]):
				D = 0
			default:
				var err error
				D, err = row.Gaussian(math.Sqrt(k2))
				if err != nil {
					return fmt.Errorf("synth: LoadPlane(%d,%d): %w", yblock, yres, err)
				}
			}

			k2u := k2 / p.Fundamental
			if k2u == 0 {
				k2u = 1
			}

			vec, alpha := s.Shape.Shape(kx, ky, kz, ppd)

			rescale := 1.0
			if p.QPLTRescale {
				aNL := 1 / (1 + p.PLTTargetZ)
				a0 := 1 / (1 + p.ZInitial)
				alphaM := (math.Sqrt(1+24*alpha) - 1) / 6
				rescale = math.Pow(aNL/a0, 1-1.5*alphaM)
			}

			F := complex(rescale, 0) * 1i * complex(vec[0], 0) / complex(k2u, 0) * D
			G := complex(rescale, 0) * 1i * complex(vec[1], 0) / complex(k2u, 0) * D
			H := complex(rescale, 0) * 1i * complex(vec[2], 0) / complex(k2u, 0) * D

			var growth complex128
			if p.QPLT {
				growth = complex((math.Sqrt(1+24*alpha)-1)*0.25, 0)
			}

			sp.Set(sp.Slab, 0, yres, z, x, D+1i*F)
			sp.Set(sp.Slab, 1, yres, z, x, G+1i*H)
			if p.QPLT {
				sp.Set(sp.Slab, 2, yres, z, x, 1i*F*growth)
				sp.Set(sp.Slab, 3, yres, z, x, G*growth+1i*H*growth)
			}

			sp.Set(sp.SlabHer, 0, yresHer, zHer, xHer, cmplx.Conj(D)+1i*cmplx.Conj(F))
			sp.Set(sp.SlabHer, 1, yresHer, zHer, xHer, cmplx.Conj(G)+1i*cmplx.Conj(H))
			if p.QPLT {
				sp.Set(sp.SlabHer, 2, yresHer, zHer, xHer, 1i*cmplx.Conj(F*growth))
				sp.Set(sp.SlabHer, 3, yresHer, zHer, xHer, cmplx.Conj(G*growth)+1i*cmplx.Conj(H*growth))
			}
		}
	}

	if yblock == 0 && yres == 0 {
		for z := 0; z < ppd/2; z++ {
			zHer := lattice.Reflect(z, ppd)
			xmax := ppd
			if z == 0 {
				xmax = ppd / 2
			}
			for x := 0; x < xmax; x++ {
				xHer := lattice.Reflect(x, ppd)
				for a := 0; a < narray; a++ {
					sp.Set(sp.Slab, a, yres, zHer, xHer, sp.At(sp.SlabHer, a, yresHer, zHer, xHer))
				}
			}
		}
		for a := 0; a < narray; a++ {
			sp.Set(sp.Slab, a, 0, 0, 0, 0)
		}
	}
	return nil
}

// transformRow performs the z-direction inverse FFT of one (a, yres) page:
// for every x, gather the ppd-long z skewer, inverse-transform it, and
// write it back. This is "InverseFFT_Yonly" from the original driver; the
// Y in that name refers to the long-stride array axis, not the physical
// y direction.
func (s *Synthesizer) transformRow(sp *SlabPair, buf []complex128, a, yres int) error {
	ppd := sp.PPD
	col := make([]complex128, ppd)
	for x := 0; x < ppd; x++ {
		for z := 0; z < ppd; z++ {
			col[z] = sp.At(buf, a, yres, z, x)
		}
		if err := s.FFT.Inverse1D(col); err != nil {
			return fmt.Errorf("synth: transformRow: %w", err)
		}
		for z := 0; z < ppd; z++ {
			sp.Set(buf, a, yres, z, x, col[z])
		}
	}
	return nil
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
