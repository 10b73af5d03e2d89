// Package output encodes the inverse-transformed displacement and density
// planes the XY-transform pass hands it into the final particle and
// density files, the way the teacher's io.WriteGrid writes a fixed header
// struct followed by a raw payload slice. It also accumulates the two
// run-end diagnostics the pipeline reports: the RMS density fluctuation
// and the largest component-wise displacement.
package output

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"unsafe"

	"github.com/abacus-sims/zeldovich-ic/internal/config"
)

var end = binary.LittleEndian

// Header is written once, at the front of the binary particle file,
// mirroring io.GridHeader's endianness flag and self-reported size so a
// reader never has to guess the record layout.
type Header struct {
	Endianness int64
	HeaderSize int64
	PPD        int64
	NumBlock   int64
	Boxsize    float64
	Separation float64
	HasVelocity int64
}

func newHeader(p *config.Parameters) Header {
	var endFlag int64 = -1
	if end != binary.LittleEndian {
		endFlag = 0
	}
	hd := Header{
		Endianness: endFlag,
		PPD:        int64(p.PPD),
		NumBlock:   int64(p.NumBlock),
		Boxsize:    p.Boxsize,
		Separation: p.Separation,
	}
	if p.QVelocity {
		hd.HasVelocity = 1
	}
	hd.HeaderSize = int64(unsafe.Sizeof(hd))
	return hd
}

// Encoder writes particle records (and, when enabled, a separate density
// grid) one z-slab at a time, and tracks the diagnostics the pipeline
// reports once the run finishes.
type Encoder struct {
	p *config.Parameters

	pf  *os.File
	pbw *bufio.Writer

	df  *os.File
	dbw *bufio.Writer

	sumSq   float64
	nCells  int64
	maxDisp [3]float64
}

// New opens the particle output file under p.OutputDir (and, if p.QDensity
// is set, the density file at the path p.Density), writing the binary
// header or ascii comment line unless p.QNoHeader suppresses it.
func New(p *config.Parameters) (*Encoder, error) {
	pf, err := os.Create(particlePath(p))
	if err != nil {
		return nil, fmt.Errorf("output: could not create particle file: %w", err)
	}
	e := &Encoder{p: p, pf: pf, pbw: bufio.NewWriterSize(pf, 1<<20)}

	if !p.QNoHeader {
		if err := e.writeParticleHeader(); err != nil {
			pf.Close()
			return nil, err
		}
	}

	if p.QDensity {
		df, err := os.Create(p.Density)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("output: could not create density file: %w", err)
		}
		e.df = df
		e.dbw = bufio.NewWriterSize(df, 1<<20)
		if !p.QNoHeader {
			if err := e.writeDensityHeader(); err != nil {
				e.Close()
				return nil, err
			}
		}
	}
	return e, nil
}

func particlePath(p *config.Parameters) string {
	if p.QAscii {
		return p.OutputDir + "/zeldovich.particles.ascii"
	}
	return p.OutputDir + "/zeldovich.particles"
}

func (e *Encoder) writeParticleHeader() error {
	if e.p.QAscii {
		_, err := fmt.Fprintf(e.pbw, "# ppd=%d numblock=%d boxsize=%g velocity=%v\n",
			e.p.PPD, e.p.NumBlock, e.p.Boxsize, e.p.QVelocity)
		return err
	}
	hd := newHeader(e.p)
	return binary.Write(e.pbw, end, &hd)
}

func (e *Encoder) writeDensityHeader() error {
	if e.p.QAscii {
		_, err := fmt.Fprintf(e.dbw, "# ppd=%d boxsize=%g field=density\n", e.p.PPD, e.p.Boxsize)
		return err
	}
	hd := newHeader(e.p)
	hd.HasVelocity = 0
	return binary.Write(e.dbw, end, &hd)
}

// WriteZSlab emits every particle in one completed z-slab. planes holds
// the real-space arrays left behind by the XY-transform's inverse FFT:
// planes[0] = D+iF (density, x-displacement), planes[1] = G+iH (y,z
// displacement), and, when p.QVelocity is set, planes[2]/planes[3] hold
// the matching PLT velocity pair in the same packing. Each plane is
// PPD*PPD complex values in row-major (y, x) order for the fixed z given.
func (e *Encoder) WriteZSlab(z int, planes [][]complex128) error {
	ppd := e.p.PPD
	sep := e.p.Separation
	hasVel := e.p.QVelocity && len(planes) >= 4

	for y := 0; y < ppd; y++ {
		for x := 0; x < ppd; x++ {
			i := y*ppd + x
			dens := real(planes[0][i])
			dispX := imag(planes[0][i])
			dispY := real(planes[1][i])
			dispZ := imag(planes[1][i])

			e.sumSq += dens * dens
			e.nCells++
			e.updateMaxDisp(dispX, dispY, dispZ)

			px := float64(x)*sep + dispX
			py := float64(y)*sep + dispY
			pz := float64(z)*sep + dispZ

			var velX, velY, velZ float64
			if hasVel {
				velX = imag(planes[2][i])
				velY = real(planes[3][i])
				velZ = imag(planes[3][i])
			}

			if err := e.writeParticleRecord(px, py, pz, velX, velY, velZ, hasVel); err != nil {
				return err
			}
			if e.dbw != nil {
				if err := e.writeDensitySample(dens); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *Encoder) updateMaxDisp(dx, dy, dz float64) {
	if a := math.Abs(dx); a > e.maxDisp[0] {
		e.maxDisp[0] = a
	}
	if a := math.Abs(dy); a > e.maxDisp[1] {
		e.maxDisp[1] = a
	}
	if a := math.Abs(dz); a > e.maxDisp[2] {
		e.maxDisp[2] = a
	}
}

func (e *Encoder) writeParticleRecord(px, py, pz, vx, vy, vz float64, hasVel bool) error {
	if e.p.QAscii {
		if hasVel {
			_, err := fmt.Fprintf(e.pbw, "%g %g %g %g %g %g\n", px, py, pz, vx, vy, vz)
			return err
		}
		_, err := fmt.Fprintf(e.pbw, "%g %g %g\n", px, py, pz)
		return err
	}
	if hasVel {
		return binary.Write(e.pbw, end, [6]float64{px, py, pz, vx, vy, vz})
	}
	return binary.Write(e.pbw, end, [3]float64{px, py, pz})
}

func (e *Encoder) writeDensitySample(dens float64) error {
	if e.p.QAscii {
		_, err := fmt.Fprintf(e.dbw, "%g\n", dens)
		return err
	}
	return binary.Write(e.dbw, end, dens)
}

// Sigma returns the RMS density fluctuation accumulated across every
// emitted cell: sqrt(sum(density^2) / ncells).
func (e *Encoder) Sigma() float64 {
	if e.nCells == 0 {
		return 0
	}
	return math.Sqrt(e.sumSq / float64(e.nCells))
}

// MaxDisplacement returns the largest absolute x, y, z displacement seen
// across every emitted particle.
func (e *Encoder) MaxDisplacement() [3]float64 {
	return e.maxDisp
}

// Close flushes and closes every open file.
func (e *Encoder) Close() error {
	var firstErr error
	if e.pbw != nil {
		if err := e.pbw.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.pf != nil {
		if err := e.pf.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.dbw != nil {
		if err := e.dbw.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.df != nil {
		if err := e.df.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
