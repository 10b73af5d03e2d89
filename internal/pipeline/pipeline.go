// Package pipeline drives the two out-of-core passes that turn a
// parameter file into a finished particle catalog: pass 1 ("Z-transform")
// synthesizes every y-row's Fourier content and its z-direction inverse
// FFT and files the result away in blockstore; pass 2 ("XY-transform")
// streams the blocks back in, corrects for the y-shift the Hermitian
// mirror trick introduces, finishes the inverse FFT in the (y, x) plane,
// and hands every z-slab to the output encoder in order. Both passes
// dispatch a fixed pool of Workers goroutines, each striding over its
// own share of the block's rows/residuals, and join on a channel before
// proceeding, the way the teacher's HistManager.HistFromFile dispatches
// exactly man.workers chanHistogram goroutines (each skipping indices
// that don't belong to it via idx%(...*man.workers) != worker) and
// drains their ids from an out channel before merging.
package pipeline

import (
	"fmt"
	"log"
	"runtime"

	"github.com/abacus-sims/zeldovich-ic/internal/blockstore"
	"github.com/abacus-sims/zeldovich-ic/internal/config"
	"github.com/abacus-sims/zeldovich-ic/internal/eigenmode"
	"github.com/abacus-sims/zeldovich-ic/internal/fft"
	"github.com/abacus-sims/zeldovich-ic/internal/output"
	"github.com/abacus-sims/zeldovich-ic/internal/powerspec"
	"github.com/abacus-sims/zeldovich-ic/internal/synth"
)

// Workers is the number of goroutines each pass's fork-join step spawns,
// following the teacher's NumCores/render.NumCores convention: it
// defaults to runtime.NumCPU() but callers (cmd/zeldovich's -Threads
// flag included) may override it before calling New.
var Workers = runtime.NumCPU()

// Context bundles every collaborator and every piece of run-scoped state
// a pipeline run touches: the eigenmode table (if any), the FFT facade,
// and the diagnostics the output encoder accumulates. Keeping these on a
// struct instead of package globals is what lets two Contexts run (and
// be tested) side by side without interfering with each other.
type Context struct {
	P   *config.Parameters
	Pk  *powerspec.Stream
	FFT *fft.Facade
	Shape eigenmode.ShapeProvider

	workers int
	store   *blockstore.Store
	enc     *output.Encoder
}

// New constructs a Context from already-loaded collaborators. shape may
// be eigenmode.Standard{} when PLT is disabled. New sets the worker
// count from the package-level Workers variable and calls
// runtime.GOMAXPROCS(workers) once, the way the teacher's
// NewHistManager does for render.NumCores.
func New(p *config.Parameters, pk *powerspec.Stream, f *fft.Facade, shape eigenmode.ShapeProvider) *Context {
	workers := Workers
	if workers < 1 {
		workers = 1
	}
	runtime.GOMAXPROCS(workers)
	return &Context{
		P:       p,
		Pk:      pk,
		FFT:     f,
		Shape:   shape,
		workers: workers,
		store:   blockstore.New(p.OutputDir, p.PPD, p.NumBlock, p.NArray),
	}
}

// Run executes pass 1 in full, then pass 2 in full, opening and closing
// the output encoder around pass 2, and returns the encoder's end-of-run
// diagnostics.
func (c *Context) Run() (sigma float64, maxDisp [3]float64, err error) {
	if err := c.RunZTransform(); err != nil {
		return 0, [3]float64{}, err
	}
	enc, err := output.New(c.P)
	if err != nil {
		return 0, [3]float64{}, err
	}
	c.enc = enc
	defer enc.Close()

	if err := c.RunXYTransform(); err != nil {
		return 0, [3]float64{}, err
	}
	return enc.Sigma(), enc.MaxDisplacement(), nil
}

// RunZTransform is pass 1: for every yblock in [0, numblock/2), dispatch
// the worker pool across the block's yres rows to synthesize and
// z-transform each row (and its Hermitian mirror row), join, then
// serially write the primary slab to block (yblock, zblock) and the
// mirror slab to block (numblock-1-yblock, zblock) for every zblock.
func (c *Context) RunZTransform() error {
	p := c.P
	s := synth.New(p, c.Shape, c.Pk, c.FFT)

	for yblock := 0; yblock < p.NumBlock/2; yblock++ {
		sp := synth.NewSlabPair(p.Block, p.PPD, p.NArray)
		if err := c.loadPlaneBlock(s, sp, yblock); err != nil {
			return fmt.Errorf("pipeline: Z-transform yblock %d: %w", yblock, err)
		}
		if err := c.writeBlock(sp, yblock); err != nil {
			return fmt.Errorf("pipeline: Z-transform yblock %d: %w", yblock, err)
		}
	}
	return nil
}

// loadPlaneBlock fills every row of sp for yblock by dispatching
// c.workers goroutines, each striding over its own share of yres
// (worker, worker+workers, worker+2*workers, ...), and draining their
// completions in any order: rows are independent once the synthesizer
// itself is safe for concurrent use on disjoint slices, which it is,
// since each row only touches its own (yres, yresHer) slots of
// sp.Slab/sp.SlabHer.
func (c *Context) loadPlaneBlock(s *synth.Synthesizer, sp *synth.SlabPair, yblock int) error {
	block := c.P.Block
	workers := c.workers
	if workers > block {
		workers = block
	}
	out := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		go func(worker int) {
			var err error
			for yres := worker; yres < block; yres += workers {
				if e := s.LoadPlane(sp, yblock, yres); e != nil && err == nil {
					err = e
				}
			}
			out <- err
		}(worker)
	}
	var firstErr error
	for i := 0; i < workers; i++ {
		if err := <-out; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// writeBlock serially writes sp's primary and Hermitian-mirror slabs out
// to the block store, one zblock at a time; this is the step the
// original driver notes "can't be OpenMP'd," since block file writes must
// stay strictly sequential within a file and the set of open file
// descriptors is bounded by numblock.
func (c *Context) writeBlock(sp *synth.SlabPair, yblock int) error {
	p := c.P
	mirror := p.NumBlock - 1 - yblock
	for zblock := 0; zblock < p.NumBlock; zblock++ {
		if err := c.writeOneBlockFile(sp, sp.Slab, yblock, zblock); err != nil {
			return err
		}
		if err := c.writeOneBlockFile(sp, sp.SlabHer, mirror, zblock); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) writeOneBlockFile(sp *synth.SlabPair, buf []complex128, yblock, zblock int) error {
	w, err := c.store.Create(yblock, zblock)
	if err != nil {
		return err
	}
	block := c.P.Block
	row := make([]complex128, c.P.PPD)
	for a := 0; a < c.P.NArray; a++ {
		for zres := 0; zres < block; zres++ {
			z := zres + zblock*block
			for yres := 0; yres < block; yres++ {
				for x := 0; x < c.P.PPD; x++ {
					row[x] = sp.At(buf, a, yres, z, x)
				}
				if err := w.WriteSkewer(row); err != nil {
					w.Close()
					return err
				}
			}
		}
	}
	return w.Close()
}

// RunXYTransform is pass 2: for every zblock, serially read back every
// yblock's (yblock, zblock) file, apply the y-shift correction and the
// y=PPD/2 zeroing, dispatch the worker pool across the block's
// z-residuals to inverse-FFT the (y, x) plane at that z, then serially
// hand each finished z-slab to the output encoder in increasing z order.
func (c *Context) RunXYTransform() error {
	p := c.P
	for zblock := 0; zblock < p.NumBlock; zblock++ {
		planes, err := c.readAndShiftBlock(zblock)
		if err != nil {
			return fmt.Errorf("pipeline: XY-transform zblock %d: %w", zblock, err)
		}
		if err := c.transformAndEmit(zblock, planes); err != nil {
			return fmt.Errorf("pipeline: XY-transform zblock %d: %w", zblock, err)
		}
	}
	return nil
}

// planeSet holds, for one zblock, every array's ppd-by-ppd-by-block
// (y, x) grid indexed by local zres, ready for the final 2D inverse FFT.
type planeSet struct {
	ppd, block, narray int
	data                []complex128 // [a][zres][y][x]
}

func newPlaneSet(ppd, block, narray int) *planeSet {
	return &planeSet{ppd: ppd, block: block, narray: narray,
		data: make([]complex128, narray*block*ppd*ppd)}
}

func (ps *planeSet) index(a, zres, y, x int) int {
	return x + ps.ppd*(y+ps.ppd*(zres+ps.block*a))
}

func (ps *planeSet) at(a, zres, y, x int) complex128 {
	return ps.data[ps.index(a, zres, y, x)]
}

func (ps *planeSet) set(a, zres, y, x int, v complex128) {
	ps.data[ps.index(a, zres, y, x)] = v
}

// readAndShiftBlock reads every yblock's (yblock, zblock) file and places
// each row at its shifted y coordinate: a row stored at local index yres
// of yblock belongs to absolute row y = yres + yblock*block, and any row
// with y >= ppd/2 is written one slot further out (y+1), with the slot
// that would land on ppd wrapping back to ppd/2. The y=ppd/2 row itself
// is zeroed once every yblock has been read, since it is the Nyquist row
// the original never populates meaningfully. This mirrors the insertion
// the original XY-transform driver performs while re-reading blocks
// before the 2D inverse FFT ever runs.
func (c *Context) readAndShiftBlock(zblock int) (*planeSet, error) {
	p := c.P
	ps := newPlaneSet(p.PPD, p.Block, p.NArray)
	row := make([]complex128, p.PPD)

	for yblock := 0; yblock < p.NumBlock; yblock++ {
		r, err := c.store.Open(yblock, zblock)
		if err != nil {
			return nil, err
		}
		for a := 0; a < p.NArray; a++ {
			for zres := 0; zres < p.Block; zres++ {
				for yres := 0; yres < p.Block; yres++ {
					if err := r.ReadSkewer(row); err != nil {
						r.Close()
						return nil, err
					}
					y := yres + yblock*p.Block
					yShift := shiftY(y, p.PPD)
					for x := 0; x < p.PPD; x++ {
						ps.set(a, zres, yShift, x, row[x])
					}
				}
			}
		}
		if err := r.Close(); err != nil {
			return nil, err
		}
	}

	half := p.PPD / 2
	for a := 0; a < p.NArray; a++ {
		for zres := 0; zres < p.Block; zres++ {
			for x := 0; x < p.PPD; x++ {
				ps.set(a, zres, half, x, 0)
			}
		}
	}
	return ps, nil
}

// shiftY implements the y-shift correction: rows at or past the physical
// Nyquist index move one slot further from the origin, with the slot
// that would land exactly on ppd wrapping back onto the Nyquist row
// itself (it is zeroed separately once every yblock has been placed).
func shiftY(y, ppd int) int {
	if y < ppd/2 {
		return y
	}
	y++
	if y == ppd {
		return ppd / 2
	}
	return y
}

// transformAndEmit dispatches c.workers goroutines, each striding over
// its own share of the block's z-residuals to inverse-FFT that
// residual's (y, x) plane for every array, joins, then serially hands
// each finished z-slab (in increasing z order) to the output encoder,
// honoring the one-slab filter.
func (c *Context) transformAndEmit(zblock int, ps *planeSet) error {
	p := c.P
	block := p.Block
	workers := c.workers
	if workers > block {
		workers = block
	}
	out := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		go func(worker int) {
			var err error
			for zres := worker; zres < block; zres += workers {
				if e := c.transformResidual(ps, zres); e != nil && err == nil {
					err = e
				}
			}
			out <- err
		}(worker)
	}
	var firstErr error
	for i := 0; i < workers; i++ {
		if err := <-out; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	for zres := 0; zres < p.Block; zres++ {
		z := zres + zblock*p.Block
		if p.QOneSlab >= 0 && z != p.QOneSlab {
			continue
		}
		planes := make([][]complex128, p.NArray)
		for a := 0; a < p.NArray; a++ {
			plane := make([]complex128, p.PPD*p.PPD)
			for y := 0; y < p.PPD; y++ {
				for x := 0; x < p.PPD; x++ {
					plane[y*p.PPD+x] = ps.at(a, zres, y, x)
				}
			}
			planes[a] = plane
		}
		if err := c.enc.WriteZSlab(z, planes); err != nil {
			return err
		}
	}
	return nil
}

// transformResidual performs the 2D inverse FFT (x along rows, then y
// along columns) of every
// array's plane at one z-residual, in place.
func (c *Context) transformResidual(ps *planeSet, zres int) error {
	grid := make([]complex128, ps.ppd*ps.ppd)
	for a := 0; a < ps.narray; a++ {
		for y := 0; y < ps.ppd; y++ {
			for x := 0; x < ps.ppd; x++ {
				grid[y*ps.ppd+x] = ps.at(a, zres, y, x)
			}
		}
		if err := c.FFT.Inverse2D(grid); err != nil {
			return fmt.Errorf("pipeline: transformResidual: %w", err)
		}
		for y := 0; y < ps.ppd; y++ {
			for x := 0; x < ps.ppd; x++ {
				ps.set(a, zres, y, x, grid[y*ps.ppd+x])
			}
		}
	}
	return nil
}

// ReportFootprint logs the effective grid the cutoff covers and the
// in-memory footprint of one slab pair, the way the original driver logs
// its k_cutoff-derived effective PPD before starting work.
func (c *Context) ReportFootprint() {
	p := c.P
	effective := p.PPD
	if p.KCutoff > 1 {
		effective = int(float64(p.PPD) / p.KCutoff)
	}
	bytesPerSlab := 2 * p.NArray * p.Block * p.PPD * p.PPD * 16
	log.Printf("pipeline: ppd=%d numblock=%d effective_ppd=%d slab_pair_bytes=%d",
		p.PPD, p.NumBlock, effective, bytesPerSlab)
}
