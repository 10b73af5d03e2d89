// Package blockstore persists the out-of-core Z-transform intermediate
// arrays to disk, one file per (yblock, zblock) pair, and reads them back
// for the XY-transform pass. Every access pattern is sequential: records
// are written and read in exactly the nested (array, zresidual,
// yresidual) order of the original block files, matching the comment in
// the original driver that an I/O loop "can't be OpenMP'd." The wire
// format is little-endian real/imag float64 pairs per complex sample,
// following the teacher's own binary.LittleEndian convention for its grid
// files (render/io/output.go).
package blockstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

var order = binary.LittleEndian

// Store names and locates the block files for one run: PPD x PPD x NArray
// arrays split into NumBlock x NumBlock blocks of side Block = PPD/NumBlock.
type Store struct {
	Dir                      string
	PPD, Block, NumBlock int
	NArray                   int
}

// New constructs a Store rooted at dir. dir is not created; the caller is
// expected to have already validated and prepared OutputDir.
func New(dir string, ppd, numblock, narray int) *Store {
	return &Store{Dir: dir, PPD: ppd, Block: ppd / numblock, NumBlock: numblock, NArray: narray}
}

func (s *Store) path(yblock, zblock int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("zblock_%04d_yblock_%04d.block", zblock, yblock))
}

// Writer sequentially appends X-skewers (length PPD complex128 each) to
// one block file.
type Writer struct {
	f  *os.File
	bw *bufio.Writer
	n  int // PPD, cached for sizing
}

// Create opens the block file for (yblock, zblock) for sequential writing,
// truncating any previous contents.
func (s *Store) Create(yblock, zblock int) (*Writer, error) {
	f, err := os.Create(s.path(yblock, zblock))
	if err != nil {
		return nil, fmt.Errorf("blockstore: could not create block (%d,%d): %w", yblock, zblock, err)
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, 1<<20), n: s.PPD}, nil
}

// WriteSkewer appends one X-skewer of len(skewer) complex samples.
func (w *Writer) WriteSkewer(skewer []complex128) error {
	if len(skewer) != w.n {
		return fmt.Errorf("blockstore: WriteSkewer given %d samples, want %d", len(skewer), w.n)
	}
	var buf [16]byte
	for _, v := range skewer {
		order.PutUint64(buf[0:8], math.Float64bits(real(v)))
		order.PutUint64(buf[8:16], math.Float64bits(imag(v)))
		if _, err := w.bw.Write(buf[:]); err != nil {
			return fmt.Errorf("blockstore: write failed: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the block file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("blockstore: flush failed: %w", err)
	}
	return w.f.Close()
}

// Reader sequentially reads X-skewers back from one block file.
type Reader struct {
	f  *os.File
	br *bufio.Reader
	n  int
}

// Open opens the block file for (yblock, zblock) for sequential reading.
func (s *Store) Open(yblock, zblock int) (*Reader, error) {
	f, err := os.Open(s.path(yblock, zblock))
	if err != nil {
		return nil, fmt.Errorf("blockstore: could not open block (%d,%d): %w", yblock, zblock, err)
	}
	return &Reader{f: f, br: bufio.NewReaderSize(f, 1<<20), n: s.PPD}, nil
}

// ReadSkewer reads one X-skewer of len(skewer) complex samples into place.
func (r *Reader) ReadSkewer(skewer []complex128) error {
	if len(skewer) != r.n {
		return fmt.Errorf("blockstore: ReadSkewer given %d samples, want %d", len(skewer), r.n)
	}
	var buf [16]byte
	for i := range skewer {
		if _, err := io.ReadFull(r.br, buf[:]); err != nil {
			return fmt.Errorf("blockstore: read failed: %w", err)
		}
		re := math.Float64frombits(order.Uint64(buf[0:8]))
		im := math.Float64frombits(order.Uint64(buf[8:16]))
		skewer[i] = complex(re, im)
	}
	return nil
}

// Close closes the block file.
func (r *Reader) Close() error {
	return r.f.Close()
}
