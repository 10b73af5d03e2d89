// Package config parses the zeldovich_ic INI-style parameter file (the
// [Zeldovich] section) the way the teacher parses its own render/convert
// config sections: a plain struct with exported fields read by gcfg.v1,
// a family of ValidXxx() predicate methods, and a derive step that fills
// in the quantities the file never states directly.
package config

import (
	"fmt"

	"gopkg.in/gcfg.v1"
)

// Wrapper is the top-level gcfg document: one [Zeldovich] section.
type Wrapper struct {
	Zeldovich Parameters
}

// Parameters holds every field of spec.md §6's parameter file, plus the
// derived quantities derive fills in after a successful parse.
type Parameters struct {
	// Required.
	PPD         int
	NumBlock    int
	Boxsize     float64
	Seed        int64
	PkFilename  string
	OutputDir   string
	Density     string // output filename for the density field

	// Optional, with teacher-style defaults applied in Default().
	KCutoff        float64
	QPLT           bool
	PLTFilename    string
	QPLTRescale    bool
	PLTTargetZ     float64
	ZInitial       float64
	QOneMode       bool
	OneModeKx      int
	OneModeKy      int
	OneModeKz      int
	QOneSlab       int
	QDensity       bool
	QNoHeader      bool
	QAscii         bool
	QVelocity      bool
	RamDisk        string

	// Derived by derive(); not read from the file.
	Separation  float64
	Fundamental float64
	Nyquist     float64
	Block       int
	NArray      int
}

// Default returns a Parameters with the same optional-field defaults the
// original command line tool applies when a key is omitted.
func Default() Parameters {
	return Parameters{
		KCutoff:  1.0,
		QOneSlab: -1,
	}
}

// Load reads and validates path, the way the teacher's render tool loads
// its own config file, and returns the derived Parameters ready for use.
func Load(path string) (*Parameters, error) {
	w := Wrapper{Zeldovich: Default()}
	if err := gcfg.ReadFileInto(&w, path); err != nil {
		return nil, fmt.Errorf("config: could not parse %q: %w", path, err)
	}

	p := w.Zeldovich
	if err := p.checkRequired(); err != nil {
		return nil, err
	}
	p.derive()
	if err := p.checkDerived(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Parameters) checkRequired() error {
	switch {
	case !p.ValidPPD():
		return fmt.Errorf("config: PPD must be a positive even integer, got %d", p.PPD)
	case !p.ValidNumBlock():
		return fmt.Errorf("config: NumBlock must divide PPD and be even, got %d", p.NumBlock)
	case !p.ValidBoxsize():
		return fmt.Errorf("config: Boxsize must be positive, got %g", p.Boxsize)
	case !p.ValidPkFilename():
		return fmt.Errorf("config: PkFilename must be set")
	case !p.ValidOutputDir():
		return fmt.Errorf("config: OutputDir must be set")
	case !p.ValidKCutoff():
		return fmt.Errorf("config: KCutoff must be >= 1, got %g", p.KCutoff)
	case p.QPLT && !p.ValidPLTFilename():
		return fmt.Errorf("config: PLTFilename must be set when QPLT is true")
	case p.QDensity && !p.ValidDensity():
		return fmt.Errorf("config: Density must be set when QDensity is true")
	}
	return nil
}

func (p *Parameters) derive() {
	p.Separation = p.Boxsize / float64(p.PPD)
	p.Fundamental = 2 * 3.141592653589793 / p.Boxsize
	p.Nyquist = p.Fundamental * float64(p.PPD) / 2 // physical Nyquist frequency
	p.Block = p.PPD / p.NumBlock
	if p.QPLT {
		p.NArray = 4
	} else {
		p.NArray = 2
	}
}

func (p *Parameters) checkDerived() error {
	if p.Block*p.NumBlock != p.PPD {
		return fmt.Errorf("config: NumBlock %d does not evenly divide PPD %d", p.NumBlock, p.PPD)
	}
	return nil
}

func (p *Parameters) ValidPPD() bool {
	return p.PPD > 0 && p.PPD%2 == 0
}

func (p *Parameters) ValidNumBlock() bool {
	return p.NumBlock > 0 && p.NumBlock%2 == 0 && p.PPD%p.NumBlock == 0
}

func (p *Parameters) ValidBoxsize() bool {
	return p.Boxsize > 0
}

func (p *Parameters) ValidPkFilename() bool {
	return p.PkFilename != ""
}

func (p *Parameters) ValidOutputDir() bool {
	return p.OutputDir != ""
}

func (p *Parameters) ValidPLTFilename() bool {
	return p.PLTFilename != ""
}

func (p *Parameters) ValidDensity() bool {
	return p.Density != ""
}

func (p *Parameters) ValidKCutoff() bool {
	return p.KCutoff >= 1
}

// OneMode returns the single mode to isolate when QOneMode is set.
func (p *Parameters) OneMode() [3]int {
	return [3]int{p.OneModeKx, p.OneModeKy, p.OneModeKz}
}
