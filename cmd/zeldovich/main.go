// Command zeldovich generates Zel'dovich-approximation initial conditions
// from a parameter file, following the teacher's own command-line
// conventions: an optional -Log flag redirecting log output to a file,
// one positional argument, and log.Fatal on every unrecoverable error.
package main

import (
	"flag"
	"log"
	"math"
	"os"
	"runtime"

	"github.com/abacus-sims/zeldovich-ic/internal/config"
	"github.com/abacus-sims/zeldovich-ic/internal/eigenmode"
	"github.com/abacus-sims/zeldovich-ic/internal/fft"
	"github.com/abacus-sims/zeldovich-ic/internal/pipeline"
	"github.com/abacus-sims/zeldovich-ic/internal/powerspec"
)

func main() {
	var logPath string
	flag.StringVar(&logPath, "Log", "",
		"Location to write log statements to. Default is stderr.")
	threads := flag.Int("Threads", runtime.NumCPU(),
		"Number of worker goroutines the pipeline's fork-join steps use.")
	flag.Parse()

	pipeline.Workers = *threads

	if logPath != "" {
		lf, err := os.Create(logPath)
		if err != nil {
			log.Fatalln(err.Error())
		}
		log.SetOutput(lf)
		defer lf.Close()
	}

	args := flag.Args()
	if len(args) != 1 {
		log.Fatalf("zeldovich requires exactly one parameter file argument, got %d.", len(args))
	}

	p, err := config.Load(args[0])
	if err != nil {
		log.Fatal(err.Error())
	}

	pk, err := powerspec.Load(p.PkFilename, p.Seed)
	if err != nil {
		log.Fatal(err.Error())
	}

	var shape eigenmode.ShapeProvider = eigenmode.Standard{}
	if p.QPLT {
		tbl, err := eigenmode.Load(p.PLTFilename)
		if err != nil {
			log.Fatal(err.Error())
		}
		shape = eigenmode.PLT{Table: tbl}
	}

	f, err := fft.New(p.PPD)
	if err != nil {
		log.Fatal(err.Error())
	}

	ctx := pipeline.New(p, pk, f, shape)
	ctx.ReportFootprint()

	sigma, maxDisp, err := ctx.Run()
	if err != nil {
		log.Fatal(err.Error())
	}

	predictedSigma, err := pk.SigmaR(p.Separation / 4.0)
	if err != nil {
		log.Fatal(err.Error())
	}
	predictedSigma *= math.Pow(p.Boxsize, 1.5)

	maxCPD := p.Boxsize / (2 * maxDisp[2])

	log.Printf("done: sigma=%g predicted_sigma=%g max_displacement=(%g, %g, %g) max_cpd=%g",
		sigma, predictedSigma, maxDisp[0], maxDisp[1], maxDisp[2], maxCPD)
}
