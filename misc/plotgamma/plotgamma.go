// plotgamma prints the discrete Gamma rate categories and plots them
// over the continuous Gamma quantile function.
package main

import (
	"flag"
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"bitbucket.org/Davydov/qpuzzle/dist"
	"bitbucket.org/Davydov/qpuzzle/smodel"
)

const nPoints = 200

func main() {
	shape := flag.Float64("shape", 1, "Gamma shape parameter")
	ncat := flag.Int("ncat", 8, "number of categories")
	fracInv := flag.Float64("fracinv", 0, "fraction of invariable sites")
	out := flag.String("out", "gamma.png", "output file")
	flag.Parse()

	if *shape < smodel.MinShape || *shape > smodel.MaxShape {
		fmt.Fprintf(os.Stderr, "shape should be in [%v, %v]\n", smodel.MinShape, smodel.MaxShape)
		os.Exit(1)
	}
	if *ncat < smodel.MinCat || *ncat > smodel.MaxCat {
		fmt.Fprintf(os.Stderr, "ncat should be in [%v, %v]\n", smodel.MinCat, smodel.MaxCat)
		os.Exit(1)
	}

	mode := smodel.Gamma
	if *fracInv > 0 {
		mode = smodel.Mixed
	}
	r := smodel.NewRates(mode, *ncat, *shape, *fracInv)
	for i, v := range r.Rate {
		fmt.Printf("%d\t%.6f\t%.6f\n", i+1, r.CatProb(), v)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("shape=%g, %d categories", *shape, *ncat)
	p.X.Label.Text = "cumulative probability"
	p.Y.Label.Text = "rate"

	cont := make(plotter.XYs, 0, nPoints)
	for i := 1; i < nPoints; i++ {
		x := float64(i) / nPoints
		cont = append(cont, plotter.XY{X: x, Y: dist.QuantileGamma(x, *shape, *shape)})
	}
	// two points per category draw the step function
	steps := make(plotter.XYs, 0, 2*r.NCat())
	for i, v := range r.Rate {
		steps = append(steps,
			plotter.XY{X: float64(i) / float64(r.NCat()), Y: v},
			plotter.XY{X: float64(i+1) / float64(r.NCat()), Y: v})
	}

	if err := plotutil.AddLines(p, "continuous", cont, "categories", steps); err != nil {
		panic(err)
	}
	if err := p.Save(4*vg.Inch, 4*vg.Inch, *out); err != nil {
		panic(err)
	}
}
