package quartet

import (
	"image/color"
	"math"

	"github.com/exascience/pargo/parallel"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"bitbucket.org/Davydov/qpuzzle/rng"
)

// Mapping is the likelihood mapping of a set of quartets. Every
// quartet is a point in the triangle spanned by the three weights.
type Mapping struct {
	Quartets int64 `json:"quartets"`
	// Areas counts the quartets by the best topology.
	Areas [3]int64 `json:"areas"`
	// Regions counts the quartets by the closest distribution:
	// 1-3 are the corners (AB, AC, AD), 4-6 are the sides
	// (AB+AC, AC+AD, AB+AD) and 7 is the center.
	Regions [7]int64 `json:"regions"`
	// Points are the weight vectors.
	Points [][3]float64 `json:"-"`
}

// regionIndex maps masks to regions.
var regionIndex = map[Mask]int{
	AB:         0,
	AC:         1,
	AD:         2,
	AB | AC:    3,
	AC | AD:    4,
	AB | AD:    5,
	Unresolved: 6,
}

func (mp *Mapping) add(lnl [3]float64) {
	w, order := Weights(lnl)
	mp.Quartets++
	mp.Areas[order[0]]++
	mp.Regions[regionIndex[closest(w, order)]]++
	mp.Points = append(mp.Points, w)
}

func (mp *Mapping) merge(other *Mapping) {
	mp.Quartets += other.Quartets
	for i, v := range other.Areas {
		mp.Areas[i] += v
	}
	for i, v := range other.Regions {
		mp.Regions[i] += v
	}
	mp.Points = append(mp.Points, other.Points...)
}

// Resolved is the fraction of quartets in the corner regions.
func (mp *Mapping) Resolved() float64 {
	if mp.Quartets == 0 {
		return math.NaN()
	}
	return float64(mp.Regions[0]+mp.Regions[1]+mp.Regions[2]) / float64(mp.Quartets)
}

// Unresolved is the fraction of quartets in the center.
func (mp *Mapping) Unresolved() float64 {
	if mp.Quartets == 0 {
		return math.NaN()
	}
	return float64(mp.Regions[6]) / float64(mp.Quartets)
}

// LikelihoodMapping evaluates a random sample of nsample quartets,
// or all of them if nsample is zero or not smaller than their number.
func (e *Evaluator) LikelihoodMapping(nsample int64, st *rng.Stream) *Mapping {
	n := e.NTaxa()
	total := NumQuartets(n)
	var quartets [][4]int
	if nsample <= 0 || nsample >= total {
		quartets = make([][4]int, 0, total)
		q := [4]int{0, 1, 2, 3}
		for k := int64(0); k < total; k++ {
			quartets = append(quartets, q)
			next(&q)
		}
	} else {
		quartets = make([][4]int, nsample)
		for i := range quartets {
			copy(quartets[i][:], st.Choose(n, 4))
			sort4(&quartets[i])
		}
	}
	log.Noticef("Likelihood mapping of %d quartets", len(quartets))

	return parallel.RangeReduce(0, len(quartets), 0, func(low, high int) interface{} {
		mp := &Mapping{Points: make([][3]float64, 0, high-low)}
		qt := e.newQuartetTree()
		for _, q := range quartets[low:high] {
			mp.add(qt.evaluate(q[0], q[1], q[2], q[3]))
		}
		return mp
	}, func(x, y interface{}) interface{} {
		mp := x.(*Mapping)
		mp.merge(y.(*Mapping))
		return mp
	}).(*Mapping)
}

// trianglePoint maps weights to the equilateral triangle with the AB
// corner on top, AC at the bottom left and AD at the bottom right.
func trianglePoint(w [3]float64) plotter.XY {
	return plotter.XY{
		X: 0.5*w[0] + w[2],
		Y: w[0] * math.Sqrt(3) / 2,
	}
}

// PlotMapping draws the likelihood mapping triangle with all the
// points and saves it to the file. The format is chosen by the file
// extension.
func PlotMapping(mp *Mapping, title, fname string) error {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()

	h := math.Sqrt(3) / 2
	border := plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0.5, Y: h}, {X: 0, Y: 0}}
	// lines separating the regions
	inner := plotter.XYs{{X: 0.25, Y: h / 2}, {X: 0.75, Y: h / 2}, {X: 0.5, Y: 0}, {X: 0.25, Y: h / 2}}

	outline, err := plotter.NewLine(border)
	if err != nil {
		return err
	}
	regions, err := plotter.NewLine(inner)
	if err != nil {
		return err
	}
	regions.Color = color.Gray{Y: 128}
	regions.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}

	pts := make(plotter.XYs, len(mp.Points))
	for i, w := range mp.Points {
		pts[i] = trianglePoint(w)
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(1)

	p.Add(scatter, outline, regions)
	p.X.Min, p.X.Max = -0.05, 1.05
	p.Y.Min, p.Y.Max = -0.05, h+0.05
	return p.Save(5*vg.Inch, 5*vg.Inch*vg.Length(h), fname)
}
