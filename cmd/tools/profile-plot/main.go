// Command profile-plot renders a jerk-limited path profile to a PNG so a
// maneuver's speed and acceleration shape can be eyeballed before it is
// trusted on hardware.
package main

import (
	"flag"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motionshield/internal/path"
)

func main() {
	output := flag.String("o", "profile.png", "output path")
	v0 := flag.Float64("v0", 1.0, "start speed fraction")
	a0 := flag.Float64("a0", 0.0, "start acceleration")
	ve := flag.Float64("ve", 0.0, "target speed fraction (0 = full stop)")
	aMax := flag.Float64("amax", 2.0, "acceleration bound")
	jMax := flag.Float64("jmax", 15.0, "jerk bound")
	dt := flag.Float64("dt", 0.002, "sample spacing, seconds")
	flag.Parse()

	p, err := path.Plan(0, *v0, *a0, *ve, *aMax, *jMax)
	if err != nil {
		log.Fatalf("infeasible profile: %v", err)
	}
	total := p.TotalTime()
	log.Printf("profile reaches %.3f in %.3fs", *ve, total)

	var posPts, velPts, accPts plotter.XYs
	for t := 0.0; t <= total+*dt; t += *dt {
		pos, vel, acc := p.StateAt(t)
		posPts = append(posPts, plotter.XY{X: t, Y: pos})
		velPts = append(velPts, plotter.XY{X: t, Y: vel})
		accPts = append(accPts, plotter.XY{X: t, Y: acc})
	}

	plt := plot.New()
	plt.Title.Text = "Jerk-limited path profile"
	plt.X.Label.Text = "time (s)"
	plt.Legend.Top = true

	for _, series := range []struct {
		name string
		pts  plotter.XYs
		dash float64
	}{
		{"position s", posPts, 0},
		{"speed ds", velPts, 0},
		{"acceleration dds", accPts, 2},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			log.Fatalf("failed to build %s series: %v", series.name, err)
		}
		line.Width = vg.Points(1)
		if series.dash > 0 {
			line.Dashes = []vg.Length{vg.Points(series.dash), vg.Points(series.dash)}
		}
		plt.Add(line)
		plt.Legend.Add(series.name, line)
	}

	if err := plt.Save(8*vg.Inch, 5*vg.Inch, *output); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	log.Printf("✓ Created: %s", *output)
}
