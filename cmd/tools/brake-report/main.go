// Command brake-report renders the flight recorder's cycle log as an HTML
// chart: speed fraction and progress over time, with the cycles resolved by
// the failsafe path highlighted.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/motionshield/internal/store"
)

func main() {
	dbFile := flag.String("db", "flight.db", "path to the flight recorder database")
	output := flag.String("o", "brake-report.html", "output path")
	limit := flag.Int("limit", 20000, "maximum number of cycles to chart")
	flag.Parse()

	db, err := store.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open flight recorder: %v", err)
	}
	defer db.Close()

	cycles, err := db.Cycles(*limit)
	if err != nil {
		log.Fatalf("failed to read cycles: %v", err)
	}
	if len(cycles) == 0 {
		log.Fatal("no cycles recorded")
	}

	// Cycles() returns newest first; the chart wants execution order.
	for i, j := 0, len(cycles)-1; i < j; i, j = i+1, j-1 {
		cycles[i], cycles[j] = cycles[j], cycles[i]
	}

	xAxis := make([]string, 0, len(cycles))
	dsData := make([]opts.LineData, 0, len(cycles))
	sData := make([]opts.LineData, 0, len(cycles))
	failsafe := make([]opts.ScatterData, 0)
	var failsafeCount int
	for _, c := range cycles {
		xAxis = append(xAxis, fmt.Sprintf("%d", c.Cycle))
		dsData = append(dsData, opts.LineData{Value: c.PathDS})
		sData = append(sData, opts.LineData{Value: c.PathS})
		if !c.Safe {
			failsafeCount++
			failsafe = append(failsafe, opts.ScatterData{Value: []interface{}{fmt.Sprintf("%d", c.Cycle), c.PathDS}})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Shield brake report",
			Width:     "1400px",
			Height:    "700px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Shield cycle log",
			Subtitle: fmt.Sprintf("cycles=%d failsafe=%d span=%s..%s",
				len(cycles), failsafeCount,
				cycles[0].Time.Format("15:04:05.000"),
				cycles[len(cycles)-1].Time.Format("15:04:05.000")),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "cycle"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "speed fraction / progress (s)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xAxis).
		AddSeries("speed fraction ds", dsData).
		AddSeries("progress s", sData)

	scatter := charts.NewScatter()
	scatter.AddSeries("failsafe cycles", failsafe,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	line.Overlap(scatter)

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("✓ Created: %s (%d cycles, %d failsafe)", *output, len(cycles), failsafeCount)
}
