// Command plot-patterns renders the typical positions from a pattern snapshot
// as one scatter plot per camera, for eyeballing what the baseline learned.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/vigil.report/internal/vigil"
)

var palette = []color.RGBA{
	{R: 214, G: 39, B: 40, A: 255},
	{R: 31, G: 119, B: 180, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
}

func main() {
	input := flag.String("i", "data/behavioral_patterns.json", "pattern snapshot path")
	outDir := flag.String("o", "plots", "output directory")
	flag.Parse()

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("failed to read snapshot: %v", err)
	}
	var patterns map[string]vigil.BehavioralPattern
	if err := json.Unmarshal(data, &patterns); err != nil {
		log.Fatalf("failed to parse snapshot: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	// Group positions per camera, one series per subject.
	byCamera := make(map[string]map[string]plotter.XYs)
	for _, p := range patterns {
		if byCamera[p.Camera] == nil {
			byCamera[p.Camera] = make(map[string]plotter.XYs)
		}
		for _, pos := range p.TypicalPositions {
			byCamera[p.Camera][p.Subject] = append(byCamera[p.Camera][p.Subject], plotter.XY{X: pos[0], Y: pos[1]})
		}
	}

	for camera, subjects := range byCamera {
		pl := plot.New()
		pl.Title.Text = fmt.Sprintf("Typical positions: %s", camera)
		pl.X.Label.Text = "x (normalized)"
		pl.Y.Label.Text = "y (normalized)"
		pl.X.Min, pl.X.Max = 0, 1
		pl.Y.Min, pl.Y.Max = 0, 1

		i := 0
		for subject, pts := range subjects {
			scatter, err := plotter.NewScatter(pts)
			if err != nil {
				log.Fatalf("failed to build scatter for %s: %v", subject, err)
			}
			scatter.GlyphStyle.Color = palette[i%len(palette)]
			scatter.GlyphStyle.Radius = vg.Points(3)
			pl.Add(scatter)
			pl.Legend.Add(subject, scatter)
			i++
		}

		out := filepath.Join(*outDir, camera+".png")
		if err := pl.Save(6*vg.Inch, 6*vg.Inch, out); err != nil {
			log.Fatalf("failed to save plot: %v", err)
		}
		log.Printf("wrote %s (%d subjects)", out, len(subjects))
	}
}
