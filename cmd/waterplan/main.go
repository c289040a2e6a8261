// Waterplan - offline valve calculator
// Prints the predicted volume and valve time for a humidity/greenery pair,
// a grid of pairs, or the volume delivered by a given valve time.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/teslashibe/go-plantbot/pkg/watering"
)

func main() {
	humidity := flag.Float64("humidity", 75, "Soil humidity percent")
	greenery := flag.Float64("greenery", 20, "Leaf cover percent")
	grid := flag.Bool("grid", false, "Print a humidity x greenery grid")
	seconds := flag.Float64("seconds", -1, "Print the volume delivered by this valve time")
	maxOpen := flag.Duration("max", watering.DefaultPolicy().Max, "Cap on a single valve opening (0 disables)")
	fallback := flag.Duration("fallback", 0, "Valve time used when the volume has no solution")
	flag.Parse()

	if *seconds >= 0 {
		fmt.Printf("💧 %.2f s -> %.1f ml\n", *seconds, watering.VolumeForSeconds(*seconds))
		return
	}

	policy := watering.Policy{Fallback: *fallback, Max: *maxOpen}
	if err := policy.Validate(); err != nil {
		log.Fatalf("❌ Invalid policy: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HUMIDITY\tGREENERY\tVOLUME ML\tCURVE S\tVALVE\tNOTE")

	if !*grid {
		printRow(w, policy, *humidity, *greenery)
		w.Flush()
		return
	}

	for h := 0.0; h <= 100; h += 10 {
		for g := 0.0; g <= 60; g += 20 {
			printRow(w, policy, h, g)
		}
	}
	w.Flush()
}

func printRow(w *tabwriter.Writer, policy watering.Policy, humidity, greenery float64) {
	d := watering.ComputeDecision(humidity, greenery)
	valve, err := policy.Apply(d)

	note := ""
	switch {
	case errors.Is(err, watering.ErrOutOfCalibrationRange):
		note = "out of range"
	case errors.Is(err, watering.ErrDurationCapped):
		note = "capped"
	}

	curve := "-"
	if d.InRange {
		curve = fmt.Sprintf("%.2f", d.ValveOpenSeconds)
	}
	fmt.Fprintf(w, "%.0f%%\t%.0f%%\t%.1f\t%s\t%s\t%s\n",
		humidity, greenery, d.VolumeMl, curve, valve.Round(time.Millisecond), note)
}
