// Greenery - camera calibration check
// Measures leaf cover from an image file or a live capture with the
// configured HSV band, so the band can be tuned before a run.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/teslashibe/go-plantbot/pkg/camera"
)

func main() {
	image := flag.String("image", "", "Image file to measure instead of the camera")
	device := flag.Int("device", 0, "Camera device index")
	preset := flag.String("preset", camera.PresetDefault, "HSV band preset: default, wide, strict, hd")
	samples := flag.Int("n", 1, "Number of captures to average")
	flag.Parse()

	cfg := camera.GetPreset(*preset)
	if cfg == nil {
		log.Fatalf("❌ Unknown preset %q (have %v)", *preset, camera.PresetNames())
	}
	cfg.Device = *device
	if errs := cfg.Validate(); len(errs) > 0 {
		log.Fatalf("❌ Invalid camera config: %v", errs)
	}

	fmt.Printf("🎨 Band %v .. %v\n", cfg.Lower, cfg.Upper)

	if *image != "" {
		pct, err := camera.GreeneryFromFile(*image, cfg.Lower, cfg.Upper)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Printf("🌿 %s: %.2f%% green\n", *image, pct)
		return
	}

	estimator := camera.NewEstimator(camera.NewManager(*cfg))
	defer estimator.Close()

	var sum float64
	for i := 0; i < *samples; i++ {
		pct, err := estimator.EstimateGreeneryPercent()
		if err != nil {
			log.Fatalf("❌ Capture %d: %v", i+1, err)
		}
		fmt.Printf("📷 Capture %d: %.2f%%\n", i+1, pct)
		sum += pct
	}
	if *samples > 1 {
		fmt.Printf("🌿 Average: %.2f%%\n", sum/float64(*samples))
	}
}
