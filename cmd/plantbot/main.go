// Plantbot - autonomous plant watering robot
// Drives along the table, stops at each pot, reads soil humidity from the
// radio link, estimates leaf cover with the camera and waters two plants
// per stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-plantbot/internal/config"
	"github.com/teslashibe/go-plantbot/internal/log"
	"github.com/teslashibe/go-plantbot/pkg/arm"
	"github.com/teslashibe/go-plantbot/pkg/camera"
	"github.com/teslashibe/go-plantbot/pkg/hardware"
	"github.com/teslashibe/go-plantbot/pkg/history"
	"github.com/teslashibe/go-plantbot/pkg/radio"
	"github.com/teslashibe/go-plantbot/pkg/remote"
	"github.com/teslashibe/go-plantbot/pkg/robot"
	"github.com/teslashibe/go-plantbot/pkg/statemachine"
	"github.com/teslashibe/go-plantbot/pkg/web"
)

func main() {
	cfg, autostart := parseFlags()
	if err := cfg.Validate(); err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, autostart); err != nil {
		if errors.Is(err, statemachine.ErrEmergencyStop) {
			fmt.Println("🛑 Emergency stop, robot parked")
			os.Exit(2)
		}
		if !errors.Is(err, context.Canceled) {
			stdlog.Fatalf("❌ Runtime error: %v", err)
		}
	}
	fmt.Println("👋 Plantbot stopped")
}

func run(ctx context.Context, cfg config.Config, autostart bool) error {
	fmt.Println("🌱 Plantbot starting")

	// Hardware
	var hw robot.Hardware
	var board *hardware.Board
	if cfg.Sim {
		fmt.Println("🧪 Simulation mode, no GPIO")
		hw = hardware.NewSim(hardware.DefaultSimConfig())
	} else {
		b, err := hardware.NewBoard(cfg.Hardware)
		if err != nil {
			return fmt.Errorf("hardware: %w", err)
		}
		if err := b.Start(); err != nil {
			return fmt.Errorf("hardware start: %w", err)
		}
		defer b.Stop()
		board, hw = b, b
	}

	// Soil humidity radio
	store := radio.NewStore(cfg.Radio.MaxAge)
	var receiver *radio.Receiver
	if !cfg.Sim {
		receiver = radio.NewReceiver(store)
		go func() {
			if err := receiver.Run(ctx, cfg.Radio); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("radio bridge stopped, using last known humidity", "port", cfg.Radio.Port, "error", err)
			}
		}()
	}

	// Greenery
	var greenery robot.GreeneryEstimator = camera.Fixed(cfg.FixedGreenery)
	var camManager *camera.Manager
	if cfg.Camera {
		camManager = camera.NewManager(cfg.CameraConfig)
		estimator := camera.NewEstimator(camManager)
		defer estimator.Close()
		greenery = estimator
	}

	// History
	hist, err := history.Open(cfg.History)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer hist.Close()

	console := statemachine.ObserverFuncs{
		Watering: func(e statemachine.WateringEvent) {
			fmt.Printf("💧 Plant %d: %.0f%% humidity, %.1f ml, valve %s\n",
				e.PlantIndex, e.Decision.HumidityPercent, e.Decision.VolumeMl, e.ValveOpen.Round(time.Millisecond))
		},
	}
	ctrl, err := statemachine.New(hw, store, greenery, cfg.Controller,
		statemachine.WithObserver(hist), statemachine.WithObserver(console))
	if err != nil {
		return err
	}

	if board != nil {
		board.OnStopButton(func() { ctrl.EmergencyStop("stop button") })
	}

	// Dashboard and pendants share one listener
	srv := web.NewServer(cfg.DashboardPort, ctrl)
	srv.History = hist
	srv.Camera = camManager
	srv.RadioSnapshot = store.Snapshot
	if receiver != nil {
		srv.RadioStats = receiver.Stats
	}
	ctrl.AddObserver(srv)

	pendants := remote.NewHub(ctrl, camManager)
	pendants.RegisterRoutes(srv.App())
	pendants.RegisterAPIRoutes(srv.App().Group("/api"))
	ctrl.AddObserver(pendants)

	if cfg.DashboardPort != "" {
		srv.StartAsync(ctx)
		defer srv.Shutdown()
		fmt.Printf("📊 Dashboard: http://localhost:%s\n", cfg.DashboardPort)
	}

	fmt.Printf("🤖 Run %s ready, press start\n", ctrl.RunID())
	if autostart {
		ctrl.RequestStart()
	}
	return ctrl.Run(ctx)
}

// parseFlags loads .env and environment configuration, then applies
// command line overrides.
func parseFlags() (config.Config, bool) {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	sim := flag.Bool("sim", cfg.Sim, "Run against the simulated table instead of GPIO")
	autostart := flag.Bool("autostart", false, "Start the first pass without waiting for the button")
	port := flag.String("port", cfg.DashboardPort, "Dashboard port (empty disables the dashboard)")
	serialPort := flag.String("serial", cfg.Radio.Port, "Serial device of the humidity radio bridge")
	db := flag.String("db", cfg.History.Path, "SQLite history database")
	speed := flag.Float64("speed", cfg.Controller.DriveSpeedPercent, "Drive duty cycle in percent")
	noCamera := flag.Bool("no-camera", !cfg.Camera, "Use the fixed greenery value instead of the camera")
	greenery := flag.Float64("greenery", cfg.FixedGreenery, "Fixed greenery percent used without a camera")
	endOfTable := flag.String("end-of-table", cfg.Controller.EndOfTable.String(), "At the table end: standby or terminate")
	direction := flag.String("direction", cfg.Controller.DriveDirection.String(), "Drive direction along the table: forward or backward")
	settle := flag.Duration("settle", cfg.Controller.SettleDelay, "Arm settle time around each valve opening")
	fastArm := flag.Bool("fast-arm", false, "Quick arm sweeps for bench runs without the water line")
	flag.Parse()

	policy, err := statemachine.ParseEndOfTablePolicy(*endOfTable)
	if err != nil {
		stdlog.Fatalf("❌ %v", err)
	}
	dir, err := robot.ParseDirection(*direction)
	if err != nil {
		stdlog.Fatalf("❌ %v", err)
	}

	cfg.LogLevel, cfg.Sim, cfg.DashboardPort = *logLevel, *sim, *port
	cfg.Radio.Port, cfg.History.Path = *serialPort, *db
	cfg.Controller.DriveSpeedPercent = *speed
	cfg.Controller.EndOfTable = policy
	cfg.Controller.DriveDirection, cfg.Controller.SettleDelay = dir, *settle
	if *fastArm {
		cfg.Controller.Motion = arm.FastMotionConfig()
	}
	cfg.Camera, cfg.FixedGreenery = !*noCamera, *greenery
	return cfg, *autostart
}
