package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/loadcell"
	"github.com/itohio/gohx711/pkg/logging"
	"github.com/itohio/gohx711/pkg/sample"
)

func main() {
	var (
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use a simulated chip instead of GPIO")
		tareFlag     = flag.Bool("tare", true, "Zero the scale before weighing")
		intervalFlag = flag.Duration("interval", 500*time.Millisecond, "Time between weights")
		windowFlag   = flag.Int("window", 0, "Moving average window (0 = disabled)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *mockFlag {
		cfg.GPIO.Backend = "mock"
	}

	logger := logging.NewDefault(cfg.Debug)

	cell, err := loadcell.Open(cfg, loadcell.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to open load cell: %v", err)
	}
	defer func() {
		if err := cell.Close(); err != nil {
			logger.Errorf("%v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *tareFlag {
		if err := cell.Tare(ctx); err != nil {
			logger.Errorf("tare failed: %v", err)
			return
		}
	}

	var samples <-chan sample.Sample
	if *windowFlag > 1 {
		samples = cell.Smoothed(ctx, *intervalFlag, *windowFlag, sample.Average)
	} else {
		samples = cell.Stream(ctx, *intervalFlag)
	}

	for s := range samples {
		logger.Infof("%s  %v", s.Timestamp.Format(time.TimeOnly), s.Mass)
	}
}
