// Command picboot exercises the legacy interrupt stack end to end. It
// builds a machine, registers a counting handler for every configured
// interrupt source, unmasks their lines and pulses them at the
// configured rate while the delivery loop runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/tinyrange/pic8259"
	"github.com/tinyrange/pic8259/internal/platform"
)

type sourceConfig struct {
	Line     uint8  `yaml:"line"`
	Interval string `yaml:"interval"`
	Count    int    `yaml:"count"`
}

type config struct {
	Sources []sourceConfig `yaml:"sources"`
}

func defaultConfig() config {
	return config{Sources: []sourceConfig{
		{Line: 0, Interval: "10ms", Count: 100},
		{Line: 10, Interval: "35ms", Count: 20},
	}}
}

func loadConfig(path string) (config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Sources) == 0 {
		return config{}, fmt.Errorf("config lists no interrupt sources")
	}
	return cfg, nil
}

func vectorForLine(line uint8) uint {
	if line < 8 {
		return platform.PrimaryVectorBase + uint(line)
	}
	return platform.SecondaryVectorBase + uint(line-8)
}

func main() {
	configPath := flag.String("config", "", "path to a YAML source config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if err := run(*configPath); err != nil {
		slog.Error("picboot failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	m, err := pic8259.NewMachine()
	if err != nil {
		return err
	}
	intc := m.Interrupts()

	counters := make([]*atomic.Int64, len(cfg.Sources))
	intervals := make([]time.Duration, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.Line >= 16 {
			return fmt.Errorf("source %d: line %d out of range", i, src.Line)
		}
		interval, err := time.ParseDuration(src.Interval)
		if err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		intervals[i] = interval

		counters[i] = new(atomic.Int64)
		vector := vectorForLine(src.Line)
		intc.RegisterHandler(vector, func(arg any) platform.Disposition {
			arg.(*atomic.Int64).Add(1)
			return platform.NoReschedule
		}, counters[i])
		if err := intc.Unmask(vector); err != nil {
			return fmt.Errorf("unmask vector 0x%02x: %w", vector, err)
		}
		slog.Info("source armed", "line", src.Line, "vector", fmt.Sprintf("0x%02x", vector),
			"interval", interval, "count", src.Count)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliver := make(chan error, 1)
	go func() { deliver <- m.Run(ctx) }()

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range cfg.Sources {
		line, count, interval := src.Line, src.Count, intervals[i]
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for n := 0; n < count; n++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					m.RaiseIRQ(line)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Let the delivery loop drain the last pulses before stopping it.
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-deliver; !errors.Is(err, context.Canceled) {
		return err
	}

	for i, src := range cfg.Sources {
		slog.Info("source finished", "line", src.Line,
			"raised", src.Count, "handled", counters[i].Load())
	}
	return nil
}
