// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command lutbake runs the atmosphere LUT pipeline headless and reports
// per-step timings and texture memory.
//
// Usage:
//
//	lutbake -kernels atmosphere.wgsl [-config sky.toml] [-backend vulkan] [-ticks 200] [-watch] [-v]
//
// Without -ticks a single Updater run is performed. With -ticks a Ring is
// ticked that many times, rotating whenever a run completes.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/skylut"
	"github.com/gogpu/skylut/gpu"
)

func main() {
	var (
		configPath  = flag.String("config", "", "TOML pipeline config (defaults when empty)")
		kernelsPath = flag.String("kernels", "", "WGSL file with the atmosphere kernels (required)")
		backend     = flag.String("backend", "auto", "HAL backend: auto, vulkan, metal, dx12, gl, software")
		ticks       = flag.Int("ticks", 0, "tick a ring this many times instead of one run")
		watch       = flag.Bool("watch", false, "reload [atmosphere] from -config while ticking")
		memoryMB    = flag.Int("memory", 0, "texture budget in MB (default 256)")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	skylut.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *kernelsPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *watch && (*configPath == "" || *ticks <= 0) {
		log.Fatal("-watch needs -config and -ticks")
	}

	cfg := skylut.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = skylut.LoadConfig(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	opts, err := cfg.Options()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	src, err := os.ReadFile(*kernelsPath)
	if err != nil {
		log.Fatalf("kernels: %v", err)
	}
	be, err := gpu.Open(*backend, gpu.Config{
		Kernels:     string(src),
		Format:      cfg.LUT.Format,
		MaxMemoryMB: *memoryMB,
	})
	if err != nil {
		log.Fatalf("gpu: %v", err)
	}
	defer be.Close()

	if *ticks > 0 {
		var params skylut.ParamsSource = skylut.StaticParams(cfg.Atmosphere)
		if *watch {
			w, err := skylut.WatchParams(*configPath)
			if err != nil {
				log.Fatalf("watch: %v", err)
			}
			defer w.Close()
			params = w
		}
		err = runRing(be, cfg, params, *ticks, opts)
	} else {
		err = runOnce(be, cfg, opts)
	}
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("done", "dispatches", be.Dispatches(), "memory", be.Stats().String())
}

func runOnce(be *gpu.Backend, cfg skylut.Config, opts []skylut.Option) error {
	u, err := skylut.NewUpdater(be.Dispatcher(), be.Allocator(), cfg.LUT, opts...)
	if err != nil {
		return err
	}
	defer u.Close()

	start := time.Now()
	if err := u.Run(cfg.Atmosphere); err != nil {
		return err
	}
	total := time.Since(start)

	for _, st := range u.Timings() {
		fmt.Printf("%-40s %10s\n", st.Step, st.Duration)
	}
	fmt.Printf("%-40s %10s\n", "total", total)

	set, _ := u.Result()
	fmt.Printf("transmittance %s\nscattering    %s\nirradiance    %s\n",
		set.Transmittance.Desc(), set.MultipleScattering.Desc(), set.Irradiance.Desc())
	return nil
}

// logBinder reports every published set.
type logBinder struct{}

func (logBinder) BindLUTs(cur skylut.LUTSet, prev *skylut.LUTSet) {
	slog.Info("published", "slot", cur.Slot, "run", cur.Ordinal, "cross_fade", prev != nil)
}

func (logBinder) SetBlendWeight(float32) {}

func runRing(be *gpu.Backend, cfg skylut.Config, params skylut.ParamsSource, ticks int, opts []skylut.Option) error {
	opts = append(opts, skylut.WithBinder(logBinder{}))
	ring, err := skylut.NewRing(be.Dispatcher(), be.Allocator(), cfg.LUT, params, opts...)
	if err != nil {
		return err
	}
	defer ring.Close()

	for i := 0; i < ticks; i++ {
		if err := ring.Tick(); err != nil {
			slog.Warn("tick failed, restarting run", "tick", i, "error", err)
			if err := ring.Restart(); err != nil {
				return err
			}
		}
	}
	done, total := ring.Active().Progress()
	slog.Info("ring", "rotations", ring.Rotations(), "active_progress", fmt.Sprintf("%d/%d", done, total),
		"weight", ring.Weight())
	return nil
}
