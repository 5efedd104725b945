package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"particlesim/config"
	"particlesim/engine"
	"particlesim/gpu"
	"particlesim/logger"
	"particlesim/platform"
	"particlesim/rendering/opengl/shaders"
	"particlesim/telemetry"
	"particlesim/timing"
)

func init() {
	// GLFW and the GL context must stay on the main thread
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.String("config", "", "INI settings file")
		width      = flag.Int("width", 0, "Window width, overrides the settings file")
		height     = flag.Int("height", 0, "Window height, overrides the settings file")
		particles  = flag.Int("particles", 0, "Particle count, overrides the settings file")
		frames     = flag.Uint64("frames", 0, "Stop after this many frames, 0 runs until the window closes")
		example    = flag.Bool("example", false, "Print an example settings file and exit")
	)
	flag.Parse()

	if *example {
		fmt.Println(config.Example)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *width > 0 {
		cfg.Window.Width = *width
	}
	if *height > 0 {
		cfg.Window.Height = *height
	}
	if *particles > 0 {
		cfg.Simulation.ParticleCount = *particles
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.New(logger.Config{
		Environment: cfg.Log.Environment,
		Level:       cfg.Log.Level,
		RunID:       uuid.NewString(),
	})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, *frames, log); err != nil {
		log.Error("particlesim stopped", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func banner(cfg *config.Settings) {
	title := color.New(color.FgHiCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	title.Println("=== particlesim: GPU n-body frame engine ===")
	dim.Printf("particles %d  double buffered %v  window %dx%d\n",
		cfg.Simulation.ParticleCount, cfg.Simulation.DoubleBuffered,
		cfg.Window.Width, cfg.Window.Height)
}

func run(cfg *config.Settings, maxFrames uint64, log *zap.Logger) error {
	banner(cfg)

	win, err := platform.Open(cfg.Window, log)
	if err != nil {
		return err
	}
	// the loop closes the window once the engine is torn down

	dev := gpu.NewGLDevice()
	if err := dev.Info().WriteTable(os.Stdout); err != nil {
		log.Warn("writing device table", zap.Error(err))
	}

	var loader shaders.Loader = shaders.EmbeddedLoader{}
	if cfg.Shaders.Root != "" {
		loader = shaders.FileLoader{Root: cfg.Shaders.Root}
	}

	loop := &engine.Loop{
		Config:    cfg,
		Events:    win,
		MaxFrames: maxFrames,
	}

	if cfg.Shaders.HotReload {
		if cfg.Shaders.Root == "" {
			log.Warn("hot reload needs Shaders.Root, watching nothing")
		} else {
			watcher, err := shaders.NewWatcher(cfg.Shaders.Root, shaders.DefaultDebounce, log)
			if err != nil {
				win.Close()
				return err
			}
			defer watcher.Close()
			loop.Reload = watcher.Changes()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	exporter, err := timing.NewExporter(reg)
	if err != nil {
		win.Close()
		return err
	}

	var server *telemetry.Server
	if cfg.Telemetry.Listen != "" {
		server = telemetry.New(cfg.Telemetry.Listen, reg, log)
		if err := server.Start(); err != nil {
			win.Close()
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := server.Close(ctx); err != nil {
				log.Warn("closing telemetry", zap.Error(err))
			}
		}()
	}

	loop.OnStats = func(s timing.Stats) {
		exporter.Observe(s)
		if server != nil {
			server.Publish(s)
		}
	}

	loop.Engine = engine.New(engine.Options{
		Device:  dev,
		Context: win,
		Loader:  loader,
		Logger:  log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return loop.Run(ctx)
}
