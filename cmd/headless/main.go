// Command headless runs the frame engine on the software device, without a
// window or a GPU, and prints how the particles moved.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"particlesim/config"
	"particlesim/engine"
	"particlesim/gpu"
	"particlesim/logger"
	"particlesim/physics"
)

// offscreen stands in for a window: there is nothing to make current and
// nothing to present
type offscreen struct {
	presented int
}

func (o *offscreen) MakeCurrent() error { return nil }

func (o *offscreen) SwapBuffers() error {
	o.presented++
	return nil
}

func main() {
	var (
		configPath = flag.String("config", "", "INI settings file")
		frames     = flag.Uint64("frames", 600, "Frames to simulate")
		particles  = flag.Int("particles", 0, "Particle count, overrides the settings file")
		show       = flag.Int("show", 8, "Particles to print")
	)
	flag.Parse()

	if err := run(*configPath, *frames, *particles, *show); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, frames uint64, particles, show int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if particles > 0 {
		cfg.Simulation.ParticleCount = particles
	}
	if cfg.Simulation.FixedTimestep == 0 {
		// wall clock time means nothing without vsync
		cfg.Simulation.FixedTimestep = 1.0 / 60
	}

	fmt.Println("=== Headless particle run ===")
	dev := gpu.NewSoftDevice(physics.ReferenceKernel)
	if err := dev.Info().WriteTable(os.Stdout); err != nil {
		return err
	}

	ctx := &offscreen{}
	e := engine.New(engine.Options{
		Device:  dev,
		Context: ctx,
		Logger:  logger.New(logger.Config{Environment: cfg.Log.Environment, Level: cfg.Log.Level}),
	})

	var before, after []mgl32.Vec3
	if err := e.Init(cfg); err != nil {
		return err
	}
	if before, err = e.Positions(); err != nil {
		e.Deinit()
		return err
	}
	for i := uint64(0); i < frames; i++ {
		if err := e.RenderFrame(); err != nil {
			e.Deinit()
			return err
		}
	}
	if after, err = e.Positions(); err != nil {
		e.Deinit()
		return err
	}
	stats := e.Stats()
	if err := e.Deinit(); err != nil {
		return err
	}

	fmt.Printf("\nSimulated %d frames, presented %d, %.1f fps on the software device\n\n",
		stats.Frames, ctx.presented, stats.FPS)
	return printParticles(before, after, show)
}

func printParticles(before, after []mgl32.Vec3, show int) error {
	if show > len(after) {
		show = len(after)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"#", "start", "end", "moved"})
	for i := 0; i < show; i++ {
		moved := after[i].Sub(before[i]).Len()
		if err := table.Append([]string{
			fmt.Sprintf("%d", i),
			formatVec(before[i]),
			formatVec(after[i]),
			fmt.Sprintf("%.4f", moved),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	var nonFinite int
	for _, p := range after {
		for _, c := range p {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				nonFinite++
			}
		}
	}
	if nonFinite > 0 {
		return errors.Errorf("%d non-finite position components", nonFinite)
	}
	return nil
}

func formatVec(v mgl32.Vec3) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v[0], v[1], v[2])
}
