package config

import (
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/gcfg.v1"

	"particlesim/core"
)

// Example is a complete settings file with the default values
const Example = `[Simulation]
# Number of particles, fixed for the whole run.
ParticleCount = 64

# Every position component is drawn uniformly from [DistanceMin, DistanceMax)
# and every mass from [MassMin, MassMax).
DistanceMin = -1
DistanceMax = 1
MassMin = 0.5
MassMax = 2

# 0 seeds the generator from the clock.
Seed = 0

# Read one buffer slot and write the other, swapping every step. With false
# the kernel updates a single slot in place.
DoubleBuffered = true

GravitationalConstant = 0.001
# Added to the squared distance of every pair. Must be positive, coincident
# particles would otherwise divide by zero.
Softening = 0.05

# Seconds. A FixedTimestep of 0 uses the measured frame time, clamped to
# MaxTimestep and multiplied by TimeScale.
FixedTimestep = 0
MaxTimestep = 0.05
TimeScale = 1

[Camera]
FovY = 65
Near = 0.01
Far = 40
EyeX = 0
EyeY = 0
EyeZ = 10
TargetX = 0
TargetY = 0
TargetZ = 0
UpX = 0
UpY = 1
UpZ = 0

[Window]
Width = 768
Height = 768
Title = particlesim
VSync = false
PointSize = 1.5

[Shaders]
# Directory holding point.vert, point.frag and physics.comp. Empty uses the
# shaders built into the binary.
# Root = shaders
HotReload = false

[Telemetry]
# host:port for the /ws stats stream and /metrics. Empty disables both.
# Listen = localhost:8080
StatsIntervalMs = 1000

[Log]
# debug | info | warn | error
Level = info
# development | production
Environment = development`

type SimulationSettings struct {
	ParticleCount int

	DistanceMin, DistanceMax float64
	MassMin, MassMax         float64

	Seed           int64
	DoubleBuffered bool

	GravitationalConstant float64
	Softening             float64

	FixedTimestep float64
	MaxTimestep   float64
	TimeScale     float64
}

type CameraSettings struct {
	FovY, Near, Far           float64
	EyeX, EyeY, EyeZ          float64
	TargetX, TargetY, TargetZ float64
	UpX, UpY, UpZ             float64
}

type WindowSettings struct {
	Width, Height int
	Title         string
	VSync         bool
	PointSize     float64
}

type ShaderSettings struct {
	Root      string
	HotReload bool
}

type TelemetrySettings struct {
	Listen          string
	StatsIntervalMs int
}

type LogSettings struct {
	Level       string
	Environment string
}

// Settings is the whole configuration file
type Settings struct {
	Simulation SimulationSettings
	Camera     CameraSettings
	Window     WindowSettings
	Shaders    ShaderSettings
	Telemetry  TelemetrySettings
	Log        LogSettings
}

// Defaults returns the settings used when no file overrides them
func Defaults() *Settings {
	return &Settings{
		Simulation: SimulationSettings{
			ParticleCount:         64,
			DistanceMin:           -1,
			DistanceMax:           1,
			MassMin:               0.5,
			MassMax:               2,
			DoubleBuffered:        true,
			GravitationalConstant: 1e-3,
			Softening:             0.05,
			MaxTimestep:           0.05,
			TimeScale:             1,
		},
		Camera: CameraSettings{
			FovY: 65, Near: 0.01, Far: 40,
			EyeZ: 10,
			UpY:  1,
		},
		Window: WindowSettings{
			Width:     768,
			Height:    768,
			Title:     "particlesim",
			PointSize: 1.5,
		},
		Telemetry: TelemetrySettings{StatsIntervalMs: 1000},
		Log:       LogSettings{Level: "info", Environment: "development"},
	}
}

// Load overlays the file at path on Defaults. An empty path or a missing
// file leaves the defaults in place.
func Load(path string) (*Settings, error) {
	s := Defaults()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := gcfg.ReadFileInto(s, path); err != nil {
				return nil, errors.Wrapf(err, "parsing %s", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse overlays an INI document on Defaults
func Parse(text string) (*Settings, error) {
	s := Defaults()
	if err := gcfg.ReadStringInto(s, text); err != nil {
		return nil, errors.Wrap(err, "parsing settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Magnitude limits for sampled values. The samples are float32, and
// positions grow during the run, so the ranges stay far below its maximum.
const (
	MaxDistance = 1e6
	MaxMass     = 1e6
)

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate rejects settings the engine cannot run with
func (s *Settings) Validate() error {
	sim := &s.Simulation
	if !finite(sim.DistanceMin, sim.DistanceMax, sim.MassMin, sim.MassMax,
		sim.GravitationalConstant, sim.Softening, sim.FixedTimestep, sim.MaxTimestep, sim.TimeScale) {
		return errors.New("Simulation values must be finite numbers")
	}
	switch {
	case sim.ParticleCount <= 0 || sim.ParticleCount > core.MaxParticles:
		return errors.Errorf("Simulation.ParticleCount must be in [1, %d], but is %d",
			core.MaxParticles, sim.ParticleCount)
	case sim.DistanceMax < sim.DistanceMin:
		return errors.Errorf("Simulation.DistanceMin (%g) is above DistanceMax (%g)",
			sim.DistanceMin, sim.DistanceMax)
	case math.Abs(sim.DistanceMin) > MaxDistance || math.Abs(sim.DistanceMax) > MaxDistance:
		return errors.Errorf("Simulation distances must be within [-%g, %g], got [%g, %g]",
			float64(MaxDistance), float64(MaxDistance), sim.DistanceMin, sim.DistanceMax)
	case sim.MassMin < 0 || sim.MassMax < sim.MassMin:
		return errors.Errorf("Simulation masses must satisfy 0 <= MassMin <= MassMax, got [%g, %g]",
			sim.MassMin, sim.MassMax)
	case sim.MassMax > MaxMass:
		return errors.Errorf("Simulation.MassMax must be at most %g, but is %g", float64(MaxMass), sim.MassMax)
	case sim.Softening <= 0:
		return errors.Errorf("Simulation.Softening must be positive, but is %g", sim.Softening)
	case sim.FixedTimestep < 0 || sim.MaxTimestep <= 0 || sim.TimeScale < 0:
		return errors.New("Simulation timesteps must be positive and TimeScale non-negative")
	}

	cam := &s.Camera
	if !finite(cam.FovY, cam.Near, cam.Far, cam.EyeX, cam.EyeY, cam.EyeZ,
		cam.TargetX, cam.TargetY, cam.TargetZ, cam.UpX, cam.UpY, cam.UpZ) {
		return errors.New("Camera values must be finite numbers")
	}
	switch {
	case cam.FovY <= 0 || cam.FovY >= 180:
		return errors.Errorf("Camera.FovY must be in (0, 180), but is %g", cam.FovY)
	case cam.Near <= 0 || cam.Far <= cam.Near:
		return errors.Errorf("Camera planes must satisfy 0 < Near < Far, got %g and %g", cam.Near, cam.Far)
	case cam.EyeX == cam.TargetX && cam.EyeY == cam.TargetY && cam.EyeZ == cam.TargetZ:
		return errors.New("Camera eye and target coincide")
	}

	win := &s.Window
	switch {
	case win.Width <= 0 || win.Height <= 0:
		return errors.Wrapf(core.ErrInvalidViewport, "Window size %dx%d", win.Width, win.Height)
	case win.PointSize <= 0:
		return errors.Errorf("Window.PointSize must be positive, but is %g", win.PointSize)
	}

	if s.Telemetry.StatsIntervalMs <= 0 {
		return errors.Errorf("Telemetry.StatsIntervalMs must be positive, but is %d", s.Telemetry.StatsIntervalMs)
	}

	s.Log.Level = strings.ToLower(strings.TrimSpace(s.Log.Level))
	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("Log.Level must be one of [debug | info | warn | error], '%s' is not recognized",
			s.Log.Level)
	}
	return nil
}
