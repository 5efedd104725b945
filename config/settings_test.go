package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"particlesim/core"
)

func TestDefaults(t *testing.T) {
	s := Defaults()
	require.NoError(t, s.Validate())
	assert.Equal(t, 64, s.Simulation.ParticleCount)
	assert.True(t, s.Simulation.DoubleBuffered)
	assert.Equal(t, 65.0, s.Camera.FovY)
	assert.Equal(t, 0.01, s.Camera.Near)
	assert.Equal(t, 40.0, s.Camera.Far)
	assert.Equal(t, 10.0, s.Camera.EyeZ)
	assert.Equal(t, 768, s.Window.Width)
	assert.Equal(t, 768, s.Window.Height)
	assert.False(t, s.Window.VSync)
	assert.Equal(t, 1.5, s.Window.PointSize)
	assert.Empty(t, s.Shaders.Root)
	assert.Empty(t, s.Telemetry.Listen)
}

func TestExampleMatchesDefaults(t *testing.T) {
	s, err := Parse(Example)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)

	s, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.ini")
	text := "[Simulation]\nParticleCount = 1024\nDoubleBuffered = false\n\n[Window]\nVSync = true\n\n[Log]\nLevel = DEBUG\n"
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, s.Simulation.ParticleCount)
	assert.False(t, s.Simulation.DoubleBuffered)
	assert.True(t, s.Window.VSync)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, 768, s.Window.Width, "untouched values keep defaults")
}

func TestLoadRejectsUnknownVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ini")
	require.NoError(t, os.WriteFile(path, []byte("[Simulation]\nParticles = 3\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"no particles", func(s *Settings) { s.Simulation.ParticleCount = 0 }},
		{"too many particles", func(s *Settings) { s.Simulation.ParticleCount = core.MaxParticles + 1 }},
		{"inverted distance", func(s *Settings) { s.Simulation.DistanceMin = 5 }},
		{"negative mass", func(s *Settings) { s.Simulation.MassMin = -1 }},
		{"negative softening", func(s *Settings) { s.Simulation.Softening = -0.1 }},
		{"zero softening", func(s *Settings) { s.Simulation.Softening = 0 }},
		{"distance beyond float32", func(s *Settings) {
			s.Simulation.DistanceMin, s.Simulation.DistanceMax = -3e38, 3e38
		}},
		{"huge mass", func(s *Settings) { s.Simulation.MassMax = 1e30 }},
		{"nan distance", func(s *Settings) { s.Simulation.DistanceMax = math.NaN() }},
		{"infinite time scale", func(s *Settings) { s.Simulation.TimeScale = math.Inf(1) }},
		{"nan eye", func(s *Settings) { s.Camera.EyeX = math.NaN() }},
		{"zero max timestep", func(s *Settings) { s.Simulation.MaxTimestep = 0 }},
		{"flat fov", func(s *Settings) { s.Camera.FovY = 180 }},
		{"near behind far", func(s *Settings) { s.Camera.Near = 50 }},
		{"eye on target", func(s *Settings) { s.Camera.EyeZ = 0 }},
		{"zero width", func(s *Settings) { s.Window.Width = 0 }},
		{"zero point size", func(s *Settings) { s.Window.PointSize = 0 }},
		{"zero stats interval", func(s *Settings) { s.Telemetry.StatsIntervalMs = 0 }},
		{"unknown level", func(s *Settings) { s.Log.Level = "verbose" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := Defaults()
			tc.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestValidateWindowWrapsViewportError(t *testing.T) {
	s := Defaults()
	s.Window.Height = -3
	assert.ErrorIs(t, s.Validate(), core.ErrInvalidViewport)
}
