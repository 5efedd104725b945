// Package platform opens the GLFW window that hosts the OpenGL 4.3 core
// context the engine renders into.
package platform

import (
	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"particlesim/config"
	"particlesim/core"
	"particlesim/engine"
)

// Window owns the GLFW window and its context. All methods must be called
// from the thread that created it.
type Window struct {
	win    *glfw.Window
	log    *zap.Logger
	events engine.EventQueue
	closed bool
}

// Open initializes GLFW, creates a resizable window with a forward compatible
// 4.3 core context, makes it current and loads the GL entry points.
func Open(cfg config.WindowSettings, log *zap.Logger) (*Window, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := glfw.Init(); err != nil {
		return nil, &core.EnvironmentError{Op: "initialize glfw", Err: err}
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, &core.EnvironmentError{Op: "create window", Err: err}
	}
	win.MakeContextCurrent()
	if cfg.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	if err := gl.Init(); err != nil {
		win.Destroy()
		glfw.Terminate()
		return nil, &core.EnvironmentError{Op: "load opengl", Err: err}
	}

	w := &Window{win: win, log: log}
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.events.Push(engine.Resize(width, height))
	})
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		if k := translateKey(key); k != engine.KeyUnknown {
			w.events.Push(engine.KeyDown(k))
		}
	})

	// the framebuffer can differ from the requested size on HiDPI screens
	if fw, fh := win.GetFramebufferSize(); fw != cfg.Width || fh != cfg.Height {
		w.events.Push(engine.Resize(fw, fh))
	}

	log.Info("window opened",
		zap.String("title", cfg.Title),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Bool("vsync", cfg.VSync))
	return w, nil
}

func translateKey(key glfw.Key) engine.Key {
	switch key {
	case glfw.KeyEscape:
		return engine.KeyEscape
	case glfw.KeyR:
		return engine.KeyReload
	}
	return engine.KeyUnknown
}

func (w *Window) MakeCurrent() error {
	if w.closed {
		return errors.New("window is closed")
	}
	w.win.MakeContextCurrent()
	return nil
}

func (w *Window) SwapBuffers() error {
	if w.closed {
		return errors.New("window is closed")
	}
	w.win.SwapBuffers()
	return nil
}

// Poll processes pending window system events. Closing the window shows up
// as a quit event.
func (w *Window) Poll() []engine.Event {
	if w.closed {
		return []engine.Event{engine.Quit()}
	}
	glfw.PollEvents()
	if w.win.ShouldClose() {
		w.events.Push(engine.Quit())
	}
	return w.events.Poll()
}

// ShouldClose reports whether the user asked to close the window
func (w *Window) ShouldClose() bool {
	return w.closed || w.win.ShouldClose()
}

// Close destroys the window and terminates GLFW. Calling it again does
// nothing.
func (w *Window) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.win.Destroy()
	glfw.Terminate()
	w.log.Debug("window closed")
	return nil
}
