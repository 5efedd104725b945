package shaders

import (
	"embed"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"particlesim/gpu"
)

//go:embed glsl/*.vert glsl/*.frag glsl/*.comp
var builtin embed.FS

// Loader returns the source of one stage of a named program
type Loader interface {
	Load(name string, stage gpu.Stage) (string, error)
}

// FileLoader reads <Root>/<name><ext> from disk
type FileLoader struct {
	Root string
}

func (l FileLoader) Path(name string, stage gpu.Stage) string {
	return filepath.Join(l.Root, name+stage.Extension())
}

func (l FileLoader) Load(name string, stage gpu.Stage) (string, error) {
	path := l.Path(name, stage)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s shader %s", stage, path)
	}
	return string(data), nil
}

// EmbeddedLoader serves the shaders compiled into the binary
type EmbeddedLoader struct{}

func (EmbeddedLoader) Load(name string, stage gpu.Stage) (string, error) {
	data, err := builtin.ReadFile("glsl/" + name + stage.Extension())
	if err != nil {
		return "", errors.Wrapf(err, "no built-in %s shader for %q", stage, name)
	}
	return string(data), nil
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(name string, stage gpu.Stage) (string, error)

func (f LoaderFunc) Load(name string, stage gpu.Stage) (string, error) {
	return f(name, stage)
}
