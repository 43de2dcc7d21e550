package ebitengine

import (
	"fmt"
	"path/filepath"

	"github.com/Eyevinn/videoplane/internal"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/spf13/afero"
)

// EffectExt is the file extension of Kage effect sources.
const EffectExt = ".kage"

// Effect is a compiled Kage shader.
type Effect struct {
	name   string
	shader *ebiten.Shader
}

func (e *Effect) Name() string { return e.name }

// Release deallocates the shader. Safe to call more than once.
func (e *Effect) Release() error {
	if e.shader != nil {
		e.shader.Deallocate()
		e.shader = nil
	}
	return nil
}

// KageContent loads effects from <dir>/<name>.kage.
type KageContent struct {
	fs  afero.Fs
	dir string
}

// NewKageContent creates a loader reading from dir on fsys.
func NewKageContent(fsys afero.Fs, dir string) *KageContent {
	return &KageContent{fs: fsys, dir: dir}
}

// LoadEffect reads and compiles the named shader.
func (c *KageContent) LoadEffect(name string) (internal.Effect, error) {
	path := filepath.Join(c.dir, name+EffectExt)
	exists, err := afero.Exists(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", internal.ErrEffectNotFound, path)
	}
	src, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	shader, err := ebiten.NewShader(src)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return &Effect{name: name, shader: shader}, nil
}
