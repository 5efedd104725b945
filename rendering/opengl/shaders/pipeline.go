package shaders

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"particlesim/core"
	"particlesim/gpu"
)

// Role names a program by what it does in a frame
type Role string

const (
	// RolePoint draws particles as points
	RolePoint Role = "point"
	// RolePhysics advances the particle state on the device
	RolePhysics Role = "physics"
)

// Stages lists the shader stages a role is built from
func (r Role) Stages() []gpu.Stage {
	if r == RolePhysics {
		return []gpu.Stage{gpu.StageCompute}
	}
	return []gpu.Stage{gpu.StageVertex, gpu.StageFragment}
}

// Program is a linked program plus the stages it was linked from
type Program struct {
	Role   Role
	Handle uint32
	Stages []uint32

	dev      gpu.Device
	uniforms map[string]int32
}

// UniformLocation resolves name once per program. Missing uniforms are
// cached as -1 as well.
func (p *Program) UniformLocation(name string) int32 {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := p.dev.UniformLocation(p.Handle, name)
	p.uniforms[name] = loc
	return loc
}

// Pipeline compiles, links and owns the shader programs of the engine
type Pipeline struct {
	dev      gpu.Device
	log      *zap.Logger
	programs map[Role]*Program
	released bool
}

// NewPipeline creates an empty pipeline on dev
func NewPipeline(dev gpu.Device, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		dev:      dev,
		log:      log,
		programs: make(map[Role]*Program),
	}
}

// CompileStage compiles source for one stage. The shader object is deleted
// again when compilation fails.
func (p *Pipeline) CompileStage(program string, stage gpu.Stage, source string) (uint32, error) {
	shader := p.dev.CreateShader(stage)
	if shader == 0 {
		return 0, &core.RuntimeGPUError{Phase: "shader", Codes: gpu.DrainErrors(p.dev)}
	}
	if ok, log := p.dev.CompileShader(shader, source); !ok {
		p.dev.DeleteShader(shader)
		return 0, &core.ShaderCompileError{Program: program, Stage: stage, Log: log}
	}
	p.log.Debug("compiled shader stage",
		zap.String("program", program),
		zap.Stringer("stage", stage),
		zap.Uint32("shader", shader))
	return shader, nil
}

// Link links stages into the program for role. On failure the program object
// is deleted and the stages are left to the caller.
func (p *Pipeline) Link(role Role, stages ...uint32) (*Program, error) {
	if p.released {
		return nil, core.ErrClosed
	}
	if _, ok := p.programs[role]; ok {
		return nil, errors.Errorf("%s program already linked", role)
	}

	handle := p.dev.CreateProgram()
	for _, s := range stages {
		p.dev.AttachShader(handle, s)
	}
	if ok, log := p.dev.LinkProgram(handle); !ok {
		for _, s := range stages {
			p.dev.DetachShader(handle, s)
		}
		p.dev.DeleteProgram(handle)
		return nil, &core.ShaderLinkError{Program: string(role), Log: log}
	}

	prog := &Program{
		Role:     role,
		Handle:   handle,
		Stages:   append([]uint32(nil), stages...),
		dev:      p.dev,
		uniforms: make(map[string]int32),
	}
	p.programs[role] = prog
	p.log.Debug("linked program", zap.String("role", string(role)), zap.Uint32("program", handle))
	return prog, nil
}

// Build loads, compiles and links every stage of role
func (p *Pipeline) Build(role Role, loader Loader) (*Program, error) {
	var stages []uint32
	cleanup := func() {
		for _, s := range stages {
			p.dev.DeleteShader(s)
		}
	}

	for _, stage := range role.Stages() {
		source, err := loader.Load(string(role), stage)
		if err != nil {
			cleanup()
			return nil, errors.Wrapf(err, "loading %s program", role)
		}
		shader, err := p.CompileStage(string(role), stage, source)
		if err != nil {
			cleanup()
			return nil, err
		}
		stages = append(stages, shader)
	}

	prog, err := p.Link(role, stages...)
	if err != nil {
		cleanup()
		return nil, err
	}
	return prog, nil
}

// BuildAll builds the point and physics programs
func (p *Pipeline) BuildAll(loader Loader) error {
	for _, role := range []Role{RolePoint, RolePhysics} {
		if _, err := p.Build(role, loader); err != nil {
			return err
		}
	}
	return nil
}

// Program returns the program built for role, nil if there is none
func (p *Pipeline) Program(role Role) *Program {
	return p.programs[role]
}

// UniformLocation is the cached lookup of prog.UniformLocation
func (p *Pipeline) UniformLocation(prog *Program, name string) int32 {
	return prog.UniformLocation(name)
}

// Destroy releases the program of one role and its stages
func (p *Pipeline) Destroy(role Role) {
	prog, ok := p.programs[role]
	if !ok {
		return
	}
	p.deleteStages(prog)
	p.dev.DeleteProgram(prog.Handle)
	delete(p.programs, role)
}

func (p *Pipeline) deleteStages(prog *Program) {
	for _, s := range prog.Stages {
		p.dev.DetachShader(prog.Handle, s)
		p.dev.DeleteShader(s)
	}
	prog.Stages = nil
}

// Release deletes every stage of every program, then the programs.
// It is safe to call more than once.
func (p *Pipeline) Release() {
	if p.released {
		return
	}
	p.released = true

	roles := make([]string, 0, len(p.programs))
	for role := range p.programs {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)

	for _, role := range roles {
		p.deleteStages(p.programs[Role(role)])
	}
	for _, role := range roles {
		p.dev.DeleteProgram(p.programs[Role(role)].Handle)
		delete(p.programs, Role(role))
	}
	p.log.Debug("released shader pipeline", zap.Strings("roles", roles))
}
