package img

import (
	"context"
	"fmt"
	"io"

	"github.com/paketo-buildpacks/packit/v2/scribe"

	"github.com/buildpack/push2docker/sys"
)

// Engine turns a prepared staging root into a tagged image.
type Engine interface {
	Build(ctx context.Context, stageDir string, def Definition) error
}

// DockerEngine builds the Dockerfile in the staging root with the docker CLI.
type DockerEngine struct {
	Docker string
	Output io.Writer
}

func (e *DockerEngine) Build(ctx context.Context, stageDir string, def Definition) error {
	docker := e.Docker
	if docker == "" {
		docker = "docker"
	}
	res, err := sys.Command{
		Path:   docker,
		Args:   []string{"build", "--no-cache=true", "-t", def.Name, "."},
		Dir:    stageDir,
		Stdout: e.Output,
		Stderr: e.Output,
	}.Run(ctx)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("docker build: exit status %d", res.ExitCode)
	}
	return nil
}

// LayerEngine appends the staging root as one layer onto the stack image and
// writes the result to Target, without a Dockerfile build.
type LayerEngine struct {
	Base   func(ctx context.Context, ref string) (Source, error)
	Target func(ctx context.Context, tag string) (Store, error)
	Logger scribe.Logger
}

func (e *LayerEngine) Build(ctx context.Context, stageDir string, def Definition) error {
	newBase, newTarget := e.Base, e.Target
	if newBase == nil {
		newBase = NewRegistry
	}
	if newTarget == nil {
		newTarget = NewDaemon
	}

	target, err := newTarget(ctx, def.Name)
	if err != nil {
		return sys.Fail(err, "parse image tag", def.Name)
	}
	source, err := newBase(ctx, def.BaseImage())
	if err != nil {
		return sys.Fail(err, "parse base image", def.BaseImage())
	}

	e.Logger.Subprocess("Pulling %s", source.Ref())
	base, err := source.Image()
	if err != nil {
		return sys.Fail(err, "get base image", def.BaseImage())
	}
	layer, err := Layer(stageDir)
	if err != nil {
		return sys.Fail(err, "create app layer")
	}
	image, err := Assemble(base, layer, def)
	if err != nil {
		return sys.Fail(err, "assemble image")
	}

	e.Logger.Subprocess("Writing %s", target.Ref())
	if err := target.Write(image); err != nil {
		return sys.Fail(err, "write image", def.Name)
	}
	return nil
}

type Packager struct {
	Engine Engine
	Logger scribe.Logger
}

// Package writes the startup script and Dockerfile into stageDir and builds
// the image with the configured engine.
func (p *Packager) Package(ctx context.Context, stageDir string, def Definition) error {
	p.Logger.Process("Creating Docker image %s", def.Name)
	if err := WriteFiles(stageDir, def); err != nil {
		return sys.Wrap(sys.ErrPackaging, sys.Fail(err, "write image files to", stageDir))
	}
	if err := p.Engine.Build(ctx, stageDir, def); err != nil {
		return sys.Wrap(sys.ErrPackaging, err)
	}
	p.Logger.Process("Docker image successfully created with '%s' tag.", def.Name)
	return nil
}
