package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	bal "code.cloudfoundry.org/buildpackapplifecycle"
	"github.com/paketo-buildpacks/packit/v2/scribe"
	"gopkg.in/yaml.v2"

	"github.com/buildpack/push2docker"
	"github.com/buildpack/push2docker/app"
	"github.com/buildpack/push2docker/buildpack"
	"github.com/buildpack/push2docker/img"
	"github.com/buildpack/push2docker/process"
	"github.com/buildpack/push2docker/stage"
	"github.com/buildpack/push2docker/sys"
)

// Request is one application to turn into an image.
type Request struct {
	AppName   string
	AppPath   string
	Buildpack string
	CacheDir  string
	OutputDir string
}

type Result struct {
	Session      *stage.Session
	StartCommand string
	Metadata     push2docker.BuildMetadata
}

type Pipeline struct {
	Config push2docker.Config
	Client *http.Client
	Logger scribe.Logger

	// Output receives the streamed output of buildpack and engine
	// subprocesses.
	Output io.Writer

	// AppEnv overrides the environment lookup of the staged app. Nil uses
	// the process environment.
	AppEnv func(string) (string, bool)

	// Packager builds the image from the staging root. Nil stops after
	// staging.
	Packager *img.Packager
}

// Run stages, compiles and releases req, then hands the pruned staging root
// to the packager. A fetched buildpack is removed however Run returns. On
// failure the staging root is removed as well; on success it belongs to the
// caller through Result.Session.
func (p *Pipeline) Run(ctx context.Context, req Request) (result *Result, err error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	session := stage.NewSession(p.Config.TmpDir)
	defer func() {
		if err != nil {
			session.Close()
		}
	}()

	p.Logger.Process("Staging %s", req.AppName)
	if err := session.Populate(req.AppPath, req.CacheDir, p.Logger); err != nil {
		return nil, err
	}

	fetcher := &buildpack.Fetcher{
		Timeout: p.Config.FetchTimeout,
		Client:  p.Client,
		Logger:  p.Logger,
	}
	bundle, err := fetcher.Fetch(ctx, req.Buildpack, session.FetchDir())
	if err != nil {
		return nil, err
	}
	defer bundle.Close()

	application, err := app.New(req.AppName, p.Config.Stack)
	if err != nil {
		return nil, sys.Wrap(sys.ErrStage, sys.Fail(err, "determine app limits"))
	}
	if p.AppEnv != nil {
		application.Env = p.AppEnv
	}

	runner := &buildpack.Runner{
		Bundle:         bundle,
		BuildDir:       session.BuildDir,
		CacheDir:       req.CacheDir,
		Env:            application.Stage(session.StageDir),
		Output:         p.output(),
		Logger:         p.Logger,
		DetectTimeout:  p.Config.DetectTimeout,
		CompileTimeout: p.Config.CompileTimeout,
		ReleaseTimeout: p.Config.ReleaseTimeout,
	}
	detected, err := runner.Detect(ctx)
	if err != nil {
		return nil, err
	}
	if err := runner.Compile(ctx); err != nil {
		return nil, err
	}
	procfile, err := process.ParseProcfile(session.BuildDir)
	if err != nil {
		return nil, sys.Wrap(sys.ErrStage, sys.Fail(err, "read", process.Procfile))
	}
	release, err := runner.Release(ctx)
	if err != nil {
		return nil, err
	}
	command, err := process.StartCommand(procfile, release)
	if err != nil {
		return nil, err
	}
	p.Logger.Process("Start command: %s", command)

	if err := stage.Prune(session.BuildDir); err != nil {
		return nil, sys.Wrap(sys.ErrStage, sys.Fail(err, "prune", session.BuildDir))
	}

	metadata := push2docker.BuildMetadata{
		App: push2docker.AppMetadata{
			Name:         req.AppName,
			StartCommand: command,
		},
		Buildpack: bal.BuildpackMetadata{
			Key:  req.Buildpack,
			Name: detected,
		},
		Stack:     push2docker.StackMetadata{Name: p.Config.Stack},
		Processes: process.Merge(procfile, release),
	}
	if p.Packager != nil {
		label, err := json.Marshal(metadata)
		if err != nil {
			return nil, sys.Wrap(sys.ErrPackaging, sys.Fail(err, "encode build metadata"))
		}
		if err := p.Packager.Package(ctx, session.StageDir, img.Definition{
			Name:    req.AppName,
			Stack:   p.Config.Stack,
			Command: command,
			Env:     application.Launch(),
			Labels:  map[string]string{push2docker.BuildLabel: string(label)},
		}); err != nil {
			return nil, err
		}
	}

	// Written last: a failed run leaves no staging metadata.
	if req.OutputDir != "" {
		if err := writeMetadata(req.OutputDir, metadata); err != nil {
			return nil, sys.Wrap(sys.ErrStage, err)
		}
	}

	return &Result{
		Session:      session,
		StartCommand: command,
		Metadata:     metadata,
	}, nil
}

func (p *Pipeline) output() io.Writer {
	if p.Output == nil {
		return io.Discard
	}
	return p.Output
}

func (r Request) validate() error {
	switch {
	case r.AppName == "":
		return sys.Wrap(sys.ErrInvalidArgs, errors.New("missing app name"))
	case r.AppPath == "":
		return sys.Wrap(sys.ErrInvalidArgs, errors.New("missing app path"))
	case r.Buildpack == "":
		return sys.Wrap(sys.ErrInvalidArgs, errors.New("missing buildpack"))
	case r.CacheDir == "":
		return sys.Wrap(sys.ErrInvalidArgs, errors.New("missing cache directory"))
	}
	return nil
}

func writeMetadata(dir string, metadata push2docker.BuildMetadata) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return sys.Fail(err, "make directory", dir)
	}
	info, err := yaml.Marshal(metadata.StagingInfo())
	if err != nil {
		return sys.Fail(err, "encode", push2docker.StagingInfoFile)
	}
	if err := os.WriteFile(filepath.Join(dir, push2docker.StagingInfoFile), info, 0666); err != nil {
		return sys.Fail(err, "write", push2docker.StagingInfoFile)
	}
	result, err := json.Marshal(metadata.StagingResult())
	if err != nil {
		return sys.Fail(err, "encode", push2docker.StagingResultFile)
	}
	if err := os.WriteFile(filepath.Join(dir, push2docker.StagingResultFile), result, 0666); err != nil {
		return sys.Fail(err, "write", push2docker.StagingResultFile)
	}
	return nil
}
