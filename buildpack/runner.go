package buildpack

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/paketo-buildpacks/packit/v2/scribe"

	"github.com/buildpack/push2docker/process"
	"github.com/buildpack/push2docker/sys"
)

// Runner executes the detect, compile and release contract of a bundle
// against a build directory.
type Runner struct {
	Bundle   *Bundle
	BuildDir string
	CacheDir string

	// Env is the complete environment of the compile phase.
	Env []string

	Output io.Writer
	Logger scribe.Logger

	DetectTimeout  time.Duration
	CompileTimeout time.Duration
	ReleaseTimeout time.Duration
}

// Detect returns the application name reported by bin/detect.
func (r *Runner) Detect(ctx context.Context) (string, error) {
	r.Logger.Process("Detecting")
	name, res, err := sys.Command{
		Path:    r.Bundle.Bin("detect"),
		Args:    []string{r.BuildDir},
		Stderr:  r.Output,
		Timeout: r.DetectTimeout,
	}.Output(ctx)
	if err != nil {
		r.echo(name)
		return "", sys.Wrap(sys.ErrDetect, err)
	}
	if res.ExitCode != 0 {
		r.echo(name)
		return "", sys.ErrDetect
	}
	r.Logger.Subprocess("%s app detected", name)
	return name, nil
}

func (r *Runner) Compile(ctx context.Context) error {
	r.Logger.Process("Compiling")
	env := r.Env
	if env == nil {
		env = []string{}
	}
	res, err := sys.Command{
		Path:    r.Bundle.Bin("compile"),
		Args:    []string{r.BuildDir, r.CacheDir},
		Env:     env,
		Stdout:  r.Output,
		Stderr:  r.Output,
		Timeout: r.CompileTimeout,
	}.Run(ctx)
	if res.TimedOut {
		return sys.Wrap(sys.ErrCompile, fmt.Errorf("%w; must complete in %d seconds", sys.ErrCompileTimeout, int(r.CompileTimeout/time.Second)))
	}
	if err != nil {
		return sys.Wrap(sys.ErrCompile, err)
	}
	if res.ExitCode != 0 {
		return sys.Wrap(sys.ErrCompile, fmt.Errorf("exit status %d", res.ExitCode))
	}
	return nil
}

// Release runs bin/release and decodes its output.
func (r *Runner) Release(ctx context.Context) (process.Release, error) {
	r.Logger.Process("Releasing")
	out, res, err := sys.Command{
		Path:    r.Bundle.Bin("release"),
		Args:    []string{r.BuildDir},
		Stderr:  r.Output,
		Timeout: r.ReleaseTimeout,
	}.Output(ctx)
	r.echo(out)
	if err != nil {
		return process.Release{}, sys.Wrap(sys.ErrRelease, err)
	}
	if res.ExitCode != 0 {
		return process.Release{}, sys.Wrap(sys.ErrRelease, fmt.Errorf("exit status %d", res.ExitCode))
	}

	release, err := process.ParseRelease(out)
	if err != nil {
		return process.Release{}, sys.Wrap(sys.ErrRelease, err)
	}
	return release, nil
}

func (r *Runner) echo(out string) {
	if out == "" {
		return
	}
	for _, line := range strings.Split(out, "\n") {
		r.Logger.Subprocess("%s", line)
	}
}
