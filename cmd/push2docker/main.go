package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paketo-buildpacks/packit/v2/scribe"

	"github.com/buildpack/push2docker"
	"github.com/buildpack/push2docker/img"
	"github.com/buildpack/push2docker/pipeline"
	"github.com/buildpack/push2docker/sys"
)

func main() {
	config := push2docker.ConfigFromEnv(os.LookupEnv)

	var keep bool
	push2docker.InputStack(&config.Stack, config.Stack)
	push2docker.InputEngine(&config.Engine, config.Engine)
	push2docker.InputKeep(&keep)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <app-name> <app-path> <buildpack> <cache-dir> <output-dir>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 5 {
		flag.Usage()
		sys.Exit(sys.CodeInvalidArgs, "invalid arguments")
	}
	req := pipeline.Request{
		AppName:   flag.Arg(0),
		AppPath:   flag.Arg(1),
		Buildpack: flag.Arg(2),
		CacheDir:  flag.Arg(3),
		OutputDir: flag.Arg(4),
	}

	logger := scribe.NewLogger(os.Stdout).WithLevel(config.LogLevel)
	output := scribe.NewWriter(os.Stdout, scribe.WithIndent(2))

	var engine img.Engine
	switch config.Engine {
	case "docker":
		engine = &img.DockerEngine{Output: output}
	case "layer":
		engine = &img.LayerEngine{Logger: logger}
	default:
		sys.Fatal(fmt.Errorf("unknown engine %q", config.Engine), sys.CodeInvalidArgs, "select image engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	p := &pipeline.Pipeline{
		Config:   config,
		Logger:   logger,
		Output:   output,
		Packager: &img.Packager{Engine: engine, Logger: logger},
	}
	result, err := p.Run(ctx, req)
	stop()
	if err != nil {
		sys.Fatal(err, sys.Code(err))
	}

	if keep {
		logger.Process("Staged app kept in %s", result.Session.StageDir)
		return
	}
	if err := result.Session.Close(); err != nil {
		sys.Fatal(err, sys.CodeFailed, "remove", result.Session.StageDir)
	}
}
