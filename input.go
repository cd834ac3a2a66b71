package push2docker

import (
	"flag"
	"os"
	"strconv"
	"time"
)

const (
	EnvFetchTimeout   = "BUILDPACK_FETCH_TIMEOUT"
	EnvDetectTimeout  = "DETECT_TIMEOUT"
	EnvCompileTimeout = "COMPILE_TIMEOUT"
	EnvReleaseTimeout = "RELEASE_TIMEOUT"

	EnvStack    = "CF_STACK"
	EnvTmpDir   = "PUSH2DOCKER_TMPDIR"
	EnvEngine   = "PUSH2DOCKER_ENGINE"
	EnvKeep     = "PUSH2DOCKER_KEEP"
	EnvLogLevel = "BP_LOG_LEVEL"

	DefaultStack  = "cflinuxfs2"
	DefaultEngine = "docker"
)

const (
	defaultFetchTimeout   = 300
	defaultDetectTimeout  = 300
	defaultCompileTimeout = 900
	defaultReleaseTimeout = 300
)

// Config holds the environment-driven settings of a run.
type Config struct {
	FetchTimeout   time.Duration
	DetectTimeout  time.Duration
	CompileTimeout time.Duration
	ReleaseTimeout time.Duration

	Stack    string
	TmpDir   string
	Engine   string
	LogLevel string
}

func ConfigFromEnv(env func(string) (string, bool)) Config {
	return Config{
		FetchTimeout:   envSeconds(env, EnvFetchTimeout, defaultFetchTimeout),
		DetectTimeout:  envSeconds(env, EnvDetectTimeout, defaultDetectTimeout),
		CompileTimeout: envSeconds(env, EnvCompileTimeout, defaultCompileTimeout),
		ReleaseTimeout: envSeconds(env, EnvReleaseTimeout, defaultReleaseTimeout),

		Stack:    envStr(env, EnvStack, DefaultStack),
		TmpDir:   envStr(env, EnvTmpDir, os.TempDir()),
		Engine:   envStr(env, EnvEngine, DefaultEngine),
		LogLevel: envStr(env, EnvLogLevel, ""),
	}
}

func InputStack(stack *string, def string) {
	flag.StringVar(stack, "stack", def, "cloudfoundry stack used as the base image")
}

func InputEngine(engine *string, def string) {
	flag.StringVar(engine, "engine", def, "image build engine (docker or layer)")
}

func InputKeep(keep *bool) {
	flag.BoolVar(keep, "keep", boolEnv(EnvKeep), "keep the staging directory after the image is built")
}

func envStr(env func(string) (string, bool), key, val string) string {
	if v, ok := env(key); ok && v != "" {
		return v
	}
	return val
}

func envSeconds(env func(string) (string, bool), key string, val int) time.Duration {
	if v, ok := env(key); ok {
		if vInt, err := strconv.Atoi(v); err == nil && vInt > 0 {
			return time.Duration(vInt) * time.Second
		}
	}
	return time.Duration(val) * time.Second
}

func boolEnv(k string) bool {
	v := os.Getenv(k)
	return v == "true" || v == "1"
}
