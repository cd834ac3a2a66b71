package sys

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	CodeFailed = 1

	CodeInvalidArgs = iota + 3
	CodeInvalidInput
	CodeFailedStage
	CodeFailedFetch
	CodeNotDetected
	CodeFailedCompile
	CodeCompileTimeout
	CodeFailedRelease
	CodeNoStartCommand
	CodeFailedPackage
)

var (
	ErrInvalidArgs    = errors.New("invalid arguments")
	ErrInput          = errors.New("wrong app")
	ErrStage          = errors.New("failed to stage app")
	ErrFetch          = errors.New("error fetching buildpack")
	ErrDetect         = errors.New("no compatible app detected")
	ErrCompile        = errors.New("compile failed")
	ErrCompileTimeout = errors.New("timed out")
	ErrRelease        = errors.New("release failed")
	ErrNoStartCommand = errors.New("no start command: neither Procfile nor buildpack release declares a web process")
	ErrPackaging      = errors.New("error creating Docker image")
)

// Ordered so that the more specific kind wins when an error matches several.
var codes = []struct {
	kind error
	code int
}{
	{ErrInvalidArgs, CodeInvalidArgs},
	{ErrInput, CodeInvalidInput},
	{ErrStage, CodeFailedStage},
	{ErrFetch, CodeFailedFetch},
	{ErrDetect, CodeNotDetected},
	{ErrCompileTimeout, CodeCompileTimeout},
	{ErrCompile, CodeFailedCompile},
	{ErrRelease, CodeFailedRelease},
	{ErrNoStartCommand, CodeNoStartCommand},
	{ErrPackaging, CodeFailedPackage},
}

// Wrap tags err with one of the error kinds above. Both the kind and the
// cause remain reachable through errors.Is.
func Wrap(kind, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Code returns the process exit code for err.
func Code(err error) int {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return CodeFailed
}

func Fail(err error, action ...string) error {
	message := "failed to " + strings.Join(action, " ")
	return fmt.Errorf("%s: %w", message, err)
}

func Fatal(err error, code int, action ...string) {
	var message string
	if len(action) > 0 {
		message = "failed to " + strings.Join(action, " ") + ": "
	}
	fmt.Fprintf(os.Stderr, "Error: %s%s\n", message, err)
	os.Exit(code)
}

func Exit(code int, reason ...string) {
	if len(reason) > 0 {
		fmt.Fprintf(os.Stderr, "Exit: %s\n", strings.Join(reason, " "))
	}
	os.Exit(code)
}
