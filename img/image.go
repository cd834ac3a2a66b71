package img

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/buildpack/push2docker/app"
)

const (
	StartupScript = ".start.sh"
	Dockerfile    = "Dockerfile"
)

// Definition describes the image built from a staging root.
type Definition struct {
	// Name is the tag given to the image.
	Name  string
	Stack string

	// Command is exec'd by the startup script.
	Command string

	// Env is the launch environment as KEY=VALUE pairs.
	Env    []string
	Labels map[string]string
}

func (d Definition) BaseImage() string {
	return "cloudfoundry/" + d.Stack
}

// StartupScriptContents sources every .profile.d script of the application
// and then replaces itself with a shell running command.
func StartupScriptContents(command string) string {
	return fmt.Sprintf(`#!/bin/bash
cd "$HOME"
if [ -d "$HOME/.profile.d" ]; then
  for env_file in "$HOME"/.profile.d/*.sh; do
    if [ -r "$env_file" ]; then
      . "$env_file"
    fi
  done
fi
exec bash -c %s
`, shellQuote(command))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// dockerQuote quotes v for an ENV or LABEL instruction, where double quoted
// values are still subject to variable expansion.
func dockerQuote(v string) string {
	return strings.ReplaceAll(strconv.Quote(v), "$", `\$`)
}

func DockerfileContents(def Definition) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "FROM %s\n", def.BaseImage())
	fmt.Fprintf(b, "RUN id -u %[1]s >/dev/null 2>&1 || useradd -m %[1]s\n", app.User)
	fmt.Fprintf(b, "COPY . %s\n", app.HomeDir)
	fmt.Fprintf(b, "RUN chown -R %[1]s:%[1]s %[2]s\n", app.User, app.HomeDir)
	for _, kv := range def.Env {
		k, v, _ := strings.Cut(kv, "=")
		fmt.Fprintf(b, "ENV %s=%s\n", k, dockerQuote(v))
	}
	labels := make([]string, 0, len(def.Labels))
	for k := range def.Labels {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	for _, k := range labels {
		fmt.Fprintf(b, "LABEL %s=%s\n", k, dockerQuote(def.Labels[k]))
	}
	fmt.Fprintf(b, "EXPOSE %d\n", app.Port)
	fmt.Fprintf(b, "USER %s\n", app.User)
	fmt.Fprintf(b, "WORKDIR %s\n", app.HomeDir)
	fmt.Fprintf(b, "CMD [%q]\n", filepath.Join(app.HomeDir, StartupScript))
	return b.String()
}

// WriteFiles places the startup script and the Dockerfile in the staging
// root so either engine can consume it.
func WriteFiles(stageDir string, def Definition) error {
	script := filepath.Join(stageDir, StartupScript)
	if err := os.WriteFile(script, []byte(StartupScriptContents(def.Command)), 0755); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(script, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stageDir, Dockerfile), []byte(DockerfileContents(def)), 0644)
}
