package process

import (
	"strings"

	bal "code.cloudfoundry.org/buildpackapplifecycle"
	"gopkg.in/yaml.v2"

	"github.com/buildpack/push2docker/sys"
)

const WebProcess = "web"

// Release is the part of bin/release output this tool reads.
type Release struct {
	DefaultProcessTypes bal.ProcessTypes `yaml:"default_process_types"`
}

func ParseRelease(doc string) (Release, error) {
	var release Release
	if strings.TrimSpace(doc) == "" {
		return release, nil
	}
	if err := yaml.Unmarshal([]byte(doc), &release); err != nil {
		return Release{}, sys.Fail(err, "parse release metadata")
	}
	return release, nil
}

// StartCommand picks the web command, preferring the Procfile over the
// buildpack's defaults.
func StartCommand(procfile bal.ProcessTypes, release Release) (string, error) {
	if command := procfile[WebProcess]; command != "" {
		return command, nil
	}
	if command := release.DefaultProcessTypes[WebProcess]; command != "" {
		return command, nil
	}
	return "", sys.ErrNoStartCommand
}

// Merge overlays the Procfile on the buildpack's default process types.
func Merge(procfile bal.ProcessTypes, release Release) bal.ProcessTypes {
	merged := bal.ProcessTypes{}
	for k, v := range release.DefaultProcessTypes {
		merged[k] = v
	}
	for k, v := range procfile {
		merged[k] = v
	}
	return merged
}
