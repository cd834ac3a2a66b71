package push2docker

import (
	bal "code.cloudfoundry.org/buildpackapplifecycle"
)

const (
	BuildLabel = "sh.packs.build"

	StagingInfoFile   = "staging_info.yml"
	StagingResultFile = "result.json"
)

type BuildMetadata struct {
	App       AppMetadata           `json:"app"`
	Buildpack bal.BuildpackMetadata `json:"buildpack"`
	Stack     StackMetadata         `json:"stack"`
	Processes bal.ProcessTypes      `json:"processes"`
}

type AppMetadata struct {
	Name         string `json:"name"`
	StartCommand string `json:"start_command"`
}

type StackMetadata struct {
	Name string `json:"name"`
	SHA  string `json:"sha,omitempty"`
}

// StagingInfo is the staging_info.yml document read by CF style launchers.
type StagingInfo struct {
	DetectedBuildpack string `yaml:"detected_buildpack" json:"detected_buildpack"`
	StartCommand      string `yaml:"start_command" json:"start_command"`
}

func (m BuildMetadata) StagingInfo() StagingInfo {
	return StagingInfo{
		DetectedBuildpack: m.Buildpack.Name,
		StartCommand:      m.App.StartCommand,
	}
}

func (m BuildMetadata) StagingResult() bal.StagingResult {
	return bal.NewStagingResult(m.Processes, bal.LifecycleMetadata{
		BuildpackKey:      m.Buildpack.Key,
		DetectedBuildpack: m.Buildpack.Name,
		Buildpacks:        []bal.BuildpackMetadata{m.Buildpack},
	})
}
