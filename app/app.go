package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
)

const (
	HomeDir = "/home/vcap"
	AppDir  = "/home/vcap/app"
	TmpDir  = "/home/vcap/tmp"
	User    = "vcap"

	Host = "0.0.0.0"
	Port = 8080
)

var cgroupMemLimitPaths = []string{
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
	"/sys/fs/cgroup/memory.max",
}

const (
	defaultMem  = 1024
	defaultDisk = 1024
)

type vcapApplication struct {
	ApplicationID      string            `json:"application_id"`
	ApplicationName    string            `json:"application_name"`
	ApplicationURIs    []string          `json:"application_uris"`
	ApplicationVersion string            `json:"application_version"`
	Host               string            `json:"host,omitempty"`
	InstanceIndex      *uint             `json:"instance_index,omitempty"`
	Limits             map[string]uint64 `json:"limits"`
	Name               string            `json:"name"`
	Port               *uint             `json:"port,omitempty"`
	SpaceName          string            `json:"space_name"`
	URIs               []string          `json:"uris"`
	Version            string            `json:"version"`
}

// App describes the application being staged and the environment it sees
// while compiling and once running in the image.
type App struct {
	Env func(string) (string, bool)

	Name    string
	Stack   string
	Mem     uint64
	Disk    uint64
	Fds     uint64
	Version string
}

func New(name, stack string) (*App, error) {
	app := &App{
		Env:     os.LookupEnv,
		Name:    name,
		Stack:   stack,
		Mem:     totalMem(),
		Disk:    defaultDisk,
		Version: uuid.NewString(),
	}
	var fds syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &fds); err != nil {
		return nil, err
	}
	app.Fds = fds.Cur
	return app, nil
}

// totalMem returns the cgroup memory limit in megabytes, falling back to a
// fixed default when no limit is readable.
func totalMem() uint64 {
	for _, path := range cgroupMemLimitPaths {
		contents, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		memBytes, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
		if err != nil || memBytes/1024/1024 == 0 || memBytes >= 1<<62 {
			continue
		}
		return memBytes / 1024 / 1024
	}
	return defaultMem
}

func (a *App) config() (name, uri string, limits map[string]uint64) {
	name = a.envStr("PACK_APP_NAME", a.Name)
	uri = a.envStr("PACK_APP_URI", name+".local")

	disk := a.envInt("PACK_APP_DISK", a.Disk)
	fds := a.envInt("PACK_APP_FDS", a.Fds)
	mem := a.envInt("PACK_APP_MEM", a.Mem)
	limits = map[string]uint64{"disk": disk, "fds": fds, "mem": mem}

	return name, uri, limits
}

// Stage returns the complete environment for the compile phase. home is the
// staging root, which stands in for /home/vcap on the staging host.
func (a *App) Stage(home string) []string {
	name, uri, limits := a.config()

	vcapApp, err := json.Marshal(&vcapApplication{
		ApplicationID:      "0",
		ApplicationName:    name,
		ApplicationURIs:    []string{uri},
		ApplicationVersion: a.Version,
		Limits:             limits,
		Name:               name,
		SpaceName:          fmt.Sprintf("%s-space", name),
		URIs:               []string{uri},
		Version:            a.Version,
	})
	if err != nil {
		vcapApp = []byte("{}")
	}

	sysEnv := map[string]string{
		"HOME":   home,
		"LANG":   "en_US.UTF-8",
		"PATH":   "/usr/local/bin:/usr/bin:/bin",
		"TMPDIR": filepath.Join(home, "tmp"),
		"USER":   User,
	}

	appEnv := map[string]string{
		"CF_STACK":         a.Stack,
		"MEMORY_LIMIT":     fmt.Sprintf("%dm", limits["mem"]),
		"VCAP_APPLICATION": string(vcapApp),
		"VCAP_SERVICES":    "{}",
	}
	a.envOverride(appEnv)

	return mapsToEnv(sysEnv, appEnv)
}

// Launch returns the environment baked into the image.
func (a *App) Launch() []string {
	name, uri, limits := a.config()

	vcapApp, err := json.Marshal(&vcapApplication{
		ApplicationID:      "0",
		ApplicationName:    name,
		ApplicationURIs:    []string{uri},
		ApplicationVersion: a.Version,
		Host:               Host,
		InstanceIndex:      uintPtr(0),
		Limits:             limits,
		Name:               name,
		Port:               uintPtr(Port),
		SpaceName:          fmt.Sprintf("%s-space", name),
		URIs:               []string{uri},
		Version:            a.Version,
	})
	if err != nil {
		vcapApp = []byte("{}")
	}

	port := strconv.Itoa(Port)
	return mapsToEnv(map[string]string{
		"HOME":             AppDir,
		"TMPDIR":           TmpDir,
		"VCAP_APPLICATION": string(vcapApp),
		"VCAP_APP_HOST":    Host,
		"VCAP_APP_PORT":    port,
		"PORT":             port,
	})
}

func uintPtr(i uint) *uint {
	return &i
}

func (a *App) envStr(key, val string) string {
	if v, ok := a.Env(key); ok {
		return v
	}
	return val
}

func (a *App) envInt(key string, val uint64) uint64 {
	if v, ok := a.Env(key); ok {
		if vInt, err := strconv.ParseUint(v, 10, 64); err == nil {
			return vInt
		}
	}
	return val
}

func (a *App) envOverride(m map[string]string) {
	for k, v := range m {
		m[k] = a.envStr(k, v)
	}
}

func mapsToEnv(maps ...map[string]string) []string {
	merged := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}
