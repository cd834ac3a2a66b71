package process

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	bal "code.cloudfoundry.org/buildpackapplifecycle"
)

const Procfile = "Procfile"

var procfileLine = regexp.MustCompile(`^([a-zA-Z0-9_]+):?\s+(.*)`)

// ParseProcfile reads the Procfile at the root of buildDir. A missing file
// yields no process types. Lines that do not match "name: command" are
// ignored, and a later line wins over an earlier one with the same name.
func ParseProcfile(buildDir string) (bal.ProcessTypes, error) {
	contents, err := os.ReadFile(filepath.Join(buildDir, Procfile))
	if os.IsNotExist(err) {
		return bal.ProcessTypes{}, nil
	} else if err != nil {
		return nil, err
	}
	return parseProcfile(string(contents)), nil
}

func parseProcfile(contents string) bal.ProcessTypes {
	types := bal.ProcessTypes{}
	for _, line := range strings.Split(contents, "\n") {
		m := procfileLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		if command := strings.TrimSpace(m[2]); command != "" {
			types[m[1]] = command
		}
	}
	return types
}
