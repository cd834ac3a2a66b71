package stage

import (
	"io/fs"
	"os"
	"path/filepath"
)

var (
	buildOnlyDirs = []string{".git", "tmp"}
	metadataFiles = map[string]bool{".DS_Store": true}
)

// Prune strips build-time artifacts from buildDir: top-level version control
// and temp directories, and filesystem metadata files anywhere in the tree.
// Missing artifacts are not an error.
func Prune(buildDir string) error {
	for _, dir := range buildOnlyDirs {
		if err := os.RemoveAll(filepath.Join(buildDir, dir)); err != nil {
			return err
		}
	}

	err := filepath.WalkDir(buildDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && metadataFiles[d.Name()] {
			return os.Remove(path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
