package stage

import (
	"os"
	"path/filepath"

	"code.cloudfoundry.org/cli/cf/appfiles"
	"github.com/paketo-buildpacks/packit/v2/fs"
	"github.com/paketo-buildpacks/packit/v2/scribe"
	"github.com/paketo-buildpacks/packit/v2/vacation"

	"github.com/buildpack/push2docker/sys"
)

// Populate creates the session's directories and the cache directory, then
// fills the build directory from appPath. A file is treated as an archive; a
// directory has its contents copied.
func (s *Session) Populate(appPath, cacheDir string, logger scribe.Logger) error {
	info, err := os.Stat(appPath)
	if os.IsNotExist(err) {
		return sys.Wrap(sys.ErrInput, err)
	} else if err != nil {
		return sys.Wrap(sys.ErrStage, sys.Fail(err, "stat", appPath))
	}

	for _, dir := range []string{s.BuildDir, filepath.Join(s.StageDir, "tmp"), cacheDir} {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return sys.Wrap(sys.ErrStage, sys.Fail(err, "make directory", dir))
		}
	}
	logger.Debug.Subprocess("Staging %s into %s", appPath, s.BuildDir)

	if info.IsDir() {
		err = copyAppDir(appPath, s.BuildDir)
	} else {
		err = extractApp(appPath, s.BuildDir)
	}
	if err != nil {
		return sys.Wrap(sys.ErrStage, err)
	}
	return nil
}

func copyAppDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return sys.Fail(err, "read app directory", src)
	}
	for _, entry := range entries {
		if err := fs.Copy(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return sys.Fail(err, "copy app from", src, "to", dst)
		}
	}
	return nil
}

func extractApp(src, dst string) error {
	zipper := appfiles.ApplicationZipper{}
	if zipper.IsZipFile(src) {
		if err := zipper.Unzip(src, dst); err != nil {
			return sys.Fail(err, "unzip app from", src, "to", dst)
		}
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return sys.Fail(err, "open app archive", src)
	}
	defer f.Close()
	if err := vacation.NewArchive(f).Decompress(dst); err != nil {
		return sys.Fail(err, "extract app from", src, "to", dst)
	}
	return nil
}
