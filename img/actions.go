package img

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/buildpack/push2docker/app"
)

// Owner of every entry in the application layer. Stack images create vcap
// with this uid and gid.
const (
	vcapUID = 2000
	vcapGID = 2000
)

// Layer returns the staging root as a single layer rooted at the vcap home
// directory. The tar stream is produced on demand each time the layer is
// read.
func Layer(stageDir string) (v1.Layer, error) {
	return tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(writeLayer(pw, stageDir, strings.TrimPrefix(app.HomeDir, "/")))
		}()
		return pr, nil
	}, tarball.WithCompressedCaching)
}

// Assemble appends layer to base and configures the result to run the
// startup script as vcap with the launch environment of def.
func Assemble(base v1.Image, layer v1.Layer, def Definition) (v1.Image, error) {
	image, err := mutate.AppendLayers(base, layer)
	if err != nil {
		return nil, err
	}
	configFile, err := image.ConfigFile()
	if err != nil {
		return nil, err
	}
	config := *configFile.Config.DeepCopy()
	config.Env = mergeEnv(config.Env, def.Env)
	config.Entrypoint = nil
	config.Cmd = []string{path.Join(app.HomeDir, StartupScript)}
	config.User = app.User
	config.WorkingDir = app.HomeDir
	config.ExposedPorts = map[string]struct{}{strconv.Itoa(app.Port) + "/tcp": {}}
	if config.Labels == nil {
		config.Labels = map[string]string{}
	}
	for k, v := range def.Labels {
		config.Labels[k] = v
	}
	return mutate.Config(image, config)
}

func mergeEnv(base, override []string) []string {
	keys := map[string]bool{}
	for _, kv := range override {
		k, _, _ := strings.Cut(kv, "=")
		keys[k] = true
	}
	var out []string
	for _, kv := range base {
		if k, _, _ := strings.Cut(kv, "="); !keys[k] {
			out = append(out, kv)
		}
	}
	return append(out, override...)
}

func writeLayer(w io.Writer, hostDir, prefix string) error {
	tw := tar.NewWriter(w)
	var parent string
	for _, dir := range strings.Split(path.Dir(prefix), "/") {
		if dir == "." {
			continue
		}
		parent = path.Join(parent, dir)
		if err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeDir,
			Name:     parent + "/",
			Mode:     0755,
		}); err != nil {
			return err
		}
	}
	if err := writeDirToTar(tw, hostDir, prefix); err != nil {
		return err
	}
	return tw.Close()
}

func writeDirToTar(tw *tar.Writer, hostDir, prefix string) error {
	return filepath.WalkDir(hostDir, func(hostPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(hostDir, hostPath)
		if err != nil {
			return err
		}
		return writeTarEntry(tw, hostPath, path.Join(prefix, filepath.ToSlash(relPath)), d)
	})
}

func writeTarEntry(tw *tar.Writer, hostPath, archivePath string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(hostPath); err != nil {
			return err
		}
	}
	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = archivePath
	if info.IsDir() {
		header.Name += "/"
	}
	header.Uid, header.Gid = vcapUID, vcapGID
	header.Uname, header.Gname = app.User, app.User

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
