package pipeline_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	bal "code.cloudfoundry.org/buildpackapplifecycle"
	. "github.com/onsi/gomega"
	"github.com/paketo-buildpacks/packit/v2/scribe"
	"github.com/sclevine/spec"

	"github.com/buildpack/push2docker"
	"github.com/buildpack/push2docker/img"
	"github.com/buildpack/push2docker/pipeline"
	"github.com/buildpack/push2docker/sys"
)

func TestPipeline(t *testing.T) {
	spec.Run(t, "Pipeline", testPipeline)
}

func testPipeline(t *testing.T, when spec.G, it spec.S) {
	Expect := NewWithT(t).Expect

	var (
		p       *pipeline.Pipeline
		req     pipeline.Request
		tmpDir  string
		appDir  string
		bpDir   string
		logs    *bytes.Buffer
		release string
	)

	writeBuildpack := func(dir, detect, compile, release string) {
		writeFile(t, filepath.Join(dir, "bin", "detect"), "#!/bin/sh\n"+detect+"\n", 0755)
		writeFile(t, filepath.Join(dir, "bin", "compile"), "#!/bin/sh\n"+compile+"\n", 0755)
		writeFile(t, filepath.Join(dir, "bin", "release"), "#!/bin/sh\n"+release+"\n", 0755)
	}

	it.Before(func() {
		tmpDir = t.TempDir()
		appDir = t.TempDir()
		bpDir = t.TempDir()
		logs = &bytes.Buffer{}
		release = `echo "default_process_types: {}"`

		writeFile(t, filepath.Join(appDir, "Procfile"), "web: bundle exec rails s\n", 0644)
		writeFile(t, filepath.Join(appDir, ".git", "HEAD"), "ref: refs/heads/main\n", 0644)
		writeFile(t, filepath.Join(appDir, "lib", "app.rb"), "puts 'hi'\n", 0644)

		p = &pipeline.Pipeline{
			Config: push2docker.Config{
				FetchTimeout:   10 * time.Second,
				DetectTimeout:  10 * time.Second,
				CompileTimeout: 10 * time.Second,
				ReleaseTimeout: 10 * time.Second,
				Stack:          "cflinuxfs2",
				TmpDir:         tmpDir,
			},
			Logger: scribe.NewLogger(logs),
			Output: logs,
			AppEnv: func(string) (string, bool) { return "", false },
		}
		req = pipeline.Request{
			AppName:   "some-app",
			AppPath:   appDir,
			Buildpack: bpDir,
			CacheDir:  filepath.Join(t.TempDir(), "cache"),
			OutputDir: filepath.Join(t.TempDir(), "output"),
		}
	})

	when("the buildpack is local", func() {
		it("resolves the Procfile web command and prunes the build directory", func() {
			writeBuildpack(bpDir, "echo Trivial", "exit 0", release)

			result, err := p.Run(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			defer result.Session.Close()

			Expect(result.StartCommand).To(Equal("bundle exec rails s"))
			Expect(result.Session.BuildDir).To(BeADirectory())
			Expect(filepath.Join(result.Session.BuildDir, ".git")).NotTo(BeAnExistingFile())
			Expect(filepath.Join(result.Session.BuildDir, "Procfile")).To(BeARegularFile())
			Expect(filepath.Join(result.Session.BuildDir, "lib", "app.rb")).To(BeARegularFile())
			Expect(req.CacheDir).To(BeADirectory())
			Expect(filepath.Join(appDir, ".git")).To(BeADirectory())
			Expect(bpDir).To(BeADirectory())
			Expect(logs.String()).To(ContainSubstring("Trivial app detected"))

			info, err := os.ReadFile(filepath.Join(req.OutputDir, push2docker.StagingInfoFile))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(info)).To(Equal("detected_buildpack: Trivial\nstart_command: bundle exec rails s\n"))

			contents, err := os.ReadFile(filepath.Join(req.OutputDir, push2docker.StagingResultFile))
			Expect(err).NotTo(HaveOccurred())
			var staging bal.StagingResult
			Expect(json.Unmarshal(contents, &staging)).To(Succeed())
			Expect(staging.ProcessTypes).To(Equal(bal.ProcessTypes{"web": "bundle exec rails s"}))
			Expect(staging.LifecycleMetadata.DetectedBuildpack).To(Equal("Trivial"))
		})

		it("falls back to the release default without a Procfile", func() {
			Expect(os.Remove(filepath.Join(appDir, "Procfile"))).To(Succeed())
			writeBuildpack(bpDir, "echo Trivial", "exit 0", `echo "default_process_types:"; echo "  web: rackup -p \$PORT"`)

			result, err := p.Run(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			defer result.Session.Close()
			Expect(result.StartCommand).To(Equal("rackup -p $PORT"))
		})

		it("fails without any web process", func() {
			Expect(os.Remove(filepath.Join(appDir, "Procfile"))).To(Succeed())
			writeBuildpack(bpDir, "echo Trivial", "exit 0", release)

			_, err := p.Run(context.Background(), req)
			Expect(err).To(MatchError(sys.ErrNoStartCommand))
			Expect(os.ReadDir(tmpDir)).To(BeEmpty())
		})

		it("sees the compiled Procfile and the staging environment", func() {
			Expect(os.Remove(filepath.Join(appDir, "Procfile"))).To(Succeed())
			writeBuildpack(bpDir, "echo Trivial", `echo "web: $CF_STACK-$MEMORY_LIMIT" > "$1/Procfile"`, release)
			p.AppEnv = func(k string) (string, bool) {
				if k == "PACK_APP_MEM" {
					return "512", true
				}
				return "", false
			}

			result, err := p.Run(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			defer result.Session.Close()
			Expect(result.StartCommand).To(Equal("cflinuxfs2-512m"))
		})

		it("keeps the buildpack when a later phase fails", func() {
			writeBuildpack(bpDir, "echo Trivial", "exit 1", release)

			_, err := p.Run(context.Background(), req)
			Expect(err).To(MatchError(sys.ErrCompile))
			Expect(filepath.Join(bpDir, "bin", "compile")).To(BeARegularFile())
			Expect(os.ReadDir(tmpDir)).To(BeEmpty())
		})

		it("hands the staging root to the packager", func() {
			writeBuildpack(bpDir, "echo Trivial", "exit 0", release)
			engine := &fakeEngine{}
			p.Packager = &img.Packager{Engine: engine, Logger: p.Logger}

			result, err := p.Run(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			defer result.Session.Close()

			Expect(engine.stageDir).To(Equal(result.Session.StageDir))
			Expect(engine.def.Name).To(Equal("some-app"))
			Expect(engine.def.Command).To(Equal("bundle exec rails s"))
			Expect(engine.def.Env).To(ContainElement("PORT=8080"))
			Expect(engine.def.Labels).To(HaveKey(push2docker.BuildLabel))
			Expect(filepath.Join(result.Session.StageDir, img.StartupScript)).To(BeARegularFile())

			var metadata push2docker.BuildMetadata
			Expect(json.Unmarshal([]byte(engine.def.Labels[push2docker.BuildLabel]), &metadata)).To(Succeed())
			Expect(metadata.App.StartCommand).To(Equal("bundle exec rails s"))
			Expect(metadata.Buildpack.Name).To(Equal("Trivial"))
		})

		it("leaves no staging metadata when packaging fails", func() {
			writeBuildpack(bpDir, "echo Trivial", "exit 0", release)
			p.Packager = &img.Packager{Engine: &fakeEngine{err: errors.New("some-engine-error")}, Logger: p.Logger}

			_, err := p.Run(context.Background(), req)
			Expect(err).To(MatchError(sys.ErrPackaging))
			Expect(err).To(MatchError("error creating Docker image: some-engine-error"))
			Expect(filepath.Join(req.OutputDir, push2docker.StagingInfoFile)).NotTo(BeAnExistingFile())
			Expect(filepath.Join(req.OutputDir, push2docker.StagingResultFile)).NotTo(BeAnExistingFile())
			Expect(os.ReadDir(tmpDir)).To(BeEmpty())
		})
	})

	when("the buildpack is fetched", func() {
		var server *httptest.Server

		it.Before(func() {
			archive := tgz(t, map[string]string{
				"bin/detect":  "#!/bin/sh\nexit 1\n",
				"bin/compile": "#!/bin/sh\n",
				"bin/release": "#!/bin/sh\n",
			})
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write(archive)
			}))
			req.Buildpack = server.URL + "/buildpack.tgz"
		})

		it.After(func() {
			server.Close()
		})

		it("removes the bundle when a later phase fails", func() {
			_, err := p.Run(context.Background(), req)
			Expect(err).To(MatchError(sys.ErrDetect))
			Expect(sys.Code(err)).To(Equal(sys.CodeNotDetected))
			Expect(os.ReadDir(tmpDir)).To(BeEmpty())
		})
	})

	when("the request is unusable", func() {
		it("fails on a missing app", func() {
			req.AppPath = filepath.Join(appDir, "missing")
			_, err := p.Run(context.Background(), req)
			Expect(err).To(MatchError(sys.ErrInput))
			Expect(os.ReadDir(tmpDir)).To(BeEmpty())
		})

		it("fails on missing arguments", func() {
			req.Buildpack = ""
			_, err := p.Run(context.Background(), req)
			Expect(err).To(MatchError(sys.ErrInvalidArgs))
			Expect(sys.Code(err)).To(Equal(sys.CodeInvalidArgs))
		})
	})
}

type fakeEngine struct {
	stageDir string
	def      img.Definition
	err      error
}

func (f *fakeEngine) Build(_ context.Context, stageDir string, def img.Definition) error {
	f.stageDir = stageDir
	f.def = def
	return f.err
}

func writeFile(t *testing.T, path, contents string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		t.Fatalf("Error: %s\n", err)
	}
	if err := os.WriteFile(path, []byte(contents), mode); err != nil {
		t.Fatalf("Error: %s\n", err)
	}
}

func tgz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	gw := gzip.NewWriter(buf)
	tw := tar.NewWriter(gw)
	for name, contents := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(contents)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("Error: %s\n", err)
		}
		if _, err := tw.Write([]byte(contents)); err != nil {
			t.Fatalf("Error: %s\n", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Error: %s\n", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("Error: %s\n", err)
	}
	return buf.Bytes()
}
