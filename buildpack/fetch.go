package buildpack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paketo-buildpacks/packit/v2/scribe"
	"github.com/paketo-buildpacks/packit/v2/vacation"

	"github.com/buildpack/push2docker/sys"
)

// Environment that could redirect a clone into an unrelated repository.
var gitEnv = []string{"GIT_DIR", "GIT_WORK_TREE"}

type Ownership int

const (
	Local Ownership = iota
	Fetched
)

// Bundle is a buildpack on local disk. Fetched bundles belong to the
// pipeline and are removed by Close; local ones are never touched.
type Bundle struct {
	Dir       string
	Ownership Ownership

	closed bool
}

func (b *Bundle) Bin(name string) string {
	return filepath.Join(b.Dir, "bin", name)
}

// Close removes a fetched bundle. It is safe to call more than once.
func (b *Bundle) Close() error {
	if b == nil || b.closed || b.Ownership != Fetched {
		return nil
	}
	b.closed = true
	return os.RemoveAll(b.Dir)
}

type Fetcher struct {
	Timeout time.Duration
	Client  *http.Client
	Git     string
	Logger  scribe.Logger
}

// Fetch resolves ref to a bundle. Anything other than a local directory is
// fetched into dir within the timeout; on failure dir is removed.
func (f *Fetcher) Fetch(ctx context.Context, ref, dir string) (*Bundle, error) {
	r := ParseRef(ref)
	if r.Kind == KindLocal {
		f.Logger.Debug.Subprocess("Using local buildpack %s", r.URL)
		return &Bundle{Dir: r.URL, Ownership: Local}, nil
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	if err := f.fetch(ctx, r, dir); err != nil {
		os.RemoveAll(dir)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", f.Timeout, err)
		}
		return nil, sys.Wrap(sys.ErrFetch, err)
	}
	f.Logger.Subprocess("done")
	return &Bundle{Dir: dir, Ownership: Fetched}, nil
}

func (f *Fetcher) fetch(ctx context.Context, r Ref, dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return sys.Fail(err, "make directory", dir)
	}

	var err error
	switch r.Kind {
	case KindTarball:
		f.Logger.Process("Fetching buildpack %s", r.URL)
		err = f.download(ctx, r.URL, dir)
	default:
		f.Logger.Process("Cloning buildpack %s", r.URL)
		err = f.clone(ctx, r, dir)
	}
	if err != nil {
		return err
	}
	return chmodR(filepath.Join(dir, "bin"), 0755)
}

func (f *Fetcher) download(ctx context.Context, url, dir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sys.Fail(err, "build request for", url)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return sys.Fail(err, "download", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: %s", url, resp.Status)
	}
	if err := vacation.NewArchive(resp.Body).Decompress(dir); err != nil {
		return sys.Fail(err, "extract", url)
	}
	return nil
}

func (f *Fetcher) clone(ctx context.Context, r Ref, dir string) error {
	if strings.HasPrefix(r.Treeish, "-") {
		return fmt.Errorf("invalid git ref %q", r.Treeish)
	}
	git := f.Git
	if git == "" {
		git = "git"
	}

	restore := sys.Unsetenv(gitEnv...)
	defer restore()

	if _, err := sys.Run(ctx, git, "clone", "--quiet", "--", r.URL, dir); err != nil {
		return sys.Fail(err, "clone", r.URL)
	}
	if r.Treeish == "" {
		return nil
	}
	if _, err := sys.Run(ctx, git, "-C", dir, "checkout", "--quiet", r.Treeish, "--"); err != nil {
		return sys.Fail(err, "checkout", r.Treeish)
	}
	return nil
}

func chmodR(root string, mode os.FileMode) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		return os.Chmod(path, mode)
	})
}
