package stage

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Session namespaces the scratch directories of one run so concurrent runs
// sharing a temp directory never collide.
type Session struct {
	ID       string
	TmpDir   string
	StageDir string
	BuildDir string
}

func NewSession(tmpDir string) *Session {
	id := uuid.NewString()
	stageDir := filepath.Join(tmpDir, "staged_"+id)
	return &Session{
		ID:       id,
		TmpDir:   tmpDir,
		StageDir: stageDir,
		BuildDir: filepath.Join(stageDir, "app"),
	}
}

// FetchDir is where a buildpack fetched for this session is placed.
func (s *Session) FetchDir() string {
	return filepath.Join(s.TmpDir, "buildpack_"+s.ID)
}

// Close removes the staging root.
func (s *Session) Close() error {
	return os.RemoveAll(s.StageDir)
}
