package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// workspace owns the working directory for a single attempt. Every
// intermediate file lives inside dir, so one RemoveAll covers all exit
// paths; no attempt ever shares files with another.
type workspace struct {
	jobID string
	dir   string
}

func newWorkspace(root, jobID string) (*workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	dir, err := os.MkdirTemp(root, "job-"+jobID+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &workspace{jobID: jobID, dir: dir}, nil
}

func (w *workspace) tempWavPath() string  { return filepath.Join(w.dir, "temp.wav") }
func (w *workspace) wavPath() string      { return filepath.Join(w.dir, "out.wav") }
func (w *workspace) mixedWavPath() string { return filepath.Join(w.dir, "mixed.wav") }
func (w *workspace) mp3Path() string      { return filepath.Join(w.dir, "out.mp3") }
func (w *workspace) boostedPath(name string) string {
	return filepath.Join(w.dir, "boosted_"+name)
}

func (w *workspace) cleanup() {
	_ = os.RemoveAll(w.dir)
}
