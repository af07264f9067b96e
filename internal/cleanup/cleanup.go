// Package cleanup reclaims disk space on a schedule: staged uploads,
// leftover attempt workspaces, and expired local artifacts all age out
// after the retention window.
package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lofitape/api/internal/config"
)

// ArtifactPurger removes stored artifacts older than cutoff. Satisfied by
// the local storage client; remote stores handle expiry with bucket
// lifecycle rules instead.
type ArtifactPurger interface {
	Purge(cutoff time.Time)
}

// Janitor runs the scheduled sweeps.
type Janitor struct {
	cfg    config.CleanupConfig
	paths  config.PathsConfig
	purger ArtifactPurger
	cron   *cron.Cron
}

// NewJanitor creates a Janitor. purger may be nil when artifacts live in
// remote storage.
func NewJanitor(cfg config.CleanupConfig, paths config.PathsConfig, purger ArtifactPurger) *Janitor {
	return &Janitor{
		cfg:    cfg,
		paths:  paths,
		purger: purger,
		cron:   cron.New(),
	}
}

// Start schedules the sweep and returns immediately.
func (j *Janitor) Start() error {
	if j.cfg.Retention <= 0 {
		log.Println("cleanup: retention disabled, janitor not started")
		return nil
	}
	if _, err := j.cron.AddFunc(j.cfg.Schedule, j.Sweep); err != nil {
		return err
	}
	j.cron.Start()
	log.Printf("cleanup: sweeping %q with %s retention", j.cfg.Schedule, j.cfg.Retention)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep removes everything older than the retention window.
func (j *Janitor) Sweep() {
	cutoff := time.Now().Add(-j.cfg.Retention)

	removed := sweepDir(j.paths.UploadDir, cutoff, "")
	// The work dir may be shared (it defaults under the system temp dir),
	// so only attempt workspaces are fair game there.
	removed += sweepDir(j.paths.WorkDir, cutoff, workspacePrefix)
	if j.purger != nil {
		j.purger.Purge(cutoff)
	}
	if removed > 0 {
		log.Printf("cleanup: removed %d stale entries", removed)
	}
}

// workspacePrefix matches the attempt workspace directories the pipeline
// creates under the work dir.
const workspacePrefix = "job-"

// sweepDir removes direct children of dir whose mtime predates cutoff,
// skipping entries not matching prefix. Workspaces are directories and
// uploads are files, so both go with one RemoveAll per entry.
func sweepDir(dir string, cutoff time.Time, prefix string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if prefix != "" && !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			log.Printf("cleanup: remove %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed
}
