// Package archiveflusher implements the periodic local-completed→archive
// move on a fixed-interval ticker.
package archiveflusher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Flusher walks LocalCompletedDir on each tick and moves every file it
// finds into ArchiveDir.
type Flusher struct {
	LocalCompletedDir string
	ArchiveDir        string
	Interval          time.Duration
	Log               zerolog.Logger
}

// Run ticks every f.Interval until ctx is cancelled, then runs one final
// pass before returning.
func (f *Flusher) Run(ctx context.Context) error {
	if f.ArchiveDir == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flushOnce()
		case <-ctx.Done():
			f.flushOnce()
			return ctx.Err()
		}
	}
}

func (f *Flusher) flushOnce() {
	entries, err := os.ReadDir(f.LocalCompletedDir)
	if err != nil {
		if !os.IsNotExist(err) {
			f.Log.Error().Err(err).Str("dir", f.LocalCompletedDir).Msg("archive flusher failed to read local completed directory")
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := f.moveOne(entry.Name()); err != nil {
			f.Log.Error().Err(err).Str("file", entry.Name()).Msg("archive flusher failed to move file")
		}
	}
}

func (f *Flusher) moveOne(name string) error {
	src := filepath.Join(f.LocalCompletedDir, name)
	dst := filepath.Join(f.ArchiveDir, name)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archiveflusher: moving %s to archive: %w", name, err)
	}
	f.Log.Info().Str("file", name).Msg("moved completed run to archive")
	return nil
}
