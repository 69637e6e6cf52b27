package archiveflusher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestFlushOnceMovesFiles(t *testing.T) {
	completedDir := t.TempDir()
	archiveDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(completedDir, "run-1.nxs"), []byte("data"), 0o644))

	f := &Flusher{LocalCompletedDir: completedDir, ArchiveDir: archiveDir, Interval: time.Hour, Log: zerolog.Nop()}
	f.flushOnce()

	_, err := os.Stat(filepath.Join(archiveDir, "run-1.nxs"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(completedDir, "run-1.nxs"))
	require.True(t, os.IsNotExist(err))
}

func TestRunFlushesOnceOnShutdown(t *testing.T) {
	completedDir := t.TempDir()
	archiveDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(completedDir, "run-2.nxs"), []byte("data"), 0o644))

	f := &Flusher{LocalCompletedDir: completedDir, ArchiveDir: archiveDir, Interval: time.Hour, Log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	cancel()
	<-done

	_, err := os.Stat(filepath.Join(archiveDir, "run-2.nxs"))
	require.NoError(t, err)
}

func TestRunWithNoArchiveDirIsNoOp(t *testing.T) {
	f := &Flusher{LocalCompletedDir: t.TempDir(), Interval: time.Hour, Log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	cancel()
	<-done
}
