package cosim

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFakeModelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	return path
}

func TestLinkLoadModelRejectsMissingFile(t *testing.T) {
	l := NewLink(nil)
	err := l.LoadModel(context.Background(), "/no/such/model.json", DefaultConfig(), "sh", "-c", "echo ready")
	require.Error(t, err)

	var notFound *ModelNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestLinkLoadModelRunsBringUpChain(t *testing.T) {
	model := writeFakeModelFile(t)
	cfg := DefaultConfig()
	cfg.StreamPort = 0

	l := NewLink(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := l.LoadModel(ctx, model, cfg, "sh", "-c", "echo ready; sleep 5")
	require.NoError(t, err)
	require.Equal(t, Idle, l.State())
}

func TestLinkStartPauseResumeStop(t *testing.T) {
	model := writeFakeModelFile(t)
	cfg := DefaultConfig()
	cfg.StreamPort = 0

	l := NewLink(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.LoadModel(ctx, model, cfg, "sh", "-c", "echo ready; sleep 5"))

	require.NoError(t, l.StartSimulation(ctx))
	require.Equal(t, Running, l.State())

	require.NoError(t, l.Pause())
	require.Equal(t, Paused, l.State())

	require.NoError(t, l.Resume())
	require.Equal(t, Running, l.State())

	require.NoError(t, l.Stop())
	require.Equal(t, Completed, l.State())
}

func TestLinkStartRejectedBeforeModelLoaded(t *testing.T) {
	l := NewLink(nil)
	err := l.StartSimulation(context.Background())
	require.Error(t, err)

	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
}
