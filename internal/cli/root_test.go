package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puzzle-scoring-service/internal/config"
	"puzzle-scoring-service/internal/domain"
	"puzzle-scoring-service/internal/logger"
)

func TestRootRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["start"])
	assert.True(t, names["migrate"])
	assert.True(t, names["recompute"])
}

func TestRecomputeNeedsPostgres(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"8080\"\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"recompute", "--config", path})
	cmd.SetOut(os.Stderr)
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, errNoPostgres)
}

func TestBuildServiceInMemory(t *testing.T) {
	ctx := context.Background()
	service, cleanup, err := buildService(ctx, config.Default(), logger.Discard(), prometheus.NewRegistry(), false)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, service.RegisterUser(ctx, domain.User{ID: "u1", Username: "uno"}))
	attempt, err := service.Submit(ctx, "u1", "velas", "diecisiete", nil)
	require.NoError(t, err)
	assert.True(t, attempt.Correct)
	assert.Equal(t, 40, attempt.Score)

	pos, ok, err := service.PositionOf(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
}
