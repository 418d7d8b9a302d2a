package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/taxflow/internal/config"
	"github.com/mmeshcher/taxflow/internal/metrics"
	"github.com/mmeshcher/taxflow/internal/model"
	"github.com/mmeshcher/taxflow/internal/repository"
	"github.com/mmeshcher/taxflow/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RunAddress:  "127.0.0.1:0",
		StoragePath: filepath.Join(t.TempDir(), "taxflow.db"),
		TokenTTL:    time.Hour,
	}
}

// reopen убеждается, что файл bbolt больше не заблокирован.
func reopen(t *testing.T, path string) {
	t.Helper()
	repo, err := repository.NewBoltRepository(path)
	require.NoError(t, err, "storage must be closed after run returns")
	require.NoError(t, repo.Close())
}

func TestRunSeedFailureClosesStorage(t *testing.T) {
	cfg := testConfig(t)

	err := run(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation), "got %v", err)

	reopen(t, cfg.StoragePath)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	repo, err := repository.NewBoltRepository(cfg.StoragePath)
	require.NoError(t, err)
	svc := service.NewService(repo, nil, metrics.New(), service.WithHashCost(bcrypt.MinCost))
	require.NoError(t, svc.SeedUsers(context.Background(), "password123"))
	require.NoError(t, svc.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, run(ctx, cfg, zap.NewNop()))
	reopen(t, cfg.StoragePath)
}
