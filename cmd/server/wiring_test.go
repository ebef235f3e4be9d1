package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustline/internal/platform/config"
	"trustline/internal/platform/logger"
)

func TestNewAppInMemory(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	log := logger.NewWithWriter(io.Discard, "error", "json")

	in := &infra{}
	assert.Empty(t, in.readinessChecks())

	a, err := newApp(in, cfg, log)
	require.NoError(t, err)
	defer a.audit.Close()

	assert.NotNil(t, a.trust)
	assert.NotNil(t, a.levels)
	assert.NotNil(t, a.analytics)
	assert.NotNil(t, a.oracle)
	require.NoError(t, a.seedDefaultLevels(context.Background(), log))
	require.NoError(t, a.resyncAllRoles(context.Background(), log))

	report, err := a.reconciler.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Communities)
}
