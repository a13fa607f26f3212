package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/config"
	"github.com/spawn-mcp/campaign-studio/pkg/store"
	"github.com/spawn-mcp/campaign-studio/pkg/store/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load("")
	require.NoError(t, err)
	c.LLM.APIKey = "sk-test"
	c.Browser.Mode = "disabled"
	return c
}

func TestNewAppLocalDefaults(t *testing.T) {
	c := testConfig(t)
	a, err := newApp(context.Background(), c, zap.NewNop(), false)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.gcp, "memory store and local dispatch need no cloud clients")
	assert.IsType(t, &store.Memory{}, a.store)
	assert.NotNil(t, a.orchestrator)
}

func TestNewAppSQLite(t *testing.T) {
	c := testConfig(t)
	c.Store.Backend = "sqlite"
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "campaigns.db")

	a, err := newApp(context.Background(), c, zap.NewNop(), false)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Repository{}, a.store)
	assert.NoError(t, a.Close())
}

func TestNewAppRequiresModelKey(t *testing.T) {
	c := testConfig(t)
	c.LLM.APIKey = ""
	_, err := newApp(context.Background(), c, zap.NewNop(), false)
	assert.Error(t, err)
}

func TestNeedsGCP(t *testing.T) {
	c := testConfig(t)
	assert.False(t, needsGCP(c))

	c.Store.Backend = "firestore"
	assert.True(t, needsGCP(c))

	c = testConfig(t)
	c.Dispatch.PublishProgress = true
	assert.True(t, needsGCP(c))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}
