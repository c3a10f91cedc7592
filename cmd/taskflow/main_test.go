package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Joseda-hg/taskflow/internal/config"
)

func TestSetupCreatesConfigAndStore(t *testing.T) {
	dir := t.TempDir()
	configPathFlag = filepath.Join(dir, "config.yaml")
	dbPathFlag = ""
	t.Cleanup(func() { configPathFlag, dbPathFlag = "", "" })
	rootCmd.SetContext(context.Background())

	a, err := setup(rootCmd)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.store.DB.Close() })

	assert.Equal(t, filepath.Join(dir, "taskflow.db"), a.cfg.DBPath)
	assert.FileExists(t, configPathFlag)
	assert.FileExists(t, a.cfg.DBPath)

	profile, err := a.store.GetProfile(rootCmd.Context(), a.cfg.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "UTC", profile.Timezone)

	creds, token := calendarPaths(a)
	assert.Equal(t, filepath.Join(dir, "credentials.json"), creds)
	assert.Equal(t, filepath.Join(dir, "calendar_token.json"), token)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := newLogger(config.LoggingConfig{Level: "loud"})
	require.Error(t, err)

	logger, err := newLogger(config.LoggingConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestTipsCommandPrintsFallback(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", filepath.Join(dir, "config.yaml"), "tips"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		configPathFlag = ""
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "No tasks for today")
}

func TestSetupKeepsEnvKeysOutOfSeededConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	dir := t.TempDir()
	configPathFlag = filepath.Join(dir, "config.yaml")
	dbPathFlag = ""
	t.Cleanup(func() { configPathFlag, dbPathFlag = "", "" })
	rootCmd.SetContext(context.Background())

	a, err := setup(rootCmd)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.store.DB.Close() })

	assert.Equal(t, "sk-from-env", a.cfg.Transcribe.APIKey)

	written, err := os.ReadFile(configPathFlag)
	require.NoError(t, err)
	assert.NotContains(t, string(written), "sk-from-env")
	assert.Contains(t, string(written), filepath.Join(dir, "taskflow.db"))
}
