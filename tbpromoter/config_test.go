package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unioproject/tbpromoter/lib/config"
)

func TestSetDefaults(t *testing.T) {
	cfg := ConfigStructYAML{}
	require.NoError(t, cfg.setDefaults())
	assert.Equal(t, []string{defaultIotaNode}, cfg.Iota.IOTANode)
	assert.EqualValues(t, defaultTimeoutAPI, cfg.Iota.TimeoutAPI)
	assert.Len(t, cfg.Iota.TxTagPromote, 27)
	assert.True(t, strings.HasPrefix(cfg.Iota.TxTagPromote, defaultTagPromote))
	assert.Equal(t, defaultSingleDeadline, cfg.Pursuit.SingleDeadlineMin)
	assert.Equal(t, defaultAuditDbFile, cfg.Audit.DbFile)
}

func TestSetDefaultsRejectsWrongTrytes(t *testing.T) {
	cfg := ConfigStructYAML{}
	cfg.Iota.AddressPromote = "not-an-address"
	assert.Error(t, cfg.setDefaults())

	cfg = ConfigStructYAML{}
	cfg.Iota.TxTagPromote = "lowercase"
	assert.Error(t, cfg.setDefaults())
}

func TestSampleConfig(t *testing.T) {
	data, err := os.ReadFile("tbpromoter.yml")
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.yml"), data, 0644))
	t.Setenv("SITE_DATA_DIR", dir)

	cfg := ConfigStructYAML{}
	_, _, err = config.ReadYAML("sample.yml", nil, &cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.setDefaults())
	assert.Equal(t, 5, cfg.Pursuit.MaxPromotions)
	assert.EqualValues(t, 1000000, cfg.Discovery.ValueThreshold)
	assert.Equal(t, 45, cfg.Discovery.DeadlineMin)
	assert.Equal(t, []string{"tcp://localhost:5556"}, cfg.Discovery.InputsZMQ)
	assert.True(t, cfg.Audit.Enabled)
}

func TestSetupLoggingDiscovery(t *testing.T) {
	Config = ConfigStructYAML{siteDataDir: t.TempDir()}
	require.NoError(t, Config.setDefaults())
	now := time.Date(2018, 10, 17, 9, 5, 30, 0, time.Local)

	msgs, err := setupLogging("autopromote", true, now, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, msgs)
	require.NotNil(t, summaryLog)

	summaryLog.Infof("Success: 5min - 12mi: BUNDLE")
	dir := filepath.Join(Config.siteDataDir, "logs", "17-10-2018")
	assert.FileExists(t, filepath.Join(dir, "090530_autopromote.log"))
	data, err := os.ReadFile(filepath.Join(dir, "090530_autopromote_summary.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Success: 5min - 12mi: BUNDLE")
}

func TestSetupLoggingSingleHasNoSummary(t *testing.T) {
	Config = ConfigStructYAML{siteDataDir: t.TempDir()}
	require.NoError(t, Config.setDefaults())
	now := time.Date(2018, 10, 17, 9, 5, 30, 0, time.Local)

	_, err := setupLogging("TXHASH", false, now, nil)
	require.NoError(t, err)
	assert.Nil(t, summaryLog)

	entries, err := os.ReadDir(filepath.Join(Config.siteDataDir, "logs", "17-10-2018"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "090530_TXHASH.log", entries[0].Name())
}
