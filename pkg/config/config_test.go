package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
local:
  storage:
    backend: BoltStorage
    data_dir: /tmp/uptimed
  server:
    with_consolidation: true
  monitoring:
    max_services: 15
    check_every_seconds: 30
  consolidations:
    status:
      filter: ns
      down_since: 300
production:
  storage:
    backend: MongoStorage
    uri: mongodb://db:27017
    db: uptime
`

func TestParse_SelectsEnvironment(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), "local")
	require.NoError(t, err)

	assert.Equal(t, BackendBolt, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/uptimed", cfg.Storage.DataDir)
	assert.True(t, cfg.Server.WithConsolidation)
	assert.Equal(t, 15, cfg.Monitoring.MaxServices)
	assert.Equal(t, 30, cfg.Monitoring.CheckEverySeconds)
	assert.Equal(t, "ns", cfg.Consolidations.Status.FilterCategory)
	assert.Equal(t, 300, cfg.Consolidations.Status.DownSinceSeconds)
}

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), "production")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Monitoring.MaxServices)
	assert.Equal(t, 60, cfg.Monitoring.CheckEverySeconds)
	assert.Equal(t, 5, cfg.Monitoring.FastRetryEverySeconds)
	assert.Equal(t, 3, cfg.Monitoring.AttemptBeforeFail)
	assert.Equal(t, 600, cfg.Consolidations.Status.DownSinceSeconds)
	assert.Equal(t, 60, cfg.Consolidations.Status.WaitingSecondsBetweenBatch)
	assert.Equal(t, 60, cfg.Instance.AliveSeconds)
	assert.Equal(t, 180, cfg.Instance.InactiveDuringSeconds)
}

func TestParse_MissingEnvironment(t *testing.T) {
	_, err := Parse([]byte(sampleYAML), "staging")
	require.Error(t, err)

	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "staging")
}

func TestParse_UnknownBackend(t *testing.T) {
	_, err := Parse([]byte("local:\n  storage:\n    backend: RedisStorage\n"), "local")
	require.Error(t, err)

	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "RedisStorage")
}

func TestParse_MongoRequiresURI(t *testing.T) {
	_, err := Parse([]byte("local:\n  storage:\n    backend: MongoStorage\n"), "local")
	require.Error(t, err)
}
