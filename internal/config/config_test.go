package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("LIVEQUIZ_TEST_REDIS", "localhost:6390")

	cfg, err := Parse([]byte(`
redis:
  addr: ${LIVEQUIZ_TEST_REDIS}
quiz:
  autoLock: true
  autoLockGrace: 1500ms
scoring:
  timeBonusFactor: 25
`))
	require.NoError(t, err)

	assert.Equal(t, "localhost:6390", cfg.Redis.Addr)
	assert.True(t, cfg.Quiz.AutoLock)
	assert.Equal(t, 1500*time.Millisecond, TTLDuration(cfg.Quiz.AutoLockGrace, 0))
	assert.Equal(t, 1000, *cfg.Scoring.BaseScore)
	assert.Equal(t, 25, *cfg.Scoring.TimeBonusFactor)
	assert.Equal(t, 5, cfg.Leaderboard.RoundLimit)
	assert.Equal(t, 20, cfg.Leaderboard.DisplayLimit)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\nleaderboard:\n  displayLimit: 50\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Leaderboard.DisplayLimit)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, 90*time.Second, TTLDuration("90s", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := map[string]struct {
		yaml string
		want string
	}{
		"zero base score": {
			yaml: "scoring:\n  baseScore: 0\n",
			want: "scoring.baseScore",
		},
		"negative bonus": {
			yaml: "scoring:\n  timeBonusFactor: -5\n",
			want: "scoring.timeBonusFactor",
		},
		"relay without redis": {
			yaml: "redis:\n  relay: true\npostgres:\n  url: postgres://db\n",
			want: "redis.addr",
		},
		"relay without postgres": {
			yaml: "redis:\n  addr: localhost:6379\n  relay: true\n",
			want: "postgres.url",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseKeepsExplicitZeroBonus(t *testing.T) {
	cfg, err := Parse([]byte("scoring:\n  timeBonusFactor: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, *cfg.Scoring.TimeBonusFactor)
	assert.Equal(t, 1000, *cfg.Scoring.BaseScore)
}

func TestShippedConfigParses(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.False(t, cfg.Redis.Relay)
}
