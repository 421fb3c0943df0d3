package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	cfg, err := load(envLookup(map[string]string{
		EnvEnvironment:     "prod",
		EnvGrafanaURL:      "https://grafana.example.com/",
		EnvGrafanaToken:    `"glsa_token"`,
		EnvBaseDir:         "/var/backups",
		EnvCategories:      " Dashboards, templates ,,",
		EnvHTTPTimeout:     "5",
		EnvGlobalRetention: "14d",
		EnvGCDryRun:        "TRUE",
	}))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "https://grafana.example.com", cfg.Grafana.URL)
	assert.Equal(t, "glsa_token", cfg.Grafana.Token)
	assert.Equal(t, "/var/backups", cfg.BaseDir)
	assert.Equal(t, []string{CategoryDashboards, CategoryTemplates}, cfg.Categories)
	assert.Equal(t, 5*time.Second, cfg.Grafana.Timeout())
	assert.Equal(t, 14*24*time.Hour, cfg.Retention.Duration())
	assert.True(t, cfg.Retention.DryRun)
	assert.True(t, cfg.Enabled(CategoryTemplates))
	assert.False(t, cfg.Enabled(CategoryAlerts))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(envLookup(map[string]string{
		EnvGrafanaURL:   "http://localhost:3000",
		EnvGrafanaToken: "t",
	}))
	require.NoError(t, err)

	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Equal(t, AllCategories, cfg.Categories)
	assert.Equal(t, DefaultHTTPTimeoutSeconds, cfg.Grafana.TimeoutSeconds)
	assert.Equal(t, DestNone, cfg.Storage.Dest)
	assert.Equal(t, DefaultPrefix, cfg.Storage.Prefix)
	assert.Zero(t, cfg.Retention.Duration())
	assert.Equal(t, DefaultWebhookMaxRetries, cfg.Webhook.MaxRetries)
	assert.NotEmpty(t, cfg.BaseDir)
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
environment: staging
base_dir: /data
categories: [alerts, dashboards]
grafana:
  url: http://grafana:3000
  token: from-file
  timeout_seconds: 12
storage:
  dest: remote
  prefix: team-a
  s3:
    bucket: grafana-snapshots
    region: eu-west-1
retention:
  period: 30d
webhook:
  url: https://hooks.example.com/backup
  max_retries: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := load(envLookup(map[string]string{
		EnvConfigFile:   path,
		EnvGrafanaToken: "from-env",
	}))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "/data", cfg.BaseDir)
	assert.Equal(t, []string{CategoryAlerts, CategoryDashboards}, cfg.Categories)
	assert.Equal(t, "from-env", cfg.Grafana.Token)
	assert.Equal(t, 12, cfg.Grafana.TimeoutSeconds)
	assert.Equal(t, DestRemote, cfg.Storage.Dest)
	assert.Equal(t, "team-a", cfg.Storage.Prefix)
	assert.Equal(t, "grafana-snapshots", cfg.Storage.S3.Bucket)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.Duration())
	assert.Equal(t, 0, cfg.Webhook.MaxRetries)
	assert.Equal(t, DefaultWebhookTimeoutSeconds, cfg.Webhook.TimeoutSeconds)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := load(envLookup(map[string]string{
		EnvConfigFile: filepath.Join(t.TempDir(), "absent.yaml"),
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadInvalidInteger(t *testing.T) {
	_, err := load(envLookup(map[string]string{
		EnvGrafanaURL:   "http://g",
		EnvGrafanaToken: "t",
		EnvHTTPTimeout:  "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvHTTPTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Grafana.URL = "http://grafana:3000"
		cfg.Grafana.Token = "t"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.Grafana.URL = "" }, wantErr: "GRAFANA_URL is required"},
		{name: "url without scheme", mutate: func(c *Config) { c.Grafana.URL = "grafana:3000/x" }, wantErr: "expected scheme://host"},
		{name: "missing token", mutate: func(c *Config) { c.Grafana.Token = "" }, wantErr: "GRAFANA_TOKEN is required"},
		{name: "unknown category", mutate: func(c *Config) { c.Categories = []string{"folders"} }, wantErr: "Unknown category 'folders'"},
		{name: "five field cron", mutate: func(c *Config) { c.Schedule.Cron = "0 2 * * *" }},
		{name: "six field cron", mutate: func(c *Config) { c.Schedule.Cron = "30 0 2 * * *" }},
		{name: "descriptor cron", mutate: func(c *Config) { c.Schedule.Cron = "@daily" }},
		{name: "bad cron", mutate: func(c *Config) { c.Schedule.Cron = "every day" }, wantErr: "Invalid BACKUP_CRON"},
		{name: "remote without bucket", mutate: func(c *Config) { c.Storage.Dest = DestRemote }, wantErr: "BUCKET_NAME is required"},
		{name: "unknown dest", mutate: func(c *Config) { c.Storage.Dest = "ftp" }, wantErr: "Unknown BACKUP_DEST"},
		{name: "bad retention", mutate: func(c *Config) { c.Retention.Period = "forever" }, wantErr: "Invalid GLOBAL_RETENTION_PERIOD"},
		{name: "zero retention", mutate: func(c *Config) { c.Retention.Period = "0d" }},
		{name: "negative retries", mutate: func(c *Config) { c.Webhook.MaxRetries = -1 }, wantErr: "WEBHOOK_MAX_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should contain %q", err, tt.wantErr)
		})
	}
}

func TestParseRetention(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
	}{
		{name: "empty string", input: "", expected: 0},
		{name: "7 days", input: "7d", expected: 7 * 24 * time.Hour},
		{name: "24 hours", input: "24h", expected: 24 * time.Hour},
		{name: "30 minutes", input: "30m", expected: 30 * time.Minute},
		{name: "combined", input: "1h30m", expected: 90 * time.Minute},
		{name: "plain number (days)", input: "10", expected: 10 * 24 * time.Hour},
		{name: "negative days", input: "-5d", expected: 0},
		{name: "negative duration", input: "-3h", expected: 0},
		{name: "invalid format", input: "invalid", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetention(tt.input); got != tt.expected {
				t.Errorf("ParseRetention(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
