package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile        = "CONFIG_FILE"
	EnvEnvironment       = "GRAFANA_ENV"
	EnvGrafanaURL        = "GRAFANA_URL"
	EnvGrafanaToken      = "GRAFANA_TOKEN"
	EnvHTTPTimeout       = "HTTP_TIMEOUT_SECONDS"
	EnvBaseDir           = "BACKUP_BASE_DIR"
	EnvCategories        = "BACKUP_CATEGORIES"
	EnvCron              = "BACKUP_CRON"
	EnvStatusAddr        = "STATUS_ADDR"
	EnvDest              = "BACKUP_DEST"
	EnvLocalArchivePath  = "LOCAL_ARCHIVE_PATH"
	EnvPrefix            = "BACKUP_PREFIX"
	EnvGPGPublicKey      = "GPG_PUBLIC_KEY_PATH"
	EnvBucket            = "BUCKET_NAME"
	EnvRegion            = "REGION"
	EnvEndpoint          = "ENDPOINT"
	EnvAccessKeyID       = "ACCESS_KEY_ID"
	EnvSecretAccessKey   = "SECRET_ACCESS_KEY"
	EnvGlobalRetention   = "GLOBAL_RETENTION_PERIOD"
	EnvGCDryRun          = "GC_DRY_RUN"
	EnvWebhookURL        = "WEBHOOK_URL"
	EnvWebhookSecret     = "WEBHOOK_SECRET"
	EnvWebhookTimeout    = "WEBHOOK_TIMEOUT_SECONDS"
	EnvWebhookMaxRetries = "WEBHOOK_MAX_RETRIES"
)

const (
	DefaultEnvironment           = "ENV"
	DefaultHTTPTimeoutSeconds    = 30
	DefaultStatusAddr            = ":8080"
	DefaultLocalArchivePath      = "/backups"
	DefaultPrefix                = "grafana"
	DefaultRetentionPeriod       = "0"
	DefaultWebhookTimeoutSeconds = 10
	DefaultWebhookMaxRetries     = 3
)

// Storage destinations. An empty Dest keeps only the on-disk tree.
const (
	DestNone   = ""
	DestLocal  = "local"
	DestRemote = "remote"
)

// Category keys, in execution order.
const (
	CategoryAlerts             = "alerts"
	CategoryContactPoints      = "contact-points"
	CategoryNotificationPolicy = "notification-policy"
	CategoryMuteTimings        = "mute-timings"
	CategoryTemplates          = "templates"
	CategoryDashboards         = "dashboards"
	CategoryDatasources        = "datasources"
)

var AllCategories = []string{
	CategoryAlerts,
	CategoryContactPoints,
	CategoryNotificationPolicy,
	CategoryMuteTimings,
	CategoryTemplates,
	CategoryDashboards,
	CategoryDatasources,
}

type Config struct {
	Environment string          `yaml:"environment"`
	BaseDir     string          `yaml:"base_dir"`
	Categories  []string        `yaml:"categories"`
	Grafana     GrafanaConfig   `yaml:"grafana"`
	Schedule    ScheduleConfig  `yaml:"schedule"`
	Storage     StorageConfig   `yaml:"storage"`
	Retention   RetentionConfig `yaml:"retention"`
	Webhook     WebhookConfig   `yaml:"webhook"`
}

type GrafanaConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ScheduleConfig struct {
	Cron       string `yaml:"cron"`
	StatusAddr string `yaml:"status_addr"`
}

type StorageConfig struct {
	Dest         string   `yaml:"dest"`
	LocalPath    string   `yaml:"local_path"`
	Prefix       string   `yaml:"prefix"`
	GPGPublicKey string   `yaml:"gpg_public_key"`
	S3           S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type RetentionConfig struct {
	Period string `yaml:"period"`
	DryRun bool   `yaml:"dry_run"`
}

type WebhookConfig struct {
	URL            string `yaml:"url"`
	Secret         string `yaml:"secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

func (c *GrafanaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Duration returns the retention window; zero disables garbage collection.
func (c *RetentionConfig) Duration() time.Duration {
	return ParseRetention(c.Period)
}

// Defaults returns the configuration used before any file or environment is applied.
func Defaults() *Config {
	return &Config{
		Environment: DefaultEnvironment,
		BaseDir:     executableDir(),
		Categories:  append([]string(nil), AllCategories...),
		Grafana: GrafanaConfig{
			TimeoutSeconds: DefaultHTTPTimeoutSeconds,
		},
		Schedule: ScheduleConfig{
			StatusAddr: DefaultStatusAddr,
		},
		Storage: StorageConfig{
			LocalPath: DefaultLocalArchivePath,
			Prefix:    DefaultPrefix,
		},
		Retention: RetentionConfig{
			Period: DefaultRetentionPeriod,
		},
		Webhook: WebhookConfig{
			TimeoutSeconds: DefaultWebhookTimeoutSeconds,
			MaxRetries:     DefaultWebhookMaxRetries,
		},
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE,
// a .env file in the working directory and the process environment, in
// that order of increasing precedence. The result is validated.
func Load() (*Config, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "loading .env")
	}
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()

	if path, ok := lookupTrimmed(lookup, EnvConfigFile); ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parsing config file %s", path)
	}
	return nil
}

// lookupTrimmed strips surrounding quotes that often survive docker/compose env files.
func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	val, ok := lookup(key)
	if !ok {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(val), "\\\""), true
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvEnvironment, &c.Environment},
		{EnvGrafanaURL, &c.Grafana.URL},
		{EnvGrafanaToken, &c.Grafana.Token},
		{EnvBaseDir, &c.BaseDir},
		{EnvCron, &c.Schedule.Cron},
		{EnvStatusAddr, &c.Schedule.StatusAddr},
		{EnvDest, &c.Storage.Dest},
		{EnvLocalArchivePath, &c.Storage.LocalPath},
		{EnvPrefix, &c.Storage.Prefix},
		{EnvGPGPublicKey, &c.Storage.GPGPublicKey},
		{EnvBucket, &c.Storage.S3.Bucket},
		{EnvRegion, &c.Storage.S3.Region},
		{EnvEndpoint, &c.Storage.S3.Endpoint},
		{EnvAccessKeyID, &c.Storage.S3.AccessKeyID},
		{EnvSecretAccessKey, &c.Storage.S3.SecretAccessKey},
		{EnvGlobalRetention, &c.Retention.Period},
		{EnvWebhookURL, &c.Webhook.URL},
		{EnvWebhookSecret, &c.Webhook.Secret},
	}
	for _, s := range strs {
		if val, ok := lookupTrimmed(lookup, s.key); ok {
			*s.dst = val
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvHTTPTimeout, &c.Grafana.TimeoutSeconds},
		{EnvWebhookTimeout, &c.Webhook.TimeoutSeconds},
		{EnvWebhookMaxRetries, &c.Webhook.MaxRetries},
	}
	for _, i := range ints {
		val, ok := lookupTrimmed(lookup, i.key)
		if !ok || val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.Wrapf(err, "invalid %s %q", i.key, val)
		}
		*i.dst = n
	}

	if val, ok := lookupTrimmed(lookup, EnvGCDryRun); ok {
		val = strings.ToLower(val)
		c.Retention.DryRun = val == "true" || val == "1"
	}

	if val, ok := lookupTrimmed(lookup, EnvCategories); ok && val != "" {
		c.Categories = strings.Split(val, ",")
	}
	return nil
}

func (c *Config) normalize() {
	c.Environment = strings.TrimSpace(c.Environment)
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.BaseDir == "" {
		c.BaseDir = executableDir()
	}
	c.Grafana.URL = strings.TrimRight(strings.TrimSpace(c.Grafana.URL), "/")
	c.Storage.Dest = strings.ToLower(strings.TrimSpace(c.Storage.Dest))
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = DefaultPrefix
	}
	if c.Storage.LocalPath == "" {
		c.Storage.LocalPath = DefaultLocalArchivePath
	}
	if c.Schedule.StatusAddr == "" {
		c.Schedule.StatusAddr = DefaultStatusAddr
	}

	var cats []string
	for _, cat := range c.Categories {
		cat = strings.ToLower(strings.TrimSpace(cat))
		if cat != "" {
			cats = append(cats, cat)
		}
	}
	if len(cats) == 0 {
		cats = append(cats, AllCategories...)
	}
	c.Categories = cats
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Grafana.URL == "" {
		problems = append(problems, EnvGrafanaURL+" is required")
	} else if u, err := url.Parse(c.Grafana.URL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "Invalid "+EnvGrafanaURL+" '"+c.Grafana.URL+"': expected scheme://host")
	}
	if c.Grafana.Token == "" {
		problems = append(problems, EnvGrafanaToken+" is required")
	}
	if c.Grafana.TimeoutSeconds <= 0 {
		problems = append(problems, "Invalid "+EnvHTTPTimeout+": must be a positive integer")
	}

	for _, cat := range c.Categories {
		if !IsCategory(cat) {
			problems = append(problems, "Unknown category '"+cat+"' (known: "+strings.Join(AllCategories, ", ")+")")
		}
	}

	if c.Schedule.Cron != "" {
		if _, err := cronParser.Parse(c.Schedule.Cron); err != nil {
			problems = append(problems, "Invalid "+EnvCron+" expression '"+c.Schedule.Cron+"': "+err.Error())
		}
	}

	switch c.Storage.Dest {
	case DestNone, DestLocal:
	case DestRemote:
		if c.Storage.S3.Bucket == "" {
			problems = append(problems, EnvBucket+" is required when "+EnvDest+"=remote")
		}
	default:
		problems = append(problems, "Unknown "+EnvDest+" '"+c.Storage.Dest+"' (expected local or remote)")
	}

	if c.Retention.Period != "" && ParseRetention(c.Retention.Period) == 0 && !isZeroRetention(c.Retention.Period) {
		problems = append(problems, "Invalid "+EnvGlobalRetention+" '"+c.Retention.Period+"': cannot parse duration")
	}

	if c.Webhook.TimeoutSeconds <= 0 {
		problems = append(problems, "Invalid "+EnvWebhookTimeout+": must be a positive integer")
	}
	if c.Webhook.MaxRetries < 0 {
		problems = append(problems, "Invalid "+EnvWebhookMaxRetries+": must not be negative")
	}

	if len(problems) > 0 {
		return errors.Newf("configuration validation failed:\n%s", strings.Join(problems, "\n"))
	}
	return nil
}

// IsCategory reports whether key names a known export category.
func IsCategory(key string) bool {
	for _, c := range AllCategories {
		if c == key {
			return true
		}
	}
	return false
}

// Enabled reports whether the category is part of this run.
func (c *Config) Enabled(category string) bool {
	for _, cat := range c.Categories {
		if cat == category {
			return true
		}
	}
	return false
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
