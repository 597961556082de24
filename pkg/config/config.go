package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment override (REPORTOOR_GLOBAL_LOG_LEVEL, ...).
	EnvPrefix = "REPORTOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultReportPath is where mochawesome writes its JSON report.
	DefaultReportPath = "mochawesome-report/mochawesome.json"

	// DefaultIPLookupURL is the IP-echo service used when no origin is set.
	DefaultIPLookupURL = "https://api.ipify.org"

	// DefaultIPLookupTimeout bounds the single IP-echo request.
	DefaultIPLookupTimeout = 10 * time.Second

	// DefaultUserAgent is stored on results that captured no request headers.
	DefaultUserAgent = "unknown"

	// DefaultSQLitePath is the database file used by the sqlite driver.
	DefaultSQLitePath = "reportoor.db"

	// DefaultListen is the API listen address.
	DefaultListen = ":8080"

	// DefaultRequestsPerMinute is the per-IP API rate limit.
	DefaultRequestsPerMinute = 120
)

// Config is the root configuration for reportoor.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Archive  ArchiveConfig  `yaml:"archive" mapstructure:"archive"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// IngestConfig contains the settings of one report ingestion.
//
// Environment, Tester, Build and Origin are also read from the bare
// ENV, TESTER, BUILD and WHERE variables set by CI jobs.
type IngestConfig struct {
	Report           string        `yaml:"report" mapstructure:"report"`
	Environment      string        `yaml:"environment" mapstructure:"environment"`
	Tester           string        `yaml:"tester" mapstructure:"tester"`
	Build            string        `yaml:"build,omitempty" mapstructure:"build"`
	Origin           string        `yaml:"origin,omitempty" mapstructure:"origin"`
	IPLookupURL      string        `yaml:"ip_lookup_url" mapstructure:"ip_lookup_url"`
	IPLookupTimeout  time.Duration `yaml:"ip_lookup_timeout" mapstructure:"ip_lookup_timeout"`
	DefaultUserAgent string        `yaml:"default_user_agent" mapstructure:"default_user_agent"`
}

// SourceConfig configures where reports may be read from besides the
// local filesystem.
type SourceConfig struct {
	S3 S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config contains settings for reading s3:// report locations.
type S3Config struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// ArchiveConfig configures copying ingested reports to an S3 bucket. The
// connection settings of source.s3 are reused.
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	Prefix       string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL          string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// legacyEnv maps config keys to the un-prefixed variables CI jobs export.
// The prefixed name is listed first so it wins when both are set.
var legacyEnv = map[string]string{
	"ingest.environment": "ENV",
	"ingest.tester":      "TESTER",
	"ingest.build":       "BUILD",
	"ingest.origin":      "WHERE",
}

// Load reads the optional configuration file at path and applies
// environment overrides on top of it. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("binding env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.normalize()

	return &cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override it
// even when the config file does not mention it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.ssl_mode", "disable")

	v.SetDefault("ingest.report", DefaultReportPath)
	v.SetDefault("ingest.environment", "")
	v.SetDefault("ingest.tester", "")
	v.SetDefault("ingest.build", "")
	v.SetDefault("ingest.origin", "")
	v.SetDefault("ingest.ip_lookup_url", DefaultIPLookupURL)
	v.SetDefault("ingest.ip_lookup_timeout", DefaultIPLookupTimeout)
	v.SetDefault("ingest.default_user_agent", DefaultUserAgent)

	v.SetDefault("source.s3.enabled", false)
	v.SetDefault("source.s3.endpoint_url", "")
	v.SetDefault("source.s3.region", "")
	v.SetDefault("source.s3.access_key_id", "")
	v.SetDefault("source.s3.secret_access_key", "")
	v.SetDefault("source.s3.force_path_style", false)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "reports")
	v.SetDefault("archive.storage_class", "")
	v.SetDefault("archive.acl", "")

	v.SetDefault("api.listen", DefaultListen)
	v.SetDefault("api.cors_origins", []string{})
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.requests_per_minute", DefaultRequestsPerMinute)
}

// normalize trims identifiers that usually arrive through CI variables.
func (c *Config) normalize() {
	c.Ingest.Environment = strings.TrimSpace(c.Ingest.Environment)
	c.Ingest.Tester = strings.TrimSpace(c.Ingest.Tester)
	c.Ingest.Build = strings.TrimSpace(c.Ingest.Build)
	c.Ingest.Origin = strings.TrimSpace(c.Ingest.Origin)

	if c.Ingest.IPLookupTimeout <= 0 {
		c.Ingest.IPLookupTimeout = DefaultIPLookupTimeout
	}

	if c.API.RateLimit.RequestsPerMinute <= 0 {
		c.API.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
}

// MissingEnvError reports required run identifiers that were not set.
type MissingEnvError struct {
	Vars []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s",
		strings.Join(e.Vars, ", "))
}

// ValidateIngest checks the identifiers every ingestion needs. It does no
// I/O and must run before the database or the report is touched.
func (c *Config) ValidateIngest() error {
	var missing []string

	if c.Ingest.Environment == "" {
		missing = append(missing, legacyEnv["ingest.environment"])
	}

	if c.Ingest.Tester == "" {
		missing = append(missing, legacyEnv["ingest.tester"])
	}

	if len(missing) > 0 {
		return &MissingEnvError{Vars: missing}
	}

	if c.Ingest.Report == "" {
		return fmt.Errorf("ingest.report must not be empty")
	}

	return nil
}

// ValidateArchive checks the archive section for errors.
func (c *Config) ValidateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}

	if c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive is enabled")
	}

	return nil
}

// Dump renders the effective configuration as YAML with secrets redacted.
func (c *Config) Dump() ([]byte, error) {
	redacted := *c

	if redacted.Database.Postgres.Password != "" {
		redacted.Database.Postgres.Password = "<redacted>"
	}

	if redacted.Source.S3.SecretAccessKey != "" {
		redacted.Source.S3.SecretAccessKey = "<redacted>"
	}

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	return out, nil
}
