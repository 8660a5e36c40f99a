// Package config resolves run settings from flags, XRAY_* environment
// variables, an optional config file and an optional hosts file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/shpitdev/couch-xray/internal/errors"
	"github.com/shpitdev/couch-xray/pkg/couch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/reduce"
	"github.com/shpitdev/couch-xray/pkg/pipeline/schema"
	"github.com/shpitdev/couch-xray/pkg/pipeline/worker"
)

const EnvPrefix = "XRAY"

// Keys shared by viper, the config file and flag bindings.
const (
	KeyHosts         = "hosts"
	KeyHostsFile     = "hosts_file"
	KeyConnections   = "connections"
	KeyLimit         = "limit"
	KeyFormat        = "format"
	KeyRateLimitRPS  = "rate_limit_rps"
	KeyTimeout       = "timeout"
	KeyUsername      = "username"
	KeyPassword      = "password"
	KeyCAPath        = "ca_path"
	KeyDocsPerShard  = "docs_per_shard"
	KeyBytesPerShard = "bytes_per_shard"
	KeyShards        = "shards"
	KeyIndexes       = "indexes"
	KeyProgress      = "progress"
	KeyVerbose       = "verbose"
	KeyLogJSON       = "log_json"
)

const DefaultLimit = 50

type Config struct {
	Hosts     []string `mapstructure:"hosts"`
	HostsFile string   `mapstructure:"hosts_file"`

	Connections  int           `mapstructure:"connections"`
	Limit        int           `mapstructure:"limit"`
	Format       string        `mapstructure:"format"`
	RateLimitRPS float64       `mapstructure:"rate_limit_rps"`
	Timeout      time.Duration `mapstructure:"timeout"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	CAPath   string `mapstructure:"ca_path"`

	DocsPerShard  int64 `mapstructure:"docs_per_shard"`
	BytesPerShard int64 `mapstructure:"bytes_per_shard"`
	Shards        bool  `mapstructure:"shards"`
	Indexes       bool  `mapstructure:"indexes"`

	Progress bool `mapstructure:"progress"`
	Verbose  int  `mapstructure:"verbose"`
	LogJSON  bool `mapstructure:"log_json"`
}

// OutputFormat is the validated report format.
func (c *Config) OutputFormat() schema.Format {
	return schema.NormalizeFormat(c.Format)
}

// SetDefaults registers every key so environment variables are picked up
// by Unmarshal even when no file or flag mentions them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHosts, []string{})
	v.SetDefault(KeyHostsFile, "")
	v.SetDefault(KeyConnections, worker.DefaultWorkers)
	v.SetDefault(KeyLimit, DefaultLimit)
	v.SetDefault(KeyFormat, string(schema.FormatTable))
	v.SetDefault(KeyRateLimitRPS, 0.0)
	v.SetDefault(KeyTimeout, couch.DefaultTimeout)
	v.SetDefault(KeyUsername, "")
	v.SetDefault(KeyPassword, "")
	v.SetDefault(KeyCAPath, "")
	v.SetDefault(KeyDocsPerShard, reduce.DefaultDocsPerShard)
	v.SetDefault(KeyBytesPerShard, reduce.DefaultBytesPerShard)
	v.SetDefault(KeyShards, false)
	v.SetDefault(KeyIndexes, false)
	v.SetDefault(KeyProgress, true)
	v.SetDefault(KeyVerbose, 0)
	v.SetDefault(KeyLogJSON, false)
}

// NewViper loads .env (if present), wires XRAY_* environment variables and
// reads configPath when it is set.
func NewViper(configPath string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configPath = strings.TrimSpace(configPath); configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configPath)
		}
	}
	return v, nil
}

// Load unmarshals v, appends hosts from the hosts file and validates.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if cfg.HostsFile != "" {
		hosts, err := ReadHostsFile(cfg.HostsFile)
		if err != nil {
			return nil, err
		}
		cfg.Hosts = append(cfg.Hosts, hosts...)
	}
	cfg.Hosts = cleanHosts(cfg.Hosts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects out-of-range values. An empty host list is not an error
// here; the run reports it.
func (c *Config) Validate() error {
	if c.Connections < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "connections must be >= 1, got %d", c.Connections)
	}
	if c.Limit < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "limit must be >= 0, got %d", c.Limit)
	}
	if c.RateLimitRPS < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "rate_limit_rps must be >= 0, got %g", c.RateLimitRPS)
	}
	if c.Timeout <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "timeout must be > 0, got %s", c.Timeout)
	}
	if c.DocsPerShard <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "docs_per_shard must be > 0, got %d", c.DocsPerShard)
	}
	if c.BytesPerShard <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "bytes_per_shard must be > 0, got %d", c.BytesPerShard)
	}
	if _, err := schema.ParseFormat(c.Format); err != nil {
		return errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}
	return nil
}

// ReadHostsFile parses a YAML list of URLs, or a mapping with a hosts key.
func ReadHostsFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read hosts file %s", path)
	}
	var list []string
	if err := yaml.Unmarshal(b, &list); err == nil {
		return cleanHosts(list), nil
	}
	var doc struct {
		Hosts []string `yaml:"hosts"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "parse hosts file %s", path),
			"expected a YAML list of URLs or a mapping with a hosts key",
		)
	}
	return cleanHosts(doc.Hosts), nil
}

func cleanHosts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
