// Package config loads service configuration from an optional YAML file with
// JURIDEX_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/juridex/juridex/internal/adapters"
)

// AllowedDomain seeds one authority-domain allowlist row at startup.
type AllowedDomain struct {
	Host         string `yaml:"host"`
	Jurisdiction string `yaml:"jurisdiction"`
}

// Config is the full service configuration.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Storage struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`

	Objects struct {
		Backend  string `yaml:"backend"` // "fs" or "s3"
		Bucket   string `yaml:"bucket"`
		Dir      string `yaml:"dir"` // fs backend root
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint"` // "" for AWS
	} `yaml:"objects"`

	VectorStore struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		StoreID string `yaml:"store_id"`
	} `yaml:"vector_store"`

	Notify struct {
		SlackWebhookURL string `yaml:"slack_webhook_url"`
	} `yaml:"notify"`

	Ingest struct {
		OrgID                  string   `yaml:"org_id"`
		RequireBindingLanguage []string `yaml:"require_binding_language"`
	} `yaml:"ingest"`

	AllowedDomains []AllowedDomain       `yaml:"allowed_domains"`
	Sources        []adapters.SourceSpec `yaml:"sources"`
}

func defaults() Config {
	var cfg Config
	cfg.Server.Port = 8640
	cfg.Storage.DataDir = defaultDataDir()
	cfg.Objects.Backend = "fs"
	cfg.Objects.Bucket = "corpus"
	cfg.Objects.Dir = cfg.Storage.DataDir
	cfg.Ingest.OrgID = "default"
	return cfg
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home + "/.local/share"
		} else {
			return "juridex-data"
		}
	}
	return dir + "/juridex"
}

// Load reads the config file at path (optional, "" checks JURIDEX_CONFIG and
// then ./juridex.yaml) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("JURIDEX_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("juridex.yaml"); err == nil {
			path = "juridex.yaml"
		}
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Objects.Backend == "s3" && cfg.Objects.Region == "" {
		return Config{}, fmt.Errorf("objects.backend is s3 but no region is configured (set JURIDEX_S3_REGION)")
	}
	if cfg.VectorStore.BaseURL != "" && cfg.VectorStore.APIKey == "" {
		return Config{}, fmt.Errorf("vector store configured without an API key (set JURIDEX_VECTOR_API_KEY)")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Storage.DataDir, "JURIDEX_DATA_DIR")
	setString(&cfg.Objects.Backend, "JURIDEX_OBJECT_BACKEND")
	setString(&cfg.Objects.Bucket, "JURIDEX_BUCKET")
	setString(&cfg.Objects.Dir, "JURIDEX_OBJECT_DIR")
	setString(&cfg.Objects.Region, "JURIDEX_S3_REGION")
	setString(&cfg.Objects.Endpoint, "JURIDEX_S3_ENDPOINT")
	setString(&cfg.VectorStore.BaseURL, "JURIDEX_VECTOR_BASE_URL")
	setString(&cfg.VectorStore.APIKey, "JURIDEX_VECTOR_API_KEY")
	setString(&cfg.VectorStore.StoreID, "JURIDEX_VECTOR_STORE_ID")
	setString(&cfg.Notify.SlackWebhookURL, "JURIDEX_SLACK_WEBHOOK_URL")
	setString(&cfg.Ingest.OrgID, "JURIDEX_ORG_ID")

	if v := os.Getenv("JURIDEX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// RequireBindingLanguage returns the configured jurisdictions as a set.
func (c Config) RequireBindingLanguage() map[string]bool {
	if len(c.Ingest.RequireBindingLanguage) == 0 {
		return nil
	}
	set := make(map[string]bool, len(c.Ingest.RequireBindingLanguage))
	for _, j := range c.Ingest.RequireBindingLanguage {
		set[j] = true
	}
	return set
}
