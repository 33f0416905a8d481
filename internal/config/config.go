// Package config loads samledger settings from a YAML file with environment
// variable overrides. Secrets (database DSN, static S3 keys) are read from the
// environment only.
package config

import (
	"errors"
	"fmt"
	"time"
	// Reharvest timezones resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"samledger/internal/blob"
	"samledger/internal/seed"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
)

// Config holds all samledger configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Seed      SeedConfig      `yaml:"seed"`
	Blob      BlobConfig      `yaml:"blob"`
	Reharvest ReharvestConfig `yaml:"reharvest"`
	Actor     ActorConfig     `yaml:"actor"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" env:"SAMLEDGER_LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"SAMLEDGER_LOG_DEVELOPMENT"`
}

// SeedConfig selects where the ledger's reference data comes from.
type SeedConfig struct {
	// Driver is one of embedded, file, blob, sqlite, postgres.
	Driver     string `yaml:"driver" env:"SAMLEDGER_SEED_DRIVER" env-default:"embedded"`
	Path       string `yaml:"path" env:"SAMLEDGER_SEED_PATH"`
	BlobKey    string `yaml:"blob_key" env:"SAMLEDGER_SEED_BLOB_KEY"`
	SQLitePath string `yaml:"sqlite_path" env:"SAMLEDGER_SEED_SQLITE_PATH" env-default:"samledger.db"`
	// PostgresDSN may embed a password, so it is never read from YAML.
	PostgresDSN string `yaml:"-" env:"SAMLEDGER_SEED_POSTGRES_DSN"`
}

// BlobConfig selects the import inbox backend.
type BlobConfig struct {
	Driver string   `yaml:"driver" env:"SAMLEDGER_BLOB_DRIVER" env-default:"fs"`
	FSRoot string   `yaml:"fs_root" env:"SAMLEDGER_BLOB_FS_ROOT" env-default:"./blobdata"`
	S3     S3Config `yaml:"s3"`
}

// S3Config parameterizes the s3 blob driver.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"SAMLEDGER_BLOB_S3_BUCKET"`
	Region          string `yaml:"region" env:"SAMLEDGER_BLOB_S3_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"SAMLEDGER_BLOB_S3_ENDPOINT"`
	PathStyle       bool   `yaml:"path_style" env:"SAMLEDGER_BLOB_S3_PATH_STYLE"`
	AccessKeyID     string `yaml:"-" env:"SAMLEDGER_BLOB_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"-" env:"SAMLEDGER_BLOB_S3_SECRET_ACCESS_KEY"`
	SessionToken    string `yaml:"-" env:"SAMLEDGER_BLOB_S3_SESSION_TOKEN"`
}

// ReharvestConfig schedules the reharvesting job. Disabled is negative so an
// omitted key keeps the job on.
type ReharvestConfig struct {
	Schedule string `yaml:"schedule" env:"SAMLEDGER_REHARVEST_SCHEDULE" env-default:"0 2 * * *"`
	Timezone string `yaml:"timezone" env:"SAMLEDGER_REHARVEST_TIMEZONE" env-default:"UTC"`
	Disabled bool   `yaml:"disabled" env:"SAMLEDGER_REHARVEST_DISABLED"`
}

// ActorConfig is the acting user recorded when no other actor is supplied.
type ActorConfig struct {
	ID   string `yaml:"id" env:"SAMLEDGER_ACTOR_ID" env-default:"P_ADMIN"`
	Name string `yaml:"name" env:"SAMLEDGER_ACTOR_NAME" env-default:"Admin"`
}

// MetricsConfig controls Prometheus naming and textfile export.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"SAMLEDGER_METRICS_NAMESPACE" env-default:"samledger"`
	// Textfile, when set, receives the registry in node-exporter textfile format.
	Textfile string `yaml:"textfile" env:"SAMLEDGER_METRICS_TEXTFILE"`
}

// Load reads path with environment overrides, or the environment alone when
// path is empty, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects unknown drivers, missing driver parameters, and an
// unparsable reharvesting schedule or timezone.
func (c *Config) Validate() error {
	var errs []error
	switch c.Seed.Driver {
	case seed.DriverEmbedded, seed.DriverSQLite:
	case seed.DriverFile:
		if c.Seed.Path == "" {
			errs = append(errs, errors.New("seed.path is required for the file driver"))
		}
	case seed.DriverBlob:
		if c.Seed.BlobKey == "" {
			errs = append(errs, errors.New("seed.blob_key is required for the blob driver"))
		}
	case seed.DriverPostgres:
		if c.Seed.PostgresDSN == "" {
			errs = append(errs, errors.New("SAMLEDGER_SEED_POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown seed driver %q", c.Seed.Driver))
	}

	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}

	if _, err := cron.ParseStandard(c.Reharvest.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("reharvest.schedule %q: %w", c.Reharvest.Schedule, err))
	}
	if _, err := time.LoadLocation(c.Reharvest.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("reharvest.timezone %q: %w", c.Reharvest.Timezone, err))
	}
	return errors.Join(errs...)
}

// BlobStore maps the blob section onto the blob factory configuration.
func (c *Config) BlobStore() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			SessionToken:    c.Blob.S3.SessionToken,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}

// SeedSource maps the seed section onto the seed source configuration.
func (c *Config) SeedSource() seed.Config {
	return seed.Config{
		Driver:      c.Seed.Driver,
		Path:        c.Seed.Path,
		BlobKey:     c.Seed.BlobKey,
		SQLitePath:  c.Seed.SQLitePath,
		PostgresDSN: c.Seed.PostgresDSN,
	}
}

// Location returns the reharvesting timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Reharvest.Timezone)
}
