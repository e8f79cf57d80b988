package orthrus

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"
)

var ErrInvalidConfig = errors.New("invalid config")

var streamNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// Validate requires a plain name and a semantic version. Dashes are accepted
// as separators, so "1-0-0" reads as 1.0.0.
func (s StreamIdentity) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: stream name is required", ErrInvalidConfig)
	}
	if !streamNamePattern.MatchString(s.Name) {
		return fmt.Errorf("%w: stream name %q may only hold letters, digits, '_' and '.'", ErrInvalidConfig, s.Name)
	}
	if _, err := s.SemVer(); err != nil {
		return fmt.Errorf("%w: stream version %q: %v", ErrInvalidConfig, s.Version, err)
	}
	return nil
}

func (s StreamIdentity) SemVer() (*semver.Version, error) {
	v := s.Version
	if !strings.Contains(v, ".") {
		v = strings.ReplaceAll(v, "-", ".")
	}
	return semver.NewVersion(v)
}

// Config selects a backend. The variants are MemoryConfig, BoltConfig,
// MySQLConfig, PostgresConfig, SQLiteConfig and DynamoConfig.
type Config interface {
	StreamIdentity() StreamIdentity
	Validate() error
	backend() string
}

type MemoryConfig struct {
	Stream StreamIdentity `yaml:"stream"`
}

type BoltConfig struct {
	Stream StreamIdentity `yaml:"stream"`
	Path   string         `yaml:"path"`
}

type MySQLConfig struct {
	Stream   StreamIdentity `yaml:"stream"`
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	User     string         `yaml:"user"`
	Password string         `yaml:"password"`
	Database string         `yaml:"database"`
	MinConns int            `yaml:"minConns"`
	MaxConns int            `yaml:"maxConns"`
}

type PostgresConfig struct {
	Stream StreamIdentity `yaml:"stream"`
	URI    string         `yaml:"uri"`
}

type SQLiteConfig struct {
	Stream StreamIdentity `yaml:"stream"`
	// Path of the database file, or ":memory:".
	Path string `yaml:"path"`
}

type DynamoConfig struct {
	Stream          StreamIdentity `yaml:"stream"`
	Region          string         `yaml:"region"`
	Endpoint        string         `yaml:"endpoint"`
	AccessKeyID     string         `yaml:"accessKeyId"`
	SecretAccessKey string         `yaml:"secretAccessKey"`
	// Table defaults to the stream's table name.
	Table string `yaml:"table"`
}

func (c MemoryConfig) StreamIdentity() StreamIdentity   { return c.Stream }
func (c BoltConfig) StreamIdentity() StreamIdentity     { return c.Stream }
func (c MySQLConfig) StreamIdentity() StreamIdentity    { return c.Stream }
func (c PostgresConfig) StreamIdentity() StreamIdentity { return c.Stream }
func (c SQLiteConfig) StreamIdentity() StreamIdentity   { return c.Stream }
func (c DynamoConfig) StreamIdentity() StreamIdentity   { return c.Stream }

func (MemoryConfig) backend() string   { return "in-memory" }
func (BoltConfig) backend() string     { return "bolt" }
func (MySQLConfig) backend() string    { return "mysql" }
func (PostgresConfig) backend() string { return "postgres" }
func (SQLiteConfig) backend() string   { return "sqlite" }
func (DynamoConfig) backend() string   { return "dynamodb" }

func (c MemoryConfig) Validate() error {
	return c.Stream.Validate()
}

func (c BoltConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: bolt path is required", ErrInvalidConfig)
	}
	return c.Stream.Validate()
}

func (c MySQLConfig) Validate() error {
	if c.Host == "" || c.Database == "" {
		return fmt.Errorf("%w: mysql host and database are required", ErrInvalidConfig)
	}
	if d := c.WithDefaults(); d.MinConns > d.MaxConns {
		return fmt.Errorf("%w: mysql minConns %d exceeds maxConns %d", ErrInvalidConfig, d.MinConns, d.MaxConns)
	}
	return c.Stream.Validate()
}

// WithDefaults fills in port 3306 and a pool of one to ten connections.
func (c MySQLConfig) WithDefaults() MySQLConfig {
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.MinConns == 0 {
		c.MinConns = 1
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	return c
}

func (c PostgresConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("%w: postgres uri is required", ErrInvalidConfig)
	}
	return c.Stream.Validate()
}

func (c SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
	}
	return c.Stream.Validate()
}

func (c DynamoConfig) Validate() error {
	if c.Region == "" && c.Endpoint == "" {
		return fmt.Errorf("%w: dynamodb region or endpoint is required", ErrInvalidConfig)
	}
	return c.Stream.Validate()
}

func (c DynamoConfig) TableName() string {
	if c.Table != "" {
		return c.Table
	}
	return c.Stream.TableName()
}

// ParseConfig decodes a YAML document whose "type" key names the backend.
func ParseConfig(data []byte) (Config, error) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var (
		cfg Config
		err error
	)
	switch head.Type {
	case "in-memory", "memory":
		cfg, err = decode[MemoryConfig](data)
	case "bolt":
		cfg, err = decode[BoltConfig](data)
	case "mysql":
		var c MySQLConfig
		c, err = decode[MySQLConfig](data)
		cfg = c.WithDefaults()
	case "postgres", "postgresql":
		cfg, err = decode[PostgresConfig](data)
	case "sqlite":
		cfg, err = decode[SQLiteConfig](data)
	case "dynamodb", "dynamo":
		cfg, err = decode[DynamoConfig](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidConfig)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", head.Type, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := yaml.Unmarshal(data, &v)
	return v, err
}

// LoadConfig reads and parses the YAML config file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}
