// Package config loads the server configuration from an optional YAML file, an
// optional .env file and JOBTREE_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "JOBTREE_"

type Config struct {
	Addr         string        `yaml:"addr"`
	InternalAddr string        `yaml:"internalAddr"`
	Listeners    int           `yaml:"listeners"`
	PollInterval time.Duration `yaml:"pollInterval"`
	DBDir        string        `yaml:"dbDir"`
	SaveInterval time.Duration `yaml:"saveInterval"`
	APIPrefix    string        `yaml:"apiPrefix"`
	HTTPAddr     string        `yaml:"httpAddr"`
	LogLevel     string        `yaml:"logLevel"`
	LogJSON      bool          `yaml:"logJSON"`

	SplitStatements bool          `yaml:"splitStatements"`
	SyncStatements  bool          `yaml:"syncStatements"`
	DefaultTimeout  time.Duration `yaml:"defaultTimeout"`
	KillGrace       time.Duration `yaml:"killGrace"`

	Container ContainerConfig `yaml:"container"`
	FileIO    FileIOConfig    `yaml:"fileIO"`
}

type ContainerConfig struct {
	StatusURL    string        `yaml:"statusURL"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	QPS          float64       `yaml:"qps"`
}

type FileIOConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func Default() *Config {
	return &Config{
		Addr:            "tcp://127.0.0.1:5560",
		InternalAddr:    "inproc://jobtree-listeners",
		Listeners:       4,
		PollInterval:    200 * time.Millisecond,
		DBDir:           "jobtree-db",
		SaveInterval:    60 * time.Second,
		APIPrefix:       "/v1",
		HTTPAddr:        "localhost:9091",
		LogLevel:        "info",
		SplitStatements: true,
		SyncStatements:  true,
		KillGrace:       10 * time.Second,
		Container: ContainerConfig{
			QueryTimeout: 5 * time.Second,
			MaxRetries:   3,
			QPS:          10,
		},
		FileIO: FileIOConfig{
			Host: "localhost",
			Port: 5561,
		},
	}
}

// Load builds a Config from defaults, then path (if non-empty), then envFile (if it
// exists), then the process environment.
func Load(path, envFile string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "loading %s", envFile)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":                 &c.Addr,
		"INTERNAL_ADDR":        &c.InternalAddr,
		"DB_DIR":               &c.DBDir,
		"API_PREFIX":           &c.APIPrefix,
		"HTTP_ADDR":            &c.HTTPAddr,
		"LOG_LEVEL":            &c.LogLevel,
		"CONTAINER_STATUS_URL": &c.Container.StatusURL,
		"FILEIO_HOST":          &c.FileIO.Host,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"LISTENERS":             &c.Listeners,
		"CONTAINER_MAX_RETRIES": &c.Container.MaxRetries,
		"FILEIO_PORT":           &c.FileIO.Port,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %v", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"POLL_INTERVAL":           &c.PollInterval,
		"SAVE_INTERVAL":           &c.SaveInterval,
		"DEFAULT_TIMEOUT":         &c.DefaultTimeout,
		"KILL_GRACE":              &c.KillGrace,
		"CONTAINER_QUERY_TIMEOUT": &c.Container.QueryTimeout,
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %v", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"LOG_JSON":         &c.LogJSON,
		"SPLIT_STATEMENTS": &c.SplitStatements,
		"SYNC_STATEMENTS":  &c.SyncStatements,
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %v", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup(EnvPrefix + "CONTAINER_QPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sCONTAINER_QPS: %v", EnvPrefix, err)
		}
		c.Container.QPS = f
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Addr == "" {
		problems = append(problems, "addr is empty")
	}
	if c.InternalAddr == "" {
		problems = append(problems, "internalAddr is empty")
	}
	if c.Listeners <= 0 {
		problems = append(problems, fmt.Sprintf("listeners must be positive, got %d", c.Listeners))
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "pollInterval must be positive")
	}
	if c.DBDir == "" {
		problems = append(problems, "dbDir is empty")
	}
	if c.SaveInterval <= 0 {
		problems = append(problems, "saveInterval must be positive")
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		problems = append(problems, fmt.Sprintf("apiPrefix %q must start with /", c.APIPrefix))
	}
	if c.DefaultTimeout < 0 {
		problems = append(problems, "defaultTimeout must not be negative")
	}
	if c.Container.MaxRetries < 0 {
		problems = append(problems, "container.maxRetries must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
