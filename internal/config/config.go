// Package config loads droidscript settings from droidscript.yaml,
// DROIDSCRIPT_* environment variables and defaults, through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, with dots in the
// key replaced by underscores: DROIDSCRIPT_REDIS_ADDR sets redis.addr.
const EnvPrefix = "DROIDSCRIPT"

// Device backends.
const (
	BackendFake   = "fake"
	BackendADB    = "adb"
	BackendRemote = "remote"
)

type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Scripts  ScriptsConfig  `mapstructure:"scripts" yaml:"scripts"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Device   DeviceConfig   `mapstructure:"device" yaml:"device"`
	ADB      ADBConfig      `mapstructure:"adb" yaml:"adb"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Gesture  GestureConfig  `mapstructure:"gesture" yaml:"gesture"`
}

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color of each level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

type ScriptsConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

type ExecutorConfig struct {
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxCallDepth  int `mapstructure:"max_call_depth" yaml:"max_call_depth"`
	// MaxSessions bounds concurrent runs in serve mode. 0 means unbounded.
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions"`
}

type DeviceConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Serial  string `mapstructure:"serial" yaml:"serial"`
	// Agent names the agent instance used by the remote backend.
	Agent       string        `mapstructure:"agent" yaml:"agent"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

type ADBConfig struct {
	Path         string        `mapstructure:"path" yaml:"path"`
	InputRate    float64       `mapstructure:"input_rate" yaml:"input_rate"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type RedisConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	Password       string        `mapstructure:"password" yaml:"password"`
	DB             int           `mapstructure:"db" yaml:"db"`
	HealthInterval time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
}

type AgentConfig struct {
	Instance          string        `mapstructure:"instance" yaml:"instance"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	// Backend is the local device the agent exposes: adb or fake.
	Backend string `mapstructure:"backend" yaml:"backend"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	DBPath   string `mapstructure:"db_path" yaml:"db_path"`
	APIToken string `mapstructure:"api_token" yaml:"api_token"`
	// RunRetention prunes finished runs older than this at startup. 0 keeps
	// everything.
	RunRetention time.Duration `mapstructure:"run_retention" yaml:"run_retention"`
	// UseRedis enables the registry listener, health monitor and stop-all
	// fan-out.
	UseRedis bool `mapstructure:"use_redis" yaml:"use_redis"`
}

type GestureConfig struct {
	ProfilesDir string `mapstructure:"profiles_dir" yaml:"profiles_dir"`
	Profile     string `mapstructure:"profile" yaml:"profile"`
	// Seed makes gestures reproducible when non-zero.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "droidscript")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Scripts --
	v.SetDefault("scripts.dir", "scripts")
	v.SetDefault("scripts.watch", true)

	// -- Executor --
	v.SetDefault("executor.max_iterations", 10000)
	v.SetDefault("executor.max_call_depth", 16)
	v.SetDefault("executor.max_sessions", 1)

	// -- Device --
	v.SetDefault("device.backend", BackendADB)
	v.SetDefault("device.serial", "")
	v.SetDefault("device.agent", "")
	v.SetDefault("device.call_timeout", "10s")

	// -- ADB --
	v.SetDefault("adb.path", "adb")
	v.SetDefault("adb.input_rate", 20.0)
	v.SetDefault("adb.poll_interval", "500ms")

	// -- Redis --
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.health_interval", "5s")

	// -- Agent --
	v.SetDefault("agent.instance", "")
	v.SetDefault("agent.heartbeat_interval", "3s")
	v.SetDefault("agent.backend", BackendADB)

	// -- Server --
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.db_path", "droidscript.db")
	v.SetDefault("server.api_token", "")
	v.SetDefault("server.run_retention", "0s")
	v.SetDefault("server.use_redis", false)

	// -- Gesture --
	v.SetDefault("gesture.profiles_dir", "profiles/gestures")
	v.SetDefault("gesture.profile", "")
	v.SetDefault("gesture.seed", 0)
}

// New returns a viper instance with defaults, env binding and, when path is
// non-empty, that config file; otherwise droidscript.yaml is looked up in
// the working directory.
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("droidscript")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file if there is one, then unmarshals and
// validates. A missing file is not an error unless it was named explicitly.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	if c.Executor.MaxIterations <= 0 {
		return fmt.Errorf("executor.max_iterations must be a positive integer")
	}
	if c.Executor.MaxCallDepth <= 0 {
		return fmt.Errorf("executor.max_call_depth must be a positive integer")
	}
	if c.Executor.MaxSessions < 0 {
		return fmt.Errorf("executor.max_sessions must not be negative")
	}
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device configuration invalid: %w", err)
	}
	switch c.Agent.Backend {
	case BackendADB, BackendFake:
	default:
		return fmt.Errorf("agent.backend must be adb or fake, got %q", c.Agent.Backend)
	}
	if c.ADB.InputRate < 0 {
		return fmt.Errorf("adb.input_rate must not be negative")
	}
	if c.Agent.HeartbeatInterval <= 0 {
		return fmt.Errorf("agent.heartbeat_interval must be a positive duration")
	}
	if c.Server.RunRetention < 0 {
		return fmt.Errorf("server.run_retention must not be negative")
	}
	return nil
}

// Validate checks the device backend selection.
func (d *DeviceConfig) Validate() error {
	switch d.Backend {
	case BackendFake, BackendADB:
	case BackendRemote:
		if d.Agent == "" {
			return fmt.Errorf("agent is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", d.Backend)
	}
	if d.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be a positive duration")
	}
	return nil
}
