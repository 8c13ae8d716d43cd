package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeoutSeconds = 300
	DefaultAutoSuffix     = "auto"
	DefaultOrderedSuffix  = "ordenado"
	DefaultDataDir        = ".flowrun"
)

type ModuleConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Critical bool   `yaml:"critical,omitempty" mapstructure:"critical"`
}

type Config struct {
	SimulatorHome  string         `yaml:"simulator_home" mapstructure:"simulator_home"`
	SearchPaths    []string       `yaml:"search_paths,omitempty" mapstructure:"search_paths"`
	Modules        []ModuleConfig `yaml:"modules" mapstructure:"modules"`
	Flowsheet      string         `yaml:"flowsheet,omitempty" mapstructure:"flowsheet"`
	TimeoutSeconds int            `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	AutoSuffix     string         `yaml:"auto_suffix" mapstructure:"auto_suffix"`
	OrderedSuffix  string         `yaml:"ordered_suffix" mapstructure:"ordered_suffix"`

	// KeepExisting turns a pre-existing output file into an error instead
	// of silently overwriting it.
	KeepExisting bool `yaml:"keep_existing" mapstructure:"keep_existing"`

	// Preflight gates runs on the native module resolver: when set, a
	// failed critical module aborts before any flowsheet work.
	Preflight bool `yaml:"preflight" mapstructure:"preflight"`

	DataDir   string `yaml:"data_dir" mapstructure:"data_dir"`
	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`
}

// DefaultConfig mirrors a standard simulator installation: the nine native
// libraries, with the automation, interface, and thermodynamics cores
// marked critical.
func DefaultConfig() *Config {
	return &Config{
		SimulatorHome: "/opt/flowsim",
		Modules: []ModuleConfig{
			{Name: "libcapeopen.so"},
			{Name: "libautomation.so", Critical: true},
			{Name: "libinterfaces.so", Critical: true},
			{Name: "libglobalsettings.so"},
			{Name: "libsharedclasses.so"},
			{Name: "libthermodynamics.so", Critical: true},
			{Name: "libunitops.so"},
			{Name: "libinspector.so"},
			{Name: "libbuffers.so"},
		},
		TimeoutSeconds: DefaultTimeoutSeconds,
		AutoSuffix:     DefaultAutoSuffix,
		OrderedSuffix:  DefaultOrderedSuffix,
		DataDir:        DefaultDataDir,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads configuration with viper: an explicit path when given,
// otherwise flowrun.yaml in the working directory, with FLOWRUN_* env
// variables overriding either. A missing implicit config file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()

	v.SetDefault("simulator_home", def.SimulatorHome)
	v.SetDefault("timeout_seconds", def.TimeoutSeconds)
	v.SetDefault("auto_suffix", def.AutoSuffix)
	v.SetDefault("ordered_suffix", def.OrderedSuffix)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)

	v.SetEnvPrefix("FLOWRUN")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("flowrun")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Modules) == 0 {
		cfg.Modules = def.Modules
	}
	return cfg, nil
}

// Save writes the config as yaml, for `config init`.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Timeout returns the calculation timeout as a duration.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
