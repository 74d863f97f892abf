// Package config loads the settings of the dokanfs command.
//
// Values come from, in order of precedence, environment
// variables prefixed with DOKANFS_, the configuration file
// and the defaults of Default. Each backend type has its own
// section, of which only the selected one is used.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables. The key
// "mount.mount_point" is read from DOKANFS_MOUNT_MOUNT_POINT.
const EnvPrefix = "DOKANFS"

// Config is the complete configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Mount   MountConfig   `mapstructure:"mount" yaml:"mount"`
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls the log output.
type LoggingConfig struct {
	// Level accepts DEBUG, INFO, WARN and ERROR in any case.
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`

	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`

	// Topics selects the bridge events that are logged.
	Topics []string `mapstructure:"topics" yaml:"topics" validate:"dive,oneof=call verdict trace error"`
}

// MountConfig describes the volume.
type MountConfig struct {
	// MountPoint is a drive letter or an absolute directory.
	MountPoint string `mapstructure:"mount_point" yaml:"mount_point" validate:"required,mountpoint"`

	VolumeLabel    string `mapstructure:"volume_label" yaml:"volume_label" validate:"max=32"`
	FileSystemName string `mapstructure:"filesystem_name" yaml:"filesystem_name" validate:"required,max=32"`
	SerialNumber   uint32 `mapstructure:"serial_number" yaml:"serial_number"`
	ReadOnly       bool   `mapstructure:"read_only" yaml:"read_only"`
	CaseSensitive  bool   `mapstructure:"case_sensitive" yaml:"case_sensitive"`

	// Threads is the number of driver workers, 0 lets the
	// host decide.
	Threads int `mapstructure:"threads" yaml:"threads" validate:"gte=0"`

	// Timeout is how long the driver waits for a callback.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`

	// KeepAlive resets the driver timeout of callbacks that
	// run longer than this; 0 disables it.
	KeepAlive time.Duration `mapstructure:"keep_alive" yaml:"keep_alive" validate:"gte=0"`

	Flags []string `mapstructure:"flags" yaml:"flags" validate:"dive,mountflag"`

	// ReadOnlyAttribute selects how the read-only attribute
	// derives from the permission bits.
	ReadOnlyAttribute string `mapstructure:"readonly_attribute" yaml:"readonly_attribute" validate:"readonlymode"`
}

// BackendConfig selects the storage behind the volume.
type BackendConfig struct {
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory os badger s3"`

	Memory map[string]any `mapstructure:"memory" yaml:"memory"`
	OS     map[string]any `mapstructure:"os" yaml:"os"`
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
	S3     map[string]any `mapstructure:"s3" yaml:"s3"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" validate:"required,hostname_port"`
	Path    string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`
}

// Load reads the configuration at path, or at DefaultPath
// when path is empty. A missing default file is not an
// error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if err := setupViper(v, path); err != nil {
		return nil, err
	}
	if err := readConfigFile(v); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// setupViper registers every key of Default, so that the
// environment can override keys absent from the file.
func setupViper(v *viper.Viper, path string) error {
	defaults := viper.New()
	defaults.SetConfigType("yaml")
	data, err := yaml.Marshal(Default())
	if err != nil {
		return errors.Wrap(err, "marshal defaults")
	}
	if err := defaults.ReadConfig(strings.NewReader(string(data))); err != nil {
		return errors.Wrap(err, "read defaults")
	}
	for _, key := range defaults.AllKeys() {
		v.SetDefault(key, defaults.Get(key))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return errors.Wrap(err, "read config file")
}

// Dir returns the directory of the default configuration
// file, honouring XDG_CONFIG_HOME.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dokanfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dokanfs")
}

// DefaultPath returns the path of the default file.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}
