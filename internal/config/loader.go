// Package config loads and watches the conduit configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	AppConduit  = "conduit"
	AppConduitd = "conduitd"
)

// configSearchPaths returns the paths to search for config files in
// order of precedence (later paths have higher priority in Viper).
func configSearchPaths(appName string) []string {
	paths := []string{filepath.Join("/etc", appName)}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)
	}
	return paths
}

// UserConfigDir returns the user-specific config directory for the app.
func UserConfigDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// newViper creates a Viper instance configured for the given app.
func newViper(appName string) *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range configSearchPaths(appName) {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadDaemon loads the conduitd configuration.
func LoadDaemon(cfgFile string) (*DaemonConfig, error) {
	v := newViper(AppConduitd)
	setDaemonDefaults(v, DefaultDaemonConfig())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults + env vars.
	}

	var cfg DaemonConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadClient loads the conduit CLI configuration.
func LoadClient(cfgFile string) (*ClientConfig, error) {
	v := newViper(AppConduit)
	setClientDefaults(v, DefaultClientConfig())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDaemonDefaults(v *viper.Viper, c *DaemonConfig) {
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.output", c.Log.Output)
	v.SetDefault("log.max_size_mb", c.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", c.Log.MaxBackups)
	v.SetDefault("log.max_age_days", c.Log.MaxAgeDays)
	v.SetDefault("endpoint.name", c.Endpoint.Name)
	v.SetDefault("endpoint.parallelism", c.Endpoint.Parallelism)
	v.SetDefault("endpoint.max_read_buffer_size", c.Endpoint.MaxReadBufferSize)
	v.SetDefault("endpoint.max_write_buffer_size", c.Endpoint.MaxWriteBufferSize)
	v.SetDefault("endpoint.current_user_only", c.Endpoint.CurrentUserOnly)
	v.SetDefault("endpoint.security_descriptor", c.Endpoint.SecurityDescriptor)
	v.SetDefault("endpoint.max_connect_faults", c.Endpoint.MaxConnectFaults)
	v.SetDefault("metrics.enabled", c.Metrics.Enabled)
	v.SetDefault("metrics.host", c.Metrics.Host)
	v.SetDefault("metrics.port", c.Metrics.Port)
	v.SetDefault("metrics.path", c.Metrics.Path)
}

func setClientDefaults(v *viper.Viper, c *ClientConfig) {
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.output", c.Log.Output)
	v.SetDefault("endpoint", c.Endpoint)
	v.SetDefault("dial_timeout", c.DialTimeout)
}

// ConfigFileUsed returns the config file path that was loaded, if any.
func ConfigFileUsed(appName string) string {
	v := newViper(appName)
	_ = v.ReadInConfig()
	return v.ConfigFileUsed()
}
