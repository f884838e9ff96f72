package config

import (
	"runtime"
	"time"
)

// LogConfig holds logging configuration shared by conduit and conduitd.
type LogConfig struct {
	Level      string `mapstructure:"level"`        // debug, info, warn, error
	Format     string `mapstructure:"format"`       // text, json, pretty
	Output     string `mapstructure:"output"`       // stdout, stderr, or file path
	FilePath   string `mapstructure:"file_path"`    // path to log file (in addition to output)
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // max size in MB before rotation
	MaxBackups int    `mapstructure:"max_backups"`  // max number of old log files to keep
	MaxAgeDays int    `mapstructure:"max_age_days"` // max days to retain old log files
	NoColor    bool   `mapstructure:"no_color"`     // disable colored output (pretty format only)
}

// EndpointConfig holds the named channel settings.
type EndpointConfig struct {
	// Name is the endpoint name: a pipe name on Windows, a socket path
	// elsewhere. Same name means same logical endpoint.
	Name string `mapstructure:"name"`

	// Parallelism is the number of concurrent accept loops. Zero picks
	// the default.
	Parallelism int `mapstructure:"parallelism"`

	// MaxReadBufferSize and MaxWriteBufferSize cap per-connection
	// stream buffering. Zero means uncapped.
	MaxReadBufferSize  int64 `mapstructure:"max_read_buffer_size"`
	MaxWriteBufferSize int64 `mapstructure:"max_write_buffer_size"`

	// CurrentUserOnly restricts endpoint access to the owning user.
	CurrentUserOnly bool `mapstructure:"current_user_only"`

	// SecurityDescriptor is an explicit Windows SDDL string overriding
	// the default access control.
	SecurityDescriptor string `mapstructure:"security_descriptor"`

	// MaxConnectFaults bounds consecutive transient connect faults per
	// accept loop before the listener gives up. Zero picks the default;
	// negative disables the bound.
	MaxConnectFaults int `mapstructure:"max_connect_faults"`
}

// MetricsConfig holds the Prometheus endpoint settings (conduitd only).
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// DaemonConfig is the full conduitd configuration.
type DaemonConfig struct {
	Log      LogConfig      `mapstructure:"log"`
	Endpoint EndpointConfig `mapstructure:"endpoint"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ClientConfig is the conduit CLI configuration.
type ClientConfig struct {
	Log         LogConfig     `mapstructure:"log"`
	Endpoint    string        `mapstructure:"endpoint"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// DefaultEndpointName returns the platform's conventional name for the
// conduit endpoint.
func DefaultEndpointName() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\conduit`
	}
	return "/tmp/conduit.sock"
}

// DefaultDaemonConfig returns conduitd defaults.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Log: LogConfig{
			Level:      "info",
			Format:     "pretty",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Endpoint: EndpointConfig{
			Name:            DefaultEndpointName(),
			CurrentUserOnly: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9464,
			Path:    "/metrics",
		},
	}
}

// DefaultClientConfig returns conduit CLI defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Endpoint:    DefaultEndpointName(),
		DialTimeout: 10 * time.Second,
	}
}
