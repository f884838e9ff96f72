package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher watches the conduitd configuration file and triggers
// callbacks with the re-loaded configuration.
type Watcher struct {
	v       *viper.Viper
	cfgFile string

	mu        sync.RWMutex
	callbacks []func(*DaemonConfig)
	last      *DaemonConfig
	stopped   bool
}

// NewWatcher creates a watcher for the conduitd config file.
func NewWatcher(cfgFile string) (*Watcher, error) {
	v := newViper(AppConduitd)
	setDaemonDefaults(v, DefaultDaemonConfig())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	return &Watcher{v: v, cfgFile: cfgFile}, nil
}

// OnChange registers a callback to run when the configuration changes.
func (w *Watcher) OnChange(cb func(*DaemonConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching. Callbacks run on viper's watch goroutine.
func (w *Watcher) Start() {
	w.v.OnConfigChange(func(fsnotify.Event) {
		w.handleChange()
	})
	w.v.WatchConfig()
}

// Stop detaches all callbacks. Viper's watch goroutine cannot be
// stopped, so later file changes are still observed but ignored.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.callbacks = nil
}

func (w *Watcher) handleChange() {
	var cfg DaemonConfig
	if err := w.v.Unmarshal(&cfg); err != nil {
		// A malformed edit must not kill the running daemon; keep the
		// previous configuration.
		return
	}

	w.mu.RLock()
	if w.stopped {
		w.mu.RUnlock()
		return
	}
	callbacks := make([]func(*DaemonConfig), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		cb(&cfg)
	}

	w.mu.Lock()
	w.last = &cfg
	w.mu.Unlock()
}

// Current returns the configuration from the last observed change, or
// nil if none has occurred yet.
func (w *Watcher) Current() *DaemonConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

// Reload forces a re-read of the config file.
func (w *Watcher) Reload() error {
	if err := w.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	w.handleChange()
	return nil
}
