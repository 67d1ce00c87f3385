// Package config loads DawnSearch's TOML configuration file and applies
// DAWNSEARCH_* environment variable overrides, per spec section 6.
//
// Adapted from the project's YAML config loader: the
// defaults-then-file-then-env precedence chain and the fsnotify watch are
// kept, the schema is replaced wholesale with the small, flat key set the
// spec recognizes — there is no project-type detection or source
// directory discovery here, DawnSearch has no notion of a "project".
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// Config is DawnSearch's full runtime configuration, mirroring spec
// section 6's recognized key table exactly.
type Config struct {
	IndexCC          bool     `toml:"index_cc"`
	Web              bool     `toml:"web"`
	WebListenAddress string   `toml:"web_listen_address"`
	UDP              bool     `toml:"udp"`
	UDPListenAddress string   `toml:"udp_listen_address"`
	AcceptInsert     bool     `toml:"accept_insert"`
	UPnP             bool     `toml:"upnp"`
	Trackers         []string `toml:"trackers"`
	DataDir          string   `toml:"data_dir"`
	Debug            int      `toml:"debug"`
}

// Default returns the configuration the spec's table specifies when no
// file or environment override is present.
func Default() *Config {
	return &Config{
		IndexCC:          false,
		Web:              true,
		WebListenAddress: "0.0.0.0:8080",
		UDP:              true,
		UDPListenAddress: "0.0.0.0:8080",
		AcceptInsert:     false,
		UPnP:             false,
		Trackers:         nil,
		DataDir:          ".",
		Debug:            0,
	}
}

// Load reads path (if it exists), overlays DAWNSEARCH_* environment
// variables, and validates the result. An absent file is not an error —
// Load falls back to Default() and still applies env overrides, since
// the CLI accepts "no config file" as a valid zero-config invocation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := boolEnv("DAWNSEARCH_INDEX_CC"); ok {
		c.IndexCC = v
	}
	if v, ok := boolEnv("DAWNSEARCH_WEB"); ok {
		c.Web = v
	}
	if v := os.Getenv("DAWNSEARCH_WEB_LISTEN_ADDRESS"); v != "" {
		c.WebListenAddress = v
	}
	if v, ok := boolEnv("DAWNSEARCH_UDP"); ok {
		c.UDP = v
	}
	if v := os.Getenv("DAWNSEARCH_UDP_LISTEN_ADDRESS"); v != "" {
		c.UDPListenAddress = v
	}
	if v, ok := boolEnv("DAWNSEARCH_ACCEPT_INSERT"); ok {
		c.AcceptInsert = v
	}
	if v, ok := boolEnv("DAWNSEARCH_UPNP"); ok {
		c.UPnP = v
	}
	if v := os.Getenv("DAWNSEARCH_TRACKERS"); v != "" {
		c.Trackers = strings.Split(v, ",")
	}
	if v := os.Getenv("DAWNSEARCH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DAWNSEARCH_DEBUG"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			c.Debug = d
		}
	}
}

func boolEnv(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if !c.Web && !c.UDP && !c.IndexCC {
		return fmt.Errorf("at least one of web, udp, or index_cc must be enabled")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Debug < 0 || c.Debug > 3 {
		return fmt.Errorf("debug must be between 0 and 3, got %d", c.Debug)
	}
	return nil
}

// Watch starts watching path for changes and logs (but does not apply)
// edits — per spec section 4.4 the UDP/ANN parameters loaded at startup
// are process-lifetime constants, so a running instance never
// hot-reloads its configuration. The returned watcher should be closed
// by the caller on shutdown.
func Watch(path string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config file %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					slog.Warn("config_file_changed",
						slog.String("path", path),
						slog.String("hint", "restart dawnsearch to apply changes"))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config_watch_error", slog.String("error", err.Error()))
			}
		}
	}()

	return watcher, nil
}
