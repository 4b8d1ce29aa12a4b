// Package config loads probe settings with koanf in three layers:
// built-in defaults, an optional YAML file, then IPINFO_* environment
// variables. Command-line flags are applied on top by the cli package.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"ipinfo-probe/collectors/network"
	"ipinfo-probe/collectors/sessions"
	"ipinfo-probe/collectors/wan"
)

const (
	EnvPrefix     = "IPINFO_"
	ConfigPathEnv = "IPINFO_CONFIG"
	appDir        = "ipinfo-probe"
)

type Config struct {
	Interfaces InterfacesConfig `koanf:"interfaces"`
	Tunnel     TunnelConfig     `koanf:"tunnel"`
	WAN        WANConfig        `koanf:"wan"`
	SSH        SSHConfig        `koanf:"ssh"`
	Log        LogConfig        `koanf:"log"`
}

type InterfacesConfig struct {
	DenyPrefixes []string `koanf:"deny_prefixes"`
}

type TunnelConfig struct {
	Interface string `koanf:"interface"`
}

type WANConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type SSHConfig struct {
	Ports []int `koanf:"ports"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func Default() *Config {
	ports := make([]int, 0, len(sessions.DefaultSSHPorts))
	for _, p := range sessions.DefaultSSHPorts {
		ports = append(ports, int(p))
	}
	return &Config{
		Interfaces: InterfacesConfig{
			DenyPrefixes: append([]string(nil), network.DefaultDenyPrefixes...),
		},
		Tunnel: TunnelConfig{Interface: network.DefaultTunnelName},
		WAN: WANConfig{
			Enabled: true,
			URL:     wan.DefaultURL,
			Timeout: wan.DefaultTimeout,
		},
		SSH: SSHConfig{Ports: ports},
		Log: LogConfig{Level: "warn", Format: "json"},
	}
}

// Load builds the configuration. An explicit path must exist; the default
// search locations are optional.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	cfgPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if cfgPath != "" {
		if err := k.Load(file.Provider(cfgPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", cfgPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv(ConfigPathEnv)
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}

	for _, p := range defaultPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

func defaultPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, appDir, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", appDir, "config.yaml"))
}

var envKeys = map[string]string{
	"IPINFO_DENY_PREFIXES":    "interfaces.deny_prefixes",
	"IPINFO_TUNNEL_INTERFACE": "tunnel.interface",
	"IPINFO_WAN_ENABLED":      "wan.enabled",
	"IPINFO_WAN_URL":          "wan.url",
	"IPINFO_WAN_TIMEOUT":      "wan.timeout",
	"IPINFO_SSH_PORTS":        "ssh.ports",
	"IPINFO_LOG_LEVEL":        "log.level",
	"IPINFO_LOG_FORMAT":       "log.format",
}

// envTransform maps known variables to config paths; an empty return makes
// koanf skip the variable.
func envTransform(key string) string {
	return envKeys[strings.ToUpper(key)]
}

var sliceFields = []string{"interfaces.deny_prefixes", "ssh.ports"}

// splitSliceFields turns comma-separated env values into slices. Values that
// came from YAML are already slices and are left alone.
func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceFields {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Tunnel.Interface) == "" {
		errs = append(errs, errors.New("tunnel.interface must not be empty"))
	}
	if c.WAN.Enabled {
		u, err := url.Parse(c.WAN.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("wan.url %q must be an http(s) URL", c.WAN.URL))
		}
		if c.WAN.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("wan.timeout must be positive, got %s", c.WAN.Timeout))
		}
	}
	for _, p := range c.SSH.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("ssh.ports: %d out of range", p))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}

// NetworkPolicy is the interface-selection policy derived from the config.
func (c *Config) NetworkPolicy() network.Policy {
	return network.Policy{
		DenyPrefixes: append([]string(nil), c.Interfaces.DenyPrefixes...),
		TunnelName:   c.Tunnel.Interface,
	}
}

func (c *Config) SSHPorts() []uint32 {
	out := make([]uint32, 0, len(c.SSH.Ports))
	for _, p := range c.SSH.Ports {
		out = append(out, uint32(p))
	}
	return out
}
