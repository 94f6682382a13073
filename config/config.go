// Package config provides YAML configuration parsing for navtags.
//
// This package enables running navtags as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Back office
//	port: 8080
//	polling_interval: 10s
//	cache_dir: ~/.cache/navtags
//
//	source:
//	  url: ${ERP_URL:-http://localhost:8081}/ws/tags
//	  method: POST
//	  timeout: 5s
//	  names: [mail-inbox, tasks]
//	  headers:
//	    Authorization: Bearer ${ERP_TOKEN}
//	  decoder: default
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 8080
	defaultPollingInterval = 10 * time.Second

	// minPollingInterval mirrors the poller's threshold; smaller values
	// are valid and disable polling.
	minPollingInterval = time.Second
)

// Config is the root configuration structure for navtags.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "navtags" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollingInterval is the time between fetches while the user is active.
	// Omitted means 10s. Values below 1s disable polling.
	PollingInterval *Duration `yaml:"polling_interval"`

	// CacheDir persists the last successful snapshot. A leading ~ is
	// expanded to the home directory. Empty disables the cache.
	CacheDir string `yaml:"cache_dir"`

	// Source is the tag service to poll.
	Source SourceConfig `yaml:"source"`
}

// SourceConfig defines the tag service endpoint.
type SourceConfig struct {
	// URL is the tag endpoint URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Timeout is the request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Names restricts the request to these tag names.
	Names []string `yaml:"names"`

	// Decoder determines how the response body is turned into tags.
	Decoder DecoderConfig `yaml:"decoder"`
}

// DecoderConfig specifies how tags are read from a response.
//
// It supports three formats in YAML:
//
// Shorthand string:
//
//	decoder: default
//	decoder: json:result.menus
//
// Structured object:
//
//	decoder:
//	  type: json
//	  path: result.menus
//
// A list, tried in order until one succeeds:
//
//	decoder: [json:result.menus, default]
type DecoderConfig struct {
	// Type is the decoder type: "default", "json" or "first".
	Type string

	// Path is the JSON path (for type: json).
	Path string

	// Chain holds the decoders of a list (for type: first).
	Chain []DecoderConfig
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Interval returns the effective polling interval.
func (c *Config) Interval() time.Duration {
	if c.PollingInterval == nil {
		return defaultPollingInterval
	}
	return c.PollingInterval.Duration()
}

// PollingEnabled reports whether the interval is large enough to poll.
func (c *Config) PollingEnabled() bool {
	return c.Interval() >= minPollingInterval
}

// UnmarshalYAML implements yaml.Unmarshaler for DecoderConfig.
func (d *DecoderConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return d.parseShorthand(s)

	case yaml.MappingNode:
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type string `yaml:"type"`
			Path string `yaml:"path"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		d.Type = raw.Type
		d.Path = raw.Path
		return nil

	case yaml.SequenceNode:
		var chain []DecoderConfig
		if err := node.Decode(&chain); err != nil {
			return err
		}
		d.Type = "first"
		d.Chain = chain
		return nil
	}

	return fmt.Errorf("decoder must be a string, object or list, got %v", node.Kind)
}

// parseShorthand parses decoder shorthand syntax.
//
// Supported formats:
//   - "default" → envelope or bare array
//   - "json:path" → tag array at a dot-separated path
func (d *DecoderConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if idx := strings.Index(s, ":"); idx != -1 {
		d.Type = s[:idx]
		if d.Type != "json" {
			return fmt.Errorf("unknown decoder type %q", d.Type)
		}
		d.Path = s[idx+1:]
		return nil
	}

	if s != "default" {
		return fmt.Errorf("unknown decoder %q (expected 'default' or 'json:path')", s)
	}
	d.Type = s
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the source URL and header values.
// Defaults are applied for Port (8080) and PollingInterval (10s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.PollingInterval == nil {
		d := Duration(defaultPollingInterval)
		cfg.PollingInterval = &d
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and paths, then validates
// the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Interval() < 0 {
		return fmt.Errorf("polling_interval cannot be negative, got %s", c.Interval())
	}

	if c.CacheDir != "" {
		expanded, err := homedir.Expand(c.CacheDir)
		if err != nil {
			return fmt.Errorf("cache_dir: %w", err)
		}
		c.CacheDir = expanded
	}

	src := &c.Source
	if src.URL == "" {
		return errors.New("source: url is required")
	}
	expanded, err := expandEnvVars(src.URL)
	if err != nil {
		return fmt.Errorf("source: url: %w", err)
	}
	src.URL = expanded

	parsedURL, err := url.Parse(src.URL)
	if err != nil {
		return fmt.Errorf("source: invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("source: url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	for k, v := range src.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("source: headers[%s]: %w", k, err)
		}
		src.Headers[k] = expanded
	}

	src.Method = strings.ToUpper(src.Method)
	if src.Method != "" && src.Method != "GET" && src.Method != "POST" {
		return fmt.Errorf("source: method must be GET or POST, got %q", src.Method)
	}

	if src.Timeout != 0 && src.Timeout.Duration() < time.Second {
		return fmt.Errorf("source: timeout must be at least 1s if specified, got %s", src.Timeout.Duration())
	}

	for i, name := range src.Names {
		if name == "" {
			return fmt.Errorf("source: names[%d] is empty", i)
		}
	}

	return validateDecoder(&src.Decoder, "source: decoder")
}

// validateDecoder validates a decoder configuration.
func validateDecoder(d *DecoderConfig, context string) error {
	switch d.Type {
	case "", "default":
		return nil
	case "json":
		if d.Path == "" {
			return fmt.Errorf("%s: decoder type 'json' requires a path", context)
		}
		return nil
	case "first":
		if len(d.Chain) == 0 {
			return fmt.Errorf("%s: decoder list is empty", context)
		}
		for i := range d.Chain {
			if err := validateDecoder(&d.Chain[i], fmt.Sprintf("%s[%d]", context, i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: unknown decoder type %q", context, d.Type)
	}
}
