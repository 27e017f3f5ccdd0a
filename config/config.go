// Package config loads the options of the esm-resolve command.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/esm-dev/esm-resolver/resolver"
	"github.com/esm-dev/esm-resolver/specifier"
	"github.com/goccy/go-json"
)

// Config represents the configuration of a resolver.
type Config struct {
	Mode                 string   `json:"mode"`
	Conditions           []string `json:"conditions"`
	Extensions           []string `json:"extensions"`
	MainFields           []string `json:"mainFields"`
	Browser              bool     `json:"browser"`
	TsConfig             *bool    `json:"tsconfig"`
	EnforceESMExtensions bool     `json:"enforceESMExtensions"`
	Root                 string   `json:"root"`
	CacheCapacity        int      `json:"cacheCapacity"`
	LogDir               string   `json:"logDir"`
	LogLevel             string   `json:"logLevel"`
}

// Load loads config from the given file.
func Load(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("fail to read config file: %w", err)
	}
	defer file.Close()

	var config Config
	err = json.NewDecoder(file).Decode(&config)
	if err != nil {
		return nil, fmt.Errorf("fail to parse config: %w", err)
	}
	if config.Root != "" && !filepath.IsAbs(config.Root) {
		// a relative root is relative to the config file
		config.Root = filepath.Join(filepath.Dir(filename), config.Root)
	}
	if err = normalizeConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the config built from the environment only.
func Default() *Config {
	config := &Config{}
	if err := normalizeConfig(config); err != nil {
		// only an invalid RESOLVER_MODE fails here
		config.Mode = "esm"
	}
	return config
}

func normalizeConfig(config *Config) error {
	if config.Mode == "" {
		config.Mode = os.Getenv("RESOLVER_MODE")
		if config.Mode == "" {
			config.Mode = "esm"
		}
	}
	mode, ok := specifier.ParseType(strings.ToLower(config.Mode))
	if !ok {
		return fmt.Errorf("invalid mode %q", config.Mode)
	}
	config.Mode = mode.String()
	if v := os.Getenv("RESOLVER_CONDITIONS"); v != "" {
		config.Conditions = appendUnique(config.Conditions, strings.Split(v, ",")...)
	}
	switch os.Getenv("NODE_ENV") {
	case "production":
		config.Conditions = appendUnique(config.Conditions, "production")
	case "development":
		config.Conditions = appendUnique(config.Conditions, "development")
	}
	if !config.Browser {
		config.Browser = os.Getenv("RESOLVER_BROWSER") == "true"
	}
	if config.TsConfig == nil {
		enabled := os.Getenv("RESOLVER_TSCONFIG") != "false"
		config.TsConfig = &enabled
	}
	if config.Root == "" {
		config.Root = os.Getenv("RESOLVER_ROOT")
	}
	if config.Root != "" {
		root, err := filepath.Abs(config.Root)
		if err != nil {
			return fmt.Errorf("fail to get absolute path of the root directory: %w", err)
		}
		config.Root = root
	}
	if config.CacheCapacity <= 0 {
		if v := os.Getenv("RESOLVER_CACHE_CAPACITY"); v != "" {
			if i, e := strconv.Atoi(v); e == nil && i > 0 {
				config.CacheCapacity = i
			}
		}
	}
	if config.LogLevel == "" {
		config.LogLevel = os.Getenv("LOG_LEVEL")
		if config.LogLevel == "" {
			config.LogLevel = "info"
		}
	}
	if config.LogDir == "" {
		config.LogDir = os.Getenv("LOG_DIR")
	}
	return nil
}

// ResolveMode returns the resolution mode of the config.
func (config *Config) ResolveMode() resolver.Mode {
	mode, _ := specifier.ParseType(config.Mode)
	return mode
}

// Options returns the resolver options of the config.
func (config *Config) Options() resolver.Options {
	return resolver.Options{
		Mode:                 config.ResolveMode(),
		Conditions:           config.Conditions,
		Extensions:           config.Extensions,
		MainFields:           config.MainFields,
		Browser:              config.Browser,
		TsConfig:             config.TsConfig == nil || *config.TsConfig,
		EnforceESMExtensions: config.EnforceESMExtensions,
	}
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		found := false
		for _, v := range list {
			if v == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
