// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the optional callscope configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the project root.
const FileName = "callscope.config.yaml"

// Config holds user-provided settings for scanning, serving, and the
// disambiguation oracle.
//
// Description:
//
//	Loaded from <projectRoot>/callscope.config.yaml. All fields are
//	optional. A missing config file is not an error (zero-config works
//	out of the box).
//
// Thread Safety: Safe for concurrent reads after construction.
type Config struct {
	// Server configures the HTTP surface.
	Server ServerConfig `yaml:"server"`

	// Oracle configures the LLM disambiguation oracle. Disabled unless
	// Model is set.
	Oracle OracleConfig `yaml:"oracle"`

	// Scan configures the project scanner.
	Scan ScanConfig `yaml:"scan"`

	// MaxDepth caps extraction depth. 0 means unbounded.
	MaxDepth int `yaml:"max_depth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Port the server listens on. Default: 8755.
	Port int `yaml:"port"`
}

// OracleConfig holds LLM oracle settings.
type OracleConfig struct {
	// Model is the chat model name. Empty disables the oracle; the
	// engine then uses deterministic fallback for every ambiguous
	// dispatch.
	Model string `yaml:"model"`

	// BaseURL is the chat completions endpoint. Empty uses the OpenAI
	// default.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// Default: CALLSCOPE_ORACLE_API_KEY.
	APIKeyEnv string `yaml:"api_key_env"`

	// CacheDir is the directory for the persistent decision cache.
	// Empty disables persistence; decisions are still coalesced
	// in-process.
	CacheDir string `yaml:"cache_dir"`

	// RequestsPerSecond throttles oracle calls. 0 means no limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ScanConfig holds scanner settings.
type ScanConfig struct {
	// Excludes lists directory names to skip in addition to the
	// defaults (vendor, testdata, node_modules).
	Excludes []string `yaml:"excludes"`

	// IncludeTests scans _test.go files too.
	IncludeTests bool `yaml:"include_tests"`
}

// DefaultPort is the HTTP port used when the config does not set one.
const DefaultPort = 8755

// Load reads callscope.config.yaml from the project root.
//
// Description:
//
//	Reads and parses the config file. If the project root is empty or
//	the file does not exist, returns a default config with no error.
//	Only returns an error if the file exists but cannot be parsed.
//
// Outputs:
//
//	Config - The parsed config with defaults applied.
//	error - Non-nil only if the file exists but has invalid YAML.
func Load(projectRoot string) (Config, error) {
	cfg := Config{Server: ServerConfig{Port: DefaultPort}}
	if projectRoot == "" {
		return cfg, nil
	}

	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", FileName, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Oracle.APIKeyEnv == "" {
		cfg.Oracle.APIKeyEnv = "CALLSCOPE_ORACLE_API_KEY"
	}
	return cfg, nil
}
