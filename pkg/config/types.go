// Package config loads and validates the application configuration: target
// endpoint and credentials, filter rules, artifact and history locations,
// guard mode, and the telemetry section.
package config

import (
	"time"

	"github.com/policydelta/policydelta/pkg/telemetry"
)

// TargetConfig identifies the remote policy API endpoint.
type TargetConfig struct {
	// Endpoint is the base URL of the policy manager.
	Endpoint string `json:"endpoint" yaml:"endpoint" validate:"required,url"`

	// Username for basic authentication.
	Username string `json:"username" yaml:"username"`

	// Password for basic authentication. Overridable via the
	// POLICYDELTA_PASSWORD environment variable so it can stay out of files.
	Password string `json:"-" yaml:"password"`

	// Timeout bounds each HTTP request. Accepts Go duration strings ("60s").
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// SchemaPaths maps schema source names to OpenAPI document paths on the
	// endpoint. Empty means the client defaults.
	SchemaPaths map[string]string `json:"schema_paths,omitempty" yaml:"schema_paths,omitempty"`
}

// FilterConfig locates the exclusion rule set.
type FilterConfig struct {
	// RulesPath is the YAML or JSON rule file. Empty means no filtering.
	RulesPath string `json:"rules_path,omitempty" yaml:"rules_path,omitempty"`

	// Workers sizes the optional parallel filtering pool. Zero or one means
	// sequential.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0"`
}

// ArtifactConfig locates operation artifacts.
type ArtifactConfig struct {
	// Dir is the directory baseline, delta, and verification files are
	// written to.
	Dir string `json:"dir" yaml:"dir" validate:"required"`
}

// HistoryConfig locates the operation history database.
type HistoryConfig struct {
	// Path is the SQLite database file. Empty disables history.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// GuardConfig controls the pre-apply policy guard.
type GuardConfig struct {
	// Mode is "advisory" (report only) or "enforcing" (block on error and
	// critical violations).
	Mode string `json:"mode" yaml:"mode" validate:"oneof=advisory enforcing"`

	// PolicyPaths are extra Rego or JSON policy files or directories loaded
	// alongside the built-ins.
	PolicyPaths []string `json:"policy_paths,omitempty" yaml:"policy_paths,omitempty"`
}

// ApplyConfig controls delta submission.
type ApplyConfig struct {
	// Method is the HTTP method used for apply. Empty means PATCH.
	Method string `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=PATCH PUT"`
}

// Config is the full application configuration.
type Config struct {
	Target    TargetConfig      `json:"target" yaml:"target"`
	Domain    string            `json:"domain,omitempty" yaml:"domain,omitempty"`
	Filter    FilterConfig      `json:"filter" yaml:"filter"`
	Artifacts ArtifactConfig    `json:"artifacts" yaml:"artifacts"`
	History   HistoryConfig     `json:"history" yaml:"history"`
	Guard     GuardConfig       `json:"guard" yaml:"guard"`
	Apply     ApplyConfig       `json:"apply" yaml:"apply"`
	Telemetry *telemetry.Config `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// Default returns the configuration defaults applied before a file is read.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			Timeout: Duration(60 * time.Second),
		},
		Domain: "default",
		Artifacts: ArtifactConfig{
			Dir: "artifacts",
		},
		History: HistoryConfig{
			Path: "policydelta.db",
		},
		Guard: GuardConfig{
			Mode: "advisory",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}
