// Package config loads hydra.toml, layers environment variable and CLI
// flag overrides on top, and exposes the resulting Config to every rule
// family. Grounded on internal/cli/loader.go's precedence chain
// (defaults -> file -> env -> flags) from the teacher.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the fully-resolved analyzer configuration (spec.md §6
// "Config file", plus the AnalyzerConfig fields from
// original_source/src/analyzer/config.rs carried in per SPEC_FULL.md §3).
type Config struct {
	Hydra  HydraSection  `toml:"hydra"`
	Checks ChecksSection `toml:"checks"`
	Output OutputSection `toml:"output"`
}

// HydraSection is `[hydra]`.
type HydraSection struct {
	Strict           bool   `toml:"strict"`
	IgnoreTests      bool   `toml:"ignore_tests"`
	MaxModuleSize    int    `toml:"max_module_size"`
	MaxLoopDepth     int    `toml:"max_loop_depth"`
	MaxVectorDepth   int    `toml:"max_vector_depth"`
	MaxCallStackDepth int   `toml:"max_call_stack_depth"`
	MaxExternalCallsPerLoop int `toml:"max_external_calls_per_loop"`
	ModuleTimeoutSeconds int `toml:"module_timeout_seconds"`

	// RecipientAssertionHelpers is the configurable transfer-guard
	// predicate allowlist from spec.md §9's open question: function
	// names (unqualified) treated as valid recipient-validating helpers
	// in addition to the built-in `is_valid_recipient`-style heuristic.
	RecipientAssertionHelpers []string `toml:"recipient_assertion_helpers"`

	// CapabilityTypeNames extends the default "ends in Cap" heuristic
	// (spec.md §4.4) with an explicit allowlist of non-conforming names.
	CapabilityTypeNames []string `toml:"capability_type_names"`
}

// ChecksSection is `[checks]`: one boolean per check family (spec.md §6,
// `--check` flag's ⊂ {transfer, capability, shared, reference, dos,
// arithmetic}).
type ChecksSection struct {
	Transfer   bool `toml:"transfer"`
	Capability bool `toml:"capability"`
	Shared     bool `toml:"shared"`
	Reference  bool `toml:"reference"`
	Dos        bool `toml:"dos"`
	Arithmetic bool `toml:"arithmetic"`
}

// OutputSection is `[output]`.
type OutputSection struct {
	Format    string `toml:"format"`
	Verbose   bool   `toml:"verbose"`
	ShowFixes bool   `toml:"show_fixes"`
}

// Default returns the configuration used when no hydra.toml is present
// (spec.md §7, "Missing config file is not an error").
func Default() Config {
	return Config{
		Hydra: HydraSection{
			MaxModuleSize:           10_000,
			MaxLoopDepth:            3,
			MaxVectorDepth:          2,
			MaxCallStackDepth:       8,
			MaxExternalCallsPerLoop: 1,
			ModuleTimeoutSeconds:    5,
		},
		Checks: ChecksSection{
			Transfer:   true,
			Capability: true,
			Shared:     true,
			Reference:  true,
			Dos:        true,
			Arithmetic: true,
		},
		Output: OutputSection{Format: "text"},
	}
}

// Load resolves configuration with the precedence: defaults, then
// hydra.toml (path resolved per resolvePath), then environment
// variables. CLI flag overrides are applied by the caller afterward
// (internal/cli), since cobra owns flag parsing.
//
// Unknown keys in the TOML file produce a warning (returned, not an
// error) rather than failing the load, per spec.md §6.
func Load(explicitPath string) (Config, []string, error) {
	cfg := Default()
	var warnings []string

	path := resolvePath(explicitPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg), warnings, nil
		}
		return cfg, warnings, fmt.Errorf("read config %q: %w", path, err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		// DisallowUnknownFields turns unknown keys into a decode error;
		// downgrade that specific case to a warning per spec.md §6 and
		// retry with a lenient decoder so the rest of the file still
		// takes effect.
		warnings = append(warnings, fmt.Sprintf("hydra.toml: %v (ignoring unknown keys)", err))
		cfg = Default()
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, warnings, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	return applyEnv(cfg), warnings, nil
}

func resolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("HYDRA_CONFIG"); p != "" {
		return p
	}
	return "hydra.toml"
}

func applyEnv(cfg Config) Config {
	// HYDRA_LOG is consumed directly by internal/logging; nothing to
	// fold into Config itself.
	return cfg
}
