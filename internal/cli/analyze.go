package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hydra-analyzer/hydra/internal/cache"
	"github.com/hydra-analyzer/hydra/internal/config"
	"github.com/hydra-analyzer/hydra/internal/engine"
	"github.com/hydra-analyzer/hydra/internal/finding"
	"github.com/hydra-analyzer/hydra/internal/logging"
	"github.com/hydra-analyzer/hydra/internal/render"
	"github.com/hydra-analyzer/hydra/internal/report"
)

// version is the analyzer version stamped into every AnalysisResult,
// overridable at link time (`-ldflags "-X ...cli.version=..."`) the way
// the teacher stamps its own build metadata.
var version = "0.1.0"

// AnalyzeOptions holds the `hydra analyze` flags (spec.md §6).
type AnalyzeOptions struct {
	*RootOptions
	Strict      bool
	Fixes       bool
	IgnoreTests bool
	Check       []string
	CachePath   string
}

// allCheckFamilies is the ⊂ set spec.md §6's --check flag draws from.
var allCheckFamilies = []string{"transfer", "capability", "shared", "reference", "dos", "arithmetic"}

// NewAnalyzeCommand builds the `hydra analyze <path>` command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "analyze <path>",
		Short:         "Analyze a Move file or directory for safety violations",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "promote Medium severity findings to High")
	cmd.Flags().BoolVar(&opts.Fixes, "fixes", false, "include suggested fixes in output")
	cmd.Flags().BoolVar(&opts.IgnoreTests, "ignore-tests", false, "skip functions that look like test helpers")
	cmd.Flags().StringSliceVar(&opts.Check, "check", nil, fmt.Sprintf("restrict checks to this list %v", allCheckFamilies))
	cmd.Flags().StringVar(&opts.CachePath, "cache", "", "path to an incremental per-module result cache (disabled if unset)")

	return cmd
}

func runAnalyze(opts *AnalyzeOptions, path string, cmd *cobra.Command) error {
	slog.SetDefault(logging.NewWithVerbose(opts.Verbose))

	cfg, warnings, err := config.Load("")
	if err != nil {
		return WrapExitError(ExitFatal, "load config", err)
	}
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}

	applyFlagOverrides(&cfg, opts)

	slog.Info("discovering sources", "path", path)
	sources, skipped, err := discoverSources(path)
	if err != nil {
		return WrapExitError(ExitFatal, "discover sources", err)
	}
	if len(sources) == 0 {
		return NewExitError(ExitFatal, fmt.Sprintf("no modules could be analyzed under %q", path))
	}
	slog.Info("sources discovered", "modules", len(sources), "skipped", len(skipped))

	var c *cache.Cache
	var moduleCache engine.ModuleCache
	if opts.CachePath != "" {
		slog.Info("opening cache", "path", opts.CachePath)
		c, err = cache.Open(opts.CachePath)
		if err != nil {
			return WrapExitError(ExitFatal, "open cache", err)
		}
		defer c.Close()
		moduleCache = c
		slog.Info("cache ready")
	}

	e := engine.New(cfg)
	e.Cache = moduleCache

	agg := report.New(opts.Strict, report.UUIDGenerator{})
	for _, v := range skipped {
		agg.Merge(report.ModuleFindings{Module: v.Location.Module, Violations: []finding.SafetyViolation{v}})
	}

	slog.Info("engine starting", "workers", e.Workers, "modules", len(sources))
	if err := e.Run(cmd.Context(), sources, agg); err != nil {
		return WrapExitError(ExitFatal, "analysis run", err)
	}
	slog.Info("engine finished")

	res := agg.Build(version)
	if opts.Fixes {
		applySuggestedFixes(&res)
	}

	format := render.Format(opts.Format)
	if err := render.Render(cmd.OutOrStdout(), format, res); err != nil {
		return WrapExitError(ExitFatal, "render output", err)
	}

	if code := report.ExitCode(res); code != ExitNoFindings {
		return NewExitError(code, "findings reported")
	}
	return nil
}

// applyFlagOverrides layers CLI flags on top of the loaded config,
// outermost in the precedence chain SPEC_FULL.md §1 describes
// (defaults -> file -> env -> flags).
func applyFlagOverrides(cfg *config.Config, opts *AnalyzeOptions) {
	cfg.Output.Format = opts.Format
	cfg.Output.Verbose = opts.Verbose
	cfg.Hydra.IgnoreTests = cfg.Hydra.IgnoreTests || opts.IgnoreTests
	cfg.Output.ShowFixes = cfg.Output.ShowFixes || opts.Fixes

	if len(opts.Check) > 0 {
		enabled := make(map[string]bool, len(opts.Check))
		for _, c := range opts.Check {
			enabled[strings.ToLower(strings.TrimSpace(c))] = true
		}
		cfg.Checks = config.ChecksSection{
			Transfer:   enabled["transfer"],
			Capability: enabled["capability"],
			Shared:     enabled["shared"],
			Reference:  enabled["reference"],
			Dos:        enabled["dos"],
			Arithmetic: enabled["arithmetic"],
		}
	}
}

// fixSuggestions is a static per-kind suggestion table, adapted from
// original_source/src/analyzer/safety_verifier.rs's dynamically-built
// ViolationContext.suggested_fixes strings: Hydra's SafetyViolation
// carries one Kind rather than free-form context, so the messages are
// generalized to one fixed string per kind rather than reproduced
// per-call-site verbatim.
var fixSuggestions = map[finding.Kind]string{
	finding.KindReferenceEscape:           "return an owned value or a narrower accessor instead of the mutable reference",
	finding.KindBoundaryCrossing:          "copy or re-validate the value before passing it to an external module",
	finding.KindStoredReference:           "store an object ID instead of a reference",
	finding.KindUnsafeTransfer:            "add a recipient validation check before transferring",
	finding.KindUseAfterTransfer:          "drop all local bindings to the object immediately after transfer",
	finding.KindInvalidSharedAccess:       "acquire the object through its shared-object entry function instead",
	finding.KindInvariantViolation:        "re-check the invariant-guarded field before returning",
	finding.KindUncheckedArithmetic:       "use a checked arithmetic helper or assert bounds first",
	finding.KindPossibleUnderflow:         "assert the subtrahend does not exceed the minuend",
	finding.KindDivByZero:                 "assert the divisor is non-zero before dividing",
	finding.KindResourceLeak:              "transfer, share, or destroy the object on every code path",
	finding.KindDynamicFieldNotRemoved:    "remove the dynamic field before the parent object is destroyed",
	finding.KindCapabilityLeak:            "require the capability by reference, not by value, where possible",
	finding.KindUnsafeDelegation:          "scope the delegated capability to a single authorized action",
	finding.KindMissingExpiryCheck:        "assert the capability has not expired before use",
	finding.KindCapabilityResourceMismatch: "bind the capability to the specific resource it authorizes",
	finding.KindPrivilegeEscalation:       "re-derive the capability's permission mask instead of trusting the caller's",
	finding.KindMissingConsensus:          "require a Clock or consensus witness before this shared-object mutation",
	finding.KindMissingTimestampCheck:     "assert the Clock's timestamp satisfies the intended window",
	finding.KindUnusedClock:               "remove the unused Clock parameter or use it for the intended check",
	finding.KindExternalCallInLoop:        "move the external call out of the loop or bound the loop's iteration count",
	finding.KindNestedExternalLoops:       "flatten the nested loops or cap the combined iteration count",
	finding.KindDynamicLoopBound:          "bound the loop by a constant or a configured maximum",
}

func applySuggestedFixes(res *finding.AnalysisResult) {
	for i := range res.Findings {
		if res.Findings[i].SuggestedFix == "" {
			res.Findings[i].SuggestedFix = fixSuggestions[res.Findings[i].Kind]
		}
	}
}
