package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/engine"
	"github.com/hydra-analyzer/hydra/internal/finding"
)

// discoverSources walks path (a single file or a directory) and
// collects every `.move` source. Results are returned in a
// deterministic, sorted-by-path order so a given filesystem layout
// always feeds the engine the same slice (spec.md §8 "Finding
// stability" depends on the whole pipeline being order-independent,
// not just the aggregator).
//
// internal/ast's Parse is a round trip of its own canonical printer,
// not a Move grammar (see Parse's doc comment in internal/ast/parser.go); a
// real Move front end is spec.md §1's declared external collaborator.
// Until one is wired in, a file that fails to parse here produces a
// ModuleSkipped finding rather than aborting the run, exactly as
// spec.md §7 describes for "parse error, unsupported Move feature".
func discoverSources(path string) ([]engine.Source, []finding.SafetyViolation, error) {
	paths, err := collectMoveFiles(path)
	if err != nil {
		return nil, nil, err
	}

	var sources []engine.Source
	var skipped []finding.SafetyViolation
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			skipped = append(skipped, moduleSkipped(p, fmt.Sprintf("read error: %v", err)))
			continue
		}
		mod, err := ast.Parse(string(data))
		if err != nil {
			skipped = append(skipped, moduleSkipped(p, fmt.Sprintf("parse error: %v", err)))
			continue
		}
		sources = append(sources, engine.Source{Module: mod, Text: string(data)})
	}

	return sources, skipped, nil
}

func moduleSkipped(path, reason string) finding.SafetyViolation {
	return finding.SafetyViolation{
		Kind:     finding.KindModuleSkipped,
		Severity: finding.Info,
		Location: finding.Location{Module: path},
		Message:  reason,
	}
}

func collectMoveFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	var out []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".move") {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", path, err)
	}
	sort.Strings(out)
	return out, nil
}
