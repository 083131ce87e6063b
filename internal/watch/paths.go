package watch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sitewatch-dev/sitewatch/internal/config"
)

// RemoveNested reduces a set of paths so that no kept path is a descendant
// of another: an ancestor subsumes its descendants. The fold is
// order-independent — a path replaces any already-kept descendant and is
// dropped when an already-kept ancestor covers it.
func RemoveNested(paths []string) []string {
	var kept []string
	for _, path := range paths {
		path = filepath.Clean(path)
		covered := false
		for _, k := range kept {
			if k == path || isAncestor(k, path) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		// The new path may subsume several kept entries, not just one;
		// drop every descendant before keeping it.
		remaining := kept[:0]
		for _, k := range kept {
			if !isAncestor(path, k) {
				remaining = append(remaining, k)
			}
		}
		kept = append(remaining, path)
	}
	return kept
}

// isAncestor reports whether ancestor strictly contains path.
func isAncestor(ancestor, path string) bool {
	if ancestor == path {
		return false
	}
	return strings.HasPrefix(path, ancestor+string(filepath.Separator))
}

// CollectWatchRoots returns the reduced, deduplicated set of roots to
// watch for the project: the source tree, the style entry's directory,
// the assets tree and any extra configured paths. Roots that do not
// exist are skipped.
func CollectWatchRoots(cfg *config.Config) []string {
	paths := []string{cfg.SourcePath()}

	if style := cfg.StylePath(); style != "" {
		paths = append(paths, filepath.Dir(style))
	}
	if assets := cfg.AssetsPath(); assets != "" {
		paths = append(paths, assets)
	}
	for _, extra := range cfg.Dev.Watch {
		if filepath.IsAbs(extra) {
			paths = append(paths, extra)
		} else {
			paths = append(paths, filepath.Join(cfg.Dir(), extra))
		}
	}

	var existing []string
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		clean := filepath.Clean(path)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		if _, err := os.Stat(clean); err != nil {
			continue
		}
		existing = append(existing, clean)
	}

	return RemoveNested(existing)
}

// ExcludePaths resolves the configured exclusion set to absolute paths.
func ExcludePaths(cfg *config.Config) []string {
	var out []string
	for _, path := range cfg.Dev.Exclude {
		if filepath.IsAbs(path) {
			out = append(out, filepath.Clean(path))
		} else {
			out = append(out, filepath.Join(cfg.Dir(), path))
		}
	}
	return out
}
