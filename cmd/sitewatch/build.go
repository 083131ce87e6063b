package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitewatch-dev/sitewatch/internal/assets"
	"github.com/sitewatch-dev/sitewatch/internal/build"
	"github.com/sitewatch-dev/sitewatch/internal/config"
)

func buildCmd() *cobra.Command {
	var release bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the site once",
		Long: `Build compiles the server and wasm targets, compiles the style
sheet, mirrors the assets and assembles the site under the staging
directory.

With --release the binaries are stripped, the CSS is minified and
the wasm module is run through wasm-opt when available.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(release)
		},
	}

	cmd.Flags().BoolVar(&release, "release", false, "build optimized release artifacts")
	return cmd
}

func runBuild(release bool) error {
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}

	mode := "debug"
	if release {
		mode = "release"
	}
	info("building %s (%s)...", cfg.Name, mode)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result := newPipeline(cfg, release).Run(ctx)
	switch result.Outcome {
	case build.Cancelled:
		warn("build cancelled")
		return nil
	case build.Failed:
		errorMsg("stage %s failed", result.Stage)
		return result.Err
	}

	success("built in %s", result.Duration.Round(time.Millisecond))
	printArtifacts(cfg)
	return nil
}

// newPipeline wires a pipeline with the asset synchronizer when the
// project has an assets directory.
func newPipeline(cfg *config.Config, release bool) *build.Pipeline {
	opts := build.Options{Release: release, Logf: logf}
	if cfg.AssetsPath() != "" {
		opts.Assets = assets.New(assets.Config{
			Src:      cfg.AssetsPath(),
			Dest:     cfg.SiteRoot(),
			Reserved: []string{"index.html", cfg.Site.PkgDir},
			Logf:     logf,
		}, nil)
	}
	return build.NewPipeline(cfg, opts)
}

// printArtifacts lists the main build outputs with their sizes.
func printArtifacts(cfg *config.Config) {
	paths := []string{
		cfg.ServerBinPath(),
		filepath.Join(cfg.PkgDir(), cfg.Build.OutputName+".wasm"),
	}
	if cfg.StylePath() != "" {
		paths = append(paths, filepath.Join(cfg.PkgDir(), cfg.Build.OutputName+".css"))
	}
	for _, path := range paths {
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(cfg.Dir(), path)
		if err != nil {
			rel = path
		}
		info("%-40s %s", rel, formatBytes(fi.Size()))
	}
}

// formatBytes formats a byte count in human-readable form.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
