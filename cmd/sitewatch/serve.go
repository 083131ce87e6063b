package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitewatch-dev/sitewatch/internal/build"
	"github.com/sitewatch-dev/sitewatch/internal/config"
	"github.com/sitewatch-dev/sitewatch/internal/errors"
)

func serveCmd() *cobra.Command {
	var (
		release   bool
		skipBuild bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the site and run the server",
		Long: `Serve builds the site and then runs the server binary in the
foreground, without the file watcher or the live-reload front.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(release, skipBuild)
		},
	}

	cmd.Flags().BoolVar(&release, "release", false, "build optimized release artifacts")
	cmd.Flags().BoolVar(&skipBuild, "no-build", false, "run the existing binary without rebuilding")
	return cmd
}

func runServe(release, skipBuild bool) error {
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !skipBuild {
		result := newPipeline(cfg, release).Run(ctx)
		switch result.Outcome {
		case build.Cancelled:
			return nil
		case build.Failed:
			errorMsg("stage %s failed", result.Stage)
			return result.Err
		}
	}

	info("serving %s on http://%s", cfg.Name, cfg.Site.Addr)

	server := exec.CommandContext(ctx, cfg.ServerBinPath())
	server.Dir = cfg.Dir()
	server.Env = append(os.Environ(), cfg.ServerEnv(false)...)
	server.Stdout = os.Stdout
	server.Stderr = os.Stderr
	if err := server.Run(); err != nil && ctx.Err() == nil {
		return errors.FromError(err, "E146")
	}
	return nil
}
