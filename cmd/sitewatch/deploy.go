package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitewatch-dev/sitewatch/internal/build"
	"github.com/sitewatch-dev/sitewatch/internal/config"
	"github.com/sitewatch-dev/sitewatch/internal/deploy"
)

func deployCmd() *cobra.Command {
	var skipBuild bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build the site and upload it to S3",
		Long: `Deploy runs a release build and syncs the staging directory to
the configured S3 bucket: every file is uploaded, then keys under
the prefix with no local counterpart are removed.

Credentials come from the ambient AWS configuration (environment,
shared config files, instance role).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(skipBuild)
		},
	}

	cmd.Flags().BoolVar(&skipBuild, "no-build", false, "upload the existing staging directory without rebuilding")
	return cmd
}

func runDeploy(skipBuild bool) error {
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !skipBuild {
		info("building release artifacts...")
		result := newPipeline(cfg, true).Run(ctx)
		switch result.Outcome {
		case build.Cancelled:
			return nil
		case build.Failed:
			errorMsg("stage %s failed", result.Stage)
			return result.Err
		}
	}

	uploader, err := deploy.NewFromEnvironment(ctx, cfg.Deploy, logf)
	if err != nil {
		return err
	}

	info("deploying %s to s3://%s/%s", cfg.Name, cfg.Deploy.Bucket, cfg.Deploy.Prefix)
	summary, err := uploader.Sync(ctx, cfg.SiteRoot())
	if err != nil {
		return err
	}
	success("deployed: %d uploaded, %d deleted", summary.Uploaded, summary.Deleted)
	return nil
}
