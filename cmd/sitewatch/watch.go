package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitewatch-dev/sitewatch/internal/assets"
	"github.com/sitewatch-dev/sitewatch/internal/build"
	"github.com/sitewatch-dev/sitewatch/internal/config"
	"github.com/sitewatch-dev/sitewatch/internal/dev"
	"github.com/sitewatch-dev/sitewatch/internal/event"
	"github.com/sitewatch-dev/sitewatch/internal/metrics"
	"github.com/sitewatch-dev/sitewatch/internal/watch"
)

func watchCmd() *cobra.Command {
	var (
		addr    string
		open    bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build the site and rebuild on change",
		Long: `Watch builds the site, starts the server and the live-reload
front, and rebuilds whenever sources, styles or assets change.

Source changes trigger a full rebuild and a server restart; style
changes recompile the style sheet and hot-swap it in connected
browsers; asset changes are mirrored into the site root
incrementally.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(addr, open, verbose)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address for the dev front (default from config)")
	cmd.Flags().BoolVar(&open, "open", false, "open the site in a browser once serving")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose diagnostic output")
	return cmd
}

func runWatch(addr string, open, verbose bool) error {
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.ReloadAddr()
	}

	printBanner()
	info("project:  %s", cfg.Name)
	info("site:     http://%s", addr)
	info("server:   http://%s", cfg.Site.Addr)
	fmt.Println()

	diag := func(string, ...any) {}
	if verbose {
		diag = logf
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := event.NewBus()
	m := metrics.Default()

	// Shut the loop down on Ctrl-C. The message drains through the bus
	// so every subscriber winds down in order.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		info("shutting down...")
		bus.Publish(event.ShutDown{})
		cancel()
	}()

	pipeOpts := build.Options{Metrics: m, Logf: logf}
	if cfg.AssetsPath() != "" {
		syncer := assets.New(assets.Config{
			Src:      cfg.AssetsPath(),
			Dest:     cfg.SiteRoot(),
			Reserved: []string{"index.html", cfg.Site.PkgDir},
			Metrics:  m,
			Logf:     diag,
		}, bus)
		go syncer.Run(ctx)
		pipeOpts.Assets = syncer
	}

	watcher := watch.NewWatcher(watch.Config{
		Roots:     watch.CollectWatchRoots(cfg),
		Exclude:   watch.ExcludePaths(cfg),
		AssetsDir: cfg.AssetsPath(),
		Metrics:   m,
		Logf:      diag,
	}, bus)
	// Watcher or front setup failures end the session: a loop that never
	// sees a change, or has no front to serve, is not a working watch.
	fatal := make(chan error, 2)
	go func() {
		if err := watcher.Start(ctx); err != nil {
			fatal <- err
			bus.Publish(event.ShutDown{})
		}
	}()

	pipeline := build.NewPipeline(cfg, pipeOpts)

	reload := dev.NewReloadServer(m)
	defer reload.Close()

	front, err := dev.NewFront(dev.FrontOptions{
		Addr:   addr,
		Target: "http://" + cfg.Site.Addr,
		Reload: reload,
		Logf:   diag,
	})
	if err != nil {
		return err
	}
	go func() {
		if err := front.ListenAndServe(ctx); err != nil {
			fatal <- err
			bus.Publish(event.ShutDown{})
		}
	}()

	if open {
		go openURL("http://" + addr)
	}

	orch := dev.NewOrchestrator(cfg, bus, dev.Options{
		Pipeline: pipeline,
		Reload:   reload,
		Metrics:  m,
		Logf:     logf,
	})
	runErr := orch.Run(ctx)
	cancel()

	select {
	case err := <-fatal:
		return err
	default:
	}
	if runErr != nil {
		return runErr
	}
	success("stopped")
	return nil
}

// openURL opens the URL in the default browser.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		warn("could not open browser: %v", err)
	}
}
