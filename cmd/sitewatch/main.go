package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitewatch-dev/sitewatch/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┬┌┬┐┌─┐┬ ┬┌─┐┌┬┐┌─┐┬ ┬
  └─┐│ │ ├┤ │││├─┤ │ │  ├─┤
  └─┘┴ ┴ └─┘└┴┘┴ ┴ ┴ └─┘┴ ┴
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "sitewatch",
		Short: "Build, watch and serve Go wasm sites",
		Long: `sitewatch is a dev-loop tool for Go web sites that ship a
WebAssembly front end.

It compiles the server and front targets, assembles the site
under a staging directory, and in watch mode rebuilds on change
and live-reloads connected browsers.

  • Server and wasm builds in parallel
  • Style compilation (CSS, Tailwind, Sass)
  • Asset mirroring with incremental updates
  • Live reload over WebSocket
  • One-command deploy to S3`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		initCmd(),
		watchCmd(),
		buildCmd(),
		serveCmd(),
		testCmd(),
		deployCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var serr *errors.Error
		if stderrors.As(err, &serr) {
			fmt.Fprintln(os.Stderr, serr.Format())
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}

// logf is the plain diagnostic sink handed to the internal packages.
func logf(format string, args ...any) {
	info(format, args...)
}
