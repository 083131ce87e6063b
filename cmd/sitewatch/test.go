package main

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/sitewatch-dev/sitewatch/internal/config"
)

func testCmd() *cobra.Command {
	var (
		verbose bool
		cover   bool
		race    bool
		wasm    bool
	)

	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run the project's tests",
		Long: `Test runs go test for the project. With --wasm the tests are
compiled for the js/wasm target instead, which requires a wasm
test runner such as wasmbrowsertest on PATH as go_js_wasm_exec.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(args, verbose, cover, race, wasm)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose test output")
	cmd.Flags().BoolVar(&cover, "cover", false, "report test coverage")
	cmd.Flags().BoolVar(&race, "race", false, "enable the race detector")
	cmd.Flags().BoolVar(&wasm, "wasm", false, "run tests for the js/wasm target")
	return cmd
}

func runTest(packages []string, verbose, cover, race, wasm bool) error {
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}

	goArgs := []string{"test"}
	if verbose {
		goArgs = append(goArgs, "-v")
	}
	if cover {
		goArgs = append(goArgs, "-cover")
	}
	if race && !wasm {
		goArgs = append(goArgs, "-race")
	}
	if len(packages) == 0 {
		packages = []string{"./..."}
	}
	goArgs = append(goArgs, packages...)

	test := exec.Command("go", goArgs...)
	test.Dir = cfg.Dir()
	test.Env = os.Environ()
	if wasm {
		test.Env = append(test.Env, "GOOS=js", "GOARCH=wasm")
	}
	test.Stdout = os.Stdout
	test.Stderr = os.Stderr
	return test.Run()
}
